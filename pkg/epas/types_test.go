package epas

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFilterMatches(t *testing.T) {
	m := Metadata{Volume: "I", SectionID: "ORO.FTL.110", StartPage: 12, ChunkIndex: 2, TotalChunks: 3}

	assert.True(t, Filter(nil).Matches(m))
	assert.True(t, Filter{}.Matches(m))
	assert.True(t, Filter{"volume": "I"}.Matches(m))
	assert.True(t, Filter{"volume": "I", "start_page": "12"}.Matches(m))
	assert.False(t, Filter{"volume": "II"}.Matches(m))
	assert.False(t, Filter{"volume": "I", "chunk_index": "0"}.Matches(m))
	assert.False(t, Filter{"colour": "blue"}.Matches(m))
}

func TestVolumeFilter(t *testing.T) {
	assert.Nil(t, VolumeFilter(""))
	assert.Equal(t, Filter{"volume": "III"}, VolumeFilter("III"))
}

func TestVolumeIDsOrder(t *testing.T) {
	assert.Equal(t, []string{"I", "II", "III"}, VolumeIDs())
}

func TestWrapError(t *testing.T) {
	assert.Nil(t, WrapError("Load", nil))

	err := WrapError("Load", fmt.Errorf("reading index: %w", ErrCorrupt))
	assert.True(t, errors.Is(err, ErrCorrupt))
	assert.Equal(t, "epas.Load: reading index: epas: store data corrupted", err.Error())
}
