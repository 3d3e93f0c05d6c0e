package chunker

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/perbu/epasrag/pkg/epas"
)

func section(text string) epas.Section {
	return epas.Section{
		Text:         text,
		Volume:       "I",
		SectionID:    "1.2",
		SectionTitle: "General",
		StartPage:    3,
		EndPage:      4,
		DocumentType: "regulation",
	}
}

func texts(chunks []epas.Chunk) []string {
	out := make([]string, len(chunks))
	for i, c := range chunks {
		out[i] = c.Text
	}
	return out
}

func TestChunkEmptySection(t *testing.T) {
	c := New()
	chunks, err := c.Chunk(section("  \n\t "))
	require.NoError(t, err)
	require.Len(t, chunks, 1)

	got := chunks[0]
	assert.Equal(t, "", got.Text)
	assert.Equal(t, 0, got.TokenCount)
	assert.Equal(t, 0, got.Metadata.ChunkIndex)
	assert.Equal(t, 1, got.Metadata.TotalChunks)
	assert.Equal(t, "volI_sec1.2_p3_c0", got.ID)
	assert.Equal(t, "General", got.Metadata.SectionTitle)
	assert.Equal(t, 4, got.Metadata.EndPage)
}

func TestChunkMissingVolume(t *testing.T) {
	s := section("text")
	s.Volume = ""
	_, err := New().Chunk(s)
	require.ErrorIs(t, err, epas.ErrInvalidSection)
}

func TestChunkSingleParagraph(t *testing.T) {
	chunks, err := New().Chunk(section("  Operators shall report occurrences.  "))
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "Operators shall report occurrences.", chunks[0].Text)
	assert.Equal(t, 4, chunks[0].TokenCount)
}

func TestChunkCarryForward(t *testing.T) {
	c := New(WithChunkSize(6))
	chunks, err := c.Chunk(section("a b c\n\nd e f\n  \ng h i"))
	require.NoError(t, err)
	assert.Equal(t, []string{
		"a b c\n\nd e f",
		"d e f\n\ng h i",
	}, texts(chunks))
}

func TestChunkCarryForwardDroppedWhenOverBudget(t *testing.T) {
	c := New(WithChunkSize(5))
	chunks, err := c.Chunk(section("a b c\n\nd e f"))
	require.NoError(t, err)
	assert.Equal(t, []string{"a b c", "d e f"}, texts(chunks))
}

func TestChunkSentenceSplit(t *testing.T) {
	c := New(WithChunkSize(4))
	chunks, err := c.Chunk(section("One two three. Four five six. Seven."))
	require.NoError(t, err)
	assert.Equal(t, []string{
		"One two three.",
		"Four five six. Seven.",
	}, texts(chunks))
}

func TestChunkOversizedParagraphFlushesBuffer(t *testing.T) {
	c := New(WithChunkSize(4))
	chunks, err := c.Chunk(section("short one\n\nOne two three. Four five six.\n\ntail"))
	require.NoError(t, err)
	assert.Equal(t, []string{
		"short one",
		"One two three.",
		"Four five six.",
		"tail",
	}, texts(chunks))
}

func TestChunkOversizedSentenceIsLogged(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	c := New(WithChunkSize(2), WithLogger(zap.New(core)))

	chunks, err := c.Chunk(section("alpha beta gamma delta."))
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, 4, chunks[0].TokenCount)

	entries := logs.FilterMessage("sentence exceeds chunk size, keeping it whole").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "1.2", entries[0].ContextMap()["section_id"])
}

func TestChunkInvariants(t *testing.T) {
	var paras []string
	for i := 0; i < 40; i++ {
		words := make([]string, 1+(i*7)%19)
		for j := range words {
			words[j] = fmt.Sprintf("w%d_%d", i, j)
		}
		if i%5 == 0 {
			// Multi-sentence paragraph.
			paras = append(paras, strings.Join(words, " ")+". "+strings.Join(words, " ")+".")
		} else {
			paras = append(paras, strings.Join(words, " "))
		}
	}
	text := strings.Join(paras, "\n\n")

	const size = 20
	c := New(WithChunkSize(size))
	chunks, err := c.Chunk(section(text))
	require.NoError(t, err)
	require.NotEmpty(t, chunks)

	ids := make(map[string]bool)
	seen := make(map[string]bool)
	for i, ch := range chunks {
		assert.LessOrEqual(t, ch.TokenCount, size, "chunk %d", i)
		assert.Equal(t, i, ch.Metadata.ChunkIndex)
		assert.Equal(t, len(chunks), ch.Metadata.TotalChunks)
		assert.False(t, ids[ch.ID], "duplicate id %s", ch.ID)
		ids[ch.ID] = true
		for _, w := range strings.Fields(ch.Text) {
			seen[strings.TrimSuffix(w, ".")] = true
		}
	}
	for _, w := range strings.Fields(text) {
		assert.True(t, seen[strings.TrimSuffix(w, ".")], "word %q not covered", w)
	}
}

func TestChunkID(t *testing.T) {
	tests := []struct {
		key   epas.SectionKey
		index int
		want  string
	}{
		{epas.SectionKey{Volume: "II", SectionID: "MST.0001", StartPage: 12}, 2, "volII_secMST.0001_p12_c2"},
		{epas.SectionKey{Volume: "I", SectionID: "ATM/ANS 1.2"}, 0, "volI_secATM_ANS_1.2_p0_c0"},
		{epas.SectionKey{Volume: "III"}, 1, "volIII_secunknown_p0_c1"},
		{epas.SectionKey{}, 0, "volunknown_secunknown_p0_c0"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ChunkID(tt.key, tt.index))
	}
}

func TestChunkAllSkipsInvalid(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	c := New(WithLogger(zap.New(core)))

	bad := section("orphan")
	bad.Volume = ""
	bad.SectionID = "9.9"
	other := section("second section")
	other.SectionID = "2.1"

	chunks := c.ChunkAll([]epas.Section{section("first section"), bad, other})
	require.Len(t, chunks, 2)
	assert.Equal(t, "volI_sec1.2_p3_c0", chunks[0].ID)
	assert.Equal(t, "volI_sec2.1_p3_c0", chunks[1].ID)

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "9.9", entries[0].ContextMap()["section_id"])
}

func TestChunkAllSkipsDuplicateIDs(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	c := New(WithLogger(zap.New(core)))

	first := section("first text")
	first.SectionID = ""
	again := section("second text")
	again.SectionID = ""
	other := section("third text")

	chunks := c.ChunkAll([]epas.Section{first, again, other})
	require.Len(t, chunks, 2)
	assert.Equal(t, "volI_secunknown_p3_c0", chunks[0].ID)
	assert.Equal(t, "first text", chunks[0].Text)
	assert.Equal(t, "volI_sec1.2_p3_c0", chunks[1].ID)

	dups := logs.FilterMessage("skipping section with duplicate chunk id").All()
	require.Len(t, dups, 1)
	assert.Equal(t, "volI_secunknown_p3_c0", dups[0].ContextMap()["chunk_id"])
}

func TestSplitSentences(t *testing.T) {
	got := splitSentences("Hello!  Is it 3.5 mm? Yes.\nEnd")
	assert.Equal(t, []string{"Hello!", "Is it 3.5 mm?", "Yes.", "End"}, got)
	assert.Empty(t, splitSentences("   "))
}

func TestComputeStats(t *testing.T) {
	assert.Equal(t, Stats{}, ComputeStats(nil))

	chunks := []epas.Chunk{
		{TokenCount: 10, Metadata: epas.Metadata{Volume: "I"}},
		{TokenCount: 2, Metadata: epas.Metadata{Volume: "II"}},
		{TokenCount: 6, Metadata: epas.Metadata{Volume: "I"}},
	}
	s := ComputeStats(chunks)
	assert.Equal(t, 3, s.TotalChunks)
	assert.Equal(t, 18, s.TotalTokens)
	assert.InDelta(t, 6.0, s.AvgTokens, 1e-9)
	assert.Equal(t, 2, s.MinTokens)
	assert.Equal(t, 10, s.MaxTokens)
	assert.Equal(t, 2, s.Volumes)
}
