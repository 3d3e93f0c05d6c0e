package embedder

import (
	"context"
	"strconv"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"
)

// DefaultHashDimension matches the dimension of small sentence-transformer
// models so hash-built stores have a familiar shape.
const DefaultHashDimension = 384

// HashModel is a deterministic bag-of-words model based on feature hashing.
// Every lowercased word and adjacent word pair is hashed into a signed
// bucket and the result is L2-normalized. It needs no network and is used
// for offline builds and tests. Texts that share words score higher.
type HashModel struct {
	dim int
}

// NewHashModel returns a hashing model of the given dimension.
func NewHashModel(dim int) *HashModel {
	if dim <= 0 {
		dim = DefaultHashDimension
	}
	return &HashModel{dim: dim}
}

// Embed hashes every text. It never fails unless ctx is done.
func (m *HashModel) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = m.vector(t)
	}
	return out, nil
}

func (m *HashModel) vector(text string) []float32 {
	v := make([]float32, m.dim)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	for i, w := range words {
		m.add(v, w, 1)
		if i > 0 {
			m.add(v, words[i-1]+" "+w, 0.5)
		}
	}
	Normalize(v)
	return v
}

func (m *HashModel) add(v []float32, feature string, weight float32) {
	h := xxhash.Sum64String(feature)
	idx := int(h % uint64(m.dim))
	if h>>63 == 1 {
		weight = -weight
	}
	v[idx] += weight
}

// Dimension returns the vector dimension.
func (m *HashModel) Dimension() int { return m.dim }

// Name returns the model name including its dimension.
func (m *HashModel) Name() string { return "hash-" + strconv.Itoa(m.dim) }
