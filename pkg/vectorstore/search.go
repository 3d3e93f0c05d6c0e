package vectorstore

import (
	"fmt"
	"sort"

	"github.com/perbu/epasrag/pkg/embedder"
	"github.com/perbu/epasrag/pkg/epas"
)

// Hit is a single search result.
type Hit struct {
	Chunk   epas.Chunk
	Score   float64
	Ordinal int
}

// Dot computes the inner product of two equal-length vectors. For unit
// vectors this is the cosine similarity, in [-1, 1].
func Dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

// Search returns up to k chunks matching filter, ordered by descending
// similarity to query. Equal scores keep insertion order. A non-positive
// k or a filter that matches nothing yields an empty result.
func (s *Store) Search(query []float32, k int, filter epas.Filter) ([]Hit, error) {
	if s == nil {
		return nil, epas.WrapError("Search", epas.ErrNotInitialized)
	}
	if len(query) != s.dim {
		return nil, epas.WrapError("Search", fmt.Errorf("query has %d dimensions, want %d: %w",
			len(query), s.dim, epas.ErrDimensionMismatch))
	}
	if k <= 0 {
		return []Hit{}, nil
	}

	q := make([]float32, len(query))
	copy(q, query)
	embedder.Normalize(q)

	results := make([]Hit, 0, len(s.chunks))
	for i := range s.chunks {
		if len(filter) > 0 && !filter.Matches(s.chunks[i].Metadata) {
			continue
		}
		results = append(results, Hit{
			Chunk:   s.chunks[i],
			Score:   Dot(q, s.vectors[i*s.dim:(i+1)*s.dim]),
			Ordinal: i,
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if k < len(results) {
		results = results[:k]
	}
	return results, nil
}
