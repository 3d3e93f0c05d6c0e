// Package vectorstore is a flat inner-product index over L2-normalized
// vectors, bundled with the chunk records and metadata it serves.
//
// A Store is immutable once built or loaded, so any number of goroutines
// may search it concurrently. Rebuilds produce a new Store that is swapped
// in through a Handle.
package vectorstore

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/perbu/epasrag/pkg/embedder"
	"github.com/perbu/epasrag/pkg/epas"
)

// Store holds chunks and their vectors. Ordinal i addresses chunks[i] and
// vectors[i*dim:(i+1)*dim].
type Store struct {
	dim       int
	model     string
	createdAt time.Time

	chunks  []epas.Chunk
	vectors []float32
	byID    map[string]int
	// adjacency maps a chunk position within its section to its ordinal.
	adjacency map[position]int

	log *zap.Logger
}

type position struct {
	key   epas.SectionKey
	index int
}

type options struct {
	model string
	log   *zap.Logger
}

// Option configures Build and Load.
type Option func(*options)

// WithModel records the name of the embedding model that produced the
// vectors.
func WithModel(name string) Option {
	return func(o *options) { o.model = name }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{log: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Build creates a store from embedded chunks. Every chunk must carry an
// embedding of length dim and a unique id. Vectors are normalized copies;
// the stored chunk records do not keep their embeddings.
func Build(dim int, chunks []epas.Chunk, opts ...Option) (*Store, error) {
	if dim <= 0 {
		return nil, epas.WrapError("Build", fmt.Errorf("dimension must be positive, got %d", dim))
	}
	o := buildOptions(opts)

	s := &Store{
		dim:       dim,
		model:     o.model,
		createdAt: time.Now().UTC(),
		chunks:    make([]epas.Chunk, len(chunks)),
		vectors:   make([]float32, len(chunks)*dim),
		byID:      make(map[string]int, len(chunks)),
		log:       o.log,
	}

	for i, c := range chunks {
		if len(c.Embedding) != dim {
			return nil, epas.WrapError("Build", fmt.Errorf("chunk %s has %d dimensions, want %d: %w",
				c.ID, len(c.Embedding), dim, epas.ErrDimensionMismatch))
		}
		if _, dup := s.byID[c.ID]; dup {
			return nil, epas.WrapError("Build", fmt.Errorf("%w: %s", epas.ErrDuplicateID, c.ID))
		}
		s.byID[c.ID] = i

		v := s.vectors[i*dim : (i+1)*dim]
		copy(v, c.Embedding)
		embedder.Normalize(v)

		c.Embedding = nil
		s.chunks[i] = c
	}
	s.indexAdjacency()

	s.log.Info("built vector store",
		zap.Int("chunks", len(chunks)),
		zap.Int("dimension", dim),
		zap.String("model", o.model))
	return s, nil
}

func (s *Store) indexAdjacency() {
	s.adjacency = make(map[position]int, len(s.chunks))
	for i, c := range s.chunks {
		p := position{key: c.Metadata.SectionKey(), index: c.Metadata.ChunkIndex}
		if prev, ok := s.adjacency[p]; ok {
			s.log.Warn("two chunks share a section position, keeping the first",
				zap.String("chunk_id", c.ID),
				zap.String("kept", s.chunks[prev].ID))
			continue
		}
		s.adjacency[p] = i
	}
}

// Len returns the number of chunks.
func (s *Store) Len() int {
	if s == nil {
		return 0
	}
	return len(s.chunks)
}

// Dimension returns the vector dimension.
func (s *Store) Dimension() int { return s.dim }

// Model returns the embedding model name recorded at build time.
func (s *Store) Model() string { return s.model }

// ChunkByID returns the chunk with the given id.
func (s *Store) ChunkByID(id string) (epas.Chunk, bool) {
	if s == nil {
		return epas.Chunk{}, false
	}
	i, ok := s.byID[id]
	if !ok {
		return epas.Chunk{}, false
	}
	return s.chunks[i], true
}

// Neighbors returns the chunks immediately before and after id within the
// same section. Either side is nil when it does not exist.
func (s *Store) Neighbors(id string) (prev, next *epas.Chunk) {
	if s == nil {
		return nil, nil
	}
	i, ok := s.byID[id]
	if !ok {
		return nil, nil
	}
	m := s.chunks[i].Metadata
	key := m.SectionKey()
	if j, ok := s.adjacency[position{key: key, index: m.ChunkIndex - 1}]; ok {
		c := s.chunks[j]
		prev = &c
	}
	if j, ok := s.adjacency[position{key: key, index: m.ChunkIndex + 1}]; ok {
		c := s.chunks[j]
		next = &c
	}
	return prev, next
}

// Stats describes a store.
type Stats struct {
	TotalChunks  int
	Dimension    int
	IndexVectors int
	Volumes      map[string]int
	Model        string
	CreatedAt    time.Time
}

// Statistics reports counts per volume. A store whose chunk and vector
// counts disagree is corrupt.
func (s *Store) Statistics() (Stats, error) {
	if s == nil {
		return Stats{}, epas.WrapError("Statistics", epas.ErrNotInitialized)
	}
	vectors := len(s.vectors) / s.dim
	if vectors != len(s.chunks) {
		return Stats{}, epas.WrapError("Statistics", fmt.Errorf("%w: %d chunks but %d vectors",
			epas.ErrCorrupt, len(s.chunks), vectors))
	}
	volumes := make(map[string]int)
	for _, c := range s.chunks {
		volumes[c.Metadata.Volume]++
	}
	return Stats{
		TotalChunks:  len(s.chunks),
		Dimension:    s.dim,
		IndexVectors: vectors,
		Volumes:      volumes,
		Model:        s.model,
		CreatedAt:    s.createdAt,
	}, nil
}
