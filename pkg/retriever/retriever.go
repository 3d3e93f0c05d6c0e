// Package retriever turns a question into ranked, context-enriched EPAS
// passages ready to hand to a generator.
package retriever

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/perbu/epasrag/pkg/epas"
	"github.com/perbu/epasrag/pkg/vectorstore"
)

const (
	DefaultK              = 10
	DefaultScoreThreshold = 0.7
)

// MaxK bounds the number of results of one call.
const MaxK = 10000

// Index is the part of the vector store the retriever needs. Both
// *vectorstore.Store and *vectorstore.Handle satisfy it.
type Index interface {
	Search(query []float32, k int, filter epas.Filter) ([]vectorstore.Hit, error)
	Neighbors(id string) (prev, next *epas.Chunk)
}

// QueryEmbedder embeds query text.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, query string) ([]float32, error)
}

// Context holds the text of the chunks adjacent to a result within its
// section. A missing side is empty.
type Context struct {
	Previous string
	Next     string
}

// Item is one retrieved passage.
type Item struct {
	Chunk           epas.Chunk
	Score           float64
	Metadata        epas.Metadata
	Text            string
	Context         *Context
	CrossReferences []string
}

// Metadata describes how a result was produced.
type Metadata struct {
	K              int
	ScoreThreshold float64
	HighestScore   float64
	LowestScore    float64
}

// Result is the outcome of a retrieval. An empty Items slice with no
// error means nothing qualified.
type Result struct {
	Query        string
	Items        []Item
	TotalResults int
	VolumeFilter string
	Metadata     Metadata
}

// Retriever embeds queries, searches the index and enriches the hits.
type Retriever struct {
	index     Index
	embedder  QueryEmbedder
	k         int
	threshold float64
	log       *zap.Logger
}

// Option configures a Retriever.
type Option func(*Retriever)

// WithK sets the default number of results.
func WithK(k int) Option {
	return func(r *Retriever) {
		if k > 0 {
			r.k = k
		}
	}
}

// WithScoreThreshold sets the default minimum score.
func WithScoreThreshold(t float64) Option {
	return func(r *Retriever) { r.threshold = t }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Retriever) {
		if l != nil {
			r.log = l
		}
	}
}

// New creates a retriever over index.
func New(index Index, embedder QueryEmbedder, opts ...Option) *Retriever {
	r := &Retriever{
		index:     index,
		embedder:  embedder,
		k:         DefaultK,
		threshold: DefaultScoreThreshold,
		log:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type request struct {
	volume         string
	k              int
	threshold      float64
	includeContext bool
}

// RetrieveOption adjusts a single Retrieve call.
type RetrieveOption func(*request)

// Volume restricts results to one volume ("I", "II" or "III").
func Volume(v string) RetrieveOption {
	return func(r *request) { r.volume = v }
}

// K overrides the number of results for one call.
func K(k int) RetrieveOption {
	return func(r *request) { r.k = k }
}

// Threshold overrides the minimum score for one call.
func Threshold(t float64) RetrieveOption {
	return func(r *request) { r.threshold = t }
}

// WithoutContext skips attaching neighboring chunks.
func WithoutContext() RetrieveOption {
	return func(r *request) { r.includeContext = false }
}

// Retrieve returns up to k passages scoring at least the threshold.
// Twice k candidates are fetched so that thresholding still leaves k
// results when it can.
func (r *Retriever) Retrieve(ctx context.Context, query string, opts ...RetrieveOption) (*Result, error) {
	req := request{k: r.k, threshold: r.threshold, includeContext: true}
	for _, opt := range opts {
		opt(&req)
	}
	req.k = min(req.k, MaxK)

	r.log.Info("retrieving",
		zap.String("query", truncate(query, 100)),
		zap.String("volume", req.volume),
		zap.Int("k", req.k))

	q, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	hits, err := r.index.Search(q, 2*req.k, epas.VolumeFilter(req.volume))
	if err != nil {
		return nil, err
	}

	kept := make([]vectorstore.Hit, 0, len(hits))
	for _, h := range hits {
		if h.Score >= req.threshold {
			kept = append(kept, h)
		}
	}
	if len(kept) > req.k {
		kept = kept[:max(req.k, 0)]
	}

	items := make([]Item, len(kept))
	for i, h := range kept {
		items[i] = Item{
			Chunk:           h.Chunk,
			Score:           h.Score,
			Metadata:        h.Chunk.Metadata,
			Text:            h.Chunk.Text,
			CrossReferences: CrossReferences(h.Chunk.Text, h.Chunk.Metadata.Volume),
		}
		if req.includeContext {
			items[i].Context = r.context(h.Chunk.ID)
		}
	}

	res := &Result{
		Query:        query,
		Items:        items,
		TotalResults: len(items),
		VolumeFilter: req.volume,
		Metadata: Metadata{
			K:              req.k,
			ScoreThreshold: req.threshold,
		},
	}
	if len(items) > 0 {
		res.Metadata.HighestScore = items[0].Score
		res.Metadata.LowestScore = items[len(items)-1].Score
	}

	r.log.Info("retrieved",
		zap.Int("candidates", len(hits)),
		zap.Int("results", len(items)),
		zap.Float64("threshold", req.threshold))
	return res, nil
}

func (r *Retriever) context(id string) *Context {
	prev, next := r.index.Neighbors(id)
	if prev == nil && next == nil {
		return nil
	}
	c := &Context{}
	if prev != nil {
		c.Previous = prev.Text
	}
	if next != nil {
		c.Next = next.Text
	}
	return c
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
