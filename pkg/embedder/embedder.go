package embedder

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/perbu/epasrag/pkg/epas"
)

const (
	// DefaultBatchSize is the number of texts sent to the model per call.
	DefaultBatchSize = 32
	// DefaultWorkers limits concurrent model calls.
	DefaultWorkers = 4
)

// Model maps texts to fixed-dimension vectors. Implementations must return
// exactly one vector per input, in input order.
type Model interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
	Name() string
}

// Embedder batches texts over a Model and validates what comes back.
type Embedder struct {
	model     Model
	batchSize int
	workers   int
	log       *zap.Logger
}

// Option configures an Embedder.
type Option func(*Embedder)

// WithBatchSize sets the default batch size used by EmbedChunks.
func WithBatchSize(n int) Option {
	return func(e *Embedder) {
		if n > 0 {
			e.batchSize = n
		}
	}
}

// WithWorkers sets how many batches are embedded concurrently.
func WithWorkers(n int) Option {
	return func(e *Embedder) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Embedder) {
		if l != nil {
			e.log = l
		}
	}
}

// New wraps model.
func New(model Model, opts ...Option) *Embedder {
	e := &Embedder{
		model:     model,
		batchSize: DefaultBatchSize,
		workers:   DefaultWorkers,
		log:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Dimension returns the model's vector dimension.
func (e *Embedder) Dimension() int { return e.model.Dimension() }

// Name returns the model name.
func (e *Embedder) Name() string { return e.model.Name() }

// EmbedText embeds a single text.
func (e *Embedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedQuery embeds a search query. Queries and passages share one vector
// space, so this is the same as EmbedText.
func (e *Embedder) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	return e.EmbedText(ctx, query)
}

// EmbedBatch embeds texts in batches of batchSize. Batches run concurrently
// but every batch writes its own slot range, so output order equals input
// order. Any failing batch fails the whole call.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string, batchSize int) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	if batchSize <= 0 {
		batchSize = e.batchSize
	}

	out := make([][]float32, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)

	batches := (len(texts) + batchSize - 1) / batchSize
	for b := 0; b < batches; b++ {
		start := b * batchSize
		end := min(start+batchSize, len(texts))
		g.Go(func() error {
			vecs, err := e.embed(gctx, texts[start:end])
			if err != nil {
				return fmt.Errorf("batch %d (texts %d-%d): %w", b, start, end-1, err)
			}
			copy(out[start:end], vecs)
			e.log.Debug("embedded batch",
				zap.Int("batch", b),
				zap.Int("batches", batches),
				zap.Int("size", end-start))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// EmbedChunks embeds the text of every chunk and stores the vector on the
// chunk in place.
func (e *Embedder) EmbedChunks(ctx context.Context, chunks []epas.Chunk) error {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	e.log.Info("embedding chunks",
		zap.Int("chunks", len(chunks)),
		zap.String("model", e.model.Name()))

	vecs, err := e.EmbedBatch(ctx, texts, e.batchSize)
	if err != nil {
		return err
	}
	for i := range chunks {
		chunks[i].Embedding = vecs[i]
	}
	return nil
}

// embed calls the model and checks the shape of the response.
func (e *Embedder) embed(ctx context.Context, texts []string) ([][]float32, error) {
	vecs, err := e.model.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", e.model.Name(), err)
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("%s returned %d vectors for %d texts", e.model.Name(), len(vecs), len(texts))
	}
	dim := e.model.Dimension()
	for i, v := range vecs {
		if len(v) != dim {
			return nil, fmt.Errorf("vector %d has dimension %d, want %d: %w", i, len(v), dim, epas.ErrDimensionMismatch)
		}
	}
	return vecs, nil
}

// Normalize scales v to unit length in place. Zero vectors are left alone.
func Normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	inv := 1.0 / math.Sqrt(sum)
	for i := range v {
		v[i] = float32(float64(v[i]) * inv)
	}
}
