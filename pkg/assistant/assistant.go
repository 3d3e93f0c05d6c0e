// Package assistant answers questions about EPAS: it retrieves passages,
// hands them to a generator and reports the sources it used.
package assistant

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/perbu/epasrag/pkg/generator"
	"github.com/perbu/epasrag/pkg/retriever"
)

// Retriever finds passages for a question.
type Retriever interface {
	Retrieve(ctx context.Context, query string, opts ...retriever.RetrieveOption) (*retriever.Result, error)
}

// Answer is the response to one question.
type Answer struct {
	ID       uuid.UUID
	Question string
	Answer   string
	// Sources lists each distinct cited location once, best match first.
	Sources []retriever.Citation
	// Confidence is the mean retrieval score of the passages used, in [0, 1].
	Confidence   float64
	VolumeFilter string
	Retrieval    retriever.Metadata
	Generator    string
}

// Assistant wires a retriever to a generator.
type Assistant struct {
	retriever Retriever
	generator generator.Generator
	log       *zap.Logger
}

// Option configures an Assistant.
type Option func(*Assistant)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(a *Assistant) {
		if l != nil {
			a.log = l
		}
	}
}

// New creates an assistant.
func New(r Retriever, g generator.Generator, opts ...Option) *Assistant {
	a := &Assistant{retriever: r, generator: g, log: zap.NewNop()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Ask answers question. When nothing is retrieved the generator is not
// called and the answer says so with zero confidence.
func (a *Assistant) Ask(ctx context.Context, question string, opts ...retriever.RetrieveOption) (*Answer, error) {
	id := uuid.New()
	log := a.log.With(zap.String("request_id", id.String()))

	res, err := a.retriever.Retrieve(ctx, question, opts...)
	if err != nil {
		return nil, fmt.Errorf("retrieving: %w", err)
	}

	ans := &Answer{
		ID:           id,
		Question:     question,
		Sources:      []retriever.Citation{},
		VolumeFilter: res.VolumeFilter,
		Retrieval:    res.Metadata,
		Generator:    a.generator.Name(),
	}

	if len(res.Items) == 0 {
		ans.Answer = noResultsAnswer(res.VolumeFilter)
		log.Info("no documents retrieved")
		return ans, nil
	}

	text, err := a.generator.Generate(ctx, generator.Request{
		Question: question,
		Context:  retriever.FormatForLLM(res),
	})
	if err != nil {
		return nil, fmt.Errorf("generating answer with %s: %w", a.generator.Name(), err)
	}

	ans.Answer = text
	ans.Sources = sources(res)
	ans.Confidence = confidence(res)

	log.Info("answered question",
		zap.Int("sources", len(ans.Sources)),
		zap.Float64("confidence", ans.Confidence))
	return ans, nil
}

func noResultsAnswer(volume string) string {
	msg := "No relevant information was found in the EPAS documents for this question."
	if volume != "" {
		msg += fmt.Sprintf(" Only Volume %s was searched; try again without the volume filter.", volume)
	} else {
		msg += " Try rephrasing it or lowering the similarity threshold."
	}
	return msg
}

func sources(res *retriever.Result) []retriever.Citation {
	seen := make(map[string]bool)
	out := make([]retriever.Citation, 0, len(res.Items))
	for _, it := range res.Items {
		c := retriever.Citation{
			Document:  len(out) + 1,
			Volume:    it.Metadata.Volume,
			SectionID: it.Metadata.SectionID,
			Page:      it.Metadata.StartPage,
			ChunkID:   it.Chunk.ID,
			Score:     it.Score,
		}
		if seen[c.String()] {
			continue
		}
		seen[c.String()] = true
		out = append(out, c)
	}
	return out
}

func confidence(res *retriever.Result) float64 {
	if len(res.Items) == 0 {
		return 0
	}
	var sum float64
	for _, it := range res.Items {
		sum += it.Score
	}
	return min(max(sum/float64(len(res.Items)), 0), 1)
}
