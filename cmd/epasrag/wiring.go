package main

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/perbu/epasrag/pkg/config"
	"github.com/perbu/epasrag/pkg/embedder"
	"github.com/perbu/epasrag/pkg/epas"
	"github.com/perbu/epasrag/pkg/generator"
	"github.com/perbu/epasrag/pkg/vectorstore"
)

// newEmbedder builds the configured embedding model, wrapped in the SQLite
// cache when one is configured. The returned close function releases the
// cache.
func newEmbedder(cfg *config.Config, log *zap.Logger) (*embedder.Embedder, func() error, error) {
	var model embedder.Model
	switch cfg.Embedding.Provider {
	case "hash":
		model = embedder.NewHashModel(cfg.Embedding.Dimension)
	case "openai":
		m, err := embedder.NewOpenAIModel(embedder.OpenAIConfig{
			APIKey:     cfg.OpenAIAPIKey,
			BaseURL:    cfg.Embedding.BaseURL,
			Model:      cfg.Embedding.Model,
			Dimensions: cfg.Embedding.Dimension,
			Logger:     log,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("initializing embedder: %w (set OPENAI_API_KEY in .env or the environment)", err)
		}
		model = m
	default:
		return nil, nil, fmt.Errorf("unknown embedding provider %q", cfg.Embedding.Provider)
	}

	closer := func() error { return nil }
	if cfg.Embedding.CachePath != "" {
		cached, err := embedder.NewCachedModel(model, cfg.Embedding.CachePath, log)
		if err != nil {
			return nil, nil, err
		}
		model = cached
		closer = cached.Close
	}

	emb := embedder.New(model,
		embedder.WithBatchSize(cfg.Embedding.BatchSize),
		embedder.WithWorkers(cfg.Embedding.Workers),
		embedder.WithLogger(log))
	return emb, closer, nil
}

func newGenerator(cfg *config.Config, log *zap.Logger) (generator.Generator, error) {
	switch cfg.LLM.Provider {
	case "echo":
		return generator.Echo{}, nil
	case "openai":
		g, err := generator.NewOpenAI(generator.OpenAIConfig{
			APIKey:      cfg.OpenAIAPIKey,
			BaseURL:     cfg.LLM.BaseURL,
			Model:       cfg.LLM.Model,
			Temperature: cfg.LLM.Temperature,
			MaxTokens:   cfg.LLM.MaxTokens,
			Logger:      log,
		})
		if err != nil {
			return nil, fmt.Errorf("initializing generator: %w (set OPENAI_API_KEY or use llm.provider: echo)", err)
		}
		return g, nil
	}
	return nil, fmt.Errorf("unknown llm provider %q", cfg.LLM.Provider)
}

// openStore loads the persisted store and checks that emb produces vectors
// it can search.
func openStore(cfg *config.Config, emb *embedder.Embedder, log *zap.Logger) (*vectorstore.Handle, error) {
	store, err := vectorstore.Load(cfg.VectorStore.Dir, vectorstore.WithLogger(log))
	if err != nil {
		if errors.Is(err, epas.ErrNotFound) {
			return nil, fmt.Errorf("%w: run 'epasrag build' first", err)
		}
		return nil, err
	}
	if store.Dimension() != emb.Dimension() {
		return nil, fmt.Errorf("store at %s has dimension %d but %s produces %d; rebuild or change embedding settings",
			cfg.VectorStore.Dir, store.Dimension(), emb.Name(), emb.Dimension())
	}
	if store.Model() != "" && store.Model() != emb.Name() {
		log.Warn("store was built with a different embedding model",
			zap.String("store_model", store.Model()),
			zap.String("query_model", emb.Name()))
	}
	return vectorstore.NewHandle(store), nil
}
