package embedder

import (
	"context"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/perbu/epasrag/pkg/retry"
)

// DefaultOpenAIModel is the embedding model used when none is configured.
const DefaultOpenAIModel = "text-embedding-3-small"

// OpenAIConfig configures an OpenAIModel.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	// Dimensions requests shortened vectors from text-embedding-3 models.
	// Zero uses the model's native dimension.
	Dimensions int
	// MaxRetries bounds retries of transient failures; zero means
	// retry.DefaultMaxRetries.
	MaxRetries uint64
	Logger     *zap.Logger
}

// OpenAIModel embeds texts with the OpenAI embeddings API.
type OpenAIModel struct {
	client     *openai.Client
	model      string
	dim        int
	dimensions int
	maxRetries uint64
	log        *zap.Logger
}

// NewOpenAIModel creates an OpenAI embedding model.
func NewOpenAIModel(cfg OpenAIConfig) (*OpenAIModel, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai: API key not set")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOpenAIModel
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	dim := cfg.Dimensions
	if dim == 0 {
		dim = nativeDimension(cfg.Model)
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	return &OpenAIModel{
		client:     openai.NewClientWithConfig(clientCfg),
		model:      cfg.Model,
		dim:        dim,
		dimensions: cfg.Dimensions,
		maxRetries: cfg.MaxRetries,
		log:        log,
	}, nil
}

func nativeDimension(model string) int {
	switch model {
	case "text-embedding-3-large":
		return 3072
	default: // text-embedding-3-small, text-embedding-ada-002
		return 1536
	}
}

// Embed embeds texts in a single API request.
func (m *OpenAIModel) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	// The API rejects empty strings.
	input := make([]string, len(texts))
	for i, t := range texts {
		if t == "" {
			t = " "
		}
		input[i] = t
	}

	req := openai.EmbeddingRequest{
		Model:      openai.EmbeddingModel(m.model),
		Input:      input,
		Dimensions: m.dimensions,
	}

	var resp openai.EmbeddingResponse
	err := retry.Do(ctx, m.maxRetries, m.log, "openai embeddings request", func() error {
		var err error
		resp, err = m.client.CreateEmbeddings(ctx, req)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("openai embeddings: %w", err)
	}

	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("openai embeddings: got %d vectors for %d inputs", len(resp.Data), len(texts))
	}

	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(texts) {
			return nil, fmt.Errorf("openai embeddings: index %d out of range", d.Index)
		}
		v := make([]float32, len(d.Embedding))
		copy(v, d.Embedding)
		Normalize(v)
		out[d.Index] = v
	}
	return out, nil
}

// Dimension returns the vector dimension.
func (m *OpenAIModel) Dimension() int { return m.dim }

// Name returns the model name.
func (m *OpenAIModel) Name() string { return "openai-" + m.model }
