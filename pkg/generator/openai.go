package generator

import (
	"context"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/perbu/epasrag/pkg/retry"
)

const (
	DefaultModel       = "gpt-4"
	DefaultTemperature = 0.2
	DefaultMaxTokens   = 2000
)

// OpenAIConfig configures the chat generator.
type OpenAIConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float32
	MaxTokens   int
	MaxRetries  uint64
	Logger      *zap.Logger
}

// OpenAI generates answers with the chat completions API.
type OpenAI struct {
	client *openai.Client
	cfg    OpenAIConfig
	log    *zap.Logger
}

// NewOpenAI creates a chat generator. Model and MaxTokens default to
// DefaultModel and DefaultMaxTokens. A zero Temperature is omitted from
// the request and the server default applies.
func NewOpenAI(cfg OpenAIConfig) (*OpenAI, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai: API key not set")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &OpenAI{
		client: openai.NewClientWithConfig(clientCfg),
		cfg:    cfg,
		log:    log,
	}, nil
}

// Generate asks the chat model to answer req.Question from req.Context.
func (g *OpenAI) Generate(ctx context.Context, req Request) (string, error) {
	system, user, err := Prompt(req)
	if err != nil {
		return "", err
	}

	chatReq := openai.ChatCompletionRequest{
		Model: g.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		Temperature: g.cfg.Temperature,
		MaxTokens:   g.cfg.MaxTokens,
	}

	var resp openai.ChatCompletionResponse
	err = retry.Do(ctx, g.cfg.MaxRetries, g.log, "openai chat request", func() error {
		var err error
		resp, err = g.client.CreateChatCompletion(ctx, chatReq)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("openai chat: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai chat: no choices returned")
	}

	g.log.Debug("generated answer",
		zap.String("model", g.cfg.Model),
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens))
	return resp.Choices[0].Message.Content, nil
}

// Name returns the model name.
func (g *OpenAI) Name() string { return "openai-" + g.cfg.Model }
