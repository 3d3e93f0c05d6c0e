// Package config holds the epasrag settings. A Config is built once by the
// command line tool and handed to constructors.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/perbu/epasrag/pkg/chunker"
	"github.com/perbu/epasrag/pkg/embedder"
	"github.com/perbu/epasrag/pkg/generator"
	"github.com/perbu/epasrag/pkg/retriever"
)

// DefaultFile is read when no config path is given. It is optional.
const DefaultFile = "epasrag.yaml"

// EmbeddingConfig selects the embedding model.
type EmbeddingConfig struct {
	// Provider is "hash" (offline feature hashing) or "openai".
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
	// Dimension zero selects the provider's native size (384 for hash).
	Dimension int    `yaml:"dimension"`
	BaseURL   string `yaml:"base_url"`
	BatchSize int    `yaml:"batch_size"`
	Workers   int    `yaml:"workers"`
	// CachePath is a SQLite file caching embeddings. Empty disables it.
	CachePath string `yaml:"cache_path"`
}

// ChunkingConfig configures the chunker.
type ChunkingConfig struct {
	Size int `yaml:"size"`
	// Tokenizer is "words" or a tiktoken encoding such as "cl100k_base".
	Tokenizer string `yaml:"tokenizer"`
}

// RetrievalConfig holds retrieval defaults.
type RetrievalConfig struct {
	TopK           int     `yaml:"top_k"`
	ScoreThreshold float64 `yaml:"score_threshold"`
}

// LLMConfig selects the answer generator.
type LLMConfig struct {
	// Provider is "openai" or "echo".
	Provider    string  `yaml:"provider"`
	Model       string  `yaml:"model"`
	BaseURL     string  `yaml:"base_url"`
	Temperature float32 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
}

// VectorStoreConfig locates the persisted store.
type VectorStoreConfig struct {
	Dir string `yaml:"dir"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level string `yaml:"level"`
	// Format is "console" or "json".
	Format string `yaml:"format"`
}

// Config is the root configuration.
type Config struct {
	// OpenAIAPIKey only comes from the environment.
	OpenAIAPIKey string            `yaml:"-"`
	Embedding    EmbeddingConfig   `yaml:"embedding"`
	Chunking     ChunkingConfig    `yaml:"chunking"`
	Retrieval    RetrievalConfig   `yaml:"retrieval"`
	LLM          LLMConfig         `yaml:"llm"`
	VectorStore  VectorStoreConfig `yaml:"vector_store"`
	Log          LogConfig         `yaml:"log"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		Embedding: EmbeddingConfig{
			Provider:  "hash",
			Model:     embedder.DefaultOpenAIModel,
			BatchSize: 32,
			Workers:   4,
		},
		Chunking: ChunkingConfig{
			Size:      chunker.DefaultChunkSize,
			Tokenizer: "words",
		},
		Retrieval: RetrievalConfig{
			TopK:           retriever.DefaultK,
			ScoreThreshold: retriever.DefaultScoreThreshold,
		},
		LLM: LLMConfig{
			Provider:    "openai",
			Model:       generator.DefaultModel,
			Temperature: generator.DefaultTemperature,
			MaxTokens:   generator.DefaultMaxTokens,
		},
		VectorStore: VectorStoreConfig{Dir: "./data/vectorstore"},
		Log:         LogConfig{Level: "info", Format: "console"},
	}
}

// Load builds a Config from the defaults, the YAML file at path and the
// environment, in that order. An empty path reads DefaultFile if it
// exists; an explicit path must exist.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("reading config: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv() error {
	str := func(name string, dst *string) {
		if v, ok := os.LookupEnv(name); ok && v != "" {
			*dst = v
		}
	}
	var errs []error
	integer := func(name string, dst *int) {
		if v, ok := os.LookupEnv(name); ok && v != "" {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
				return
			}
			*dst = n
		}
	}
	float := func(name string, bits int, set func(float64)) {
		if v, ok := os.LookupEnv(name); ok && v != "" {
			f, err := strconv.ParseFloat(strings.TrimSpace(v), bits)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
				return
			}
			set(f)
		}
	}

	str("OPENAI_API_KEY", &c.OpenAIAPIKey)
	str("EMBEDDING_PROVIDER", &c.Embedding.Provider)
	str("EMBEDDING_MODEL", &c.Embedding.Model)
	integer("EMBEDDING_DIMENSION", &c.Embedding.Dimension)
	integer("CHUNK_SIZE", &c.Chunking.Size)
	integer("TOP_K_RESULTS", &c.Retrieval.TopK)
	float("SIMILARITY_THRESHOLD", 64, func(f float64) { c.Retrieval.ScoreThreshold = f })
	str("LLM_PROVIDER", &c.LLM.Provider)
	str("LLM_MODEL", &c.LLM.Model)
	float("LLM_TEMPERATURE", 32, func(f float64) { c.LLM.Temperature = float32(f) })
	integer("LLM_MAX_TOKENS", &c.LLM.MaxTokens)
	str("VECTORSTORE_DIR", &c.VectorStore.Dir)
	str("LOG_LEVEL", &c.Log.Level)

	return errors.Join(errs...)
}

// Validate reports every setting that cannot work.
func (c *Config) Validate() error {
	var errs []error
	switch c.Embedding.Provider {
	case "hash", "openai":
	default:
		errs = append(errs, fmt.Errorf("embedding.provider: unknown provider %q", c.Embedding.Provider))
	}
	if c.Embedding.Dimension < 0 {
		errs = append(errs, errors.New("embedding.dimension: must not be negative"))
	}
	if c.Embedding.BatchSize < 1 {
		errs = append(errs, errors.New("embedding.batch_size: must be at least 1"))
	}
	if c.Embedding.Workers < 1 {
		errs = append(errs, errors.New("embedding.workers: must be at least 1"))
	}
	if c.Chunking.Size < 1 {
		errs = append(errs, errors.New("chunking.size: must be at least 1"))
	}
	if c.Retrieval.TopK < 1 {
		errs = append(errs, errors.New("retrieval.top_k: must be at least 1"))
	}
	if c.Retrieval.ScoreThreshold < -1 || c.Retrieval.ScoreThreshold > 1 {
		errs = append(errs, errors.New("retrieval.score_threshold: must be within [-1, 1]"))
	}
	switch c.LLM.Provider {
	case "openai", "echo":
	default:
		errs = append(errs, fmt.Errorf("llm.provider: unknown provider %q", c.LLM.Provider))
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		errs = append(errs, errors.New("llm.temperature: must be within [0, 2]"))
	}
	if c.LLM.MaxTokens < 1 {
		errs = append(errs, errors.New("llm.max_tokens: must be at least 1"))
	}
	if c.VectorStore.Dir == "" {
		errs = append(errs, errors.New("vector_store.dir: required"))
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format: unknown format %q", c.Log.Format))
	}
	return errors.Join(errs...)
}
