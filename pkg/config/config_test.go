package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv unsets every variable Load reads so the host environment does
// not leak into a test.
func clearEnv(t *testing.T) {
	for _, name := range []string{
		"OPENAI_API_KEY", "EMBEDDING_PROVIDER", "EMBEDDING_MODEL", "EMBEDDING_DIMENSION",
		"CHUNK_SIZE", "TOP_K_RESULTS", "SIMILARITY_THRESHOLD", "LLM_PROVIDER", "LLM_MODEL",
		"LLM_TEMPERATURE", "LLM_MAX_TOKENS", "VECTORSTORE_DIR", "LOG_LEVEL",
	} {
		t.Setenv(name, "")
	}
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "epasrag.yaml")
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestDefaults(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 500, cfg.Chunking.Size)
	assert.Equal(t, 10, cfg.Retrieval.TopK)
	assert.Equal(t, 0.7, cfg.Retrieval.ScoreThreshold)
	assert.Equal(t, "hash", cfg.Embedding.Provider)
	assert.Equal(t, 0, cfg.Embedding.Dimension)
	assert.Equal(t, "gpt-4", cfg.LLM.Model)
	assert.InDelta(t, 0.2, cfg.LLM.Temperature, 1e-6)
	assert.Equal(t, 2000, cfg.LLM.MaxTokens)
	assert.Equal(t, "./data/vectorstore", cfg.VectorStore.Dir)
}

func TestLoadFileThenEnv(t *testing.T) {
	clearEnv(t)
	p := writeFile(t, `
embedding:
  provider: openai
  model: text-embedding-3-large
chunking:
  size: 300
retrieval:
  top_k: 5
llm:
  provider: echo
`)
	t.Setenv("TOP_K_RESULTS", "7")
	t.Setenv("SIMILARITY_THRESHOLD", "0.5")
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, "openai", cfg.Embedding.Provider)
	assert.Equal(t, "text-embedding-3-large", cfg.Embedding.Model)
	assert.Equal(t, 300, cfg.Chunking.Size)
	assert.Equal(t, 7, cfg.Retrieval.TopK)
	assert.Equal(t, 0.5, cfg.Retrieval.ScoreThreshold)
	assert.Equal(t, "echo", cfg.LLM.Provider)
	assert.Equal(t, "sk-test", cfg.OpenAIAPIKey)
	// Untouched keys keep their defaults.
	assert.Equal(t, 2000, cfg.LLM.MaxTokens)
}

func TestLoadMissingFile(t *testing.T) {
	clearEnv(t)
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)

	t.Chdir(t.TempDir())
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadRejectsBadValues(t *testing.T) {
	clearEnv(t)
	t.Setenv("CHUNK_SIZE", "lots")
	_, err := Load(writeFile(t, "{}"))
	require.ErrorContains(t, err, "CHUNK_SIZE")

	t.Setenv("CHUNK_SIZE", "")
	_, err = Load(writeFile(t, "embedding: [not, a, map]"))
	require.ErrorContains(t, err, "parsing")
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Embedding.Provider = "word2vec"
	cfg.Retrieval.TopK = 0
	cfg.Retrieval.ScoreThreshold = 1.5
	cfg.LLM.Provider = "bard"
	cfg.Log.Format = "xml"

	err := cfg.Validate()
	require.Error(t, err)
	for _, field := range []string{"embedding.provider", "retrieval.top_k", "retrieval.score_threshold", "llm.provider", "log.format"} {
		assert.ErrorContains(t, err, field)
	}
}
