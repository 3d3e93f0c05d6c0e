package embedder

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type embeddingRequest struct {
	Input      []string `json:"input"`
	Model      string   `json:"model"`
	Dimensions int      `json:"dimensions"`
}

type recorder struct {
	mu   sync.Mutex
	reqs []embeddingRequest
}

func (r *recorder) all() []embeddingRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]embeddingRequest(nil), r.reqs...)
}

func embeddingServer(t *testing.T, failures int32) (*httptest.Server, *atomic.Int32, *recorder) {
	t.Helper()
	var calls atomic.Int32
	seen := &recorder{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		if r.URL.Path != "/v1/embeddings" {
			http.NotFound(w, r)
			return
		}
		if n <= failures {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"error":{"message":"overloaded","type":"server_error"}}`))
			return
		}

		var req embeddingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		seen.mu.Lock()
		seen.reqs = append(seen.reqs, req)
		seen.mu.Unlock()

		// Answer in reverse order to check that indices are honoured.
		data := make([]map[string]any, 0, len(req.Input))
		for i := len(req.Input) - 1; i >= 0; i-- {
			data = append(data, map[string]any{
				"object":    "embedding",
				"index":     i,
				"embedding": []float32{float32(i + 1), 0, 0},
			})
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"model":  req.Model,
			"data":   data,
		})
	}))
	t.Cleanup(srv.Close)
	return srv, &calls, seen
}

func TestOpenAIModelEmbed(t *testing.T) {
	srv, _, seen := embeddingServer(t, 0)
	m, err := NewOpenAIModel(OpenAIConfig{APIKey: "test", BaseURL: srv.URL + "/v1", Dimensions: 3})
	require.NoError(t, err)

	vecs, err := m.Embed(context.Background(), []string{"a", "", "c"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	for i, v := range vecs {
		assert.InDelta(t, 1.0, v[0], 1e-6, "vector %d", i)
	}

	reqs := seen.all()
	require.Len(t, reqs, 1)
	assert.Equal(t, []string{"a", " ", "c"}, reqs[0].Input)
	assert.Equal(t, DefaultOpenAIModel, reqs[0].Model)
	assert.Equal(t, 3, reqs[0].Dimensions)
	assert.Equal(t, 3, m.Dimension())
	assert.Equal(t, "openai-text-embedding-3-small", m.Name())
}

func TestOpenAIModelRetriesServerErrors(t *testing.T) {
	srv, calls, _ := embeddingServer(t, 1)
	m, err := NewOpenAIModel(OpenAIConfig{APIKey: "test", BaseURL: srv.URL + "/v1", Dimensions: 3})
	require.NoError(t, err)

	vecs, err := m.Embed(context.Background(), []string{"a"})
	require.NoError(t, err)
	require.Len(t, vecs, 1)
	assert.Equal(t, int32(2), calls.Load())
}

func TestOpenAIModelRequiresKey(t *testing.T) {
	_, err := NewOpenAIModel(OpenAIConfig{})
	require.Error(t, err)
}

func TestNativeDimension(t *testing.T) {
	assert.Equal(t, 3072, nativeDimension("text-embedding-3-large"))
	assert.Equal(t, 1536, nativeDimension("text-embedding-3-small"))
	assert.Equal(t, 1536, nativeDimension("text-embedding-ada-002"))
}
