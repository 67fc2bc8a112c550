package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docqa/internal/domain"
)

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	t.Setenv("TEST_LLM_KEY", "test-key")
	c, err := NewClient(Config{BaseURL: baseURL, APIKeyEnv: "TEST_LLM_KEY", Model: "test-model"})
	require.NoError(t, err)
	c.maxRetries = 1
	return c
}

func TestNewClientRequiresAPIKey(t *testing.T) {
	t.Setenv("TEST_LLM_EMPTY", "")
	_, err := NewClient(Config{APIKeyEnv: "TEST_LLM_EMPTY"})
	assert.Error(t, err)
}

func TestGenerateReturnsFirstChoice(t *testing.T) {
	var gotAuth string
	var gotReq chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": "generated text"}},
			},
		})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	out, err := c.Generate(context.Background(), "the prompt", 500)
	require.NoError(t, err)
	assert.Equal(t, "generated text", out)
	assert.Equal(t, "Bearer test-key", gotAuth)
	assert.Equal(t, "test-model", gotReq.Model)
	assert.Equal(t, 500, gotReq.MaxTokens)
	require.Len(t, gotReq.Messages, 1)
	assert.Equal(t, "the prompt", gotReq.Messages[0].Content)
}

func TestGenerateRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": "after retry"}},
			},
		})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	out, err := c.Generate(context.Background(), "prompt", 100)
	require.NoError(t, err)
	assert.Equal(t, "after retry", out)
	assert.Equal(t, int32(2), calls.Load())
}

func TestGenerateExhaustedRetriesUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.Generate(context.Background(), "prompt", 100)
	assert.ErrorIs(t, err, domain.ErrGenerationUnavailable)
}

func TestGenerateRejectionFailsWithoutRetry(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"message": "model not found", "type": "invalid_request_error"},
		})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.Generate(context.Background(), "prompt", 100)
	require.ErrorIs(t, err, domain.ErrGenerationFailed)
	assert.Contains(t, err.Error(), "model not found")
	assert.Equal(t, int32(1), calls.Load())
}

func TestGenerateEmptyChoicesFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"choices": []any{}})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.Generate(context.Background(), "prompt", 100)
	assert.ErrorIs(t, err, domain.ErrGenerationFailed)
}
