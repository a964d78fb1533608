package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestOpenRouter(t *testing.T, handler http.HandlerFunc) *OpenRouterClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := NewOpenRouterClient(nil, "test-key", OpenRouterOptions{
		BaseURL:  srv.URL + "/",
		AppTitle: "resume-pipeline",
		Referer:  "https://example.test",
	})
	require.NoError(t, err)
	return c
}

func writeCompletion(w http.ResponseWriter, content string) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"model": "qwen/qwen2.5-72b-instruct",
		"choices": []map[string]any{
			{"message": map[string]string{"role": "assistant", "content": content}, "finish_reason": "stop"},
		},
	})
}

func TestOpenRouter_GenerateJSON(t *testing.T) {
	var got chatCompletionsRequest
	c := newTestOpenRouter(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "resume-pipeline", r.Header.Get("X-Title"))
		assert.Equal(t, "https://example.test", r.Header.Get("HTTP-Referer"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		writeCompletion(w, "```json\n{\"summary\": \"ok\"}\n```")
	})

	out, err := c.GenerateJSON(context.Background(), "draft a resume", TierAdvanced)
	require.NoError(t, err)
	assert.Equal(t, `{"summary": "ok"}`, out)
	assert.Equal(t, "qwen/qwen2.5-72b-instruct", got.Model)
	require.NotNil(t, got.ResponseFormat)
	assert.Equal(t, "json_object", got.ResponseFormat.Type)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "draft a resume", got.Messages[0].Content)
}

func TestOpenRouter_GenerateContent(t *testing.T) {
	c := newTestOpenRouter(t, func(w http.ResponseWriter, r *http.Request) {
		var req chatCompletionsRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		assert.Nil(t, req.ResponseFormat)
		writeCompletion(w, "  plain text  ")
	})

	out, err := c.GenerateContent(context.Background(), "hello", TierLite)
	require.NoError(t, err)
	assert.Equal(t, "plain text", out)
}

func TestOpenRouter_StatusClassification(t *testing.T) {
	tests := []struct {
		status    int
		kind      ErrorKind
		retryable bool
	}{
		{http.StatusTooManyRequests, KindRateLimit, true},
		{http.StatusUnauthorized, KindAuth, false},
		{http.StatusServiceUnavailable, KindServer, true},
		{http.StatusBadRequest, KindBadRequest, false},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			c := newTestOpenRouter(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"error":{"message":"nope"}}`))
			})
			_, err := c.GenerateJSON(context.Background(), "p", TierAdvanced)
			var pe *ProviderError
			require.True(t, errors.As(err, &pe))
			assert.Equal(t, tt.kind, pe.Kind)
			assert.Equal(t, tt.status, pe.StatusCode)
			assert.Equal(t, tt.retryable, pe.Retryable())
			assert.Contains(t, pe.Body, "nope")
		})
	}
}

func TestOpenRouter_InvalidOutput(t *testing.T) {
	t.Run("no choices", func(t *testing.T) {
		c := newTestOpenRouter(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"choices": []}`))
		})
		_, err := c.GenerateJSON(context.Background(), "p", TierAdvanced)
		var pe *ProviderError
		require.True(t, errors.As(err, &pe))
		assert.Equal(t, KindInvalidOutput, pe.Kind)
	})

	t.Run("malformed body", func(t *testing.T) {
		c := newTestOpenRouter(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`not json`))
		})
		_, err := c.GenerateContent(context.Background(), "p", TierAdvanced)
		var pe *ProviderError
		require.True(t, errors.As(err, &pe))
		assert.Equal(t, KindInvalidOutput, pe.Kind)
	})

	t.Run("blank completion", func(t *testing.T) {
		c := newTestOpenRouter(t, func(w http.ResponseWriter, r *http.Request) {
			writeCompletion(w, "   ")
		})
		_, err := c.GenerateContent(context.Background(), "p", TierAdvanced)
		var pe *ProviderError
		require.True(t, errors.As(err, &pe))
		assert.Equal(t, KindInvalidOutput, pe.Kind)
	})
}

func TestOpenRouter_Timeout(t *testing.T) {
	c := newTestOpenRouter(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.GenerateJSON(ctx, "p", TierAdvanced)
	var pe *ProviderError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, KindTimeout, pe.Kind)
}

func TestNewOpenRouterClient_MissingKey(t *testing.T) {
	_, err := NewOpenRouterClient(nil, "", OpenRouterOptions{})
	var pe *ProviderError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, KindAuth, pe.Kind)
	assert.False(t, pe.Retryable())
}

func TestNewClient_SelectsProvider(t *testing.T) {
	c, err := NewClient(context.Background(), DefaultOpenRouterConfig(), "k", OpenRouterOptions{})
	require.NoError(t, err)
	_, ok := c.(*OpenRouterClient)
	assert.True(t, ok)
	assert.Equal(t, "qwen/qwen2.5-32b-instruct", c.GetModel(TierStandard))
	assert.NoError(t, c.Close())
}
