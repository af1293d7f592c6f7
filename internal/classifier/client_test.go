package classifier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mailtriage/pkg/circuitbreaker"
	"mailtriage/pkg/config"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, timeout time.Duration) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewClient(config.OpenAIConfig{
		APIKey:  "sk-test",
		BaseURL: srv.URL + "/v1/",
		Timeout: timeout,
	}, zap.NewNop())
	require.NoError(t, err)
	return c
}

func completionJSON(texts ...string) string {
	choices := make([]map[string]any, 0, len(texts))
	for i, text := range texts {
		choices = append(choices, map[string]any{"text": text, "index": i, "finish_reason": "stop", "logprobs": nil})
	}
	b, _ := json.Marshal(map[string]any{
		"id":      "cmpl-1",
		"object":  "text_completion",
		"created": 1700000000,
		"model":   DefaultModel,
		"choices": choices,
	})
	return string(b)
}

func TestAnalyzeSendsPromptAndTrims(t *testing.T) {
	var body map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.True(t, strings.HasSuffix(r.URL.Path, "/completions"), r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(completionJSON("\n\n  The sender is interested.  \n", "second")))
	}, time.Second)

	text, err := c.Analyze(context.Background(), "I am very interested in this offer")
	require.NoError(t, err)
	assert.Equal(t, "The sender is interested.", text)

	assert.Equal(t, DefaultModel, body["model"])
	assert.Equal(t, "I am very interested in this offer", body["prompt"])
	assert.EqualValues(t, DefaultMaxTokens, body["max_tokens"])
}

func TestAnalyzeEmptyChoices(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(completionJSON()))
	}, time.Second)

	_, err := c.Analyze(context.Background(), "hi")
	var cerr *CompletionError
	require.ErrorAs(t, err, &cerr)
	assert.ErrorIs(t, err, ErrEmptyCompletion)
}

func TestAnalyzeServerErrorIsSingleAttempt(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"message":"boom","type":"server_error"}}`))
	}, time.Second)

	_, err := c.Analyze(context.Background(), "hi")
	var cerr *CompletionError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, http.StatusInternalServerError, cerr.StatusCode)
	assert.Equal(t, int32(1), calls.Load())
}

func TestAnalyzeTimeout(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}, 50*time.Millisecond)

	start := time.Now()
	_, err := c.Analyze(context.Background(), "hi")
	var cerr *CompletionError
	require.ErrorAs(t, err, &cerr)
	assert.Less(t, time.Since(start), time.Second)
}

func TestAnalyzeCircuitOpensAfterFailures(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}, time.Second)

	for i := 0; i < 5; i++ {
		_, _ = c.Analyze(context.Background(), "hi")
	}
	_, err := c.Analyze(context.Background(), "hi")
	assert.ErrorIs(t, err, circuitbreaker.ErrOpen)
	assert.Equal(t, int32(5), calls.Load())
}

func TestNewClientRequiresAPIKey(t *testing.T) {
	_, err := NewClient(config.OpenAIConfig{}, zap.NewNop())
	assert.ErrorIs(t, err, ErrAPIKeyNotSet)
}

func TestNewClientDefaultModel(t *testing.T) {
	c, err := NewClient(config.OpenAIConfig{APIKey: "sk-test"}, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, DefaultModel, c.ModelName())

	c, err = NewClient(config.OpenAIConfig{APIKey: "sk-test", Model: "custom-instruct"}, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, "custom-instruct", c.ModelName())
}
