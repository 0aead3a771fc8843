package inference

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/aether-labs/aether/internal/core"
)

func newOpenRouterServer(t *testing.T, status int, body string, inspect func(r *http.Request, payload map[string]interface{})) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&payload)
		if inspect != nil {
			inspect(r, payload)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOpenRouter_Success(t *testing.T) {
	var gotAuth, gotReferer string
	var gotPayload map[string]interface{}
	srv := newOpenRouterServer(t, http.StatusOK,
		`{"choices":[{"message":{"content":"{\"claim\":\"growth\"}"}}]}`,
		func(r *http.Request, payload map[string]interface{}) {
			gotAuth = r.Header.Get("Authorization")
			gotReferer = r.Header.Get("HTTP-Referer")
			gotPayload = payload
		})

	p := NewOpenRouter(OpenRouterConfig{APIKey: "test-key", BaseURL: srv.URL, Referer: "http://localhost:3000", Title: "Aether"})
	out, err := p.Complete(context.Background(), Request{
		Role: core.RoleAdvocate, Model: "openrouter/auto", Temperature: 0.7, MaxOutputTokens: 2000,
		SystemPrompt: "system", UserPrompt: "user",
	})
	require.NoError(t, err)
	assert.Equal(t, `{"claim":"growth"}`, out)
	assert.Equal(t, "Bearer test-key", gotAuth)
	assert.Equal(t, "http://localhost:3000", gotReferer)
	assert.Equal(t, "openrouter/auto", gotPayload["model"])
	assert.Equal(t, float64(2000), gotPayload["max_tokens"])

	messages := gotPayload["messages"].([]interface{})
	require.Len(t, messages, 2)
	assert.Equal(t, "system", messages[0].(map[string]interface{})["role"])
	assert.Equal(t, "user", messages[1].(map[string]interface{})["content"])
}

func TestOpenRouter_ImageAttachment(t *testing.T) {
	var gotPayload map[string]interface{}
	srv := newOpenRouterServer(t, http.StatusOK, `{"choices":[{"message":{"content":"[]"}}]}`,
		func(_ *http.Request, payload map[string]interface{}) { gotPayload = payload })

	p := NewOpenRouter(OpenRouterConfig{APIKey: "k", BaseURL: srv.URL, VisionModels: []string{"vision-model"}})
	assert.True(t, p.SupportsAttachments("vision-model"))
	assert.False(t, p.SupportsAttachments("openrouter/auto"))

	_, err := p.Complete(context.Background(), Request{
		Model: "vision-model", UserPrompt: "describe",
		Attachment: &core.Attachment{MimeType: "image/png", Data: []byte("png")},
	})
	require.NoError(t, err)

	messages := gotPayload["messages"].([]interface{})
	user := messages[len(messages)-1].(map[string]interface{})
	parts := user["content"].([]interface{})
	require.Len(t, parts, 2)
	img := parts[1].(map[string]interface{})["image_url"].(map[string]interface{})
	assert.True(t, strings.HasPrefix(img["url"].(string), "data:image/png;base64,"))
}

func TestOpenRouter_Classification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   core.FailureClass
		cat    core.ErrorCategory
	}{
		{"429", http.StatusTooManyRequests, `{"error":{"message":"Rate limit exceeded"}}`, core.ClassRateLimited, core.ErrCatRateLimit},
		{"401", http.StatusUnauthorized, `{"error":{"message":"No auth credentials found"}}`, core.ClassFatal, core.ErrCatAuth},
		{"403", http.StatusForbidden, `forbidden`, core.ClassFatal, core.ErrCatAuth},
		{"500", http.StatusInternalServerError, `upstream error`, core.ClassTransient, core.ErrCatExecution},
		{"408", http.StatusRequestTimeout, ``, core.ClassTransient, core.ErrCatTimeout},
		{"400", http.StatusBadRequest, `{"error":{"message":"invalid model"}}`, core.ClassFatal, core.ErrCatValidation},
		{"200 with error object", http.StatusOK, `{"error":{"code":429,"message":"Provider returned error"}}`, core.ClassRateLimited, core.ErrCatRateLimit},
		{"200 with rate limit text", http.StatusOK, `{"error":{"code":"502","message":"free-models-per-min rate limit"}}`, core.ClassRateLimited, core.ErrCatRateLimit},
		{"200 with upstream error", http.StatusOK, `{"error":{"code":502,"message":"bad gateway"}}`, core.ClassTransient, core.ErrCatExecution},
		{"malformed body", http.StatusOK, `<html>`, core.ClassTransient, core.ErrCatExecution},
		{"no choices", http.StatusOK, `{"choices":[]}`, core.ClassTransient, core.ErrCatExecution},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newOpenRouterServer(t, tt.status, tt.body, nil)
			p := NewOpenRouter(OpenRouterConfig{APIKey: "k", BaseURL: srv.URL})

			_, err := p.Complete(context.Background(), Request{Model: "m", UserPrompt: "x"})
			require.Error(t, err)
			assert.Equal(t, tt.want, core.ClassOf(err), "error: %v", err)
			assert.Equal(t, tt.cat, core.GetCategory(err))
		})
	}
}

func TestOpenRouter_MissingKeyIsFatal(t *testing.T) {
	called := false
	srv := newOpenRouterServer(t, http.StatusOK, `{}`, func(*http.Request, map[string]interface{}) { called = true })

	p := NewOpenRouter(OpenRouterConfig{BaseURL: srv.URL})
	_, err := p.Complete(context.Background(), Request{Model: "m"})

	assert.Equal(t, core.ClassFatal, core.ClassOf(err))
	assert.True(t, core.IsCategory(err, core.ErrCatAuth))
	assert.False(t, called, "no request without a key")
}

func TestOpenRouter_NetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	p := NewOpenRouter(OpenRouterConfig{APIKey: "k", BaseURL: url, Timeout: time.Second})
	_, err := p.Complete(context.Background(), Request{Model: "m"})
	assert.Equal(t, core.ClassTransient, core.ClassOf(err))
}

func TestOpenRouter_ThroughInvoker(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"done"}}]}`))
	}))
	defer srv.Close()

	p := NewOpenRouter(OpenRouterConfig{APIKey: "k", BaseURL: srv.URL})
	inv, rec := newTestInvoker(t, p)

	out, err := inv.Invoke(context.Background(), Call{Role: core.RoleScribe})
	require.NoError(t, err)
	assert.Equal(t, "done", out)
	assert.Equal(t, 3, calls)
	assert.Len(t, rec.delays, 2)
}

func TestClassifyGeminiError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want core.FailureClass
	}{
		{"quota", genai.APIError{Code: 429, Message: "quota", Status: "RESOURCE_EXHAUSTED"}, core.ClassRateLimited},
		{"exhausted without code", genai.APIError{Message: "quota", Status: "RESOURCE_EXHAUSTED"}, core.ClassRateLimited},
		{"permission", genai.APIError{Code: 403, Message: "denied", Status: "PERMISSION_DENIED"}, core.ClassFatal},
		{"unavailable", genai.APIError{Code: 503, Message: "overloaded", Status: "UNAVAILABLE"}, core.ClassTransient},
		{"pointer", &genai.APIError{Code: 429, Message: "slow"}, core.ClassRateLimited},
		{"transport", errors.New("dial tcp: connection refused"), core.ClassTransient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, core.ClassOf(classifyGeminiError(tt.err)))
		})
	}
}

func TestGemini_MissingCredentials(t *testing.T) {
	g := NewGemini(GeminiConfig{})
	assert.True(t, g.SupportsAttachments("gemini-2.5-flash"))

	_, err := g.Complete(context.Background(), Request{Model: "gemini-2.5-flash", UserPrompt: "x"})
	assert.Equal(t, core.ClassFatal, core.ClassOf(err))
	assert.True(t, core.IsCategory(err, core.ErrCatAuth))
}
