package inference

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/aether-labs/aether/internal/core"
)

// DefaultOpenRouterURL is the public chat-completions endpoint.
const DefaultOpenRouterURL = "https://openrouter.ai/api/v1/chat/completions"

// maxErrorBody bounds how much of an error response is kept in messages.
const maxErrorBody = 512

// OpenRouterConfig configures the OpenRouter provider.
type OpenRouterConfig struct {
	APIKey       string
	BaseURL      string
	Referer      string
	Title        string
	Timeout      time.Duration
	VisionModels []string
}

// OpenRouter calls an OpenAI-compatible chat-completions endpoint.
type OpenRouter struct {
	cfg    OpenRouterConfig
	client *http.Client
	vision map[string]bool
}

// NewOpenRouter creates the provider. A missing API key is not an error
// here; every call fails fatally instead, so a misconfigured server still
// starts and reports the problem per analysis.
func NewOpenRouter(cfg OpenRouterConfig) *OpenRouter {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultOpenRouterURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}
	vision := make(map[string]bool, len(cfg.VisionModels))
	for _, m := range cfg.VisionModels {
		vision[m] = true
	}
	return &OpenRouter{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		vision: vision,
	}
}

// Name implements Provider.
func (p *OpenRouter) Name() string { return "openrouter" }

// SupportsAttachments implements Provider.
func (p *OpenRouter) SupportsAttachments(model string) bool { return p.vision[model] }

type chatMessage struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature"`
}

type apiError struct {
	Code    interface{} `json:"code"`
	Message string      `json:"message"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *apiError `json:"error"`
}

// Complete implements Provider.
func (p *OpenRouter) Complete(ctx context.Context, req Request) (string, error) {
	if p.cfg.APIKey == "" {
		return "", core.ErrAuth("OpenRouter API key is not configured").
			WithDetail("code", core.CodeMissingAPIKey)
	}

	body, err := json.Marshal(p.buildRequest(req))
	if err != nil {
		return "", core.ErrValidation(core.CodeMalformedResponse, "encoding request").WithCause(err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL, bytes.NewReader(body))
	if err != nil {
		return "", core.ErrValidation("INVALID_REQUEST", "building request").WithCause(err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")
	if p.cfg.Referer != "" {
		httpReq.Header.Set("HTTP-Referer", p.cfg.Referer)
	}
	if p.cfg.Title != "" {
		httpReq.Header.Set("X-Title", p.cfg.Title)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return "", classifyTransportError(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", core.ErrNetwork("reading response body").WithCause(err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", classifyStatus(resp.StatusCode, errorMessage(raw))
	}

	var out chatResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", core.ErrTransient(core.CodeMalformedResponse, "response is not valid JSON").WithCause(err)
	}
	// OpenRouter reports upstream failures inside a 200 body.
	if out.Error != nil {
		return "", classifyStatus(codeOf(out.Error.Code), out.Error.Message)
	}
	if len(out.Choices) == 0 {
		return "", core.ErrTransient(core.CodeMalformedResponse, "response has no choices")
	}
	return out.Choices[0].Message.Content, nil
}

func (p *OpenRouter) buildRequest(req Request) chatRequest {
	var user interface{} = req.UserPrompt
	if req.Attachment != nil {
		uri := "data:" + req.Attachment.MimeType + ";base64," + base64.StdEncoding.EncodeToString(req.Attachment.Data)
		user = []contentPart{
			{Type: "text", Text: req.UserPrompt},
			{Type: "image_url", ImageURL: &imageURL{URL: uri}},
		}
	}

	messages := make([]chatMessage, 0, 2)
	if req.SystemPrompt != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.SystemPrompt})
	}
	messages = append(messages, chatMessage{Role: "user", Content: user})

	return chatRequest{
		Model:       req.Model,
		Messages:    messages,
		MaxTokens:   req.MaxOutputTokens,
		Temperature: req.Temperature,
	}
}

// classifyStatus maps a provider status and message onto the domain error
// categories the invoker classifies.
func classifyStatus(status int, message string) error {
	msg := fmt.Sprintf("provider returned %d: %s", status, message)
	lower := strings.ToLower(message)

	switch {
	case status == http.StatusTooManyRequests || isRateLimitMessage(lower):
		return core.ErrRateLimit(msg).WithDetail("status", status)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return core.ErrAuth(msg).WithDetail("status", status)
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return core.ErrTimeout(msg).WithDetail("status", status)
	case status >= 500 || status == 0:
		return core.ErrTransient("PROVIDER_UNAVAILABLE", msg).WithDetail("status", status)
	default:
		return core.ErrValidation("PROVIDER_REJECTED", msg).WithDetail("status", status)
	}
}

func isRateLimitMessage(lower string) bool {
	for _, marker := range []string{"rate limit", "rate-limit", "ratelimit", "too many requests", "quota exceeded", "resource_exhausted"} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

func classifyTransportError(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return core.ErrTimeout("request to provider timed out").WithCause(err)
	}
	return core.ErrNetwork("request to provider failed").WithCause(err)
}

func errorMessage(raw []byte) string {
	var body struct {
		Error *apiError `json:"error"`
	}
	if err := json.Unmarshal(raw, &body); err == nil && body.Error != nil && body.Error.Message != "" {
		return body.Error.Message
	}
	s := strings.TrimSpace(string(raw))
	if len(s) > maxErrorBody {
		s = s[:maxErrorBody] + "..."
	}
	return s
}

// codeOf reads the numeric code OpenRouter puts in error objects; it is
// sometimes a number and sometimes a string.
func codeOf(v interface{}) int {
	switch c := v.(type) {
	case float64:
		return int(c)
	case string:
		var n int
		if _, err := fmt.Sscanf(c, "%d", &n); err == nil {
			return n
		}
	}
	return 0
}
