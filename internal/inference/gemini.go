package inference

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"google.golang.org/genai"

	"github.com/aether-labs/aether/internal/core"
)

// GeminiConfig configures the Gemini provider. Either APIKey (Gemini API) or
// Project and Location (Vertex AI) must be set.
type GeminiConfig struct {
	APIKey   string
	Project  string
	Location string
}

// Gemini calls Google's generative models through the genai SDK. All Gemini
// models accept image input.
type Gemini struct {
	cfg GeminiConfig

	once      sync.Once
	client    *genai.Client
	clientErr error
}

// NewGemini creates the provider. The SDK client is built on first use.
func NewGemini(cfg GeminiConfig) *Gemini {
	return &Gemini{cfg: cfg}
}

// Name implements Provider.
func (g *Gemini) Name() string { return "gemini" }

// SupportsAttachments implements Provider.
func (g *Gemini) SupportsAttachments(string) bool { return true }

func (g *Gemini) clientFor(ctx context.Context) (*genai.Client, error) {
	g.once.Do(func() {
		cc := &genai.ClientConfig{}
		switch {
		case g.cfg.APIKey != "":
			cc.APIKey = g.cfg.APIKey
			cc.Backend = genai.BackendGeminiAPI
		case g.cfg.Project != "" && g.cfg.Location != "":
			cc.Project = g.cfg.Project
			cc.Location = g.cfg.Location
			cc.Backend = genai.BackendVertexAI
		default:
			g.clientErr = core.ErrAuth("Gemini API key or Vertex project/location is not configured").
				WithDetail("code", core.CodeMissingAPIKey)
			return
		}
		client, err := genai.NewClient(ctx, cc)
		if err != nil {
			g.clientErr = core.ErrAuth("creating Gemini client").WithCause(err)
			return
		}
		g.client = client
	})
	return g.client, g.clientErr
}

// Complete implements Provider.
func (g *Gemini) Complete(ctx context.Context, req Request) (string, error) {
	client, err := g.clientFor(ctx)
	if err != nil {
		return "", err
	}

	parts := []*genai.Part{genai.NewPartFromText(req.UserPrompt)}
	if req.Attachment != nil {
		parts = append(parts, genai.NewPartFromBytes(req.Attachment.Data, req.Attachment.MimeType))
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	temp := float32(req.Temperature)
	cfg := &genai.GenerateContentConfig{
		Temperature:     &temp,
		MaxOutputTokens: int32(req.MaxOutputTokens),
	}
	if req.SystemPrompt != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.SystemPrompt, genai.RoleUser)
	}

	res, err := client.Models.GenerateContent(ctx, req.Model, contents, cfg)
	if err != nil {
		return "", classifyGeminiError(err)
	}
	return res.Text(), nil
}

func classifyGeminiError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return classifyAPIError(apiErr, err)
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return classifyAPIError(*apiErrPtr, err)
	}
	return classifyTransportError(err)
}

func classifyAPIError(apiErr genai.APIError, cause error) error {
	msg := apiErr.Message
	if apiErr.Status != "" {
		msg = fmt.Sprintf("%s: %s", apiErr.Status, msg)
	}
	// RESOURCE_EXHAUSTED is Gemini's quota signal even when the code is missing.
	if strings.EqualFold(apiErr.Status, "RESOURCE_EXHAUSTED") {
		return core.ErrRateLimit(msg).WithCause(cause)
	}
	classified := classifyStatus(apiErr.Code, msg)
	var domErr *core.DomainError
	if errors.As(classified, &domErr) {
		domErr.WithCause(cause)
	}
	return classified
}
