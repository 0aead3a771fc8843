package inference

import (
	"context"
	"fmt"
	"sync"

	"github.com/aether-labs/aether/internal/core"
)

// Request is one attempt sent to a provider. Providers never retry; they
// return errors classified with the core.DomainError categories and leave
// the decision to the invoker.
type Request struct {
	Role            core.Role
	Model           string
	Temperature     float64
	MaxOutputTokens int
	SystemPrompt    string
	UserPrompt      string
	Attachment      *core.Attachment
}

// Provider is an external text-inference backend.
type Provider interface {
	// Name identifies the provider in role tables and logs.
	Name() string
	// SupportsAttachments reports whether model accepts image input.
	SupportsAttachments(model string) bool
	// Complete performs a single call and returns the raw model text.
	Complete(ctx context.Context, req Request) (string, error)
}

// ProviderFunc adapts a function to the Provider interface. It never accepts
// attachments.
type ProviderFunc struct {
	ProviderName string
	Fn           func(ctx context.Context, req Request) (string, error)
}

func (p ProviderFunc) Name() string { return p.ProviderName }

func (p ProviderFunc) SupportsAttachments(string) bool { return false }

func (p ProviderFunc) Complete(ctx context.Context, req Request) (string, error) {
	return p.Fn(ctx, req)
}

// ScriptedReply is one canned outcome for a ScriptedProvider.
type ScriptedReply struct {
	Text string
	Err  error
}

// ScriptedProvider replays canned replies per role in order. Once a role's
// script is exhausted its last reply repeats. It backs tests and the
// offline dry-run mode of the CLI.
type ScriptedProvider struct {
	mu       sync.Mutex
	name     string
	scripts  map[core.Role][]ScriptedReply
	requests []Request
	vision   bool
}

// NewScriptedProvider creates an empty scripted provider.
func NewScriptedProvider(name string) *ScriptedProvider {
	return &ScriptedProvider{
		name:    name,
		scripts: make(map[core.Role][]ScriptedReply),
	}
}

// On appends replies for a role and returns the provider for chaining.
func (p *ScriptedProvider) On(role core.Role, replies ...ScriptedReply) *ScriptedProvider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.scripts[role] = append(p.scripts[role], replies...)
	return p
}

// WithVision makes the provider accept attachments.
func (p *ScriptedProvider) WithVision() *ScriptedProvider {
	p.vision = true
	return p
}

func (p *ScriptedProvider) Name() string                    { return p.name }
func (p *ScriptedProvider) SupportsAttachments(string) bool { return p.vision }

// Complete returns the next scripted reply for the request's role.
func (p *ScriptedProvider) Complete(ctx context.Context, req Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	p.requests = append(p.requests, req)
	script := p.scripts[req.Role]
	if len(script) == 0 {
		return "", core.ErrValidation(core.CodeUnknownRole, fmt.Sprintf("no scripted reply for role %s", req.Role))
	}
	reply := script[0]
	if len(script) > 1 {
		p.scripts[req.Role] = script[1:]
	}
	return reply.Text, reply.Err
}

// Requests returns every request received so far, in order.
func (p *ScriptedProvider) Requests() []Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Request(nil), p.requests...)
}

// Calls counts requests received for a role.
func (p *ScriptedProvider) Calls(role core.Role) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, r := range p.requests {
		if r.Role == role {
			n++
		}
	}
	return n
}
