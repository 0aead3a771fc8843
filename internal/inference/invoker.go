// Package inference performs resilient calls to external text-inference
// services on behalf of the pipeline roles.
package inference

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aether-labs/aether/internal/core"
	"github.com/aether-labs/aether/internal/logging"
)

// Call is one logical inference request. It may be attempted several times.
type Call struct {
	Role         core.Role
	SystemPrompt string
	UserPrompt   string
	Attachment   *core.Attachment

	// OnRetry, if set, is called before each backoff wait.
	OnRetry RetryNotifyFunc
}

// RetryNotifyFunc is called on each retry with the failed attempt number,
// the failure class, the wait before the next attempt and the cause.
type RetryNotifyFunc func(attempt int, class core.FailureClass, delay time.Duration, err error)

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Invoker resolves a role to its provider and model, then retries the call
// according to the failure classification.
type Invoker struct {
	roles     RoleTable
	providers map[string]Provider
	limiters  map[string]*RateLimiter
	policy    *RetryPolicy
	logger    *logging.Logger
	sleep     SleepFunc
}

// InvokerOption configures an Invoker.
type InvokerOption func(*Invoker)

// WithRetryPolicy replaces the default retry policy.
func WithRetryPolicy(p *RetryPolicy) InvokerOption {
	return func(inv *Invoker) {
		inv.policy = p
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) InvokerOption {
	return func(inv *Invoker) {
		inv.logger = l
	}
}

// WithSleep replaces the backoff wait. Tests use it to avoid real delays.
func WithSleep(fn SleepFunc) InvokerOption {
	return func(inv *Invoker) {
		inv.sleep = fn
	}
}

// WithRateLimiter paces requests to the named provider.
func WithRateLimiter(provider string, rl *RateLimiter) InvokerOption {
	return func(inv *Invoker) {
		if rl != nil {
			inv.limiters[provider] = rl
		}
	}
}

// NewInvoker validates the role table against the providers and returns a
// ready invoker.
func NewInvoker(roles RoleTable, providers []Provider, opts ...InvokerOption) (*Invoker, error) {
	byName := make(map[string]Provider, len(providers))
	for _, p := range providers {
		if _, dup := byName[p.Name()]; dup {
			return nil, core.ErrValidation(core.CodeUnknownProvider, fmt.Sprintf("provider %q registered twice", p.Name()))
		}
		byName[p.Name()] = p
	}
	if err := roles.Validate(byName); err != nil {
		return nil, err
	}

	table := make(RoleTable, len(roles))
	for r, cfg := range roles {
		table[r] = cfg
	}

	inv := &Invoker{
		roles:     table,
		providers: byName,
		limiters:  make(map[string]*RateLimiter),
		policy:    DefaultRetryPolicy(),
		logger:    logging.NewNop(),
		sleep:     sleepContext,
	}
	for _, opt := range opts {
		opt(inv)
	}
	return inv, nil
}

// Invoke performs the call, retrying rate-limited and transient failures.
// Every failure is returned as a *core.InvocationError.
func (inv *Invoker) Invoke(ctx context.Context, call Call) (string, error) {
	cfg, ok := inv.roles[call.Role]
	if !ok {
		return "", &core.InvocationError{
			Role:  call.Role,
			Class: core.ClassFatal,
			Cause: core.ErrValidation(core.CodeUnknownRole, fmt.Sprintf("no configuration for role %q", call.Role)),
		}
	}
	provider := inv.providers[cfg.Provider]

	req := Request{
		Role:            call.Role,
		Model:           cfg.Model,
		Temperature:     cfg.Temperature,
		MaxOutputTokens: cfg.MaxOutputTokens,
		SystemPrompt:    call.SystemPrompt,
		UserPrompt:      call.UserPrompt,
		Attachment:      call.Attachment,
	}
	if req.Attachment != nil && !provider.SupportsAttachments(cfg.Model) {
		req.UserPrompt = AttachmentPlaceholder(req.Attachment.MimeType) + "\n\n" + req.UserPrompt
		req.Attachment = nil
		inv.logger.Warn("model does not accept attachments, sending placeholder",
			"role", call.Role, "provider", provider.Name(), "model", cfg.Model)
	}

	log := inv.logger.WithContext(ctx).WithRole(string(call.Role)).With("provider", provider.Name(), "model", cfg.Model)

	for attempt := 1; ; attempt++ {
		if err := inv.limiters[cfg.Provider].Acquire(ctx); err != nil {
			return "", inv.cancelled(call.Role, attempt-1, err)
		}

		start := time.Now()
		text, err := provider.Complete(ctx, req)
		if err == nil && strings.TrimSpace(text) == "" {
			err = core.ErrTransient(core.CodeEmptyResponse, "provider returned an empty response")
		}
		if err == nil {
			log.Debug("inference call succeeded", "attempt", attempt, "duration", time.Since(start))
			return text, nil
		}

		if ctx.Err() != nil {
			return "", inv.cancelled(call.Role, attempt, ctx.Err())
		}

		class := core.ClassOf(err)
		if !inv.policy.ShouldRetry(class, attempt) {
			log.Warn("inference call failed", "attempt", attempt, "class", class, "error", err)
			return "", &core.InvocationError{Role: call.Role, Class: class, Attempts: attempt, Cause: err}
		}

		delay := inv.policy.Delay(class, attempt)
		log.Info("retrying inference call", "attempt", attempt, "class", class, "delay", delay, "error", err)
		if call.OnRetry != nil {
			call.OnRetry(attempt, class, delay, err)
		}
		if err := inv.sleep(ctx, delay); err != nil {
			return "", inv.cancelled(call.Role, attempt, err)
		}
	}
}

// Role returns the configuration used for a role.
func (inv *Invoker) Role(role core.Role) (RoleConfig, bool) {
	cfg, ok := inv.roles[role]
	return cfg, ok
}

func (inv *Invoker) cancelled(role core.Role, attempts int, err error) error {
	cause := core.ErrTimeout("inference call cancelled").WithCause(err)
	if errors.Is(err, context.Canceled) {
		cause.Retryable = false
	}
	return &core.InvocationError{Role: role, Class: core.ClassFatal, Attempts: attempts, Cause: cause}
}

// AttachmentPlaceholder is the text sent instead of an attachment the
// configured model cannot read.
func AttachmentPlaceholder(mimeType string) string {
	if mimeType == "" {
		mimeType = "unknown type"
	}
	return fmt.Sprintf("[Attached image (%s) was not analyzed: the configured model does not accept image input]", mimeType)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
