package inference

import (
	"math"
	"math/rand"
	"time"

	"github.com/aether-labs/aether/internal/core"
)

// RetryPolicy decides how often and how long to wait between attempts of one
// inference call. Rate-limited failures follow a linear escalation, other
// retryable failures back off exponentially.
type RetryPolicy struct {
	MaxAttempts   int
	RateLimitBase time.Duration
	RateLimitStep time.Duration
	TransientBase time.Duration
	MaxDelay      time.Duration
	JitterFactor  float64 // 0.0 to 1.0
}

// DefaultRetryPolicy returns a default retry policy.
func DefaultRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts:   3,
		RateLimitBase: 5 * time.Second,
		RateLimitStep: 5 * time.Second,
		TransientBase: time.Second,
		MaxDelay:      time.Minute,
	}
}

// RetryPolicyOption configures a retry policy.
type RetryPolicyOption func(*RetryPolicy)

// WithMaxAttempts sets the total number of attempts, including the first.
func WithMaxAttempts(n int) RetryPolicyOption {
	return func(p *RetryPolicy) {
		p.MaxAttempts = n
	}
}

// WithRateLimitBackoff sets the first rate-limit wait and the per-attempt step.
func WithRateLimitBackoff(base, step time.Duration) RetryPolicyOption {
	return func(p *RetryPolicy) {
		p.RateLimitBase = base
		p.RateLimitStep = step
	}
}

// WithTransientBase sets the unit of the exponential transient backoff.
func WithTransientBase(d time.Duration) RetryPolicyOption {
	return func(p *RetryPolicy) {
		p.TransientBase = d
	}
}

// WithMaxDelay caps every backoff.
func WithMaxDelay(d time.Duration) RetryPolicyOption {
	return func(p *RetryPolicy) {
		p.MaxDelay = d
	}
}

// WithJitter sets the jitter factor.
func WithJitter(factor float64) RetryPolicyOption {
	return func(p *RetryPolicy) {
		p.JitterFactor = factor
	}
}

// NewRetryPolicy creates a new retry policy.
func NewRetryPolicy(opts ...RetryPolicyOption) *RetryPolicy {
	p := DefaultRetryPolicy()
	for _, opt := range opts {
		opt(p)
	}
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	return p
}

// ShouldRetry reports whether another attempt follows a failure of the
// given class on the given (1-based) attempt.
func (p *RetryPolicy) ShouldRetry(class core.FailureClass, attempt int) bool {
	if class == core.ClassFatal || class == "" {
		return false
	}
	return attempt < p.MaxAttempts
}

// Delay computes the wait after a failed attempt.
//
// Rate limited: RateLimitBase on attempt 1, then attempt*RateLimitStep
// (5s, 10s, 15s with defaults). Transient: TransientBase*2^attempt.
func (p *RetryPolicy) Delay(class core.FailureClass, attempt int) time.Duration {
	delay := p.delayNoJitter(class, attempt)
	if p.JitterFactor > 0 && delay > 0 {
		delay = time.Duration(addJitter(float64(delay), p.JitterFactor))
	}
	return delay
}

func (p *RetryPolicy) delayNoJitter(class core.FailureClass, attempt int) time.Duration {
	var delay float64
	switch class {
	case core.ClassRateLimited:
		if attempt <= 1 {
			delay = float64(p.RateLimitBase)
		} else {
			delay = float64(p.RateLimitStep) * float64(attempt)
		}
	case core.ClassTransient:
		delay = float64(p.TransientBase) * math.Pow(2, float64(attempt))
	default:
		return 0
	}

	if p.MaxDelay > 0 && delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}
	return time.Duration(delay)
}

// addJitter adds random jitter to a delay.
func addJitter(delay float64, factor float64) float64 {
	jitter := delay * factor
	randomJitter := (rand.Float64()*2 - 1) * jitter
	return delay + randomJitter
}
