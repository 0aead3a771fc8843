package config

import (
	"fmt"
	"strings"
	"time"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation: %s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors collects multiple validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// HasErrors returns true if there are any validation errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// KnownProviders lists the provider names a role may reference.
var KnownProviders = []string{"openrouter", "gemini"}

// Validator validates configuration.
type Validator struct {
	errors ValidationErrors
}

// NewValidator creates a new validator.
func NewValidator() *Validator {
	return &Validator{
		errors: make(ValidationErrors, 0),
	}
}

// Validate validates the entire configuration. Missing API keys are not
// validation errors: calls fail fatally and the analysis reports it.
func (v *Validator) Validate(cfg *Config) error {
	v.validateLog(&cfg.Log)
	v.validateServer(&cfg.Server)
	v.validateRetry(&cfg.Inference.Retry)
	v.validateRoles(&cfg.Inference.Roles)
	v.validatePipeline(&cfg.Pipeline)
	v.validateSession(&cfg.Session)

	if len(v.errors) > 0 {
		return v.errors
	}
	return nil
}

// Errors returns the collected validation errors.
func (v *Validator) Errors() ValidationErrors {
	return v.errors
}

func (v *Validator) addError(field string, value interface{}, msg string) {
	v.errors = append(v.errors, ValidationError{
		Field:   field,
		Value:   value,
		Message: msg,
	})
}

func (v *Validator) validateLog(cfg *LogConfig) {
	if !oneOf(cfg.Level, "debug", "info", "warn", "error") {
		v.addError("log.level", cfg.Level, "must be one of debug, info, warn, error")
	}
	if !oneOf(cfg.Format, "auto", "text", "json") {
		v.addError("log.format", cfg.Format, "must be one of auto, text, json")
	}
}

func (v *Validator) validateServer(cfg *ServerConfig) {
	if cfg.Port < 1 || cfg.Port > 65535 {
		v.addError("server.port", cfg.Port, "must be between 1 and 65535")
	}
	if cfg.MaxUploadBytes <= 0 {
		v.addError("server.max_upload_bytes", cfg.MaxUploadBytes, "must be positive")
	}
	if cfg.MaxConcurrentSessions < 0 {
		v.addError("server.max_concurrent_sessions", cfg.MaxConcurrentSessions, "must be >= 0 (0 = unbounded)")
	}
	if cfg.Heartbeat <= 0 {
		v.addError("server.heartbeat", cfg.Heartbeat, "must be positive")
	}
}

func (v *Validator) validateRetry(cfg *RetryConfig) {
	if cfg.MaxRetries < 1 {
		v.addError("inference.retry.max_retries", cfg.MaxRetries, "must be at least 1 (total attempts)")
	}
	v.nonNegative("inference.retry.rate_limit_base", cfg.RateLimitBase)
	v.nonNegative("inference.retry.rate_limit_step", cfg.RateLimitStep)
	v.nonNegative("inference.retry.transient_base", cfg.TransientBase)
	v.nonNegative("inference.retry.max_backoff", cfg.MaxBackoff)
	if cfg.Jitter < 0 || cfg.Jitter > 1 {
		v.addError("inference.retry.jitter", cfg.Jitter, "must be between 0 and 1")
	}
}

func (v *Validator) validateRoles(cfg *RolesConfig) {
	for role, rc := range cfg.ByRole() {
		prefix := "inference.roles." + string(role)
		if !oneOf(rc.Provider, KnownProviders...) {
			v.addError(prefix+".provider", rc.Provider, "must be one of "+strings.Join(KnownProviders, ", "))
		}
		if rc.Model == "" {
			v.addError(prefix+".model", rc.Model, "is required")
		}
		if rc.Temperature < 0 || rc.Temperature > 2 {
			v.addError(prefix+".temperature", rc.Temperature, "must be between 0 and 2")
		}
		if rc.MaxOutputTokens <= 0 {
			v.addError(prefix+".max_output_tokens", rc.MaxOutputTokens, "must be positive")
		}
	}
}

func (v *Validator) validatePipeline(cfg *PipelineConfig) {
	v.nonNegative("pipeline.factor_delay", cfg.FactorDelay)
	v.nonNegative("pipeline.call_delay", cfg.CallDelay)
	v.nonNegative("pipeline.synthesis_delay", cfg.SynthesisDelay)
	if cfg.MaxFactors < 1 {
		v.addError("pipeline.max_factors", cfg.MaxFactors, "must be at least 1")
	}
	if cfg.MaxImageFactors < 1 {
		v.addError("pipeline.max_image_factors", cfg.MaxImageFactors, "must be at least 1")
	}
	for field, n := range map[string]int{
		"analyst": cfg.Excerpts.Analyst, "advocate": cfg.Excerpts.Advocate,
		"skeptic": cfg.Excerpts.Skeptic, "scribe": cfg.Excerpts.Scribe,
	} {
		if n < 0 {
			v.addError("pipeline.excerpts."+field, n, "must be >= 0 (0 = whole document)")
		}
	}
}

func (v *Validator) validateSession(cfg *SessionConfig) {
	switch cfg.Backend {
	case "memory":
	case "sqlite":
		if cfg.Path == "" {
			v.addError("session.path", cfg.Path, "is required for the sqlite backend")
		}
	default:
		v.addError("session.backend", cfg.Backend, "must be memory or sqlite")
	}
	v.nonNegative("session.retention", cfg.Retention)
	if cfg.Retention > 0 && cfg.SweepInterval <= 0 {
		v.addError("session.sweep_interval", cfg.SweepInterval, "must be positive when retention is set")
	}
}

func (v *Validator) nonNegative(field string, d time.Duration) {
	if d < 0 {
		v.addError(field, d, "must not be negative")
	}
}

func oneOf(s string, options ...string) bool {
	for _, o := range options {
		if s == o {
			return true
		}
	}
	return false
}

// ValidateConfig is a convenience wrapper around Validator.
func ValidateConfig(cfg *Config) error {
	return NewValidator().Validate(cfg)
}
