package config

import (
	"errors"
	"strings"
	"testing"
	"time"
)

// validConfig returns a valid configuration for testing.
func validConfig() *Config {
	role := func(temp float64) RoleConfig {
		return RoleConfig{Provider: "openrouter", Model: "openrouter/auto", Temperature: temp, MaxOutputTokens: 2000}
	}
	return &Config{
		Log: LogConfig{
			Level:  "info",
			Format: "auto",
		},
		Server: ServerConfig{
			Host:           "localhost",
			Port:           3001,
			MaxUploadBytes: 10 << 20,
			Heartbeat:      15 * time.Second,
			EventBuffer:    64,
		},
		Inference: InferenceConfig{
			Retry: RetryConfig{
				MaxRetries:    3,
				RateLimitBase: 5 * time.Second,
				RateLimitStep: 5 * time.Second,
				TransientBase: time.Second,
				MaxBackoff:    time.Minute,
			},
			Roles: RolesConfig{
				Analyst:  role(0.2),
				Advocate: role(0.7),
				Skeptic:  role(0.7),
				Scribe:   role(0.3),
			},
		},
		Pipeline: PipelineConfig{
			FactorDelay:     3 * time.Second,
			CallDelay:       2 * time.Second,
			SynthesisDelay:  8 * time.Second,
			MaxFactors:      5,
			MaxImageFactors: 3,
			Excerpts:        ExcerptConfig{Advocate: 1500, Skeptic: 1500, Scribe: 1000},
		},
		Session: SessionConfig{
			Backend: "memory",
		},
	}
}

func TestValidator_ValidConfig(t *testing.T) {
	cfg := validConfig()
	if err := NewValidator().Validate(cfg); err != nil {
		t.Errorf("Validate() error = %v, want nil", err)
	}
}

func TestValidator_FieldErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"log level", func(c *Config) { c.Log.Level = "verbose" }, "log.level"},
		{"log format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
		{"port zero", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"port too high", func(c *Config) { c.Server.Port = 70000 }, "server.port"},
		{"upload limit", func(c *Config) { c.Server.MaxUploadBytes = 0 }, "server.max_upload_bytes"},
		{"negative concurrency", func(c *Config) { c.Server.MaxConcurrentSessions = -1 }, "server.max_concurrent_sessions"},
		{"heartbeat", func(c *Config) { c.Server.Heartbeat = 0 }, "server.heartbeat"},
		{"no attempts", func(c *Config) { c.Inference.Retry.MaxRetries = 0 }, "inference.retry.max_retries"},
		{"negative backoff", func(c *Config) { c.Inference.Retry.TransientBase = -time.Second }, "inference.retry.transient_base"},
		{"jitter", func(c *Config) { c.Inference.Retry.Jitter = 1.5 }, "inference.retry.jitter"},
		{"unknown provider", func(c *Config) { c.Inference.Roles.Skeptic.Provider = "anthropic" }, "inference.roles.skeptic.provider"},
		{"missing model", func(c *Config) { c.Inference.Roles.Scribe.Model = "" }, "inference.roles.scribe.model"},
		{"temperature", func(c *Config) { c.Inference.Roles.Advocate.Temperature = 3 }, "inference.roles.advocate.temperature"},
		{"max tokens", func(c *Config) { c.Inference.Roles.Analyst.MaxOutputTokens = 0 }, "inference.roles.analyst.max_output_tokens"},
		{"negative delay", func(c *Config) { c.Pipeline.CallDelay = -1 }, "pipeline.call_delay"},
		{"max factors", func(c *Config) { c.Pipeline.MaxFactors = 0 }, "pipeline.max_factors"},
		{"image factors", func(c *Config) { c.Pipeline.MaxImageFactors = 0 }, "pipeline.max_image_factors"},
		{"negative excerpt", func(c *Config) { c.Pipeline.Excerpts.Skeptic = -5 }, "pipeline.excerpts.skeptic"},
		{"backend", func(c *Config) { c.Session.Backend = "redis" }, "session.backend"},
		{"sqlite path", func(c *Config) { c.Session.Backend = "sqlite"; c.Session.Path = "" }, "session.path"},
		{"sweep interval", func(c *Config) { c.Session.Retention = time.Hour; c.Session.SweepInterval = 0 }, "session.sweep_interval"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := NewValidator().Validate(cfg)
			if err == nil {
				t.Fatalf("Validate() = nil, want error on %s", tt.field)
			}
			var errs ValidationErrors
			if !errors.As(err, &errs) {
				t.Fatalf("error type = %T, want ValidationErrors", err)
			}
			found := false
			for _, e := range errs {
				if e.Field == tt.field {
					found = true
				}
			}
			if !found {
				t.Errorf("no error for %s in %v", tt.field, errs)
			}
		})
	}
}

func TestValidator_MissingKeysAreNotErrors(t *testing.T) {
	cfg := validConfig()
	cfg.Inference.Providers = ProvidersConfig{}
	if err := ValidateConfig(cfg); err != nil {
		t.Errorf("Validate() error = %v, want nil without API keys", err)
	}
}

func TestValidator_SQLiteWithPath(t *testing.T) {
	cfg := validConfig()
	cfg.Session.Backend = "sqlite"
	cfg.Session.Path = ".aether/sessions.db"
	if err := ValidateConfig(cfg); err != nil {
		t.Errorf("Validate() error = %v, want nil", err)
	}
}

func TestValidator_MultipleErrors(t *testing.T) {
	cfg := validConfig()
	cfg.Log.Level = "bogus"
	cfg.Server.Port = -1
	cfg.Pipeline.MaxFactors = 0

	v := NewValidator()
	if err := v.Validate(cfg); err == nil {
		t.Fatal("Validate() should fail")
	}
	if got := len(v.Errors()); got != 3 {
		t.Errorf("len(Errors()) = %d, want 3", got)
	}
}

func TestValidationError_Error(t *testing.T) {
	err := ValidationError{
		Field:   "test.field",
		Value:   "test-value",
		Message: "test message",
	}

	errStr := err.Error()
	for _, want := range []string{"test.field", "test message", "test-value"} {
		if !strings.Contains(errStr, want) {
			t.Errorf("error string %q should contain %q", errStr, want)
		}
	}
}

func TestValidationErrors_Error(t *testing.T) {
	errs := ValidationErrors{
		{Field: "field1", Value: "v1", Message: "msg1"},
		{Field: "field2", Value: "v2", Message: "msg2"},
	}

	errStr := errs.Error()
	if !strings.Contains(errStr, "field1") || !strings.Contains(errStr, "field2") {
		t.Errorf("error string %q should contain both fields", errStr)
	}
}

func TestValidationErrors_HasErrors(t *testing.T) {
	if (ValidationErrors{}).HasErrors() {
		t.Error("empty ValidationErrors should not have errors")
	}
	if !(ValidationErrors{{Field: "f", Value: "v", Message: "m"}}).HasErrors() {
		t.Error("non-empty ValidationErrors should have errors")
	}
}
