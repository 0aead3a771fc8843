package config

import (
	"time"

	"github.com/aether-labs/aether/internal/core"
)

// Config holds all application configuration.
type Config struct {
	Log       LogConfig       `mapstructure:"log"`
	Server    ServerConfig    `mapstructure:"server"`
	Inference InferenceConfig `mapstructure:"inference"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Session   SessionConfig   `mapstructure:"session"`
}

// LogConfig configures logging behavior.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Host                  string        `mapstructure:"host"`
	Port                  int           `mapstructure:"port"`
	CORSOrigins           []string      `mapstructure:"cors_origins"`
	MaxUploadBytes        int64         `mapstructure:"max_upload_bytes"`
	MaxConcurrentSessions int64         `mapstructure:"max_concurrent_sessions"`
	Heartbeat             time.Duration `mapstructure:"heartbeat"`
	EventBuffer           int           `mapstructure:"event_buffer"`
	ShutdownTimeout       time.Duration `mapstructure:"shutdown_timeout"`
}

// InferenceConfig configures providers, retries and the role table.
type InferenceConfig struct {
	Providers ProvidersConfig `mapstructure:"providers"`
	Retry     RetryConfig     `mapstructure:"retry"`
	Roles     RolesConfig     `mapstructure:"roles"`
}

// ProvidersConfig holds per-provider settings.
type ProvidersConfig struct {
	OpenRouter OpenRouterConfig `mapstructure:"openrouter"`
	Gemini     GeminiConfig     `mapstructure:"gemini"`
}

// OpenRouterConfig configures the OpenRouter chat-completions provider.
type OpenRouterConfig struct {
	APIKey            string        `mapstructure:"api_key"`
	BaseURL           string        `mapstructure:"base_url"`
	Referer           string        `mapstructure:"referer"`
	Title             string        `mapstructure:"title"`
	Timeout           time.Duration `mapstructure:"timeout"`
	VisionModels      []string      `mapstructure:"vision_models"`
	RequestsPerMinute float64       `mapstructure:"requests_per_minute"`
}

// GeminiConfig configures the Gemini provider. APIKey selects the Gemini
// API; Project and Location select Vertex AI.
type GeminiConfig struct {
	APIKey            string  `mapstructure:"api_key"`
	Project           string  `mapstructure:"project"`
	Location          string  `mapstructure:"location"`
	RequestsPerMinute float64 `mapstructure:"requests_per_minute"`
}

// RetryConfig configures the invoker retry policy.
type RetryConfig struct {
	MaxRetries    int           `mapstructure:"max_retries"`
	RateLimitBase time.Duration `mapstructure:"rate_limit_base"`
	RateLimitStep time.Duration `mapstructure:"rate_limit_step"`
	TransientBase time.Duration `mapstructure:"transient_base"`
	MaxBackoff    time.Duration `mapstructure:"max_backoff"`
	Jitter        float64       `mapstructure:"jitter"`
}

// RolesConfig is the static role table.
type RolesConfig struct {
	Analyst  RoleConfig `mapstructure:"analyst"`
	Advocate RoleConfig `mapstructure:"advocate"`
	Skeptic  RoleConfig `mapstructure:"skeptic"`
	Scribe   RoleConfig `mapstructure:"scribe"`
}

// RoleConfig selects the provider and model settings for one role.
type RoleConfig struct {
	Provider        string  `mapstructure:"provider"`
	Model           string  `mapstructure:"model"`
	Temperature     float64 `mapstructure:"temperature"`
	MaxOutputTokens int     `mapstructure:"max_output_tokens"`
}

// ByRole returns the table keyed by role.
func (r RolesConfig) ByRole() map[core.Role]RoleConfig {
	return map[core.Role]RoleConfig{
		core.RoleAnalyst:  r.Analyst,
		core.RoleAdvocate: r.Advocate,
		core.RoleSkeptic:  r.Skeptic,
		core.RoleScribe:   r.Scribe,
	}
}

// PipelineConfig configures pacing and prompt sizes of the coordinator.
type PipelineConfig struct {
	FactorDelay     time.Duration `mapstructure:"factor_delay"`
	CallDelay       time.Duration `mapstructure:"call_delay"`
	SynthesisDelay  time.Duration `mapstructure:"synthesis_delay"`
	MaxFactors      int           `mapstructure:"max_factors"`
	MaxImageFactors int           `mapstructure:"max_image_factors"`
	Excerpts        ExcerptConfig `mapstructure:"excerpts"`
}

// ExcerptConfig bounds how much document text each role sees. Zero means
// the whole document.
type ExcerptConfig struct {
	Analyst  int `mapstructure:"analyst"`
	Advocate int `mapstructure:"advocate"`
	Skeptic  int `mapstructure:"skeptic"`
	Scribe   int `mapstructure:"scribe"`
}

// SessionConfig configures the session store.
type SessionConfig struct {
	Backend       string        `mapstructure:"backend"` // memory, sqlite
	Path          string        `mapstructure:"path"`
	Retention     time.Duration `mapstructure:"retention"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}
