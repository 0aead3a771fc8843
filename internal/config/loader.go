package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. AETHER_SERVER_PORT.
const EnvPrefix = "AETHER"

// Loader handles configuration loading from multiple sources.
type Loader struct {
	v          *viper.Viper
	configFile string
	envPrefix  string
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	return NewLoaderWithViper(viper.New())
}

// NewLoaderWithViper creates a loader using an existing viper instance so
// CLI flags bound to it take precedence.
func NewLoaderWithViper(v *viper.Viper) *Loader {
	return &Loader{
		v:         v,
		envPrefix: EnvPrefix,
	}
}

// WithConfigFile sets an explicit config file path.
func (l *Loader) WithConfigFile(path string) *Loader {
	l.configFile = path
	return l
}

// Viper returns the underlying viper instance for flag binding.
func (l *Loader) Viper() *viper.Viper {
	return l.v
}

// Load loads configuration from all sources.
// Precedence (highest to lowest):
// 1. CLI flags (set via viper.BindPFlag)
// 2. Environment variables (AETHER_*, plus OPENROUTER_API_KEY / GEMINI_API_KEY)
// 3. Project config (.aether.yaml in current directory)
// 4. User config (~/.config/aether/config.yaml)
// 5. Defaults
func (l *Loader) Load() (*Config, error) {
	l.setDefaults()

	l.v.SetEnvPrefix(l.envPrefix)
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	l.v.AutomaticEnv()
	if err := l.bindProviderKeys(); err != nil {
		return nil, err
	}

	if l.configFile != "" {
		l.v.SetConfigFile(l.configFile)
	} else {
		l.v.SetConfigName(".aether")
		l.v.SetConfigType("yaml")
		l.v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			l.v.AddConfigPath(filepath.Join(home, ".config", "aether"))
		}
	}

	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	return &cfg, nil
}

// bindProviderKeys lets the conventional provider variables fill in API keys.
func (l *Loader) bindProviderKeys() error {
	bindings := map[string][]string{
		"inference.providers.openrouter.api_key": {"OPENROUTER_API_KEY"},
		"inference.providers.gemini.api_key":     {"GEMINI_API_KEY", "GOOGLE_API_KEY"},
		"inference.providers.gemini.project":     {"GOOGLE_CLOUD_PROJECT"},
		"inference.providers.gemini.location":    {"GOOGLE_CLOUD_LOCATION"},
	}
	for key, vars := range bindings {
		prefixed := l.envPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		args := append([]string{key, prefixed}, vars...)
		if err := l.v.BindEnv(args...); err != nil {
			return fmt.Errorf("binding %s: %w", key, err)
		}
	}
	return nil
}

// setDefaults configures default values.
func (l *Loader) setDefaults() {
	l.v.SetDefault("log.level", "info")
	l.v.SetDefault("log.format", "auto")

	l.v.SetDefault("server.host", "localhost")
	l.v.SetDefault("server.port", 3001)
	l.v.SetDefault("server.cors_origins", []string{"http://localhost:3000", "http://localhost:5173"})
	l.v.SetDefault("server.max_upload_bytes", 10<<20)
	l.v.SetDefault("server.max_concurrent_sessions", 0)
	l.v.SetDefault("server.heartbeat", "15s")
	l.v.SetDefault("server.event_buffer", 64)
	l.v.SetDefault("server.shutdown_timeout", "30s")

	l.v.SetDefault("inference.providers.openrouter.api_key", "")
	l.v.SetDefault("inference.providers.openrouter.base_url", "https://openrouter.ai/api/v1/chat/completions")
	l.v.SetDefault("inference.providers.openrouter.referer", "http://localhost:3000")
	l.v.SetDefault("inference.providers.openrouter.title", "Aether Debate App")
	l.v.SetDefault("inference.providers.openrouter.timeout", "2m")
	l.v.SetDefault("inference.providers.openrouter.vision_models", []string{})
	l.v.SetDefault("inference.providers.openrouter.requests_per_minute", 0)
	l.v.SetDefault("inference.providers.gemini.api_key", "")
	l.v.SetDefault("inference.providers.gemini.project", "")
	l.v.SetDefault("inference.providers.gemini.location", "")
	l.v.SetDefault("inference.providers.gemini.requests_per_minute", 0)

	l.v.SetDefault("inference.retry.max_retries", 3)
	l.v.SetDefault("inference.retry.rate_limit_base", "5s")
	l.v.SetDefault("inference.retry.rate_limit_step", "5s")
	l.v.SetDefault("inference.retry.transient_base", "1s")
	l.v.SetDefault("inference.retry.max_backoff", "60s")
	l.v.SetDefault("inference.retry.jitter", 0.0)

	roleTemps := map[string]float64{"analyst": 0.2, "advocate": 0.7, "skeptic": 0.7, "scribe": 0.3}
	for role, temp := range roleTemps {
		prefix := "inference.roles." + role
		l.v.SetDefault(prefix+".provider", "openrouter")
		l.v.SetDefault(prefix+".model", "openrouter/auto")
		l.v.SetDefault(prefix+".temperature", temp)
		l.v.SetDefault(prefix+".max_output_tokens", 2000)
	}

	l.v.SetDefault("pipeline.factor_delay", "3s")
	l.v.SetDefault("pipeline.call_delay", "2s")
	l.v.SetDefault("pipeline.synthesis_delay", "8s")
	l.v.SetDefault("pipeline.max_factors", 5)
	l.v.SetDefault("pipeline.max_image_factors", 3)
	l.v.SetDefault("pipeline.excerpts.analyst", 0)
	l.v.SetDefault("pipeline.excerpts.advocate", 1500)
	l.v.SetDefault("pipeline.excerpts.skeptic", 1500)
	l.v.SetDefault("pipeline.excerpts.scribe", 1000)

	l.v.SetDefault("session.backend", "memory")
	l.v.SetDefault("session.path", ".aether/sessions.db")
	l.v.SetDefault("session.retention", "0s")
	l.v.SetDefault("session.sweep_interval", "10m")
}

// ConfigFile returns the config file path if one was used.
func (l *Loader) ConfigFile() string {
	return l.v.ConfigFileUsed()
}

// Set overrides a configuration value.
func (l *Loader) Set(key string, value interface{}) {
	l.v.Set(key, value)
}
