package cmd

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aether-labs/aether/internal/config"
	"github.com/aether-labs/aether/internal/core"
	"github.com/aether-labs/aether/internal/events"
	"github.com/aether-labs/aether/internal/logging"
)

func defaultConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.NewLoaderWithViper(viper.New()).WithConfigFile(writeConfig(t)).Load()
	require.NoError(t, err)
	return cfg
}

func TestBuildProviders_OnlyReferenced(t *testing.T) {
	cfg := defaultConfig(t)

	providers, _, err := buildProviders(cfg)
	require.NoError(t, err)
	require.Len(t, providers, 1)
	assert.Equal(t, "openrouter", providers[0].Name())

	cfg.Inference.Roles.Scribe.Provider = "gemini"
	cfg.Inference.Providers.Gemini.RequestsPerMinute = 30
	providers, opts, err := buildProviders(cfg)
	require.NoError(t, err)
	require.Len(t, providers, 2)
	assert.Equal(t, "gemini", providers[1].Name())
	assert.Len(t, opts, 2)
}

func TestNewInvoker(t *testing.T) {
	cfg := defaultConfig(t)

	t.Run("configured providers", func(t *testing.T) {
		inv, err := newInvoker(cfg, logging.NewNop())
		require.NoError(t, err)
		rc, ok := inv.Role(core.RoleAdvocate)
		require.True(t, ok)
		assert.Equal(t, "openrouter", rc.Provider)
		assert.Equal(t, 0.7, rc.Temperature)
	})

	t.Run("override points every role at the provider", func(t *testing.T) {
		inv, err := newInvoker(cfg, logging.NewNop(), newDryRunProvider())
		require.NoError(t, err)
		for _, role := range core.AllRoles() {
			rc, ok := inv.Role(role)
			require.True(t, ok)
			assert.Equal(t, dryRunProviderName, rc.Provider)
			assert.Equal(t, "openrouter/auto", rc.Model)
		}
	})
}

func TestPipelineOptions(t *testing.T) {
	cfg := defaultConfig(t)
	cfg.Pipeline.MaxFactors = 2

	opts := pipelineOptions(cfg.Pipeline)
	assert.Equal(t, 3*time.Second, opts.FactorDelay)
	assert.Equal(t, 8*time.Second, opts.SynthesisDelay)
	assert.Equal(t, 2, opts.MaxFactors)
	assert.Equal(t, 2, opts.MinFactors)
	assert.Equal(t, 1500, opts.Excerpts.Skeptic)
}

func TestProgressPrinter(t *testing.T) {
	t.Run("plain", func(t *testing.T) {
		var buf bytes.Buffer
		p := newProgressPrinter(&buf, true)
		p.Publish("s1", events.NewProgressEvent(core.StateArguing, "arguing", map[string]interface{}{
			"current_factor": 2, "total_factors": 3,
		}))
		assert.Equal(t, "[ARGUING] arguing\n", buf.String())
	})

	t.Run("styled shows factor counter", func(t *testing.T) {
		var buf bytes.Buffer
		p := newProgressPrinter(&buf, false)
		p.Publish("s1", events.NewProgressEvent(core.StateArguing, "arguing", map[string]interface{}{
			"current_factor": 2, "total_factors": 3,
		}))
		p.Publish("s1", events.NewProgressEvent(core.StateComplete, "done", nil))

		lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
		require.Len(t, lines, 2)
		assert.Contains(t, lines[0], "arguing")
		assert.Contains(t, lines[0], "2/3")
		assert.Contains(t, lines[1], "done")
		assert.NotContains(t, lines[1], "/")
	})
}

func TestFactorProgress(t *testing.T) {
	tests := []struct {
		name string
		data interface{}
		ok   bool
	}{
		{"counters", map[string]interface{}{"current_factor": 1, "total_factors": 5}, true},
		{"nil", nil, false},
		{"missing total", map[string]interface{}{"current_factor": 1}, false},
		{"zero total", map[string]interface{}{"current_factor": 1, "total_factors": 0}, false},
		{"other payload", map[string]interface{}{"factors": []string{"a"}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, ok := factorProgress(tt.data)
			assert.Equal(t, tt.ok, ok)
		})
	}
}
