package cmd

import (
	"fmt"

	"github.com/aether-labs/aether/internal/config"
	"github.com/aether-labs/aether/internal/inference"
	"github.com/aether-labs/aether/internal/logging"
	"github.com/aether-labs/aether/internal/pipeline"
)

// roleTable converts the configured roles into the invoker's lookup table.
func roleTable(cfg *config.Config) inference.RoleTable {
	table := make(inference.RoleTable)
	for role, rc := range cfg.Inference.Roles.ByRole() {
		table[role] = inference.RoleConfig{
			Provider:        rc.Provider,
			Model:           rc.Model,
			Temperature:     rc.Temperature,
			MaxOutputTokens: rc.MaxOutputTokens,
		}
	}
	return table
}

// buildProviders creates the providers the role table references, each
// with its rate limiter when one is configured.
func buildProviders(cfg *config.Config) ([]inference.Provider, []inference.InvokerOption, error) {
	used := make(map[string]bool)
	for _, rc := range cfg.Inference.Roles.ByRole() {
		used[rc.Provider] = true
	}

	var (
		providers []inference.Provider
		opts      []inference.InvokerOption
	)
	for _, name := range config.KnownProviders {
		if !used[name] {
			continue
		}
		switch name {
		case "openrouter":
			pc := cfg.Inference.Providers.OpenRouter
			providers = append(providers, inference.NewOpenRouter(inference.OpenRouterConfig{
				APIKey:       pc.APIKey,
				BaseURL:      pc.BaseURL,
				Referer:      pc.Referer,
				Title:        pc.Title,
				Timeout:      pc.Timeout,
				VisionModels: pc.VisionModels,
			}))
			opts = append(opts, inference.WithRateLimiter(name, inference.NewRateLimiter(pc.RequestsPerMinute, 1)))
		case "gemini":
			pc := cfg.Inference.Providers.Gemini
			providers = append(providers, inference.NewGemini(inference.GeminiConfig{
				APIKey:   pc.APIKey,
				Project:  pc.Project,
				Location: pc.Location,
			}))
			opts = append(opts, inference.WithRateLimiter(name, inference.NewRateLimiter(pc.RequestsPerMinute, 1)))
		default:
			return nil, nil, fmt.Errorf("unknown provider %q", name)
		}
	}
	return providers, opts, nil
}

func retryPolicy(rc config.RetryConfig) *inference.RetryPolicy {
	return inference.NewRetryPolicy(
		inference.WithMaxAttempts(rc.MaxRetries),
		inference.WithRateLimitBackoff(rc.RateLimitBase, rc.RateLimitStep),
		inference.WithTransientBase(rc.TransientBase),
		inference.WithMaxDelay(rc.MaxBackoff),
		inference.WithJitter(rc.Jitter),
	)
}

// newInvoker builds the invoker for cfg. A non-empty providers slice
// replaces the configured ones and the role table is pointed at the first.
func newInvoker(cfg *config.Config, logger *logging.Logger, override ...inference.Provider) (*inference.Invoker, error) {
	roles := roleTable(cfg)
	opts := []inference.InvokerOption{
		inference.WithRetryPolicy(retryPolicy(cfg.Inference.Retry)),
		inference.WithLogger(logger),
	}

	providers := override
	if len(override) > 0 {
		for role, rc := range roles {
			rc.Provider = override[0].Name()
			roles[role] = rc
		}
	} else {
		built, limiterOpts, err := buildProviders(cfg)
		if err != nil {
			return nil, err
		}
		providers = built
		opts = append(opts, limiterOpts...)
	}

	inv, err := inference.NewInvoker(roles, providers, opts...)
	if err != nil {
		return nil, fmt.Errorf("building invoker: %w", err)
	}
	return inv, nil
}

func pipelineOptions(pc config.PipelineConfig) pipeline.Options {
	opts := pipeline.DefaultOptions()
	opts.FactorDelay = pc.FactorDelay
	opts.CallDelay = pc.CallDelay
	opts.SynthesisDelay = pc.SynthesisDelay
	opts.MaxFactors = pc.MaxFactors
	opts.MaxImageFactors = pc.MaxImageFactors
	opts.Excerpts = pipeline.Excerpts{
		Analyst:  pc.Excerpts.Analyst,
		Advocate: pc.Excerpts.Advocate,
		Skeptic:  pc.Excerpts.Skeptic,
		Scribe:   pc.Excerpts.Scribe,
	}
	if opts.MinFactors > opts.MaxFactors {
		opts.MinFactors = opts.MaxFactors
	}
	return opts
}
