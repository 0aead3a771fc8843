package inference

import (
	"fmt"
	"strings"

	"github.com/aether-labs/aether/internal/core"
)

// RoleConfig is the inference configuration for one role.
type RoleConfig struct {
	Provider        string
	Model           string
	Temperature     float64
	MaxOutputTokens int
}

// RoleTable maps every role to its configuration. It is a static lookup
// validated once when the invoker is built.
type RoleTable map[core.Role]RoleConfig

// DefaultRoleTable mirrors the per-role settings the pipeline was tuned with.
func DefaultRoleTable(provider, model string) RoleTable {
	return RoleTable{
		core.RoleAnalyst:  {Provider: provider, Model: model, Temperature: 0.2, MaxOutputTokens: 2000},
		core.RoleAdvocate: {Provider: provider, Model: model, Temperature: 0.7, MaxOutputTokens: 2000},
		core.RoleSkeptic:  {Provider: provider, Model: model, Temperature: 0.7, MaxOutputTokens: 2000},
		core.RoleScribe:   {Provider: provider, Model: model, Temperature: 0.3, MaxOutputTokens: 2000},
	}
}

// Validate checks that every role is configured and points at a known
// provider.
func (t RoleTable) Validate(providers map[string]Provider) error {
	var problems []string
	for _, role := range core.AllRoles() {
		cfg, ok := t[role]
		if !ok {
			problems = append(problems, fmt.Sprintf("%s: not configured", role))
			continue
		}
		if cfg.Model == "" {
			problems = append(problems, fmt.Sprintf("%s: model is empty", role))
		}
		if cfg.Temperature < 0 || cfg.Temperature > 2 {
			problems = append(problems, fmt.Sprintf("%s: temperature %.2f out of range [0,2]", role, cfg.Temperature))
		}
		if cfg.MaxOutputTokens <= 0 {
			problems = append(problems, fmt.Sprintf("%s: max_output_tokens must be positive", role))
		}
		if _, ok := providers[cfg.Provider]; !ok {
			problems = append(problems, fmt.Sprintf("%s: unknown provider %q", role, cfg.Provider))
		}
	}
	for role := range t {
		if !role.Valid() {
			problems = append(problems, fmt.Sprintf("unknown role %q", role))
		}
	}
	if len(problems) > 0 {
		return core.ErrValidation(core.CodeUnknownProvider, "invalid role table: "+strings.Join(problems, "; "))
	}
	return nil
}
