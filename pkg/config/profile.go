package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/clawdbot/sentinel/pkg/autonomy"
	"github.com/clawdbot/sentinel/pkg/freeze"
	"github.com/clawdbot/sentinel/pkg/policy"
)

// Profile is the version-controlled governance profile: autonomy deltas,
// write budgets, and the freeze scope. Missing sections fall back to the
// documented defaults.
type Profile struct {
	Name        string                 `yaml:"name"`
	Autonomy    autonomy.Params        `yaml:"autonomy"`
	WriteBudget policy.LimiterPolicy   `yaml:"write_budget"`
	FreezeScope freeze.ScopeDefinition `yaml:"freeze_scope"`
}

// DefaultProfile returns the built-in profile used when no YAML is
// configured.
func DefaultProfile() *Profile {
	return &Profile{
		Name:        "default",
		Autonomy:    autonomy.Defaults(),
		WriteBudget: policy.LimiterPolicy{PerSecond: 1, Burst: 5},
		FreezeScope: freeze.DefaultScope(),
	}
}

// LoadProfile reads and validates a governance profile. An empty path
// yields the default profile.
func LoadProfile(path string) (*Profile, error) {
	if path == "" {
		return DefaultProfile(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}

	profile := DefaultProfile()
	if err := yaml.Unmarshal(data, profile); err != nil {
		return nil, fmt.Errorf("parse profile %s: %w", path, err)
	}

	if err := profile.Autonomy.Validate(); err != nil {
		return nil, fmt.Errorf("profile %s: %w", path, err)
	}
	if profile.WriteBudget.PerSecond <= 0 || profile.WriteBudget.Burst <= 0 {
		return nil, fmt.Errorf("profile %s: write budget must be positive", path)
	}
	return profile, nil
}
