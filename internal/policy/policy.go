// Package policy holds the economic constants of a contract instance: global
// reward parameters and the closed table of contribution types.
package policy

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"sort"

	"gopkg.in/yaml.v3"
)

// ContributionType carries the constants applied to contributions of one type.
type ContributionType struct {
	Fee                    float64 `yaml:"fee" json:"fee"`
	DistributionStake      float64 `yaml:"distribution_stake" json:"distribution_stake"`
	ReputationRewardFactor float64 `yaml:"reputation_reward_factor" json:"reputation_reward_factor"`
	RewardThreshold        float64 `yaml:"reward_threshold" json:"reward_threshold"`
	Stake                  float64 `yaml:"stake" json:"stake"`
	TokenRewardFactor      float64 `yaml:"token_reward_factor" json:"token_reward_factor"`
	EvaluationSet          []int   `yaml:"evaluation_set" json:"evaluation_set"`
}

// Allows reports whether value is a permitted evaluation for this type.
func (t ContributionType) Allows(value int) bool {
	return slices.Contains(t.EvaluationSet, value)
}

// Policy is passed to every engine instance, so several policies can run
// side by side.
type Policy struct {
	UserInitialTokens      float64 `yaml:"user_initial_tokens" json:"user_initial_tokens"`
	UserInitialReputation  float64 `yaml:"user_initial_reputation" json:"user_initial_reputation"`
	Alpha                  float64 `yaml:"alpha" json:"alpha"`
	Beta                   float64 `yaml:"beta" json:"beta"`
	ReferralRewardFraction float64 `yaml:"referral_reward_fraction" json:"referral_reward_fraction"`

	// TODO: referral rewards are paid for the lifetime of the referral; expiring them after
	// ReferralTimeframeDays needs a cutoff rule agreed with the economy owners.
	ReferralTimeframeDays    int    `yaml:"referral_timeframe_days" json:"referral_timeframe_days"`
	RewardTokensToEvaluators bool   `yaml:"reward_tokens_to_evaluators" json:"reward_tokens_to_evaluators"`
	DefaultContributionType  string `yaml:"default_contribution_type" json:"default_contribution_type"`

	ContributionTypes map[string]ContributionType `yaml:"contribution_types" json:"contribution_types"`
}

// BaseType is the name of the built-in contribution type.
const BaseType = "base"

// Default returns the built-in policy.
func Default() Policy {
	return Policy{
		UserInitialTokens:        50.0,
		UserInitialReputation:    20.0,
		Alpha:                    0.7,
		Beta:                     0.5,
		ReferralRewardFraction:   0.2,
		ReferralTimeframeDays:    30,
		RewardTokensToEvaluators: false,
		DefaultContributionType:  BaseType,
		ContributionTypes: map[string]ContributionType{
			BaseType: {
				Fee:                    1,
				DistributionStake:      0.08,
				ReputationRewardFactor: 5,
				RewardThreshold:        0.5,
				Stake:                  0.02,
				TokenRewardFactor:      50,
				EvaluationSet:          []int{0, 1},
			},
		},
	}
}

// Load reads a YAML policy file. Keys missing from the file keep their
// built-in values; a contribution_types table in the file replaces the
// built-in one entirely.
func Load(path string) (Policy, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, fmt.Errorf("read policy file: %w", err)
	}
	return Parse(b)
}

// Parse decodes a YAML policy document on top of Default.
func Parse(b []byte) (Policy, error) {
	p := Default()
	p.ContributionTypes = nil
	if err := yaml.Unmarshal(b, &p); err != nil {
		return Policy{}, fmt.Errorf("decode policy: %w", err)
	}
	if p.ContributionTypes == nil {
		p.ContributionTypes = Default().ContributionTypes
	}
	if err := p.Validate(); err != nil {
		return Policy{}, err
	}
	return p, nil
}

// Validate checks the policy is usable by the engine.
func (p Policy) Validate() error {
	if p.UserInitialReputation <= 0 {
		return errors.New("user_initial_reputation must be > 0")
	}
	if p.UserInitialTokens < 0 {
		return errors.New("user_initial_tokens must be >= 0")
	}
	if p.Alpha <= 0 || p.Beta <= 0 {
		return errors.New("alpha and beta must be > 0")
	}
	if p.ReferralRewardFraction < 0 || p.ReferralRewardFraction > 1 {
		return errors.New("referral_reward_fraction must be within [0, 1]")
	}
	if len(p.ContributionTypes) == 0 {
		return errors.New("at least one contribution type is required")
	}
	if _, ok := p.ContributionTypes[p.DefaultContributionType]; !ok {
		return fmt.Errorf("default_contribution_type %q is not configured", p.DefaultContributionType)
	}
	for name, t := range p.ContributionTypes {
		if t.Fee < 0 {
			return fmt.Errorf("contribution type %q: fee must be >= 0", name)
		}
		if len(t.EvaluationSet) == 0 {
			return fmt.Errorf("contribution type %q: evaluation_set is empty", name)
		}
	}
	return nil
}

// Type looks up a contribution type by name.
func (p Policy) Type(name string) (ContributionType, bool) {
	t, ok := p.ContributionTypes[name]
	return t, ok
}

// TypeNames returns the configured type names in sorted order.
func (p Policy) TypeNames() []string {
	names := make([]string, 0, len(p.ContributionTypes))
	for name := range p.ContributionTypes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsEvaluationValueAllowed reports whether value is permitted for the named
// type. Unknown types allow nothing.
func (p Policy) IsEvaluationValueAllowed(value int, contributionType string) bool {
	t, ok := p.ContributionTypes[contributionType]
	return ok && t.Allows(value)
}
