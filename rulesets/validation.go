package rulesets

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/liamcoop/timestamps/rules"
	"github.com/liamcoop/timestamps/timestamp"
)

const (
	// MaxRulesPerSet caps how many rules one rule set may hold
	MaxRulesPerSet = 1000
	// MaxMatchTimeoutMs caps the per-rule scan timeout
	MaxMatchTimeoutMs = 60000
	maxNameLength     = 100
)

var ruleIDPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_.-]*$`)

// ValidateRule checks a rule before it is stored. The language tag is free-form.
func ValidateRule(r *rules.Rule) error {
	if r.ID != "" {
		if err := validateRuleID(r.ID); err != nil {
			return fmt.Errorf("invalid rule ID %q: %w", r.ID, err)
		}
	}

	if strings.TrimSpace(r.Pattern) == "" {
		return fmt.Errorf("pattern cannot be empty")
	}

	m, err := timestamp.NewMatcher(r.Pattern, 0)
	if err != nil {
		return err
	}
	for _, name := range m.GroupNames() {
		if !timestamp.IsGroupName(name) {
			return fmt.Errorf("pattern declares unknown group %q (must be one of: years, months, days, hours, minutes, seconds, format)", name)
		}
	}

	if _, err := r.Type.MarshalText(); err != nil {
		return fmt.Errorf("invalid rule type: %w", err)
	}

	if strings.TrimSpace(r.Guard) != "" {
		env, err := rules.NewGuardEnv()
		if err != nil {
			return err
		}
		if _, err := rules.CompileGuard(env, r.Guard); err != nil {
			return err
		}
	}

	return nil
}

// ValidateRuleCount rejects a rule set that would hold more than MaxRulesPerSet rules
func ValidateRuleCount(n int) error {
	if n > MaxRulesPerSet {
		return fmt.Errorf("rule set would contain %d rules, maximum allowed is %d", n, MaxRulesPerSet)
	}
	return nil
}

// ValidateOptions checks rule set options
func ValidateOptions(o Options) error {
	if o.MatchTimeoutMs < 0 {
		return fmt.Errorf("matchTimeoutMs cannot be negative")
	}
	if o.MatchTimeoutMs > MaxMatchTimeoutMs {
		return fmt.Errorf("matchTimeoutMs %d exceeds maximum of %d", o.MatchTimeoutMs, MaxMatchTimeoutMs)
	}
	return nil
}

// ValidateName checks a rule set name
func ValidateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("name cannot be empty")
	}
	if len(name) > maxNameLength {
		return fmt.Errorf("name length %d exceeds maximum of %d characters", len(name), maxNameLength)
	}
	return nil
}

func validateRuleID(id string) error {
	if len(id) > maxNameLength {
		return fmt.Errorf("identifier length %d exceeds maximum of %d characters", len(id), maxNameLength)
	}
	if !ruleIDPattern.MatchString(id) {
		return fmt.Errorf("must match pattern %s", ruleIDPattern)
	}
	return nil
}
