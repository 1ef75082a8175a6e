package rulesets

import (
	"strings"
	"testing"

	"github.com/liamcoop/timestamps/rules"
	"github.com/liamcoop/timestamps/timestamp"
)

func TestValidateRule_DefaultRules(t *testing.T) {
	for _, r := range rules.DefaultRules() {
		if err := ValidateRule(r); err != nil {
			t.Errorf("built-in rule %s failed validation: %v", r.ID, err)
		}
	}
}

func TestValidateRule(t *testing.T) {
	tests := []struct {
		name    string
		rule    rules.Rule
		wantErr string
	}{
		{
			name: "valid with guard",
			rule: rules.Rule{ID: "en-days-ago", Pattern: `(?<days>\d+) days ago`, Type: timestamp.Past, Guard: `days < 365`},
		},
		{
			name: "language is free-form",
			rule: rules.Rule{Pattern: `maintenant`, Language: "français", Type: timestamp.Now},
		},
		{
			name:    "empty pattern",
			rule:    rules.Rule{Pattern: "  ", Type: timestamp.Now},
			wantErr: "empty",
		},
		{
			name:    "pattern does not compile",
			rule:    rules.Rule{Pattern: `(?<days>\d+`, Type: timestamp.Past},
			wantErr: "invalid pattern",
		},
		{
			name:    "unknown group",
			rule:    rules.Rule{Pattern: `(?<weeks>\d+) weeks ago`, Type: timestamp.Past},
			wantErr: "weeks",
		},
		{
			name:    "invalid type",
			rule:    rules.Rule{Pattern: `now`, Type: timestamp.TemporalType(9)},
			wantErr: "type",
		},
		{
			name:    "guard does not compile",
			rule:    rules.Rule{Pattern: `now`, Guard: `days >`},
			wantErr: "guard",
		},
		{
			name:    "guard is not boolean",
			rule:    rules.Rule{Pattern: `now`, Guard: `"yes"`},
			wantErr: "bool",
		},
		{
			name:    "bad ID",
			rule:    rules.Rule{ID: "has space", Pattern: `now`},
			wantErr: "rule ID",
		},
		{
			name:    "ID too long",
			rule:    rules.Rule{ID: strings.Repeat("a", 101), Pattern: `now`},
			wantErr: "100",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRule(&tt.rule)
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("ValidateRule() unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("ValidateRule() expected error containing %q, got nil", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("ValidateRule() error = %v, want it to mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidateRuleCount(t *testing.T) {
	if err := ValidateRuleCount(MaxRulesPerSet); err != nil {
		t.Errorf("ValidateRuleCount(%d) unexpected error: %v", MaxRulesPerSet, err)
	}
	err := ValidateRuleCount(MaxRulesPerSet + 1)
	if err == nil || !strings.Contains(err.Error(), "1000") {
		t.Errorf("ValidateRuleCount(%d) error = %v, want mention of 1000", MaxRulesPerSet+1, err)
	}
}

func TestValidateOptions(t *testing.T) {
	tests := []struct {
		name    string
		opts    Options
		wantErr bool
	}{
		{"defaults", DefaultOptions(), false},
		{"timeout disabled", Options{MatchTimeoutMs: 0}, false},
		{"omit empty format", Options{OmitEmptyFormat: true, MatchTimeoutMs: 100}, false},
		{"negative timeout", Options{MatchTimeoutMs: -1}, true},
		{"timeout too large", Options{MatchTimeoutMs: MaxMatchTimeoutMs + 1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateOptions(tt.opts)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateOptions(%+v) error = %v, wantErr %v", tt.opts, err, tt.wantErr)
			}
		})
	}
}

func TestValidateName(t *testing.T) {
	if err := ValidateName("discord-bot"); err != nil {
		t.Errorf("ValidateName() unexpected error: %v", err)
	}
	if err := ValidateName(" "); err == nil {
		t.Error("ValidateName() should reject a blank name")
	}
	if err := ValidateName(strings.Repeat("n", 101)); err == nil {
		t.Error("ValidateName() should reject a name over 100 characters")
	}
}

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()
	if opts.MatchTimeoutMs != 250 {
		t.Errorf("MatchTimeoutMs = %d, want 250", opts.MatchTimeoutMs)
	}
	if opts.OmitEmptyFormat {
		t.Error("OmitEmptyFormat should default to false")
	}
}
