package rules

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/liamcoop/timestamps/timestamp"
)

//go:embed rules.json
var defaultRulesJSON []byte

// ruleRecord is the on-disk form of a rule. Active defaults to true.
type ruleRecord struct {
	ID       string                  `json:"id" yaml:"id"`
	Name     string                  `json:"name" yaml:"name"`
	Language string                  `json:"language" yaml:"language"`
	Pattern  string                  `json:"pattern" yaml:"pattern"`
	Type     *timestamp.TemporalType `json:"type" yaml:"type"`
	Guard    string                  `json:"guard" yaml:"guard"`
	Active   *bool                   `json:"active" yaml:"active"`
}

// DefaultRules returns a fresh copy of the built-in English and Japanese rules
func DefaultRules() []*Rule {
	rules, err := LoadRules(bytes.NewReader(defaultRulesJSON), "json")
	if err != nil {
		panic(fmt.Sprintf("embedded rules.json is invalid: %v", err))
	}
	return rules
}

// LoadRules reads a rule list in "json" or "yaml" format. Rules keep the
// order they appear in, which becomes their Position.
func LoadRules(r io.Reader, format string) ([]*Rule, error) {
	var records []ruleRecord

	switch strings.ToLower(format) {
	case "json":
		if err := json.NewDecoder(r).Decode(&records); err != nil {
			return nil, fmt.Errorf("failed to decode rules: %w", err)
		}
	case "yaml", "yml":
		if err := yaml.NewDecoder(r).Decode(&records); err != nil && err != io.EOF {
			return nil, fmt.Errorf("failed to decode rules: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported rule format %q (must be json or yaml)", format)
	}

	rules := make([]*Rule, 0, len(records))
	for i, rec := range records {
		if rec.Pattern == "" {
			return nil, fmt.Errorf("rule %d (%s): pattern cannot be empty", i+1, rec.ID)
		}
		if rec.Type == nil {
			return nil, fmt.Errorf("rule %d (%s): type is required", i+1, rec.ID)
		}
		active := true
		if rec.Active != nil {
			active = *rec.Active
		}
		rules = append(rules, &Rule{
			ID:       rec.ID,
			Name:     rec.Name,
			Language: rec.Language,
			Pattern:  rec.Pattern,
			Type:     *rec.Type,
			Guard:    rec.Guard,
			Position: i + 1,
			Active:   active,
		})
	}
	return rules, nil
}

// LoadRulesFile reads a rule file, choosing the format from its extension
func LoadRulesFile(path string) ([]*Rule, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open rule file: %w", err)
	}
	defer f.Close()

	format := strings.TrimPrefix(filepath.Ext(path), ".")
	rules, err := LoadRules(f, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rules, nil
}

// NewDefaultEngine builds an engine over an in-memory store holding the
// built-in rules
func NewDefaultEngine(opts ...Option) (*Engine, error) {
	return NewFileEngine("", opts...)
}

// NewFileEngine builds an engine over an in-memory store holding the rules
// in path, or the built-in rules when path is empty
func NewFileEngine(path string, opts ...Option) (*Engine, error) {
	rules := DefaultRules()
	if path != "" {
		var err error
		if rules, err = LoadRulesFile(path); err != nil {
			return nil, err
		}
	}

	store, err := NewInMemoryRuleStoreWith(rules)
	if err != nil {
		return nil, err
	}
	return NewEngine(store, opts...)
}

var (
	defaultEngine     *Engine
	defaultEngineOnce sync.Once
)

// Convert rewrites text with the built-in rules, measuring relative
// expressions from the current time
func Convert(text string) string {
	defaultEngineOnce.Do(func() {
		en, err := NewDefaultEngine()
		if err != nil {
			panic(fmt.Sprintf("built-in rules do not compile: %v", err))
		}
		defaultEngine = en
	})
	return defaultEngine.Convert(text)
}
