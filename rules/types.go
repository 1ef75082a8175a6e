package rules

import (
	"time"

	"github.com/liamcoop/timestamps/timestamp"
)

// Rule is a single recognition rule: a pattern for the inside of a bracketed
// time expression and the way its captures resolve to an instant
type Rule struct {
	ID       string                 `json:"id" yaml:"id"`
	Name     string                 `json:"name,omitempty" yaml:"name,omitempty"`
	Language string                 `json:"language" yaml:"language"`
	Pattern  string                 `json:"pattern" yaml:"pattern"`
	Type     timestamp.TemporalType `json:"type" yaml:"type"`
	// Guard is an optional CEL predicate a match must satisfy to be rewritten
	Guard     string    `json:"guard,omitempty" yaml:"guard,omitempty"`
	Position  int       `json:"position" yaml:"position"`
	Active    bool      `json:"active" yaml:"active"`
	CreatedAt time.Time `json:"createdAt" yaml:"-"`
	UpdatedAt time.Time `json:"updatedAt" yaml:"-"`
}

// Replacement records one bracketed expression rewritten during a conversion
type Replacement struct {
	RuleID   string                 `json:"ruleId"`
	Language string                 `json:"language"`
	Type     timestamp.TemporalType `json:"type"`
	// Start and End are rune offsets into the text as the rule saw it
	Start   int       `json:"start"`
	End     int       `json:"end"`
	Source  string    `json:"source"`
	Markup  string    `json:"markup"`
	Instant time.Time `json:"instant"`
}

// Conversion is the outcome of converting one text
type Conversion struct {
	Input        string        `json:"input"`
	Text         string        `json:"text"`
	Now          time.Time     `json:"now"`
	Replacements []Replacement `json:"replacements"`
}
