// Package timestamp converts bracketed natural-language time expressions into
// Discord-style timestamp markup (<t:SECONDS[:STYLE]>).
//
// The package holds the pure pieces of the conversion: input normalization,
// pattern matching, time resolution and markup rendering. Rule storage and the
// rule-by-rule pipeline live in package rules.
package timestamp

import (
	"fmt"
	"strconv"
	"strings"
)

// TemporalType classifies how a rule's captured fields are applied to "now"
type TemporalType int

const (
	// Now ignores all fields and yields the current instant
	Now TemporalType = iota
	// Absolute sets calendar components to the captured values
	Absolute
	// Future adds the captured values to the current instant
	Future
	// Past subtracts the captured values from the current instant
	Past
)

func (t TemporalType) String() string {
	switch t {
	case Now:
		return "now"
	case Absolute:
		return "absolute"
	case Future:
		return "future"
	case Past:
		return "past"
	default:
		return fmt.Sprintf("TemporalType(%d)", int(t))
	}
}

// ParseTemporalType parses the text form of a temporal type.
// "abusolute" is accepted as Absolute for rule files written for older releases.
func ParseTemporalType(s string) (TemporalType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "now":
		return Now, nil
	case "absolute", "abusolute":
		return Absolute, nil
	case "future":
		return Future, nil
	case "past":
		return Past, nil
	default:
		return Now, fmt.Errorf("unknown temporal type %q (must be one of: absolute, future, past, now)", s)
	}
}

// MarshalText implements encoding.TextMarshaler
func (t TemporalType) MarshalText() ([]byte, error) {
	if t < Now || t > Past {
		return nil, fmt.Errorf("invalid temporal type %d", int(t))
	}
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (t *TemporalType) UnmarshalText(b []byte) error {
	parsed, err := ParseTemporalType(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Field is a calendar component that a rule pattern can capture.
// Fields are ordered from highest (Years) to lowest (Seconds).
type Field int

const (
	Years Field = iota
	Months
	Days
	Hours
	Minutes
	Seconds

	numFields
)

// AllFields lists every field from highest to lowest order
var AllFields = [numFields]Field{Years, Months, Days, Hours, Minutes, Seconds}

var fieldNames = [numFields]string{"years", "months", "days", "hours", "minutes", "seconds"}

// FormatGroup is the capture group name holding the display-format letter
const FormatGroup = "format"

func (f Field) String() string {
	if f < Years || f >= numFields {
		return fmt.Sprintf("Field(%d)", int(f))
	}
	return fieldNames[f]
}

// FieldByName returns the field whose capture group is called name
func FieldByName(name string) (Field, bool) {
	for i, n := range fieldNames {
		if n == name {
			return Field(i), true
		}
	}
	return 0, false
}

// IsGroupName reports whether name is one of the capture group names the
// matcher understands.
func IsGroupName(name string) bool {
	if name == FormatGroup {
		return true
	}
	_, ok := FieldByName(name)
	return ok
}

// Fields holds the captured text of each field. A missing key means the
// field was absent from the match.
type Fields map[Field]string

// Has reports whether f was captured
func (fs Fields) Has(f Field) bool {
	v, ok := fs[f]
	return ok && v != ""
}

// Int returns the decimal value of f, or 0 when it is absent or not a number
func (fs Fields) Int(f Field) int {
	v, err := strconv.Atoi(fs[f])
	if err != nil {
		return 0
	}
	return v
}

// Highest returns the highest-order captured field
func (fs Fields) Highest() (Field, bool) {
	for _, f := range AllFields {
		if fs.Has(f) {
			return f, true
		}
	}
	return 0, false
}

// Match is one bracketed expression found in a text
type Match struct {
	// Start and End are rune offsets of the span, delimiters included
	Start int
	End   int
	// Text is the literal matched span
	Text   string
	Fields Fields
	// Format is the raw capture of the format group, "" when absent
	Format string
}

// Captured reports whether any named group took part in the match
func (m Match) Captured() bool {
	if m.Format != "" {
		return true
	}
	_, ok := m.Fields.Highest()
	return ok
}
