package timestamp

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dlclark/regexp2"
)

const (
	// OpenDelimiters are the characters that may open a bracketed expression
	OpenDelimiters = "<〈＜"
	// CloseDelimiters are the characters that may close a bracketed expression
	CloseDelimiters = ">〉＞"
)

// Matcher finds bracketed expressions that satisfy one rule pattern
type Matcher struct {
	pattern string
	re      *regexp2.Regexp
	groups  []string
}

// NewMatcher compiles pattern wrapped in the open and close delimiter sets.
// A timeout of zero means scans are never cut short.
func NewMatcher(pattern string, timeout time.Duration) (*Matcher, error) {
	if pattern == "" {
		return nil, fmt.Errorf("pattern cannot be empty")
	}

	expr := "[" + OpenDelimiters + "](?:" + asciiDigits(pattern) + ")[" + CloseDelimiters + "]"
	re, err := regexp2.Compile(expr, regexp2.None)
	if err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}
	if timeout > 0 {
		re.MatchTimeout = timeout
	}

	var groups []string
	for _, name := range re.GetGroupNames() {
		if _, err := strconv.Atoi(name); err == nil {
			continue // numbered group
		}
		groups = append(groups, name)
	}

	return &Matcher{pattern: pattern, re: re, groups: groups}, nil
}

// asciiDigits rewrites \d and \D so they cover 0-9 only. regexp2 follows
// .NET and lets \d match any Unicode decimal digit, which would hand
// captures like "٣" to strconv. \s and \w keep their Unicode meaning.
func asciiDigits(pattern string) string {
	var b strings.Builder
	b.Grow(len(pattern))

	inClass := false
	rs := []rune(pattern)
	for i := 0; i < len(rs); i++ {
		r := rs[i]
		switch {
		case r == '\\' && i+1 < len(rs):
			i++
			switch next := rs[i]; {
			case next == 'd' && inClass:
				b.WriteString("0-9")
			case next == 'd':
				b.WriteString("[0-9]")
			case next == 'D' && !inClass:
				b.WriteString("[^0-9]")
			default:
				b.WriteRune(r)
				b.WriteRune(next)
			}
		case r == '[' && !inClass:
			inClass = true
			b.WriteRune(r)
			if i+1 < len(rs) && rs[i+1] == '^' {
				i++
				b.WriteRune('^')
			}
			// a leading ] is a literal
			if i+1 < len(rs) && rs[i+1] == ']' {
				i++
				b.WriteRune(']')
			}
		case r == ']' && inClass:
			inClass = false
			b.WriteRune(r)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Pattern returns the rule pattern the matcher was built from
func (m *Matcher) Pattern() string {
	return m.pattern
}

// GroupNames returns the named capture groups declared by the pattern
func (m *Matcher) GroupNames() []string {
	out := make([]string, len(m.groups))
	copy(out, m.groups)
	return out
}

// FindMatches scans text once, left to right, and returns every
// non-overlapping match. If the scan times out, the matches found before the
// timeout are returned along with the error.
func (m *Matcher) FindMatches(text string) ([]Match, error) {
	var matches []Match

	rm, err := m.re.FindStringMatch(text)
	for rm != nil {
		matches = append(matches, m.toMatch(rm))
		rm, err = m.re.FindNextMatch(rm)
	}
	if err != nil {
		return matches, fmt.Errorf("scan %q: %w", m.pattern, err)
	}
	return matches, nil
}

func (m *Matcher) toMatch(rm *regexp2.Match) Match {
	out := Match{
		Start:  rm.Index,
		End:    rm.Index + rm.Length,
		Text:   rm.String(),
		Fields: Fields{},
	}

	for _, name := range m.groups {
		g := rm.GroupByName(name)
		if g == nil || len(g.Captures) == 0 {
			continue
		}
		value := g.String()
		if value == "" {
			continue
		}
		if name == FormatGroup {
			out.Format = value
			continue
		}
		if f, ok := FieldByName(name); ok {
			out.Fields[f] = value
		}
	}

	return out
}
