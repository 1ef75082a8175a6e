package timestamp

import (
	"strconv"
	"strings"
	"time"
)

// formatPriority is the order in which display-format letters are looked
// for in a raw format capture.
const formatPriority = "tTdDfFR"

// NormalizeFormat returns the first letter of formatPriority that occurs in
// raw, or "" when none does.
func NormalizeFormat(raw string) string {
	for _, r := range formatPriority {
		if strings.ContainsRune(raw, r) {
			return string(r)
		}
	}
	return ""
}

// Unix returns whole seconds since the epoch, rounded toward negative infinity
func Unix(t time.Time) int64 {
	return t.Unix()
}

// Formatter renders resolved instants as timestamp markup
type Formatter struct {
	// OmitEmptyFormat renders <t:S> rather than <t:S:> when a match captured
	// fields but no recognised format letter.
	OmitEmptyFormat bool
}

// Format renders instant for m. A match that captured no named group at all
// yields <t:S>; any other match yields <t:S:FORMAT>, where FORMAT may be empty.
func (f Formatter) Format(instant time.Time, m Match) string {
	seconds := strconv.FormatInt(Unix(instant), 10)
	if !m.Captured() {
		return "<t:" + seconds + ">"
	}

	format := NormalizeFormat(m.Format)
	if format == "" && f.OmitEmptyFormat {
		return "<t:" + seconds + ">"
	}
	return "<t:" + seconds + ":" + format + ">"
}
