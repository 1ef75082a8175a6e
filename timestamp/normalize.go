package timestamp

import (
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/width"
)

// isFullwidthAlnum matches the fullwidth forms of A-Z, a-z and 0-9
func isFullwidthAlnum(r rune) bool {
	return (r >= 'Ａ' && r <= 'Ｚ') ||
		(r >= 'ａ' && r <= 'ｚ') ||
		(r >= '０' && r <= '９')
}

// Normalize folds fullwidth Latin letters and digits to their ASCII forms.
// All other characters, fullwidth punctuation included, are left as they are.
func Normalize(text string) string {
	if text == "" {
		return text
	}
	// runes.If keeps per-call state, so the transformer is built fresh each time
	t := runes.If(runes.Predicate(isFullwidthAlnum), width.Fold, nil)
	out, _, err := transform.String(t, text)
	if err != nil {
		return text
	}
	return out
}
