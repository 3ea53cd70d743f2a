package merge

import (
	"strings"
	"unicode"
)

// NormalizeKey case-folds s, spells out "&", drops everything that is not a
// letter, digit or space and collapses whitespace.
func NormalizeKey(s string) string {
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, "&", " and ")

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteByte(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// LockKey is the advisory lock held while merging for userID.
func LockKey(userID string) string {
	return "merge:" + userID
}
