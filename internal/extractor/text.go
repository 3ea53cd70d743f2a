package extractor

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	wsRun = regexp.MustCompile(`\s+`)

	// acronyms are always upper-cased by titleCase.
	acronyms = map[string]bool{
		"ai": true, "ml": true, "ui": true, "ux": true, "qa": true,
		"hr": true, "pm": true, "hp": true, "ge": true, "sde": true, "swe": true,
		"ibm": true, "aws": true, "sap": true, "amd": true, "llc": true, "usa": true,
		"uk": true, "nyc": true, "sre": true, "api": true,
		"gcp": true, "bcg": true, "kpmg": true, "ey": true, "pwc": true, "jp": true,
		"nvidia": true, "ii": true, "iii": true, "iv": true, "bi": true, "vr": true,
	}

	// lowerWords stay lower-case unless they open the phrase.
	lowerWords = map[string]bool{
		"of": true, "and": true, "the": true, "for": true, "in": true, "at": true, "to": true,
	}
)

// collapse folds whitespace runs into single spaces and trims.
func collapse(s string) string {
	return strings.TrimSpace(wsRun.ReplaceAllString(s, " "))
}

// titleCase capitalises each word. Words on the acronym list, and two-letter
// words that arrive fully upper-cased, stay upper-case.
func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		lw := strings.ToLower(w)
		switch {
		case acronyms[strings.Trim(lw, ".,&-")]:
			words[i] = strings.ToUpper(w)
		case utf8.RuneCountInString(w) == 2 && w == strings.ToUpper(w) && hasLetter(w):
			// keep as-is
		case i > 0 && lowerWords[lw]:
			words[i] = lw
		default:
			words[i] = capitalize(lw)
		}
	}
	return strings.Join(words, " ")
}

// capitalize upper-cases the first letter of w and each hyphen/ampersand segment.
func capitalize(w string) string {
	var b strings.Builder
	upper := true
	for _, r := range w {
		if upper && unicode.IsLetter(r) {
			b.WriteRune(unicode.ToUpper(r))
			upper = false
			continue
		}
		b.WriteRune(r)
		if r == '-' || r == '&' || r == '/' {
			upper = true
		}
	}
	return b.String()
}

func hasLetter(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) {
			return true
		}
	}
	return false
}

// truncateWords keeps the first n words.
func truncateWords(s string, n int) string {
	words := strings.Fields(s)
	if len(words) > n {
		words = words[:n]
	}
	return strings.Join(words, " ")
}

// containsWord reports whether text contains word on word boundaries.
func containsWord(text, word string) bool {
	idx := 0
	for {
		i := strings.Index(text[idx:], word)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(word)
		if boundary(text, start-1) && boundary(text, end) {
			return true
		}
		idx = start + 1
	}
}

func boundary(s string, i int) bool {
	if i < 0 || i >= len(s) {
		return true
	}
	c := s[i]
	return !(c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '_')
}
