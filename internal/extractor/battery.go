package extractor

import "regexp"

// Rule is one pattern of an ordered battery. Capture picks the value out of a
// submatch; when nil the first capture group is used.
type Rule struct {
	Name    string
	Pattern *regexp.Regexp
	Capture func(m []string) string
}

// Battery is an ordered list of rules evaluated first-match-wins.
type Battery []Rule

// Match is the outcome of running a battery.
type Match struct {
	Value string
	Rule  string
}

// First returns the first rule whose cleaned capture is accepted. clean may be
// nil; accept may be nil to accept any non-empty value.
func (b Battery) First(text string, clean func(string) string, accept func(string) bool) (Match, bool) {
	if text == "" {
		return Match{}, false
	}
	for _, r := range b {
		m := r.Pattern.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		v := r.capture(m)
		if clean != nil {
			v = clean(v)
		}
		if v == "" {
			continue
		}
		if accept != nil && !accept(v) {
			continue
		}
		return Match{Value: v, Rule: r.Name}, true
	}
	return Match{}, false
}

func (r Rule) capture(m []string) string {
	if r.Capture != nil {
		return r.Capture(m)
	}
	if len(m) > 1 {
		return m[1]
	}
	return m[0]
}

// firstOf runs stages in order and returns the first that resolves.
func firstOf(stages ...func() (string, bool)) (string, bool) {
	for _, stage := range stages {
		if v, ok := stage(); ok {
			return v, true
		}
	}
	return "", false
}
