package extractor

import (
	"regexp"
	"sort"
	"strings"

	"jobmail/internal/model"
	"jobmail/internal/normalizer"
)

// positionEnd terminates a role capture.
const positionEnd = `(?:\s+(?:role|position|opening|job|req)\b|\s+(?:at|with)\s|\s+[-–—|]\s|[.,!?;:()\[\]\n|"]|$)`

var positionRules = Battery{
	{Name: "stage-for", Pattern: regexp.MustCompile(`(?i)\b(?:interview|assessment|oa)\s+for\s+(?:the\s+|a\s+|an\s+)?(.{2,80}?)` + positionEnd)},
	{Name: "application-for", Pattern: regexp.MustCompile(`(?i)\bapplication\s+(?:for|to)\s*:?\s*(?:the\s+|a\s+|an\s+)?(.{2,80}?)` + positionEnd)},
	{Name: "for-the-role", Pattern: regexp.MustCompile(`(?i)\bfor\s+the\s+(.{2,80}?)\s+(?:role|position|opening)\b`)},
	{Name: "your-application-for", Pattern: regexp.MustCompile(`(?i)\byour\s+application\s+for\s+(?:the\s+)?(.{2,80}?)` + positionEnd)},
	{Name: "role-noun", Pattern: regexp.MustCompile(`(?i)\b((?:(?:senior|junior|staff|lead|principal|associate)\s+)?(?:software|data|machine learning|ml|ai|backend|back-end|frontend|front-end|full[- ]?stack|product|research|site reliability|devops|cloud|security|mobile|qa|test|hardware|embedded|platform|infrastructure|business|financial|quantitative)\s+(?:engineer(?:ing)?|developer|scientist|analyst|manager|designer|researcher)(?:\s+(?:intern(?:ship)?|co-?op|new grad|i{1,3}|[1-3]))?)\b`)},
	{
		Name:    "internship-in",
		Pattern: regexp.MustCompile(`(?i)\b(?:internship|intern)\s+(?:position\s+|role\s+|program\s+)?(?:for|in|as|on)\s+(?:a\s+|an\s+|the\s+)?(.{2,60}?)` + positionEnd),
		Capture: func(m []string) string {
			if containsWord(strings.ToLower(m[1]), "intern") {
				return m[1]
			}
			return m[1] + " Intern"
		},
	},
}

var roleKeywords = []string{
	"engineer", "engineering", "developer", "manager", "designer", "scientist", "analyst",
	"intern", "internship", "researcher", "consultant", "architect", "specialist",
	"programmer", "administrator", "coordinator", "associate", "technician", "sde", "swe",
	"co-op", "fellow", "representative", "strategist", "recruiter",
}

// roleNouns anchor the scoring window; intern/internship are handled separately.
var roleNouns = map[string]bool{
	"engineer": true, "developer": true, "manager": true, "designer": true, "scientist": true,
	"analyst": true, "researcher": true, "consultant": true, "architect": true,
	"specialist": true, "programmer": true, "administrator": true, "coordinator": true,
	"technician": true, "strategist": true,
}

var windowStopWords = map[string]bool{
	"the": true, "a": true, "an": true, "for": true, "our": true, "your": true, "as": true,
	"to": true, "of": true, "in": true, "at": true, "with": true, "and": true, "or": true,
	"is": true, "be": true, "this": true, "we": true, "you": true, "my": true, "on": true,
	"by": true, "from": true, "are": true, "was": true, "re": true, "fwd": true, "dear": true,
	"hi": true, "hello": true, "thank": true, "thanks": true, "applying": true,
	"application": true, "applied": true, "received": true, "new": true,
}

var (
	positionArticle  = regexp.MustCompile(`(?i)^(?:the|a|an|our|your)\s+`)
	positionTrailing = regexp.MustCompile(`(?i)\s+(?:role|position|opening|job)$`)
	positionReqID    = regexp.MustCompile(`(?i)\b(?:req(?:uisition)?|job)\s*(?:id)?\s*[#:]?\s*[a-z0-9-]*\d{3,}[a-z0-9-]*|\(\s*[^)]*\d{3,}[^)]*\)|#\s*\d+`)
	positionJunk     = regexp.MustCompile(`[^\p{L}\p{N}\s&/+#.\-]`)
	subjectSplit     = regexp.MustCompile(`\s+[-–—|]\s+|:\s*`)
	segmentSplit     = regexp.MustCompile(`[\n.!?;:|()\[\],"]+|\s+[-–—]\s+`)
)

// source is one text the scoring fallback scans, with its weight.
type source struct {
	text   string
	weight float64
}

// extractPosition resolves the role with the regex battery, the subject split
// heuristic and finally candidate scoring.
func extractPosition(n normalizer.Normalized, company string) string {
	v, ok := firstOf(
		func() (string, bool) {
			m, ok := positionRules.First(n.Text, cleanPosition, acceptPosition)
			return m.Value, ok
		},
		func() (string, bool) { return positionFromSubject(n.Subject) },
		func() (string, bool) {
			return bestCandidate([]source{
				{text: n.Subject, weight: 2},
				{text: n.Snippet, weight: 1},
				{text: n.Body, weight: 1},
			})
		},
	)
	if !ok {
		return model.UnknownPosition
	}
	return stripCompanyPrefix(v, company)
}

func cleanPosition(s string) string {
	s = collapse(s)
	s = positionReqID.ReplaceAllString(s, "")
	s = positionJunk.ReplaceAllString(s, "")
	s = collapse(s)
	s = positionArticle.ReplaceAllString(s, "")
	s = positionTrailing.ReplaceAllString(s, "")
	s = strings.Trim(s, ".-/& ")
	s = truncateWords(s, 8)
	return titleCase(s)
}

func acceptPosition(s string) bool {
	lower := strings.ToLower(s)
	if strings.Contains(lower, "http") || len(strings.Fields(s)) > 8 {
		return false
	}
	return hasRoleKeyword(lower)
}

func hasRoleKeyword(lower string) bool {
	for _, kw := range roleKeywords {
		if containsWord(lower, kw) {
			return true
		}
	}
	return false
}

func countRoleKeywords(lower string) int {
	n := 0
	for _, kw := range roleKeywords {
		if containsWord(lower, kw) {
			n++
		}
	}
	return n
}

// positionFromSubject splits the subject on dashes, pipes and colons and
// returns the first segment that names a role.
func positionFromSubject(subject string) (string, bool) {
	for _, seg := range subjectSplit.Split(subject, -1) {
		c := cleanPosition(seg)
		if c != "" && acceptPosition(c) {
			return c, true
		}
	}
	return "", false
}

type candidate struct {
	phrase string
	score  float64
	order  int
}

// bestCandidate scores short role phrases found in the sources and returns the
// highest; ties go to the shorter phrase, then to the earlier one.
func bestCandidate(sources []source) (string, bool) {
	var cands []candidate
	order := 0
	for _, src := range sources {
		for _, seg := range segmentSplit.Split(src.text, -1) {
			tokens := strings.Fields(seg)
			for i, tok := range tokens {
				word := strings.ToLower(strings.Trim(tok, `'"*,.`))
				var window []string
				switch {
				case word == "intern" || word == "internship":
					window = tokens[max(0, i-6) : i+1]
				case roleNouns[word]:
					window = tokens[max(0, i-3):min(len(tokens), i+2)]
				default:
					continue
				}
				phrase := cleanPosition(strings.Join(trimStopWords(window), " "))
				if phrase == "" || !hasRoleKeyword(strings.ToLower(phrase)) {
					continue
				}
				cands = append(cands, candidate{
					phrase: phrase,
					score:  scorePhrase(phrase, src.weight),
					order:  order,
				})
				order++
			}
		}
	}
	if len(cands) == 0 {
		return "", false
	}

	sort.SliceStable(cands, func(i, j int) bool {
		a, b := cands[i], cands[j]
		if a.score != b.score {
			return a.score > b.score
		}
		if len(a.phrase) != len(b.phrase) {
			return len(a.phrase) < len(b.phrase)
		}
		return a.order < b.order
	})
	return cands[0].phrase, true
}

func scorePhrase(phrase string, weight float64) float64 {
	lower := strings.ToLower(phrase)
	score := weight + 0.2*float64(countRoleKeywords(lower))
	if strings.Contains(lower, "intern") {
		score += 2
	}
	if extra := len(strings.Fields(phrase)) - 4; extra > 0 {
		score -= 0.2 * float64(extra)
	}
	return score
}

func trimStopWords(tokens []string) []string {
	isStop := func(t string) bool {
		return windowStopWords[strings.ToLower(strings.Trim(t, `'"*,.`))]
	}
	for len(tokens) > 0 && isStop(tokens[0]) {
		tokens = tokens[1:]
	}
	for len(tokens) > 0 && isStop(tokens[len(tokens)-1]) {
		tokens = tokens[:len(tokens)-1]
	}
	return tokens
}

// stripCompanyPrefix removes a leading "<Company>" or "<Company>'s".
func stripCompanyPrefix(position, company string) string {
	if company == "" || company == model.UnknownCompany {
		return position
	}
	lp, lc := strings.ToLower(position), strings.ToLower(company)
	for _, prefix := range []string{lc + "'s ", lc + "’s ", lc + " "} {
		if strings.HasPrefix(lp, prefix) {
			if rest := strings.TrimSpace(position[len(prefix):]); rest != "" {
				return rest
			}
		}
	}
	return position
}
