package extractor

import (
	"net/mail"
	"regexp"
	"strings"

	"golang.org/x/net/publicsuffix"

	"jobmail/internal/model"
)

// subjectEnd terminates a capture taken from a subject line.
const subjectEnd = `(?:\s+[-–—|:]\s+|[!.,;|:?]|$)`

var companySubjectRules = Battery{
	{Name: "you-applied-to", Pattern: regexp.MustCompile(`(?i)\byou applied to\s+(.+?)` + subjectEnd)},
	{Name: "thank-you-for-applying", Pattern: regexp.MustCompile(`(?i)\bthank(?:s| you) for (?:applying|your application|your interest)\s+(?:to|at|with|in)\s+(.+?)` + subjectEnd)},
	{Name: "application-to", Pattern: regexp.MustCompile(`(?i)\bapplication\s+(?:to|at|with)\s+(.+?)` + subjectEnd)},
	{Name: "for-the-at", Pattern: regexp.MustCompile(`(?i)\bfor the\s+.+?\s+at\s+(.+?)` + subjectEnd)},
	{Name: "to-capitalized", Pattern: regexp.MustCompile(`\bto\s+([A-Z][\p{L}\p{N}&.'-]*(?:\s+[A-Z][\p{L}\p{N}&.'-]*)*)`)},
}

var companyTextRules = Battery{
	{Name: "keyword-at", Pattern: regexp.MustCompile(`(?i)\b(?:internship|position|role|offer|application)\s+at\s+([\p{L}\p{N}][\p{L}\p{N}&.'\- ]{0,60}?)(?:\s+(?:for|in|and|is|has|was|we|on|as|with|located|where)\b|[!.,;:()\n|]|$)`)},
}

var (
	companyTeamSuffix = regexp.MustCompile(`(?i)(?:\s+(?:recruiting|recruitment|talent(?:\s+acquisition)?|hiring|careers|university|campus|people))*\s+team\b.*$`)
	companyWeekday    = regexp.MustCompile(`(?i)\s+(?:on\s+|this\s+|next\s+)?(?:monday|tuesday|wednesday|thursday|friday|saturday|sunday)\b.*$`)
	companySubmitted  = regexp.MustCompile(`(?i)\s*(?:has been|was|is|were)?\s*successfully submitted.*$`)
	companyArticle    = regexp.MustCompile(`(?i)^(?:the|a|an)\s+`)
	companyRoleAt     = regexp.MustCompile(`(?i)^(.+?)\s+at\s+(.+)$`)
	companyJunk       = regexp.MustCompile(`[^\p{L}\p{N}_\s&.\-]`)
	addressPattern    = regexp.MustCompile(`[\w.+\-]+@([\w\-]+(?:\.[\w\-]+)+)`)
)

// atsDomains carry no company signal: many employers send from them.
var atsDomains = []string{
	"greenhouse.io", "greenhouse-mail.io", "lever.co", "hire.lever.co", "workday.com",
	"myworkday.com", "myworkdayjobs.com", "smartrecruiters.com", "icims.com", "ashbyhq.com",
	"jobvite.com", "taleo.net", "successfactors.com", "bamboohr.com", "workablemail.com",
	"workable.com", "breezy.hr", "recruitee.com", "jazzhr.com", "applytojob.com",
	"eightfold.ai", "oraclecloud.com", "avature.net", "gem.com", "hackerrankforwork.com",
}

// mailboxDomains are personal or job-board providers; also no company signal.
var mailboxDomains = []string{
	"gmail.com", "googlemail.com", "yahoo.com", "outlook.com", "hotmail.com", "live.com",
	"icloud.com", "proton.me", "protonmail.com", "linkedin.com", "indeed.com",
	"glassdoor.com", "joinhandshake.com", "handshake.com", "ziprecruiter.com", "wellfound.com",
}

var companyStopPhrases = map[string]bool{
	"home": true, "weekend": true, "you": true, "your": true, "us": true, "me": true,
	"team": true, "our team": true, "the team": true, "this": true, "it": true, "there": true,
	"linkedin": true, "indeed": true, "glassdoor": true, "handshake": true, "careers": true,
	"jobs": true, "job": true, "noreply": true, "no reply": true, "no-reply": true,
	"notifications": true, "unknown": true, "interview": true, "assessment": true,
	"application": true, "applications": true, "candidate": true, "hiring": true,
	"the next step": true, "next steps": true, "our": true, "join": true, "apply": true,
}

// extractCompany resolves the company with the subject battery, then the
// "<keyword> at <Company>" scan, then the sender domain. Only a tier that
// matches nothing falls through; a matched stop phrase resolves to the sentinel.
func extractCompany(subject, text, from string) string {
	v, ok := firstOf(
		func() (string, bool) {
			m, ok := companySubjectRules.First(subject, cleanCompany, nil)
			return m.Value, ok
		},
		func() (string, bool) {
			m, ok := companyTextRules.First(text, cleanCompany, nil)
			return m.Value, ok
		},
		func() (string, bool) {
			c := cleanCompany(companyFromDomain(from))
			return c, c != ""
		},
	)
	if !ok || isStopPhrase(v) {
		return model.UnknownCompany
	}
	return v
}

// cleanCompany strips trailing noise, punctuation and extra words, then title-cases.
func cleanCompany(s string) string {
	s = collapse(s)
	// "Software Engineer Intern at Acme" keeps only the employer
	if m := companyRoleAt.FindStringSubmatch(s); m != nil && hasRoleKeyword(strings.ToLower(m[1])) {
		s = m[2]
	}
	s = companySubmitted.ReplaceAllString(s, "")
	s = companyWeekday.ReplaceAllString(s, "")
	s = companyTeamSuffix.ReplaceAllString(s, "")
	s = companyArticle.ReplaceAllString(s, "")
	s = companyJunk.ReplaceAllString(s, "")
	s = strings.Trim(collapse(s), ".-& ")
	s = truncateWords(s, 4)
	return titleCase(s)
}

func isStopPhrase(s string) bool {
	return companyStopPhrases[strings.ToLower(s)]
}

// companyFromDomain derives a company from the sender's registrable domain.
// ATS and mailbox-provider domains yield "".
func companyFromDomain(from string) string {
	domain := senderDomain(from)
	if domain == "" || isATSDomain(domain) || matchesDomain(domain, mailboxDomains) {
		return ""
	}

	registrable, err := publicsuffix.EffectiveTLDPlusOne(domain)
	if err != nil {
		labels := strings.Split(domain, ".")
		if len(labels) < 2 {
			return ""
		}
		return labels[len(labels)-2]
	}
	label, _, _ := strings.Cut(registrable, ".")
	return label
}

// senderDomain returns the lower-cased domain of the From address.
func senderDomain(from string) string {
	if from == "" {
		return ""
	}
	if addr, err := mail.ParseAddress(from); err == nil {
		if _, domain, ok := strings.Cut(addr.Address, "@"); ok {
			return strings.ToLower(strings.TrimSpace(domain))
		}
	}
	if m := addressPattern.FindStringSubmatch(from); m != nil {
		return strings.ToLower(m[1])
	}
	return ""
}

func isATSDomain(domain string) bool {
	return matchesDomain(domain, atsDomains)
}

func matchesDomain(domain string, list []string) bool {
	for _, d := range list {
		if domain == d || strings.HasSuffix(domain, "."+d) {
			return true
		}
	}
	return false
}

// mentionsATS reports whether the From header contains any ATS domain.
func mentionsATS(from string) bool {
	lower := strings.ToLower(from)
	for _, d := range atsDomains {
		if strings.Contains(lower, d) {
			return true
		}
	}
	return false
}
