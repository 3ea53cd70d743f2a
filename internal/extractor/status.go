package extractor

import (
	"regexp"

	"jobmail/internal/model"
)

type statusRule struct {
	status  model.ExtractedStatus
	pattern *regexp.Regexp
	// suppress vetoes the rule when it matches the same text.
	suppress *regexp.Regexp
}

var marketingTerms = regexp.MustCompile(`\b(?:discount|coupon|reward|rewards|free|music|sale)\b`)

// statusRules are checked in priority order against lower-cased text.
var statusRules = []statusRule{
	{
		status:   model.ExtractedAccepted,
		pattern:  regexp.MustCompile(`offer letter|\bextend(?:ed|ing)?\s+(?:you\s+)?(?:an?\s+)?(?:formal\s+)?offer\b|congratulations[\s\S]{0,200}?\boffer\b`),
		suppress: marketingTerms,
	},
	{
		status:  model.ExtractedInterview,
		pattern: regexp.MustCompile(`final[\s-]+(?:round\s+)?interview|\bon-?site\b|technical interview|phone interview|screening call|phone screen`),
	},
	{
		status:  model.ExtractedAssessment,
		pattern: regexp.MustCompile(`online assessment|\bassessment\b|hackerrank|coding challenge|\boa\b`),
	},
	{
		status:  model.ExtractedRejected,
		pattern: regexp.MustCompile(`regret to inform|unfortunately|\bnot (?:be )?moving forward|\brejected\b`),
	},
	{
		status:  model.ExtractedApplied,
		pattern: regexp.MustCompile(`thank(?:s| you) for applying|application (?:has been )?received|we(?: have|'ve)? received your application|successfully submitted|your application`),
	},
}

var nonApplicationSignals = regexp.MustCompile(`\bnewsletter\b|\bdigest\b|\bwebinar\b|hiring event|career fair|job alert|recommended jobs|jobs you may be interested in|new jobs for you|job recommendations|\bunsubscribe from job\b`)

// inferStatus returns the first status family that matches lower.
func inferStatus(lower string) model.ExtractedStatus {
	for _, r := range statusRules {
		if !r.pattern.MatchString(lower) {
			continue
		}
		if r.suppress != nil && r.suppress.MatchString(lower) {
			continue
		}
		return r.status
	}
	return model.ExtractedApplied
}

// likelyNonApplication flags newsletters, digests and job-board recommendations.
// It is advisory and independent of the inferred status.
func likelyNonApplication(lower string) bool {
	return nonApplicationSignals.MatchString(lower)
}
