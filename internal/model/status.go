package model

// ExtractedStatus is the coarse vocabulary produced by the extractor.
type ExtractedStatus string

const (
	ExtractedApplied    ExtractedStatus = "Applied"
	ExtractedAssessment ExtractedStatus = "Online Assessment"
	ExtractedInterview  ExtractedStatus = "Interview"
	ExtractedAccepted   ExtractedStatus = "Accepted"
	ExtractedRejected   ExtractedStatus = "Rejected"
)

// Status is the canonical vocabulary stored on a JobApplication.
type Status string

const (
	StatusApplied            Status = "Applied"
	StatusOnlineAssessment   Status = "Online Assessment"
	StatusPhoneInterview     Status = "Phone Interview"
	StatusTechnicalInterview Status = "Technical Interview"
	StatusFinalInterview     Status = "Final Interview"
	StatusWaitlisted         Status = "Waitlisted"
	StatusAccepted           Status = "Accepted"
	StatusRejected           Status = "Rejected"
	StatusWithdrawn          Status = "Withdrawn"
)

// Ranking orders stored statuses and maps extractor output onto them.
// The merge engine receives it explicitly so both vocabularies stay in one place.
type Ranking struct {
	Ranks map[Status]int
	Map   func(ExtractedStatus) Status
}

// DefaultRanking returns the standard progression:
// Applied < Online Assessment < Phone < Technical < Final Interview < terminal states.
func DefaultRanking() Ranking {
	return Ranking{
		Ranks: map[Status]int{
			StatusApplied:            1,
			StatusOnlineAssessment:   2,
			StatusPhoneInterview:     3,
			StatusTechnicalInterview: 4,
			StatusFinalInterview:     5,
			StatusWaitlisted:         6,
			StatusAccepted:           6,
			StatusRejected:           6,
			StatusWithdrawn:          6,
		},
		Map: MapExtractedStatus,
	}
}

// MapExtractedStatus converts the extractor vocabulary into the stored one.
// A generic interview signal maps to the lowest interview stage so it can never
// jump past a more specific stage that is already stored.
func MapExtractedStatus(s ExtractedStatus) Status {
	switch s {
	case ExtractedAssessment:
		return StatusOnlineAssessment
	case ExtractedInterview:
		return StatusPhoneInterview
	case ExtractedAccepted:
		return StatusAccepted
	case ExtractedRejected:
		return StatusRejected
	default:
		return StatusApplied
	}
}

// Rank returns the rank of s; unknown statuses rank 0.
func (r Ranking) Rank(s Status) int {
	return r.Ranks[s]
}

// Resolve maps an extractor status, falling back to Applied when empty.
func (r Ranking) Resolve(s ExtractedStatus) Status {
	if s == "" {
		return StatusApplied
	}
	if r.Map == nil {
		return MapExtractedStatus(s)
	}
	return r.Map(s)
}

// Valid reports whether s belongs to the stored vocabulary.
func (r Ranking) Valid(s Status) bool {
	_, ok := r.Ranks[s]
	return ok
}
