package model

import "time"

const (
	UnknownCompany  = "Unknown Company"
	UnknownPosition = "Unknown Position"

	// DateLayout is the calendar-date format used by AppliedDate.
	DateLayout = "2006-01-02"

	SourceGmail = "gmail"
)

// ExtractedApplication is the extractor output for a single email.
type ExtractedApplication struct {
	Company                string          `json:"company"`
	Position               string          `json:"position"`
	Status                 ExtractedStatus `json:"status"`
	AppliedDate            string          `json:"applied_date"`
	EmailID                string          `json:"email_id"`
	Subject                string          `json:"subject"`
	Snippet                string          `json:"snippet"`
	From                   string          `json:"from,omitempty"`
	Confidence             float64         `json:"confidence"`
	IsLikelyNonApplication bool            `json:"is_likely_non_application"`

	// Optional fields the merge engine backfills when present.
	Location string `json:"location,omitempty"`
	Stipend  string `json:"stipend,omitempty"`
	Notes    string `json:"notes,omitempty"`
}

// StatusEvent is one entry of a JobApplication's append-only history.
type StatusEvent struct {
	Status  Status    `json:"status"`
	At      time.Time `json:"at"`
	Source  string    `json:"source"`
	EmailID string    `json:"emailId,omitempty"`
	Subject string    `json:"subject,omitempty"`
}

// JobApplication is the persisted, per-user record keyed by normalized company + role.
type JobApplication struct {
	ID                int64         `json:"id"`
	UserID            string        `json:"user_id"`
	Company           string        `json:"company"`
	Role              string        `json:"role"`
	NormalizedCompany string        `json:"normalized_company"`
	NormalizedRole    string        `json:"normalized_role"`
	Location          string        `json:"location,omitempty"`
	Status            Status        `json:"status"`
	Stipend           string        `json:"stipend,omitempty"`
	DateApplied       time.Time     `json:"date_applied"`
	Notes             string        `json:"notes,omitempty"`
	EmailID           string        `json:"email_id,omitempty"`
	StatusHistory     []StatusEvent `json:"status_history"`
	Version           int           `json:"version"`
	CreatedAt         time.Time     `json:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at"`
}

// HasEmail reports whether emailID already contributed to the record.
func (a *JobApplication) HasEmail(emailID string) bool {
	if emailID == "" {
		return false
	}
	if a.EmailID == emailID {
		return true
	}
	for _, h := range a.StatusHistory {
		if h.EmailID == emailID {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so callers can mutate without touching stored state.
func (a *JobApplication) Clone() *JobApplication {
	if a == nil {
		return nil
	}
	c := *a
	c.StatusHistory = append([]StatusEvent(nil), a.StatusHistory...)
	return &c
}

// ProcessedEmail marks an email as considered for a user.
type ProcessedEmail struct {
	UserID      string
	EmailID     string
	ProcessedAt time.Time
}
