package mq

import "time"

// ApplicationEventPayload is written to the outbox when a job application is
// created or changed by a merge.
type ApplicationEventPayload struct {
	TraceID       string    `json:"trace_id,omitempty"`
	UserID        string    `json:"user_id"`
	ApplicationID int64     `json:"application_id"`
	EmailID       string    `json:"email_id,omitempty"`
	Company       string    `json:"company"`
	Role          string    `json:"role"`
	Status        string    `json:"status"`
	Version       int       `json:"version"`
	OccurredAt    time.Time `json:"occurred_at"`
}
