package mq

import "jobmail/internal/model"

// EmailFetchedPayload is published by the scanner for every candidate email
// and consumed by the worker.
type EmailFetchedPayload struct {
	UserID  string         `json:"user_id"`
	TraceID string         `json:"trace_id,omitempty"`
	Email   model.RawEmail `json:"email"`
}
