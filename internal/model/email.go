package model

import "strings"

// Header is a single name/value header as delivered by the mail provider.
type Header struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// MessagePart is one node of the MIME body tree. Data is base64url encoded.
type MessagePart struct {
	MimeType string        `json:"mime_type"`
	Headers  []Header      `json:"headers,omitempty"`
	Data     string        `json:"data,omitempty"`
	Parts    []MessagePart `json:"parts,omitempty"`
}

// RawEmail is the message handed to the pipeline by the mailbox fetcher.
type RawEmail struct {
	ID       string       `json:"id"`
	ThreadID string       `json:"thread_id"`
	Headers  []Header     `json:"headers"`
	Snippet  string       `json:"snippet"`
	Payload  *MessagePart `json:"payload,omitempty"`
}

// Header returns the first header value matching name (case-insensitive).
func (e *RawEmail) Header(name string) string {
	if e == nil {
		return ""
	}
	for _, h := range e.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	// 部分邮件只在 payload 上带 header
	if e.Payload != nil {
		for _, h := range e.Payload.Headers {
			if strings.EqualFold(h.Name, name) {
				return h.Value
			}
		}
	}
	return ""
}
