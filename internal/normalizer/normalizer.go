// Package normalizer turns a RawEmail into plain text ready for pattern matching.
// Every function here is total: decode problems degrade to raw or partial text.
package normalizer

import (
	"mime"
	"strings"

	"github.com/emersion/go-message/charset"
	"golang.org/x/net/html"

	"jobmail/internal/model"
)

// Normalized holds the decoded pieces of one email.
type Normalized struct {
	Subject string
	From    string
	Date    string
	Snippet string
	Body    string

	// Text is the concatenation of all fields, original case.
	Text string
	// Lower is Text lowercased; status and keyword matching run against it.
	Lower string
}

var wordDecoder = &mime.WordDecoder{CharsetReader: charset.Reader}

// DecodeHeader decodes RFC 2047 encoded words and then HTML entities.
// On a decode failure the raw input is returned unchanged.
func DecodeHeader(raw string) string {
	if raw == "" {
		return ""
	}
	decoded, err := wordDecoder.DecodeHeader(raw)
	if err != nil {
		return raw
	}
	return html.UnescapeString(decoded)
}

// Normalize decodes the headers, snippet and body of email.
func Normalize(email *model.RawEmail) Normalized {
	if email == nil {
		return Normalized{}
	}

	n := Normalized{
		Subject: strings.TrimSpace(DecodeHeader(email.Header("Subject"))),
		From:    strings.TrimSpace(DecodeHeader(email.Header("From"))),
		Date:    strings.TrimSpace(DecodeHeader(email.Header("Date"))),
		Snippet: strings.TrimSpace(html.UnescapeString(email.Snippet)),
		Body:    ExtractBody(email),
	}

	parts := make([]string, 0, 5)
	for _, s := range []string{n.Subject, n.From, n.Date, n.Snippet, n.Body} {
		if s != "" {
			parts = append(parts, s)
		}
	}
	n.Text = strings.Join(parts, "\n")
	n.Lower = strings.ToLower(n.Text)
	return n
}
