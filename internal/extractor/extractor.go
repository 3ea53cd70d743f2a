// Package extractor turns a normalized email into an ExtractedApplication using
// ordered regex batteries with fallback tiers. It is pure: no I/O, no logging,
// safe for concurrent use.
package extractor

import (
	"errors"
	"fmt"
	"math"
	"net/mail"
	"strings"
	"time"

	"jobmail/internal/model"
	"jobmail/internal/normalizer"
)

var (
	ErrNilEmail   = errors.New("extractor: nil email")
	ErrExtraction = errors.New("extractor: extraction failed")
)

// dateLayouts are tried when net/mail cannot parse the Date header.
var dateLayouts = []string{
	time.RFC1123Z,
	time.RFC1123,
	"Mon, 2 Jan 2006 15:04:05 -0700 (MST)",
	"2 Jan 2006 15:04:05 -0700",
	time.RFC3339,
	"2006-01-02 15:04:05",
	model.DateLayout,
}

// normalize is swapped in tests to exercise the panic boundary.
var normalize = normalizer.Normalize

// Extractor classifies one email at a time.
type Extractor struct {
	now func() time.Time
}

type Option func(*Extractor)

// WithClock overrides the clock used when the Date header is unparseable.
func WithClock(now func() time.Time) Option {
	return func(x *Extractor) {
		if now != nil {
			x.now = now
		}
	}
}

func New(opts ...Option) *Extractor {
	x := &Extractor{now: time.Now}
	for _, opt := range opts {
		opt(x)
	}
	return x
}

// Extract normalizes and classifies email. Malformed input degrades to the
// sentinel values; an unexpected panic surfaces as ErrExtraction so callers
// can skip the email without side effects.
func (x *Extractor) Extract(email *model.RawEmail) (app *model.ExtractedApplication, err error) {
	if email == nil {
		return nil, ErrNilEmail
	}
	defer func() {
		if r := recover(); r != nil {
			app = nil
			err = fmt.Errorf("%w: email %s: %v", ErrExtraction, email.ID, r)
		}
	}()

	n := normalize(email)
	return x.FromNormalized(email.ID, n), nil
}

// FromNormalized classifies an already normalized email.
func (x *Extractor) FromNormalized(emailID string, n normalizer.Normalized) *model.ExtractedApplication {
	company := extractCompany(n.Subject, n.Text, n.From)
	position := extractPosition(n, company)

	return &model.ExtractedApplication{
		Company:                company,
		Position:               position,
		Status:                 inferStatus(n.Lower),
		AppliedDate:            x.appliedDate(n.Date),
		EmailID:                emailID,
		Subject:                n.Subject,
		Snippet:                n.Snippet,
		From:                   n.From,
		Confidence:             confidence(company, position, n.From),
		IsLikelyNonApplication: likelyNonApplication(n.Lower),
	}
}

// appliedDate renders the Date header as YYYY-MM-DD in the header's own zone.
func (x *Extractor) appliedDate(header string) string {
	if t, ok := ParseDate(header); ok {
		return t.Format(model.DateLayout)
	}
	return x.now().Format(model.DateLayout)
}

// ParseDate parses an RFC 5322 Date header, tolerating common deviations.
func ParseDate(header string) (time.Time, bool) {
	header = strings.TrimSpace(header)
	if header == "" {
		return time.Time{}, false
	}
	if t, err := mail.ParseDate(header); err == nil {
		return t, true
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, header); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func confidence(company, position, from string) float64 {
	score := 0.0
	if company != model.UnknownCompany {
		score += 0.4
	}
	if position != model.UnknownPosition {
		score += 0.4
	}
	if mentionsATS(from) {
		score += 0.2
	}
	return math.Round(math.Min(score, 1)*100) / 100
}
