package extractor

import (
	"encoding/base64"
	"errors"
	"strings"
	"testing"
	"time"

	"jobmail/internal/model"
	"jobmail/internal/normalizer"
)

func rawEmail(id, subject, from, date, mime, body string) *model.RawEmail {
	e := &model.RawEmail{ID: id}
	for _, h := range []model.Header{{Name: "Subject", Value: subject}, {Name: "From", Value: from}, {Name: "Date", Value: date}} {
		if h.Value != "" {
			e.Headers = append(e.Headers, h)
		}
	}
	if body != "" {
		e.Payload = &model.MessagePart{MimeType: mime, Data: base64.RawURLEncoding.EncodeToString([]byte(body))}
	}
	return e
}

func fixedClock() time.Time {
	return time.Date(2025, 1, 2, 15, 0, 0, 0, time.UTC)
}

func TestExtractGreenhouseThankYou(t *testing.T) {
	x := New()
	email := rawEmail("gh-1",
		"Thank you for applying to Acme Corp",
		"noreply@greenhouse.io",
		"Sun, 10 Mar 2024 09:00:00 -0700",
		"text/plain",
		"We received your application for Software Engineer Intern.")

	got, err := x.Extract(email)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if got.Company != "Acme Corp" {
		t.Errorf("Company = %q", got.Company)
	}
	if got.Position != "Software Engineer Intern" {
		t.Errorf("Position = %q", got.Position)
	}
	if got.Status != model.ExtractedApplied {
		t.Errorf("Status = %q", got.Status)
	}
	if got.Confidence != 1.0 {
		t.Errorf("Confidence = %v, want 1.0", got.Confidence)
	}
	if got.AppliedDate != "2024-03-10" {
		t.Errorf("AppliedDate = %q", got.AppliedDate)
	}
	if got.EmailID != "gh-1" || got.Subject != "Thank you for applying to Acme Corp" {
		t.Errorf("unexpected identity fields: %+v", got)
	}
	if got.IsLikelyNonApplication {
		t.Error("IsLikelyNonApplication should be false")
	}
}

func TestExtractInterviewFromCompanyDomain(t *testing.T) {
	x := New(WithClock(fixedClock))
	email := rawEmail("in-1",
		"Interview invitation",
		"Recruiting <jobs@initech.com>",
		"",
		"text/html; charset=utf-8",
		"<p>We&#39;d like to invite you to a phone interview for the Backend Developer role.</p>")

	got, err := x.Extract(email)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if got.Company != "Initech" {
		t.Errorf("Company = %q", got.Company)
	}
	if got.Position != "Backend Developer" {
		t.Errorf("Position = %q", got.Position)
	}
	if got.Status != model.ExtractedInterview {
		t.Errorf("Status = %q", got.Status)
	}
	if got.Confidence != 0.8 {
		t.Errorf("Confidence = %v, want 0.8", got.Confidence)
	}
	if got.AppliedDate != "2025-01-02" {
		t.Errorf("AppliedDate = %q, want clock date", got.AppliedDate)
	}
}

func TestExtractMarketingSuppressesOffer(t *testing.T) {
	x := New()
	email := rawEmail("mk-1",
		"Your weekly deals",
		"deals@shop.example.com",
		"Tue, 05 Mar 2024 10:00:00 +0000",
		"text/plain",
		"50% off your next order, free shipping offer. Congratulations, you earned an offer!")

	got, err := x.Extract(email)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if got.Status == model.ExtractedAccepted {
		t.Fatal("marketing text must not be classified as Accepted")
	}
	if got.Status != model.ExtractedApplied {
		t.Errorf("Status = %q, want Applied", got.Status)
	}
}

func TestExtractSentinelTotality(t *testing.T) {
	x := New(WithClock(fixedClock))
	inputs := map[string]*model.RawEmail{
		"empty": {},
		"garbage payload": {
			ID:      "g",
			Payload: &model.MessagePart{MimeType: "text/plain", Data: "%%%not base64%%%"},
		},
		"unparseable date": {Headers: []model.Header{{Name: "Date", Value: "yesterday-ish"}}},
	}
	for name, email := range inputs {
		t.Run(name, func(t *testing.T) {
			got, err := x.Extract(email)
			if err != nil {
				t.Fatalf("Extract: %v", err)
			}
			if got.Company != model.UnknownCompany {
				t.Errorf("Company = %q", got.Company)
			}
			if got.Position != model.UnknownPosition {
				t.Errorf("Position = %q", got.Position)
			}
			if got.Status != model.ExtractedApplied {
				t.Errorf("Status = %q", got.Status)
			}
			if got.Confidence != 0 {
				t.Errorf("Confidence = %v", got.Confidence)
			}
			if got.AppliedDate != "2025-01-02" {
				t.Errorf("AppliedDate = %q", got.AppliedDate)
			}
		})
	}
}

func TestExtractStopPhraseCompany(t *testing.T) {
	email := rawEmail("sp-1",
		"Thank you for applying to Home",
		"hr@acme.com",
		"Sun, 10 Mar 2024 09:00:00 -0700",
		"text/plain",
		"We will be in touch.")

	got, err := New().Extract(email)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if got.Company != model.UnknownCompany {
		t.Errorf("Company = %q, want %q", got.Company, model.UnknownCompany)
	}
	if got.Confidence != 0 {
		t.Errorf("Confidence = %v, want 0", got.Confidence)
	}
}

func TestExtractRecoversPanic(t *testing.T) {
	orig := normalize
	normalize = func(*model.RawEmail) normalizer.Normalized {
		panic("corrupt part tree")
	}
	defer func() { normalize = orig }()

	got, err := New().Extract(&model.RawEmail{ID: "boom"})
	if !errors.Is(err, ErrExtraction) {
		t.Fatalf("err = %v, want ErrExtraction", err)
	}
	if got != nil {
		t.Errorf("app = %+v, want nil", got)
	}
	if !strings.Contains(err.Error(), "boom") {
		t.Errorf("err = %q, want the email id", err)
	}
}

func TestExtractNil(t *testing.T) {
	if _, err := New().Extract(nil); !errors.Is(err, ErrNilEmail) {
		t.Errorf("err = %v, want ErrNilEmail", err)
	}
}

func TestInferStatus(t *testing.T) {
	tests := []struct {
		text string
		want model.ExtractedStatus
	}{
		{"congratulations! please find your offer letter attached", model.ExtractedAccepted},
		{"we are pleased to extend you an offer for the data analyst role", model.ExtractedAccepted},
		{"we'd like to schedule a phone screen next week", model.ExtractedInterview},
		{"unfortunately the final interview has been moved", model.ExtractedInterview},
		{"please complete the hackerrank coding challenge", model.ExtractedAssessment},
		{"your oa link expires in 7 days", model.ExtractedAssessment},
		{"we regret to inform you that we will not be moving forward", model.ExtractedRejected},
		{"thank you for applying", model.ExtractedApplied},
		{"", model.ExtractedApplied},
		{"congratulations, you won a free offer on music", model.ExtractedApplied},
	}
	for _, tt := range tests {
		if got := inferStatus(tt.text); got != tt.want {
			t.Errorf("inferStatus(%q) = %q, want %q", tt.text, got, tt.want)
		}
	}
}

func TestLikelyNonApplication(t *testing.T) {
	if !likelyNonApplication("your weekly job alert: recommended jobs for you") {
		t.Error("job alert should be flagged")
	}
	if !likelyNonApplication("join our webinar on careers in tech") {
		t.Error("webinar should be flagged")
	}
	if likelyNonApplication("thank you for applying to acme") {
		t.Error("confirmation should not be flagged")
	}
}

func TestExtractCompany(t *testing.T) {
	tests := []struct {
		name, subject, text, from string
		want                      string
	}{
		{"you applied to", "You applied to Stripe!", "", "", "Stripe"},
		{"team suffix", "Application to Globex Recruiting Team", "", "", "Globex"},
		{"weekday", "Application to Umbrella on Monday", "", "", "Umbrella"},
		{"role at company", "Thanks for applying to Software Engineer Intern at Acme", "", "", "Acme"},
		{"acronym", "Thank you for applying to ibm", "", "", "IBM"},
		{"keyword at", "Interview invitation", "excited about your internship at Initech for the summer", "", "Initech"},
		{"sender domain", "Update", "", "Jane <jane@mail.hooli.com>", "Hooli"},
		{"ats domain rejected", "Update", "", "no-reply@lever.co", model.UnknownCompany},
		{"mailbox domain rejected", "Update", "", "someone@gmail.com", model.UnknownCompany},
		{"stop phrase", "Welcome to Home", "", "", model.UnknownCompany},
		{"stop phrase does not fall back to domain", "Thank you for applying to Home", "", "hr@acme.com", model.UnknownCompany},
		{"stop phrase from keyword scan", "Update", "your application at careers is complete", "hr@acme.com", model.UnknownCompany},
		{"no match falls back to domain", "Quick update", "", "hr@acme.com", "Acme"},
		{"nothing", "", "", "", model.UnknownCompany},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := extractCompany(tt.subject, tt.text, tt.from); got != tt.want {
				t.Errorf("extractCompany = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExtractPosition(t *testing.T) {
	tests := []struct {
		name string
		n    normalizer.Normalized
		want string
	}{
		{
			name: "stage for",
			n:    normalizer.Normalized{Text: "Invitation: interview for the Backend Developer position"},
			want: "Backend Developer",
		},
		{
			name: "subject split",
			n: normalizer.Normalized{
				Subject: "Solutions Architect | Next steps",
				Text:    "Solutions Architect | Next steps",
			},
			want: "Solutions Architect",
		},
		{
			name: "candidate scoring",
			n: normalizer.Normalized{
				Subject: "Quick update",
				Body:    "We loved meeting you. The Marketing Coordinator role is still open",
				Text:    "Quick update\nWe loved meeting you. The Marketing Coordinator role is still open",
			},
			want: "Marketing Coordinator",
		},
		{
			name: "unresolved",
			n:    normalizer.Normalized{Subject: "Hello", Text: "Hello\nsee you soon"},
			want: model.UnknownPosition,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := extractPosition(tt.n, model.UnknownCompany); got != tt.want {
				t.Errorf("extractPosition = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestBestCandidate(t *testing.T) {
	got, ok := bestCandidate([]source{
		{text: "Robotics Technician", weight: 2},
		{text: "Robotics Summer Intern", weight: 1},
	})
	if !ok || got != "Robotics Summer Intern" {
		t.Errorf("intern phrase should win, got %q", got)
	}

	got, _ = bestCandidate([]source{
		{text: "Payroll Specialist", weight: 1},
		{text: "Legal Specialist", weight: 1},
	})
	if got != "Legal Specialist" {
		t.Errorf("tie should go to the shorter phrase, got %q", got)
	}

	if _, ok := bestCandidate([]source{{text: "nothing to see", weight: 2}}); ok {
		t.Error("expected no candidate")
	}
}

func TestStripCompanyPrefix(t *testing.T) {
	tests := []struct{ position, company, want string }{
		{"Acme's Software Engineer", "Acme", "Software Engineer"},
		{"Acme Data Analyst", "Acme", "Data Analyst"},
		{"Acme", "Acme", "Acme"},
		{"Data Analyst", model.UnknownCompany, "Data Analyst"},
	}
	for _, tt := range tests {
		if got := stripCompanyPrefix(tt.position, tt.company); got != tt.want {
			t.Errorf("stripCompanyPrefix(%q, %q) = %q, want %q", tt.position, tt.company, got, tt.want)
		}
	}
}

func TestTitleCase(t *testing.T) {
	tests := []struct{ in, want string }{
		{"acme corp", "Acme Corp"},
		{"bank of america", "Bank of America"},
		{"ibm research", "IBM Research"},
		{"JP morgan", "JP Morgan"},
		{"full-stack developer", "Full-Stack Developer"},
	}
	for _, tt := range tests {
		if got := titleCase(tt.in); got != tt.want {
			t.Errorf("titleCase(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"Sun, 10 Mar 2024 23:30:00 -0800", "2024-03-10", true},
		{"10 Mar 2024 09:00:00 +0000", "2024-03-10", true},
		{"2024-02-01", "2024-02-01", true},
		{"not a date", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := ParseDate(tt.in)
		if ok != tt.ok {
			t.Errorf("ParseDate(%q) ok = %v", tt.in, ok)
			continue
		}
		if ok && got.Format(model.DateLayout) != tt.want {
			t.Errorf("ParseDate(%q) = %s, want %s", tt.in, got.Format(model.DateLayout), tt.want)
		}
	}
}
