package mailbox

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"jobmail/internal/extractor"
	"jobmail/internal/normalizer"
)

const multipartEML = "From: Acme Recruiting <noreply@greenhouse.io>\r\n" +
	"To: me@example.com\r\n" +
	"Subject: =?UTF-8?Q?Thank_you_for_applying_to_Acme_Corp?=\r\n" +
	"Date: Sun, 10 Mar 2024 09:00:00 -0700\r\n" +
	"Message-ID: <abc123@greenhouse.io>\r\n" +
	"MIME-Version: 1.0\r\n" +
	"Content-Type: multipart/alternative; boundary=\"XYZ\"\r\n" +
	"\r\n" +
	"--XYZ\r\n" +
	"Content-Type: text/plain; charset=iso-8859-1\r\n" +
	"Content-Transfer-Encoding: quoted-printable\r\n" +
	"\r\n" +
	"We received your application for Software Engineer Intern. Caf=E9 chat soon.\r\n" +
	"--XYZ\r\n" +
	"Content-Type: text/html; charset=utf-8\r\n" +
	"\r\n" +
	"<p>We received your application.</p>\r\n" +
	"--XYZ--\r\n"

func TestParseEML(t *testing.T) {
	email, err := ParseEML(strings.NewReader(multipartEML))
	if err != nil {
		t.Fatalf("ParseEML: %v", err)
	}
	if email.ID != "abc123@greenhouse.io" {
		t.Errorf("ID = %q", email.ID)
	}
	if got := normalizer.DecodeHeader(email.Header("Subject")); got != "Thank you for applying to Acme Corp" {
		t.Errorf("Subject = %q", got)
	}
	if email.Payload == nil || len(email.Payload.Parts) != 2 {
		t.Fatalf("payload = %+v", email.Payload)
	}
	body := normalizer.ExtractBody(&email)
	if !strings.Contains(body, "Café chat soon") {
		t.Errorf("quoted-printable latin-1 part not decoded: %q", body)
	}
	if !strings.HasPrefix(email.Snippet, "We received your application for Software Engineer Intern") {
		t.Errorf("Snippet = %q", email.Snippet)
	}

	got, err := extractor.New().Extract(&email)
	if err != nil {
		t.Fatal(err)
	}
	if got.Company != "Acme Corp" || got.Position != "Software Engineer Intern" || got.AppliedDate != "2024-03-10" {
		t.Errorf("extracted = %+v", got)
	}
}

func TestParseEMLSinglePart(t *testing.T) {
	raw := "Subject: Interview invitation\r\nFrom: jobs@initech.com\r\n\r\nPhone interview next week.\r\n"
	email, err := ParseEML(strings.NewReader(raw))
	if err != nil {
		t.Fatal(err)
	}
	if email.Payload == nil || email.Payload.MimeType != "text/plain" || len(email.Payload.Parts) != 0 {
		t.Fatalf("payload = %+v", email.Payload)
	}
	if got := normalizer.ExtractBody(&email); got != "Phone interview next week." {
		t.Errorf("body = %q", got)
	}
}

func TestFromGmail(t *testing.T) {
	data := base64.URLEncoding.EncodeToString([]byte("hello"))
	msg := &gmail.Message{
		Id:       "m1",
		ThreadId: "t1",
		Snippet:  "hello",
		Payload: &gmail.MessagePart{
			MimeType: "multipart/alternative",
			Headers:  []*gmail.MessagePartHeader{{Name: "Subject", Value: "Hi"}},
			Parts: []*gmail.MessagePart{
				{MimeType: "text/plain", Body: &gmail.MessagePartBody{Data: data}},
				nil,
			},
		},
	}

	email := FromGmail(msg)
	if email.ID != "m1" || email.ThreadID != "t1" || email.Header("subject") != "Hi" {
		t.Errorf("email = %+v", email)
	}
	if len(email.Payload.Parts) != 1 || email.Payload.Parts[0].Data != data {
		t.Errorf("parts = %+v", email.Payload.Parts)
	}
	if FromGmail(nil).ID != "" {
		t.Error("nil message should convert to the zero value")
	}
}

func TestGmailFetcherSkipsKnown(t *testing.T) {
	var got []string
	mux := http.NewServeMux()
	mux.HandleFunc("/gmail/v1/users/me/messages", func(w http.ResponseWriter, r *http.Request) {
		if q := r.URL.Query().Get("q"); q != "subject:interview" {
			t.Errorf("query = %q", q)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"messages": []map[string]string{{"id": "a"}, {"id": "b"}, {"id": "c"}},
		})
	})
	mux.HandleFunc("/gmail/v1/users/me/messages/", func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimPrefix(r.URL.Path, "/gmail/v1/users/me/messages/")
		got = append(got, id)
		if id == "c" {
			http.Error(w, "gone", http.StatusNotFound)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"id":      id,
			"snippet": "snippet " + id,
			"payload": map[string]any{
				"mimeType": "text/plain",
				"headers":  []map[string]string{{"name": "Subject", "value": "Interview " + id}},
			},
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	svc, err := gmail.NewService(context.Background(),
		option.WithEndpoint(srv.URL+"/"),
		option.WithoutAuthentication(),
		option.WithHTTPClient(srv.Client()),
	)
	if err != nil {
		t.Fatal(err)
	}

	f := NewGmailFetcher(svc, "me", 10, nil)
	emails, err := f.Fetch(context.Background(), "subject:interview", map[string]struct{}{"a": {}})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if strings.Join(got, ",") != "b,c" {
		t.Errorf("downloaded %v, want b,c", got)
	}
	if len(emails) != 1 || emails[0].ID != "b" || emails[0].Header("Subject") != "Interview b" {
		t.Errorf("emails = %+v", emails)
	}
}

func TestFromGmailKeepsNestedOrder(t *testing.T) {
	msg := &gmail.Message{Id: "m2", Payload: &gmail.MessagePart{
		MimeType: "multipart/mixed",
		Parts: []*gmail.MessagePart{
			{MimeType: "multipart/alternative", Parts: []*gmail.MessagePart{
				{MimeType: "text/plain", Body: &gmail.MessagePartBody{Data: "cGxhaW4"}},
				{MimeType: "text/html", Body: &gmail.MessagePartBody{Data: "aHRtbA"}},
			}},
			{MimeType: "application/pdf", Filename: "cv.pdf"},
		},
	}}

	p := FromGmail(msg).Payload
	if len(p.Parts) != 2 || p.Parts[1].MimeType != "application/pdf" {
		t.Fatalf("top parts = %+v", p.Parts)
	}
	alt := p.Parts[0]
	if len(alt.Parts) != 2 || alt.Parts[0].Data != "cGxhaW4" || alt.Parts[1].MimeType != "text/html" {
		t.Errorf("alternative parts = %+v", alt.Parts)
	}
}

func TestFromGmailDeepTree(t *testing.T) {
	const depth = 5000
	root := &gmail.MessagePart{MimeType: "multipart/mixed"}
	cur := root
	for i := 0; i < depth; i++ {
		child := &gmail.MessagePart{MimeType: "multipart/mixed"}
		cur.Parts = []*gmail.MessagePart{child}
		cur = child
	}
	cur.MimeType = "text/plain"
	cur.Body = &gmail.MessagePartBody{Data: "ZGVlcA"}

	p := *FromGmail(&gmail.Message{Id: "deep", Payload: root}).Payload
	for i := 0; i < depth; i++ {
		if len(p.Parts) != 1 {
			t.Fatalf("level %d has %d parts", i, len(p.Parts))
		}
		p = p.Parts[0]
	}
	if p.MimeType != "text/plain" || p.Data != "ZGVlcA" {
		t.Errorf("leaf = %+v", p)
	}
}
