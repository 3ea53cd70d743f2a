package mailbox

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"

	"jobmail/internal/model"
)

const snippetLen = 200

// ParseEML reads an RFC 5322 message into a RawEmail. Transfer encodings and
// charsets are decoded; every text part is re-encoded as base64url UTF-8 so
// the result looks like a Gmail payload.
func ParseEML(r io.Reader) (model.RawEmail, error) {
	mr, err := mail.CreateReader(r)
	if err != nil && !message.IsUnknownCharset(err) {
		return model.RawEmail{}, fmt.Errorf("parse eml: %w", err)
	}
	defer mr.Close()

	email := model.RawEmail{}
	fields := mr.Header.Fields()
	for fields.Next() {
		email.Headers = append(email.Headers, model.Header{Name: fields.Key(), Value: fields.Value()})
	}
	if id, err := mr.Header.MessageID(); err == nil {
		email.ID = id
	}

	root := &model.MessagePart{MimeType: "multipart/mixed"}
	for {
		p, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil && !message.IsUnknownCharset(err) {
			return model.RawEmail{}, fmt.Errorf("parse eml part: %w", err)
		}
		if p == nil {
			continue
		}

		h, ok := p.Header.(*mail.InlineHeader)
		if !ok {
			// 附件不参与抽取
			continue
		}
		mimeType, _, err := h.ContentType()
		if err != nil || mimeType == "" {
			mimeType = "text/plain"
		}
		if !strings.HasPrefix(mimeType, "text/") {
			continue
		}
		body, err := io.ReadAll(p.Body)
		if err != nil {
			return model.RawEmail{}, fmt.Errorf("read eml part: %w", err)
		}

		root.Parts = append(root.Parts, model.MessagePart{
			MimeType: mimeType,
			Headers:  []model.Header{{Name: "Content-Type", Value: mimeType + "; charset=utf-8"}},
			Data:     base64.RawURLEncoding.EncodeToString(body),
		})
		if email.Snippet == "" && mimeType == "text/plain" {
			email.Snippet = snippet(string(body))
		}
	}

	switch len(root.Parts) {
	case 0:
	case 1:
		email.Payload = &root.Parts[0]
	default:
		email.Payload = root
	}
	return email, nil
}

func snippet(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) <= snippetLen {
		return s
	}
	return string([]rune(s)[:snippetLen])
}
