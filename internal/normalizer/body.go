package normalizer

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/emersion/go-message/charset"

	"jobmail/internal/model"
)

var (
	breakTags   = regexp.MustCompile(`(?i)<br\s*/?>|</p\s*>`)
	anyTag      = regexp.MustCompile(`<[^>]*>`)
	spaceRun    = regexp.MustCompile(`[ \t\r\f\v\x{00a0}]+`)
	newlineRun  = regexp.MustCompile(`\s*\n\s*`)
	b64Replacer = strings.NewReplacer("-", "+", "_", "/", "\n", "", "\r", "", " ", "")
)

// ExtractBody walks the MIME tree depth-first and concatenates every text/plain
// leaf and every text/html leaf (stripped to text). The walk uses an explicit
// stack so deeply nested multiparts cannot exhaust the goroutine stack.
func ExtractBody(email *model.RawEmail) string {
	if email == nil || email.Payload == nil {
		return ""
	}

	var out []string
	stack := []*model.MessagePart{email.Payload}
	for len(stack) > 0 {
		part := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if len(part.Parts) > 0 {
			// 逆序入栈，保证出栈顺序与文档顺序一致
			for i := len(part.Parts) - 1; i >= 0; i-- {
				stack = append(stack, &part.Parts[i])
			}
			continue
		}
		if part.Data == "" {
			continue
		}

		mimeType := strings.ToLower(part.MimeType)
		if !strings.Contains(mimeType, "text/plain") && !strings.Contains(mimeType, "text/html") {
			continue
		}

		text, err := decodePart(part)
		if err != nil {
			continue
		}
		if strings.Contains(mimeType, "text/html") {
			text = StripHTML(text)
		}
		if text = strings.TrimSpace(text); text != "" {
			out = append(out, text)
		}
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

// decodePart base64url-decodes the payload and converts it to UTF-8.
func decodePart(part *model.MessagePart) (string, error) {
	raw, err := DecodeBase64URL(part.Data)
	if err != nil {
		return "", err
	}

	cs := partCharset(part)
	if cs == "" || cs == "utf-8" || cs == "us-ascii" {
		return strings.ToValidUTF8(string(raw), ""), nil
	}
	r, err := charset.Reader(cs, bytes.NewReader(raw))
	if err != nil {
		return strings.ToValidUTF8(string(raw), ""), nil
	}
	converted, err := io.ReadAll(r)
	if err != nil {
		return strings.ToValidUTF8(string(raw), ""), nil
	}
	return string(converted), nil
}

// DecodeBase64URL decodes Gmail-style base64url data, padded or not.
func DecodeBase64URL(data string) ([]byte, error) {
	s := strings.TrimRight(b64Replacer.Replace(data), "=")
	b, err := base64.RawStdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode base64url payload: %w", err)
	}
	return b, nil
}

func partCharset(part *model.MessagePart) string {
	for _, h := range part.Headers {
		if !strings.EqualFold(h.Name, "Content-Type") {
			continue
		}
		_, params, err := mime.ParseMediaType(h.Value)
		if err != nil {
			return ""
		}
		return strings.ToLower(params["charset"])
	}
	return ""
}

// StripHTML converts an HTML fragment to text: <br> and </p> become newlines,
// tags are dropped, entities are decoded and whitespace is collapsed.
func StripHTML(s string) string {
	s = breakTags.ReplaceAllString(s, "\n")

	var text string
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		text = anyTag.ReplaceAllString(s, " ")
	} else {
		doc.Find("script, style, head").Remove()
		text = doc.Text()
	}
	return collapseSpace(text)
}

func collapseSpace(s string) string {
	s = spaceRun.ReplaceAllString(s, " ")
	s = newlineRun.ReplaceAllString(s, "\n")
	return strings.TrimSpace(s)
}
