// Package mailbox reads candidate emails from Gmail or from .eml files and
// converts them into model.RawEmail.
package mailbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"jobmail/internal/model"
	"jobmail/pkg/circuitbreaker"
	"jobmail/pkg/config"
)

// NewGmailService builds a read-only Gmail client from the OAuth client
// credentials and a previously saved token.
func NewGmailService(ctx context.Context, cfg config.GmailConfig) (*gmail.Service, error) {
	b, err := os.ReadFile(cfg.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("read gmail credentials: %w", err)
	}
	oauthCfg, err := google.ConfigFromJSON(b, gmail.GmailReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("parse gmail credentials: %w", err)
	}
	tok, err := tokenFromFile(cfg.TokenFile)
	if err != nil {
		return nil, fmt.Errorf("load gmail token %s: %w", cfg.TokenFile, err)
	}

	srv, err := gmail.NewService(ctx, option.WithTokenSource(oauthCfg.TokenSource(ctx, tok)))
	if err != nil {
		return nil, fmt.Errorf("create gmail client: %w", err)
	}
	return srv, nil
}

func tokenFromFile(path string) (*oauth2.Token, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	tok := &oauth2.Token{}
	if err := json.NewDecoder(f).Decode(tok); err != nil {
		return nil, err
	}
	return tok, nil
}

// GmailFetcher lists messages matching a search query and downloads the ones
// not seen before.
type GmailFetcher struct {
	srv        *gmail.Service
	userID     string
	maxResults int64
	breaker    *circuitbreaker.CircuitBreaker
	logger     *zap.Logger
}

func NewGmailFetcher(srv *gmail.Service, userID string, maxResults int64, logger *zap.Logger) *GmailFetcher {
	if userID == "" {
		userID = "me"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cbCfg := circuitbreaker.DefaultConfig()
	cbCfg.OnStateChange = func(from, to circuitbreaker.State) {
		logger.Warn("Gmail circuit breaker state changed",
			zap.String("from", from.String()),
			zap.String("to", to.String()),
		)
	}
	return &GmailFetcher{
		srv:        srv,
		userID:     userID,
		maxResults: maxResults,
		breaker:    circuitbreaker.New(cbCfg),
		logger:     logger,
	}
}

// Fetch returns up to maxResults messages matching query whose ids are not in
// known. A message that fails to download is logged and skipped.
func (f *GmailFetcher) Fetch(ctx context.Context, query string, known map[string]struct{}) ([]model.RawEmail, error) {
	var (
		ids       []string
		pageToken string
	)
	for {
		call := f.srv.Users.Messages.List(f.userID).Q(query).Context(ctx)
		if f.maxResults > 0 {
			call = call.MaxResults(f.maxResults)
		}
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		var resp *gmail.ListMessagesResponse
		err := f.breaker.Execute(func() (err error) {
			resp, err = call.Do()
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("list gmail messages: %w", err)
		}
		for _, m := range resp.Messages {
			if _, ok := known[m.Id]; ok {
				continue
			}
			ids = append(ids, m.Id)
		}
		pageToken = resp.NextPageToken
		if pageToken == "" || (f.maxResults > 0 && int64(len(ids)) >= f.maxResults) {
			break
		}
	}
	if f.maxResults > 0 && int64(len(ids)) > f.maxResults {
		ids = ids[:f.maxResults]
	}

	emails := make([]model.RawEmail, 0, len(ids))
	for _, id := range ids {
		var msg *gmail.Message
		err := f.breaker.Execute(func() (err error) {
			msg, err = f.srv.Users.Messages.Get(f.userID, id).Format("full").Context(ctx).Do()
			return err
		})
		if err != nil {
			if ctx.Err() != nil {
				return emails, ctx.Err()
			}
			if errors.Is(err, circuitbreaker.ErrOpen) {
				return emails, fmt.Errorf("get gmail message %s: %w", id, err)
			}
			f.logger.Warn("Failed to get gmail message", zap.String("email_id", id), zap.Error(err))
			continue
		}
		emails = append(emails, FromGmail(msg))
	}

	f.logger.Info("Fetched gmail messages",
		zap.String("query", query),
		zap.Int("new", len(emails)),
		zap.Int("known", len(known)),
	)
	return emails, nil
}

// FromGmail converts the API representation into a RawEmail.
func FromGmail(msg *gmail.Message) model.RawEmail {
	if msg == nil {
		return model.RawEmail{}
	}
	email := model.RawEmail{
		ID:       msg.Id,
		ThreadID: msg.ThreadId,
		Snippet:  msg.Snippet,
	}
	if msg.Payload != nil {
		email.Headers = headersFromGmail(msg.Payload.Headers)
		p := partFromGmail(msg.Payload)
		email.Payload = &p
	}
	return email
}

// partFromGmail copies the part tree with an explicit stack. Children are
// allocated before their slots are pushed, so the pointers stay valid.
func partFromGmail(root *gmail.MessagePart) model.MessagePart {
	type frame struct {
		src *gmail.MessagePart
		dst *model.MessagePart
	}

	var out model.MessagePart
	stack := []frame{{src: root, dst: &out}}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		f.dst.MimeType = f.src.MimeType
		f.dst.Headers = headersFromGmail(f.src.Headers)
		if f.src.Body != nil {
			f.dst.Data = f.src.Body.Data
		}

		children := make([]*gmail.MessagePart, 0, len(f.src.Parts))
		for _, c := range f.src.Parts {
			if c != nil {
				children = append(children, c)
			}
		}
		if len(children) == 0 {
			continue
		}
		f.dst.Parts = make([]model.MessagePart, len(children))
		for i, c := range children {
			stack = append(stack, frame{src: c, dst: &f.dst.Parts[i]})
		}
	}
	return out
}

func headersFromGmail(hs []*gmail.MessagePartHeader) []model.Header {
	if len(hs) == 0 {
		return nil
	}
	out := make([]model.Header, 0, len(hs))
	for _, h := range hs {
		if h == nil {
			continue
		}
		out = append(out, model.Header{Name: h.Name, Value: h.Value})
	}
	return out
}
