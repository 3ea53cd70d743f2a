package mqhandler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	mqcontracts "jobmail/contracts/mq"
	"jobmail/internal/extractor"
	"jobmail/internal/merge"
	"jobmail/internal/model"
	"jobmail/internal/repository"
	"jobmail/pkg/config"
	"jobmail/pkg/lock"
)

type fakeDeduper struct {
	mu   sync.Mutex
	seen map[string]bool
}

func (d *fakeDeduper) AcquireOnce(_ context.Context, handler, userID, emailID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.seen == nil {
		d.seen = make(map[string]bool)
	}
	key := handler + userID + emailID
	if d.seen[key] {
		return false
	}
	d.seen[key] = true
	return true
}

func (d *fakeDeduper) Release(_ context.Context, handler, userID, emailID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.seen, handler+userID+emailID)
	return nil
}

type fakeRetryCounter struct {
	counts map[string]int64
}

func (r *fakeRetryCounter) IncrementAndGet(_ context.Context, key string) (int64, error) {
	if r.counts == nil {
		r.counts = make(map[string]int64)
	}
	r.counts[key]++
	return r.counts[key], nil
}

func (r *fakeRetryCounter) Reset(_ context.Context, key string) error {
	delete(r.counts, key)
	return nil
}

type dead struct {
	routingKey string
	errorType  string
}

type fakeDLQ struct {
	messages []dead
}

func (f *fakeDLQ) PublishToDLQ(_ context.Context, routingKey string, _ []byte, errorType, _ string) error {
	f.messages = append(f.messages, dead{routingKey: routingKey, errorType: errorType})
	return nil
}

type failingMerger struct {
	err   error
	calls int
}

func (m *failingMerger) Merge(context.Context, string, *model.ExtractedApplication) (merge.Outcome, error) {
	m.calls++
	return merge.Outcome{}, m.err
}

type failingExtractor struct {
	calls int
}

func (x *failingExtractor) Extract(email *model.RawEmail) (*model.ExtractedApplication, error) {
	x.calls++
	return nil, fmt.Errorf("%w: email %s: runtime error: index out of range", extractor.ErrExtraction, email.ID)
}

type downRetryCounter struct{}

func (downRetryCounter) IncrementAndGet(context.Context, string) (int64, error) {
	return 0, errors.New("dial tcp 127.0.0.1:6379: connect: connection refused")
}

func (downRetryCounter) Reset(context.Context, string) error { return nil }

type fixture struct {
	handler *EmailFetchedHandler
	repo    *repository.MemoryJobRepository
	dedup   *fakeDeduper
	dlq     *fakeDLQ
}

func newFixture(t *testing.T, pipeline config.PipelineConfig, merger Merger) fixture {
	t.Helper()
	repo := repository.NewMemoryJobRepository()
	if merger == nil {
		merger = merge.NewEngine(repo, merge.WithLocker(lock.NewKeyedMutex()))
	}
	f := fixture{repo: repo, dedup: &fakeDeduper{}, dlq: &fakeDLQ{}}
	f.handler = NewEmailFetchedHandler(
		extractor.New(),
		merger,
		repo,
		f.dedup,
		&fakeRetryCounter{},
		f.dlq,
		pipeline,
		zap.NewNop(),
	)
	return f
}

func fetched(t *testing.T, userID, emailID, subject, from, body string) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(mqcontracts.EmailFetchedPayload{
		UserID:  userID,
		TraceID: "trace-" + emailID,
		Email: model.RawEmail{
			ID: emailID,
			Headers: []model.Header{
				{Name: "Subject", Value: subject},
				{Name: "From", Value: from},
				{Name: "Date", Value: "Sun, 10 Mar 2024 09:00:00 -0700"},
			},
			Payload: &model.MessagePart{
				MimeType: "text/plain",
				Data:     base64.URLEncoding.EncodeToString([]byte(body)),
			},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	return raw
}

func greenhouse(t *testing.T, emailID string) json.RawMessage {
	return fetched(t, "u1", emailID,
		"Thank you for applying to Acme Corp",
		"noreply@greenhouse.io",
		"We received your application for Software Engineer Intern.")
}

func TestHandleMergesAndMarksProcessed(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, config.PipelineConfig{MaxRetries: 3}, nil)

	if err := f.handler.Handle(ctx, greenhouse(t, "E1")); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	apps, _ := f.repo.ListByUser(ctx, "u1")
	if len(apps) != 1 {
		t.Fatalf("applications = %d, want 1", len(apps))
	}
	if apps[0].Company != "Acme Corp" || apps[0].Status != model.StatusApplied {
		t.Errorf("application = %+v", apps[0])
	}
	if ok, _ := f.repo.IsProcessed(ctx, "u1", "E1"); !ok {
		t.Error("email should be marked processed")
	}

	// 重投递：已处理，直接跳过
	f.dedup.Release(ctx, handlerName, "u1", "E1")
	if err := f.handler.Handle(ctx, greenhouse(t, "E1")); err != nil {
		t.Fatalf("redelivery: %v", err)
	}
	apps, _ = f.repo.ListByUser(ctx, "u1")
	if len(apps[0].StatusHistory) != 1 {
		t.Errorf("redelivery changed history: %+v", apps[0].StatusHistory)
	}
}

func TestHandleBadPayloadGoesToDLQ(t *testing.T) {
	f := newFixture(t, config.PipelineConfig{}, nil)

	for _, raw := range []string{`{not json`, `{"user_id":"u1","email":{}}`} {
		if err := f.handler.Handle(context.Background(), json.RawMessage(raw)); err != nil {
			t.Errorf("Handle(%s) = %v, want ack", raw, err)
		}
	}
	if len(f.dlq.messages) != 2 {
		t.Fatalf("dlq = %+v", f.dlq.messages)
	}
	for _, m := range f.dlq.messages {
		if m.errorType != "bad_payload" || m.routingKey != "job.email.fetched" {
			t.Errorf("dlq message = %+v", m)
		}
	}
}

func TestHandleDiscards(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name     string
		pipeline config.PipelineConfig
		raw      func(t *testing.T) json.RawMessage
	}{
		{
			name:     "low confidence",
			pipeline: config.PipelineConfig{MinConfidence: 0.5},
			raw: func(t *testing.T) json.RawMessage {
				return fetched(t, "u1", "L1", "Hello", "friend@gmail.com", "see you soon")
			},
		},
		{
			name:     "non application",
			pipeline: config.PipelineConfig{DiscardNonApplications: true},
			raw: func(t *testing.T) json.RawMessage {
				return fetched(t, "u1", "N1", "Your job alert for Acme Corp",
					"alerts@greenhouse.io", "Recommended jobs: Data Analyst at Acme Corp")
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.pipeline, nil)
			if err := f.handler.Handle(ctx, tt.raw(t)); err != nil {
				t.Fatalf("Handle: %v", err)
			}
			apps, _ := f.repo.ListByUser(ctx, "u1")
			if len(apps) != 0 {
				t.Errorf("discarded email created %d applications", len(apps))
			}
		})
	}
}

func TestHandleRetriesThenDeadLetters(t *testing.T) {
	ctx := context.Background()
	merger := &failingMerger{err: fmt.Errorf("merge: gave up: %w", merge.ErrConflict)}
	f := newFixture(t, config.PipelineConfig{MaxRetries: 2}, merger)
	raw := greenhouse(t, "E1")

	for i := 1; i <= 2; i++ {
		err := f.handler.Handle(ctx, raw)
		if err == nil || !errors.Is(err, merge.ErrConflict) {
			t.Fatalf("attempt %d: err = %v, want redelivery", i, err)
		}
	}
	if err := f.handler.Handle(ctx, raw); err != nil {
		t.Fatalf("final attempt should ack, got %v", err)
	}
	if merger.calls != 3 {
		t.Errorf("merge calls = %d, want 3", merger.calls)
	}
	if len(f.dlq.messages) != 1 || f.dlq.messages[0].errorType != "merge_conflict" {
		t.Errorf("dlq = %+v", f.dlq.messages)
	}
	if ok, _ := f.repo.IsProcessed(ctx, "u1", "E1"); ok {
		t.Error("failed email must not be marked processed")
	}
}

func TestHandleNonRetryableDeadLettersImmediately(t *testing.T) {
	merger := &failingMerger{err: errors.New("boom")}
	f := newFixture(t, config.PipelineConfig{MaxRetries: 5}, merger)

	if err := f.handler.Handle(context.Background(), greenhouse(t, "E1")); err != nil {
		t.Fatalf("Handle = %v, want ack", err)
	}
	if len(f.dlq.messages) != 1 || f.dlq.messages[0].errorType != "unknown_error" {
		t.Errorf("dlq = %+v", f.dlq.messages)
	}
}

func TestHandleExtractionFailureIsMarkedProcessed(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, config.PipelineConfig{MaxRetries: 5}, nil)
	x := &failingExtractor{}
	f.handler.extractor = x
	raw := greenhouse(t, "E1")

	for i := 0; i < 3; i++ {
		if err := f.handler.Handle(ctx, raw); err != nil {
			t.Fatalf("Handle #%d = %v, want ack", i+1, err)
		}
	}

	if x.calls != 1 {
		t.Errorf("extract calls = %d, want 1", x.calls)
	}
	if len(f.dlq.messages) != 1 || f.dlq.messages[0].errorType != "extraction_error" {
		t.Errorf("dlq = %+v, want one extraction_error", f.dlq.messages)
	}
	if ok, _ := f.repo.IsProcessed(ctx, "u1", "E1"); !ok {
		t.Error("unextractable email should be marked processed")
	}
	known, err := f.repo.KnownEmailIDs(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := known["E1"]; !ok {
		t.Errorf("KnownEmailIDs = %v, want E1", known)
	}
	apps, _ := f.repo.ListByUser(ctx, "u1")
	if len(apps) != 0 {
		t.Errorf("apps = %d, want none", len(apps))
	}
}

func TestHandleWarnsWhenRetryCounterIsDown(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	repo := repository.NewMemoryJobRepository()
	h := NewEmailFetchedHandler(
		extractor.New(),
		&failingMerger{err: fmt.Errorf("merge: gave up: %w", merge.ErrConflict)},
		repo,
		&fakeDeduper{},
		downRetryCounter{},
		&fakeDLQ{},
		config.PipelineConfig{MaxRetries: 2},
		zap.New(core),
	)

	if err := h.Handle(context.Background(), greenhouse(t, "E1")); err == nil {
		t.Fatal("retryable failure should be redelivered")
	}

	entries := logs.FilterMessage("Requeueing without retry bound, retry counter unavailable").All()
	if len(entries) != 1 {
		t.Fatalf("warn entries = %d, want 1", len(entries))
	}
	if got := entries[0].ContextMap()["error_type"]; got != "merge_conflict" {
		t.Errorf("error_type = %v, want merge_conflict", got)
	}
}
