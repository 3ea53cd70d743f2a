// Package merge folds extracted applications into a user's persisted job
// records. For a given (user, company, role) key there is at most one record,
// its status never regresses and its applied date only moves earlier.
package merge

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"jobmail/internal/model"
	"jobmail/pkg/lock"
)

var (
	ErrNilInput = errors.New("merge: nil application")
	// ErrConflict means the stored version moved between read and write.
	ErrConflict = errors.New("merge: concurrent update")
	// ErrDuplicateKey means another writer created the same key first.
	ErrDuplicateKey = errors.New("merge: duplicate application key")
)

// Store is the persistence contract. FindByKey returns (nil, nil) when absent.
type Store interface {
	FindByKey(ctx context.Context, userID, normalizedCompany, normalizedRole string) (*model.JobApplication, error)
	Create(ctx context.Context, app *model.JobApplication) error
	Update(ctx context.Context, app *model.JobApplication) error
}

// Locker provides mutual exclusion per key.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

type Decision string

const (
	Created Decision = "created"
	Updated Decision = "updated"
)

// Outcome reports what Merge did. Changed is always true for Created.
type Outcome struct {
	Decision    Decision
	Changed     bool
	Application *model.JobApplication
}

type Engine struct {
	store   Store
	locker  Locker
	ranking model.Ranking
	now     func() time.Time
	logger  *zap.Logger
	retries int
}

type Option func(*Engine)

func WithLocker(l Locker) Option { return func(e *Engine) { e.locker = l } }

func WithRanking(r model.Ranking) Option { return func(e *Engine) { e.ranking = r } }

func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

func WithLogger(l *zap.Logger) Option { return func(e *Engine) { e.logger = l } }

// WithRetries bounds how often a conflicting write is re-attempted.
func WithRetries(n int) Option {
	return func(e *Engine) {
		if n >= 0 {
			e.retries = n
		}
	}
}

func NewEngine(store Store, opts ...Option) *Engine {
	e := &Engine{
		store:   store,
		locker:  lock.NewKeyedMutex(),
		ranking: model.DefaultRanking(),
		now:     time.Now,
		logger:  zap.NewNop(),
		retries: 3,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Ranking returns the status ranking the engine applies.
func (e *Engine) Ranking() model.Ranking {
	return e.ranking
}

// Merge applies parsed to userID's records under the per-user lock.
func (e *Engine) Merge(ctx context.Context, userID string, parsed *model.ExtractedApplication) (Outcome, error) {
	if parsed == nil {
		return Outcome{}, ErrNilInput
	}

	unlock, err := e.locker.Lock(ctx, LockKey(userID))
	if err != nil {
		return Outcome{}, fmt.Errorf("merge: lock user %s: %w", userID, err)
	}
	defer unlock()

	var lastErr error
	for attempt := 0; attempt <= e.retries; attempt++ {
		out, err := e.mergeOnce(ctx, userID, parsed)
		if err == nil {
			e.logger.Debug("Merged application",
				zap.String("user_id", userID),
				zap.String("email_id", parsed.EmailID),
				zap.String("company", out.Application.Company),
				zap.String("role", out.Application.Role),
				zap.String("decision", string(out.Decision)),
				zap.Bool("changed", out.Changed),
			)
			return out, nil
		}
		if !errors.Is(err, ErrConflict) && !errors.Is(err, ErrDuplicateKey) {
			return Outcome{}, err
		}
		lastErr = err
		e.logger.Warn("Merge write conflict, retrying",
			zap.String("user_id", userID),
			zap.String("email_id", parsed.EmailID),
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)
	}
	return Outcome{}, fmt.Errorf("merge: gave up after %d attempts: %w", e.retries+1, lastErr)
}

func (e *Engine) mergeOnce(ctx context.Context, userID string, parsed *model.ExtractedApplication) (Outcome, error) {
	company := NormalizeKey(parsed.Company)
	role := NormalizeKey(parsed.Position)

	existing, err := e.store.FindByKey(ctx, userID, company, role)
	if err != nil {
		return Outcome{}, fmt.Errorf("merge: find %s/%s: %w", company, role, err)
	}

	if existing == nil {
		app := e.newApplication(userID, company, role, parsed)
		if err := e.store.Create(ctx, app); err != nil {
			return Outcome{}, fmt.Errorf("merge: create: %w", err)
		}
		return Outcome{Decision: Created, Changed: true, Application: app}, nil
	}

	app := existing.Clone()
	if !e.apply(app, parsed) {
		return Outcome{Decision: Updated, Changed: false, Application: app}, nil
	}
	app.UpdatedAt = e.now()
	if err := e.store.Update(ctx, app); err != nil {
		return Outcome{}, fmt.Errorf("merge: update %d: %w", app.ID, err)
	}
	return Outcome{Decision: Updated, Changed: true, Application: app}, nil
}

func (e *Engine) newApplication(userID, company, role string, parsed *model.ExtractedApplication) *model.JobApplication {
	now := e.now()
	applied, ok := parseDate(parsed.AppliedDate)
	if !ok {
		applied = truncateDay(now)
	}
	status := e.ranking.Resolve(parsed.Status)

	return &model.JobApplication{
		UserID:            userID,
		Company:           parsed.Company,
		Role:              parsed.Position,
		NormalizedCompany: company,
		NormalizedRole:    role,
		Location:          strings.TrimSpace(parsed.Location),
		Status:            status,
		Stipend:           strings.TrimSpace(parsed.Stipend),
		DateApplied:       applied,
		Notes:             strings.TrimSpace(parsed.Notes),
		EmailID:           parsed.EmailID,
		StatusHistory: []model.StatusEvent{{
			Status:  status,
			At:      applied,
			Source:  model.SourceGmail,
			EmailID: parsed.EmailID,
			Subject: parsed.Subject,
		}},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// apply folds parsed into app and reports whether anything changed.
func (e *Engine) apply(app *model.JobApplication, parsed *model.ExtractedApplication) bool {
	changed := false
	now := e.now()

	status := e.ranking.Resolve(parsed.Status)
	advanced := false
	if e.ranking.Rank(status) > e.ranking.Rank(app.Status) {
		app.Status = status
		advanced = true
		changed = true
	}

	// 只回填空字段，不覆盖已有值
	if app.Location == "" && strings.TrimSpace(parsed.Location) != "" {
		app.Location = strings.TrimSpace(parsed.Location)
		changed = true
	}
	if app.Stipend == "" && strings.TrimSpace(parsed.Stipend) != "" {
		app.Stipend = strings.TrimSpace(parsed.Stipend)
		changed = true
	}

	if d, ok := parseDate(parsed.AppliedDate); ok && (app.DateApplied.IsZero() || d.Before(app.DateApplied)) {
		app.DateApplied = d
		changed = true
	}

	if note := strings.TrimSpace(parsed.Notes); note != "" && !hasLine(app.Notes, note) {
		if app.Notes == "" {
			app.Notes = note
		} else {
			app.Notes += "\n" + note
		}
		changed = true
	}

	switch {
	case parsed.EmailID != "" && !app.HasEmail(parsed.EmailID):
		if app.EmailID == "" {
			app.EmailID = parsed.EmailID
		}
		app.StatusHistory = append(app.StatusHistory, model.StatusEvent{
			Status:  status,
			At:      now,
			Source:  model.SourceGmail,
			EmailID: parsed.EmailID,
			Subject: parsed.Subject,
		})
		changed = true
	case advanced:
		app.StatusHistory = append(app.StatusHistory, model.StatusEvent{
			Status:  app.Status,
			At:      now,
			Source:  model.SourceGmail,
			Subject: parsed.Subject,
		})
	}

	return changed
}

func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(model.DateLayout, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func hasLine(notes, line string) bool {
	for _, l := range strings.Split(notes, "\n") {
		if strings.TrimSpace(l) == line {
			return true
		}
	}
	return false
}
