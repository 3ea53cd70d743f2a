package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"jobmail/internal/merge"
	"jobmail/internal/model"
)

// MemoryJobRepository keeps applications and processed markers in memory.
// It enforces the same key uniqueness and version checks as JobRepository.
type MemoryJobRepository struct {
	mu        sync.RWMutex
	nextID    int64
	apps      map[int64]*model.JobApplication
	byKey     map[string]int64
	processed map[string]map[string]time.Time
	now       func() time.Time
}

func NewMemoryJobRepository() *MemoryJobRepository {
	return &MemoryJobRepository{
		apps:      make(map[int64]*model.JobApplication),
		byKey:     make(map[string]int64),
		processed: make(map[string]map[string]time.Time),
		now:       time.Now,
	}
}

func memoryKey(userID, company, role string) string {
	return userID + "\x00" + company + "\x00" + role
}

func (r *MemoryJobRepository) FindByKey(_ context.Context, userID, normalizedCompany, normalizedRole string) (*model.JobApplication, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byKey[memoryKey(userID, normalizedCompany, normalizedRole)]
	if !ok {
		return nil, nil
	}
	return r.apps[id].Clone(), nil
}

func (r *MemoryJobRepository) Create(_ context.Context, app *model.JobApplication) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := memoryKey(app.UserID, app.NormalizedCompany, app.NormalizedRole)
	if _, ok := r.byKey[key]; ok {
		return merge.ErrDuplicateKey
	}
	r.nextID++
	app.ID = r.nextID
	app.Version = 1
	r.apps[app.ID] = app.Clone()
	r.byKey[key] = app.ID
	return nil
}

func (r *MemoryJobRepository) Update(_ context.Context, app *model.JobApplication) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.apps[app.ID]
	if !ok || stored.Version != app.Version {
		return merge.ErrConflict
	}
	app.Version++
	r.apps[app.ID] = app.Clone()
	return nil
}

// ListByUser returns a user's applications in creation order.
func (r *MemoryJobRepository) ListByUser(_ context.Context, userID string) ([]*model.JobApplication, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var apps []*model.JobApplication
	for _, a := range r.apps {
		if a.UserID == userID {
			apps = append(apps, a.Clone())
		}
	}
	sort.Slice(apps, func(i, j int) bool { return apps[i].ID < apps[j].ID })
	return apps, nil
}

func (r *MemoryJobRepository) KnownEmailIDs(_ context.Context, userID string) (map[string]struct{}, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	known := make(map[string]struct{})
	for _, a := range r.apps {
		if a.UserID != userID {
			continue
		}
		if a.EmailID != "" {
			known[a.EmailID] = struct{}{}
		}
		for _, h := range a.StatusHistory {
			if h.EmailID != "" {
				known[h.EmailID] = struct{}{}
			}
		}
	}
	for id := range r.processed[userID] {
		known[id] = struct{}{}
	}
	return known, nil
}

func (r *MemoryJobRepository) MarkProcessed(_ context.Context, userID, emailID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.processed[userID]
	if !ok {
		m = make(map[string]time.Time)
		r.processed[userID] = m
	}
	if _, done := m[emailID]; !done {
		m[emailID] = r.now()
	}
	return nil
}

func (r *MemoryJobRepository) IsProcessed(_ context.Context, userID, emailID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.processed[userID][emailID]
	return ok, nil
}
