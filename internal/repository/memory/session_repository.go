// Package memory provides an in-memory SessionRepository. It backs tests and
// the file-output generation mode, and doubles as the reference the MongoDB
// push-down implementation is checked against.
package memory

import (
	"context"
	"sync"

	"fraudsim/internal/detector"
	"fraudsim/internal/model"
)

type Repository struct {
	mu       sync.RWMutex
	sessions []model.LoginSession
}

func New() *Repository {
	return &Repository{}
}

func (r *Repository) BulkInsert(_ context.Context, sessions []model.LoginSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions = append(r.sessions, sessions...)
	return nil
}

// Reset drops everything inserted so far, matching the store-backed
// implementations that clear the collection before a fresh run.
func (r *Repository) Reset(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions = nil
	return nil
}

// EnsureIndexes is a no-op; lookups scan the slice.
func (r *Repository) EnsureIndexes(context.Context) error {
	return nil
}

func (r *Repository) IPVelocity(_ context.Context, topN int) (*model.IPVelocityReport, error) {
	return detector.IPVelocity(r.snapshot(), topN), nil
}

func (r *Repository) FilterUsers(_ context.Context, category model.FilterCategory) (*model.UserFilterResult, error) {
	return detector.FilterUsers(r.snapshot(), category)
}

func (r *Repository) UserDetail(_ context.Context, userID string) (*model.UserSessionDetail, error) {
	return detector.UserDetail(r.snapshot(), userID), nil
}

func (r *Repository) Stats(context.Context) (*model.StatsSummary, error) {
	return detector.Stats(r.snapshot()), nil
}

// Sessions returns a copy of everything inserted so far.
func (r *Repository) Sessions() []model.LoginSession {
	return r.snapshot()
}

func (r *Repository) snapshot() []model.LoginSession {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.LoginSession, len(r.sessions))
	copy(out, r.sessions)
	return out
}

var _ model.SessionRepository = (*Repository)(nil)
