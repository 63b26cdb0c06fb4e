// Package ratelimit gates assistant calls per user: a daily volume counter stored in SQLite
// and an in-process cap on simultaneous requests.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"workpilot/internal/logging"
)

type Scope string

const (
	ScopeDaily      Scope = "daily"
	ScopeConcurrent Scope = "concurrent"
)

// Error reports a denied request. ResetAt is zero for the concurrency scope.
type Error struct {
	Scope   Scope
	Limit   int
	ResetAt time.Time
}

func (e *Error) Error() string {
	if e.Scope == ScopeDaily {
		return fmt.Sprintf("daily assistant limit of %d reached; resets at %s", e.Limit, e.ResetAt.Format(time.RFC3339))
	}
	return fmt.Sprintf("too many concurrent assistant requests (limit %d)", e.Limit)
}

// UsageStore persists daily counters.
type UsageStore interface {
	TryIncrementUsage(ctx context.Context, actorID, day string, limit int) (bool, error)
}

type Limiter struct {
	store      UsageStore
	daily      int
	concurrent int
	now        func() time.Time
	log        *zap.Logger

	mu    sync.Mutex
	gates map[string]*semaphore.Weighted
}

type Option func(*Limiter)

func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

func WithLogger(log *zap.Logger) Option {
	return func(l *Limiter) { l.log = logging.OrNop(log) }
}

func New(store UsageStore, daily, concurrent int, opts ...Option) *Limiter {
	l := &Limiter{
		store:      store,
		daily:      daily,
		concurrent: concurrent,
		now:        time.Now,
		log:        zap.NewNop(),
		gates:      make(map[string]*semaphore.Weighted),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Limiter) gate(actorID string) *semaphore.Weighted {
	l.mu.Lock()
	defer l.mu.Unlock()
	g, ok := l.gates[actorID]
	if !ok {
		g = semaphore.NewWeighted(int64(l.concurrent))
		l.gates[actorID] = g
	}
	return g
}

// Acquire runs the concurrency check, then the daily check. On success the caller must
// invoke release once the request finishes. On failure nothing is held.
func (l *Limiter) Acquire(ctx context.Context, actorID string) (release func(), err error) {
	g := l.gate(actorID)
	if !g.TryAcquire(1) {
		l.log.Info("assistant request denied", zap.String("actor", actorID), zap.String("scope", string(ScopeConcurrent)))
		return nil, &Error{Scope: ScopeConcurrent, Limit: l.concurrent}
	}
	now := l.now().UTC()
	ok, err := l.store.TryIncrementUsage(ctx, actorID, now.Format("2006-01-02"), l.daily)
	if err != nil {
		g.Release(1)
		return nil, fmt.Errorf("record assistant usage: %w", err)
	}
	if !ok {
		g.Release(1)
		l.log.Info("assistant request denied", zap.String("actor", actorID), zap.String("scope", string(ScopeDaily)))
		return nil, &Error{Scope: ScopeDaily, Limit: l.daily, ResetAt: NextReset(now)}
	}
	var once sync.Once
	return func() { once.Do(func() { g.Release(1) }) }, nil
}

// NextReset returns the next UTC midnight after t.
func NextReset(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
}
