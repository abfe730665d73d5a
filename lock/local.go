// Package lock provides violations.RunGuard implementations.
//
// Local guards one process; Redis guards every process sharing a Redis
// instance. Both refuse instead of waiting: a sweep that finds the key held
// returns violations.ErrSweepInProgress and the caller retries on the next
// tick.
package lock

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/warp/violation-sync/violations"
)

// Local is an in-process guard, one weight-1 semaphore per key.
type Local struct {
	mu   sync.Mutex
	sems map[string]*semaphore.Weighted
}

func NewLocal() *Local {
	return &Local{sems: make(map[string]*semaphore.Weighted)}
}

// Acquire takes the key without blocking.
func (l *Local) Acquire(_ context.Context, key string) (func(), error) {
	l.mu.Lock()
	sem, ok := l.sems[key]
	if !ok {
		sem = semaphore.NewWeighted(1)
		l.sems[key] = sem
	}
	l.mu.Unlock()

	if !sem.TryAcquire(1) {
		return nil, violations.ErrSweepInProgress
	}

	var once sync.Once
	return func() {
		once.Do(func() { sem.Release(1) })
	}, nil
}
