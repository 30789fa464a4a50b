// Package lock provides the item lock coordinators used by the pessimistic
// reservation strategy.
package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	appinv "github.com/Zhima-Mochi/cafeshop/internal/application/inventory"
	dominv "github.com/Zhima-Mochi/cafeshop/internal/domain/inventory"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
)

// ErrNotHeld is returned by Release when the lock expired or was already released.
var ErrNotHeld = errors.New("lock: not held")

// Local coordinates locks between goroutines of one process.
type Local struct {
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	sem   *semaphore.Weighted
	token string
	timer *time.Timer
}

func NewLocal() *Local {
	return &Local{slots: make(map[string]*slot)}
}

func (l *Local) slot(key string) *slot {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.slots[key]
	if !ok {
		s = &slot{sem: semaphore.NewWeighted(1)}
		l.slots[key] = s
	}
	return s
}

func (l *Local) Acquire(ctx context.Context, key string, wait, hold time.Duration) (appinv.Lock, error) {
	s := l.slot(key)

	waitCtx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()
	if err := s.sem.Acquire(waitCtx, 1); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %s: %w", dominv.ErrLockNotAcquired, key, ctx.Err())
		}
		return nil, fmt.Errorf("%w: %s after %s", dominv.ErrLockNotAcquired, key, wait)
	}

	token := uuid.NewString()
	l.mu.Lock()
	s.token = token
	s.timer = time.AfterFunc(hold, func() { l.release(s, token) })
	l.mu.Unlock()
	return &localLock{owner: l, slot: s, key: key, token: token}, nil
}

// release frees s if token still owns it.
func (l *Local) release(s *slot, token string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if s.token != token {
		return false
	}
	s.token = ""
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.sem.Release(1)
	return true
}

type localLock struct {
	owner *Local
	slot  *slot
	key   string
	token string
}

func (k *localLock) Key() string { return k.key }

func (k *localLock) Release(context.Context) error {
	if !k.owner.release(k.slot, k.token) {
		return fmt.Errorf("%w: %s", ErrNotHeld, k.key)
	}
	return nil
}

var _ appinv.LockCoordinator = (*Local)(nil)
