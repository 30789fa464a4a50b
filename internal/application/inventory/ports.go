package inventory

import (
	"context"
	"time"
)

// LockCoordinator hands out named mutual-exclusion locks. Acquire fails with
// inventory.ErrLockNotAcquired once wait elapses; a held lock expires after hold.
type LockCoordinator interface {
	Acquire(ctx context.Context, key string, wait, hold time.Duration) (Lock, error)
}

type Lock interface {
	Key() string
	Release(ctx context.Context) error
}

func LockKey(itemID string) string { return "item:" + itemID }
