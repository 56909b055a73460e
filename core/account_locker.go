package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// LockHandle releases a previously acquired account lock.
type LockHandle interface {
	Unlock(ctx context.Context) error
}

// AccountLocker serializes token refreshes per (user, provider) key. Acquire
// blocks until the lock is free or the context is cancelled, so concurrent
// callers queue up behind the first refresher instead of failing.
type AccountLocker interface {
	Acquire(ctx context.Context, key string) (LockHandle, error)
}

// MemoryAccountLocker is the in-process default. Each key owns a one-slot
// channel used as a semaphore so waiters honor context cancellation. Entries
// are refcounted and removed from the map once the last holder or waiter for
// a key is gone, so the map stays bounded by the number of in-flight keys.
type MemoryAccountLocker struct {
	mu    sync.Mutex
	slots map[string]*lockSlot
}

type lockSlot struct {
	ch   chan struct{}
	refs int
}

func NewMemoryAccountLocker() *MemoryAccountLocker {
	return &MemoryAccountLocker{
		slots: make(map[string]*lockSlot),
	}
}

func (l *MemoryAccountLocker) Acquire(ctx context.Context, key string) (LockHandle, error) {
	if l == nil {
		return nil, fmt.Errorf("core: account locker is not configured")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, fmt.Errorf("core: lock key is required")
	}

	l.mu.Lock()
	slot, ok := l.slots[key]
	if !ok {
		slot = &lockSlot{ch: make(chan struct{}, 1)}
		l.slots[key] = slot
	}
	slot.refs++
	l.mu.Unlock()

	select {
	case slot.ch <- struct{}{}:
		return &memoryLockHandle{locker: l, key: key, slot: slot}, nil
	case <-ctx.Done():
		l.release(key, slot)
		return nil, ctx.Err()
	}
}

// release drops one reference on the key's slot and deletes the map entry
// when nobody holds or waits for it anymore.
func (l *MemoryAccountLocker) release(key string, slot *lockSlot) {
	l.mu.Lock()
	slot.refs--
	if slot.refs <= 0 {
		delete(l.slots, key)
	}
	l.mu.Unlock()
}

type memoryLockHandle struct {
	locker *MemoryAccountLocker
	key    string
	slot   *lockSlot
	once   sync.Once
}

func (h *memoryLockHandle) Unlock(_ context.Context) error {
	if h == nil || h.slot == nil {
		return nil
	}
	h.once.Do(func() {
		<-h.slot.ch
		h.locker.release(h.key, h.slot)
	})
	return nil
}

// LockKey builds the canonical refresh lock key for a credential pair.
func LockKey(userID, providerID string) string {
	return strings.TrimSpace(userID) + "::" + strings.TrimSpace(providerID)
}
