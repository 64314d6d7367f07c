package locking

import (
	"context"
	"fmt"
	"sync"
	"time"
)

type memoryLock struct {
	holder    string
	expiresAt time.Time     // zero when the lock has no lease
	released  chan struct{} // closed on release or expiry
}

// MemoryLockManager is an in-process LockManager. Locks are only visible
// to goroutines sharing the same manager.
type MemoryLockManager struct {
	mu    sync.Mutex
	locks map[string]*memoryLock
}

// NewMemoryLockManager creates an empty in-process lock manager.
func NewMemoryLockManager() *MemoryLockManager {
	return &MemoryLockManager{
		locks: make(map[string]*memoryLock),
	}
}

// current returns the live lock for key, dropping it if its lease ran out.
// Callers must hold m.mu.
func (m *MemoryLockManager) current(key string) *memoryLock {
	l, ok := m.locks[key]
	if !ok {
		return nil
	}
	if !l.expiresAt.IsZero() && !time.Now().Before(l.expiresAt) {
		close(l.released)
		delete(m.locks, key)
		return nil
	}
	return l
}

func (m *MemoryLockManager) Acquire(ctx context.Context, key, holder string, opts ...Option) (bool, error) {
	o := applyOptions(opts)
	deadline := o.deadline()

	for {
		m.mu.Lock()
		l := m.current(key)
		if l == nil {
			l = &memoryLock{holder: holder, released: make(chan struct{})}
			if o.HoldTimeout > 0 {
				l.expiresAt = time.Now().Add(o.HoldTimeout)
			}
			m.locks[key] = l
			m.mu.Unlock()
			return true, nil
		}
		if l.holder == holder {
			if o.HoldTimeout > 0 {
				l.expiresAt = time.Now().Add(o.HoldTimeout)
			}
			m.mu.Unlock()
			return true, nil
		}
		released, expiresAt := l.released, l.expiresAt
		m.mu.Unlock()

		timedOut, err := waitRelease(ctx, released, expiresAt, deadline)
		if err != nil {
			return false, err
		}
		if timedOut {
			return false, nil
		}
	}
}

func (m *MemoryLockManager) Release(ctx context.Context, key, holder string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	l := m.current(key)
	if l == nil {
		return nil
	}
	if l.holder != holder {
		return fmt.Errorf("release %q by %q: %w", key, holder, ErrNotLockHolder)
	}
	close(l.released)
	delete(m.locks, key)
	return nil
}

func (m *MemoryLockManager) IsLocked(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current(key) != nil, nil
}

func (m *MemoryLockManager) IsLockHolder(ctx context.Context, key, holder string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l := m.current(key)
	return l != nil && l.holder == holder, nil
}

func (m *MemoryLockManager) Wait(ctx context.Context, key string, opts ...Option) (bool, error) {
	deadline := applyOptions(opts).deadline()

	for {
		m.mu.Lock()
		l := m.current(key)
		if l == nil {
			m.mu.Unlock()
			return true, nil
		}
		released, expiresAt := l.released, l.expiresAt
		m.mu.Unlock()

		timedOut, err := waitRelease(ctx, released, expiresAt, deadline)
		if err != nil {
			return false, err
		}
		if timedOut {
			return false, nil
		}
	}
}

// waitRelease blocks until the lock is released, its lease runs out, the
// deadline passes (timedOut) or ctx is done.
func waitRelease(ctx context.Context, released <-chan struct{}, expiresAt, deadline time.Time) (timedOut bool, err error) {
	var expiryC, deadlineC <-chan time.Time
	if !expiresAt.IsZero() {
		t := time.NewTimer(time.Until(expiresAt))
		defer t.Stop()
		expiryC = t.C
	}
	if !deadline.IsZero() {
		t := time.NewTimer(time.Until(deadline))
		defer t.Stop()
		deadlineC = t.C
	}

	select {
	case <-released:
		return false, nil
	case <-expiryC:
		return false, nil
	case <-deadlineC:
		return true, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}
