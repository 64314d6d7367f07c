// Package locking provides named, holder-owned locks used to give result
// writes serializable isolation.
//
// A lock is identified by a key (the result's storage key) and owned by a
// holder string. Re-acquiring a lock you already hold succeeds. Locks may
// carry a hold timeout after which they expire on their own.
package locking

import (
	"context"
	"errors"
	"time"
)

// ErrNotLockHolder is returned when releasing a lock held by someone else.
// The lock is left untouched.
var ErrNotLockHolder = errors.New("lock is held by another holder")

// LockManager coordinates exclusive access to keys.
// Implementations must be safe for concurrent use.
type LockManager interface {
	// Acquire takes the lock for holder, waiting up to the acquire timeout.
	// It returns true if the lock is (now) held by holder and false if the
	// timeout elapsed first.
	Acquire(ctx context.Context, key, holder string, opts ...Option) (bool, error)

	// Release drops holder's lock. Releasing an unlocked key is a no-op;
	// releasing another holder's lock returns ErrNotLockHolder.
	Release(ctx context.Context, key, holder string) error

	// IsLocked reports whether anyone currently holds key.
	IsLocked(ctx context.Context, key string) (bool, error)

	// IsLockHolder reports whether holder currently holds key.
	IsLockHolder(ctx context.Context, key, holder string) (bool, error)

	// Wait blocks until key is unlocked. It returns true if the key was
	// released (or never locked) and false if the timeout elapsed first.
	Wait(ctx context.Context, key string, opts ...Option) (bool, error)
}

// Options configures a single lock operation.
type Options struct {
	// Timeout bounds how long Acquire or Wait may block. Zero waits until
	// the lock frees up or the context is done.
	Timeout time.Duration

	// HoldTimeout makes an acquired lock expire on its own. Zero holds the
	// lock until it is released.
	HoldTimeout time.Duration
}

// Option is a functional option for lock operations.
type Option func(*Options)

// WithTimeout bounds how long Acquire or Wait blocks.
func WithTimeout(d time.Duration) Option {
	return func(o *Options) {
		o.Timeout = d
	}
}

// WithHoldTimeout sets a lease on an acquired lock.
func WithHoldTimeout(d time.Duration) Option {
	return func(o *Options) {
		o.HoldTimeout = d
	}
}

func applyOptions(opts []Option) Options {
	var o Options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// deadline returns the absolute time the operation gives up, or zero.
func (o Options) deadline() time.Time {
	if o.Timeout <= 0 {
		return time.Time{}
	}
	return time.Now().Add(o.Timeout)
}
