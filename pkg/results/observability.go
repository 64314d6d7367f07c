package results

import (
	"context"
	"time"
)

// Observer is the interface for observing result store events.
// Implementations can emit metrics, logs, or traces to their observability backend.
//
// All Observer methods are called synchronously after the operation they
// describe, so implementations should be fast and non-blocking.
type Observer interface {
	// OnRead is called after a record read completes (success or failure).
	OnRead(ctx context.Context, event *ReadEvent)

	// OnWrite is called after a record write completes (success or failure).
	OnWrite(ctx context.Context, event *WriteEvent)

	// OnExists is called after an existence probe.
	OnExists(ctx context.Context, event *ExistsEvent)

	// OnLockWait is called after waiting for a lock to be released.
	OnLockWait(ctx context.Context, event *LockWaitEvent)

	// OnReferenceCache is called when a reference is resolved, before any
	// storage read.
	OnReferenceCache(ctx context.Context, event *ReferenceCacheEvent)
}

// ReadEvent is emitted when a record read completes.
type ReadEvent struct {
	Key      string
	Split    bool // metadata read from a separate storage
	Duration time.Duration
	Error    error // nil if successful
}

// WriteEvent is emitted when a record write completes.
type WriteEvent struct {
	Key      string
	Split    bool
	Bytes    int // bytes written, 0 on failure
	Duration time.Duration
	Error    error
}

// ExistsEvent is emitted after an existence probe.
type ExistsEvent struct {
	Key     string
	Exists  bool
	Latency time.Duration
}

// LockWaitEvent is emitted after waiting on a lock.
type LockWaitEvent struct {
	Key      string
	Released bool // false if the wait timed out
	Waited   time.Duration
	Error    error
}

// ReferenceCacheEvent is emitted when a PersistedResult is resolved.
type ReferenceCacheEvent struct {
	StorageKey  string
	Hit         bool // served from memory
	IgnoreCache bool
}

// NoOpObserver is a no-op implementation of Observer.
// Useful as a base for partial implementations.
type NoOpObserver struct{}

func (NoOpObserver) OnRead(ctx context.Context, event *ReadEvent)                     {}
func (NoOpObserver) OnWrite(ctx context.Context, event *WriteEvent)                   {}
func (NoOpObserver) OnExists(ctx context.Context, event *ExistsEvent)                 {}
func (NoOpObserver) OnLockWait(ctx context.Context, event *LockWaitEvent)             {}
func (NoOpObserver) OnReferenceCache(ctx context.Context, event *ReferenceCacheEvent) {}

// MultiObserver combines multiple observers into one.
// Events are sent to all observers in order.
type MultiObserver struct {
	Observers []Observer
}

func (m *MultiObserver) OnRead(ctx context.Context, event *ReadEvent) {
	for _, obs := range m.Observers {
		obs.OnRead(ctx, event)
	}
}

func (m *MultiObserver) OnWrite(ctx context.Context, event *WriteEvent) {
	for _, obs := range m.Observers {
		obs.OnWrite(ctx, event)
	}
}

func (m *MultiObserver) OnExists(ctx context.Context, event *ExistsEvent) {
	for _, obs := range m.Observers {
		obs.OnExists(ctx, event)
	}
}

func (m *MultiObserver) OnLockWait(ctx context.Context, event *LockWaitEvent) {
	for _, obs := range m.Observers {
		obs.OnLockWait(ctx, event)
	}
}

func (m *MultiObserver) OnReferenceCache(ctx context.Context, event *ReferenceCacheEvent) {
	for _, obs := range m.Observers {
		obs.OnReferenceCache(ctx, event)
	}
}
