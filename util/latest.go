package util

import "sync"

// Latest is a single-slot mailbox for a value that is produced faster than it
// is consumed and where only the newest version matters. Writers overwrite
// the slot; the consumer is nudged on its Ready channel at most once until it
// picks the value up with Get. Dashboard state snapshots go through one of
// these so a burst of filter changes collapses into a single fresh snapshot
// by the time the coordinator loop gets around to it.
type Latest[T any] struct {
	mu    sync.Mutex
	val   T
	ready chan struct{}
}

func NewLatest[T any]() *Latest[T] {
	return &Latest[T]{
		ready: make(chan struct{}, 1),
	}
}

// Put stores v as the current value, replacing any value not yet read, and
// raises the Ready signal if it is not already pending. Never blocks.
func (l *Latest[T]) Put(v T) {
	l.mu.Lock()
	l.val = v
	l.mu.Unlock()
	select {
	case l.ready <- struct{}{}:
	default:
	}
}

// Ready returns the channel that fires when a new value has been stored
// since the last Get. Intended for use in a select loop.
func (l *Latest[T]) Ready() <-chan struct{} {
	return l.ready
}

// Get returns the most recently stored value.
func (l *Latest[T]) Get() T {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.val
}

// Pending reports whether a stored value has not been signalled out yet.
func (l *Latest[T]) Pending() bool {
	return len(l.ready) > 0
}
