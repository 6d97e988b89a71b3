// Package history keeps an in-memory, append-only record of completed queries.
package history

import "sync"

// Log is an append-only list safe for concurrent use.
// Entries appear in the order their Append calls completed.
type Log[T any] struct {
	mu      sync.Mutex
	entries []T
}

// New returns an empty log.
func New[T any]() *Log[T] {
	return &Log[T]{}
}

// Append adds an entry to the end of the log.
func (l *Log[T]) Append(entry T) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, entry)
}

// Entries returns a copy of the log. Callers may modify it freely.
func (l *Log[T]) Entries() []T {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]T, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len returns the number of entries.
func (l *Log[T]) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Clear removes every entry.
func (l *Log[T]) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = nil
}
