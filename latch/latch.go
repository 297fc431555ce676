// Package latch provides the reader-writer latch each buffer pool frame
// carries, independent of its pin count.
package latch

import "sync"

// Latch is a reader-writer latch. A reader holds it via RLock/RUnlock, a
// writer via Lock/Unlock. Latches coexist with buffer-pool pinning: pin
// first, then latch; unlatch, then unpin.
type Latch struct {
	mu sync.RWMutex
}

// New creates an unlocked latch.
func New() *Latch {
	return &Latch{}
}

func (l *Latch) Lock()    { l.mu.Lock() }
func (l *Latch) Unlock()  { l.mu.Unlock() }
func (l *Latch) RLock()   { l.mu.RLock() }
func (l *Latch) RUnlock() { l.mu.RUnlock() }

// TryLock attempts to acquire the write latch without blocking.
func (l *Latch) TryLock() bool { return l.mu.TryLock() }

// TryRLock attempts to acquire a read latch without blocking.
func (l *Latch) TryRLock() bool { return l.mu.TryRLock() }
