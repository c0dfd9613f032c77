// Package dedup holds the in-process deduplication window: a bounded,
// TTL'd set of event ids shared by the polling loop and webhook handler of
// one entry.
package dedup

import (
	"context"
	"sync"
	"time"

	"github.com/kai-zer-ru/max-notify-ha/internal/domain/ports"
)

type Window struct {
	mu       sync.Mutex
	expiry   map[string]time.Time
	capacity int
	now      func() time.Time
}

var _ ports.Deduplicator = (*Window)(nil)

func NewWindow(capacity int) *Window {
	if capacity <= 0 {
		capacity = 4096
	}
	return &Window{
		expiry:   make(map[string]time.Time),
		capacity: capacity,
		now:      time.Now,
	}
}

// Admit records eventID and reports whether it is the first sighting within
// the window. Check and insert happen under one lock, so two concurrent
// callers racing on the same id admit exactly once.
func (w *Window) Admit(_ context.Context, eventID string, ttl time.Duration) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	for id, exp := range w.expiry {
		if !exp.After(now) {
			delete(w.expiry, id)
		}
	}
	if exp, seen := w.expiry[eventID]; seen && exp.After(now) {
		return false, nil
	}
	if len(w.expiry) >= w.capacity {
		w.evictOldest()
	}
	w.expiry[eventID] = now.Add(ttl)
	return true, nil
}

// evictOldest drops the entry closest to expiry. Caller holds the lock.
func (w *Window) evictOldest() {
	var victim string
	var soonest time.Time
	first := true
	for id, exp := range w.expiry {
		if first || exp.Before(soonest) {
			victim, soonest = id, exp
			first = false
		}
	}
	if !first {
		delete(w.expiry, victim)
	}
}

// Len reports the live entry count (test hook).
func (w *Window) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.expiry)
}
