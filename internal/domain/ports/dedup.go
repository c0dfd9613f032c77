package ports

import (
	"context"
	"time"
)

// Deduplicator is the time-windowed set of already-seen event ids, shared by
// the polling loop and the webhook handler of one entry.
//
// Admit is a single check-and-insert: it returns true exactly once per id
// within the window, no matter how many callers race on the same id.
type Deduplicator interface {
	Admit(ctx context.Context, eventID string, ttl time.Duration) (bool, error)
}
