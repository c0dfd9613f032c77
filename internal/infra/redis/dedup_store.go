package redis

import (
	"context"
	"time"

	"github.com/kai-zer-ru/max-notify-ha/internal/domain/ports"
)

// DedupStore is the Redis-backed dedup window: SET NX PX makes admission a
// single atomic check-and-insert, shared across restarts and replicas.
// Memory is bounded by the key TTLs.
type DedupStore struct {
	client RedisClient
	prefix string
}

var _ ports.Deduplicator = (*DedupStore)(nil)

// NewDedupStore creates a dedup window namespaced per entry so two bots
// never collide on synthesized keys.
func NewDedupStore(client RedisClient, entryID string) *DedupStore {
	return &DedupStore{client: client, prefix: "max_notify:seen:" + entryID + ":"}
}

func (d *DedupStore) Admit(ctx context.Context, eventID string, ttl time.Duration) (bool, error) {
	return d.client.SetNX(ctx, d.prefix+eventID, 1, ttl)
}
