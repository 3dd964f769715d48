package webhook

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"zapgw/internal/domain"
)

const dedupTTL = 24 * time.Hour

// Dedup filters repeated inbound events by (provider, message_id) using a
// SETNX claim with a TTL. Events without a message id always pass; a nil or
// unreachable Redis fails open so a cache outage never drops real messages.
type Dedup struct {
	RDB *redis.Client
}

// FirstSeen reports whether this event is the first arrival of its id.
func (d *Dedup) FirstSeen(ctx context.Context, ev domain.Event) bool {
	if d == nil || d.RDB == nil || ev.MessageID == "" {
		return true
	}
	key := fmt.Sprintf("webhook:seen:%s:%s", ev.Provider, ev.MessageID)
	ok, err := d.RDB.SetNX(ctx, key, 1, dedupTTL).Result()
	if err != nil {
		slog.Warn("dedup check failed, passing event through", "err", err)
		return true
	}
	return ok
}
