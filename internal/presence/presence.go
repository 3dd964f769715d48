// Package presence keeps the last known WhatsApp presence per number in
// Redis. Presence is advisory; a cache miss or outage just means "unknown".
package presence

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"zapgw/internal/phone"
)

const ttl = 24 * time.Hour

type Cache struct {
	RDB *redis.Client
}

func (c *Cache) Set(ctx context.Context, tenantID int64, number, state string) error {
	if c == nil || c.RDB == nil {
		return nil
	}
	return c.RDB.Set(ctx, key(tenantID, number), state, ttl).Err()
}

// Get returns the cached presence string, empty when unknown.
func (c *Cache) Get(ctx context.Context, tenantID int64, number string) (string, error) {
	if c == nil || c.RDB == nil {
		return "", nil
	}
	v, err := c.RDB.Get(ctx, key(tenantID, number)).Result()
	if err == redis.Nil {
		return "", nil
	}
	return v, err
}

func key(tenantID int64, number string) string {
	return fmt.Sprintf("presence:%d:%s", tenantID, phone.DigitsOnly(number))
}
