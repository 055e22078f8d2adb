package cache

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/redis/go-redis/v9"

	rcache "github.com/radieske/color-round-platform/internal/round-events/cache"
	"github.com/radieske/color-round-platform/pkg/contracts/events"
)

// Cache lê os snapshots mantidos pelo round-events-worker.
type Cache struct{ R *redis.Client }

func New(r *redis.Client) *Cache { return &Cache{R: r} }

func (c *Cache) Current(ctx context.Context) (*events.RoundSnapshot, bool, error) {
	b, err := c.R.Get(ctx, rcache.KeyCurrent).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var s events.RoundSnapshot
	return &s, true, json.Unmarshal(b, &s)
}

// Recent devolve até n resultados, do mais novo ao mais antigo.
func (c *Cache) Recent(ctx context.Context, n int) ([]events.RoundSnapshot, error) {
	vals, err := c.R.ZRevRange(ctx, rcache.KeyRecent, 0, int64(n-1)).Result()
	if err != nil {
		return nil, err
	}
	out := make([]events.RoundSnapshot, 0, len(vals))
	for _, v := range vals {
		var s events.RoundSnapshot
		if err := json.Unmarshal([]byte(v), &s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}
