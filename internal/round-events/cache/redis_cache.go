package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/radieske/color-round-platform/pkg/contracts/events"
)

const (
	KeyCurrent = "round:current"
	KeyRecent  = "rounds:recent" // sorted set, score = round id
	RecentKeep = 20
)

// RedisCache mantém a visão do round corrente e dos últimos resultados.
// TTL vale só para round:current; um worker parado não deixa round velho visível para sempre.
type RedisCache struct {
	Client *redis.Client
	TTL    time.Duration
}

func NewRedisCache(c *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{Client: c, TTL: ttl}
}

// Current devolve o snapshot salvo; ok=false quando não há nenhum.
func (r *RedisCache) Current(ctx context.Context) (*events.RoundSnapshot, bool, error) {
	b, err := r.Client.Get(ctx, KeyCurrent).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var s events.RoundSnapshot
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, false, err
	}
	return &s, true, nil
}

func (r *RedisCache) SetCurrent(ctx context.Context, s events.RoundSnapshot) error {
	b, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return r.Client.Set(ctx, KeyCurrent, b, r.TTL).Err()
}

// PushRecent grava o round liquidado substituindo qualquer entrada anterior
// do mesmo id e mantém só os RecentKeep mais novos.
func (r *RedisCache) PushRecent(ctx context.Context, s events.RoundSnapshot) error {
	b, err := json.Marshal(s)
	if err != nil {
		return err
	}
	id := strconv.FormatInt(s.RoundID, 10)
	if err := r.Client.ZRemRangeByScore(ctx, KeyRecent, id, id).Err(); err != nil {
		return err
	}
	if err := r.Client.ZAdd(ctx, KeyRecent, redis.Z{Score: float64(s.RoundID), Member: string(b)}).Err(); err != nil {
		return err
	}
	return r.Client.ZRemRangeByRank(ctx, KeyRecent, 0, -RecentKeep-1).Err()
}
