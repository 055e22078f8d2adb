package pubsub

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"

	"github.com/radieske/color-round-platform/pkg/contracts/events"
)

// ChannelRoundBroadcast é o canal padrão lido pelo feed-service.
const ChannelRoundBroadcast = "round_updates_broadcast"

type RedisBroadcaster struct {
	r       *redis.Client
	channel string
}

func NewRedisBroadcaster(r *redis.Client, channel string) *RedisBroadcaster {
	if channel == "" {
		channel = ChannelRoundBroadcast
	}
	return &RedisBroadcaster{r: r, channel: channel}
}

// Broadcast publica o envelope serializado no canal configurado.
func (b *RedisBroadcaster) Broadcast(ctx context.Context, u events.FeedUpdate) error {
	payload, err := json.Marshal(u)
	if err != nil {
		return err
	}
	return b.r.Publish(ctx, b.channel, payload).Err()
}
