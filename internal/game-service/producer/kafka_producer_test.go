package producer

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radieske/color-round-platform/pkg/contracts/events"
	"github.com/radieske/color-round-platform/pkg/contracts/topics"
)

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

var testTopics = Topics{
	RoundOpened:  topics.RoundOpened,
	RoundLocked:  topics.RoundLocked,
	RoundSettled: topics.RoundSettled,
	BetPlaced:    topics.BetPlaced,
}

func TestKafkaPublisher_RoutesByTopicAndRoundKey(t *testing.T) {
	w := &fakeWriter{}
	p := NewKafkaPublisher(w, testTopics)
	ctx := context.Background()

	require.NoError(t, p.PublishRoundOpened(ctx, events.RoundOpened{RoundID: 12, SeedHash: "abc"}))
	require.NoError(t, p.PublishBetPlaced(ctx, events.BetPlaced{BetID: "b1", RoundID: 12, Color: "RED", StakeMinor: 1000}))
	require.NoError(t, p.PublishRoundSettled(ctx, events.RoundSettled{RoundID: 12, Winner: "GREEN"}))

	require.Len(t, w.msgs, 3)
	assert.Equal(t, topics.RoundOpened, w.msgs[0].Topic)
	assert.Equal(t, topics.BetPlaced, w.msgs[1].Topic)
	assert.Equal(t, topics.RoundSettled, w.msgs[2].Topic)
	for _, m := range w.msgs {
		assert.Equal(t, "12", string(m.Key))
	}

	var bet events.BetPlaced
	require.NoError(t, json.Unmarshal(w.msgs[1].Value, &bet))
	assert.NotZero(t, bet.TsUnixMs)
	assert.Equal(t, int64(1000), bet.StakeMinor)
}

func TestKafkaPublisher_PropagatesWriteError(t *testing.T) {
	p := NewKafkaPublisher(&fakeWriter{err: errors.New("broker down")}, testTopics)
	err := p.PublishRoundLocked(context.Background(), events.RoundLocked{RoundID: 1})
	assert.EqualError(t, err, "broker down")
}
