package producer

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/radieske/color-round-platform/pkg/contracts/events"
)

// MessageWriter é o subconjunto de *kafka.Writer usado aqui.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

type Topics struct {
	RoundOpened  string
	RoundLocked  string
	RoundSettled string
	BetPlaced    string
}

// KafkaPublisher publica os eventos do motor. A chave é o id do round, então
// todos os eventos de um round caem na mesma partição, em ordem.
type KafkaPublisher struct {
	Writer  MessageWriter
	Topics  Topics
	Timeout time.Duration
}

func NewKafkaPublisher(w MessageWriter, topics Topics) *KafkaPublisher {
	return &KafkaPublisher{Writer: w, Topics: topics, Timeout: 2 * time.Second}
}

func (p *KafkaPublisher) PublishRoundOpened(ctx context.Context, e events.RoundOpened) error {
	return p.write(ctx, p.Topics.RoundOpened, e.RoundID, e)
}

func (p *KafkaPublisher) PublishRoundLocked(ctx context.Context, e events.RoundLocked) error {
	return p.write(ctx, p.Topics.RoundLocked, e.RoundID, e)
}

func (p *KafkaPublisher) PublishRoundSettled(ctx context.Context, e events.RoundSettled) error {
	return p.write(ctx, p.Topics.RoundSettled, e.RoundID, e)
}

func (p *KafkaPublisher) PublishBetPlaced(ctx context.Context, e events.BetPlaced) error {
	if e.TsUnixMs == 0 {
		e.TsUnixMs = time.Now().UnixMilli()
	}
	return p.write(ctx, p.Topics.BetPlaced, e.RoundID, e)
}

func (p *KafkaPublisher) write(ctx context.Context, topic string, roundID int64, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}
	return p.Writer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   []byte(strconv.FormatInt(roundID, 10)),
		Value: b,
		Time:  time.Now(),
	})
}
