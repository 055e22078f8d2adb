package consumer

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/color-round-platform/internal/shared/kafka"
	"github.com/radieske/color-round-platform/pkg/contracts/events"
)

// SnapshotStore é o cache de leitura do feed.
type SnapshotStore interface {
	Current(ctx context.Context) (*events.RoundSnapshot, bool, error)
	SetCurrent(ctx context.Context, s events.RoundSnapshot) error
	PushRecent(ctx context.Context, s events.RoundSnapshot) error
}

type Broadcaster interface {
	Broadcast(ctx context.Context, u events.FeedUpdate) error
}

// Processor consome os eventos de round do Kafka, atualiza o cache Redis e
// repassa cada evento ao feed via Pub/Sub. Mensagens ilegíveis vão para a DLQ.
// O commit acontece depois do processamento: entrega pelo menos uma vez.
type Processor struct {
	Log         *zap.Logger
	Reader      kafka.MessageFetcher
	Topics      Topics
	Cache       SnapshotStore
	Broadcaster Broadcaster
	DLQ         kafka.MessageWriter
	DLQTopic    string

	OnConsumed  func(topic string) // métricas
	OnCached    func()             // métricas
	OnBroadcast func()             // métricas
	OnError     func(string)       // métricas por fase

	RetryDelay time.Duration
}

// Run roda até ctx ser cancelado.
func (p *Processor) Run(ctx context.Context) error {
	delay := p.RetryDelay
	if delay <= 0 {
		delay = 500 * time.Millisecond
	}
	for {
		m, err := kafka.FetchNext(ctx, p.Reader)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.Log.Warn("kafka read failed", zap.Error(err))
			p.fail("read")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			continue
		}

		p.Handle(ctx, m)

		if err := p.Reader.CommitMessages(ctx, m); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.Log.Warn("kafka commit failed", zap.Error(err), zap.String("topic", m.Topic), zap.Int64("offset", m.Offset))
			p.fail("commit")
		}
	}
}

// Handle processa uma mensagem. Falhas de cache não impedem o broadcast.
func (p *Processor) Handle(ctx context.Context, m kafka.Message) {
	if p.OnConsumed != nil {
		p.OnConsumed(m.Topic)
	}

	if m.Topic == p.Topics.BetPlaced {
		p.handleBet(ctx, m)
		return
	}

	snap, err := p.Topics.decode(m.Topic, m.Value)
	if err != nil {
		p.Log.Warn("invalid round event", zap.String("topic", m.Topic), zap.Error(err))
		p.fail("decode")
		p.deadLetter(ctx, m)
		return
	}

	if err := p.updateCache(ctx, m.Topic, snap); err != nil {
		p.Log.Warn("redis update failed", zap.Int64("round_id", snap.RoundID), zap.Error(err))
		p.fail("cache")
	} else if p.OnCached != nil {
		p.OnCached()
	}

	p.broadcast(ctx, events.FeedUpdate{Stream: events.StreamRounds, Type: m.Topic, RoundID: snap.RoundID, Payload: m.Value})
}

// handleBet repassa a atividade de aposta ao feed. Não toca o cache: as pools
// oficiais chegam com round_locked.
func (p *Processor) handleBet(ctx context.Context, m kafka.Message) {
	act, err := decodeBet(m.Value)
	if err != nil {
		p.Log.Warn("invalid bet event", zap.Error(err))
		p.fail("decode")
		p.deadLetter(ctx, m)
		return
	}
	payload, err := json.Marshal(act)
	if err != nil {
		p.fail("decode")
		return
	}
	p.broadcast(ctx, events.FeedUpdate{Stream: events.StreamRounds, Type: m.Topic, RoundID: act.RoundID, Payload: payload})
}

func (p *Processor) broadcast(ctx context.Context, upd events.FeedUpdate) {
	if err := p.Broadcaster.Broadcast(ctx, upd); err != nil {
		p.Log.Warn("ws broadcast publish failed", zap.Int64("round_id", upd.RoundID), zap.Error(err))
		p.fail("broadcast")
		return
	}
	if p.OnBroadcast != nil {
		p.OnBroadcast()
	}
}

func (p *Processor) updateCache(ctx context.Context, topic string, snap events.RoundSnapshot) error {
	cur, _, err := p.Cache.Current(ctx)
	if err != nil {
		return err
	}
	if next, changed := merge(cur, snap); changed {
		if err := p.Cache.SetCurrent(ctx, next); err != nil {
			return err
		}
	}
	if topic == p.Topics.Settled {
		recent := snap
		if cur != nil && cur.RoundID == snap.RoundID {
			recent, _ = merge(cur, snap)
		}
		return p.Cache.PushRecent(ctx, recent)
	}
	return nil
}

func (p *Processor) deadLetter(ctx context.Context, m kafka.Message) {
	if p.DLQ == nil || p.DLQTopic == "" {
		return
	}
	key := string(m.Key)
	if key == "" {
		key = m.Topic + ":" + strconv.FormatInt(m.Offset, 10)
	}
	if err := kafka.WriteJSON(ctx, p.DLQ, p.DLQTopic, key, m.Value); err != nil {
		p.Log.Error("dlq write failed", zap.String("topic", m.Topic), zap.Int64("offset", m.Offset), zap.Error(err))
		p.fail("dlq")
	}
}

func (p *Processor) fail(stage string) {
	if p.OnError != nil {
		p.OnError(stage)
	}
}
