package round

import (
	"context"

	"github.com/radieske/color-round-platform/internal/domain"
	"github.com/radieske/color-round-platform/pkg/contracts/events"
)

// Publisher recebe os eventos do motor depois do commit. Falhas não desfazem
// nada: o estado autoritativo fica no store.
type Publisher interface {
	PublishRoundOpened(ctx context.Context, ev events.RoundOpened) error
	PublishRoundLocked(ctx context.Context, ev events.RoundLocked) error
	PublishRoundSettled(ctx context.Context, ev events.RoundSettled) error
	PublishBetPlaced(ctx context.Context, ev events.BetPlaced) error
}

type NopPublisher struct{}

func (NopPublisher) PublishRoundOpened(context.Context, events.RoundOpened) error   { return nil }
func (NopPublisher) PublishRoundLocked(context.Context, events.RoundLocked) error   { return nil }
func (NopPublisher) PublishRoundSettled(context.Context, events.RoundSettled) error { return nil }
func (NopPublisher) PublishBetPlaced(context.Context, events.BetPlaced) error       { return nil }

// poolsByName converte as pools para o formato dos eventos, com todas as cores presentes.
func poolsByName(colors []domain.Color, pools map[domain.Color]int64) map[string]int64 {
	out := make(map[string]int64, len(colors))
	for _, c := range colors {
		out[string(c)] = pools[c]
	}
	return out
}

func openedEvent(r *domain.Round) events.RoundOpened {
	return events.RoundOpened{RoundID: r.ID, OpenAt: r.OpenAt, LockAt: r.LockAt, SeedHash: r.SeedHash}
}
