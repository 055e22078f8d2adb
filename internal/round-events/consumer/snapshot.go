package consumer

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/radieske/color-round-platform/internal/domain"
	"github.com/radieske/color-round-platform/pkg/contracts/events"
	"github.com/radieske/color-round-platform/pkg/contracts/topics"
)

var errUnknownTopic = errors.New("unknown topic")

// Topics mapeia os nomes configurados para cada tipo de evento de round.
type Topics struct {
	Opened    string
	Locked    string
	Settled   string
	BetPlaced string
}

func DefaultTopics() Topics {
	return Topics{Opened: topics.RoundOpened, Locked: topics.RoundLocked, Settled: topics.RoundSettled, BetPlaced: topics.BetPlaced}
}

func (t Topics) List() []string { return []string{t.Opened, t.Locked, t.Settled, t.BetPlaced} }

// BetActivity é o que o feed mostra de uma aposta: sem conta nem ids internos.
type BetActivity struct {
	RoundID    int64  `json:"round_id"`
	Color      string `json:"color"`
	StakeMinor int64  `json:"stake_minor"`
}

func decodeBet(value []byte) (BetActivity, error) {
	var ev events.BetPlaced
	if err := json.Unmarshal(value, &ev); err != nil {
		return BetActivity{}, err
	}
	if ev.RoundID <= 0 || ev.Color == "" || ev.StakeMinor <= 0 {
		return BetActivity{}, fmt.Errorf("bet %q: incomplete event", ev.BetID)
	}
	return BetActivity{RoundID: ev.RoundID, Color: ev.Color, StakeMinor: ev.StakeMinor}, nil
}

// decode converte a mensagem do tópico no snapshot parcial que ela descreve.
func (t Topics) decode(topic string, value []byte) (events.RoundSnapshot, error) {
	var s events.RoundSnapshot
	switch topic {
	case t.Opened:
		var ev events.RoundOpened
		if err := json.Unmarshal(value, &ev); err != nil {
			return s, err
		}
		s = events.RoundSnapshot{
			RoundID:  ev.RoundID,
			Status:   string(domain.RoundOpen),
			OpenAt:   ev.OpenAt,
			LockAt:   ev.LockAt,
			SeedHash: ev.SeedHash,
		}
	case t.Locked:
		var ev events.RoundLocked
		if err := json.Unmarshal(value, &ev); err != nil {
			return s, err
		}
		s = events.RoundSnapshot{
			RoundID:   ev.RoundID,
			Status:    string(domain.RoundLocked),
			LockAt:    ev.LockAt,
			Pools:     ev.Pools,
			TotalPool: sum(ev.Pools),
		}
	case t.Settled:
		var ev events.RoundSettled
		if err := json.Unmarshal(value, &ev); err != nil {
			return s, err
		}
		settledAt := ev.SettledAt
		s = events.RoundSnapshot{
			RoundID:   ev.RoundID,
			Status:    string(domain.RoundSettled),
			LockAt:    ev.LockAt,
			SeedHash:  ev.SeedHash,
			Pools:     ev.Pools,
			TotalPool: ev.TotalPool,
			Winner:    ev.Winner,
			Seed:      ev.Seed,
			SettledAt: &settledAt,
		}
	default:
		return s, fmt.Errorf("%s: %w", topic, errUnknownTopic)
	}
	if s.RoundID <= 0 {
		return s, fmt.Errorf("%s: missing round id", topic)
	}
	return s, nil
}

func sum(pools map[string]int64) int64 {
	var total int64
	for _, v := range pools {
		total += v
	}
	return total
}

func rank(status string) int {
	switch domain.RoundStatus(status) {
	case domain.RoundOpen:
		return 1
	case domain.RoundLocked:
		return 2
	case domain.RoundSettled:
		return 3
	}
	return 0
}

// merge aplica next sobre cur. Os tópicos não garantem ordem entre si, então
// um evento de round mais antigo, ou de estado anterior, não substitui o atual.
func merge(cur *events.RoundSnapshot, next events.RoundSnapshot) (events.RoundSnapshot, bool) {
	if cur == nil || next.RoundID > cur.RoundID {
		return next, true
	}
	if next.RoundID < cur.RoundID || rank(next.Status) <= rank(cur.Status) {
		return *cur, false
	}
	out := *cur
	out.Status = next.Status
	if !next.LockAt.IsZero() {
		out.LockAt = next.LockAt
	}
	if next.SeedHash != "" {
		out.SeedHash = next.SeedHash
	}
	if next.Pools != nil {
		out.Pools = next.Pools
		out.TotalPool = next.TotalPool
	}
	out.Winner = next.Winner
	out.Seed = next.Seed
	out.SettledAt = next.SettledAt
	return out, true
}
