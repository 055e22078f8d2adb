package events

import (
	"encoding/json"
	"time"
)

// RoundSnapshot é a visão do round mantida no Redis pelo round-events-worker
// e servida pelo feed-service. Seed só aparece depois de SETTLED.
type RoundSnapshot struct {
	RoundID   int64            `json:"round_id"`
	Status    string           `json:"status"`
	OpenAt    time.Time        `json:"open_at,omitempty"`
	LockAt    time.Time        `json:"lock_at"`
	SeedHash  string           `json:"seed_hash,omitempty"`
	Pools     map[string]int64 `json:"pools,omitempty"`
	TotalPool int64            `json:"total_pool"`
	Winner    string           `json:"winner,omitempty"`
	Seed      string           `json:"seed,omitempty"`
	SettledAt *time.Time       `json:"settled_at,omitempty"`
}

// FeedUpdate é o envelope publicado no Redis Pub/Sub e repassado aos clientes WS.
type FeedUpdate struct {
	Stream  string          `json:"stream"` // "rounds"
	Type    string          `json:"type"`   // tópico de origem
	RoundID int64           `json:"roundId"`
	Payload json.RawMessage `json:"payload"`
}

// StreamRounds é o único stream do feed hoje.
const StreamRounds = "rounds"
