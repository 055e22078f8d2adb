package events

import "time"

// RoundOpened é publicado quando um round novo passa a aceitar apostas.
// SeedHash permite verificar o desempate depois que o seed é revelado.
type RoundOpened struct {
	RoundID  int64     `json:"round_id"`
	OpenAt   time.Time `json:"open_at"`
	LockAt   time.Time `json:"lock_at"`
	SeedHash string    `json:"seed_hash"`
}

// RoundLocked carrega as pools finais no momento do fechamento.
type RoundLocked struct {
	RoundID  int64            `json:"round_id"`
	LockAt   time.Time        `json:"lock_at"`
	Pools    map[string]int64 `json:"pools"`
	LockedAt time.Time        `json:"locked_at"`
}

type RoundSettled struct {
	RoundID     int64            `json:"round_id"`
	Winner      string           `json:"winner"`
	LockAt      time.Time        `json:"lock_at"`
	Pools       map[string]int64 `json:"pools"`
	TotalPool   int64            `json:"total_pool"`
	WinningBets int              `json:"winning_bets"`
	PaidOut     int64            `json:"paid_out"`
	Fees        int64            `json:"fees"`
	Seed        string           `json:"seed"`
	SeedHash    string           `json:"seed_hash"`
	SettledAt   time.Time        `json:"settled_at"`
}
