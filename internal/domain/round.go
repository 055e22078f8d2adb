package domain

import "time"

type Color string

type RoundStatus string

const (
	RoundOpen    RoundStatus = "OPEN"
	RoundLocked  RoundStatus = "LOCKED"
	RoundSettled RoundStatus = "SETTLED"
)

// CanTransition valida a ordem OPEN -> LOCKED -> SETTLED, sem pular nem voltar.
func (s RoundStatus) CanTransition(to RoundStatus) bool {
	switch s {
	case RoundOpen:
		return to == RoundLocked
	case RoundLocked:
		return to == RoundSettled
	}
	return false
}

// Round é um período de apostas.
type Round struct {
	ID        int64
	Status    RoundStatus
	OpenAt    time.Time
	LockAt    time.Time
	SettledAt *time.Time
	Winner    Color // vazio até SETTLED
	Pools     map[Color]int64
	SeedHash  string // sha256(seed) publicado na abertura
	Seed      string // gravado na abertura, exposto somente após SETTLED
}

// TotalPool soma as pools de todas as cores.
func (r Round) TotalPool() int64 {
	var total int64
	for _, v := range r.Pools {
		total += v
	}
	return total
}

// BettingClosesAt é o instante em que novas apostas deixam de ser aceitas.
func (r Round) BettingClosesAt(grace time.Duration) time.Time {
	return r.LockAt.Add(-grace)
}
