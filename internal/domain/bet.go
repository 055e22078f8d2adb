package domain

import "time"

type BetOutcome string

const (
	OutcomePending BetOutcome = "PENDING"
	OutcomeWon     BetOutcome = "WON"
	OutcomeLost    BetOutcome = "LOST"
)

type Bet struct {
	ID        string
	RoundID   int64
	AccountID string
	Color     Color
	Stake     int64
	PlacedAt  time.Time
	Outcome   BetOutcome
	StakeKey  string // chave da transação BET_STAKE correspondente
}

// BetStats agrega o histórico de apostas de uma conta.
// PaidOut soma os créditos PAYOUT já líquidos da taxa.
type BetStats struct {
	Total   int64
	Won     int64
	Lost    int64
	Pending int64
	Staked  int64
	PaidOut int64
}

// Net é o resultado acumulado da conta: prêmios recebidos menos o apostado.
func (s BetStats) Net() int64 { return s.PaidOut - s.Staked }
