package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/radieske/color-round-platform/internal/domain"
)

// Rupees formata unidades mínimas como valor em rupias com duas casas.
func Rupees(minor int64) string { return decimal.New(minor, -2).StringFixed(2) }

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

type BetResponse struct {
	BetID      string    `json:"betId"`
	RoundID    int64     `json:"roundId"`
	AccountID  string    `json:"accountId"`
	Color      string    `json:"color"`
	StakeMinor int64     `json:"stake_minor"`
	Stake      string    `json:"stake"`
	Outcome    string    `json:"outcome"`
	PlacedAt   time.Time `json:"placedAt"`
	Replayed   bool      `json:"replayed,omitempty"`
}

func NewBetResponse(b *domain.Bet, replayed bool) BetResponse {
	return BetResponse{
		BetID:      b.ID,
		RoundID:    b.RoundID,
		AccountID:  b.AccountID,
		Color:      string(b.Color),
		StakeMinor: b.Stake,
		Stake:      Rupees(b.Stake),
		Outcome:    string(b.Outcome),
		PlacedAt:   b.PlacedAt,
		Replayed:   replayed,
	}
}

type RoundResponse struct {
	RoundID         int64            `json:"roundId"`
	Status          string           `json:"status"`
	OpenAt          time.Time        `json:"openAt"`
	LockAt          time.Time        `json:"lockAt"`
	BettingClosesAt time.Time        `json:"bettingClosesAt"`
	SettledAt       *time.Time       `json:"settledAt,omitempty"`
	Winner          string           `json:"winner,omitempty"`
	Pools           map[string]int64 `json:"pools_minor"`
	TotalPoolMinor  int64            `json:"total_pool_minor"`
	SeedHash        string           `json:"seedHash"`
	Seed            string           `json:"seed,omitempty"` // só após SETTLED
}

// NewRoundResponse inclui todas as cores configuradas nas pools, mesmo sem apostas.
func NewRoundResponse(r *domain.Round, colors []domain.Color, grace time.Duration) RoundResponse {
	pools := make(map[string]int64, len(colors))
	for _, c := range colors {
		pools[string(c)] = r.Pools[c]
	}
	return RoundResponse{
		RoundID:         r.ID,
		Status:          string(r.Status),
		OpenAt:          r.OpenAt,
		LockAt:          r.LockAt,
		BettingClosesAt: r.BettingClosesAt(grace),
		SettledAt:       r.SettledAt,
		Winner:          string(r.Winner),
		Pools:           pools,
		TotalPoolMinor:  r.TotalPool(),
		SeedHash:        r.SeedHash,
		Seed:            r.Seed,
	}
}

type AccountResponse struct {
	AccountID    string `json:"accountId"`
	BalanceMinor int64  `json:"balance_minor"`
	Balance      string `json:"balance"`
	Active       bool   `json:"active"`
}

type BalanceResponse struct {
	AccountID    string `json:"accountId"`
	BalanceMinor int64  `json:"balance_minor"`
	Balance      string `json:"balance"`
}

type TransactionResponse struct {
	ID                string    `json:"id"`
	Key               string    `json:"idempotencyKey"`
	Kind              string    `json:"kind"`
	AmountMinor       int64     `json:"amount_minor"`
	BalanceAfterMinor int64     `json:"balance_after_minor"`
	Status            string    `json:"status"`
	Reference         string    `json:"reference,omitempty"`
	CreatedAt         time.Time `json:"createdAt"`
}

func NewTransactionResponse(t domain.Transaction) TransactionResponse {
	return TransactionResponse{
		ID:                t.ID,
		Key:               t.Key,
		Kind:              string(t.Kind),
		AmountMinor:       t.Amount,
		BalanceAfterMinor: t.BalanceAfter,
		Status:            string(t.Status),
		Reference:         t.Reference,
		CreatedAt:         t.CreatedAt,
	}
}

type FundingResponse struct {
	RequestID   string    `json:"requestId"`
	Kind        string    `json:"kind"`
	AccountID   string    `json:"accountId"`
	AmountMinor int64     `json:"amount_minor"`
	ProofRef    string    `json:"proofRef,omitempty"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func NewFundingResponse(f *domain.FundingRequest) FundingResponse {
	return FundingResponse{
		RequestID:   f.ID,
		Kind:        string(f.Kind),
		AccountID:   f.AccountID,
		AmountMinor: f.Amount,
		ProofRef:    f.ProofRef,
		Status:      string(f.Status),
		CreatedAt:   f.CreatedAt,
		UpdatedAt:   f.UpdatedAt,
	}
}

type StatsResponse struct {
	AccountID    string `json:"accountId"`
	TotalBets    int64  `json:"totalBets"`
	Wins         int64  `json:"wins"`
	Losses       int64  `json:"losses"`
	Pending      int64  `json:"pending"`
	StakedMinor  int64  `json:"staked_minor"`
	PaidOutMinor int64  `json:"paid_out_minor"`
	NetMinor     int64  `json:"net_minor"`
	Net          string `json:"net"`
}

func NewStatsResponse(accountID string, s domain.BetStats) StatsResponse {
	return StatsResponse{
		AccountID:    accountID,
		TotalBets:    s.Total,
		Wins:         s.Won,
		Losses:       s.Lost,
		Pending:      s.Pending,
		StakedMinor:  s.Staked,
		PaidOutMinor: s.PaidOut,
		NetMinor:     s.Net(),
		Net:          Rupees(s.Net()),
	}
}
