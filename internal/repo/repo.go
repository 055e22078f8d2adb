package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/radieske/color-round-platform/internal/domain"
)

// LockMode controla o lock de linha pedido numa leitura dentro de Tx.
type LockMode int

const (
	LockNone LockMode = iota
	LockShare
	LockUpdate
)

// Store é a unidade de trabalho do motor. Tudo que altera saldo, round ou
// apostas passa por InTx: ou tudo é gravado, ou nada.
type Store interface {
	InTx(ctx context.Context, fn func(Tx) error) error
	// AcquireLeadership garante um único scheduler ativo por instância de jogo.
	// Retorna domain.ErrNotLeader se outro processo já detém o lock.
	AcquireLeadership(ctx context.Context) (release func(), err error)
	Ping(ctx context.Context) error
}

// Tx define as operações disponíveis dentro de uma unidade de trabalho.
// Nas listagens, limit <= 0 significa sem limite.
type Tx interface {
	// contas
	GetAccount(ctx context.Context, id string, lock LockMode) (*domain.Account, error)
	CreateAccount(ctx context.Context, a *domain.Account) error
	UpdateAccountBalance(ctx context.Context, id string, balance, expectedVersion int64, at time.Time) error
	SetAccountActive(ctx context.Context, id string, active bool, at time.Time) error

	// ledger
	GetTransactionByKey(ctx context.Context, key string) (*domain.Transaction, error)
	InsertTransaction(ctx context.Context, t *domain.Transaction) error
	ListTransactions(ctx context.Context, accountID string, limit int) ([]domain.Transaction, error)
	SumCommitted(ctx context.Context, accountID string) (int64, error)

	// rounds
	InsertRound(ctx context.Context, r *domain.Round) error
	GetRound(ctx context.Context, id int64, lock LockMode) (*domain.Round, error)
	LatestRound(ctx context.Context, lock LockMode) (*domain.Round, error)
	RoundsByStatus(ctx context.Context, status domain.RoundStatus) ([]domain.Round, error)
	RecentSettled(ctx context.Context, n int) ([]domain.Round, error)
	TransitionRound(ctx context.Context, id int64, from, to domain.RoundStatus) error
	FinalizeRound(ctx context.Context, id int64, winner domain.Color, at time.Time) error
	AddPool(ctx context.Context, roundID int64, color domain.Color, amount int64) error

	// apostas
	InsertBet(ctx context.Context, b *domain.Bet) error
	GetBet(ctx context.Context, id string) (*domain.Bet, error)
	BetsByRound(ctx context.Context, roundID int64) ([]domain.Bet, error)
	BetsByAccount(ctx context.Context, accountID string, limit int) ([]domain.Bet, error)
	AccountBetStats(ctx context.Context, accountID string) (domain.BetStats, error)
	SetBetOutcome(ctx context.Context, betID string, outcome domain.BetOutcome) error

	// depósitos e saques
	InsertFunding(ctx context.Context, f *domain.FundingRequest) error
	GetFunding(ctx context.Context, id string, lock LockMode) (*domain.FundingRequest, error)
	UpdateFundingStatus(ctx context.Context, id string, from, to domain.FundingStatus, at time.Time) error
}

// RetryPolicy define retentativas para conflitos de concorrência.
type RetryPolicy struct {
	Attempts int
	Min      time.Duration
	Max      time.Duration
}

var DefaultRetry = RetryPolicy{Attempts: 5, Min: 5 * time.Millisecond, Max: 200 * time.Millisecond}

// Retry executa fn retentando apenas conflitos (versão, chave duplicada).
// Esgotadas as tentativas retorna domain.ErrTransient.
func Retry(ctx context.Context, p RetryPolicy, fn func() error) error {
	if p.Attempts <= 0 {
		p.Attempts = 1
	}
	wait := p.Min
	var err error
	for i := 0; i < p.Attempts; i++ {
		if err = fn(); err == nil || !domain.IsConflict(err) {
			return err
		}
		if i == p.Attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		wait *= 2
		if wait > p.Max {
			wait = p.Max
		}
	}
	return fmt.Errorf("%w: %v", domain.ErrTransient, err)
}

// addStats acumula n apostas de um resultado no agregado da conta.
func addStats(st *domain.BetStats, outcome domain.BetOutcome, n, staked int64) {
	st.Total += n
	st.Staked += staked
	switch outcome {
	case domain.OutcomeWon:
		st.Won += n
	case domain.OutcomeLost:
		st.Lost += n
	default:
		st.Pending += n
	}
}

// IsNotFound é um atalho para errors.Is(err, domain.ErrNotFound).
func IsNotFound(err error) bool { return errors.Is(err, domain.ErrNotFound) }
