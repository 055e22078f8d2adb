package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/radieske/color-round-platform/internal/domain"
	"github.com/radieske/color-round-platform/internal/repo"
	"github.com/radieske/color-round-platform/internal/shared/metrics"
)

// Ledger é o log append-only de transações e mantém o saldo em cache das contas.
type Ledger struct {
	Store   repo.Store
	Log     *zap.Logger
	Metrics *metrics.Engine
	Retry   repo.RetryPolicy
	Now     func() time.Time
}

func New(store repo.Store, log *zap.Logger, m *metrics.Engine) *Ledger {
	return &Ledger{Store: store, Log: log, Metrics: m, Retry: repo.DefaultRetry, Now: time.Now}
}

// Post lança t dentro da unidade de trabalho do chamador.
// Se a chave já foi COMMITTED, devolve o lançamento existente e replay=true sem
// alterar saldo. Débitos que deixariam o saldo negativo retornam
// domain.ErrInsufficientBalance.
func (l *Ledger) Post(ctx context.Context, tx repo.Tx, t domain.Transaction) (posted *domain.Transaction, replay bool, err error) {
	if t.Key == "" {
		return nil, false, fmt.Errorf("empty idempotency key: %w", domain.ErrInvalidAmount)
	}
	if t.Amount == 0 {
		return nil, false, fmt.Errorf("zero amount: %w", domain.ErrInvalidAmount)
	}

	existing, err := tx.GetTransactionByKey(ctx, t.Key)
	switch {
	case err == nil:
		if existing.AccountID != t.AccountID || existing.Amount != t.Amount || existing.Kind != t.Kind {
			return nil, false, fmt.Errorf("key %s: %w", t.Key, domain.ErrIdempotencyMismatch)
		}
		l.Metrics.LedgerPosting(string(t.Kind), "replay")
		return existing, true, nil
	case !repo.IsNotFound(err):
		return nil, false, err
	}

	acc, err := tx.GetAccount(ctx, t.AccountID, repo.LockUpdate)
	if err != nil {
		return nil, false, err
	}
	// créditos de liquidação nunca são bloqueados por conta desativada
	if t.Debit() && !acc.Active {
		return nil, false, fmt.Errorf("account %s: %w", acc.ID, domain.ErrAccountInactive)
	}
	newBalance := acc.Balance + t.Amount
	if newBalance < 0 {
		l.Metrics.LedgerPosting(string(t.Kind), "rejected")
		return nil, false, fmt.Errorf("account %s balance %d, amount %d: %w", acc.ID, acc.Balance, -t.Amount, domain.ErrInsufficientBalance)
	}

	now := l.Now()
	t.ID = uuid.NewString()
	t.Status = domain.TxCommitted
	t.BalanceAfter = newBalance
	t.CreatedAt = now
	if err := tx.InsertTransaction(ctx, &t); err != nil {
		return nil, false, err
	}
	if err := tx.UpdateAccountBalance(ctx, acc.ID, newBalance, acc.Version, now); err != nil {
		return nil, false, err
	}
	l.Metrics.LedgerPosting(string(t.Kind), "committed")
	return &t, false, nil
}

// PostOne lança t na sua própria unidade de trabalho, com retentativa em conflito.
func (l *Ledger) PostOne(ctx context.Context, t domain.Transaction) (*domain.Transaction, error) {
	var out *domain.Transaction
	err := repo.Retry(ctx, l.Retry, func() error {
		return l.Store.InTx(ctx, func(tx repo.Tx) error {
			var err error
			out, _, err = l.Post(ctx, tx, t)
			return err
		})
	})
	return out, err
}

// Balance retorna o saldo COMMITTED atual da conta.
func (l *Ledger) Balance(ctx context.Context, accountID string) (int64, error) {
	var bal int64
	err := l.Store.InTx(ctx, func(tx repo.Tx) error {
		a, err := tx.GetAccount(ctx, accountID, repo.LockNone)
		if err != nil {
			return err
		}
		bal = a.Balance
		return nil
	})
	return bal, err
}

// History retorna os lançamentos mais recentes primeiro.
func (l *Ledger) History(ctx context.Context, accountID string, limit int) ([]domain.Transaction, error) {
	var out []domain.Transaction
	err := l.Store.InTx(ctx, func(tx repo.Tx) error {
		if _, err := tx.GetAccount(ctx, accountID, repo.LockNone); err != nil {
			return err
		}
		var err error
		out, err = tx.ListTransactions(ctx, accountID, limit)
		return err
	})
	return out, err
}

// ErrDrift indica saldo em cache diferente da soma do ledger.
var ErrDrift = errors.New("ledger drift")

// Reconcile confere o saldo em cache contra a soma dos lançamentos COMMITTED.
func (l *Ledger) Reconcile(ctx context.Context, accountID string) error {
	return l.Store.InTx(ctx, func(tx repo.Tx) error {
		a, err := tx.GetAccount(ctx, accountID, repo.LockShare)
		if err != nil {
			return err
		}
		sum, err := tx.SumCommitted(ctx, accountID)
		if err != nil {
			return err
		}
		if sum != a.Balance {
			l.Log.Error("ledger drift detected",
				zap.String("account_id", accountID),
				zap.Int64("cached", a.Balance),
				zap.Int64("ledger", sum),
			)
			return fmt.Errorf("account %s cached %d ledger %d: %w", accountID, a.Balance, sum, ErrDrift)
		}
		return nil
	})
}

// EnsureAccountTx cria a conta com saldo zero se ainda não existir.
func (l *Ledger) EnsureAccountTx(ctx context.Context, tx repo.Tx, accountID string) (*domain.Account, error) {
	a, err := tx.GetAccount(ctx, accountID, repo.LockNone)
	if err == nil {
		return a, nil
	}
	if !repo.IsNotFound(err) {
		return nil, err
	}
	now := l.Now()
	a = &domain.Account{ID: accountID, Active: true, CreatedAt: now, UpdatedAt: now}
	if err := tx.CreateAccount(ctx, a); err != nil {
		return nil, err
	}
	l.Log.Info("account created", zap.String("account_id", accountID))
	return a, nil
}

// EnsureAccount é o evento de cadastro: idempotente, retenta corrida de criação.
func (l *Ledger) EnsureAccount(ctx context.Context, accountID string) (*domain.Account, error) {
	if accountID == "" {
		return nil, fmt.Errorf("empty account id: %w", domain.ErrNotFound)
	}
	var out *domain.Account
	err := repo.Retry(ctx, l.Retry, func() error {
		return l.Store.InTx(ctx, func(tx repo.Tx) error {
			var err error
			out, err = l.EnsureAccountTx(ctx, tx, accountID)
			return err
		})
	})
	return out, err
}

// Deactivate bloqueia novos débitos; contas nunca são apagadas.
func (l *Ledger) Deactivate(ctx context.Context, accountID string) error {
	return l.Store.InTx(ctx, func(tx repo.Tx) error {
		return tx.SetAccountActive(ctx, accountID, false, l.Now())
	})
}
