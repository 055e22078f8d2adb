package round

import (
	"context"

	"github.com/radieske/color-round-platform/internal/domain"
	"github.com/radieske/color-round-platform/internal/repo"
)

// Limites de RecentResults.
const (
	DefaultRecent = 10
	RecentLimit   = 100
)

// Reader expõe as consultas de leitura sobre rounds e apostas.
type Reader struct {
	store repo.Store
}

func NewReader(store repo.Store) *Reader { return &Reader{store: store} }

// CurrentRound devolve o round OPEN ou, no intervalo entre rounds do modo
// sequencial, o mais recente. O seed só é exposto após a liquidação.
func (r *Reader) CurrentRound(ctx context.Context) (*domain.Round, error) {
	var out *domain.Round
	err := r.store.InTx(ctx, func(tx repo.Tx) error {
		open, err := tx.RoundsByStatus(ctx, domain.RoundOpen)
		if err != nil {
			return err
		}
		if len(open) > 0 {
			out = &open[0]
			return nil
		}
		out, err = tx.LatestRound(ctx, repo.LockNone)
		return err
	})
	if err != nil {
		return nil, err
	}
	return redact(out), nil
}

func (r *Reader) Round(ctx context.Context, id int64) (*domain.Round, error) {
	var out *domain.Round
	err := r.store.InTx(ctx, func(tx repo.Tx) error {
		var err error
		out, err = tx.GetRound(ctx, id, repo.LockNone)
		return err
	})
	if err != nil {
		return nil, err
	}
	return redact(out), nil
}

// RecentResults devolve os n últimos rounds liquidados, do mais novo ao mais antigo.
func (r *Reader) RecentResults(ctx context.Context, n int) ([]domain.Round, error) {
	if n <= 0 {
		n = DefaultRecent
	}
	if n > RecentLimit {
		n = RecentLimit
	}
	var out []domain.Round
	err := r.store.InTx(ctx, func(tx repo.Tx) error {
		var err error
		out, err = tx.RecentSettled(ctx, n)
		return err
	})
	return out, err
}

// BetsForAccount lista as apostas da conta, mais recentes primeiro.
func (r *Reader) BetsForAccount(ctx context.Context, accountID string, limit int) ([]domain.Bet, error) {
	var out []domain.Bet
	err := r.store.InTx(ctx, func(tx repo.Tx) error {
		if _, err := tx.GetAccount(ctx, accountID, repo.LockNone); err != nil {
			return err
		}
		var err error
		out, err = tx.BetsByAccount(ctx, accountID, limit)
		return err
	})
	return out, err
}

// AccountStats agrega todas as apostas da conta, sem paginação.
func (r *Reader) AccountStats(ctx context.Context, accountID string) (domain.BetStats, error) {
	var out domain.BetStats
	err := r.store.InTx(ctx, func(tx repo.Tx) error {
		if _, err := tx.GetAccount(ctx, accountID, repo.LockNone); err != nil {
			return err
		}
		var err error
		out, err = tx.AccountBetStats(ctx, accountID)
		return err
	})
	return out, err
}

func redact(r *domain.Round) *domain.Round {
	if r != nil && r.Status != domain.RoundSettled {
		r.Seed = ""
	}
	return r
}
