package round

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/radieske/color-round-platform/internal/domain"
	"github.com/radieske/color-round-platform/internal/ledger"
	"github.com/radieske/color-round-platform/internal/repo"
	"github.com/radieske/color-round-platform/internal/shared/metrics"
	"github.com/radieske/color-round-platform/pkg/contracts/events"
)

// BetRequest é o pedido de aposta já autenticado.
// RoundID zero significa o round aberto no momento da admissão.
// IdempotencyKey é opcional; quando presente, reenvios devolvem a aposta original.
type BetRequest struct {
	AccountID      string
	RoundID        int64
	Color          domain.Color
	Amount         int64
	IdempotencyKey string
}

// BetBook admite apostas no round aberto.
type BetBook struct {
	store   repo.Store
	ledger  *ledger.Ledger
	rules   Rules
	pub     Publisher
	log     *zap.Logger
	metrics *metrics.Engine
	now     func() time.Time
}

func NewBetBook(store repo.Store, l *ledger.Ledger, rules Rules, pub Publisher, log *zap.Logger, m *metrics.Engine) *BetBook {
	if pub == nil {
		pub = NopPublisher{}
	}
	return &BetBook{store: store, ledger: l, rules: rules, pub: pub, log: log, metrics: m, now: time.Now}
}

// Admit debita a aposta, grava o registro e soma na pool numa única unidade de
// trabalho. O round é lido com lock compartilhado, então o fechamento espera
// as admissões em andamento e nenhuma aposta entra depois do LOCKED.
func (b *BetBook) Admit(ctx context.Context, req BetRequest) (*domain.Bet, bool, error) {
	if !b.rules.HasColor(req.Color) {
		b.metrics.BetRejected("invalid_color")
		return nil, false, fmt.Errorf("color %q: %w", req.Color, domain.ErrInvalidColor)
	}
	if req.Amount < b.rules.MinBet {
		b.metrics.BetRejected("invalid_amount")
		return nil, false, fmt.Errorf("amount %d below minimum %d: %w", req.Amount, b.rules.MinBet, domain.ErrInvalidAmount)
	}

	ref := uuid.NewString()
	key := ledger.StakeKey(ref)
	if req.IdempotencyKey != "" {
		key = ledger.StakeKey(req.AccountID + ":" + req.IdempotencyKey)
	}

	var (
		bet    *domain.Bet
		replay bool
	)
	err := repo.Retry(ctx, b.ledger.Retry, func() error {
		bet, replay = nil, false
		return b.store.InTx(ctx, func(tx repo.Tx) error {
			if req.IdempotencyKey != "" {
				prev, err := tx.GetTransactionByKey(ctx, key)
				if err == nil {
					bet, err = originalBet(ctx, tx, prev.Reference, req)
					replay = err == nil
					return err
				}
				if !repo.IsNotFound(err) {
					return err
				}
			}

			roundID := req.RoundID
			if roundID == 0 {
				open, err := tx.RoundsByStatus(ctx, domain.RoundOpen)
				if err != nil {
					return err
				}
				if len(open) == 0 {
					return fmt.Errorf("no open round: %w", domain.ErrRoundClosed)
				}
				roundID = open[0].ID
			}
			r, err := tx.GetRound(ctx, roundID, repo.LockShare)
			if err != nil {
				if repo.IsNotFound(err) {
					return fmt.Errorf("round %d: %w", roundID, domain.ErrRoundClosed)
				}
				return err
			}
			now := b.now()
			if r.Status != domain.RoundOpen || !now.Before(r.BettingClosesAt(b.rules.GraceCutoff)) {
				return fmt.Errorf("round %d is %s, betting closed at %s: %w",
					r.ID, r.Status, r.BettingClosesAt(b.rules.GraceCutoff).Format(time.RFC3339), domain.ErrRoundClosed)
			}

			posted, dup, err := b.ledger.Post(ctx, tx, domain.Transaction{
				Key:       key,
				AccountID: req.AccountID,
				Kind:      domain.TxBetStake,
				Amount:    -req.Amount,
				Reference: ref,
			})
			if err != nil {
				return err
			}
			// pedido concorrente com a mesma chave gravou o débito depois da checagem acima
			if dup {
				bet, err = originalBet(ctx, tx, posted.Reference, req)
				replay = err == nil
				return err
			}

			bet = &domain.Bet{
				ID:        ref,
				RoundID:   r.ID,
				AccountID: req.AccountID,
				Color:     req.Color,
				Stake:     req.Amount,
				PlacedAt:  now,
				Outcome:   domain.OutcomePending,
				StakeKey:  key,
			}
			if err := tx.InsertBet(ctx, bet); err != nil {
				return err
			}
			return tx.AddPool(ctx, r.ID, req.Color, req.Amount)
		})
	})
	if err != nil {
		b.metrics.BetRejected(rejectReason(err))
		return nil, false, err
	}
	if replay {
		return bet, true, nil
	}

	b.metrics.BetAdmitted(string(bet.Color))
	b.log.Info("bet placed",
		zap.String("bet_id", bet.ID),
		zap.Int64("round_id", bet.RoundID),
		zap.String("account_id", bet.AccountID),
		zap.String("color", string(bet.Color)),
		zap.Int64("stake_minor", bet.Stake),
	)
	if err := b.pub.PublishBetPlaced(ctx, events.BetPlaced{
		BetID:      bet.ID,
		RoundID:    bet.RoundID,
		AccountID:  bet.AccountID,
		Color:      string(bet.Color),
		StakeMinor: bet.Stake,
		StakeKey:   bet.StakeKey,
		TsUnixMs:   bet.PlacedAt.UnixMilli(),
	}); err != nil {
		b.log.Warn("publish bet_placed failed", zap.String("bet_id", bet.ID), zap.Error(err))
	}
	return bet, false, nil
}

// originalBet carrega a aposta de um débito já gravado e confere que o
// reenvio descreve a mesma aposta.
func originalBet(ctx context.Context, tx repo.Tx, betID string, req BetRequest) (*domain.Bet, error) {
	bet, err := tx.GetBet(ctx, betID)
	if err != nil {
		return nil, err
	}
	if bet.AccountID != req.AccountID || bet.Stake != req.Amount || bet.Color != req.Color ||
		(req.RoundID != 0 && bet.RoundID != req.RoundID) {
		return nil, fmt.Errorf("key %s: %w", req.IdempotencyKey, domain.ErrIdempotencyMismatch)
	}
	return bet, nil
}

// AdmitCurrent aposta no round aberto no momento do pedido.
func (b *BetBook) AdmitCurrent(ctx context.Context, req BetRequest) (*domain.Bet, bool, error) {
	req.RoundID = 0
	return b.Admit(ctx, req)
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrRoundClosed):
		return "round_closed"
	case errors.Is(err, domain.ErrInsufficientBalance):
		return "insufficient_balance"
	case errors.Is(err, domain.ErrAccountInactive):
		return "account_inactive"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrIdempotencyMismatch):
		return "idempotency_mismatch"
	case errors.Is(err, domain.ErrTransient):
		return "transient"
	}
	return "error"
}
