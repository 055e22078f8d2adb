package wallet

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/radieske/color-round-platform/internal/domain"
	"github.com/radieske/color-round-platform/internal/ledger"
	"github.com/radieske/color-round-platform/internal/repo"
)

// Limits define os mínimos de depósito e saque em unidades mínimas.
type Limits struct {
	MinDeposit  int64
	MinWithdraw int64
}

// DefaultLimits: depósito mínimo ₹10, saque mínimo ₹100.
var DefaultLimits = Limits{MinDeposit: 1000, MinWithdraw: 10000}

// Service trata depósitos e saques verificados externamente.
// O saque reserva o valor na hora do pedido (débito WITHDRAW) e a rejeição
// devolve com WITHDRAW_REFUND, no mesmo esquema de reserva/commit/refund.
type Service struct {
	store  repo.Store
	ledger *ledger.Ledger
	limits Limits
	log    *zap.Logger
	now    func() time.Time
}

func NewService(store repo.Store, l *ledger.Ledger, limits Limits, log *zap.Logger) *Service {
	return &Service{store: store, ledger: l, limits: limits, log: log, now: time.Now}
}

// RequestDeposit registra o pedido como PENDING. Nenhum saldo muda até a aprovação.
func (s *Service) RequestDeposit(ctx context.Context, accountID string, amount int64, proofRef string) (*domain.FundingRequest, error) {
	if amount < s.limits.MinDeposit {
		return nil, fmt.Errorf("deposit %d below minimum %d: %w", amount, s.limits.MinDeposit, domain.ErrInvalidAmount)
	}
	if proofRef == "" {
		return nil, domain.ErrMissingProof
	}
	now := s.now()
	f := &domain.FundingRequest{
		ID:        uuid.NewString(),
		Kind:      domain.FundingDeposit,
		AccountID: accountID,
		Amount:    amount,
		ProofRef:  proofRef,
		Status:    domain.FundingPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err := s.store.InTx(ctx, func(tx repo.Tx) error {
		if _, err := s.ledger.EnsureAccountTx(ctx, tx, accountID); err != nil {
			return err
		}
		return tx.InsertFunding(ctx, f)
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("deposit requested", zap.String("request_id", f.ID), zap.String("account_id", accountID), zap.Int64("amount_minor", amount))
	return f, nil
}

// ApproveDeposit lança o DEPOSIT. Reaprovar devolve o pedido sem novo lançamento.
func (s *Service) ApproveDeposit(ctx context.Context, requestID string) (*domain.FundingRequest, error) {
	return s.resolve(ctx, requestID, domain.FundingDeposit, domain.FundingApproved, func(tx repo.Tx, f *domain.FundingRequest) error {
		if _, err := s.ledger.EnsureAccountTx(ctx, tx, f.AccountID); err != nil {
			return err
		}
		_, _, err := s.ledger.Post(ctx, tx, domain.Transaction{
			Key:       ledger.DepositKey(f.ID),
			AccountID: f.AccountID,
			Kind:      domain.TxDeposit,
			Amount:    f.Amount,
			Reference: f.ProofRef,
		})
		return err
	})
}

func (s *Service) RejectDeposit(ctx context.Context, requestID string) (*domain.FundingRequest, error) {
	return s.resolve(ctx, requestID, domain.FundingDeposit, domain.FundingRejected, nil)
}

// RequestWithdraw valida mínimo e saldo e já debita o valor como reserva.
// Dois pedidos concorrentes que somados excedem o saldo: só um passa.
func (s *Service) RequestWithdraw(ctx context.Context, accountID string, amount int64) (*domain.FundingRequest, error) {
	if amount < s.limits.MinWithdraw {
		return nil, fmt.Errorf("withdraw %d below minimum %d: %w", amount, s.limits.MinWithdraw, domain.ErrInvalidAmount)
	}
	now := s.now()
	f := &domain.FundingRequest{
		ID:        uuid.NewString(),
		Kind:      domain.FundingWithdraw,
		AccountID: accountID,
		Amount:    amount,
		Status:    domain.FundingPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err := repo.Retry(ctx, s.ledger.Retry, func() error {
		return s.store.InTx(ctx, func(tx repo.Tx) error {
			if _, _, err := s.ledger.Post(ctx, tx, domain.Transaction{
				Key:       ledger.WithdrawKey(f.ID),
				AccountID: accountID,
				Kind:      domain.TxWithdraw,
				Amount:    -amount,
				Reference: f.ID,
			}); err != nil {
				return err
			}
			return tx.InsertFunding(ctx, f)
		})
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("withdraw requested", zap.String("request_id", f.ID), zap.String("account_id", accountID), zap.Int64("amount_minor", amount))
	return f, nil
}

// CompleteWithdraw confirma o pagamento externo; o débito já foi feito no pedido.
func (s *Service) CompleteWithdraw(ctx context.Context, requestID string) (*domain.FundingRequest, error) {
	return s.resolve(ctx, requestID, domain.FundingWithdraw, domain.FundingApproved, nil)
}

// RejectWithdraw devolve a reserva com WITHDRAW_REFUND.
func (s *Service) RejectWithdraw(ctx context.Context, requestID string) (*domain.FundingRequest, error) {
	return s.resolve(ctx, requestID, domain.FundingWithdraw, domain.FundingRejected, func(tx repo.Tx, f *domain.FundingRequest) error {
		_, _, err := s.ledger.Post(ctx, tx, domain.Transaction{
			Key:       ledger.WithdrawRefundKey(f.ID),
			AccountID: f.AccountID,
			Kind:      domain.TxWithdrawRefund,
			Amount:    f.Amount,
			Reference: f.ID,
		})
		return err
	})
}

func (s *Service) Get(ctx context.Context, requestID string) (*domain.FundingRequest, error) {
	var out *domain.FundingRequest
	err := s.store.InTx(ctx, func(tx repo.Tx) error {
		var err error
		out, err = tx.GetFunding(ctx, requestID, repo.LockNone)
		return err
	})
	return out, err
}

// resolve tira o pedido de PENDING uma única vez. Repetir a mesma decisão
// devolve o estado atual; decisão contrária retorna ErrInvalidState.
func (s *Service) resolve(ctx context.Context, requestID string, kind domain.FundingKind, to domain.FundingStatus,
	effect func(repo.Tx, *domain.FundingRequest) error) (*domain.FundingRequest, error) {
	var out *domain.FundingRequest
	err := repo.Retry(ctx, s.ledger.Retry, func() error {
		return s.store.InTx(ctx, func(tx repo.Tx) error {
			f, err := tx.GetFunding(ctx, requestID, repo.LockUpdate)
			if err != nil {
				return err
			}
			if f.Kind != kind {
				return fmt.Errorf("request %s is a %s: %w", f.ID, f.Kind, domain.ErrNotFound)
			}
			if f.Status == to {
				out = f
				return nil
			}
			if f.Status != domain.FundingPending {
				return fmt.Errorf("request %s already %s: %w", f.ID, f.Status, domain.ErrInvalidState)
			}
			if effect != nil {
				if err := effect(tx, f); err != nil {
					return err
				}
			}
			now := s.now()
			if err := tx.UpdateFundingStatus(ctx, f.ID, domain.FundingPending, to, now); err != nil {
				return err
			}
			f.Status = to
			f.UpdatedAt = now
			out = f
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("funding request resolved",
		zap.String("request_id", out.ID),
		zap.String("kind", string(out.Kind)),
		zap.String("status", string(out.Status)),
	)
	return out, nil
}
