package round

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/color-round-platform/internal/domain"
	"github.com/radieske/color-round-platform/internal/ledger"
	"github.com/radieske/color-round-platform/internal/repo"
	"github.com/radieske/color-round-platform/internal/shared/metrics"
	"github.com/radieske/color-round-platform/pkg/contracts/events"
)

// Result resume a liquidação de um round.
type Result struct {
	RoundID     int64
	Winner      domain.Color
	Pools       map[domain.Color]int64
	LockAt      time.Time
	WinningBets int
	PaidOut     int64 // soma dos créditos líquidos
	Fees        int64
	Seed        string
	SeedHash    string
	SettledAt   time.Time
	// Replayed indica que o round já estava SETTLED e nada foi lançado.
	Replayed bool
}

// Settler liquida rounds LOCKED.
type Settler struct {
	store   repo.Store
	ledger  *ledger.Ledger
	rules   Rules
	pub     Publisher
	log     *zap.Logger
	metrics *metrics.Engine
	now     func() time.Time
}

func NewSettler(store repo.Store, l *ledger.Ledger, rules Rules, pub Publisher, log *zap.Logger, m *metrics.Engine) *Settler {
	if pub == nil {
		pub = NopPublisher{}
	}
	return &Settler{store: store, ledger: l, rules: rules, pub: pub, log: log, metrics: m, now: time.Now}
}

// Settle determina a cor vencedora, credita os vencedores e marca o round como
// SETTLED numa única unidade de trabalho. Reexecutar sobre um round já
// liquidado devolve o resultado gravado; todos os lançamentos usam chaves
// determinísticas, então nenhuma execução credita duas vezes.
func (s *Settler) Settle(ctx context.Context, roundID int64) (*Result, error) {
	var res *Result
	err := repo.Retry(ctx, s.ledger.Retry, func() error {
		res = nil
		return s.store.InTx(ctx, func(tx repo.Tx) error {
			r, err := tx.GetRound(ctx, roundID, repo.LockUpdate)
			if err != nil {
				return err
			}
			bets, err := tx.BetsByRound(ctx, roundID)
			if err != nil {
				return err
			}

			switch r.Status {
			case domain.RoundSettled:
				res = s.storedResult(r, bets)
				return nil
			case domain.RoundOpen:
				return fmt.Errorf("round %d is still open: %w", roundID, domain.ErrInvalidState)
			}

			s.checkPools(r, bets)

			if _, err := s.ledger.EnsureAccountTx(ctx, tx, s.rules.HouseAccount); err != nil {
				return err
			}

			winner := PickWinner(s.rules.Colors, r.Pools, r.Seed, r.ID)
			res = &Result{RoundID: r.ID, Winner: winner, Pools: r.Pools, LockAt: r.LockAt, Seed: r.Seed, SeedHash: r.SeedHash}
			ref := strconv.FormatInt(r.ID, 10)

			for _, b := range bets {
				if b.Color != winner {
					if err := tx.SetBetOutcome(ctx, b.ID, domain.OutcomeLost); err != nil {
						return err
					}
					continue
				}
				_, fee, net := s.rules.Payout(b.Stake)
				if _, _, err := s.ledger.Post(ctx, tx, domain.Transaction{
					Key:       ledger.PayoutKey(r.ID, b.ID),
					AccountID: b.AccountID,
					Kind:      domain.TxPayout,
					Amount:    net,
					Reference: ref,
				}); err != nil {
					return fmt.Errorf("payout bet %s: %w", b.ID, err)
				}
				if fee > 0 {
					if _, _, err := s.ledger.Post(ctx, tx, domain.Transaction{
						Key:       ledger.FeeKey(r.ID, b.ID),
						AccountID: s.rules.HouseAccount,
						Kind:      domain.TxPlatformFee,
						Amount:    fee,
						Reference: ref,
					}); err != nil {
						return fmt.Errorf("fee bet %s: %w", b.ID, err)
					}
				}
				if err := tx.SetBetOutcome(ctx, b.ID, domain.OutcomeWon); err != nil {
					return err
				}
				res.WinningBets++
				res.PaidOut += net
				res.Fees += fee
			}

			res.SettledAt = s.now()
			return tx.FinalizeRound(ctx, r.ID, winner, res.SettledAt)
		})
	})
	if err != nil {
		return nil, err
	}
	if res.Replayed {
		return res, nil
	}

	s.metrics.RoundTransition(string(domain.RoundSettled))
	s.log.Info("round settled",
		zap.Int64("round_id", res.RoundID),
		zap.String("winner", string(res.Winner)),
		zap.Int("winning_bets", res.WinningBets),
		zap.Int64("paid_out_minor", res.PaidOut),
		zap.Int64("fees_minor", res.Fees),
	)
	var total int64
	for _, v := range res.Pools {
		total += v
	}
	if err := s.pub.PublishRoundSettled(ctx, events.RoundSettled{
		RoundID:     res.RoundID,
		Winner:      string(res.Winner),
		LockAt:      res.LockAt,
		Pools:       poolsByName(s.rules.Colors, res.Pools),
		TotalPool:   total,
		WinningBets: res.WinningBets,
		PaidOut:     res.PaidOut,
		Fees:        res.Fees,
		Seed:        res.Seed,
		SeedHash:    res.SeedHash,
		SettledAt:   res.SettledAt,
	}); err != nil {
		s.log.Warn("publish round_settled failed", zap.Int64("round_id", res.RoundID), zap.Error(err))
	}
	return res, nil
}

func (s *Settler) storedResult(r *domain.Round, bets []domain.Bet) *Result {
	res := &Result{RoundID: r.ID, Winner: r.Winner, Pools: r.Pools, LockAt: r.LockAt, Seed: r.Seed, SeedHash: r.SeedHash, Replayed: true}
	if r.SettledAt != nil {
		res.SettledAt = *r.SettledAt
	}
	for _, b := range bets {
		if b.Outcome != domain.OutcomeWon {
			continue
		}
		_, fee, net := s.rules.Payout(b.Stake)
		res.WinningBets++
		res.PaidOut += net
		res.Fees += fee
	}
	return res
}

// checkPools compara as pools gravadas com a soma das apostas do round.
func (s *Settler) checkPools(r *domain.Round, bets []domain.Bet) {
	sum := make(map[domain.Color]int64, len(s.rules.Colors))
	for _, b := range bets {
		sum[b.Color] += b.Stake
	}
	for _, c := range s.rules.Colors {
		if sum[c] != r.Pools[c] {
			s.log.Error("pool mismatch",
				zap.Int64("round_id", r.ID),
				zap.String("color", string(c)),
				zap.Int64("pool", r.Pools[c]),
				zap.Int64("bets", sum[c]),
			)
		}
	}
}
