package round

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/color-round-platform/internal/domain"
	"github.com/radieske/color-round-platform/internal/repo"
	"github.com/radieske/color-round-platform/internal/shared/metrics"
	"github.com/radieske/color-round-platform/pkg/contracts/events"
)

// RoundSettler é o que o scheduler precisa para liquidar um round.
type RoundSettler interface {
	Settle(ctx context.Context, roundID int64) (*Result, error)
}

type SchedulerConfig struct {
	Tick           time.Duration
	SettleTimeout  time.Duration
	BackoffMin     time.Duration
	BackoffMax     time.Duration
	AlertAfter     int
	Pipelined      bool          // abre o próximo round junto com o fechamento do atual
	LeaderInterval time.Duration // espera entre tentativas de liderança
}

func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Tick:           250 * time.Millisecond,
		SettleTimeout:  10 * time.Second,
		BackoffMin:     500 * time.Millisecond,
		BackoffMax:     30 * time.Second,
		AlertAfter:     5,
		Pipelined:      true,
		LeaderInterval: 2 * time.Second,
	}
}

type settleState struct {
	inFlight    bool
	attempts    int
	nextAttempt time.Time
}

// Scheduler conduz o ciclo OPEN -> LOCKED -> SETTLED. O tick nunca espera a
// liquidação: rounds LOCKED são liquidados em goroutines próprias, com
// retentativa ilimitada e backoff exponencial.
type Scheduler struct {
	store   repo.Store
	settler RoundSettler
	rules   Rules
	cfg     SchedulerConfig
	pub     Publisher
	log     *zap.Logger
	metrics *metrics.Engine
	now     func() time.Time

	mu           sync.Mutex
	open         *domain.Round
	pending      map[int64]*settleState
	nextOpenAt   time.Time
	openFailures int
	wg           sync.WaitGroup
}

func NewScheduler(store repo.Store, settler RoundSettler, rules Rules, cfg SchedulerConfig, pub Publisher, log *zap.Logger, m *metrics.Engine) *Scheduler {
	if pub == nil {
		pub = NopPublisher{}
	}
	return &Scheduler{
		store:   store,
		settler: settler,
		rules:   rules,
		cfg:     cfg,
		pub:     pub,
		log:     log,
		metrics: m,
		now:     time.Now,
		pending: make(map[int64]*settleState),
	}
}

// Run bloqueia até ctx ser cancelado. Só conduz rounds depois de obter a
// liderança; ao sair espera as liquidações em andamento.
func (s *Scheduler) Run(ctx context.Context) error {
	release, err := s.lead(ctx)
	if err != nil {
		return err
	}
	defer release()

	if err := s.Recover(ctx); err != nil {
		s.log.Warn("recover failed, will retry on tick", zap.Error(err))
	}

	ticker := time.NewTicker(s.cfg.Tick)
	defer ticker.Stop()
	s.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			s.wg.Wait()
			s.log.Info("scheduler stopped")
			return nil
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

func (s *Scheduler) lead(ctx context.Context) (func(), error) {
	for {
		release, err := s.store.AcquireLeadership(ctx)
		if err == nil {
			s.log.Info("scheduler leadership acquired")
			return release, nil
		}
		if !errors.Is(err, domain.ErrNotLeader) {
			s.log.Warn("leadership attempt failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.cfg.LeaderInterval):
		}
	}
}

// Recover carrega o estado persistido: rounds LOCKED entram na fila de
// liquidação e o round OPEN, se existir, volta a ser conduzido.
func (s *Scheduler) Recover(ctx context.Context) error {
	var open, locked []domain.Round
	err := s.store.InTx(ctx, func(tx repo.Tx) error {
		var err error
		if open, err = tx.RoundsByStatus(ctx, domain.RoundOpen); err != nil {
			return err
		}
		locked, err = tx.RoundsByStatus(ctx, domain.RoundLocked)
		return err
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.open = nil
	if len(open) > 0 {
		r := open[0]
		s.open = &r
	}
	for _, r := range locked {
		if _, ok := s.pending[r.ID]; !ok {
			s.pending[r.ID] = &settleState{}
		}
	}
	s.metrics.AwaitingSettlement(len(s.pending))
	s.log.Info("scheduler recovered",
		zap.Int("open", len(open)),
		zap.Int("awaiting_settlement", len(locked)),
	)
	return nil
}

// Tick fecha o round vencido, dispara liquidações e garante um round aberto.
func (s *Scheduler) Tick(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	s.lockDue(ctx, now)
	s.dispatch(ctx, now)
	s.ensureOpen(ctx, now)
}

func (s *Scheduler) lockDue(ctx context.Context, now time.Time) {
	if s.open == nil || now.Before(s.open.LockAt) {
		return
	}
	id := s.open.ID
	var (
		locked *domain.Round
		next   *domain.Round
	)
	err := s.store.InTx(ctx, func(tx repo.Tx) error {
		next = nil
		if err := tx.TransitionRound(ctx, id, domain.RoundOpen, domain.RoundLocked); err != nil {
			return err
		}
		var err error
		if locked, err = tx.GetRound(ctx, id, repo.LockNone); err != nil {
			return err
		}
		if s.cfg.Pipelined {
			next, err = s.openTx(ctx, tx, now)
		}
		return err
	})
	if err != nil {
		if domain.IsConflict(err) {
			// estado mudou fora deste scheduler; recarrega
			s.log.Warn("round lock conflict, reloading", zap.Int64("round_id", id), zap.Error(err))
			s.mu.Unlock()
			rerr := s.Recover(ctx)
			s.mu.Lock()
			if rerr != nil {
				s.log.Warn("reload failed", zap.Error(rerr))
			}
			return
		}
		s.log.Warn("round lock failed", zap.Int64("round_id", id), zap.Error(err))
		return
	}

	s.open = next
	s.pending[id] = &settleState{nextAttempt: now}
	s.metrics.RoundTransition(string(domain.RoundLocked))
	s.metrics.AwaitingSettlement(len(s.pending))
	s.log.Info("round locked",
		zap.Int64("round_id", id),
		zap.Int64("total_pool_minor", locked.TotalPool()),
	)
	if err := s.pub.PublishRoundLocked(ctx, events.RoundLocked{
		RoundID:  id,
		LockAt:   locked.LockAt,
		Pools:    poolsByName(s.rules.Colors, locked.Pools),
		LockedAt: now,
	}); err != nil {
		s.log.Warn("publish round_locked failed", zap.Int64("round_id", id), zap.Error(err))
	}
	if next != nil {
		s.announceOpened(ctx, next)
	}
}

func (s *Scheduler) dispatch(ctx context.Context, now time.Time) {
	for id, st := range s.pending {
		if st.inFlight || now.Before(st.nextAttempt) {
			continue
		}
		st.inFlight = true
		st.attempts++
		s.wg.Add(1)
		go s.settle(ctx, id, st)
	}
}

func (s *Scheduler) settle(ctx context.Context, id int64, st *settleState) {
	defer s.wg.Done()

	sctx, cancel := context.WithTimeout(ctx, s.cfg.SettleTimeout)
	start := time.Now()
	_, err := s.settler.Settle(sctx, id)
	cancel()
	took := time.Since(start)

	s.mu.Lock()
	defer s.mu.Unlock()
	st.inFlight = false
	if err == nil {
		delete(s.pending, id)
		s.metrics.SettlementAttempt("ok", took)
		s.metrics.AwaitingSettlement(len(s.pending))
		return
	}

	s.metrics.SettlementAttempt("error", took)
	wait := backoff(s.cfg.BackoffMin, s.cfg.BackoffMax, st.attempts)
	st.nextAttempt = s.now().Add(wait)
	fields := []zap.Field{
		zap.Int64("round_id", id),
		zap.Int("attempts", st.attempts),
		zap.Duration("retry_in", wait),
		zap.Error(err),
	}
	if s.cfg.AlertAfter > 0 && st.attempts >= s.cfg.AlertAfter {
		s.log.Error("settlement still failing", fields...)
		return
	}
	s.log.Warn("settlement failed", fields...)
}

// ensureOpen abre um round quando não há nenhum aberto. No modo sequencial
// espera a fila de liquidação esvaziar.
func (s *Scheduler) ensureOpen(ctx context.Context, now time.Time) {
	if s.open != nil || now.Before(s.nextOpenAt) {
		return
	}
	if !s.cfg.Pipelined && len(s.pending) > 0 {
		return
	}
	var r *domain.Round
	err := s.store.InTx(ctx, func(tx repo.Tx) error {
		var err error
		r, err = s.openTx(ctx, tx, now)
		return err
	})
	if err != nil {
		s.openFailures++
		wait := backoff(s.cfg.BackoffMin, s.cfg.BackoffMax, s.openFailures)
		s.nextOpenAt = now.Add(wait)
		s.log.Warn("open round failed", zap.Int("attempts", s.openFailures), zap.Duration("retry_in", wait), zap.Error(err))
		if domain.IsConflict(err) {
			s.mu.Unlock()
			rerr := s.Recover(ctx)
			s.mu.Lock()
			if rerr != nil {
				s.log.Warn("reload failed", zap.Error(rerr))
			}
		}
		return
	}
	s.openFailures = 0
	s.nextOpenAt = time.Time{}
	s.open = r
	s.announceOpened(ctx, r)
}

func (s *Scheduler) openTx(ctx context.Context, tx repo.Tx, now time.Time) (*domain.Round, error) {
	seed, hash, err := NewSeed()
	if err != nil {
		return nil, err
	}
	r := &domain.Round{
		Status:   domain.RoundOpen,
		OpenAt:   now,
		LockAt:   now.Add(s.rules.RoundLength),
		Pools:    make(map[domain.Color]int64),
		SeedHash: hash,
		Seed:     seed,
	}
	if err := tx.InsertRound(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *Scheduler) announceOpened(ctx context.Context, r *domain.Round) {
	s.metrics.RoundTransition(string(domain.RoundOpen))
	s.log.Info("round opened",
		zap.Int64("round_id", r.ID),
		zap.Time("lock_at", r.LockAt),
		zap.String("seed_hash", r.SeedHash),
	)
	if err := s.pub.PublishRoundOpened(ctx, openedEvent(r)); err != nil {
		s.log.Warn("publish round_opened failed", zap.Int64("round_id", r.ID), zap.Error(err))
	}
}

// backoff dobra a espera a cada tentativa, limitada a hi.
func backoff(lo, hi time.Duration, attempt int) time.Duration {
	wait := lo
	for i := 1; i < attempt; i++ {
		wait *= 2
		if wait >= hi {
			return hi
		}
	}
	return wait
}
