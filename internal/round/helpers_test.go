package round

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/radieske/color-round-platform/internal/domain"
	"github.com/radieske/color-round-platform/internal/ledger"
	"github.com/radieske/color-round-platform/internal/repo"
	"github.com/radieske/color-round-platform/pkg/contracts/events"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

type recorder struct {
	mu      sync.Mutex
	opened  []events.RoundOpened
	locked  []events.RoundLocked
	settled []events.RoundSettled
	bets    []events.BetPlaced
}

func (r *recorder) PublishRoundOpened(_ context.Context, ev events.RoundOpened) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.opened = append(r.opened, ev)
	return nil
}

func (r *recorder) PublishRoundLocked(_ context.Context, ev events.RoundLocked) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.locked = append(r.locked, ev)
	return nil
}

func (r *recorder) PublishRoundSettled(_ context.Context, ev events.RoundSettled) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.settled = append(r.settled, ev)
	return nil
}

func (r *recorder) PublishBetPlaced(_ context.Context, ev events.BetPlaced) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bets = append(r.bets, ev)
	return nil
}

type harness struct {
	store   *repo.Memory
	ledger  *ledger.Ledger
	rules   Rules
	clock   *fakeClock
	pub     *recorder
	book    *BetBook
	settler *Settler
	sched   *Scheduler
	reader  *Reader
}

func newHarness(t *testing.T, pipelined bool) *harness {
	t.Helper()
	log := zap.NewNop()
	clock := &fakeClock{t: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	store := repo.NewMemory()
	l := ledger.New(store, log, nil)
	l.Now = clock.Now
	rules := DefaultRules()
	require.NoError(t, rules.Validate())
	pub := &recorder{}

	cfg := DefaultSchedulerConfig()
	cfg.Pipelined = pipelined
	cfg.BackoffMin = time.Second
	cfg.BackoffMax = 8 * time.Second

	h := &harness{
		store:   store,
		ledger:  l,
		rules:   rules,
		clock:   clock,
		pub:     pub,
		book:    NewBetBook(store, l, rules, pub, log, nil),
		settler: NewSettler(store, l, rules, pub, log, nil),
		reader:  NewReader(store),
	}
	h.book.now = clock.Now
	h.settler.now = clock.Now
	h.sched = NewScheduler(store, h.settler, rules, cfg, pub, log, nil)
	h.sched.now = clock.Now
	return h
}

// rupees converte para unidades mínimas.
func rupees(v int64) int64 { return v * 100 }

func (h *harness) fund(t *testing.T, accountID string, amount int64) {
	t.Helper()
	ctx := context.Background()
	_, err := h.ledger.EnsureAccount(ctx, accountID)
	require.NoError(t, err)
	_, err = h.ledger.PostOne(ctx, domain.Transaction{
		Key:       ledger.DepositKey("test-" + accountID),
		AccountID: accountID,
		Kind:      domain.TxDeposit,
		Amount:    amount,
	})
	require.NoError(t, err)
}

func (h *harness) balance(t *testing.T, accountID string) int64 {
	t.Helper()
	bal, err := h.ledger.Balance(context.Background(), accountID)
	require.NoError(t, err)
	return bal
}

// openRound faz o scheduler abrir um round e o devolve.
func (h *harness) openRound(t *testing.T) *domain.Round {
	t.Helper()
	h.sched.Tick(context.Background())
	r, err := h.reader.CurrentRound(context.Background())
	require.NoError(t, err)
	require.Equal(t, domain.RoundOpen, r.Status)
	return r
}

// lock fecha o round direto no store, sem disparar liquidação.
func (h *harness) lock(t *testing.T, id int64) {
	t.Helper()
	err := h.store.InTx(context.Background(), func(tx repo.Tx) error {
		return tx.TransitionRound(context.Background(), id, domain.RoundOpen, domain.RoundLocked)
	})
	require.NoError(t, err)
}

func (h *harness) round(t *testing.T, id int64) *domain.Round {
	t.Helper()
	var out *domain.Round
	err := h.store.InTx(context.Background(), func(tx repo.Tx) error {
		var err error
		out, err = tx.GetRound(context.Background(), id, repo.LockNone)
		return err
	})
	require.NoError(t, err)
	return out
}

func (h *harness) countOpen(t *testing.T) int {
	t.Helper()
	var n int
	err := h.store.InTx(context.Background(), func(tx repo.Tx) error {
		open, err := tx.RoundsByStatus(context.Background(), domain.RoundOpen)
		n = len(open)
		return err
	})
	require.NoError(t, err)
	return n
}

func (h *harness) bet(t *testing.T, accountID string, roundID int64, color domain.Color, amount int64) *domain.Bet {
	t.Helper()
	b, _, err := h.book.Admit(context.Background(), BetRequest{AccountID: accountID, RoundID: roundID, Color: color, Amount: amount})
	require.NoError(t, err)
	return b
}
