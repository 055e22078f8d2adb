package repo

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/radieske/color-round-platform/internal/domain"
)

// Memory implementa Store em memória. Usado em testes e em STORE_DRIVER=memory.
// Cada InTx segura o mutex do store inteiro, o que serializa todas as
// unidades de trabalho; alterações são desfeitas pelo journal em caso de erro.
type Memory struct {
	mu sync.Mutex

	accounts map[string]*domain.Account
	txs      []*domain.Transaction
	txByKey  map[string]*domain.Transaction
	rounds   map[int64]*domain.Round
	lastID   int64
	bets     map[string]*domain.Bet
	betOrder []string
	funding  map[string]*domain.FundingRequest

	leader atomic.Bool
}

func NewMemory() *Memory {
	return &Memory{
		accounts: make(map[string]*domain.Account),
		txByKey:  make(map[string]*domain.Transaction),
		rounds:   make(map[int64]*domain.Round),
		bets:     make(map[string]*domain.Bet),
		funding:  make(map[string]*domain.FundingRequest),
	}
}

func (m *Memory) InTx(ctx context.Context, fn func(Tx) error) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &memTx{m: m}
	defer func() {
		if p := recover(); p != nil {
			tx.rollback()
			panic(p)
		}
		if err != nil {
			tx.rollback()
		}
	}()
	return fn(tx)
}

func (m *Memory) AcquireLeadership(_ context.Context) (func(), error) {
	if !m.leader.CompareAndSwap(false, true) {
		return nil, domain.ErrNotLeader
	}
	return func() { m.leader.Store(false) }, nil
}

func (m *Memory) Ping(context.Context) error { return nil }

type memTx struct {
	m    *Memory
	undo []func()
}

func (t *memTx) rollback() {
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
}

func (t *memTx) GetAccount(_ context.Context, id string, _ LockMode) (*domain.Account, error) {
	a, ok := t.m.accounts[id]
	if !ok {
		return nil, fmt.Errorf("account %s: %w", id, domain.ErrNotFound)
	}
	cp := *a
	return &cp, nil
}

func (t *memTx) CreateAccount(_ context.Context, a *domain.Account) error {
	if _, ok := t.m.accounts[a.ID]; ok {
		return fmt.Errorf("account %s: %w", a.ID, domain.ErrDuplicateKey)
	}
	cp := *a
	t.m.accounts[a.ID] = &cp
	t.undo = append(t.undo, func() { delete(t.m.accounts, a.ID) })
	return nil
}

func (t *memTx) UpdateAccountBalance(_ context.Context, id string, balance, expectedVersion int64, at time.Time) error {
	a, ok := t.m.accounts[id]
	if !ok {
		return fmt.Errorf("account %s: %w", id, domain.ErrNotFound)
	}
	if a.Version != expectedVersion {
		return fmt.Errorf("account %s: %w", id, domain.ErrVersionConflict)
	}
	prev := *a
	a.Balance = balance
	a.Version++
	a.UpdatedAt = at
	t.undo = append(t.undo, func() { *a = prev })
	return nil
}

func (t *memTx) SetAccountActive(_ context.Context, id string, active bool, at time.Time) error {
	a, ok := t.m.accounts[id]
	if !ok {
		return fmt.Errorf("account %s: %w", id, domain.ErrNotFound)
	}
	prev := *a
	a.Active = active
	a.UpdatedAt = at
	t.undo = append(t.undo, func() { *a = prev })
	return nil
}

func (t *memTx) GetTransactionByKey(_ context.Context, key string) (*domain.Transaction, error) {
	tr, ok := t.m.txByKey[key]
	if !ok {
		return nil, fmt.Errorf("transaction %s: %w", key, domain.ErrNotFound)
	}
	cp := *tr
	return &cp, nil
}

func (t *memTx) InsertTransaction(_ context.Context, tr *domain.Transaction) error {
	if _, ok := t.m.txByKey[tr.Key]; ok {
		return fmt.Errorf("transaction %s: %w", tr.Key, domain.ErrDuplicateKey)
	}
	cp := *tr
	t.m.txByKey[tr.Key] = &cp
	t.m.txs = append(t.m.txs, &cp)
	t.undo = append(t.undo, func() {
		delete(t.m.txByKey, tr.Key)
		t.m.txs = t.m.txs[:len(t.m.txs)-1]
	})
	return nil
}

func (t *memTx) ListTransactions(_ context.Context, accountID string, limit int) ([]domain.Transaction, error) {
	var out []domain.Transaction
	for i := len(t.m.txs) - 1; i >= 0; i-- {
		if limit > 0 && len(out) >= limit {
			break
		}
		if t.m.txs[i].AccountID == accountID {
			out = append(out, *t.m.txs[i])
		}
	}
	return out, nil
}

func (t *memTx) SumCommitted(_ context.Context, accountID string) (int64, error) {
	var sum int64
	for _, tr := range t.m.txs {
		if tr.AccountID == accountID && tr.Status == domain.TxCommitted {
			sum += tr.Amount
		}
	}
	return sum, nil
}

func copyRound(r *domain.Round) domain.Round {
	cp := *r
	cp.Pools = make(map[domain.Color]int64, len(r.Pools))
	for k, v := range r.Pools {
		cp.Pools[k] = v
	}
	if r.SettledAt != nil {
		at := *r.SettledAt
		cp.SettledAt = &at
	}
	return cp
}

func (t *memTx) InsertRound(_ context.Context, r *domain.Round) error {
	if r.Status == domain.RoundOpen {
		for _, existing := range t.m.rounds {
			if existing.Status == domain.RoundOpen {
				return fmt.Errorf("round %d still open: %w", existing.ID, domain.ErrVersionConflict)
			}
		}
	}
	prevID := t.m.lastID
	t.m.lastID++
	r.ID = t.m.lastID
	cp := copyRound(r)
	t.m.rounds[r.ID] = &cp
	id := r.ID
	t.undo = append(t.undo, func() {
		delete(t.m.rounds, id)
		t.m.lastID = prevID
	})
	return nil
}

func (t *memTx) GetRound(_ context.Context, id int64, _ LockMode) (*domain.Round, error) {
	r, ok := t.m.rounds[id]
	if !ok {
		return nil, fmt.Errorf("round %d: %w", id, domain.ErrNotFound)
	}
	cp := copyRound(r)
	return &cp, nil
}

func (t *memTx) LatestRound(ctx context.Context, lock LockMode) (*domain.Round, error) {
	if t.m.lastID == 0 {
		return nil, fmt.Errorf("latest round: %w", domain.ErrNotFound)
	}
	return t.GetRound(ctx, t.m.lastID, lock)
}

func (t *memTx) RoundsByStatus(_ context.Context, status domain.RoundStatus) ([]domain.Round, error) {
	var out []domain.Round
	for _, r := range t.m.rounds {
		if r.Status == status {
			out = append(out, copyRound(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *memTx) RecentSettled(_ context.Context, n int) ([]domain.Round, error) {
	var out []domain.Round
	for id := t.m.lastID; id > 0 && (n <= 0 || len(out) < n); id-- {
		if r, ok := t.m.rounds[id]; ok && r.Status == domain.RoundSettled {
			out = append(out, copyRound(r))
		}
	}
	return out, nil
}

func (t *memTx) TransitionRound(_ context.Context, id int64, from, to domain.RoundStatus) error {
	r, ok := t.m.rounds[id]
	if !ok {
		return fmt.Errorf("round %d: %w", id, domain.ErrNotFound)
	}
	if r.Status != from {
		return fmt.Errorf("round %d is %s, want %s: %w", id, r.Status, from, domain.ErrVersionConflict)
	}
	r.Status = to
	t.undo = append(t.undo, func() { r.Status = from })
	return nil
}

func (t *memTx) FinalizeRound(_ context.Context, id int64, winner domain.Color, at time.Time) error {
	r, ok := t.m.rounds[id]
	if !ok {
		return fmt.Errorf("round %d: %w", id, domain.ErrNotFound)
	}
	if r.Status != domain.RoundLocked {
		return fmt.Errorf("round %d is %s: %w", id, r.Status, domain.ErrVersionConflict)
	}
	prev := copyRound(r)
	settled := at
	r.Status = domain.RoundSettled
	r.Winner = winner
	r.SettledAt = &settled
	t.undo = append(t.undo, func() { *r = prev })
	return nil
}

func (t *memTx) AddPool(_ context.Context, roundID int64, color domain.Color, amount int64) error {
	r, ok := t.m.rounds[roundID]
	if !ok {
		return fmt.Errorf("round %d: %w", roundID, domain.ErrNotFound)
	}
	if r.Pools == nil {
		r.Pools = make(map[domain.Color]int64)
	}
	r.Pools[color] += amount
	t.undo = append(t.undo, func() { r.Pools[color] -= amount })
	return nil
}

func (t *memTx) InsertBet(_ context.Context, b *domain.Bet) error {
	if _, ok := t.m.bets[b.ID]; ok {
		return fmt.Errorf("bet %s: %w", b.ID, domain.ErrDuplicateKey)
	}
	cp := *b
	t.m.bets[b.ID] = &cp
	t.m.betOrder = append(t.m.betOrder, b.ID)
	t.undo = append(t.undo, func() {
		delete(t.m.bets, b.ID)
		t.m.betOrder = t.m.betOrder[:len(t.m.betOrder)-1]
	})
	return nil
}

func (t *memTx) GetBet(_ context.Context, id string) (*domain.Bet, error) {
	b, ok := t.m.bets[id]
	if !ok {
		return nil, fmt.Errorf("bet %s: %w", id, domain.ErrNotFound)
	}
	cp := *b
	return &cp, nil
}

func (t *memTx) BetsByRound(_ context.Context, roundID int64) ([]domain.Bet, error) {
	var out []domain.Bet
	for _, id := range t.m.betOrder {
		if b := t.m.bets[id]; b.RoundID == roundID {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (t *memTx) BetsByAccount(_ context.Context, accountID string, limit int) ([]domain.Bet, error) {
	var out []domain.Bet
	for i := len(t.m.betOrder) - 1; i >= 0; i-- {
		if limit > 0 && len(out) >= limit {
			break
		}
		if b := t.m.bets[t.m.betOrder[i]]; b.AccountID == accountID {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (t *memTx) AccountBetStats(_ context.Context, accountID string) (domain.BetStats, error) {
	var st domain.BetStats
	for _, b := range t.m.bets {
		if b.AccountID == accountID {
			addStats(&st, b.Outcome, 1, b.Stake)
		}
	}
	for _, tr := range t.m.txs {
		if tr.AccountID == accountID && tr.Kind == domain.TxPayout && tr.Status == domain.TxCommitted {
			st.PaidOut += tr.Amount
		}
	}
	return st, nil
}

func (t *memTx) SetBetOutcome(_ context.Context, betID string, outcome domain.BetOutcome) error {
	b, ok := t.m.bets[betID]
	if !ok {
		return fmt.Errorf("bet %s: %w", betID, domain.ErrNotFound)
	}
	if b.Outcome != domain.OutcomePending {
		if b.Outcome == outcome {
			return nil
		}
		return fmt.Errorf("bet %s already %s: %w", betID, b.Outcome, domain.ErrInvalidState)
	}
	b.Outcome = outcome
	t.undo = append(t.undo, func() { b.Outcome = domain.OutcomePending })
	return nil
}

func (t *memTx) InsertFunding(_ context.Context, f *domain.FundingRequest) error {
	if _, ok := t.m.funding[f.ID]; ok {
		return fmt.Errorf("funding %s: %w", f.ID, domain.ErrDuplicateKey)
	}
	cp := *f
	t.m.funding[f.ID] = &cp
	t.undo = append(t.undo, func() { delete(t.m.funding, f.ID) })
	return nil
}

func (t *memTx) GetFunding(_ context.Context, id string, _ LockMode) (*domain.FundingRequest, error) {
	f, ok := t.m.funding[id]
	if !ok {
		return nil, fmt.Errorf("funding %s: %w", id, domain.ErrNotFound)
	}
	cp := *f
	return &cp, nil
}

func (t *memTx) UpdateFundingStatus(_ context.Context, id string, from, to domain.FundingStatus, at time.Time) error {
	f, ok := t.m.funding[id]
	if !ok {
		return fmt.Errorf("funding %s: %w", id, domain.ErrNotFound)
	}
	if f.Status != from {
		return fmt.Errorf("funding %s is %s: %w", id, f.Status, domain.ErrInvalidState)
	}
	prev := *f
	f.Status = to
	f.UpdatedAt = at
	t.undo = append(t.undo, func() { *f = prev })
	return nil
}
