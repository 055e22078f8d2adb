package ledger

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/radieske/color-round-platform/internal/domain"
	"github.com/radieske/color-round-platform/internal/repo"
)

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	return New(repo.NewMemory(), zap.NewNop(), nil)
}

func fund(t *testing.T, l *Ledger, accountID string, amount int64) {
	t.Helper()
	ctx := context.Background()
	_, err := l.EnsureAccount(ctx, accountID)
	require.NoError(t, err)
	_, err = l.PostOne(ctx, domain.Transaction{Key: DepositKey("seed-" + accountID), AccountID: accountID, Kind: domain.TxDeposit, Amount: amount})
	require.NoError(t, err)
}

func TestPost_IdempotentReplay(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)
	fund(t, l, "acc-a", 100000)

	payout := domain.Transaction{Key: PayoutKey(1, "bet-1"), AccountID: "acc-a", Kind: domain.TxPayout, Amount: 19000, Reference: "1"}

	first, err := l.PostOne(ctx, payout)
	require.NoError(t, err)
	second, err := l.PostOne(ctx, payout)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	bal, err := l.Balance(ctx, "acc-a")
	require.NoError(t, err)
	assert.Equal(t, int64(119000), bal)
}

func TestPost_KeyReusedWithDifferentPayload(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)
	fund(t, l, "acc-a", 1000)

	_, err := l.PostOne(ctx, domain.Transaction{Key: "k", AccountID: "acc-a", Kind: domain.TxPayout, Amount: 10})
	require.NoError(t, err)
	_, err = l.PostOne(ctx, domain.Transaction{Key: "k", AccountID: "acc-a", Kind: domain.TxPayout, Amount: 20})
	assert.ErrorIs(t, err, domain.ErrIdempotencyMismatch)
}

func TestPost_RejectsNegativeBalance(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)
	fund(t, l, "acc-a", 500)

	_, err := l.PostOne(ctx, domain.Transaction{Key: "w1", AccountID: "acc-a", Kind: domain.TxWithdraw, Amount: -600})
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)

	bal, err := l.Balance(ctx, "acc-a")
	require.NoError(t, err)
	assert.Equal(t, int64(500), bal)
	assert.NoError(t, l.Reconcile(ctx, "acc-a"))
}

func TestPost_ZeroAmountAndEmptyKey(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)
	fund(t, l, "acc-a", 500)

	_, err := l.PostOne(ctx, domain.Transaction{Key: "z", AccountID: "acc-a", Kind: domain.TxPayout})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
	_, err = l.PostOne(ctx, domain.Transaction{AccountID: "acc-a", Kind: domain.TxPayout, Amount: 1})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
}

func TestPost_InactiveAccount(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)
	fund(t, l, "acc-a", 5000)
	require.NoError(t, l.Deactivate(ctx, "acc-a"))

	_, err := l.PostOne(ctx, domain.Transaction{Key: "w", AccountID: "acc-a", Kind: domain.TxWithdraw, Amount: -100})
	assert.ErrorIs(t, err, domain.ErrAccountInactive)

	// créditos continuam permitidos
	_, err = l.PostOne(ctx, domain.Transaction{Key: "p", AccountID: "acc-a", Kind: domain.TxPayout, Amount: 100})
	assert.NoError(t, err)
}

func TestPost_ConcurrentDebitsNeverOverdraw(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)
	fund(t, l, "acc-a", 100000)

	const workers = 50
	const stake = int64(3000)
	var ok atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := l.PostOne(ctx, domain.Transaction{
				Key: StakeKey(fmt.Sprintf("bet-%d", i)), AccountID: "acc-a", Kind: domain.TxBetStake, Amount: -stake,
			})
			if err == nil {
				ok.Add(1)
			} else {
				assert.ErrorIs(t, err, domain.ErrInsufficientBalance)
			}
		}(i)
	}
	wg.Wait()

	bal, err := l.Balance(ctx, "acc-a")
	require.NoError(t, err)
	assert.Equal(t, int64(33), ok.Load())
	assert.Equal(t, int64(100000)-ok.Load()*stake, bal)
	assert.GreaterOrEqual(t, bal, int64(0))
	assert.NoError(t, l.Reconcile(ctx, "acc-a"))
}

func TestHistory_MostRecentFirst(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)
	fund(t, l, "acc-a", 5000)
	_, err := l.PostOne(ctx, domain.Transaction{Key: "s1", AccountID: "acc-a", Kind: domain.TxBetStake, Amount: -1000})
	require.NoError(t, err)

	h, err := l.History(ctx, "acc-a", 10)
	require.NoError(t, err)
	require.Len(t, h, 2)
	assert.Equal(t, domain.TxBetStake, h[0].Kind)
	assert.Equal(t, int64(4000), h[0].BalanceAfter)
	assert.Equal(t, domain.TxDeposit, h[1].Kind)

	_, err = l.History(ctx, "ghost", 10)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestEnsureAccount_Idempotent(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)
	a1, err := l.EnsureAccount(ctx, "acc-z")
	require.NoError(t, err)
	a2, err := l.EnsureAccount(ctx, "acc-z")
	require.NoError(t, err)
	assert.Equal(t, a1.CreatedAt, a2.CreatedAt)
	assert.True(t, a2.Active)
}
