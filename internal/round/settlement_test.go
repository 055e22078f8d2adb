package round

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radieske/color-round-platform/internal/domain"
	"github.com/radieske/color-round-platform/internal/ledger"
)

func TestSettle_LowestPoolWins(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, true)
	h.fund(t, "alice", rupees(1000))
	h.fund(t, "bob", rupees(1000))
	h.fund(t, "carol", rupees(1000))
	r := h.openRound(t)

	h.bet(t, "bob", r.ID, "RED", rupees(300))
	win := h.bet(t, "alice", r.ID, "GREEN", rupees(100))
	h.bet(t, "carol", r.ID, "BLUE", rupees(500))
	h.lock(t, r.ID)

	res, err := h.settler.Settle(ctx, r.ID)
	require.NoError(t, err)

	assert.Equal(t, domain.Color("GREEN"), res.Winner)
	assert.Equal(t, 1, res.WinningBets)
	assert.Equal(t, rupees(190), res.PaidOut)
	assert.Equal(t, rupees(10), res.Fees)

	// ₹1000 - ₹100 + ₹190
	assert.Equal(t, rupees(1090), h.balance(t, "alice"))
	assert.Equal(t, rupees(700), h.balance(t, "bob"))
	assert.Equal(t, rupees(500), h.balance(t, "carol"))
	assert.Equal(t, rupees(10), h.balance(t, h.rules.HouseAccount))

	settled := h.round(t, r.ID)
	assert.Equal(t, domain.RoundSettled, settled.Status)
	assert.Equal(t, domain.Color("GREEN"), settled.Winner)
	require.NotNil(t, settled.SettledAt)

	bets, err := h.reader.BetsForAccount(ctx, "alice", 10)
	require.NoError(t, err)
	require.Len(t, bets, 1)
	assert.Equal(t, win.ID, bets[0].ID)
	assert.Equal(t, domain.OutcomeWon, bets[0].Outcome)
	bobBets, err := h.reader.BetsForAccount(ctx, "bob", 10)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeLost, bobBets[0].Outcome)

	for _, acc := range []string{"alice", "bob", "carol", h.rules.HouseAccount} {
		assert.NoError(t, h.ledger.Reconcile(ctx, acc))
	}

	require.Len(t, h.pub.settled, 1)
	ev := h.pub.settled[0]
	assert.Equal(t, "GREEN", ev.Winner)
	assert.Equal(t, rupees(900), ev.TotalPool)
	assert.Equal(t, HashSeed(ev.Seed), ev.SeedHash)
}

func TestSettle_Idempotent(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, true)
	h.fund(t, "alice", rupees(1000))
	h.fund(t, "bob", rupees(1000))
	h.fund(t, "carol", rupees(1000))
	r := h.openRound(t)
	h.bet(t, "alice", r.ID, "GREEN", rupees(100))
	h.bet(t, "bob", r.ID, "RED", rupees(200))
	h.bet(t, "carol", r.ID, "BLUE", rupees(300))
	h.lock(t, r.ID)

	first, err := h.settler.Settle(ctx, r.ID)
	require.NoError(t, err)
	second, err := h.settler.Settle(ctx, r.ID)
	require.NoError(t, err)

	assert.False(t, first.Replayed)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.Winner, second.Winner)
	assert.Equal(t, first.PaidOut, second.PaidOut)

	assert.Equal(t, rupees(1090), h.balance(t, "alice"))
	history, err := h.ledger.History(ctx, "alice", 0)
	require.NoError(t, err)
	payouts := 0
	for _, tr := range history {
		if tr.Kind == domain.TxPayout {
			payouts++
		}
	}
	assert.Equal(t, 1, payouts)
	assert.Len(t, h.pub.settled, 1)
}

func TestSettle_SkipsPayoutAlreadyPosted(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, true)
	h.fund(t, "alice", rupees(1000))
	h.fund(t, "bob", rupees(1000))
	h.fund(t, "carol", rupees(1000))
	r := h.openRound(t)
	b := h.bet(t, "alice", r.ID, "GREEN", rupees(100))
	h.bet(t, "bob", r.ID, "RED", rupees(200))
	h.bet(t, "carol", r.ID, "BLUE", rupees(300))
	h.lock(t, r.ID)

	// crédito já lançado por uma execução anterior
	_, fee, net := h.rules.Payout(b.Stake)
	_, err := h.ledger.PostOne(ctx, domain.Transaction{
		Key: ledger.PayoutKey(r.ID, b.ID), AccountID: "alice", Kind: domain.TxPayout, Amount: net, Reference: "1",
	})
	require.NoError(t, err)

	_, err = h.settler.Settle(ctx, r.ID)
	require.NoError(t, err)

	assert.Equal(t, rupees(900)+net, h.balance(t, "alice"))
	assert.Equal(t, fee, h.balance(t, h.rules.HouseAccount))
}

func TestSettle_OpenRoundRejected(t *testing.T) {
	h := newHarness(t, true)
	r := h.openRound(t)

	_, err := h.settler.Settle(context.Background(), r.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidState)
	assert.Equal(t, domain.RoundOpen, h.round(t, r.ID).Status)
}

func TestSettle_EmptyRound(t *testing.T) {
	h := newHarness(t, true)
	r := h.openRound(t)
	h.lock(t, r.ID)

	res, err := h.settler.Settle(context.Background(), r.ID)
	require.NoError(t, err)

	assert.Contains(t, h.rules.Colors, res.Winner)
	assert.Zero(t, res.WinningBets)
	assert.Equal(t, domain.RoundSettled, h.round(t, r.ID).Status)
}

func TestSettle_TieBrokenBySeed(t *testing.T) {
	h := newHarness(t, true)
	h.fund(t, "alice", rupees(1000))
	h.fund(t, "bob", rupees(1000))
	h.fund(t, "carol", rupees(1000))
	r := h.openRound(t)
	h.bet(t, "alice", r.ID, "RED", rupees(100))
	h.bet(t, "bob", r.ID, "GREEN", rupees(100))
	h.bet(t, "carol", r.ID, "BLUE", rupees(400))
	h.lock(t, r.ID)

	res, err := h.settler.Settle(context.Background(), r.ID)
	require.NoError(t, err)

	stored := h.round(t, r.ID)
	assert.Equal(t, PickWinner(h.rules.Colors, stored.Pools, stored.Seed, r.ID), res.Winner)
	assert.Contains(t, []domain.Color{"RED", "GREEN"}, res.Winner)
}
