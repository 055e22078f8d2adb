package repo

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radieske/color-round-platform/internal/domain"
)

func TestPostgres_UpdateAccountBalance(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	p := NewPostgres(db, 42)
	ctx := context.Background()
	now := time.Now()

	t.Run("successful update", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectExec("UPDATE accounts SET balance_minor = \\$1, version = version \\+ 1, updated_at = \\$2 WHERE id = \\$3 AND version = \\$4").
			WithArgs(int64(900), sqlmock.AnyArg(), "acc-1", int64(3)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err := p.InTx(ctx, func(tx Tx) error {
			return tx.UpdateAccountBalance(ctx, "acc-1", 900, 3, now)
		})
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("optimistic lock failure", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectExec("UPDATE accounts SET balance_minor").
			WithArgs(int64(900), sqlmock.AnyArg(), "acc-1", int64(3)).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		err := p.InTx(ctx, func(tx Tx) error {
			return tx.UpdateAccountBalance(ctx, "acc-1", 900, 3, now)
		})
		assert.ErrorIs(t, err, domain.ErrVersionConflict)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgres_InsertTransactionDuplicate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	p := NewPostgres(db, 42)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO ledger_transactions").
		WillReturnError(&pq.Error{Code: "23505", Constraint: "ledger_transactions_idempotency_key_key"})
	mock.ExpectRollback()

	err = p.InTx(ctx, func(tx Tx) error {
		return tx.InsertTransaction(ctx, &domain.Transaction{ID: "6f1c", Key: "payout:1:b1", AccountID: "acc-1", Kind: domain.TxPayout, Amount: 190, Status: domain.TxCommitted})
	})
	assert.ErrorIs(t, err, domain.ErrDuplicateKey)
	assert.True(t, domain.IsConflict(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_GetRoundWithPools(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	p := NewPostgres(db, 42)
	ctx := context.Background()
	openAt := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id, status, open_at, lock_at, settled_at, winner, seed_hash, seed FROM rounds WHERE id = \\$1 FOR SHARE").
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "status", "open_at", "lock_at", "settled_at", "winner", "seed_hash", "seed"}).
			AddRow(int64(7), "OPEN", openAt, openAt.Add(30*time.Second), nil, "", "hash", "seed"))
	mock.ExpectQuery("SELECT color, total_minor FROM round_pools WHERE round_id = \\$1").
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"color", "total_minor"}).
			AddRow("RED", int64(30000)).
			AddRow("GREEN", int64(10000)))
	mock.ExpectCommit()

	var got *domain.Round
	err = p.InTx(ctx, func(tx Tx) error {
		var err error
		got, err = tx.GetRound(ctx, 7, LockShare)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, domain.RoundOpen, got.Status)
	assert.Nil(t, got.SettledAt)
	assert.Equal(t, int64(30000), got.Pools["RED"])
	assert.Equal(t, int64(10000), got.Pools["GREEN"])
	assert.Equal(t, int64(40000), got.TotalPool())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_TransitionRoundConflict(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	p := NewPostgres(db, 42)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE rounds SET status = \\$1 WHERE id = \\$2 AND status = \\$3").
		WithArgs("LOCKED", int64(3), "OPEN").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err = p.InTx(ctx, func(tx Tx) error {
		return tx.TransitionRound(ctx, 3, domain.RoundOpen, domain.RoundLocked)
	})
	assert.ErrorIs(t, err, domain.ErrVersionConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_AcquireLeadership(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	p := NewPostgres(db, 42)

	mock.ExpectQuery("SELECT pg_try_advisory_lock\\(\\$1\\)").
		WithArgs(int64(42)).
		WillReturnRows(sqlmock.NewRows([]string{"pg_try_advisory_lock"}).AddRow(false))

	_, err = p.AcquireLeadership(context.Background())
	assert.ErrorIs(t, err, domain.ErrNotLeader)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_LockReadsClassifyConflicts(t *testing.T) {
	cases := []struct {
		name string
		code pq.ErrorCode
	}{
		{"deadlock", "40P01"},
		{"serialization failure", "40001"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			require.NoError(t, err)
			defer db.Close()

			p := NewPostgres(db, 42)
			ctx := context.Background()

			mock.ExpectBegin()
			mock.ExpectQuery("SELECT id, balance_minor, version, active, created_at, updated_at FROM accounts WHERE id = \\$1 FOR UPDATE").
				WithArgs("acc-1").
				WillReturnError(&pq.Error{Code: tc.code})
			mock.ExpectRollback()

			err = p.InTx(ctx, func(tx Tx) error {
				_, err := tx.GetAccount(ctx, "acc-1", LockUpdate)
				return err
			})
			assert.ErrorIs(t, err, domain.ErrVersionConflict)
			assert.True(t, domain.IsConflict(err))
			assert.False(t, IsNotFound(err))
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestPostgres_WriteOnceUpdatesClassifyConflicts(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	p := NewPostgres(db, 42)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE bets SET outcome = \\$1 WHERE id = \\$2 AND outcome = 'PENDING'").
		WithArgs("WON", "b1").
		WillReturnError(&pq.Error{Code: "40P01"})
	mock.ExpectRollback()
	err = p.InTx(ctx, func(tx Tx) error { return tx.SetBetOutcome(ctx, "b1", domain.OutcomeWon) })
	assert.True(t, domain.IsConflict(err))

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE funding_requests SET status").
		WillReturnError(&pq.Error{Code: "40001"})
	mock.ExpectRollback()
	err = p.InTx(ctx, func(tx Tx) error {
		return tx.UpdateFundingStatus(ctx, "f1", domain.FundingPending, domain.FundingApproved, time.Now())
	})
	assert.True(t, domain.IsConflict(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_NonPositiveLimitMeansAll(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	p := NewPostgres(db, 42)
	ctx := context.Background()
	betCols := []string{"id", "round_id", "account_id", "color", "stake_minor", "placed_at", "outcome", "stake_key"}

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .* FROM ledger_transactions WHERE account_id = \\$1 ORDER BY created_at DESC, id DESC LIMIT \\$2").
		WithArgs("acc-1", nil).
		WillReturnRows(sqlmock.NewRows([]string{"id", "idempotency_key", "account_id", "kind", "amount_minor", "status", "balance_after", "reference", "created_at"}))
	mock.ExpectQuery("SELECT .* FROM bets WHERE account_id = \\$1 ORDER BY placed_at DESC, id DESC LIMIT \\$2").
		WithArgs("acc-1", int64(5)).
		WillReturnRows(sqlmock.NewRows(betCols))
	mock.ExpectCommit()

	err = p.InTx(ctx, func(tx Tx) error {
		if _, err := tx.ListTransactions(ctx, "acc-1", 0); err != nil {
			return err
		}
		_, err := tx.BetsByAccount(ctx, "acc-1", 5)
		return err
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_AccountBetStats(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	p := NewPostgres(db, 42)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT outcome, COUNT\\(\\*\\), COALESCE\\(SUM\\(stake_minor\\), 0\\) FROM bets WHERE account_id = \\$1 GROUP BY outcome").
		WithArgs("acc-1").
		WillReturnRows(sqlmock.NewRows([]string{"outcome", "count", "sum"}).
			AddRow("WON", int64(2), int64(3000)).
			AddRow("LOST", int64(3), int64(4500)).
			AddRow("PENDING", int64(1), int64(1000)))
	mock.ExpectQuery("SELECT COALESCE\\(SUM\\(amount_minor\\), 0\\) FROM ledger_transactions WHERE account_id = \\$1 AND kind = 'PAYOUT'").
		WithArgs("acc-1").
		WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow(int64(5700)))
	mock.ExpectCommit()

	var st domain.BetStats
	err = p.InTx(ctx, func(tx Tx) error {
		var err error
		st, err = tx.AccountBetStats(ctx, "acc-1")
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, domain.BetStats{Total: 6, Won: 2, Lost: 3, Pending: 1, Staked: 8500, PaidOut: 5700}, st)
	assert.Equal(t, int64(-2800), st.Net())
	assert.NoError(t, mock.ExpectationsWereMet())
}
