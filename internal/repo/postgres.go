package repo

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/radieske/color-round-platform/internal/domain"
)

//go:embed schema.sql
var schemaSQL string

// Postgres implementa Store sobre database/sql + lib/pq.
// Contas são travadas com SELECT ... FOR UPDATE e o saldo só muda via CAS de versão.
type Postgres struct {
	db      *sql.DB
	lockKey int64
}

// NewPostgres retorna o repositório; lockKey identifica o advisory lock do scheduler.
func NewPostgres(db *sql.DB, lockKey int64) *Postgres { return &Postgres{db: db, lockKey: lockKey} }

// Migrate aplica o schema embutido (idempotente).
func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func (p *Postgres) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

func (p *Postgres) InTx(ctx context.Context, fn func(Tx) error) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&pgTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", mapErr(err))
	}
	return nil
}

// AcquireLeadership usa pg_try_advisory_lock numa conexão dedicada; o lock
// vive enquanto a conexão estiver aberta.
func (p *Postgres) AcquireLeadership(ctx context.Context) (func(), error) {
	conn, err := p.db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	var ok bool
	if err := conn.QueryRowContext(ctx, `SELECT pg_try_advisory_lock($1)`, p.lockKey).Scan(&ok); err != nil {
		_ = conn.Close()
		return nil, err
	}
	if !ok {
		_ = conn.Close()
		return nil, domain.ErrNotLeader
	}
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_, _ = conn.ExecContext(ctx, `SELECT pg_advisory_unlock($1)`, p.lockKey)
		_ = conn.Close()
	}, nil
}

// mapErr traduz códigos do Postgres para os erros de domínio retentáveis.
func mapErr(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23505": // unique_violation
			return fmt.Errorf("%s: %w", pqErr.Constraint, domain.ErrDuplicateKey)
		case "40001", "40P01": // serialization_failure, deadlock_detected
			return fmt.Errorf("%s: %w", pqErr.Code.Name(), domain.ErrVersionConflict)
		}
	}
	return err
}

// limitArg traduz limit <= 0 em LIMIT NULL, que o Postgres trata como sem limite.
func limitArg(limit int) any {
	if limit <= 0 {
		return nil
	}
	return limit
}

func notFound(err error, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, domain.ErrNotFound)
	}
	return err
}

func lockClause(l LockMode) string {
	switch l {
	case LockShare:
		return " FOR SHARE"
	case LockUpdate:
		return " FOR UPDATE"
	}
	return ""
}

type pgTx struct{ tx *sql.Tx }

// ---- contas

func (t *pgTx) GetAccount(ctx context.Context, id string, lock LockMode) (*domain.Account, error) {
	var a domain.Account
	err := t.tx.QueryRowContext(ctx,
		`SELECT id, balance_minor, version, active, created_at, updated_at FROM accounts WHERE id = $1`+lockClause(lock), id).
		Scan(&a.ID, &a.Balance, &a.Version, &a.Active, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, notFound(mapErr(err), "account "+id)
	}
	return &a, nil
}

func (t *pgTx) CreateAccount(ctx context.Context, a *domain.Account) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO accounts (id, balance_minor, version, active, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		a.ID, a.Balance, a.Version, a.Active, a.CreatedAt, a.UpdatedAt)
	return mapErr(err)
}

func (t *pgTx) UpdateAccountBalance(ctx context.Context, id string, balance, expectedVersion int64, at time.Time) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE accounts SET balance_minor = $1, version = version + 1, updated_at = $2 WHERE id = $3 AND version = $4`,
		balance, at, id, expectedVersion)
	if err != nil {
		return mapErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("account %s: %w", id, domain.ErrVersionConflict)
	}
	return nil
}

func (t *pgTx) SetAccountActive(ctx context.Context, id string, active bool, at time.Time) error {
	res, err := t.tx.ExecContext(ctx, `UPDATE accounts SET active = $1, updated_at = $2 WHERE id = $3`, active, at, id)
	if err != nil {
		return mapErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("account %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// ---- ledger

const txColumns = `id, idempotency_key, account_id, kind, amount_minor, status, balance_after, reference, created_at`

func scanTx(s interface{ Scan(...any) error }) (*domain.Transaction, error) {
	var tr domain.Transaction
	var kind, status string
	if err := s.Scan(&tr.ID, &tr.Key, &tr.AccountID, &kind, &tr.Amount, &status, &tr.BalanceAfter, &tr.Reference, &tr.CreatedAt); err != nil {
		return nil, err
	}
	tr.Kind = domain.TxKind(kind)
	tr.Status = domain.TxStatus(status)
	return &tr, nil
}

func (t *pgTx) GetTransactionByKey(ctx context.Context, key string) (*domain.Transaction, error) {
	tr, err := scanTx(t.tx.QueryRowContext(ctx, `SELECT `+txColumns+` FROM ledger_transactions WHERE idempotency_key = $1`, key))
	if err != nil {
		return nil, notFound(mapErr(err), "transaction "+key)
	}
	return tr, nil
}

func (t *pgTx) InsertTransaction(ctx context.Context, tr *domain.Transaction) error {
	_, err := t.tx.ExecContext(ctx, `INSERT INTO ledger_transactions (`+txColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		tr.ID, tr.Key, tr.AccountID, string(tr.Kind), tr.Amount, string(tr.Status), tr.BalanceAfter, tr.Reference, tr.CreatedAt)
	return mapErr(err)
}

func (t *pgTx) ListTransactions(ctx context.Context, accountID string, limit int) ([]domain.Transaction, error) {
	rows, err := t.tx.QueryContext(ctx,
		`SELECT `+txColumns+` FROM ledger_transactions WHERE account_id = $1 ORDER BY created_at DESC, id DESC LIMIT $2`, accountID, limitArg(limit))
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()
	var out []domain.Transaction
	for rows.Next() {
		tr, err := scanTx(rows)
		if err != nil {
			return nil, mapErr(err)
		}
		out = append(out, *tr)
	}
	return out, mapErr(rows.Err())
}

func (t *pgTx) SumCommitted(ctx context.Context, accountID string) (int64, error) {
	var sum int64
	err := t.tx.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(amount_minor), 0) FROM ledger_transactions WHERE account_id = $1 AND status = 'COMMITTED'`, accountID).Scan(&sum)
	return sum, mapErr(err)
}

// ---- rounds

const roundColumns = `id, status, open_at, lock_at, settled_at, winner, seed_hash, seed`

func scanRound(s interface{ Scan(...any) error }) (*domain.Round, error) {
	var r domain.Round
	var status, winner string
	var settled sql.NullTime
	if err := s.Scan(&r.ID, &status, &r.OpenAt, &r.LockAt, &settled, &winner, &r.SeedHash, &r.Seed); err != nil {
		return nil, err
	}
	r.Status = domain.RoundStatus(status)
	r.Winner = domain.Color(winner)
	if settled.Valid {
		at := settled.Time
		r.SettledAt = &at
	}
	r.Pools = make(map[domain.Color]int64)
	return &r, nil
}

func (t *pgTx) loadPools(ctx context.Context, r *domain.Round) error {
	rows, err := t.tx.QueryContext(ctx, `SELECT color, total_minor FROM round_pools WHERE round_id = $1`, r.ID)
	if err != nil {
		return mapErr(err)
	}
	defer rows.Close()
	for rows.Next() {
		var color string
		var total int64
		if err := rows.Scan(&color, &total); err != nil {
			return mapErr(err)
		}
		r.Pools[domain.Color(color)] = total
	}
	return mapErr(rows.Err())
}

func (t *pgTx) InsertRound(ctx context.Context, r *domain.Round) error {
	err := t.tx.QueryRowContext(ctx,
		`INSERT INTO rounds (status, open_at, lock_at, winner, seed_hash, seed) VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		string(r.Status), r.OpenAt, r.LockAt, string(r.Winner), r.SeedHash, r.Seed).Scan(&r.ID)
	if err != nil {
		err = mapErr(err)
		// o índice rounds_single_open rejeita um segundo round OPEN
		if errors.Is(err, domain.ErrDuplicateKey) {
			return fmt.Errorf("open round exists: %w", domain.ErrVersionConflict)
		}
		return err
	}
	return nil
}

func (t *pgTx) GetRound(ctx context.Context, id int64, lock LockMode) (*domain.Round, error) {
	r, err := scanRound(t.tx.QueryRowContext(ctx, `SELECT `+roundColumns+` FROM rounds WHERE id = $1`+lockClause(lock), id))
	if err != nil {
		return nil, notFound(mapErr(err), fmt.Sprintf("round %d", id))
	}
	if err := t.loadPools(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

func (t *pgTx) LatestRound(ctx context.Context, lock LockMode) (*domain.Round, error) {
	r, err := scanRound(t.tx.QueryRowContext(ctx, `SELECT `+roundColumns+` FROM rounds ORDER BY id DESC LIMIT 1`+lockClause(lock)))
	if err != nil {
		return nil, notFound(mapErr(err), "latest round")
	}
	if err := t.loadPools(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

func (t *pgTx) queryRounds(ctx context.Context, q string, args ...any) ([]domain.Round, error) {
	rows, err := t.tx.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, mapErr(err)
	}
	var out []domain.Round
	for rows.Next() {
		r, err := scanRound(rows)
		if err != nil {
			rows.Close()
			return nil, mapErr(err)
		}
		out = append(out, *r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, mapErr(err)
	}
	for i := range out {
		if err := t.loadPools(ctx, &out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (t *pgTx) RoundsByStatus(ctx context.Context, status domain.RoundStatus) ([]domain.Round, error) {
	return t.queryRounds(ctx, `SELECT `+roundColumns+` FROM rounds WHERE status = $1 ORDER BY id`, string(status))
}

func (t *pgTx) RecentSettled(ctx context.Context, n int) ([]domain.Round, error) {
	return t.queryRounds(ctx, `SELECT `+roundColumns+` FROM rounds WHERE status = 'SETTLED' ORDER BY id DESC LIMIT $1`, limitArg(n))
}

func (t *pgTx) TransitionRound(ctx context.Context, id int64, from, to domain.RoundStatus) error {
	res, err := t.tx.ExecContext(ctx, `UPDATE rounds SET status = $1 WHERE id = $2 AND status = $3`, string(to), id, string(from))
	if err != nil {
		return mapErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("round %d not %s: %w", id, from, domain.ErrVersionConflict)
	}
	return nil
}

func (t *pgTx) FinalizeRound(ctx context.Context, id int64, winner domain.Color, at time.Time) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE rounds SET status = 'SETTLED', winner = $1, settled_at = $2 WHERE id = $3 AND status = 'LOCKED'`,
		string(winner), at, id)
	if err != nil {
		return mapErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("round %d not LOCKED: %w", id, domain.ErrVersionConflict)
	}
	return nil
}

func (t *pgTx) AddPool(ctx context.Context, roundID int64, color domain.Color, amount int64) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO round_pools (round_id, color, total_minor) VALUES ($1, $2, $3)
		ON CONFLICT (round_id, color) DO UPDATE SET total_minor = round_pools.total_minor + EXCLUDED.total_minor`,
		roundID, string(color), amount)
	return mapErr(err)
}

// ---- apostas

const betColumns = `id, round_id, account_id, color, stake_minor, placed_at, outcome, stake_key`

func scanBet(s interface{ Scan(...any) error }) (*domain.Bet, error) {
	var b domain.Bet
	var color, outcome string
	if err := s.Scan(&b.ID, &b.RoundID, &b.AccountID, &color, &b.Stake, &b.PlacedAt, &outcome, &b.StakeKey); err != nil {
		return nil, err
	}
	b.Color = domain.Color(color)
	b.Outcome = domain.BetOutcome(outcome)
	return &b, nil
}

func (t *pgTx) queryBets(ctx context.Context, q string, args ...any) ([]domain.Bet, error) {
	rows, err := t.tx.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()
	var out []domain.Bet
	for rows.Next() {
		b, err := scanBet(rows)
		if err != nil {
			return nil, mapErr(err)
		}
		out = append(out, *b)
	}
	return out, mapErr(rows.Err())
}

func (t *pgTx) InsertBet(ctx context.Context, b *domain.Bet) error {
	_, err := t.tx.ExecContext(ctx, `INSERT INTO bets (`+betColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		b.ID, b.RoundID, b.AccountID, string(b.Color), b.Stake, b.PlacedAt, string(b.Outcome), b.StakeKey)
	return mapErr(err)
}

func (t *pgTx) GetBet(ctx context.Context, id string) (*domain.Bet, error) {
	b, err := scanBet(t.tx.QueryRowContext(ctx, `SELECT `+betColumns+` FROM bets WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(mapErr(err), "bet "+id)
	}
	return b, nil
}

func (t *pgTx) BetsByRound(ctx context.Context, roundID int64) ([]domain.Bet, error) {
	return t.queryBets(ctx, `SELECT `+betColumns+` FROM bets WHERE round_id = $1 ORDER BY placed_at, id`, roundID)
}

func (t *pgTx) BetsByAccount(ctx context.Context, accountID string, limit int) ([]domain.Bet, error) {
	return t.queryBets(ctx, `SELECT `+betColumns+` FROM bets WHERE account_id = $1 ORDER BY placed_at DESC, id DESC LIMIT $2`, accountID, limitArg(limit))
}

// AccountBetStats conta as apostas por resultado e soma os prêmios PAYOUT da conta.
func (t *pgTx) AccountBetStats(ctx context.Context, accountID string) (domain.BetStats, error) {
	var st domain.BetStats
	rows, err := t.tx.QueryContext(ctx,
		`SELECT outcome, COUNT(*), COALESCE(SUM(stake_minor), 0) FROM bets WHERE account_id = $1 GROUP BY outcome`, accountID)
	if err != nil {
		return st, mapErr(err)
	}
	defer rows.Close()
	for rows.Next() {
		var outcome string
		var n, staked int64
		if err := rows.Scan(&outcome, &n, &staked); err != nil {
			return st, mapErr(err)
		}
		addStats(&st, domain.BetOutcome(outcome), n, staked)
	}
	if err := rows.Err(); err != nil {
		return st, mapErr(err)
	}
	err = t.tx.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(amount_minor), 0) FROM ledger_transactions WHERE account_id = $1 AND kind = 'PAYOUT' AND status = 'COMMITTED'`,
		accountID).Scan(&st.PaidOut)
	return st, mapErr(err)
}

// SetBetOutcome grava o resultado uma única vez (outcome = 'PENDING' na condição).
func (t *pgTx) SetBetOutcome(ctx context.Context, betID string, outcome domain.BetOutcome) error {
	res, err := t.tx.ExecContext(ctx, `UPDATE bets SET outcome = $1 WHERE id = $2 AND outcome = 'PENDING'`, string(outcome), betID)
	if err != nil {
		return mapErr(err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	b, err := t.GetBet(ctx, betID)
	if err != nil {
		return err
	}
	if b.Outcome == outcome {
		return nil
	}
	return fmt.Errorf("bet %s already %s: %w", betID, b.Outcome, domain.ErrInvalidState)
}

// ---- depósitos e saques

const fundingColumns = `id, kind, account_id, amount_minor, proof_ref, status, created_at, updated_at`

func (t *pgTx) InsertFunding(ctx context.Context, f *domain.FundingRequest) error {
	_, err := t.tx.ExecContext(ctx, `INSERT INTO funding_requests (`+fundingColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		f.ID, string(f.Kind), f.AccountID, f.Amount, f.ProofRef, string(f.Status), f.CreatedAt, f.UpdatedAt)
	return mapErr(err)
}

func (t *pgTx) GetFunding(ctx context.Context, id string, lock LockMode) (*domain.FundingRequest, error) {
	var f domain.FundingRequest
	var kind, status string
	err := t.tx.QueryRowContext(ctx, `SELECT `+fundingColumns+` FROM funding_requests WHERE id = $1`+lockClause(lock), id).
		Scan(&f.ID, &kind, &f.AccountID, &f.Amount, &f.ProofRef, &status, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		return nil, notFound(mapErr(err), "funding "+id)
	}
	f.Kind = domain.FundingKind(kind)
	f.Status = domain.FundingStatus(status)
	return &f, nil
}

func (t *pgTx) UpdateFundingStatus(ctx context.Context, id string, from, to domain.FundingStatus, at time.Time) error {
	res, err := t.tx.ExecContext(ctx, `UPDATE funding_requests SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4`,
		string(to), at, id, string(from))
	if err != nil {
		return mapErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("funding %s not %s: %w", id, from, domain.ErrInvalidState)
	}
	return nil
}
