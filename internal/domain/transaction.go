package domain

import "time"

type TxKind string

const (
	TxDeposit        TxKind = "DEPOSIT"
	TxWithdraw       TxKind = "WITHDRAW"
	TxWithdrawRefund TxKind = "WITHDRAW_REFUND"
	TxBetStake       TxKind = "BET_STAKE"
	TxPayout         TxKind = "PAYOUT"
	TxPlatformFee    TxKind = "PLATFORM_FEE"
	TxBetRefund      TxKind = "BET_REFUND"
)

type TxStatus string

const (
	TxPending   TxStatus = "PENDING"
	TxCommitted TxStatus = "COMMITTED"
	TxRejected  TxStatus = "REJECTED"
)

// Transaction é uma alteração atômica de saldo.
// Key é a chave de idempotência: no máximo um COMMITTED por chave.
type Transaction struct {
	ID           string
	Key          string
	AccountID    string
	Kind         TxKind
	Amount       int64 // com sinal: débito < 0, crédito > 0
	Status       TxStatus
	BalanceAfter int64
	Reference    string // round id, bet id, referência externa
	CreatedAt    time.Time
}

// Debit indica se a transação reduz o saldo.
func (t Transaction) Debit() bool { return t.Amount < 0 }
