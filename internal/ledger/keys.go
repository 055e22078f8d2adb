package ledger

import "fmt"

// Chaves de idempotência determinísticas. Reexecutar uma operação com a mesma
// chave nunca gera um segundo lançamento.

func StakeKey(ref string) string { return "stake:" + ref }

func PayoutKey(roundID int64, betID string) string {
	return fmt.Sprintf("payout:%d:%s", roundID, betID)
}

func FeeKey(roundID int64, betID string) string { return fmt.Sprintf("fee:%d:%s", roundID, betID) }

func DepositKey(requestID string) string { return "deposit:" + requestID }

func WithdrawKey(requestID string) string { return "withdraw:" + requestID }

func WithdrawRefundKey(requestID string) string { return "withdraw-refund:" + requestID }
