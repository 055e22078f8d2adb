package domain

import "time"

type FundingKind string

const (
	FundingDeposit  FundingKind = "DEPOSIT"
	FundingWithdraw FundingKind = "WITHDRAW"
)

type FundingStatus string

const (
	FundingPending  FundingStatus = "PENDING"
	FundingApproved FundingStatus = "APPROVED"
	FundingRejected FundingStatus = "REJECTED"
)

// FundingRequest representa depósito ou saque verificado externamente.
type FundingRequest struct {
	ID        string
	Kind      FundingKind
	AccountID string
	Amount    int64
	ProofRef  string // UTR do pagamento, vazio em saques
	Status    FundingStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}
