package dto

type PlaceBetRequest struct {
	AccountID      string `json:"accountId" validate:"required,max=64"`
	RoundID        int64  `json:"roundId" validate:"omitempty,gt=0"` // obrigatório em POST /v1/bets
	Color          string `json:"color" validate:"required,max=16"`
	AmountMinor    int64  `json:"amount_minor" validate:"required,gt=0"`
	IdempotencyKey string `json:"idempotencyKey,omitempty" validate:"omitempty,max=128"`
}

type SignupRequest struct {
	AccountID string `json:"accountId" validate:"required,max=64"`
}

type DepositRequest struct {
	AccountID   string `json:"accountId" validate:"required,max=64"`
	AmountMinor int64  `json:"amount_minor" validate:"required,gt=0"`
	ProofRef    string `json:"proofRef" validate:"required,max=64"` // UTR do pagamento
}

type WithdrawRequest struct {
	AccountID   string `json:"accountId" validate:"required,max=64"`
	AmountMinor int64  `json:"amount_minor" validate:"required,gt=0"`
}
