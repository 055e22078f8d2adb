package domain

import "errors"

// Erros de validação: reportados ao chamador, sem mutação de estado.
var (
	ErrRoundClosed         = errors.New("round closed")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInvalidColor        = errors.New("invalid color")
	ErrAccountInactive     = errors.New("account inactive")
	ErrInvalidState        = errors.New("invalid state transition")
	ErrIdempotencyMismatch = errors.New("idempotency key reused with different payload")
	ErrMissingProof        = errors.New("payment proof reference required")
)

// Erros de armazenamento/concorrência.
var (
	ErrNotFound        = errors.New("not found")
	ErrVersionConflict = errors.New("version conflict")
	ErrDuplicateKey    = errors.New("duplicate idempotency key")
	ErrTransient       = errors.New("transient failure, retry")
	ErrNotLeader       = errors.New("scheduler leadership held elsewhere")
)

// IsConflict indica erros que devem ser retentados internamente.
func IsConflict(err error) bool {
	return errors.Is(err, ErrVersionConflict) || errors.Is(err, ErrDuplicateKey)
}
