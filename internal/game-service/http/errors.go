package http

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/radieske/color-round-platform/internal/domain"
	"github.com/radieske/color-round-platform/internal/game-service/dto"
)

type errorMapping struct {
	target error
	status int
	code   string
}

// ordem importa: o primeiro errors.Is que casar define a resposta
var errorTable = []errorMapping{
	{domain.ErrInvalidAmount, http.StatusUnprocessableEntity, "invalid_amount"},
	{domain.ErrInvalidColor, http.StatusUnprocessableEntity, "invalid_color"},
	{domain.ErrMissingProof, http.StatusUnprocessableEntity, "missing_proof"},
	{domain.ErrRoundClosed, http.StatusConflict, "round_closed"},
	{domain.ErrInvalidState, http.StatusConflict, "invalid_state"},
	{domain.ErrIdempotencyMismatch, http.StatusConflict, "idempotency_mismatch"},
	{domain.ErrInsufficientBalance, http.StatusPaymentRequired, "insufficient_balance"},
	{domain.ErrAccountInactive, http.StatusForbidden, "account_inactive"},
	{domain.ErrNotFound, http.StatusNotFound, "not_found"},
	{domain.ErrTransient, http.StatusServiceUnavailable, "transient"},
	{domain.ErrVersionConflict, http.StatusServiceUnavailable, "transient"},
}

// writeError traduz erros do motor em status HTTP. Erros não mapeados viram 500 e são logados.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	for _, m := range errorTable {
		if errors.Is(err, m.target) {
			writeJSON(w, m.status, dto.ErrorResponse{Error: err.Error(), Code: m.code})
			return
		}
	}
	s.log.Error("unhandled request error", zap.Error(err))
	writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "internal error", Code: "internal"})
}
