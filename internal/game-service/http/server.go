package http

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/radieske/color-round-platform/internal/domain"
	"github.com/radieske/color-round-platform/internal/game-service/dto"
	"github.com/radieske/color-round-platform/internal/ledger"
	"github.com/radieske/color-round-platform/internal/round"
	"github.com/radieske/color-round-platform/internal/wallet"
)

const defaultListLimit = 50

// Deps agrupa os componentes do motor usados pelo gateway.
type Deps struct {
	Book       *round.BetBook
	Reader     *round.Reader
	Ledger     *ledger.Ledger
	Wallet     *wallet.Service
	Rules      round.Rules
	AdminToken string
}

// Server é o gateway HTTP do game-service: valida e encaminha pedidos ao motor.
type Server struct {
	log      *zap.Logger
	deps     Deps
	validate *validator.Validate
}

func NewServer(log *zap.Logger, deps Deps) *Server {
	return &Server{log: log, deps: deps, validate: validator.New()}
}

// Router retorna o roteador HTTP com as rotas públicas e administrativas
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/bets", s.placeBet)
		r.Post("/rounds/current/bets", s.placeBetOnCurrent)
		r.Get("/rounds/current", s.currentRound)
		r.Get("/rounds/recent", s.recentResults)
		r.Get("/rounds/{id}", s.getRound)

		r.Post("/accounts", s.signup)
		r.Get("/accounts/{id}/balance", s.balance)
		r.Get("/accounts/{id}/transactions", s.transactions)
		r.Get("/accounts/{id}/bets", s.accountBets)
		r.Get("/accounts/{id}/stats", s.accountStats)

		r.Post("/deposits", s.requestDeposit)
		r.Post("/withdrawals", s.requestWithdraw)
		r.Get("/funding/{id}", s.getFunding)

		// ações de operador externo (verificação de UTR, pagamento de saque)
		r.Group(func(r chi.Router) {
			r.Use(s.requireAdmin)
			r.Post("/deposits/{id}/approve", s.resolveFunding(s.deps.Wallet.ApproveDeposit))
			r.Post("/deposits/{id}/reject", s.resolveFunding(s.deps.Wallet.RejectDeposit))
			r.Post("/withdrawals/{id}/complete", s.resolveFunding(s.deps.Wallet.CompleteWithdraw))
			r.Post("/withdrawals/{id}/reject", s.resolveFunding(s.deps.Wallet.RejectWithdraw))
			r.Post("/admin/accounts/{id}/deactivate", s.deactivate)
			r.Get("/admin/accounts/{id}/reconcile", s.reconcile)
		})
	})
	return r
}

func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := r.Header.Get("X-Admin-Token")
		if s.deps.AdminToken == "" || subtle.ConstantTimeCompare([]byte(token), []byte(s.deps.AdminToken)) != 1 {
			writeJSON(w, http.StatusForbidden, dto.ErrorResponse{Error: "admin token required", Code: "forbidden"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// decode lê o corpo JSON e aplica as regras de validação do DTO.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "bad json", Code: "bad_request"})
		return false
	}
	if err := s.validate.Struct(dst); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, dto.ErrorResponse{Error: err.Error(), Code: "validation"})
		return false
	}
	return true
}

func (s *Server) placeBet(w http.ResponseWriter, r *http.Request) {
	var req dto.PlaceBetRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.RoundID == 0 {
		writeJSON(w, http.StatusUnprocessableEntity, dto.ErrorResponse{Error: "roundId required", Code: "validation"})
		return
	}
	s.admit(w, r, req, false)
}

func (s *Server) placeBetOnCurrent(w http.ResponseWriter, r *http.Request) {
	var req dto.PlaceBetRequest
	if !s.decode(w, r, &req) {
		return
	}
	s.admit(w, r, req, true)
}

func (s *Server) admit(w http.ResponseWriter, r *http.Request, req dto.PlaceBetRequest, current bool) {
	br := round.BetRequest{
		AccountID:      req.AccountID,
		RoundID:        req.RoundID,
		Color:          domain.Color(req.Color),
		Amount:         req.AmountMinor,
		IdempotencyKey: req.IdempotencyKey,
	}
	admit := s.deps.Book.Admit
	if current {
		admit = s.deps.Book.AdmitCurrent
	}
	bet, replayed, err := admit(r.Context(), br)
	if err != nil {
		s.writeError(w, err)
		return
	}
	status := http.StatusCreated
	if replayed {
		status = http.StatusOK
	}
	writeJSON(w, status, dto.NewBetResponse(bet, replayed))
}

func (s *Server) currentRound(w http.ResponseWriter, r *http.Request) {
	rd, err := s.deps.Reader.CurrentRound(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.NewRoundResponse(rd, s.deps.Rules.Colors, s.deps.Rules.GraceCutoff))
}

func (s *Server) getRound(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "invalid round id", Code: "bad_request"})
		return
	}
	rd, err := s.deps.Reader.Round(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.NewRoundResponse(rd, s.deps.Rules.Colors, s.deps.Rules.GraceCutoff))
}

func (s *Server) recentResults(w http.ResponseWriter, r *http.Request) {
	n := queryInt(r, "n", round.DefaultRecent)
	rounds, err := s.deps.Reader.RecentResults(r.Context(), n)
	if err != nil {
		s.writeError(w, err)
		return
	}
	out := make([]dto.RoundResponse, 0, len(rounds))
	for i := range rounds {
		out = append(out, dto.NewRoundResponse(&rounds[i], s.deps.Rules.Colors, s.deps.Rules.GraceCutoff))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) signup(w http.ResponseWriter, r *http.Request) {
	var req dto.SignupRequest
	if !s.decode(w, r, &req) {
		return
	}
	acc, err := s.deps.Ledger.EnsureAccount(r.Context(), req.AccountID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, dto.AccountResponse{
		AccountID:    acc.ID,
		BalanceMinor: acc.Balance,
		Balance:      dto.Rupees(acc.Balance),
		Active:       acc.Active,
	})
}

func (s *Server) balance(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	bal, err := s.deps.Ledger.Balance(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.BalanceResponse{AccountID: id, BalanceMinor: bal, Balance: dto.Rupees(bal)})
}

func (s *Server) transactions(w http.ResponseWriter, r *http.Request) {
	txs, err := s.deps.Ledger.History(r.Context(), chi.URLParam(r, "id"), queryInt(r, "limit", defaultListLimit))
	if err != nil {
		s.writeError(w, err)
		return
	}
	out := make([]dto.TransactionResponse, 0, len(txs))
	for _, t := range txs {
		out = append(out, dto.NewTransactionResponse(t))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) accountBets(w http.ResponseWriter, r *http.Request) {
	bets, err := s.deps.Reader.BetsForAccount(r.Context(), chi.URLParam(r, "id"), queryInt(r, "limit", defaultListLimit))
	if err != nil {
		s.writeError(w, err)
		return
	}
	out := make([]dto.BetResponse, 0, len(bets))
	for i := range bets {
		out = append(out, dto.NewBetResponse(&bets[i], false))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) accountStats(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	st, err := s.deps.Reader.AccountStats(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.NewStatsResponse(id, st))
}

func (s *Server) requestDeposit(w http.ResponseWriter, r *http.Request) {
	var req dto.DepositRequest
	if !s.decode(w, r, &req) {
		return
	}
	f, err := s.deps.Wallet.RequestDeposit(r.Context(), req.AccountID, req.AmountMinor, req.ProofRef)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, dto.NewFundingResponse(f))
}

func (s *Server) requestWithdraw(w http.ResponseWriter, r *http.Request) {
	var req dto.WithdrawRequest
	if !s.decode(w, r, &req) {
		return
	}
	f, err := s.deps.Wallet.RequestWithdraw(r.Context(), req.AccountID, req.AmountMinor)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, dto.NewFundingResponse(f))
}

func (s *Server) getFunding(w http.ResponseWriter, r *http.Request) {
	f, err := s.deps.Wallet.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.NewFundingResponse(f))
}

func (s *Server) resolveFunding(fn func(ctx context.Context, id string) (*domain.FundingRequest, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f, err := fn(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, dto.NewFundingResponse(f))
	}
}

func (s *Server) deactivate(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Ledger.Deactivate(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) reconcile(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.deps.Ledger.Reconcile(r.Context(), id); err != nil {
		if errors.Is(err, ledger.ErrDrift) {
			writeJSON(w, http.StatusConflict, dto.ErrorResponse{Error: err.Error(), Code: "ledger_drift"})
			return
		}
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"accountId": id, "status": "consistent"})
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
