package simulator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/radieske/color-round-platform/internal/game-service/dto"
)

type Config struct {
	BaseURL     string // game-service ou api-gateway com prefixo /api/game
	AdminToken  string // necessário para aprovar os depósitos iniciais
	Players     int
	Interval    time.Duration
	Colors      []string
	MinStake    int64
	MaxStake    int64
	DepositEach int64
}

// Simulator gera carga de apostas contra a API pública do game-service:
// cria jogadores, aprova um depósito para cada um e aposta em cores aleatórias.
type Simulator struct {
	cfg    Config
	client *http.Client
	log    *zap.Logger

	mu  sync.Mutex
	rng *rand.Rand

	bets *prometheus.CounterVec
}

func New(cfg Config, log *zap.Logger, reg prometheus.Registerer) *Simulator {
	s := &Simulator{
		cfg:    cfg,
		client: &http.Client{Timeout: 5 * time.Second},
		log:    log,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
		bets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "simulator_bets_total", Help: "apostas enviadas por status HTTP",
		}, []string{"code"}),
	}
	reg.MustRegister(s.bets)
	return s
}

func (s *Simulator) player(i int) string { return fmt.Sprintf("sim-player-%03d", i) }

// Setup cria as contas e credita o saldo inicial de cada jogador.
func (s *Simulator) Setup(ctx context.Context) error {
	for i := 0; i < s.cfg.Players; i++ {
		id := s.player(i)
		if _, err := s.post(ctx, "/v1/accounts", dto.SignupRequest{AccountID: id}, nil, http.StatusCreated); err != nil {
			return fmt.Errorf("signup %s: %w", id, err)
		}
		var f dto.FundingResponse
		dep := dto.DepositRequest{AccountID: id, AmountMinor: s.cfg.DepositEach, ProofRef: "SIM-" + uuid.NewString()[:8]}
		if _, err := s.post(ctx, "/v1/deposits", dep, &f, http.StatusAccepted); err != nil {
			return fmt.Errorf("deposit %s: %w", id, err)
		}
		if _, err := s.post(ctx, "/v1/deposits/"+f.RequestID+"/approve", nil, nil, http.StatusOK); err != nil {
			return fmt.Errorf("approve %s: %w", id, err)
		}
	}
	s.log.Info("simulated players funded", zap.Int("players", s.cfg.Players), zap.Int64("deposit_minor", s.cfg.DepositEach))
	return nil
}

// Run aposta a cada Interval até ctx ser cancelado.
func (s *Simulator) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			code, err := s.PlaceOne(ctx)
			if err != nil && ctx.Err() == nil {
				s.log.Debug("simulated bet failed", zap.Int("status", code), zap.Error(err))
			}
		}
	}
}

// PlaceOne envia uma aposta aleatória no round corrente e devolve o status HTTP.
// 409 (round fechado) e 402 (saldo) fazem parte do fluxo normal.
func (s *Simulator) PlaceOne(ctx context.Context) (int, error) {
	s.mu.Lock()
	req := dto.PlaceBetRequest{
		AccountID:      s.player(s.rng.Intn(s.cfg.Players)),
		Color:          s.cfg.Colors[s.rng.Intn(len(s.cfg.Colors))],
		AmountMinor:    s.cfg.MinStake + s.rng.Int63n(s.cfg.MaxStake-s.cfg.MinStake+1),
		IdempotencyKey: uuid.NewString(),
	}
	s.mu.Unlock()

	code, err := s.post(ctx, "/v1/rounds/current/bets", req, nil, http.StatusCreated)
	s.bets.WithLabelValues(fmt.Sprint(code)).Inc()
	return code, err
}

func (s *Simulator) post(ctx context.Context, path string, body, out any, want int) (int, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return 0, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(s.cfg.BaseURL, "/")+path, &buf)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.cfg.AdminToken != "" {
		req.Header.Set("X-Admin-Token", s.cfg.AdminToken)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != want {
		var e dto.ErrorResponse
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return resp.StatusCode, fmt.Errorf("%s: status %d code %q", path, resp.StatusCode, e.Code)
	}
	if out != nil {
		return resp.StatusCode, json.NewDecoder(resp.Body).Decode(out)
	}
	return resp.StatusCode, nil
}
