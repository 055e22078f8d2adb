package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Engine agrupa as métricas do motor de rounds. Métodos aceitam receiver nil
// para que testes e ferramentas possam rodar sem registry.
type Engine struct {
	betsAdmitted     *prometheus.CounterVec
	betsRejected     *prometheus.CounterVec
	roundTransitions *prometheus.CounterVec
	settleAttempts   *prometheus.CounterVec
	settleDuration   prometheus.Histogram
	ledgerPostings   *prometheus.CounterVec
	awaitingSettle   prometheus.Gauge
}

// NewEngine cria e registra os coletores em reg.
func NewEngine(reg prometheus.Registerer) *Engine {
	e := &Engine{
		betsAdmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "game_bets_admitted_total", Help: "apostas aceitas por cor",
		}, []string{"color"}),
		betsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "game_bets_rejected_total", Help: "apostas recusadas por motivo",
		}, []string{"reason"}),
		roundTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "game_round_transitions_total", Help: "transições de estado de round",
		}, []string{"status"}),
		settleAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "game_settlement_attempts_total", Help: "tentativas de liquidação por resultado",
		}, []string{"result"}),
		settleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name: "game_settlement_duration_seconds", Help: "duração da liquidação de um round",
			Buckets: prometheus.DefBuckets,
		}),
		ledgerPostings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_postings_total", Help: "lançamentos no ledger por tipo e resultado",
		}, []string{"kind", "result"}),
		awaitingSettle: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "game_rounds_awaiting_settlement", Help: "rounds LOCKED ainda não liquidados",
		}),
	}
	reg.MustRegister(e.betsAdmitted, e.betsRejected, e.roundTransitions,
		e.settleAttempts, e.settleDuration, e.ledgerPostings, e.awaitingSettle)
	return e
}

func (e *Engine) BetAdmitted(color string) {
	if e != nil {
		e.betsAdmitted.WithLabelValues(color).Inc()
	}
}

func (e *Engine) BetRejected(reason string) {
	if e != nil {
		e.betsRejected.WithLabelValues(reason).Inc()
	}
}

func (e *Engine) RoundTransition(status string) {
	if e != nil {
		e.roundTransitions.WithLabelValues(status).Inc()
	}
}

func (e *Engine) SettlementAttempt(result string, took time.Duration) {
	if e == nil {
		return
	}
	e.settleAttempts.WithLabelValues(result).Inc()
	e.settleDuration.Observe(took.Seconds())
}

func (e *Engine) LedgerPosting(kind, result string) {
	if e != nil {
		e.ledgerPostings.WithLabelValues(kind, result).Inc()
	}
}

func (e *Engine) AwaitingSettlement(n int) {
	if e != nil {
		e.awaitingSettle.Set(float64(n))
	}
}
