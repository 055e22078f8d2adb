package simulator

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	ghttp "github.com/radieske/color-round-platform/internal/game-service/http"
	"github.com/radieske/color-round-platform/internal/ledger"
	"github.com/radieske/color-round-platform/internal/repo"
	"github.com/radieske/color-round-platform/internal/round"
	"github.com/radieske/color-round-platform/internal/wallet"
)

func TestSimulator_AgainstGameAPI(t *testing.T) {
	ctx := context.Background()
	log := zap.NewNop()
	store := repo.NewMemory()
	l := ledger.New(store, log, nil)
	rules := round.DefaultRules()

	api := ghttp.NewServer(log, ghttp.Deps{
		Book:       round.NewBetBook(store, l, rules, nil, log, nil),
		Reader:     round.NewReader(store),
		Ledger:     l,
		Wallet:     wallet.NewService(store, l, wallet.DefaultLimits, log),
		Rules:      rules,
		AdminToken: "tok",
	})
	srv := httptest.NewServer(api.Router())
	defer srv.Close()

	sched := round.NewScheduler(store, round.NewSettler(store, l, rules, nil, log, nil), rules, round.DefaultSchedulerConfig(), nil, log, nil)
	sched.Tick(ctx)

	reg := prometheus.NewRegistry()
	sim := New(Config{
		BaseURL:     srv.URL,
		AdminToken:  "tok",
		Players:     3,
		Interval:    time.Millisecond,
		Colors:      []string{"RED", "GREEN", "BLUE"},
		MinStake:    1000,
		MaxStake:    5000,
		DepositEach: 100000,
	}, log, reg)

	require.NoError(t, sim.Setup(ctx))
	for i := 0; i < 10; i++ {
		code, err := sim.PlaceOne(ctx)
		require.NoError(t, err)
		assert.Equal(t, 201, code)
	}
	assert.Equal(t, float64(10), testutil.ToFloat64(sim.bets.WithLabelValues("201")))

	cur, err := round.NewReader(store).CurrentRound(ctx)
	require.NoError(t, err)
	assert.Positive(t, cur.TotalPool())

	var total int64
	for i := 0; i < 3; i++ {
		bal, err := l.Balance(ctx, sim.player(i))
		require.NoError(t, err)
		total += bal
	}
	assert.Equal(t, int64(300000)-cur.TotalPool(), total)
}

func TestSimulator_SetupFailsWithoutAdminToken(t *testing.T) {
	log := zap.NewNop()
	store := repo.NewMemory()
	l := ledger.New(store, log, nil)
	api := ghttp.NewServer(log, ghttp.Deps{
		Book:       round.NewBetBook(store, l, round.DefaultRules(), nil, log, nil),
		Reader:     round.NewReader(store),
		Ledger:     l,
		Wallet:     wallet.NewService(store, l, wallet.DefaultLimits, log),
		Rules:      round.DefaultRules(),
		AdminToken: "tok",
	})
	srv := httptest.NewServer(api.Router())
	defer srv.Close()

	sim := New(Config{BaseURL: srv.URL, Players: 1, Colors: []string{"RED"}, MinStake: 1000, MaxStake: 1000, DepositEach: 5000}, log, prometheus.NewRegistry())
	err := sim.Setup(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "forbidden")
}
