package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/radieske/color-round-platform/internal/domain"
	ghttp "github.com/radieske/color-round-platform/internal/game-service/http"
	"github.com/radieske/color-round-platform/internal/game-service/producer"
	"github.com/radieske/color-round-platform/internal/ledger"
	"github.com/radieske/color-round-platform/internal/repo"
	"github.com/radieske/color-round-platform/internal/round"
	"github.com/radieske/color-round-platform/internal/shared/config"
	"github.com/radieske/color-round-platform/internal/shared/db"
	"github.com/radieske/color-round-platform/internal/shared/kafka"
	"github.com/radieske/color-round-platform/internal/shared/logger"
	"github.com/radieske/color-round-platform/internal/shared/metrics"
	"github.com/radieske/color-round-platform/internal/wallet"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log, err := logger.New(cfg.ServiceName, cfg.Env)
	if err != nil {
		panic(fmt.Errorf("logger init: %w", err))
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rules := rulesFrom(cfg.Game)
	if err := rules.Validate(); err != nil {
		log.Fatal("invalid game rules", zap.Error(err))
	}

	store, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		log.Fatal("store init", zap.Error(err))
	}
	defer closeStore()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewEngine(reg)

	// Kafka é opcional: sem brokers o motor roda sem publicar eventos
	var pub round.Publisher = round.NopPublisher{}
	if cfg.KafkaBrokers != "" {
		w := kafka.NewWriter(cfg.KafkaBrokers)
		defer w.Close()
		pub = producer.NewKafkaPublisher(w, producer.Topics{
			RoundOpened:  cfg.TopicRoundOpened,
			RoundLocked:  cfg.TopicRoundLocked,
			RoundSettled: cfg.TopicRoundSettled,
			BetPlaced:    cfg.TopicBetPlaced,
		})
		log.Info("kafka publisher ready", zap.String("brokers", cfg.KafkaBrokers))
	}

	l := ledger.New(store, log, m)
	if _, err := l.EnsureAccount(ctx, rules.HouseAccount); err != nil {
		log.Fatal("house account", zap.Error(err))
	}
	book := round.NewBetBook(store, l, rules, pub, log, m)
	settler := round.NewSettler(store, l, rules, pub, log, m)
	sched := round.NewScheduler(store, settler, rules, round.SchedulerConfig{
		Tick:           cfg.Game.TickInterval,
		SettleTimeout:  cfg.Game.SettlementTimeout,
		BackoffMin:     cfg.Game.SettlementBackoffMin,
		BackoffMax:     cfg.Game.SettlementBackoffMax,
		AlertAfter:     cfg.Game.SettlementAlertAfter,
		Pipelined:      cfg.Game.Pipelined,
		LeaderInterval: round.DefaultSchedulerConfig().LeaderInterval,
	}, pub, log, m)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := sched.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("scheduler stopped with error", zap.Error(err))
		}
	}()

	api := ghttp.NewServer(log, ghttp.Deps{
		Book:       book,
		Reader:     round.NewReader(store),
		Ledger:     l,
		Wallet:     wallet.NewService(store, l, wallet.Limits{MinDeposit: cfg.Game.MinDeposit, MinWithdraw: cfg.Game.MinWithdraw}, log),
		Rules:      rules,
		AdminToken: cfg.AdminToken,
	})
	if cfg.AdminToken == "" {
		log.Warn("ADMIN_TOKEN not set, operator routes are disabled")
	}

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           api.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	metricsSrv := metrics.StartMetricsServer(cfg.MetricsPort, reg, store.Ping)
	log.Info("metrics/health listening", zap.String("port", cfg.MetricsPort))

	go func() {
		log.Info("game-service listening", zap.String("addr", srv.Addr), zap.Bool("pipelined", cfg.Game.Pipelined))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	_ = metricsSrv.Shutdown(shutdownCtx)
	wg.Wait()
	log.Info("game-service stopped")
}

func rulesFrom(g config.Game) round.Rules {
	colors := make([]domain.Color, 0, len(g.Colors))
	for _, c := range g.Colors {
		colors = append(colors, domain.Color(c))
	}
	return round.Rules{
		Colors:           colors,
		RoundLength:      g.RoundLength,
		GraceCutoff:      g.GraceCutoff,
		MinBet:           g.MinBet,
		PayoutMultiplier: g.PayoutMultiplier,
		FeeRate:          g.FeeRate,
		HouseAccount:     g.HouseAccountID,
	}
}

// openStore escolhe o armazenamento. "memory" serve para demo e testes locais,
// sem durabilidade e com um único scheduler.
func openStore(ctx context.Context, cfg config.Config, log *zap.Logger) (repo.Store, func(), error) {
	if cfg.StoreDriver == "memory" {
		log.Warn("using in-memory store, state is lost on restart")
		return repo.NewMemory(), func() {}, nil
	}
	pg, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, nil, err
	}
	store := repo.NewPostgres(pg, cfg.Game.SchedulerLockKey)
	if err := store.Migrate(ctx); err != nil {
		_ = pg.Close()
		return nil, nil, fmt.Errorf("migrate: %w", err)
	}
	log.Info("postgres connected")
	return store, func() { _ = pg.Close() }, nil
}
