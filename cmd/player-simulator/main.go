package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/radieske/color-round-platform/internal/shared/config"
	"github.com/radieske/color-round-platform/internal/shared/logger"
	"github.com/radieske/color-round-platform/internal/shared/metrics"
	"github.com/radieske/color-round-platform/internal/simulator"
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

	reg := prometheus.NewRegistry()
	sim := simulator.New(simulator.Config{
		BaseURL:     cfg.GameServiceURL,
		AdminToken:  cfg.AdminToken,
		Players:     cfg.Sim.Players,
		Interval:    cfg.Sim.Interval,
		Colors:      cfg.Game.Colors,
		MinStake:    cfg.Game.MinBet,
		MaxStake:    max(cfg.Sim.MaxStake, cfg.Game.MinBet),
		DepositEach: cfg.Sim.DepositEach,
	}, log, reg)

	metricsSrv := metrics.StartMetricsServer(cfg.MetricsPort, reg, func(context.Context) error { return nil })
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = metricsSrv.Shutdown(shutdownCtx)
	}()

	if err := sim.Setup(ctx); err != nil {
		log.Error("simulator setup failed", zap.Error(err))
		return
	}
	log.Info("player simulator running", zap.String("target", cfg.GameServiceURL), zap.Duration("interval", cfg.Sim.Interval))
	if err := sim.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("simulator stopped with error", zap.Error(err))
	}
	log.Info("player simulator stopped")
}
