package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/radieske/color-round-platform/internal/feed-service/cache"
	httpapi "github.com/radieske/color-round-platform/internal/feed-service/http"
	"github.com/radieske/color-round-platform/internal/feed-service/ws"
	sharedcache "github.com/radieske/color-round-platform/internal/shared/cache"
	"github.com/radieske/color-round-platform/internal/shared/config"
	"github.com/radieske/color-round-platform/internal/shared/logger"
	"github.com/radieske/color-round-platform/internal/shared/metrics"
	"github.com/radieske/color-round-platform/pkg/contracts/events"
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

	redisClient, err := sharedcache.ConnectRedis(ctx, cfg.RedisAddr)
	if err != nil {
		log.Fatal("failed to connect redis", zap.Error(err))
	}
	defer redisClient.Close()
	log.Info("redis connected")

	c := cors.New(cors.Options{AllowedOrigins: cfg.CORSOrigins})
	hub := ws.NewHub(log, c.OriginAllowed)
	api := &httpapi.API{Log: log, Cache: cache.New(redisClient), Hub: hub}
	hub.Snapshot = api.Snapshot

	subDone := ws.StartRedisSubscriber(ctx, redisClient, cfg.RedisPubSubChannel, hub, log)

	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "feed_ws_subscribers", Help: "clientes WS inscritos no stream de rounds",
	}, func() float64 { return float64(hub.Subscribers(events.StreamRounds)) }))
	metricsSrv := metrics.StartMetricsServer(cfg.MetricsPort, reg, func(ctx context.Context) error {
		return redisClient.Ping(ctx).Err()
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           c.Handler(api.Router()),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info("feed-service listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	_ = metricsSrv.Shutdown(shutdownCtx)
	<-subDone
	log.Info("feed-service stopped")
}
