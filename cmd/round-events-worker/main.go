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

	"github.com/radieske/color-round-platform/internal/round-events/cache"
	"github.com/radieske/color-round-platform/internal/round-events/consumer"
	"github.com/radieske/color-round-platform/internal/round-events/pubsub"
	sharedcache "github.com/radieske/color-round-platform/internal/shared/cache"
	"github.com/radieske/color-round-platform/internal/shared/config"
	"github.com/radieske/color-round-platform/internal/shared/kafka"
	"github.com/radieske/color-round-platform/internal/shared/logger"
	"github.com/radieske/color-round-platform/internal/shared/metrics"
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

	// Sinalização para shutdown gracioso (SIGINT/SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	redisClient, err := sharedcache.ConnectRedis(ctx, cfg.RedisAddr)
	if err != nil {
		log.Fatal("redis connect", zap.Error(err))
	}
	defer redisClient.Close()

	topics := consumer.Topics{
		Opened:    cfg.TopicRoundOpened,
		Locked:    cfg.TopicRoundLocked,
		Settled:   cfg.TopicRoundSettled,
		BetPlaced: cfg.TopicBetPlaced,
	}
	reader := kafka.NewGroupReader(cfg.KafkaBrokers, topics.List(), cfg.ConsumerGroup)
	defer reader.Close()
	dlq := kafka.NewWriter(cfg.KafkaBrokers)
	defer dlq.Close()

	// Métricas Prometheus para monitoramento do processamento
	reg := prometheus.NewRegistry()
	consumed := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "round_events_consumed_total", Help: "mensagens consumidas por tópico"}, []string{"topic"})
	cached := prometheus.NewCounter(prometheus.CounterOpts{Name: "round_events_cache_writes_total", Help: "atualizações do cache"})
	broadcast := prometheus.NewCounter(prometheus.CounterOpts{Name: "round_events_broadcasts_total", Help: "updates publicados no pub/sub"})
	errorsBy := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "round_events_errors_total", Help: "erros por estágio"}, []string{"stage"})
	reg.MustRegister(consumed, cached, broadcast, errorsBy)

	// a round:current expira se o worker ficar parado por várias rodadas
	ttl := 10 * cfg.Game.RoundLength
	proc := &consumer.Processor{
		Log:         log,
		Reader:      reader,
		Topics:      topics,
		Cache:       cache.NewRedisCache(redisClient, ttl),
		Broadcaster: pubsub.NewRedisBroadcaster(redisClient, cfg.RedisPubSubChannel),
		DLQ:         dlq,
		DLQTopic:    cfg.TopicRoundDLQ,
		OnConsumed:  func(topic string) { consumed.WithLabelValues(topic).Inc() },
		OnCached:    func() { cached.Inc() },
		OnBroadcast: func() { broadcast.Inc() },
		OnError:     func(stage string) { errorsBy.WithLabelValues(stage).Inc() },
	}

	metricsSrv := metrics.StartMetricsServer(cfg.MetricsPort, reg, func(ctx context.Context) error {
		return redisClient.Ping(ctx).Err()
	})
	log.Info("metrics/health listening", zap.String("port", cfg.MetricsPort))

	log.Info("round-events-worker started", zap.Strings("topics", topics.List()), zap.String("group", cfg.ConsumerGroup))
	if err := proc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("processor stopped with error", zap.Error(err))
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	_ = metricsSrv.Shutdown(shutdownCtx)
	log.Info("round-events-worker stopped")
}
