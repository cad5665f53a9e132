package main

import (
	"context"
	"os"
	"time"

	"github.com/redis/go-redis/v9"

	catalogapp "github.com/dmehra2102/storefront/internal/catalog/application"
	catalogkafka "github.com/dmehra2102/storefront/internal/catalog/infrastructure/kafka"
	catalogpg "github.com/dmehra2102/storefront/internal/catalog/infrastructure/postgres"
	"github.com/dmehra2102/storefront/internal/config"
	"github.com/dmehra2102/storefront/internal/currency"
	"github.com/dmehra2102/storefront/internal/platform/grpcserver"
	"github.com/dmehra2102/storefront/internal/platform/postgres"
	"github.com/dmehra2102/storefront/pkg/idempotency"
	"github.com/dmehra2102/storefront/pkg/logging"
	"github.com/dmehra2102/storefront/pkg/shutdown"
	"github.com/dmehra2102/storefront/pkg/tracing"
)

// catalog-worker keeps item sell counters in step with placed and cancelled
// orders.
func main() {
	cfg := config.Load()
	log := logging.New(cfg.LogLevel)

	ctx, cancel := shutdown.WithSignals(context.Background())
	defer cancel()

	tp, err := tracing.Init(ctx, "catalog-worker", cfg.OTLPEndpoint, log)
	if err != nil {
		log.Error("otel init failed", "err", err)
		os.Exit(1)
	}
	defer func() { _ = tp.Shutdown(context.Background()) }()

	pool, err := postgres.Connect(ctx, log, cfg.PGURL)
	if err != nil {
		log.Error("pg connect failed", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer rdb.Close()
	idem := idempotency.NewStore(rdb, cfg.IdempotencyTTL)

	repo := catalogpg.NewRepository(log, pool, cfg.DefaultLocale)
	conv := currency.NewConverter(log, currency.NewPostgresRates(pool), cfg.BaseCurrency)
	svc := catalogapp.NewService(log, repo, conv, nil, cfg.DefaultCountry)

	gs := grpcserver.New(log)
	if err := gs.Run(cfg.GRPCAddr); err != nil {
		log.Error("grpc listen failed", "err", err)
		os.Exit(1)
	}
	defer gs.Stop()
	go gs.Watch(ctx, "catalog-worker", 10*time.Second, map[string]grpcserver.Check{
		"postgres": pool.Ping,
		"redis":    func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
	})

	consumer := catalogkafka.NewConsumer(log, cfg.KafkaBrokers, cfg.OrderTopic, cfg.ConsumerGroup, svc, idem)
	go func() {
		if err := consumer.Run(ctx); err != nil {
			log.Error("consumer stopped", "err", err)
			cancel()
		}
	}()

	<-ctx.Done()
	log.Info("catalog-worker shutdown")
}
