package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/dmehra2102/storefront/internal/admin"
	"github.com/dmehra2102/storefront/internal/admin/infrastructure/gormstore"
	catalogapp "github.com/dmehra2102/storefront/internal/catalog/application"
	"github.com/dmehra2102/storefront/internal/catalog/infrastructure/geoip"
	cataloghttp "github.com/dmehra2102/storefront/internal/catalog/infrastructure/http"
	catalogpg "github.com/dmehra2102/storefront/internal/catalog/infrastructure/postgres"
	"github.com/dmehra2102/storefront/internal/config"
	"github.com/dmehra2102/storefront/internal/currency"
	orchestrator "github.com/dmehra2102/storefront/internal/orchestrator/application"
	orderapp "github.com/dmehra2102/storefront/internal/order/application"
	orderhttp "github.com/dmehra2102/storefront/internal/order/infrastructure/http"
	orderkafka "github.com/dmehra2102/storefront/internal/order/infrastructure/kafka"
	orderpg "github.com/dmehra2102/storefront/internal/order/infrastructure/postgres"
	paymentapp "github.com/dmehra2102/storefront/internal/payment/application"
	paymenthttp "github.com/dmehra2102/storefront/internal/payment/infrastructure/http"
	paymentpg "github.com/dmehra2102/storefront/internal/payment/infrastructure/postgres"
	"github.com/dmehra2102/storefront/internal/payment/infrastructure/przelewy24"
	"github.com/dmehra2102/storefront/internal/platform/grpcserver"
	"github.com/dmehra2102/storefront/internal/platform/httpx"
	"github.com/dmehra2102/storefront/internal/platform/locale"
	"github.com/dmehra2102/storefront/internal/platform/postgres"
	"github.com/dmehra2102/storefront/pkg/idempotency"
	"github.com/dmehra2102/storefront/pkg/logging"
	"github.com/dmehra2102/storefront/pkg/outbox"
	"github.com/dmehra2102/storefront/pkg/shutdown"
	"github.com/dmehra2102/storefront/pkg/tracing"
)

func main() {
	cfg := config.Load()
	log := logging.New(cfg.LogLevel)

	ctx, cancel := shutdown.WithSignals(context.Background())
	defer cancel()

	tp, err := tracing.Init(ctx, "storefront-service", cfg.OTLPEndpoint, log)
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
	if cfg.Migrate {
		if err := postgres.Migrate(ctx, pool); err != nil {
			log.Error("migrate failed", "err", err)
			os.Exit(1)
		}
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer rdb.Close()
	idem := idempotency.NewStore(rdb, cfg.IdempotencyTTL)

	// Outbox relay
	writer := orderkafka.NewWriter(cfg.KafkaBrokers)
	defer writer.Close()
	dispatch := outbox.NewDispatcher(log, writer, cfg.OrderTopic)
	relay := outbox.NewRelay(log, outbox.NewPostgresStore(log, pool), dispatch, "storefront-relay")
	go func() {
		if err := relay.Run(ctx); err != nil {
			log.Error("relay stopped with error", "err", err)
		}
	}()

	// Currency rates
	conv := currency.NewConverter(log, currency.NewPostgresRates(pool), cfg.BaseCurrency)
	if err := conv.Refresh(ctx); err != nil {
		log.Warn("initial currency refresh failed", "err", err)
	}
	go conv.Run(ctx, cfg.RatesRefresh)

	locator, err := geoip.Open(log, cfg.GeoIPPath)
	if err != nil {
		log.Error("geoip open failed", "err", err)
		os.Exit(1)
	}
	defer func() { _ = locator.Close() }()

	locales := locale.NewMatcher(cfg.SupportedLocales)

	catalog := catalogapp.NewService(log, catalogpg.NewRepository(log, pool, cfg.DefaultLocale), conv, locator, cfg.DefaultCountry)
	orders := orderapp.NewService(log, orderpg.NewRepository(log, pool, cfg.DefaultLocale), idem)
	coordinator := orchestrator.NewCoordinator(log, orders)
	p24 := przelewy24.NewClient(log, przelewy24.Config{
		BaseURL:    cfg.Przelewy24.BaseURL,
		MerchantID: cfg.Przelewy24.MerchantID,
		PosID:      cfg.Przelewy24.PosID,
		APIKey:     cfg.Przelewy24.APIKey,
		CRC:        cfg.Przelewy24.CRC,
		ReturnURL:  cfg.Przelewy24.ReturnURL,
		StatusURL:  cfg.Przelewy24.StatusURL,
	})
	payments := paymentapp.NewService(log, paymentpg.NewRepository(log, pool), p24, orders, coordinator, idem, cfg.BaseCurrency)

	db, err := gormstore.Open(log, pool)
	if err != nil {
		log.Error("gorm open failed", "err", err)
		os.Exit(1)
	}

	orderHandler := orderhttp.NewHandler(log, orders, locales)
	paymentHandler := paymenthttp.NewHandler(log, payments)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(httpx.RequestLogger(log))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := pool.Ping(r.Context()); err != nil {
			httpx.WriteError(w, http.StatusServiceUnavailable, "unavailable", "Database unavailable")
			return
		}
		httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Mount("/api/catalog", cataloghttp.NewHandler(log, catalog, locales).Routes())
	r.Route("/api/payments", func(r chi.Router) {
		paymentHandler.ProviderRoutes(r)
		r.With(httpx.Authenticate).Group(paymentHandler.CustomerRoutes)
	})
	r.Group(func(r chi.Router) {
		r.Use(httpx.Authenticate)
		r.Route("/api/orders", func(r chi.Router) {
			orderHandler.CustomerRoutes(r)
			paymentHandler.OrderRoutes(r)
		})
		r.Route("/api/admin", func(r chi.Router) {
			r.With(httpx.RequireRole(httpx.RoleAdmin, httpx.RoleEmployer)).Route("/orders", orderHandler.AdminRoutes)
			admin.Routes(log, db, conv)(r)
		})
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
	}

	// gRPC health
	gs := grpcserver.New(log)
	if err := gs.Run(cfg.GRPCAddr); err != nil {
		log.Error("grpc listen failed", "err", err)
		os.Exit(1)
	}
	defer gs.Stop()
	go gs.Watch(ctx, "storefront", 10*time.Second, map[string]grpcserver.Check{
		"postgres": pool.Ping,
		"redis":    func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		"gorm":     func(ctx context.Context) error { return gormstore.Ping(ctx, db) },
	})

	go func() {
		log.Info("http listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server error", "err", err)
			cancel()
		}
	}()

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)
	log.Info("storefront-service shutdown complete")
}
