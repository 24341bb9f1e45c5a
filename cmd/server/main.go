package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/example/ride-booking/internal/booking"
	"github.com/example/ride-booking/internal/config"
	"github.com/example/ride-booking/internal/dispatch"
	"github.com/example/ride-booking/internal/eta"
	"github.com/example/ride-booking/internal/geo"
	httpapi "github.com/example/ride-booking/internal/http"
	"github.com/example/ride-booking/internal/ingest"
	"github.com/example/ride-booking/internal/logging"
	"github.com/example/ride-booking/internal/payments"
	"github.com/example/ride-booking/internal/ranker"
	"github.com/example/ride-booking/internal/storage"
)

func main() {
	cfg, err := config.LoadServerConfig()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	logger := logging.NewLogger("ride-api", cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

type store interface {
	storage.RideStore
	storage.DriverDirectory
}

func run(ctx context.Context, cfg config.ServerConfig, logger *slog.Logger) error {
	var closers []func() error
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i]()
		}
	}()
	var readyChecks []func(context.Context) error

	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		closers = append(closers, rdb.Close)
		readyChecks = append(readyChecks, func(ctx context.Context) error { return rdb.Ping(ctx).Err() })
	}

	var routes eta.Provider
	switch cfg.RouteProvider {
	case "osrm":
		routes = eta.NewOSRMClient(cfg.OSRMEndpoint)
	default:
		routes = eta.NewGoogleDirections(eta.GoogleConfig{APIKey: cfg.DirectionsAPIKey, BaseURL: cfg.DirectionsBaseURL, Timeout: cfg.RouteTimeout})
	}
	var cache eta.DurationCache = eta.NewCache(cfg.RouteCacheTTL)
	if rdb != nil {
		cache = eta.NewRedisCache(rdb, cfg.RouteCacheTTL)
	}
	routes = &eta.CachingProvider{Next: routes, Cache: cache}

	var locator geo.Locator = geo.NewIndex()
	if rdb != nil {
		locator = geo.NewRedisGeo(rdb, cfg.RedisGeoKey)
	}

	var st store
	if cfg.PGDSN != "" {
		ps, err := storage.NewPostgresStore(ctx, cfg.PGDSN)
		if err != nil {
			return err
		}
		closers = append(closers, ps.Close)
		readyChecks = append(readyChecks, ps.Ping)
		st = ps
	} else {
		logger.Warn("PG_DSN not set; using in-memory ride store")
		st = storage.NewMemoryStore(storage.SampleDrivers()...)
	}

	ws := dispatch.NewWSRegistry(logger.With("component", "dispatch"))
	sagaOpts := []booking.Option{
		booking.WithLogger(logger.With("component", "booking")),
		booking.WithOnBooked(ws.RideBooked),
	}
	var producer *ingest.KafkaProducer
	if len(cfg.KafkaBrokers) > 0 {
		producer = ingest.NewKafkaProducer(cfg.KafkaBrokers, cfg.KafkaLocationTopic, cfg.KafkaBookingTopic)
		closers = append(closers, producer.Close)
		sagaOpts = append(sagaOpts, booking.WithEvents(producer))
	}

	stripeClient := payments.NewStripeClient(payments.StripeConfig{
		APIKey:    cfg.StripeAPIKey,
		Currency:  cfg.PaymentCurrency,
		ReturnURL: cfg.PaymentReturnURL,
	})
	saga := booking.New(stripeClient, st, booking.Config{
		Timeout:                cfg.BookingTimeout,
		CancelOnConfirmFailure: cfg.BookingCancelOnConfirmFailure,
	}, sagaOpts...)

	deps := httpapi.Deps{
		Drivers: st,
		Ranker:  ranker.New(routes, logger.With("component", "ranker"), cfg.RankerMaxConcurrency),
		Booker:  saga,
		Geo:     locator,
		WS:      ws,
		Logger:  logger,
		Ready: func(ctx context.Context) error {
			var errs []error
			for _, check := range readyChecks {
				errs = append(errs, check(ctx))
			}
			return errors.Join(errs...)
		},
	}
	if producer != nil {
		deps.Locations = producer
	}

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      httpapi.NewServer(deps),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("ride-api listening", "addr", cfg.HTTPAddr, "route_provider", cfg.RouteProvider)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
