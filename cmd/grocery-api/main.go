// Command grocery-api serves the grocery catalog, cart and order REST API.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/itsneelabh/gomind-grocery/api"
	"github.com/itsneelabh/gomind-grocery/cart"
	"github.com/itsneelabh/gomind-grocery/catalog"
	"github.com/itsneelabh/gomind-grocery/core"
	"github.com/itsneelabh/gomind-grocery/events"
	"github.com/itsneelabh/gomind-grocery/order"
	"github.com/itsneelabh/gomind-grocery/resilience"
	"github.com/itsneelabh/gomind-grocery/session"
	"github.com/itsneelabh/gomind-grocery/telemetry"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("grocery-api: %v", err)
	}
}

func run() error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger := core.NewProductionLogger(cfg.Logging, cfg.Development, cfg.Name)
	if s, ok := logger.(interface{ Sync() error }); ok {
		defer func() { _ = s.Sync() }()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	provider, err := telemetry.Initialize(ctx, cfg.Telemetry, cfg.Name)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Telemetry shutdown error", map[string]interface{}{"error": err.Error()})
		}
	}()

	store, closeStore, err := newStore(cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	publisher, err := newPublisher(cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = publisher.Close() }()

	cat := catalog.Default()
	handler := api.NewRouter(api.Deps{
		Catalog: cat,
		Cart:    cart.NewService(cat, store, cart.WithLogger(logger)),
		Orders:  order.NewService(cat, store, order.WithPublisher(publisher), order.WithLogger(logger)),
		Health:  store,
		Logger:  logger,
	}, cfg)

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Address, cfg.Port),
		Handler:           handler,
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
		IdleTimeout:       cfg.HTTP.IdleTimeout,
		MaxHeaderBytes:    cfg.HTTP.MaxHeaderBytes,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting grocery API", map[string]interface{}{
			"address":          server.Addr,
			"session_provider": cfg.Session.Provider,
			"events":           cfg.Events.AMQPURL != "",
			"telemetry":        provider.Enabled(),
			"version":          core.Version,
		})
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down grocery API", nil)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func loadConfig() (*core.Config, error) {
	if err := core.LoadDotEnv(); err != nil {
		return nil, err
	}
	return core.NewConfig(
		core.WithName("grocery-api"),
		core.WithConfigFile(os.Getenv("GROCERY_CONFIG_FILE")),
	)
}

func newStore(cfg *core.Config, logger core.Logger) (session.Store, func(), error) {
	if cfg.Session.Provider == "inmemory" {
		logger.Warn("Using in-memory session store; carts are lost on restart", nil)
		return session.NewMemoryStore(session.WithTTL(cfg.Session.TTL), session.WithLogger(logger)), func() {}, nil
	}

	client, err := core.NewRedisClient(core.RedisClientOptions{
		RedisURL:  cfg.Session.RedisURL,
		DB:        cfg.Session.DB,
		Namespace: cfg.Session.Namespace,
		Logger:    logger,
	})
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() {
		if err := client.Close(); err != nil {
			logger.Warn("Failed to close Redis client", map[string]interface{}{"error": err.Error()})
		}
	}
	return session.NewRedisStore(client, cfg.Session, logger), closeFn, nil
}

func newPublisher(cfg *core.Config, logger core.Logger) (events.Publisher, error) {
	if cfg.Events.AMQPURL == "" {
		return events.NoopPublisher{}, nil
	}

	var breaker *resilience.CircuitBreaker
	if cfg.Resilience.CircuitBreaker.Enabled {
		cb, err := resilience.CreateCircuitBreaker("amqp-publisher", cfg.Resilience.CircuitBreaker, resilience.Dependencies{
			Logger: logger,
		})
		if err != nil {
			return nil, err
		}
		breaker = cb
	}
	pub, err := events.NewAMQPPublisher(cfg.Events.AMQPURL, cfg.Events.Queue, breaker, logger)
	if err != nil {
		return nil, err
	}
	return pub, nil
}
