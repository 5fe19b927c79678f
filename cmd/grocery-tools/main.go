// Command grocery-tools exposes the grocery API as tool capabilities.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/itsneelabh/gomind-grocery/core"
	"github.com/itsneelabh/gomind-grocery/resilience"
	"github.com/itsneelabh/gomind-grocery/shopclient"
	"github.com/itsneelabh/gomind-grocery/telemetry"
	"github.com/itsneelabh/gomind-grocery/tools"
	"golang.org/x/sync/errgroup"
)

const defaultPort = 8081

func main() {
	if err := run(); err != nil {
		log.Fatalf("grocery-tools: %v", err)
	}
}

func run() error {
	if err := core.LoadDotEnv(); err != nil {
		return err
	}
	cfg, err := core.NewConfig(
		core.WithName("grocery-tools"),
		core.WithPort(defaultPort),
		core.WithConfigFile(os.Getenv("GROCERY_CONFIG_FILE")),
	)
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

	opts := []shopclient.Option{
		shopclient.WithLogger(logger),
		shopclient.WithRetry(resilience.RetryConfigFrom(cfg.Resilience.Retry)),
	}
	if cfg.Resilience.CircuitBreaker.Enabled {
		breaker, err := resilience.CreateCircuitBreaker("shop-api", cfg.Resilience.CircuitBreaker, resilience.Dependencies{
			Logger:     logger,
			Classifier: shopclient.BreakerClassifier,
		})
		if err != nil {
			return err
		}
		opts = append(opts, shopclient.WithCircuitBreaker(breaker))
	}
	shop, err := shopclient.New(cfg.ShopAPI, opts...)
	if err != nil {
		return err
	}

	tool := tools.NewGroceryTool(cfg, shop, logger)
	tool.Use(telemetry.TracingMiddleware(cfg.Name), telemetry.CorrelationMiddleware)

	logger.Info("Grocery tools configured", map[string]interface{}{
		"shop_api":     cfg.ShopAPI.BaseURL,
		"capabilities": len(tool.GetCapabilities()),
		"telemetry":    provider.Enabled(),
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return tool.Start(gctx, -1)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		return tool.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
