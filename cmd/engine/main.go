// Command engine wires the core's process-wide singletons — logger,
// persistence worker, instrument-spec cache, strategy manager — and
// blocks until a termination signal arrives.
//
// The HTTP API, dashboard, and config-loading surface around this core
// are out of scope here (§1); this binary exists so the core's wiring
// compiles and runs standalone, the way the teacher's
// cmd/exchange_connector and cmd/live_server each wire one slice of the
// same internal packages into a runnable process.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"bitget-marketmaker/internal/config"
	"bitget-marketmaker/internal/core"
	"bitget-marketmaker/internal/exchange"
	"bitget-marketmaker/internal/persistence"
	"bitget-marketmaker/internal/specs"
	"bitget-marketmaker/internal/strategymgr"
	"bitget-marketmaker/pkg/logging"
)

const shutdownTimeout = 15 * time.Second

func run() error {
	logger, err := logging.NewZapLogger(envOr("LOG_LEVEL", "INFO"))
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	var exchangeCfg config.ExchangeConfig
	if path := os.Getenv("EXCHANGE_CONFIG_FILE"); path != "" {
		exchangeCfg, err = config.LoadExchangeConfigFromYAML(path)
	} else {
		exchangeCfg, err = config.LoadExchangeConfigFromEnv()
	}
	if err != nil {
		return fmt.Errorf("load exchange config: %w", err)
	}

	store, err := persistence.Open(envOr("DATABASE_PATH", "bitget-marketmaker.db"), logger)
	if err != nil {
		return fmt.Errorf("open persistence: %w", err)
	}
	defer store.Close()

	fetcher := exchange.NewSpecFetcher(exchangeCfg, logger)
	specCache := specs.NewCache(store.DB(), fetcher)

	manager := strategymgr.New(exchangeCfg, logger, specCache, store)

	logger.Info("engine core wired and ready", "log_level", envOr("LOG_LEVEL", "INFO"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutdown signal received, stopping active strategy if any")
		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if manager.State() != core.StateStopped {
			if err := manager.EmergencyStopActive(stopCtx); err != nil {
				logger.Warn("emergency stop on shutdown failed", "error", err)
			}
		}
		return nil
	})

	return g.Wait()
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
