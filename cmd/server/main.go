/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the rewards engine server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load config (defaults, CONFIG_FILE, .env, environment)
  2. Apply command-line flag overrides
  3. Initialize the store (memory or SQLite)
  4. Connect the event publisher when AMQP_URL is set
  5. Create engine, handler and router
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port     HTTP server port (overrides PORT)
  -db       SQLite database path; implies STORE_BACKEND=sqlite
            Use ":memory:" for an in-memory SQLite database
  -scenario Demo scenario to load at startup (see api/scenarios.go)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (SHUTDOWN_TIMEOUT)
  3. Close store and publisher
  4. Exit

EXAMPLES:
  # In-memory store, defaults
  ./server

  # SQLite file store on a different port
  ./server -db="./data/rewards.db" -port=3000

  # Demo server with sample customers
  ./server -scenario=regular-shopper

SEE ALSO:
  - config/config.go: All settings
  - api/server.go: Router configuration
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/warp/rewards-engine/api"
	"github.com/warp/rewards-engine/config"
	"github.com/warp/rewards-engine/events"
	"github.com/warp/rewards-engine/logging"
	"github.com/warp/rewards-engine/rewards"
	"github.com/warp/rewards-engine/store/memory"
	"github.com/warp/rewards-engine/store/sqlite"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	// Flags
	port := flag.Int("port", cfg.Port, "HTTP server port")
	dbPath := flag.String("db", "", "SQLite database path (switches to the sqlite backend)")
	scenarioID := flag.String("scenario", "", "Demo scenario to load at startup")
	flag.Parse()
	cfg.Port = *port
	if *dbPath != "" {
		cfg.StoreBackend = "sqlite"
		cfg.SQLitePath = *dbPath
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(os.Stdout, cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	if err := run(cfg, logger, *scenarioID); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger, scenarioID string) error {
	// Initialize store
	var store rewards.Store
	switch cfg.StoreBackend {
	case "sqlite":
		s, err := sqlite.New(cfg.SQLitePath)
		if err != nil {
			return fmt.Errorf("initialize database: %w", err)
		}
		defer s.Close()
		store = s
	default:
		store = memory.New()
	}

	opts := []rewards.Option{
		rewards.WithLogger(logger),
		rewards.WithBulkConcurrency(cfg.BulkConcurrency),
		rewards.WithLocation(cfg.Location()),
		rewards.WithWindowPolicy(rewards.WindowPolicy{
			LookbackMonths: cfg.LookbackMonths,
			Convention:     rewards.LookbackInclusiveStart,
		}),
	}

	if cfg.AMQPURL != "" {
		pub, err := events.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			return fmt.Errorf("connect event publisher: %w", err)
		}
		defer pub.Close()
		opts = append(opts, rewards.WithPublisher(pub))
		logger.Info("publishing events", "exchange", cfg.AMQPExchange)
	}

	engine := rewards.NewEngine(store, opts...)
	handler := api.NewHandler(engine, logger)
	if scenarioID != "" {
		if err := handler.LoadScenarioByID(context.Background(), scenarioID); err != nil {
			return fmt.Errorf("load scenario: %w", err)
		}
	}
	router := api.NewRouter(handler, cfg.CORSOrigins)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			"addr", server.Addr,
			"store", cfg.StoreBackend,
			"lookback_months", cfg.LookbackMonths,
			"timezone", cfg.Timezone)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-quit:
	}

	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("forced shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}
