/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the finance diary server. Handles configuration,
  dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load .env (if present), environment and command-line flags
  2. Build the logger
  3. Initialize the document store (memory, or SQLite behind a
     write-behind queue)
  4. Connect the AMQP event publisher when AMQP_URL is set
  5. Open the diary (load documents, request a full rebuild)
  6. Run the HTTP server, the reconciler and the recurring scheduler
     under one errgroup

COMMAND-LINE FLAGS (override the environment):
  -port    HTTP server port
  -db      SQLite database path; selects the sqlite backend
           Use ":memory:" for an in-memory database

ENVIRONMENT:
  PORT, DATA_BACKEND (memory|sqlite), SQLITE_DB_PATH, AMQP_URL,
  AMQP_EXCHANGE, AMQP_QUEUE, LOG_LEVEL, LOG_PRETTY, RECALC_HORIZON_YEARS,
  RECURRING_INTERVAL, RECURRING_LOOKAHEAD_MONTHS

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the scheduler and the reconciler
  4. Flush pending writes and close the store
  5. Close the event publisher

EXAMPLES:
  # Run with file database
  ./server -db="./data/diary.db"

  # Run in memory on a different port
  ./server -port=3000

SEE ALSO:
  - api/server.go: Router configuration
  - diary/service.go: The application service
  - config/config.go: Settings
*/
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/warp/finance-diary/api"
	"github.com/warp/finance-diary/config"
	"github.com/warp/finance-diary/currency"
	"github.com/warp/finance-diary/diary"
	"github.com/warp/finance-diary/factory"
	"github.com/warp/finance-diary/ledger"
	"github.com/warp/finance-diary/logging"
	"github.com/warp/finance-diary/notify"
	"github.com/warp/finance-diary/notify/amqp"
	"github.com/warp/finance-diary/store"
	"github.com/warp/finance-diary/store/sqlite"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 30 * time.Second

func main() {
	_ = godotenv.Load()

	cfg := config.Load()

	// Flags
	port := flag.String("port", cfg.Port, "HTTP server port")
	dbPath := flag.String("db", "", "SQLite database path (selects the sqlite backend)")
	flag.Parse()
	cfg.Port = *port
	if *dbPath != "" {
		cfg.DataBackend = config.BackendSQLite
		cfg.SQLiteDBPath = *dbPath
	}

	logger := logging.New(logging.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty})

	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("server failed")
	}
	logger.Info().Msg("server stopped")
}

func run(cfg *config.Config, logger zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize store
	kv, closeStore, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	// Initialize event publisher
	var publisher notify.Publisher = notify.Nop{}
	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logging.Component(logger, "amqp"))
		if err != nil {
			return err
		}
		publisher = client
		logger.Info().Str("exchange", cfg.AMQPExchange).Str("queue", cfg.AMQPQueue).Msg("publishing events to AMQP")
	}
	defer publisher.Close()

	recalc := ledger.NewRecalculator(logging.Component(logger, "recalc"))
	recalc.Horizon = cfg.RecalcHorizonYears

	svc, err := diary.New(diary.Options{
		KV:           kv,
		Publisher:    publisher,
		Factory:      factory.New(currency.BRL{}, logging.Component(logger, "factory")),
		Recalculator: recalc,
		Logger:       logger,
	})
	if err != nil {
		return err
	}
	if err := svc.Open(ctx); err != nil {
		return err
	}

	scheduler := diary.NewRecurringScheduler(svc, logger)
	scheduler.CheckInterval = cfg.RecurringInterval
	scheduler.Lookahead = cfg.RecurringLookaheadMonths

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      api.NewRouter(api.NewHandler(svc, nil, logger), logger, nil),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return svc.Run(gctx) })
	g.Go(func() error { return scheduler.Run(gctx) })
	g.Go(func() error {
		logger.Info().Str("addr", server.Addr).Msg("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// openStore returns the configured KV and a func that flushes and closes it.
func openStore(cfg *config.Config, logger zerolog.Logger) (store.KV, func(), error) {
	if cfg.DataBackend != config.BackendSQLite {
		logger.Warn().Msg("using in-memory store, data is lost on exit")
		return store.NewMemory(), func() {}, nil
	}

	db, err := sqlite.New(cfg.SQLiteDBPath)
	if err != nil {
		return nil, nil, err
	}
	writer := store.NewAsyncWriter(db, logging.Component(logger, "store"))
	logger.Info().Str("path", cfg.SQLiteDBPath).Msg("using sqlite store")

	return writer, func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := writer.Close(ctx); err != nil {
			logger.Error().Err(err).Msg("flush pending writes")
		}
		if err := db.Close(); err != nil {
			logger.Error().Err(err).Msg("close database")
		}
	}, nil
}
