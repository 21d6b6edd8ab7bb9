package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/feral-file/territory-arbiter/internal/adapter"
	"github.com/feral-file/territory-arbiter/internal/arbiter"
	"github.com/feral-file/territory-arbiter/internal/config"
	"github.com/feral-file/territory-arbiter/internal/emitter"
	"github.com/feral-file/territory-arbiter/internal/logger"
	"github.com/feral-file/territory-arbiter/internal/providers/jetstream"
	"github.com/feral-file/territory-arbiter/internal/session"
	"github.com/feral-file/territory-arbiter/internal/store"
	"github.com/feral-file/territory-arbiter/internal/sweeper"
	"github.com/feral-file/territory-arbiter/internal/territory"
	"github.com/feral-file/territory-arbiter/internal/trust"
)

var (
	configFile = flag.String("config", "", "Path to configuration file")
	envPath    = flag.String("env", "config/", "Path to environment files")
)

func main() {
	flag.Parse()

	// Load configuration
	config.ChdirRepoRoot()
	cfg, err := config.LoadSweeperConfig(*configFile, *envPath)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize logger with sentry integration
	err = logger.Initialize(logger.Config{
		Debug:           cfg.Debug,
		SentryDSN:       cfg.SentryDSN,
		BreadcrumbLevel: zapcore.InfoLevel,
		Tags: map[string]string{
			"service": "territory-sweeper",
		},
	})
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Flush(2 * time.Second)
	logger.InfoCtx(ctx, "Starting Sweeper")

	if cfg.Database.Driver == config.STORE_DRIVER_MEMORY {
		logger.FatalCtx(ctx, "The in-memory store is private to the API process, configure postgres")
	}

	// Connect to database
	db, err := gorm.Open(postgres.Open(cfg.Database.DSN()), &gorm.Config{})
	if err != nil {
		logger.FatalCtx(ctx, "Failed to connect to database", zap.Error(err), zap.String("host", cfg.Database.Host))
	}

	// Configure connection pool
	if err := store.ConfigureConnectionPool(db, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns, cfg.Database.ConnMaxLifetime, cfg.Database.ConnMaxIdleTime); err != nil {
		logger.FatalCtx(ctx, "Failed to configure connection pool", zap.Error(err))
	}
	logger.InfoCtx(ctx, "Connected to database",
		zap.Int("max_open_conns", cfg.Database.MaxOpenConns),
		zap.Int("max_idle_conns", cfg.Database.MaxIdleConns),
	)

	// Initialize store
	dataStore := store.NewPGStore(db)

	// Initialize adapters
	clock := adapter.NewClock()
	jsonAdapter := adapter.NewJSON()

	var wg sync.WaitGroup

	// Releases are published so API instances refresh their index and subscribers
	var bus emitter.Bus
	if cfg.NATS.Enabled() {
		publisher, err := jetstream.NewPublisher(ctx, cfg.NATS.JetStream(), adapter.NewNatsJetStream(), jsonAdapter)
		if err != nil {
			logger.FatalCtx(ctx, "Failed to connect to NATS", zap.Error(err), zap.String("url", cfg.NATS.URL))
		}
		logger.InfoCtx(ctx, "Connected to NATS", zap.String("url", cfg.NATS.URL))

		bus = emitter.NewBus(cfg.Events.BufferSize)
		eventEmitter := emitter.NewEmitter(bus, emitter.Config{DrainTimeout: cfg.Events.DrainTimeout}, emitter.NewPublisherSink(publisher))
		defer eventEmitter.Close()

		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = eventEmitter.Run(ctx)
		}()
	} else {
		logger.WarnCtx(ctx, "NATS not configured, API instances will not observe released territories until restart")
	}

	// Abandonment is not gated by trust, the evaluator only satisfies the arbiter
	evaluator, err := trust.NewEvaluator(trust.DefaultConfig(), session.NewTracker(session.Config{}))
	if err != nil {
		logger.FatalCtx(ctx, "Failed to create trust evaluator", zap.Error(err))
	}

	machine := territory.NewMachine(cfg.Territory)
	claimArbiter, err := arbiter.NewArbiter(cfg.Arbiter, arbiter.Deps{
		Store:     dataStore,
		Evaluator: evaluator,
		Machine:   machine,
		Bus:       bus,
		Clock:     clock,
		Canonical: adapter.NewCanonicalJSON(jsonAdapter),
	})
	if err != nil {
		logger.FatalCtx(ctx, "Failed to create arbiter", zap.Error(err))
	}

	// Initialize abandonment sweeper
	abandonmentSweeperConfig := &sweeper.AbandonmentSweeperConfig{
		BatchSize:      cfg.AbandonmentSweeper.BatchSize,
		WorkerPoolSize: cfg.AbandonmentSweeper.Worker.WorkerPoolSize,
		AbandonAfter:   cfg.Territory.AbandonAfter,
		CycleInterval:  cfg.AbandonmentSweeper.CycleInterval,
		ListTimeout:    cfg.AbandonmentSweeper.ListTimeout,
	}
	abandonmentSweeper := sweeper.NewAbandonmentSweeper(abandonmentSweeperConfig, dataStore, claimArbiter, clock)

	logger.InfoCtx(ctx, "Initialized abandonment sweeper (continuous mode)",
		zap.Int("batch_size", cfg.AbandonmentSweeper.BatchSize),
		zap.Int("worker_pool_size", cfg.AbandonmentSweeper.Worker.WorkerPoolSize),
		zap.Duration("abandon_after", cfg.Territory.AbandonAfter),
	)

	// Start the sweeper in a goroutine
	errChan := make(chan error, 1)
	go func() {
		if err := abandonmentSweeper.Start(ctx); err != nil {
			errChan <- err
		}
	}()

	// Wait for interrupt signal or error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.InfoCtx(ctx, "Received shutdown signal", zap.String("signal", sig.String()))
	case err := <-errChan:
		logger.ErrorCtx(ctx, err)
	}

	// Give the sweeper time to finish in-flight releases
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := abandonmentSweeper.Stop(shutdownCtx); err != nil {
		logger.ErrorCtx(shutdownCtx, err)
	}

	// Cancel context to drain the emitter
	cancel()
	wg.Wait()

	logger.InfoCtx(shutdownCtx, "Sweeper stopped")
}
