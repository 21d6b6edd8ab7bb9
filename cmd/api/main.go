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

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/feral-file/territory-arbiter/internal/adapter"
	"github.com/feral-file/territory-arbiter/internal/api/middleware"
	"github.com/feral-file/territory-arbiter/internal/api/rest"
	"github.com/feral-file/territory-arbiter/internal/api/server"
	"github.com/feral-file/territory-arbiter/internal/api/ws"
	"github.com/feral-file/territory-arbiter/internal/arbiter"
	"github.com/feral-file/territory-arbiter/internal/config"
	"github.com/feral-file/territory-arbiter/internal/emitter"
	"github.com/feral-file/territory-arbiter/internal/geo"
	"github.com/feral-file/territory-arbiter/internal/logger"
	"github.com/feral-file/territory-arbiter/internal/providers/jetstream"
	"github.com/feral-file/territory-arbiter/internal/session"
	"github.com/feral-file/territory-arbiter/internal/store"
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
	cfg, err := config.LoadAPIConfig(*configFile, *envPath)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize logger with sentry integration
	err = logger.Initialize(logger.Config{
		Debug:           cfg.Debug,
		SentryDSN:       cfg.SentryDSN,
		BreadcrumbLevel: zapcore.InfoLevel,
		Tags: map[string]string{
			"service": "territory-api",
		},
	})
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Flush(2 * time.Second)
	logger.InfoCtx(ctx, "Starting Territory Arbiter API")

	// Initialize store
	dataStore := openStore(ctx, &cfg.Database)

	// Initialize adapters
	clock := adapter.NewClock()
	jsonAdapter := adapter.NewJSON()

	// Build and warm the spatial index
	grid := geo.NewGrid(cfg.Geo.Precision, cfg.Geo.MaxCoverCells)
	index := geo.NewIndex(grid)
	warmed, err := geo.Warm(ctx, index, dataStore, cfg.Geo.WarmPageSize)
	if err != nil {
		logger.FatalCtx(ctx, "Failed to warm geo index", zap.Error(err))
	}
	logger.InfoCtx(ctx, "Warmed geo index",
		zap.Int("territories", warmed),
		zap.Int("precision", grid.Precision()),
	)

	// Initialize trust evaluation
	tracker := session.NewTracker(cfg.Session.Tracker())
	evaluator, err := trust.NewEvaluator(cfg.Trust, tracker)
	if err != nil {
		logger.FatalCtx(ctx, "Failed to create trust evaluator", zap.Error(err))
	}

	// Initialize arbitration
	machine := territory.NewMachine(cfg.Territory)
	bus := emitter.NewBus(cfg.Events.BufferSize)
	claimArbiter, err := arbiter.NewArbiter(cfg.Arbiter, arbiter.Deps{
		Store:     dataStore,
		Evaluator: evaluator,
		Machine:   machine,
		Index:     index,
		Bus:       bus,
		Clock:     clock,
		Canonical: adapter.NewCanonicalJSON(jsonAdapter),
	})
	if err != nil {
		logger.FatalCtx(ctx, "Failed to create arbiter", zap.Error(err))
	}

	// Ownership feed for websocket subscribers
	hub := ws.NewHub(jsonAdapter, cfg.Server.AllowOrigins)

	var wg sync.WaitGroup
	errCh := make(chan error, 3)

	// With NATS every process publishes its commits and applies everyone's commits
	// from the stream, including its own. Without it events go straight to the hub.
	sinks := []emitter.Sink{hub}
	if cfg.NATS.Enabled() {
		natsJS := adapter.NewNatsJetStream()
		jsCfg := cfg.NATS.JetStream()
		if jsCfg.ConsumerName == "" {
			jsCfg.ConsumerName = consumerName()
		}

		publisher, err := jetstream.NewPublisher(ctx, jsCfg, natsJS, jsonAdapter)
		if err != nil {
			logger.FatalCtx(ctx, "Failed to connect publisher to NATS", zap.Error(err), zap.String("url", jsCfg.URL))
		}
		subscriber, err := jetstream.NewSubscriber(ctx, jsCfg, natsJS, jsonAdapter)
		if err != nil {
			logger.FatalCtx(ctx, "Failed to connect subscriber to NATS", zap.Error(err), zap.String("url", jsCfg.URL))
		}
		defer subscriber.Close()
		logger.InfoCtx(ctx, "Connected to NATS",
			zap.String("url", jsCfg.URL),
			zap.String("stream", jsCfg.StreamName),
			zap.String("consumer", jsCfg.ConsumerName),
		)

		sinks = []emitter.Sink{emitter.NewPublisherSink(publisher)}

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := subscriber.Subscribe(ctx, emitter.FanOut(emitter.NewIndexSink(dataStore, index), hub)); err != nil {
				errCh <- fmt.Errorf("ownership subscriber: %w", err)
			}
		}()
	} else {
		logger.WarnCtx(ctx, "NATS not configured, ownership events stay local to this instance")
	}

	eventEmitter := emitter.NewEmitter(bus, emitter.Config{DrainTimeout: cfg.Events.DrainTimeout}, sinks...)
	defer eventEmitter.Close()

	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = eventEmitter.Run(ctx)
	}()

	// Evict idle sessions
	wg.Add(1)
	go func() {
		defer wg.Done()
		runSessionJanitor(ctx, tracker, clock, cfg.Session.SweepInterval)
	}()

	// Create handler and server
	handler := rest.NewHandler(rest.Config{
		DefaultRadius: cfg.Geo.DefaultRadius,
		MaxRadius:     cfg.Geo.MaxRadius,
	}, rest.Deps{
		Arbiter:     claimArbiter,
		Store:       dataStore,
		Index:       index,
		Machine:     machine,
		Clock:       clock,
		Subscribers: hub.Clients,
	})

	srv := server.New(server.Config{
		Debug:        cfg.Debug,
		Host:         cfg.Server.Host,
		Port:         cfg.Server.Port,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
		AllowOrigins: cfg.Server.AllowOrigins,
		Auth: middleware.AuthConfig{
			JWTPublicKey: cfg.Auth.JWTPublicKey,
			APIKeys:      cfg.Auth.APIKeys,
		},
	}, handler, hub)

	// Start server in a goroutine
	go func() {
		if err := srv.Start(); err != nil {
			errCh <- err
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.InfoCtx(ctx, "Received shutdown signal", zap.String("signal", sig.String()))
	case err := <-errCh:
		logger.ErrorCtx(ctx, err, zap.String("component", "server"))
	}

	// Create shutdown context with timeout (don't use canceled ctx)
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	// Stop accepting claims before draining the emitter
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.ErrorCtx(shutdownCtx, err, zap.String("component", "server"))
	}

	cancel()
	wg.Wait()

	// Use non-context logger for final message since original ctx is canceled
	logger.Info("API server stopped")
}

// openStore connects the configured territory store
func openStore(ctx context.Context, cfg *config.DatabaseConfig) store.Store {
	if cfg.Driver == config.STORE_DRIVER_MEMORY {
		logger.WarnCtx(ctx, "Using in-memory territory store, ownership is lost on restart")
		return store.NewMemoryStore()
	}

	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{})
	if err != nil {
		logger.FatalCtx(ctx, "Failed to connect to database", zap.Error(err), zap.String("host", cfg.Host))
	}

	if cfg.ReadHost != "" {
		if err := store.UseReadReplica(db, postgres.Open(cfg.ReadDSN())); err != nil {
			logger.FatalCtx(ctx, "Failed to register read replica", zap.Error(err))
		}
		logger.InfoCtx(ctx, "Registered read replica", zap.String("read_host", cfg.ReadHost))
	}

	// Configure connection pool
	if err := store.ConfigureConnectionPool(db, cfg.MaxOpenConns, cfg.MaxIdleConns, cfg.ConnMaxLifetime, cfg.ConnMaxIdleTime); err != nil {
		logger.FatalCtx(ctx, "Failed to configure connection pool", zap.Error(err))
	}
	logger.InfoCtx(ctx, "Connected to database",
		zap.Int("max_open_conns", cfg.MaxOpenConns),
		zap.Int("max_idle_conns", cfg.MaxIdleConns),
	)

	return store.NewPGStore(db)
}

// consumerName returns a durable consumer name unique to this process.
// Abandoned consumers are removed by the stream after their inactivity threshold.
func consumerName() string {
	return "territory-api-" + ulid.Make().String()
}

func runSessionJanitor(ctx context.Context, tracker session.Tracker, clock adapter.Clock, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := tracker.ExpireIdle(clock.Now()); n > 0 {
				logger.DebugCtx(ctx, "Expired idle sessions", zap.Int("sessions", n))
			}
		}
	}
}
