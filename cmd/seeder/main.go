package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/feral-file/territory-arbiter/internal/adapter"
	"github.com/feral-file/territory-arbiter/internal/config"
	"github.com/feral-file/territory-arbiter/internal/geo"
	"github.com/feral-file/territory-arbiter/internal/logger"
	"github.com/feral-file/territory-arbiter/internal/seed"
	"github.com/feral-file/territory-arbiter/internal/store"
)

var (
	configFile = flag.String("config", "", "Path to configuration file")
	envPath    = flag.String("env", "config/", "Path to environment files")
	seedFile   = flag.String("file", "", "Path to the territory seed file (overrides seed_path)")
	dryRun     = flag.Bool("dry-run", false, "Validate the seed file without writing to the database")
)

func main() {
	flag.Parse()

	// Load configuration
	config.ChdirRepoRoot()
	cfg, err := config.LoadSeederConfig(*configFile, *envPath)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = logger.Initialize(logger.Config{
		Debug:           cfg.Debug,
		SentryDSN:       cfg.SentryDSN,
		BreadcrumbLevel: zapcore.InfoLevel,
		Tags: map[string]string{
			"service": "territory-seeder",
		},
	})
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Flush(2 * time.Second)

	path := cfg.SeedPath
	if *seedFile != "" {
		path = *seedFile
	}

	grid := geo.NewGrid(cfg.Geo.Precision, cfg.Geo.MaxCoverCells)
	territories, err := seed.NewLoader(adapter.NewFileSystem(), grid).Load(path)
	if err != nil {
		logger.FatalCtx(ctx, "Failed to load seed file", zap.Error(err), zap.String("path", path))
	}
	logger.InfoCtx(ctx, "Loaded seed file",
		zap.String("path", path),
		zap.Int("territories", len(territories)),
	)

	if *dryRun {
		logger.InfoCtx(ctx, "Dry run, nothing written")
		return
	}

	if cfg.Database.Driver == config.STORE_DRIVER_MEMORY {
		logger.FatalCtx(ctx, "The in-memory store is private to the API process, configure postgres")
	}

	// Connect to database
	db, err := gorm.Open(postgres.Open(cfg.Database.DSN()), &gorm.Config{})
	if err != nil {
		logger.FatalCtx(ctx, "Failed to connect to database", zap.Error(err), zap.String("host", cfg.Database.Host))
	}
	if err := store.ConfigureConnectionPool(db, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns, cfg.Database.ConnMaxLifetime, cfg.Database.ConnMaxIdleTime); err != nil {
		logger.FatalCtx(ctx, "Failed to configure connection pool", zap.Error(err))
	}

	result, err := seed.Seed(ctx, store.NewPGStore(db), territories)
	if err != nil {
		logger.FatalCtx(ctx, "Failed to seed territories", zap.Error(err),
			zap.Int("created", result.Created),
			zap.Int("skipped", result.Skipped),
		)
	}

	logger.InfoCtx(ctx, "Seeded territories",
		zap.Int("created", result.Created),
		zap.Int("skipped", result.Skipped),
	)
}
