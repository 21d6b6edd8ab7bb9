package sweeper

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/feral-file/territory-arbiter/internal/adapter"
	"github.com/feral-file/territory-arbiter/internal/arbiter"
	"github.com/feral-file/territory-arbiter/internal/domain"
	"github.com/feral-file/territory-arbiter/internal/logger"
	"github.com/feral-file/territory-arbiter/internal/store"
)

const (
	SWEEP_CYCLE_INTERVAL = 15 * time.Minute // Time to sleep between sweep cycles
)

// AbandonmentSweeperConfig holds configuration for the abandonment sweeper
type AbandonmentSweeperConfig struct {
	BatchSize      int           // Territories released per batch
	WorkerPoolSize int           // Concurrent workers
	AbandonAfter   time.Duration // Owner inactivity timeout
	CycleInterval  time.Duration // Sleep between cycles once no full batch is left
	ListTimeout    time.Duration // Total retry time for listing candidates
}

// abandonmentSweeper releases territories whose owners have been inactive past the timeout
type abandonmentSweeper struct {
	config    *AbandonmentSweeperConfig
	store     store.Store
	arbiter   arbiter.Arbiter
	clock     adapter.Clock
	running   atomic.Bool
	stopOnce  sync.Once
	stopChan  chan struct{}
	stoppedCh chan struct{}
}

// NewAbandonmentSweeper creates a new abandonment sweeper
func NewAbandonmentSweeper(
	config *AbandonmentSweeperConfig,
	st store.Store,
	arb arbiter.Arbiter,
	clock adapter.Clock,
) Sweeper {
	if config.CycleInterval <= 0 {
		config.CycleInterval = SWEEP_CYCLE_INTERVAL
	}
	if config.ListTimeout <= 0 {
		config.ListTimeout = 5 * time.Minute
	}
	return &abandonmentSweeper{
		config:    config,
		store:     st,
		arbiter:   arb,
		clock:     clock,
		stopChan:  make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

// Name returns the sweeper's name
func (s *abandonmentSweeper) Name() string {
	return "abandonment-sweeper"
}

// Start begins the sweeper's main loop
func (s *abandonmentSweeper) Start(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return fmt.Errorf("sweeper already running")
	}
	defer func() {
		s.running.Store(false)
		close(s.stoppedCh) // Signal that we've stopped
	}()

	logger.InfoCtx(ctx, "Starting abandonment sweeper",
		zap.Int("batch_size", s.config.BatchSize),
		zap.Int("worker_pool_size", s.config.WorkerPoolSize),
		zap.Duration("abandon_after", s.config.AbandonAfter),
		zap.Duration("cycle_interval", s.config.CycleInterval),
	)

	for {
		select {
		case <-ctx.Done():
			logger.InfoCtx(ctx, "Abandonment sweeper stopping due to context cancellation", zap.Error(ctx.Err()))
			return nil
		case <-s.stopChan:
			logger.InfoCtx(ctx, "Abandonment sweeper stop requested")
			return nil
		default:
			more, err := s.runSweepCycle(ctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.ErrorCtx(ctx, err)
			}
			if more {
				continue
			}
			// Use context-aware sleep so we can be interrupted
			s.sleep(ctx, s.config.CycleInterval)
		}
	}
}

// Stop gracefully stops the sweeper with timeout support
func (s *abandonmentSweeper) Stop(ctx context.Context) error {
	if !s.running.Load() {
		return nil // Already stopped
	}

	logger.InfoCtx(ctx, "Stopping abandonment sweeper")

	// Signal stop to the main loop
	s.stopOnce.Do(func() { close(s.stopChan) })

	// Wait for main loop to exit, but respect context cancellation
	select {
	case <-s.stoppedCh:
		logger.InfoCtx(ctx, "Abandonment sweeper stopped gracefully")
		return nil
	case <-ctx.Done():
		logger.WarnCtx(ctx, "Abandonment sweeper stop interrupted by context timeout")
		return ctx.Err()
	}
}

// runSweepCycle releases one batch of inactive territories. It reports whether a full
// batch made progress, in which case the next batch is taken without sleeping.
func (s *abandonmentSweeper) runSweepCycle(ctx context.Context) (bool, error) {
	startTime := s.clock.Now()
	cutoff := startTime.Add(-s.config.AbandonAfter)

	territories, err := s.listInactiveWithRetry(ctx, cutoff)
	if err != nil {
		return false, err
	}

	if len(territories) == 0 {
		logger.DebugCtx(ctx, "No inactive territories", zap.Time("cutoff", cutoff))
		return false, nil
	}

	logger.InfoCtx(ctx, "Found inactive territories", zap.Int("count", len(territories)))

	var releasedCount, keptCount, failedCount atomic.Int32

	pool := pond.NewPool(
		s.config.WorkerPoolSize,
		pond.WithQueueSize(s.config.BatchSize),
		pond.WithContext(ctx),
	)
	for _, t := range territories {
		pool.Submit(func() {
			s.abandon(ctx, t, &releasedCount, &keptCount, &failedCount)
		})
	}

	// Wait for all releases to complete
	pool.StopAndWait()

	duration := s.clock.Since(startTime)
	logger.InfoCtx(ctx, "Sweep cycle completed",
		zap.Duration("duration", duration),
		zap.Int("total_checked", len(territories)),
		zap.Int32("released", releasedCount.Load()),
		zap.Int32("kept", keptCount.Load()),
		zap.Int32("failed", failedCount.Load()),
	)

	return len(territories) >= s.config.BatchSize && releasedCount.Load() > 0, nil
}

// abandon releases a single territory through the arbiter
func (s *abandonmentSweeper) abandon(ctx context.Context, t *domain.Territory, releasedCount, keptCount, failedCount *atomic.Int32) {
	result, err := s.arbiter.Abandon(ctx, t.ID)
	if err != nil {
		failedCount.Add(1)
		logger.ErrorCtx(ctx, err, zap.String("territoryID", t.ID))
		return
	}

	switch {
	case result.Success:
		releasedCount.Add(1)
		logger.InfoCtx(ctx, "Territory released",
			zap.String("territoryID", t.ID),
			zap.String("previous_owner", t.Owner()),
			zap.Int64("version", result.TerritoryVersion),
		)
	case result.Reason.Retryable():
		failedCount.Add(1)
		logger.WarnCtx(ctx, "Territory release failed, will retry next cycle",
			zap.String("territoryID", t.ID),
			zap.String("reason", string(result.Reason)),
		)
	default:
		// The owner came back or someone else claimed it meanwhile
		keptCount.Add(1)
		logger.DebugCtx(ctx, "Territory no longer abandoned",
			zap.String("territoryID", t.ID),
			zap.String("reason", string(result.Reason)),
		)
	}
}

// listInactiveWithRetry lists release candidates with exponential backoff retry
func (s *abandonmentSweeper) listInactiveWithRetry(ctx context.Context, cutoff time.Time) ([]*domain.Territory, error) {
	// Configure exponential backoff
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = s.config.ListTimeout
	b.Multiplier = 2.0
	b.RandomizationFactor = 0.5 // Add jitter to prevent thundering herd

	var territories []*domain.Territory
	operation := func() error {
		var err error
		territories, err = s.store.ListInactive(ctx, cutoff, s.config.BatchSize)
		return err
	}

	var attemptCount int
	notifyOnError := func(err error, duration time.Duration) {
		attemptCount++
		logger.WarnCtx(ctx, "Listing inactive territories failed, retrying",
			zap.Error(err),
			zap.Int("attempt", attemptCount),
			zap.Duration("next_retry_in", duration),
		)
	}

	if err := backoff.RetryNotify(operation, backoff.WithContext(b, ctx), notifyOnError); err != nil {
		return nil, fmt.Errorf("failed to list inactive territories after %d attempts: %w", attemptCount+1, err)
	}

	return territories, nil
}

// sleep sleeps for the given duration but can be interrupted by context cancellation
// Returns true if sleep completed normally, false if interrupted
func (s *abandonmentSweeper) sleep(ctx context.Context, duration time.Duration) bool {
	select {
	case <-s.clock.After(duration):
		return true // Sleep completed
	case <-ctx.Done():
		return false // Interrupted by context cancellation
	case <-s.stopChan:
		return false // Interrupted by stop signal
	}
}
