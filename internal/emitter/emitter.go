package emitter

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/feral-file/territory-arbiter/internal/domain"
	"github.com/feral-file/territory-arbiter/internal/logger"
	"github.com/feral-file/territory-arbiter/internal/messaging"
)

var errBufferFull = errors.New("ownership event buffer full, event dropped")

// Sink receives every ownership event the emitter dispatches
//
//go:generate mockgen -source=emitter.go -destination=../mocks/emitter.go -package=mocks -mock_names=Sink=MockSink,Emitter=MockEmitter
type Sink interface {
	Name() string
	Handle(ctx context.Context, event *domain.TerritoryOwnershipChanged) error
}

// Config holds the configuration for the event emitter
type Config struct {
	// DrainTimeout bounds how long buffered events are still dispatched after shutdown
	DrainTimeout time.Duration
}

// Emitter defines the interface for the event emitter
type Emitter interface {
	// Run dispatches events from the bus to the sinks until ctx is done, then drains the buffer
	Run(ctx context.Context) error
	// Close closes the sinks that hold resources
	Close()
}

type emitter struct {
	bus    Bus
	sinks  []Sink
	config Config
}

// NewEmitter creates a new event emitter
func NewEmitter(bus Bus, cfg Config, sinks ...Sink) Emitter {
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = 5 * time.Second
	}
	return &emitter{
		bus:    bus,
		sinks:  sinks,
		config: cfg,
	}
}

// Run starts the event emitter
func (e *emitter) Run(ctx context.Context) error {
	names := make([]string, 0, len(e.sinks))
	for _, s := range e.sinks {
		names = append(names, s.Name())
	}
	logger.InfoCtx(ctx, "Starting ownership event emitter", zap.Strings("sinks", names))

	for {
		select {
		case <-ctx.Done():
			e.drain()
			return ctx.Err()
		case event := <-e.bus.Events():
			e.dispatch(ctx, event)
		}
	}
}

// drain dispatches whatever is still buffered with a fresh deadline
func (e *emitter) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), e.config.DrainTimeout)
	defer cancel()

	drained := 0
	for {
		select {
		case event := <-e.bus.Events():
			e.dispatch(ctx, event)
			drained++
		default:
			if drained > 0 {
				logger.Info("Drained ownership events on shutdown", zap.Int("count", drained))
			}
			return
		}
	}
}

func (e *emitter) dispatch(ctx context.Context, event *domain.TerritoryOwnershipChanged) {
	if err := FanOut(e.sinks...)(ctx, event); err != nil {
		logger.ErrorCtx(ctx, err, zap.String("eventID", event.EventID))
	}
}

// Close closes the emitter and cleans up resources
func (e *emitter) Close() {
	for _, s := range e.sinks {
		if c, ok := s.(interface{ Close() }); ok {
			c.Close()
		}
	}
}

// FanOut returns a handler that delivers an event to every sink. All sinks are
// attempted; the joined error of the failing ones is returned.
func FanOut(sinks ...Sink) messaging.OwnershipHandler {
	return func(ctx context.Context, event *domain.TerritoryOwnershipChanged) error {
		var errs []error
		for _, s := range sinks {
			if err := s.Handle(ctx, event); err != nil {
				logger.WarnCtx(ctx, "Ownership event sink failed",
					zap.String("sink", s.Name()),
					zap.String("eventID", event.EventID),
					zap.Error(err))
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}
}
