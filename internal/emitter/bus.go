package emitter

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/feral-file/territory-arbiter/internal/domain"
	"github.com/feral-file/territory-arbiter/internal/logger"
)

// DEFAULT_BUFFER_SIZE is the capacity of the ownership event channel
const DEFAULT_BUFFER_SIZE = 1024

// Bus carries committed ownership events from the arbiter to the emitter
//
//go:generate mockgen -source=bus.go -destination=../mocks/bus.go -package=mocks -mock_names=Bus=MockBus
type Bus interface {
	// Emit enqueues the event without blocking. It returns false when the buffer is full and the event was dropped.
	Emit(ctx context.Context, event *domain.TerritoryOwnershipChanged) bool
	// Events returns the receive side consumed by the emitter
	Events() <-chan *domain.TerritoryOwnershipChanged
	// Dropped returns the number of events dropped because the buffer was full
	Dropped() uint64
}

type bus struct {
	ch      chan *domain.TerritoryOwnershipChanged
	dropped atomic.Uint64
}

// NewBus creates a buffered bus. A non-positive size uses DEFAULT_BUFFER_SIZE.
func NewBus(size int) Bus {
	if size <= 0 {
		size = DEFAULT_BUFFER_SIZE
	}
	return &bus{ch: make(chan *domain.TerritoryOwnershipChanged, size)}
}

func (b *bus) Emit(ctx context.Context, event *domain.TerritoryOwnershipChanged) bool {
	if event == nil {
		return false
	}

	select {
	case b.ch <- event:
		return true
	default:
		dropped := b.dropped.Add(1)
		logger.ErrorCtx(ctx, errBufferFull,
			zap.String("eventID", event.EventID),
			zap.String("territoryID", event.TerritoryID),
			zap.Int64("version", event.Version),
			zap.Uint64("dropped", dropped))
		return false
	}
}

func (b *bus) Events() <-chan *domain.TerritoryOwnershipChanged {
	return b.ch
}

func (b *bus) Dropped() uint64 {
	return b.dropped.Load()
}
