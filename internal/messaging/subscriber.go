package messaging

import (
	"context"

	"github.com/feral-file/territory-arbiter/internal/domain"
)

// OwnershipHandler is called for every ownership event received from the broker
type OwnershipHandler func(ctx context.Context, event *domain.TerritoryOwnershipChanged) error

// Subscriber defines the interface for receiving ownership events published by any process
//
//go:generate mockgen -source=subscriber.go -destination=../mocks/subscriber.go -package=mocks -mock_names=Subscriber=MockSubscriber
type Subscriber interface {
	// Subscribe delivers new events to handler until ctx is cancelled
	Subscribe(ctx context.Context, handler OwnershipHandler) error
	// Close closes the connection and cleans up resources
	Close()
}
