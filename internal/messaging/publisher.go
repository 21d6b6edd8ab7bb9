package messaging

import (
	"context"

	"github.com/feral-file/territory-arbiter/internal/domain"
)

// Publisher defines the interface for publishing ownership events to the message broker
//
//go:generate mockgen -source=publisher.go -destination=../mocks/publisher.go -package=mocks -mock_names=Publisher=MockPublisher
type Publisher interface {
	// PublishOwnershipChanged publishes a committed ownership change
	PublishOwnershipChanged(ctx context.Context, event *domain.TerritoryOwnershipChanged) error
	// Close closes the connection
	Close()
}
