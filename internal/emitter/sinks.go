package emitter

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/feral-file/territory-arbiter/internal/domain"
	"github.com/feral-file/territory-arbiter/internal/geo"
	"github.com/feral-file/territory-arbiter/internal/logger"
	"github.com/feral-file/territory-arbiter/internal/messaging"
)

type publisherSink struct {
	publisher messaging.Publisher
}

// NewPublisherSink forwards events to a message broker publisher
func NewPublisherSink(publisher messaging.Publisher) Sink {
	return &publisherSink{publisher: publisher}
}

func (s *publisherSink) Name() string { return "publisher" }

func (s *publisherSink) Handle(ctx context.Context, event *domain.TerritoryOwnershipChanged) error {
	return s.publisher.PublishOwnershipChanged(ctx, event)
}

func (s *publisherSink) Close() {
	s.publisher.Close()
}

// TerritoryReader reads the committed territory document
type TerritoryReader interface {
	Read(ctx context.Context, id string) (*domain.Territory, error)
}

type indexSink struct {
	reader TerritoryReader
	index  geo.Index
}

// NewIndexSink refreshes the geo index entry of every changed territory from the store.
// It keeps the index of one process current with writes committed by other processes.
func NewIndexSink(reader TerritoryReader, index geo.Index) Sink {
	return &indexSink{reader: reader, index: index}
}

func (s *indexSink) Name() string { return "geo_index" }

func (s *indexSink) Handle(ctx context.Context, event *domain.TerritoryOwnershipChanged) error {
	if current, ok := s.index.Get(event.TerritoryID); ok && current.Version >= event.Version {
		return nil
	}

	t, err := s.reader.Read(ctx, event.TerritoryID)
	if err != nil {
		if errors.Is(err, domain.ErrTerritoryNotFound) {
			logger.WarnCtx(ctx, "Ownership event for unknown territory", zap.String("territoryID", event.TerritoryID))
			return nil
		}
		return fmt.Errorf("failed to read territory %s: %w", event.TerritoryID, err)
	}

	s.index.Upsert(t)
	return nil
}
