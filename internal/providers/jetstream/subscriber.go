package jetstream

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"

	"github.com/feral-file/territory-arbiter/internal/adapter"
	"github.com/feral-file/territory-arbiter/internal/domain"
	"github.com/feral-file/territory-arbiter/internal/logger"
	"github.com/feral-file/territory-arbiter/internal/messaging"
)

type subscriber struct {
	cfg  Config
	nc   adapter.NatsConn
	js   adapter.JetStream
	json adapter.JSON
}

// NewSubscriber connects to NATS and returns a subscriber of ownership events
func NewSubscriber(ctx context.Context, cfg Config, natsJS adapter.NatsJetStream, jsonAdapter adapter.JSON) (messaging.Subscriber, error) {
	nc, js, err := connect(cfg, natsJS)
	if err != nil {
		return nil, err
	}

	if err := ensureStream(ctx, js, cfg); err != nil {
		nc.Close()
		return nil, err
	}

	return &subscriber{cfg: cfg, nc: nc, js: js, json: jsonAdapter}, nil
}

// Subscribe consumes new ownership events with a per-process durable consumer until ctx is done
func (s *subscriber) Subscribe(ctx context.Context, handler messaging.OwnershipHandler) error {
	consumer, err := s.js.CreateOrUpdateConsumer(ctx, s.cfg.StreamName, jetstream.ConsumerConfig{
		Durable:           s.cfg.ConsumerName,
		FilterSubject:     SUBJECT_PREFIX + ".>",
		DeliverPolicy:     jetstream.DeliverNewPolicy,
		AckPolicy:         jetstream.AckExplicitPolicy,
		AckWait:           s.cfg.AckWait,
		MaxDeliver:        s.cfg.MaxDeliver,
		InactiveThreshold: time.Hour,
	})
	if err != nil {
		return fmt.Errorf("failed to create consumer %s: %w", s.cfg.ConsumerName, err)
	}

	cc, err := consumer.Consume(func(msg adapter.Message) {
		s.handle(ctx, msg, handler)
	})
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	logger.InfoCtx(ctx, "Subscribed to ownership events",
		zap.String("stream", s.cfg.StreamName),
		zap.String("consumer", s.cfg.ConsumerName))

	select {
	case <-ctx.Done():
		cc.Stop()
		return nil
	case <-cc.Closed():
		return fmt.Errorf("ownership consumer closed")
	}
}

func (s *subscriber) handle(ctx context.Context, msg adapter.Message, handler messaging.OwnershipHandler) {
	var event domain.TerritoryOwnershipChanged
	if err := s.json.Unmarshal(msg.Data(), &event); err != nil {
		logger.ErrorCtx(ctx, fmt.Errorf("failed to unmarshal ownership event: %w", err), zap.String("subject", msg.Subject()))
		if err := msg.Term(); err != nil {
			logger.ErrorCtx(ctx, err)
		}
		return
	}

	if err := handler(ctx, &event); err != nil {
		logger.ErrorCtx(ctx, err, zap.String("eventID", event.EventID))
		if err := msg.Nak(); err != nil {
			logger.ErrorCtx(ctx, err)
		}
		return
	}

	if err := msg.Ack(); err != nil {
		logger.ErrorCtx(ctx, err, zap.String("eventID", event.EventID))
	}
}

// Close drains the NATS connection
func (s *subscriber) Close() {
	if s.nc == nil {
		return
	}

	if err := s.nc.Drain(); err != nil {
		s.nc.Close()
	}
}
