package emitter_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feral-file/territory-arbiter/internal/domain"
	"github.com/feral-file/territory-arbiter/internal/emitter"
	"github.com/feral-file/territory-arbiter/internal/geo"
	"github.com/feral-file/territory-arbiter/internal/logger"
	"github.com/feral-file/territory-arbiter/internal/mocks"
)

func TestMain(m *testing.M) {
	// Initialize logger for tests
	err := logger.Initialize(logger.Config{
		Debug: false,
	})
	if err != nil {
		panic(err)
	}

	code := m.Run()
	os.Exit(code)
}

func ownershipEvent(id string, version int64) *domain.TerritoryOwnershipChanged {
	return &domain.TerritoryOwnershipChanged{
		EventID:     fmt.Sprintf("evt-%s-%d", id, version),
		TerritoryID: id,
		NewOwner:    "alice",
		Version:     version,
		Reason:      domain.ReasonClaimed,
		OccurredAt:  time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC),
	}
}

// recordingSink collects events in arrival order
type recordingSink struct {
	mu     sync.Mutex
	events []*domain.TerritoryOwnershipChanged
	closed bool
}

func (s *recordingSink) Name() string { return "recording" }

func (s *recordingSink) Handle(_ context.Context, event *domain.TerritoryOwnershipChanged) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *recordingSink) Close() { s.closed = true }

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func TestBus_EmitNeverBlocks(t *testing.T) {
	bus := emitter.NewBus(2)
	ctx := context.Background()

	assert.True(t, bus.Emit(ctx, ownershipEvent("t-1", 1)))
	assert.True(t, bus.Emit(ctx, ownershipEvent("t-1", 2)))
	assert.False(t, bus.Emit(ctx, ownershipEvent("t-1", 3)))
	assert.False(t, bus.Emit(ctx, nil))
	assert.Equal(t, uint64(1), bus.Dropped())

	first := <-bus.Events()
	assert.Equal(t, int64(1), first.Version)
	assert.True(t, bus.Emit(ctx, ownershipEvent("t-1", 4)))
}

func TestEmitter_RunDispatchesAndDrains(t *testing.T) {
	bus := emitter.NewBus(16)
	sink := &recordingSink{}
	em := emitter.NewEmitter(bus, emitter.Config{DrainTimeout: time.Second}, sink)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- em.Run(ctx)
	}()

	for v := int64(1); v <= 3; v++ {
		require.True(t, bus.Emit(ctx, ownershipEvent("t-1", v)))
	}
	require.Eventually(t, func() bool { return sink.count() == 3 }, time.Second, 5*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	// Buffered events left after shutdown are still delivered by the drain
	for v := int64(4); v <= 5; v++ {
		require.True(t, bus.Emit(context.Background(), ownershipEvent("t-1", v)))
	}
	stopped, stop := context.WithCancel(context.Background())
	stop()
	assert.ErrorIs(t, em.Run(stopped), context.Canceled)
	assert.Equal(t, 5, sink.count())

	em.Close()
	assert.True(t, sink.closed)
}

func TestFanOut_AllSinksAttempted(t *testing.T) {
	ctrl := gomock.NewController(t)
	failing := mocks.NewMockSink(ctrl)
	healthy := mocks.NewMockSink(ctrl)
	event := ownershipEvent("t-1", 1)

	failing.EXPECT().Handle(gomock.Any(), event).Return(errors.New("broker down"))
	failing.EXPECT().Name().Return("failing").AnyTimes()
	healthy.EXPECT().Handle(gomock.Any(), event).Return(nil)

	err := emitter.FanOut(failing, healthy)(context.Background(), event)
	assert.EqualError(t, err, "broker down")
}

func TestPublisherSink(t *testing.T) {
	ctrl := gomock.NewController(t)
	publisher := mocks.NewMockPublisher(ctrl)
	sink := emitter.NewPublisherSink(publisher)
	event := ownershipEvent("t-1", 1)

	publisher.EXPECT().PublishOwnershipChanged(gomock.Any(), event).Return(nil)
	assert.NoError(t, sink.Handle(context.Background(), event))
	assert.Equal(t, "publisher", sink.Name())

	publisher.EXPECT().Close()
	em := emitter.NewEmitter(emitter.NewBus(1), emitter.Config{}, sink)
	em.Close()
}

func TestIndexSink(t *testing.T) {
	ctrl := gomock.NewController(t)
	st := mocks.NewMockStore(ctrl)
	index := geo.NewIndex(geo.NewGrid(6, 0))
	sink := emitter.NewIndexSink(st, index)
	ctx := context.Background()

	owner := "bob"
	committed := &domain.Territory{ID: "t-1", Center: domain.Location{Lat: 1, Lon: 1}, OwnerID: &owner, Version: 2}

	t.Run("newer event refreshes from the store", func(t *testing.T) {
		st.EXPECT().Read(gomock.Any(), "t-1").Return(committed, nil)
		require.NoError(t, sink.Handle(ctx, ownershipEvent("t-1", 2)))

		got, ok := index.Get("t-1")
		require.True(t, ok)
		assert.Equal(t, "bob", got.Owner())
	})

	t.Run("already indexed version is skipped", func(t *testing.T) {
		require.NoError(t, sink.Handle(ctx, ownershipEvent("t-1", 2)))
	})

	t.Run("unknown territory is ignored", func(t *testing.T) {
		st.EXPECT().Read(gomock.Any(), "gone").Return(nil, domain.ErrTerritoryNotFound)
		assert.NoError(t, sink.Handle(ctx, ownershipEvent("gone", 1)))
	})

	t.Run("store failure is returned", func(t *testing.T) {
		st.EXPECT().Read(gomock.Any(), "t-1").Return(nil, errors.New("timeout"))
		assert.Error(t, sink.Handle(ctx, ownershipEvent("t-1", 3)))
	})
}
