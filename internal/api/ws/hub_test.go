package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang/mock/gomock"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feral-file/territory-arbiter/internal/adapter"
	"github.com/feral-file/territory-arbiter/internal/domain"
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

	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

func newTestServer(t *testing.T, h Hub) string {
	t.Helper()
	router := gin.New()
	router.GET("/ws/ownership", h.ServeWS)
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/ownership"
}

func dial(t *testing.T, url string, h Hub, want int) *websocket.Conn {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	t.Cleanup(func() { _ = conn.Close() })

	require.Eventually(t, func() bool { return h.Clients() == want }, 2*time.Second, 10*time.Millisecond)
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) domain.TerritoryOwnershipChanged {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	messageType, payload, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, websocket.TextMessage, messageType)

	var event domain.TerritoryOwnershipChanged
	require.NoError(t, json.Unmarshal(payload, &event))
	return event
}

func ownershipEvent(id, territoryID string) *domain.TerritoryOwnershipChanged {
	return &domain.TerritoryOwnershipChanged{
		EventID:     id,
		TerritoryID: territoryID,
		NewOwner:    "alice",
		Version:     1,
		Reason:      domain.ReasonClaimed,
		OccurredAt:  time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestHub_Name(t *testing.T) {
	assert.Equal(t, "websocket", NewHub(adapter.NewJSON(), nil).Name())
}

func TestHub_BroadcastsToSubscribers(t *testing.T) {
	h := NewHub(adapter.NewJSON(), []string{"*"})
	url := newTestServer(t, h)

	first := dial(t, url, h, 1)
	second := dial(t, url, h, 2)

	require.NoError(t, h.Handle(context.Background(), ownershipEvent("evt-1", "plaza")))

	for _, conn := range []*websocket.Conn{first, second} {
		event := readEvent(t, conn)
		assert.Equal(t, "evt-1", event.EventID)
		assert.Equal(t, "plaza", event.TerritoryID)
		assert.Equal(t, "alice", event.NewOwner)
		assert.Equal(t, domain.ReasonClaimed, event.Reason)
	}
}

func TestHub_FiltersByTerritory(t *testing.T) {
	h := NewHub(adapter.NewJSON(), nil)
	url := newTestServer(t, h)

	conn := dial(t, url+"?territory_id=harbor,%20tower", h, 1)

	require.NoError(t, h.Handle(context.Background(), ownershipEvent("evt-1", "plaza")))
	require.NoError(t, h.Handle(context.Background(), ownershipEvent("evt-2", "tower")))

	// The plaza event is filtered out, so tower arrives first
	event := readEvent(t, conn)
	assert.Equal(t, "evt-2", event.EventID)
}

func TestHub_Close(t *testing.T) {
	h := NewHub(adapter.NewJSON(), nil)
	url := newTestServer(t, h)
	conn := dial(t, url, h, 1)

	h.Close()
	assert.Equal(t, 0, h.Clients())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	var closeErr *websocket.CloseError
	require.ErrorAs(t, err, &closeErr)
	assert.Equal(t, websocket.CloseNormalClosure, closeErr.Code)

	assert.ErrorIs(t, h.Handle(context.Background(), ownershipEvent("evt-1", "plaza")), errHubClosed)

	// New connections are turned away
	late, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	defer late.Close()
	require.NoError(t, late.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = late.ReadMessage()
	require.ErrorAs(t, err, &closeErr)
	assert.Equal(t, websocket.CloseGoingAway, closeErr.Code)
}

func TestHub_RejectsForeignOrigin(t *testing.T) {
	h := NewHub(adapter.NewJSON(), []string{"https://game.example.com"})
	url := newTestServer(t, h)

	header := http.Header{}
	header.Set("Origin", "https://evil.example.com")
	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, 0, h.Clients())
}

func TestHub_MarshalError(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	jsonAdapter := mocks.NewMockJSON(ctrl)
	jsonAdapter.EXPECT().Marshal(gomock.Any()).Return(nil, errors.New("marshal failed"))

	h := NewHub(jsonAdapter, nil)
	assert.EqualError(t, h.Handle(context.Background(), ownershipEvent("evt-1", "plaza")), "marshal failed")
}

func TestParseFilter(t *testing.T) {
	assert.Nil(t, parseFilter(""))
	assert.Equal(t, map[string]struct{}{"a": {}, "b": {}}, parseFilter("a, b,,"))
}
