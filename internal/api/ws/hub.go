package ws

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/feral-file/territory-arbiter/internal/adapter"
	"github.com/feral-file/territory-arbiter/internal/domain"
	"github.com/feral-file/territory-arbiter/internal/emitter"
	"github.com/feral-file/territory-arbiter/internal/logger"
)

const (
	WRITE_WAIT         = 5 * time.Second
	PONG_WAIT          = 60 * time.Second
	PING_PERIOD        = PONG_WAIT * 9 / 10
	CLIENT_BUFFER_SIZE = 64
)

var errHubClosed = errors.New("ownership hub closed")

// Hub streams ownership events to websocket subscribers. It is an emitter sink.
type Hub interface {
	emitter.Sink
	// ServeWS upgrades the request and registers the connection.
	// The optional territory_id query parameter (comma separated) filters the stream.
	ServeWS(c *gin.Context)
	// Clients returns the number of connected subscribers
	Clients() int
	// Close disconnects every subscriber
	Close()
}

type client struct {
	id      uint64
	conn    *websocket.Conn
	send    chan []byte
	filter  map[string]struct{}
	closing sync.Once
}

func (c *client) wants(territoryID string) bool {
	if len(c.filter) == 0 {
		return true
	}
	_, ok := c.filter[territoryID]
	return ok
}

func (c *client) close() {
	c.closing.Do(func() {
		close(c.send)
	})
}

type hub struct {
	json     adapter.JSON
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[uint64]*client
	closed  bool
	nextID  atomic.Uint64
}

// NewHub creates a websocket hub. allowOrigins follows the CORS setting, "*" or empty allows all.
func NewHub(jsonAdapter adapter.JSON, allowOrigins []string) Hub {
	h := &hub{
		json:    jsonAdapter,
		clients: make(map[uint64]*client),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 16 * 1024,
		CheckOrigin:     originChecker(allowOrigins),
	}
	return h
}

func originChecker(allowOrigins []string) func(r *http.Request) bool {
	allowed := make(map[string]struct{}, len(allowOrigins))
	for _, origin := range allowOrigins {
		if origin == "*" {
			return func(*http.Request) bool { return true }
		}
		allowed[origin] = struct{}{}
	}
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := allowed[origin]
		return ok
	}
}

func (h *hub) Name() string {
	return "websocket"
}

// Handle broadcasts the event. Subscribers that cannot keep up are disconnected.
func (h *hub) Handle(ctx context.Context, event *domain.TerritoryOwnershipChanged) error {
	payload, err := h.json.Marshal(event)
	if err != nil {
		return err
	}

	var slow []*client
	h.mu.RLock()
	if h.closed {
		h.mu.RUnlock()
		return errHubClosed
	}
	for _, c := range h.clients {
		if !c.wants(event.TerritoryID) {
			continue
		}
		select {
		case c.send <- payload:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		logger.WarnCtx(ctx, "Dropping slow websocket subscriber",
			zap.Uint64("client_id", c.id),
			zap.String("event_id", event.EventID),
		)
		h.unregister(c)
	}
	return nil
}

func (h *hub) ServeWS(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already replied with an HTTP error
		logger.WarnCtx(c.Request.Context(), "Websocket upgrade failed", zap.Error(err))
		return
	}

	cl := &client{
		id:     h.nextID.Add(1),
		conn:   conn,
		send:   make(chan []byte, CLIENT_BUFFER_SIZE),
		filter: parseFilter(c.Query("territory_id")),
	}
	if !h.register(cl) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(WRITE_WAIT))
		_ = conn.Close()
		return
	}

	logger.Debug("Websocket subscriber connected",
		zap.Uint64("client_id", cl.id),
		zap.Int("territories", len(cl.filter)),
	)

	go h.writePump(cl)
	h.readPump(cl)
}

func (h *hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *hub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := h.clients
	h.clients = make(map[uint64]*client)
	h.mu.Unlock()

	for _, c := range clients {
		c.close()
	}
}

func (h *hub) register(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c.id] = c
	return true
}

func (h *hub) unregister(c *client) {
	h.mu.Lock()
	delete(h.clients, c.id)
	h.mu.Unlock()
	c.close()
}

// readPump consumes control frames until the peer goes away. Subscribers never send data.
func (h *hub) readPump(c *client) {
	defer h.unregister(c)

	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(PONG_WAIT))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(PONG_WAIT))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *hub) writePump(c *client) {
	ticker := time.NewTicker(PING_PERIOD)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(WRITE_WAIT))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(WRITE_WAIT))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func parseFilter(raw string) map[string]struct{} {
	if raw == "" {
		return nil
	}
	filter := make(map[string]struct{})
	for _, id := range strings.Split(raw, ",") {
		if id = strings.TrimSpace(id); id != "" {
			filter[id] = struct{}{}
		}
	}
	return filter
}
