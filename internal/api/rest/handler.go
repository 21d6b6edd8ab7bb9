package rest

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/feral-file/territory-arbiter/internal/adapter"
	"github.com/feral-file/territory-arbiter/internal/api/middleware"
	"github.com/feral-file/territory-arbiter/internal/api/shared/dto"
	apierrors "github.com/feral-file/territory-arbiter/internal/api/shared/errors"
	"github.com/feral-file/territory-arbiter/internal/arbiter"
	"github.com/feral-file/territory-arbiter/internal/domain"
	"github.com/feral-file/territory-arbiter/internal/geo"
	"github.com/feral-file/territory-arbiter/internal/store"
	"github.com/feral-file/territory-arbiter/internal/territory"
)

const (
	SERVICE_NAME           = "territory-api"
	IDEMPOTENCY_KEY_HEADER = "Idempotency-Key"
)

// Handler defines the interface for REST API handlers
type Handler interface {
	// Claim arbitrates a claim attempt of the caller
	// POST /api/v1/claims
	Claim(c *gin.Context)

	// Abandon releases an inactive territory (API key only)
	// POST /api/v1/territories/:id/abandon
	Abandon(c *gin.Context)

	// ListNearby retrieves territories around a point, nearest first
	// GET /api/v1/territories/nearby?lat=<lat>&lon=<lon>&radius=<meters>
	ListNearby(c *gin.Context)

	// GetTerritory retrieves the current document of a territory with its derived state
	// GET /api/v1/territories/:id
	GetTerritory(c *gin.Context)

	// GetHistory retrieves the ownership journal of a territory, newest first
	// GET /api/v1/territories/:id/history?limit=<limit>
	GetHistory(c *gin.Context)

	// HealthCheck returns the health status of the API
	// GET /health
	HealthCheck(c *gin.Context)
}

// Config holds the REST handler configuration
type Config struct {
	DefaultRadius float64
	MaxRadius     float64
}

// Deps holds the collaborators of the REST handler
type Deps struct {
	Arbiter arbiter.Arbiter
	Store   store.Store
	Index   geo.Index
	Machine *territory.Machine
	Clock   adapter.Clock
	// Subscribers reports connected websocket subscribers; optional
	Subscribers func() int
}

// handler implements the Handler interface
type handler struct {
	config Config
	deps   Deps
}

// NewHandler creates a new REST API handler
func NewHandler(cfg Config, deps Deps) Handler {
	return &handler{
		config: cfg,
		deps:   deps,
	}
}

func (h *handler) Claim(c *gin.Context) {
	var req dto.ClaimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "Invalid claim request", err.Error())
		return
	}
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = strings.TrimSpace(c.GetHeader(IDEMPOTENCY_KEY_HEADER))
	}

	principal := middleware.PrincipalFromContext(c)
	userID := req.UserID
	switch {
	case principal.Privileged:
		if userID == "" {
			respondBadRequest(c, "user_id is required for operator claims")
			return
		}
	case userID == "":
		userID = principal.Subject
	case userID != principal.Subject:
		respondForbidden(c, "Claims may only be made for the authenticated user")
		return
	}
	if req.Privileged && !principal.Privileged {
		respondForbidden(c, "Privileged claims require an API key")
		return
	}

	attempt := req.ToAttempt(userID, req.Privileged, h.deps.Clock.Now())
	result, err := h.deps.Arbiter.Claim(c.Request.Context(), attempt)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidReport):
			respondValidationError(c, err.Error())
		case errors.Is(err, domain.ErrIdempotencyKeyReused):
			c.JSON(http.StatusUnprocessableEntity, apierrors.NewIdempotencyReusedError(req.IdempotencyKey))
		default:
			respondInternalError(c, err, "Failed to arbitrate claim",
				zap.String("territory_id", req.TerritoryID),
				zap.String("user_id", userID),
			)
		}
		return
	}

	c.JSON(apierrors.StatusForReason(result.Reason), result)
}

func (h *handler) Abandon(c *gin.Context) {
	if !middleware.PrincipalFromContext(c).Privileged {
		respondForbidden(c, "Abandoning territories requires an API key")
		return
	}

	territoryID := c.Param("id")
	result, err := h.deps.Arbiter.Abandon(c.Request.Context(), territoryID)
	if err != nil {
		respondInternalError(c, err, "Failed to abandon territory", zap.String("territory_id", territoryID))
		return
	}

	c.JSON(apierrors.StatusForReason(result.Reason), result)
}

func (h *handler) ListNearby(c *gin.Context) {
	params, err := ParseNearbyQuery(c, h.config.DefaultRadius, h.config.MaxRadius)
	if err != nil {
		respondBadRequest(c, "Invalid query parameters", err.Error())
		return
	}

	hits := h.deps.Index.QueryNearby(*params.Lat, *params.Lon, *params.Radius)
	c.JSON(http.StatusOK, dto.NewNearbyResponse(hits, h.deps.Machine, h.deps.Clock.Now()))
}

func (h *handler) GetTerritory(c *gin.Context) {
	territoryID := c.Param("id")

	t, err := h.deps.Store.Read(c.Request.Context(), territoryID)
	if err != nil {
		if errors.Is(err, domain.ErrTerritoryNotFound) {
			respondNotFound(c, "Territory not found")
			return
		}
		respondStoreUnavailable(c, err, zap.String("territory_id", territoryID))
		return
	}

	c.JSON(http.StatusOK, dto.NewTerritoryResponse(t, h.deps.Machine, h.deps.Clock.Now()))
}

func (h *handler) GetHistory(c *gin.Context) {
	territoryID := c.Param("id")

	params, err := ParseHistoryQuery(c)
	if err != nil {
		respondBadRequest(c, "Invalid query parameters", err.Error())
		return
	}

	ctx := c.Request.Context()
	if _, err := h.deps.Store.Read(ctx, territoryID); err != nil {
		if errors.Is(err, domain.ErrTerritoryNotFound) {
			respondNotFound(c, "Territory not found")
			return
		}
		respondStoreUnavailable(c, err, zap.String("territory_id", territoryID))
		return
	}

	entries, err := h.deps.Store.ListOwnershipHistory(ctx, territoryID, params.Limit)
	if err != nil {
		respondStoreUnavailable(c, err, zap.String("territory_id", territoryID))
		return
	}
	if entries == nil {
		entries = []store.OwnershipRecord{}
	}

	c.JSON(http.StatusOK, dto.HistoryResponse{
		TerritoryID: territoryID,
		Entries:     entries,
	})
}

// HealthCheck returns the health status of the API
func (h *handler) HealthCheck(c *gin.Context) {
	resp := dto.HealthResponse{
		Status:             "ok",
		Service:            SERVICE_NAME,
		IndexedTerritories: h.deps.Index.Len(),
	}
	if h.deps.Subscribers != nil {
		resp.WebsocketSubscribers = h.deps.Subscribers()
	}
	c.JSON(http.StatusOK, resp)
}
