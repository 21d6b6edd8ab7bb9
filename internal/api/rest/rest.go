package rest

import (
	"github.com/gin-gonic/gin"

	"github.com/feral-file/territory-arbiter/internal/api/middleware"
)

// SetupRoutes configures all REST API routes
func SetupRoutes(router *gin.Engine, handler Handler, authenticator *middleware.Authenticator) {
	// Health check endpoint (no auth, no version prefix)
	router.GET("/health", handler.HealthCheck)

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		// Claims (JWT for players, API key for operators)
		v1.POST("/claims", middleware.Auth(authenticator), handler.Claim)

		// Territory endpoints (public read access)
		v1.GET("/territories/nearby", handler.ListNearby)
		v1.GET("/territories/:id", handler.GetTerritory)
		v1.GET("/territories/:id/history", handler.GetHistory)

		// Operator release of inactive territories (API key only)
		v1.POST("/territories/:id/abandon", middleware.Auth(authenticator), handler.Abandon)
	}
}
