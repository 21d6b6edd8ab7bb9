package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/feral-file/territory-arbiter/internal/api/middleware"
	"github.com/feral-file/territory-arbiter/internal/api/shared/errors"
	"github.com/feral-file/territory-arbiter/internal/logger"
)

// respondBadRequest responds with a bad request error
func respondBadRequest(c *gin.Context, message string, details ...string) {
	c.JSON(http.StatusBadRequest, errors.NewBadRequestError(message, details...))
}

// respondNotFound responds with a not found error
func respondNotFound(c *gin.Context, message string, details ...string) {
	c.JSON(http.StatusNotFound, errors.NewNotFoundError(message, details...))
}

// respondForbidden responds with a forbidden error
func respondForbidden(c *gin.Context, message string, details ...string) {
	c.JSON(http.StatusForbidden, errors.NewForbiddenError(message, details...))
}

// respondValidationError responds with a validation error
func respondValidationError(c *gin.Context, message string) {
	c.JSON(http.StatusUnprocessableEntity, errors.NewValidationError(message))
}

// respondStoreUnavailable logs err and responds with a service unavailable error
func respondStoreUnavailable(c *gin.Context, err error, fields ...zap.Field) {
	logger.ErrorCtx(c.Request.Context(), err, append(fields, zap.String("request_id", c.GetString(middleware.REQUEST_ID_KEY)))...)
	c.JSON(http.StatusServiceUnavailable, errors.NewStoreUnavailableError())
}

// respondInternalError logs err and responds with an internal server error
func respondInternalError(c *gin.Context, err error, message string, fields ...zap.Field) {
	logger.ErrorCtx(c.Request.Context(), err, append(fields, zap.String("request_id", c.GetString(middleware.REQUEST_ID_KEY)))...)
	c.JSON(http.StatusInternalServerError, errors.NewInternalError(message))
}
