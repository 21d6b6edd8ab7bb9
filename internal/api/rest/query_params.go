package rest

import (
	"fmt"

	"github.com/gin-gonic/gin"
)

const (
	MAX_PAGE_SIZE        = 100
	DEFAULT_HISTORY_SIZE = 20
)

// NearbyQueryParams holds query parameters for GET /territories/nearby
type NearbyQueryParams struct {
	Lat    *float64 `form:"lat" binding:"required,gte=-90,lte=90"`
	Lon    *float64 `form:"lon" binding:"required,gte=-180,lte=180"`
	Radius *float64 `form:"radius" binding:"omitempty,gt=0"`
}

// HistoryQueryParams holds query parameters for GET /territories/:id/history
type HistoryQueryParams struct {
	Limit int `form:"limit,default=20" binding:"gte=0"`
}

// ParseNearbyQuery parses query parameters for GET /territories/nearby.
// A missing radius takes defaultRadius; a radius above maxRadius is rejected.
func ParseNearbyQuery(c *gin.Context, defaultRadius, maxRadius float64) (*NearbyQueryParams, error) {
	var params NearbyQueryParams
	if err := c.ShouldBindQuery(&params); err != nil {
		return nil, err
	}

	if params.Radius == nil {
		params.Radius = &defaultRadius
	}
	if *params.Radius > maxRadius {
		return nil, fmt.Errorf("radius must not exceed %.0f meters", maxRadius)
	}

	return &params, nil
}

// ParseHistoryQuery parses query parameters for GET /territories/:id/history
func ParseHistoryQuery(c *gin.Context) (*HistoryQueryParams, error) {
	var params HistoryQueryParams
	if err := c.ShouldBindQuery(&params); err != nil {
		return nil, err
	}

	// Cap limit
	if params.Limit == 0 {
		params.Limit = DEFAULT_HISTORY_SIZE
	}
	if params.Limit > MAX_PAGE_SIZE {
		params.Limit = MAX_PAGE_SIZE
	}

	return &params, nil
}
