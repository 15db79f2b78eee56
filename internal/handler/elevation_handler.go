package handler

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/solarrev/solarrev-backend/internal/models"
	"github.com/solarrev/solarrev-backend/internal/service"
	"github.com/solarrev/solarrev-backend/pkg/response"
)

// maxLocations bounds one elevation request
const maxLocations = 5000

// ElevationHandler handles HTTP requests for elevation lookups
type ElevationHandler struct {
	elevationService *service.ElevationService
	timeout          time.Duration
}

// NewElevationHandler creates a new elevation handler
func NewElevationHandler(elevationService *service.ElevationService, timeout time.Duration) *ElevationHandler {
	return &ElevationHandler{
		elevationService: elevationService,
		timeout:          timeout,
	}
}

func (h *ElevationHandler) bind(c *gin.Context) (*models.ElevationRequest, bool) {
	var req models.ElevationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request body: "+err.Error())
		return nil, false
	}
	if len(req.Locations) > maxLocations {
		response.BadRequest(c, "Too many locations")
		return nil, false
	}
	if req.BatchSize < 0 {
		response.BadRequest(c, "batch_size must not be negative")
		return nil, false
	}
	return &req, true
}

// GetElevations handles POST /api/v1/elevation
func (h *ElevationHandler) GetElevations(c *gin.Context) {
	req, ok := h.bind(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	samples, err := h.elevationService.GetElevations(ctx, models.LatLngsToCoordinates(req.Locations), req.BatchSize)
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, gin.H{"results": samples})
}

// GetAreaElevationStats handles POST /api/v1/elevation/stats
func (h *ElevationHandler) GetAreaElevationStats(c *gin.Context) {
	req, ok := h.bind(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	stats, err := h.elevationService.GetAreaElevationStats(ctx, models.LatLngsToCoordinates(req.Locations))
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, stats)
}
