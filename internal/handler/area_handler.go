package handler

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/solarrev/solarrev-backend/internal/models"
	"github.com/solarrev/solarrev-backend/internal/service"
	"github.com/solarrev/solarrev-backend/pkg/response"
)

// AreaHandler handles HTTP requests for area analysis
type AreaHandler struct {
	areaService *service.AreaService
	timeout     time.Duration
}

// NewAreaHandler creates a new area handler. timeout bounds one analysis.
func NewAreaHandler(areaService *service.AreaService, timeout time.Duration) *AreaHandler {
	return &AreaHandler{
		areaService: areaService,
		timeout:     timeout,
	}
}

// AnalyseArea handles POST /api/v1/area/analyse
func (h *AreaHandler) AnalyseArea(c *gin.Context) {
	var req models.AreaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	result, err := h.areaService.AnalyseArea(ctx, req.Coordinates)
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, result)
}

// CalculateArea handles POST /api/v1/area/size
func (h *AreaHandler) CalculateArea(c *gin.Context) {
	var req models.AreaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	area, err := h.areaService.CalculateArea(req.Coordinates)
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, gin.H{"total_area_sqm": area})
}
