package handler

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/solarrev/solarrev-backend/internal/elevation"
	"github.com/solarrev/solarrev-backend/internal/logging"
	"github.com/solarrev/solarrev-backend/internal/service"
	"github.com/solarrev/solarrev-backend/pkg/response"
)

// writeError maps service errors onto HTTP responses
func writeError(c *gin.Context, err error) {
	ctx := c.Request.Context()
	_ = c.Error(err)

	switch {
	case errors.Is(err, service.ErrInvalidPolygon):
		response.BadRequest(c, err.Error())
	case errors.Is(err, service.ErrInsufficientSamples):
		response.UnprocessableEntity(c, err.Error())
	case errors.Is(err, service.ErrCancelled), errors.Is(err, context.DeadlineExceeded):
		response.GatewayTimeout(c, "elevation lookup did not finish in time")
	case errors.Is(err, elevation.ErrInvalidCoordinate):
		response.BadRequest(c, err.Error())
	default:
		logging.FromContext(ctx, nil).Error(ctx, "request failed", logging.Err(err))
		response.InternalError(c, "internal error")
	}
}
