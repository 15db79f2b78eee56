package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/solarrev/solarrev-backend/internal/logging"
)

// RequestIDHeader carries the request id in and out
const RequestIDHeader = "X-Request-ID"

// Logger middleware logs HTTP requests. It tags each request with an id
// (taken from X-Request-ID when the client sends one) and stores a logger
// carrying that id on the request context.
func Logger(base logging.Logger) gin.HandlerFunc {
	if base == nil {
		base = logging.Noop()
	}
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = logging.NewRequestID()
		}
		c.Header(RequestIDHeader, id)

		log := base.With(logging.String("request_id", id))
		ctx := logging.ContextWithRequestID(c.Request.Context(), id)
		ctx = logging.ContextWithLogger(ctx, log)
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		if raw != "" {
			path = path + "?" + raw
		}

		fields := []logging.Field{
			logging.String("method", c.Request.Method),
			logging.String("path", path),
			logging.String("client_ip", c.ClientIP()),
			logging.Int("status", c.Writer.Status()),
			logging.Duration("latency", time.Since(start)),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, logging.String("errors", c.Errors.String()))
		}

		switch status := c.Writer.Status(); {
		case status >= 500:
			log.Error(ctx, "request", fields...)
		case status >= 400:
			log.Warn(ctx, "request", fields...)
		default:
			log.Info(ctx, "request", fields...)
		}
	}
}
