package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/solarrev/solarrev-backend/internal/config"
	"github.com/solarrev/solarrev-backend/internal/handler"
	"github.com/solarrev/solarrev-backend/internal/logging"
	"github.com/solarrev/solarrev-backend/internal/middleware"
	"github.com/solarrev/solarrev-backend/internal/observability"
	"github.com/solarrev/solarrev-backend/internal/service"
)

// Deps are the collaborators the router wires into handlers
type Deps struct {
	Config           *config.Config
	Logger           logging.Logger
	Metrics          *observability.Collector // nil disables /metrics
	RateLimiter      *middleware.RateLimiter  // nil disables inbound limiting
	AreaService      *service.AreaService
	ElevationService *service.ElevationService
	Cache            CacheCounter // nil when the elevation cache is disabled
}

// CacheCounter reports how many elevations are cached
type CacheCounter interface {
	Count(ctx context.Context) (int64, error)
}

// SetupRouter 设置路由
func SetupRouter(d Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.Logger(d.Logger))
	if d.Metrics != nil {
		r.Use(d.Metrics.Middleware())
	}
	r.Use(middleware.CORS(strings.Split(d.Config.CORSOrigin, ",")...))

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		body := gin.H{
			"status":  "ok",
			"message": "Solar area analysis API is running",
		}
		if d.RateLimiter != nil {
			body["tracked_clients"] = d.RateLimiter.Size()
		}
		if d.Cache != nil {
			if n, err := d.Cache.Count(c.Request.Context()); err == nil {
				body["cached_elevations"] = n
			}
		}
		c.JSON(http.StatusOK, body)
	})
	if d.Metrics != nil {
		r.GET("/metrics", gin.WrapH(d.Metrics.Handler()))
	}

	areaHandler := handler.NewAreaHandler(d.AreaService, d.Config.AnalysisTimeout)
	elevationHandler := handler.NewElevationHandler(d.ElevationService, d.Config.AnalysisTimeout)

	// API 路由组
	api := r.Group("/api/v1")
	if d.RateLimiter != nil {
		api.Use(middleware.RateLimit(d.RateLimiter))
	}
	{
		// 面积分析
		area := api.Group("/area")
		{
			area.POST("/analyse", areaHandler.AnalyseArea)
			area.POST("/size", areaHandler.CalculateArea)
		}

		// 高程查询
		elevation := api.Group("/elevation")
		{
			elevation.POST("", elevationHandler.GetElevations)
			elevation.POST("/stats", elevationHandler.GetAreaElevationStats)
		}
	}

	return r
}
