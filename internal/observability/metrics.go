package observability

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/solarrev/solarrev-backend/internal/models"
)

// Collector bundles Prometheus metrics for the HTTP surface and the
// elevation fetcher. It satisfies elevation.Recorder.
type Collector struct {
	gatherer prometheus.Gatherer

	HTTPRequests  *prometheus.CounterVec
	HTTPDurations *prometheus.HistogramVec

	ElevationBatches       *prometheus.CounterVec
	ElevationBatchDuration *prometheus.HistogramVec
	ElevationRetries       *prometheus.CounterVec
	ElevationSamples       *prometheus.CounterVec
}

// NewCollector registers metrics against reg, defaulting to the global
// Prometheus registry when nil.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	requests, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of handled HTTP requests, labeled by method, route and status code.",
	}, []string{"method", "route", "code"}), "http_requests_total")
	if err != nil {
		return nil, err
	}

	durations, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency in seconds.",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	}, []string{"method", "route"}), "http_request_duration_seconds")
	if err != nil {
		return nil, err
	}

	batches, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "elevation_batches_total",
		Help: "Elevation batches dispatched upstream, labeled by outcome.",
	}, []string{"outcome"}), "elevation_batches_total")
	if err != nil {
		return nil, err
	}

	batchDuration, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "elevation_batch_duration_seconds",
		Help:    "Wall time per elevation batch including retries.",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 40},
	}, []string{"outcome"}), "elevation_batch_duration_seconds")
	if err != nil {
		return nil, err
	}

	retries, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "elevation_retries_total",
		Help: "Elevation batch retries, labeled by reason.",
	}, []string{"reason"}), "elevation_retries_total")
	if err != nil {
		return nil, err
	}

	samples, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "elevation_samples_total",
		Help: "Elevation samples produced, labeled by status.",
	}, []string{"status"}), "elevation_samples_total")
	if err != nil {
		return nil, err
	}

	return &Collector{
		gatherer:               gatherer,
		HTTPRequests:           requests,
		HTTPDurations:          durations,
		ElevationBatches:       batches,
		ElevationBatchDuration: batchDuration,
		ElevationRetries:       retries,
		ElevationSamples:       samples,
	}, nil
}

// Middleware records request counts and durations per matched route.
func (c *Collector) Middleware() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		start := time.Now()
		ctx.Next()

		if c == nil {
			return
		}
		route := ctx.FullPath()
		if route == "" {
			route = "unmatched"
		}
		method := ctx.Request.Method
		c.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(ctx.Writer.Status())).Inc()
		c.HTTPDurations.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
	}
}

// Handler exposes a ready-to-use /metrics handler.
func (c *Collector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func (c *Collector) ObserveBatch(outcome string, size int, d time.Duration) {
	if c == nil {
		return
	}
	c.ElevationBatches.WithLabelValues(outcome).Inc()
	c.ElevationBatchDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

func (c *Collector) IncRetry(reason string) {
	if c == nil {
		return
	}
	c.ElevationRetries.WithLabelValues(reason).Inc()
}

func (c *Collector) AddSamples(status models.SampleStatus, n int) {
	if c == nil || n <= 0 {
		return
	}
	c.ElevationSamples.WithLabelValues(string(status)).Add(float64(n))
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}
