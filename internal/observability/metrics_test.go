package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/solarrev/solarrev-backend/internal/models"
)

func newTestCollector(t *testing.T) (*Collector, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	c, err := NewCollector(reg)
	if err != nil {
		t.Fatalf("NewCollector: %v", err)
	}
	return c, reg
}

func TestMiddlewareRecordsRoute(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, reg := newTestCollector(t)

	r := gin.New()
	r.Use(c.Middleware())
	r.GET("/items/:id", func(ctx *gin.Context) { ctx.Status(http.StatusTeapot) })

	for i := 0; i < 2; i++ {
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/items/7", nil))
	}
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/nope", nil))

	if got := testutil.ToFloat64(c.HTTPRequests.WithLabelValues("GET", "/items/:id", "418")); got != 2 {
		t.Fatalf("http_requests_total = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.HTTPRequests.WithLabelValues("GET", "unmatched", "404")); got != 1 {
		t.Fatalf("unmatched requests = %v, want 1", got)
	}
	n, err := testutil.GatherAndCount(reg, "http_request_duration_seconds")
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if n != 2 {
		t.Fatalf("duration series = %d, want 2", n)
	}
}

func TestRecorderMethods(t *testing.T) {
	c, _ := newTestCollector(t)

	c.ObserveBatch("ok", 10, 50*time.Millisecond)
	c.ObserveBatch("ok", 5, 20*time.Millisecond)
	c.ObserveBatch("unavailable", 10, time.Second)
	c.IncRetry("rate_limited")
	c.AddSamples(models.SampleStatusOK, 15)
	c.AddSamples(models.SampleStatusInvalid, 0)

	if got := testutil.ToFloat64(c.ElevationBatches.WithLabelValues("ok")); got != 2 {
		t.Fatalf("ok batches = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.ElevationRetries.WithLabelValues("rate_limited")); got != 1 {
		t.Fatalf("retries = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.ElevationSamples.WithLabelValues("ok")); got != 15 {
		t.Fatalf("ok samples = %v, want 15", got)
	}
	if n := testutil.CollectAndCount(c.ElevationSamples); n != 1 {
		t.Fatalf("sample series = %d, want 1", n)
	}
}

func TestNilCollectorIsSafe(t *testing.T) {
	var c *Collector
	c.ObserveBatch("ok", 1, time.Millisecond)
	c.IncRetry("network")
	c.AddSamples(models.SampleStatusOK, 1)
}

func TestRegisterTwiceReusesCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewCollector(reg)
	if err != nil {
		t.Fatalf("first NewCollector: %v", err)
	}
	second, err := NewCollector(reg)
	if err != nil {
		t.Fatalf("second NewCollector: %v", err)
	}

	first.IncRetry("network")
	if got := testutil.ToFloat64(second.ElevationRetries.WithLabelValues("network")); got != 1 {
		t.Fatalf("shared retries = %v, want 1", got)
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	c, _ := newTestCollector(t)
	c.ObserveBatch("ok", 3, time.Millisecond)
	c.HTTPRequests.WithLabelValues("POST", "/api/v1/area/analyse", "200").Inc()

	rr := httptest.NewRecorder()
	c.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("/metrics status = %d, want 200", rr.Code)
	}
	body := rr.Body.String()
	for _, metric := range []string{"elevation_batches_total", "elevation_batch_duration_seconds", "http_requests_total"} {
		if !strings.Contains(body, metric) {
			t.Fatalf("expected %q in /metrics output", metric)
		}
	}
}
