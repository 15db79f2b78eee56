package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config 应用配置
type Config struct {
	Port   string
	DBPath string

	Elevation ElevationConfig
	Terrain   TerrainConfig

	AnalysisTimeout time.Duration // Upper bound for one analysis request
	CORSOrigin      string
	APIRateLimit    int // Requests per client IP per window
	APIRateWindow   time.Duration

	LogLevel  string
	LogFormat string
	LogDir    string // empty logs to stdout only
}

// ElevationConfig controls the upstream elevation lookups
type ElevationConfig struct {
	APIURL            string
	Timeout           time.Duration // Per HTTP request
	BatchSize         int
	MaxConcurrency    int
	MaxRetries        int
	BackoffBase       time.Duration
	MaxBackoff        time.Duration
	RequestsPerSecond float64 // Shared token bucket refill rate
	Burst             int
	CacheEnabled      bool
	CacheTTL          time.Duration // Cached samples older than this are purged at startup
}

// TerrainConfig holds the terrain classification thresholds
type TerrainConfig struct {
	GridSpacingM      float64 // 0 derives spacing from the polygon size
	FlatMaxStdDev     float64
	ModerateMaxStdDev float64
	UsableMaxSlopeDeg float64
}

// Load 加载配置. A .env file in the working directory is read first when present;
// real environment variables take precedence over it.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Port:   getenv("PORT", ":8080"),
		DBPath: getenv("DB_PATH", "./data/elevation/cache.db"),

		Elevation: ElevationConfig{
			APIURL:            getenv("ELEVATION_API_URL", "https://api.open-elevation.com/api/v1/lookup"),
			Timeout:           getDuration("ELEVATION_TIMEOUT", 20*time.Second),
			BatchSize:         getInt("BATCH_SIZE", 100),
			MaxConcurrency:    getInt("MAX_CONCURRENCY", 4),
			MaxRetries:        getInt("MAX_RETRIES", 3),
			BackoffBase:       getMillis("BACKOFF_BASE_MS", 250*time.Millisecond),
			MaxBackoff:        getMillis("MAX_BACKOFF_MS", 4*time.Second),
			RequestsPerSecond: getFloat("UPSTREAM_RPS", 5),
			Burst:             getInt("UPSTREAM_BURST", 5),
			CacheEnabled:      getBool("ELEVATION_CACHE", true),
			CacheTTL:          getDuration("ELEVATION_CACHE_TTL", 30*24*time.Hour),
		},

		Terrain: TerrainConfig{
			GridSpacingM:      getFloat("GRID_SPACING_M", 0),
			FlatMaxStdDev:     getFloat("SLOPE_FLAT_MAX_STDDEV", 1),
			ModerateMaxStdDev: getFloat("SLOPE_MODERATE_MAX_STDDEV", 5),
			UsableMaxSlopeDeg: getFloat("USABLE_MAX_SLOPE_DEG", 10),
		},

		AnalysisTimeout: getDuration("ANALYSIS_TIMEOUT", 30*time.Second),
		CORSOrigin:      getenv("CORS_ORIGIN", "http://localhost:3000"),
		APIRateLimit:    getInt("API_RATE_LIMIT", 60),
		APIRateWindow:   getDuration("API_RATE_WINDOW", time.Minute),

		LogLevel:  getenv("LOG_LEVEL", "info"),
		LogFormat: getenv("LOG_FORMAT", "text"),
		LogDir:    os.Getenv("LOG_DIR"),
	}
}

// Validate rejects settings the services cannot run with
func (c *Config) Validate() error {
	e := c.Elevation
	switch {
	case e.BatchSize < 1:
		return fmt.Errorf("BATCH_SIZE must be positive, got %d", e.BatchSize)
	case e.MaxConcurrency < 1:
		return fmt.Errorf("MAX_CONCURRENCY must be positive, got %d", e.MaxConcurrency)
	case e.MaxRetries < 0:
		return fmt.Errorf("MAX_RETRIES must not be negative, got %d", e.MaxRetries)
	case e.RequestsPerSecond <= 0:
		return fmt.Errorf("UPSTREAM_RPS must be positive, got %v", e.RequestsPerSecond)
	case e.Burst < 1:
		return fmt.Errorf("UPSTREAM_BURST must be positive, got %d", e.Burst)
	}

	t := c.Terrain
	if t.FlatMaxStdDev < 0 || t.ModerateMaxStdDev < t.FlatMaxStdDev {
		return fmt.Errorf("slope thresholds must satisfy 0 <= flat (%v) <= moderate (%v)", t.FlatMaxStdDev, t.ModerateMaxStdDev)
	}
	if t.UsableMaxSlopeDeg <= 0 || t.UsableMaxSlopeDeg > 90 {
		return fmt.Errorf("USABLE_MAX_SLOPE_DEG must be in (0, 90], got %v", t.UsableMaxSlopeDeg)
	}
	if c.APIRateLimit < 1 {
		return fmt.Errorf("API_RATE_LIMIT must be positive, got %d", c.APIRateLimit)
	}
	if c.APIRateWindow <= 0 {
		return fmt.Errorf("API_RATE_WINDOW must be positive, got %v", c.APIRateWindow)
	}
	if c.AnalysisTimeout <= 0 {
		return fmt.Errorf("ANALYSIS_TIMEOUT must be positive, got %v", c.AnalysisTimeout)
	}
	return nil
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getInt(k string, def int) int {
	if v, err := strconv.Atoi(os.Getenv(k)); err == nil {
		return v
	}
	return def
}

func getFloat(k string, def float64) float64 {
	if v, err := strconv.ParseFloat(os.Getenv(k), 64); err == nil {
		return v
	}
	return def
}

func getBool(k string, def bool) bool {
	if v, err := strconv.ParseBool(os.Getenv(k)); err == nil {
		return v
	}
	return def
}

// getDuration accepts Go duration strings such as "30s"
func getDuration(k string, def time.Duration) time.Duration {
	if v, err := time.ParseDuration(os.Getenv(k)); err == nil {
		return v
	}
	return def
}

func getMillis(k string, def time.Duration) time.Duration {
	if v, err := strconv.Atoi(os.Getenv(k)); err == nil {
		return time.Duration(v) * time.Millisecond
	}
	return def
}
