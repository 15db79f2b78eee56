package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/solarrev/solarrev-backend/internal/elevation"
	"github.com/solarrev/solarrev-backend/internal/logging"
	"github.com/solarrev/solarrev-backend/internal/models"
	"github.com/solarrev/solarrev-backend/internal/spatial"
	"github.com/solarrev/solarrev-backend/internal/terrain"
)

// Errors surfaced by AnalyseArea; match with errors.Is
var (
	ErrInvalidPolygon      = spatial.ErrInvalidPolygon
	ErrInsufficientSamples = terrain.ErrInsufficientSamples
	ErrCancelled           = elevation.ErrCancelled
)

// AreaService computes ground area and terrain suitability for polygons
type AreaService struct {
	source       *elevation.Source
	analyzer     *terrain.Analyzer
	gridSpacingM float64 // 0 derives spacing per polygon
	log          logging.Logger
}

// NewAreaService creates a new area service
func NewAreaService(source *elevation.Source, analyzer *terrain.Analyzer, gridSpacingM float64, log logging.Logger) *AreaService {
	if log == nil {
		log = logging.Noop()
	}
	return &AreaService{
		source:       source,
		analyzer:     analyzer,
		gridSpacingM: gridSpacingM,
		log:          log,
	}
}

// CalculateArea validates polygon and returns its ground area in square meters
func (s *AreaService) CalculateArea(polygon []models.Coordinate) (float64, error) {
	if err := spatial.ValidateRing(polygon); err != nil {
		return 0, fmt.Errorf("calculate area: %w", err)
	}
	return spatial.Area(polygon), nil
}

// AnalyseArea validates polygon, samples its elevation on a grid and
// combines area and terrain into one result. Nothing partial is returned
// on error.
func (s *AreaService) AnalyseArea(ctx context.Context, polygon []models.Coordinate) (*models.AreaAnalysisResult, error) {
	start := time.Now()
	log := logging.FromContext(ctx, s.log)

	if err := spatial.ValidateRing(polygon); err != nil {
		return nil, fmt.Errorf("analyse area: %w", err)
	}

	total := spatial.Area(polygon)
	spacing := spatial.GridSpacing(polygon, total, s.gridSpacingM)
	points := spatial.SampleGrid(polygon, spacing)

	var samples []models.ElevationSample
	err := s.source.WithClient(ctx, func(c *elevation.Client) error {
		var err error
		samples, err = c.GetElevations(ctx, points)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("analyse area: %w", err)
	}

	summary, err := s.analyzer.Analyze(samples, spacing)
	if err != nil {
		log.Warn(ctx, "terrain analysis failed",
			logging.Int("sample_points", len(points)),
			logging.Int("received", len(elevation.OKValues(samples))),
			logging.Err(err))
		return nil, fmt.Errorf("analyse area: %w", err)
	}

	result := &models.AreaAnalysisResult{
		ID:              uuid.NewString(),
		TotalAreaSqm:    total,
		UsableAreaSqm:   math.Min(total, total*summary.UsableFraction),
		PerimeterM:      spatial.Perimeter(polygon),
		Centroid:        spatial.Centroid(polygon),
		SamplePoints:    len(points),
		TerrainAnalysis: summary,
	}

	log.Info(ctx, "area analysed",
		logging.String("analysis_id", result.ID),
		logging.Int("vertices", len(spatial.NormalizeRing(polygon))),
		logging.Float("total_area_sqm", result.TotalAreaSqm),
		logging.Float("usable_area_sqm", result.UsableAreaSqm),
		logging.Int("sample_points", result.SamplePoints),
		logging.String("slope", string(summary.SlopeClassification)),
		logging.Duration("duration", time.Since(start)))

	return result, nil
}
