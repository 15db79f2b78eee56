package terrain

import (
	"errors"
	"math"
	"sort"

	"github.com/solarrev/solarrev-backend/internal/models"
	"github.com/solarrev/solarrev-backend/internal/spatial"
	"github.com/solarrev/solarrev-backend/internal/stats"
)

// ErrInsufficientSamples is returned when fewer than two samples carry an elevation
var ErrInsufficientSamples = errors.New("insufficient elevation samples")

// neighbourFactor scales the grid spacing into the neighbour search radius,
// wide enough to include diagonal cells (√2 ≈ 1.414)
const neighbourFactor = 1.5

// Thresholds classify terrain roughness and usability
type Thresholds struct {
	FlatMaxStdDev     float64 // stddev below this is flat, meters
	ModerateMaxStdDev float64 // stddev up to this is moderate, above is steep
	UsableMaxSlopeDeg float64 // points steeper than this are unusable
}

// DefaultThresholds returns the stock classification buckets
func DefaultThresholds() Thresholds {
	return Thresholds{
		FlatMaxStdDev:     1,
		ModerateMaxStdDev: 5,
		UsableMaxSlopeDeg: 10,
	}
}

// Analyzer derives terrain summaries from elevation samples
type Analyzer struct {
	thresholds Thresholds
}

// NewAnalyzer creates an analyzer with the given thresholds
func NewAnalyzer(t Thresholds) *Analyzer {
	return &Analyzer{thresholds: t}
}

// Classify buckets an elevation standard deviation
func (a *Analyzer) Classify(stddev float64) models.SlopeClass {
	switch {
	case stddev < a.thresholds.FlatMaxStdDev:
		return models.SlopeFlat
	case stddev <= a.thresholds.ModerateMaxStdDev:
		return models.SlopeModerate
	default:
		return models.SlopeSteep
	}
}

// Analyze summarises samples taken on a grid with the given spacing.
// Only ok samples enter the statistics; the others are counted.
// A spacing of zero or less is estimated from the samples themselves.
func (a *Analyzer) Analyze(samples []models.ElevationSample, spacingM float64) (*models.TerrainSummary, error) {
	summary := &models.TerrainSummary{}

	valid := make([]models.ElevationSample, 0, len(samples))
	values := make([]float64, 0, len(samples))
	for _, s := range samples {
		switch {
		case s.OK():
			valid = append(valid, s)
			values = append(values, *s.Elevation)
		case s.Status == models.SampleStatusInvalid:
			summary.InvalidSamples++
		default:
			summary.UnavailableSamples++
		}
	}
	summary.ValidSamples = len(valid)

	if len(valid) < 2 {
		return nil, ErrInsufficientSamples
	}

	d := stats.Describe(values)
	summary.MinElevation = d.Min
	summary.MaxElevation = d.Max
	summary.MeanElevation = d.Mean
	summary.StdDevElevation = d.StdDev
	summary.SlopeClassification = a.Classify(d.StdDev)

	if spacingM <= 0 {
		spacingM = medianNearestDistance(valid)
	}
	summary.GridSpacingM = spacingM

	slopes := pointSlopes(valid, spacingM, d.StdDev)

	usable := 0
	for _, s := range slopes {
		if s < a.thresholds.UsableMaxSlopeDeg {
			usable++
		}
	}
	summary.MeanSlopeDegrees = stats.Mean(slopes)
	summary.MaxSlopeDegrees = stats.Max(slopes)
	summary.UsableFraction = clamp01(float64(usable) / float64(len(slopes)))

	return summary, nil
}

// pointSlopes returns, per sample, the steepest rise in degrees to any
// neighbour within neighbourFactor*spacing. Samples without a neighbour get
// atan(stddev/spacing).
func pointSlopes(valid []models.ElevationSample, spacingM, stddev float64) []float64 {
	radius := neighbourFactor * spacingM
	fallback := 0.0
	if spacingM > 0 {
		fallback = degrees(math.Atan(stddev / spacingM))
	}

	slopes := make([]float64, len(valid))
	for i, p := range valid {
		steepest := -1.0
		for j, q := range valid {
			if i == j || !near(p.Coordinate, q.Coordinate, radius) {
				continue
			}
			dist := spatial.HaversineDistance(p.Coordinate.Lat(), p.Coordinate.Lon(), q.Coordinate.Lat(), q.Coordinate.Lon())
			if dist <= 0 || dist > radius {
				continue
			}
			slope := degrees(math.Atan(math.Abs(*q.Elevation-*p.Elevation) / dist))
			if slope > steepest {
				steepest = slope
			}
		}
		if steepest < 0 {
			steepest = fallback
		}
		slopes[i] = steepest
	}
	return slopes
}

// near is a cheap latitude prefilter before the exact distance
func near(a, b models.Coordinate, radius float64) bool {
	return math.Abs(a.Lat()-b.Lat())*spatial.MetersPerDegree <= radius*1.01
}

func medianNearestDistance(valid []models.ElevationSample) float64 {
	nearest := make([]float64, 0, len(valid))
	for i, p := range valid {
		best := math.Inf(1)
		for j, q := range valid {
			if i == j {
				continue
			}
			d := spatial.HaversineDistance(p.Coordinate.Lat(), p.Coordinate.Lon(), q.Coordinate.Lat(), q.Coordinate.Lon())
			if d > 0 && d < best {
				best = d
			}
		}
		if !math.IsInf(best, 1) {
			nearest = append(nearest, best)
		}
	}
	if len(nearest) == 0 {
		return 0
	}
	sort.Float64s(nearest)
	return nearest[len(nearest)/2]
}

func degrees(rad float64) float64 {
	return rad * 180 / math.Pi
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
