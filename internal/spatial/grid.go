package spatial

import (
	"math"

	"github.com/solarrev/solarrev-backend/internal/models"
)

// Grid resolution limits
const (
	MinGridSubdivisions = 5
	MaxGridSubdivisions = 10
	MaxGridSide         = 32 // Hard cap on cells per axis when spacing is configured
)

// Subdivisions picks the number of grid cells along the longer bounding box
// side: 5 up to one hectare, 10 from one square kilometre, log-linear between
func Subdivisions(areaSqm float64) int {
	if areaSqm <= 1e4 {
		return MinGridSubdivisions
	}
	if areaSqm >= 1e6 {
		return MaxGridSubdivisions
	}
	frac := math.Log10(areaSqm/1e4) / 2
	return MinGridSubdivisions + int(math.Round(frac*float64(MaxGridSubdivisions-MinGridSubdivisions)))
}

// GridSpacing returns configured when positive, otherwise a spacing derived
// from the polygon extent and Subdivisions(areaSqm). A configured spacing is
// raised to extent/MaxGridSide so the returned value matches the lattice
// SampleGrid actually lays down.
func GridSpacing(polygon []models.Coordinate, areaSqm, configured float64) float64 {
	width, height := extent(NormalizeRing(polygon))
	side := math.Max(width, height)
	if configured > 0 {
		return math.Max(configured, side/MaxGridSide)
	}
	if side == 0 {
		return 0
	}
	return side / float64(Subdivisions(areaSqm))
}

// SampleGrid lays a regular lattice of cell centres over the polygon bounding
// box and keeps the centres inside the ring. When no centre falls inside
// (very thin polygons) the ring vertices are used instead. The output depends
// only on the input.
func SampleGrid(polygon []models.Coordinate, spacingM float64) []models.Coordinate {
	ring := NormalizeRing(polygon)
	if len(ring) == 0 {
		return nil
	}

	minLat, minLon, maxLat, maxLon := BoundingBox(ring)
	width, height := extent(ring)
	cols := gridSide(width, spacingM)
	rows := gridSide(height, spacingM)

	dLon := (maxLon - minLon) / float64(cols)
	dLat := (maxLat - minLat) / float64(rows)

	points := make([]models.Coordinate, 0, rows*cols)
	for r := 0; r < rows; r++ {
		lat := minLat + (float64(r)+0.5)*dLat
		for c := 0; c < cols; c++ {
			p := models.Coordinate{X: minLon + (float64(c)+0.5)*dLon, Y: lat}
			if PointInPolygon(p, ring) {
				points = append(points, p)
			}
		}
	}

	if len(points) == 0 {
		points = append(points, ring...)
	}
	return points
}

// extent returns bounding box width and height in meters
func extent(ring []models.Coordinate) (float64, float64) {
	if len(ring) == 0 {
		return 0, 0
	}
	minLat, minLon, maxLat, maxLon := BoundingBox(ring)
	midLat := (minLat + maxLat) / 2
	width := HaversineDistance(midLat, minLon, midLat, maxLon)
	height := HaversineDistance(minLat, minLon, maxLat, minLon)
	return width, height
}

func gridSide(extentM, spacingM float64) int {
	if spacingM <= 0 || extentM <= 0 {
		return 1
	}
	n := int(math.Ceil(extentM / spacingM))
	if n < 1 {
		n = 1
	}
	if n > MaxGridSide {
		n = MaxGridSide
	}
	return n
}
