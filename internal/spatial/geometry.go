package spatial

import (
	"errors"
	"fmt"
	"math"

	"github.com/golang/geo/s2"
	"github.com/solarrev/solarrev-backend/internal/models"
)

// ErrInvalidPolygon is matched by every ring validation failure
var ErrInvalidPolygon = errors.New("invalid polygon")

// RingErrorKind classifies why a ring failed validation
type RingErrorKind string

// RingErrorKind constants
const (
	DegenerateRing   RingErrorKind = "degenerate_ring"
	SelfIntersecting RingErrorKind = "self_intersecting"
	ZeroArea         RingErrorKind = "zero_area"
	InvalidVertex    RingErrorKind = "invalid_vertex"
)

// GeometryError describes a ring validation failure.
// Index is the offending vertex or edge, -1 when not applicable.
type GeometryError struct {
	Kind   RingErrorKind
	Index  int
	Detail string
}

func (e *GeometryError) Error() string {
	if e.Index >= 0 {
		return fmt.Sprintf("%s at %d: %s", e.Kind, e.Index, e.Detail)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

// Is makes every GeometryError match ErrInvalidPolygon
func (e *GeometryError) Is(target error) bool {
	return target == ErrInvalidPolygon
}

// NormalizeRing drops an explicit closing vertex; rings are implicitly closed
func NormalizeRing(polygon []models.Coordinate) []models.Coordinate {
	n := len(polygon)
	if n > 1 && polygon[0] == polygon[n-1] {
		return polygon[:n-1]
	}
	return polygon
}

// ValidateRing checks that polygon forms a simple ring with at least three vertices
func ValidateRing(polygon []models.Coordinate) error {
	ring := NormalizeRing(polygon)
	n := len(ring)
	if n < 3 {
		return &GeometryError{Kind: DegenerateRing, Index: -1, Detail: fmt.Sprintf("need at least 3 points, got %d", n)}
	}

	for i, p := range ring {
		if !p.Valid() {
			return &GeometryError{Kind: InvalidVertex, Index: i, Detail: fmt.Sprintf("coordinate (%v, %v) out of range", p.X, p.Y)}
		}
		if p == ring[(i+1)%n] {
			return &GeometryError{Kind: DegenerateRing, Index: i, Detail: "consecutive points coincide"}
		}
	}

	// Pairwise edge test, adjacent edges share a vertex and are skipped
	for i := 0; i < n; i++ {
		a, b := ring[i], ring[(i+1)%n]
		for j := i + 2; j < n; j++ {
			if i == 0 && j == n-1 {
				continue
			}
			c, d := ring[j], ring[(j+1)%n]
			crossing := s2.CrossingSign(toS2(a.Y, a.X), toS2(b.Y, b.X), toS2(c.Y, c.X), toS2(d.Y, d.X))
			if crossing != s2.DoNotCross {
				return &GeometryError{Kind: SelfIntersecting, Index: i, Detail: fmt.Sprintf("edge %d crosses edge %d", i, j)}
			}
		}
	}

	if isCollinear(ring) {
		return &GeometryError{Kind: ZeroArea, Index: -1, Detail: "ring encloses no area"}
	}

	return nil
}

// Area calculates the area of a polygon in square meters on a spherical Earth.
// It uses the spherical excess line integral (Chamberlain & Duquette), so the
// result does not depend on winding direction.
func Area(polygon []models.Coordinate) float64 {
	ring := NormalizeRing(polygon)
	if len(ring) < 3 {
		return 0
	}
	return math.Abs(signedArea(ring))
}

func signedArea(ring []models.Coordinate) float64 {
	var total float64
	n := len(ring)
	for i := 0; i < n; i++ {
		p1, p2 := ring[i], ring[(i+1)%n]
		dLon := normalizeLonDelta(toRadians(p2.X - p1.X))
		total += dLon * (2 + math.Sin(toRadians(p1.Y)) + math.Sin(toRadians(p2.Y)))
	}
	return total * EarthRadiusMeters * EarthRadiusMeters / 2
}

// PlanarArea approximates the polygon area with the shoelace formula on an
// equirectangular projection centred on the mean latitude
func PlanarArea(polygon []models.Coordinate) float64 {
	ring := NormalizeRing(polygon)
	if len(ring) < 3 {
		return 0
	}

	sum := shoelace(ring)

	minLat, _, maxLat, _ := BoundingBox(ring)
	latRad := toRadians((minLat + maxLat) / 2)
	metersPerDegreeLon := MetersPerDegree * math.Cos(latRad)

	return math.Abs(sum) * MetersPerDegree * metersPerDegreeLon / 2.0
}

// shoelace returns twice the signed area of the ring in square degrees
func shoelace(ring []models.Coordinate) float64 {
	var sum float64
	for i := 0; i < len(ring); i++ {
		j := (i + 1) % len(ring)
		sum += ring[i].X*ring[j].Y - ring[j].X*ring[i].Y
	}
	return sum
}

func isCollinear(ring []models.Coordinate) bool {
	minLat, minLon, maxLat, maxLon := BoundingBox(ring)
	extent := (maxLat-minLat)*(maxLat-minLat) + (maxLon-minLon)*(maxLon-minLon)
	if extent == 0 {
		return true
	}
	return math.Abs(shoelace(ring)) <= 1e-12*extent
}

// Centroid calculates the vertex centroid of a ring
func Centroid(polygon []models.Coordinate) models.Coordinate {
	ring := NormalizeRing(polygon)
	if len(ring) == 0 {
		return models.Coordinate{}
	}

	var sumLat, sumLon float64
	for _, p := range ring {
		sumLat += p.Y
		sumLon += p.X
	}

	return models.Coordinate{
		X: sumLon / float64(len(ring)),
		Y: sumLat / float64(len(ring)),
	}
}

// BoundingBox calculates the bounding box of a set of points
// Returns (minLat, minLon, maxLat, maxLon)
func BoundingBox(points []models.Coordinate) (float64, float64, float64, float64) {
	if len(points) == 0 {
		return 0, 0, 0, 0
	}

	minLat, maxLat := points[0].Y, points[0].Y
	minLon, maxLon := points[0].X, points[0].X

	for _, p := range points[1:] {
		if p.Y < minLat {
			minLat = p.Y
		}
		if p.Y > maxLat {
			maxLat = p.Y
		}
		if p.X < minLon {
			minLon = p.X
		}
		if p.X > maxLon {
			maxLon = p.X
		}
	}

	return minLat, minLon, maxLat, maxLon
}

// Perimeter calculates the length of the closed ring in meters
func Perimeter(polygon []models.Coordinate) float64 {
	ring := NormalizeRing(polygon)
	if len(ring) < 2 {
		return 0
	}

	var total float64
	for i := range ring {
		p1, p2 := ring[i], ring[(i+1)%len(ring)]
		total += HaversineDistance(p1.Y, p1.X, p2.Y, p2.X)
	}
	return total
}

// PointInPolygon checks if a point is inside a polygon using ray casting
func PointInPolygon(point models.Coordinate, polygon []models.Coordinate) bool {
	if len(polygon) < 3 {
		return false
	}

	inside := false
	j := len(polygon) - 1

	for i := 0; i < len(polygon); i++ {
		if ((polygon[i].Y > point.Y) != (polygon[j].Y > point.Y)) &&
			(point.X < (polygon[j].X-polygon[i].X)*(point.Y-polygon[i].Y)/(polygon[j].Y-polygon[i].Y)+polygon[i].X) {
			inside = !inside
		}
		j = i
	}

	return inside
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}

// normalizeLonDelta wraps a longitude difference into (-pi, pi]
func normalizeLonDelta(d float64) float64 {
	for d > math.Pi {
		d -= 2 * math.Pi
	}
	for d <= -math.Pi {
		d += 2 * math.Pi
	}
	return d
}
