package models

import "math"

// Coordinate is a WGS84 position. X is longitude, Y is latitude, both in degrees.
type Coordinate struct {
	X float64 `json:"x"` // Longitude
	Y float64 `json:"y"` // Latitude
}

// Lat returns the latitude in degrees
func (c Coordinate) Lat() float64 { return c.Y }

// Lon returns the longitude in degrees
func (c Coordinate) Lon() float64 { return c.X }

// Valid reports whether the coordinate lies inside the WGS84 ranges
func (c Coordinate) Valid() bool {
	if math.IsNaN(c.X) || math.IsNaN(c.Y) || math.IsInf(c.X, 0) || math.IsInf(c.Y, 0) {
		return false
	}
	return c.Y >= -90 && c.Y <= 90 && c.X >= -180 && c.X <= 180
}

// LatLng is the lat/lon ordered form accepted by the elevation endpoints
type LatLng struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Coordinate converts to the x/y form used internally
func (l LatLng) Coordinate() Coordinate {
	return Coordinate{X: l.Lon, Y: l.Lat}
}

// LatLngsToCoordinates converts a slice of LatLng values
func LatLngsToCoordinates(in []LatLng) []Coordinate {
	out := make([]Coordinate, len(in))
	for i, l := range in {
		out[i] = l.Coordinate()
	}
	return out
}
