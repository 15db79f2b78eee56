package models

import "encoding/json"

// SampleStatus describes the outcome of an elevation lookup for one coordinate
type SampleStatus string

// SampleStatus constants
const (
	SampleStatusOK          SampleStatus = "ok"
	SampleStatusInvalid     SampleStatus = "invalid"     // Out-of-range coordinate, never sent upstream
	SampleStatusUnavailable SampleStatus = "unavailable" // Upstream gave no value or retries were exhausted
)

// ElevationSample is the elevation for one requested coordinate.
// Elevation is nil unless Status is SampleStatusOK.
type ElevationSample struct {
	Coordinate Coordinate   `json:"coordinate"`
	Elevation  *float64     `json:"elevation"` // Meters above sea level
	Status     SampleStatus `json:"status"`
}

// OK reports whether the sample carries an elevation
func (s ElevationSample) OK() bool {
	return s.Status == SampleStatusOK && s.Elevation != nil
}

// ElevationSummary holds aggregate elevation values for a set of samples
type ElevationSummary struct {
	MinElevation  float64 `json:"min_elevation"`
	MaxElevation  float64 `json:"max_elevation"`
	MeanElevation float64 `json:"mean_elevation"`
}

// ElevationStats is the outcome of an area elevation query.
// Exactly one of Summary and Reason is set.
type ElevationStats struct {
	PointsRequested int
	PointsReceived  int
	Summary         *ElevationSummary
	Reason          string
}

// OK reports whether numeric statistics are available
func (s ElevationStats) OK() bool {
	return s.Summary != nil
}

// MarshalJSON flattens the summary or the reason next to the point counts
func (s ElevationStats) MarshalJSON() ([]byte, error) {
	out := map[string]interface{}{
		"points_requested": s.PointsRequested,
		"points_received":  s.PointsReceived,
	}
	if s.Summary != nil {
		out["min_elevation"] = s.Summary.MinElevation
		out["max_elevation"] = s.Summary.MaxElevation
		out["mean_elevation"] = s.Summary.MeanElevation
	} else {
		out["error"] = s.Reason
	}
	return json.Marshal(out)
}

// ElevationRequest is the body of the elevation endpoints
type ElevationRequest struct {
	Locations []LatLng `json:"locations" binding:"required"`
	BatchSize int      `json:"batch_size,omitempty"`
}
