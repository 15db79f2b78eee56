package models

// SlopeClass buckets terrain roughness
type SlopeClass string

// SlopeClass constants
const (
	SlopeFlat     SlopeClass = "flat"
	SlopeModerate SlopeClass = "moderate"
	SlopeSteep    SlopeClass = "steep"
)

// TerrainSummary describes the terrain inside an analysed polygon
type TerrainSummary struct {
	// Elevation statistics over valid samples, meters
	MinElevation    float64 `json:"min_elevation"`
	MaxElevation    float64 `json:"max_elevation"`
	MeanElevation   float64 `json:"mean_elevation"`
	StdDevElevation float64 `json:"stddev_elevation"`

	// Slope
	SlopeClassification SlopeClass `json:"slope_classification"`
	MeanSlopeDegrees    float64    `json:"mean_slope_degrees"`
	MaxSlopeDegrees     float64    `json:"max_slope_degrees"`
	UsableFraction      float64    `json:"usable_fraction"` // 0~1

	// Sample accounting
	ValidSamples       int     `json:"valid_samples"`
	InvalidSamples     int     `json:"invalid_samples"`
	UnavailableSamples int     `json:"unavailable_samples"`
	GridSpacingM       float64 `json:"grid_spacing_m"`
}

// AreaAnalysisResult is the combined output of one area analysis
type AreaAnalysisResult struct {
	ID              string          `json:"id"` // Correlates logs with a response, never stored
	TotalAreaSqm    float64         `json:"total_area_sqm"`
	UsableAreaSqm   float64         `json:"usable_area_sqm"`
	PerimeterM      float64         `json:"perimeter_m"`
	Centroid        Coordinate      `json:"centroid"`
	SamplePoints    int             `json:"sample_points"`
	TerrainAnalysis *TerrainSummary `json:"terrain_analysis"`
}

// AreaRequest is the body of the area endpoints
type AreaRequest struct {
	Coordinates []Coordinate `json:"coordinates" binding:"required"`
}
