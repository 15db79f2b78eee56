package service

import (
	"context"

	"github.com/solarrev/solarrev-backend/internal/elevation"
	"github.com/solarrev/solarrev-backend/internal/models"
)

// ElevationService exposes elevation lookups, one client per call
type ElevationService struct {
	source *elevation.Source
}

// NewElevationService creates a new elevation service
func NewElevationService(source *elevation.Source) *ElevationService {
	return &ElevationService{source: source}
}

// GetElevations returns one sample per coordinate in request order.
// batchSize overrides the configured batch size when positive.
func (s *ElevationService) GetElevations(ctx context.Context, coords []models.Coordinate, batchSize int) ([]models.ElevationSample, error) {
	var samples []models.ElevationSample
	err := s.source.WithClient(ctx, func(c *elevation.Client) error {
		var err error
		samples, err = c.GetElevations(ctx, coords, elevation.WithBatchSize(batchSize))
		return err
	})
	return samples, err
}

// GetAreaElevationStats summarises the elevations of coords
func (s *ElevationService) GetAreaElevationStats(ctx context.Context, coords []models.Coordinate) (models.ElevationStats, error) {
	var out models.ElevationStats
	err := s.source.WithClient(ctx, func(c *elevation.Client) error {
		var err error
		out, err = c.GetAreaElevationStats(ctx, coords)
		return err
	})
	return out, err
}
