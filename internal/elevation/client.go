package elevation

import (
	"context"
	"sync"

	"github.com/solarrev/solarrev-backend/internal/logging"
	"github.com/solarrev/solarrev-backend/internal/models"
	"github.com/solarrev/solarrev-backend/internal/stats"
)

// Cache stores elevations fetched earlier. GetMany returns values keyed by
// position in coords and skips coordinates it does not know.
type Cache interface {
	GetMany(ctx context.Context, coords []models.Coordinate) (map[int]float64, error)
	PutMany(ctx context.Context, samples []models.ElevationSample) error
}

// Option overrides a fetch setting for one call
type Option func(*FetchOptions)

// WithBatchSize overrides the batch size
func WithBatchSize(n int) Option {
	return func(o *FetchOptions) {
		if n > 0 {
			o.BatchSize = n
		}
	}
}

// Client is a unit of work against the elevation provider. It owns a
// Session and must be closed; see Source.WithClient.
type Client struct {
	session *Session
	fetcher *Fetcher
	cache   Cache
	opts    FetchOptions
	log     logging.Logger

	closeOnce sync.Once
	release   func()
}

// Session returns the network session held by the client
func (c *Client) Session() *Session {
	return c.session
}

// Close releases the session. Safe to call more than once.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.session.Close()
		if c.release != nil {
			c.release()
		}
	})
	return err
}

// GetElevations returns samples index-aligned with coords. When no coordinate
// is valid it returns an empty slice without contacting the provider.
func (c *Client) GetElevations(ctx context.Context, coords []models.Coordinate, opts ...Option) ([]models.ElevationSample, error) {
	if c.session.Closed() {
		return nil, ErrSessionClosed
	}
	if !anyValid(coords) {
		c.log.Debug(ctx, "no valid coordinates, skipping upstream", logging.Int("requested", len(coords)))
		return []models.ElevationSample{}, nil
	}

	fo := c.opts
	for _, o := range opts {
		o(&fo)
	}

	hits := c.cached(ctx, coords)

	result := make([]models.ElevationSample, len(coords))
	pending := make([]int, 0, len(coords))
	for i, coord := range coords {
		if v, ok := hits[i]; ok {
			result[i] = models.ElevationSample{Coordinate: coord, Elevation: &v, Status: models.SampleStatusOK}
			continue
		}
		pending = append(pending, i)
	}
	if len(pending) == 0 {
		return result, nil
	}

	query := make([]models.Coordinate, len(pending))
	for k, i := range pending {
		query[k] = coords[i]
	}
	fetched, err := c.fetcher.Fetch(ctx, query, fo)
	if err != nil {
		return nil, err
	}
	for k, i := range pending {
		result[i] = fetched[k]
	}

	c.store(ctx, fetched)
	return result, nil
}

// GetElevation looks up a single point
func (c *Client) GetElevation(ctx context.Context, coord models.Coordinate) (float64, error) {
	if !coord.Valid() {
		return 0, ErrInvalidCoordinate
	}
	samples, err := c.GetElevations(ctx, []models.Coordinate{coord})
	if err != nil {
		return 0, err
	}
	if len(samples) != 1 || !samples[0].OK() {
		return 0, ErrNoElevation
	}
	return *samples[0].Elevation, nil
}

// GetAreaElevationStats summarises the elevations of coords. When nothing
// was received the result carries a Reason instead of a Summary; err is only
// set when the lookup itself failed (for example on cancellation).
func (c *Client) GetAreaElevationStats(ctx context.Context, coords []models.Coordinate) (models.ElevationStats, error) {
	samples, err := c.GetElevations(ctx, coords)
	if err != nil {
		return models.ElevationStats{}, err
	}

	values := OKValues(samples)
	out := models.ElevationStats{
		PointsRequested: len(coords),
		PointsReceived:  len(values),
	}

	switch {
	case len(coords) == 0:
		out.Reason = "no coordinates requested"
	case len(samples) == 0:
		out.Reason = "all coordinates are out of range"
	case len(values) == 0:
		out.Reason = "no elevation data received"
	default:
		d := stats.Describe(values)
		out.Summary = &models.ElevationSummary{
			MinElevation:  d.Min,
			MaxElevation:  d.Max,
			MeanElevation: d.Mean,
		}
	}
	return out, nil
}

func (c *Client) cached(ctx context.Context, coords []models.Coordinate) map[int]float64 {
	if c.cache == nil {
		return nil
	}
	hits, err := c.cache.GetMany(ctx, coords)
	if err != nil {
		c.log.Warn(ctx, "elevation cache read failed", logging.Err(err))
		return nil
	}
	return hits
}

func (c *Client) store(ctx context.Context, samples []models.ElevationSample) {
	if c.cache == nil {
		return
	}
	if err := c.cache.PutMany(ctx, samples); err != nil {
		c.log.Warn(ctx, "elevation cache write failed", logging.Err(err))
	}
}

// OKValues returns the elevations of samples with status ok, in order
func OKValues(samples []models.ElevationSample) []float64 {
	values := make([]float64, 0, len(samples))
	for _, s := range samples {
		if s.OK() {
			values = append(values, *s.Elevation)
		}
	}
	return values
}

func anyValid(coords []models.Coordinate) bool {
	for _, c := range coords {
		if c.Valid() {
			return true
		}
	}
	return false
}
