package elevation

import (
	"context"
	"sync"
	"time"

	"github.com/solarrev/solarrev-backend/internal/models"
)

// terrainAt is a deterministic elevation surface, unique per coordinate
func terrainAt(c models.Coordinate) float64 {
	return 20 + (c.Y-53.34)*1000 + (c.X+6.25)*100
}

type fakeProvider struct {
	mu          sync.Mutex
	calls       int
	batchSizes  []int
	seen        []models.Coordinate
	inFlight    int
	maxInFlight int

	// failFirst calls fail with a rate-limit error before succeeding
	failFirst int
	// err, when set, is returned by every call after failFirst
	err error
	// failIf fails the batch when it returns true
	failIf func([]models.Coordinate) error
	// delay is applied before answering; it honours ctx
	delay func([]models.Coordinate) time.Duration
	// missing reports coordinates the provider has no value for
	missing func(models.Coordinate) bool
}

func (p *fakeProvider) Lookup(ctx context.Context, coords []models.Coordinate) ([]*float64, error) {
	p.mu.Lock()
	p.calls++
	call := p.calls
	p.batchSizes = append(p.batchSizes, len(coords))
	p.seen = append(p.seen, coords...)
	p.inFlight++
	if p.inFlight > p.maxInFlight {
		p.maxInFlight = p.inFlight
	}
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.inFlight--
		p.mu.Unlock()
	}()

	if p.delay != nil {
		select {
		case <-time.After(p.delay(coords)):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if call <= p.failFirst {
		return nil, &RateLimitError{}
	}
	if p.err != nil {
		return nil, p.err
	}
	if p.failIf != nil {
		if err := p.failIf(coords); err != nil {
			return nil, err
		}
	}

	out := make([]*float64, len(coords))
	for i, c := range coords {
		if p.missing != nil && p.missing(c) {
			continue
		}
		v := terrainAt(c)
		out[i] = &v
	}
	return out, nil
}

func (p *fakeProvider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

type fakeRecorder struct {
	mu      sync.Mutex
	batches map[string]int
	retries map[string]int
	samples map[models.SampleStatus]int
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{
		batches: map[string]int{},
		retries: map[string]int{},
		samples: map[models.SampleStatus]int{},
	}
}

func (r *fakeRecorder) ObserveBatch(outcome string, size int, d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches[outcome]++
}

func (r *fakeRecorder) IncRetry(reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.retries[reason]++
}

func (r *fakeRecorder) AddSamples(status models.SampleStatus, n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.samples[status] += n
}

type memoryCache struct {
	mu     sync.Mutex
	values map[models.Coordinate]float64
}

func newMemoryCache() *memoryCache {
	return &memoryCache{values: map[models.Coordinate]float64{}}
}

func (m *memoryCache) GetMany(ctx context.Context, coords []models.Coordinate) (map[int]float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	hits := map[int]float64{}
	for i, c := range coords {
		if v, ok := m.values[c]; ok {
			hits[i] = v
		}
	}
	return hits, nil
}

func (m *memoryCache) PutMany(ctx context.Context, samples []models.ElevationSample) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range samples {
		if s.OK() {
			m.values[s.Coordinate] = *s.Elevation
		}
	}
	return nil
}

func fastOptions() FetchOptions {
	return FetchOptions{
		BatchSize:      10,
		MaxConcurrency: 4,
		MaxRetries:     3,
		BackoffBase:    time.Millisecond,
		MaxBackoff:     4 * time.Millisecond,
	}
}

func lineOfPoints(n int) []models.Coordinate {
	coords := make([]models.Coordinate, n)
	for i := range coords {
		coords[i] = models.Coordinate{X: -6.26 + float64(i)*0.0005, Y: 53.34 + float64(i)*0.0003}
	}
	return coords
}
