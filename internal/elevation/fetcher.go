package elevation

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/solarrev/solarrev-backend/internal/logging"
	"github.com/solarrev/solarrev-backend/internal/models"
)

// Batch outcomes reported to the Recorder
const (
	OutcomeOK          = "ok"
	OutcomeUnavailable = "unavailable"
	OutcomeCancelled   = "cancelled"
)

// Recorder receives fetch metrics
type Recorder interface {
	ObserveBatch(outcome string, size int, d time.Duration)
	IncRetry(reason string)
	AddSamples(status models.SampleStatus, n int)
}

type nopRecorder struct{}

func (nopRecorder) ObserveBatch(string, int, time.Duration) {}
func (nopRecorder) IncRetry(string)                         {}
func (nopRecorder) AddSamples(models.SampleStatus, int)     {}

// FetchOptions tunes one Fetch call
type FetchOptions struct {
	BatchSize      int
	MaxConcurrency int           // In-flight batch requests
	MaxRetries     int           // Retries after the first attempt
	BackoffBase    time.Duration // First retry delay, doubled on each attempt
	MaxBackoff     time.Duration
}

// DefaultFetchOptions returns the defaults used when a field is unset
func DefaultFetchOptions() FetchOptions {
	return FetchOptions{
		BatchSize:      100,
		MaxConcurrency: 4,
		MaxRetries:     3,
		BackoffBase:    250 * time.Millisecond,
		MaxBackoff:     4 * time.Second,
	}
}

func (o FetchOptions) withDefaults() FetchOptions {
	def := DefaultFetchOptions()
	if o.BatchSize < 1 {
		o.BatchSize = def.BatchSize
	}
	if o.MaxConcurrency < 1 {
		o.MaxConcurrency = def.MaxConcurrency
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.BackoffBase <= 0 {
		o.BackoffBase = def.BackoffBase
	}
	if o.MaxBackoff < o.BackoffBase {
		o.MaxBackoff = o.BackoffBase * 16
	}
	return o
}

// Fetcher splits coordinate lists into batches and runs them against a
// Provider under a concurrency ceiling and a shared token bucket
type Fetcher struct {
	provider Provider
	limiter  *rate.Limiter
	recorder Recorder
	log      logging.Logger
}

// NewFetcher creates a fetcher. A nil limiter admits every request; nil
// recorder and logger are replaced by no-ops.
func NewFetcher(provider Provider, limiter *rate.Limiter, recorder Recorder, log logging.Logger) *Fetcher {
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Inf, 1)
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}
	if log == nil {
		log = logging.Noop()
	}
	return &Fetcher{provider: provider, limiter: limiter, recorder: recorder, log: log}
}

// Fetch returns one sample per coordinate, in input order. Out-of-range
// coordinates are marked invalid and never sent upstream. Batches whose
// retries run out are marked unavailable without failing the call. Only
// cancellation of ctx, or a deadline the rate limiter cannot meet, makes
// Fetch return an error, and then no samples.
func (f *Fetcher) Fetch(ctx context.Context, coords []models.Coordinate, opts FetchOptions) ([]models.ElevationSample, error) {
	opts = opts.withDefaults()

	samples := make([]models.ElevationSample, len(coords))
	valid := make([]int, 0, len(coords))
	for i, c := range coords {
		samples[i] = models.ElevationSample{Coordinate: c, Status: models.SampleStatusInvalid}
		if c.Valid() {
			valid = append(valid, i)
		}
	}
	if invalid := len(coords) - len(valid); invalid > 0 {
		f.recorder.AddSamples(models.SampleStatusInvalid, invalid)
	}
	if len(valid) == 0 {
		return samples, nil
	}

	batches := Partition(valid, opts.BatchSize)
	f.log.Debug(ctx, "fetching elevations",
		logging.Int("points", len(valid)),
		logging.Int("batches", len(batches)),
		logging.Int("batch_size", opts.BatchSize))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.MaxConcurrency)
	for n, batch := range batches {
		if gctx.Err() != nil {
			break
		}
		// Go blocks while MaxConcurrency batches are in flight
		g.Go(func() error {
			return f.runBatch(gctx, n, batch, coords, samples, opts)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, cancelled(err)
	}
	return samples, nil
}

// runBatch resolves one batch and writes its samples. Each batch owns a
// disjoint set of indices, so no locking is needed on samples.
func (f *Fetcher) runBatch(ctx context.Context, n int, idx []int, coords []models.Coordinate, samples []models.ElevationSample, opts FetchOptions) error {
	batch := make([]models.Coordinate, len(idx))
	for k, i := range idx {
		batch[k] = coords[i]
	}

	start := time.Now()
	elevations, err := f.lookupWithRetry(ctx, batch, opts)
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, ErrCancelled) {
			f.recorder.ObserveBatch(OutcomeCancelled, len(idx), time.Since(start))
			if ctx.Err() != nil {
				return cancelled(ctx.Err())
			}
			return err
		}
		f.log.Warn(ctx, "elevation batch unavailable",
			logging.Int("batch", n), logging.Int("size", len(idx)), logging.Err(err))
		for _, i := range idx {
			samples[i].Status = models.SampleStatusUnavailable
		}
		f.recorder.ObserveBatch(OutcomeUnavailable, len(idx), time.Since(start))
		f.recorder.AddSamples(models.SampleStatusUnavailable, len(idx))
		return nil
	}

	var ok int
	for k, i := range idx {
		if elevations[k] == nil {
			samples[i].Status = models.SampleStatusUnavailable
			continue
		}
		v := *elevations[k]
		samples[i].Elevation = &v
		samples[i].Status = models.SampleStatusOK
		ok++
	}
	f.recorder.ObserveBatch(OutcomeOK, len(idx), time.Since(start))
	f.recorder.AddSamples(models.SampleStatusOK, ok)
	if missing := len(idx) - ok; missing > 0 {
		f.recorder.AddSamples(models.SampleStatusUnavailable, missing)
	}
	return nil
}

func (f *Fetcher) lookupWithRetry(ctx context.Context, batch []models.Coordinate, opts FetchOptions) ([]*float64, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = opts.BackoffBase
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = opts.MaxBackoff

	op := func() ([]*float64, error) {
		// Wait fails early when the next token is due after the deadline
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, backoff.Permanent(cancelled(err))
		}
		elevations, err := f.provider.Lookup(ctx, batch)
		if err == nil {
			if len(elevations) != len(batch) {
				return nil, backoff.Permanent(fmt.Errorf("%w: %d results for %d locations", ErrBadResponse, len(elevations), len(batch)))
			}
			return elevations, nil
		}
		if ctx.Err() != nil {
			return nil, backoff.Permanent(ctx.Err())
		}

		var rl *RateLimitError
		if errors.As(err, &rl) && rl.RetryAfter > 0 && rl.RetryAfter <= opts.MaxBackoff {
			return nil, backoff.RetryAfter(int(math.Ceil(rl.RetryAfter.Seconds())))
		}
		if errors.Is(err, ErrRateLimited) || errors.Is(err, ErrNetwork) {
			return nil, err
		}
		return nil, backoff.Permanent(err)
	}

	return backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(opts.MaxRetries)+1),
		backoff.WithNotify(func(err error, next time.Duration) {
			f.recorder.IncRetry(retryReason(err))
			f.log.Debug(ctx, "retrying elevation batch",
				logging.Int("size", len(batch)), logging.Duration("delay", next), logging.Err(err))
		}),
	)
}

func retryReason(err error) string {
	var ra *backoff.RetryAfterError
	if errors.Is(err, ErrRateLimited) || errors.As(err, &ra) {
		return "rate_limited"
	}
	return "network"
}

// Partition splits indices into consecutive chunks of at most size entries
func Partition(indices []int, size int) [][]int {
	if size < 1 {
		size = 1
	}
	batches := make([][]int, 0, (len(indices)+size-1)/size)
	for start := 0; start < len(indices); start += size {
		end := start + size
		if end > len(indices) {
			end = len(indices)
		}
		batches = append(batches, indices[start:end])
	}
	return batches
}
