package elevation

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"github.com/solarrev/solarrev-backend/internal/models"
)

func TestPartition(t *testing.T) {
	tests := []struct {
		n, size int
		want    []int // batch lengths
	}{
		{n: 0, size: 3, want: []int{}},
		{n: 3, size: 3, want: []int{3}},
		{n: 7, size: 3, want: []int{3, 3, 1}},
		{n: 2, size: 0, want: []int{1, 1}},
	}
	for _, tt := range tests {
		idx := make([]int, tt.n)
		for i := range idx {
			idx[i] = i
		}
		batches := Partition(idx, tt.size)
		got := make([]int, len(batches))
		for i, b := range batches {
			got[i] = len(b)
		}
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("Partition(%d, %d) sizes = %v, want %v", tt.n, tt.size, got, tt.want)
		}
	}
}

func TestFetchBatchesAndPreservesOrder(t *testing.T) {
	// Later batches answer first so completion order is reversed
	p := &fakeProvider{
		delay: func(batch []models.Coordinate) time.Duration {
			return time.Duration(60-int((batch[0].X+6.26)/0.0005)) * time.Millisecond
		},
	}
	f := NewFetcher(p, nil, nil, nil)
	coords := lineOfPoints(25)

	samples, err := f.Fetch(context.Background(), coords, fastOptions())
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}

	if p.Calls() != 3 {
		t.Fatalf("provider calls = %d, want ceil(25/10) = 3", p.Calls())
	}
	sizes := append([]int(nil), p.batchSizes...)
	sort.Ints(sizes)
	if !reflect.DeepEqual(sizes, []int{5, 10, 10}) {
		t.Fatalf("batch sizes = %v, want [5 10 10]", sizes)
	}

	if len(samples) != len(coords) {
		t.Fatalf("len(samples) = %d, want %d", len(samples), len(coords))
	}
	for i, s := range samples {
		if s.Coordinate != coords[i] {
			t.Fatalf("sample %d coordinate = %+v, want %+v", i, s.Coordinate, coords[i])
		}
		if !s.OK() || *s.Elevation != terrainAt(coords[i]) {
			t.Fatalf("sample %d = %+v, want elevation %v", i, s, terrainAt(coords[i]))
		}
	}
}

func TestFetchNeverSendsInvalidCoordinates(t *testing.T) {
	p := &fakeProvider{}
	f := NewFetcher(p, nil, nil, nil)
	coords := []models.Coordinate{
		{X: -6.26, Y: 53.34},
		{X: 181, Y: 91},
		{X: -6.25, Y: 53.35},
		{X: 0, Y: -90.5},
	}

	samples, err := f.Fetch(context.Background(), coords, fastOptions())
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	for _, c := range p.seen {
		if !c.Valid() {
			t.Fatalf("invalid coordinate %+v sent upstream", c)
		}
	}
	want := []models.SampleStatus{models.SampleStatusOK, models.SampleStatusInvalid, models.SampleStatusOK, models.SampleStatusInvalid}
	for i, s := range samples {
		if s.Status != want[i] {
			t.Errorf("sample %d status = %s, want %s", i, s.Status, want[i])
		}
	}
	if samples[1].Elevation != nil {
		t.Errorf("invalid sample has elevation %v", *samples[1].Elevation)
	}
}

func TestFetchAllInvalidMakesNoCalls(t *testing.T) {
	p := &fakeProvider{}
	f := NewFetcher(p, nil, nil, nil)

	samples, err := f.Fetch(context.Background(), []models.Coordinate{{X: 181, Y: 91}}, fastOptions())
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if p.Calls() != 0 {
		t.Fatalf("provider calls = %d, want 0", p.Calls())
	}
	if len(samples) != 1 || samples[0].Status != models.SampleStatusInvalid {
		t.Fatalf("samples = %+v", samples)
	}
}

func TestFetchRespectsConcurrencyCeiling(t *testing.T) {
	p := &fakeProvider{delay: func([]models.Coordinate) time.Duration { return 15 * time.Millisecond }}
	f := NewFetcher(p, nil, nil, nil)

	opts := fastOptions()
	opts.BatchSize = 1
	opts.MaxConcurrency = 3

	if _, err := f.Fetch(context.Background(), lineOfPoints(12), opts); err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if p.maxInFlight > 3 {
		t.Fatalf("max in-flight requests = %d, want <= 3", p.maxInFlight)
	}
	if p.Calls() != 12 {
		t.Fatalf("provider calls = %d, want 12", p.Calls())
	}
}

func TestFetchRetriesRateLimitedBatch(t *testing.T) {
	p := &fakeProvider{failFirst: 2}
	rec := newFakeRecorder()
	f := NewFetcher(p, nil, rec, nil)

	samples, err := f.Fetch(context.Background(), lineOfPoints(4), fastOptions())
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if p.Calls() != 3 {
		t.Fatalf("provider calls = %d, want 3", p.Calls())
	}
	for i, s := range samples {
		if !s.OK() {
			t.Fatalf("sample %d not ok after retries: %+v", i, s)
		}
	}
	if rec.retries["rate_limited"] != 2 {
		t.Fatalf("rate_limited retries = %d, want 2", rec.retries["rate_limited"])
	}
	if rec.batches[OutcomeOK] != 1 {
		t.Fatalf("ok batches = %d, want 1", rec.batches[OutcomeOK])
	}
}

func TestFetchExhaustedRetriesMarkUnavailable(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{name: "rate limited", err: &RateLimitError{}},
		{name: "network", err: fmt.Errorf("%w: connection reset", ErrNetwork)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &fakeProvider{err: tt.err}
			rec := newFakeRecorder()
			f := NewFetcher(p, nil, rec, nil)

			opts := fastOptions()
			opts.MaxRetries = 2

			samples, err := f.Fetch(context.Background(), lineOfPoints(3), opts)
			if err != nil {
				t.Fatalf("Fetch() error = %v, want nil", err)
			}
			if p.Calls() != 3 {
				t.Fatalf("provider calls = %d, want 1 + 2 retries", p.Calls())
			}
			for i, s := range samples {
				if s.Status != models.SampleStatusUnavailable || s.Elevation != nil {
					t.Fatalf("sample %d = %+v, want unavailable", i, s)
				}
			}
			if rec.samples[models.SampleStatusUnavailable] != 3 {
				t.Fatalf("unavailable samples recorded = %d, want 3", rec.samples[models.SampleStatusUnavailable])
			}
		})
	}
}

func TestFetchDoesNotRetryBadResponse(t *testing.T) {
	p := &fakeProvider{err: fmt.Errorf("%w: 400 Bad Request", ErrBadResponse)}
	f := NewFetcher(p, nil, nil, nil)

	samples, err := f.Fetch(context.Background(), lineOfPoints(2), fastOptions())
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if p.Calls() != 1 {
		t.Fatalf("provider calls = %d, want 1", p.Calls())
	}
	if samples[0].Status != models.SampleStatusUnavailable {
		t.Fatalf("status = %s, want unavailable", samples[0].Status)
	}
}

func TestFetchPartialFailureKeepsOtherBatches(t *testing.T) {
	coords := lineOfPoints(30)
	poisoned := coords[15]
	p := &fakeProvider{
		failIf: func(batch []models.Coordinate) error {
			for _, c := range batch {
				if c == poisoned {
					return fmt.Errorf("%w: upstream 503", ErrNetwork)
				}
			}
			return nil
		},
	}
	f := NewFetcher(p, nil, nil, nil)

	opts := fastOptions()
	opts.MaxRetries = 1

	samples, err := f.Fetch(context.Background(), coords, opts)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	for i, s := range samples {
		wantOK := i < 10 || i >= 20
		if s.OK() != wantOK {
			t.Fatalf("sample %d ok = %v, want %v", i, s.OK(), wantOK)
		}
	}
}

func TestFetchMissingValueIsUnavailable(t *testing.T) {
	coords := lineOfPoints(3)
	p := &fakeProvider{missing: func(c models.Coordinate) bool { return c == coords[1] }}
	f := NewFetcher(p, nil, nil, nil)

	samples, err := f.Fetch(context.Background(), coords, fastOptions())
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if !samples[0].OK() || samples[1].Status != models.SampleStatusUnavailable || !samples[2].OK() {
		t.Fatalf("samples = %+v", samples)
	}
}

func TestFetchCancelled(t *testing.T) {
	p := &fakeProvider{delay: func([]models.Coordinate) time.Duration { return time.Second }}
	rec := newFakeRecorder()
	f := NewFetcher(p, nil, rec, nil)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	start := time.Now()
	samples, err := f.Fetch(ctx, lineOfPoints(40), fastOptions())
	if !errors.Is(err, ErrCancelled) || !errors.Is(err, context.Canceled) {
		t.Fatalf("Fetch() error = %v, want ErrCancelled wrapping context.Canceled", err)
	}
	if samples != nil {
		t.Fatalf("partial samples returned: %d", len(samples))
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Fatalf("Fetch took %v after cancellation", elapsed)
	}
}

func TestFetchSharesTokenBucket(t *testing.T) {
	p := &fakeProvider{}
	limiter := rate.NewLimiter(rate.Every(20*time.Millisecond), 1)
	f := NewFetcher(p, limiter, nil, nil)

	opts := fastOptions()
	opts.BatchSize = 1

	start := time.Now()
	if _, err := f.Fetch(context.Background(), lineOfPoints(5), opts); err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	// one token available immediately, four more at 20ms intervals
	if elapsed := time.Since(start); elapsed < 70*time.Millisecond {
		t.Fatalf("5 requests admitted in %v, limiter not applied", elapsed)
	}
}

func TestFetchLimiterDeadlineIsCancellation(t *testing.T) {
	p := &fakeProvider{}
	rec := newFakeRecorder()
	limiter := rate.NewLimiter(rate.Every(300*time.Millisecond), 1)
	f := NewFetcher(p, limiter, rec, nil)

	opts := fastOptions()
	opts.BatchSize = 1
	opts.MaxConcurrency = 1

	// tokens at 0 and 300ms; the third would land after the deadline
	ctx, cancel := context.WithTimeout(context.Background(), 450*time.Millisecond)
	defer cancel()

	samples, err := f.Fetch(ctx, lineOfPoints(4), opts)
	if !errors.Is(err, ErrCancelled) {
		t.Fatalf("Fetch() error = %v, want ErrCancelled", err)
	}
	if samples != nil {
		t.Fatalf("partial samples returned: %+v", samples)
	}
	if p.Calls() > 2 {
		t.Fatalf("calls = %d, want at most 2", p.Calls())
	}
}
