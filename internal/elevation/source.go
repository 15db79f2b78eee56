package elevation

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/solarrev/solarrev-backend/internal/logging"
)

// Config configures a Source
type Config struct {
	APIURL            string
	Timeout           time.Duration
	Fetch             FetchOptions
	RequestsPerSecond float64 // 0 disables the token bucket
	Burst             int
}

// ProviderFunc builds the Provider used by a session
type ProviderFunc func(*Session) Provider

// Source is the long-lived factory for Clients. It holds what concurrent
// analyses share: the upstream token bucket, the cache and the metrics.
type Source struct {
	cfg         Config
	limiter     *rate.Limiter
	newProvider ProviderFunc
	cache       Cache
	recorder    Recorder
	log         logging.Logger

	open atomic.Int64
}

// SourceOption customises a Source
type SourceOption func(*Source)

// WithCache enables read-through caching
func WithCache(c Cache) SourceOption {
	return func(s *Source) { s.cache = c }
}

// WithRecorder sets the metrics recorder
func WithRecorder(r Recorder) SourceOption {
	return func(s *Source) { s.recorder = r }
}

// WithLogger sets the logger
func WithLogger(l logging.Logger) SourceOption {
	return func(s *Source) { s.log = l }
}

// WithProvider replaces the HTTP provider
func WithProvider(fn ProviderFunc) SourceOption {
	return func(s *Source) { s.newProvider = fn }
}

// NewSource creates a Source
func NewSource(cfg Config, opts ...SourceOption) *Source {
	s := &Source{
		cfg:      cfg,
		limiter:  rate.NewLimiter(rate.Inf, 1),
		recorder: nopRecorder{},
		log:      logging.Noop(),
	}
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	s.newProvider = func(sess *Session) Provider {
		return NewHTTPProvider(cfg.APIURL, sess.HTTPClient())
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open acquires a session and returns a Client bound to it. The caller
// must Close the client.
func (s *Source) Open(ctx context.Context) (*Client, error) {
	if err := ctx.Err(); err != nil {
		return nil, cancelled(err)
	}

	session := NewSession(s.cfg.Timeout)
	log := s.log.With(logging.String("session", session.ID))
	s.open.Add(1)

	return &Client{
		session: session,
		fetcher: NewFetcher(s.newProvider(session), s.limiter, s.recorder, log),
		cache:   s.cache,
		opts:    s.cfg.Fetch.withDefaults(),
		log:     log,
		release: func() { s.open.Add(-1) },
	}, nil
}

// WithClient runs fn with a fresh Client and releases it on every return
// path, including panics and cancellation.
func (s *Source) WithClient(ctx context.Context, fn func(*Client) error) error {
	client, err := s.Open(ctx)
	if err != nil {
		return err
	}
	defer client.Close()
	return fn(client)
}

// OpenSessions reports how many clients are currently open
func (s *Source) OpenSessions() int64 {
	return s.open.Load()
}
