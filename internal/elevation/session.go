package elevation

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Session is the network resource behind one Client: a dedicated HTTP client
// and connection pool. It is released by Close and cannot be reused after.
type Session struct {
	ID string

	transport *http.Transport
	client    *http.Client
	closed    atomic.Bool
}

// NewSession opens a session whose requests time out after timeout
func NewSession(timeout time.Duration) *Session {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxIdleConnsPerHost = 8

	return &Session{
		ID:        uuid.NewString(),
		transport: transport,
		client:    &http.Client{Transport: transport, Timeout: timeout},
	}
}

// HTTPClient returns the session's HTTP client
func (s *Session) HTTPClient() *http.Client {
	return s.client
}

// Close drops pooled connections. Safe to call more than once.
func (s *Session) Close() error {
	if s.closed.CompareAndSwap(false, true) {
		s.transport.CloseIdleConnections()
	}
	return nil
}

// Closed reports whether Close has been called
func (s *Session) Closed() bool {
	return s.closed.Load()
}
