package elevation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/solarrev/solarrev-backend/internal/models"
)

// Provider looks up elevations for one batch of coordinates. The returned
// slice is index-aligned with coords; a nil entry means the provider has no
// value for that location.
type Provider interface {
	Lookup(ctx context.Context, coords []models.Coordinate) ([]*float64, error)
}

// maxResponseBytes bounds how much of an upstream body is read
const maxResponseBytes = 8 << 20

// HTTPProvider talks to an Open-Elevation compatible lookup endpoint:
// POST {"locations":[{"latitude":..,"longitude":..}]} answered with
// {"results":[{"latitude":..,"longitude":..,"elevation":..}]}.
type HTTPProvider struct {
	url    string
	client *http.Client
}

// NewHTTPProvider creates a provider that issues requests with client
func NewHTTPProvider(url string, client *http.Client) *HTTPProvider {
	return &HTTPProvider{url: url, client: client}
}

type lookupLocation struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type lookupRequest struct {
	Locations []lookupLocation `json:"locations"`
}

type lookupResult struct {
	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
	Elevation *float64 `json:"elevation"`
}

type lookupResponse struct {
	Results []lookupResult `json:"results"`
}

// Lookup implements Provider
func (p *HTTPProvider) Lookup(ctx context.Context, coords []models.Coordinate) ([]*float64, error) {
	in := lookupRequest{Locations: make([]lookupLocation, len(coords))}
	for i, c := range coords {
		in.Locations[i] = lookupLocation{Latitude: c.Lat(), Longitude: c.Lon()}
	}

	body, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("marshal lookup request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrNetwork, err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &RateLimitError{RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"))}
	case resp.StatusCode == http.StatusRequestTimeout || resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: %s", ErrNetwork, resp.Status)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, fmt.Errorf("%w: %s, body: %s", ErrBadResponse, resp.Status, truncate(data, 256))
	}

	var out lookupResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrBadResponse, err)
	}
	if len(out.Results) != len(coords) {
		return nil, fmt.Errorf("%w: %d results for %d locations", ErrBadResponse, len(out.Results), len(coords))
	}

	elevations := make([]*float64, len(out.Results))
	for i, r := range out.Results {
		elevations[i] = r.Elevation
	}
	return elevations, nil
}

// parseRetryAfter understands both delay-seconds and HTTP-date forms
func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
