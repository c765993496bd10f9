package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"pulseboard/internal/models"
)

// maxResponseBytes caps how much of a metrics response is read
const maxResponseBytes = 8 << 20

// Fetcher retrieves the current set of observations from a metrics source.
// Implementations perform exactly one round trip and never retry.
type Fetcher interface {
	Fetch(ctx context.Context) ([]models.Sample, error)
}

// HTTPFetcher GETs a fixed endpoint returning a JSON array of MetricRecord
type HTTPFetcher struct {
	endpoint string
	client   *http.Client
	location *time.Location
	now      func() time.Time
}

// NewHTTPFetcher creates a fetcher for endpoint. A zero timeout leaves the
// request unbounded apart from the caller's context.
func NewHTTPFetcher(endpoint string, timeout time.Duration, loc *time.Location) *HTTPFetcher {
	if loc == nil {
		loc = time.Local
	}
	return &HTTPFetcher{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
		location: loc,
		now:      time.Now,
	}
}

// Endpoint returns the polled URL
func (f *HTTPFetcher) Endpoint() string {
	return f.endpoint
}

// Fetch performs one GET. Every failure matches models.ErrNetwork; bodies
// that cannot be decoded also match models.ErrParse. No partial data is
// returned on error.
func (f *HTTPFetcher) Fetch(ctx context.Context) ([]models.Sample, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: building request: %w", models.ErrNetwork, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		return nil, fmt.Errorf("%w: unexpected status %d from %s", models.ErrNetwork, resp.StatusCode, f.endpoint)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: reading body: %w", models.ErrNetwork, err)
	}

	samples, err := DecodeSamples(body, f.location, f.now())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrNetwork, err)
	}
	return samples, nil
}

// DecodeSamples parses either a JSON array of records or a single nested
// agent snapshot. fetchedAt stands in for a snapshot without a usable timestamp.
func DecodeSamples(body []byte, loc *time.Location, fetchedAt time.Time) ([]models.Sample, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty body", models.ErrParse)
	}

	switch trimmed[0] {
	case '[':
		var records []models.MetricRecord
		if err := json.Unmarshal(trimmed, &records); err != nil {
			return nil, fmt.Errorf("%w: %w", models.ErrParse, err)
		}
		samples := make([]models.Sample, 0, len(records))
		for i, r := range records {
			s, err := r.ToSample(loc)
			if err != nil {
				return nil, fmt.Errorf("record %d: %w", i, err)
			}
			samples = append(samples, s)
		}
		return samples, nil

	case '{':
		var snap models.AgentSnapshot
		if err := json.Unmarshal(trimmed, &snap); err != nil {
			return nil, fmt.Errorf("%w: %w", models.ErrParse, err)
		}
		return []models.Sample{snap.ToSample(loc, fetchedAt)}, nil

	default:
		return nil, fmt.Errorf("%w: expected JSON array or object", models.ErrParse)
	}
}
