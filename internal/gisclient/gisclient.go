// Package gisclient is the routing client adapter (spec §4.3): it wraps
// calls to the external GIS service for best-path lookups between pads at
// a given time. The core search engine never touches routing vocabulary
// (petgraph, corridors, no-fly zones) directly — this is the only place
// that vocabulary appears (spec §9).
package gisclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jellydator/ttlcache/v3"
	"github.com/sony/gobreaker/v2"

	"github.com/aetheric-oss/svc-scheduler/internal/domain"
	"github.com/aetheric-oss/svc-scheduler/internal/errs"
)

// PathResult is the outcome of a best_path lookup (spec §6 GIS contract).
type PathResult struct {
	Path      []byte
	Duration  time.Duration
	Altitudes domain.AltitudeProfile
}

// Client is the routing client adapter (C3).
type Client struct {
	log     *slog.Logger
	http    *http.Client
	baseURL string

	breaker *gobreaker.CircuitBreaker[PathResult]
	probeCache *ttlcache.Cache[string, PathResult]

	retryInitialInterval time.Duration
	retryMaxElapsedTime  time.Duration
}

// Config configures a Client.
type Config struct {
	Logger  *slog.Logger
	HTTP    *http.Client
	BaseURL string

	// ProbeCacheTTL is how long a best_path result stays memoized, keyed by
	// the (origin, dest, minute) triple, so re-probing the same triple
	// during enumeration (§4.5 step 3) doesn't re-hit GIS. The cache belongs
	// to the Client and is shared by every search that uses it.
	ProbeCacheTTL time.Duration

	RetryInitialInterval time.Duration
	RetryMaxElapsedTime  time.Duration

	BreakerMaxRequests uint32
	BreakerInterval    time.Duration
	BreakerTimeout     time.Duration
}

func (c *Config) Validate() error {
	if c.Logger == nil {
		return fmt.Errorf("logger is required")
	}
	if c.BaseURL == "" {
		return fmt.Errorf("gis base url is required")
	}
	if c.HTTP == nil {
		c.HTTP = &http.Client{Timeout: 5 * time.Second}
	}
	if c.ProbeCacheTTL <= 0 {
		c.ProbeCacheTTL = 30 * time.Second
	}
	if c.RetryInitialInterval <= 0 {
		c.RetryInitialInterval = 50 * time.Millisecond
	}
	if c.RetryMaxElapsedTime <= 0 {
		c.RetryMaxElapsedTime = 2 * time.Second
	}
	if c.BreakerMaxRequests == 0 {
		c.BreakerMaxRequests = 5
	}
	if c.BreakerInterval <= 0 {
		c.BreakerInterval = 30 * time.Second
	}
	if c.BreakerTimeout <= 0 {
		c.BreakerTimeout = 10 * time.Second
	}
	return nil
}

// New constructs a Client from cfg.
func New(cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	cache := ttlcache.New[string, PathResult](
		ttlcache.WithTTL[string, PathResult](cfg.ProbeCacheTTL),
	)
	go cache.Start()

	breaker := gobreaker.NewCircuitBreaker[PathResult](gobreaker.Settings{
		Name:        "gis-best-path",
		MaxRequests: cfg.BreakerMaxRequests,
		Interval:    cfg.BreakerInterval,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})

	return &Client{
		log:                  cfg.Logger,
		http:                 cfg.HTTP,
		baseURL:              cfg.BaseURL,
		breaker:              breaker,
		probeCache:           cache,
		retryInitialInterval: cfg.RetryInitialInterval,
		retryMaxElapsedTime:  cfg.RetryMaxElapsedTime,
	}, nil
}

// Close releases background resources (the probe cache janitor goroutine).
func (c *Client) Close() {
	c.probeCache.Stop()
}

type bestPathRequest struct {
	OriginPad string    `json:"origin_pad"`
	DestPad   string    `json:"dest_pad"`
	DepartAt  time.Time `json:"depart_at"`
}

type bestPathResponse struct {
	Path         []byte    `json:"path"`
	DurationSecs float64   `json:"duration_seconds"`
	Altitudes    []float64 `json:"altitudes"`
}

// BestPath asks GIS for the path and duration between origin and dest at
// departAt (spec §4.3/§6). Transport failures are retried with bounded
// exponential backoff; a GIS that has no valid corridor at that time fails
// with errs.RouteUnavailable (terminal); persistent transport failure
// fails with errs.GISUnavailable (retryable) once the breaker is open or
// retries are exhausted.
func (c *Client) BestPath(ctx context.Context, originPad, destPad string, departAt time.Time) (PathResult, error) {
	key := cacheKey(originPad, destPad, departAt)
	if item := c.probeCache.Get(key); item != nil {
		return item.Value(), nil
	}

	result, err := c.breaker.Execute(func() (PathResult, error) {
		return c.callWithRetry(ctx, originPad, destPad, departAt)
	})
	if err != nil {
		if _, ok := err.(*errs.Error); ok {
			return PathResult{}, err
		}
		return PathResult{}, errs.Wrap(errs.GISUnavailable, "gis best_path unavailable", err)
	}

	c.probeCache.Set(key, result, ttlcache.DefaultTTL)
	return result, nil
}

func (c *Client) callWithRetry(ctx context.Context, originPad, destPad string, departAt time.Time) (PathResult, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.retryInitialInterval
	b.MaxElapsedTime = c.retryMaxElapsedTime
	bo := backoff.WithContext(b, ctx)

	var result PathResult
	op := func() error {
		r, err := c.doBestPath(ctx, originPad, destPad, departAt)
		if err != nil {
			if se, ok := err.(*errs.Error); ok && errs.ClassOf(se.Code) == errs.ClassTerminal {
				return backoff.Permanent(err)
			}
			return err
		}
		result = r
		return nil
	}

	if err := backoff.Retry(op, bo); err != nil {
		return PathResult{}, err
	}
	return result, nil
}

func (c *Client) doBestPath(ctx context.Context, originPad, destPad string, departAt time.Time) (PathResult, error) {
	reqBody, err := json.Marshal(bestPathRequest{OriginPad: originPad, DestPad: destPad, DepartAt: departAt})
	if err != nil {
		return PathResult{}, errs.Wrap(errs.Internal, "encode best_path request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/bestPath", bytes.NewReader(reqBody))
	if err != nil {
		return PathResult{}, errs.Wrap(errs.Internal, "build best_path request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return PathResult{}, errs.Wrap(errs.GISUnavailable, "gis transport failure", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var out bestPathResponse
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return PathResult{}, errs.Wrap(errs.Internal, "decode best_path response", err)
		}
		return PathResult{
			Path:      out.Path,
			Duration:  time.Duration(out.DurationSecs * float64(time.Second)),
			Altitudes: out.Altitudes,
		}, nil
	case http.StatusNotFound, http.StatusUnprocessableEntity:
		return PathResult{}, errs.New(errs.RouteUnavailable, fmt.Sprintf("no valid corridor %s->%s at %s", originPad, destPad, departAt))
	default:
		return PathResult{}, errs.New(errs.GISUnavailable, fmt.Sprintf("gis returned status %d", resp.StatusCode))
	}
}

// CheckIntersection asks GIS whether path intersects any no-fly zone (spec
// §6 GIS contract: checkIntersection). Only the path bytes are sent; window
// is not included in the request, so the answer does not depend on it.
func (c *Client) CheckIntersection(ctx context.Context, path []byte, window domain.Timeslot) (bool, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/checkIntersection", bytes.NewReader(path))
	if err != nil {
		return false, errs.Wrap(errs.Internal, "build checkIntersection request", err)
	}
	httpReq.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return false, errs.Wrap(errs.GISUnavailable, "gis transport failure", err)
	}
	defer resp.Body.Close()

	var out struct {
		Intersects bool `json:"intersects"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return false, errs.Wrap(errs.Internal, "decode checkIntersection response", err)
	}
	return out.Intersects, nil
}

func cacheKey(originPad, destPad string, departAt time.Time) string {
	return originPad + "|" + destPad + "|" + departAt.UTC().Truncate(time.Minute).Format(time.RFC3339)
}
