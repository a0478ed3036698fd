package gisclient_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aetheric-oss/svc-scheduler/internal/domain"
	"github.com/aetheric-oss/svc-scheduler/internal/errs"
	"github.com/aetheric-oss/svc-scheduler/internal/gisclient"
)

func testLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newClient(t *testing.T, baseURL string) *gisclient.Client {
	t.Helper()
	c, err := gisclient.New(gisclient.Config{
		Logger:               testLogger(),
		BaseURL:              baseURL,
		ProbeCacheTTL:        time.Minute,
		RetryInitialInterval: time.Millisecond,
		RetryMaxElapsedTime:  50 * time.Millisecond,
	})
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func TestClient_BestPath_Success(t *testing.T) {
	t.Parallel()

	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"path":             []byte("polyline"),
			"duration_seconds": 1200.0,
			"altitudes":        []float64{100, 150, 100},
		})
	}))
	t.Cleanup(srv.Close)

	c := newClient(t, srv.URL)
	res, err := c.BestPath(context.Background(), "P1", "P2", time.Now())
	require.NoError(t, err)
	require.Equal(t, 20*time.Minute, res.Duration)
	require.Equal(t, "/v1/bestPath", gotPath)
}

func TestClient_BestPath_NoCorridor_RouteUnavailable(t *testing.T) {
	t.Parallel()

	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	t.Cleanup(srv.Close)

	c := newClient(t, srv.URL)
	_, err := c.BestPath(context.Background(), "P1", "P2", time.Now())
	require.Error(t, err)
	code, ok := errs.CodeOf(err)
	require.True(t, ok)
	require.Equal(t, errs.RouteUnavailable, code)
	require.Equal(t, int32(1), atomic.LoadInt32(&calls),
		"no-corridor is a property of the request, not a transient failure, and must not be retried")
}

func TestClient_BestPath_TransportFailure_RetriesThenGISUnavailable(t *testing.T) {
	t.Parallel()

	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)

	c := newClient(t, srv.URL)
	_, err := c.BestPath(context.Background(), "P1", "P2", time.Now())
	require.Error(t, err)
	code, ok := errs.CodeOf(err)
	require.True(t, ok)
	require.Equal(t, errs.GISUnavailable, code)
	require.Greater(t, atomic.LoadInt32(&calls), int32(1), "transport-class failure should be retried before giving up")
}

func TestClient_BestPath_ProbeCacheAvoidsSecondCall(t *testing.T) {
	t.Parallel()

	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"path": []byte("p"), "duration_seconds": 60.0, "altitudes": []float64{},
		})
	}))
	t.Cleanup(srv.Close)

	c := newClient(t, srv.URL)
	probeAt := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)

	_, err := c.BestPath(context.Background(), "P1", "P2", probeAt)
	require.NoError(t, err)
	_, err = c.BestPath(context.Background(), "P1", "P2", probeAt.Add(10*time.Second))
	require.NoError(t, err)

	require.Equal(t, int32(1), atomic.LoadInt32(&calls), "same-minute probe should be served from cache")
}

func TestClient_CheckIntersection(t *testing.T) {
	t.Parallel()

	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"intersects": true})
	}))
	t.Cleanup(srv.Close)

	c := newClient(t, srv.URL)
	window := domain.Timeslot{Start: time.Now(), End: time.Now().Add(time.Hour)}
	intersects, err := c.CheckIntersection(context.Background(), []byte("path"), window)
	require.NoError(t, err)
	require.True(t, intersects)
	require.Equal(t, "/v1/checkIntersection", gotPath)
}
