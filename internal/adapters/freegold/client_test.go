package freegold

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qyquant/internal/adapters/cache"
	"qyquant/internal/ports"
)

const dataset = `[
	{"date":"2024-01-03","price":2041.5,"source":"lbma"},
	{"date":"2024-01-01","price":"2063.7"},
	{"date":"2024-01-02","price":2058.2},
	{"date":"not-a-date","price":1},
	{"date":"2024-01-04"},
	{"date":"2024-01-05","price":"n/a"}
]`

const (
	jan1 = int64(1704067200000)
	jan2 = jan1 + 86_400_000
	jan3 = jan2 + 86_400_000
)

func newServer(t *testing.T, status int, body string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Path != datasetPath {
			http.NotFound(w, r)
			return
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	c, err := New(Config{
		BaseURL: baseURL,
		Timeout: 2 * time.Second,
		Cache:   cache.NewMemoryCache(),
		Logger:  ports.NopLogger{},
	})
	require.NoError(t, err)
	return c
}

func TestGetKlines_BuildsSortedFlatBars(t *testing.T) {
	srv, _ := newServer(t, http.StatusOK, dataset)
	client := newTestClient(t, srv.URL)

	bars, err := client.GetKlines(context.Background(), KlinesRequest{Interval: "1d"})
	require.NoError(t, err)
	require.Len(t, bars, 3, "malformed points are skipped")

	assert.Equal(t, jan1, bars[0].Time)
	assert.Equal(t, jan2, bars[1].Time)
	assert.Equal(t, jan3, bars[2].Time)
	for _, b := range bars {
		assert.Equal(t, b.Open, b.Close)
		assert.Equal(t, b.High, b.Close)
		assert.Equal(t, b.Low, b.Close)
		assert.Zero(t, b.Volume)
	}
	assert.Equal(t, 2063.7, bars[0].Close)
}

func TestGetKlines_FilterAndLimit(t *testing.T) {
	srv, _ := newServer(t, http.StatusOK, dataset)
	client := newTestClient(t, srv.URL)
	ctx := context.Background()

	tests := []struct {
		name  string
		req   KlinesRequest
		times []int64
	}{
		{"inclusive start", KlinesRequest{Start: jan2}, []int64{jan2, jan3}},
		{"inclusive end", KlinesRequest{End: jan2}, []int64{jan1, jan2}},
		{"both bounds", KlinesRequest{Start: jan2, End: jan2}, []int64{jan2}},
		{"tail limit", KlinesRequest{Limit: 2}, []int64{jan2, jan3}},
		{"limit larger than data", KlinesRequest{Limit: 50}, []int64{jan1, jan2, jan3}},
		{"non-positive limit keeps all", KlinesRequest{Limit: -1}, []int64{jan1, jan2, jan3}},
		{"empty window", KlinesRequest{Start: jan3 + 1}, []int64{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bars, err := client.GetKlines(ctx, tt.req)
			require.NoError(t, err)
			got := make([]int64, 0, len(bars))
			for _, b := range bars {
				got = append(got, b.Time)
			}
			assert.Equal(t, tt.times, got)
		})
	}
}

func TestGetKlines_DatasetCachedAsWhole(t *testing.T) {
	srv, hits := newServer(t, http.StatusOK, dataset)
	mem := cache.NewMemoryCache()
	client, err := New(Config{BaseURL: srv.URL, Cache: mem, Logger: ports.NopLogger{}})
	require.NoError(t, err)
	ctx := context.Background()

	_, err = client.GetKlines(ctx, KlinesRequest{Limit: 1})
	require.NoError(t, err)
	_, err = client.GetKlines(ctx, KlinesRequest{Start: jan2})
	require.NoError(t, err)
	_, err = client.GetLatestPrice(ctx, true)
	require.NoError(t, err)

	assert.Equal(t, int32(1), hits.Load())
	raw, ok, err := mem.Get(ctx, DatasetCacheKey)
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, dataset, string(raw))

	_, err = client.GetKlines(ctx, KlinesRequest{NoCache: true})
	require.NoError(t, err)
	assert.Equal(t, int32(2), hits.Load())
}

func TestGetKlines_NonDailyIntervalStillServed(t *testing.T) {
	srv, _ := newServer(t, http.StatusOK, dataset)
	client := newTestClient(t, srv.URL)

	bars, err := client.GetKlines(context.Background(), KlinesRequest{Interval: "1h"})
	require.NoError(t, err)
	assert.Len(t, bars, 3)
}

func TestGetKlines_RepeatedDateKeepsLastPoint(t *testing.T) {
	srv, _ := newServer(t, http.StatusOK, `[
		{"date":"2024-01-02","price":2058.2},
		{"date":"2024-01-01","price":2063.7},
		{"date":"2024-01-02","price":2060.0},
		{"date":"2024-01-01T00:00:00Z","price":2064.1}
	]`)
	client := newTestClient(t, srv.URL)

	bars, err := client.GetKlines(context.Background(), KlinesRequest{})
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.Equal(t, jan1, bars[0].Time)
	assert.Equal(t, 2064.1, bars[0].Close)
	assert.Equal(t, jan2, bars[1].Time)
	assert.Equal(t, 2060.0, bars[1].Close)

	price, err := client.GetLatestPrice(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, 2060.0, price)
}

func TestGetLatestPrice_MostRecentDate(t *testing.T) {
	srv, _ := newServer(t, http.StatusOK, dataset)
	client := newTestClient(t, srv.URL)

	price, err := client.GetLatestPrice(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, 2041.5, price)
}

func TestClient_Errors(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantStatus int
		wantIs     error
	}{
		{"server error", http.StatusInternalServerError, "boom", 500, ports.ErrConnectionFailed},
		{"not found", http.StatusNotFound, "", 404, ports.ErrNotFound},
		{"non-json body", http.StatusOK, "<html></html>", 0, nil},
		{"object instead of list", http.StatusOK, `{"error":"maintenance"}`, 0, nil},
		{"empty dataset", http.StatusOK, `[]`, 0, ports.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newServer(t, tt.status, tt.body)
			client := newTestClient(t, srv.URL)

			_, err := client.GetLatestPrice(context.Background(), true)
			require.Error(t, err)
			assert.ErrorIs(t, err, ports.ErrUpstreamAPI)
			var upErr *ports.UpstreamAPIError
			require.ErrorAs(t, err, &upErr)
			assert.Equal(t, "freegold", upErr.Vendor)
			assert.Equal(t, tt.wantStatus, upErr.StatusCode)
			if tt.wantIs != nil {
				assert.ErrorIs(t, err, tt.wantIs)
			}
		})
	}
}

func TestClient_NetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()
	client := newTestClient(t, url)

	_, err := client.GetKlines(context.Background(), KlinesRequest{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ports.ErrUpstreamAPI)
	assert.ErrorIs(t, err, ports.ErrConnectionFailed)
}

func TestClient_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()
	client, err := New(Config{
		BaseURL: srv.URL,
		Timeout: 50 * time.Millisecond,
		Cache:   cache.NewMemoryCache(),
		Logger:  ports.NopLogger{},
	})
	require.NoError(t, err)

	_, err = client.GetKlines(context.Background(), KlinesRequest{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ports.ErrTimeout)
}
