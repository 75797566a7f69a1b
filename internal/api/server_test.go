package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cameronsims/DynamicPopulationDensity/internal/compaction"
	"github.com/cameronsims/DynamicPopulationDensity/internal/db"
	"github.com/cameronsims/DynamicPopulationDensity/internal/density"
	"github.com/cameronsims/DynamicPopulationDensity/internal/testutil"
)

type fakeStore struct {
	densities []density.DensityRecord
	filter    db.DensityFilter
	runLimit  int
	err       error
}

func (f *fakeStore) FindDensities(_ context.Context, fl db.DensityFilter) ([]density.DensityRecord, error) {
	f.filter = fl
	return f.densities, f.err
}

func (f *fakeStore) ListNodes(context.Context) ([]density.Node, error) {
	return []density.Node{{ID: "n1", LocationID: "lib"}}, f.err
}

func (f *fakeStore) ListLocations(context.Context) ([]density.Location, error) {
	return nil, f.err
}

func (f *fakeStore) LatestNodeEvents(context.Context) ([]density.NodeEvent, error) {
	return []density.NodeEvent{{NodeID: "n1", IsPowered: true}}, f.err
}

func (f *fakeStore) RecentCompactionRuns(_ context.Context, limit int) ([]db.CompactionRun, error) {
	f.runLimit = limit
	return []db.CompactionRun{{RunID: "r1", Trigger: "manual"}}, f.err
}

type fakeCompaction struct {
	enabled  bool
	triggers int
}

func (f *fakeCompaction) Status() compaction.Status {
	return compaction.Status{Enabled: f.enabled, Interval: "30m0s", IsHealthy: true}
}

func (f *fakeCompaction) TriggerManualRun() bool {
	f.triggers++
	return f.triggers == 1
}

func (f *fakeCompaction) SetEnabled(e bool) { f.enabled = e }

var perth = func() *time.Location {
	loc, err := time.LoadLocation("Australia/Perth")
	if err != nil {
		panic(err)
	}
	return loc
}()

func sampleDensities() []density.DensityRecord {
	at := time.Date(2025, 3, 10, 10, 0, 0, 0, perth)
	return []density.DensityRecord{
		{Timestamp: at, LocationID: "lib", NodeID: "n1", TotalEstimatedDevices: 6, TotalEstimatedHumans: 2, EstimationFactor: 3},
		{Timestamp: at.Add(30 * time.Minute), LocationID: "lib", NodeID: "n1", TotalEstimatedDevices: 3, TotalEstimatedHumans: 1, EstimationFactor: 3},
	}
}

func serve(t *testing.T, h http.Handler, method, target string, body url.Values) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, target, strings.NewReader(body.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestListDensities(t *testing.T) {
	store := &fakeStore{densities: sampleDensities()}
	mux := NewServer(store, nil, perth).ServeMux()

	rec := serve(t, mux, "GET", "/api/densities?node_id=n1&location_id=lib&from=2025-03-10+10:00&to=2025-03-10T11:00:00%2B08:00&limit=5", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	assert.Equal(t, "n1", store.filter.NodeID)
	assert.Equal(t, "lib", store.filter.LocationID)
	assert.Equal(t, 5, store.filter.Limit)
	assert.True(t, store.filter.From.Equal(time.Date(2025, 3, 10, 10, 0, 0, 0, perth)), store.filter.From)
	assert.True(t, store.filter.To.Equal(time.Date(2025, 3, 10, 11, 0, 0, 0, perth)), store.filter.To)

	var got []map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 2)
	assert.Equal(t, "n1", got[0]["node_id"])
	assert.EqualValues(t, 2, got[0]["total_estimated_humans"])
	assert.EqualValues(t, 3, got[0]["estimation_factors"])
}

func TestListDensitiesEmptyIsArray(t *testing.T) {
	mux := NewServer(&fakeStore{}, nil, perth).ServeMux()
	rec := serve(t, mux, "GET", "/api/densities", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = serve(t, mux, "GET", "/api/locations", nil)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestDensityQueryErrors(t *testing.T) {
	mux := NewServer(&fakeStore{}, nil, perth).ServeMux()
	for _, q := range []string{
		"from=yesterday",
		"to=10:00",
		"limit=-1",
		"limit=ten",
		"from=2025-03-10&to=2025-03-09",
	} {
		rec := serve(t, mux, "GET", "/api/densities?"+q, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
	}
	assert.Equal(t, http.StatusMethodNotAllowed, serve(t, mux, "POST", "/api/densities", nil).Code)

	failing := NewServer(&fakeStore{err: errors.New("disk")}, nil, perth).ServeMux()
	for _, path := range []string{"/api/densities", "/api/nodes", "/api/node_events", "/api/compaction/runs"} {
		assert.Equal(t, http.StatusInternalServerError, serve(t, failing, "GET", path, nil).Code, path)
	}
}

func TestUnixQueryTime(t *testing.T) {
	store := &fakeStore{}
	mux := NewServer(store, nil, perth).ServeMux()
	rec := serve(t, mux, "GET", "/api/densities?from=1741572000", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(1741572000), store.filter.From.Unix())
	assert.Same(t, perth, store.filter.From.Location())
}

func TestNodesAndEvents(t *testing.T) {
	mux := NewServer(&fakeStore{}, nil, perth).ServeMux()

	rec := serve(t, mux, "GET", "/api/nodes", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"node_id":"n1"`)

	rec = serve(t, mux, "GET", "/api/node_events", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"is_powered":true`)
}

func TestSummaryAndCharts(t *testing.T) {
	mux := NewServer(&fakeStore{densities: sampleDensities()}, nil, perth).ServeMux()

	rec := serve(t, mux, "GET", "/api/summary", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var summary []map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	require.Len(t, summary, 1)
	assert.Equal(t, "lib", summary[0]["location_id"])
	assert.EqualValues(t, 1.5, summary[0]["mean_humans"])

	rec = serve(t, mux, "GET", "/api/charts/density?location_id=lib", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "Estimated occupancy at lib")

	rec = serve(t, mux, "GET", "/api/charts/nodes.png", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(rec.Body.String(), "\x89PNG"))
}

func TestCompactionEndpoints(t *testing.T) {
	store := &fakeStore{}
	c := &fakeCompaction{enabled: true}
	mux := NewServer(store, c, perth).ServeMux()

	rec := serve(t, mux, "GET", "/api/compaction/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"enabled":true`)

	rec = serve(t, mux, "POST", "/api/compaction/run", nil)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.JSONEq(t, `{"triggered":true}`, rec.Body.String())
	rec = serve(t, mux, "POST", "/api/compaction/run", nil)
	assert.JSONEq(t, `{"triggered":false}`, rec.Body.String())
	assert.Equal(t, http.StatusMethodNotAllowed, serve(t, mux, "GET", "/api/compaction/run", nil).Code)

	rec = serve(t, mux, "POST", "/api/compaction/enabled", url.Values{"enabled": {"false"}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, c.enabled)
	assert.Equal(t, http.StatusConflict, serve(t, mux, "POST", "/api/compaction/run", nil).Code)
	assert.Equal(t, http.StatusBadRequest, serve(t, mux, "POST", "/api/compaction/enabled", url.Values{"enabled": {"maybe"}}).Code)

	rec = serve(t, mux, "GET", "/api/compaction/runs?limit=3", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 3, store.runLimit)
	assert.Contains(t, rec.Body.String(), "r1")
	assert.Equal(t, http.StatusBadRequest, serve(t, mux, "GET", "/api/compaction/runs?limit=0", nil).Code)
}

func TestCompactionUnavailable(t *testing.T) {
	mux := NewServer(&fakeStore{}, nil, perth).ServeMux()
	assert.Equal(t, http.StatusServiceUnavailable, serve(t, mux, "GET", "/api/compaction/status", nil).Code)
	assert.Equal(t, http.StatusServiceUnavailable, serve(t, mux, "POST", "/api/compaction/run", nil).Code)
}

func TestLoggingMiddleware(t *testing.T) {
	h := LoggingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := serve(t, h, "GET", "/x", nil)
	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Contains(t, statusCodeColor(200), "200")
	assert.Equal(t, "101", statusCodeColor(101))
}

func TestServerAgainstSQLite(t *testing.T) {
	ctx := context.Background()
	loc := testutil.Perth(t)
	store := testutil.NewDB(t, loc)
	testutil.Seed(t, store,
		[]density.Location{{ID: "lib", Name: "Library"}},
		[]density.Node{{ID: "n1", LocationID: "lib"}, {ID: "n2", LocationID: "lib"}},
	)
	at := time.Date(2025, 3, 10, 10, 0, 0, 0, loc)
	_, err := store.UpsertDensities(ctx, []density.DensityRecord{
		density.NewDensityRecord(at, density.Node{ID: "n1", LocationID: "lib"}, 9, 3),
		density.NewDensityRecord(at, density.Node{ID: "n2", LocationID: "lib"}, 3, 3),
		density.NewDensityRecord(at.Add(30*time.Minute), density.Node{ID: "n1", LocationID: "lib"}, 6, 3),
	})
	require.NoError(t, err)

	mux := NewServer(store, nil, loc).ServeMux()

	rec := serve(t, mux, "GET", "/api/densities?node_id=n1&from=2025-03-10+10:15", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var recs []density.DensityRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &recs))
	require.Len(t, recs, 1)
	assert.Equal(t, 2, recs[0].TotalEstimatedHumans)

	rec = serve(t, mux, "GET", "/api/summary?location_id=lib", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[{"location_id":"lib","buckets":2,"mean_humans":3,"max_humans":4,"p90_humans":4,"total_devices":18}]`, rec.Body.String())
}
