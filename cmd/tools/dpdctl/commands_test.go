package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cameronsims/DynamicPopulationDensity/internal/httputil"
)

func fakeServer(t *testing.T) (*httputil.Client, *http.Request) {
	t.Helper()
	var last http.Request
	mux := http.NewServeMux()
	mux.HandleFunc("/api/compaction/status", func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSONOK(w, map[string]any{"enabled": true, "is_healthy": true, "interval": "30m0s", "run_count": 3})
	})
	mux.HandleFunc("/api/compaction/run", func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSON(w, http.StatusAccepted, map[string]bool{"triggered": true})
	})
	mux.HandleFunc("/api/compaction/enabled", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		last = *r
		httputil.WriteJSONOK(w, map[string]any{"enabled": r.PostForm.Get("enabled") == "true"})
	})
	mux.HandleFunc("/api/compaction/runs", func(w http.ResponseWriter, r *http.Request) {
		last = *r
		httputil.WriteJSONOK(w, []map[string]any{{"run_id": "r1", "trigger": "manual", "records_read": 10, "densities_written": 2}})
	})
	mux.HandleFunc("/api/summary", func(w http.ResponseWriter, r *http.Request) {
		last = *r
		if r.URL.Query().Get("from") == "bad" {
			httputil.BadRequest(w, "invalid from")
			return
		}
		httputil.WriteJSONOK(w, []map[string]any{{"location_id": "lib", "buckets": 4, "mean_humans": 2.5, "max_humans": 4, "p90_humans": 4, "total_devices": 30}})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return httputil.NewClient(srv.URL, srv.Client()), &last
}

func TestRunCommands(t *testing.T) {
	c, last := fakeServer(t)
	ctx := context.Background()

	var out bytes.Buffer
	require.NoError(t, run(ctx, c, []string{"status"}, &out))
	assert.Contains(t, out.String(), "enabled:   true")
	assert.Contains(t, out.String(), "runs:      3")

	out.Reset()
	require.NoError(t, run(ctx, c, []string{"run"}, &out))
	assert.Equal(t, "compaction pass queued\n", out.String())

	out.Reset()
	require.NoError(t, run(ctx, c, []string{"disable"}, &out))
	assert.Equal(t, "false", last.PostForm.Get("enabled"))
	assert.Contains(t, out.String(), "enabled:   false")

	out.Reset()
	require.NoError(t, run(ctx, c, []string{"runs", "5"}, &out))
	assert.Equal(t, "5", last.URL.Query().Get("limit"))
	assert.Contains(t, out.String(), "r1")

	out.Reset()
	require.NoError(t, run(ctx, c, []string{"summary", "2025-03-10", "2025-03-11"}, &out))
	assert.Equal(t, "2025-03-11", last.URL.Query().Get("to"))
	assert.Contains(t, out.String(), "lib")
	assert.Contains(t, out.String(), "2.5")
}

func TestRunErrors(t *testing.T) {
	c, _ := fakeServer(t)
	ctx := context.Background()
	var out bytes.Buffer

	assert.ErrorIs(t, run(ctx, c, nil, &out), errUsage)
	assert.ErrorIs(t, run(ctx, c, []string{"frobnicate"}, &out), errUsage)

	err := run(ctx, c, []string{"summary", "bad"}, &out)
	var serr *httputil.StatusError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, http.StatusBadRequest, serr.Code)
	assert.Equal(t, "invalid from", serr.Message)
}
