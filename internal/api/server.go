// Package api serves stored density data, node state and compaction
// controls over HTTP.
package api

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"gonum.org/v1/plot/vg"

	"github.com/cameronsims/DynamicPopulationDensity/internal/compaction"
	"github.com/cameronsims/DynamicPopulationDensity/internal/db"
	"github.com/cameronsims/DynamicPopulationDensity/internal/density"
	"github.com/cameronsims/DynamicPopulationDensity/internal/graph"
	"github.com/cameronsims/DynamicPopulationDensity/internal/httputil"
)

// Store is the read side of the database.
type Store interface {
	FindDensities(ctx context.Context, f db.DensityFilter) ([]density.DensityRecord, error)
	ListNodes(ctx context.Context) ([]density.Node, error)
	ListLocations(ctx context.Context) ([]density.Location, error)
	LatestNodeEvents(ctx context.Context) ([]density.NodeEvent, error)
	RecentCompactionRuns(ctx context.Context, limit int) ([]db.CompactionRun, error)
}

// Compaction is the control surface of compaction.Controller.
type Compaction interface {
	Status() compaction.Status
	TriggerManualRun() bool
	SetEnabled(bool)
}

// Server holds the handlers. A nil Compaction disables the compaction
// endpoints.
type Server struct {
	store      Store
	compaction Compaction
	loc        *time.Location
}

// NewServer returns a server reading from store. Query times without a zone
// are interpreted in loc.
func NewServer(store Store, c Compaction, loc *time.Location) *Server {
	if loc == nil {
		loc = time.Local
	}
	return &Server{store: store, compaction: c, loc: loc}
}

// ServeMux routes every endpoint.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/densities", s.listDensities)
	mux.HandleFunc("/api/nodes", s.listNodes)
	mux.HandleFunc("/api/locations", s.listLocations)
	mux.HandleFunc("/api/node_events", s.listNodeEvents)
	mux.HandleFunc("/api/summary", s.showSummary)
	mux.HandleFunc("/api/charts/density", s.densityChart)
	mux.HandleFunc("/api/charts/nodes.png", s.nodeActivityChart)
	mux.HandleFunc("/api/compaction/status", s.compactionStatus)
	mux.HandleFunc("/api/compaction/run", s.compactionRun)
	mux.HandleFunc("/api/compaction/enabled", s.compactionEnabled)
	mux.HandleFunc("/api/compaction/runs", s.compactionRuns)
	return mux
}

var queryTimeLayouts = []string{time.RFC3339, "2006-01-02T15:04", "2006-01-02 15:04", "2006-01-02"}

func (s *Server) parseQueryTime(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	if secs, err := strconv.ParseInt(v, 10, 64); err == nil {
		return time.Unix(secs, 0).In(s.loc), nil
	}
	for _, layout := range queryTimeLayouts {
		if t, err := time.ParseInLocation(layout, v, s.loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised time %q", v)
}

func (s *Server) densityFilter(r *http.Request) (db.DensityFilter, error) {
	q := r.URL.Query()
	f := db.DensityFilter{NodeID: q.Get("node_id"), LocationID: q.Get("location_id")}
	var err error
	if f.From, err = s.parseQueryTime(q.Get("from")); err != nil {
		return f, fmt.Errorf("from: %w", err)
	}
	if f.To, err = s.parseQueryTime(q.Get("to")); err != nil {
		return f, fmt.Errorf("to: %w", err)
	}
	if !f.From.IsZero() && !f.To.IsZero() && !f.From.Before(f.To) {
		return f, fmt.Errorf("from must be before to")
	}
	if l := q.Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n < 0 {
			return f, fmt.Errorf("limit must be a non-negative integer")
		}
		f.Limit = n
	}
	return f, nil
}

func (s *Server) findDensities(w http.ResponseWriter, r *http.Request) ([]density.DensityRecord, bool) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return nil, false
	}
	f, err := s.densityFilter(r)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return nil, false
	}
	recs, err := s.store.FindDensities(r.Context(), f)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to query densities: %v", err))
		return nil, false
	}
	if recs == nil {
		recs = []density.DensityRecord{}
	}
	return recs, true
}

func (s *Server) listDensities(w http.ResponseWriter, r *http.Request) {
	if recs, ok := s.findDensities(w, r); ok {
		httputil.WriteJSONOK(w, recs)
	}
}

func (s *Server) showSummary(w http.ResponseWriter, r *http.Request) {
	if recs, ok := s.findDensities(w, r); ok {
		httputil.WriteJSONOK(w, graph.Summarize(recs))
	}
}

func (s *Server) densityChart(w http.ResponseWriter, r *http.Request) {
	recs, ok := s.findDensities(w, r)
	if !ok {
		return
	}
	title := "Estimated occupancy"
	if loc := r.URL.Query().Get("location_id"); loc != "" {
		title += " at " + loc
	}
	var buf bytes.Buffer
	if err := graph.DensityLine(&buf, recs, title); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("render error: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) nodeActivityChart(w http.ResponseWriter, r *http.Request) {
	recs, ok := s.findDensities(w, r)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := graph.NodeActivityPNG(&buf, recs, 8*vg.Inch, 4*vg.Inch); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("render error: %v", err))
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(buf.Bytes())
}

func writeList[T any](w http.ResponseWriter, r *http.Request, what string, list func(context.Context) ([]T, error)) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	items, err := list(r.Context())
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to list %s: %v", what, err))
		return
	}
	if items == nil {
		items = []T{}
	}
	httputil.WriteJSONOK(w, items)
}

func (s *Server) listNodes(w http.ResponseWriter, r *http.Request) {
	writeList(w, r, "nodes", s.store.ListNodes)
}

func (s *Server) listLocations(w http.ResponseWriter, r *http.Request) {
	writeList(w, r, "locations", s.store.ListLocations)
}

func (s *Server) listNodeEvents(w http.ResponseWriter, r *http.Request) {
	writeList(w, r, "node events", s.store.LatestNodeEvents)
}

func (s *Server) compactionRuns(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if l := r.URL.Query().Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n <= 0 {
			httputil.BadRequest(w, "limit must be a positive integer")
			return
		}
		limit = n
	}
	writeList(w, r, "compaction runs", func(ctx context.Context) ([]db.CompactionRun, error) {
		return s.store.RecentCompactionRuns(ctx, limit)
	})
}

func (s *Server) requireCompaction(w http.ResponseWriter) bool {
	if s.compaction == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "compaction is not running in this process")
		return false
	}
	return true
}

func (s *Server) compactionStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.requireCompaction(w) {
		httputil.WriteJSONOK(w, s.compaction.Status())
	}
}

func (s *Server) compactionRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	if !s.requireCompaction(w) {
		return
	}
	if !s.compaction.Status().Enabled {
		httputil.WriteJSONError(w, http.StatusConflict, "compaction is disabled")
		return
	}
	triggered := s.compaction.TriggerManualRun()
	httputil.WriteJSON(w, http.StatusAccepted, map[string]bool{"triggered": triggered})
}

func (s *Server) compactionEnabled(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	if !s.requireCompaction(w) {
		return
	}
	enabled, err := strconv.ParseBool(strings.TrimSpace(r.FormValue("enabled")))
	if err != nil {
		httputil.BadRequest(w, "enabled must be true or false")
		return
	}
	s.compaction.SetEnabled(enabled)
	httputil.WriteJSONOK(w, s.compaction.Status())
}
