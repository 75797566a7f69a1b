// Package compaction runs the periodic pass that turns held detections into
// stored density records and then clears what it consumed.
package compaction

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/cameronsims/DynamicPopulationDensity/internal/db"
	"github.com/cameronsims/DynamicPopulationDensity/internal/density"
	"github.com/cameronsims/DynamicPopulationDensity/internal/monitoring"
	"github.com/cameronsims/DynamicPopulationDensity/internal/timeutil"
)

// Error kinds of a failed pass. Every error returned by RunOnce other than a
// context error wraps exactly one of these.
var (
	ErrNodeLookup   = errors.New("node lookup failed")
	ErrReadWindow   = errors.New("reading detection window failed")
	ErrWriteResults = errors.New("writing density results failed")
	ErrClearWindow  = errors.New("clearing detection window failed")
)

// DetectionStore is the detection holding store.
type DetectionStore interface {
	DetectionSnapshot(ctx context.Context) (density.Snapshot, error)
	DeleteDetectionsThrough(ctx context.Context, highWater int64) (int64, error)
}

// DensityStore persists compacted records.
type DensityStore interface {
	UpsertDensities(ctx context.Context, recs []density.DensityRecord) (int, error)
}

// NodeLister supplies node metadata.
type NodeLister interface {
	ListNodes(ctx context.Context) ([]density.Node, error)
}

// RunRecorder keeps a history of passes.
type RunRecorder interface {
	RecordCompactionRun(ctx context.Context, run db.CompactionRun) error
}

// Worker performs one compaction pass per RunOnce call.
type Worker struct {
	Detections DetectionStore
	Densities  DensityStore
	Nodes      NodeLister
	Runs       RunRecorder // optional

	Options  density.Options
	Interval time.Duration
	// Persist writes results to Densities. When false the pass only logs.
	Persist bool
	// ClearAfter removes consumed detections once results are written.
	ClearAfter bool

	Clock timeutil.Clock
}

// DefaultInterval matches the bucket width so each pass closes one bucket.
const DefaultInterval = density.BucketWidth

// NewWorker returns a worker that persists and clears, backed by a single
// SQLite store.
func NewWorker(store *db.DB, opts density.Options) *Worker {
	return &Worker{
		Detections: store,
		Densities:  store,
		Nodes:      store,
		Runs:       store,
		Options:    opts,
		Interval:   DefaultInterval,
		Persist:    true,
		ClearAfter: true,
		Clock:      timeutil.RealClock{},
	}
}

// Report summarises a pass.
type Report struct {
	RunID   string
	Trigger string
	Started time.Time
	density.Result
	Written int
	Cleared int64
}

func (w *Worker) clock() timeutil.Clock {
	if w.Clock == nil {
		return timeutil.RealClock{}
	}
	return w.Clock
}

// RunOnce executes one pass: list nodes, snapshot the holding store,
// aggregate, upsert results and clear the consumed records. A failed write
// leaves the holding store untouched so the next pass retries the same
// detections.
func (w *Worker) RunOnce(ctx context.Context, trigger string) (rep Report, err error) {
	rep = Report{RunID: uuid.NewString(), Trigger: trigger, Started: w.clock().Now()}
	if err := ctx.Err(); err != nil {
		return rep, err
	}
	defer func() { w.recordRun(ctx, rep, err) }()

	nodes, err := w.Nodes.ListNodes(ctx)
	if err != nil {
		return rep, fmt.Errorf("%w: %w", ErrNodeLookup, err)
	}
	snap, err := w.Detections.DetectionSnapshot(ctx)
	if err != nil {
		return rep, fmt.Errorf("%w: %w", ErrReadWindow, err)
	}
	if len(snap.Records) == 0 {
		monitoring.Warnf("compaction %s: no detections in holding store", rep.RunID)
		return rep, nil
	}

	rep.Result = density.Aggregate(snap.Records, w.Options, density.NewNodeDirectory(nodes))
	for _, id := range rep.UnresolvedNodes {
		monitoring.Warnf("compaction %s: detections from unknown node %s skipped", rep.RunID, id)
	}

	if err := ctx.Err(); err != nil {
		return rep, err
	}

	if w.Persist && len(rep.Densities) > 0 {
		rep.Written, err = w.Densities.UpsertDensities(ctx, rep.Densities)
		if err != nil {
			return rep, fmt.Errorf("%w: %w", ErrWriteResults, err)
		}
	}

	if w.ClearAfter {
		rep.Cleared, err = w.Detections.DeleteDetectionsThrough(ctx, snap.HighWater)
		if err != nil {
			return rep, fmt.Errorf("%w: %w", ErrClearWindow, err)
		}
	}

	monitoring.Logf("compaction %s (%s): read=%d indexed=%d suspicious=%d densities=%d written=%d cleared=%d",
		rep.RunID, trigger, rep.RecordsRead, rep.RecordsIndexed, len(rep.Classification.Suspicious),
		len(rep.Densities), rep.Written, rep.Cleared)
	return rep, nil
}

func (w *Worker) recordRun(ctx context.Context, rep Report, runErr error) {
	if w.Runs == nil {
		return
	}
	run := db.CompactionRun{
		RunID:             rep.RunID,
		Trigger:           rep.Trigger,
		StartedAt:         rep.Started,
		FinishedAt:        w.clock().Now(),
		RecordsRead:       rep.RecordsRead,
		DensitiesWritten:  rep.Written,
		SuspiciousDevices: len(rep.Classification.Suspicious),
		RecordsCleared:    rep.Cleared,
	}
	if runErr != nil {
		run.Error = runErr.Error()
	}
	if err := w.Runs.RecordCompactionRun(context.WithoutCancel(ctx), run); err != nil {
		monitoring.Logf("compaction %s: failed to record run: %v", rep.RunID, err)
	}
}
