package capture

import (
	"context"
	"fmt"
	"time"

	"github.com/cameronsims/DynamicPopulationDensity/internal/density"
	"github.com/cameronsims/DynamicPopulationDensity/internal/monitoring"
	"github.com/cameronsims/DynamicPopulationDensity/internal/timeutil"
)

// BatchSink receives each flushed batch. Implementations write to the
// database directly or publish to the broker.
type BatchSink interface {
	Deliver(ctx context.Context, b Batch) error
}

// BatchSinkFunc adapts a function to BatchSink.
type BatchSinkFunc func(ctx context.Context, b Batch) error

func (f BatchSinkFunc) Deliver(ctx context.Context, b Batch) error { return f(ctx, b) }

// Loop drives a Source into a Sniffer and flushes on a fixed interval.
type Loop struct {
	Source   Source
	Sniffer  *Sniffer
	Sink     BatchSink
	Interval time.Duration
	// MaxLoops stops the loop after that many flushes. Negative runs until
	// ctx is cancelled or the source ends.
	MaxLoops int
	Clock    timeutil.Clock
}

// Run reads from the source until ctx is done, the source ends, or MaxLoops
// flushes have happened. Whatever is pending when the loop stops is flushed
// once more. A delivery failure is logged and the loop carries on; the
// batch is lost.
func (l *Loop) Run(ctx context.Context) error {
	if l.MaxLoops == 0 {
		return nil
	}
	clock := l.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	interval := l.Interval
	if interval <= 0 {
		return fmt.Errorf("capture loop interval must be positive, got %s", interval)
	}

	srcCtx, stopSource := context.WithCancel(ctx)
	defer stopSource()
	srcDone := make(chan error, 1)
	go func() { srcDone <- l.Source.Run(srcCtx, func(o Observation) { l.Sniffer.Observe(o) }) }()

	ticker := clock.NewTicker(interval)
	defer ticker.Stop()

	loops := 0
	for {
		select {
		case <-ticker.C():
			l.flush(ctx, clock.Now())
			loops++
			if l.MaxLoops > 0 && loops >= l.MaxLoops {
				monitoring.Logf("capture loop reached max_loops=%d", l.MaxLoops)
				return nil
			}
		case err := <-srcDone:
			l.flush(context.WithoutCancel(ctx), clock.Now())
			if err != nil && ctx.Err() == nil {
				return fmt.Errorf("capture source: %w", err)
			}
			return ctx.Err()
		case <-ctx.Done():
			stopSource()
			<-srcDone
			l.flush(context.WithoutCancel(ctx), clock.Now())
			return ctx.Err()
		}
	}
}

func (l *Loop) flush(ctx context.Context, now time.Time) {
	b := l.Sniffer.Flush(now)
	if err := l.Sink.Deliver(ctx, b); err != nil {
		monitoring.Warnf("deliver batch of %d detections: %v", len(b.Detections), err)
	}
}

// DetectionWriter stores detection records.
type DetectionWriter interface {
	InsertDetections(ctx context.Context, recs []density.DetectionRecord) error
}

// EventWriter stores node heartbeats.
type EventWriter interface {
	RecordNodeEvent(ctx context.Context, ev density.NodeEvent) error
}

// StoreSink writes batches straight into the holding store. It is used when
// a node runs with insert_into_db on the same host as the server.
type StoreSink struct {
	Detections DetectionWriter
	Events     EventWriter // optional
}

func (s StoreSink) Deliver(ctx context.Context, b Batch) error {
	if len(b.Detections) > 0 {
		if err := s.Detections.InsertDetections(ctx, b.Detections); err != nil {
			return err
		}
	}
	if s.Events == nil {
		return nil
	}
	return s.Events.RecordNodeEvent(ctx, b.Event)
}
