package compaction

import (
	"context"
	"sync"
	"time"

	"github.com/cameronsims/DynamicPopulationDensity/internal/monitoring"
	"github.com/cameronsims/DynamicPopulationDensity/internal/timeutil"
)

// Runner is the part of Worker the controller drives.
type Runner interface {
	RunOnce(ctx context.Context, trigger string) (Report, error)
}

// Controller schedules compaction passes and exposes their status. Only one
// pass runs at a time; manual triggers arriving while one is pending are
// coalesced.
type Controller struct {
	runner        Runner
	interval      time.Duration
	clock         timeutil.Clock
	enabled       bool
	mu            sync.RWMutex
	manualTrigger chan struct{}

	lastRunAt    time.Time
	lastRunError error
	runCount     int64
	currentRun   *RunInfo
	lastRun      *RunInfo
}

// RunInfo captures details about a single pass.
type RunInfo struct {
	RunID            string    `json:"run_id,omitempty"`
	Trigger          string    `json:"trigger,omitempty"`
	StartedAt        time.Time `json:"started_at"`
	FinishedAt       time.Time `json:"finished_at,omitempty"`
	DurationMs       int64     `json:"duration_ms,omitempty"`
	RecordsRead      int       `json:"records_read"`
	DensitiesWritten int       `json:"densities_written"`
	Error            string    `json:"error,omitempty"`
}

// Status is the externally visible state of the controller.
type Status struct {
	Enabled      bool      `json:"enabled"`
	Interval     string    `json:"interval"`
	LastRunAt    time.Time `json:"last_run_at"`
	LastRunError string    `json:"last_run_error,omitempty"`
	RunCount     int64     `json:"run_count"`
	IsHealthy    bool      `json:"is_healthy"`
	CurrentRun   *RunInfo  `json:"current_run,omitempty"`
	LastRun      *RunInfo  `json:"last_run,omitempty"`
}

// NewController creates an enabled controller for runner.
func NewController(runner Runner, interval time.Duration, clock timeutil.Clock) *Controller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Controller{
		runner:        runner,
		interval:      interval,
		clock:         clock,
		enabled:       true,
		manualTrigger: make(chan struct{}, 1),
	}
}

// IsEnabled reports whether scheduled and manual passes run.
func (c *Controller) IsEnabled() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.enabled
}

// SetEnabled turns passes on or off. Enabling triggers an immediate pass.
func (c *Controller) SetEnabled(enabled bool) {
	c.mu.Lock()
	c.enabled = enabled
	c.mu.Unlock()
	if enabled {
		c.TriggerManualRun()
	}
}

// TriggerManualRun requests a pass. It never blocks; it reports false when a
// request is already pending.
func (c *Controller) TriggerManualRun() bool {
	select {
	case c.manualTrigger <- struct{}{}:
		return true
	default:
		monitoring.Logf("compaction manual trigger skipped (already pending)")
		return false
	}
}

// Status returns a snapshot of the controller state. The controller is
// unhealthy after a failed pass or when no pass finished within two
// intervals.
func (c *Controller) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()

	st := Status{
		Enabled:   c.enabled,
		Interval:  c.interval.String(),
		LastRunAt: c.lastRunAt,
		RunCount:  c.runCount,
		IsHealthy: true,
	}
	if c.lastRunError != nil {
		st.LastRunError = c.lastRunError.Error()
		st.IsHealthy = false
	}
	if c.currentRun != nil {
		run := *c.currentRun
		st.CurrentRun = &run
	}
	if c.lastRun != nil {
		run := *c.lastRun
		st.LastRun = &run
	}
	if c.enabled && !c.lastRunAt.IsZero() && c.clock.Since(c.lastRunAt) > 2*c.interval {
		st.IsHealthy = false
	}
	return st
}

// Healthy is Status().IsHealthy.
func (c *Controller) Healthy() bool {
	return c.Status().IsHealthy
}

func (c *Controller) startRun(trigger string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.currentRun = &RunInfo{Trigger: trigger, StartedAt: c.clock.Now()}
}

func (c *Controller) finishRun(rep Report, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	run := c.currentRun
	if run == nil {
		run = &RunInfo{Trigger: rep.Trigger, StartedAt: now}
	}
	run.RunID = rep.RunID
	run.FinishedAt = now
	run.DurationMs = now.Sub(run.StartedAt).Milliseconds()
	run.RecordsRead = rep.RecordsRead
	run.DensitiesWritten = rep.Written
	if err != nil {
		run.Error = err.Error()
	}

	c.lastRun = run
	c.currentRun = nil
	c.lastRunAt = now
	c.lastRunError = err
	c.runCount++
}

func (c *Controller) runPass(ctx context.Context, trigger string) {
	if !c.IsEnabled() {
		monitoring.Logf("compaction %s pass skipped (disabled)", trigger)
		return
	}
	c.startRun(trigger)
	rep, err := c.runner.RunOnce(ctx, trigger)
	c.finishRun(rep, err)
	if err != nil {
		monitoring.Logf("compaction %s pass error: %v", trigger, err)
	}
}

// Run executes a pass immediately, then on every tick and manual trigger,
// until ctx is cancelled. Pass errors are logged and retried on the next
// tick. It returns ctx.Err().
func (c *Controller) Run(ctx context.Context) error {
	ticker := c.clock.NewTicker(c.interval)
	defer ticker.Stop()
	monitoring.Logf("compaction loop started: enabled=%t interval=%s", c.IsEnabled(), c.interval)

	c.runPass(ctx, "initial")
	for {
		select {
		case <-ticker.C():
			c.runPass(ctx, "periodic")
		case <-c.manualTrigger:
			c.runPass(ctx, "manual")
		case <-ctx.Done():
			monitoring.Logf("compaction loop terminated")
			return ctx.Err()
		}
	}
}
