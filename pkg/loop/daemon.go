package loop

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"devloop/pkg/config"
	"devloop/pkg/gateway"
	"devloop/pkg/logx"
	"devloop/pkg/persistence"
)

// Daemon is the single-worker polling loop. Each iteration reloads
// settings, honors the pause flag and any active backoff window, selects
// the highest-priority eligible request, and processes it synchronously.
// At most one request is in flight at a time.
type Daemon struct {
	store     *persistence.Store
	processor *Processor
	logger    *logx.Logger
	metrics   *Metrics
	loopID    string

	// Backoff state armed by transient failures. ExponentialBackOff grows
	// the window on consecutive rate limits and resets on success.
	rateBackoff  *backoff.ExponentialBackOff
	backoffUntil time.Time

	iterations     int
	lastIdleAction time.Time
}

// NewDaemon creates a daemon with a fresh loop identity.
func NewDaemon(store *persistence.Store, gw gateway.Gateway, reg prometheus.Registerer) (*Daemon, error) {
	return NewNamedDaemon(store, gw, reg, "")
}

// NewNamedDaemon creates a daemon with an explicit loop name. The name
// appears in planning claims, so it must differ between concurrent loops.
func NewNamedDaemon(store *persistence.Store, gw gateway.Gateway, reg prometheus.Registerer, name string) (*Daemon, error) {
	loopID := name
	if loopID == "" {
		loopID = uuid.NewString()[:8]
	}
	processor, err := NewProcessor(store, gw, loopID)
	if err != nil {
		return nil, err
	}

	rb := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(30*time.Second),
		backoff.WithMaxInterval(15*time.Minute),
		backoff.WithMaxElapsedTime(0), // never give up, the window just stops growing
	)

	return &Daemon{
		store:       store,
		processor:   processor,
		logger:      logx.NewLogger("daemon"),
		metrics:     NewMetrics(reg),
		loopID:      loopID,
		rateBackoff: rb,
	}, nil
}

// LoopID returns the daemon's loop identity used in planning claims.
func (d *Daemon) LoopID() string {
	return d.loopID
}

// InBackoff reports whether the global backoff window is active.
func (d *Daemon) InBackoff() bool {
	return time.Now().Before(d.backoffUntil)
}

// Run polls until the context is canceled or the configured iteration
// bound is reached. Returns nil on clean shutdown.
func (d *Daemon) Run(ctx context.Context) error {
	d.logger.Info("Daemon %s starting", d.loopID)
	sweepOldDocs(d.logger)

	for {
		if err := ctx.Err(); err != nil {
			d.logger.Info("Daemon %s stopping: %v", d.loopID, err)
			return nil
		}

		// Settings are re-read each cycle so poll interval, pause, and
		// model changes take effect without a restart.
		config.Reload()
		settings := config.Get()

		if settings.MaxIterations > 0 && d.iterations >= settings.MaxIterations {
			d.logger.Info("Daemon %s reached max iterations (%d), stopping", d.loopID, settings.MaxIterations)
			return nil
		}
		d.iterations++

		if settings.Paused {
			d.sleep(ctx, settings.PollInterval())
			continue
		}

		if remaining := time.Until(d.backoffUntil); remaining > 0 {
			d.logger.Debug("In backoff window for another %s", remaining.Round(time.Second))
			d.sleep(ctx, minDuration(remaining, settings.PollInterval()))
			continue
		}

		req, err := d.store.NextEligibleRequest(settings.WipTimeout(), settings.PlanningTimeout())
		if err != nil {
			d.logger.Error("Selection query failed: %v", err)
			d.sleep(ctx, settings.PollInterval())
			continue
		}

		if req == nil {
			d.metrics.QueueEligible.Set(0)
			d.idle(settings)
			d.sleep(ctx, settings.PollInterval())
			continue
		}
		d.metrics.QueueEligible.Set(1)

		d.processOne(ctx, req)
	}
}

// processOne runs the processor on a single request and applies the
// outcome to daemon state.
func (d *Daemon) processOne(ctx context.Context, req *persistence.Request) {
	d.metrics.InFlight.Set(float64(req.ID))
	defer d.metrics.InFlight.Set(0)

	outcome, err := d.processor.Process(ctx, req)
	d.metrics.Processed.WithLabelValues(string(outcome)).Inc()
	if err != nil {
		d.logger.Error("Processing request %d: %v", req.ID, err)
	}

	switch outcome {
	case OutcomeBackoff:
		window := d.rateBackoff.NextBackOff()
		d.backoffUntil = time.Now().Add(window)
		d.metrics.BackoffTotal.Inc()
		d.logger.Warn("Entering backoff window of %s after transient failure", window.Round(time.Second))
	case OutcomeAborted:
		// Lost a race or nothing to do; let the next poll re-select.
	default:
		// Forward progress clears the transient-failure streak.
		d.rateBackoff.Reset()
	}
}

// idle runs one maintenance action when the idle interval has elapsed.
func (d *Daemon) idle(settings config.Settings) {
	if time.Since(d.lastIdleAction) < settings.IdleActionInterval() {
		return
	}
	d.lastIdleAction = time.Now()
	name := runIdleMaintenance(d.logger)
	d.metrics.IdleActions.Inc()
	d.logger.Debug("Idle action complete: %s", name)
}

// sleep waits for the given duration or until the context is canceled.
func (d *Daemon) sleep(ctx context.Context, duration time.Duration) {
	if duration <= 0 {
		return
	}
	timer := time.NewTimer(duration)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}

// Status describes the daemon for the status command and dashboard.
type Status struct {
	LoopID       string         `json:"loop_id"`
	Running      bool           `json:"running"`
	PID          int            `json:"pid,omitempty"`
	Paused       bool           `json:"paused"`
	InBackoff    bool           `json:"in_backoff"`
	StatusCounts map[string]int `json:"status_counts"`
}

// CurrentStatus assembles a status snapshot from the pid file and store.
func CurrentStatus(store *persistence.Store) (*Status, error) {
	counts, err := store.CountRequestsByStatus()
	if err != nil {
		return nil, fmt.Errorf("failed to load status counts: %w", err)
	}
	pid, running := DaemonPID(config.PIDFilePath())
	return &Status{
		Running:      running,
		PID:          pid,
		Paused:       config.Get().Paused,
		StatusCounts: counts,
	}, nil
}
