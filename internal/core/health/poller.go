// Package health implements the health-check polling state machine used to
// decide when a deployed workload is ready. The status source, the clock and
// the sleep function are injected, so the machine is tested with values
// in/out and no live remote host.
package health

import (
	"context"
	"log/slog"
	"time"
)

// =============================================================================
// Statuses
// =============================================================================

// Status is a single reported health reading.
type Status string

const (
	// StatusUnknown means the reading could not be taken or parsed.
	StatusUnknown Status = "unknown"

	// StatusStarting means the health check has not completed its first
	// successful probe yet.
	StatusStarting Status = "starting"

	// StatusHealthy means the workload passed its health check.
	StatusHealthy Status = "healthy"

	// StatusUnhealthy means the workload failed its health check. This is
	// non-terminal: transient unhealthy readings during startup are
	// expected, so polling continues.
	StatusUnhealthy Status = "unhealthy"

	// StatusNone means the workload defines no health check at all.
	StatusNone Status = "none"
)

// ParseStatus maps a raw health string (as printed by the container engine)
// to a Status. Unrecognized input maps to StatusUnknown.
func ParseStatus(raw string) Status {
	switch raw {
	case "starting":
		return StatusStarting
	case "healthy":
		return StatusHealthy
	case "unhealthy":
		return StatusUnhealthy
	case "none", "":
		return StatusNone
	default:
		return StatusUnknown
	}
}

// =============================================================================
// Outcomes
// =============================================================================

// Outcome is the terminal state of one polling run.
type Outcome string

const (
	// OutcomeNoHealthCheck means the workload defines no health check.
	// Treated as success: absence of a health check is not a failure.
	OutcomeNoHealthCheck Outcome = "no_health_check"

	// OutcomeHealthy means a sample reported healthy within the budget.
	OutcomeHealthy Outcome = "healthy"

	// OutcomeTimedOut means the sample budget was exhausted without a
	// healthy reading.
	OutcomeTimedOut Outcome = "timed_out"
)

// Observation is a single polling sample. Observations live only for the
// duration of the polling loop.
type Observation struct {
	At     time.Time
	Status Status
}

// Result is what one polling run produced.
type Result struct {
	Outcome      Outcome
	Observations []Observation
}

// Samples returns the number of samples taken.
func (r Result) Samples() int {
	return len(r.Observations)
}

// =============================================================================
// Source
// =============================================================================

// Source reports workload health. Implementations query the container engine
// on the remote host; tests inject fakes.
type Source interface {
	// HasHealthCheck reports whether the workload defines a health check.
	// This presence probe is not a sample.
	HasHealthCheck(ctx context.Context) (bool, error)

	// Sample takes one health reading.
	Sample(ctx context.Context) (Status, error)
}

// =============================================================================
// Poller
// =============================================================================

// Config tunes the polling loop.
type Config struct {
	// SettleDelay is the pause after workload start before the first sample.
	SettleDelay time.Duration

	// Interval is the spacing between samples.
	Interval time.Duration

	// MaxSamples is the sample budget before the run times out.
	MaxSamples int
}

// DefaultConfig returns the standard budget: 15 samples at 2-second
// intervals after a 5-second settle delay.
func DefaultConfig() Config {
	return Config{
		SettleDelay: 5 * time.Second,
		Interval:    2 * time.Second,
		MaxSamples:  15,
	}
}

// SleepFunc blocks for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Poller runs the polling state machine.
type Poller struct {
	config Config
	sleep  SleepFunc
	now    func() time.Time
	logger *slog.Logger
}

// NewPoller creates a poller with real sleeping and the real clock.
func NewPoller(config Config, logger *slog.Logger) *Poller {
	if config.Interval == 0 {
		config.Interval = 2 * time.Second
	}
	if config.MaxSamples == 0 {
		config.MaxSamples = 15
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		config: config,
		sleep:  sleepWithContext,
		now:    time.Now,
		logger: logger.With("component", "health_poller"),
	}
}

// WithSleep overrides the sleep function. Used by tests.
func (p *Poller) WithSleep(sleep SleepFunc) *Poller {
	p.sleep = sleep
	return p
}

// WithClock overrides the clock. Used by tests.
func (p *Poller) WithClock(now func() time.Time) *Poller {
	p.now = now
	return p
}

// Poll drives the state machine to a terminal state. A sampler error counts
// as an unknown reading and polling continues; only context cancellation
// aborts the loop early with an error.
func (p *Poller) Poll(ctx context.Context, source Source) (Result, error) {
	hasCheck, err := source.HasHealthCheck(ctx)
	if err != nil {
		// Can't tell; treat as absent rather than failing the deploy.
		p.logger.Warn("health check presence probe failed", "error", err)
		hasCheck = false
	}
	if !hasCheck {
		p.logger.Info("no health check defined, skipping polling")
		return Result{Outcome: OutcomeNoHealthCheck}, nil
	}

	if p.config.SettleDelay > 0 {
		if err := p.sleep(ctx, p.config.SettleDelay); err != nil {
			return Result{}, err
		}
	}

	var observations []Observation
	for i := 0; i < p.config.MaxSamples; i++ {
		if err := p.sleep(ctx, p.config.Interval); err != nil {
			return Result{}, err
		}

		status, err := source.Sample(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return Result{}, ctx.Err()
			}
			p.logger.Warn("health sample failed", "error", err)
			status = StatusUnknown
		}

		observations = append(observations, Observation{At: p.now(), Status: status})
		p.logger.Debug("health sample", "sample", i+1, "status", status)

		if status == StatusHealthy {
			return Result{Outcome: OutcomeHealthy, Observations: observations}, nil
		}
	}

	return Result{Outcome: OutcomeTimedOut, Observations: observations}, nil
}
