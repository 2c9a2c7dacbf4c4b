package rti

import (
	"time"

	"go.uber.org/zap"

	"github.com/san-kum/rtimpc/internal/horizon"
	"github.com/san-kum/rtimpc/internal/telemetry"
)

type Option func(*Controller)

// WithLogger sets the logger for solver warnings and verbose iteration lines.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithVerbose prints one line per iteration with the phase durations.
func WithVerbose(verbose bool) Option {
	return func(c *Controller) { c.verbose = verbose }
}

// WithRecorder forwards every completed cycle to r.
func WithRecorder(r telemetry.Recorder) Option {
	return func(c *Controller) { c.recorder = r }
}

// WithClock replaces time.Now for phase timing.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		if now != nil {
			c.now = now
		}
	}
}

// WithShift installs fn as the hook run between a solved cycle and the next
// preparation.
func WithShift(fn ShiftFunc) Option {
	return func(c *Controller) { c.shift = fn }
}

// ShiftFunc advances the warm start by one stage before a renewal cycle.
type ShiftFunc func(buf *horizon.Buffer)

// ShiftHorizon moves both trajectories one stage forward and repeats the
// final stage. References are left alone; callers supply them each cycle.
func ShiftHorizon(buf *horizon.Buffer) {
	_ = buf.ShiftStates(nil)
	_ = buf.ShiftControls(nil)
}
