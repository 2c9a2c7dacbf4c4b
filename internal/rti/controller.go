// Package rti implements the real-time iteration scheme: one Gauss-Newton
// step per control cycle, split into a measurement-independent preparation
// phase and a short feedback phase that runs once the measurement arrives.
//
// A Controller owns its horizon buffer for its whole lifetime. It is not safe
// for concurrent use; independent controllers share nothing.
package rti

import (
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/san-kum/rtimpc/internal/horizon"
	"github.com/san-kum/rtimpc/internal/layout"
	"github.com/san-kum/rtimpc/internal/solver"
	"github.com/san-kum/rtimpc/internal/telemetry"
	"github.com/san-kum/rtimpc/internal/warmstart"
)

type Phase int

const (
	Idle Phase = iota
	Prepared
	Solved
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Prepared:
		return "prepared"
	case Solved:
		return "solved"
	default:
		return "unknown"
	}
}

// Timing holds the wall-clock durations of the most recent phases.
type Timing struct {
	Preparation time.Duration
	Feedback    time.Duration
}

// Outcome is the result of one feedback phase. A nonzero Status is reported
// here and never as an error; the trajectory still holds the last iterate.
type Outcome struct {
	Status    solver.Status
	KKT       float64
	Iteration int
	Degraded  bool
	Timing    Timing
}

// Result is the output of a single-shot Step in the caller's layout.
type Result struct {
	Outcome
	States   layout.Matrix
	Controls layout.Matrix
}

type Controller struct {
	dims    horizon.Dims
	buf     *horizon.Buffer
	adapter solver.Adapter

	phase     Phase
	iteration int
	timing    Timing
	degraded  bool
	kkt       float64
	prepStart time.Time

	shift    ShiftFunc
	logger   *zap.Logger
	verbose  bool
	log      *telemetry.LogRecorder
	recorder telemetry.Recorder
	now      func() time.Time
}

func New(dims horizon.Dims, adapter solver.Adapter, opts ...Option) (*Controller, error) {
	buf, err := horizon.New(dims)
	if err != nil {
		return nil, err
	}
	if adapter == nil {
		return nil, fmt.Errorf("%w: nil solver adapter", ErrConfiguration)
	}

	c := &Controller{
		dims:    dims,
		buf:     buf,
		adapter: adapter,
		logger:  zap.NewNop(),
		now:     time.Now,
		kkt:     math.Inf(1),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = telemetry.NewLogRecorder(c.logger, c.verbose)
	return c, nil
}

func (c *Controller) Dims() horizon.Dims      { return c.dims }
func (c *Controller) Phase() Phase            { return c.phase }
func (c *Controller) Timing() Timing          { return c.timing }
func (c *Controller) Iteration() int          { return c.iteration }
func (c *Controller) Buffer() *horizon.Buffer { return c.buf }

// KKT returns the value reported by the last feedback, or +Inf before the
// first one.
func (c *Controller) KKT() float64 { return c.kkt }

// SetShift installs or removes the renewal hook.
func (c *Controller) SetShift(fn ShiftFunc) { c.shift = fn }

// Prepare runs the measurement-independent half of an iteration on the
// current trajectory. Coming from Solved, the shift hook runs first.
// Preparing twice re-runs the preparation.
func (c *Controller) Prepare() {
	if c.phase == Solved && c.shift != nil {
		c.shift(c.buf)
	}

	start := c.now()
	c.adapter.Prepare(c.buf)
	c.timing.Preparation = c.now().Sub(start)
	c.degraded = c.adapter.Degraded()
	c.prepStart = start
	c.phase = Prepared
}

// Feedback binds the measurement as the initial state and solves the
// prepared QP. The buffer trajectory is updated in place.
func (c *Controller) Feedback(measurement []float64) (Outcome, error) {
	if c.phase != Prepared {
		return Outcome{}, &SequenceError{Op: "feedback", Phase: c.phase}
	}
	if err := horizon.CheckVector(horizon.ArgMeasurement, "NX", measurement, c.dims.NX); err != nil {
		return Outcome{}, err
	}

	start := c.now()
	status, kkt := c.adapter.Feedback(c.buf, measurement)
	c.timing.Feedback = c.now().Sub(start)

	c.kkt = sanitizeKKT(kkt)
	out := Outcome{
		Status:    status,
		KKT:       c.kkt,
		Iteration: c.iteration,
		Degraded:  c.degraded,
		Timing:    c.timing,
	}
	c.phase = Solved
	c.iteration++

	cycle := telemetry.Cycle{
		Iteration:   out.Iteration,
		Start:       c.prepStart,
		Preparation: c.timing.Preparation,
		Feedback:    c.timing.Feedback,
		KKT:         out.KKT,
		Status:      out.Status,
		Degraded:    out.Degraded,
	}
	c.log.Record(cycle)
	if c.recorder != nil {
		c.recorder.Record(cycle)
	}
	return out, nil
}

// Cycle runs Prepare followed by Feedback.
func (c *Controller) Cycle(measurement []float64) (Outcome, error) {
	if err := horizon.CheckVector(horizon.ArgMeasurement, "NX", measurement, c.dims.NX); err != nil {
		return Outcome{}, err
	}
	c.Prepare()
	return c.Feedback(measurement)
}

// ResetGuess zeroes the warm start. Any pending preparation is discarded.
func (c *Controller) ResetGuess() {
	c.buf.ResetGuess()
	c.phase = Idle
}

// SetReference replaces the references for the coming cycles. A pending
// preparation is discarded.
func (c *Controller) SetReference(stateRef, controlRef layout.Matrix) error {
	if err := c.buf.SetReference(stateRef, controlRef); err != nil {
		return err
	}
	c.invalidate()
	return nil
}

func (c *Controller) SetWeights(q, r, qt layout.Matrix) error {
	if err := c.buf.SetWeights(q, r, qt); err != nil {
		return err
	}
	c.invalidate()
	return nil
}

func (c *Controller) SetBounds(lower, upper []float64) error {
	if err := c.buf.SetBounds(lower, upper); err != nil {
		return err
	}
	c.invalidate()
	return nil
}

// Load seeds the buffer from a full problem and returns the controller to
// Idle.
func (c *Controller) Load(p *warmstart.Problem) error {
	if err := warmstart.Load(c.buf, p); err != nil {
		return err
	}
	c.phase = Idle
	return nil
}

// Step is the single-shot entry point: load the problem, run one iteration
// from p.InitialState and return the trajectories in the layout of
// p.StateGuess.
func (c *Controller) Step(p *warmstart.Problem) (Result, error) {
	if err := c.Load(p); err != nil {
		return Result{}, err
	}
	c.Prepare()
	out, err := c.Feedback(p.InitialState)
	if err != nil {
		return Result{}, err
	}
	states, controls := warmstart.Extract(c.buf, p.StateGuess.Order)
	return Result{Outcome: out, States: states, Controls: controls}, nil
}

func (c *Controller) invalidate() {
	if c.phase == Prepared {
		c.phase = Idle
	}
}

func sanitizeKKT(v float64) float64 {
	if math.IsNaN(v) {
		return math.Inf(1)
	}
	return math.Abs(v)
}
