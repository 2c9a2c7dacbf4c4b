// Package sim runs closed-loop sessions: a controller sampled at a fixed
// rate against a continuous plant integrated between samples.
package sim

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/san-kum/rtimpc/internal/dynamo"
)

// errReporter is implemented by controllers that can fail during a session.
type errReporter interface {
	Err() error
}

type Simulator struct {
	plant      dynamo.System
	integrator dynamo.Integrator
	controller dynamo.Controller
	metrics    []dynamo.Metric
	observers  []dynamo.Observer
	logger     *zap.Logger
}

func New(plant dynamo.System, integrator dynamo.Integrator, controller dynamo.Controller) *Simulator {
	return &Simulator{
		plant:      plant,
		integrator: integrator,
		controller: controller,
		metrics:    make([]dynamo.Metric, 0),
		observers:  make([]dynamo.Observer, 0),
		logger:     zap.NewNop(),
	}
}

func (s *Simulator) AddMetric(m dynamo.Metric)     { s.metrics = append(s.metrics, m) }
func (s *Simulator) AddObserver(o dynamo.Observer) { s.observers = append(s.observers, o) }

func (s *Simulator) SetLogger(logger *zap.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

func (s *Simulator) Controller() dynamo.Controller { return s.controller }

// Run drives a session to cfg.Duration. Cancellation is checked between
// samples, never inside a controller call.
func (s *Simulator) Run(ctx context.Context, x0 dynamo.State, cfg dynamo.Config) (*dynamo.Result, error) {
	sess, err := s.Start(x0, cfg)
	if err != nil {
		return nil, err
	}

	result := &dynamo.Result{
		States:   make([]dynamo.State, 0, sess.steps+1),
		Controls: make([]dynamo.Control, 0, sess.steps),
		Times:    make([]float64, 0, sess.steps+1),
		Metrics:  make(map[string]float64),
		Errors:   make([]error, 0),
	}
	result.States = append(result.States, sess.State())
	result.Times = append(result.Times, sess.Time())

	for !sess.Done() {
		select {
		case <-ctx.Done():
			s.collect(result)
			return result, ctx.Err()
		default:
		}

		x, u, err := sess.Step()
		if err != nil {
			result.Errors = append(result.Errors, err)
			if sess.Failed() {
				s.logger.Warn("session stopped", zap.Int("step", result.StepsTaken), zap.Error(err))
				break
			}
			s.collect(result)
			return result, err
		}

		result.StepsTaken++
		result.States = append(result.States, x)
		result.Controls = append(result.Controls, u)
		result.Times = append(result.Times, sess.Time())
	}

	s.collect(result)
	return result, nil
}

func (s *Simulator) collect(result *dynamo.Result) {
	for _, m := range s.metrics {
		result.Metrics[m.Name()] = m.Value()
	}
}

func (s *Simulator) validateConfig(x0 dynamo.State, cfg dynamo.Config) error {
	if cfg.Dt <= 0 {
		return fmt.Errorf("dt must be positive, got %f", cfg.Dt)
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("duration must be positive, got %f", cfg.Duration)
	}
	if cfg.Noise < 0 {
		return fmt.Errorf("noise must be non-negative, got %f", cfg.Noise)
	}
	if len(x0) != s.plant.StateDim() {
		return fmt.Errorf("%w: initial state has %d entries, plant has %d",
			dynamo.ErrDimensionMismatch, len(x0), s.plant.StateDim())
	}
	return nil
}

// Session is a closed loop advanced one sample at a time.
type Session struct {
	sim    *Simulator
	cfg    dynamo.Config
	x      dynamo.State
	t      float64
	step   int
	steps  int
	noise  *distuv.Normal
	failed bool
}

// Start validates cfg, resets the metrics and returns a session positioned
// at x0.
func (s *Simulator) Start(x0 dynamo.State, cfg dynamo.Config) (*Session, error) {
	if err := s.validateConfig(x0, cfg); err != nil {
		return nil, err
	}
	for _, m := range s.metrics {
		m.Reset()
	}

	sess := &Session{
		sim:   s,
		cfg:   cfg,
		x:     x0.Clone(),
		steps: int(math.Round(cfg.Duration / cfg.Dt)),
	}
	if cfg.Noise > 0 {
		sess.noise = &distuv.Normal{
			Mu:    0,
			Sigma: cfg.Noise,
			Src:   rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15),
		}
	}
	return sess, nil
}

func (ss *Session) State() dynamo.State { return ss.x.Clone() }
func (ss *Session) Time() float64       { return ss.t }
func (ss *Session) Steps() int          { return ss.step }
func (ss *Session) Total() int          { return ss.steps }
func (ss *Session) Done() bool          { return ss.failed || ss.step >= ss.steps }

// Failed reports whether the plant state became invalid.
func (ss *Session) Failed() bool { return ss.failed }

// Step samples the plant, runs the controller on the measurement and
// integrates the plant over one period. It returns the new plant state and
// the applied control.
func (ss *Session) Step() (dynamo.State, dynamo.Control, error) {
	s := ss.sim
	y := ss.measure()

	u := s.controller.Compute(y, ss.t)
	if r, ok := s.controller.(errReporter); ok && r.Err() != nil {
		return nil, nil, &dynamo.SimulationError{Step: ss.step, Time: ss.t, State: ss.x.Clone(), Wrapped: r.Err()}
	}

	for _, m := range s.metrics {
		m.Observe(ss.x, u, ss.t)
	}
	for _, obs := range s.observers {
		obs.OnStep(ss.x, u, ss.t)
	}

	next := s.integrator.Step(s.plant, ss.x, u, ss.t, ss.cfg.Dt)
	if ss.cfg.ValidateState && !next.IsValid() {
		ss.failed = true
		return nil, nil, &dynamo.SimulationError{Step: ss.step, Time: ss.t, State: ss.x.Clone(), Wrapped: dynamo.ErrInvalidState}
	}

	ss.x = next
	ss.step++
	ss.t = float64(ss.step) * ss.cfg.Dt
	return ss.x.Clone(), u.Clone(), nil
}

func (ss *Session) measure() dynamo.State {
	y := ss.x.Clone()
	if ss.noise == nil {
		return y
	}
	for i := range y {
		y[i] += ss.noise.Rand()
	}
	return y
}
