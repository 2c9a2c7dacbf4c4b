// Package experiment turns a session config into a ready closed loop: the
// plant, its integrator, the controller named by the config and the
// metrics that score it.
package experiment

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/rtimpc/internal/config"
	"github.com/san-kum/rtimpc/internal/control"
	"github.com/san-kum/rtimpc/internal/dynamo"
	"github.com/san-kum/rtimpc/internal/horizon"
	"github.com/san-kum/rtimpc/internal/metrics"
	"github.com/san-kum/rtimpc/internal/physics"
	"github.com/san-kum/rtimpc/internal/rti"
	"github.com/san-kum/rtimpc/internal/sim"
	"github.com/san-kum/rtimpc/internal/solver"
)

const (
	lqrMaxIterations = 10000
	settlingBand     = 0.05
	stabilityLimit   = 10.0
)

type Experiment struct {
	cfg       *config.Config
	plant     dynamo.System
	simulator *sim.Simulator
	mpc       *control.MPC
	x0        dynamo.State
}

// Build validates cfg and assembles its closed loop. Extra options are
// passed to the RTI controller when the config selects mpc.
func (r *Registry) Build(cfg *config.Config, logger *zap.Logger, opts ...rti.Option) (*Experiment, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if !r.HasController(cfg.Controller) {
		return nil, fmt.Errorf("unknown controller: %s", cfg.Controller)
	}

	plant, err := r.GetPlant(cfg.Plant)
	if err != nil {
		return nil, err
	}
	if err := applyParams(plant, cfg.PlantParams); err != nil {
		return nil, fmt.Errorf("%s: %w", cfg.Plant, err)
	}
	integ, err := r.GetIntegrator(cfg.Integrator)
	if err != nil {
		return nil, err
	}

	x0 := dynamo.State(cfg.GetInitState())
	if len(x0) != plant.StateDim() {
		return nil, fmt.Errorf("%w: initial state has %d entries, %s has %d",
			dynamo.ErrDimensionMismatch, len(x0), cfg.Plant, plant.StateDim())
	}

	e := &Experiment{cfg: cfg, plant: plant, x0: x0}

	var ctrl dynamo.Controller
	switch cfg.Controller {
	case "mpc":
		model, err := r.model(cfg)
		if err != nil {
			return nil, err
		}
		e.mpc, err = newMPC(cfg, model, x0, logger, opts)
		if err != nil {
			return nil, err
		}
		ctrl = e.mpc
	case "lqr":
		model, err := r.model(cfg)
		if err != nil {
			return nil, err
		}
		ctrl, err = newLQR(cfg, model)
		if err != nil {
			return nil, err
		}
	case "pid":
		pid := control.NewPID(10.0, 0.1, 5.0, at(cfg.MPC.StateRef, 0))
		pid.FeedForward = at(cfg.MPC.ControlRef, 0)
		if len(cfg.MPC.Lower) > 0 && len(cfg.MPC.Upper) > 0 {
			if err := pid.SetLimits(cfg.MPC.Lower[0], cfg.MPC.Upper[0]); err != nil {
				return nil, err
			}
		}
		ctrl = pid
	default:
		ctrl = control.NewNone(setpoint(cfg.MPC.ControlRef, plant.ControlDim()))
	}

	e.simulator = sim.New(plant, integ, ctrl)
	e.simulator.SetLogger(logger)
	for _, m := range defaultMetrics(cfg) {
		e.simulator.AddMetric(m)
	}
	return e, nil
}

// model samples the nominal plant at the session rate with its own
// integrator.
func (r *Registry) model(cfg *config.Config) (*physics.Discrete, error) {
	plant, err := r.GetPlant(cfg.Plant)
	if err != nil {
		return nil, err
	}
	integ, err := r.GetIntegrator(cfg.Integrator)
	if err != nil {
		return nil, err
	}
	model := physics.Discretize(plant, integ, cfg.Dt)
	if cfg.MPC.Perturbation > 0 {
		model.Perturbation = cfg.MPC.Perturbation
	}
	model.Central = !cfg.MPC.ForwardDifferences
	return model, nil
}

func applyParams(plant dynamo.System, params map[string]float64) error {
	if len(params) == 0 {
		return nil
	}
	tunable, ok := plant.(dynamo.Configurable)
	if !ok {
		return fmt.Errorf("plant parameters are not tunable")
	}
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := tunable.SetParam(name, params[name]); err != nil {
			return err
		}
	}
	return nil
}

func newMPC(cfg *config.Config, model *physics.Discrete, x0 dynamo.State, logger *zap.Logger, extra []rti.Option) (*control.MPC, error) {
	nx, nu := model.StateDim(), model.ControlDim()

	opts := []rti.Option{rti.WithLogger(logger), rti.WithVerbose(cfg.Verbose)}
	if cfg.MPC.Shift {
		opts = append(opts, rti.WithShift(rti.ShiftHorizon))
	}
	opts = append(opts, extra...)

	ctrl, err := rti.New(cfg.Dims(nx, nu), solver.NewGaussNewton(model, cfg.MPC.Solver), opts...)
	if err != nil {
		return nil, err
	}
	p, err := cfg.Problem(nx, nu, x0)
	if err != nil {
		return nil, err
	}
	if err := ctrl.Load(p); err != nil {
		return nil, fmt.Errorf("load mpc problem: %w", err)
	}
	return control.NewMPC(ctrl), nil
}

// newLQR designs the infinite-horizon gain at the configured setpoint with
// the stage weights of the MPC section.
func newLQR(cfg *config.Config, model *physics.Discrete) (*control.LQR, error) {
	nx, nu := model.StateDim(), model.ControlDim()

	q, err := diagonal(horizon.ArgQ, "NX", cfg.MPC.Q, nx)
	if err != nil {
		return nil, err
	}
	r, err := diagonal(horizon.ArgR, "NU", cfg.MPC.R, nu)
	if err != nil {
		return nil, err
	}
	xRef := setpoint(cfg.MPC.StateRef, nx)
	uRef := setpoint(cfg.MPC.ControlRef, nu)

	k, err := control.DesignLQR(model, xRef, uRef, q, r, lqrMaxIterations)
	if err != nil {
		return nil, fmt.Errorf("design lqr for %s: %w", cfg.Plant, err)
	}
	lqr := control.NewLQR(k, xRef)
	lqr.U0 = uRef
	return lqr, nil
}

func defaultMetrics(cfg *config.Config) []dynamo.Metric {
	m := cfg.MPC
	effort := metrics.NewControlEffort(m.Lower, m.Upper)
	return []dynamo.Metric{
		metrics.NewTrackingCost(m.StateRef, m.ControlRef, m.Q, m.R, cfg.Dt),
		metrics.NewSettlingTime(m.StateRef, settlingBand),
		metrics.NewStability(m.StateRef, stabilityLimit),
		effort,
		effort.SaturationMetric(),
	}
}

func diagonal(arg, shape string, diag []float64, n int) (*mat.Dense, error) {
	d := mat.NewDense(n, n, nil)
	if len(diag) == 0 {
		for i := 0; i < n; i++ {
			d.Set(i, i, 1)
		}
		return d, nil
	}
	if err := horizon.CheckVector(arg+" diagonal", shape, diag, n); err != nil {
		return nil, err
	}
	for i, v := range diag {
		d.Set(i, i, v)
	}
	return d, nil
}

func setpoint(v []float64, n int) []float64 {
	out := make([]float64, n)
	copy(out, v)
	return out
}

func at(v []float64, i int) float64 {
	if i < len(v) {
		return v[i]
	}
	return 0
}

func (e *Experiment) SimConfig() dynamo.Config {
	return dynamo.Config{
		Dt:            e.cfg.Dt,
		Duration:      e.cfg.Duration,
		Noise:         e.cfg.Noise,
		Seed:          e.cfg.Seed,
		ValidateState: true,
	}
}

func (e *Experiment) Run(ctx context.Context) (*dynamo.Result, error) {
	return e.simulator.Run(ctx, e.x0, e.SimConfig())
}

// Start opens a session for step-by-step driving, as the live view does.
func (e *Experiment) Start() (*sim.Session, error) {
	return e.simulator.Start(e.x0, e.SimConfig())
}

func (e *Experiment) Config() *config.Config    { return e.cfg }
func (e *Experiment) Plant() dynamo.System      { return e.plant }
func (e *Experiment) Simulator() *sim.Simulator { return e.simulator }
func (e *Experiment) InitState() dynamo.State   { return e.x0.Clone() }

// MPC is nil unless the config selects the mpc controller.
func (e *Experiment) MPC() *control.MPC { return e.mpc }
