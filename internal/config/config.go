package config

import (
	"fmt"
	"maps"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/san-kum/rtimpc/internal/horizon"
	"github.com/san-kum/rtimpc/internal/layout"
	"github.com/san-kum/rtimpc/internal/solver"
	"github.com/san-kum/rtimpc/internal/warmstart"
)

const (
	DefaultDt       = 0.05
	DefaultDuration = 10.0
	DefaultHorizon  = 20
	DefaultTheta    = 0.5
)

type Config struct {
	Plant      string          `yaml:"plant"`
	Integrator string          `yaml:"integrator"`
	Controller string          `yaml:"controller"`
	Dt         float64         `yaml:"dt"`
	Duration   float64         `yaml:"duration"`
	Seed       uint64          `yaml:"seed"`
	Noise      float64         `yaml:"noise"`
	Verbose    bool            `yaml:"verbose"`
	InitState  InitStateConfig `yaml:"init_state"`
	MPC        MPCConfig       `yaml:"mpc"`

	// PlantParams overrides physical parameters of the simulated plant only.
	// Controllers keep designing against the nominal plant.
	PlantParams map[string]float64 `yaml:"plant_params,omitempty"`
}

type InitStateConfig struct {
	Theta float64 `yaml:"theta"`
	Omega float64 `yaml:"omega"`
	Pos   float64 `yaml:"pos"`
	Vel   float64 `yaml:"vel"`
}

// MPCConfig describes a constant-setpoint tracking problem. Weights are
// given as diagonals; an empty diagonal means identity. An empty reference
// means zero.
type MPCConfig struct {
	Horizon    int       `yaml:"horizon"`
	Q          []float64 `yaml:"q"`
	R          []float64 `yaml:"r"`
	QT         []float64 `yaml:"qt"`
	StateRef   []float64 `yaml:"state_ref"`
	ControlRef []float64 `yaml:"control_ref"`
	Lower      []float64 `yaml:"lower"`
	Upper      []float64 `yaml:"upper"`
	Shift      bool      `yaml:"shift"`

	// Perturbation is the relative finite-difference step for plant
	// Jacobians; ForwardDifferences trades accuracy for half the model
	// evaluations.
	Perturbation       float64 `yaml:"perturbation"`
	ForwardDifferences bool    `yaml:"forward_differences"`

	Solver solver.Options `yaml:"solver"`
}

// Clone returns a deep copy of c.
func (c *Config) Clone() *Config {
	out := *c
	out.MPC.Q = slices.Clone(c.MPC.Q)
	out.MPC.R = slices.Clone(c.MPC.R)
	out.MPC.QT = slices.Clone(c.MPC.QT)
	out.MPC.StateRef = slices.Clone(c.MPC.StateRef)
	out.MPC.ControlRef = slices.Clone(c.MPC.ControlRef)
	out.MPC.Lower = slices.Clone(c.MPC.Lower)
	out.MPC.Upper = slices.Clone(c.MPC.Upper)
	out.PlantParams = maps.Clone(c.PlantParams)
	return &out
}

func DefaultConfig() *Config {
	return &Config{
		Plant:      "pendulum",
		Integrator: "rk4",
		Controller: "mpc",
		Dt:         DefaultDt,
		Duration:   DefaultDuration,
		InitState: InitStateConfig{
			Theta: DefaultTheta,
		},
		MPC: MPCConfig{
			Horizon: DefaultHorizon,
			Solver:  solver.DefaultOptions(),
		},
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Validate checks everything that does not depend on the plant dimensions.
func (c *Config) Validate() error {
	if c.Dt <= 0 {
		return fmt.Errorf("config: dt must be positive, got %g", c.Dt)
	}
	if c.Duration <= 0 {
		return fmt.Errorf("config: duration must be positive, got %g", c.Duration)
	}
	if c.Duration < c.Dt {
		return fmt.Errorf("config: duration (%g) shorter than dt (%g)", c.Duration, c.Dt)
	}
	if c.Noise < 0 {
		return fmt.Errorf("config: noise must be non-negative, got %g", c.Noise)
	}
	if c.Controller != "mpc" {
		return nil
	}
	if c.MPC.Horizon <= 0 {
		return &horizon.ConfigurationError{Field: "N", Value: c.MPC.Horizon}
	}
	if c.MPC.Perturbation < 0 {
		return fmt.Errorf("config: perturbation must be non-negative, got %g", c.MPC.Perturbation)
	}
	return c.MPC.Solver.Validate()
}

func (c *Config) GetInitState() []float64 {
	switch c.Plant {
	case "cartpole":
		return []float64{c.InitState.Pos, c.InitState.Vel, c.InitState.Theta, c.InitState.Omega}
	case "spring_mass", "double_integrator":
		return []float64{c.InitState.Pos, c.InitState.Vel}
	default:
		return []float64{c.InitState.Theta, c.InitState.Omega}
	}
}

func (c *Config) Dims(nx, nu int) horizon.Dims {
	return horizon.Dims{NX: nx, NU: nu, N: c.MPC.Horizon}
}

// Problem expands the MPC section into a full warm-start problem for a plant
// with nx states and nu controls. Guesses start at zero except stage 0, which
// is x0.
func (c *Config) Problem(nx, nu int, x0 []float64) (*warmstart.Problem, error) {
	m := c.MPC
	n := m.Horizon

	q, err := diagonal(horizon.ArgQ, "NX", m.Q, nx)
	if err != nil {
		return nil, err
	}
	r, err := diagonal(horizon.ArgR, "NU", m.R, nu)
	if err != nil {
		return nil, err
	}
	qt, err := diagonal(horizon.ArgQT, "NX", m.QT, nx)
	if err != nil {
		return nil, err
	}
	xRef, err := constant(horizon.ArgStateRef, "NX", m.StateRef, n, nx)
	if err != nil {
		return nil, err
	}
	uRef, err := constant(horizon.ArgControlRef, "NU", m.ControlRef, n, nu)
	if err != nil {
		return nil, err
	}

	states := layout.New(n+1, nx, layout.RowMajor)
	for i := 0; i < nx && i < len(x0); i++ {
		states.Set(0, i, x0[i])
	}

	return &warmstart.Problem{
		InitialState: x0,
		StateGuess:   states,
		ControlGuess: layout.New(n, nu, layout.RowMajor),
		StateRef:     xRef,
		ControlRef:   uRef,
		Q:            q,
		R:            r,
		QT:           qt,
		Lower:        m.Lower,
		Upper:        m.Upper,
	}, nil
}

func diagonal(arg, shape string, diag []float64, n int) (layout.Matrix, error) {
	m := layout.New(n, n, layout.RowMajor)
	if len(diag) == 0 {
		for i := 0; i < n; i++ {
			m.Set(i, i, 1)
		}
		return m, nil
	}
	if err := horizon.CheckVector(arg+" diagonal", shape, diag, n); err != nil {
		return layout.Matrix{}, err
	}
	for i, v := range diag {
		m.Set(i, i, v)
	}
	return m, nil
}

func constant(arg, shape string, v []float64, rows, cols int) (layout.Matrix, error) {
	m := layout.New(rows, cols, layout.RowMajor)
	if len(v) == 0 {
		return m, nil
	}
	if err := horizon.CheckVector(arg+" setpoint", shape, v, cols); err != nil {
		return layout.Matrix{}, err
	}
	for k := 0; k < rows; k++ {
		for i, x := range v {
			m.Set(k, i, x)
		}
	}
	return m, nil
}
