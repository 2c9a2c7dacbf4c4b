package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/san-kum/rtimpc/internal/horizon"
	"github.com/san-kum/rtimpc/internal/layout"
	"github.com/san-kum/rtimpc/internal/solver"
	"github.com/san-kum/rtimpc/internal/warmstart"
)

// MatrixConfig is a matrix as it appears in a problem file: either nested
// rows, or flat data in the file's storage order.
type MatrixConfig struct {
	Rows   int         `yaml:"rows,omitempty"`
	Cols   int         `yaml:"cols,omitempty"`
	Data   []float64   `yaml:"data,omitempty"`
	Values [][]float64 `yaml:"values,omitempty"`
}

func (m *MatrixConfig) empty() bool {
	return m == nil || (len(m.Values) == 0 && len(m.Data) == 0)
}

func (m *MatrixConfig) matrix(order layout.Order) layout.Matrix {
	if len(m.Values) > 0 {
		return layout.FromRows(m.Values, order)
	}
	return layout.Matrix{Rows: m.Rows, Cols: m.Cols, Order: order, Data: m.Data}
}

// ProblemFile is one single-shot call read from YAML. Omitted guesses and
// references default to zero and omitted weights to identity. Order applies
// to every flat matrix and to the output.
type ProblemFile struct {
	Plant      string         `yaml:"plant"`
	Integrator string         `yaml:"integrator"`
	Dt         float64        `yaml:"dt"`
	Dims       horizon.Dims   `yaml:"dims"`
	Order      string         `yaml:"order"`
	Verbose    bool           `yaml:"verbose"`
	Solver     solver.Options `yaml:"solver"`

	InitialState []float64     `yaml:"initial_state"`
	StateGuess   *MatrixConfig `yaml:"state_guess"`
	ControlGuess *MatrixConfig `yaml:"control_guess"`
	StateRef     *MatrixConfig `yaml:"state_ref"`
	ControlRef   *MatrixConfig `yaml:"control_ref"`
	Q            *MatrixConfig `yaml:"q"`
	R            *MatrixConfig `yaml:"r"`
	QT           *MatrixConfig `yaml:"qt"`
	Lower        []float64     `yaml:"lower"`
	Upper        []float64     `yaml:"upper"`
}

func LoadProblem(path string) (*ProblemFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	pf := &ProblemFile{
		Plant:      "double_integrator",
		Integrator: "rk4",
		Dt:         DefaultDt,
		Solver:     solver.DefaultOptions(),
	}
	if err := yaml.Unmarshal(data, pf); err != nil {
		return nil, fmt.Errorf("parse problem %s: %w", path, err)
	}
	return pf, nil
}

// Problem converts the file into loader input. Shapes are not checked here;
// warmstart.Load reports them argument by argument.
func (pf *ProblemFile) Problem() (*warmstart.Problem, error) {
	if err := pf.Dims.Validate(); err != nil {
		return nil, err
	}
	order, err := layout.ParseOrder(pf.Order)
	if err != nil {
		return nil, err
	}
	d := pf.Dims

	zero := func(m *MatrixConfig, rows, cols int) layout.Matrix {
		if m.empty() {
			return layout.New(rows, cols, order)
		}
		return m.matrix(order)
	}
	eye := func(m *MatrixConfig, n int) layout.Matrix {
		if m.empty() {
			id := layout.New(n, n, order)
			for i := 0; i < n; i++ {
				id.Set(i, i, 1)
			}
			return id
		}
		return m.matrix(order)
	}

	return &warmstart.Problem{
		InitialState: pf.InitialState,
		StateGuess:   zero(pf.StateGuess, d.N+1, d.NX),
		ControlGuess: zero(pf.ControlGuess, d.N, d.NU),
		StateRef:     zero(pf.StateRef, d.N, d.NX),
		ControlRef:   zero(pf.ControlRef, d.N, d.NU),
		Q:            eye(pf.Q, d.NX),
		R:            eye(pf.R, d.NU),
		QT:           eye(pf.QT, d.NX),
		Lower:        pf.Lower,
		Upper:        pf.Upper,
	}, nil
}
