package physics

import "github.com/san-kum/rtimpc/internal/dynamo"

// SpringMass is a damped oscillator driven by a force: x = [pos, vel].
type SpringMass struct {
	Mass      float64
	Stiffness float64
	Damping   float64
}

func NewSpringMass() *SpringMass {
	return &SpringMass{
		Mass:      DefaultMass,
		Stiffness: DefaultStiffness,
		Damping:   DefaultDamping,
	}
}

func (s *SpringMass) StateDim() int   { return 2 }
func (s *SpringMass) ControlDim() int { return 1 }

func (s *SpringMass) Derive(x dynamo.State, u dynamo.Control, t float64) dynamo.State {
	force := 0.0
	if len(u) > 0 {
		force = u[0]
	}
	pos, vel := x[0], x[1]
	return dynamo.State{vel, (force - s.Stiffness*pos - s.Damping*vel) / s.Mass}
}

func (s *SpringMass) params() []param {
	return []param{
		{"mass", &s.Mass, true},
		{"stiffness", &s.Stiffness, false},
		{"damping", &s.Damping, false},
	}
}

func (s *SpringMass) GetParams() map[string]float64 { return paramValues(s.params()) }

func (s *SpringMass) SetParam(name string, value float64) error {
	return setParam(s.params(), name, value)
}
