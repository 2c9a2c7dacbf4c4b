package physics

import (
	"math"

	"github.com/san-kum/rtimpc/internal/dynamo"
)

// Pendulum is a torque-driven damped pendulum: x = [theta, omega], with
// theta measured from the hanging position.
type Pendulum struct {
	Mass    float64
	Length  float64
	Damping float64
	Gravity float64
}

func NewPendulum() *Pendulum {
	return &Pendulum{
		Mass:    DefaultMass,
		Length:  1.0,
		Damping: 0.1,
		Gravity: DefaultGravity,
	}
}

func (p *Pendulum) StateDim() int   { return 2 }
func (p *Pendulum) ControlDim() int { return 1 }

func (p *Pendulum) Derive(x dynamo.State, u dynamo.Control, t float64) dynamo.State {
	var torque float64
	if len(u) > 0 {
		torque = u[0]
	}
	theta, omega := x[0], x[1]

	inertia := p.Mass * p.Length * p.Length
	net := torque - p.HoldingTorque(theta) - p.Damping*omega
	return dynamo.State{omega, net / inertia}
}

// HoldingTorque is the steady torque keeping the pendulum at theta.
func (p *Pendulum) HoldingTorque(theta float64) float64 {
	return p.Mass * p.Gravity * p.Length * math.Sin(theta)
}

func (p *Pendulum) params() []param {
	return []param{
		{"mass", &p.Mass, true},
		{"length", &p.Length, true},
		{"damping", &p.Damping, false},
		{"gravity", &p.Gravity, false},
	}
}

func (p *Pendulum) GetParams() map[string]float64 { return paramValues(p.params()) }

func (p *Pendulum) SetParam(name string, value float64) error {
	return setParam(p.params(), name, value)
}
