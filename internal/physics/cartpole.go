package physics

import (
	"math"

	"github.com/san-kum/rtimpc/internal/dynamo"
)

// CartPole is a pole balanced on a force-driven cart:
// x = [pos, vel, theta, omega], theta measured from upright.
type CartPole struct {
	CartMass   float64
	PoleMass   float64
	PoleLength float64
	Gravity    float64
}

func NewCartPole() *CartPole {
	return &CartPole{
		CartMass:   1.0,
		PoleMass:   0.1,
		PoleLength: 1.0,
		Gravity:    DefaultGravity,
	}
}

func (c *CartPole) StateDim() int   { return 4 }
func (c *CartPole) ControlDim() int { return 1 }

func (c *CartPole) Derive(x dynamo.State, u dynamo.Control, t float64) dynamo.State {
	var force float64
	if len(u) > 0 {
		force = u[0]
	}
	vel, theta, omega := x[1], x[2], x[3]
	sin, cos := math.Sincos(theta)

	total := c.CartMass + c.PoleMass
	arm := c.PoleMass * c.PoleLength

	// Cart acceleration with the pole reaction left out; the pole term
	// below feeds it back.
	push := (force + arm*omega*omega*sin) / total
	alpha := (c.Gravity*sin - cos*push) / (c.PoleLength * (4.0/3.0 - c.PoleMass*cos*cos/total))
	acc := push - arm*alpha*cos/total

	return dynamo.State{vel, acc, omega, alpha}
}

func (c *CartPole) params() []param {
	return []param{
		{"cart_mass", &c.CartMass, true},
		{"pole_mass", &c.PoleMass, true},
		{"pole_length", &c.PoleLength, true},
		{"gravity", &c.Gravity, true},
	}
}

func (c *CartPole) GetParams() map[string]float64 { return paramValues(c.params()) }

func (c *CartPole) SetParam(name string, value float64) error {
	return setParam(c.params(), name, value)
}
