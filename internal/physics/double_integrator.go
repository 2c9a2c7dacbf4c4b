package physics

import "github.com/san-kum/rtimpc/internal/dynamo"

// DoubleIntegrator is a unit mass pushed by a force: x = [pos, vel].
type DoubleIntegrator struct {
	Mass float64
}

func NewDoubleIntegrator() *DoubleIntegrator {
	return &DoubleIntegrator{Mass: DefaultMass}
}

func (d *DoubleIntegrator) StateDim() int   { return 2 }
func (d *DoubleIntegrator) ControlDim() int { return 1 }

func (d *DoubleIntegrator) Derive(x dynamo.State, u dynamo.Control, t float64) dynamo.State {
	force := 0.0
	if len(u) > 0 {
		force = u[0]
	}
	return dynamo.State{x[1], force / d.Mass}
}

func (d *DoubleIntegrator) params() []param {
	return []param{{"mass", &d.Mass, true}}
}

func (d *DoubleIntegrator) GetParams() map[string]float64 { return paramValues(d.params()) }

func (d *DoubleIntegrator) SetParam(name string, value float64) error {
	return setParam(d.params(), name, value)
}
