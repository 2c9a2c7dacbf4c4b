package integrators

import "github.com/san-kum/rtimpc/internal/dynamo"

// Euler is the explicit first-order step. It is cheap enough for the
// Jacobian evaluations of long horizons but biases stiff plants.
type Euler struct{}

func NewEuler() *Euler { return &Euler{} }

func (e *Euler) Step(dyn dynamo.System, x dynamo.State, u dynamo.Control, t, dt float64) dynamo.State {
	next := make(dynamo.State, len(x))
	advance(next, x, dyn.Derive(x, u, t), dt)
	return next
}
