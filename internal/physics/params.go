package physics

import (
	"fmt"

	"github.com/san-kum/rtimpc/internal/dynamo"
)

const (
	DefaultMass      = 1.0
	DefaultGravity   = 9.81
	DefaultStiffness = 10.0
	DefaultDamping   = 0.5
)

// param binds a named physical parameter to the field holding it.
type param struct {
	name     string
	field    *float64
	positive bool
}

func paramValues(ps []param) map[string]float64 {
	out := make(map[string]float64, len(ps))
	for _, p := range ps {
		out[p.name] = *p.field
	}
	return out
}

// setParam leaves the plant untouched when name is unknown or value is out
// of bounds.
func setParam(ps []param, name string, value float64) error {
	for _, p := range ps {
		if p.name != name {
			continue
		}
		// Non-positive parameters accept zero; NaN is never accepted.
		if !(value > 0) && (p.positive || !(value == 0)) {
			return fmt.Errorf("%w: %s=%g", dynamo.ErrParameterBounds, name, value)
		}
		*p.field = value
		return nil
	}
	return fmt.Errorf("unknown param: %s", name)
}
