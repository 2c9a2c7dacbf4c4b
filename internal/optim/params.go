package optim

import (
	"fmt"
	"math"
	"slices"

	"github.com/san-kum/rtimpc/internal/config"
)

// Tunable names the parameters Apply understands.
var Tunable = []string{"horizon", "q_scale", "r_scale", "qt_scale", "dt"}

// Apply returns a copy of base with params applied in Tunable order. Scales
// multiply the configured weight diagonals; an unset diagonal is scaled from
// identity of size nx or nu, and an unset terminal weight starts from Q.
func Apply(base *config.Config, nx, nu int, params map[string]float64) (*config.Config, error) {
	cfg := *base
	cfg.MPC.Q = slices.Clone(base.MPC.Q)
	cfg.MPC.R = slices.Clone(base.MPC.R)
	cfg.MPC.QT = slices.Clone(base.MPC.QT)

	for name := range params {
		if !slices.Contains(Tunable, name) {
			return nil, fmt.Errorf("optim: unknown parameter %q (tunable: %v)", name, Tunable)
		}
	}
	for _, name := range Tunable {
		v, ok := params[name]
		if !ok {
			continue
		}
		switch name {
		case "horizon":
			if v < 1 || v != math.Trunc(v) {
				return nil, fmt.Errorf("optim: horizon must be a positive integer, got %g", v)
			}
			cfg.MPC.Horizon = int(v)
		case "q_scale":
			cfg.MPC.Q = scale(cfg.MPC.Q, nx, v)
		case "r_scale":
			cfg.MPC.R = scale(cfg.MPC.R, nu, v)
		case "qt_scale":
			qt := cfg.MPC.QT
			if len(qt) == 0 {
				qt = slices.Clone(cfg.MPC.Q)
			}
			cfg.MPC.QT = scale(qt, nx, v)
		case "dt":
			cfg.Dt = v
		}
	}
	return &cfg, nil
}

func scale(diag []float64, n int, k float64) []float64 {
	if len(diag) == 0 {
		diag = make([]float64, n)
		for i := range diag {
			diag[i] = 1
		}
	}
	for i := range diag {
		diag[i] *= k
	}
	return diag
}
