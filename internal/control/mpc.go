package control

import (
	"github.com/san-kum/rtimpc/internal/dynamo"
	"github.com/san-kum/rtimpc/internal/rti"
)

// MPC closes the loop around a real-time iteration controller: each Compute
// runs one prepare/feedback cycle from the measured state and applies the
// first control of the updated trajectory.
type MPC struct {
	ctrl     *rti.Controller
	last     rti.Outcome
	failures int
	err      error
}

// NewMPC wraps a controller whose buffer has already been loaded.
func NewMPC(ctrl *rti.Controller) *MPC {
	return &MPC{ctrl: ctrl}
}

func (m *MPC) Compute(x dynamo.State, t float64) dynamo.Control {
	out, err := m.ctrl.Cycle(x)
	if err != nil {
		m.err = err
		return make(dynamo.Control, m.ctrl.Dims().NU)
	}
	m.last = out
	if !out.Status.OK() {
		m.failures++
	}
	return dynamo.Control(m.ctrl.Buffer().Control(0)).Clone()
}

// Err returns the first error a cycle reported. A solver status is not an
// error.
func (m *MPC) Err() error { return m.err }

func (m *MPC) Outcome() rti.Outcome { return m.last }

// Failures counts cycles whose QP status was not converged.
func (m *MPC) Failures() int { return m.failures }

func (m *MPC) Controller() *rti.Controller { return m.ctrl }

func (m *MPC) GetParams() map[string]float64 {
	d := m.ctrl.Dims()
	return map[string]float64{
		"horizon":   float64(d.N),
		"iteration": float64(m.ctrl.Iteration()),
		"kkt":       m.ctrl.KKT(),
	}
}
