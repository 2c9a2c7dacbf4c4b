// Package warmstart copies a caller's initial guess, references and weights
// into a horizon buffer, and marshals the optimised trajectories back out in
// the caller's layout.
package warmstart

import (
	"github.com/san-kum/rtimpc/internal/horizon"
	"github.com/san-kum/rtimpc/internal/layout"
)

// Problem is one single-shot call: everything needed to seed the horizon
// plus the measured initial state. Lower and Upper are optional; when both
// are nil the controls are unbounded.
type Problem struct {
	InitialState []float64
	StateGuess   layout.Matrix
	ControlGuess layout.Matrix
	StateRef     layout.Matrix
	ControlRef   layout.Matrix
	Q            layout.Matrix
	R            layout.Matrix
	QT           layout.Matrix
	Lower        []float64
	Upper        []float64
}

// Validate checks every argument against dims in call order and returns the
// first mismatch.
func (p *Problem) Validate(d horizon.Dims) error {
	checks := []error{
		horizon.CheckVector(horizon.ArgInitialState, "NX", p.InitialState, d.NX),
		horizon.CheckMatrix(horizon.ArgStateGuess, "(N+1)×NX", p.StateGuess, d.N+1, d.NX),
		horizon.CheckMatrix(horizon.ArgControlGuess, "N×NU", p.ControlGuess, d.N, d.NU),
		horizon.CheckMatrix(horizon.ArgStateRef, "N×NX", p.StateRef, d.N, d.NX),
		horizon.CheckMatrix(horizon.ArgControlRef, "N×NU", p.ControlRef, d.N, d.NU),
		horizon.CheckMatrix(horizon.ArgQ, "NX×NX", p.Q, d.NX, d.NX),
		horizon.CheckMatrix(horizon.ArgR, "NU×NU", p.R, d.NU, d.NU),
		horizon.CheckMatrix(horizon.ArgQT, "NX×NX", p.QT, d.NX, d.NX),
	}
	for _, err := range checks {
		if err != nil {
			return err
		}
	}
	if p.HasBounds() {
		return horizon.CheckBounds(p.Lower, p.Upper, d.NU)
	}
	return nil
}

func (p *Problem) HasBounds() bool {
	return p.Lower != nil || p.Upper != nil
}

// Load validates p completely and only then copies it into buf. On error buf
// is unchanged.
func Load(buf *horizon.Buffer, p *Problem) error {
	if err := p.Validate(buf.Dims()); err != nil {
		return err
	}
	// Shapes are known good from here on; the setters cannot fail.
	if err := buf.SetInitialGuess(p.StateGuess, p.ControlGuess); err != nil {
		return err
	}
	if err := buf.SetReference(p.StateRef, p.ControlRef); err != nil {
		return err
	}
	if err := buf.SetWeights(p.Q, p.R, p.QT); err != nil {
		return err
	}
	if p.HasBounds() {
		return buf.SetBounds(p.Lower, p.Upper)
	}
	buf.ClearBounds()
	return nil
}

// Extract returns the (N+1)×NX state and N×NU control trajectories in the
// requested order.
func Extract(buf *horizon.Buffer, order layout.Order) (states, controls layout.Matrix) {
	d := buf.Dims()
	states = layout.Scatter(buf.X(), d.N+1, d.NX, order)
	controls = layout.Scatter(buf.U(), d.N, d.NU, order)
	return states, controls
}
