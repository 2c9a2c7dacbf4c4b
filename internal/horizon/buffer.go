// Package horizon holds the per-controller optimisation data: state and
// control trajectories, their references, the weighting matrices and the
// control bounds.
//
// All data is stored stage-major: state k, channel i lives at x[k*NX+i].
// Every setter validates all of its arguments before it copies anything, so a
// rejected call leaves the buffer untouched. A Buffer is not safe for
// concurrent mutation.
package horizon

import (
	"fmt"
	"math"

	"github.com/san-kum/rtimpc/internal/layout"
)

// Dims fixes the horizon shape for the lifetime of a controller.
type Dims struct {
	NX int `yaml:"nx" json:"nx"`
	NU int `yaml:"nu" json:"nu"`
	N  int `yaml:"n" json:"n"`
}

func (d Dims) Validate() error {
	switch {
	case d.NX <= 0:
		return &ConfigurationError{Field: "NX", Value: d.NX}
	case d.NU <= 0:
		return &ConfigurationError{Field: "NU", Value: d.NU}
	case d.N <= 0:
		return &ConfigurationError{Field: "N", Value: d.N}
	}
	return nil
}

func (d Dims) String() string {
	return fmt.Sprintf("NX=%d NU=%d N=%d", d.NX, d.NU, d.N)
}

type Buffer struct {
	dims Dims

	x    []float64
	u    []float64
	xRef []float64
	uRef []float64

	q  []float64
	r  []float64
	qt []float64

	lb []float64
	ub []float64
}

// New allocates a zero trajectory, zero references, identity weights and
// unbounded controls.
func New(dims Dims) (*Buffer, error) {
	if err := dims.Validate(); err != nil {
		return nil, err
	}
	b := &Buffer{
		dims: dims,
		x:    make([]float64, (dims.N+1)*dims.NX),
		u:    make([]float64, dims.N*dims.NU),
		xRef: make([]float64, dims.N*dims.NX),
		uRef: make([]float64, dims.N*dims.NU),
		q:    identity(dims.NX),
		r:    identity(dims.NU),
		qt:   identity(dims.NX),
		lb:   make([]float64, dims.NU),
		ub:   make([]float64, dims.NU),
	}
	for i := range b.lb {
		b.lb[i] = math.Inf(-1)
		b.ub[i] = math.Inf(1)
	}
	return b, nil
}

func identity(n int) []float64 {
	m := make([]float64, n*n)
	for i := 0; i < n; i++ {
		m[i*n+i] = 1
	}
	return m
}

func (b *Buffer) Dims() Dims { return b.dims }

// SetInitialGuess replaces both trajectories. states must be (N+1)×NX and
// controls N×NU.
func (b *Buffer) SetInitialGuess(states, controls layout.Matrix) error {
	d := b.dims
	if err := CheckMatrix(ArgStateGuess, "(N+1)×NX", states, d.N+1, d.NX); err != nil {
		return err
	}
	if err := CheckMatrix(ArgControlGuess, "N×NU", controls, d.N, d.NU); err != nil {
		return err
	}
	states.Gather(b.x)
	controls.Gather(b.u)
	return nil
}

// SetReference replaces the N-stage state and control references.
func (b *Buffer) SetReference(stateRef, controlRef layout.Matrix) error {
	d := b.dims
	if err := CheckMatrix(ArgStateRef, "N×NX", stateRef, d.N, d.NX); err != nil {
		return err
	}
	if err := CheckMatrix(ArgControlRef, "N×NU", controlRef, d.N, d.NU); err != nil {
		return err
	}
	stateRef.Gather(b.xRef)
	controlRef.Gather(b.uRef)
	return nil
}

// SetWeights replaces Q, R and QT. Symmetry and definiteness are not checked.
func (b *Buffer) SetWeights(q, r, qt layout.Matrix) error {
	d := b.dims
	if err := CheckMatrix(ArgQ, "NX×NX", q, d.NX, d.NX); err != nil {
		return err
	}
	if err := CheckMatrix(ArgR, "NU×NU", r, d.NU, d.NU); err != nil {
		return err
	}
	if err := CheckMatrix(ArgQT, "NX×NX", qt, d.NX, d.NX); err != nil {
		return err
	}
	q.Gather(b.q)
	r.Gather(b.r)
	qt.Gather(b.qt)
	return nil
}

// SetBounds replaces the per-channel control box applied at every stage.
func (b *Buffer) SetBounds(lower, upper []float64) error {
	if err := CheckBounds(lower, upper, b.dims.NU); err != nil {
		return err
	}
	copy(b.lb, lower)
	copy(b.ub, upper)
	return nil
}

// CheckBounds validates a control box without touching any buffer.
func CheckBounds(lower, upper []float64, nu int) error {
	if err := CheckVector(ArgLower, "NU", lower, nu); err != nil {
		return err
	}
	if err := CheckVector(ArgUpper, "NU", upper, nu); err != nil {
		return err
	}
	for i := range lower {
		arg := ""
		switch {
		case math.IsNaN(lower[i]):
			arg = ArgLower
		case math.IsNaN(upper[i]):
			arg = ArgUpper
		case lower[i] > upper[i]:
			arg = ArgLower
		default:
			continue
		}
		return &BoundsError{Arg: arg, Channel: i, Lower: lower[i], Upper: upper[i]}
	}
	return nil
}

// ClearBounds removes all control limits.
func (b *Buffer) ClearBounds() {
	for i := range b.lb {
		b.lb[i] = math.Inf(-1)
		b.ub[i] = math.Inf(1)
	}
}

// Bounded reports whether any control limit is finite.
func (b *Buffer) Bounded() bool {
	for i := range b.lb {
		if !math.IsInf(b.lb[i], -1) || !math.IsInf(b.ub[i], 1) {
			return true
		}
	}
	return false
}

// X is the live stage-major state trajectory. Its length never changes.
func (b *Buffer) X() []float64 { return b.x }

// U is the live stage-major control trajectory.
func (b *Buffer) U() []float64 { return b.u }

func (b *Buffer) XRef() []float64 { return b.xRef }
func (b *Buffer) URef() []float64 { return b.uRef }
func (b *Buffer) Q() []float64    { return b.q }
func (b *Buffer) R() []float64    { return b.r }
func (b *Buffer) QT() []float64   { return b.qt }

func (b *Buffer) Bounds() (lower, upper []float64) { return b.lb, b.ub }

// State returns a copy of state k, 0 <= k <= N.
func (b *Buffer) State(k int) []float64 {
	return row(b.x, k, b.dims.NX)
}

// Control returns a copy of control k, 0 <= k < N.
func (b *Buffer) Control(k int) []float64 {
	return row(b.u, k, b.dims.NU)
}

func (b *Buffer) StateRef(k int) []float64   { return row(b.xRef, k, b.dims.NX) }
func (b *Buffer) ControlRef(k int) []float64 { return row(b.uRef, k, b.dims.NU) }

func (b *Buffer) States() [][]float64   { return rows(b.x, b.dims.N+1, b.dims.NX) }
func (b *Buffer) Controls() [][]float64 { return rows(b.u, b.dims.N, b.dims.NU) }

func row(data []float64, k, width int) []float64 {
	out := make([]float64, width)
	copy(out, data[k*width:(k+1)*width])
	return out
}

func rows(data []float64, n, width int) [][]float64 {
	out := make([][]float64, n)
	for k := range out {
		out[k] = row(data, k, width)
	}
	return out
}

// ResetGuess zeroes both trajectories.
func (b *Buffer) ResetGuess() {
	clear(b.x)
	clear(b.u)
}

// ShiftStates moves state k+1 into k. The last stage is set to last, or kept
// when last is nil.
func (b *Buffer) ShiftStates(last []float64) error {
	return shift(b.x, b.dims.NX, last, ArgStateGuess)
}

// ShiftControls moves control k+1 into k. The last stage is set to last, or
// kept when last is nil.
func (b *Buffer) ShiftControls(last []float64) error {
	return shift(b.u, b.dims.NU, last, ArgControlGuess)
}

func shift(data []float64, width int, last []float64, arg string) error {
	if last != nil {
		if err := CheckVector(arg, "stage", last, width); err != nil {
			return err
		}
	}
	copy(data, data[width:])
	if last != nil {
		copy(data[len(data)-width:], last)
	}
	return nil
}
