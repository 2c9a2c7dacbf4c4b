package horizon

import (
	"errors"
	"fmt"

	"github.com/san-kum/rtimpc/internal/layout"
)

var (
	// ErrConfiguration indicates non-positive horizon dimensions.
	ErrConfiguration = errors.New("horizon: invalid configuration")

	// ErrShapeMismatch indicates a caller array whose dimensions do not
	// match the horizon.
	ErrShapeMismatch = errors.New("horizon: shape mismatch")

	// ErrInvalidBounds indicates a lower control bound above its upper bound
	// or a NaN bound.
	ErrInvalidBounds = errors.New("horizon: invalid control bounds")
)

// Argument names used in shape diagnostics.
const (
	ArgInitialState = "initial state"
	ArgStateGuess   = "state initial guess"
	ArgControlGuess = "control initial guess"
	ArgStateRef     = "state reference"
	ArgControlRef   = "control reference"
	ArgQ            = "state weighting matrix"
	ArgR            = "control weighting matrix"
	ArgQT           = "terminal cost weighting matrix"
	ArgLower        = "control lower bound"
	ArgUpper        = "control upper bound"
	ArgMeasurement  = "measurement"
)

type ConfigurationError struct {
	Field string
	Value int
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("horizon: %s must be a positive integer, got %d", e.Field, e.Value)
}

func (e *ConfigurationError) Unwrap() error {
	return ErrConfiguration
}

// DimensionError names the offending argument and the size it must have.
// Shape is the symbolic size, e.g. "N×NX" or "NX".
type DimensionError struct {
	Arg      string
	Shape    string
	WantRows int
	WantCols int
	GotRows  int
	GotCols  int
	GotLen   int
	Vector   bool
}

func (e *DimensionError) Error() string {
	if e.Vector {
		return fmt.Sprintf("horizon: expected %s (%d) values for the %s, got %d",
			e.Shape, e.WantRows*e.WantCols, e.Arg, e.GotLen)
	}
	got := fmt.Sprintf("%d×%d", e.GotRows, e.GotCols)
	switch {
	case e.GotCols == layout.Ragged:
		got = fmt.Sprintf("%d ragged rows", e.GotRows)
	case e.GotLen != e.GotRows*e.GotCols:
		got = fmt.Sprintf("%d×%d with %d values", e.GotRows, e.GotCols, e.GotLen)
	}
	return fmt.Sprintf("horizon: expected an %s matrix (%d×%d) for the %s, got %s",
		e.Shape, e.WantRows, e.WantCols, e.Arg, got)
}

func (e *DimensionError) Unwrap() error {
	return ErrShapeMismatch
}

// BoundsError names the bound argument at fault for one control channel.
// A crossed box is charged to the lower bound.
type BoundsError struct {
	Arg     string
	Channel int
	Lower   float64
	Upper   float64
}

func (e *BoundsError) Error() string {
	return fmt.Sprintf("horizon: invalid %s for channel %d: [%g, %g]", e.Arg, e.Channel, e.Lower, e.Upper)
}

func (e *BoundsError) Unwrap() error {
	return ErrInvalidBounds
}

// CheckMatrix reports a *DimensionError unless m is a well formed rows×cols
// matrix.
func CheckMatrix(arg, shape string, m layout.Matrix, rows, cols int) error {
	if m.Rows == rows && m.Cols == cols && len(m.Data) == rows*cols {
		return nil
	}
	return &DimensionError{
		Arg:      arg,
		Shape:    shape,
		WantRows: rows,
		WantCols: cols,
		GotRows:  m.Rows,
		GotCols:  m.Cols,
		GotLen:   len(m.Data),
	}
}

// CheckVector reports a *DimensionError unless v has exactly n entries.
// Any matrix orientation is accepted for vectors.
func CheckVector(arg, shape string, v []float64, n int) error {
	if len(v) == n {
		return nil
	}
	return &DimensionError{
		Arg:      arg,
		Shape:    shape,
		WantRows: 1,
		WantCols: n,
		GotRows:  1,
		GotCols:  len(v),
		GotLen:   len(v),
		Vector:   true,
	}
}
