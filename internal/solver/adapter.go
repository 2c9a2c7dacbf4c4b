// Package solver defines the capability set the RTI controller needs from a
// QP-based optimiser and ships a dense Gauss-Newton implementation.
package solver

import (
	"fmt"

	"github.com/san-kum/rtimpc/internal/horizon"
)

// Adapter is the solver behind the controller. Prepare does all
// measurement-independent work on the current trajectory; Feedback finishes
// the iteration once the measurement is known and updates buf in place.
type Adapter interface {
	Prepare(buf *horizon.Buffer)
	Feedback(buf *horizon.Buffer, measurement []float64) (Status, float64)
	KKT() float64
	Degraded() bool
}

// Status is the QP outcome of one feedback phase. Zero means converged.
type Status int

const (
	Converged Status = iota
	MaxIterations
	Infeasible
	NotPrepared
	NumericalFailure
)

func (s Status) String() string {
	switch s {
	case Converged:
		return "converged"
	case MaxIterations:
		return "max iterations"
	case Infeasible:
		return "infeasible"
	case NotPrepared:
		return "not prepared"
	case NumericalFailure:
		return "numerical failure"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

func (s Status) OK() bool { return s == Converged }

type Options struct {
	// MaxIterations bounds the active-set iterations of a bounded QP.
	MaxIterations int `yaml:"max_iterations" json:"max_iterations"`
	// Tolerance is the stationarity threshold of a bounded QP.
	Tolerance float64 `yaml:"tolerance" json:"tolerance"`
	// Regularization is added to the condensed Hessian diagonal.
	Regularization float64 `yaml:"regularization" json:"regularization"`
}

func DefaultOptions() Options {
	return Options{
		MaxIterations:  500,
		Tolerance:      1e-9,
		Regularization: 1e-10,
	}
}

func (o Options) Validate() error {
	if o.MaxIterations <= 0 {
		return fmt.Errorf("solver: max iterations must be positive, got %d", o.MaxIterations)
	}
	if o.Tolerance <= 0 {
		return fmt.Errorf("solver: tolerance must be positive, got %g", o.Tolerance)
	}
	if o.Regularization < 0 {
		return fmt.Errorf("solver: regularization must be non-negative, got %g", o.Regularization)
	}
	return nil
}
