package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/san-kum/rtimpc/internal/config"
	"github.com/san-kum/rtimpc/internal/dynamo"
	"github.com/san-kum/rtimpc/internal/experiment"
	"github.com/san-kum/rtimpc/internal/horizon"
	"github.com/san-kum/rtimpc/internal/layout"
	"github.com/san-kum/rtimpc/internal/physics"
	"github.com/san-kum/rtimpc/internal/rti"
	"github.com/san-kum/rtimpc/internal/solver"
)

// argPosition is the 1-based position of each argument in a single-shot
// call, for diagnostics that point at the offending input.
var argPosition = map[string]int{
	horizon.ArgInitialState: 1,
	horizon.ArgStateGuess:   2,
	horizon.ArgControlGuess: 3,
	horizon.ArgStateRef:     4,
	horizon.ArgControlRef:   5,
	horizon.ArgQ:            6,
	horizon.ArgR:            7,
	horizon.ArgQT:           8,
	horizon.ArgLower:        9,
	horizon.ArgUpper:        10,
}

func stepProblem(cmd *cobra.Command, args []string) error {
	pf, err := config.LoadProblem(args[0])
	if err != nil {
		return err
	}
	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	p, err := pf.Problem()
	if err != nil {
		return err
	}

	reg := experiment.NewRegistry()
	plant, err := reg.GetPlant(pf.Plant)
	if err != nil {
		return err
	}
	integ, err := reg.GetIntegrator(pf.Integrator)
	if err != nil {
		return err
	}
	if plant.StateDim() != pf.Dims.NX || plant.ControlDim() != pf.Dims.NU {
		return fmt.Errorf("%w: %s has NX=%d NU=%d, problem declares %s",
			dynamo.ErrDimensionMismatch, pf.Plant, plant.StateDim(), plant.ControlDim(), pf.Dims)
	}
	if err := pf.Solver.Validate(); err != nil {
		return err
	}

	model := physics.Discretize(plant, integ, pf.Dt)
	ctrl, err := rti.New(pf.Dims, solver.NewGaussNewton(model, pf.Solver),
		rti.WithLogger(logger), rti.WithVerbose(pf.Verbose || verbose))
	if err != nil {
		return err
	}

	res, err := ctrl.Step(p)
	if err != nil {
		return describeArgError(err)
	}

	fmt.Printf("U (%d×%d, %s):\n", res.Controls.Rows, res.Controls.Cols, res.Controls.Order)
	printMatrix(res.Controls)
	fmt.Printf("\nX (%d×%d, %s):\n", res.States.Rows, res.States.Cols, res.States.Order)
	printMatrix(res.States)
	fmt.Printf("\nkkt: %.6e\n", res.KKT)
	fmt.Printf("status: %d (%s)\n", int(res.Status), res.Status)
	fmt.Printf("preparation: %v\n", res.Timing.Preparation)
	fmt.Printf("feedback: %v\n", res.Timing.Feedback)
	if res.Degraded {
		fmt.Println("warning: condensed Hessian needed extra regularization")
	}
	return nil
}

func describeArgError(err error) error {
	var arg string
	var dimErr *horizon.DimensionError
	var boundsErr *horizon.BoundsError
	switch {
	case errors.As(err, &dimErr):
		arg = dimErr.Arg
	case errors.As(err, &boundsErr):
		arg = boundsErr.Arg
	default:
		return err
	}
	if pos, ok := argPosition[arg]; ok {
		return fmt.Errorf("argument %d (%s): %w", pos, arg, err)
	}
	return err
}

func printMatrix(m layout.Matrix) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', tabwriter.AlignRight)
	for r := 0; r < m.Rows; r++ {
		cells := make([]string, m.Cols)
		for c := 0; c < m.Cols; c++ {
			cells[c] = fmt.Sprintf("%.6f", m.At(r, c))
		}
		fmt.Fprintln(w, strings.Join(cells, "\t")+"\t")
	}
	w.Flush()
}
