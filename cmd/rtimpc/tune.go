package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/san-kum/rtimpc/internal/experiment"
	"github.com/san-kum/rtimpc/internal/optim"
)

var (
	grid   []string
	metric string
	top    int
)

func tuneCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tune [plant]",
		Short: "grid search mpc parameters against a session metric",
		Example: `  rtimpc tune pendulum --grid horizon=10,20,40 --grid r_scale=0.01,0.1,1
  rtimpc tune cartpole --preset default --grid q_scale=1,10 --metric settling_time`,
		Args: cobra.ExactArgs(1),
		RunE: tunePlant,
	}
	addSessionFlags(cmd)
	cmd.Flags().StringArrayVar(&grid, "grid", nil, "name=v1,v2,... (repeatable; one of "+strings.Join(optim.Tunable, ", ")+")")
	cmd.Flags().StringVar(&metric, "metric", "tracking_cost", "metric to minimize")
	cmd.Flags().IntVar(&top, "top", 5, "number of trials to print")
	return cmd
}

func tunePlant(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd, args[0])
	if err != nil {
		return err
	}
	cfg.Controller = "mpc"
	cfg.Verbose = false

	names, ranges, err := parseGrid(grid)
	if err != nil {
		return err
	}
	search, err := optim.NewGridSearch(names, ranges)
	if err != nil {
		return err
	}

	reg := experiment.NewRegistry()
	plant, err := reg.GetPlant(cfg.Plant)
	if err != nil {
		return err
	}
	nx, nu := plant.StateDim(), plant.ControlDim()

	// Grid points are run concurrently; per-session warnings would interleave.
	logger := zap.NewNop()
	build := func(params map[string]float64) (*experiment.Experiment, error) {
		c, err := optim.Apply(cfg, nx, nu, params)
		if err != nil {
			return nil, err
		}
		return reg.Build(c, logger)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	fmt.Printf("tuning %s over %d points (minimizing %s)\n\n", cfg.Plant, len(search.Points()), metric)
	trials, err := search.Search(ctx, build, metric)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "RANK\t%s\t%s\n", strings.ToUpper(strings.Join(names, "\t")), strings.ToUpper(metric))
	for i, tr := range trials {
		if i == top {
			break
		}
		cells := make([]string, len(names))
		for j, name := range names {
			cells[j] = strconv.FormatFloat(tr.Params[name], 'g', -1, 64)
		}
		score := fmt.Sprintf("%.6f", tr.Score)
		if tr.Err != nil {
			score = "failed: " + tr.Err.Error()
		}
		fmt.Fprintf(w, "%d\t%s\t%s\n", i+1, strings.Join(cells, "\t"), score)
	}
	return w.Flush()
}

// parseGrid reads name=v1,v2 specs. Names come back sorted so the table
// columns do not depend on flag order.
func parseGrid(specs []string) ([]string, [][]float64, error) {
	if len(specs) == 0 {
		return nil, nil, fmt.Errorf("at least one --grid is required")
	}
	values := make(map[string][]float64, len(specs))
	for _, spec := range specs {
		name, list, ok := strings.Cut(spec, "=")
		if !ok || name == "" || list == "" {
			return nil, nil, fmt.Errorf("invalid grid %q, expected name=v1,v2", spec)
		}
		if _, dup := values[name]; dup {
			return nil, nil, fmt.Errorf("grid %s given twice", name)
		}
		for _, s := range strings.Split(list, ",") {
			v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
			if err != nil {
				return nil, nil, fmt.Errorf("grid %s: %w", name, err)
			}
			values[name] = append(values[name], v)
		}
	}

	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)
	ranges := make([][]float64, len(names))
	for i, name := range names {
		ranges[i] = values[name]
	}
	return names, ranges, nil
}
