package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/san-kum/rtimpc/internal/automation"
	"github.com/san-kum/rtimpc/internal/experiment"
	"github.com/san-kum/rtimpc/internal/storage"
)

var (
	sweepParam  string
	sweepMin    float64
	sweepMax    float64
	sweepPoints int
)

func scenarioCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scenario [scenario.yaml]",
		Short: "run a scripted sequence of sessions",
		Args:  cobra.ExactArgs(1),
		RunE:  runScenario,
	}
}

func sweepCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "sweep [plant]",
		Short:   "vary a plant parameter away from the controller's model",
		Example: `  rtimpc sweep pendulum --preset swing_down --param mass --min 0.5 --max 2 --points 7`,
		Args:    cobra.ExactArgs(1),
		RunE:    sweepPlant,
	}
	addSessionFlags(cmd)
	cmd.Flags().StringVar(&sweepParam, "param", "mass", "plant parameter to vary")
	cmd.Flags().Float64Var(&sweepMin, "min", 0.5, "lowest value")
	cmd.Flags().Float64Var(&sweepMax, "max", 2, "highest value")
	cmd.Flags().IntVar(&sweepPoints, "points", 5, "number of values")
	return cmd
}

func runScenario(cmd *cobra.Command, args []string) error {
	sc, err := automation.LoadScenario(args[0])
	if err != nil {
		return err
	}
	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	st := storage.New(dataDir)
	if err := st.Init(); err != nil {
		return err
	}
	runIDs := make(map[int]string)
	onStep := func(sr automation.StepResult) error {
		if !sr.Step.Save {
			return nil
		}
		meta := &storage.RunMetadata{
			Plant:      sr.Config.Plant,
			Preset:     sr.Step.Preset,
			Seed:       sr.Config.Seed,
			Noise:      sr.Config.Noise,
			Dt:         sr.Config.Dt,
			Duration:   sr.Config.Duration,
			Integrator: sr.Config.Integrator,
			Controller: sr.Config.Controller,
		}
		if sr.Config.Controller == "mpc" {
			meta.Horizon = sr.Config.MPC.Horizon
		}
		if err := st.Save(meta, sr.Result); err != nil {
			return err
		}
		runIDs[len(runIDs)] = meta.ID
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	fmt.Printf("scenario: %s\n", sc.Name)
	if sc.Description != "" {
		fmt.Printf("%s\n", sc.Description)
	}
	fmt.Println()
	results, runErr := automation.RunScenario(ctx, sc, experiment.NewRegistry(), logger, onStep)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STEP\tPLANT\tCTRL\tSTEPS\tTRACKING COST\tSETTLING\tRUN ID")
	saved := 0
	for i, r := range results {
		name := r.Step.Name
		if name == "" {
			name = fmt.Sprintf("#%d", i+1)
		}
		id := "-"
		if r.Step.Save {
			id = runIDs[saved]
			saved++
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%.4f\t%s\t%s\n",
			name, r.Config.Plant, r.Config.Controller, r.Result.StepsTaken,
			r.Result.Metrics["tracking_cost"], settling(r.Result.Metrics["settling_time"]), id)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	return runErr
}

func sweepPlant(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd, args[0])
	if err != nil {
		return err
	}
	cfg.Verbose = false
	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	fmt.Printf("sweeping %s %s over [%g, %g] with %s\n\n", cfg.Plant, sweepParam, sweepMin, sweepMax, cfg.Controller)
	results, err := automation.RunSweep(context.Background(), &automation.ParameterSweep{
		Base:      cfg,
		ParamName: sweepParam,
		ParamMin:  sweepMin,
		ParamMax:  sweepMax,
		NumSteps:  sweepPoints,
	}, experiment.NewRegistry(), logger)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "%s\tTRACKING COST\tSETTLING\tFINAL |X|\tSTATUS\n", sweepParam)
	for _, r := range results {
		status := "ok"
		if r.Failed {
			status = "failed: " + r.Err.Error()
		}
		fmt.Fprintf(w, "%g\t%.4f\t%s\t%.3e\t%s\n",
			r.ParamValue, r.Metrics["tracking_cost"], settling(r.Metrics["settling_time"]), r.FinalState.Norm(), status)
	}
	return w.Flush()
}
