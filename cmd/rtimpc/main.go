package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/san-kum/rtimpc/internal/config"
	"github.com/san-kum/rtimpc/internal/solver"
)

var (
	dataDir     string
	configFile  string
	preset      string
	verbose     bool
	dt          float64
	duration    float64
	theta       float64
	omega       float64
	pos         float64
	vel         float64
	seed        uint64
	noise       float64
	integrator  string
	controller  string
	horizonLen  int
	shift       bool
	lower       []float64
	upper       []float64
	metricsAddr string
	outFile     string
	format      string
	runs        int
	horizons    []int
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "rtimpc",
		Short:        "real-time iteration model predictive control",
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&dataDir, "data", ".rtimpc", "data directory")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log every real-time iteration")

	stepCmd := &cobra.Command{
		Use:   "step [problem.yaml]",
		Short: "solve one real-time iteration from a problem file",
		Args:  cobra.ExactArgs(1),
		RunE:  stepProblem,
	}

	runCmd := &cobra.Command{
		Use:   "run [plant]",
		Short: "run a closed-loop session and store it",
		Args:  cobra.ExactArgs(1),
		RunE:  runSession,
	}
	addSessionFlags(runCmd)
	runCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve prometheus metrics on this address while running")

	liveCmd := &cobra.Command{
		Use:   "live [plant]",
		Short: "run a closed-loop session with the live dashboard",
		Args:  cobra.ExactArgs(1),
		RunE:  runLive,
	}
	addSessionFlags(liveCmd)

	benchCmd := &cobra.Command{
		Use:   "bench [plant]",
		Short: "time preparation and feedback over several horizon lengths",
		Args:  cobra.ExactArgs(1),
		RunE:  benchPlant,
	}
	addSessionFlags(benchCmd)
	benchCmd.Flags().IntSliceVar(&horizons, "horizons", []int{10, 20, 40}, "horizon lengths to time")

	compareCmd := &cobra.Command{
		Use:   "compare [plant]",
		Short: "compare mpc against the lqr and pid baselines",
		Args:  cobra.ExactArgs(1),
		RunE:  compareControllers,
	}
	addSessionFlags(compareCmd)
	compareCmd.Flags().IntVar(&runs, "runs", 1, "noisy runs per controller")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list stored runs",
		RunE:  listRuns,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot a stored run",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}

	exportCmd := &cobra.Command{
		Use:   "export [run_id]",
		Short: "export a stored run as JSON or SVG",
		Args:  cobra.ExactArgs(1),
		RunE:  exportRun,
	}
	exportCmd.Flags().StringVarP(&outFile, "out", "o", "", "output file (default stdout)")
	exportCmd.Flags().StringVarP(&format, "format", "f", "json", "output format (json, svg)")

	presetsCmd := &cobra.Command{
		Use:   "presets [plant]",
		Short: "list available presets for a plant",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			presets := config.ListPresets(args[0])
			if len(presets) == 0 {
				fmt.Printf("no presets for plant: %s\n", args[0])
				return nil
			}
			fmt.Printf("presets for %s:\n", args[0])
			for _, p := range presets {
				cfg := config.GetPreset(args[0], p)
				fmt.Printf("  %-12s %s, N=%d, dt=%g\n", p, cfg.Controller, cfg.MPC.Horizon, cfg.Dt)
			}
			return nil
		},
	}

	rootCmd.AddCommand(stepCmd, runCmd, liveCmd, benchCmd, compareCmd, tuneCmd(), sweepCmd(), scenarioCmd(), listCmd, plotCmd, exportCmd, presetsCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func addSessionFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&configFile, "config", "", "config file path (yaml)")
	cmd.Flags().StringVar(&preset, "preset", "", "use preset configuration")
	cmd.Flags().Float64Var(&dt, "dt", config.DefaultDt, "sampling period")
	cmd.Flags().Float64Var(&duration, "time", config.DefaultDuration, "duration")
	cmd.Flags().Float64Var(&theta, "theta", config.DefaultTheta, "initial angle")
	cmd.Flags().Float64Var(&omega, "omega", 0.0, "initial angular velocity")
	cmd.Flags().Float64Var(&pos, "pos", 0.0, "initial position")
	cmd.Flags().Float64Var(&vel, "vel", 0.0, "initial velocity")
	cmd.Flags().Uint64Var(&seed, "seed", 0, "measurement noise seed")
	cmd.Flags().Float64Var(&noise, "noise", 0.0, "measurement noise standard deviation")
	cmd.Flags().StringVar(&integrator, "integrator", "rk4", "integrator")
	cmd.Flags().StringVar(&controller, "controller", "mpc", "controller (mpc, lqr, pid, none)")
	cmd.Flags().IntVarP(&horizonLen, "horizon", "N", config.DefaultHorizon, "prediction horizon")
	cmd.Flags().BoolVar(&shift, "shift", false, "shift the warm start by one stage between cycles")
	cmd.Flags().Float64SliceVar(&lower, "lower", nil, "control lower bounds")
	cmd.Flags().Float64SliceVar(&upper, "upper", nil, "control upper bounds")
}

// resolveConfig layers the session config: defaults, then preset, then
// config file, then any flag set on the command line.
func resolveConfig(cmd *cobra.Command, plant string) (*config.Config, error) {
	cfg := config.DefaultConfig()
	cfg.Plant = plant

	if preset != "" {
		p := config.GetPreset(plant, preset)
		if p == nil {
			return nil, fmt.Errorf("unknown preset: %s (available: %v)", preset, config.ListPresets(plant))
		}
		cfg = p
	}

	if configFile != "" {
		loaded, err := config.Load(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
		cfg.Plant = plant
	}

	flags := cmd.Flags()
	if flags.Changed("dt") {
		cfg.Dt = dt
	}
	if flags.Changed("time") {
		cfg.Duration = duration
	}
	if flags.Changed("theta") {
		cfg.InitState.Theta = theta
	}
	if flags.Changed("omega") {
		cfg.InitState.Omega = omega
	}
	if flags.Changed("pos") {
		cfg.InitState.Pos = pos
	}
	if flags.Changed("vel") {
		cfg.InitState.Vel = vel
	}
	if flags.Changed("seed") {
		cfg.Seed = seed
	}
	if flags.Changed("noise") {
		cfg.Noise = noise
	}
	if flags.Changed("integrator") {
		cfg.Integrator = integrator
	}
	if flags.Changed("controller") {
		cfg.Controller = controller
	}
	if flags.Changed("horizon") {
		cfg.MPC.Horizon = horizonLen
	}
	if flags.Changed("shift") {
		cfg.MPC.Shift = shift
	}
	if flags.Changed("lower") {
		cfg.MPC.Lower = lower
	}
	if flags.Changed("upper") {
		cfg.MPC.Upper = upper
	}
	if verbose {
		cfg.Verbose = true
	}
	if cfg.MPC.Horizon == 0 {
		cfg.MPC.Horizon = config.DefaultHorizon
	}
	if cfg.MPC.Solver == (solver.Options{}) {
		cfg.MPC.Solver = solver.DefaultOptions()
	}
	return cfg, nil
}

// newLogger prints warnings in plain console form; --verbose switches to a
// development logger so the per-iteration lines show.
func newLogger() (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	cfg.Encoding = "console"
	return cfg.Build()
}
