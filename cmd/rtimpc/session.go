package main

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/san-kum/rtimpc/internal/control"
	"github.com/san-kum/rtimpc/internal/dynamo"
	"github.com/san-kum/rtimpc/internal/experiment"
	"github.com/san-kum/rtimpc/internal/rti"
	"github.com/san-kum/rtimpc/internal/sim"
	"github.com/san-kum/rtimpc/internal/storage"
	"github.com/san-kum/rtimpc/internal/telemetry"
	"github.com/san-kum/rtimpc/internal/viz"
)

func runSession(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd, args[0])
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
	meta := &storage.RunMetadata{
		Plant:      cfg.Plant,
		Preset:     preset,
		Seed:       cfg.Seed,
		Noise:      cfg.Noise,
		Dt:         cfg.Dt,
		Duration:   cfg.Duration,
		Integrator: cfg.Integrator,
		Controller: cfg.Controller,
	}
	if cfg.Controller == "mpc" {
		meta.Horizon = cfg.MPC.Horizon
	}
	if err := st.Create(meta); err != nil {
		return err
	}

	mem := &telemetry.Memory{}
	recorders := telemetry.Multi{mem}
	var sqlite *telemetry.SQLiteRecorder
	if cfg.Controller == "mpc" {
		sqlite, err = telemetry.NewSQLiteRecorder(st.TelemetryPath(meta.ID), logger)
		if err != nil {
			return err
		}
		meta.TelemetrySession = sqlite.Session()
		recorders = append(recorders, sqlite)
	}

	if metricsAddr != "" {
		prom := telemetry.NewPromRecorder(cfg.Controller)
		recorders = append(recorders, prom)
		srv := &http.Server{Addr: metricsAddr, Handler: prom.Handler()}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Warn("metrics server stopped", zap.Error(err))
			}
		}()
		defer srv.Close()
		fmt.Printf("serving metrics on %s/metrics\n", metricsAddr)
	}

	exp, err := experiment.NewRegistry().Build(cfg, logger, rti.WithRecorder(recorders))
	if err != nil {
		if sqlite != nil {
			sqlite.Close()
		}
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	fmt.Printf("running %s with %s...\n", cfg.Plant, cfg.Controller)
	start := time.Now()
	result, runErr := exp.Run(ctx)
	elapsed := time.Since(start)

	if sqlite != nil {
		if err := sqlite.Close(); err != nil {
			logger.Warn("telemetry close failed", zap.Error(err))
		}
	}
	if result == nil {
		return runErr
	}
	if cfg.Controller == "mpc" {
		meta.Solver = storage.NewSolverSummary(telemetry.Summarize(mem.Cycles))
	}
	if err := st.Save(meta, result); err != nil {
		return err
	}

	fmt.Printf("completed in %v\n", elapsed)
	fmt.Printf("run id: %s\n", meta.ID)
	fmt.Printf("steps: %d\n", result.StepsTaken)
	for _, e := range result.Errors {
		fmt.Printf("stopped: %v\n", e)
	}
	printMetrics(result.Metrics)
	if meta.Solver != nil {
		printSolver(meta.Solver)
	}
	if runErr != nil {
		return fmt.Errorf("session interrupted: %w", runErr)
	}
	return nil
}

func printMetrics(metrics map[string]float64) {
	names := make([]string, 0, len(metrics))
	for name := range metrics {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Println("\nmetrics:")
	for _, name := range names {
		fmt.Printf("  %s: %.6f\n", name, metrics[name])
	}
}

func printSolver(s *storage.SolverSummary) {
	fmt.Println("\nsolver:")
	fmt.Printf("  cycles: %d\n", s.Cycles)
	fmt.Printf("  failures: %d\n", s.Failures)
	fmt.Printf("  degraded: %d\n", s.Degraded)
	fmt.Printf("  mean preparation: %v\n", time.Duration(s.MeanPreparationNs))
	fmt.Printf("  mean feedback: %v\n", time.Duration(s.MeanFeedbackNs))
	fmt.Printf("  max feedback: %v\n", time.Duration(s.MaxFeedbackNs))
	if s.FinalKKT != nil {
		fmt.Printf("  final kkt: %.3e\n", *s.FinalKKT)
	}
}

func runLive(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd, args[0])
	if err != nil {
		return err
	}
	// Iteration lines would tear the dashboard.
	logger := zap.NewNop()
	cfg.Verbose = false

	reg := experiment.NewRegistry()
	source := func() (*sim.Session, *control.MPC, error) {
		exp, err := reg.Build(cfg, logger)
		if err != nil {
			return nil, nil, err
		}
		sess, err := exp.Start()
		if err != nil {
			return nil, nil, err
		}
		return sess, exp.MPC(), nil
	}

	m, err := viz.NewModel(cfg.Plant, dynamo.State(cfg.MPC.StateRef), cfg.Dt, source)
	if err != nil {
		return err
	}
	return viz.Run(m)
}

func benchPlant(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd, args[0])
	if err != nil {
		return err
	}
	cfg.Controller = "mpc"
	cfg.Verbose = false
	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	fmt.Printf("benchmarking %s (dt=%g, duration=%gs)\n\n", cfg.Plant, cfg.Dt, cfg.Duration)
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "N\tCYCLES\tMEAN PREP\tMEAN FEEDBACK\tMAX FEEDBACK\tFAILURES\tFINAL KKT")

	reg := experiment.NewRegistry()
	for _, n := range horizons {
		c := *cfg
		c.MPC.Horizon = n
		mem := &telemetry.Memory{}

		exp, err := reg.Build(&c, logger, rti.WithRecorder(mem))
		if err != nil {
			return fmt.Errorf("horizon %d: %w", n, err)
		}
		if _, err := exp.Run(context.Background()); err != nil {
			return fmt.Errorf("horizon %d: %w", n, err)
		}

		s := telemetry.Summarize(mem.Cycles)
		fmt.Fprintf(w, "%d\t%d\t%v\t%v\t%v\t%d\t%.3e\n",
			n, s.Cycles, s.MeanPreparation, s.MeanFeedback, s.MaxFeedback, s.Failures, s.FinalKKT)
	}
	return w.Flush()
}

// compareControllers runs the same session under each controller. With
// --runs above one every controller sees the same set of noise seeds.
func compareControllers(cmd *cobra.Command, args []string) error {
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
	if runs < 1 {
		return fmt.Errorf("runs must be positive, got %d", runs)
	}

	fmt.Printf("comparing controllers for %s (dt=%g, duration=%gs, runs=%d)\n\n", cfg.Plant, cfg.Dt, cfg.Duration, runs)
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CONTROLLER\tTRACKING COST\tSETTLING\tEFFORT\tSTABILITY\tTIME")

	reg := experiment.NewRegistry()
	for _, name := range []string{"mpc", "lqr", "pid"} {
		c := *cfg
		c.Controller = name

		first, err := reg.Build(&c, logger)
		if err != nil {
			fmt.Fprintf(w, "%s\terror: %v\n", name, err)
			continue
		}
		ens := sim.NewEnsemble(func(run int) (*sim.Simulator, error) {
			exp, err := reg.Build(&c, logger)
			if err != nil {
				return nil, err
			}
			return exp.Simulator(), nil
		}, runs, c.Seed)

		start := time.Now()
		results, err := ens.Run(context.Background(), first.InitState(), first.SimConfig())
		elapsed := time.Since(start)
		if err != nil {
			fmt.Fprintf(w, "%s\terror: %v\n", name, err)
			continue
		}

		mean := meanMetrics(results)
		fmt.Fprintf(w, "%s\t%.4f\t%s\t%.4f\t%.3f\t%v\n",
			name, mean["tracking_cost"], settling(mean["settling_time"]),
			mean["control_effort"], mean["stability"], elapsed.Round(time.Millisecond))
	}
	return w.Flush()
}

func meanMetrics(results []*dynamo.Result) map[string]float64 {
	mean := make(map[string]float64)
	for _, r := range results {
		for k, v := range r.Metrics {
			mean[k] += v / float64(len(results))
		}
	}
	return mean
}

func settling(t float64) string {
	if math.IsInf(t, 1) {
		return "never"
	}
	return fmt.Sprintf("%.2fs", t)
}
