package main

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"text/tabwriter"

	"github.com/guptarohit/asciigraph"
	"github.com/spf13/cobra"

	"github.com/san-kum/rtimpc/internal/export"
	"github.com/san-kum/rtimpc/internal/storage"
)

var captions = map[string][]string{
	"pendulum":          {"theta (angle)", "omega (angular velocity)"},
	"cartpole":          {"cart position", "cart velocity", "pole angle", "pole angular velocity"},
	"spring_mass":       {"position", "velocity"},
	"double_integrator": {"position", "velocity"},
}

func listRuns(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	runs, err := st.List()
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tPLANT\tTIME\tDURATION\tDT\tCTRL\tN\tFAILURES")

	for _, run := range runs {
		failures := "-"
		if run.Solver != nil {
			failures = fmt.Sprintf("%d/%d", run.Solver.Failures, run.Solver.Cycles)
		}
		horizon := "-"
		if run.Horizon > 0 {
			horizon = fmt.Sprintf("%d", run.Horizon)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%.2fs\t%.4fs\t%s\t%s\t%s\n",
			run.ID,
			run.Plant,
			run.Timestamp.Format("2006-01-02 15:04:05"),
			run.Duration,
			run.Dt,
			run.Controller,
			horizon,
			failures,
		)
	}

	return w.Flush()
}

func plotRun(cmd *cobra.Command, args []string) error {
	runID := args[0]

	st := storage.New(dataDir)
	meta, err := st.Load(runID)
	if err != nil {
		return err
	}
	result, err := st.LoadStates(runID)
	if err != nil {
		return err
	}
	if len(result.States) == 0 {
		return fmt.Errorf("no data to plot")
	}

	fmt.Printf("run: %s\n", meta.ID)
	fmt.Printf("plant: %s (%s)\n", meta.Plant, meta.Controller)
	fmt.Printf("samples: %d\n\n", len(result.States))

	names := captions[meta.Plant]
	for i := range result.States[0] {
		data := make([]float64, len(result.States))
		for k, x := range result.States {
			data[k] = x[i]
		}
		caption := fmt.Sprintf("x%d vs time", i)
		if i < len(names) {
			caption = names[i]
		}
		plot(data, caption)
	}

	if len(result.Controls) > 0 {
		for j := range result.Controls[0] {
			data := make([]float64, len(result.Controls))
			for k, u := range result.Controls {
				data[k] = u[j]
			}
			plot(data, fmt.Sprintf("u%d (applied control)", j))
		}
	}

	cycles, err := st.LoadCycles(runID)
	if errors.Is(err, storage.ErrRunNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	kkt := make([]float64, 0, len(cycles))
	feedback := make([]float64, 0, len(cycles))
	for _, c := range cycles {
		if !math.IsInf(c.KKT, 0) && !math.IsNaN(c.KKT) {
			kkt = append(kkt, math.Log10(math.Max(c.KKT, 1e-16)))
		}
		feedback = append(feedback, float64(c.Feedback.Microseconds()))
	}
	plot(kkt, "log10 KKT per iteration")
	plot(feedback, "feedback duration (µs)")
	return nil
}

func plot(data []float64, caption string) {
	if len(data) < 2 {
		return
	}
	fmt.Println(asciigraph.Plot(data,
		asciigraph.Height(10),
		asciigraph.Width(80),
		asciigraph.Caption(caption),
	))
	fmt.Println()
}

func exportRun(cmd *cobra.Command, args []string) error {
	runID := args[0]

	st := storage.New(dataDir)
	meta, err := st.Load(runID)
	if err != nil {
		return err
	}
	result, err := st.LoadStates(runID)
	if err != nil {
		return err
	}

	write := func(w io.Writer) error { return storage.ExportJSON(w, meta, result) }
	switch format {
	case "json":
	case "svg":
		write = func(w io.Writer) error {
			return export.TrajectorySVG(w, export.FromResult(result, captions[meta.Plant]), 960, 720)
		}
	default:
		return fmt.Errorf("unknown format: %s (json, svg)", format)
	}

	if outFile == "" {
		return write(os.Stdout)
	}
	f, err := os.Create(outFile)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := write(f); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "exported %s to %s\n", runID, outFile)
	return nil
}
