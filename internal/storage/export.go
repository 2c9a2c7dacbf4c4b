package storage

import (
	"encoding/json"
	"io"

	"github.com/san-kum/rtimpc/internal/dynamo"
)

type ExportData struct {
	Plant      string             `json:"plant"`
	Integrator string             `json:"integrator"`
	Controller string             `json:"controller"`
	Dt         float64            `json:"dt"`
	Duration   float64            `json:"duration"`
	Steps      int                `json:"steps"`
	Times      []float64          `json:"times"`
	States     [][]float64        `json:"states"`
	Controls   [][]float64        `json:"controls"`
	Metrics    map[string]float64 `json:"metrics"`
	Solver     *SolverSummary     `json:"solver,omitempty"`
}

// ExportJSON writes meta and its trajectory as one indented JSON document.
func ExportJSON(w io.Writer, meta *RunMetadata, result *dynamo.Result) error {
	data := ExportData{
		Plant:      meta.Plant,
		Integrator: meta.Integrator,
		Controller: meta.Controller,
		Dt:         meta.Dt,
		Duration:   meta.Duration,
		Steps:      result.StepsTaken,
		Times:      result.Times,
		States:     make([][]float64, len(result.States)),
		Controls:   make([][]float64, len(result.Controls)),
		Metrics:    finite(result.Metrics),
		Solver:     meta.Solver,
	}
	for i, s := range result.States {
		data.States[i] = s
	}
	for i, c := range result.Controls {
		data.Controls[i] = c
	}
	if len(data.Metrics) == 0 {
		data.Metrics = finite(meta.Metrics)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}
