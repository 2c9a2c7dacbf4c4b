// Package storage keeps finished sessions on disk, one directory per run:
// metadata.json, states.csv and, when cycle telemetry was recorded,
// telemetry.db.
package storage

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/xid"

	"github.com/san-kum/rtimpc/internal/dynamo"
	"github.com/san-kum/rtimpc/internal/telemetry"
)

const (
	metadataFile  = "metadata.json"
	statesFile    = "states.csv"
	telemetryFile = "telemetry.db"
)

var ErrRunNotFound = errors.New("storage: run not found")

type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

// SolverSummary is the per-run digest of the cycle telemetry. FinalKKT is
// omitted when the last cycle produced no finite value.
type SolverSummary struct {
	Cycles            int      `json:"cycles"`
	Failures          int      `json:"failures"`
	Degraded          int      `json:"degraded"`
	MeanPreparationNs int64    `json:"mean_preparation_ns"`
	MeanFeedbackNs    int64    `json:"mean_feedback_ns"`
	MaxFeedbackNs     int64    `json:"max_feedback_ns"`
	FinalKKT          *float64 `json:"final_kkt,omitempty"`
}

func NewSolverSummary(s telemetry.Summary) *SolverSummary {
	out := &SolverSummary{
		Cycles:            s.Cycles,
		Failures:          s.Failures,
		Degraded:          s.Degraded,
		MeanPreparationNs: s.MeanPreparation.Nanoseconds(),
		MeanFeedbackNs:    s.MeanFeedback.Nanoseconds(),
		MaxFeedbackNs:     s.MaxFeedback.Nanoseconds(),
	}
	if s.Cycles > 0 && !math.IsNaN(s.FinalKKT) && !math.IsInf(s.FinalKKT, 0) {
		kkt := s.FinalKKT
		out.FinalKKT = &kkt
	}
	return out
}

type RunMetadata struct {
	ID               string             `json:"id"`
	Plant            string             `json:"plant"`
	Preset           string             `json:"preset,omitempty"`
	Timestamp        time.Time          `json:"timestamp"`
	Seed             uint64             `json:"seed"`
	Noise            float64            `json:"noise"`
	Dt               float64            `json:"dt"`
	Duration         float64            `json:"duration"`
	Integrator       string             `json:"integrator"`
	Controller       string             `json:"controller"`
	Horizon          int                `json:"horizon,omitempty"`
	Steps            int                `json:"steps"`
	Metrics          map[string]float64 `json:"metrics"`
	Solver           *SolverSummary     `json:"solver,omitempty"`
	TelemetrySession string             `json:"telemetry_session,omitempty"`
}

// Create assigns meta an id and timestamp and makes its run directory, so
// that telemetry can be written there while the session is still running.
func (s *Store) Create(meta *RunMetadata) error {
	if meta.ID == "" {
		meta.ID = fmt.Sprintf("%s_%s", meta.Plant, xid.New().String())
	}
	if meta.Timestamp.IsZero() {
		meta.Timestamp = time.Now()
	}
	return os.MkdirAll(s.runDir(meta.ID), 0755)
}

func (s *Store) TelemetryPath(runID string) string {
	return filepath.Join(s.runDir(runID), telemetryFile)
}

// Save writes the metadata and the trajectory of a finished session. Meta
// is created first if it has no id yet.
func (s *Store) Save(meta *RunMetadata, result *dynamo.Result) error {
	if meta.ID == "" {
		if err := s.Create(meta); err != nil {
			return err
		}
	}
	meta.Steps = result.StepsTaken
	meta.Metrics = finite(result.Metrics)

	if err := s.writeMetadata(meta); err != nil {
		return err
	}
	return s.writeStates(meta.ID, result)
}

func (s *Store) writeMetadata(meta *RunMetadata) error {
	f, err := os.Create(filepath.Join(s.runDir(meta.ID), metadataFile))
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(meta)
}

func (s *Store) writeStates(runID string, result *dynamo.Result) error {
	f, err := os.Create(filepath.Join(s.runDir(runID), statesFile))
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if len(result.States) == 0 {
		w.Flush()
		return w.Error()
	}

	nx := len(result.States[0])
	nu := 0
	if len(result.Controls) > 0 {
		nu = len(result.Controls[0])
	}

	header := []string{"time"}
	for i := 0; i < nx; i++ {
		header = append(header, fmt.Sprintf("x%d", i))
	}
	for i := 0; i < nu; i++ {
		header = append(header, fmt.Sprintf("u%d", i))
	}
	if err := w.Write(header); err != nil {
		return err
	}

	for i, x := range result.States {
		row := make([]string, 0, 1+nx+nu)
		row = append(row, strconv.FormatFloat(result.Times[i], 'f', 6, 64))
		for _, v := range x {
			row = append(row, strconv.FormatFloat(v, 'f', 6, 64))
		}
		// The final sample has no control applied after it.
		for j := 0; j < nu; j++ {
			if i < len(result.Controls) {
				row = append(row, strconv.FormatFloat(result.Controls[i][j], 'f', 6, 64))
			} else {
				row = append(row, "")
			}
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// List returns every stored run, newest first. Directories without
// metadata are skipped.
func (s *Store) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var runs []RunMetadata
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		meta, err := s.Load(entry.Name())
		if err != nil {
			continue
		}
		runs = append(runs, *meta)
	}
	sort.Slice(runs, func(i, j int) bool {
		return runs[i].Timestamp.After(runs[j].Timestamp)
	})
	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.runDir(runID), metadataFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
		}
		return nil, err
	}
	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("parse metadata of %s: %w", runID, err)
	}
	return &meta, nil
}

// LoadStates reads a trajectory back. Controls has one row fewer than
// states.
func (s *Store) LoadStates(runID string) (*dynamo.Result, error) {
	f, err := os.Open(filepath.Join(s.runDir(runID), statesFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
		}
		return nil, err
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, err
	}
	result := &dynamo.Result{Metrics: make(map[string]float64)}
	if len(records) == 0 {
		return result, nil
	}

	header := records[0]
	nx := 0
	for _, h := range header {
		if strings.HasPrefix(h, "x") {
			nx++
		}
	}

	for line, rec := range records[1:] {
		vals := make([]float64, len(rec))
		hasControl := true
		for i, field := range rec {
			if field == "" {
				hasControl = false
				continue
			}
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, fmt.Errorf("%s line %d: %w", statesFile, line+2, err)
			}
			vals[i] = v
		}
		result.Times = append(result.Times, vals[0])
		result.States = append(result.States, dynamo.State(vals[1 : 1+nx : 1+nx]))
		if len(vals) > 1+nx && hasControl {
			result.Controls = append(result.Controls, dynamo.Control(vals[1+nx:]))
		}
	}
	result.StepsTaken = len(result.Controls)
	return result, nil
}

// LoadCycles reads the cycle telemetry recorded for a run.
func (s *Store) LoadCycles(runID string) ([]telemetry.Cycle, error) {
	meta, err := s.Load(runID)
	if err != nil {
		return nil, err
	}
	path := s.TelemetryPath(runID)
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: no telemetry for %s", ErrRunNotFound, runID)
	}
	return telemetry.ReadCycles(path, meta.TelemetrySession)
}

func (s *Store) runDir(runID string) string {
	return filepath.Join(s.baseDir, runID)
}

// finite drops values JSON cannot carry, such as a settling time that never
// settled.
func finite(m map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(m))
	for k, v := range m {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		out[k] = v
	}
	return out
}
