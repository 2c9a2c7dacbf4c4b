// Package telemetry carries per-iteration diagnostics out of the controller.
// Recorders are advisory: they never influence the control result, and a
// recorder failure is logged rather than returned to the control loop.
package telemetry

import (
	"time"

	"github.com/san-kum/rtimpc/internal/solver"
)

// Cycle describes one completed real-time iteration.
type Cycle struct {
	Iteration   int
	Start       time.Time
	Preparation time.Duration
	Feedback    time.Duration
	KKT         float64
	Status      solver.Status
	Degraded    bool
}

type Recorder interface {
	Record(c Cycle)
}

// Multi fans a cycle out to several recorders in order.
type Multi []Recorder

func (m Multi) Record(c Cycle) {
	for _, r := range m {
		if r != nil {
			r.Record(c)
		}
	}
}

// Memory keeps every cycle in a slice.
type Memory struct {
	Cycles []Cycle
}

func (m *Memory) Record(c Cycle) {
	m.Cycles = append(m.Cycles, c)
}

// Summary aggregates timing over a set of cycles.
type Summary struct {
	Cycles          int
	Failures        int
	Degraded        int
	MeanPreparation time.Duration
	MeanFeedback    time.Duration
	MaxFeedback     time.Duration
	FinalKKT        float64
}

func Summarize(cycles []Cycle) Summary {
	s := Summary{Cycles: len(cycles)}
	if len(cycles) == 0 {
		return s
	}
	var prep, fb time.Duration
	for _, c := range cycles {
		prep += c.Preparation
		fb += c.Feedback
		if c.Feedback > s.MaxFeedback {
			s.MaxFeedback = c.Feedback
		}
		if !c.Status.OK() {
			s.Failures++
		}
		if c.Degraded {
			s.Degraded++
		}
	}
	s.MeanPreparation = prep / time.Duration(len(cycles))
	s.MeanFeedback = fb / time.Duration(len(cycles))
	s.FinalKKT = cycles[len(cycles)-1].KKT
	return s
}
