package metrics

import (
	"math"

	"github.com/san-kum/rtimpc/internal/dynamo"
)

// TrackingCost accumulates the sampled quadratic stage cost
// (x-xr)'Q(x-xr) + (u-ur)'R(u-ur) with diagonal weights, scaled by dt.
type TrackingCost struct {
	ref, uref []float64
	q, r      []float64
	dt        float64
	cost      float64
}

// NewTrackingCost uses unit weights where q or r are empty and a zero
// setpoint where ref or uref are empty.
func NewTrackingCost(ref, uref, q, r []float64, dt float64) *TrackingCost {
	return &TrackingCost{ref: ref, uref: uref, q: q, r: r, dt: dt}
}

func (c *TrackingCost) Name() string { return "tracking_cost" }

func (c *TrackingCost) Observe(x dynamo.State, u dynamo.Control, t float64) {
	c.cost += c.dt * (weighted(x, c.ref, c.q) + weighted(u, c.uref, c.r))
}

func (c *TrackingCost) Value() float64 { return c.cost }
func (c *TrackingCost) Reset()         { c.cost = 0 }

func weighted(v, ref, w []float64) float64 {
	sum := 0.0
	for i, x := range v {
		e := x - at(ref, i, 0)
		sum += at(w, i, 1) * e * e
	}
	return sum
}

func at(v []float64, i int, def float64) float64 {
	if i < len(v) {
		return v[i]
	}
	return def
}

// SettlingTime is the first time after which every state channel stays
// within Band of the setpoint. It is +Inf while the state is still outside.
type SettlingTime struct {
	Band    float64
	ref     []float64
	settled float64
	inside  bool
}

func NewSettlingTime(ref []float64, band float64) *SettlingTime {
	return &SettlingTime{Band: band, ref: ref, settled: math.Inf(1)}
}

func (s *SettlingTime) Name() string { return "settling_time" }

func (s *SettlingTime) Observe(x dynamo.State, u dynamo.Control, t float64) {
	within := true
	for i, v := range x {
		if math.Abs(v-at(s.ref, i, 0)) > s.Band {
			within = false
			break
		}
	}
	switch {
	case within && !s.inside:
		s.settled = t
		s.inside = true
	case !within:
		s.settled = math.Inf(1)
		s.inside = false
	}
}

func (s *SettlingTime) Value() float64 { return s.settled }

func (s *SettlingTime) Reset() {
	s.settled = math.Inf(1)
	s.inside = false
}

// Stability is the fraction of samples whose deviation from the setpoint
// stays within threshold on every channel.
type Stability struct {
	name       string
	threshold  float64
	ref        []float64
	violations int
	samples    int
}

func NewStability(ref []float64, threshold float64) *Stability {
	return &Stability{
		name:      "stability",
		threshold: threshold,
		ref:       ref,
	}
}

func (s *Stability) Name() string {
	return s.name
}

func (s *Stability) Observe(x dynamo.State, u dynamo.Control, t float64) {
	s.samples++
	for i, val := range x {
		if math.Abs(val-at(s.ref, i, 0)) > s.threshold {
			s.violations++
			break
		}
	}
}

func (s *Stability) Value() float64 {
	if s.samples == 0 {
		return 1.0
	}
	return 1.0 - float64(s.violations)/float64(s.samples)
}

func (s *Stability) Reset() {
	s.violations = 0
	s.samples = 0
}
