package metrics

import (
	"math"

	"github.com/san-kum/rtimpc/internal/dynamo"
)

// saturationTol is how close to a bound a control counts as saturated.
const saturationTol = 1e-9

// ControlEffort is the mean over samples of the summed absolute control.
// With bounds it also counts the samples where any channel sits on one.
type ControlEffort struct {
	lower, upper []float64

	sum       float64
	peak      float64
	saturated int
	samples   int
}

// NewControlEffort takes the actuator bounds; nil slices mean unbounded.
func NewControlEffort(lower, upper []float64) *ControlEffort {
	return &ControlEffort{lower: lower, upper: upper}
}

func (c *ControlEffort) Name() string { return "control_effort" }

func (c *ControlEffort) Observe(x dynamo.State, u dynamo.Control, t float64) {
	onBound := false
	for i, v := range u {
		a := math.Abs(v)
		c.sum += a
		c.peak = math.Max(c.peak, a)
		if i < len(c.lower) && v <= c.lower[i]+saturationTol {
			onBound = true
		}
		if i < len(c.upper) && v >= c.upper[i]-saturationTol {
			onBound = true
		}
	}
	if onBound {
		c.saturated++
	}
	c.samples++
}

func (c *ControlEffort) Value() float64 {
	if c.samples == 0 {
		return 0
	}
	return c.sum / float64(c.samples)
}

// Peak is the largest absolute control channel seen.
func (c *ControlEffort) Peak() float64 { return c.peak }

// Saturation is the fraction of samples with a channel on a bound.
func (c *ControlEffort) Saturation() float64 {
	if c.samples == 0 {
		return 0
	}
	return float64(c.saturated) / float64(c.samples)
}

func (c *ControlEffort) Reset() {
	*c = ControlEffort{lower: c.lower, upper: c.upper}
}

// SaturationMetric reports Saturation as its own "saturation" metric. Register
// it next to c; it reads c and never observes samples itself.
func (c *ControlEffort) SaturationMetric() dynamo.Metric { return saturationView{c} }

type saturationView struct{ effort *ControlEffort }

func (s saturationView) Name() string                                        { return "saturation" }
func (s saturationView) Observe(x dynamo.State, u dynamo.Control, t float64) {}
func (s saturationView) Value() float64                                      { return s.effort.Saturation() }
func (s saturationView) Reset()                                              {}
