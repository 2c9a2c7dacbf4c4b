package control

import (
	"fmt"
	"math"

	"github.com/san-kum/rtimpc/internal/dynamo"
)

// PID drives the first state channel to Target with a single control. It is
// the model-free baseline for closed-loop comparisons and honours the same
// actuator limits the MPC is given. The integrator stops accumulating while
// the output is saturated.
type PID struct {
	Kp, Ki, Kd  float64
	Target      float64
	FeedForward float64

	lower, upper float64
	integral     float64
	prevErr      float64
	prevT        float64
	primed       bool
}

func NewPID(kp, ki, kd, target float64) *PID {
	return &PID{
		Kp:     kp,
		Ki:     ki,
		Kd:     kd,
		Target: target,
		lower:  math.Inf(-1),
		upper:  math.Inf(1),
	}
}

// SetLimits clamps the output to [lower, upper].
func (p *PID) SetLimits(lower, upper float64) error {
	if lower > upper {
		return fmt.Errorf("pid: lower limit %g above upper limit %g", lower, upper)
	}
	p.lower, p.upper = lower, upper
	return nil
}

func (p *PID) Compute(x dynamo.State, t float64) dynamo.Control {
	if len(x) == 0 {
		return dynamo.Control{p.clamp(p.FeedForward)}
	}
	e := p.Target - x[0]

	var derivative float64
	dt := t - p.prevT
	if p.primed && dt > 0 {
		derivative = (e - p.prevErr) / dt
	} else {
		dt = 0
	}
	p.prevErr, p.prevT, p.primed = e, t, true

	integral := p.integral + e*dt
	raw := p.FeedForward + p.Kp*e + p.Ki*integral + p.Kd*derivative
	u := p.clamp(raw)
	if u == raw {
		p.integral = integral
	}
	return dynamo.Control{u}
}

func (p *PID) clamp(u float64) float64 {
	return math.Min(math.Max(u, p.lower), p.upper)
}

func (p *PID) Reset() {
	p.integral = 0
	p.prevErr = 0
	p.prevT = 0
	p.primed = false
}

func (p *PID) GetParams() map[string]float64 {
	return map[string]float64{
		"kp":     p.Kp,
		"ki":     p.Ki,
		"kd":     p.Kd,
		"target": p.Target,
	}
}

func (p *PID) SetParam(name string, value float64) error {
	switch name {
	case "kp":
		p.Kp = value
	case "ki":
		p.Ki = value
	case "kd":
		p.Kd = value
	case "target":
		p.Target = value
	default:
		return fmt.Errorf("unknown param: %s", name)
	}
	return nil
}
