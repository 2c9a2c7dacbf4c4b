package integrators

import "github.com/san-kum/rtimpc/internal/dynamo"

var (
	rk4Nodes   = [4]float64{0, 0.5, 0.5, 1}
	rk4Weights = [4]float64{1, 2, 2, 1}
)

// RK4 integrates one zero-order-hold sample with the classic four-stage
// scheme. Stage storage is reused across calls, so an RK4 belongs to one
// goroutine.
type RK4 struct {
	k   [4]dynamo.State
	tmp dynamo.State
}

func NewRK4() *RK4 {
	return &RK4{}
}

func (r *RK4) resize(n int) {
	if len(r.tmp) == n {
		return
	}
	for s := range r.k {
		r.k[s] = make(dynamo.State, n)
	}
	r.tmp = make(dynamo.State, n)
}

func (r *RK4) Step(dyn dynamo.System, x dynamo.State, u dynamo.Control, t, dt float64) dynamo.State {
	n := len(x)
	r.resize(n)

	for s := range r.k {
		in := x
		if s > 0 {
			advance(r.tmp, x, r.k[s-1], rk4Nodes[s]*dt)
			in = r.tmp
		}
		copy(r.k[s], dyn.Derive(in, u, t+rk4Nodes[s]*dt))
	}

	next := make(dynamo.State, n)
	dt6 := dt / 6.0
	for i := range next {
		var acc float64
		for s, w := range rk4Weights {
			acc += w * r.k[s][i]
		}
		next[i] = x[i] + dt6*acc
	}
	return next
}

// advance writes x + h*k into dst.
func advance(dst, x, k dynamo.State, h float64) {
	for i := range dst {
		dst[i] = x[i] + h*k[i]
	}
}
