package physics

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/rtimpc/internal/dynamo"
)

const DefaultPerturbation = 1e-6

// Discrete samples a continuous plant with a fixed integrator step and
// differentiates the resulting map by finite differences.
type Discrete struct {
	System     dynamo.System
	Integrator dynamo.Integrator
	Dt         float64
	// Perturbation is the relative finite-difference step.
	Perturbation float64
	// Central selects central instead of forward differences.
	Central bool

	xp, up []float64
}

func Discretize(sys dynamo.System, integ dynamo.Integrator, dt float64) *Discrete {
	return &Discrete{
		System:       sys,
		Integrator:   integ,
		Dt:           dt,
		Perturbation: DefaultPerturbation,
		Central:      true,
	}
}

func (d *Discrete) StateDim() int   { return d.System.StateDim() }
func (d *Discrete) ControlDim() int { return d.System.ControlDim() }

func (d *Discrete) Next(x, u []float64) []float64 {
	return d.Integrator.Step(d.System, x, u, 0, d.Dt)
}

func (d *Discrete) Linearize(x, u []float64, a, b *mat.Dense) []float64 {
	nx, nu := len(x), len(u)
	if len(d.xp) != nx {
		d.xp = make([]float64, nx)
	}
	if len(d.up) != nu {
		d.up = make([]float64, nu)
	}
	f := d.Next(x, u)

	copy(d.up, u)
	for j := 0; j < nx; j++ {
		copy(d.xp, x)
		h := d.step(x[j])
		d.xp[j] = x[j] + h
		fp := d.Next(d.xp, d.up)
		if d.Central {
			d.xp[j] = x[j] - h
			fm := d.Next(d.xp, d.up)
			for i := 0; i < nx; i++ {
				a.Set(i, j, (fp[i]-fm[i])/(2*h))
			}
			continue
		}
		for i := 0; i < nx; i++ {
			a.Set(i, j, (fp[i]-f[i])/h)
		}
	}

	copy(d.xp, x)
	for j := 0; j < nu; j++ {
		copy(d.up, u)
		h := d.step(u[j])
		d.up[j] = u[j] + h
		fp := d.Next(d.xp, d.up)
		if d.Central {
			d.up[j] = u[j] - h
			fm := d.Next(d.xp, d.up)
			for i := 0; i < nx; i++ {
				b.Set(i, j, (fp[i]-fm[i])/(2*h))
			}
			continue
		}
		for i := 0; i < nx; i++ {
			b.Set(i, j, (fp[i]-f[i])/h)
		}
	}
	return f
}

func (d *Discrete) step(v float64) float64 {
	p := d.Perturbation
	if p <= 0 {
		p = DefaultPerturbation
	}
	return p * math.Max(1, math.Abs(v))
}

// Linear is the discrete-time plant x+ = A x + B u.
type Linear struct {
	A *mat.Dense
	B *mat.Dense

	next *mat.VecDense
	tmp  *mat.VecDense
}

func NewLinear(a, b *mat.Dense) *Linear {
	nx, _ := a.Dims()
	return &Linear{
		A:    a,
		B:    b,
		next: mat.NewVecDense(nx, nil),
		tmp:  mat.NewVecDense(nx, nil),
	}
}

// SampledDoubleIntegrator is the exactly discretised double integrator with
// position and velocity states and an acceleration input.
func SampledDoubleIntegrator(dt float64) *Linear {
	a := mat.NewDense(2, 2, []float64{1, dt, 0, 1})
	b := mat.NewDense(2, 1, []float64{0.5 * dt * dt, dt})
	return NewLinear(a, b)
}

func (l *Linear) StateDim() int {
	r, _ := l.A.Dims()
	return r
}

func (l *Linear) ControlDim() int {
	_, c := l.B.Dims()
	return c
}

func (l *Linear) Next(x, u []float64) []float64 {
	l.next.MulVec(l.A, mat.NewVecDense(len(x), append([]float64(nil), x...)))
	l.tmp.MulVec(l.B, mat.NewVecDense(len(u), append([]float64(nil), u...)))
	l.next.AddVec(l.next, l.tmp)
	out := make([]float64, l.next.Len())
	copy(out, l.next.RawVector().Data)
	return out
}

func (l *Linear) Linearize(x, u []float64, a, b *mat.Dense) []float64 {
	a.Copy(l.A)
	b.Copy(l.B)
	return l.Next(x, u)
}
