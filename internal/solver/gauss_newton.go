package solver

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/rtimpc/internal/horizon"
)

// Model is a discrete-time plant x+ = f(x, u).
type Model interface {
	StateDim() int
	ControlDim() int
	// Linearize writes df/dx into a and df/du into b and returns f(x, u).
	Linearize(x, u []float64, a, b *mat.Dense) []float64
}

// GaussNewton performs one Gauss-Newton SQP iteration per cycle. Prepare
// linearises the model along the buffered trajectory and condenses the QP
// onto the control increments:
//
//	dX = Sx*dx0 + Su*dU + d
//	H  = Su'*Qb*Su + Rb
//	G  = Su'*Qb*Sx
//	g0 = Su'*Qb*(d + x - xref) + Rb*(u - uref)
//
// Feedback only has to form g = g0 + G*dx0 and solve the small dense QP.
// The terminal stage is weighted with QT against the last state reference.
type GaussNewton struct {
	model Model
	opts  Options
	dims  horizon.Dims

	a, b  *mat.Dense
	sx    *mat.Dense
	su    *mat.Dense
	d     *mat.VecDense
	qbar  *mat.Dense
	qsu   *mat.Dense
	qsx   *mat.Dense
	hFull *mat.Dense
	hBase *mat.SymDense
	h     *mat.SymDense
	gMat  *mat.Dense
	g0    *mat.VecDense
	chol  mat.Cholesky

	tmpX   *mat.Dense
	tmpU   *mat.Dense
	tmpV   *mat.VecDense
	defect *mat.VecDense
	e      *mat.VecDense
	qe     *mat.VecDense
	gk     *mat.VecDense
	du     *mat.VecDense
	hdu    *mat.VecDense
	dx0    *mat.VecDense
	xs     *mat.VecDense
	xu     *mat.VecDense
	lo, hi []float64

	pinned   []bool
	free     []int
	subData  []float64
	rhsData  []float64
	stepData []float64
	subChol  mat.Cholesky

	prepared   bool
	failed     bool
	degraded   bool
	kkt        float64
	iterations int
}

// NewGaussNewton builds an adapter for model. Zero option fields take their
// defaults.
func NewGaussNewton(model Model, opts Options) *GaussNewton {
	def := DefaultOptions()
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = def.MaxIterations
	}
	if opts.Tolerance <= 0 {
		opts.Tolerance = def.Tolerance
	}
	return &GaussNewton{
		model: model,
		opts:  opts,
		kkt:   math.Inf(1),
	}
}

func (gn *GaussNewton) ensure(d horizon.Dims) {
	if gn.sx != nil && gn.dims == d {
		return
	}
	nx, nu := d.NX, d.NU
	nv := d.N * nu
	ns := (d.N + 1) * nx

	gn.dims = d
	gn.a = mat.NewDense(nx, nx, nil)
	gn.b = mat.NewDense(nx, nu, nil)
	gn.sx = mat.NewDense(ns, nx, nil)
	gn.su = mat.NewDense(ns, nv, nil)
	gn.d = mat.NewVecDense(ns, nil)
	gn.qbar = mat.NewDense(ns, ns, nil)
	gn.qsu = mat.NewDense(ns, nv, nil)
	gn.qsx = mat.NewDense(ns, nx, nil)
	gn.hFull = mat.NewDense(nv, nv, nil)
	gn.hBase = mat.NewSymDense(nv, nil)
	gn.h = mat.NewSymDense(nv, nil)
	gn.gMat = mat.NewDense(nv, nx, nil)
	gn.g0 = mat.NewVecDense(nv, nil)

	gn.tmpX = mat.NewDense(nx, nx, nil)
	gn.tmpU = mat.NewDense(nx, nv, nil)
	gn.tmpV = mat.NewVecDense(nx, nil)
	gn.defect = mat.NewVecDense(nx, nil)
	gn.e = mat.NewVecDense(ns, nil)
	gn.qe = mat.NewVecDense(ns, nil)
	gn.gk = mat.NewVecDense(nv, nil)
	gn.du = mat.NewVecDense(nv, nil)
	gn.hdu = mat.NewVecDense(nv, nil)
	gn.dx0 = mat.NewVecDense(nx, nil)
	gn.xs = mat.NewVecDense(ns, nil)
	gn.xu = mat.NewVecDense(ns, nil)
	gn.lo = make([]float64, nv)
	gn.hi = make([]float64, nv)
	gn.pinned = make([]bool, nv)
	gn.free = make([]int, 0, nv)
	gn.subData = make([]float64, nv*nv)
	gn.rhsData = make([]float64, nv)
	gn.stepData = make([]float64, nv)
}

func (gn *GaussNewton) Degraded() bool { return gn.degraded }

func (gn *GaussNewton) KKT() float64 { return gn.kkt }

// Iterations is the number of active-set iterations of the last feedback.
func (gn *GaussNewton) Iterations() int { return gn.iterations }

func (gn *GaussNewton) Prepare(buf *horizon.Buffer) {
	d := buf.Dims()
	gn.ensure(d)
	gn.prepared, gn.failed, gn.degraded = true, false, false

	if !gn.condense(buf) {
		gn.failed, gn.degraded = true, true
		return
	}
	gn.weigh(buf)
	if !finite(gn.hFull.RawMatrix().Data) || !finite(gn.g0.RawVector().Data) {
		gn.failed, gn.degraded = true, true
		return
	}
	if !gn.factorize() {
		gn.failed = true
	}
}

// condense builds Sx, Su and d by forward recursion along the trajectory.
func (gn *GaussNewton) condense(buf *horizon.Buffer) bool {
	nx, nu, n := gn.dims.NX, gn.dims.NU, gn.dims.N
	nv := n * nu
	x, u := buf.X(), buf.U()

	gn.sx.Zero()
	gn.su.Zero()
	gn.d.Zero()
	for i := 0; i < nx; i++ {
		gn.sx.Set(i, i, 1)
	}

	for k := 0; k < n; k++ {
		f := gn.model.Linearize(x[k*nx:(k+1)*nx], u[k*nu:(k+1)*nu], gn.a, gn.b)
		for i := 0; i < nx; i++ {
			gn.defect.SetVec(i, f[i]-x[(k+1)*nx+i])
		}
		if !finite(gn.a.RawMatrix().Data) || !finite(gn.b.RawMatrix().Data) || !finite(gn.defect.RawVector().Data) {
			return false
		}

		gn.tmpX.Mul(gn.a, gn.sx.Slice(k*nx, (k+1)*nx, 0, nx))
		gn.sx.Slice((k+1)*nx, (k+2)*nx, 0, nx).(*mat.Dense).Copy(gn.tmpX)

		gn.tmpU.Mul(gn.a, gn.su.Slice(k*nx, (k+1)*nx, 0, nv))
		next := gn.su.Slice((k+1)*nx, (k+2)*nx, 0, nv).(*mat.Dense)
		next.Copy(gn.tmpU)
		for i := 0; i < nx; i++ {
			for j := 0; j < nu; j++ {
				next.Set(i, k*nu+j, next.At(i, k*nu+j)+gn.b.At(i, j))
			}
		}

		gn.tmpV.MulVec(gn.a, gn.d.SliceVec(k*nx, (k+1)*nx))
		gn.d.SliceVec((k+1)*nx, (k+2)*nx).(*mat.VecDense).AddVec(gn.tmpV, gn.defect)
	}
	return true
}

// weigh forms the condensed Hessian, the feedback matrix G and g0.
func (gn *GaussNewton) weigh(buf *horizon.Buffer) {
	nx, nu, n := gn.dims.NX, gn.dims.NU, gn.dims.N
	x, u := buf.X(), buf.U()
	xRef, uRef := buf.XRef(), buf.URef()

	gn.qbar.Zero()
	for k := 0; k <= n; k++ {
		w := buf.Q()
		if k == n {
			w = buf.QT()
		}
		for i := 0; i < nx; i++ {
			for j := 0; j < nx; j++ {
				gn.qbar.Set(k*nx+i, k*nx+j, 0.5*(w[i*nx+j]+w[j*nx+i]))
			}
		}
	}

	gn.qsu.Mul(gn.qbar, gn.su)
	gn.hFull.Mul(gn.su.T(), gn.qsu)
	gn.qsx.Mul(gn.qbar, gn.sx)
	gn.gMat.Mul(gn.su.T(), gn.qsx)

	for k := 0; k <= n; k++ {
		ref := k
		if k == n {
			ref = n - 1
		}
		for i := 0; i < nx; i++ {
			row := k*nx + i
			gn.e.SetVec(row, gn.d.AtVec(row)+x[row]-xRef[ref*nx+i])
		}
	}
	gn.qe.MulVec(gn.qbar, gn.e)
	gn.g0.MulVec(gn.su.T(), gn.qe)

	r := buf.R()
	for k := 0; k < n; k++ {
		for i := 0; i < nu; i++ {
			acc := 0.0
			for j := 0; j < nu; j++ {
				rij := 0.5 * (r[i*nu+j] + r[j*nu+i])
				gn.hFull.Set(k*nu+i, k*nu+j, gn.hFull.At(k*nu+i, k*nu+j)+rij)
				acc += rij * (u[k*nu+j] - uRef[k*nu+j])
			}
			gn.g0.SetVec(k*nu+i, gn.g0.AtVec(k*nu+i)+acc)
		}
	}

	nv := n * nu
	for i := 0; i < nv; i++ {
		for j := i; j < nv; j++ {
			gn.hBase.SetSym(i, j, 0.5*(gn.hFull.At(i, j)+gn.hFull.At(j, i)))
		}
	}
}

// factorize Cholesky-factors H plus the configured regularisation. When H is
// not positive definite the shift is raised until it is and the preparation
// is flagged degraded.
func (gn *GaussNewton) factorize() bool {
	shift := gn.opts.Regularization
	if gn.tryFactorize(shift) {
		return true
	}
	gn.degraded = true

	scale := 0.0
	nv := gn.hBase.SymmetricDim()
	for i := 0; i < nv; i++ {
		scale = math.Max(scale, math.Abs(gn.hBase.At(i, i)))
	}
	shift = math.Max(shift, 1e-8*(1+scale))
	for attempt := 0; attempt < 10; attempt++ {
		if gn.tryFactorize(shift) {
			return true
		}
		shift *= 100
	}
	return false
}

func (gn *GaussNewton) tryFactorize(shift float64) bool {
	gn.h.CopySym(gn.hBase)
	nv := gn.h.SymmetricDim()
	for i := 0; i < nv; i++ {
		gn.h.SetSym(i, i, gn.h.At(i, i)+shift)
	}
	return gn.chol.Factorize(gn.h)
}

func (gn *GaussNewton) Feedback(buf *horizon.Buffer, measurement []float64) (Status, float64) {
	gn.iterations = 0
	if !gn.prepared || gn.dims != buf.Dims() {
		gn.kkt = math.Inf(1)
		return NotPrepared, gn.kkt
	}
	gn.prepared = false
	if gn.failed {
		gn.kkt = math.Inf(1)
		return NumericalFailure, gn.kkt
	}

	nx := gn.dims.NX
	x, u := buf.X(), buf.U()
	for i := 0; i < nx; i++ {
		gn.dx0.SetVec(i, measurement[i]-x[i])
	}
	gn.gk.MulVec(gn.gMat, gn.dx0)
	gn.gk.AddVec(gn.gk, gn.g0)

	if err := gn.chol.SolveVecTo(gn.du, gn.gk); err != nil {
		var cond mat.Condition
		if !errors.As(err, &cond) {
			gn.kkt = math.Inf(1)
			return NumericalFailure, gn.kkt
		}
	}
	gn.du.ScaleVec(-1, gn.du)

	status := Converged
	bounded := buf.Bounded()
	if bounded {
		lb, ub := buf.Bounds()
		status = gn.solveBox(lb, ub, u)
	}

	du := gn.du.RawVector().Data
	if status == Infeasible || status == NumericalFailure || !finite(du) {
		if status == Converged || status == MaxIterations {
			status = NumericalFailure
		}
		gn.kkt = math.Inf(1)
		return status, gn.kkt
	}
	gn.kkt = gn.kktValue(bounded)

	for i := range u {
		u[i] += du[i]
	}
	gn.xs.MulVec(gn.sx, gn.dx0)
	gn.xu.MulVec(gn.su, gn.du)
	for i := range x {
		x[i] += gn.xs.AtVec(i) + gn.xu.AtVec(i) + gn.d.AtVec(i)
	}
	copy(x[:nx], measurement)

	return status, gn.kkt
}

// solveBox runs a primal active-set method on the box-constrained QP,
// starting from the clamped unconstrained step held in du. Each iteration
// minimises over the free variables with the pinned ones held at their
// bounds. When that minimiser is already reached, the pinned bound with the
// most negative multiplier is released.
func (gn *GaussNewton) solveBox(lb, ub, u []float64) Status {
	nu := gn.dims.NU
	du := gn.du.RawVector().Data
	grad := gn.hdu.RawVector().Data

	for idx := range du {
		ch := idx % nu
		gn.lo[idx] = lb[ch] - u[idx]
		gn.hi[idx] = ub[ch] - u[idx]
		if gn.lo[idx] > gn.hi[idx] {
			return Infeasible
		}
		du[idx] = clamp(du[idx], gn.lo[idx], gn.hi[idx])
		gn.pinned[idx] = du[idx] == gn.lo[idx] || du[idx] == gn.hi[idx]
	}

	scale := 1.0
	for _, g := range gn.gk.RawVector().Data {
		scale = math.Max(scale, math.Abs(g))
	}
	tol := gn.opts.Tolerance * scale

	for it := 0; it < gn.opts.MaxIterations; it++ {
		gn.iterations = it + 1
		gn.hdu.MulVec(gn.h, gn.du)
		gn.hdu.AddVec(gn.hdu, gn.gk)

		moved, ok := gn.freeStep(grad)
		if !ok {
			return NumericalFailure
		}
		if moved {
			continue
		}

		release, worst := -1, -tol
		for idx := range du {
			if !gn.pinned[idx] || gn.lo[idx] == gn.hi[idx] {
				continue
			}
			lambda := grad[idx]
			if du[idx] == gn.hi[idx] {
				lambda = -lambda
			}
			if lambda < worst {
				release, worst = idx, lambda
			}
		}
		if release < 0 {
			return Converged
		}
		gn.pinned[release] = false
	}
	return MaxIterations
}

// freeStep takes the Newton step of the QP restricted to the free variables,
// shortened to the first bound it would cross. That bound is pinned. It
// reports whether du moved.
func (gn *GaussNewton) freeStep(grad []float64) (moved, ok bool) {
	du := gn.du.RawVector().Data
	gn.free = gn.free[:0]
	for idx := range du {
		if !gn.pinned[idx] {
			gn.free = append(gn.free, idx)
		}
	}
	nf := len(gn.free)
	if nf == 0 {
		return false, true
	}

	sub := mat.NewSymDense(nf, gn.subData[:nf*nf])
	rhs := mat.NewVecDense(nf, gn.rhsData[:nf])
	for a, i := range gn.free {
		rhs.SetVec(a, -grad[i])
		for b := a; b < nf; b++ {
			sub.SetSym(a, b, gn.h.At(i, gn.free[b]))
		}
	}
	if !gn.subChol.Factorize(sub) {
		return false, false
	}
	p := mat.NewVecDense(nf, gn.stepData[:nf])
	if err := gn.subChol.SolveVecTo(p, rhs); err != nil {
		var cond mat.Condition
		if !errors.As(err, &cond) {
			return false, false
		}
	}

	size := 0.0
	for a, i := range gn.free {
		size = math.Max(size, math.Abs(p.AtVec(a))/(1+math.Abs(du[i])))
	}
	if size <= gn.opts.Tolerance {
		return false, true
	}

	alpha, block, bound := 1.0, -1, 0.0
	for a, i := range gn.free {
		var edge float64
		switch pa := p.AtVec(a); {
		case pa < 0:
			edge = gn.lo[i]
		case pa > 0:
			edge = gn.hi[i]
		default:
			continue
		}
		if t := (edge - du[i]) / p.AtVec(a); t < alpha {
			alpha, block, bound = math.Max(t, 0), i, edge
		}
	}
	for a, i := range gn.free {
		du[i] = clamp(du[i]+alpha*p.AtVec(a), gn.lo[i], gn.hi[i])
	}
	if block >= 0 {
		du[block] = bound
		gn.pinned[block] = true
	}
	return true, true
}

// kktValue is |g'dU| plus the complementarity of every finite bound.
func (gn *GaussNewton) kktValue(bounded bool) float64 {
	kkt := math.Abs(mat.Dot(gn.gk, gn.du))
	if !bounded {
		return kkt
	}
	gn.hdu.MulVec(gn.h, gn.du)
	gn.hdu.AddVec(gn.hdu, gn.gk)
	grad := gn.hdu.RawVector().Data
	for idx, lambda := range grad {
		switch {
		case lambda > 1e-12 && !math.IsInf(gn.lo[idx], 0):
			kkt += math.Abs(lambda * gn.lo[idx])
		case lambda < -1e-12 && !math.IsInf(gn.hi[idx], 0):
			kkt += math.Abs(lambda * gn.hi[idx])
		}
	}
	return kkt
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}

func finite(data []float64) bool {
	for _, v := range data {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
