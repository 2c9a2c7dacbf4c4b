package control

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/rtimpc/internal/dynamo"
	"github.com/san-kum/rtimpc/internal/solver"
)

var ErrRiccatiDiverged = errors.New("control: discrete Riccati iteration did not converge")

// LQR applies u = U0 - K (x - Target).
type LQR struct {
	K      [][]float64
	Target dynamo.State
	U0     dynamo.Control
}

func NewLQR(k [][]float64, target dynamo.State) *LQR {
	return &LQR{K: k, Target: target}
}

func (l *LQR) Compute(x dynamo.State, t float64) dynamo.Control {
	u := make(dynamo.Control, len(l.K))
	for i := range u {
		if i < len(l.U0) {
			u[i] = l.U0[i]
		}
		for j := range x {
			target := 0.0
			if j < len(l.Target) {
				target = l.Target[j]
			}
			if j < len(l.K[i]) {
				u[i] -= l.K[i][j] * (x[j] - target)
			}
		}
	}
	return u
}

// DesignLQR linearises model at (x, u) and iterates the discrete Riccati
// equation until the cost-to-go settles. q is NX×NX and r is NU×NU.
func DesignLQR(model solver.Model, x, u []float64, q, r *mat.Dense, maxIter int) ([][]float64, error) {
	nx, nu := model.StateDim(), model.ControlDim()
	a := mat.NewDense(nx, nx, nil)
	b := mat.NewDense(nx, nu, nil)
	model.Linearize(x, u, a, b)

	p := mat.DenseCopyOf(q)
	var (
		btp, s, btpa, k, bk, amBK, atp, next mat.Dense
	)
	for i := 0; i < maxIter; i++ {
		btp.Mul(b.T(), p)
		s.Mul(&btp, b)
		s.Add(&s, r)
		btpa.Mul(&btp, a)
		if err := k.Solve(&s, &btpa); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRiccatiDiverged, err)
		}

		bk.Mul(b, &k)
		amBK.Sub(a, &bk)
		atp.Mul(a.T(), p)
		next.Mul(&atp, &amBK)
		next.Add(&next, q)

		var diff mat.Dense
		diff.Sub(&next, p)
		delta := mat.Norm(&diff, math.Inf(1))
		if math.IsNaN(delta) || math.IsInf(delta, 0) {
			return nil, ErrRiccatiDiverged
		}
		p.Copy(&next)
		if delta < 1e-9*math.Max(1, mat.Norm(p, math.Inf(1))) {
			return rowsOf(&k), nil
		}
	}
	return nil, ErrRiccatiDiverged
}

func rowsOf(m *mat.Dense) [][]float64 {
	r, _ := m.Dims()
	out := make([][]float64, r)
	for i := range out {
		out[i] = mat.Row(nil, i, m)
	}
	return out
}
