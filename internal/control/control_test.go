package control

import (
	"errors"
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/rtimpc/internal/dynamo"
	"github.com/san-kum/rtimpc/internal/horizon"
	"github.com/san-kum/rtimpc/internal/integrators"
	"github.com/san-kum/rtimpc/internal/layout"
	"github.com/san-kum/rtimpc/internal/physics"
	"github.com/san-kum/rtimpc/internal/rti"
	"github.com/san-kum/rtimpc/internal/solver"
	"github.com/san-kum/rtimpc/internal/warmstart"
)

func TestNone(t *testing.T) {
	ctrl := NewNone(make(dynamo.Control, 2))
	u := ctrl.Compute(dynamo.State{1.0, 2.0}, 0.0)

	if len(u) != 2 {
		t.Errorf("expected 2 controls, got %d", len(u))
	}
	for i, v := range u {
		if v != 0 {
			t.Errorf("control[%d] should be 0, got %f", i, v)
		}
	}

	ff := dynamo.Control{4.7}
	hold := NewNone(ff)
	ff[0] = 0
	first := hold.Compute(dynamo.State{0.5, 0}, 0)
	first[0] = -1
	if got := hold.Compute(dynamo.State{0.5, 0}, 0.05); got[0] != 4.7 {
		t.Errorf("feed-forward must be isolated from callers, got %v", got)
	}
}

func TestPID(t *testing.T) {
	ctrl := NewPID(10.0, 0.1, 5.0, 0.0)
	u := ctrl.Compute(dynamo.State{1.0, 0.0}, 0.0)
	if len(u) != 1 {
		t.Fatalf("expected 1 control, got %d", len(u))
	}
	if u[0] >= 0 {
		t.Error("PID should output negative control for positive error")
	}

	if err := ctrl.SetParam("kp", 2); err != nil {
		t.Fatalf("set kp: %v", err)
	}
	if ctrl.GetParams()["kp"] != 2 {
		t.Error("kp not applied")
	}
	if err := ctrl.SetParam("gain", 1); err == nil {
		t.Error("expected unknown param error")
	}
}

func TestPIDSaturation(t *testing.T) {
	ctrl := NewPID(10.0, 1.0, 0.0, 0.0)
	if err := ctrl.SetLimits(1, -1); err == nil {
		t.Error("expected inverted limits to be rejected")
	}
	if err := ctrl.SetLimits(-1, 1); err != nil {
		t.Fatalf("set limits: %v", err)
	}

	for i := 0; i < 50; i++ {
		u := ctrl.Compute(dynamo.State{5.0, 0.0}, float64(i)*0.1)
		if u[0] != -1 {
			t.Fatalf("step %d: expected the lower limit, got %f", i, u[0])
		}
	}
	// No windup: once the error vanishes the output recovers at once.
	if u := ctrl.Compute(dynamo.State{0.0, 0.0}, 5.0); u[0] != 0 {
		t.Errorf("expected zero output after saturation, got %f", u[0])
	}

	ctrl.Reset()
	ctrl.FeedForward = 0.5
	if u := ctrl.Compute(dynamo.State{0.0, 0.0}, 0); u[0] != 0.5 {
		t.Errorf("expected the feed-forward at zero error, got %f", u[0])
	}
}

func TestLQR(t *testing.T) {
	ctrl := NewLQR([][]float64{{1.0, 2.0}}, dynamo.State{0.5, 0.0})

	u := ctrl.Compute(dynamo.State{0.5, 0.0}, 0.0)
	if u[0] != 0 {
		t.Errorf("expected zero control at target, got %f", u[0])
	}

	u = ctrl.Compute(dynamo.State{1.5, 0.0}, 0.0)
	if u[0] != -1 {
		t.Errorf("expected -1, got %f", u[0])
	}

	ctrl.U0 = dynamo.Control{3}
	u = ctrl.Compute(dynamo.State{0.5, 0.0}, 0.0)
	if u[0] != 3 {
		t.Errorf("expected feed-forward 3 at target, got %f", u[0])
	}
}

func TestDesignLQRDoubleIntegrator(t *testing.T) {
	model := physics.SampledDoubleIntegrator(0.1)
	q := mat.NewDense(2, 2, []float64{1, 0, 0, 1})
	r := mat.NewDense(1, 1, []float64{1})

	k, err := DesignLQR(model, []float64{0, 0}, []float64{0}, q, r, 10000)
	if err != nil {
		t.Fatalf("design: %v", err)
	}
	if len(k) != 1 || len(k[0]) != 2 {
		t.Fatalf("expected 1×2 gain, got %v", k)
	}
	if k[0][0] <= 0 || k[0][1] <= 0 {
		t.Errorf("expected positive gains, got %v", k)
	}

	ctrl := NewLQR(k, dynamo.State{0, 0})
	x := []float64{1, 0}
	for i := 0; i < 300; i++ {
		x = model.Next(x, ctrl.Compute(x, 0))
	}
	if math.Hypot(x[0], x[1]) > 1e-3 {
		t.Errorf("closed loop did not settle: %v", x)
	}
}

func TestDesignLQRBalancesCartPole(t *testing.T) {
	model := physics.Discretize(physics.NewCartPole(), integrators.NewRK4(), 0.02)
	q := mat.NewDense(4, 4, nil)
	for i, v := range []float64{1, 1, 10, 1} {
		q.Set(i, i, v)
	}
	r := mat.NewDense(1, 1, []float64{0.1})

	k, err := DesignLQR(model, make([]float64, 4), []float64{0}, q, r, 20000)
	if err != nil {
		t.Fatalf("design: %v", err)
	}

	ctrl := NewLQR(k, dynamo.State{0, 0, 0, 0})
	x := []float64{0, 0, 0.1, 0}
	for i := 0; i < 500; i++ {
		x = model.Next(x, ctrl.Compute(x, 0))
	}
	if math.Abs(x[2]) > 0.01 {
		t.Errorf("pole not balanced: theta = %g", x[2])
	}
}

func TestDesignLQRRejectsUncontrollable(t *testing.T) {
	// The second state is unstable and the input cannot reach it.
	a := mat.NewDense(2, 2, []float64{1, 0, 0, 1.5})
	b := mat.NewDense(2, 1, []float64{1, 0})
	model := physics.NewLinear(a, b)
	q := mat.NewDense(2, 2, []float64{1, 0, 0, 1})
	r := mat.NewDense(1, 1, []float64{1})

	_, err := DesignLQR(model, []float64{0, 0}, []float64{0}, q, r, 200)
	if !errors.Is(err, ErrRiccatiDiverged) {
		t.Errorf("expected divergence, got %v", err)
	}
}

func newMPC(t *testing.T) *MPC {
	t.Helper()
	d := horizon.Dims{NX: 2, NU: 1, N: 10}
	ctrl, err := rti.New(d, solver.NewGaussNewton(physics.SampledDoubleIntegrator(0.1), solver.DefaultOptions()))
	if err != nil {
		t.Fatalf("new controller: %v", err)
	}
	eye := func(n int) layout.Matrix {
		m := layout.New(n, n, layout.RowMajor)
		for i := 0; i < n; i++ {
			m.Set(i, i, 1)
		}
		return m
	}
	p := &warmstart.Problem{
		InitialState: []float64{1, 0},
		StateGuess:   layout.New(d.N+1, d.NX, layout.RowMajor),
		ControlGuess: layout.New(d.N, d.NU, layout.RowMajor),
		StateRef:     layout.New(d.N, d.NX, layout.RowMajor),
		ControlRef:   layout.New(d.N, d.NU, layout.RowMajor),
		Q:            eye(2),
		R:            eye(1),
		QT:           eye(2),
	}
	if err := ctrl.Load(p); err != nil {
		t.Fatalf("load: %v", err)
	}
	return NewMPC(ctrl)
}

func TestMPCCompute(t *testing.T) {
	mpc := newMPC(t)

	u := mpc.Compute(dynamo.State{1, 0}, 0)

	if err := mpc.Err(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(u) != 1 || u[0] >= 0 {
		t.Errorf("expected a single braking control, got %v", u)
	}
	if mpc.Outcome().Status != solver.Converged || mpc.Failures() != 0 {
		t.Errorf("unexpected outcome %+v", mpc.Outcome())
	}

	u[0] = 42
	if mpc.Controller().Buffer().Control(0)[0] == 42 {
		t.Error("returned control must not alias the horizon buffer")
	}
	if mpc.GetParams()["iteration"] != 1 {
		t.Errorf("expected one iteration, got %v", mpc.GetParams())
	}
}

func TestMPCRecordsErrors(t *testing.T) {
	mpc := newMPC(t)

	u := mpc.Compute(dynamo.State{1, 0, 0}, 0)

	var dimErr *horizon.DimensionError
	if !errors.As(mpc.Err(), &dimErr) {
		t.Fatalf("expected dimension error, got %v", mpc.Err())
	}
	if len(u) != 1 || u[0] != 0 {
		t.Errorf("expected zero control on error, got %v", u)
	}
}
