package sim

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/san-kum/rtimpc/internal/dynamo"
)

type testDynamics struct{}

func (t *testDynamics) Derive(x dynamo.State, u dynamo.Control, time float64) dynamo.State {
	return dynamo.State{-x[0] + u[0]}
}

func (t *testDynamics) StateDim() int   { return 1 }
func (t *testDynamics) ControlDim() int { return 1 }

type testIntegrator struct{}

func (t *testIntegrator) Step(dyn dynamo.System, x dynamo.State, u dynamo.Control, time float64, dt float64) dynamo.State {
	dx := dyn.Derive(x, u, time)
	return dynamo.State{x[0] + dt*dx[0]}
}

type testController struct {
	seen []float64
	fail error
	push float64
}

func (t *testController) Compute(x dynamo.State, time float64) dynamo.Control {
	t.seen = append(t.seen, x[0])
	return dynamo.Control{t.push}
}

func (t *testController) Err() error { return t.fail }

func TestSimulatorRun(t *testing.T) {
	sim := New(&testDynamics{}, &testIntegrator{}, &testController{})

	cfg := dynamo.Config{Dt: 0.1, Duration: 1.0}
	result, err := sim.Run(context.Background(), dynamo.State{1.0}, cfg)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if len(result.States) != 11 {
		t.Errorf("expected 11 states, got %d", len(result.States))
	}
	if len(result.Times) != 11 || len(result.Controls) != 10 {
		t.Errorf("expected 11 times and 10 controls, got %d and %d", len(result.Times), len(result.Controls))
	}
	if math.Abs(result.Times[10]-1.0) > 1e-12 {
		t.Errorf("expected final time 1.0, got %g", result.Times[10])
	}

	finalState := result.States[len(result.States)-1][0]
	expected := math.Exp(-1.0)
	if math.Abs(finalState-expected) > 0.2 {
		t.Errorf("expected final state ~%.4f, got %.4f", expected, finalState)
	}
}

func TestSimulatorInvalidConfig(t *testing.T) {
	sim := New(&testDynamics{}, &testIntegrator{}, &testController{})

	tests := []struct {
		name string
		x0   dynamo.State
		cfg  dynamo.Config
	}{
		{"zero dt", dynamo.State{1}, dynamo.Config{Dt: 0, Duration: 1.0}},
		{"negative dt", dynamo.State{1}, dynamo.Config{Dt: -0.1, Duration: 1.0}},
		{"zero duration", dynamo.State{1}, dynamo.Config{Dt: 0.1, Duration: 0}},
		{"negative noise", dynamo.State{1}, dynamo.Config{Dt: 0.1, Duration: 1, Noise: -1}},
		{"wrong state size", dynamo.State{1, 2}, dynamo.Config{Dt: 0.1, Duration: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := sim.Run(context.Background(), tt.x0, tt.cfg)
			if err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

type testMetric struct {
	count int
	sum   float64
}

func (t *testMetric) Name() string { return "test" }
func (t *testMetric) Observe(x dynamo.State, u dynamo.Control, time float64) {
	t.count++
	t.sum += x[0]
}
func (t *testMetric) Value() float64 {
	if t.count == 0 {
		return 0
	}
	return t.sum / float64(t.count)
}
func (t *testMetric) Reset() {
	t.count = 0
	t.sum = 0
}

func TestSimulatorMetrics(t *testing.T) {
	sim := New(&testDynamics{}, &testIntegrator{}, &testController{})

	metric := &testMetric{}
	sim.AddMetric(metric)

	result, err := sim.Run(context.Background(), dynamo.State{1.0}, dynamo.Config{Dt: 0.1, Duration: 1.0})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if _, ok := result.Metrics["test"]; !ok {
		t.Error("metric not found in result")
	}
	if metric.count != 10 {
		t.Errorf("expected 10 observations, got %d", metric.count)
	}
}

type countingObserver struct{ times []float64 }

func (o *countingObserver) OnStep(x dynamo.State, u dynamo.Control, time float64) {
	o.times = append(o.times, time)
}

func TestSimulatorObservers(t *testing.T) {
	sim := New(&testDynamics{}, &testIntegrator{}, &testController{})
	obs := &countingObserver{}
	sim.AddObserver(obs)

	if _, err := sim.Run(context.Background(), dynamo.State{1.0}, dynamo.Config{Dt: 0.1, Duration: 0.5}); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if len(obs.times) != 5 || obs.times[0] != 0 {
		t.Errorf("expected one call per step starting at t=0, got %v", obs.times)
	}
}

func TestSimulatorControllerError(t *testing.T) {
	boom := errors.New("boom")
	sim := New(&testDynamics{}, &testIntegrator{}, &testController{fail: boom})

	result, err := sim.Run(context.Background(), dynamo.State{1.0}, dynamo.Config{Dt: 0.1, Duration: 1.0})

	if !errors.Is(err, boom) {
		t.Fatalf("expected controller error, got %v", err)
	}
	var simErr *dynamo.SimulationError
	if !errors.As(err, &simErr) || simErr.Step != 0 {
		t.Errorf("expected simulation error at step 0, got %v", err)
	}
	if result == nil || result.StepsTaken != 0 {
		t.Errorf("expected a partial result with no steps, got %+v", result)
	}
}

func TestSimulatorInvalidState(t *testing.T) {
	sim := New(&testDynamics{}, &testIntegrator{}, &testController{push: math.Inf(1)})

	cfg := dynamo.Config{Dt: 0.1, Duration: 1.0, ValidateState: true}
	result, err := sim.Run(context.Background(), dynamo.State{1.0}, cfg)

	if err != nil {
		t.Fatalf("invalid state should stop the session, not fail it: %v", err)
	}
	if len(result.Errors) != 1 || !errors.Is(result.Errors[0], dynamo.ErrInvalidState) {
		t.Errorf("expected one invalid state error, got %v", result.Errors)
	}
	if result.StepsTaken != 0 {
		t.Errorf("expected no completed steps, got %d", result.StepsTaken)
	}
}

func TestSimulatorCancel(t *testing.T) {
	sim := New(&testDynamics{}, &testIntegrator{}, &testController{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := sim.Run(ctx, dynamo.State{1.0}, dynamo.Config{Dt: 0.1, Duration: 1.0})

	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected cancellation, got %v", err)
	}
	if len(result.States) != 1 {
		t.Errorf("expected only the initial state, got %d", len(result.States))
	}
}

func TestMeasurementNoise(t *testing.T) {
	run := func(seed uint64) []float64 {
		ctrl := &testController{}
		sim := New(&testDynamics{}, &testIntegrator{}, ctrl)
		cfg := dynamo.Config{Dt: 0.1, Duration: 1.0, Noise: 0.01, Seed: seed}
		if _, err := sim.Run(context.Background(), dynamo.State{1.0}, cfg); err != nil {
			t.Fatalf("run failed: %v", err)
		}
		return ctrl.seen
	}

	a, b, c := run(7), run(7), run(8)

	if a[0] == 1.0 {
		t.Error("expected a noisy first measurement")
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("same seed must reproduce measurements, differ at %d", i)
		}
	}
	if a[0] == c[0] {
		t.Error("different seeds should give different noise")
	}
}

func TestSessionStepping(t *testing.T) {
	sim := New(&testDynamics{}, &testIntegrator{}, &testController{})
	sess, err := sim.Start(dynamo.State{1.0}, dynamo.Config{Dt: 0.5, Duration: 1.0})
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	for !sess.Done() {
		if _, _, err := sess.Step(); err != nil {
			t.Fatalf("step: %v", err)
		}
	}

	if sess.Steps() != 2 || sess.Time() != 1.0 {
		t.Errorf("expected 2 steps ending at t=1, got %d at %g", sess.Steps(), sess.Time())
	}
	if got := sess.State()[0]; math.Abs(got-0.25) > 1e-12 {
		t.Errorf("expected 0.25 after two Euler steps, got %g", got)
	}
}

func TestEnsemble(t *testing.T) {
	var built []*testController
	factory := func(run int) (*Simulator, error) {
		ctrl := &testController{}
		built = append(built, ctrl)
		return New(&testDynamics{}, &testIntegrator{}, ctrl), nil
	}
	ens := NewEnsemble(factory, 4, 100)
	ens.SetLimit(1)

	results, err := ens.Run(context.Background(), dynamo.State{1.0}, dynamo.Config{Dt: 0.1, Duration: 1.0, Noise: 0.01})
	if err != nil {
		t.Fatalf("ensemble failed: %v", err)
	}

	if len(results) != 4 || len(built) != 4 {
		t.Fatalf("expected 4 runs with 4 controllers, got %d and %d", len(results), len(built))
	}
	if built[0] == built[1] {
		t.Error("runs must not share a controller")
	}
	for i, r := range results {
		if r.StepsTaken != 10 {
			t.Errorf("run %d: expected 10 steps, got %d", i, r.StepsTaken)
		}
	}
}

func TestEnsembleFactoryError(t *testing.T) {
	boom := errors.New("no plant")
	ens := NewEnsemble(func(int) (*Simulator, error) { return nil, boom }, 2, 0)

	_, err := ens.Run(context.Background(), dynamo.State{1.0}, dynamo.Config{Dt: 0.1, Duration: 1.0})
	if !errors.Is(err, boom) {
		t.Errorf("expected factory error, got %v", err)
	}
}
