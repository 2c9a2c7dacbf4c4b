package experiment

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/san-kum/rtimpc/internal/config"
	"github.com/san-kum/rtimpc/internal/dynamo"
	"github.com/san-kum/rtimpc/internal/horizon"
	"github.com/san-kum/rtimpc/internal/rti"
	"github.com/san-kum/rtimpc/internal/solver"
	"github.com/san-kum/rtimpc/internal/telemetry"
)

func parkConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Plant = "double_integrator"
	cfg.Dt = 0.1
	cfg.Duration = 15
	cfg.InitState = config.InitStateConfig{Pos: 1}
	cfg.MPC.Horizon = 20
	cfg.MPC.QT = []float64{10, 10}
	return cfg
}

func TestRegistryLookups(t *testing.T) {
	reg := NewRegistry()

	for _, name := range reg.ListPlants() {
		if _, err := reg.GetPlant(name); err != nil {
			t.Errorf("plant %s: %v", name, err)
		}
	}
	if _, err := reg.GetPlant("lorenz"); err == nil {
		t.Error("expected unknown plant error")
	}
	if _, err := reg.GetIntegrator("verlet"); err == nil {
		t.Error("expected unknown integrator error")
	}
	if got := reg.ListControllers(); len(got) != 4 || got[0] != "lqr" {
		t.Errorf("unexpected controllers %v", got)
	}

	a, _ := reg.GetIntegrator("rk4")
	b, _ := reg.GetIntegrator("rk4")
	if a == b {
		t.Error("integrators must not be shared between lookups")
	}
}

func TestBuildAllPresets(t *testing.T) {
	reg := NewRegistry()
	for plant, presets := range config.Presets {
		for name, cfg := range presets {
			exp, err := reg.Build(cfg, nil)
			if err != nil {
				t.Errorf("%s/%s: %v", plant, name, err)
				continue
			}
			if (cfg.Controller == "mpc") != (exp.MPC() != nil) {
				t.Errorf("%s/%s: mpc wrapper presence does not match controller %s", plant, name, cfg.Controller)
			}
			if len(exp.InitState()) != exp.Plant().StateDim() {
				t.Errorf("%s/%s: init state size mismatch", plant, name)
			}
		}
	}
}

func TestBuildRejects(t *testing.T) {
	reg := NewRegistry()

	cfg := parkConfig()
	cfg.Controller = "bang_bang"
	if _, err := reg.Build(cfg, nil); err == nil {
		t.Error("expected unknown controller error")
	}

	cfg = parkConfig()
	cfg.Plant = "lorenz"
	if _, err := reg.Build(cfg, nil); err == nil {
		t.Error("expected unknown plant error")
	}

	cfg = parkConfig()
	cfg.MPC.Horizon = 0
	if _, err := reg.Build(cfg, nil); !errors.Is(err, horizon.ErrConfiguration) {
		t.Errorf("expected configuration error, got %v", err)
	}

	cfg = parkConfig()
	cfg.MPC.Q = []float64{1, 1, 1}
	var dimErr *horizon.DimensionError
	if _, err := reg.Build(cfg, nil); !errors.As(err, &dimErr) {
		t.Errorf("expected dimension error, got %v", err)
	}
}

func TestSaturatedPresetConverges(t *testing.T) {
	cfg := config.GetPreset("pendulum", "saturated")
	if cfg == nil {
		t.Fatal("missing pendulum/saturated preset")
	}
	cfg.MPC.Solver = solver.DefaultOptions()
	mem := &telemetry.Memory{}

	exp, err := NewRegistry().Build(cfg, nil, rti.WithRecorder(mem))
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	result, err := exp.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if len(mem.Cycles) != result.StepsTaken {
		t.Errorf("expected one cycle per step, got %d cycles for %d steps", len(mem.Cycles), result.StepsTaken)
	}
	for _, c := range mem.Cycles {
		if c.Status != solver.Converged {
			t.Errorf("cycle %d: status %v kkt %g", c.Iteration, c.Status, c.KKT)
		}
	}
	for k, u := range result.Controls {
		if u[0] < -2-1e-9 || u[0] > 2+1e-9 {
			t.Errorf("control %d = %g violates the torque limit", k, u[0])
		}
	}
}

func TestRunMPC(t *testing.T) {
	reg := NewRegistry()
	mem := &telemetry.Memory{}

	exp, err := reg.Build(parkConfig(), nil, rti.WithRecorder(mem))
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	result, err := exp.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if result.StepsTaken != 150 {
		t.Errorf("expected 150 steps, got %d", result.StepsTaken)
	}
	if len(mem.Cycles) != 150 {
		t.Errorf("expected one cycle per step, got %d", len(mem.Cycles))
	}
	for _, c := range mem.Cycles {
		if c.Status != solver.Converged || c.KKT < 0 {
			t.Fatalf("cycle %d: status %v kkt %g", c.Iteration, c.Status, c.KKT)
		}
	}

	final := result.States[len(result.States)-1]
	if final.Norm() >= 1 {
		t.Errorf("expected the state to approach the origin, got %v", final)
	}
	for _, name := range []string{"tracking_cost", "settling_time", "control_effort"} {
		if _, ok := result.Metrics[name]; !ok {
			t.Errorf("missing metric %s", name)
		}
	}
	if math.IsInf(result.Metrics["settling_time"], 1) {
		t.Error("expected the run to settle")
	}
}

func TestRunLQRBaseline(t *testing.T) {
	reg := NewRegistry()
	cfg := parkConfig()
	cfg.Controller = "lqr"

	exp, err := reg.Build(cfg, nil)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	result, err := exp.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if final := result.States[len(result.States)-1]; final.Norm() > 1e-2 {
		t.Errorf("lqr did not settle: %v", final)
	}
}

func TestPlantMismatch(t *testing.T) {
	reg := NewRegistry()
	nominal := parkConfig()
	nominal.Controller = "lqr"
	heavy := parkConfig()
	heavy.Controller = "lqr"
	heavy.PlantParams = map[string]float64{"mass": 1.5}

	nomExp, err := reg.Build(nominal, nil)
	if err != nil {
		t.Fatalf("build nominal: %v", err)
	}
	heavyExp, err := reg.Build(heavy, nil)
	if err != nil {
		t.Fatalf("build heavy: %v", err)
	}
	if got := heavyExp.Plant().(dynamo.Configurable).GetParams()["mass"]; got != 1.5 {
		t.Errorf("simulated plant should carry the override, got mass %g", got)
	}

	a, err := nomExp.Run(context.Background())
	if err != nil {
		t.Fatalf("run nominal: %v", err)
	}
	b, err := heavyExp.Run(context.Background())
	if err != nil {
		t.Fatalf("run heavy: %v", err)
	}
	if a.States[5][0] == b.States[5][0] {
		t.Error("mismatched plant should follow a different trajectory")
	}
	if final := b.States[len(b.States)-1]; final.Norm() > 0.1 {
		t.Errorf("lqr should tolerate a heavier plant, got %v", final)
	}

	heavy.PlantParams = map[string]float64{"stiffness": 2}
	if _, err := reg.Build(heavy, nil); err == nil {
		t.Error("expected unknown parameter error")
	}
}

func TestStartSession(t *testing.T) {
	exp, err := NewRegistry().Build(parkConfig(), nil)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	sess, err := exp.Start()
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, _, err := sess.Step(); err != nil {
		t.Fatalf("step: %v", err)
	}
	if exp.MPC().Controller().Iteration() != 1 {
		t.Errorf("expected one controller iteration, got %d", exp.MPC().Controller().Iteration())
	}
}
