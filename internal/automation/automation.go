package automation

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"math"
	"os"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/san-kum/rtimpc/internal/config"
	"github.com/san-kum/rtimpc/internal/dynamo"
	"github.com/san-kum/rtimpc/internal/experiment"
)

// Scenario defines a scripted sequence of closed-loop sessions
type Scenario struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description"`
	Steps       []ScenarioStep `yaml:"steps"`
}

// ScenarioStep is one session. Unset fields keep the value from the preset,
// or from the defaults when no preset is named.
type ScenarioStep struct {
	Name        string                  `yaml:"name"`
	Plant       string                  `yaml:"plant"`
	Preset      string                  `yaml:"preset"`
	Integrator  string                  `yaml:"integrator"`
	Controller  string                  `yaml:"controller"`
	Duration    float64                 `yaml:"duration"`
	Dt          float64                 `yaml:"dt"`
	Noise       float64                 `yaml:"noise"`
	Seed        uint64                  `yaml:"seed"`
	Horizon     int                     `yaml:"horizon"`
	InitState   *config.InitStateConfig `yaml:"init_state"`
	PlantParams map[string]float64      `yaml:"plant_params"`
	Save        bool                    `yaml:"save"`
}

// StepResult pairs a finished step with the config it ran.
type StepResult struct {
	Step   ScenarioStep
	Config *config.Config
	Result *dynamo.Result
}

// LoadScenario loads a scenario from a YAML file
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var scenario Scenario
	if err := yaml.Unmarshal(data, &scenario); err != nil {
		return nil, fmt.Errorf("parse scenario %s: %w", path, err)
	}
	if len(scenario.Steps) == 0 {
		return nil, fmt.Errorf("scenario %s has no steps", path)
	}
	return &scenario, nil
}

// Config resolves the step into a full session config.
func (s ScenarioStep) Config() (*config.Config, error) {
	if s.Plant == "" {
		return nil, errors.New("step names no plant")
	}
	cfg := config.DefaultConfig()
	if s.Preset != "" {
		p := config.GetPreset(s.Plant, s.Preset)
		if p == nil {
			return nil, fmt.Errorf("unknown preset %s for %s", s.Preset, s.Plant)
		}
		cfg = p
	}
	cfg.Plant = s.Plant

	if s.Integrator != "" {
		cfg.Integrator = s.Integrator
	}
	if s.Controller != "" {
		cfg.Controller = s.Controller
	}
	if s.Duration > 0 {
		cfg.Duration = s.Duration
	}
	if s.Dt > 0 {
		cfg.Dt = s.Dt
	}
	if s.Noise > 0 {
		cfg.Noise = s.Noise
	}
	if s.Seed > 0 {
		cfg.Seed = s.Seed
	}
	if s.Horizon > 0 {
		cfg.MPC.Horizon = s.Horizon
	}
	if s.InitState != nil {
		cfg.InitState = *s.InitState
	}
	if len(s.PlantParams) > 0 {
		cfg.PlantParams = maps.Clone(s.PlantParams)
	}
	return cfg, nil
}

// RunScenario executes all steps in order. onStep, when set, sees every
// finished step before the next starts; its error stops the scenario.
func RunScenario(ctx context.Context, scenario *Scenario, registry *experiment.Registry, logger *zap.Logger, onStep func(StepResult) error) ([]StepResult, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	results := make([]StepResult, 0, len(scenario.Steps))

	for i, step := range scenario.Steps {
		label := step.Name
		if label == "" {
			label = step.Plant
		}
		logger.Info("running scenario step",
			zap.String("scenario", scenario.Name),
			zap.Int("step", i+1),
			zap.Int("of", len(scenario.Steps)),
			zap.String("name", label))

		cfg, err := step.Config()
		if err != nil {
			return results, fmt.Errorf("step %d: %w", i+1, err)
		}
		exp, err := registry.Build(cfg, logger)
		if err != nil {
			return results, fmt.Errorf("step %d setup: %w", i+1, err)
		}
		result, err := exp.Run(ctx)
		if err != nil {
			return results, fmt.Errorf("step %d run: %w", i+1, err)
		}

		sr := StepResult{Step: step, Config: cfg, Result: result}
		results = append(results, sr)
		if onStep != nil {
			if err := onStep(sr); err != nil {
				return results, fmt.Errorf("step %d: %w", i+1, err)
			}
		}
	}

	return results, nil
}

// ParameterSweep varies one physical parameter of the simulated plant while
// the controller keeps the nominal model.
type ParameterSweep struct {
	Base      *config.Config
	ParamName string
	ParamMin  float64
	ParamMax  float64
	NumSteps  int
}

// SweepResult holds one point of a parameter sweep
type SweepResult struct {
	ParamValue float64
	FinalState dynamo.State
	Metrics    map[string]float64
	Failed     bool
	Err        error
}

// RunSweep executes a parameter sweep
func RunSweep(ctx context.Context, sweep *ParameterSweep, registry *experiment.Registry, logger *zap.Logger) ([]SweepResult, error) {
	if sweep.NumSteps < 2 {
		return nil, fmt.Errorf("sweep needs at least 2 steps, got %d", sweep.NumSteps)
	}
	if math.IsNaN(sweep.ParamMin) || math.IsNaN(sweep.ParamMax) || sweep.ParamMax < sweep.ParamMin {
		return nil, fmt.Errorf("invalid sweep range [%g, %g]", sweep.ParamMin, sweep.ParamMax)
	}

	if logger == nil {
		logger = zap.NewNop()
	}
	results := make([]SweepResult, 0, sweep.NumSteps)
	paramStep := (sweep.ParamMax - sweep.ParamMin) / float64(sweep.NumSteps-1)

	for i := 0; i < sweep.NumSteps; i++ {
		paramVal := sweep.ParamMin + float64(i)*paramStep

		cfg := sweep.Base.Clone()
		if cfg.PlantParams == nil {
			cfg.PlantParams = make(map[string]float64, 1)
		}
		cfg.PlantParams[sweep.ParamName] = paramVal

		exp, err := registry.Build(cfg, logger)
		if err != nil {
			return results, fmt.Errorf("%s=%g: %w", sweep.ParamName, paramVal, err)
		}

		result, err := exp.Run(ctx)
		if err != nil {
			return results, err
		}

		sr := SweepResult{ParamValue: paramVal, Metrics: result.Metrics}
		if len(result.States) > 0 {
			sr.FinalState = result.States[len(result.States)-1]
		}
		if len(result.Errors) > 0 {
			sr.Failed = true
			sr.Err = result.Errors[0]
		}
		results = append(results, sr)

		logger.Debug("sweep point done",
			zap.Int("point", i+1),
			zap.String("param", sweep.ParamName),
			zap.Float64("value", paramVal),
			zap.Bool("failed", sr.Failed))
	}

	return results, nil
}
