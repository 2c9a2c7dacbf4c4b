package config

import "github.com/san-kum/rtimpc/internal/solver"

var Presets = map[string]map[string]*Config{
	"pendulum": {
		"swing_down": {
			Plant: "pendulum", Integrator: "rk4", Controller: "mpc", Dt: 0.05, Duration: 10.0,
			InitState: InitStateConfig{Theta: 1.0, Omega: 0.0},
			MPC: MPCConfig{
				Horizon: 20, Q: []float64{10, 1}, R: []float64{0.1}, QT: []float64{20, 2},
				Solver: solver.DefaultOptions(),
			},
		},
		"saturated": {
			Plant: "pendulum", Integrator: "rk4", Controller: "mpc", Dt: 0.05, Duration: 10.0,
			InitState: InitStateConfig{Theta: 2.0, Omega: 0.0},
			MPC: MPCConfig{
				Horizon: 30, Q: []float64{10, 1}, R: []float64{0.01}, QT: []float64{20, 2},
				Lower: []float64{-2}, Upper: []float64{2}, Shift: true,
				Solver: solver.DefaultOptions(),
			},
		},
		"hold": {
			Plant: "pendulum", Integrator: "rk4", Controller: "mpc", Dt: 0.05, Duration: 10.0,
			InitState: InitStateConfig{Theta: 0.0, Omega: 0.0},
			MPC: MPCConfig{
				Horizon: 20, Q: []float64{20, 1}, R: []float64{0.05}, QT: []float64{40, 2},
				StateRef: []float64{0.5, 0}, ControlRef: []float64{4.7},
				Solver: solver.DefaultOptions(),
			},
		},
	},
	"cartpole": {
		"balance": {
			Plant: "cartpole", Integrator: "rk4", Controller: "mpc", Dt: 0.02, Duration: 10.0,
			InitState: InitStateConfig{Pos: 0.0, Vel: 0.0, Theta: 0.1, Omega: 0.0},
			MPC: MPCConfig{
				Horizon: 40, Q: []float64{1, 0.1, 10, 0.1}, R: []float64{0.01}, QT: []float64{10, 1, 100, 1},
				Solver: solver.DefaultOptions(),
			},
		},
		"recover": {
			Plant: "cartpole", Integrator: "rk4", Controller: "mpc", Dt: 0.02, Duration: 10.0,
			InitState: InitStateConfig{Pos: 0.0, Vel: 0.0, Theta: 0.3, Omega: 0.0},
			MPC: MPCConfig{
				Horizon: 40, Q: []float64{1, 0.1, 10, 0.1}, R: []float64{0.01}, QT: []float64{10, 1, 100, 1},
				Lower: []float64{-20}, Upper: []float64{20}, Shift: true,
				Solver: solver.DefaultOptions(),
			},
		},
		"lqr": {
			Plant: "cartpole", Integrator: "rk4", Controller: "lqr", Dt: 0.02, Duration: 10.0,
			InitState: InitStateConfig{Pos: 0.0, Vel: 0.0, Theta: 0.1, Omega: 0.0},
			MPC:       MPCConfig{Q: []float64{1, 1, 10, 1}, R: []float64{0.1}},
		},
	},
	"spring_mass": {
		"settle": {
			Plant: "spring_mass", Integrator: "rk4", Controller: "mpc", Dt: 0.05, Duration: 10.0,
			InitState: InitStateConfig{Pos: 2.0, Vel: 0.0},
			MPC: MPCConfig{Horizon: 20, Solver: solver.DefaultOptions()},
		},
		"free": {
			Plant: "spring_mass", Integrator: "rk4", Controller: "none", Dt: 0.05, Duration: 10.0,
			InitState: InitStateConfig{Pos: 1.0, Vel: 5.0},
		},
	},
	"double_integrator": {
		"park": {
			Plant: "double_integrator", Integrator: "rk4", Controller: "mpc", Dt: 0.1, Duration: 15.0,
			InitState: InitStateConfig{Pos: 1.0, Vel: 0.0},
			MPC: MPCConfig{Horizon: 3, Solver: solver.DefaultOptions()},
		},
		"bounded": {
			Plant: "double_integrator", Integrator: "rk4", Controller: "mpc", Dt: 0.1, Duration: 15.0,
			InitState: InitStateConfig{Pos: 5.0, Vel: 0.0},
			MPC: MPCConfig{
				Horizon: 20, QT: []float64{10, 10}, Lower: []float64{-0.5}, Upper: []float64{0.5},
				Solver: solver.DefaultOptions(),
			},
		},
	},
}

// GetPreset returns a copy of the named preset, or nil.
func GetPreset(plant, preset string) *Config {
	plantPresets, ok := Presets[plant]
	if !ok {
		return nil
	}
	cfg, ok := plantPresets[preset]
	if !ok {
		return nil
	}
	return cfg.Clone()
}

func ListPresets(plant string) []string {
	plantPresets, ok := Presets[plant]
	if !ok {
		return nil
	}
	names := make([]string, 0, len(plantPresets))
	for name := range plantPresets {
		names = append(names, name)
	}
	return names
}
