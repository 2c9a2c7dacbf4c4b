package experiment

import (
	"fmt"
	"sort"

	"github.com/san-kum/rtimpc/internal/dynamo"
	"github.com/san-kum/rtimpc/internal/integrators"
	"github.com/san-kum/rtimpc/internal/physics"
)

// Registry maps config names to fresh plant and integrator instances. Every
// lookup builds a new value so sessions never share scratch space.
type Registry struct {
	plants      map[string]func() dynamo.System
	integrators map[string]func() dynamo.Integrator
	controllers map[string]bool
}

func NewRegistry() *Registry {
	r := &Registry{
		plants:      make(map[string]func() dynamo.System),
		integrators: make(map[string]func() dynamo.Integrator),
		controllers: make(map[string]bool),
	}

	r.plants["pendulum"] = func() dynamo.System { return physics.NewPendulum() }
	r.plants["cartpole"] = func() dynamo.System { return physics.NewCartPole() }
	r.plants["spring_mass"] = func() dynamo.System { return physics.NewSpringMass() }
	r.plants["double_integrator"] = func() dynamo.System { return physics.NewDoubleIntegrator() }

	r.integrators["euler"] = func() dynamo.Integrator { return integrators.NewEuler() }
	r.integrators["rk4"] = func() dynamo.Integrator { return integrators.NewRK4() }

	for _, name := range []string{"mpc", "lqr", "pid", "none"} {
		r.controllers[name] = true
	}
	return r
}

func (r *Registry) GetPlant(name string) (dynamo.System, error) {
	fn, ok := r.plants[name]
	if !ok {
		return nil, fmt.Errorf("unknown plant: %s", name)
	}
	return fn(), nil
}

func (r *Registry) GetIntegrator(name string) (dynamo.Integrator, error) {
	fn, ok := r.integrators[name]
	if !ok {
		return nil, fmt.Errorf("unknown integrator: %s", name)
	}
	return fn(), nil
}

func (r *Registry) HasController(name string) bool { return r.controllers[name] }

func (r *Registry) ListPlants() []string      { return sortedKeys(r.plants) }
func (r *Registry) ListIntegrators() []string { return sortedKeys(r.integrators) }
func (r *Registry) ListControllers() []string { return sortedKeys(r.controllers) }

func sortedKeys[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
