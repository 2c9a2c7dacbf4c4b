package sim

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/san-kum/rtimpc/internal/dynamo"
)

// Factory builds the simulator for one ensemble member. Every member gets its
// own controller so no solver state is shared between goroutines.
type Factory func(run int) (*Simulator, error)

// Ensemble runs independent sessions in parallel, each with its own noise
// seed.
type Ensemble struct {
	factory   Factory
	numRuns   int
	seedStart uint64
	limit     int
}

func NewEnsemble(factory Factory, numRuns int, seedStart uint64) *Ensemble {
	return &Ensemble{
		factory:   factory,
		numRuns:   numRuns,
		seedStart: seedStart,
		limit:     runtime.GOMAXPROCS(0),
	}
}

// SetLimit caps the number of concurrent sessions.
func (e *Ensemble) SetLimit(n int) {
	if n > 0 {
		e.limit = n
	}
}

func (e *Ensemble) Run(ctx context.Context, x0 dynamo.State, cfg dynamo.Config) ([]*dynamo.Result, error) {
	results := make([]*dynamo.Result, e.numRuns)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.limit)
	for i := 0; i < e.numRuns; i++ {
		g.Go(func() error {
			sim, err := e.factory(i)
			if err != nil {
				return fmt.Errorf("build run %d: %w", i, err)
			}
			cfgCopy := cfg
			cfgCopy.Seed = e.seedStart + uint64(i)

			res, err := sim.Run(ctx, x0, cfgCopy)
			if err != nil {
				return fmt.Errorf("run %d: %w", i, err)
			}
			results[i] = res
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
