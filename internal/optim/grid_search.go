package optim

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/san-kum/rtimpc/internal/experiment"
)

var ErrEmptyGrid = errors.New("optim: empty grid")

// Trial is one evaluated grid point. A point whose session could not be built
// or run keeps its error and scores +Inf.
type Trial struct {
	Params map[string]float64
	Score  float64
	Err    error
}

// BuildFunc turns one grid point into a ready-to-run experiment.
type BuildFunc func(params map[string]float64) (*experiment.Experiment, error)

type GridSearch struct {
	paramNames []string
	ranges     [][]float64
	limit      int
}

func NewGridSearch(params []string, ranges [][]float64) (*GridSearch, error) {
	if len(params) == 0 || len(params) != len(ranges) {
		return nil, fmt.Errorf("%w: %d parameters with %d ranges", ErrEmptyGrid, len(params), len(ranges))
	}
	for i, r := range ranges {
		if len(r) == 0 {
			return nil, fmt.Errorf("%w: no values for %s", ErrEmptyGrid, params[i])
		}
	}
	return &GridSearch{paramNames: params, ranges: ranges, limit: runtime.GOMAXPROCS(0)}, nil
}

// SetLimit caps the number of sessions evaluated at once.
func (g *GridSearch) SetLimit(n int) {
	if n > 0 {
		g.limit = n
	}
}

// Points enumerates the grid with the last parameter varying fastest.
func (g *GridSearch) Points() []map[string]float64 {
	var points []map[string]float64
	g.enumerate(0, make(map[string]float64), &points)
	return points
}

func (g *GridSearch) enumerate(depth int, current map[string]float64, points *[]map[string]float64) {
	if depth == len(g.paramNames) {
		*points = append(*points, current)
		return
	}

	paramName := g.paramNames[depth]
	for _, val := range g.ranges[depth] {
		newParams := make(map[string]float64, len(current)+1)
		for k, v := range current {
			newParams[k] = v
		}
		newParams[paramName] = val

		g.enumerate(depth+1, newParams, points)
	}
}

// Search runs every grid point and returns the trials ordered by metricName,
// lowest first. Only cancellation of ctx aborts the search.
func (g *GridSearch) Search(ctx context.Context, build BuildFunc, metricName string) ([]Trial, error) {
	points := g.Points()
	trials := make([]Trial, len(points))

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(g.limit)
	for i, params := range points {
		eg.Go(func() error {
			trials[i] = evaluate(ctx, build, params, metricName)
			return ctx.Err()
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	sort.SliceStable(trials, func(a, b int) bool {
		return trials[a].Score < trials[b].Score
	})
	return trials, nil
}

func evaluate(ctx context.Context, build BuildFunc, params map[string]float64, metricName string) Trial {
	t := Trial{Params: params, Score: math.Inf(1)}

	exp, err := build(params)
	if err != nil {
		t.Err = err
		return t
	}
	result, err := exp.Run(ctx)
	if err != nil {
		t.Err = err
		return t
	}
	if len(result.Errors) > 0 {
		t.Err = result.Errors[0]
		return t
	}

	val, ok := result.Metrics[metricName]
	if !ok {
		t.Err = fmt.Errorf("optim: session reported no %s metric", metricName)
		return t
	}
	if !math.IsNaN(val) {
		t.Score = val
	}
	return t
}
