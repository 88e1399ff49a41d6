// Package solvertest provides a reference solver that enumerates every
// integer assignment of a small model. It needs no native library and is used
// to cross-check the optimizer in tests.
package solvertest

import (
	"context"
	"math"
	"sync/atomic"

	"gonum.org/v1/gonum/floats"

	"github.com/haroldofalcao/optinutri/internal/model"
	"github.com/haroldofalcao/optinutri/internal/solver"
)

const feasibilityTol = 1e-9

// Exhaustive is a solver.Solver that finds the exact optimum by depth-first
// enumeration. It is only practical for models with small column bounds.
type Exhaustive struct {
	calls atomic.Int64
}

// Calls returns the number of Solve invocations.
func (e *Exhaustive) Calls() int {
	return int(e.calls.Load())
}

// Solve returns the best assignment in column order. Ties keep the first
// assignment found, which makes results deterministic.
func (e *Exhaustive) Solve(ctx context.Context, m *model.Model) (solver.Response, error) {
	e.calls.Add(1)

	best := math.Inf(1)
	var bestValues []float64
	err := Enumerate(ctx, m, func(values []float64) {
		obj := m.Evaluate(values)
		if m.Sense == model.Maximize {
			obj = -obj
		}
		if obj < best-feasibilityTol {
			best = obj
			bestValues = append(bestValues[:0], values...)
		}
	})
	if err != nil {
		return solver.Response{}, err
	}
	if bestValues == nil {
		return solver.Response{Feasible: false}, nil
	}

	values := make(map[string]float64, len(m.Columns))
	for i, col := range m.Columns {
		values[col.Name] = bestValues[i]
	}
	return solver.Response{Feasible: true, Objective: m.Evaluate(bestValues), Values: values}, nil
}

// Enumerate calls visit with every integer assignment satisfying m. The slice
// passed to visit is reused between calls.
func Enumerate(ctx context.Context, m *model.Model, visit func(values []float64)) error {
	n := len(m.Columns)
	lower := make([]float64, n)
	upper := make([]float64, n)
	for i, col := range m.Columns {
		lower[i] = math.Ceil(col.Lower - feasibilityTol)
		upper[i] = math.Floor(col.Upper + feasibilityTol)
		if lower[i] > upper[i] {
			return nil
		}
	}

	// Rows with only nonnegative coefficients can be pruned as soon as the
	// partial assignment plus the remaining lower bounds exceeds the upper bound.
	var prunable []model.Row
	for _, r := range m.Rows {
		if r.HasUpper() && floats.Min(r.Coefficients) >= 0 {
			prunable = append(prunable, r)
		}
	}

	values := make([]float64, n)
	copy(values, lower)

	var walk func(i int) error
	walk = func(i int) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if i == n {
			if m.Feasible(values, feasibilityTol) {
				visit(values)
			}
			return nil
		}
		for v := lower[i]; v <= upper[i]; v++ {
			values[i] = v
			if exceeds(prunable, values) {
				break
			}
			if err := walk(i + 1); err != nil {
				return err
			}
		}
		values[i] = lower[i]
		return nil
	}
	if n == 0 {
		return nil
	}
	return walk(0)
}

// exceeds reports whether values already break an upper bound. Unassigned
// positions hold their lower bound, so the check never prunes a feasible leaf.
func exceeds(rows []model.Row, values []float64) bool {
	for _, r := range rows {
		if r.Activity(values) > r.Upper+feasibilityTol {
			return true
		}
	}
	return false
}
