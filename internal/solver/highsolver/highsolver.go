// Package highsolver solves models with the HiGHS MIP solver.
package highsolver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lanl/highs"
	"go.uber.org/zap"

	"github.com/haroldofalcao/optinutri/internal/model"
	"github.com/haroldofalcao/optinutri/internal/solver"
)

// ErrTimeLimit is returned when HiGHS stops at its time limit before proving
// optimality.
var ErrTimeLimit = errors.New("HiGHS reached its time limit")

// minTimeLimit keeps a nearly expired deadline from being passed as zero.
const minTimeLimit = time.Millisecond

// Option configures a Solver.
type Option func(*Solver)

// WithTimeLimit caps each HiGHS run. Non-positive values leave HiGHS
// unlimited unless the call context carries a deadline.
func WithTimeLimit(d time.Duration) Option {
	return func(s *Solver) {
		if d > 0 {
			s.timeLimit = d
		}
	}
}

// Solver is a solver.Solver backed by HiGHS.
type Solver struct {
	logger    *zap.Logger
	timeLimit time.Duration
}

// New returns a HiGHS-backed solver.
func New(logger *zap.Logger, opts ...Option) *Solver {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Solver{logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Solve translates m and runs HiGHS. HiGHS cannot be interrupted once
// started, so the context deadline is handed to it as its time limit.
func (s *Solver) Solve(ctx context.Context, m *model.Model) (solver.Response, error) {
	if err := ctx.Err(); err != nil {
		return solver.Response{}, err
	}

	raw, err := Translate(m).ToRawModel()
	if err != nil {
		return solver.Response{}, fmt.Errorf("failed to load model into HiGHS: %w", err)
	}
	if limit := s.limitFor(ctx); limit > 0 {
		if err := raw.SetFloat64Option("time_limit", limit.Seconds()); err != nil {
			return solver.Response{}, fmt.Errorf("failed to set HiGHS time limit: %w", err)
		}
	}

	solution, err := raw.Solve()
	if err != nil {
		return solver.Response{}, fmt.Errorf("highs solve failed: %w", err)
	}

	s.logger.Debug("HiGHS finished",
		zap.String("op", "highsolver.Solve"),
		zap.String("status", solution.Status.String()),
		zap.Float64("objective", solution.Objective))

	switch solution.Status {
	case highs.Optimal:
	case highs.Infeasible, highs.UnboundedOrInfeasible:
		// every column is bounded, so the model cannot be unbounded
		return solver.Response{Feasible: false}, nil
	case highs.TimeLimit:
		return solver.Response{}, ErrTimeLimit
	default:
		return solver.Response{}, fmt.Errorf("unexpected HiGHS status %s", solution.Status.String())
	}

	if len(solution.ColumnPrimal) != len(m.Columns) {
		return solver.Response{}, fmt.Errorf("HiGHS returned %d column values for %d columns", len(solution.ColumnPrimal), len(m.Columns))
	}

	values := make(map[string]float64, len(m.Columns))
	for i, col := range m.Columns {
		values[col.Name] = solution.ColumnPrimal[i]
	}
	return solver.Response{Feasible: true, Objective: solution.Objective, Values: values}, nil
}

// limitFor returns the time HiGHS may spend on one run: the configured limit
// or the time left before the context deadline, whichever is shorter. Zero
// means unlimited.
func (s *Solver) limitFor(ctx context.Context) time.Duration {
	limit := s.timeLimit
	if deadline, ok := ctx.Deadline(); ok {
		left := time.Until(deadline)
		if left < minTimeLimit {
			left = minTimeLimit
		}
		if limit == 0 || left < limit {
			limit = left
		}
	}
	return limit
}

// Translate converts m into a HiGHS model.
func Translate(m *model.Model) *highs.Model {
	n := len(m.Columns)
	lp := &highs.Model{
		Maximize: m.Sense == model.Maximize,
		ColCosts: make([]float64, n),
		ColLower: make([]float64, n),
		ColUpper: make([]float64, n),
		VarTypes: make([]highs.VariableType, n),
	}

	for j, col := range m.Columns {
		lp.ColCosts[j] = m.Objective[j]
		lp.ColLower[j] = col.Lower
		lp.ColUpper[j] = col.Upper
		lp.VarTypes[j] = highs.IntegerType
	}

	for i, row := range m.Rows {
		lp.RowLower = append(lp.RowLower, row.Lower)
		lp.RowUpper = append(lp.RowUpper, row.Upper)
		for j, v := range row.Coefficients {
			if v == 0 {
				continue
			}
			lp.ConstMatrix = append(lp.ConstMatrix, highs.Nonzero{Row: i, Col: j, Val: v})
		}
	}
	return lp
}
