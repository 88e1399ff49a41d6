// Package optimizer selects the cheapest combination of whole formula bags
// that meets a set of nutritional constraints.
package optimizer

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/haroldofalcao/optinutri/internal/catalog"
	"github.com/haroldofalcao/optinutri/internal/model"
	"github.com/haroldofalcao/optinutri/internal/solver"
	"github.com/haroldofalcao/optinutri/pkg/constants"
	"github.com/haroldofalcao/optinutri/pkg/optimization"
	"github.com/haroldofalcao/optinutri/pkg/validation"
)

// Request is the input of one optimization call.
type Request struct {
	Constraints    optimization.Constraints `json:"constraints"`
	SelectedIDs    []string                 `json:"selected_formulas,omitempty"`
	CustomCosts    map[string]float64       `json:"custom_costs,omitempty"`
	EmulsionFilter string                   `json:"emulsion_filter,omitempty"`
	ViaFilter      string                   `json:"via_filter,omitempty"`
	FixedFormulas  map[string]int           `json:"fixed_formulas,omitempty"`
}

// Tolerances control how solver output is re-checked.
type Tolerances struct {
	Nutrient   float64
	Count      float64
	BagEpsilon float64
}

// DefaultTolerances returns the standard re-check policy.
func DefaultTolerances() Tolerances {
	return Tolerances{
		Nutrient:   constants.NutrientTolerance,
		Count:      constants.CountTolerance,
		BagEpsilon: constants.BagEpsilon,
	}
}

// Option customizes an Optimizer.
type Option func(*Optimizer)

// WithTolerances overrides the re-check policy. Non-positive fields keep their default.
func WithTolerances(t Tolerances) Option {
	return func(o *Optimizer) {
		if t.Nutrient > 0 {
			o.tol.Nutrient = t.Nutrient
		}
		if t.Count > 0 {
			o.tol.Count = t.Count
		}
		if t.BagEpsilon > 0 {
			o.tol.BagEpsilon = t.BagEpsilon
		}
	}
}

// WithSolveTimeout bounds every individual solve, including probes.
func WithSolveTimeout(d time.Duration) Option {
	return func(o *Optimizer) {
		o.solveTimeout = d
	}
}

// Optimizer runs optimization calls against a fixed formula list. It holds no
// per-call state and is safe for concurrent use.
type Optimizer struct {
	logger       *zap.Logger
	formulas     []optimization.Formula
	solver       solver.Solver
	tol          Tolerances
	solveTimeout time.Duration
}

// New constructs an Optimizer over formulas.
func New(logger *zap.Logger, formulas []optimization.Formula, s solver.Solver, opts ...Option) (*Optimizer, error) {
	if s == nil {
		return nil, fmt.Errorf("solver cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	o := &Optimizer{
		logger:   logger,
		formulas: append([]optimization.Formula(nil), formulas...),
		solver:   s,
		tol:      DefaultTolerances(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Formulas returns the formulas the optimizer chooses from.
func (o *Optimizer) Formulas() []optimization.Formula {
	return append([]optimization.Formula(nil), o.formulas...)
}

// Optimize runs one call. Every outcome, including invalid input and solver
// failures, is reported through the result status and message.
func (o *Optimizer) Optimize(ctx context.Context, req Request) optimization.Result {
	start := time.Now()
	result := o.optimize(ctx, req)
	result.Duration = time.Since(start)

	fields := []zap.Field{
		zap.String("op", "optimizer.Optimize"),
		zap.String("status", string(result.Status)),
		zap.Int("numBags", result.NumBags),
		zap.Duration("duration", result.Duration),
	}
	if result.TotalCost != nil {
		fields = append(fields, zap.Float64("totalCost", *result.TotalCost))
	}
	if result.Message != "" {
		fields = append(fields, zap.String("message", result.Message))
	}
	o.logger.Info("optimization finished", fields...)
	return result
}

func (o *Optimizer) optimize(ctx context.Context, req Request) optimization.Result {
	c := req.Constraints
	if errs := validation.ValidateConstraints(c); len(errs) > 0 {
		return optimization.ErrorResult("invalid constraints: " + validation.JoinFieldErrors(errs))
	}

	eligible := catalog.Filter(o.formulas, req.SelectedIDs, req.EmulsionFilter, req.ViaFilter)
	if len(eligible) == 0 {
		return optimization.ErrorResult(catalog.ErrEmptyCatalog.Error())
	}

	m, err := model.Build(eligible, c, req.CustomCosts, req.FixedFormulas)
	if err != nil {
		return optimization.ErrorResult(err.Error())
	}
	o.logger.Debug("model built",
		zap.String("op", "optimizer.Optimize"),
		zap.Int("columns", len(m.Columns)),
		zap.Int("rows", len(m.Rows)),
		zap.Int("nonzeros", m.NumNonzeros()))

	resp, err := o.solve(ctx, m)
	if err != nil {
		o.logger.Error("solver failed",
			zap.String("op", "optimizer.Optimize"),
			zap.Error(err))
		return optimization.ErrorResult(err.Error())
	}
	o.logger.Debug("solver finished",
		zap.String("op", "optimizer.Optimize"),
		zap.Bool("feasible", resp.Feasible),
		zap.Float64("objective", resp.Objective))

	if !resp.Feasible {
		return o.analyze(ctx, m, c)
	}
	return o.extract(m, resp, c)
}

func (o *Optimizer) solve(ctx context.Context, m *model.Model) (solver.Response, error) {
	if o.solveTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.solveTimeout)
		defer cancel()
	}
	return solver.Run(ctx, o.solver, m)
}
