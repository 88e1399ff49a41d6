package optimizer

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/haroldofalcao/optinutri/internal/model"
	"github.com/haroldofalcao/optinutri/pkg/constants"
	"github.com/haroldofalcao/optinutri/pkg/mathutil"
	"github.com/haroldofalcao/optinutri/pkg/optimization"
)

// InfeasibleMessage is the message of a result whose main solve was infeasible.
const InfeasibleMessage = "no combination of the eligible formulas satisfies the constraints"

// analyze explains an infeasible model by probing the range of each nutrient
// reachable under the structural rows alone. A probe that is infeasible or
// faults makes no claim about its nutrient; a fault also marks the result
// Partial.
func (o *Optimizer) analyze(ctx context.Context, base *model.Model, c optimization.Constraints) optimization.Result {
	var (
		details []optimization.ViolationDetail
		partial bool
	)

	if c.HasKcalBounds() {
		lo, hi, ok, err := o.reach(ctx, base, model.Kcal)
		partial = partial || err != nil
		if ok {
			lo, hi = mathutil.RoundKcal(lo), mathutil.RoundKcal(hi)
			if c.KcalMin > hi {
				details = append(details, detail(optimization.ConstraintKcalMin, c.KcalMin, lo, hi, constants.UnitKcal))
			}
			if c.KcalMax < lo {
				details = append(details, detail(optimization.ConstraintKcalMax, c.KcalMax, lo, hi, constants.UnitKcal))
			}
		}
	}

	if c.HasProteinBounds() {
		lo, hi, ok, err := o.reach(ctx, base, model.Protein)
		partial = partial || err != nil
		if ok {
			lo, hi = mathutil.RoundGrams(lo), mathutil.RoundGrams(hi)
			if c.ProteinMin > hi {
				details = append(details, detail(optimization.ConstraintProteinMin, c.ProteinMin, lo, hi, constants.UnitGrams))
			}
			if c.ProteinMax < lo {
				details = append(details, detail(optimization.ConstraintProteinMax, c.ProteinMax, lo, hi, constants.UnitGrams))
			}
		}
	}

	minVolume, ok, err := o.probe(ctx, base, model.Volume, model.Minimize)
	partial = partial || err != nil
	if ok && minVolume > c.VolumeMax {
		v := mathutil.RoundVolume(minVolume)
		details = append(details, detail(optimization.ConstraintVolumeMax, c.VolumeMax, v, v, constants.UnitVolume))
	}

	o.logger.Debug("infeasibility analysis finished",
		zap.String("op", "optimizer.analyze"),
		zap.Int("violations", len(details)),
		zap.Bool("partial", partial))
	result := optimization.InfeasibleResult(InfeasibleMessage, details)
	result.Partial = partial
	return result
}

// reach returns the reachable [min, max] of n, or false when either probe
// gives no answer. The error joins the faults of both probes.
func (o *Optimizer) reach(ctx context.Context, base *model.Model, n model.Nutrient) (float64, float64, bool, error) {
	lo, okLo, errLo := o.probe(ctx, base, n, model.Minimize)
	hi, okHi, errHi := o.probe(ctx, base, n, model.Maximize)
	return lo, hi, okLo && okHi, errors.Join(errLo, errHi)
}

func (o *Optimizer) probe(ctx context.Context, base *model.Model, n model.Nutrient, sense model.Sense) (float64, bool, error) {
	resp, err := o.solve(ctx, model.BuildProbe(base, n, sense))
	if err != nil {
		o.logger.Warn("infeasibility probe failed",
			zap.String("op", "optimizer.probe"),
			zap.String("nutrient", string(n)),
			zap.String("sense", sense.String()),
			zap.Error(err))
		return 0, false, err
	}
	if !resp.Feasible {
		return 0, false, nil
	}
	return resp.Objective, true, nil
}

func detail(name string, target, lo, hi float64, unit string) optimization.ViolationDetail {
	return optimization.ViolationDetail{
		Constraint: name,
		Target:     target,
		ActualMin:  lo,
		ActualMax:  hi,
		Unit:       unit,
	}
}
