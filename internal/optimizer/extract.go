package optimizer

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/haroldofalcao/optinutri/internal/model"
	"github.com/haroldofalcao/optinutri/internal/solver"
	"github.com/haroldofalcao/optinutri/pkg/constants"
	"github.com/haroldofalcao/optinutri/pkg/mathutil"
	"github.com/haroldofalcao/optinutri/pkg/optimization"
)

type totals struct {
	kcal, protein, volume  float64
	nitrogen, glucose, fat float64
	bags                   int
}

// extract turns a feasible solver answer into a result and re-checks it
// against c. A failed re-check downgrades the result to Infeasible.
func (o *Optimizer) extract(m *model.Model, resp solver.Response, c optimization.Constraints) optimization.Result {
	values := m.Vector(resp.Values)

	var sum totals
	bags := make([]optimization.SelectedBag, 0, len(m.Columns))
	for i, col := range m.Columns {
		if values[i] <= o.tol.BagEpsilon {
			continue
		}
		q := int(math.Round(values[i]))
		if q < 1 {
			continue
		}
		qty := float64(q)

		bags = append(bags, optimization.SelectedBag{
			FormulaID:           col.Name,
			Name:                col.Formula.Name,
			Quantity:            q,
			UnitCost:            mathutil.Round(col.Cost),
			TotalCost:           mathutil.Round(qty * col.Cost),
			KcalContribution:    mathutil.RoundKcal(qty * col.Kcal),
			ProteinContribution: mathutil.RoundGrams(qty * col.Protein),
			VolumeContribution:  mathutil.RoundVolume(qty * col.Volume),
			EmulsionType:        col.Formula.EmulsionType,
			Via:                 col.Formula.Via,
			Manufacturer:        col.Formula.Manufacturer,
			Fixed:               col.Fixed,
		})

		sum.kcal += qty * col.Kcal
		sum.protein += qty * col.Protein
		sum.volume += qty * col.Volume
		sum.nitrogen += qty * col.Nitrogen
		sum.glucose += qty * col.Glucose
		sum.fat += qty * col.Fat
		sum.bags += q
	}

	sort.SliceStable(bags, func(i, j int) bool {
		if bags[i].TotalCost != bags[j].TotalCost {
			return bags[i].TotalCost > bags[j].TotalCost
		}
		return bags[i].FormulaID < bags[j].FormulaID
	})

	costs := make([]float64, len(bags))
	for i, b := range bags {
		costs[i] = b.TotalCost
	}
	totalCost := mathutil.SumRounded(costs, constants.CostPlaces)

	met, clauses := o.recheck(sum, c)
	result := optimization.Result{
		Status:         optimization.StatusOptimal,
		TotalCost:      &totalCost,
		TotalKcal:      mathutil.RoundKcal(sum.kcal),
		TotalProtein:   mathutil.RoundGrams(sum.protein),
		TotalVolume:    mathutil.RoundVolume(sum.volume),
		TotalNitrogen:  mathutil.RoundGrams(sum.nitrogen),
		TotalGlucose:   mathutil.RoundGrams(sum.glucose),
		TotalFat:       mathutil.RoundGrams(sum.fat),
		SelectedBags:   bags,
		ConstraintsMet: met,
		NumBags:        sum.bags,
	}
	if len(clauses) > 0 {
		result.Status = optimization.StatusInfeasible
		result.Message = "constraints violated: " + strings.Join(clauses, ", ")
	}
	return result
}

// recheck compares totals with c using the configured tolerances. A zero
// maximum leaves that side unbounded, matching the rows the builder omits.
func (o *Optimizer) recheck(sum totals, c optimization.Constraints) (optimization.ConstraintsMet, []string) {
	tol := o.tol.Nutrient
	met := optimization.ConstraintsMet{
		KcalMin:    mathutil.AtLeast(sum.kcal, c.KcalMin, tol),
		KcalMax:    c.KcalMax <= 0 || mathutil.AtMost(sum.kcal, c.KcalMax, tol),
		ProteinMin: mathutil.AtLeast(sum.protein, c.ProteinMin, tol),
		ProteinMax: c.ProteinMax <= 0 || mathutil.AtMost(sum.protein, c.ProteinMax, tol),
		VolumeMax:  c.VolumeMax <= 0 || mathutil.AtMost(sum.volume, c.VolumeMax, tol),
		MaxBags:    c.MaxBags <= 0 || mathutil.AtMost(float64(sum.bags), float64(c.MaxBags), o.tol.Count),
	}

	var clauses []string
	if !met.MaxBags {
		clauses = append(clauses, fmt.Sprintf("too many bags (%d > %d)", sum.bags, c.MaxBags))
	}
	if !met.KcalMin {
		clauses = append(clauses, fmt.Sprintf("insufficient calories (%.0f < %g)", sum.kcal, c.KcalMin))
	}
	if !met.KcalMax {
		clauses = append(clauses, fmt.Sprintf("excess calories (%.0f > %g)", sum.kcal, c.KcalMax))
	}
	if !met.ProteinMin {
		clauses = append(clauses, fmt.Sprintf("insufficient protein (%.1fg < %gg)", sum.protein, c.ProteinMin))
	}
	if !met.ProteinMax {
		clauses = append(clauses, fmt.Sprintf("excess protein (%.1fg > %gg)", sum.protein, c.ProteinMax))
	}
	if !met.VolumeMax {
		clauses = append(clauses, fmt.Sprintf("excess volume (%.0fmL > %gmL)", sum.volume, c.VolumeMax))
	}
	return met, clauses
}
