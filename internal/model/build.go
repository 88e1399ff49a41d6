package model

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/haroldofalcao/optinutri/pkg/optimization"
)

// NormalizeFixed returns a copy of fixed where quantities below one become one.
func NormalizeFixed(fixed map[string]int) map[string]int {
	if len(fixed) == 0 {
		return nil
	}
	out := make(map[string]int, len(fixed))
	for id, q := range fixed {
		if q < 1 {
			q = 1
		}
		out[id] = q
	}
	return out
}

// Build creates the cost-minimizing model for formulas under c. costs
// overrides BaseCost per formula id. fixed forces an exact number of bags per
// formula id; every fixed id must be among formulas.
func Build(formulas []optimization.Formula, c optimization.Constraints, costs map[string]float64, fixed map[string]int) (*Model, error) {
	if len(formulas) == 0 {
		return nil, fmt.Errorf("cannot build a model without formulas")
	}
	fixed = NormalizeFixed(fixed)

	m := &Model{
		Columns: make([]Column, 0, len(formulas)),
		Sense:   Minimize,
	}
	eligible := make(map[string]bool, len(formulas))
	for _, f := range formulas {
		eligible[f.ID] = true
		m.Columns = append(m.Columns, newColumn(f, c.VolumeMax, costs, fixed))
	}

	var missing []string
	for id := range fixed {
		if !eligible[id] {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, fmt.Errorf("%w: %s", ErrUnknownFixedFormula, strings.Join(missing, ", "))
	}

	if c.HasKcalBounds() {
		m.Rows = append(m.Rows, Row{Name: RowKcal, Lower: c.KcalMin, Upper: c.KcalMax, Coefficients: m.Coefficients(Kcal)})
	}
	if c.HasProteinBounds() {
		m.Rows = append(m.Rows, Row{Name: RowProtein, Lower: c.ProteinMin, Upper: c.ProteinMax, Coefficients: m.Coefficients(Protein)})
	}
	m.Rows = append(m.Rows, Row{Name: RowVolume, Lower: math.Inf(-1), Upper: c.VolumeMax, Coefficients: m.Coefficients(Volume)})

	if c.MaxBags > 0 {
		ones := make([]float64, len(m.Columns))
		for i := range ones {
			ones[i] = 1
		}
		m.Rows = append(m.Rows, Row{Name: RowTotalBags, Lower: math.Inf(-1), Upper: float64(c.MaxBags), Coefficients: ones})
	}

	for i, col := range m.Columns {
		q, ok := fixed[col.Name]
		if !ok {
			continue
		}
		coef := make([]float64, len(m.Columns))
		coef[i] = 1
		m.Rows = append(m.Rows, Row{Name: FixedRowPrefix + col.Name, Lower: float64(q), Upper: float64(q), Coefficients: coef})
	}

	m.Objective = m.Coefficients(Cost)
	return m, nil
}

func newColumn(f optimization.Formula, volumeMax float64, costs map[string]float64, fixed map[string]int) Column {
	cost := f.BaseCost
	if override, ok := costs[f.ID]; ok && override >= 0 {
		cost = override
	}

	col := Column{
		Name:     f.ID,
		Formula:  f,
		Upper:    math.Floor(volumeMax / f.VolumeML),
		Kcal:     f.Kcal,
		Protein:  f.ProteinPerBag(),
		Volume:   f.VolumeML,
		Nitrogen: f.NitrogenPerBag(),
		Glucose:  f.GlucosePerBag(),
		Fat:      f.FatPerBag(),
		Cost:     cost,
	}
	if col.Upper < 0 {
		col.Upper = 0
	}
	if q, ok := fixed[f.ID]; ok {
		col.Fixed = true
		col.Lower = float64(q)
		col.Upper = math.Max(col.Upper, float64(q))
	}
	return col
}

// BuildProbe derives a sub-model that measures nutrient n over the
// structural rows of base. The kcal and protein target rows are dropped, as is
// the row of n itself, so the probe reports the reachable range of n.
func BuildProbe(base *Model, n Nutrient, sense Sense) *Model {
	probe := &Model{
		Columns: append([]Column(nil), base.Columns...),
		Sense:   sense,
	}
	for _, r := range base.Rows {
		if r.Name == RowKcal || r.Name == RowProtein || r.Name == string(n) {
			continue
		}
		probe.Rows = append(probe.Rows, r)
	}
	probe.Objective = probe.Coefficients(n)
	return probe
}
