// Package model builds the integer program for one optimization call.
// A Model is a plain value: it is returned by Build and threaded through
// the solver, the extractor and the infeasibility probes.
package model

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/haroldofalcao/optinutri/pkg/optimization"
)

// Row names.
const (
	RowKcal      = "kcal"
	RowProtein   = "protein"
	RowVolume    = "volume"
	RowTotalBags = "total_bags"

	FixedRowPrefix = "fixed_"
)

// ErrUnknownFixedFormula is returned when a fixed formula is not eligible.
var ErrUnknownFixedFormula = errors.New("fixed formula not available under current filters")

// Nutrient selects a per-bag coefficient of a column.
type Nutrient string

const (
	Kcal     Nutrient = "kcal"
	Protein  Nutrient = "protein"
	Volume   Nutrient = "volume"
	Nitrogen Nutrient = "nitrogen"
	Glucose  Nutrient = "glucose"
	Fat      Nutrient = "fat"
	Cost     Nutrient = "cost"
)

// Sense is the direction of the objective.
type Sense int

const (
	Minimize Sense = iota
	Maximize
)

func (s Sense) String() string {
	if s == Maximize {
		return "max"
	}
	return "min"
}

// Column is one integer decision variable: the number of whole bags of a formula.
type Column struct {
	Name    string
	Formula optimization.Formula
	Lower   float64
	Upper   float64
	Fixed   bool

	// Per-bag coefficients.
	Kcal     float64
	Protein  float64
	Volume   float64
	Nitrogen float64
	Glucose  float64
	Fat      float64
	Cost     float64
}

// Coefficient returns the per-bag value of n.
func (c Column) Coefficient(n Nutrient) float64 {
	switch n {
	case Kcal:
		return c.Kcal
	case Protein:
		return c.Protein
	case Volume:
		return c.Volume
	case Nitrogen:
		return c.Nitrogen
	case Glucose:
		return c.Glucose
	case Fat:
		return c.Fat
	case Cost:
		return c.Cost
	}
	return 0
}

// Row is a named linear constraint Lower <= sum(coef * x) <= Upper.
// An absent side is an infinite bound.
type Row struct {
	Name         string
	Lower        float64
	Upper        float64
	Coefficients []float64
}

// HasLower reports whether the row carries a finite lower bound.
func (r Row) HasLower() bool {
	return !math.IsInf(r.Lower, -1)
}

// HasUpper reports whether the row carries a finite upper bound.
func (r Row) HasUpper() bool {
	return !math.IsInf(r.Upper, 1)
}

// Activity returns the row's left-hand side for values.
func (r Row) Activity(values []float64) float64 {
	return floats.Dot(r.Coefficients, values)
}

// Satisfied reports whether values lie within the row bounds, allowing tol slack.
func (r Row) Satisfied(values []float64, tol float64) bool {
	v := r.Activity(values)
	if r.HasLower() && v < r.Lower-tol {
		return false
	}
	if r.HasUpper() && v > r.Upper+tol {
		return false
	}
	return true
}

// Model is an integer program over whole bags.
type Model struct {
	Columns   []Column
	Rows      []Row
	Objective []float64
	Sense     Sense
}

// Row returns the named row.
func (m *Model) Row(name string) (Row, bool) {
	for _, r := range m.Rows {
		if r.Name == name {
			return r, true
		}
	}
	return Row{}, false
}

// Coefficients returns the per-bag values of n for every column.
func (m *Model) Coefficients(n Nutrient) []float64 {
	out := make([]float64, len(m.Columns))
	for i, c := range m.Columns {
		out[i] = c.Coefficient(n)
	}
	return out
}

// Evaluate returns the objective value for values.
func (m *Model) Evaluate(values []float64) float64 {
	return floats.Dot(m.Objective, values)
}

// Feasible reports whether values respect every column and row bound.
func (m *Model) Feasible(values []float64, tol float64) bool {
	if len(values) != len(m.Columns) {
		return false
	}
	for i, c := range m.Columns {
		if values[i] < c.Lower-tol || values[i] > c.Upper+tol {
			return false
		}
	}
	for _, r := range m.Rows {
		if !r.Satisfied(values, tol) {
			return false
		}
	}
	return true
}

// Vector orders a name-keyed assignment by column.
func (m *Model) Vector(values map[string]float64) []float64 {
	out := make([]float64, len(m.Columns))
	for i, c := range m.Columns {
		out[i] = values[c.Name]
	}
	return out
}

// NumNonzeros counts nonzero row coefficients.
func (m *Model) NumNonzeros() int {
	n := 0
	for _, r := range m.Rows {
		for _, v := range r.Coefficients {
			if v != 0 {
				n++
			}
		}
	}
	return n
}

// String summarizes the model size.
func (m *Model) String() string {
	return fmt.Sprintf("%s model: %d columns, %d rows, %d nonzeros", m.Sense, len(m.Columns), len(m.Rows), m.NumNonzeros())
}
