// Package optimization provides shared data structures for formula
// optimization requests and results.
package optimization

import (
	"fmt"

	"github.com/haroldofalcao/optinutri/pkg/constants"
)

// Formula is a commercial nutrition product sold in bags of a fixed volume.
// Densities are per liter, Kcal and BaseCost are per bag.
type Formula struct {
	ID           string  `json:"id" yaml:"id"`
	Name         string  `json:"name" yaml:"name"`
	Manufacturer string  `json:"manufacturer" yaml:"manufacturer"`
	VolumeML     float64 `json:"volume_ml" yaml:"volume_ml"`
	Kcal         float64 `json:"kcal" yaml:"kcal"`
	ProteinGL    float64 `json:"protein_g_l" yaml:"protein_g_l"`
	NitrogenGL   float64 `json:"nitrogen_g_l" yaml:"nitrogen_g_l"`
	GlucoseGL    float64 `json:"glucose_g_l" yaml:"glucose_g_l"`
	FatGL        float64 `json:"fat_g_l" yaml:"fat_g_l"`
	EmulsionType string  `json:"emulsion_type" yaml:"emulsion_type"`
	Via          string  `json:"via" yaml:"via"`
	BaseCost     float64 `json:"base_cost" yaml:"base_cost"`
	Osmolarity   float64 `json:"osmolarity,omitempty" yaml:"osmolarity,omitempty"`
	Hidden       bool    `json:"hidden,omitempty" yaml:"hidden,omitempty"`
}

// ProteinPerBag returns grams of protein in one bag.
func (f Formula) ProteinPerBag() float64 {
	return f.ProteinGL * f.VolumeML / constants.MillilitersPerLiter
}

// NitrogenPerBag returns grams of nitrogen in one bag.
func (f Formula) NitrogenPerBag() float64 {
	return f.NitrogenGL * f.VolumeML / constants.MillilitersPerLiter
}

// GlucosePerBag returns grams of glucose in one bag.
func (f Formula) GlucosePerBag() float64 {
	return f.GlucoseGL * f.VolumeML / constants.MillilitersPerLiter
}

// FatPerBag returns grams of fat in one bag.
func (f Formula) FatPerBag() float64 {
	return f.FatGL * f.VolumeML / constants.MillilitersPerLiter
}

// Validate returns an error when the formula cannot be used as reference data.
func (f Formula) Validate() error {
	if f.ID == "" {
		return fmt.Errorf("formula id cannot be empty")
	}
	if f.VolumeML <= 0 {
		return fmt.Errorf("formula %s: volume must be positive, got %.1f", f.ID, f.VolumeML)
	}
	checks := []struct {
		field string
		value float64
	}{
		{"kcal", f.Kcal},
		{"protein_g_l", f.ProteinGL},
		{"nitrogen_g_l", f.NitrogenGL},
		{"glucose_g_l", f.GlucoseGL},
		{"fat_g_l", f.FatGL},
		{"base_cost", f.BaseCost},
	}
	for _, c := range checks {
		if c.value < 0 {
			return fmt.Errorf("formula %s: %s cannot be negative, got %.2f", f.ID, c.field, c.value)
		}
	}
	return nil
}

// Constraints are the per-call nutritional targets.
// MaxBags caps the total number of bag units; zero leaves it unset.
type Constraints struct {
	KcalMin    float64 `json:"kcal_min" yaml:"kcal_min"`
	KcalMax    float64 `json:"kcal_max" yaml:"kcal_max"`
	ProteinMin float64 `json:"protein_min" yaml:"protein_min"`
	ProteinMax float64 `json:"protein_max" yaml:"protein_max"`
	VolumeMax  float64 `json:"volume_max" yaml:"volume_max"`
	MaxBags    int     `json:"max_bags,omitempty" yaml:"max_bags,omitempty"`
}

// HasKcalBounds reports whether the kcal row takes part in the model.
func (c Constraints) HasKcalBounds() bool {
	return c.KcalMin > 0 || c.KcalMax > 0
}

// HasProteinBounds reports whether the protein row takes part in the model.
func (c Constraints) HasProteinBounds() bool {
	return c.ProteinMin > 0 || c.ProteinMax > 0
}
