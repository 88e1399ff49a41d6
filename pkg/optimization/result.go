package optimization

import "time"

// Status is the outcome of an optimization call.
type Status string

const (
	StatusOptimal    Status = "Optimal"
	StatusInfeasible Status = "Infeasible"
	StatusError      Status = "Error"
)

// SelectedBag is one formula chosen by the optimizer.
type SelectedBag struct {
	FormulaID           string  `json:"formula_id"`
	Name                string  `json:"name"`
	Quantity            int     `json:"quantity"`
	UnitCost            float64 `json:"unit_cost"`
	TotalCost           float64 `json:"total_cost"`
	KcalContribution    float64 `json:"kcal_contribution"`
	ProteinContribution float64 `json:"protein_contribution"`
	VolumeContribution  float64 `json:"volume_contribution"`
	EmulsionType        string  `json:"emulsion_type"`
	Via                 string  `json:"via"`
	Manufacturer        string  `json:"manufacturer"`
	Fixed               bool    `json:"fixed,omitempty"`
}

// ConstraintsMet flags each bound of the request after re-validation.
type ConstraintsMet struct {
	KcalMin    bool `json:"kcal_min"`
	KcalMax    bool `json:"kcal_max"`
	ProteinMin bool `json:"protein_min"`
	ProteinMax bool `json:"protein_max"`
	VolumeMax  bool `json:"volume_max"`
	MaxBags    bool `json:"max_bags"`
}

// All reports whether every bound was met.
func (c ConstraintsMet) All() bool {
	return c.KcalMin && c.KcalMax && c.ProteinMin && c.ProteinMax && c.VolumeMax && c.MaxBags
}

// ViolationDetail explains a requested bound that lies outside the range
// reachable with the eligible formulas.
type ViolationDetail struct {
	Constraint string  `json:"constraint"`
	Target     float64 `json:"target"`
	ActualMin  float64 `json:"actual_min"`
	ActualMax  float64 `json:"actual_max"`
	Unit       string  `json:"unit"`
}

// Result is the sole output of an optimization call.
// Partial marks an Infeasible result whose analysis lost at least one range
// to a solver fault, so its violation details may be incomplete.
type Result struct {
	Status           Status            `json:"status"`
	Message          string            `json:"message,omitempty"`
	TotalCost        *float64          `json:"total_cost"`
	TotalKcal        float64           `json:"total_kcal"`
	TotalProtein     float64           `json:"total_protein"`
	TotalVolume      float64           `json:"total_volume"`
	TotalNitrogen    float64           `json:"total_nitrogen"`
	TotalGlucose     float64           `json:"total_glucose"`
	TotalFat         float64           `json:"total_fat"`
	SelectedBags     []SelectedBag     `json:"selected_bags"`
	ConstraintsMet   ConstraintsMet    `json:"constraints_met"`
	NumBags          int               `json:"num_bags"`
	ViolationDetails []ViolationDetail `json:"violation_details,omitempty"`
	Partial          bool              `json:"partial,omitempty"`
	Duration         time.Duration     `json:"duration_ns,omitempty"`
}

// Optimal reports whether the result carries a usable prescription.
func (r Result) Optimal() bool {
	return r.Status == StatusOptimal
}

// Violation returns the detail for the named constraint, if present.
func (r Result) Violation(constraint string) (ViolationDetail, bool) {
	for _, v := range r.ViolationDetails {
		if v.Constraint == constraint {
			return v, true
		}
	}
	return ViolationDetail{}, false
}

// ErrorResult returns an Error-status result carrying message.
func ErrorResult(message string) Result {
	return Result{
		Status:       StatusError,
		Message:      message,
		SelectedBags: []SelectedBag{},
	}
}

// InfeasibleResult returns an Infeasible-status result with zeroed totals.
func InfeasibleResult(message string, details []ViolationDetail) Result {
	if len(details) == 0 {
		details = nil
	}
	return Result{
		Status:           StatusInfeasible,
		Message:          message,
		SelectedBags:     []SelectedBag{},
		ViolationDetails: details,
	}
}

// Constraint names used in violation details.
const (
	ConstraintKcalMin    = "Calorias Mínimas"
	ConstraintKcalMax    = "Calorias Máximas"
	ConstraintProteinMin = "Proteína Mínima"
	ConstraintProteinMax = "Proteína Máxima"
	ConstraintVolumeMax  = "Volume Máximo"
)
