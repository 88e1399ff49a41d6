package validation

import (
	"fmt"
	"math"
	"strings"

	"github.com/haroldofalcao/optinutri/pkg/optimization"
)

// FieldError describes one rejected constraint field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateConstraints checks a constraint set before any model is built and
// returns one FieldError per failing rule. An empty slice means the set is valid.
// Non-finite values are reported alone since no other rule can judge them.
func ValidateConstraints(c optimization.Constraints) []FieldError {
	if errs := validateFinite(c); len(errs) > 0 {
		return errs
	}

	var errs []FieldError

	if c.KcalMin < 0 {
		errs = append(errs, FieldError{Field: "kcal_min", Message: "value cannot be negative"})
	}
	if c.KcalMax < 0 {
		errs = append(errs, FieldError{Field: "kcal_max", Message: "value cannot be negative"})
	}
	if c.KcalMin > c.KcalMax {
		errs = append(errs, FieldError{Field: "kcal_max", Message: fmt.Sprintf("maximum %.1f must not be below minimum %.1f", c.KcalMax, c.KcalMin)})
	}

	if c.ProteinMin < 0 {
		errs = append(errs, FieldError{Field: "protein_min", Message: "value cannot be negative"})
	}
	if c.ProteinMax < 0 {
		errs = append(errs, FieldError{Field: "protein_max", Message: "value cannot be negative"})
	}
	if c.ProteinMin > c.ProteinMax {
		errs = append(errs, FieldError{Field: "protein_max", Message: fmt.Sprintf("maximum %.1f must not be below minimum %.1f", c.ProteinMax, c.ProteinMin)})
	}

	if c.VolumeMax <= 0 {
		errs = append(errs, FieldError{Field: "volume_max", Message: "volume must be greater than zero"})
	}
	if c.MaxBags < 0 {
		errs = append(errs, FieldError{Field: "max_bags", Message: "bag limit cannot be negative"})
	}

	return errs
}

func validateFinite(c optimization.Constraints) []FieldError {
	fields := []struct {
		name  string
		value float64
	}{
		{"kcal_min", c.KcalMin},
		{"kcal_max", c.KcalMax},
		{"protein_min", c.ProteinMin},
		{"protein_max", c.ProteinMax},
		{"volume_max", c.VolumeMax},
	}

	var errs []FieldError
	for _, f := range fields {
		if math.IsNaN(f.value) || math.IsInf(f.value, 0) {
			errs = append(errs, FieldError{Field: f.name, Message: fmt.Sprintf("value must be a finite number, got %v", f.value)})
		}
	}
	return errs
}

// JoinFieldErrors renders field errors as a single message.
func JoinFieldErrors(errs []FieldError) string {
	parts := make([]string, 0, len(errs))
	for _, e := range errs {
		parts = append(parts, e.Error())
	}
	return strings.Join(parts, "; ")
}
