package config

import (
	"fmt"
	"time"

	"github.com/haroldofalcao/optinutri/pkg/constants"
)

// OptimizerConfig tunes how solver output is re-checked.
type OptimizerConfig struct {
	NutrientTolerance float64       `yaml:"nutrientTolerance,omitempty" mapstructure:"nutrientTolerance"`
	CountTolerance    float64       `yaml:"countTolerance,omitempty" mapstructure:"countTolerance"`
	BagEpsilon        float64       `yaml:"bagEpsilon,omitempty" mapstructure:"bagEpsilon"`
	SolverTimeLimit   time.Duration `yaml:"solverTimeLimit,omitempty" mapstructure:"solverTimeLimit"`
}

// solveBackstopGrace is how long a run may overshoot the HiGHS time limit
// before the optimizer abandons it.
const solveBackstopGrace = 2 * time.Second

// SolveBackstop returns the per-solve timeout enforced around the backend.
// It is zero when no solver time limit is set.
func (o OptimizerConfig) SolveBackstop() time.Duration {
	if o.SolverTimeLimit <= 0 {
		return 0
	}
	return o.SolverTimeLimit + solveBackstopGrace
}

// Normalize fills unset tolerances with the standard values.
func (o *OptimizerConfig) Normalize() {
	if o == nil {
		return
	}
	if o.NutrientTolerance == 0 {
		o.NutrientTolerance = constants.NutrientTolerance
	}
	if o.CountTolerance == 0 {
		o.CountTolerance = constants.CountTolerance
	}
	if o.BagEpsilon == 0 {
		o.BagEpsilon = constants.BagEpsilon
	}
}

// Validate returns an error when the optimizer configuration is unsupported.
func (o *OptimizerConfig) Validate() error {
	if o == nil {
		return fmt.Errorf("optimizer configuration cannot be nil")
	}

	o.Normalize()

	if o.NutrientTolerance < 0 {
		return fmt.Errorf("optimizer nutrientTolerance %.3f cannot be negative", o.NutrientTolerance)
	}
	if o.CountTolerance < 0 {
		return fmt.Errorf("optimizer countTolerance %.3f cannot be negative", o.CountTolerance)
	}
	if o.BagEpsilon < 0 || o.BagEpsilon >= 0.5 {
		return fmt.Errorf("optimizer bagEpsilon %.3f must be in [0, 0.5)", o.BagEpsilon)
	}
	if o.SolverTimeLimit < 0 {
		return fmt.Errorf("optimizer solverTimeLimit %s cannot be negative", o.SolverTimeLimit)
	}
	return nil
}
