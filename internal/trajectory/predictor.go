package trajectory

import (
	"fmt"

	"github.com/banshee-data/trajcal/internal/params"
)

// Predictor maps a recorded sample sequence plus a parameter set to a
// predicted pose sequence. Implementations must be pure: identical inputs
// produce identical outputs, and failures surface as errors rather than
// NaN poses.
type Predictor interface {
	Predict(samples []RawSample, p params.ParameterSet) ([]Pose, error)
}

// PredictionError reports a failed trajectory reconstruction: a malformed
// sample sequence or numerical divergence during fusion.
type PredictionError struct {
	Reason string
	Sample int // index of the offending sample, -1 when not sample-specific
}

func (e *PredictionError) Error() string {
	if e.Sample >= 0 {
		return fmt.Sprintf("prediction failed at sample %d: %s", e.Sample, e.Reason)
	}
	return fmt.Sprintf("prediction failed: %s", e.Reason)
}
