// Package params defines the tunable parameter vector for the trajectory
// fusion model and the neighborhood used by the calibration search. It
// includes validation, JSON persistence, and single-step neighbor
// enumeration over the mixed continuous/boolean parameter space.
package params

import (
	"fmt"
	"math"
)

// magMixFloor is the minimum magnetometer mix when magnetometer influence
// is enabled. A zero mix with the flag set would make the flag a no-op
// while still charging the evaluator for magnetometer fusion.
const magMixFloor = 0.05

// ParameterSet is the full tunable configuration vector for the trajectory
// fusion model. It contains no reference types: plain struct assignment
// yields an independent copy, so candidates can be evaluated concurrently
// without aliasing.
type ParameterSet struct {
	// Always-active blending parameters.
	CameraExponent   float64 `json:"camera_exponent"`   // camera confidence-weighting exponent
	OdometryExponent float64 `json:"odometry_exponent"` // odometry confidence-weighting exponent
	GyroMix          float64 `json:"gyro_mix"`          // gyro vs odometry heading-rate mix [0,1]
	MagnetometerMix  float64 `json:"magnetometer_mix"`  // magnetometer heading pull per step
	SteeringScale    float64 `json:"steering_scale"`    // steering-angle scaling factor
	SmoothingWidth   float64 `json:"smoothing_width"`   // heading smoothing kernel width [0,10]

	// Mode flags.
	SineCameraBlend bool `json:"sine_camera_blend"` // sine vs linear camera blend curve
	SineGyroBlend   bool `json:"sine_gyro_blend"`   // sine vs linear gyro blend curve
	UseCameraFilter bool `json:"use_camera_filter"` // Kalman filter on the camera channel
	UseGyroFilter   bool `json:"use_gyro_filter"`   // Kalman filter on the gyro channel
	UseMagnetometer bool `json:"use_magnetometer"`  // magnetometer influence enabled
	UseUnscented    bool `json:"use_unscented"`     // unscented filter variant

	// Camera filter group. Meaningful only while UseCameraFilter is set;
	// values persist across flag toggles so re-enabling the filter resumes
	// from the last tuned noise levels.
	CameraProcessNoise     float64 `json:"camera_process_noise"`
	CameraMeasurementNoise float64 `json:"camera_measurement_noise"`

	// Gyro filter group, gated by UseGyroFilter.
	GyroProcessNoise     float64 `json:"gyro_process_noise"`
	GyroMeasurementNoise float64 `json:"gyro_measurement_noise"`

	// Unscented filter group, gated by UseUnscented.
	UnscentedProcessNoise     float64 `json:"unscented_process_noise"`
	UnscentedMeasurementNoise float64 `json:"unscented_measurement_noise"`
	UnscentedAlpha            float64 `json:"unscented_alpha"` // sigma-point spread
	UnscentedKappa            float64 `json:"unscented_kappa"` // secondary scaling
}

// Default returns the starting parameter set used when no seed is supplied.
func Default() ParameterSet {
	return ParameterSet{
		CameraExponent:   1.0,
		OdometryExponent: 1.0,
		GyroMix:          0.5,
		MagnetometerMix:  0.1,
		SteeringScale:    1.0,
		SmoothingWidth:   1.0,

		CameraProcessNoise:     0.1,
		CameraMeasurementNoise: 0.3,
		GyroProcessNoise:       0.1,
		GyroMeasurementNoise:   0.3,

		UnscentedProcessNoise:     0.1,
		UnscentedMeasurementNoise: 0.3,
		UnscentedAlpha:            0.001,
		UnscentedKappa:            0.0,
	}
}

// MagnetometerMixFloor returns the lower bound for MagnetometerMix given the
// current magnetometer flag. The floor is stricter while the flag is set.
func (p ParameterSet) MagnetometerMixFloor() float64 {
	if p.UseMagnetometer {
		return magMixFloor
	}
	return 0
}

// Validate checks that every field obeys its declared range. Conditional
// fields keep their declared ranges even while their governing flag is
// false, since the stored values persist.
func (p ParameterSet) Validate() error {
	type bound struct {
		name     string
		value    float64
		min, max float64
	}
	checks := []bound{
		{"camera_exponent", p.CameraExponent, 0, math.Inf(1)},
		{"odometry_exponent", p.OdometryExponent, 0, math.Inf(1)},
		{"gyro_mix", p.GyroMix, 0, 1},
		{"magnetometer_mix", p.MagnetometerMix, p.MagnetometerMixFloor(), math.Inf(1)},
		{"steering_scale", p.SteeringScale, 0, math.Inf(1)},
		{"smoothing_width", p.SmoothingWidth, 0, 10},
		{"camera_process_noise", p.CameraProcessNoise, 0, math.Inf(1)},
		{"camera_measurement_noise", p.CameraMeasurementNoise, 0, math.Inf(1)},
		{"gyro_process_noise", p.GyroProcessNoise, 0, math.Inf(1)},
		{"gyro_measurement_noise", p.GyroMeasurementNoise, 0, math.Inf(1)},
		{"unscented_process_noise", p.UnscentedProcessNoise, 0, math.Inf(1)},
		{"unscented_measurement_noise", p.UnscentedMeasurementNoise, 0, math.Inf(1)},
		{"unscented_alpha", p.UnscentedAlpha, 0, math.Inf(1)},
		{"unscented_kappa", p.UnscentedKappa, 0, math.Inf(1)},
	}
	for _, c := range checks {
		if math.IsNaN(c.value) {
			return fmt.Errorf("%s is NaN", c.name)
		}
		if c.value < c.min || c.value > c.max {
			return fmt.Errorf("%s = %g out of range [%g, %g]", c.name, c.value, c.min, c.max)
		}
	}
	return nil
}
