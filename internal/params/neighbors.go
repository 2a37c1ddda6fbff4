package params

import "math"

// Field step sizes. Most continuous fields move in 0.1 increments; the
// steering scale and the sigma-point spread are far more sensitive and get
// proportionally finer steps.
const (
	defaultDelta  = 0.1
	steeringDelta = 0.02
	alphaDelta    = 0.001
)

// contField describes one continuous parameter dimension: how to address it
// inside a candidate copy, its step size, and its bounds. The lower bound is
// a function because MagnetometerMix has a context-dependent floor.
type contField struct {
	name  string
	delta float64
	ptr   func(*ParameterSet) *float64
	min   func(ParameterSet) float64
	max   float64
}

// flagField describes one boolean mode flag dimension.
type flagField struct {
	name string
	ptr  func(*ParameterSet) *bool
}

// group bundles the continuous fields that share a governing flag. The
// always-active group uses an active func that is constantly true.
type group struct {
	active func(ParameterSet) bool
	fields []contField
}

func unbounded(ParameterSet) float64 { return 0 }

var alwaysActive = group{
	active: func(ParameterSet) bool { return true },
	fields: []contField{
		{"camera_exponent", defaultDelta, func(p *ParameterSet) *float64 { return &p.CameraExponent }, unbounded, math.Inf(1)},
		{"odometry_exponent", defaultDelta, func(p *ParameterSet) *float64 { return &p.OdometryExponent }, unbounded, math.Inf(1)},
		{"gyro_mix", defaultDelta, func(p *ParameterSet) *float64 { return &p.GyroMix }, unbounded, 1},
		{"magnetometer_mix", defaultDelta, func(p *ParameterSet) *float64 { return &p.MagnetometerMix }, ParameterSet.MagnetometerMixFloor, math.Inf(1)},
		{"steering_scale", steeringDelta, func(p *ParameterSet) *float64 { return &p.SteeringScale }, unbounded, math.Inf(1)},
		{"smoothing_width", defaultDelta, func(p *ParameterSet) *float64 { return &p.SmoothingWidth }, unbounded, 10},
	},
}

var cameraFilterGroup = group{
	active: func(p ParameterSet) bool { return p.UseCameraFilter },
	fields: []contField{
		{"camera_process_noise", defaultDelta, func(p *ParameterSet) *float64 { return &p.CameraProcessNoise }, unbounded, math.Inf(1)},
		{"camera_measurement_noise", defaultDelta, func(p *ParameterSet) *float64 { return &p.CameraMeasurementNoise }, unbounded, math.Inf(1)},
	},
}

var gyroFilterGroup = group{
	active: func(p ParameterSet) bool { return p.UseGyroFilter },
	fields: []contField{
		{"gyro_process_noise", defaultDelta, func(p *ParameterSet) *float64 { return &p.GyroProcessNoise }, unbounded, math.Inf(1)},
		{"gyro_measurement_noise", defaultDelta, func(p *ParameterSet) *float64 { return &p.GyroMeasurementNoise }, unbounded, math.Inf(1)},
	},
}

var unscentedGroup = group{
	active: func(p ParameterSet) bool { return p.UseUnscented },
	fields: []contField{
		{"unscented_process_noise", defaultDelta, func(p *ParameterSet) *float64 { return &p.UnscentedProcessNoise }, unbounded, math.Inf(1)},
		{"unscented_measurement_noise", defaultDelta, func(p *ParameterSet) *float64 { return &p.UnscentedMeasurementNoise }, unbounded, math.Inf(1)},
		{"unscented_alpha", alphaDelta, func(p *ParameterSet) *float64 { return &p.UnscentedAlpha }, unbounded, math.Inf(1)},
		{"unscented_kappa", defaultDelta, func(p *ParameterSet) *float64 { return &p.UnscentedKappa }, unbounded, math.Inf(1)},
	},
}

var allGroups = []group{alwaysActive, cameraFilterGroup, gyroFilterGroup, unscentedGroup}

var flagFields = []flagField{
	{"sine_camera_blend", func(p *ParameterSet) *bool { return &p.SineCameraBlend }},
	{"sine_gyro_blend", func(p *ParameterSet) *bool { return &p.SineGyroBlend }},
	{"use_camera_filter", func(p *ParameterSet) *bool { return &p.UseCameraFilter }},
	{"use_gyro_filter", func(p *ParameterSet) *bool { return &p.UseGyroFilter }},
	{"use_magnetometer", func(p *ParameterSet) *bool { return &p.UseMagnetometer }},
	{"use_unscented", func(p *ParameterSet) *bool { return &p.UseUnscented }},
}

// maxNeighbors is the candidate count with every filter group active:
// 14 continuous fields x 2 directions + 6 flag toggles.
const maxNeighbors = 34

// Neighbors returns every single-field perturbation of p: for each active
// continuous field, value+delta and value-delta (each included only while
// the result stays within the field's bounds), and for each flag, one
// candidate with the flag toggled. Inactive groups contribute nothing.
// The input is never mutated; every candidate is an independent copy with
// exactly one field changed.
func Neighbors(p ParameterSet) []ParameterSet {
	out := make([]ParameterSet, 0, maxNeighbors)

	for _, g := range allGroups {
		if !g.active(p) {
			continue
		}
		for _, f := range g.fields {
			cur := *f.ptr(&p)

			if up := cur + f.delta; up <= f.max {
				c := p
				*f.ptr(&c) = up
				out = append(out, c)
			}
			if down := cur - f.delta; down >= f.min(p) {
				c := p
				*f.ptr(&c) = down
				out = append(out, c)
			}
		}
	}

	for _, f := range flagFields {
		c := p
		*f.ptr(&c) = !*f.ptr(&p)

		// Turning the magnetometer on activates the stricter mix floor. A
		// set whose mix sits below the floor cannot adopt the flag in a
		// single step; lifting the mix too would change a second field.
		if c.UseMagnetometer && !p.UseMagnetometer && c.MagnetometerMix < magMixFloor {
			continue
		}
		out = append(out, c)
	}

	return out
}
