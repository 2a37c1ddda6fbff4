package trajectory

import (
	"math"

	"github.com/banshee-data/trajcal/internal/params"
)

const (
	// wheelBase is the axle-to-axle distance of the recording platform in
	// metres. All corpus logs come from the same chassis.
	wheelBase = 0.185

	// maxSteeringAngle clamps scaled steering input to a physically
	// reachable wheel angle.
	maxSteeringAngle = 1.2
)

// FusionPredictor reconstructs a trajectory by dead-reckoning wheel
// odometry and blending in gyro, magnetometer, and camera heading
// observations according to a ParameterSet. It is stateless across calls;
// per-call filter state lives on the stack, so a single instance is safe
// for concurrent use.
type FusionPredictor struct{}

// NewFusionPredictor returns the reference predictor.
func NewFusionPredictor() *FusionPredictor {
	return &FusionPredictor{}
}

// Predict implements Predictor.
func (f *FusionPredictor) Predict(samples []RawSample, p params.ParameterSet) ([]Pose, error) {
	if len(samples) < 2 {
		return nil, &PredictionError{Reason: "sequence needs at least two samples", Sample: -1}
	}

	var cameraKF, gyroKF *scalarKalman
	if p.UseCameraFilter {
		cameraKF = newScalarKalman(p.CameraProcessNoise, p.CameraMeasurementNoise)
	}
	if p.UseGyroFilter {
		gyroKF = newScalarKalman(p.GyroProcessNoise, p.GyroMeasurementNoise)
	}
	var ukf *unscentedFilter
	if p.UseUnscented {
		ukf = newUnscentedFilter(p.UnscentedProcessNoise, p.UnscentedMeasurementNoise, p.UnscentedAlpha, p.UnscentedKappa)
	}

	smoother := newRateSmoother(p.SmoothingWidth)

	poses := make([]Pose, 0, len(samples))
	heading := samples[0].CameraHeading
	x, y := 0.0, 0.0
	poses = append(poses, Pose{Heading: heading, TimestampNanos: samples[0].TimestampNanos})

	for i := 1; i < len(samples); i++ {
		s := samples[i]
		dt := float64(s.TimestampNanos-samples[i-1].TimestampNanos) / 1e9
		if dt <= 0 {
			return nil, &PredictionError{Reason: "non-monotonic timestamps", Sample: i}
		}

		dist := (s.OdometryLeft + s.OdometryRight) / 2

		// Heading rate implied by the steering geometry (bicycle model).
		steering := s.SteeringAngle * p.SteeringScale
		if steering > maxSteeringAngle {
			steering = maxSteeringAngle
		} else if steering < -maxSteeringAngle {
			steering = -maxSteeringAngle
		}
		odoRate := math.Tan(steering) * dist / wheelBase / dt

		gyroRate := s.GyroZ
		if gyroKF != nil {
			gyroRate = gyroKF.Update(gyroRate)
		}

		// Blend gyro against steering odometry.
		wg := p.GyroMix
		if p.SineGyroBlend {
			wg = math.Sin(wg * math.Pi / 2)
		}
		rate := smoother.push(wg*gyroRate + (1-wg)*odoRate)
		heading += rate * dt

		if p.UseMagnetometer {
			heading += p.MagnetometerMix * WrapAngle(s.MagHeading-heading)
		}

		// Camera heading is an absolute observation, pulled in with a
		// confidence weight shaped by the exponents and blend curve.
		camHeading := s.CameraHeading
		if cameraKF != nil {
			camHeading = cameraKF.Update(camHeading)
		}
		conf := clamp01(s.CameraConfidence)
		camWeight := math.Pow(conf, p.CameraExponent)
		odoWeight := math.Pow(1-conf, p.OdometryExponent)
		if camWeight+odoWeight > 0 {
			w := camWeight / (camWeight + odoWeight)
			if p.SineCameraBlend {
				w = math.Sin(w * math.Pi / 2)
			}
			if ukf != nil {
				heading = ukf.Step(rate, heading+w*WrapAngle(camHeading-heading), dt)
			} else {
				heading += w * WrapAngle(camHeading - heading)
			}
		}

		x += dist * math.Cos(heading)
		y += dist * math.Sin(heading)

		if math.IsNaN(x) || math.IsNaN(y) || math.IsNaN(heading) ||
			math.IsInf(x, 0) || math.IsInf(y, 0) || math.IsInf(heading, 0) {
			return nil, &PredictionError{Reason: "numerical divergence", Sample: i}
		}

		poses = append(poses, Pose{X: x, Y: y, Heading: heading, TimestampNanos: s.TimestampNanos})
	}

	return poses, nil
}

// rateSmoother applies a moving-average kernel to the blended heading rate.
// A width below one disables smoothing.
type rateSmoother struct {
	window []float64
	size   int
	next   int
	filled int
}

func newRateSmoother(width float64) *rateSmoother {
	size := int(math.Round(width))
	if size < 1 {
		size = 1
	}
	return &rateSmoother{window: make([]float64, size), size: size}
}

func (s *rateSmoother) push(v float64) float64 {
	s.window[s.next] = v
	s.next = (s.next + 1) % s.size
	if s.filled < s.size {
		s.filled++
	}
	sum := 0.0
	for i := 0; i < s.filled; i++ {
		sum += s.window[i]
	}
	return sum / float64(s.filled)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
