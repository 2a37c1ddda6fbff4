// Package trajectory defines the pose and raw-sample types shared by the
// calibration pipeline and provides the reference sensor-fusion predictor
// that reconstructs a trajectory from a recorded sample sequence and a
// parameter set.
package trajectory

import "math"

// Pose is one point of a predicted or ground-truth trajectory. Positions
// are metres in the plane of travel; angles are radians.
type Pose struct {
	X              float64 `json:"x"`
	Y              float64 `json:"y"`
	Heading        float64 `json:"heading"`
	Pitch          float64 `json:"pitch"`
	Roll           float64 `json:"roll"`
	TimestampNanos int64   `json:"timestamp_nanos"`
}

// RawSample is one recorded sensor reading. Odometry values are incremental
// wheel distances in metres since the previous sample; rates are rad/s and
// headings rad. CameraConfidence is the vision pipeline's own estimate in
// [0,1] of how trustworthy CameraHeading is for this sample.
type RawSample struct {
	TimestampNanos   int64   `json:"timestamp_nanos"`
	OdometryLeft     float64 `json:"odometry_left"`
	OdometryRight    float64 `json:"odometry_right"`
	SteeringAngle    float64 `json:"steering_angle"`
	GyroZ            float64 `json:"gyro_z"`
	MagHeading       float64 `json:"mag_heading"`
	CameraHeading    float64 `json:"camera_heading"`
	CameraConfidence float64 `json:"camera_confidence"`
}

// LoopClosure returns the Euclidean distance between the first and last
// position of the trajectory. Zero-length trajectories close trivially.
func LoopClosure(poses []Pose) float64 {
	if len(poses) < 2 {
		return 0
	}
	first, last := poses[0], poses[len(poses)-1]
	return math.Hypot(last.X-first.X, last.Y-first.Y)
}

// HeadingDrift returns the absolute heading difference between the first
// and last pose.
func HeadingDrift(poses []Pose) float64 {
	if len(poses) < 2 {
		return 0
	}
	return math.Abs(poses[len(poses)-1].Heading - poses[0].Heading)
}

// WrapAngle normalises an angle to (-pi, pi].
func WrapAngle(a float64) float64 {
	for a > math.Pi {
		a -= 2 * math.Pi
	}
	for a <= -math.Pi {
		a += 2 * math.Pi
	}
	return a
}
