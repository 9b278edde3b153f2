// Package spatialmath defines the planar pose type and angle helpers used
// throughout the navigation core.
package spatialmath

import (
	"fmt"
	"math"

	"github.com/golang/geo/r2"
)

// Pose is a position and heading in map coordinates. Theta is in radians,
// normalized to (-pi, pi], with 0 pointing along the +X axis.
type Pose struct {
	X     float64
	Y     float64
	Theta float64
}

// NewPose returns a pose with the heading normalized.
func NewPose(x, y, theta float64) Pose {
	return Pose{X: x, Y: y, Theta: NormalizeAngle(theta)}
}

// Point returns the positional part of the pose.
func (p Pose) Point() r2.Point {
	return r2.Point{X: p.X, Y: p.Y}
}

// DistanceTo returns the Euclidean distance to the given point, ignoring
// heading.
func (p Pose) DistanceTo(pt r2.Point) float64 {
	return p.Point().Sub(pt).Norm()
}

func (p Pose) String() string {
	return fmt.Sprintf("(%.3f, %.3f, %.3f)", p.X, p.Y, p.Theta)
}

// NormalizeAngle maps an angle in radians into (-pi, pi]. It is idempotent.
func NormalizeAngle(theta float64) float64 {
	theta = math.Mod(theta, 2*math.Pi)
	if theta > math.Pi {
		theta -= 2 * math.Pi
	} else if theta <= -math.Pi {
		theta += 2 * math.Pi
	}
	return theta
}

// BearingTo returns the world-frame bearing from the pose's position to the
// given point.
func (p Pose) BearingTo(pt r2.Point) float64 {
	return math.Atan2(pt.Y-p.Y, pt.X-p.X)
}
