// Package odometry provides dead-reckoning pose sources. Differential
// integrates wheel encoder ticks for a differential-drive base.
package odometry

import (
	"context"
	"math"
	"sync"

	"github.com/edaniels/golog"

	"github.com/relaybot/navcore/spatialmath"
)

// Source yields a monotonic dead-reckoning pose.
type Source interface {
	Pose(ctx context.Context) (spatialmath.Pose, error)
}

// maxReasonableTickDelta guards against encoder overflow glitches; larger
// per-update jumps are dropped.
const maxReasonableTickDelta = 1000

// Differential tracks pose from left/right wheel encoder ticks using
// differential-drive kinematics.
type Differential struct {
	mu          sync.Mutex
	wheelBase   float64
	wheelRadius float64
	ticksPerRev int
	pose        spatialmath.Pose
	lastLeft    int64
	lastRight   int64
	initialized bool
	logger      golog.Logger
}

// NewDifferential returns a dead-reckoning tracker for a base with the given
// wheel separation and radius in meters.
func NewDifferential(wheelBase, wheelRadius float64, ticksPerRev int, logger golog.Logger) *Differential {
	return &Differential{
		wheelBase:   wheelBase,
		wheelRadius: wheelRadius,
		ticksPerRev: ticksPerRev,
		logger:      logger,
	}
}

// Update integrates a new pair of cumulative encoder readings. The first
// call only latches the tick baseline.
func (d *Differential) Update(leftTicks, rightTicks int64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.initialized {
		d.lastLeft, d.lastRight = leftTicks, rightTicks
		d.initialized = true
		return
	}

	deltaLeft := leftTicks - d.lastLeft
	deltaRight := rightTicks - d.lastRight
	if abs64(deltaLeft) > maxReasonableTickDelta || abs64(deltaRight) > maxReasonableTickDelta {
		d.logger.Warnw("implausible encoder delta, skipping update",
			"left", deltaLeft, "right", deltaRight)
		d.lastLeft, d.lastRight = leftTicks, rightTicks
		return
	}
	d.lastLeft, d.lastRight = leftTicks, rightTicks

	distPerTick := 2 * math.Pi * d.wheelRadius / float64(d.ticksPerRev)
	leftDist := float64(deltaLeft) * distPerTick
	rightDist := float64(deltaRight) * distPerTick

	centerDist := (leftDist + rightDist) / 2
	deltaTheta := (rightDist - leftDist) / d.wheelBase

	// Integrate along the arc midpoint heading; for straight segments this
	// degenerates to motion along the current heading.
	heading := d.pose.Theta + deltaTheta/2
	d.pose.X += centerDist * math.Cos(heading)
	d.pose.Y += centerDist * math.Sin(heading)
	d.pose.Theta = spatialmath.NormalizeAngle(d.pose.Theta + deltaTheta)
}

// Pose implements Source.
func (d *Differential) Pose(ctx context.Context) (spatialmath.Pose, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pose, nil
}

// ResetTo re-bases the tracked pose, keeping the encoder baseline.
func (d *Differential) ResetTo(pose spatialmath.Pose) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pose = spatialmath.NewPose(pose.X, pose.Y, pose.Theta)
}

func abs64(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}
