// Package inject provides dependency-injected collaborators for testing the
// navigation core, where each method can be overridden by a function field.
package inject

import (
	"context"

	"github.com/relaybot/navcore/odometry"
	"github.com/relaybot/navcore/spatialmath"
)

// Odometry is an injected odometry source.
type Odometry struct {
	odometry.Source
	PoseFunc func(ctx context.Context) (spatialmath.Pose, error)
}

// Pose calls the injected Pose or the real version.
func (o *Odometry) Pose(ctx context.Context) (spatialmath.Pose, error) {
	if o.PoseFunc == nil {
		return o.Source.Pose(ctx)
	}
	return o.PoseFunc(ctx)
}
