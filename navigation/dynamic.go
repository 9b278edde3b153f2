package navigation

import (
	"context"
	"math"

	"github.com/golang/geo/r2"

	"github.com/relaybot/navcore/grid"
)

// obstacleInflationCells is the disk radius, in cells, that each scanner
// obstacle is inflated by when stamped onto a transient layer.
const obstacleInflationCells = 2

// obstacleLayer builds a transient copy of the static grid with the
// scanner's current near obstacles stamped in, transformed to world
// coordinates through the current pose estimate. The static grid is
// returned unchanged when no obstacles are visible or the scanner read
// fails; the caller never mutates the returned grid beyond planning over
// it, and the copy is discarded after the call.
func (s *System) obstacleLayer(ctx context.Context) *grid.Grid {
	obstacles, err := s.scanner.Obstacles(ctx, s.cfg.ObstacleMinDistance)
	if err != nil {
		s.logger.Warnw("cannot read scanner obstacles, planning on static map", "error", err)
		return s.grid
	}
	if len(obstacles) == 0 {
		return s.grid
	}

	pose := s.localizer.Pose()
	sin, cos := math.Sincos(pose.Theta)
	layer := s.grid.Clone()
	for _, rel := range obstacles {
		world := r2.Point{
			X: pose.X + rel.X*cos - rel.Y*sin,
			Y: pose.Y + rel.X*sin + rel.Y*cos,
		}
		gx, gy := layer.WorldToGrid(world)
		layer.StampObstacleDisk(gx, gy, obstacleInflationCells)
	}
	s.logger.Debugw("stamped dynamic obstacles", "count", len(obstacles))
	return layer
}

// pathBlocked reports whether any waypoint of the path is invalid on the
// given layer when the configured clearance is applied.
func (s *System) pathBlocked(layer *grid.Grid, path []r2.Point) bool {
	for _, pt := range path {
		if !layer.IsValidPosition(pt, s.cfg.ObstacleClearance) {
			return true
		}
	}
	return false
}
