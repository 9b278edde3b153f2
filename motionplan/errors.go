package motionplan

import (
	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
)

// ErrIterationLimit is returned when A* exhausts its iteration budget
// without reaching the goal.
var ErrIterationLimit = errors.New("planner exhausted its iteration budget before reaching the goal")

// ErrNoPath is returned when the search space is exhausted and the goal was
// never reached.
var ErrNoPath = errors.New("no path to goal")

// NewNoValidPositionError means neither the given point nor anything within
// the search radius around it is a valid position on the grid.
func NewNoValidPositionError(pt r2.Point, radius float64) error {
	return errors.Errorf("no valid position within %.2fm of (%.2f, %.2f)", radius, pt.X, pt.Y)
}
