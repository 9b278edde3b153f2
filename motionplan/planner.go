// Package motionplan plans collision-free waypoint paths over an occupancy
// grid using A* with 8-connectivity and line-of-sight simplification.
package motionplan

import (
	"math"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r2"

	"github.com/relaybot/navcore/grid"
)

// Options bound and tune a planner.
type Options struct {
	// Clearance is the minimum obstacle buffer in meters enforced on every
	// cell of the path.
	Clearance float64
	// MaxIterations caps the A* expansion count.
	MaxIterations int
	// PositionTolerance collapses start~goal plans to a single point.
	PositionTolerance float64
	// SearchRadius bounds the spiral search for a valid position near an
	// invalid start or goal, in meters.
	SearchRadius float64
}

// DefaultOptions returns the planner tuning used when the caller has no
// opinion.
func DefaultOptions() Options {
	return Options{
		Clearance:         0.15,
		MaxIterations:     10000,
		PositionTolerance: 0.15,
		SearchRadius:      1.0,
	}
}

// Planner holds planning options; the grid to plan over is passed per call
// so transient obstacle layers never replace shared state.
type Planner struct {
	opts   Options
	logger golog.Logger
}

// NewPlanner returns a planner with the given options.
func NewPlanner(opts Options, logger golog.Logger) *Planner {
	return &Planner{opts: opts, logger: logger}
}

// PlanPath searches for a waypoint path from start to goal over g. Invalid
// endpoints are snapped to the nearest valid position within the search
// radius. The returned path starts at the (snapped) start and ends at the
// (snapped) goal; it is already simplified. ErrIterationLimit is returned
// with a nil path when the search budget runs out.
func (p *Planner) PlanPath(g *grid.Grid, start, goal r2.Point) ([]r2.Point, error) {
	var err error
	if !g.IsValidPosition(start, 0) {
		p.logger.Warnw("start position invalid, snapping to nearest valid", "x", start.X, "y", start.Y)
		if start, err = p.nearestValidPosition(g, start); err != nil {
			return nil, err
		}
	}
	if !g.IsValidPosition(goal, 0) {
		p.logger.Warnw("goal position invalid, snapping to nearest valid", "x", goal.X, "y", goal.Y)
		if goal, err = p.nearestValidPosition(g, goal); err != nil {
			return nil, err
		}
	}

	if start.Sub(goal).Norm() < p.opts.PositionTolerance {
		return []r2.Point{start}, nil
	}

	cells, err := p.searchGrid(g, start, goal)
	if err != nil {
		return nil, err
	}
	path := make([]r2.Point, 0, len(cells))
	for _, c := range cells {
		path = append(path, g.GridToWorld(c.x, c.y))
	}
	return p.simplifyPath(g, path), nil
}

// nearestValidPosition spirals outward from pt in steps of one grid
// resolution looking for a valid position.
func (p *Planner) nearestValidPosition(g *grid.Grid, pt r2.Point) (r2.Point, error) {
	step := g.Resolution()
	for radius := step; radius < p.opts.SearchRadius; radius += step {
		numPoints := int(2 * math.Pi * radius / step)
		for i := 0; i < numPoints; i++ {
			angle := 2 * math.Pi * float64(i) / float64(numPoints)
			candidate := r2.Point{
				X: pt.X + radius*math.Cos(angle),
				Y: pt.Y + radius*math.Sin(angle),
			}
			if g.IsValidPosition(candidate, 0) {
				p.logger.Debugw("snapped to valid position",
					"x", candidate.X, "y", candidate.Y, "radius", radius)
				return candidate, nil
			}
		}
	}
	return r2.Point{}, NewNoValidPositionError(pt, p.opts.SearchRadius)
}

// simplifyPath greedily drops interior waypoints whose removal keeps
// line-of-sight (with clearance) between the surviving neighbors. Endpoints
// are always preserved.
func (p *Planner) simplifyPath(g *grid.Grid, path []r2.Point) []r2.Point {
	if len(path) <= 2 {
		return path
	}
	simplified := []r2.Point{path[0]}
	for i := 1; i < len(path)-1; i++ {
		if !g.LineOfSight(simplified[len(simplified)-1], path[i+1], p.opts.Clearance) {
			simplified = append(simplified, path[i])
		}
	}
	simplified = append(simplified, path[len(path)-1])
	p.logger.Debugw("path simplified", "from", len(path), "to", len(simplified))
	return simplified
}
