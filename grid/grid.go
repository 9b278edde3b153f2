// Package grid implements the binary occupancy grid the planner and
// localizer operate on, including the world/grid coordinate mapping, ray
// casting, and the obstacle stamping used for transient obstacle layers.
package grid

import (
	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
)

// Grid is a binary occupancy grid. The static map grid is immutable after
// construction; mutation (Clone + StampObstacleDisk) is reserved for
// transient per-plan copies.
type Grid struct {
	width      int
	height     int
	resolution float64
	originX    float64
	originY    float64
	cells      []bool
}

// NewGrid rasterizes a map description into an occupancy grid. Rectangle
// obstacles are clamped to the grid bounds.
func NewGrid(cfg MapConfig) (*Grid, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	width := int(cfg.Width / cfg.Resolution)
	height := int(cfg.Height / cfg.Resolution)
	if width <= 0 || height <= 0 {
		return nil, errors.New("map smaller than one cell")
	}
	g := &Grid{
		width:      width,
		height:     height,
		resolution: cfg.Resolution,
		originX:    cfg.Origin.X,
		originY:    cfg.Origin.Y,
		cells:      make([]bool, width*height),
	}
	for _, obs := range cfg.Obstacles {
		g.rasterizeRect(obs)
	}
	return g, nil
}

func (g *Grid) rasterizeRect(obs RectObstacle) {
	x1 := clampInt(int((obs.X-g.originX)/g.resolution), 0, g.width-1)
	y1 := clampInt(int((obs.Y-g.originY)/g.resolution), 0, g.height-1)
	x2 := clampInt(int((obs.X+obs.Width-g.originX)/g.resolution), 0, g.width-1)
	y2 := clampInt(int((obs.Y+obs.Height-g.originY)/g.resolution), 0, g.height-1)
	for y := y1; y <= y2; y++ {
		for x := x1; x <= x2; x++ {
			g.cells[y*g.width+x] = true
		}
	}
}

func clampInt(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

// Width returns the grid width in cells.
func (g *Grid) Width() int { return g.width }

// Height returns the grid height in cells.
func (g *Grid) Height() int { return g.height }

// Resolution returns the cell size in meters.
func (g *Grid) Resolution() float64 { return g.resolution }

// WorldToGrid converts a world coordinate to grid cell indices. The result
// may be out of bounds; callers check with Contains or IsOccupied.
func (g *Grid) WorldToGrid(pt r2.Point) (int, int) {
	return int((pt.X - g.originX) / g.resolution), int((pt.Y - g.originY) / g.resolution)
}

// GridToWorld returns the world coordinate of a cell's center.
func (g *Grid) GridToWorld(gx, gy int) r2.Point {
	return r2.Point{
		X: g.originX + (float64(gx)+0.5)*g.resolution,
		Y: g.originY + (float64(gy)+0.5)*g.resolution,
	}
}

// Contains reports whether the cell indices lie inside the grid.
func (g *Grid) Contains(gx, gy int) bool {
	return gx >= 0 && gx < g.width && gy >= 0 && gy < g.height
}

// IsOccupied reports whether a cell is occupied. Out-of-bounds cells are
// occupied (fail closed).
func (g *Grid) IsOccupied(gx, gy int) bool {
	if !g.Contains(gx, gy) {
		return true
	}
	return g.cells[gy*g.width+gx]
}

// IsValidPosition reports whether a world position is inside the grid and at
// least clearance meters (rounded down to whole cells) from any occupied
// cell. Cells of the clearance window that fall outside the grid are
// ignored; only the center going out of bounds invalidates the position.
func (g *Grid) IsValidPosition(pt r2.Point, clearance float64) bool {
	gx, gy := g.WorldToGrid(pt)
	if !g.Contains(gx, gy) {
		return false
	}
	clearanceCells := int(clearance / g.resolution)
	for dy := -clearanceCells; dy <= clearanceCells; dy++ {
		for dx := -clearanceCells; dx <= clearanceCells; dx++ {
			cx, cy := gx+dx, gy+dy
			if g.Contains(cx, cy) && g.cells[cy*g.width+cx] {
				return false
			}
		}
	}
	return true
}

// LineOfSight reports whether the straight segment between two world points
// stays valid (with clearance) when sampled at grid resolution.
func (g *Grid) LineOfSight(a, b r2.Point, clearance float64) bool {
	dist := a.Sub(b).Norm()
	numSteps := int(dist/g.resolution) + 1
	for i := 0; i <= numSteps; i++ {
		t := float64(i) / float64(numSteps)
		pt := r2.Point{X: a.X + t*(b.X-a.X), Y: a.Y + t*(b.Y-a.Y)}
		if !g.IsValidPosition(pt, clearance) {
			return false
		}
	}
	return true
}

// Clone returns a mutable copy of the grid for transient obstacle layers.
func (g *Grid) Clone() *Grid {
	cp := *g
	cp.cells = make([]bool, len(g.cells))
	copy(cp.cells, g.cells)
	return &cp
}

// StampObstacleDisk marks a disk of cells around (gx, gy) as occupied,
// clipped to the grid bounds.
func (g *Grid) StampObstacleDisk(gx, gy, radiusCells int) {
	for dy := -radiusCells; dy <= radiusCells; dy++ {
		for dx := -radiusCells; dx <= radiusCells; dx++ {
			if dx*dx+dy*dy > radiusCells*radiusCells {
				continue
			}
			cx, cy := gx+dx, gy+dy
			if g.Contains(cx, cy) {
				g.cells[cy*g.width+cx] = true
			}
		}
	}
}
