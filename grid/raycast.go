package grid

import "math"

// RayCast marches a ray from (x, y) at the given world-frame angle and
// returns the distance to the first occupied or out-of-bounds cell, or
// maxRange if the ray stays clear. The step size is half a cell.
func (g *Grid) RayCast(x, y, angle, maxRange float64) float64 {
	step := g.resolution / 2
	dx := math.Cos(angle) * step
	dy := math.Sin(angle) * step

	curX, curY := x, y
	dist := 0.0
	for dist < maxRange {
		gx := int((curX - g.originX) / g.resolution)
		gy := int((curY - g.originY) / g.resolution)
		if !g.Contains(gx, gy) || g.cells[gy*g.width+gx] {
			return dist
		}
		curX += dx
		curY += dy
		dist += step
	}
	return maxRange
}
