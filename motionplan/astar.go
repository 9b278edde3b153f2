package motionplan

import (
	"container/heap"

	"github.com/golang/geo/r2"

	"github.com/relaybot/navcore/grid"
)

type cell struct {
	x, y int
}

type openNode struct {
	cell  cell
	f     float64
	order int // insertion counter; ties resolve in insertion order
}

type openSet []*openNode

func (s openSet) Len() int { return len(s) }

func (s openSet) Less(i, j int) bool {
	if s[i].f != s[j].f {
		return s[i].f < s[j].f
	}
	return s[i].order < s[j].order
}

func (s openSet) Swap(i, j int) { s[i], s[j] = s[j], s[i] }

func (s *openSet) Push(x interface{}) { *s = append(*s, x.(*openNode)) }

func (s *openSet) Pop() interface{} {
	old := *s
	n := len(old)
	node := old[n-1]
	old[n-1] = nil
	*s = old[:n-1]
	return node
}

// searchGrid runs A* over 8-connected cells from start to goal. Edge costs
// and the heuristic are Euclidean distances between cell centers in world
// coordinates.
func (p *Planner) searchGrid(g *grid.Grid, start, goal r2.Point) ([]cell, error) {
	sx, sy := g.WorldToGrid(start)
	gx, gy := g.WorldToGrid(goal)
	startCell := cell{sx, sy}
	goalCell := cell{gx, gy}

	open := &openSet{}
	heap.Init(open)
	counter := 0
	heap.Push(open, &openNode{cell: startCell, f: 0, order: counter})
	counter++

	closed := map[cell]struct{}{}
	cameFrom := map[cell]cell{}
	gScore := map[cell]float64{startCell: 0}

	heuristic := func(c cell) float64 {
		return g.GridToWorld(c.x, c.y).Sub(g.GridToWorld(goalCell.x, goalCell.y)).Norm()
	}

	iterations := 0
	for open.Len() > 0 && iterations < p.opts.MaxIterations {
		iterations++
		current := heap.Pop(open).(*openNode).cell

		if current == goalCell {
			p.logger.Debugw("path found", "iterations", iterations)
			return reconstructPath(cameFrom, current), nil
		}
		if _, ok := closed[current]; ok {
			continue
		}
		closed[current] = struct{}{}

		currentWorld := g.GridToWorld(current.x, current.y)
		for dy := -1; dy <= 1; dy++ {
			for dx := -1; dx <= 1; dx++ {
				if dx == 0 && dy == 0 {
					continue
				}
				neighbor := cell{current.x + dx, current.y + dy}
				if !g.Contains(neighbor.x, neighbor.y) {
					continue
				}
				if _, ok := closed[neighbor]; ok {
					continue
				}
				neighborWorld := g.GridToWorld(neighbor.x, neighbor.y)
				if !g.IsValidPosition(neighborWorld, p.opts.Clearance) {
					continue
				}
				tentative := gScore[current] + currentWorld.Sub(neighborWorld).Norm()
				if best, ok := gScore[neighbor]; ok && tentative >= best {
					continue
				}
				cameFrom[neighbor] = current
				gScore[neighbor] = tentative
				heap.Push(open, &openNode{
					cell:  neighbor,
					f:     tentative + heuristic(neighbor),
					order: counter,
				})
				counter++
			}
		}
	}

	p.logger.Warnw("no path found", "iterations", iterations)
	if iterations >= p.opts.MaxIterations {
		return nil, ErrIterationLimit
	}
	return nil, ErrNoPath
}

func reconstructPath(cameFrom map[cell]cell, current cell) []cell {
	path := []cell{current}
	for {
		prev, ok := cameFrom[current]
		if !ok {
			break
		}
		current = prev
		path = append(path, current)
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}
