package world

import (
	"math"

	"github.com/crowdlod/server/internal/component"
	"github.com/crowdlod/server/internal/core/ecs"
)

// Grid is a uniform cell grid over the plane used for neighbour and region
// queries. Cells keep members in insertion order, so a grid filled in the same
// order always answers queries in the same order.
// Accessed only from the simulation goroutine; no locks.
type Grid struct {
	cellSize float64
	cells    map[cellKey][]ecs.EntityID
}

type cellKey struct {
	cx int32
	cy int32
}

func NewGrid(cellSize float64) *Grid {
	if cellSize <= 0 {
		cellSize = 1
	}
	return &Grid{
		cellSize: cellSize,
		cells:    make(map[cellKey][]ecs.EntityID),
	}
}

func (g *Grid) toCell(v float64) int32 {
	c := math.Floor(v / g.cellSize)
	switch {
	case math.IsNaN(c):
		return 0
	case c > math.MaxInt32:
		return math.MaxInt32
	case c < math.MinInt32:
		return math.MinInt32
	}
	return int32(c)
}

func (g *Grid) key(p component.Vec2) cellKey {
	return cellKey{cx: g.toCell(p.X), cy: g.toCell(p.Y)}
}

// Add places an entity into the grid.
func (g *Grid) Add(id ecs.EntityID, p component.Vec2) {
	k := g.key(p)
	g.cells[k] = append(g.cells[k], id)
}

// Remove takes an entity out of the grid.
func (g *Grid) Remove(id ecs.EntityID, p component.Vec2) {
	k := g.key(p)
	cell := g.cells[k]
	for i, other := range cell {
		if other == id {
			cell = append(cell[:i], cell[i+1:]...)
			break
		}
	}
	if len(cell) == 0 {
		delete(g.cells, k)
		return
	}
	g.cells[k] = cell
}

// Move updates an entity's cell when its position changes.
func (g *Grid) Move(id ecs.EntityID, from, to component.Vec2) {
	if g.key(from) == g.key(to) {
		return
	}
	g.Remove(id, from)
	g.Add(id, to)
}

// Reset empties the grid, keeping the cell size.
func (g *Grid) Reset() {
	clear(g.cells)
}

// Len returns the number of occupied cells.
func (g *Grid) Len() int { return len(g.cells) }

// Candidates visits every entity in the cells overlapping the square of
// half-width radius around center. Caller does fine-grained distance filtering.
// Visiting stops when fn returns false.
func (g *Grid) Candidates(center component.Vec2, radius float64, fn func(ecs.EntityID) bool) {
	g.Within(component.Rect{
		Min: component.Vec2{X: center.X - radius, Y: center.Y - radius},
		Max: component.Vec2{X: center.X + radius, Y: center.Y + radius},
	}, fn)
}

// Within visits every entity in the cells overlapping r, row by row.
func (g *Grid) Within(r component.Rect, fn func(ecs.EntityID) bool) {
	r = r.Normalized()
	x0, x1 := g.toCell(r.Min.X), g.toCell(r.Max.X)
	y0, y1 := g.toCell(r.Min.Y), g.toCell(r.Max.Y)
	// very large regions are cheaper to answer by scanning occupied cells;
	// the area is a float so spans near the int32 limits cannot wrap
	area := (float64(x1) - float64(x0) + 1) * (float64(y1) - float64(y0) + 1)
	if area > float64(len(g.cells))*4 {
		g.scan(x0, x1, y0, y1, fn)
		return
	}
	for cy := y0; ; cy++ {
		for cx := x0; ; cx++ {
			for _, id := range g.cells[cellKey{cx: cx, cy: cy}] {
				if !fn(id) {
					return
				}
			}
			if cx == x1 {
				break
			}
		}
		if cy == y1 {
			break
		}
	}
}

func (g *Grid) scan(x0, x1, y0, y1 int32, fn func(ecs.EntityID) bool) {
	for k, cell := range g.cells {
		if k.cx < x0 || k.cx > x1 || k.cy < y0 || k.cy > y1 {
			continue
		}
		for _, id := range cell {
			if !fn(id) {
				return
			}
		}
	}
}
