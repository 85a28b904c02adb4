package registry

import (
	"math"

	"github.com/soundprediction/robomem/pkg/spatial"
)

type cell struct {
	x, y, z int64
}

// grid is a uniform spatial hash over entity positions. With a cell size equal
// to the matching radius every candidate lies in the 3×3(×3) neighbourhood of
// the query cell.
type grid struct {
	size  float64
	mode  spatial.Mode
	cells map[cell]map[string]struct{}
	where map[string]cell
}

func newGrid(size float64, mode spatial.Mode) *grid {
	return &grid{
		size:  size,
		mode:  mode,
		cells: make(map[cell]map[string]struct{}),
		where: make(map[string]cell),
	}
}

func (g *grid) cellOf(p spatial.Position) cell {
	c := cell{
		x: int64(math.Floor(p.X / g.size)),
		y: int64(math.Floor(p.Y / g.size)),
	}
	if g.mode == spatial.Mode3D {
		c.z = int64(math.Floor(p.Z / g.size))
	}
	return c
}

func (g *grid) put(id string, p spatial.Position) {
	c := g.cellOf(p)
	if old, ok := g.where[id]; ok {
		if old == c {
			return
		}
		delete(g.cells[old], id)
		if len(g.cells[old]) == 0 {
			delete(g.cells, old)
		}
	}
	bucket, ok := g.cells[c]
	if !ok {
		bucket = make(map[string]struct{})
		g.cells[c] = bucket
	}
	bucket[id] = struct{}{}
	g.where[id] = c
}

// within returns ids whose cells intersect the cube of half-width radius
// around p. Callers still filter by exact distance.
func (g *grid) within(p spatial.Position, radius float64, fn func(id string)) {
	span := int64(math.Ceil(radius / g.size))
	center := g.cellOf(p)

	zspan := span
	if g.mode != spatial.Mode3D {
		zspan = 0
	}
	for dx := -span; dx <= span; dx++ {
		for dy := -span; dy <= span; dy++ {
			for dz := -zspan; dz <= zspan; dz++ {
				for id := range g.cells[cell{center.x + dx, center.y + dy, center.z + dz}] {
					fn(id)
				}
			}
		}
	}
}

// cellsFor reports how many cells a query of radius would visit.
func (g *grid) cellsFor(radius float64) float64 {
	span := math.Ceil(radius/g.size)*2 + 1
	if g.mode == spatial.Mode3D {
		return span * span * span
	}
	return span * span
}
