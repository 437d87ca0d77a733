package game

import "math"

type cell struct{ x, y int }

// WallGrid is a broad-phase index over the static walls. Each wall is
// registered in every cell its padded rectangle touches, so a point query
// only looks at the walls of a single cell.
type WallGrid struct {
	cellSize  float64
	wallSize  float64
	maxExtent float64
	walls     map[int]*Wall
	cells     map[cell][]int
}

// NewWallGrid indexes walls for entities up to maxExtent wide.
func NewWallGrid(walls map[int]*Wall, wallSize, maxExtent float64) *WallGrid {
	size := 2 * (wallSize + maxExtent)
	if size < 1 {
		size = 1
	}
	g := &WallGrid{
		cellSize:  size,
		wallSize:  wallSize,
		maxExtent: maxExtent,
		walls:     walls,
		cells:     make(map[cell][]int),
	}
	for _, id := range sortedKeys(walls) {
		g.insert(id, WallRect(walls[id], wallSize, maxExtent))
	}
	return g
}

func (g *WallGrid) cellOf(x, y float64) cell {
	return cell{int(math.Floor(x / g.cellSize)), int(math.Floor(y / g.cellSize))}
}

func (g *WallGrid) insert(id int, r Rect) {
	lo := g.cellOf(r.MinX, r.MinY)
	hi := g.cellOf(r.MaxX, r.MaxY)
	for cy := lo.y; cy <= hi.y; cy++ {
		for cx := lo.x; cx <= hi.x; cx++ {
			c := cell{cx, cy}
			g.cells[c] = append(g.cells[c], id)
		}
	}
}

// Candidates returns the IDs of walls that may contain p.
func (g *WallGrid) Candidates(p Vector) []int {
	return g.cells[g.cellOf(p.X, p.Y)]
}

// Blocked reports whether an entity of the given extent centered at p
// overlaps a wall. Extents wider than the grid was built for fall back to
// checking every wall.
func (g *WallGrid) Blocked(p Vector, extent float64) bool {
	if extent > g.maxExtent {
		return HitsWall(g.walls, p, g.wallSize, extent)
	}
	for _, id := range g.Candidates(p) {
		if WallRect(g.walls[id], g.wallSize, extent).Contains(p) {
			return true
		}
	}
	return false
}
