// Package grid implements the uniform broad-phase grid used for collision
// culling.
//
// Cells are one world unit wide and hold at most Capacity particle indices.
// The grid is addressed column-major: the cell at (x, y) lives at linear index
// x*height + y, so neighbouring cells are at offsets ±1 (rows) and ±height
// (columns). Callers probing neighbours must keep inserted particles at least
// one cell away from every border.
package grid

import (
	"fmt"
	"math"
)

// Capacity is the number of particle indices a cell can hold. Insertions past
// it are dropped; particle diameter ≈ 1 bounds local density.
const Capacity = 4

// Cell is a fixed-capacity bucket of particle indices.
type Cell struct {
	count uint32
	ids   [Capacity]uint32
}

// Add appends id, reporting false when the cell is already full.
func (c *Cell) Add(id uint32) bool {
	if c.count >= Capacity {
		return false
	}
	c.ids[c.count] = id
	c.count++
	return true
}

// Remove deletes id by swapping it with the last entry.
func (c *Cell) Remove(id uint32) bool {
	for i := uint32(0); i < c.count; i++ {
		if c.ids[i] == id {
			c.count--
			c.ids[i] = c.ids[c.count]
			return true
		}
	}
	return false
}

func (c *Cell) Clear() { c.count = 0 }

func (c *Cell) Len() int { return int(c.count) }

// IDs returns the occupied part of the cell. The slice aliases the cell.
func (c *Cell) IDs() []uint32 { return c.ids[:c.count] }

// BoundsError is the panic value raised when a position outside the grid is
// inserted. It always means a caller skipped margin filtering.
type BoundsError struct {
	X, Y          float64
	Width, Height int
}

func (e *BoundsError) Error() string {
	return fmt.Sprintf("grid: position (%g, %g) outside %dx%d grid", e.X, e.Y, e.Width, e.Height)
}

// Grid is a width x height array of cells.
type Grid struct {
	width, height int
	cells         []Cell
	inserted      int
	dropped       int
}

// New allocates a grid. Both dimensions must be positive.
func New(width, height int) *Grid {
	if width <= 0 || height <= 0 {
		panic(fmt.Sprintf("grid: invalid dimensions %dx%d", width, height))
	}
	return &Grid{
		width:  width,
		height: height,
		cells:  make([]Cell, width*height),
	}
}

// Clear empties every cell and resets the insertion counters.
func (g *Grid) Clear() {
	for i := range g.cells {
		g.cells[i].count = 0
	}
	g.inserted = 0
	g.dropped = 0
}

// Add inserts id into the cell containing (x, y). A full cell silently drops
// the insertion. Coordinates outside the grid panic with *BoundsError.
func (g *Grid) Add(x, y float64, id uint32) {
	// The negated form also rejects NaN.
	if !(x >= 0 && x < float64(g.width) && y >= 0 && y < float64(g.height)) {
		panic(&BoundsError{X: x, Y: y, Width: g.width, Height: g.height})
	}
	idx := int(math.Floor(x))*g.height + int(math.Floor(y))
	if g.cells[idx].Add(id) {
		g.inserted++
	} else {
		g.dropped++
	}
}

// Index returns the linear index of cell (cx, cy).
func (g *Grid) Index(cx, cy int) int { return cx*g.height + cy }

// Cell returns the cell at linear index i.
func (g *Grid) Cell(i int) *Cell { return &g.cells[i] }

// CellAt returns the cell at (cx, cy).
func (g *Grid) CellAt(cx, cy int) *Cell { return &g.cells[g.Index(cx, cy)] }

func (g *Grid) Width() int  { return g.width }
func (g *Grid) Height() int { return g.height }
func (g *Grid) Len() int    { return len(g.cells) }

// Inserted returns the number of ids stored since the last Clear.
func (g *Grid) Inserted() int { return g.inserted }

// Dropped returns the number of insertions lost to full cells since the last
// Clear.
func (g *Grid) Dropped() int { return g.dropped }

// NeighborOffsets returns the linear offsets of a cell and its 8 neighbours.
func (g *Grid) NeighborOffsets() [9]int {
	h := g.height
	return [9]int{
		-h - 1, -h, -h + 1,
		-1, 0, 1,
		h - 1, h, h + 1,
	}
}
