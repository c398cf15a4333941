package viz

import (
	"strings"

	"github.com/san-kum/particlesim/internal/particle"
)

// Braille Patterns: 2x4 dots
// 1 4
// 2 5
// 3 6
// 7 8
//
// Unicode offset 0x2800
const brailleBlank = 0x2800

var pixelMap = [4][2]rune{
	{0x1, 0x8},
	{0x2, 0x10},
	{0x4, 0x20},
	{0x40, 0x80},
}

// Canvas is a Width x Height character grid with 2x4 sub-pixels per cell.
// Every cell also remembers the colour of the last particle plotted in it.
type Canvas struct {
	Width, Height int
	Grid          [][]rune
	Tint          [][]particle.Color
	hits          [][]int
}

func NewCanvas(w, h int) *Canvas {
	c := &Canvas{
		Width:  w,
		Height: h,
		Grid:   make([][]rune, h),
		Tint:   make([][]particle.Color, h),
		hits:   make([][]int, h),
	}
	for i := range c.Grid {
		c.Grid[i] = make([]rune, w)
		c.Tint[i] = make([]particle.Color, w)
		c.hits[i] = make([]int, w)
	}
	c.Clear()
	return c
}

// Set turns on the sub-pixel (x, y). The canvas is Width*2 x Height*4
// sub-pixels; anything outside is ignored.
func (c *Canvas) Set(x, y int) bool {
	if x < 0 || y < 0 {
		return false
	}
	col, row := x/2, y/4
	if col >= c.Width || row >= c.Height {
		return false
	}
	c.Grid[row][col] |= pixelMap[y%4][x%2]
	c.hits[row][col]++
	return true
}

// SetColor is Set plus tinting the cell.
func (c *Canvas) SetColor(x, y int, tint particle.Color) {
	if c.Set(x, y) {
		c.Tint[y/4][x/2] = tint
	}
}

func (c *Canvas) Clear() {
	for i := range c.Grid {
		for j := range c.Grid[i] {
			c.Grid[i][j] = brailleBlank
			c.Tint[i][j] = particle.Color{}
			c.hits[i][j] = 0
		}
	}
}

// Hits returns how many Set calls landed in the cell at (col, row).
func (c *Canvas) Hits(col, row int) int { return c.hits[row][col] }

// DrawLine draws a line using Bresenham's algorithm
func (c *Canvas) DrawLine(x0, y0, x1, y1 int) {
	dx := absInt(x1 - x0)
	dy := absInt(y1 - y0)
	sx := -1
	if x0 < x1 {
		sx = 1
	}
	sy := -1
	if y0 < y1 {
		sy = 1
	}
	err := dx - dy

	for {
		c.Set(x0, y0)
		if x0 == x1 && y0 == y1 {
			break
		}
		e2 := 2 * err
		if e2 > -dy {
			err -= dy
			x0 += sx
		}
		if e2 < dx {
			err += dx
			y0 += sy
		}
	}
}

// Plot maps every particle of v from a worldW x worldH world onto the
// canvas, y pointing down as in the world.
func (c *Canvas) Plot(v particle.View, worldW, worldH int) {
	sx := float64(c.Width*2) / float64(worldW)
	sy := float64(c.Height*4) / float64(worldH)
	for i := 0; i < v.Len(); i++ {
		p := v.Position(i)
		c.SetColor(int(p.X*sx), int(p.Y*sy), v.Color(i))
	}
}

// Box outlines the sub-pixel rectangle [0, w) x [0, h).
func (c *Canvas) Box() {
	w, h := c.Width*2-1, c.Height*4-1
	c.DrawLine(0, 0, w, 0)
	c.DrawLine(0, h, w, h)
	c.DrawLine(0, 0, 0, h)
	c.DrawLine(w, 0, w, h)
}

func (c *Canvas) String() string {
	var b strings.Builder
	for _, row := range c.Grid {
		b.WriteString(string(row) + "\n")
	}
	return b.String()
}

func absInt(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
