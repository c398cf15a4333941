package metrics

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/san-kum/particlesim/internal/grid"
	"github.com/san-kum/particlesim/internal/particle"
	"github.com/san-kum/particlesim/internal/sim"
)

// BoundsViolations counts particles found outside the clamp box, summed over
// all frames. Anything but zero is a solver bug.
type BoundsViolations struct {
	violations int
	last       int
}

func NewBoundsViolations() *BoundsViolations { return &BoundsViolations{} }

func (b *BoundsViolations) Name() string { return "bounds_violations" }

func (b *BoundsViolations) Observe(f sim.Frame) {
	b.last = 0
	v := f.Particles
	for i := 0; i < v.Len(); i++ {
		p := v.Position(i)
		if p.X < f.Lo.X || p.X > f.Hi.X || p.Y < f.Lo.Y || p.Y > f.Hi.Y {
			b.last++
		}
	}
	b.violations += b.last
}

func (b *BoundsViolations) Value() float64 { return float64(b.violations) }
func (b *BoundsViolations) Last() float64  { return float64(b.last) }

func (b *BoundsViolations) Reset() {
	b.violations = 0
	b.last = 0
}

// MaxOverlap tracks the deepest penetration 1 - distance between any two
// particles, using its own grid so that it never touches solver state.
type MaxOverlap struct {
	grid    *grid.Grid
	offsets [9]int
	max     float64
	last    float64
}

func NewMaxOverlap(width, height int) *MaxOverlap {
	g := grid.New(width, height)
	return &MaxOverlap{grid: g, offsets: g.NeighborOffsets()}
}

func (m *MaxOverlap) Name() string { return "max_overlap" }

func (m *MaxOverlap) Observe(f sim.Frame) {
	m.last = m.measure(f.Particles)
	m.max = math.Max(m.max, m.last)
}

func (m *MaxOverlap) measure(v particle.View) float64 {
	g := m.grid
	g.Clear()
	maxX, maxY := float64(g.Width()-1), float64(g.Height()-1)
	for i := 0; i < v.Len(); i++ {
		p := v.Position(i)
		if p.X > 1 && p.X < maxX && p.Y > 1 && p.Y < maxY {
			g.Add(p.X, p.Y, uint32(i))
		}
	}

	deepest := 0.0
	for idx := 0; idx < g.Len(); idx++ {
		c := g.Cell(idx)
		for _, a := range c.IDs() {
			pa := v.Position(int(a))
			for _, off := range m.offsets {
				for _, b := range g.Cell(idx + off).IDs() {
					if b <= a {
						continue
					}
					d2 := r2.Norm2(r2.Sub(pa, v.Position(int(b))))
					if d2 < 1 {
						deepest = math.Max(deepest, 1-math.Sqrt(d2))
					}
				}
			}
		}
	}
	return deepest
}

func (m *MaxOverlap) Value() float64 { return m.max }
func (m *MaxOverlap) Last() float64  { return m.last }

func (m *MaxOverlap) Reset() {
	m.max = 0
	m.last = 0
}

// Population is the particle count of the latest frame.
type Population struct {
	last int
}

func NewPopulation() *Population { return &Population{} }

func (p *Population) Name() string        { return "population" }
func (p *Population) Observe(f sim.Frame) { p.last = f.Particles.Len() }
func (p *Population) Value() float64      { return float64(p.last) }
func (p *Population) Reset()              { p.last = 0 }

// Default returns the standard metric set for a width x height world.
func Default(width, height int) []sim.Metric {
	return []sim.Metric{
		NewKineticEnergy(),
		NewMeanSpeed(),
		NewSpeedStdDev(),
		NewMaxOverlap(width, height),
		NewBoundsViolations(),
		NewPopulation(),
	}
}
