package solver

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/san-kum/particlesim/internal/grid"
	"github.com/san-kum/particlesim/internal/particle"
)

// resolveCollisions sweeps the even column slices, then the odd ones. Two
// slices of one phase never touch adjacent columns, so each phase mutates
// disjoint particle sets and needs no locking.
func (s *Solver) resolveCollisions(subDt float64) error {
	items := s.store.Items()
	momentum := s.cfg.Model == ModelMomentum

	for phase := 0; phase < 2; phase++ {
		err := s.pool.Dispatch(s.layout.phaseSlices(phase), func(start, end int) {
			for i := start; i < end; i++ {
				s.solveSlice(items, 2*i+phase, subDt, momentum)
			}
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Solver) solveSlice(items []particle.Particle, k int, subDt float64, momentum bool) {
	first, last := s.layout.span(k)
	h := s.grid.Height()
	for idx := first * h; idx < last*h; idx++ {
		c := s.grid.Cell(idx)
		if c.Len() == 0 {
			continue
		}
		s.solveCell(items, c, idx, subDt, momentum)
	}
}

// solveCell tests every particle of c against the 9 cells around it. A pair
// split across two cells is visited from both sides. The second positional
// correction is not filtered out, but momentum is exchanged only on the visit
// with a < b.
func (s *Solver) solveCell(items []particle.Particle, c *grid.Cell, idx int, subDt float64, momentum bool) {
	for _, a := range c.IDs() {
		for _, off := range s.offsets {
			for _, b := range s.grid.Cell(idx + off).IDs() {
				s.solveContact(&items[a], &items[b], subDt, momentum && a < b)
			}
		}
	}
}

func (s *Solver) solveContact(a, b *particle.Particle, subDt float64, exchange bool) {
	d := r2.Sub(a.Position, b.Position)
	d2 := r2.Norm2(d)
	if d2 >= 1 || d2 <= contactEpsilon {
		return
	}

	dist := math.Sqrt(d2)
	overlap := 0.5 * (1 - dist) * s.cfg.ResponseCoefficient
	push := r2.Scale(overlap/dist, d)
	a.Position = r2.Add(a.Position, push)
	b.Position = r2.Sub(b.Position, push)

	if exchange {
		s.exchangeMomentum(a, b, d, subDt)
	}
}

// exchangeMomentum applies the 1D elastic collision formulas to the full
// velocity vectors and hands the velocity change to the next integration as
// a force. Velocities are derived after the positional correction and include
// impulses already queued this sub-step, so a pair that is no longer closing
// along d is left alone.
func (s *Solver) exchangeMomentum(a, b *particle.Particle, d r2.Vec, subDt float64) {
	va := pendingVelocity(a, subDt)
	vb := pendingVelocity(b, subDt)
	if r2.Norm(va) <= s.cfg.VelocityThreshold || r2.Norm(vb) <= s.cfg.VelocityThreshold {
		return
	}
	if r2.Dot(r2.Sub(va, vb), d) >= 0 {
		return
	}

	ma, mb := a.Mass, b.Mass
	sum := ma + mb
	va2 := r2.Add(r2.Scale((ma-mb)/sum, va), r2.Scale(2*mb/sum, vb))
	vb2 := r2.Add(r2.Scale(2*ma/sum, va), r2.Scale((mb-ma)/sum, vb))

	keep := (1 - s.cfg.EnergyLoss) / subDt
	a.OnForce(r2.Scale(ma*keep, r2.Sub(va2, va)))
	b.OnForce(r2.Scale(mb*keep, r2.Sub(vb2, vb)))
}

// pendingVelocity is the velocity the next integration starts from, gravity
// and damping aside.
func pendingVelocity(p *particle.Particle, subDt float64) r2.Vec {
	return r2.Add(p.Velocity(subDt), r2.Scale(subDt, p.Acceleration))
}
