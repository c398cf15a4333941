package solver

import (
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/san-kum/particlesim/internal/particle"
)

// integrate advances every particle by one sub-step, one dispatch slice per
// worker. The model branch is taken once per slice.
func (s *Solver) integrate(subDt float64) error {
	items := s.store.Items()
	return s.pool.Dispatch(len(items), func(start, end int) {
		if s.cfg.Model == ModelMomentum {
			s.integrateMomentum(items[start:end], subDt)
		} else {
			s.integratePositional(items[start:end], subDt)
		}
	})
}

// advance runs the damped trapezoidal Verlet step and returns the unclamped
// position together with the velocity at the end of the step.
func (s *Solver) advance(p *particle.Particle, subDt float64) (next, vNext r2.Vec) {
	acc := r2.Add(p.Acceleration, s.cfg.Gravity)
	v := p.Velocity(subDt)
	vNext = r2.Add(v, r2.Scale(subDt, r2.Sub(acc, r2.Scale(s.cfg.Damping, v))))
	next = r2.Add(p.Position, r2.Scale(0.5*subDt, r2.Add(v, vNext)))
	return next, vNext
}

func (s *Solver) integratePositional(items []particle.Particle, subDt float64) {
	for i := range items {
		p := &items[i]
		next, _ := s.advance(p, subDt)
		next.X = clamp(next.X, s.lo.X, s.hi.X)
		next.Y = clamp(next.Y, s.lo.Y, s.hi.Y)

		p.PrevPosition = p.Position
		p.Position = next
		p.Acceleration = r2.Vec{}
	}
}

// integrateMomentum clamps like integratePositional, and for every axis that
// was clamped while moving outwards it reflects the velocity component and
// queues the change as a force for the next sub-step.
func (s *Solver) integrateMomentum(items []particle.Particle, subDt float64) {
	keep := (1 - s.cfg.EnergyLoss) / subDt
	for i := range items {
		p := &items[i]
		next, vNext := s.advance(p, subDt)

		var bounce r2.Vec
		if next.X < s.lo.X || next.X > s.hi.X {
			next.X = clamp(next.X, s.lo.X, s.hi.X)
			if (next.X == s.lo.X && vNext.X < 0) || (next.X == s.hi.X && vNext.X > 0) {
				bounce.X = -2 * vNext.X
			}
		}
		if next.Y < s.lo.Y || next.Y > s.hi.Y {
			next.Y = clamp(next.Y, s.lo.Y, s.hi.Y)
			if (next.Y == s.lo.Y && vNext.Y < 0) || (next.Y == s.hi.Y && vNext.Y > 0) {
				bounce.Y = -2 * vNext.Y
			}
		}

		p.PrevPosition = p.Position
		p.Position = next
		p.Acceleration = r2.Vec{}
		if bounce != (r2.Vec{}) {
			p.OnForce(r2.Scale(p.Mass*keep, bounce))
		}
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
