package solver

import (
	"math"
	"math/rand"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/san-kum/particlesim/internal/grid"
	"github.com/san-kum/particlesim/internal/particle"
	"github.com/san-kum/particlesim/internal/workpool"
)

const tick = 1.0 / 60

func newTestSolver(workers int, mutate func(*Config)) *Solver {
	pool := workpool.New(workers)
	DeferCleanup(pool.Close)

	cfg := DefaultConfig()
	cfg.Width, cfg.Height = 100, 100
	cfg.Gravity = r2.Vec{}
	if mutate != nil {
		mutate(&cfg)
	}
	s, err := New(cfg, pool)
	Expect(err).NotTo(HaveOccurred())
	return s
}

func scatter(s *Solver, n int, seed int64, speed float64) {
	rng := rand.New(rand.NewSource(seed))
	lo, hi := s.Bounds()
	subDt := s.Config().SubStepDt(tick)
	for i := 0; i < n; i++ {
		pos := r2.Vec{
			X: lo.X + rng.Float64()*(hi.X-lo.X),
			Y: lo.Y + rng.Float64()*(hi.Y-lo.Y),
		}
		vel := r2.Vec{X: (rng.Float64()*2 - 1) * speed, Y: (rng.Float64()*2 - 1) * speed}
		_, err := s.Create(pos, particle.WithVelocity(vel, subDt), particle.WithMass(0.5+rng.Float64()))
		Expect(err).NotTo(HaveOccurred())
	}
}

func create(s *Solver, pos r2.Vec, opts ...particle.Option) int {
	id, err := s.Create(pos, opts...)
	Expect(err).NotTo(HaveOccurred())
	return id
}

func kineticEnergy(v particle.View, subDt float64) float64 {
	total := 0.0
	for i := 0; i < v.Len(); i++ {
		total += 0.5 * v.Mass(i) * r2.Norm2(v.Velocity(i, subDt))
	}
	return total
}

func minDistance(v particle.View) float64 {
	best := math.Inf(1)
	for i := 0; i < v.Len(); i++ {
		for j := i + 1; j < v.Len(); j++ {
			best = math.Min(best, r2.Norm(r2.Sub(v.Position(i), v.Position(j))))
		}
	}
	return best
}

func expectInBounds(s *Solver) {
	lo, hi := s.Bounds()
	v := s.Particles()
	for i := 0; i < v.Len(); i++ {
		p := v.Position(i)
		Expect(p.X).To(BeNumerically(">=", lo.X), "particle %d x", i)
		Expect(p.X).To(BeNumerically("<=", hi.X), "particle %d x", i)
		Expect(p.Y).To(BeNumerically(">=", lo.Y), "particle %d y", i)
		Expect(p.Y).To(BeNumerically("<=", hi.Y), "particle %d y", i)
	}
}

var _ = Describe("Solver", func() {
	Describe("construction", func() {
		It("rejects a nil pool", func() {
			_, err := New(DefaultConfig(), nil)
			Expect(err).To(MatchError(ErrInvalidConfig))
		})

		It("rejects invalid configuration", func() {
			pool := workpool.New(1)
			DeferCleanup(pool.Close)
			cfg := DefaultConfig()
			cfg.SubSteps = 0

			_, err := New(cfg, pool)
			Expect(err).To(MatchError(ErrInvalidConfig))
		})

		It("enforces the population cap", func() {
			s := newTestSolver(1, func(c *Config) { c.MaxParticles = 2 })
			_, err := s.Create(r2.Vec{X: 10, Y: 10})
			Expect(err).NotTo(HaveOccurred())
			_, err = s.Add(particle.New(r2.Vec{X: 20, Y: 20}))
			Expect(err).NotTo(HaveOccurred())

			_, err = s.Create(r2.Vec{X: 30, Y: 30})
			Expect(err).To(MatchError(particle.ErrStoreFull))
			Expect(s.Full()).To(BeTrue())
		})
	})

	Describe("Update", func() {
		It("leaves a particle at rest untouched without gravity", func() {
			s := newTestSolver(4, nil)
			_, err := s.Create(r2.Vec{X: 50, Y: 50})
			Expect(err).NotTo(HaveOccurred())

			Expect(s.Update(tick)).To(Succeed())
			Expect(s.Particles().Position(0)).To(Equal(r2.Vec{X: 50, Y: 50}))
		})

		It("moves a particle at the top margin downwards under gravity", func() {
			s := newTestSolver(4, func(c *Config) { c.Gravity = r2.Vec{Y: 9.8} })
			_, err := s.Create(r2.Vec{X: 50, Y: 2})
			Expect(err).NotTo(HaveOccurred())

			Expect(s.Update(tick)).To(Succeed())
			y := s.Particles().Position(0).Y
			Expect(y).To(BeNumerically(">", 2.0))
			Expect(y).To(BeNumerically(">=", s.Config().Margin))
		})

		It("rejects non-positive and non-finite dt", func() {
			s := newTestSolver(1, nil)
			for _, dt := range []float64{0, -tick, math.NaN(), math.Inf(1)} {
				Expect(s.Update(dt)).To(MatchError(ErrInvalidStep))
			}
		})

		It("reports a closed pool", func() {
			pool := workpool.New(2)
			cfg := DefaultConfig()
			s, err := New(cfg, pool)
			Expect(err).NotTo(HaveOccurred())
			pool.Close()

			Expect(s.Update(tick)).To(MatchError(workpool.ErrPoolClosed))
		})

		It("panics on a non-finite position", func() {
			s := newTestSolver(1, nil)
			_, err := s.Create(r2.Vec{X: math.NaN(), Y: 50})
			Expect(err).NotTo(HaveOccurred())
			Expect(func() { _ = s.Update(tick) }).To(Panic())
		})

		It("records stats", func() {
			s := newTestSolver(2, nil)
			scatter(s, 50, 3, 0)
			Expect(s.Update(tick)).To(Succeed())

			st := s.Stats()
			Expect(st.Updates).To(Equal(1))
			Expect(st.SubSteps).To(Equal(s.Config().SubSteps))
			Expect(st.Particles).To(Equal(50))
			Expect(st.Gridded + st.Dropped).To(BeNumerically("<=", 50))
		})
	})

	DescribeTable("keeps every particle inside the clamp box",
		func(workers int, model Model) {
			s := newTestSolver(workers, func(c *Config) {
				c.Gravity = r2.Vec{Y: 20}
				c.Model = model
			})
			scatter(s, 2000, 11, 30)

			for i := 0; i < 40; i++ {
				Expect(s.Update(tick)).To(Succeed())
				expectInBounds(s)
			}
		},
		Entry("positional, one worker", 1, ModelPositional),
		Entry("positional, four workers", 4, ModelPositional),
		Entry("momentum, four workers", 4, ModelMomentum),
		Entry("positional, more workers than slices", 64, ModelPositional),
	)

	Describe("collision resolution", func() {
		It("separates an overlapping pair symmetrically", func() {
			s := newTestSolver(2, nil)
			a0 := r2.Vec{X: 50.2, Y: 50.5}
			b0 := r2.Vec{X: 50.7, Y: 50.5}
			create(s, a0)
			create(s, b0)

			s.rebuildGrid()
			Expect(s.resolveCollisions(s.Config().SubStepDt(tick))).To(Succeed())

			a1 := s.Particles().Position(0)
			b1 := s.Particles().Position(1)
			da := r2.Sub(a1, a0)
			db := r2.Sub(b1, b0)

			Expect(r2.Norm(da)).To(BeNumerically(">", 0))
			Expect(r2.Norm(da)).To(BeNumerically("~", r2.Norm(db), 1e-12))
			Expect(r2.Add(da, db).X).To(BeNumerically("~", 0, 1e-12))
			Expect(r2.Add(da, db).Y).To(BeNumerically("~", 0, 1e-12))

			dist := r2.Norm(r2.Sub(a1, b1))
			Expect(dist).To(BeNumerically(">", 0.5))
			Expect(dist).To(BeNumerically("<=", 1+1e-9))
		})

		It("separates a pair that straddles two columns", func() {
			s := newTestSolver(4, nil)
			create(s, r2.Vec{X: 49.8, Y: 50.5})
			create(s, r2.Vec{X: 50.3, Y: 50.5})

			s.rebuildGrid()
			Expect(s.resolveCollisions(s.Config().SubStepDt(tick))).To(Succeed())

			dist := r2.Norm(r2.Sub(s.Particles().Position(0), s.Particles().Position(1)))
			Expect(dist).To(BeNumerically(">", 0.5))
		})

		It("drives a packed cluster towards unit spacing", func() {
			s := newTestSolver(4, func(c *Config) { c.Damping = 10 })
			for i := 0; i < 5; i++ {
				for j := 0; j < 5; j++ {
					create(s, r2.Vec{X: 48 + 0.6*float64(i), Y: 48 + 0.6*float64(j)})
				}
			}
			initial := minDistance(s.Particles())

			Expect(s.Update(tick)).To(Succeed())
			Expect(minDistance(s.Particles())).To(BeNumerically(">=", initial))

			for i := 0; i < 120; i++ {
				Expect(s.Update(tick)).To(Succeed())
			}
			Expect(minDistance(s.Particles())).To(BeNumerically(">", 0.9))
		})

		// A head-on pair penetrating by 0.01: the correction pushes each side
		// back by 0.005*rc, which is 2.4*rc in derived speed at 480 Hz, and the
		// exchange then reverses the remaining approach, keeping 80%.
		DescribeTable("exchanges momentum once per pair as opposing forces",
			func(rc float64) {
				s := newTestSolver(2, func(c *Config) {
					c.Model = ModelMomentum
					c.ResponseCoefficient = rc
				})
				subDt := s.Config().SubStepDt(tick)
				create(s, r2.Vec{X: 50, Y: 50.5}, particle.WithVelocity(r2.Vec{X: 5}, subDt))
				create(s, r2.Vec{X: 50.99, Y: 50.5}, particle.WithVelocity(r2.Vec{X: -5}, subDt))

				s.rebuildGrid()
				Expect(s.resolveCollisions(subDt)).To(Succeed())

				va := 5 - 2.4*rc
				want := -0.8 * 2 * va
				a := s.Particles().At(0)
				b := s.Particles().At(1)
				Expect(a.Acceleration.X * subDt).To(BeNumerically("~", want, 1e-6))
				Expect(b.Acceleration.X * subDt).To(BeNumerically("~", -want, 1e-6))
				Expect(a.Acceleration.Y).To(BeZero())
			},
			Entry("full response", 1.0),
			Entry("half response", 0.5),
		)

		It("does not exchange momentum for a pair the correction already separated", func() {
			s := newTestSolver(1, func(c *Config) {
				c.Model = ModelMomentum
				c.ResponseCoefficient = 0.5
			})
			subDt := s.Config().SubStepDt(tick)
			create(s, r2.Vec{X: 50.2, Y: 50.5}, particle.WithVelocity(r2.Vec{X: 5}, subDt))
			create(s, r2.Vec{X: 50.7, Y: 50.5}, particle.WithVelocity(r2.Vec{X: -5}, subDt))

			s.rebuildGrid()
			Expect(s.resolveCollisions(subDt)).To(Succeed())

			Expect(s.Particles().At(0).Acceleration).To(Equal(r2.Vec{}))
			Expect(s.Particles().At(1).Acceleration).To(Equal(r2.Vec{}))
		})

		DescribeTable("keeps kinetic energy bounded without damping",
			func(model Model, rc float64) {
				s := newTestSolver(4, func(c *Config) {
					c.Model = model
					c.ResponseCoefficient = rc
					c.Damping = 0
				})
				subDt := s.Config().SubStepDt(tick)
				rng := rand.New(rand.NewSource(9))
				for i := 0; i < 20; i++ {
					for j := 0; j < 20; j++ {
						pos := r2.Vec{X: 40 + 1.05*float64(i), Y: 40 + 1.05*float64(j)}
						vel := r2.Vec{X: rng.Float64()*10 - 5, Y: rng.Float64()*10 - 5}
						create(s, pos, particle.WithVelocity(vel, subDt))
					}
				}
				initial := kineticEnergy(s.Particles(), subDt)
				Expect(initial).To(BeNumerically(">", 0))

				for i := 0; i < 60; i++ {
					Expect(s.Update(tick)).To(Succeed())
				}
				Expect(kineticEnergy(s.Particles(), subDt)).To(BeNumerically("<", 2*initial))
			},
			Entry("momentum, full response", ModelMomentum, 1.0),
			Entry("momentum, half response", ModelMomentum, 0.5),
			Entry("positional, half response", ModelPositional, 0.5),
		)

		It("leaves forces alone in the positional model", func() {
			s := newTestSolver(2, nil)
			subDt := s.Config().SubStepDt(tick)
			create(s, r2.Vec{X: 50, Y: 50.5}, particle.WithVelocity(r2.Vec{X: 5}, subDt))
			create(s, r2.Vec{X: 50.8, Y: 50.5}, particle.WithVelocity(r2.Vec{X: -5}, subDt))

			s.rebuildGrid()
			Expect(s.resolveCollisions(subDt)).To(Succeed())
			Expect(s.Particles().At(0).Acceleration).To(Equal(r2.Vec{}))
		})
	})

	Describe("boundary handling", func() {
		It("turns a bounce into a pending force in the momentum model", func() {
			s := newTestSolver(1, func(c *Config) { c.Model = ModelMomentum })
			subDt := s.Config().SubStepDt(tick)
			_, hi := s.Bounds()
			create(s, r2.Vec{X: 50, Y: hi.Y - 0.01}, particle.WithVelocity(r2.Vec{Y: 50}, subDt))

			Expect(s.integrate(subDt)).To(Succeed())

			p := s.Particles().At(0)
			Expect(p.Position.Y).To(Equal(hi.Y))
			Expect(p.Acceleration.Y).To(BeNumerically("<", 0))
		})

		It("only clamps in the positional model", func() {
			s := newTestSolver(1, nil)
			subDt := s.Config().SubStepDt(tick)
			_, hi := s.Bounds()
			create(s, r2.Vec{X: 50, Y: hi.Y - 0.01}, particle.WithVelocity(r2.Vec{Y: 50}, subDt))

			Expect(s.integrate(subDt)).To(Succeed())

			p := s.Particles().At(0)
			Expect(p.Position.Y).To(Equal(hi.Y))
			Expect(p.Acceleration).To(Equal(r2.Vec{}))
		})
	})

	Describe("grid rebuild", func() {
		It("puts every particle inside the margin in exactly its floor cell", func() {
			s := newTestSolver(1, nil)
			scatter(s, 300, 5, 0)
			s.rebuildGrid()
			Expect(s.grid.Dropped()).To(BeZero())

			seen := make(map[uint32]int)
			for idx := 0; idx < s.grid.Len(); idx++ {
				for _, id := range s.grid.Cell(idx).IDs() {
					seen[id]++
					p := s.Particles().Position(int(id))
					Expect(idx).To(Equal(s.grid.Index(int(math.Floor(p.X)), int(math.Floor(p.Y)))))
				}
			}

			v := s.Particles()
			for i := 0; i < v.Len(); i++ {
				p := v.Position(i)
				inside := p.X > 1 && p.X < 99 && p.Y > 1 && p.Y < 99
				if inside {
					Expect(seen[uint32(i)]).To(Equal(1), "particle %d", i)
				} else {
					Expect(seen[uint32(i)]).To(BeZero(), "particle %d", i)
				}
			}
		})

		It("drops insertions past cell capacity", func() {
			s := newTestSolver(1, nil)
			for i := 0; i < grid.Capacity+3; i++ {
				create(s, r2.Vec{X: 50.1 + 0.1*float64(i), Y: 50.5})
			}
			s.rebuildGrid()
			Expect(s.grid.Dropped()).To(Equal(3))
		})
	})

	It("is bit-identical across runs with a single worker", func() {
		run := func() []r2.Vec {
			s := newTestSolver(1, func(c *Config) { c.Gravity = r2.Vec{Y: 20} })
			scatter(s, 800, 42, 10)
			for i := 0; i < 60; i++ {
				Expect(s.Update(tick)).To(Succeed())
			}
			v := s.Particles()
			out := make([]r2.Vec, v.Len())
			for i := range out {
				out[i] = v.Position(i)
			}
			return out
		}

		first := run()
		second := run()
		Expect(second).To(HaveLen(len(first)))
		for i := range first {
			Expect(second[i] == first[i]).To(BeTrue(), "particle %d: %v != %v", i, second[i], first[i])
		}
	})
})

var _ = Describe("columnLayout", func() {
	DescribeTable("keeps same-phase slices a column apart",
		func(columns, workers int) {
			l := newColumnLayout(columns, workers)
			Expect(l.sliceWidth).To(BeNumerically(">=", minSliceWidth))

			covered := 0
			for phase := 0; phase < 2; phase++ {
				n := l.phaseSlices(phase)
				for i := 0; i < n; i++ {
					first, last := l.span(2*i + phase)
					covered += last - first
					for j := i + 1; j < n; j++ {
						otherFirst, _ := l.span(2*j + phase)
						// Slice 2i+phase reaches column last; the next one reaches back to otherFirst-1.
						Expect(last).To(BeNumerically("<", otherFirst-1))
					}
				}
			}
			Expect(covered).To(Equal(columns))
		},
		Entry("one worker", 100, 1),
		Entry("even split", 100, 4),
		Entry("remainder columns", 103, 4),
		Entry("narrow world", 9, 8),
		Entry("minimum world", minWorldSize, 16),
	)
})

var _ = Describe("Config", func() {
	DescribeTable("Validate",
		func(mutate func(*Config), ok bool) {
			cfg := DefaultConfig()
			mutate(&cfg)
			err := cfg.Validate()
			if ok {
				Expect(err).NotTo(HaveOccurred())
			} else {
				Expect(err).To(MatchError(ErrInvalidConfig))
			}
		},
		Entry("defaults", func(c *Config) {}, true),
		Entry("tiny world", func(c *Config) { c.Width = 3 }, false),
		Entry("zero sub-steps", func(c *Config) { c.SubSteps = 0 }, false),
		Entry("negative damping", func(c *Config) { c.Damping = -1 }, false),
		Entry("zero response", func(c *Config) { c.ResponseCoefficient = 0 }, false),
		Entry("energy loss above one", func(c *Config) { c.EnergyLoss = 1.5 }, false),
		Entry("margin too wide", func(c *Config) { c.Margin = 150 }, false),
		Entry("nan gravity", func(c *Config) { c.Gravity.X = math.NaN() }, false),
		Entry("unknown model", func(c *Config) { c.Model = Model(7) }, false),
		Entry("momentum", func(c *Config) { c.Model = ModelMomentum }, true),
	)

	It("parses model names", func() {
		m, err := ParseModel("Momentum")
		Expect(err).NotTo(HaveOccurred())
		Expect(m).To(Equal(ModelMomentum))
		Expect(m.String()).To(Equal("momentum"))

		m, err = ParseModel("")
		Expect(err).NotTo(HaveOccurred())
		Expect(m).To(Equal(ModelPositional))

		_, err = ParseModel("soft")
		Expect(err).To(MatchError(ErrInvalidConfig))
	})
})
