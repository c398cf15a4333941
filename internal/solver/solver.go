package solver

import (
	"fmt"
	"time"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/san-kum/particlesim/internal/grid"
	"github.com/san-kum/particlesim/internal/particle"
	"github.com/san-kum/particlesim/internal/workpool"
)

const (
	// gridMargin is the border band, in world units, kept out of the grid so
	// that neighbour lookups never leave it.
	gridMargin = 1.0

	// contactEpsilon skips coincident pairs, including a particle against
	// itself.
	contactEpsilon = 1e-4
)

// Solver advances a particle population. It is not safe for concurrent use:
// Update, Create and Add must be called from one goroutine, and readers must
// only look at Particles between calls.
type Solver struct {
	cfg     Config
	pool    *workpool.Pool
	store   *particle.Store
	grid    *grid.Grid
	layout  columnLayout
	offsets [9]int
	lo, hi  r2.Vec
	stats   Stats
}

// New builds a solver that dispatches its parallel phases to pool. The pool
// stays owned by the caller and must outlive the solver's last Update.
func New(cfg Config, pool *workpool.Pool) (*Solver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if pool == nil {
		return nil, fmt.Errorf("%w: nil worker pool", ErrInvalidConfig)
	}

	g := grid.New(cfg.Width, cfg.Height)
	return &Solver{
		cfg:     cfg,
		pool:    pool,
		store:   particle.NewStore(cfg.MaxParticles),
		grid:    g,
		layout:  newColumnLayout(cfg.Width, pool.Workers()),
		offsets: g.NeighborOffsets(),
		lo:      r2.Vec{X: cfg.Margin, Y: cfg.Margin},
		hi:      r2.Vec{X: float64(cfg.Width) - cfg.Margin, Y: float64(cfg.Height) - cfg.Margin},
	}, nil
}

func (s *Solver) Config() Config { return s.cfg }

func (s *Solver) Len() int { return s.store.Len() }

// Full reports whether the population cap has been reached.
func (s *Solver) Full() bool { return s.store.Full() }

// Particles returns a read-only view valid until the next Update, Create or
// Add.
func (s *Solver) Particles() particle.View { return s.store.View() }

// Bounds returns the clamp box every position is kept inside.
func (s *Solver) Bounds() (lo, hi r2.Vec) { return s.lo, s.hi }

// Create appends a new particle at pos and returns its index.
func (s *Solver) Create(pos r2.Vec, opts ...particle.Option) (int, error) {
	return s.Add(particle.New(pos, opts...))
}

// Add appends a copy of p and returns its index.
func (s *Solver) Add(p particle.Particle) (int, error) {
	return s.store.Append(p)
}

// Update advances the simulation by dt, split into Config.SubSteps equal
// sub-steps of rebuild, two-phase collision resolution and integration.
func (s *Solver) Update(dt float64) error {
	if !(dt > 0) || !isFinite(dt) {
		return fmt.Errorf("%w: %v", ErrInvalidStep, dt)
	}

	start := time.Now()
	subDt := s.cfg.SubStepDt(dt)
	for i := 0; i < s.cfg.SubSteps; i++ {
		s.rebuildGrid()
		if err := s.resolveCollisions(subDt); err != nil {
			return fmt.Errorf("solver: resolve collisions: %w", err)
		}
		if err := s.integrate(subDt); err != nil {
			return fmt.Errorf("solver: integrate: %w", err)
		}
		s.stats.SubSteps++
	}

	s.stats.Updates++
	s.stats.Particles = s.store.Len()
	s.stats.Gridded = s.grid.Inserted()
	s.stats.Dropped = s.grid.Dropped()
	s.stats.LastUpdate = time.Since(start)
	return nil
}

// rebuildGrid refills the grid with every particle strictly inside the grid
// margin.
func (s *Solver) rebuildGrid() {
	s.grid.Clear()
	maxX := float64(s.cfg.Width) - gridMargin
	maxY := float64(s.cfg.Height) - gridMargin

	items := s.store.Items()
	for i := range items {
		p := &items[i]
		if !p.IsFinite() {
			panic(fmt.Sprintf("solver: particle %d has non-finite position %v", i, p.Position))
		}
		x, y := p.Position.X, p.Position.Y
		if x > gridMargin && x < maxX && y > gridMargin && y < maxY {
			s.grid.Add(x, y, uint32(i))
		}
	}
}
