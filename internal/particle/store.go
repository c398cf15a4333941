package particle

import (
	"errors"

	"gonum.org/v1/gonum/spatial/r2"
)

// ErrStoreFull is returned when appending past the population cap.
var ErrStoreFull = errors.New("particle: store is full")

// ErrInvalidMass is returned when appending a particle with a non-positive mass.
var ErrInvalidMass = errors.New("particle: mass must be positive")

// preallocate bounds the initial backing array of a capped store.
const preallocate = 1 << 14

// Store is a contiguous, append-only particle collection. There is no
// deletion: the population only grows, up to the cap given to NewStore.
type Store struct {
	items []Particle
	max   int
}

// NewStore returns an empty store holding at most max particles. A max of
// zero or less means unbounded.
func NewStore(max int) *Store {
	n := max
	if n <= 0 || n > preallocate {
		n = preallocate
	}
	return &Store{items: make([]Particle, 0, n), max: max}
}

// Append adds p and returns its index.
func (s *Store) Append(p Particle) (int, error) {
	if s.max > 0 && len(s.items) >= s.max {
		return -1, ErrStoreFull
	}
	if !(p.Mass > 0) {
		return -1, ErrInvalidMass
	}
	s.items = append(s.items, p)
	return len(s.items) - 1, nil
}

func (s *Store) Len() int { return len(s.items) }

// Max returns the population cap, 0 when unbounded.
func (s *Store) Max() int { return s.max }

// Full reports whether another Append would fail with ErrStoreFull.
func (s *Store) Full() bool { return s.max > 0 && len(s.items) >= s.max }

// At returns a mutable pointer to particle i. The pointer is invalidated by
// the next Append.
func (s *Store) At(i int) *Particle { return &s.items[i] }

// Items exposes the backing slice to the solver pipeline. Callers outside
// the solver should use View.
func (s *Store) Items() []Particle { return s.items }

// View returns a read-only view of the current population.
func (s *Store) View() View { return View{items: s.items} }

// View is a read-only window onto a Store. It stays valid and stable until
// the owning solver runs its next update or appends a particle.
type View struct {
	items []Particle
}

func (v View) Len() int { return len(v.items) }

func (v View) Position(i int) r2.Vec { return v.items[i].Position }

func (v View) Color(i int) Color { return v.items[i].Color }

func (v View) Mass(i int) float64 { return v.items[i].Mass }

// Velocity derives the velocity of particle i over a step of length dt.
func (v View) Velocity(i int, dt float64) r2.Vec { return v.items[i].Velocity(dt) }

// At returns a copy of particle i.
func (v View) At(i int) Particle { return v.items[i] }

// Snapshot copies the whole population into a slice owned by the caller.
func (v View) Snapshot() []Particle {
	out := make([]Particle, len(v.items))
	copy(out, v.items)
	return out
}
