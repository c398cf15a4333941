// Package emitter feeds particles into a solver a column at a time.
package emitter

import (
	"errors"
	"math"
	"math/rand"
	"sync/atomic"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/san-kum/particlesim/internal/particle"
)

// Sink is the part of the solver the emitter writes to.
type Sink interface {
	Create(pos r2.Vec, opts ...particle.Option) (int, error)
	Full() bool
}

type Config struct {
	Enabled bool
	// X, Y is the top of the emitted column.
	X, Y float64
	// Vx, Vy is the initial velocity in world units per second.
	Vx, Vy  float64
	Rows    int
	Spacing float64
	// Every emits on one tick out of Every. Zero behaves like one.
	Every int
	Seed  int64
}

type Emitter struct {
	cfg     Config
	subDt   float64
	enabled atomic.Bool
	emitted int
	rng     *rand.Rand
}

// New returns an emitter for a solver integrating with sub-steps of subDt.
func New(cfg Config, subDt float64) *Emitter {
	e := &Emitter{
		cfg:   cfg,
		subDt: subDt,
		rng:   rand.New(rand.NewSource(cfg.Seed)),
	}
	e.enabled.Store(cfg.Enabled)
	return e
}

func (e *Emitter) Enabled() bool { return e.enabled.Load() }

func (e *Emitter) SetEnabled(on bool) { e.enabled.Store(on) }

// Toggle flips emission and returns the new state. Safe to call from another
// goroutine than the one stepping the solver.
func (e *Emitter) Toggle() bool {
	for {
		old := e.enabled.Load()
		if e.enabled.CompareAndSwap(old, !old) {
			return !old
		}
	}
}

// Emitted returns the number of columns emitted so far.
func (e *Emitter) Emitted() int { return e.emitted }

// Step emits a column on ticks that are a multiple of Config.Every.
func (e *Emitter) Step(s Sink, tick int) (int, error) {
	every := max(e.cfg.Every, 1)
	if tick%every != 0 {
		return 0, nil
	}
	return e.Emit(s)
}

// Emit appends one column of Rows particles, all sharing the column's
// palette colour. It stops quietly once the sink is full and reports how
// many particles were created.
func (e *Emitter) Emit(s Sink) (int, error) {
	if !e.Enabled() || s.Full() {
		return 0, nil
	}

	color := Palette(float64(e.emitted))
	vel := r2.Vec{X: e.cfg.Vx, Y: e.cfg.Vy}
	created := 0
	for i := e.cfg.Rows - 1; i >= 0; i-- {
		pos := r2.Vec{X: e.cfg.X, Y: e.cfg.Y + e.cfg.Spacing*float64(i)}
		_, err := s.Create(pos, particle.WithVelocity(vel, e.subDt), particle.WithColor(color))
		if errors.Is(err, particle.ErrStoreFull) {
			break
		}
		if err != nil {
			return created, err
		}
		created++
	}
	if created > 0 {
		e.emitted++
	}
	return created, nil
}

// Scatter places n particles uniformly inside [lo, hi] at rest, with masses
// in [0.5, 1.5).
func (e *Emitter) Scatter(s Sink, n int, lo, hi r2.Vec) (int, error) {
	created := 0
	for i := 0; i < n; i++ {
		pos := r2.Vec{
			X: lo.X + e.rng.Float64()*(hi.X-lo.X),
			Y: lo.Y + e.rng.Float64()*(hi.Y-lo.Y),
		}
		_, err := s.Create(pos,
			particle.WithMass(0.5+e.rng.Float64()),
			particle.WithColor(Palette(float64(i))),
		)
		if errors.Is(err, particle.ErrStoreFull) {
			break
		}
		if err != nil {
			return created, err
		}
		created++
	}
	return created, nil
}

// Palette maps a sequence number to a slowly cycling colour. Each channel is
// sin² of the scaled seed, phase-shifted by a third of a turn.
func Palette(seed float64) particle.Color {
	t := seed / 1000
	r := math.Sin(t)
	g := math.Sin(t + 0.33*2*math.Pi)
	b := math.Sin(t + 0.66*2*math.Pi)
	return particle.Color{R: float32(r * r), G: float32(g * g), B: float32(b * b)}
}
