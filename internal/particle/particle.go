// Package particle holds the physical state of unit-diameter point masses.
//
// Velocity is never stored. It is always derived from the difference between
// the current and the previous position over the step length that produced
// it, which is what lets the solver integrate with a position-only Verlet
// scheme.
package particle

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"
)

// Color is a cosmetic RGB tag in [0, 1]. It has no physical meaning.
type Color struct {
	R, G, B float32
}

// Particle is one body. The zero value is not usable: Mass must be > 0.
type Particle struct {
	Position     r2.Vec
	PrevPosition r2.Vec
	// Acceleration accumulates forces for the next integration step and is
	// reset by the solver after every sub-step.
	Acceleration r2.Vec
	Mass         float64
	Color        Color
}

// Option configures a particle at creation.
type Option func(*Particle)

// WithMass sets the particle mass.
func WithMass(m float64) Option {
	return func(p *Particle) { p.Mass = m }
}

// WithVelocity gives the particle an initial velocity, expressed over the
// sub-step length dt that the solver will integrate with.
func WithVelocity(v r2.Vec, dt float64) Option {
	return func(p *Particle) {
		p.PrevPosition = r2.Sub(p.Position, r2.Scale(dt, v))
	}
}

// WithAcceleration seeds the accumulated acceleration.
func WithAcceleration(a r2.Vec) Option {
	return func(p *Particle) { p.Acceleration = a }
}

// WithColor sets the cosmetic colour.
func WithColor(c Color) Option {
	return func(p *Particle) { p.Color = c }
}

// New creates a particle at rest at pos with unit mass.
func New(pos r2.Vec, opts ...Option) Particle {
	p := Particle{
		Position:     pos,
		PrevPosition: pos,
		Mass:         1,
	}
	for _, opt := range opts {
		opt(&p)
	}
	return p
}

// Velocity derives the velocity over a step of length dt.
func (p *Particle) Velocity(dt float64) r2.Vec {
	return r2.Scale(1/dt, r2.Sub(p.Position, p.PrevPosition))
}

// OnForce applies f for the next integration step.
func (p *Particle) OnForce(f r2.Vec) {
	p.Acceleration = r2.Add(p.Acceleration, r2.Scale(1/p.Mass, f))
}

// IsFinite reports whether the position is free of NaN and Inf.
func (p *Particle) IsFinite() bool {
	return finite(p.Position.X) && finite(p.Position.Y)
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
