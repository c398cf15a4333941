package solver

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/spatial/r2"
)

// Model selects the contact and integration rules.
type Model int

const (
	// ModelPositional resolves contacts by positional correction only and
	// ignores mass.
	ModelPositional Model = iota
	// ModelMomentum adds an elastic velocity exchange with energy loss on
	// contact and turns boundary bounces into forces for the next sub-step.
	ModelMomentum
)

func (m Model) String() string {
	switch m {
	case ModelPositional:
		return "positional"
	case ModelMomentum:
		return "momentum"
	default:
		return fmt.Sprintf("model(%d)", int(m))
	}
}

// ParseModel maps a model name to its Model.
func ParseModel(s string) (Model, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "positional":
		return ModelPositional, nil
	case "momentum":
		return ModelMomentum, nil
	default:
		return 0, fmt.Errorf("%w: unknown model %q", ErrInvalidConfig, s)
	}
}

const (
	DefaultWidth               = 300
	DefaultHeight              = 300
	DefaultSubSteps            = 8
	DefaultDamping             = 1.0
	DefaultResponseCoefficient = 1.0
	DefaultEnergyLoss          = 0.2
	DefaultVelocityThreshold   = 1e-2
	DefaultMargin              = 2.0
	DefaultMaxParticles        = 80000
)

// DefaultGravity points down the screen (+y).
var DefaultGravity = r2.Vec{X: 0, Y: 20}

// Config is fixed at construction.
type Config struct {
	// Width and Height are the world size in world units, which is also the
	// grid size in cells.
	Width, Height int
	Gravity       r2.Vec
	SubSteps      int
	// Damping is the velocity damping rate in 1/s.
	Damping             float64
	ResponseCoefficient float64
	// EnergyLoss is the fraction of a collision or bounce impulse that is
	// discarded. Momentum model only.
	EnergyLoss float64
	// VelocityThreshold is the minimum speed both bodies need before the
	// momentum model exchanges velocities.
	VelocityThreshold float64
	// Margin is the distance from each border that positions are clamped to.
	Margin       float64
	Model        Model
	MaxParticles int
}

func DefaultConfig() Config {
	return Config{
		Width:               DefaultWidth,
		Height:              DefaultHeight,
		Gravity:             DefaultGravity,
		SubSteps:            DefaultSubSteps,
		Damping:             DefaultDamping,
		ResponseCoefficient: DefaultResponseCoefficient,
		EnergyLoss:          DefaultEnergyLoss,
		VelocityThreshold:   DefaultVelocityThreshold,
		Margin:              DefaultMargin,
		Model:               ModelPositional,
		MaxParticles:        DefaultMaxParticles,
	}
}

// Validate reports the first field outside its valid range.
func (c Config) Validate() error {
	if c.Width < minWorldSize || c.Height < minWorldSize {
		return fmt.Errorf("%w: world must be at least %dx%d, got %dx%d", ErrInvalidConfig, minWorldSize, minWorldSize, c.Width, c.Height)
	}
	if c.SubSteps < 1 {
		return fmt.Errorf("%w: sub_steps must be >= 1, got %d", ErrInvalidConfig, c.SubSteps)
	}
	if !isFinite(c.Gravity.X) || !isFinite(c.Gravity.Y) {
		return fmt.Errorf("%w: gravity must be finite, got %v", ErrInvalidConfig, c.Gravity)
	}
	if !(c.Damping >= 0) || math.IsInf(c.Damping, 0) {
		return fmt.Errorf("%w: damping must be >= 0, got %f", ErrInvalidConfig, c.Damping)
	}
	if !(c.ResponseCoefficient > 0 && c.ResponseCoefficient <= 1) {
		return fmt.Errorf("%w: response_coefficient must be in (0, 1], got %f", ErrInvalidConfig, c.ResponseCoefficient)
	}
	if !(c.EnergyLoss >= 0 && c.EnergyLoss <= 1) {
		return fmt.Errorf("%w: energy_loss must be in [0, 1], got %f", ErrInvalidConfig, c.EnergyLoss)
	}
	if !(c.VelocityThreshold >= 0) {
		return fmt.Errorf("%w: velocity_threshold must be >= 0, got %f", ErrInvalidConfig, c.VelocityThreshold)
	}
	if !(c.Margin >= 0) || 2*c.Margin >= float64(min(c.Width, c.Height)) {
		return fmt.Errorf("%w: margin %f does not fit a %dx%d world", ErrInvalidConfig, c.Margin, c.Width, c.Height)
	}
	if c.Model != ModelPositional && c.Model != ModelMomentum {
		return fmt.Errorf("%w: unknown model %d", ErrInvalidConfig, int(c.Model))
	}
	if c.MaxParticles < 0 {
		return fmt.Errorf("%w: max_particles must be >= 0, got %d", ErrInvalidConfig, c.MaxParticles)
	}
	return nil
}

// SubStepDt returns the sub-step length for an update of dt.
func (c Config) SubStepDt(dt float64) float64 {
	return dt / float64(c.SubSteps)
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
