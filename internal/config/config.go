package config

import (
	"fmt"
	"math"
	"os"

	"gonum.org/v1/gonum/spatial/r2"
	"gopkg.in/yaml.v3"

	"github.com/san-kum/particlesim/internal/solver"
)

const (
	DefaultDt      = 1.0 / 60
	DefaultTicks   = 600
	DefaultRows    = 20
	DefaultSpacing = 1.1
	DefaultEmitX   = 2.5
	DefaultEmitY   = 10.0
	DefaultEmitVx  = 25.0
)

type Config struct {
	World   WorldConfig   `yaml:"world"`
	Physics PhysicsConfig `yaml:"physics"`
	Emitter EmitterConfig `yaml:"emitter"`
	Run     RunConfig     `yaml:"run"`
	// Workers is the worker pool size; 0 uses every CPU.
	Workers int `yaml:"workers"`
}

type WorldConfig struct {
	Width        int     `yaml:"width"`
	Height       int     `yaml:"height"`
	Margin       float64 `yaml:"margin"`
	MaxParticles int     `yaml:"max_particles"`
}

type PhysicsConfig struct {
	Model               string  `yaml:"model"`
	GravityX            float64 `yaml:"gravity_x"`
	GravityY            float64 `yaml:"gravity_y"`
	SubSteps            int     `yaml:"sub_steps"`
	Damping             float64 `yaml:"damping"`
	ResponseCoefficient float64 `yaml:"response_coefficient"`
	EnergyLoss          float64 `yaml:"energy_loss"`
	VelocityThreshold   float64 `yaml:"velocity_threshold"`
}

type EmitterConfig struct {
	Enabled bool    `yaml:"enabled"`
	X       float64 `yaml:"x"`
	Y       float64 `yaml:"y"`
	Vx      float64 `yaml:"vx"`
	Vy      float64 `yaml:"vy"`
	Rows    int     `yaml:"rows"`
	Spacing float64 `yaml:"spacing"`
	// Every emits once per Every ticks.
	Every int   `yaml:"every"`
	Seed  int64 `yaml:"seed"`
	// Scatter adds this many randomly placed particles before the first tick.
	Scatter int `yaml:"scatter"`
}

type RunConfig struct {
	Dt    float64 `yaml:"dt"`
	Ticks int     `yaml:"ticks"`
}

func DefaultConfig() *Config {
	sc := solver.DefaultConfig()
	return &Config{
		World: WorldConfig{
			Width:        sc.Width,
			Height:       sc.Height,
			Margin:       sc.Margin,
			MaxParticles: sc.MaxParticles,
		},
		Physics: PhysicsConfig{
			Model:               sc.Model.String(),
			GravityX:            sc.Gravity.X,
			GravityY:            sc.Gravity.Y,
			SubSteps:            sc.SubSteps,
			Damping:             sc.Damping,
			ResponseCoefficient: sc.ResponseCoefficient,
			EnergyLoss:          sc.EnergyLoss,
			VelocityThreshold:   sc.VelocityThreshold,
		},
		Emitter: EmitterConfig{
			Enabled: true,
			X:       DefaultEmitX,
			Y:       DefaultEmitY,
			Vx:      DefaultEmitVx,
			Rows:    DefaultRows,
			Spacing: DefaultSpacing,
			Every:   1,
		},
		Run: RunConfig{
			Dt:    DefaultDt,
			Ticks: DefaultTicks,
		},
	}
}

// Load reads a YAML file over the defaults and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// SolverConfig converts the world and physics sections.
func (c *Config) SolverConfig() (solver.Config, error) {
	model, err := solver.ParseModel(c.Physics.Model)
	if err != nil {
		return solver.Config{}, err
	}
	return solver.Config{
		Width:               c.World.Width,
		Height:              c.World.Height,
		Gravity:             r2.Vec{X: c.Physics.GravityX, Y: c.Physics.GravityY},
		SubSteps:            c.Physics.SubSteps,
		Damping:             c.Physics.Damping,
		ResponseCoefficient: c.Physics.ResponseCoefficient,
		EnergyLoss:          c.Physics.EnergyLoss,
		VelocityThreshold:   c.Physics.VelocityThreshold,
		Margin:              c.World.Margin,
		Model:               model,
		MaxParticles:        c.World.MaxParticles,
	}, nil
}

func (c *Config) Validate() error {
	sc, err := c.SolverConfig()
	if err != nil {
		return err
	}
	if err := sc.Validate(); err != nil {
		return err
	}
	if !(c.Run.Dt > 0) || math.IsInf(c.Run.Dt, 1) {
		return fmt.Errorf("%w: run.dt must be positive and finite, got %f", solver.ErrInvalidConfig, c.Run.Dt)
	}
	if c.Run.Ticks < 0 {
		return fmt.Errorf("%w: run.ticks must be >= 0, got %d", solver.ErrInvalidConfig, c.Run.Ticks)
	}
	if c.Workers < 0 {
		return fmt.Errorf("%w: workers must be >= 0, got %d", solver.ErrInvalidConfig, c.Workers)
	}
	if c.Emitter.Rows < 0 || c.Emitter.Every < 0 || c.Emitter.Scatter < 0 {
		return fmt.Errorf("%w: emitter rows, every and scatter must be >= 0", solver.ErrInvalidConfig)
	}
	return nil
}
