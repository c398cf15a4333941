// Package experiment assembles a runnable scene from a config: worker pool,
// solver, emitter, metrics and frame runner.
package experiment

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/san-kum/particlesim/internal/config"
	"github.com/san-kum/particlesim/internal/emitter"
	"github.com/san-kum/particlesim/internal/metrics"
	"github.com/san-kum/particlesim/internal/sim"
	"github.com/san-kum/particlesim/internal/solver"
	"github.com/san-kum/particlesim/internal/storage"
	"github.com/san-kum/particlesim/internal/workpool"
)

type Experiment struct {
	name   string
	cfg    *config.Config
	pool   *workpool.Pool
	solver *solver.Solver
	runner *sim.Runner
	logger *slog.Logger
}

// New builds the scene described by cfg. The experiment owns its worker pool;
// call Close when done.
func New(name string, cfg *config.Config, logger *slog.Logger) (*Experiment, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	sc, err := cfg.SolverConfig()
	if err != nil {
		return nil, err
	}

	pool := workpool.New(cfg.Workers)
	s, err := solver.New(sc, pool)
	if err != nil {
		pool.Close()
		return nil, err
	}

	em := emitter.New(emitter.Config{
		Enabled: cfg.Emitter.Enabled,
		X:       cfg.Emitter.X,
		Y:       cfg.Emitter.Y,
		Vx:      cfg.Emitter.Vx,
		Vy:      cfg.Emitter.Vy,
		Rows:    cfg.Emitter.Rows,
		Spacing: cfg.Emitter.Spacing,
		Every:   cfg.Emitter.Every,
		Seed:    cfg.Emitter.Seed,
	}, sc.SubStepDt(cfg.Run.Dt))

	if n := cfg.Emitter.Scatter; n > 0 {
		lo, hi := s.Bounds()
		created, err := em.Scatter(s, n, lo, hi)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("experiment: scatter: %w", err)
		}
		logger.Debug("scattered", "requested", n, "created", created)
	}

	runner := sim.New(s, em, sim.WithLogger(logger), sim.WithProgressEvery(progressEvery(cfg.Run.Ticks)))
	for _, m := range metrics.Default(sc.Width, sc.Height) {
		runner.AddMetric(m)
	}

	logger.Info("experiment_ready",
		"name", name,
		"model", sc.Model.String(),
		"workers", pool.Workers(),
		"world", fmt.Sprintf("%dx%d", sc.Width, sc.Height),
		"particles", s.Len(),
	)

	return &Experiment{
		name:   name,
		cfg:    cfg,
		pool:   pool,
		solver: s,
		runner: runner,
		logger: logger,
	}, nil
}

func progressEvery(ticks int) int {
	return max(ticks/10, 1)
}

// Run advances the configured number of ticks.
func (e *Experiment) Run(ctx context.Context) (*sim.Result, error) {
	return e.runner.Run(ctx, sim.Config{Dt: e.cfg.Run.Dt, Ticks: e.cfg.Run.Ticks})
}

func (e *Experiment) Runner() *sim.Runner    { return e.runner }
func (e *Experiment) Solver() *solver.Solver { return e.solver }
func (e *Experiment) Workers() int           { return e.pool.Workers() }

// Info describes the experiment for a stored run.
func (e *Experiment) Info() storage.RunInfo {
	sc := e.solver.Config()
	return storage.RunInfo{
		Name:     e.name,
		Model:    sc.Model.String(),
		Workers:  e.pool.Workers(),
		Width:    sc.Width,
		Height:   sc.Height,
		SubSteps: sc.SubSteps,
		Dt:       e.cfg.Run.Dt,
		Seed:     e.cfg.Emitter.Seed,
	}
}

// Close drains and stops the worker pool.
func (e *Experiment) Close() {
	e.pool.Close()
}
