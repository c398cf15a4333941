package sim

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/san-kum/particlesim/internal/emitter"
	"github.com/san-kum/particlesim/internal/solver"
)

const DefaultDt = 1.0 / 60

// Runner drives a solver at a fixed frame rate, feeding it from an optional
// emitter and reporting every frame to metrics and observers.
type Runner struct {
	solver    *solver.Solver
	emitter   *emitter.Emitter
	metrics   []Metric
	observers []Observer
	logger    *slog.Logger
	logEvery  int

	tick int
	t    float64
}

type Option func(*Runner)

func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// WithProgressEvery logs a progress record every n ticks during Run.
func WithProgressEvery(n int) Option {
	return func(r *Runner) { r.logEvery = n }
}

// New returns a runner for s. e may be nil.
func New(s *solver.Solver, e *emitter.Emitter, opts ...Option) *Runner {
	r := &Runner{
		solver:  s,
		emitter: e,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Runner) AddMetric(m Metric)     { r.metrics = append(r.metrics, m) }
func (r *Runner) AddObserver(o Observer) { r.observers = append(r.observers, o) }

func (r *Runner) Solver() *solver.Solver   { return r.solver }
func (r *Runner) Emitter() *emitter.Emitter { return r.emitter }
func (r *Runner) Tick() int                 { return r.tick }
func (r *Runner) Time() float64             { return r.t }

// Step runs one frame: emit, update, then report the frame.
func (r *Runner) Step(dt float64) (Frame, error) {
	if r.emitter != nil {
		if _, err := r.emitter.Step(r.solver, r.tick); err != nil {
			return Frame{}, fmt.Errorf("sim: emit at tick %d: %w", r.tick, err)
		}
		if r.emitter.Enabled() && r.solver.Full() {
			r.emitter.SetEnabled(false)
			r.logger.Info("emitter_stopped", "particles", r.solver.Len(), "tick", r.tick)
		}
	}
	if err := r.solver.Update(dt); err != nil {
		return Frame{}, fmt.Errorf("sim: tick %d: %w", r.tick, err)
	}
	r.tick++
	r.t += dt

	f := r.frame(dt)
	for _, m := range r.metrics {
		m.Observe(f)
	}
	for _, obs := range r.observers {
		obs.OnFrame(f)
	}
	return f, nil
}

func (r *Runner) frame(dt float64) Frame {
	lo, hi := r.solver.Bounds()
	return Frame{
		Tick:      r.tick,
		Time:      r.t,
		SubDt:     r.solver.Config().SubStepDt(dt),
		Particles: r.solver.Particles(),
		Lo:        lo,
		Hi:        hi,
	}
}

// Run advances cfg.Ticks frames, checking ctx between frames. On
// cancellation it returns the partial result together with ctx.Err().
func (r *Runner) Run(ctx context.Context, cfg Config) (*Result, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	result := &Result{
		Times:   make([]float64, 0, cfg.Ticks),
		Series:  make(map[string][]float64, len(r.metrics)),
		Metrics: make(map[string]float64, len(r.metrics)),
	}
	for _, m := range r.metrics {
		m.Reset()
		result.Series[m.Name()] = make([]float64, 0, cfg.Ticks)
	}

	start := time.Now()
	defer func() {
		result.Wall = time.Since(start)
		result.Ticks = len(result.Times)
		result.Particles = r.solver.Len()
		result.Stats = r.solver.Stats()
		for _, m := range r.metrics {
			result.Metrics[m.Name()] = m.Value()
		}
	}()

	for i := 0; i < cfg.Ticks; i++ {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		default:
		}

		f, err := r.Step(cfg.Dt)
		if err != nil {
			return result, err
		}

		result.Times = append(result.Times, f.Time)
		for _, m := range r.metrics {
			result.Series[m.Name()] = append(result.Series[m.Name()], sample(m))
		}

		if r.logEvery > 0 && (i+1)%r.logEvery == 0 {
			r.logger.Info("progress", "run", r.progress(i+1, cfg.Ticks, start))
		}
	}

	return result, nil
}

// RunWithCallback steps at dt until cb returns false or ctx is done.
func (r *Runner) RunWithCallback(ctx context.Context, dt float64, cb func(Frame) bool) error {
	if err := validateConfig(Config{Dt: dt}); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		f, err := r.Step(dt)
		if err != nil {
			return err
		}
		if !cb(f) {
			return nil
		}
	}
}

func (r *Runner) progress(done, total int, start time.Time) Progress {
	return Progress{
		Tick:      done,
		Ticks:     total,
		Particles: r.solver.Len(),
		Elapsed:   time.Since(start),
		Solver:    r.solver.Stats(),
	}
}

func sample(m Metric) float64 {
	if s, ok := m.(Sampler); ok {
		return s.Last()
	}
	return m.Value()
}

func validateConfig(cfg Config) error {
	if !(cfg.Dt > 0) {
		return fmt.Errorf("%w: dt must be positive, got %f", solver.ErrInvalidStep, cfg.Dt)
	}
	if cfg.Ticks < 0 {
		return fmt.Errorf("sim: ticks must be >= 0, got %d", cfg.Ticks)
	}
	return nil
}

// Progress is logged periodically by Run.
type Progress struct {
	Tick      int
	Ticks     int
	Particles int
	Elapsed   time.Duration
	Solver    solver.Stats
}

// LogValue implements slog.LogValuer.
func (p Progress) LogValue() slog.Value {
	tps := 0.0
	if p.Elapsed > 0 {
		tps = float64(p.Tick) / p.Elapsed.Seconds()
	}
	return slog.GroupValue(
		slog.Int("tick", p.Tick),
		slog.Int("ticks", p.Ticks),
		slog.Int("particles", p.Particles),
		slog.Float64("ticks_per_sec", tps),
		slog.Any("solver", p.Solver),
	)
}
