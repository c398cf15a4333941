package sim

import (
	"context"
	"errors"
	"testing"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/san-kum/particlesim/internal/emitter"
	"github.com/san-kum/particlesim/internal/solver"
	"github.com/san-kum/particlesim/internal/workpool"
)

type countMetric struct {
	samples int
	last    float64
}

func (c *countMetric) Name() string { return "population" }

func (c *countMetric) Observe(f Frame) {
	c.samples++
	c.last = float64(f.Particles.Len())
}

func (c *countMetric) Value() float64 { return float64(c.samples) }
func (c *countMetric) Last() float64  { return c.last }
func (c *countMetric) Reset()         { c.samples, c.last = 0, 0 }

func newRunner(t *testing.T, withEmitter bool) *Runner {
	t.Helper()
	pool := workpool.New(2)
	t.Cleanup(pool.Close)

	cfg := solver.DefaultConfig()
	cfg.Width, cfg.Height = 80, 80
	s, err := solver.New(cfg, pool)
	if err != nil {
		t.Fatal(err)
	}

	var e *emitter.Emitter
	if withEmitter {
		e = emitter.New(emitter.Config{
			Enabled: true, X: 2.5, Y: 10, Vx: 20, Rows: 4, Spacing: 1.1, Every: 1,
		}, cfg.SubStepDt(DefaultDt))
	}
	return New(s, e)
}

func TestRun(t *testing.T) {
	r := newRunner(t, true)
	m := &countMetric{}
	r.AddMetric(m)

	frames := 0
	r.AddObserver(ObserverFunc(func(f Frame) {
		frames++
		if f.Tick != frames {
			t.Errorf("expected tick %d, got %d", frames, f.Tick)
		}
	}))

	result, err := r.Run(context.Background(), Config{Dt: DefaultDt, Ticks: 10})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if result.Ticks != 10 || len(result.Times) != 10 {
		t.Errorf("expected 10 ticks, got %d (%d times)", result.Ticks, len(result.Times))
	}
	if frames != 10 {
		t.Errorf("expected 10 observer calls, got %d", frames)
	}
	if result.Particles != 40 {
		t.Errorf("expected 40 particles, got %d", result.Particles)
	}

	series := result.Series["population"]
	if len(series) != 10 {
		t.Fatalf("expected 10 samples, got %d", len(series))
	}
	if series[0] != 4 || series[9] != 40 {
		t.Errorf("expected population 4..40, got %v", series)
	}
	if result.Metrics["population"] != 10 {
		t.Errorf("expected aggregate 10, got %f", result.Metrics["population"])
	}
	if result.Stats.Updates != 10 {
		t.Errorf("expected 10 solver updates, got %d", result.Stats.Updates)
	}
	if last := result.Times[9]; last < 10*DefaultDt-1e-9 || last > 10*DefaultDt+1e-9 {
		t.Errorf("expected final time %f, got %f", 10*DefaultDt, last)
	}
}

func TestRunWithoutEmitter(t *testing.T) {
	r := newRunner(t, false)
	if _, err := r.Solver().Create(r2.Vec{X: 40, Y: 40}); err != nil {
		t.Fatal(err)
	}

	result, err := r.Run(context.Background(), Config{Dt: DefaultDt, Ticks: 5})
	if err != nil {
		t.Fatal(err)
	}
	if result.Particles != 1 {
		t.Errorf("expected 1 particle, got %d", result.Particles)
	}
	if y := r.Solver().Particles().Position(0).Y; y <= 40 {
		t.Errorf("expected the particle to fall, y = %f", y)
	}
}

func TestRunCancelled(t *testing.T) {
	r := newRunner(t, true)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := r.Run(ctx, Config{Dt: DefaultDt, Ticks: 100})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if result == nil || result.Ticks != 0 {
		t.Errorf("expected an empty partial result, got %+v", result)
	}
}

func TestRunInvalidConfig(t *testing.T) {
	r := newRunner(t, false)

	if _, err := r.Run(context.Background(), Config{Dt: 0, Ticks: 1}); !errors.Is(err, solver.ErrInvalidStep) {
		t.Errorf("expected ErrInvalidStep, got %v", err)
	}
	if _, err := r.Run(context.Background(), Config{Dt: DefaultDt, Ticks: -1}); err == nil {
		t.Error("expected error for negative ticks")
	}
}

func TestRunSolverError(t *testing.T) {
	pool := workpool.New(2)
	s, err := solver.New(solver.DefaultConfig(), pool)
	if err != nil {
		t.Fatal(err)
	}
	pool.Close()

	_, err = New(s, nil).Run(context.Background(), Config{Dt: DefaultDt, Ticks: 3})
	if !errors.Is(err, workpool.ErrPoolClosed) {
		t.Errorf("expected ErrPoolClosed, got %v", err)
	}
}

func TestRunWithCallback(t *testing.T) {
	r := newRunner(t, true)

	calls := 0
	err := r.RunWithCallback(context.Background(), DefaultDt, func(f Frame) bool {
		calls++
		return calls < 5
	})
	if err != nil {
		t.Fatal(err)
	}
	if calls != 5 || r.Tick() != 5 {
		t.Errorf("expected 5 frames, got %d calls and tick %d", calls, r.Tick())
	}
}

func TestStepStopsEmitterWhenFull(t *testing.T) {
	pool := workpool.New(2)
	t.Cleanup(pool.Close)

	cfg := solver.DefaultConfig()
	cfg.Width, cfg.Height = 80, 80
	cfg.MaxParticles = 6
	s, err := solver.New(cfg, pool)
	if err != nil {
		t.Fatal(err)
	}
	e := emitter.New(emitter.Config{
		Enabled: true, X: 2.5, Y: 10, Vx: 20, Rows: 4, Spacing: 1.1, Every: 1,
	}, cfg.SubStepDt(DefaultDt))
	r := New(s, e)

	if _, err := r.Step(DefaultDt); err != nil {
		t.Fatal(err)
	}
	if !e.Enabled() {
		t.Fatal("emitter should keep running below capacity")
	}
	if _, err := r.Step(DefaultDt); err != nil {
		t.Fatal(err)
	}
	if e.Enabled() {
		t.Error("emitter should stop once the solver is full")
	}
	if s.Len() != 6 {
		t.Errorf("expected 6 particles, got %d", s.Len())
	}

	if _, err := r.Step(DefaultDt); err != nil {
		t.Fatal(err)
	}
	if s.Len() != 6 {
		t.Errorf("population changed after stop: %d", s.Len())
	}
}

func TestProgressLogValue(t *testing.T) {
	v := Progress{Tick: 10, Ticks: 20, Particles: 3}.LogValue()
	if len(v.Group()) != 5 {
		t.Errorf("expected 5 attributes, got %d", len(v.Group()))
	}
}
