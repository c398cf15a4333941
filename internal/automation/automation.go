package automation

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/san-kum/particlesim/internal/config"
	"github.com/san-kum/particlesim/internal/experiment"
	"github.com/san-kum/particlesim/internal/sim"
	"github.com/san-kum/particlesim/internal/storage"
)

// Scenario defines a scripted sequence of runs
type Scenario struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description"`
	Steps       []ScenarioStep `yaml:"steps"`
}

// ScenarioStep is one run. Zero fields keep the preset's value.
type ScenarioStep struct {
	Preset   string  `yaml:"preset"`
	Model    string  `yaml:"model"`
	Workers  int     `yaml:"workers"`
	Ticks    int     `yaml:"ticks"`
	SubSteps int     `yaml:"sub_steps"`
	Damping  float64 `yaml:"damping"`
	SaveAs   string  `yaml:"save_as"`
}

// StepResult summarises one executed step.
type StepResult struct {
	Step        int
	Name        string
	RunID       string
	Particles   int
	Ticks       int
	TicksPerSec float64
	Metrics     map[string]float64
}

// LoadScenario loads a scenario from a YAML file
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var scenario Scenario
	if err := yaml.Unmarshal(data, &scenario); err != nil {
		return nil, fmt.Errorf("automation: parse %s: %w", path, err)
	}
	if len(scenario.Steps) == 0 {
		return nil, fmt.Errorf("automation: %s has no steps", path)
	}
	return &scenario, nil
}

// Config resolves the step into a full configuration.
func (s ScenarioStep) Config() (*config.Config, error) {
	name := s.Preset
	if name == "" {
		name = "waterfall"
	}
	cfg := config.GetPreset(name)
	if cfg == nil {
		return nil, fmt.Errorf("unknown preset: %s (available: %v)", name, config.ListPresets())
	}
	if s.Model != "" {
		cfg.Physics.Model = s.Model
	}
	if s.Workers > 0 {
		cfg.Workers = s.Workers
	}
	if s.Ticks > 0 {
		cfg.Run.Ticks = s.Ticks
	}
	if s.SubSteps > 0 {
		cfg.Physics.SubSteps = s.SubSteps
	}
	if s.Damping > 0 {
		cfg.Physics.Damping = s.Damping
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// RunScenario executes all steps in order. Steps with SaveAs set are written
// to st, which may be nil when nothing is saved.
func RunScenario(ctx context.Context, scenario *Scenario, st *storage.Store, logger *slog.Logger) ([]StepResult, error) {
	if logger == nil {
		logger = slog.Default()
	}
	results := make([]StepResult, 0, len(scenario.Steps))

	for i, step := range scenario.Steps {
		name := step.SaveAs
		if name == "" {
			name = fmt.Sprintf("%s_step%d", scenario.Name, i+1)
		}
		logger.Info("scenario_step", "scenario", scenario.Name, "step", i+1, "of", len(scenario.Steps), "preset", step.Preset)

		cfg, err := step.Config()
		if err != nil {
			return results, fmt.Errorf("step %d: %w", i+1, err)
		}

		res, err := runStep(ctx, name, cfg, step.SaveAs != "", st, logger)
		if err != nil {
			return results, fmt.Errorf("step %d: %w", i+1, err)
		}
		res.Step = i + 1
		results = append(results, res)
	}

	return results, nil
}

func runStep(ctx context.Context, name string, cfg *config.Config, save bool, st *storage.Store, logger *slog.Logger) (StepResult, error) {
	exp, err := experiment.New(name, cfg, logger)
	if err != nil {
		return StepResult{}, err
	}
	defer exp.Close()

	result, err := exp.Run(ctx)
	if err != nil {
		return StepResult{}, err
	}

	out := StepResult{
		Name:      name,
		Particles: result.Particles,
		Ticks:     result.Ticks,
		Metrics:   result.Metrics,
	}
	if result.Wall > 0 {
		out.TicksPerSec = float64(result.Ticks) / result.Wall.Seconds()
	}

	if save && st != nil {
		out.RunID, err = st.Save(exp.Info(), result, exp.Solver().Particles())
		if err != nil {
			return out, fmt.Errorf("save: %w", err)
		}
	}
	return out, nil
}

// WorkerSweep times the same scene at each worker count.
type WorkerSweep struct {
	Config  *config.Config
	Workers []int
	// Warmup ticks are run and discarded before timing.
	Warmup int
	Ticks  int
}

// SweepResult holds the timing for one worker count.
type SweepResult struct {
	Workers     int
	Particles   int
	Ticks       int
	Elapsed     time.Duration
	TicksPerSec float64
}

// RunSweep builds a fresh scene per worker count, runs Warmup full frames to
// populate it, then times Ticks bare solver updates.
func RunSweep(ctx context.Context, sweep *WorkerSweep, logger *slog.Logger) ([]SweepResult, error) {
	if logger == nil {
		logger = slog.Default()
	}
	results := make([]SweepResult, 0, len(sweep.Workers))

	for _, workers := range sweep.Workers {
		cfg := *sweep.Config
		cfg.Workers = workers

		res, err := timeWorkers(ctx, &cfg, sweep.Warmup, sweep.Ticks, logger)
		if err != nil {
			return results, fmt.Errorf("workers=%d: %w", workers, err)
		}
		results = append(results, res)
		logger.Debug("sweep_point", "workers", res.Workers, "ticks_per_sec", res.TicksPerSec)
	}

	return results, nil
}

func timeWorkers(ctx context.Context, cfg *config.Config, warmup, ticks int, logger *slog.Logger) (SweepResult, error) {
	exp, err := experiment.New(fmt.Sprintf("sweep_w%d", cfg.Workers), cfg, logger)
	if err != nil {
		return SweepResult{}, err
	}
	defer exp.Close()

	if warmup > 0 {
		err := exp.Runner().RunWithCallback(ctx, cfg.Run.Dt, func(f sim.Frame) bool {
			return f.Tick < warmup
		})
		if err != nil {
			return SweepResult{}, err
		}
	}

	start := time.Now()
	for i := 0; i < ticks; i++ {
		if err := ctx.Err(); err != nil {
			return SweepResult{}, err
		}
		if err := exp.Solver().Update(cfg.Run.Dt); err != nil {
			return SweepResult{}, err
		}
	}
	elapsed := time.Since(start)

	res := SweepResult{
		Workers:   exp.Workers(),
		Particles: exp.Solver().Len(),
		Ticks:     ticks,
		Elapsed:   elapsed,
	}
	if elapsed > 0 {
		res.TicksPerSec = float64(ticks) / elapsed.Seconds()
	}
	return res, nil
}
