package solver

import (
	"log/slog"
	"time"
)

// Stats describes the solver's work so far. Gridded and Dropped refer to the
// last sub-step's grid rebuild.
type Stats struct {
	Updates    int
	SubSteps   int
	Particles  int
	Gridded    int
	Dropped    int
	LastUpdate time.Duration
}

func (s *Solver) Stats() Stats { return s.stats }

// LogValue implements slog.LogValuer.
func (s Stats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("updates", s.Updates),
		slog.Int("sub_steps", s.SubSteps),
		slog.Int("particles", s.Particles),
		slog.Int("gridded", s.Gridded),
		slog.Int("dropped", s.Dropped),
		slog.Int64("last_update_us", s.LastUpdate.Microseconds()),
	)
}
