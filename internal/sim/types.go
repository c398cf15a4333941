package sim

import (
	"time"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/san-kum/particlesim/internal/particle"
	"github.com/san-kum/particlesim/internal/solver"
)

// Frame is what metrics and observers see after each tick. Particles is only
// valid until the next tick.
type Frame struct {
	Tick      int
	Time      float64
	SubDt     float64
	Particles particle.View
	Lo, Hi    r2.Vec
}

type Metric interface {
	Name() string
	Observe(f Frame)
	Value() float64
	Reset()
}

// Sampler is implemented by metrics whose per-tick reading differs from
// their aggregate Value. Series record Last when available.
type Sampler interface {
	Last() float64
}

type Observer interface {
	OnFrame(f Frame)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(f Frame)

func (fn ObserverFunc) OnFrame(f Frame) { fn(f) }

type Config struct {
	Dt    float64
	Ticks int
}

type Result struct {
	Times     []float64
	Series    map[string][]float64
	Metrics   map[string]float64
	Particles int
	Ticks     int
	Wall      time.Duration
	Stats     solver.Stats
}
