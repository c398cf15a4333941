package metrics

import (
	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/stat"

	"github.com/san-kum/particlesim/internal/particle"
	"github.com/san-kum/particlesim/internal/sim"
)

// KineticEnergy averages the total kinetic energy over observed frames.
type KineticEnergy struct {
	name    string
	samples int
	total   float64
	last    float64
}

func NewKineticEnergy() *KineticEnergy {
	return &KineticEnergy{name: "kinetic_energy"}
}

func (e *KineticEnergy) Name() string { return e.name }

func (e *KineticEnergy) Observe(f sim.Frame) {
	e.last = Kinetic(f.Particles, f.SubDt)
	e.total += e.last
	e.samples++
}

func (e *KineticEnergy) Value() float64 {
	if e.samples == 0 {
		return 0
	}
	return e.total / float64(e.samples)
}

func (e *KineticEnergy) Last() float64 { return e.last }

func (e *KineticEnergy) Reset() {
	e.total = 0
	e.last = 0
	e.samples = 0
}

// Kinetic returns sum(0.5 * m * |v|^2) with velocities taken over dt.
func Kinetic(v particle.View, dt float64) float64 {
	sum := 0.0
	for i := 0; i < v.Len(); i++ {
		sum += 0.5 * v.Mass(i) * r2.Norm2(v.Velocity(i, dt))
	}
	return sum
}

// speeds shares one buffer between the two speed statistics.
type speeds struct {
	buf []float64
}

func (s *speeds) fill(f sim.Frame) []float64 {
	v := f.Particles
	s.buf = s.buf[:0]
	for i := 0; i < v.Len(); i++ {
		s.buf = append(s.buf, r2.Norm(v.Velocity(i, f.SubDt)))
	}
	return s.buf
}

// MeanSpeed reports the mean particle speed of the latest frame.
type MeanSpeed struct {
	speeds
	last float64
}

func NewMeanSpeed() *MeanSpeed { return &MeanSpeed{} }

func (m *MeanSpeed) Name() string { return "mean_speed" }

func (m *MeanSpeed) Observe(f sim.Frame) {
	buf := m.fill(f)
	if len(buf) == 0 {
		m.last = 0
		return
	}
	m.last = stat.Mean(buf, nil)
}

func (m *MeanSpeed) Value() float64 { return m.last }
func (m *MeanSpeed) Last() float64  { return m.last }
func (m *MeanSpeed) Reset()         { m.last = 0 }

// SpeedStdDev reports the speed standard deviation of the latest frame.
type SpeedStdDev struct {
	speeds
	last float64
}

func NewSpeedStdDev() *SpeedStdDev { return &SpeedStdDev{} }

func (m *SpeedStdDev) Name() string { return "speed_stddev" }

func (m *SpeedStdDev) Observe(f sim.Frame) {
	buf := m.fill(f)
	if len(buf) < 2 {
		m.last = 0
		return
	}
	_, m.last = stat.MeanStdDev(buf, nil)
}

func (m *SpeedStdDev) Value() float64 { return m.last }
func (m *SpeedStdDev) Last() float64  { return m.last }
func (m *SpeedStdDev) Reset()         { m.last = 0 }
