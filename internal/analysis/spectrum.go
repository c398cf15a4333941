package analysis

import (
	"errors"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/stat"
)

// ErrTooShort is returned when a series has too few samples to analyse.
var ErrTooShort = errors.New("analysis: series too short")

const minSamples = 4

// Peak is one bin of a power spectrum.
type Peak struct {
	Frequency float64 // Hz
	Period    float64 // seconds, +Inf for the DC bin
	Power     float64
}

// PowerSpectrum returns the one-sided spectrum of values sampled every dt
// seconds. The mean is removed first so bin 0 carries no offset.
func PowerSpectrum(values []float64, dt float64) ([]Peak, error) {
	if len(values) < minSamples {
		return nil, ErrTooShort
	}
	if !(dt > 0) {
		return nil, errors.New("analysis: dt must be positive")
	}

	mean := stat.Mean(values, nil)
	centred := make([]float64, len(values))
	for i, v := range values {
		centred[i] = v - mean
	}

	fft := fourier.NewFFT(len(centred))
	coeff := fft.Coefficients(nil, centred)

	peaks := make([]Peak, len(coeff))
	for i, c := range coeff {
		f := fft.Freq(i) / dt
		period := math.Inf(1)
		if f > 0 {
			period = 1 / f
		}
		mag := cmplx.Abs(c)
		peaks[i] = Peak{Frequency: f, Period: period, Power: mag * mag}
	}
	return peaks, nil
}

// DominantFrequency returns the strongest non-DC bin.
func DominantFrequency(values []float64, dt float64) (Peak, error) {
	peaks, err := PowerSpectrum(values, dt)
	if err != nil {
		return Peak{}, err
	}
	best := peaks[1]
	for _, p := range peaks[2:] {
		if p.Power > best.Power {
			best = p
		}
	}
	return best, nil
}

// SettleIndex returns the first index after which every sample stays within
// tol of the final value, relative to the series' range. It returns -1 when
// the series is empty.
func SettleIndex(values []float64, tol float64) int {
	if len(values) == 0 {
		return -1
	}
	lo, hi := values[0], values[0]
	for _, v := range values {
		lo, hi = math.Min(lo, v), math.Max(hi, v)
	}
	span := hi - lo
	if span == 0 {
		return 0
	}

	final := values[len(values)-1]
	band := tol * span
	for i := len(values) - 1; i >= 0; i-- {
		if math.Abs(values[i]-final) > band {
			return i + 1
		}
	}
	return 0
}
