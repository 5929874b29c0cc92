package dsp

import (
	"math"
	"math/cmplx"
)

// DefaultCalibrationAverages is the number of acquisitions averaged by a
// recalibration.
const DefaultCalibrationAverages = 15

// Calibration holds the per-channel corrections that map every channel onto
// channel 0. Index 0 is always the identity.
type Calibration struct {
	PhaseDeg  []float64
	Delay     []int
	Amplitude []float64
}

// NewCalibration returns the identity calibration for n channels.
func NewCalibration(n int) Calibration {
	cal := Calibration{
		PhaseDeg:  make([]float64, n),
		Delay:     make([]int, n),
		Amplitude: make([]float64, n),
	}
	for i := range cal.Amplitude {
		cal.Amplitude[i] = 1
	}
	return cal
}

// EstimateCalibration estimates delay, phase and amplitude of every channel
// against channel 0.
func EstimateCalibration(channels [][]complex64, opts EstimatorOptions, cache *CachedDSP) (Calibration, error) {
	if len(channels) < 2 {
		return Calibration{}, invalidf("calibration needs at least 2 channels, got %d", len(channels))
	}
	est := NewEstimator(opts, cache)
	cal := NewCalibration(len(channels))
	for c := 1; c < len(channels); c++ {
		d, err := est.Estimate(channels[0], channels[c])
		if err != nil {
			return Calibration{}, err
		}
		cal.PhaseDeg[c] = d.PhaseDeg
		cal.Delay[c] = d.Delay
		cal.Amplitude[c] = d.Amplitude
	}
	return cal, nil
}

// AverageCalibrations merges several estimates of the same array. Phases are
// averaged as unit vectors, delays are the rounded mean and amplitudes the
// arithmetic mean.
func AverageCalibrations(cals []Calibration) (Calibration, error) {
	if len(cals) == 0 {
		return Calibration{}, invalidf("no calibrations to average")
	}
	n := cals[0].Channels()
	for _, cal := range cals {
		if err := cal.Validate(n); err != nil {
			return Calibration{}, err
		}
	}

	out := NewCalibration(n)
	k := float64(len(cals))
	for c := 0; c < n; c++ {
		var phasor complex128
		var delay, amp float64
		for _, cal := range cals {
			phasor += cmplx.Rect(1, cal.PhaseDeg[c]*degToRad)
			delay += float64(cal.Delay[c])
			amp += cal.Amplitude[c]
		}
		if phasor != 0 {
			out.PhaseDeg[c] = cmplx.Phase(phasor) * radToDeg
		}
		out.Delay[c] = int(math.Round(delay / k))
		out.Amplitude[c] = amp / k
	}
	return out, nil
}

// Channels returns the number of channels the calibration covers.
func (c Calibration) Channels() int { return len(c.PhaseDeg) }

// Validate checks that c covers exactly n channels with usable values.
func (c Calibration) Validate(n int) error {
	if len(c.PhaseDeg) != n || len(c.Delay) != n || len(c.Amplitude) != n {
		return invalidf("calibration covers %d/%d/%d channels, want %d",
			len(c.PhaseDeg), len(c.Delay), len(c.Amplitude), n)
	}
	for i := 0; i < n; i++ {
		if math.IsNaN(c.PhaseDeg[i]) || math.IsInf(c.PhaseDeg[i], 0) {
			return invalidf("channel %d phase %v is not finite", i, c.PhaseDeg[i])
		}
		if !(c.Amplitude[i] > 0) || math.IsInf(c.Amplitude[i], 0) {
			return invalidf("channel %d amplitude %v must be positive", i, c.Amplitude[i])
		}
	}
	return nil
}

// Clone returns a deep copy.
func (c Calibration) Clone() Calibration {
	return Calibration{
		PhaseDeg:  append([]float64(nil), c.PhaseDeg...),
		Delay:     append([]int(nil), c.Delay...),
		Amplitude: append([]float64(nil), c.Amplitude...),
	}
}

// Offsets returns the per-channel phase bias to hand to Sweep.
func (c Calibration) Offsets() []float64 {
	return append([]float64(nil), c.PhaseDeg...)
}

// Apply aligns every channel by its delay and multiplies it by its
// amplitude and phase correction. The inputs are not modified.
func (c Calibration) Apply(channels [][]complex64) ([][]complex64, error) {
	if err := c.Validate(len(channels)); err != nil {
		return nil, err
	}
	out := make([][]complex64, len(channels))
	for i, ch := range channels {
		aligned, err := Align(ch, c.Delay[i])
		if err != nil {
			return nil, err
		}
		corr := complex64(complex(c.Amplitude[i], 0) * cmplx.Rect(1, c.PhaseDeg[i]*degToRad))
		if corr != 1 {
			for j := range aligned {
				aligned[j] *= corr
			}
		}
		out[i] = aligned
	}
	return out, nil
}
