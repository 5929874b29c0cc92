package dsp

import (
	"math"
	"math/cmplx"
)

const (
	// DefaultMonopulseDeadbandDeg is the monopulse phase below which the
	// tracker holds its steering phase.
	DefaultMonopulseDeadbandDeg = 0.5
	// DefaultTrackStepDeg is the phase increment of one tracking step.
	DefaultTrackStepDeg = 1.0
)

// MonopulsePhase correlates sum and delta FFT bins over band and returns the
// resulting phase in radians: arg(Σ conj(S)·Δ). It returns 0 for an empty
// or out-of-range band.
func MonopulsePhase(sumFFT, deltaFFT []complex128, band Band) float64 {
	if band.Validate(min(len(sumFFT), len(deltaFFT))) != nil {
		return 0
	}
	var corr complex128
	for i := band.Start; i < band.End; i++ {
		corr += cmplx.Conj(sumFFT[i]) * deltaFFT[i]
	}
	return cmplx.Phase(corr)
}

// MonopulsePhaseRatio is an alternative estimator: the phase of the
// |S|-weighted mean of Δ_k/S_k. Bins with negligible |S_k| are skipped.
func MonopulsePhaseRatio(sumFFT, deltaFFT []complex128, band Band) float64 {
	if band.Validate(min(len(sumFFT), len(deltaFFT))) != nil {
		return 0
	}
	var acc complex128
	var wSum float64
	for i := band.Start; i < band.End; i++ {
		sv := sumFFT[i]
		mag := cmplx.Abs(sv)
		if mag < 1e-12 {
			continue
		}
		acc += deltaFFT[i] / sv * complex(mag, 0)
		wSum += mag
	}
	if wSum == 0 {
		return 0
	}
	return cmplx.Phase(acc / complex(wSum, 0))
}

// MonopulseConfig parameterises a two-channel monopulse tracker.
type MonopulseConfig struct {
	Band        Band
	StepDeg     float64 // zero selects DefaultTrackStepDeg
	DeadbandDeg float64 // zero selects DefaultMonopulseDeadbandDeg
	// Ratio selects MonopulsePhaseRatio instead of MonopulsePhase.
	Ratio     bool
	FullScale float64 // zero selects DefaultFullScale
}

// MonopulseUpdate reports one tracking step.
type MonopulseUpdate struct {
	PhaseDeg     float64 // steering phase after the step
	PeakDBFS     float64 // in-band peak of the sum channel
	MonoPhaseDeg float64 // sum/delta phase that drove the step
	SNRDB        float64
	PeakBin      int
}

// MonopulseTracker nudges a steering phase towards the boresight of a
// two-element array using the sign of the sum/delta phase.
type MonopulseTracker struct {
	cfg      MonopulseConfig
	spectrum *Spectrum
}

// NewMonopulseTracker returns a tracker. A nil cache selects the package-wide
// cache.
func NewMonopulseTracker(cfg MonopulseConfig, cache *CachedDSP) *MonopulseTracker {
	if cfg.StepDeg == 0 {
		cfg.StepDeg = DefaultTrackStepDeg
	}
	if cfg.DeadbandDeg == 0 {
		cfg.DeadbandDeg = DefaultMonopulseDeadbandDeg
	}
	if cfg.FullScale == 0 {
		cfg.FullScale = DefaultFullScale
	}
	return &MonopulseTracker{cfg: cfg, spectrum: NewSpectrum(cfg.FullScale, cache)}
}

// Step steers rx1 by phaseDeg+offsetDeg, forms the sum and delta beams with
// rx0 and moves phaseDeg one step in the direction the monopulse phase
// points. Inside the deadband the phase is held.
func (t *MonopulseTracker) Step(rx0, rx1 []complex64, phaseDeg, offsetDeg float64) (MonopulseUpdate, error) {
	n := len(rx0)
	if n == 0 || len(rx1) != n {
		return MonopulseUpdate{}, invalidf("monopulse needs two equal non-empty channels, got %d and %d samples", len(rx0), len(rx1))
	}
	if err := t.cfg.Band.Validate(n); err != nil {
		return MonopulseUpdate{}, err
	}

	sumBuf := make([]complex64, n)
	deltaBuf := make([]complex64, n)
	rot := complex64(cmplx.Rect(1, (phaseDeg+offsetDeg)*degToRad))
	for i := range rx0 {
		steered := rx1[i] * rot
		sumBuf[i] = rx0[i] + steered
		deltaBuf[i] = rx0[i] - steered
	}

	sumFFT, sumDB, err := t.spectrum.Transform(sumBuf)
	if err != nil {
		return MonopulseUpdate{}, err
	}
	deltaFFT, _, err := t.spectrum.Transform(deltaBuf)
	if err != nil {
		return MonopulseUpdate{}, err
	}

	var mono float64
	if t.cfg.Ratio {
		mono = MonopulsePhaseRatio(sumFFT, deltaFFT, t.cfg.Band)
	} else {
		mono = MonopulsePhase(sumFFT, deltaFFT, t.cfg.Band)
	}

	peak, bin := peakInBand(sumDB, t.cfg.Band)
	deadband := t.cfg.DeadbandDeg * degToRad
	next := phaseDeg
	switch {
	case mono > deadband:
		next += t.cfg.StepDeg
	case mono < -deadband:
		next -= t.cfg.StepDeg
	}
	if math.IsInf(peak, -1) {
		next = phaseDeg
	}

	return MonopulseUpdate{
		PhaseDeg:     next,
		PeakDBFS:     peak,
		MonoPhaseDeg: mono * radToDeg,
		SNRDB:        estimateSNR(sumDB, peak, bin, t.cfg.Band),
		PeakBin:      bin,
	}, nil
}
