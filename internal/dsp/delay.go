package dsp

import (
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// EstimatorOptions tunes delay/phase estimation.
type EstimatorOptions struct {
	// AmplitudeEqualize adds the sqrt(var(ref)/var(test)) amplitude term to
	// the correction. Off means a pure phase correction.
	AmplitudeEqualize bool
	// MaxLag overrides the correlation half-window. Zero selects
	// floor(len(reference)/2).
	MaxLag int
}

// DelayEstimate describes how a test channel relates to the reference.
type DelayEstimate struct {
	// Delay is the number of samples the test channel lags the reference.
	// Negative values mean the test channel leads.
	Delay int
	// PhaseDeg is the rotation in (-180, 180] that maps the test channel
	// onto the reference phase.
	PhaseDeg float64
	// Gain is the correlation peak normalised by the test channel RMS.
	Gain complex128
	// Amplitude is the equalisation factor (1 unless AmplitudeEqualize).
	Amplitude float64
	// PeakIndex is the lag index of the correlation peak.
	PeakIndex int
}

// Correction is the complex factor that aligns the test channel's
// amplitude and phase onto the reference.
func (d DelayEstimate) Correction() complex128 {
	return complex(d.Amplitude, 0) * cmplx.Rect(1, d.PhaseDeg*degToRad)
}

// Estimator estimates integer delay and phase offset between channel pairs.
type Estimator struct {
	Options    EstimatorOptions
	correlator *Correlator
}

// NewEstimator builds an estimator on top of cache (nil selects the
// package-wide cache).
func NewEstimator(opts EstimatorOptions, cache *CachedDSP) *Estimator {
	return &Estimator{Options: opts, correlator: NewCorrelator(cache)}
}

// Estimate runs a default Estimator.
func Estimate(reference, test []complex64) (DelayEstimate, error) {
	return NewEstimator(EstimatorOptions{}, nil).Estimate(reference, test)
}

// Estimate cross-correlates test against reference and reports the delay at
// the correlation peak together with the phase of the peak.
func (e *Estimator) Estimate(reference, test []complex64) (DelayEstimate, error) {
	if len(reference) < 2 {
		return DelayEstimate{}, invalidf("reference needs at least 2 samples, got %d", len(reference))
	}
	if len(test) != len(reference) {
		return DelayEstimate{}, invalidf("channel length mismatch: reference %d, test %d", len(reference), len(test))
	}
	if rootMeanSquare(reference) == 0 {
		return DelayEstimate{}, invalidf("reference channel has no energy")
	}
	rms := rootMeanSquare(test)
	if rms == 0 {
		return DelayEstimate{}, invalidf("test channel has no energy")
	}

	amplitude := 1.0
	if e.Options.AmplitudeEqualize {
		vt := complexPopVariance(test)
		if vt == 0 {
			return DelayEstimate{}, invalidf("test channel has zero variance")
		}
		amplitude = math.Sqrt(complexPopVariance(reference) / vt)
	}

	maxlag := e.Options.MaxLag
	if maxlag == 0 {
		maxlag = len(reference) / 2
	}
	corr, err := e.correlator.Correlate(reference, test, maxlag)
	if err != nil {
		return DelayEstimate{}, err
	}

	mags := make([]float64, len(corr))
	for i, v := range corr {
		mags[i] = cmplx.Abs(v)
	}
	peak := floats.MaxIdx(mags)

	gain := corr[peak] / complex(rms, 0)
	return DelayEstimate{
		Delay:     len(corr)/2 - peak,
		PhaseDeg:  cmplx.Phase(gain) / degToRad,
		Gain:      gain,
		Amplitude: amplitude,
		PeakIndex: peak,
	}, nil
}

func rootMeanSquare(samples []complex64) float64 {
	if len(samples) == 0 {
		return 0
	}
	var acc float64
	for _, v := range samples {
		re, im := float64(real(v)), float64(imag(v))
		acc += re*re + im*im
	}
	return math.Sqrt(acc / float64(len(samples)))
}

// complexPopVariance is numpy.var for complex input: the population
// variance of the real part plus that of the imaginary part.
func complexPopVariance(samples []complex64) float64 {
	re := make([]float64, len(samples))
	im := make([]float64, len(samples))
	for i, v := range samples {
		re[i] = float64(real(v))
		im[i] = float64(imag(v))
	}
	return stat.PopVariance(re, nil) + stat.PopVariance(im, nil)
}
