package dsp

import (
	"math"
	"math/cmplx"
)

// DefaultFullScale is 2^11, the full-scale reference of a signed 12-bit ADC
// such as the AD9361 in the Pluto.
const DefaultFullScale = 2048.0

// Spectrum converts sample buffers to Hamming-windowed, FFT-shifted power
// spectra in dBFS.
type Spectrum struct {
	// FullScale is the converter amplitude that maps to 0 dBFS.
	FullScale float64

	cache *CachedDSP
}

// NewSpectrum returns a converter with the given full-scale reference. A nil
// cache selects the package-wide cache.
func NewSpectrum(fullScale float64, cache *CachedDSP) *Spectrum {
	if cache == nil {
		cache = defaultCache
	}
	return &Spectrum{FullScale: fullScale, cache: cache}
}

// ToDBFS converts samples to dBFS using DefaultFullScale.
func ToDBFS(samples []complex64) ([]float64, error) {
	return NewSpectrum(DefaultFullScale, nil).DBFS(samples)
}

// DBFS returns the dBFS magnitude spectrum of samples ordered from the most
// negative to the most positive frequency. Empty bins are -Inf.
func (s *Spectrum) DBFS(samples []complex64) ([]float64, error) {
	_, db, err := s.Transform(samples)
	return db, err
}

// Transform is DBFS but also returns the shifted, window-normalised FFT.
func (s *Spectrum) Transform(samples []complex64) ([]complex128, []float64, error) {
	if err := s.validate(len(samples)); err != nil {
		return nil, nil, err
	}
	w := s.cacheOrDefault().window(len(samples))
	windowed := make([]complex128, len(samples))
	applyWindowTo(windowed, samples, w.coeffs)
	return s.finish(windowed, w.sum)
}

// transform128 runs the same pipeline on a complex128 buffer. windowed is
// scratch space of the same length and db receives the result.
func (s *Spectrum) transform128(db []float64, samples, windowed, coeffs []complex128) error {
	if err := s.validate(len(samples)); err != nil {
		return err
	}
	cache := s.cacheOrDefault()
	w := cache.window(len(samples))
	applyWindow128To(windowed, samples, w.coeffs)
	cache.forward(coeffs, windowed)
	shiftInto(windowed, coeffs)
	toDBFS(db, windowed, w.sum, s.FullScale)
	return nil
}

func (s *Spectrum) finish(windowed []complex128, windowSum float64) ([]complex128, []float64, error) {
	fft := s.cacheOrDefault().forward(nil, windowed)
	shifted := FFTShift(fft)
	db := make([]float64, len(shifted))
	toDBFS(db, shifted, windowSum, s.FullScale)
	for i := range shifted {
		shifted[i] /= complex(windowSum, 0)
	}
	return shifted, db, nil
}

func (s *Spectrum) validate(n int) error {
	if n == 0 {
		return invalidf("spectrum of empty buffer")
	}
	if !(s.FullScale > 0) || math.IsInf(s.FullScale, 0) {
		return invalidf("full scale must be positive and finite, got %v", s.FullScale)
	}
	return nil
}

func (s *Spectrum) cacheOrDefault() *CachedDSP {
	if s.cache == nil {
		return defaultCache
	}
	return s.cache
}

func toDBFS(dst []float64, shifted []complex128, windowSum, fullScale float64) {
	for i, v := range shifted {
		mag := cmplx.Abs(v) / windowSum
		if mag == 0 {
			dst[i] = math.Inf(-1)
			continue
		}
		dst[i] = 20 * math.Log10(mag/fullScale)
	}
}

// FFTShift returns the FFT output shifted so that DC is centered, following
// numpy.fft.fftshift for both even and odd lengths. The input is not modified.
func FFTShift(data []complex128) []complex128 {
	out := make([]complex128, len(data))
	shiftInto(out, data)
	return out
}

// FFTShiftFloat is FFTShift for real-valued sequences.
func FFTShiftFloat(data []float64) []float64 {
	n := len(data)
	out := make([]float64, n)
	if n == 0 {
		return out
	}
	split := (n + 1) / 2
	copy(out, data[split:])
	copy(out[n-split:], data[:split])
	return out
}

func shiftInto(dst, src []complex128) {
	n := len(src)
	if n == 0 {
		return
	}
	split := (n + 1) / 2
	copy(dst, src[split:])
	copy(dst[n-split:], src[:split])
}
