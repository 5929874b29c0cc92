package dsp

import (
	"math/cmplx"
	"sync"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/floats"
)

// CachedDSP pre-computes and caches expensive DSP resources to improve performance.
// It stores Hamming windows (with their sums) and FFT plans keyed by length so
// that repeated spectra and correlations of the same size reuse them.
//
// A CachedDSP is safe for concurrent use. FFT plans carry internal work
// buffers, so each plan is guarded by its own mutex.
type CachedDSP struct {
	mu      sync.RWMutex
	windows map[int]cachedWindow
	plans   map[int]*fftPlan
}

type cachedWindow struct {
	coeffs []float64
	sum    float64 // pre-computed sum for amplitude normalization
}

type fftPlan struct {
	mu  sync.Mutex
	fft *fourier.CmplxFFT
}

// NewCachedDSP creates an empty cache. sizes are warmed up eagerly so the
// first call for those lengths does not pay for plan construction.
func NewCachedDSP(sizes ...int) *CachedDSP {
	c := &CachedDSP{
		windows: make(map[int]cachedWindow),
		plans:   make(map[int]*fftPlan),
	}
	for _, n := range sizes {
		if n > 0 {
			c.window(n)
			c.plan(n)
		}
	}
	return c
}

var defaultCache = NewCachedDSP()

func (c *CachedDSP) window(n int) cachedWindow {
	c.mu.RLock()
	w, ok := c.windows[n]
	c.mu.RUnlock()
	if ok {
		return w
	}

	coeffs := Hamming(n)
	w = cachedWindow{coeffs: coeffs, sum: floats.Sum(coeffs)}

	c.mu.Lock()
	if existing, ok := c.windows[n]; ok {
		w = existing
	} else {
		c.windows[n] = w
	}
	c.mu.Unlock()
	return w
}

func (c *CachedDSP) plan(n int) *fftPlan {
	c.mu.RLock()
	p, ok := c.plans[n]
	c.mu.RUnlock()
	if ok {
		return p
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok = c.plans[n]; ok {
		return p
	}
	p = &fftPlan{fft: fourier.NewCmplxFFT(n)}
	c.plans[n] = p
	return p
}

// forward computes the unnormalized DFT of seq into dst (allocated when nil).
func (c *CachedDSP) forward(dst, seq []complex128) []complex128 {
	p := c.plan(len(seq))
	if dst == nil {
		dst = make([]complex128, len(seq))
	}
	p.mu.Lock()
	dst = p.fft.Coefficients(dst, seq)
	p.mu.Unlock()
	return dst
}

// inverse computes the 1/n normalised inverse DFT of coeff, matching
// numpy.fft.ifft. It is built on the forward transform through
// ifft(X) = conj(fft(conj(X)))/n. coeff is used as scratch.
func (c *CachedDSP) inverse(dst, coeff []complex128) []complex128 {
	n := len(coeff)
	for i, v := range coeff {
		coeff[i] = cmplx.Conj(v)
	}
	dst = c.forward(dst, coeff)
	scale := 1 / float64(n)
	for i, v := range dst {
		dst[i] = complex(real(v)*scale, -imag(v)*scale)
	}
	return dst
}
