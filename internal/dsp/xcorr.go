package dsp

import "math/cmplx"

// DefaultMaxCorrelationSize bounds the zero-padded FFT length used by
// Correlate. A lag window that would need a larger transform is rejected.
const DefaultMaxCorrelationSize = 1 << 24

// Correlator computes FFT-based cross-correlations.
type Correlator struct {
	// MaxSize is the largest padded FFT length accepted; zero selects
	// DefaultMaxCorrelationSize.
	MaxSize int

	cache *CachedDSP
}

// NewCorrelator returns a correlator backed by cache (nil selects the
// package-wide cache).
func NewCorrelator(cache *CachedDSP) *Correlator {
	if cache == nil {
		cache = defaultCache
	}
	return &Correlator{MaxSize: DefaultMaxCorrelationSize, cache: cache}
}

// Correlate is Correlator.Correlate on a default correlator.
func Correlate(x, y []complex64, maxlag int) ([]complex128, error) {
	return NewCorrelator(nil).Correlate(x, y, maxlag)
}

// Correlate returns the 2*maxlag central lags of the circular cross
// correlation of x against y:
//
//	R = ifft(fft(x') * conj(fft(y')))[0 : 2*maxlag]
//
// where x' is x left-padded by maxlag zeros and both sequences are
// right-padded to the next power of two M >= max(len(x), len(y)) + maxlag.
// Index maxlag of the result corresponds to zero relative delay.
func (c *Correlator) Correlate(x, y []complex64, maxlag int) ([]complex128, error) {
	if maxlag <= 0 {
		return nil, invalidf("maxlag must be positive, got %d", maxlag)
	}
	if len(x) == 0 || len(y) == 0 {
		return nil, invalidf("correlation of empty buffer (len x=%d, len y=%d)", len(x), len(y))
	}
	n := len(x)
	if len(y) > n {
		n = len(y)
	}
	if maxlag > n {
		return nil, invalidf("maxlag %d exceeds buffer length %d", maxlag, n)
	}
	limit := c.MaxSize
	if limit <= 0 {
		limit = DefaultMaxCorrelationSize
	}
	if n+maxlag > limit {
		return nil, invalidf("maxlag %d with %d samples exceeds correlation size limit %d", maxlag, n, limit)
	}
	m := nextPow2(n + maxlag)
	if m > limit {
		return nil, invalidf("padded correlation length %d exceeds limit %d", m, limit)
	}

	cache := c.cache
	if cache == nil {
		cache = defaultCache
	}

	padX := make([]complex128, m)
	for i, v := range x {
		padX[maxlag+i] = complex128(v)
	}
	padY := make([]complex128, m)
	for i, v := range y {
		padY[i] = complex128(v)
	}

	pre := cache.forward(nil, padX)
	post := cache.forward(nil, padY)
	for i := range pre {
		pre[i] *= cmplx.Conj(post[i])
	}
	cor := cache.inverse(padX, pre)

	out := make([]complex128, 2*maxlag)
	copy(out, cor[:2*maxlag])
	return out, nil
}

// nextPow2 returns the smallest power of two >= n (n >= 1).
func nextPow2(n int) int {
	m := 1
	for m < n {
		m <<= 1
	}
	return m
}
