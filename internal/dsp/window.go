package dsp

import "math"

// Hamming returns a Hamming window of length n, matching numpy.hamming.
// If n is zero or negative, an empty slice is returned.
func Hamming(n int) []float64 {
	if n <= 0 {
		return []float64{}
	}
	if n == 1 {
		return []float64{1}
	}
	win := make([]float64, n)
	for i := 0; i < n; i++ {
		win[i] = 0.54 - 0.46*math.Cos(2*math.Pi*float64(i)/float64(n-1))
	}
	return win
}

// ApplyWindow multiplies the input complex samples with the provided window.
// The window length must match the input length.
func ApplyWindow(samples []complex64, window []float64) []complex128 {
	if len(samples) != len(window) {
		return []complex128{}
	}
	out := make([]complex128, len(samples))
	applyWindowTo(out, samples, window)
	return out
}

func applyWindowTo(dst []complex128, samples []complex64, window []float64) {
	for i, v := range samples {
		dst[i] = complex(float64(real(v))*window[i], float64(imag(v))*window[i])
	}
}

func applyWindow128To(dst, samples []complex128, window []float64) {
	for i, v := range samples {
		dst[i] = complex(real(v)*window[i], imag(v)*window[i])
	}
}
