package dsp

import (
	"errors"
	"math/cmplx"
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

// noise returns seeded complex Gaussian noise.
func noise(seed int64, n int) []complex64 {
	rng := rand.New(rand.NewSource(seed))
	out := make([]complex64, n)
	for i := range out {
		out[i] = complex(float32(rng.NormFloat64()), float32(rng.NormFloat64()))
	}
	return out
}

// directCorrelate evaluates cor[k] = Σ x[n+k-maxlag]·conj(y[n]) term by term.
func directCorrelate(x, y []complex64, maxlag int) []complex128 {
	out := make([]complex128, 2*maxlag)
	for k := range out {
		var acc complex128
		for n := range y {
			j := n + k - maxlag
			if j < 0 || j >= len(x) {
				continue
			}
			acc += complex128(x[j]) * cmplx.Conj(complex128(y[n]))
		}
		out[k] = acc
	}
	return out
}

func TestCorrelateMatchesDirect(t *testing.T) {
	tests := []struct {
		name   string
		n      int
		maxlag int
	}{
		{name: "power_of_two", n: 16, maxlag: 8},
		{name: "odd_length", n: 21, maxlag: 10},
		{name: "full_lag", n: 12, maxlag: 12},
		{name: "short_window", n: 40, maxlag: 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x := noise(1, tt.n)
			y := noise(2, tt.n)
			got, err := Correlate(x, y, tt.maxlag)
			if err != nil {
				t.Fatalf("correlate: %v", err)
			}
			want := directCorrelate(x, y, tt.maxlag)
			if diff := cmp.Diff(want, got, cmpopts.EquateApprox(0, 1e-9)); diff != "" {
				t.Fatalf("correlation mismatch (-direct +fft):\n%s", diff)
			}
		})
	}
}

func TestCorrelateInvalidInput(t *testing.T) {
	x := noise(3, 32)
	small := NewCorrelator(nil)
	small.MaxSize = 32

	tests := []struct {
		name   string
		c      *Correlator
		x, y   []complex64
		maxlag int
	}{
		{name: "zero_lag", c: NewCorrelator(nil), x: x, y: x, maxlag: 0},
		{name: "negative_lag", c: NewCorrelator(nil), x: x, y: x, maxlag: -1},
		{name: "empty", c: NewCorrelator(nil), x: nil, y: x, maxlag: 4},
		{name: "lag_exceeds_length", c: NewCorrelator(nil), x: x, y: x, maxlag: 33},
		{name: "size_limit", c: small, x: x, y: x, maxlag: 16},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.c.Correlate(tt.x, tt.y, tt.maxlag); !errors.Is(err, ErrInvalidInput) {
				t.Fatalf("expected ErrInvalidInput, got %v", err)
			}
		})
	}
}

func TestNextPow2(t *testing.T) {
	for in, want := range map[int]int{1: 1, 2: 2, 3: 4, 17: 32, 1024: 1024, 1025: 2048} {
		if got := nextPow2(in); got != want {
			t.Fatalf("nextPow2(%d) = %d, want %d", in, got, want)
		}
	}
}
