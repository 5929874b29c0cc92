package dsp

import (
	"errors"
	"math"
	"math/cmplx"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// rotatedArray returns n-sample snapshots where channel c is channel 0 rotated
// by rot(c) degrees.
func rotatedArray(n, channels int, rot func(c int) float64) [][]complex64 {
	base, _ := tonePair(n, 200e3, 2e6, 0)
	out := make([][]complex64, channels)
	for c := range out {
		r := complex64(cmplx.Rect(1, rot(c)*degToRad))
		ch := make([]complex64, n)
		for i, v := range base {
			ch[i] = v * r
		}
		out[c] = ch
	}
	return out
}

func testSweepConfig(n int) SweepConfig {
	return SweepConfig{
		Band:     SignalBand(n, 2e6, 200e3),
		Geometry: NewGeometry(2.3e9, 0.5),
		Workers:  1,
	}
}

func TestPhaseGridValues(t *testing.T) {
	phases, err := DefaultPhaseGrid().Values()
	if err != nil {
		t.Fatalf("values: %v", err)
	}
	if len(phases) != 180 {
		t.Fatalf("expected 180 candidates, got %d", len(phases))
	}
	if phases[0] != -180 || phases[len(phases)-1] != 178 {
		t.Fatalf("unexpected grid ends %v..%v", phases[0], phases[len(phases)-1])
	}

	desc, err := PhaseGrid{StartDeg: 10, StopDeg: 0, StepDeg: -3}.Values()
	if err != nil {
		t.Fatalf("descending grid: %v", err)
	}
	if diff := cmp.Diff([]float64{10, 7, 4, 1}, desc); diff != "" {
		t.Fatalf("descending grid mismatch (-want +got):\n%s", diff)
	}

	for _, g := range []PhaseGrid{
		{StartDeg: 0, StopDeg: 10, StepDeg: 0},
		{StartDeg: 0, StopDeg: 0, StepDeg: 1},
		{StartDeg: 0, StopDeg: 10, StepDeg: -1},
		{StartDeg: 0, StopDeg: 10, StepDeg: math.NaN()},
	} {
		if _, err := g.Values(); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("grid %+v: expected ErrInvalidInput, got %v", g, err)
		}
	}
}

func TestSweepFindsRotation(t *testing.T) {
	const n = 1024
	channels := rotatedArray(n, 2, func(c int) float64 { return 40 * float64(c) })
	cfg := testSweepConfig(n)

	res, err := Sweep(channels, nil, cfg)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if res.PhaseDeg != -40 {
		t.Fatalf("expected best phase -40, got %v", res.PhaseDeg)
	}
	if !res.Detected {
		t.Fatalf("expected detection, contrast %.2f dB", res.ContrastDB)
	}
	wantTheta := SteeringAngle(-40, cfg.Geometry)
	if math.Abs(res.SteeringAngleDeg-wantTheta) > 1e-9 {
		t.Fatalf("steering angle %v, want %v", res.SteeringAngleDeg, wantTheta)
	}
	if res.PeakBin < cfg.Band.Start || res.PeakBin >= cfg.Band.End {
		t.Fatalf("peak bin %d outside band %+v", res.PeakBin, cfg.Band)
	}
	if res.SNRDB <= 0 {
		t.Fatalf("expected positive SNR, got %v", res.SNRDB)
	}

	zero := -1
	for i, p := range res.Phases {
		if p == 0 {
			zero = i
		}
	}
	if zero < 0 {
		t.Fatalf("grid does not contain 0")
	}
	// Coherent sum vs |1+exp(i40°)| is 20*log10(1/cos(20°)) ≈ 0.54 dB.
	if margin := res.PeakDBFS - res.Scores[zero]; margin < 0.4 {
		t.Fatalf("margin over 0° candidate only %.3f dB", margin)
	}
}

func TestSweepMultiChannel(t *testing.T) {
	const n = 512
	tests := []struct {
		name    string
		rot     func(c int) float64
		weights []int
		offsets []float64
		want    float64
	}{
		{name: "uniform_four", rot: func(c int) float64 { return 30 * float64(c) }, want: -30},
		{name: "custom_weights", rot: func(c int) float64 { return 20 * float64(2*c) }, weights: []int{0, 2, 4}, want: -20},
		{name: "calibrated_offsets", rot: func(c int) float64 { return float64(c) * 50 }, offsets: []float64{0, -10, -20}, want: -40},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			count := 3
			if tt.weights == nil && tt.offsets == nil {
				count = 4
			}
			cfg := testSweepConfig(n)
			cfg.Weights = tt.weights
			res, err := NewSweeper(cfg, nil).Sweep(rotatedArray(n, count, tt.rot), tt.offsets)
			if err != nil {
				t.Fatalf("sweep: %v", err)
			}
			if res.PhaseDeg != tt.want {
				t.Fatalf("expected %v got %v", tt.want, res.PhaseDeg)
			}
		})
	}
}

func TestSweepSilenceIsNotDetected(t *testing.T) {
	const n = 256
	channels := [][]complex64{make([]complex64, n), make([]complex64, n)}
	res, err := Sweep(channels, nil, testSweepConfig(n))
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if res.Detected {
		t.Fatalf("silence must not be detected: %+v", res)
	}
	if res.PhaseDeg != -180 {
		t.Fatalf("expected the first candidate to win a flat surface, got %v", res.PhaseDeg)
	}
}

func TestSweepDeterministic(t *testing.T) {
	const n = 512
	channels := rotatedArray(n, 3, func(c int) float64 { return -64 * float64(c) })
	serial := testSweepConfig(n)
	parallel := serial
	parallel.Workers = 4

	want, err := NewSweeper(serial, NewCachedDSP()).Sweep(channels, nil)
	if err != nil {
		t.Fatalf("serial sweep: %v", err)
	}
	for i := 0; i < 3; i++ {
		got, err := NewSweeper(parallel, nil).Sweep(channels, nil)
		if err != nil {
			t.Fatalf("parallel sweep: %v", err)
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Fatalf("parallel sweep differs (-serial +parallel):\n%s", diff)
		}
	}
}

func TestSweepInvalidInput(t *testing.T) {
	const n = 256
	good := rotatedArray(n, 2, func(int) float64 { return 0 })
	cfg := testSweepConfig(n)

	tests := []struct {
		name     string
		channels [][]complex64
		offsets  []float64
		mutate   func(*SweepConfig)
	}{
		{name: "single_channel", channels: good[:1]},
		{name: "length_mismatch", channels: [][]complex64{good[0], good[1][:n-1]}},
		{name: "empty", channels: [][]complex64{{}, {}}},
		{name: "offsets_length", channels: good, offsets: []float64{0}},
		{name: "weights_length", channels: good, mutate: func(c *SweepConfig) { c.Weights = []int{0, 1, 2} }},
		{name: "band_outside", channels: good, mutate: func(c *SweepConfig) { c.Band = Band{Start: 10, End: n + 1} }},
		{name: "empty_band", channels: good, mutate: func(c *SweepConfig) { c.Band = Band{Start: 10, End: 10} }},
		{name: "geometry", channels: good, mutate: func(c *SweepConfig) { c.Geometry = Geometry{} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := cfg
			if tt.mutate != nil {
				tt.mutate(&c)
			}
			if _, err := Sweep(tt.channels, tt.offsets, c); !errors.Is(err, ErrInvalidInput) {
				t.Fatalf("expected ErrInvalidInput, got %v", err)
			}
		})
	}
}

func BenchmarkSweepSerial(b *testing.B) {
	channels := rotatedArray(1024, 2, func(c int) float64 { return 40 * float64(c) })
	s := NewSweeper(testSweepConfig(1024), NewCachedDSP(1024))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := s.Sweep(channels, nil); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkSweepParallel(b *testing.B) {
	channels := rotatedArray(1024, 2, func(c int) float64 { return 40 * float64(c) })
	cfg := testSweepConfig(1024)
	cfg.Workers = 0
	s := NewSweeper(cfg, nil)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := s.Sweep(channels, nil); err != nil {
			b.Fatal(err)
		}
	}
}
