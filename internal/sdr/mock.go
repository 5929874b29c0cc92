package sdr

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
)

const (
	defaultMockSamples       = 1024
	defaultMockSampleRate    = 2e6
	defaultMockChannels      = 2
	defaultMockAmplitude     = 1024
	defaultMockSamplesPerBit = 16
	mockRandomBits           = 127
)

var barker13 = []float64{1, 1, 1, 1, 1, -1, -1, 1, 1, -1, 1, -1, 1}

// MockSDR synthesizes N-channel IQ data of a plane wave arriving at a
// uniform linear array with a controllable phase offset.
type MockSDR struct {
	mu   sync.Mutex
	cfg  Config
	rng  *rand.Rand
	bits []float64
}

// NewMock returns an uninitialised mock; call Init before RX.
func NewMock() *MockSDR { return &MockSDR{} }

func (m *MockSDR) Init(_ context.Context, cfg Config) error {
	if cfg.NumSamples == 0 {
		cfg.NumSamples = defaultMockSamples
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = defaultMockSampleRate
	}
	if cfg.NumChannels == 0 {
		cfg.NumChannels = defaultMockChannels
	}
	if cfg.Amplitude == 0 {
		cfg.Amplitude = defaultMockAmplitude
	}
	if cfg.SamplesPerBit <= 0 {
		cfg.SamplesPerBit = defaultMockSamplesPerBit
	}
	if cfg.NumSamples < 0 || cfg.NumChannels < 1 {
		return fmt.Errorf("mock sdr: invalid shape %d channels x %d samples", cfg.NumChannels, cfg.NumSamples)
	}
	if cfg.HardwarePhaseDeg != nil && len(cfg.HardwarePhaseDeg) != cfg.NumChannels {
		return fmt.Errorf("mock sdr: %d hardware phases for %d channels", len(cfg.HardwarePhaseDeg), cfg.NumChannels)
	}
	if cfg.DelaySamples != nil && len(cfg.DelaySamples) != cfg.NumChannels {
		return fmt.Errorf("mock sdr: %d delays for %d channels", len(cfg.DelaySamples), cfg.NumChannels)
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	var bits []float64
	switch cfg.Waveform {
	case BPSK:
		bits = make([]float64, mockRandomBits)
		for i := range bits {
			bits[i] = float64(2*rng.Intn(2) - 1)
		}
	case Barker:
		bits = barker13
	}

	m.mu.Lock()
	m.cfg = cfg
	m.rng = rng
	m.bits = bits
	m.mu.Unlock()
	return nil
}

func (m *MockSDR) Close() error { return nil }

// SetPhaseDelta updates the simulated phase delta in degrees, allowing
// real-time angle changes during operation.
func (m *MockSDR) SetPhaseDelta(phaseDeltaDeg float64) {
	m.mu.Lock()
	m.cfg.PhaseDelta = phaseDeltaDeg
	m.mu.Unlock()
}

// RX synthesizes one snapshot. Channel c carries the waveform delayed by
// DelaySamples[c] and rotated by c*PhaseDelta + HardwarePhaseDeg[c].
func (m *MockSDR) RX(ctx context.Context) ([][]complex64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rng == nil {
		return nil, fmt.Errorf("mock sdr: RX before Init")
	}
	cfg := m.cfg

	out := make([][]complex64, cfg.NumChannels)
	phaseStep := 2 * math.Pi * cfg.ToneOffset / cfg.SampleRate
	for c := range out {
		rot := float64(c) * cfg.PhaseDelta
		if cfg.HardwarePhaseDeg != nil {
			rot += cfg.HardwarePhaseDeg[c]
		}
		rot *= math.Pi / 180
		delay := 0
		if cfg.DelaySamples != nil {
			delay = cfg.DelaySamples[c]
		}

		ch := make([]complex64, cfg.NumSamples)
		for i := range ch {
			t := i - delay
			phase := phaseStep*float64(t) + rot
			amp := cfg.Amplitude * m.symbol(t, cfg.SamplesPerBit)
			re := amp * math.Cos(phase)
			im := amp * math.Sin(phase)
			if cfg.NoiseStd > 0 {
				re += m.rng.NormFloat64() * cfg.NoiseStd
				im += m.rng.NormFloat64() * cfg.NoiseStd
			}
			ch[i] = complex64(complex(re, im))
		}
		out[c] = ch
	}
	return out, nil
}

// symbol returns the modulating value at sample index t, which may be
// negative for delayed channels.
func (m *MockSDR) symbol(t, samplesPerBit int) float64 {
	if m.bits == nil {
		return 1
	}
	idx := floorDiv(t, samplesPerBit) % len(m.bits)
	if idx < 0 {
		idx += len(m.bits)
	}
	return m.bits[idx]
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
