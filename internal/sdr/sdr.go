package sdr

import (
	"context"
	"fmt"
	"strings"

	"github.com/rjboer/GoBeam/internal/iqfile"
)

// Waveform selects what MockSDR transmits.
type Waveform int

const (
	// Tone is a single complex exponential at ToneOffset.
	Tone Waveform = iota
	// BPSK modulates the tone with seeded random bits.
	BPSK
	// Barker modulates the tone with a repeating Barker-13 sequence.
	Barker
)

func (w Waveform) String() string {
	switch w {
	case Tone:
		return "tone"
	case BPSK:
		return "bpsk"
	case Barker:
		return "barker"
	default:
		return fmt.Sprintf("Waveform(%d)", int(w))
	}
}

// ParseWaveform maps a waveform name to a Waveform.
func ParseWaveform(s string) (Waveform, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "tone", "carrier", "":
		return Tone, nil
	case "bpsk":
		return BPSK, nil
	case "barker", "barker13":
		return Barker, nil
	default:
		return 0, fmt.Errorf("unknown waveform %q", s)
	}
}

// Config carries parameters required to initialize an SDR backend.
type Config struct {
	SampleRate  float64
	RxLO        float64
	ToneOffset  float64
	NumSamples  int
	NumChannels int

	// Mock signal model.
	PhaseDelta       float64   // progressive phase between adjacent channels in degrees
	HardwarePhaseDeg []float64 // fixed per-channel phase bias
	DelaySamples     []int     // per-channel integer delay, positive lags
	Amplitude        float64   // signal amplitude in ADC counts
	NoiseStd         float64   // per-component Gaussian noise in ADC counts
	Seed             int64
	Waveform         Waveform
	SamplesPerBit    int

	// File backend.
	Files      []string
	FileFormat iqfile.Format
}

// SDR captures the minimal radio operations required by a session.
type SDR interface {
	Init(ctx context.Context, cfg Config) error
	// RX returns one snapshot; every channel has the same length.
	RX(ctx context.Context) ([][]complex64, error)
	Close() error
}
