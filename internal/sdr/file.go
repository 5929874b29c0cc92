package sdr

import (
	"context"
	"fmt"

	"github.com/rjboer/GoBeam/internal/iqfile"
)

// FileSDR replays a fixed snapshot recorded as one sample file per channel.
type FileSDR struct {
	channels [][]complex64
}

// NewFile returns an empty file backend; Init loads the recordings.
func NewFile() *FileSDR { return &FileSDR{} }

// Init loads cfg.Files. Every channel is resized to the length of the first
// one, or to NumSamples when set.
func (f *FileSDR) Init(_ context.Context, cfg Config) error {
	if len(cfg.Files) < 2 {
		return fmt.Errorf("file sdr: need at least 2 channel files, got %d", len(cfg.Files))
	}
	channels := make([][]complex64, len(cfg.Files))
	for i, path := range cfg.Files {
		samples, err := iqfile.ReadFile(path, cfg.FileFormat)
		if err != nil {
			return fmt.Errorf("file sdr: channel %d: %w", i, err)
		}
		channels[i] = samples
	}
	n := len(channels[0])
	if cfg.NumSamples > 0 {
		n = cfg.NumSamples
	}
	if n == 0 {
		return fmt.Errorf("file sdr: %s holds no samples", cfg.Files[0])
	}
	for i := range channels {
		if len(channels[i]) != n {
			channels[i] = iqfile.Resize(channels[i], n)
		}
	}
	f.channels = channels
	return nil
}

// RX returns a copy of the recorded snapshot.
func (f *FileSDR) RX(ctx context.Context) ([][]complex64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.channels == nil {
		return nil, fmt.Errorf("file sdr: RX before Init")
	}
	out := make([][]complex64, len(f.channels))
	for i, ch := range f.channels {
		out[i] = append([]complex64(nil), ch...)
	}
	return out, nil
}

func (f *FileSDR) Close() error {
	f.channels = nil
	return nil
}

// New returns the backend registered under name.
func New(name string) (SDR, error) {
	switch name {
	case "mock", "":
		return NewMock(), nil
	case "file":
		return NewFile(), nil
	default:
		return nil, fmt.Errorf("unknown sdr backend %q", name)
	}
}
