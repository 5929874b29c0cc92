// Package iqfile reads and writes raw interleaved I/Q sample files.
package iqfile

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strings"
)

// Format identifies the on-disk sample encoding.
type Format int

const (
	// CF32 is interleaved little-endian float32 I/Q (numpy complex64).
	CF32 Format = iota
	// SC16 is interleaved little-endian int16 I/Q as delivered by the
	// AD9361. Samples stay in ADC counts so the dBFS reference applies.
	SC16
)

// ErrShortRead reports a file whose size is not a whole number of samples.
var ErrShortRead = errors.New("iqfile: truncated sample")

func (f Format) String() string {
	switch f {
	case CF32:
		return "cf32"
	case SC16:
		return "sc16"
	default:
		return fmt.Sprintf("Format(%d)", int(f))
	}
}

// SampleSize is the number of bytes one complex sample occupies.
func (f Format) SampleSize() int {
	if f == SC16 {
		return 4
	}
	return 8
}

// ParseFormat maps a format name to a Format. "iq" and "complex64" are
// accepted as aliases of cf32.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "cf32", "iq", "complex64", "":
		return CF32, nil
	case "sc16", "cs16", "int16":
		return SC16, nil
	default:
		return 0, fmt.Errorf("iqfile: unknown format %q", s)
	}
}

// Read decodes every sample from r.
func Read(r io.Reader, format Format) ([]complex64, error) {
	buf, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("iqfile: read: %w", err)
	}
	return Decode(buf, format)
}

// ReadFile decodes the sample file at path.
func ReadFile(path string, format Format) ([]complex64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("iqfile: %w", err)
	}
	defer f.Close()
	samples, err := Read(bufio.NewReader(f), format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return samples, nil
}

// Decode converts a raw byte buffer into samples.
func Decode(buf []byte, format Format) ([]complex64, error) {
	size := format.SampleSize()
	if len(buf)%size != 0 {
		return nil, fmt.Errorf("%w: %d bytes is not a multiple of %d", ErrShortRead, len(buf), size)
	}
	out := make([]complex64, len(buf)/size)
	for n := range out {
		off := n * size
		switch format {
		case SC16:
			i16 := int16(binary.LittleEndian.Uint16(buf[off : off+2]))
			q16 := int16(binary.LittleEndian.Uint16(buf[off+2 : off+4]))
			out[n] = complex(float32(i16), float32(q16))
		default:
			i := math.Float32frombits(binary.LittleEndian.Uint32(buf[off : off+4]))
			q := math.Float32frombits(binary.LittleEndian.Uint32(buf[off+4 : off+8]))
			out[n] = complex(i, q)
		}
	}
	return out, nil
}

// Encode is the inverse of Decode. SC16 values are rounded and saturated to
// the int16 range.
func Encode(samples []complex64, format Format) []byte {
	size := format.SampleSize()
	buf := make([]byte, len(samples)*size)
	for n, v := range samples {
		off := n * size
		switch format {
		case SC16:
			binary.LittleEndian.PutUint16(buf[off:off+2], uint16(saturate16(real(v))))
			binary.LittleEndian.PutUint16(buf[off+2:off+4], uint16(saturate16(imag(v))))
		default:
			binary.LittleEndian.PutUint32(buf[off:off+4], math.Float32bits(real(v)))
			binary.LittleEndian.PutUint32(buf[off+4:off+8], math.Float32bits(imag(v)))
		}
	}
	return buf
}

// Write encodes samples to w.
func Write(w io.Writer, format Format, samples []complex64) error {
	if _, err := w.Write(Encode(samples, format)); err != nil {
		return fmt.Errorf("iqfile: write: %w", err)
	}
	return nil
}

// WriteFile writes samples to path, replacing any existing file.
func WriteFile(path string, format Format, samples []complex64) error {
	if err := os.WriteFile(path, Encode(samples, format), 0o644); err != nil {
		return fmt.Errorf("iqfile: %w", err)
	}
	return nil
}

// Resize returns a buffer of exactly n samples: samples is repeated
// cyclically when too short and truncated when too long, like numpy.resize.
// An empty input yields n zeros.
func Resize(samples []complex64, n int) []complex64 {
	if n <= 0 {
		return []complex64{}
	}
	out := make([]complex64, n)
	if len(samples) == 0 {
		return out
	}
	for i := 0; i < n; i += len(samples) {
		copy(out[i:], samples)
	}
	return out
}

func saturate16(v float32) int16 {
	r := math.Round(float64(v))
	switch {
	case math.IsNaN(r):
		return 0
	case r > math.MaxInt16:
		return math.MaxInt16
	case r < math.MinInt16:
		return math.MinInt16
	}
	return int16(r)
}
