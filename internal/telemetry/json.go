package telemetry

import (
	"fmt"
	"io"
	"sync"
)

// JSONReporter writes one JSON object per line to an io.Writer.
type JSONReporter struct {
	mu  sync.Mutex
	out io.Writer
	err error
}

// NewJSONReporter builds a reporter writing to out.
func NewJSONReporter(out io.Writer) *JSONReporter {
	return &JSONReporter{out: out}
}

func (r *JSONReporter) ReportSweep(sample SweepSample) { r.write("sweep", sample) }

func (r *JSONReporter) ReportCalibration(sample CalibrationSample) {
	r.write("calibration", sample)
}

// Err returns the first write or encode failure, if any. Later records are
// dropped once an error occurred.
func (r *JSONReporter) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

func (r *JSONReporter) write(kind string, data any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return
	}
	line, err := marshalLine(kind, data)
	if err != nil {
		r.err = fmt.Errorf("encode %s: %w", kind, err)
		return
	}
	if _, err := r.out.Write(line); err != nil {
		r.err = fmt.Errorf("write %s: %w", kind, err)
	}
}
