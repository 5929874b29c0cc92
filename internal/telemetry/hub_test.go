package telemetry

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/rjboer/GoBeam/internal/logging"
)

func sweepAt(step int, angle, peak float64, detected bool) SweepSample {
	return SweepSample{Step: step, SteeringAngleDeg: Float(angle), PeakDBFS: Float(peak), Detected: detected}
}

func TestHubHistoryIsBounded(t *testing.T) {
	hub, err := NewHub(3)
	if err != nil {
		t.Fatalf("new hub: %v", err)
	}
	for i := 0; i < 5; i++ {
		hub.ReportSweep(sweepAt(i, float64(i), -10, true))
	}
	s := hub.Summary()
	if s.Sweeps != 5 || s.Retained != 3 || s.Detected != 3 {
		t.Fatalf("unexpected counts %+v", s)
	}
	// Only steps 2, 3 and 4 are retained.
	if s.MeanAngleDeg != 3 || s.LastAngleDeg != 4 {
		t.Fatalf("summary over evicted samples %+v", s)
	}
	for _, limit := range []int{-1, maxHistoryLimit + 1} {
		if _, err := NewHub(limit); err == nil {
			t.Fatalf("expected invalid limit error for %d", limit)
		}
	}
}

func TestHubSummary(t *testing.T) {
	hub, _ := NewHub(10)
	hub.ReportSweep(sweepAt(0, 10, -20, true))
	hub.ReportSweep(sweepAt(1, 30, -10, true))
	hub.ReportSweep(sweepAt(2, 80, math.Inf(-1), false))

	s := hub.Summary()
	if s.Sweeps != 3 || s.Detected != 2 {
		t.Fatalf("unexpected counts %+v", s)
	}
	if s.MeanAngleDeg != 20 || s.StdAngleDeg != 10 {
		t.Fatalf("unexpected angle stats %+v", s)
	}
	if s.BestAngleDeg != 30 || s.BestPeakDBFS != -10 || s.LastAngleDeg != 30 {
		t.Fatalf("unexpected best/last %+v", s)
	}

	empty, _ := NewHub(0)
	b, err := json.Marshal(empty.Summary())
	if err != nil {
		t.Fatalf("summary of empty hub must encode: %v", err)
	}
	if !strings.Contains(string(b), `"bestPeakDbfs":null`) {
		t.Fatalf("expected null best peak, got %s", b)
	}
}

func TestHubCalibration(t *testing.T) {
	hub, _ := NewHub(0)
	if _, ok := hub.Calibration(); ok {
		t.Fatalf("expected no calibration yet")
	}
	hub.ReportCalibration(CalibrationSample{PhaseDeg: []float64{0, 12}, Acquisitions: 15})
	cal, ok := hub.Calibration()
	if !ok || cal.Acquisitions != 15 {
		t.Fatalf("unexpected calibration %+v", cal)
	}
}

func TestJSONReporter(t *testing.T) {
	var buf bytes.Buffer
	r := NewJSONReporter(&buf)
	r.ReportSweep(sweepAt(3, -12.5, math.Inf(-1), false))
	r.ReportCalibration(CalibrationSample{PhaseDeg: []float64{0, 40}, Delay: []int{0, 3}, Amplitude: []float64{1, 1}})
	if err := r.Err(); err != nil {
		t.Fatalf("reporter error: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %q", buf.String())
	}
	var first struct {
		Type string         `json:"type"`
		Data map[string]any `json:"data"`
	}
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if first.Type != "sweep" || first.Data["peakDbfs"] != nil || first.Data["steeringAngleDeg"] != -12.5 {
		t.Fatalf("unexpected sweep record %+v", first)
	}
	if !strings.HasPrefix(lines[1], `{"type":"calibration"`) {
		t.Fatalf("unexpected calibration record %s", lines[1])
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestJSONReporterKeepsFirstError(t *testing.T) {
	r := NewJSONReporter(failingWriter{})
	r.ReportSweep(SweepSample{})
	r.ReportSweep(SweepSample{})
	if err := r.Err(); err == nil || !strings.Contains(err.Error(), "disk full") {
		t.Fatalf("expected write error, got %v", err)
	}
}

type countingReporter struct{ sweeps, cals int }

func (c *countingReporter) ReportSweep(SweepSample)             { c.sweeps++ }
func (c *countingReporter) ReportCalibration(CalibrationSample) { c.cals++ }

func TestMultiReporterAndStdout(t *testing.T) {
	var logs bytes.Buffer
	counter := &countingReporter{}
	m := MultiReporter{counter, nil, NewStdoutReporter(logging.New(logging.Debug, logging.Text, &logs))}
	m.ReportSweep(sweepAt(1, 5, -3, true))
	m.ReportSweep(sweepAt(2, 0, math.Inf(-1), false))
	m.ReportCalibration(CalibrationSample{Acquisitions: 1})

	if counter.sweeps != 2 || counter.cals != 1 {
		t.Fatalf("unexpected fan-out %+v", counter)
	}
	out := logs.String()
	for _, want := range []string{"[INFO] sweep", "[WARN] sweep without a clear peak", "subsystem=telemetry", "[INFO] calibration"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in %q", want, out)
		}
	}
}
