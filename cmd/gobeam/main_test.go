package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"path/filepath"
	"testing"

	"github.com/rjboer/GoBeam/internal/config"
	"github.com/rjboer/GoBeam/internal/iqfile"
	"github.com/rjboer/GoBeam/internal/sdr"
	"github.com/rjboer/GoBeam/internal/telemetry"
)

func noEnv(string) (string, bool) { return "", false }

type line struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func decodeLines(t *testing.T, out []byte) map[string][]json.RawMessage {
	t.Helper()
	byType := make(map[string][]json.RawMessage)
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		var l line
		if err := json.Unmarshal(sc.Bytes(), &l); err != nil {
			t.Fatalf("bad output line %q: %v", sc.Text(), err)
		}
		byType[l.Type] = append(byType[l.Type], l.Data)
	}
	return byType
}

func TestParseFlagsOnlyMarksSetFlags(t *testing.T) {
	f, err := parseFlags([]string{"-sweeps", "3", "-mode", "track", "a.iq", "b.iq"}, noEnv, io.Discard)
	if err != nil {
		t.Fatalf("parseFlags failed: %v", err)
	}
	cfg := config.Default()
	f.apply(cfg)
	if cfg.Sweep.Count != 3 || cfg.Sweep.Mode != "track" {
		t.Fatalf("flags not applied: %+v", cfg.Sweep)
	}
	if cfg.Source.Backend != "file" || len(cfg.Source.Files) != 2 || cfg.Radio.NumChannels != 2 {
		t.Fatalf("positional files not applied: %+v", cfg.Source)
	}
	if cfg.Radio.SampleRate != 1e6 || cfg.Source.Waveform != "tone" {
		t.Fatalf("unset flags overwrote defaults: %+v %+v", cfg.Radio, cfg.Source)
	}
}

func TestParseFlagsConfigFromEnv(t *testing.T) {
	lookup := func(key string) (string, bool) {
		if key == "GOBEAM_CONFIG" {
			return "/etc/gobeam.yaml", true
		}
		return "", false
	}
	f, err := parseFlags(nil, lookup, io.Discard)
	if err != nil {
		t.Fatalf("parseFlags failed: %v", err)
	}
	if f.configPath != "/etc/gobeam.yaml" {
		t.Fatalf("config path = %q", f.configPath)
	}
}

func TestParseFlagsUnknownFlag(t *testing.T) {
	if _, err := parseFlags([]string{"-bogus"}, noEnv, io.Discard); err == nil {
		t.Fatalf("expected error for unknown flag")
	}
}

func TestRunMockSweeps(t *testing.T) {
	var stdout bytes.Buffer
	args := []string{
		"-sweeps", "3", "-num-samples", "1024", "-sample-rate", "2e6",
		"-mock-phase-delta", "40", "-no-calibrate", "-workers", "2", "-log-level", "error",
	}
	if err := run(context.Background(), args, noEnv, &stdout, io.Discard); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	byType := decodeLines(t, stdout.Bytes())
	if len(byType["sweep"]) != 3 || len(byType["calibration"]) != 0 {
		t.Fatalf("unexpected records: %d sweeps %d calibrations", len(byType["sweep"]), len(byType["calibration"]))
	}
	for _, raw := range byType["sweep"] {
		var s struct {
			PhaseDeg float64 `json:"phaseDeg"`
			Detected bool    `json:"detected"`
		}
		if err := json.Unmarshal(raw, &s); err != nil {
			t.Fatalf("decode sweep: %v", err)
		}
		if !s.Detected || math.Abs(s.PhaseDeg+40) > 1 {
			t.Fatalf("sweep phase %.1f detected=%v, want -40", s.PhaseDeg, s.Detected)
		}
	}
	if len(byType["summary"]) != 1 {
		t.Fatalf("expected one summary, got %d", len(byType["summary"]))
	}
	var sum telemetry.Summary
	if err := json.Unmarshal(byType["summary"][0], &sum); err != nil {
		t.Fatalf("decode summary: %v", err)
	}
	if sum.Sweeps != 3 || sum.Detected != 3 {
		t.Fatalf("summary = %+v", sum)
	}
}

// recordSnapshot writes one mock snapshot as a cf32 file per channel.
func recordSnapshot(t *testing.T, dir, name string, cfg sdr.Config) []string {
	t.Helper()
	mock := sdr.NewMock()
	cfg.SampleRate, cfg.ToneOffset, cfg.NumSamples, cfg.NumChannels = 2e6, 200e3, 1024, 2
	if err := mock.Init(context.Background(), cfg); err != nil {
		t.Fatalf("mock init: %v", err)
	}
	channels, err := mock.RX(context.Background())
	if err != nil {
		t.Fatalf("mock rx: %v", err)
	}
	var files []string
	for i, ch := range channels {
		path := filepath.Join(dir, fmt.Sprintf("%s_rx%d.iq", name, i))
		if err := iqfile.WriteFile(path, iqfile.CF32, ch); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
		files = append(files, path)
	}
	return files
}

func sweepPhases(t *testing.T, out []byte) []float64 {
	t.Helper()
	var phases []float64
	for _, raw := range decodeLines(t, out)["sweep"] {
		var s struct {
			PhaseDeg float64 `json:"phaseDeg"`
		}
		if err := json.Unmarshal(raw, &s); err != nil {
			t.Fatalf("decode sweep: %v", err)
		}
		phases = append(phases, s.PhaseDeg)
	}
	return phases
}

func TestRunFileBackendSkipsAutoCalibration(t *testing.T) {
	files := recordSnapshot(t, t.TempDir(), "target", sdr.Config{PhaseDelta: 40, NoiseStd: 1, Seed: 5})

	// Default flags: auto-calibration is on in the configuration.
	var stdout bytes.Buffer
	args := append([]string{"-sweeps", "2", "-sample-rate", "2e6", "-log-level", "error"}, files...)
	if err := run(context.Background(), args, noEnv, &stdout, io.Discard); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if cals := decodeLines(t, stdout.Bytes())["calibration"]; len(cals) != 0 {
		t.Fatalf("file playback must not calibrate against itself, got %d calibrations", len(cals))
	}
	phases := sweepPhases(t, stdout.Bytes())
	if len(phases) != 2 {
		t.Fatalf("expected two sweeps, got %d", len(phases))
	}
	for _, p := range phases {
		if math.Abs(p+40) > 1 {
			t.Fatalf("file sweep phase = %.1f, want -40", p)
		}
	}
}

func TestRunSavedCalibrationAppliesToPlayback(t *testing.T) {
	dir := t.TempDir()
	hw := []float64{0, 30}
	boresight := recordSnapshot(t, dir, "boresight", sdr.Config{HardwarePhaseDeg: hw, NoiseStd: 1, Seed: 5})
	target := recordSnapshot(t, dir, "target", sdr.Config{HardwarePhaseDeg: hw, PhaseDelta: 40, NoiseStd: 1, Seed: 6})
	calPath := filepath.Join(dir, "cal.json")

	common := []string{"-sweeps", "1", "-sample-rate", "2e6", "-log-level", "error"}
	args := append(append([]string{"-calibrate", "-save-calibration", calPath}, common...), boresight...)
	var first bytes.Buffer
	if err := run(context.Background(), args, noEnv, &first, io.Discard); err != nil {
		t.Fatalf("calibration run failed: %v", err)
	}
	if len(decodeLines(t, first.Bytes())["calibration"]) != 1 {
		t.Fatalf("expected a calibration record from the boresight run")
	}
	cal, err := loadCalibration(calPath)
	if err != nil {
		t.Fatalf("load saved calibration: %v", err)
	}
	if math.Abs(cal.PhaseDeg[1]+30) > 1 {
		t.Fatalf("saved phase %.2f, want about -30", cal.PhaseDeg[1])
	}

	// Uncalibrated, the hardware offset adds to the arrival phase.
	var raw bytes.Buffer
	if err := run(context.Background(), append(common, target...), noEnv, &raw, io.Discard); err != nil {
		t.Fatalf("uncalibrated run failed: %v", err)
	}
	if p := sweepPhases(t, raw.Bytes()); len(p) != 1 || math.Abs(p[0]+70) > 1 {
		t.Fatalf("uncalibrated phase = %v, want -70", p)
	}

	var corrected bytes.Buffer
	args = append(append([]string{"-load-calibration", calPath}, common...), target...)
	if err := run(context.Background(), args, noEnv, &corrected, io.Discard); err != nil {
		t.Fatalf("calibrated run failed: %v", err)
	}
	if p := sweepPhases(t, corrected.Bytes()); len(p) != 1 || math.Abs(p[0]+40) > 1 {
		t.Fatalf("calibrated phase = %v, want -40", p)
	}
}

func TestRunSaveCalibrationWithoutCalibrating(t *testing.T) {
	files := recordSnapshot(t, t.TempDir(), "target", sdr.Config{NoiseStd: 1, Seed: 5})
	args := append([]string{"-sweeps", "1", "-sample-rate", "2e6", "-log-level", "error",
		"-save-calibration", filepath.Join(t.TempDir(), "cal.json")}, files...)
	if err := run(context.Background(), args, noEnv, io.Discard, io.Discard); err == nil {
		t.Fatalf("expected an error when there is no calibration to save")
	}
}

func TestRunInvalidConfig(t *testing.T) {
	for _, args := range [][]string{
		{"-mode", "orbit"},
		{"-tone-offset", "900e3"},
		{"-config", filepath.Join(t.TempDir(), "missing.yaml")},
		{"-backend", "pluto"},
		{"-load-calibration", filepath.Join(t.TempDir(), "missing.json")},
	} {
		if err := run(context.Background(), args, noEnv, io.Discard, io.Discard); err == nil {
			t.Fatalf("expected error for %v", args)
		}
	}
}

func TestRunCancelledIsClean(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var stdout bytes.Buffer
	args := []string{"-sweeps", "0", "-num-samples", "256", "-no-calibrate", "-log-level", "error"}
	if err := run(ctx, args, noEnv, &stdout, io.Discard); err != nil {
		t.Fatalf("cancelled run should exit cleanly, got %v", err)
	}
	if got := len(decodeLines(t, stdout.Bytes())["summary"]); got != 1 {
		t.Fatalf("expected a summary after cancellation, got %d", got)
	}
}
