package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rjboer/GoBeam/internal/dsp"
	"github.com/rjboer/GoBeam/internal/telemetry"
)

// saveCalibration stores a calibration record as indented JSON, in the same
// shape the JSON reporter emits.
func saveCalibration(path string, sample telemetry.CalibrationSample) error {
	data, err := json.MarshalIndent(sample, "", "  ")
	if err != nil {
		return fmt.Errorf("encode calibration: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("save calibration: %w", err)
	}
	return nil
}

func loadCalibration(path string) (dsp.Calibration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return dsp.Calibration{}, fmt.Errorf("load calibration: %w", err)
	}
	var sample telemetry.CalibrationSample
	if err := json.Unmarshal(data, &sample); err != nil {
		return dsp.Calibration{}, fmt.Errorf("decode calibration %s: %w", path, err)
	}
	return dsp.Calibration{
		PhaseDeg:  sample.PhaseDeg,
		Delay:     sample.Delay,
		Amplitude: sample.Amplitude,
	}, nil
}
