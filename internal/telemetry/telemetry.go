// Package telemetry fans sweep and calibration results out to log, JSON and
// in-process subscribers.
package telemetry

import (
	"encoding/json"
	"math"
	"strconv"
	"time"
)

// Float is a float64 that encodes non-finite values as JSON null.
type Float float64

func (f Float) MarshalJSON() ([]byte, error) {
	v := float64(f)
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return []byte("null"), nil
	}
	return strconv.AppendFloat(nil, v, 'g', -1, 64), nil
}

// SweepSample captures one beamforming sweep.
type SweepSample struct {
	Run              string    `json:"run,omitempty"`
	Timestamp        time.Time `json:"timestamp"`
	Step             int       `json:"step"`
	PhaseDeg         Float     `json:"phaseDeg"`
	SteeringAngleDeg Float     `json:"steeringAngleDeg"`
	PeakDBFS         Float     `json:"peakDbfs"`
	SNRDB            Float     `json:"snrDb"`
	ContrastDB       Float     `json:"contrastDb"`
	PeakBin          int       `json:"peakBin"`
	Detected         bool      `json:"detected"`
	// HoldAngleDeg and HoldPeakDBFS describe the best sweep seen so far.
	HoldAngleDeg Float `json:"holdAngleDeg"`
	HoldPeakDBFS Float `json:"holdPeakDbfs"`
}

// CalibrationSample captures a per-channel calibration.
type CalibrationSample struct {
	Run          string    `json:"run,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
	PhaseDeg     []float64 `json:"phaseDeg"`
	Delay        []int     `json:"delay"`
	Amplitude    []float64 `json:"amplitude"`
	Acquisitions int       `json:"acquisitions"`
}

// Reporter captures telemetry events.
type Reporter interface {
	ReportSweep(sample SweepSample)
	ReportCalibration(sample CalibrationSample)
}

// MultiReporter fans out telemetry to multiple destinations.
type MultiReporter []Reporter

// ReportSweep forwards a sweep to each configured reporter.
func (m MultiReporter) ReportSweep(sample SweepSample) {
	for _, r := range m {
		if r != nil {
			r.ReportSweep(sample)
		}
	}
}

// ReportCalibration forwards a calibration to each configured reporter.
func (m MultiReporter) ReportCalibration(sample CalibrationSample) {
	for _, r := range m {
		if r != nil {
			r.ReportCalibration(sample)
		}
	}
}

// envelope tags JSON lines with their record type.
type envelope struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

func marshalLine(kind string, data any) ([]byte, error) {
	b, err := json.Marshal(envelope{Type: kind, Data: data})
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}
