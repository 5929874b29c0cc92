package telemetry

import (
	"fmt"
	"math"
	"sync"

	"gonum.org/v1/gonum/stat"
)

const (
	defaultHistoryLimit = 500
	minHistoryLimit     = 1
	maxHistoryLimit     = 10_000
)

func validateHistoryLimit(limit int) (int, error) {
	if limit == 0 {
		return defaultHistoryLimit, nil
	}
	if limit < minHistoryLimit || limit > maxHistoryLimit {
		return 0, fmt.Errorf("history limit must be between %d and %d", minHistoryLimit, maxHistoryLimit)
	}
	return limit, nil
}

// Hub keeps a bounded sweep history and the latest calibration of a run.
type Hub struct {
	mu           sync.RWMutex
	history      []SweepSample
	historyLimit int
	calibration  *CalibrationSample
	total        int
}

// NewHub builds a telemetry hub with the provided history limit. Zero
// selects the default limit; out-of-range values are rejected.
func NewHub(historyLimit int) (*Hub, error) {
	limit, err := validateHistoryLimit(historyLimit)
	if err != nil {
		return nil, err
	}
	return &Hub{historyLimit: limit}, nil
}

// ReportSweep implements Reporter and records a new sweep, dropping the
// oldest one once the history is full.
func (h *Hub) ReportSweep(sample SweepSample) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.total++
	h.history = append(h.history, sample)
	if len(h.history) > h.historyLimit {
		h.history = h.history[len(h.history)-h.historyLimit:]
	}
}

// ReportCalibration implements Reporter and keeps the latest calibration.
func (h *Hub) ReportCalibration(sample CalibrationSample) {
	h.mu.Lock()
	h.calibration = &sample
	h.mu.Unlock()
}

// Calibration returns the latest reported calibration.
func (h *Hub) Calibration() (CalibrationSample, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.calibration == nil {
		return CalibrationSample{}, false
	}
	return *h.calibration, true
}

// Summary aggregates the stored history.
type Summary struct {
	Sweeps       int   `json:"sweeps"`
	Retained     int   `json:"retained"`
	Detected     int   `json:"detected"`
	MeanAngleDeg Float `json:"meanAngleDeg"`
	StdAngleDeg  Float `json:"stdAngleDeg"`
	BestAngleDeg Float `json:"bestAngleDeg"`
	BestPeakDBFS Float `json:"bestPeakDbfs"`
	LastAngleDeg Float `json:"lastAngleDeg"`
}

// Summary returns angle statistics over the detected sweeps in history.
func (h *Hub) Summary() Summary {
	h.mu.RLock()
	defer h.mu.RUnlock()

	s := Summary{
		Sweeps:       h.total,
		Retained:     len(h.history),
		BestPeakDBFS: Float(math.Inf(-1)),
	}
	angles := make([]float64, 0, len(h.history))
	for _, sample := range h.history {
		if !sample.Detected {
			continue
		}
		angles = append(angles, float64(sample.SteeringAngleDeg))
		if sample.PeakDBFS > s.BestPeakDBFS {
			s.BestPeakDBFS = sample.PeakDBFS
			s.BestAngleDeg = sample.SteeringAngleDeg
		}
	}
	s.Detected = len(angles)
	if len(angles) > 0 {
		mean, std := stat.PopMeanStdDev(angles, nil)
		s.MeanAngleDeg = Float(mean)
		s.StdAngleDeg = Float(std)
		s.LastAngleDeg = Float(angles[len(angles)-1])
	}
	return s
}
