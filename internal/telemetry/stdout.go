package telemetry

import (
	"github.com/rjboer/GoBeam/internal/logging"
)

// StdoutReporter prints sweep and calibration updates through the logger.
type StdoutReporter struct {
	logger logging.Logger
}

// NewStdoutReporter builds a stdout reporter with the provided logger.
func NewStdoutReporter(logger logging.Logger) StdoutReporter {
	if logger == nil {
		logger = logging.Default()
	}
	return StdoutReporter{logger: logger.With(logging.Subsystem("telemetry"))}
}

func (r StdoutReporter) ReportSweep(s SweepSample) {
	fields := []logging.Field{
		{Key: "step", Value: s.Step},
		{Key: "phase_deg", Value: float64(s.PhaseDeg)},
		{Key: "angle_deg", Value: float64(s.SteeringAngleDeg)},
		{Key: "peak_dbfs", Value: float64(s.PeakDBFS)},
		{Key: "detected", Value: s.Detected},
	}
	if s.SNRDB != 0 {
		fields = append(fields, logging.Field{Key: "snr_db", Value: float64(s.SNRDB)})
	}
	if s.Detected {
		fields = append(fields,
			logging.Field{Key: "peak_bin", Value: s.PeakBin},
			logging.Field{Key: "hold_angle_deg", Value: float64(s.HoldAngleDeg)},
		)
		r.logger.Info("sweep", fields...)
		return
	}
	fields = append(fields, logging.Field{Key: "contrast_db", Value: float64(s.ContrastDB)})
	r.logger.Warn("sweep without a clear peak", fields...)
}

func (r StdoutReporter) ReportCalibration(s CalibrationSample) {
	r.logger.Info("calibration",
		logging.Field{Key: "acquisitions", Value: s.Acquisitions},
		logging.Field{Key: "phase_deg", Value: s.PhaseDeg},
		logging.Field{Key: "delay", Value: s.Delay},
		logging.Field{Key: "amplitude", Value: s.Amplitude},
	)
}
