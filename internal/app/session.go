package app

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/rjboer/GoBeam/internal/dsp"
	"github.com/rjboer/GoBeam/internal/logging"
	"github.com/rjboer/GoBeam/internal/sdr"
	"github.com/rjboer/GoBeam/internal/telemetry"
)

// Steering modes.
const (
	// ModeSweep runs a full beamforming sweep on every acquisition.
	ModeSweep = "sweep"
	// ModeTrack sweeps once and then follows the target with monopulse
	// steps. Two channels only.
	ModeTrack = "track"
)

// DefaultTrackMinSNRDB is the in-band SNR below which a tracking step counts
// as signal loss. Noise alone peaks roughly 10 dB over its mean floor.
const DefaultTrackMinSNRDB = 15.0

// Config captures application level configuration.
type Config struct {
	SampleRate        float64
	RxLO              float64
	ToneOffset        float64
	NumSamples        int
	NumChannels       int
	SpacingWavelength float64

	Grid          dsp.PhaseGrid
	Weights       []int
	Workers       int
	MinContrastDB float64
	FullScale     float64

	Mode         string
	TrackStepDeg float64
	// TrackMinSNRDB gates detections in track mode; zero selects
	// DefaultTrackMinSNRDB.
	TrackMinSNRDB float64
	// MonopulseRatio selects the Δ/S ratio estimator for tracking.
	MonopulseRatio bool

	AlignDelays        bool
	AmplitudeEqualize  bool
	AutoCalibrate      bool
	CalibrationBuffers int

	WarmupBuffers int
	// Sweeps bounds Run; zero runs until the context is cancelled.
	Sweeps   int
	Interval time.Duration

	// Source carries backend specific settings. Radio fields above take
	// precedence over the ones in Source.
	Source sdr.Config
}

// Result describes one Step.
type Result struct {
	Step             int
	PhaseDeg         float64
	SteeringAngleDeg float64
	PeakDBFS         float64
	SNRDB            float64
	PeakBin          int
	Detected         bool

	// Exactly one of Sweep and Monopulse is set.
	Sweep     *dsp.SweepResult
	Monopulse *dsp.MonopulseUpdate
}

// Session wires SDR input into calibration and beam steering.
type Session struct {
	id       string
	sdr      sdr.SDR
	reporter telemetry.Reporter
	logger   logging.Logger
	cfg      Config

	band     dsp.Band
	geometry dsp.Geometry
	cache    *dsp.CachedDSP
	sweeper  *dsp.Sweeper
	tracker  *dsp.MonopulseTracker

	cal        dsp.Calibration
	calibrated bool
	hold       PeakHold
	step       int
	lastPhase  float64
	locked     bool
}

// NewSession wires backend, reporter and logger into a session. A nil logger
// selects logging.Default(); a nil reporter disables telemetry. Init must be
// called before any other method.
func NewSession(backend sdr.SDR, reporter telemetry.Reporter, logger logging.Logger, cfg Config) *Session {
	if logger == nil {
		logger = logging.Default()
	}
	id := uuid.NewString()
	return &Session{
		id:       id,
		sdr:      backend,
		reporter: reporter,
		logger:   logger.With(logging.Subsystem("session"), logging.F("run", id)),
		cfg:      cfg,
	}
}

// ID identifies the run in telemetry records.
func (s *Session) ID() string { return s.id }

// Init applies defaults, derives the signal band and array geometry and
// configures the SDR.
func (s *Session) Init(ctx context.Context) error {
	if s.cfg.NumChannels == 0 {
		s.cfg.NumChannels = 2
	}
	if s.cfg.SpacingWavelength == 0 {
		s.cfg.SpacingWavelength = 0.5
	}
	if s.cfg.Mode == "" {
		s.cfg.Mode = ModeSweep
	}
	if s.cfg.CalibrationBuffers == 0 {
		s.cfg.CalibrationBuffers = dsp.DefaultCalibrationAverages
	}
	if s.cfg.TrackMinSNRDB == 0 {
		s.cfg.TrackMinSNRDB = DefaultTrackMinSNRDB
	}
	if s.cfg.NumChannels < 2 {
		return fmt.Errorf("need at least 2 channels, got %d", s.cfg.NumChannels)
	}
	switch s.cfg.Mode {
	case ModeSweep:
	case ModeTrack:
		if s.cfg.NumChannels != 2 {
			return fmt.Errorf("mode %q needs exactly 2 channels, got %d", ModeTrack, s.cfg.NumChannels)
		}
	default:
		return fmt.Errorf("unknown mode %q", s.cfg.Mode)
	}

	s.geometry = dsp.NewGeometry(s.cfg.RxLO, s.cfg.SpacingWavelength)
	if err := s.geometry.Validate(); err != nil {
		return fmt.Errorf("array geometry: %w", err)
	}

	src := s.cfg.Source
	src.SampleRate = s.cfg.SampleRate
	src.RxLO = s.cfg.RxLO
	src.ToneOffset = s.cfg.ToneOffset
	src.NumSamples = s.cfg.NumSamples
	src.NumChannels = s.cfg.NumChannels
	if err := s.sdr.Init(ctx, src); err != nil {
		return fmt.Errorf("init SDR: %w", err)
	}

	// The file backend decides the snapshot length when none is configured.
	if s.cfg.NumSamples == 0 {
		first, err := s.sdr.RX(ctx)
		if err != nil {
			return fmt.Errorf("read snapshot length: %w", err)
		}
		if len(first) == 0 {
			return errors.New("first snapshot: no channels")
		}
		s.cfg.NumSamples = len(first[0])
	}

	s.band = dsp.SignalBand(s.cfg.NumSamples, s.cfg.SampleRate, s.cfg.ToneOffset)
	if err := s.band.Validate(s.cfg.NumSamples); err != nil {
		return fmt.Errorf("signal band: %w", err)
	}

	s.cache = dsp.NewCachedDSP(s.cfg.NumSamples)
	s.sweeper = dsp.NewSweeper(dsp.SweepConfig{
		Grid:          s.cfg.Grid,
		Band:          s.band,
		Geometry:      s.geometry,
		Weights:       s.cfg.Weights,
		Workers:       s.cfg.Workers,
		MinContrastDB: s.cfg.MinContrastDB,
		FullScale:     s.cfg.FullScale,
	}, s.cache)
	if s.cfg.Mode == ModeTrack {
		s.tracker = dsp.NewMonopulseTracker(dsp.MonopulseConfig{
			Band:      s.band,
			StepDeg:   s.cfg.TrackStepDeg,
			Ratio:     s.cfg.MonopulseRatio,
			FullScale: s.cfg.FullScale,
		}, s.cache)
	}
	s.cal = dsp.NewCalibration(s.cfg.NumChannels)

	s.logger.Info("session initialised",
		logging.F("channels", s.cfg.NumChannels),
		logging.F("samples", s.cfg.NumSamples),
		logging.F("band_start", s.band.Start),
		logging.F("band_end", s.band.End),
		logging.F("mode", s.cfg.Mode),
	)
	return nil
}

// Calibration returns a copy of the calibration in use.
func (s *Session) Calibration() dsp.Calibration { return s.cal.Clone() }

// SetCalibration replaces the calibration, e.g. with one loaded from an
// earlier run.
func (s *Session) SetCalibration(cal dsp.Calibration) error {
	if err := cal.Validate(s.cfg.NumChannels); err != nil {
		return err
	}
	s.cal = cal.Clone()
	s.calibrated = true
	return nil
}

// PeakHold returns the best detection seen since the last reset.
func (s *Session) PeakHold() PeakHold { return s.hold }

// ResetPeakHold clears the peak hold.
func (s *Session) ResetPeakHold() { s.hold.Reset() }

// Calibrate averages per-channel estimates over CalibrationBuffers
// acquisitions. The source is expected to sit at boresight.
func (s *Session) Calibrate(ctx context.Context) (dsp.Calibration, error) {
	opts := dsp.EstimatorOptions{AmplitudeEqualize: s.cfg.AmplitudeEqualize}
	cals := make([]dsp.Calibration, 0, s.cfg.CalibrationBuffers)
	for i := 0; i < s.cfg.CalibrationBuffers; i++ {
		channels, err := s.receive(ctx)
		if err != nil {
			return dsp.Calibration{}, fmt.Errorf("calibration buffer %d: %w", i, err)
		}
		cal, err := dsp.EstimateCalibration(channels, opts, s.cache)
		if err != nil {
			return dsp.Calibration{}, fmt.Errorf("calibration buffer %d: %w", i, err)
		}
		cals = append(cals, cal)
	}
	avg, err := dsp.AverageCalibrations(cals)
	if err != nil {
		return dsp.Calibration{}, err
	}
	s.cal = avg
	s.calibrated = true

	if s.reporter != nil {
		s.reporter.ReportCalibration(telemetry.CalibrationSample{
			Run:          s.id,
			Timestamp:    time.Now(),
			PhaseDeg:     avg.Offsets(),
			Delay:        append([]int(nil), avg.Delay...),
			Amplitude:    append([]float64(nil), avg.Amplitude...),
			Acquisitions: len(cals),
		})
	}
	s.logger.Debug("calibration complete", logging.F("phase_deg", avg.PhaseDeg), logging.F("delay", avg.Delay))
	return avg.Clone(), nil
}

// Step acquires one snapshot, aligns it and steers the beam.
func (s *Session) Step(ctx context.Context) (Result, error) {
	start := time.Now()
	channels, err := s.receive(ctx)
	if err != nil {
		return Result{}, err
	}
	if s.calibrated {
		if channels, err = s.correct(channels); err != nil {
			return Result{}, err
		}
	}

	var res Result
	if s.cfg.Mode == ModeTrack && s.locked {
		res, err = s.trackStep(channels)
	} else {
		res, err = s.sweepStep(channels)
	}
	if err != nil {
		return Result{}, err
	}

	res.Step = s.step
	s.step++
	if res.Detected {
		s.lastPhase = res.PhaseDeg
		s.locked = true
	} else {
		s.locked = false
	}
	s.hold.Update(res)
	s.report(res)
	s.logger.Debug("step complete",
		logging.F("step", res.Step),
		logging.F("elapsed_ms", time.Since(start).Seconds()*1000),
	)
	return res, nil
}

func (s *Session) sweepStep(channels [][]complex64) (Result, error) {
	sw, err := s.sweeper.Sweep(channels, nil)
	if err != nil {
		return Result{}, fmt.Errorf("sweep: %w", err)
	}
	return Result{
		PhaseDeg:         sw.PhaseDeg,
		SteeringAngleDeg: sw.SteeringAngleDeg,
		PeakDBFS:         sw.PeakDBFS,
		SNRDB:            sw.SNRDB,
		PeakBin:          sw.PeakBin,
		Detected:         sw.Detected,
		Sweep:            &sw,
	}, nil
}

func (s *Session) trackStep(channels [][]complex64) (Result, error) {
	up, err := s.tracker.Step(channels[0], channels[1], s.lastPhase, 0)
	if err != nil {
		return Result{}, fmt.Errorf("monopulse: %w", err)
	}
	return Result{
		PhaseDeg:         up.PhaseDeg,
		SteeringAngleDeg: dsp.SteeringAngle(up.PhaseDeg, s.geometry),
		PeakDBFS:         up.PeakDBFS,
		SNRDB:            up.SNRDB,
		PeakBin:          up.PeakBin,
		Detected:         !math.IsInf(up.PeakDBFS, -1) && up.SNRDB >= s.cfg.TrackMinSNRDB,
		Monopulse:        &up,
	}, nil
}

// Run warms up the SDR, optionally calibrates and then steps until Sweeps
// steps are done or ctx is cancelled.
func (s *Session) Run(ctx context.Context) error {
	if err := s.warmup(ctx); err != nil {
		return fmt.Errorf("warmup: %w", err)
	}
	if s.cfg.AutoCalibrate && !s.calibrated {
		if _, err := s.Calibrate(ctx); err != nil {
			return fmt.Errorf("calibrate: %w", err)
		}
	}

	var tick <-chan time.Time
	if s.cfg.Interval > 0 {
		ticker := time.NewTicker(s.cfg.Interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for i := 0; s.cfg.Sweeps == 0 || i < s.cfg.Sweeps; i++ {
		if tick != nil && i > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-tick:
			}
		} else if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := s.Step(ctx); err != nil {
			return fmt.Errorf("step %d: %w", s.step, err)
		}
	}
	return nil
}

func (s *Session) receive(ctx context.Context) ([][]complex64, error) {
	channels, err := s.sdr.RX(ctx)
	if err != nil {
		return nil, fmt.Errorf("receive samples: %w", err)
	}
	if len(channels) != s.cfg.NumChannels {
		return nil, fmt.Errorf("receive samples: got %d channels, want %d", len(channels), s.cfg.NumChannels)
	}
	return channels, nil
}

// correct applies the calibration: delay alignment when enabled, then the
// per-channel amplitude and phase correction.
func (s *Session) correct(channels [][]complex64) ([][]complex64, error) {
	cal := s.cal
	if !s.cfg.AlignDelays {
		cal = s.cal.Clone()
		clear(cal.Delay)
	}
	out, err := cal.Apply(channels)
	if err != nil {
		return nil, fmt.Errorf("apply calibration: %w", err)
	}
	return out, nil
}

func (s *Session) report(res Result) {
	if s.reporter == nil {
		return
	}
	sample := telemetry.SweepSample{
		Run:              s.id,
		Timestamp:        time.Now(),
		Step:             res.Step,
		PhaseDeg:         telemetry.Float(res.PhaseDeg),
		SteeringAngleDeg: telemetry.Float(res.SteeringAngleDeg),
		PeakDBFS:         telemetry.Float(res.PeakDBFS),
		SNRDB:            telemetry.Float(res.SNRDB),
		PeakBin:          res.PeakBin,
		Detected:         res.Detected,
		HoldPeakDBFS:     telemetry.Float(math.Inf(-1)),
	}
	if res.Sweep != nil {
		sample.ContrastDB = telemetry.Float(res.Sweep.ContrastDB)
	}
	if s.hold.Valid {
		sample.HoldAngleDeg = telemetry.Float(s.hold.SteeringAngleDeg)
		sample.HoldPeakDBFS = telemetry.Float(s.hold.PeakDBFS)
	}
	s.reporter.ReportSweep(sample)
}

func (s *Session) warmup(ctx context.Context) error {
	for i := 0; i < s.cfg.WarmupBuffers; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		warmupStart := time.Now()
		if _, err := s.sdr.RX(ctx); err != nil {
			return fmt.Errorf("warmup RX buffer %d: %w", i, err)
		}
		s.logger.Debug("warmup buffer processed", logging.F("index", i), logging.F("duration_ms", time.Since(warmupStart).Seconds()*1000))
	}
	return nil
}
