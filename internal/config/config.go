// Package config loads GoBeam settings from file, environment and defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/rjboer/GoBeam/internal/app"
	"github.com/rjboer/GoBeam/internal/dsp"
	"github.com/rjboer/GoBeam/internal/iqfile"
	"github.com/rjboer/GoBeam/internal/sdr"
)

// EnvPrefix prefixes every environment override, e.g. GOBEAM_RADIO_RX_LO.
const EnvPrefix = "GOBEAM"

// Config is the root configuration structure
type Config struct {
	Radio       RadioConfig       `mapstructure:"radio"`
	Array       ArrayConfig       `mapstructure:"array"`
	Sweep       SweepConfig       `mapstructure:"sweep"`
	Calibration CalibrationConfig `mapstructure:"calibration"`
	Source      SourceConfig      `mapstructure:"source"`
	Telemetry   TelemetryConfig   `mapstructure:"telemetry"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// RadioConfig describes the receiver front end
type RadioConfig struct {
	SampleRate  float64 `mapstructure:"sample_rate"`
	RxLO        float64 `mapstructure:"rx_lo"`
	ToneOffset  float64 `mapstructure:"tone_offset"`
	NumSamples  int     `mapstructure:"num_samples"` // 0 takes the file length
	NumChannels int     `mapstructure:"num_channels"`
	FullScale   float64 `mapstructure:"full_scale"`
}

// ArrayConfig describes the antenna array
type ArrayConfig struct {
	SpacingWavelength float64 `mapstructure:"spacing_wavelength"`
	Weights           []int   `mapstructure:"weights"`
}

// SweepConfig configures beam steering
type SweepConfig struct {
	StartDeg       float64       `mapstructure:"start_deg"`
	StopDeg        float64       `mapstructure:"stop_deg"`
	StepDeg        float64       `mapstructure:"step_deg"`
	Workers        int           `mapstructure:"workers"`
	MinContrastDB  float64       `mapstructure:"min_contrast_db"`
	Mode           string        `mapstructure:"mode"` // sweep, track
	TrackStepDeg   float64       `mapstructure:"track_step_deg"`
	TrackMinSNRDB  float64       `mapstructure:"track_min_snr_db"`
	MonopulseRatio bool          `mapstructure:"monopulse_ratio"`
	Count          int           `mapstructure:"count"`
	Interval       time.Duration `mapstructure:"interval"`
	WarmupBuffers  int           `mapstructure:"warmup_buffers"`
}

// CalibrationConfig configures channel alignment
type CalibrationConfig struct {
	Auto              bool `mapstructure:"auto"`
	Buffers           int  `mapstructure:"buffers"`
	AlignDelays       bool `mapstructure:"align_delays"`
	AmplitudeEqualize bool `mapstructure:"amplitude_equalize"`
}

// SourceConfig selects and parameterises the sample source
type SourceConfig struct {
	Backend          string    `mapstructure:"backend"` // mock, file
	Files            []string  `mapstructure:"files"`
	Format           string    `mapstructure:"format"`   // cf32, sc16
	Waveform         string    `mapstructure:"waveform"` // tone, bpsk, barker
	PhaseDelta       float64   `mapstructure:"phase_delta"`
	HardwarePhaseDeg []float64 `mapstructure:"hardware_phase_deg"`
	DelaySamples     []int     `mapstructure:"delay_samples"`
	Amplitude        float64   `mapstructure:"amplitude"`
	NoiseStd         float64   `mapstructure:"noise_std"`
	Seed             int64     `mapstructure:"seed"`
	SamplesPerBit    int       `mapstructure:"samples_per_bit"`
}

// TelemetryConfig configures result reporting
type TelemetryConfig struct {
	HistoryLimit int  `mapstructure:"history_limit"`
	JSON         bool `mapstructure:"json"`
}

// LoggingConfig configures logging
type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, text
}

// Default returns the default configuration
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	// Defaults always decode.
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// Load loads configuration from file and environment. An empty path uses
// defaults and environment only.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("radio.sample_rate", 1e6)
	v.SetDefault("radio.rx_lo", 915e6)
	v.SetDefault("radio.tone_offset", 200e3)
	v.SetDefault("radio.num_samples", 1<<12)
	v.SetDefault("radio.num_channels", 2)
	v.SetDefault("radio.full_scale", dsp.DefaultFullScale)

	v.SetDefault("array.spacing_wavelength", 0.5)
	v.SetDefault("array.weights", []int{})

	grid := dsp.DefaultPhaseGrid()
	v.SetDefault("sweep.start_deg", grid.StartDeg)
	v.SetDefault("sweep.stop_deg", grid.StopDeg)
	v.SetDefault("sweep.step_deg", grid.StepDeg)
	v.SetDefault("sweep.workers", 0)
	v.SetDefault("sweep.min_contrast_db", dsp.DefaultMinContrastDB)
	v.SetDefault("sweep.mode", app.ModeSweep)
	v.SetDefault("sweep.track_step_deg", dsp.DefaultTrackStepDeg)
	v.SetDefault("sweep.track_min_snr_db", app.DefaultTrackMinSNRDB)
	v.SetDefault("sweep.monopulse_ratio", false)
	v.SetDefault("sweep.count", 10)
	v.SetDefault("sweep.interval", "0s")
	v.SetDefault("sweep.warmup_buffers", 3)

	v.SetDefault("calibration.auto", true)
	v.SetDefault("calibration.buffers", dsp.DefaultCalibrationAverages)
	v.SetDefault("calibration.align_delays", true)
	v.SetDefault("calibration.amplitude_equalize", false)

	v.SetDefault("source.backend", "mock")
	v.SetDefault("source.files", []string{})
	v.SetDefault("source.format", "cf32")
	v.SetDefault("source.waveform", "tone")
	v.SetDefault("source.phase_delta", 0.0)
	v.SetDefault("source.hardware_phase_deg", []float64{})
	v.SetDefault("source.delay_samples", []int{})
	v.SetDefault("source.amplitude", 1024.0)
	v.SetDefault("source.noise_std", 1.0)
	v.SetDefault("source.seed", 1)
	v.SetDefault("source.samples_per_bit", 16)

	v.SetDefault("telemetry.history_limit", 500)
	v.SetDefault("telemetry.json", true)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	var errs []error
	if !(c.Radio.SampleRate > 0) {
		errs = append(errs, fmt.Errorf("radio.sample_rate must be positive, got %v", c.Radio.SampleRate))
	}
	if !(c.Radio.RxLO > 0) {
		errs = append(errs, fmt.Errorf("radio.rx_lo must be positive, got %v", c.Radio.RxLO))
	}
	if c.Radio.ToneOffset <= 0 || c.Radio.ToneOffset*2 >= c.Radio.SampleRate/2 {
		errs = append(errs, fmt.Errorf("radio.tone_offset %v must be in (0, sample_rate/4)", c.Radio.ToneOffset))
	}
	if c.Radio.NumSamples < 0 {
		errs = append(errs, fmt.Errorf("radio.num_samples must not be negative, got %d", c.Radio.NumSamples))
	}
	if c.Radio.NumChannels < 2 {
		errs = append(errs, fmt.Errorf("radio.num_channels must be at least 2, got %d", c.Radio.NumChannels))
	}
	if !(c.Radio.FullScale > 0) {
		errs = append(errs, fmt.Errorf("radio.full_scale must be positive, got %v", c.Radio.FullScale))
	}
	if !(c.Array.SpacingWavelength > 0) {
		errs = append(errs, fmt.Errorf("array.spacing_wavelength must be positive, got %v", c.Array.SpacingWavelength))
	}
	if n := len(c.Array.Weights); n != 0 && n != c.Radio.NumChannels {
		errs = append(errs, fmt.Errorf("array.weights has %d entries for %d channels", n, c.Radio.NumChannels))
	}
	if _, err := c.grid().Values(); err != nil {
		errs = append(errs, fmt.Errorf("sweep grid: %w", err))
	}
	if c.Sweep.Mode != app.ModeSweep && c.Sweep.Mode != app.ModeTrack {
		errs = append(errs, fmt.Errorf("sweep.mode must be %q or %q, got %q", app.ModeSweep, app.ModeTrack, c.Sweep.Mode))
	}
	if c.Sweep.Count < 0 || c.Sweep.Workers < 0 || c.Sweep.WarmupBuffers < 0 || c.Sweep.Interval < 0 {
		errs = append(errs, errors.New("sweep.count, workers, warmup_buffers and interval must not be negative"))
	}
	if c.Calibration.Buffers < 1 {
		errs = append(errs, fmt.Errorf("calibration.buffers must be at least 1, got %d", c.Calibration.Buffers))
	}
	if _, err := c.sdrConfig(); err != nil {
		errs = append(errs, err)
	}
	switch c.Source.Backend {
	case "mock":
	case "file":
		if len(c.Source.Files) != c.Radio.NumChannels {
			errs = append(errs, fmt.Errorf("source.files has %d entries for %d channels", len(c.Source.Files), c.Radio.NumChannels))
		}
	default:
		errs = append(errs, fmt.Errorf("source.backend must be mock or file, got %q", c.Source.Backend))
	}
	return errors.Join(errs...)
}

// Session converts the configuration into session settings.
func (c *Config) Session() (app.Config, error) {
	src, err := c.sdrConfig()
	if err != nil {
		return app.Config{}, err
	}
	var weights []int
	if len(c.Array.Weights) > 0 {
		weights = append(weights, c.Array.Weights...)
	}
	return app.Config{
		SampleRate:         c.Radio.SampleRate,
		RxLO:               c.Radio.RxLO,
		ToneOffset:         c.Radio.ToneOffset,
		NumSamples:         c.Radio.NumSamples,
		NumChannels:        c.Radio.NumChannels,
		SpacingWavelength:  c.Array.SpacingWavelength,
		Grid:               c.grid(),
		Weights:            weights,
		Workers:            c.Sweep.Workers,
		MinContrastDB:      c.Sweep.MinContrastDB,
		FullScale:          c.Radio.FullScale,
		Mode:               c.Sweep.Mode,
		TrackStepDeg:       c.Sweep.TrackStepDeg,
		TrackMinSNRDB:      c.Sweep.TrackMinSNRDB,
		MonopulseRatio:     c.Sweep.MonopulseRatio,
		AlignDelays:        c.Calibration.AlignDelays,
		AmplitudeEqualize:  c.Calibration.AmplitudeEqualize,
		AutoCalibrate:      c.Calibration.Auto,
		CalibrationBuffers: c.Calibration.Buffers,
		WarmupBuffers:      c.Sweep.WarmupBuffers,
		Sweeps:             c.Sweep.Count,
		Interval:           c.Sweep.Interval,
		Source:             src,
	}, nil
}

func (c *Config) grid() dsp.PhaseGrid {
	return dsp.PhaseGrid{StartDeg: c.Sweep.StartDeg, StopDeg: c.Sweep.StopDeg, StepDeg: c.Sweep.StepDeg}
}

func (c *Config) sdrConfig() (sdr.Config, error) {
	wf, err := sdr.ParseWaveform(c.Source.Waveform)
	if err != nil {
		return sdr.Config{}, fmt.Errorf("source.waveform: %w", err)
	}
	format, err := iqfile.ParseFormat(c.Source.Format)
	if err != nil {
		return sdr.Config{}, fmt.Errorf("source.format: %w", err)
	}
	cfg := sdr.Config{
		PhaseDelta:    c.Source.PhaseDelta,
		Amplitude:     c.Source.Amplitude,
		NoiseStd:      c.Source.NoiseStd,
		Seed:          c.Source.Seed,
		Waveform:      wf,
		SamplesPerBit: c.Source.SamplesPerBit,
		FileFormat:    format,
	}
	if len(c.Source.HardwarePhaseDeg) > 0 {
		cfg.HardwarePhaseDeg = append([]float64(nil), c.Source.HardwarePhaseDeg...)
	}
	if len(c.Source.DelaySamples) > 0 {
		cfg.DelaySamples = append([]int(nil), c.Source.DelaySamples...)
	}
	if len(c.Source.Files) > 0 {
		cfg.Files = append([]string(nil), c.Source.Files...)
	}
	return cfg, nil
}
