// Command gobeam aligns the channels of a phased-array receiver and steers
// its beam towards the strongest emitter.
//
//	gobeam [flags] [chan0.iq chan1.iq ...]
//
// Sample files switch the source to the file backend. A recording replays
// the same snapshot on every acquisition, so calibrating against it would
// cancel the very phase being measured: file playback skips automatic
// calibration unless -calibrate is given. Record a boresight calibration
// with -calibrate -save-calibration and replay it with -load-calibration.
//
// Results are written to stdout as JSON lines; logs go to stderr.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rjboer/GoBeam/internal/app"
	"github.com/rjboer/GoBeam/internal/config"
	"github.com/rjboer/GoBeam/internal/logging"
	"github.com/rjboer/GoBeam/internal/sdr"
	"github.com/rjboer/GoBeam/internal/telemetry"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.LookupEnv, os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "gobeam: %v\n", err)
		os.Exit(1)
	}
}

type cliFlags struct {
	configPath  string
	backend     string
	format      string
	waveform    string
	mode        string
	sweeps      int
	numSamples  int
	channels    int
	workers     int
	sampleRate  float64
	rxLO        float64
	toneOffset  float64
	stepDeg     float64
	phaseDelta  float64
	seed        int64
	noCalibrate bool
	calibrate   bool
	loadCal     string
	saveCal     string
	logLevel    string
	logFormat   string
	files       []string
	set         map[string]bool
}

func parseFlags(args []string, lookup func(string) (string, bool), stderr io.Writer) (cliFlags, error) {
	var f cliFlags
	fs := flag.NewFlagSet("gobeam", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&f.configPath, "config", envString(lookup, "GOBEAM_CONFIG", ""), "Config file (yaml, json or toml)")
	fs.StringVar(&f.backend, "backend", "", "Sample source (mock|file)")
	fs.StringVar(&f.format, "format", "", "Sample file format (cf32|sc16)")
	fs.StringVar(&f.waveform, "waveform", "", "Mock waveform (tone|bpsk|barker)")
	fs.StringVar(&f.mode, "mode", "", "Steering mode (sweep|track)")
	fs.IntVar(&f.sweeps, "sweeps", 0, "Number of steps to run (0 runs until interrupted)")
	fs.IntVar(&f.numSamples, "num-samples", 0, "Samples per channel and snapshot")
	fs.IntVar(&f.channels, "channels", 0, "Number of array channels")
	fs.IntVar(&f.workers, "workers", 0, "Sweep workers (0 uses every CPU)")
	fs.Float64Var(&f.sampleRate, "sample-rate", 0, "Sample rate in Hz")
	fs.Float64Var(&f.rxLO, "rx-lo", 0, "RX LO frequency in Hz")
	fs.Float64Var(&f.toneOffset, "tone-offset", 0, "Tone offset in Hz")
	fs.Float64Var(&f.stepDeg, "step", 0, "Sweep phase step in degrees")
	fs.Float64Var(&f.phaseDelta, "mock-phase-delta", 0, "Mock SDR phase delta in degrees")
	fs.Int64Var(&f.seed, "seed", 0, "Mock SDR noise seed")
	fs.BoolVar(&f.noCalibrate, "no-calibrate", false, "Skip automatic calibration")
	fs.BoolVar(&f.calibrate, "calibrate", false, "Calibrate automatically, also for file playback")
	fs.StringVar(&f.loadCal, "load-calibration", "", "Calibration file to apply instead of calibrating")
	fs.StringVar(&f.saveCal, "save-calibration", "", "Write the run's calibration to this file")
	fs.StringVar(&f.logLevel, "log-level", "", "Log level (debug|info|warn|error)")
	fs.StringVar(&f.logFormat, "log-format", "", "Log format (text|json)")

	if err := fs.Parse(args); err != nil {
		return cliFlags{}, err
	}
	f.files = fs.Args()
	f.set = make(map[string]bool)
	fs.Visit(func(fl *flag.Flag) { f.set[fl.Name] = true })
	return f, nil
}

// apply overlays explicitly set flags on top of the loaded configuration.
func (f cliFlags) apply(cfg *config.Config) {
	strs := map[string]*string{
		"backend":    &cfg.Source.Backend,
		"format":     &cfg.Source.Format,
		"waveform":   &cfg.Source.Waveform,
		"mode":       &cfg.Sweep.Mode,
		"log-level":  &cfg.Logging.Level,
		"log-format": &cfg.Logging.Format,
	}
	strVals := map[string]string{
		"backend": f.backend, "format": f.format, "waveform": f.waveform,
		"mode": f.mode, "log-level": f.logLevel, "log-format": f.logFormat,
	}
	for name, dst := range strs {
		if f.set[name] {
			*dst = strVals[name]
		}
	}
	if f.set["sweeps"] {
		cfg.Sweep.Count = f.sweeps
	}
	if f.set["num-samples"] {
		cfg.Radio.NumSamples = f.numSamples
	}
	if f.set["channels"] {
		cfg.Radio.NumChannels = f.channels
	}
	if f.set["workers"] {
		cfg.Sweep.Workers = f.workers
	}
	if f.set["sample-rate"] {
		cfg.Radio.SampleRate = f.sampleRate
	}
	if f.set["rx-lo"] {
		cfg.Radio.RxLO = f.rxLO
	}
	if f.set["tone-offset"] {
		cfg.Radio.ToneOffset = f.toneOffset
	}
	if f.set["step"] {
		cfg.Sweep.StepDeg = f.stepDeg
	}
	if f.set["mock-phase-delta"] {
		cfg.Source.PhaseDelta = f.phaseDelta
	}
	if f.set["seed"] {
		cfg.Source.Seed = f.seed
	}
	if f.calibrate {
		cfg.Calibration.Auto = true
	}
	if f.noCalibrate {
		cfg.Calibration.Auto = false
	}
	if len(f.files) > 0 {
		cfg.Source.Backend = "file"
		cfg.Source.Files = append([]string(nil), f.files...)
		if !f.set["channels"] {
			cfg.Radio.NumChannels = len(f.files)
		}
		if !f.set["num-samples"] {
			cfg.Radio.NumSamples = 0
		}
	}
}

func run(ctx context.Context, args []string, lookup func(string) (string, bool), stdout, stderr io.Writer) error {
	flags, err := parseFlags(args, lookup, stderr)
	if err != nil {
		return err
	}
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return err
	}
	flags.apply(cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := logging.Parse(cfg.Logging.Level, cfg.Logging.Format, stderr)
	if err != nil {
		return err
	}
	logging.SetDefault(logger)

	if cfg.Source.Backend == "file" && cfg.Calibration.Auto && !flags.calibrate {
		logger.Warn("automatic calibration disabled for file playback; use -calibrate on a boresight recording",
			logging.Subsystem("cli"))
		cfg.Calibration.Auto = false
	}

	sessCfg, err := cfg.Session()
	if err != nil {
		return err
	}
	backend, err := sdr.New(cfg.Source.Backend)
	if err != nil {
		return err
	}
	defer backend.Close()

	hub, err := telemetry.NewHub(cfg.Telemetry.HistoryLimit)
	if err != nil {
		return err
	}
	reporters := telemetry.MultiReporter{hub, telemetry.NewStdoutReporter(logger)}
	var jsonOut *telemetry.JSONReporter
	if cfg.Telemetry.JSON {
		jsonOut = telemetry.NewJSONReporter(stdout)
		reporters = append(reporters, jsonOut)
	}

	session := app.NewSession(backend, reporters, logger, sessCfg)
	if err := session.Init(ctx); err != nil {
		return fmt.Errorf("init session: %w", err)
	}
	if flags.loadCal != "" {
		cal, err := loadCalibration(flags.loadCal)
		if err != nil {
			return err
		}
		if err := session.SetCalibration(cal); err != nil {
			return fmt.Errorf("calibration %s: %w", flags.loadCal, err)
		}
	}
	logger.Info("starting", logging.Subsystem("cli"), logging.F("backend", cfg.Source.Backend), logging.F("sweeps", cfg.Sweep.Count))

	runErr := session.Run(ctx)
	if errors.Is(runErr, context.Canceled) {
		runErr = nil
	}
	if flags.saveCal != "" && runErr == nil {
		sample, ok := hub.Calibration()
		if !ok {
			return fmt.Errorf("save calibration: no calibration was performed")
		}
		if err := saveCalibration(flags.saveCal, sample); err != nil {
			return err
		}
	}
	if jsonOut != nil {
		if err := jsonOut.Err(); err != nil {
			return fmt.Errorf("write results: %w", err)
		}
		line, err := json.Marshal(struct {
			Type string            `json:"type"`
			Data telemetry.Summary `json:"data"`
		}{Type: "summary", Data: hub.Summary()})
		if err != nil {
			return fmt.Errorf("encode summary: %w", err)
		}
		if _, err := fmt.Fprintf(stdout, "%s\n", line); err != nil {
			return fmt.Errorf("write summary: %w", err)
		}
	}
	if runErr != nil {
		return fmt.Errorf("run session: %w", runErr)
	}
	return nil
}

func envString(lookup func(string) (string, bool), key, def string) string {
	if val, ok := lookup(key); ok {
		return val
	}
	return def
}
