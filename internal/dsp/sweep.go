package dsp

import (
	"math"
	"math/cmplx"
	"runtime"
)

// DefaultMinContrastDB is the smallest spread between the best and worst
// candidate scores for which a sweep counts as a detection.
const DefaultMinContrastDB = 3.0

const maxGridSize = 1 << 20

// PhaseGrid is an evenly spaced set of candidate phase shifts in degrees,
// covering [StartDeg, StopDeg) like numpy.arange.
type PhaseGrid struct {
	StartDeg float64
	StopDeg  float64
	StepDeg  float64
}

// DefaultPhaseGrid spans [-180, 180) in 2° steps.
func DefaultPhaseGrid() PhaseGrid {
	return PhaseGrid{StartDeg: -180, StopDeg: 180, StepDeg: 2}
}

// Values materialises the grid. Each value is computed as start + i*step so
// long grids do not accumulate rounding drift.
func (g PhaseGrid) Values() ([]float64, error) {
	if g.StepDeg == 0 || math.IsNaN(g.StepDeg) || math.IsInf(g.StepDeg, 0) {
		return nil, invalidf("phase grid step must be finite and non-zero, got %v", g.StepDeg)
	}
	span := (g.StopDeg - g.StartDeg) / g.StepDeg
	if !(span > 0) || math.IsInf(span, 0) {
		return nil, invalidf("phase grid [%v, %v) step %v is empty", g.StartDeg, g.StopDeg, g.StepDeg)
	}
	n := int(math.Ceil(span))
	if n > maxGridSize {
		return nil, invalidf("phase grid has %d candidates, limit is %d", n, maxGridSize)
	}
	out := make([]float64, n)
	for i := range out {
		out[i] = g.StartDeg + float64(i)*g.StepDeg
	}
	return out, nil
}

// SweepConfig parameterises a beamforming sweep.
type SweepConfig struct {
	Grid     PhaseGrid
	Band     Band
	Geometry Geometry
	// Weights holds the progressive phase multiplier of every channel.
	// Nil selects the uniform linear array weights 0, 1, 2, ...; the
	// reference entry is ignored.
	Weights []int
	// Workers > 1 scores candidates on a worker pool. Zero selects
	// runtime.NumCPU().
	Workers int
	// MinContrastDB is the detection threshold on the score spread. Zero
	// selects DefaultMinContrastDB; a negative value disables the check.
	MinContrastDB float64
	// FullScale is the dBFS reference; zero selects DefaultFullScale.
	FullScale float64
}

// SweepResult is the outcome of one sweep over one snapshot.
type SweepResult struct {
	PeakDBFS         float64 // best in-band peak
	PhaseDeg         float64 // winning progressive phase shift
	SteeringAngleDeg float64 // arrival angle implied by PhaseDeg
	PeakBin          int     // spectrum bin of the best peak
	SNRDB            float64 // best peak over the in-band noise floor
	ContrastDB       float64 // spread between best and worst finite scores
	// Detected is false when the score surface is flat, e.g. on silence. The
	// winner is still reported but carries no direction information.
	Detected bool
	Phases   []float64 // candidate grid
	Scores   []float64 // in-band peak per candidate
}

// Sweeper scores every candidate of a phase grid against multi-channel
// snapshots.
type Sweeper struct {
	cfg   SweepConfig
	cache *CachedDSP
}

// NewSweeper returns a sweeper for cfg. A nil cache selects the package-wide
// cache for the serial path; workers always use private FFT plans.
func NewSweeper(cfg SweepConfig, cache *CachedDSP) *Sweeper {
	if cache == nil {
		cache = defaultCache
	}
	if cfg.FullScale == 0 {
		cfg.FullScale = DefaultFullScale
	}
	if cfg.MinContrastDB == 0 {
		cfg.MinContrastDB = DefaultMinContrastDB
	}
	if cfg.Workers == 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.Grid == (PhaseGrid{}) {
		cfg.Grid = DefaultPhaseGrid()
	}
	return &Sweeper{cfg: cfg, cache: cache}
}

// Config returns the effective configuration.
func (s *Sweeper) Config() SweepConfig { return s.cfg }

// Sweep runs a one-off sweep with cfg.
func Sweep(channels [][]complex64, phaseOffsetsDeg []float64, cfg SweepConfig) (SweepResult, error) {
	return NewSweeper(cfg, nil).Sweep(channels, phaseOffsetsDeg)
}

// Sweep applies, for every candidate phase p, the rotation
// exp(i*(p*w_c + offset_c)) to every non-reference channel c, sums all
// channels and scores the candidate by the peak dBFS inside the signal band.
// The best candidate wins; ties go to the lowest grid index. phaseOffsetsDeg
// is either nil or holds one calibration bias per channel.
func (s *Sweeper) Sweep(channels [][]complex64, phaseOffsetsDeg []float64) (SweepResult, error) {
	cfg := s.cfg
	if len(channels) < 2 {
		return SweepResult{}, invalidf("sweep needs at least 2 channels, got %d", len(channels))
	}
	n := len(channels[0])
	if n == 0 {
		return SweepResult{}, invalidf("sweep of empty buffers")
	}
	for c, ch := range channels {
		if len(ch) != n {
			return SweepResult{}, invalidf("channel %d has %d samples, reference has %d", c, len(ch), n)
		}
	}
	if phaseOffsetsDeg != nil && len(phaseOffsetsDeg) != len(channels) {
		return SweepResult{}, invalidf("got %d phase offsets for %d channels", len(phaseOffsetsDeg), len(channels))
	}
	if cfg.Weights != nil && len(cfg.Weights) != len(channels) {
		return SweepResult{}, invalidf("got %d weights for %d channels", len(cfg.Weights), len(channels))
	}
	if err := cfg.Band.Validate(n); err != nil {
		return SweepResult{}, err
	}
	if err := cfg.Geometry.Validate(); err != nil {
		return SweepResult{}, err
	}
	phases, err := cfg.Grid.Values()
	if err != nil {
		return SweepResult{}, err
	}

	job := newSweepJob(channels, phaseOffsetsDeg, cfg.Weights)
	scores := make([]float64, len(phases))
	bins := make([]int, len(phases))
	snrs := make([]float64, len(phases))

	workers := cfg.Workers
	if workers > len(phases) {
		workers = len(phases)
	}
	if workers <= 1 {
		sc := newCandidateScanner(NewSpectrum(cfg.FullScale, s.cache), n)
		for i, p := range phases {
			if scores[i], bins[i], snrs[i], err = sc.score(job, p, cfg.Band); err != nil {
				return SweepResult{}, err
			}
		}
	} else if err := scanParallel(job, phases, cfg, workers, scores, bins, snrs); err != nil {
		return SweepResult{}, err
	}

	best := 0
	for i := range scores {
		if scores[i] > scores[best] {
			best = i
		}
	}
	contrast, finite := scoreContrast(scores)

	return SweepResult{
		PeakDBFS:         scores[best],
		PhaseDeg:         phases[best],
		SteeringAngleDeg: SteeringAngle(phases[best], cfg.Geometry),
		PeakBin:          bins[best],
		SNRDB:            snrs[best],
		ContrastDB:       contrast,
		Detected:         finite && (cfg.MinContrastDB < 0 || contrast >= cfg.MinContrastDB),
		Phases:           phases,
		Scores:           scores,
	}, nil
}

// scoreContrast returns max - min over the finite scores. finite is false
// when no score is finite.
func scoreContrast(scores []float64) (float64, bool) {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range scores {
		if math.IsInf(v, 0) || math.IsNaN(v) {
			continue
		}
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	if math.IsInf(hi, -1) {
		return 0, false
	}
	return hi - lo, true
}

// sweepJob holds the read-only, pre-converted inputs shared by all workers.
type sweepJob struct {
	ref     []complex128
	others  [][]complex128
	weights []float64
	offsets []float64
}

func newSweepJob(channels [][]complex64, offsets []float64, weights []int) *sweepJob {
	job := &sweepJob{
		ref:     toComplex128(channels[0]),
		others:  make([][]complex128, len(channels)-1),
		weights: make([]float64, len(channels)-1),
		offsets: make([]float64, len(channels)-1),
	}
	for c := 1; c < len(channels); c++ {
		job.others[c-1] = toComplex128(channels[c])
		job.weights[c-1] = float64(c)
		if weights != nil {
			job.weights[c-1] = float64(weights[c])
		}
		if offsets != nil {
			job.offsets[c-1] = offsets[c]
		}
	}
	return job
}

// candidateScanner owns the scratch buffers of one scoring goroutine.
type candidateScanner struct {
	spectrum *Spectrum
	sum      []complex128
	windowed []complex128
	coeffs   []complex128
	db       []float64
}

func newCandidateScanner(spectrum *Spectrum, n int) *candidateScanner {
	return &candidateScanner{
		spectrum: spectrum,
		sum:      make([]complex128, n),
		windowed: make([]complex128, n),
		coeffs:   make([]complex128, n),
		db:       make([]float64, n),
	}
}

func (sc *candidateScanner) score(job *sweepJob, phase float64, band Band) (peak float64, bin int, snr float64, err error) {
	copy(sc.sum, job.ref)
	for c, ch := range job.others {
		rot := cmplx.Rect(1, (phase*job.weights[c]+job.offsets[c])*degToRad)
		for i, v := range ch {
			sc.sum[i] += v * rot
		}
	}
	if err := sc.spectrum.transform128(sc.db, sc.sum, sc.windowed, sc.coeffs); err != nil {
		return 0, 0, 0, err
	}
	peak, bin = peakInBand(sc.db, band)
	return peak, bin, estimateSNR(sc.db, peak, bin, band), nil
}

// scanResult is used by the worker-pool scan.
type scanResult struct {
	idx  int
	peak float64
	bin  int
	snr  float64
	err  error
}

// scanParallel spreads candidates across workers. Every worker owns its FFT
// plan and scratch buffers; results land at their grid index so the outcome
// does not depend on scheduling.
func scanParallel(job *sweepJob, phases []float64, cfg SweepConfig, workers int, scores []float64, bins []int, snrs []float64) error {
	n := len(job.ref)
	jobs := make(chan int)
	results := make(chan scanResult, workers)

	for w := 0; w < workers; w++ {
		go func() {
			sc := newCandidateScanner(NewSpectrum(cfg.FullScale, NewCachedDSP(n)), n)
			for idx := range jobs {
				peak, bin, snr, err := sc.score(job, phases[idx], cfg.Band)
				results <- scanResult{idx: idx, peak: peak, bin: bin, snr: snr, err: err}
			}
		}()
	}

	go func() {
		for i := range phases {
			jobs <- i
		}
		close(jobs)
	}()

	var firstErr error
	for range phases {
		r := <-results
		if r.err != nil {
			if firstErr == nil {
				firstErr = r.err
			}
			continue
		}
		scores[r.idx] = r.peak
		bins[r.idx] = r.bin
		snrs[r.idx] = r.snr
	}
	return firstErr
}

func toComplex128(in []complex64) []complex128 {
	out := make([]complex128, len(in))
	for i, v := range in {
		out[i] = complex128(v)
	}
	return out
}
