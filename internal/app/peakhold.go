package app

import "math"

// PeakHold keeps the strongest detection seen so far.
type PeakHold struct {
	Valid            bool
	Step             int
	PhaseDeg         float64
	SteeringAngleDeg float64
	PeakDBFS         float64
}

// Update records r if it is a detection stronger than the held one. It
// reports whether the hold changed.
func (h *PeakHold) Update(r Result) bool {
	if !r.Detected || math.IsInf(r.PeakDBFS, 0) || math.IsNaN(r.PeakDBFS) {
		return false
	}
	if h.Valid && r.PeakDBFS <= h.PeakDBFS {
		return false
	}
	*h = PeakHold{
		Valid:            true,
		Step:             r.Step,
		PhaseDeg:         r.PhaseDeg,
		SteeringAngleDeg: r.SteeringAngleDeg,
		PeakDBFS:         r.PeakDBFS,
	}
	return true
}

// Reset clears the hold.
func (h *PeakHold) Reset() { *h = PeakHold{} }
