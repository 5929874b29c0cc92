package dsp

import "math"

// SpeedOfLight is the propagation speed used for array geometry, in m/s.
const SpeedOfLight = 3e8

const (
	degToRad = math.Pi / 180.0
	radToDeg = 180.0 / math.Pi
)

// Geometry describes a uniform linear array.
type Geometry struct {
	CenterFreqHz  float64 // carrier (RX LO) frequency
	SpacingMeters float64 // distance between adjacent elements
}

// NewGeometry derives the element spacing from a carrier frequency and a
// spacing expressed as a fraction of the carrier wavelength.
func NewGeometry(centerFreqHz, spacingWavelength float64) Geometry {
	g := Geometry{CenterFreqHz: centerFreqHz}
	if centerFreqHz != 0 {
		g.SpacingMeters = spacingWavelength * SpeedOfLight / centerFreqHz
	}
	return g
}

// Wavelength returns the carrier wavelength in meters.
func (g Geometry) Wavelength() float64 {
	if g.CenterFreqHz == 0 {
		return 0
	}
	return SpeedOfLight / g.CenterFreqHz
}

// Validate rejects geometries that cannot map phase to angle.
func (g Geometry) Validate() error {
	if !(g.CenterFreqHz > 0) || math.IsInf(g.CenterFreqHz, 0) {
		return invalidf("center frequency must be positive, got %v", g.CenterFreqHz)
	}
	if !(g.SpacingMeters > 0) || math.IsInf(g.SpacingMeters, 0) {
		return invalidf("element spacing must be positive, got %v", g.SpacingMeters)
	}
	return nil
}

// SteeringAngle converts an inter-element phase difference (degrees) to an
// arrival angle (degrees from boresight). Phases with no physical solution
// are clamped to ±90°.
func SteeringAngle(phaseDeg float64, g Geometry) float64 {
	if g.Validate() != nil {
		return 0
	}
	arg := phaseDeg * degToRad * SpeedOfLight / (2 * math.Pi * g.CenterFreqHz * g.SpacingMeters)
	if arg > 1 {
		arg = 1
	} else if arg < -1 {
		arg = -1
	}
	return math.Asin(arg) * radToDeg
}

// PhaseForAngle converts an arrival angle (degrees) back to the
// inter-element phase difference (degrees).
func PhaseForAngle(thetaDeg float64, g Geometry) float64 {
	if g.Validate() != nil {
		return 0
	}
	phaseRad := math.Sin(thetaDeg*degToRad) * 2 * math.Pi * g.CenterFreqHz * g.SpacingMeters / SpeedOfLight
	return phaseRad * radToDeg
}

// PhaseToTheta converts a phase delay (degrees) to a steering angle (degrees).
// freqHz is the carrier frequency, spacingWavelength is the antenna spacing expressed as a fraction of wavelength.
func PhaseToTheta(phaseDeg float64, freqHz float64, spacingWavelength float64) float64 {
	return SteeringAngle(phaseDeg, NewGeometry(freqHz, spacingWavelength))
}

// ThetaToPhase converts a steering angle (degrees) back to a phase delay (degrees).
func ThetaToPhase(thetaDeg float64, freqHz float64, spacingWavelength float64) float64 {
	return PhaseForAngle(thetaDeg, NewGeometry(freqHz, spacingWavelength))
}
