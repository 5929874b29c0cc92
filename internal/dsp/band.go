package dsp

import "math"

// Band is a half-open range [Start, End) of FFT-shifted spectrum bins.
type Band struct {
	Start int
	End   int
}

// Len returns the number of bins in the band.
func (b Band) Len() int { return b.End - b.Start }

// Validate checks that the band is non-empty and inside a spectrum of n bins.
func (b Band) Validate(n int) error {
	if b.Start < 0 || b.End > n || b.Start >= b.End {
		return invalidf("signal band [%d, %d) invalid for %d bins", b.Start, b.End, n)
	}
	return nil
}

// SignalBand returns the bins that bracket a tone at toneOffset Hz above the
// carrier: from half the offset to twice the offset, in FFT-shifted order.
// The result is clamped to [0, numSamples].
func SignalBand(numSamples int, sampleRate float64, toneOffset float64) Band {
	start, end := SignalBinRange(numSamples, sampleRate, toneOffset)
	return Band{Start: start, End: end}
}

// SignalBinRange mirrors SignalBand for callers that want bare indices.
func SignalBinRange(numSamples int, sampleRate float64, toneOffset float64) (int, int) {
	if numSamples <= 0 || sampleRate == 0 {
		return 0, 0
	}
	start := int(float64(numSamples) * (sampleRate/2 + toneOffset/2) / sampleRate)
	end := int(float64(numSamples) * (sampleRate/2 + toneOffset*2) / sampleRate)
	if start < 0 {
		start = 0
	}
	if end > numSamples {
		end = numSamples
	}
	return start, end
}

// peakInBand returns the maximum value of db in band together with its bin.
// The first bin wins ties. The band must already be validated.
func peakInBand(db []float64, band Band) (peak float64, bin int) {
	peak = math.Inf(-1)
	bin = band.Start
	for i := band.Start; i < band.End; i++ {
		if db[i] > peak {
			peak = db[i]
			bin = i
		}
	}
	return peak, bin
}

// noiseFloor computes the average level in band excluding a small guard
// region around the signal bin to avoid biasing the estimate.
func noiseFloor(db []float64, band Band, signalBin int) (float64, bool) {
	var sum float64
	var count int
	for i := band.Start; i < band.End; i++ {
		if i >= signalBin-1 && i <= signalBin+1 {
			continue
		}
		v := db[i]
		if math.IsInf(v, 0) || math.IsNaN(v) {
			continue
		}
		sum += v
		count++
	}
	if count == 0 {
		return 0, false
	}
	return sum / float64(count), true
}

// estimateSNR computes the SNR as peak - noise floor for the given band.
func estimateSNR(db []float64, peak float64, peakBin int, band Band) float64 {
	noise, ok := noiseFloor(db, band, peakBin)
	if !ok {
		return 0
	}
	snr := peak - noise
	if math.IsNaN(snr) || math.IsInf(snr, 0) {
		return 0
	}
	return snr
}
