package dsp

// Trim shifts buf left by n samples: the first n samples are dropped and n
// zeros are appended, so the result keeps len(buf).
func Trim(buf []complex64, n int) ([]complex64, error) {
	if err := checkShift(buf, n); err != nil {
		return nil, err
	}
	out := make([]complex64, len(buf))
	copy(out, buf[n:])
	return out, nil
}

// Pad shifts buf right by n samples: n zeros are prepended and the last n
// samples fall off the end.
func Pad(buf []complex64, n int) ([]complex64, error) {
	if err := checkShift(buf, n); err != nil {
		return nil, err
	}
	out := make([]complex64, len(buf))
	copy(out[n:], buf[:len(buf)-n])
	return out, nil
}

// Align moves a test channel onto the reference time base given the delay
// reported by Estimate: a lagging channel (delay > 0) is trimmed, a leading
// channel (delay < 0) is padded. The input is never modified.
func Align(buf []complex64, delay int) ([]complex64, error) {
	switch {
	case delay > 0:
		return Trim(buf, delay)
	case delay < 0:
		return Pad(buf, -delay)
	default:
		out := make([]complex64, len(buf))
		copy(out, buf)
		return out, nil
	}
}

func checkShift(buf []complex64, n int) error {
	if n < 0 || n > len(buf) {
		return invalidf("shift %d outside [0, %d]", n, len(buf))
	}
	return nil
}
