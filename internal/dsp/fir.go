package dsp

import (
	"fmt"
	"math"
)

// FIR is a linear-phase low-pass filter with windowed-sinc taps.
type FIR struct {
	taps []float64
}

// NewLowPass designs a Hamming-windowed sinc low-pass filter.
// cutoff and sampleRate are in Hz; numTaps is forced odd so the filter
// has a symmetric center tap and introduces no fractional delay.
func NewLowPass(numTaps int, cutoff, sampleRate float64) (*FIR, error) {
	if numTaps < 3 {
		return nil, fmt.Errorf("fir: need at least 3 taps, got %d", numTaps)
	}
	if cutoff <= 0 || sampleRate <= 0 || cutoff >= sampleRate/2 {
		return nil, fmt.Errorf("fir: cutoff %v Hz invalid for sample rate %v Hz", cutoff, sampleRate)
	}
	if numTaps%2 == 0 {
		numTaps++
	}

	fc := cutoff / sampleRate // normalized cutoff, cycles per sample
	mid := numTaps / 2
	taps := make([]float64, numTaps)

	var sum float64
	for i := range taps {
		n := float64(i - mid)
		var v float64
		if n == 0 {
			v = 2 * fc
		} else {
			v = math.Sin(2*math.Pi*fc*n) / (math.Pi * n)
		}
		// Hamming window
		v *= 0.54 - 0.46*math.Cos(2*math.Pi*float64(i)/float64(numTaps-1))
		taps[i] = v
		sum += v
	}

	// Unity gain at DC
	for i := range taps {
		taps[i] /= sum
	}

	return &FIR{taps: taps}, nil
}

// Len returns the tap count.
func (f *FIR) Len() int { return len(f.taps) }

// Apply convolves the filter with the input. The edges are padded by
// replicating the first and last samples, so the output has the same
// length as the input.
func (f *FIR) Apply(in []float64) []float64 {
	out := make([]float64, len(in))
	mid := len(f.taps) / 2

	for i := range in {
		var acc float64
		for j, tap := range f.taps {
			k := i + j - mid
			switch {
			case k < 0:
				k = 0
			case k >= len(in):
				k = len(in) - 1
			}
			acc += tap * in[k]
		}
		out[i] = acc
	}
	return out
}
