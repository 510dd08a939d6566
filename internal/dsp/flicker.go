package dsp

import (
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
)

// FlickerPercent is the classic modulation depth metric,
// (max-min)/(max+min) in percent. Zero for a constant waveform.
func FlickerPercent(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	min, max := samples[0], samples[0]
	for _, s := range samples[1:] {
		if s < min {
			min = s
		}
		if s > max {
			max = s
		}
	}
	if max+min == 0 {
		return 0
	}
	return (max - min) / (max + min) * 100
}

// FlickerIndex is the IES flicker index: the area of the waveform
// above its mean divided by the total area, both by trapezoidal rule
// over one unit sample spacing.
func FlickerIndex(samples []float64) float64 {
	if len(samples) < 2 {
		return 0
	}

	var mean float64
	for _, s := range samples {
		mean += s
	}
	mean /= float64(len(samples))

	var above, total float64
	for i := 1; i < len(samples); i++ {
		total += (samples[i-1] + samples[i]) / 2
		a := samples[i-1] - mean
		b := samples[i] - mean
		if a < 0 {
			a = 0
		}
		if b < 0 {
			b = 0
		}
		above += (a + b) / 2
	}
	if total == 0 {
		return 0
	}
	return above / total
}

// Periodogram returns the magnitude spectrum of the waveform and the
// frequency of each bin in Hz. Bin 0 is DC.
func Periodogram(samples []float64, sampleRate float64) (freqs, mags []float64) {
	if len(samples) == 0 {
		return nil, nil
	}

	fft := fourier.NewFFT(len(samples))
	coeffs := fft.Coefficients(nil, samples)

	freqs = make([]float64, len(coeffs))
	mags = make([]float64, len(coeffs))
	for i, c := range coeffs {
		freqs[i] = fft.Freq(i) * sampleRate
		mags[i] = cmplx.Abs(c) / float64(len(samples))
	}
	return freqs, mags
}

// DominantFrequency returns the frequency of the strongest non-DC
// component, or 0 when the waveform has no AC content.
func DominantFrequency(samples []float64, sampleRate float64) float64 {
	freqs, mags := Periodogram(samples, sampleRate)
	if len(mags) < 2 {
		return 0
	}

	best := 1
	for i := 2; i < len(mags); i++ {
		if mags[i] > mags[best] {
			best = i
		}
	}

	// Treat numerically negligible AC energy as a steady source.
	if mags[best] < 1e-9*(1+mags[0]) {
		return 0
	}
	return freqs[best]
}
