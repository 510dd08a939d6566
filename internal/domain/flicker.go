package domain

// Waveform is a time-domain sample sequence from the flicker sensor.
type Waveform struct {
	SampleRate float64 // Hz
	Samples    []float64
}

// Duration returns the waveform length in seconds.
func (w Waveform) Duration() float64 {
	if w.SampleRate == 0 {
		return 0
	}
	return float64(len(w.Samples)) / w.SampleRate
}

// FlickerReading is the result of one flicker capture: the scalar
// metrics plus the time- and frequency-domain waveforms they were
// derived from.
type FlickerReading struct {
	Percent   float64 // (max-min)/(max+min), percent
	Index     float64 // area above mean / total area
	Frequency float64 // dominant modulation frequency, Hz

	Waveform  Waveform
	FreqBins  []float64 // Hz
	Magnitude []float64 // spectral magnitude per bin
}
