package dsp

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sine returns n samples of base + base*depth*sin(2πf·t) at the given
// sample rate.
func sine(n int, base, depth, freq, sampleRate float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		t := float64(i) / sampleRate
		out[i] = base + base*depth*math.Sin(2*math.Pi*freq*t)
	}
	return out
}

func TestFlickerPercent(t *testing.T) {
	// 20% modulation: min 80, max 120 -> (40)/(200) = 20%
	samples := sine(4096, 100, 0.2, 120, 4096)
	assert.InDelta(t, 20.0, FlickerPercent(samples), 0.1)
}

func TestFlickerPercent_Constant(t *testing.T) {
	samples := make([]float64, 256)
	for i := range samples {
		samples[i] = 42.0
	}
	assert.Equal(t, 0.0, FlickerPercent(samples))
	assert.Equal(t, 0.0, FlickerPercent(nil))
}

func TestFlickerIndex_Sinusoid(t *testing.T) {
	// For a sinusoid with modulation depth m the flicker index is m/π.
	samples := sine(4096, 100, 0.5, 120, 4096)
	assert.InDelta(t, 0.5/math.Pi, FlickerIndex(samples), 0.005)
}

func TestFlickerIndex_Constant(t *testing.T) {
	samples := make([]float64, 256)
	for i := range samples {
		samples[i] = 42.0
	}
	assert.Equal(t, 0.0, FlickerIndex(samples))
}

func TestDominantFrequency(t *testing.T) {
	// 120 Hz lands exactly on a bin: 1024 samples at 4096 Hz -> 4 Hz bins
	samples := sine(1024, 100, 0.3, 120, 4096)
	assert.InDelta(t, 120.0, DominantFrequency(samples, 4096), 0.01)
}

func TestDominantFrequency_DC(t *testing.T) {
	samples := make([]float64, 1024)
	for i := range samples {
		samples[i] = 100.0
	}
	assert.Equal(t, 0.0, DominantFrequency(samples, 4096))
}

func TestPeriodogram_BinLayout(t *testing.T) {
	samples := sine(1024, 100, 0.3, 120, 4096)
	freqs, mags := Periodogram(samples, 4096)

	require.Len(t, freqs, 513) // n/2+1 bins
	require.Len(t, mags, 513)
	assert.Equal(t, 0.0, freqs[0])
	assert.InDelta(t, 2048.0, freqs[512], 1e-9) // Nyquist
}

func TestLowPass_RemovesHighFrequency(t *testing.T) {
	// 120 Hz fundamental plus 1500 Hz noise; a 400 Hz cutoff should
	// keep the fundamental and strip the noise.
	sr := 4096.0
	n := 2048
	samples := make([]float64, n)
	for i := range samples {
		t := float64(i) / sr
		samples[i] = 100 +
			20*math.Sin(2*math.Pi*120*t) +
			10*math.Sin(2*math.Pi*1500*t)
	}

	fir, err := NewLowPass(63, 400, sr)
	require.NoError(t, err)

	filtered := fir.Apply(samples)
	require.Len(t, filtered, n)

	_, magsIn := Periodogram(samples, sr)
	_, magsOut := Periodogram(filtered, sr)

	binOf := func(freq float64) int { return int(freq * float64(n) / sr) }

	// passband survives
	assert.Greater(t, magsOut[binOf(120)], 0.8*magsIn[binOf(120)])
	// stopband attenuated by at least 20x
	assert.Less(t, magsOut[binOf(1500)], magsIn[binOf(1500)]/20)
}

func TestNewLowPass_Validation(t *testing.T) {
	_, err := NewLowPass(2, 100, 4096)
	assert.Error(t, err)

	_, err = NewLowPass(63, 3000, 4096) // above Nyquist
	assert.Error(t, err)

	_, err = NewLowPass(63, 0, 4096)
	assert.Error(t, err)
}

func TestNewLowPass_UnityDCGain(t *testing.T) {
	fir, err := NewLowPass(64, 400, 4096) // even count is bumped to odd
	require.NoError(t, err)
	assert.Equal(t, 65, fir.Len())

	dc := make([]float64, 256)
	for i := range dc {
		dc[i] = 7.5
	}
	out := fir.Apply(dc)
	for _, v := range out {
		assert.InDelta(t, 7.5, v, 1e-9)
	}
}
