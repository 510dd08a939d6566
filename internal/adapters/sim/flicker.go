package sim

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/lumabench/spectro-service/internal/domain"
	"github.com/lumabench/spectro-service/internal/dsp"
	"github.com/lumabench/spectro-service/internal/ports"
)

// FlickerDark captures the flicker channel's dark baseline.
func (d *Device) FlickerDark(ctx context.Context) error {
	d.mu.Lock()
	if !d.open {
		d.mu.Unlock()
		return domain.ErrDeviceClosed
	}
	if d.busy {
		d.mu.Unlock()
		return domain.ErrBusy
	}
	d.busy = true
	d.mu.Unlock()

	select {
	case <-ctx.Done():
		d.mu.Lock()
		d.busy = false
		d.mu.Unlock()
		return ctx.Err()
	case <-time.After(2 * time.Millisecond):
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.busy = false
	d.flkDark = true
	return nil
}

// SetFlickerParams configures the sampling front end.
func (d *Device) SetFlickerParams(p ports.FlickerParams) error {
	if p.SampleCount <= 0 {
		return fmt.Errorf("sim: flicker sample count must be positive, got %d", p.SampleCount)
	}
	if p.SampleRate <= 0 {
		return fmt.Errorf("sim: flicker sample rate must be positive, got %v", p.SampleRate)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.open {
		return domain.ErrDeviceClosed
	}
	d.flk = p
	return nil
}

// CaptureFlicker samples the source's temporal waveform and derives
// the flicker metrics.
func (d *Device) CaptureFlicker(ctx context.Context, opts ports.FlickerCapture) (*domain.FlickerReading, error) {
	samples, params, err := d.sampleWaveform(ctx)
	if err != nil {
		return nil, err
	}

	gain := 1.0
	if !opts.AutoGain && opts.Gain > 0 {
		gain = float64(opts.Gain)
	}
	for i := range samples {
		samples[i] *= gain
	}

	if opts.EnableFIR {
		fir, err := dsp.NewLowPass(params.FIRTaps, params.FIRCutoff, params.SampleRate)
		if err != nil {
			return nil, fmt.Errorf("sim: flicker filter: %w", err)
		}
		samples = fir.Apply(samples)
	}

	freqs, mags := dsp.Periodogram(samples, params.SampleRate)

	return &domain.FlickerReading{
		Percent:   dsp.FlickerPercent(samples),
		Index:     dsp.FlickerIndex(samples),
		Frequency: dsp.DominantFrequency(samples, params.SampleRate),
		Waveform: domain.Waveform{
			SampleRate: params.SampleRate,
			Samples:    samples,
		},
		FreqBins:  freqs,
		Magnitude: mags,
	}, nil
}

// CaptureFlickerRaw fills the caller's buffer with unfiltered samples
// and returns how many were written.
func (d *Device) CaptureFlickerRaw(ctx context.Context, exposure time.Duration, buf []float64) (int, error) {
	samples, _, err := d.sampleWaveform(ctx)
	if err != nil {
		return 0, err
	}
	n := copy(buf, samples)
	return n, nil
}

// sampleWaveform acquires one flicker sampling window.
func (d *Device) sampleWaveform(ctx context.Context) ([]float64, ports.FlickerParams, error) {
	d.mu.Lock()
	if !d.open {
		d.mu.Unlock()
		return nil, ports.FlickerParams{}, domain.ErrDeviceClosed
	}
	if d.busy {
		d.mu.Unlock()
		return nil, ports.FlickerParams{}, domain.ErrBusy
	}
	d.busy = true
	params := d.flk
	cfg := d.cfg
	dark := d.flkDark
	d.mu.Unlock()

	// The sampling window takes real time.
	window := time.Duration(float64(params.SampleCount) / params.SampleRate * float64(time.Second))
	select {
	case <-ctx.Done():
		d.mu.Lock()
		d.busy = false
		d.mu.Unlock()
		return nil, ports.FlickerParams{}, ctx.Err()
	case <-time.After(window):
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.busy = false
	if !d.open {
		return nil, ports.FlickerParams{}, domain.ErrDeviceClosed
	}

	samples := make([]float64, params.SampleCount)
	base := cfg.Lux
	for i := range samples {
		t := float64(i) / params.SampleRate
		v := base * (1 + cfg.FlickerDepth*math.Sin(2*math.Pi*cfg.FlickerFreq*t))
		v += d.rng.NormFloat64() * base * cfg.Variation * 0.1
		if !dark {
			// Uncompensated flicker channel sits on a DC pedestal.
			v += base * 0.02
		}
		samples[i] = v
	}
	return samples, params, nil
}
