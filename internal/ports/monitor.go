package ports

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/lumabench/spectro-service/internal/domain"
)

// ErrDropTimeout indicates the source never started declining within
// the configured timeout.
var ErrDropTimeout = errors.New("illuminance drop did not begin before timeout")

// DropSample is one point of a thermal-drop trace.
type DropSample struct {
	PctDrop float64 // fractional drop from the peak (0.05 = 5%)
	Elapsed time.Duration
}

// DropConfig controls a thermal-drop watch.
type DropConfig struct {
	// Threshold is the illuminance (fcd) the source must exceed before
	// a decline is treated as the thermal drop starting.
	Threshold float64
	// Duration is how long to track the decline once it begins.
	Duration time.Duration
	// Timeout bounds the wait for the decline to begin.
	Timeout time.Duration
	// Interval paces captures; zero measures back to back.
	Interval time.Duration
}

// DropMonitor watches a lit fixture warm up: it waits for the
// illuminance to peak and start declining, then tracks the decline for
// a fixed duration, streaming smoothed drop samples to a consumer.
// Captures use a rolling window of four measurements so single noisy
// reads don't fake a peak.
type DropMonitor struct {
	inst     Capturer
	cfg      DropConfig
	consumer func(DropSample)
}

// NewDropMonitor creates a monitor. consumer may be nil, in which case
// samples are logged.
func NewDropMonitor(inst Capturer, cfg DropConfig, consumer func(DropSample)) *DropMonitor {
	if consumer == nil {
		consumer = func(s DropSample) {
			log.Info().
				Float64("pct_drop", s.PctDrop).
				Dur("elapsed", s.Elapsed).
				Msg("thermal drop sample")
		}
	}
	return &DropMonitor{inst: inst, cfg: cfg, consumer: consumer}
}

type timedMeasurement struct {
	m  *domain.Measurement
	at time.Time
}

// Run executes the watch. It returns the measurement at the peak and
// the smoothed measurement at the end of the tracked decline.
func (d *DropMonitor) Run(ctx context.Context) (first, last *domain.Measurement, err error) {
	const window = 4

	measure := func() (*domain.Measurement, error) {
		if err := d.inst.Capture(ctx, ExposureSettings{Auto: true}); err != nil {
			return nil, err
		}
		return d.inst.Measurement()
	}

	m, err := measure()
	if err != nil {
		return nil, nil, err
	}

	rolling := make([]timedMeasurement, 0, window)
	now := time.Now()
	for i := 0; i < window; i++ {
		rolling = append(rolling, timedMeasurement{m: m, at: now})
	}

	prev := m
	deadline := time.Time{}
	timeoutAt := time.Now().Add(d.cfg.Timeout)
	var firstAt time.Time

	for {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}

		if deadline.IsZero() {
			// Still waiting for the peak.
			if m.Fcd < prev.Fcd && prev.Fcd > d.cfg.Threshold {
				deadline = time.Now().Add(d.cfg.Duration)
			} else {
				prev = m
				if time.Now().After(timeoutAt) {
					return nil, nil, ErrDropTimeout
				}
			}
		}

		if !deadline.IsZero() {
			if first == nil {
				// The second-newest window entry is the peak: it is the
				// last read before the decline was confirmed.
				peak := rolling[len(rolling)-2]
				first = peak.m
				firstAt = peak.at
				last = first
			} else {
				tail := make([]*domain.Measurement, 0, window-1)
				for _, tm := range rolling[1:] {
					tail = append(tail, tm.m)
				}
				smoothed, err := domain.Average(tail)
				if err != nil {
					return nil, nil, err
				}
				last = smoothed
			}

			mid := rolling[2]
			d.consumer(DropSample{
				PctDrop: (first.Fcd - last.Fcd) / first.Fcd,
				Elapsed: mid.at.Sub(firstAt),
			})

			if time.Now().After(deadline) {
				return first, last, nil
			}
		}

		if d.cfg.Interval > 0 {
			select {
			case <-ctx.Done():
				return nil, nil, ctx.Err()
			case <-time.After(d.cfg.Interval):
			}
		}

		m, err = measure()
		if err != nil {
			return nil, nil, err
		}
		rolling = append(rolling[1:], timedMeasurement{m: m, at: time.Now()})
	}
}
