package ports

import (
	"context"
	"fmt"
	"time"
)

// DarkCalibration runs the meter's dark reference sequence. It should
// only be run with the sensor covered, or parked at the top of the
// light tunnel with no source lit. The progress callback, when set,
// receives each step name as it completes.
func DarkCalibration(ctx context.Context, inst DarkCalibrator, mode ExposureMode,
	maxExposure time.Duration, progress func(step string)) error {

	if progress == nil {
		progress = func(string) {}
	}

	steps := []struct {
		name string
		run  func() error
	}{
		{"auto_dark_off", func() error { inst.SetAutoDark(false); return nil }},
		{"exposure_mode", func() error { return inst.SetExposureMode(mode) }},
		{"max_exposure", func() error { return inst.SetMaxExposure(maxExposure) }},
		{"dark_capture", func() error { return inst.CaptureDark(ctx) }},
	}

	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := step.run(); err != nil {
			return fmt.Errorf("dark calibration step %s: %w", step.name, err)
		}
		progress(step.name)
	}
	return nil
}
