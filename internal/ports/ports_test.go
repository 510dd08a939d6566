package ports

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/lumabench/spectro-service/internal/domain"
)

// scriptedCapturer replays a fixed sequence of illuminance values,
// repeating the last one when the script runs out.
type scriptedCapturer struct {
	mu  sync.Mutex
	fcd []float64
	pos int
}

func (s *scriptedCapturer) Capture(ctx context.Context, exp ExposureSettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pos < len(s.fcd) {
		s.pos++
	}
	return nil
}

func (s *scriptedCapturer) current() float64 {
	if s.pos == 0 {
		return s.fcd[0]
	}
	return s.fcd[s.pos-1]
}

func (s *scriptedCapturer) Data(t domain.DataType) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t == domain.DataFootCandle {
		return s.current(), nil
	}
	return 0.33, nil
}

func (s *scriptedCapturer) Measurement() (*domain.Measurement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.NewMeasurement("SP0001", 0.33, 0.33, s.current(), 5000, 0, 0)
}

// stubRepo records saves.
type stubRepo struct {
	mu    sync.Mutex
	saved []*domain.Measurement
}

func (r *stubRepo) SaveMeasurement(ctx context.Context, m *domain.Measurement) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saved = append(r.saved, m)
	return nil
}

func (r *stubRepo) GetMeasurement(ctx context.Context, id int64) (*domain.Measurement, error) {
	return nil, domain.ErrMeasurementNotFound
}

func (r *stubRepo) GetMeasurementsInRange(ctx context.Context, start, end time.Time) ([]*domain.Measurement, error) {
	return nil, nil
}

func (r *stubRepo) GetLatestMeasurement(ctx context.Context) (*domain.Measurement, error) {
	return nil, domain.ErrMeasurementNotFound
}

func (r *stubRepo) DeleteOldMeasurements(ctx context.Context, olderThan time.Duration) error {
	return nil
}

func (r *stubRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.saved)
}

func TestRecorder_RecordsImmediatelyAndPeriodically(t *testing.T) {
	inst := &scriptedCapturer{fcd: []float64{100}}
	repo := &stubRepo{}

	rec := NewRecorder(inst, repo, 20*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		rec.Start(ctx)
		close(done)
	}()

	// Immediate record plus at least two ticks.
	time.Sleep(70 * time.Millisecond)
	cancel()
	<-done

	if got := repo.count(); got < 3 {
		t.Errorf("expected at least 3 recorded measurements, got %d", got)
	}
}

// scriptedDark records the order dark calibration steps run in.
type scriptedDark struct {
	calls []string
}

func (s *scriptedDark) CaptureDark(ctx context.Context) error {
	s.calls = append(s.calls, "dark")
	return nil
}
func (s *scriptedDark) DarkStatus() DarkStatus { return DarkValid }
func (s *scriptedDark) SetAutoDark(on bool)    { s.calls = append(s.calls, "auto") }
func (s *scriptedDark) SetExposureMode(mode ExposureMode) error {
	s.calls = append(s.calls, "mode")
	return nil
}
func (s *scriptedDark) SetMaxExposure(d time.Duration) error {
	s.calls = append(s.calls, "max")
	return nil
}

func TestDarkCalibration_SequenceOrder(t *testing.T) {
	inst := &scriptedDark{}
	var progress []string

	err := DarkCalibration(context.Background(), inst, ExposureStandard,
		time.Second, func(step string) { progress = append(progress, step) })
	if err != nil {
		t.Fatalf("DarkCalibration failed: %v", err)
	}

	want := []string{"auto", "mode", "max", "dark"}
	if len(inst.calls) != len(want) {
		t.Fatalf("expected %d calls, got %v", len(want), inst.calls)
	}
	for i, call := range want {
		if inst.calls[i] != call {
			t.Errorf("step %d = %q, want %q", i, inst.calls[i], call)
		}
	}
	if len(progress) != 4 {
		t.Errorf("expected 4 progress callbacks, got %d", len(progress))
	}
}

func TestDarkCalibration_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := DarkCalibration(ctx, &scriptedDark{}, ExposureStandard, time.Second, nil)
	if err == nil {
		t.Error("expected context error, got nil")
	}
}

func TestDropMonitor_DetectsDecline(t *testing.T) {
	// Ramp up past the threshold, then decline.
	script := []float64{50, 80, 110, 140, 150, 148, 144, 140, 136, 132, 128, 124, 120}
	inst := &scriptedCapturer{fcd: script}

	var samples []DropSample
	mon := NewDropMonitor(inst, DropConfig{
		Threshold: 100,
		Duration:  40 * time.Millisecond,
		Timeout:   time.Second,
		Interval:  2 * time.Millisecond,
	}, func(s DropSample) { samples = append(samples, s) })

	first, last, err := mon.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if first == nil || last == nil {
		t.Fatal("expected peak and final measurements")
	}
	if first.Fcd < 140 {
		t.Errorf("peak fcd = %v, expected near the 150 peak", first.Fcd)
	}
	if last.Fcd >= first.Fcd {
		t.Errorf("final fcd %v should be below peak %v", last.Fcd, first.Fcd)
	}
	if len(samples) == 0 {
		t.Error("expected drop samples to be streamed")
	}
	// Drops are fractional and grow as the source dims.
	final := samples[len(samples)-1]
	if final.PctDrop <= 0 || final.PctDrop >= 1 {
		t.Errorf("final pct drop = %v, expected fraction in (0,1)", final.PctDrop)
	}
}

func TestDropMonitor_Timeout(t *testing.T) {
	// Never exceeds the threshold, never declines.
	inst := &scriptedCapturer{fcd: []float64{50}}

	mon := NewDropMonitor(inst, DropConfig{
		Threshold: 100,
		Duration:  10 * time.Millisecond,
		Timeout:   30 * time.Millisecond,
		Interval:  time.Millisecond,
	}, func(DropSample) {})

	_, _, err := mon.Run(context.Background())
	if err != ErrDropTimeout {
		t.Errorf("expected ErrDropTimeout, got %v", err)
	}
}
