package ports

import (
	"context"
	"time"

	"github.com/lumabench/spectro-service/internal/calib"
	"github.com/lumabench/spectro-service/internal/domain"
)

// ExposureSettings controls a single capture. Time is quantized by the
// hardware to 100µs steps; it is ignored when Auto is set.
type ExposureSettings struct {
	Auto bool
	Time time.Duration
}

// ExposureMode selects the sensor's integration strategy.
type ExposureMode int

const (
	ExposureStandard ExposureMode = iota
	ExposureFast
)

// DarkStatus reports the state of the dark reference.
type DarkStatus int

const (
	DarkNone DarkStatus = iota
	DarkInProgress
	DarkValid
)

// InfoID selects an informational string from the device.
type InfoID int

const (
	InfoModel InfoID = iota
	InfoSerial
	InfoFirmware
	InfoVendor
)

// DeviceInfo describes a device found during a scan.
type DeviceInfo struct {
	Name   string
	Serial string
	Model  string
}

// FlickerParams configures the flicker sampling front end: sample
// count and rate, and the FIR low-pass applied when a capture enables
// filtering.
type FlickerParams struct {
	SampleCount int
	SampleRate  float64 // Hz
	FIRTaps     int
	FIRCutoff   float64 // Hz
}

// FlickerCapture controls one flicker acquisition.
type FlickerCapture struct {
	AutoGain  bool
	Gain      uint16
	EnableFIR bool
}

// Keypad is the device's front-panel key queue.
type Keypad interface {
	Enable()
	Disable()
	Clear()
	// Read pops the oldest pending key. ok is false when the queue is
	// empty; reading while disabled returns domain.ErrKeypadDisabled.
	Read() (key uint32, ok bool, err error)
}

// Capturer takes measurements and exposes the typed data registers.
type Capturer interface {
	// Capture integrates one measurement and latches it for reads.
	Capture(ctx context.Context, exp ExposureSettings) error

	// Data reads one typed register from the latched measurement.
	Data(t domain.DataType) (float64, error)

	// Measurement assembles the latched registers into a measurement.
	Measurement() (*domain.Measurement, error)
}

// DarkCalibrator manages the dark reference and exposure policy.
type DarkCalibrator interface {
	CaptureDark(ctx context.Context) error
	DarkStatus() DarkStatus
	SetAutoDark(on bool)
	SetExposureMode(mode ExposureMode) error
	SetMaxExposure(d time.Duration) error
}

// SpectrumReader exposes the spectral side of the sensor.
type SpectrumReader interface {
	// Spectrum returns the latched capture over [start, stop] nm.
	Spectrum(start, stop int) (domain.Spectrum, error)

	// PeakRaw samples the raw sensor at a fixed exposure and returns
	// uncorrected counts per pixel. Diagnostic use.
	PeakRaw(ctx context.Context, exposure time.Duration) ([]uint32, error)

	// LightStrength is the device's coarse 0-10 light level indicator.
	LightStrength() int
}

// Calibrated manages per-channel correction matrices.
type Calibrated interface {
	CorrectionMatrix(ch int) (calib.Matrix, error)
	SetCorrectionMatrix(ch int, m calib.Matrix) error
	// SelectChannel picks the matrix applied to subsequent captures.
	SelectChannel(ch int) error
}

// Peripherals covers everything on the device that isn't the sensor.
type Peripherals interface {
	Temperature() (float64, error)
	SetLCDBrightness(pct int) error
	Keypad() Keypad
	Info(id InfoID) (string, error)
}

// FlickerAnalyzer is the temporal-modulation subsystem.
type FlickerAnalyzer interface {
	// FlickerDark captures the flicker channel's dark baseline.
	FlickerDark(ctx context.Context) error

	SetFlickerParams(p FlickerParams) error

	// CaptureFlicker samples the waveform and derives the metrics.
	CaptureFlicker(ctx context.Context, opts FlickerCapture) (*domain.FlickerReading, error)

	// CaptureFlickerRaw fills the caller's buffer with unfiltered
	// samples and returns how many were written.
	CaptureFlickerRaw(ctx context.Context, exposure time.Duration, buf []float64) (int, error)
}

// Instrument is the full capability surface of one light meter.
// Adapters implement it; nothing above this port knows whether the
// device is simulated or physical.
type Instrument interface {
	Serial() string
	Model() string
	Close() error

	Capturer
	DarkCalibrator
	SpectrumReader
	Calibrated
	Peripherals
	FlickerAnalyzer
}

// Enumerator discovers and opens devices.
type Enumerator interface {
	// Scan lists reachable devices without opening them.
	Scan(ctx context.Context) ([]DeviceInfo, error)

	// Open opens a device by its enumeration name.
	Open(ctx context.Context, name string) (Instrument, error)

	// OpenBySerial opens a device by optical serial number.
	OpenBySerial(ctx context.Context, serial string) (Instrument, error)
}
