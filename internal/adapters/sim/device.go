package sim

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/lumabench/spectro-service/internal/calib"
	"github.com/lumabench/spectro-service/internal/domain"
	"github.com/lumabench/spectro-service/internal/ports"
)

// Exposure time is quantized by the hardware to 100 µs steps.
const exposureStep = 100 * time.Microsecond

// DeviceConfig describes one simulated meter and the light source it
// is pointed at.
type DeviceConfig struct {
	Name      string  `yaml:"name"`
	Serial    string  `yaml:"serial"`
	Model     string  `yaml:"model"`
	Firmware  string  `yaml:"firmware"`
	CCT       float64 `yaml:"cct"`       // source color temperature, kelvin
	Lux       float64 `yaml:"lux"`       // source illuminance at the sensor
	Variation float64 `yaml:"variation"` // capture-to-capture noise, fraction

	// FlickerFreq/FlickerDepth describe the source's temporal
	// modulation (e.g. 120 Hz at 0.2 for a cheap mains LED driver).
	FlickerFreq  float64 `yaml:"flicker_freq"`
	FlickerDepth float64 `yaml:"flicker_depth"`

	// DarkLevel is the sensor's dark current baseline, W·m⁻²·nm⁻¹.
	DarkLevel float64 `yaml:"dark_level"`

	// RequireDark makes captures fail until a dark reference is taken
	// or automatic dark compensation is enabled.
	RequireDark bool `yaml:"require_dark"`

	Seed int64 `yaml:"seed"`
}

func (c *DeviceConfig) applyDefaults() {
	if c.Model == "" {
		c.Model = "SPR-4500"
	}
	if c.Firmware == "" {
		c.Firmware = "4.1.7"
	}
	if c.Name == "" {
		c.Name = c.Model + "#" + c.Serial
	}
	if c.CCT == 0 {
		c.CCT = 5000
	}
	if c.Lux == 0 {
		c.Lux = 500
	}
	if c.DarkLevel == 0 {
		c.DarkLevel = 2e-4
	}
	if c.Seed == 0 {
		c.Seed = time.Now().UnixNano()
	}
}

// Device is a simulated spectro-photometric meter. It implements
// ports.Instrument with the same observable behavior the physical
// devices have: captures latch a register set, dark references remove
// the baseline, correction matrices shift the tristimulus values.
type Device struct {
	cfg DeviceConfig

	mu   sync.Mutex
	rng  *rand.Rand
	open bool
	busy bool

	// reference SPD of the source, normalized to peak 1
	sourceSPD domain.Spectrum

	autoDark     bool
	darkStatus   ports.DarkStatus
	darkRef      float64 // measured baseline, valid when darkStatus == DarkValid
	exposureMode ports.ExposureMode
	maxExposure  time.Duration

	matrices map[int]calib.Matrix
	activeCh int

	captured  bool
	registers map[domain.DataType]float64
	spectrum  domain.Spectrum

	flk     ports.FlickerParams
	flkDark bool

	keypad *keypad
	temp   float64
	lcd    int
}

func newDevice(cfg DeviceConfig) *Device {
	cfg.applyDefaults()
	return &Device{
		cfg:         cfg,
		rng:         rand.New(rand.NewSource(cfg.Seed)),
		open:        true,
		sourceSPD:   planckSpectrum(cfg.CCT),
		maxExposure: time.Second,
		matrices:    make(map[int]calib.Matrix),
		registers:   make(map[domain.DataType]float64),
		flk: ports.FlickerParams{
			SampleCount: 1024,
			SampleRate:  4096,
			FIRTaps:     63,
			FIRCutoff:   400,
		},
		keypad: newKeypad(),
		temp:   25.0,
		lcd:    80,
	}
}

// Serial returns the optical serial number.
func (d *Device) Serial() string { return d.cfg.Serial }

// Model returns the device model string.
func (d *Device) Model() string { return d.cfg.Model }

// Close releases the handle. Further operations fail with
// domain.ErrDeviceClosed.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.open = false
	return nil
}

// Capture integrates one measurement and latches the data registers.
func (d *Device) Capture(ctx context.Context, exp ports.ExposureSettings) error {
	d.mu.Lock()
	if !d.open {
		d.mu.Unlock()
		return domain.ErrDeviceClosed
	}
	if d.busy {
		d.mu.Unlock()
		return domain.ErrBusy
	}
	if d.cfg.RequireDark && !d.autoDark && d.darkStatus != ports.DarkValid {
		d.mu.Unlock()
		return domain.ErrNotCalibrated
	}

	integration, err := d.exposureLocked(exp)
	if err != nil {
		d.mu.Unlock()
		return err
	}
	d.busy = true
	d.mu.Unlock()

	// Integration time passes for real; captures are cancellable.
	select {
	case <-ctx.Done():
		d.mu.Lock()
		d.busy = false
		d.mu.Unlock()
		return ctx.Err()
	case <-time.After(integration):
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.busy = false
	if !d.open {
		return domain.ErrDeviceClosed
	}

	d.latchMeasurement()
	return nil
}

// exposureLocked resolves the integration time for a capture.
func (d *Device) exposureLocked(exp ports.ExposureSettings) (time.Duration, error) {
	if exp.Auto {
		// Brighter sources need shorter integration. 10 ms at 500 lux.
		auto := time.Duration(float64(10*time.Millisecond) * 500 / d.cfg.Lux)
		if auto > d.maxExposure {
			auto = d.maxExposure
		}
		if auto < exposureStep {
			auto = exposureStep
		}
		return auto.Round(exposureStep), nil
	}

	if exp.Time <= 0 {
		return 0, fmt.Errorf("sim: manual exposure must be positive, got %v", exp.Time)
	}
	t := exp.Time.Round(exposureStep)
	if t < exposureStep {
		t = exposureStep
	}
	if t > d.maxExposure {
		t = d.maxExposure
	}
	return t, nil
}

// latchMeasurement synthesizes the capture: source SPD scaled to the
// configured illuminance with noise, dark baseline handling, the
// active correction matrix, then the derived register set.
func (d *Device) latchMeasurement() {
	level := d.cfg.Lux * (1 + d.rng.NormFloat64()*d.cfg.Variation)
	if level < 0 {
		level = 0
	}

	// Scale the normalized SPD so its luminous integral hits the level.
	refY := xyzFromSpectrum(d.sourceSPD)[1]
	scale := 0.0
	if refY > 0 {
		scale = level / refY
	}

	values := make([]float64, len(d.sourceSPD.Values))
	for i, v := range d.sourceSPD.Values {
		values[i] = v*scale + d.cfg.DarkLevel
	}

	// Dark compensation: auto mode re-measures the baseline on every
	// capture, otherwise the stored reference is subtracted. Without
	// either, the baseline stays in the data.
	switch {
	case d.autoDark:
		for i := range values {
			values[i] -= d.cfg.DarkLevel
		}
	case d.darkStatus == ports.DarkValid:
		for i := range values {
			values[i] -= d.darkRef
		}
	}
	spd := domain.Spectrum{Start: domain.SpectrumStart, Values: values}

	xyz := d.matrixLocked(d.activeCh).Apply(xyzFromSpectrum(spd))

	x, y := chromaticity(xyz)
	lux := xyz[1]
	cct := mccamyCCT(x, y)

	u, v := uv1960(xyz)
	up, vp := planckUV(cct)

	d.registers[domain.DataChromaX] = x
	d.registers[domain.DataChromaY] = y
	d.registers[domain.DataFootCandle] = lux / domain.LuxPerFootCandle
	d.registers[domain.DataCCT] = cct
	d.registers[domain.DataDeltaU] = u - up
	d.registers[domain.DataDeltaV] = v - vp

	d.spectrum = spd
	d.captured = true
}

// Data reads one typed register from the latched measurement.
func (d *Device) Data(t domain.DataType) (float64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.open {
		return 0, domain.ErrDeviceClosed
	}
	if !d.captured {
		return 0, domain.ErrInvalidMeasurement
	}
	v, ok := d.registers[t]
	if !ok {
		return 0, fmt.Errorf("sim: unknown data register %d", t)
	}
	return v, nil
}

// Measurement assembles the latched registers into a measurement.
func (d *Device) Measurement() (*domain.Measurement, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.open {
		return nil, domain.ErrDeviceClosed
	}
	if !d.captured {
		return nil, domain.ErrInvalidMeasurement
	}

	return domain.NewMeasurement(
		d.cfg.Serial,
		d.registers[domain.DataChromaX],
		d.registers[domain.DataChromaY],
		d.registers[domain.DataFootCandle],
		d.registers[domain.DataCCT],
		d.registers[domain.DataDeltaU],
		d.registers[domain.DataDeltaV],
	)
}

// CaptureDark measures the dark current baseline. The sensor must be
// covered; the simulation assumes it is.
func (d *Device) CaptureDark(ctx context.Context) error {
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
	d.darkStatus = ports.DarkInProgress
	d.mu.Unlock()

	select {
	case <-ctx.Done():
		d.mu.Lock()
		d.busy = false
		d.darkStatus = ports.DarkNone
		d.mu.Unlock()
		return ctx.Err()
	case <-time.After(5 * time.Millisecond):
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.busy = false
	d.darkRef = d.cfg.DarkLevel
	d.darkStatus = ports.DarkValid
	return nil
}

// DarkStatus reports the dark reference state.
func (d *Device) DarkStatus() ports.DarkStatus {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.darkStatus
}

// SetAutoDark toggles automatic dark compensation.
func (d *Device) SetAutoDark(on bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.autoDark = on
}

// SetExposureMode selects the integration strategy.
func (d *Device) SetExposureMode(mode ports.ExposureMode) error {
	if mode != ports.ExposureStandard && mode != ports.ExposureFast {
		return fmt.Errorf("sim: unknown exposure mode %d", mode)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.exposureMode = mode
	return nil
}

// SetMaxExposure caps the integration time for auto and manual
// captures.
func (d *Device) SetMaxExposure(max time.Duration) error {
	if max < exposureStep {
		return fmt.Errorf("sim: max exposure %v below the %v step", max, exposureStep)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.maxExposure = max
	return nil
}

// Spectrum returns the latched capture over [start, stop] nm.
func (d *Device) Spectrum(start, stop int) (domain.Spectrum, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.open {
		return domain.Spectrum{}, domain.ErrDeviceClosed
	}
	if !d.captured {
		return domain.Spectrum{}, domain.ErrInvalidMeasurement
	}
	return d.spectrum.Slice(start, stop)
}

// PeakRaw samples the raw sensor at a fixed exposure, returning
// uncorrected counts per pixel.
func (d *Device) PeakRaw(ctx context.Context, exposure time.Duration) ([]uint32, error) {
	d.mu.Lock()
	if !d.open {
		d.mu.Unlock()
		return nil, domain.ErrDeviceClosed
	}
	level := d.cfg.Lux
	spd := d.sourceSPD
	d.mu.Unlock()

	if exposure < exposureStep {
		exposure = exposureStep
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(exposure.Round(exposureStep)):
	}

	// Counts scale with level and integration time; 16-bit well depth.
	gain := level * exposure.Seconds() * 100
	out := make([]uint32, len(spd.Values))
	for i, v := range spd.Values {
		c := v * gain
		if c > 65535 {
			c = 65535
		}
		out[i] = uint32(c)
	}
	return out, nil
}

// LightStrength is the coarse 0-10 front panel light level.
func (d *Device) LightStrength() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch {
	case d.cfg.Lux <= 0:
		return 0
	case d.cfg.Lux >= 100000:
		return 10
	default:
		// log10 scale: 1 lux -> 0, 100k lux -> 10
		s := int(2 * math.Log10(d.cfg.Lux))
		if s < 0 {
			s = 0
		}
		if s > 10 {
			s = 10
		}
		return s
	}
}

// CorrectionMatrix returns the stored matrix for a channel, identity
// when none was set.
func (d *Device) CorrectionMatrix(ch int) (calib.Matrix, error) {
	if err := validChannel(ch); err != nil {
		return calib.Matrix{}, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.open {
		return calib.Matrix{}, domain.ErrDeviceClosed
	}
	return d.matrixLocked(ch), nil
}

// SetCorrectionMatrix stores the matrix for a channel.
func (d *Device) SetCorrectionMatrix(ch int, m calib.Matrix) error {
	if err := validChannel(ch); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.open {
		return domain.ErrDeviceClosed
	}
	d.matrices[ch] = m
	return nil
}

// SelectChannel picks the matrix applied to subsequent captures.
func (d *Device) SelectChannel(ch int) error {
	if err := validChannel(ch); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.open {
		return domain.ErrDeviceClosed
	}
	d.activeCh = ch
	return nil
}

func (d *Device) matrixLocked(ch int) calib.Matrix {
	if m, ok := d.matrices[ch]; ok {
		return m
	}
	return calib.Identity("factory")
}

// The meters expose four correction channels.
const channelCount = 4

func validChannel(ch int) error {
	if ch < 0 || ch >= channelCount {
		return fmt.Errorf("sim: channel %d outside [0,%d): %w", ch, channelCount, domain.ErrInvalidRange)
	}
	return nil
}
