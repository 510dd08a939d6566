package sim

import (
	"fmt"
	"sync"

	"github.com/lumabench/spectro-service/internal/domain"
	"github.com/lumabench/spectro-service/internal/ports"
)

// Temperature reads the internal sensor temperature. It drifts a
// little between reads, like the real thermistor does.
func (d *Device) Temperature() (float64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.open {
		return 0, domain.ErrDeviceClosed
	}

	d.temp += d.rng.NormFloat64() * 0.05
	if d.temp < 15 {
		d.temp = 15
	}
	if d.temp > 60 {
		d.temp = 60
	}
	return d.temp, nil
}

// SetLCDBrightness sets the front panel backlight, percent.
func (d *Device) SetLCDBrightness(pct int) error {
	if pct < 0 || pct > 100 {
		return fmt.Errorf("sim: LCD brightness %d%% out of range", pct)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.open {
		return domain.ErrDeviceClosed
	}
	d.lcd = pct
	return nil
}

// LCDBrightness returns the current backlight setting. Test hook.
func (d *Device) LCDBrightness() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lcd
}

// Keypad returns the front panel key queue.
func (d *Device) Keypad() ports.Keypad {
	return d.keypad
}

// Info returns an informational string by id.
func (d *Device) Info(id ports.InfoID) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.open {
		return "", domain.ErrDeviceClosed
	}

	switch id {
	case ports.InfoModel:
		return d.cfg.Model, nil
	case ports.InfoSerial:
		return d.cfg.Serial, nil
	case ports.InfoFirmware:
		return d.cfg.Firmware, nil
	case ports.InfoVendor:
		return "Lumabench Instruments", nil
	default:
		return "", fmt.Errorf("sim: unknown info id %d", id)
	}
}

// keypad is the simulated front panel key queue. Presses only land in
// the queue while the keypad is enabled, matching the hardware.
type keypad struct {
	mu      sync.Mutex
	enabled bool
	queue   []uint32
}

func newKeypad() *keypad {
	return &keypad{}
}

func (k *keypad) Enable() {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.enabled = true
}

func (k *keypad) Disable() {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.enabled = false
}

func (k *keypad) Clear() {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.queue = k.queue[:0]
}

func (k *keypad) Read() (uint32, bool, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if !k.enabled {
		return 0, false, domain.ErrKeypadDisabled
	}
	if len(k.queue) == 0 {
		return 0, false, nil
	}
	key := k.queue[0]
	k.queue = k.queue[1:]
	return key, true, nil
}

// Press simulates a front panel key press. Test hook; presses while
// the keypad is disabled are dropped.
func (k *keypad) Press(key uint32) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if !k.enabled {
		return
	}
	k.queue = append(k.queue, key)
}
