package instrument

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/lumabench/spectro-service/internal/domain"
	"github.com/lumabench/spectro-service/internal/ports"
)

// Manager owns the driver lifetime and the table of open device
// handles. It is safe for concurrent use; handles are keyed by optical
// serial number and opening an already-open device returns the
// existing handle.
type Manager struct {
	enum ports.Enumerator

	mu      sync.RWMutex
	open    map[string]ports.Instrument
	devices []ports.DeviceInfo
	started bool
}

// NewManager creates a manager over the given driver.
func NewManager(enum ports.Enumerator) *Manager {
	return &Manager{
		enum: enum,
		open: make(map[string]ports.Instrument),
	}
}

// Init brings the driver up and runs the first scan. The underlying
// hardware needs a few hundred milliseconds to settle after power-up;
// callers bound that with the context deadline.
func (m *Manager) Init(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started {
		return nil
	}

	devices, err := m.enum.Scan(ctx)
	if err != nil {
		return fmt.Errorf("initial device scan: %w", err)
	}

	m.devices = devices
	m.started = true

	log.Info().Int("devices", len(devices)).Msg("instrument driver initialized")
	return nil
}

// Scan refreshes the device list without opening anything.
func (m *Manager) Scan(ctx context.Context) ([]ports.DeviceInfo, error) {
	devices, err := m.enum.Scan(ctx)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.devices = devices
	m.mu.Unlock()

	return devices, nil
}

// Devices returns the result of the last scan.
func (m *Manager) Devices() []ports.DeviceInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ports.DeviceInfo, len(m.devices))
	copy(out, m.devices)
	return out
}

// Count returns the number of devices found by the last scan.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.devices)
}

// Open opens a device by enumeration name.
func (m *Manager) Open(ctx context.Context, name string) (ports.Instrument, error) {
	inst, err := m.enum.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	return m.adopt(inst), nil
}

// OpenBySerial opens a device by optical serial number.
func (m *Manager) OpenBySerial(ctx context.Context, serial string) (ports.Instrument, error) {
	m.mu.RLock()
	existing, ok := m.open[serial]
	m.mu.RUnlock()
	if ok {
		return existing, nil
	}

	inst, err := m.enum.OpenBySerial(ctx, serial)
	if err != nil {
		return nil, err
	}
	return m.adopt(inst), nil
}

// adopt registers a freshly opened handle, deduplicating by serial.
func (m *Manager) adopt(inst ports.Instrument) ports.Instrument {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.open[inst.Serial()]; ok {
		// Raced with another open of the same device; keep the first.
		_ = inst.Close()
		return existing
	}

	m.open[inst.Serial()] = inst
	log.Info().Str("serial", inst.Serial()).Str("model", inst.Model()).Msg("device opened")
	return inst
}

// Get returns an open handle by serial.
func (m *Manager) Get(serial string) (ports.Instrument, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	inst, ok := m.open[serial]
	if !ok {
		return nil, domain.ErrDeviceClosed
	}
	return inst, nil
}

// Close closes and forgets the handle for a serial.
func (m *Manager) Close(serial string) error {
	m.mu.Lock()
	inst, ok := m.open[serial]
	delete(m.open, serial)
	m.mu.Unlock()

	if !ok {
		return domain.ErrDeviceClosed
	}

	log.Info().Str("serial", serial).Msg("device closed")
	return inst.Close()
}

// OpenCount returns the number of open handles.
func (m *Manager) OpenCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.open)
}

// CaptureAll triggers a capture on every open handle concurrently and
// reports the outcome per serial. One failing device does not abort
// the others.
func (m *Manager) CaptureAll(ctx context.Context, exp ports.ExposureSettings) map[string]error {
	return m.forEach(func(inst ports.Instrument) error {
		return inst.Capture(ctx, exp)
	})
}

// DarkAll captures a dark reference on every open handle concurrently.
func (m *Manager) DarkAll(ctx context.Context) map[string]error {
	return m.forEach(func(inst ports.Instrument) error {
		return inst.CaptureDark(ctx)
	})
}

func (m *Manager) forEach(op func(ports.Instrument) error) map[string]error {
	m.mu.RLock()
	handles := make(map[string]ports.Instrument, len(m.open))
	for sn, inst := range m.open {
		handles[sn] = inst
	}
	m.mu.RUnlock()

	results := make(map[string]error, len(handles))
	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for sn, inst := range handles {
		wg.Add(1)
		go func(sn string, inst ports.Instrument) {
			defer wg.Done()
			err := op(inst)
			mu.Lock()
			results[sn] = err
			mu.Unlock()
		}(sn, inst)
	}
	wg.Wait()
	return results
}

// Shutdown closes every open handle and stops the driver.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for sn, inst := range m.open {
		if err := inst.Close(); err != nil {
			log.Error().Err(err).Str("serial", sn).Msg("failed to close device")
		}
		delete(m.open, sn)
	}
	m.started = false

	log.Info().Msg("instrument driver shut down")
}
