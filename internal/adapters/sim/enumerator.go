package sim

import (
	"context"
	"time"

	"github.com/lumabench/spectro-service/internal/domain"
	"github.com/lumabench/spectro-service/internal/ports"
)

// Enumerator is the simulated driver front end: it knows a fixed
// fleet of devices and opens fresh handles to them.
type Enumerator struct {
	devices []DeviceConfig
	settle  time.Duration
}

// Option configures the enumerator.
type Option func(*Enumerator)

// WithSettleTime makes the first scan take the hardware's power-up
// settle time. Defaults to zero for tests.
func WithSettleTime(d time.Duration) Option {
	return func(e *Enumerator) { e.settle = d }
}

// NewEnumerator creates a driver over the given fleet. Device
// defaults are filled in, so a config only needs a serial.
func NewEnumerator(devices []DeviceConfig, opts ...Option) *Enumerator {
	e := &Enumerator{}
	for _, cfg := range devices {
		cfg.applyDefaults()
		e.devices = append(e.devices, cfg)
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Scan lists the fleet without opening anything.
func (e *Enumerator) Scan(ctx context.Context) ([]ports.DeviceInfo, error) {
	if e.settle > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(e.settle):
		}
		e.settle = 0
	}

	out := make([]ports.DeviceInfo, 0, len(e.devices))
	for _, cfg := range e.devices {
		out = append(out, ports.DeviceInfo{
			Name:   cfg.Name,
			Serial: cfg.Serial,
			Model:  cfg.Model,
		})
	}
	return out, nil
}

// Open opens a device by enumeration name.
func (e *Enumerator) Open(ctx context.Context, name string) (ports.Instrument, error) {
	for _, cfg := range e.devices {
		if cfg.Name == name {
			return newDevice(cfg), nil
		}
	}
	return nil, domain.ErrDeviceNotFound
}

// OpenBySerial opens a device by optical serial number.
func (e *Enumerator) OpenBySerial(ctx context.Context, serial string) (ports.Instrument, error) {
	for _, cfg := range e.devices {
		if cfg.Serial == serial {
			return newDevice(cfg), nil
		}
	}
	return nil, domain.ErrDeviceNotFound
}
