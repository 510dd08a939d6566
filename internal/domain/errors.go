package domain

import "errors"

var (
	// ErrDeviceNotFound indicates no device matches the requested name or serial
	ErrDeviceNotFound = errors.New("device not found")

	// ErrDeviceClosed indicates an operation on a handle that is not open
	ErrDeviceClosed = errors.New("device is closed")

	// ErrNotCalibrated indicates a capture was attempted without a valid
	// dark reference while automatic dark compensation is off
	ErrNotCalibrated = errors.New("no valid dark reference")

	// ErrInvalidRange indicates a wavelength range or channel index
	// outside the device's bounds
	ErrInvalidRange = errors.New("range out of bounds")

	// ErrInvalidMeasurement indicates measurement data that fails validation,
	// or a typed read before any capture completed
	ErrInvalidMeasurement = errors.New("invalid measurement")

	// ErrMeasurementNotFound indicates a requested stored measurement doesn't exist
	ErrMeasurementNotFound = errors.New("measurement not found")

	// ErrBusy indicates the device is occupied by another long-running operation
	ErrBusy = errors.New("device busy")

	// ErrKeypadDisabled indicates a keypad read while the keypad is disabled
	ErrKeypadDisabled = errors.New("keypad is disabled")
)
