package zone

import "errors"

var (
	// ErrConfigNotFound is returned when a zone config ID does not exist.
	ErrConfigNotFound = errors.New("zone: config not found")

	// ErrConfigExists is returned when the device already drives the zone.
	ErrConfigExists = errors.New("zone: config already exists for device and zone")

	// ErrInvalidConfig is returned when config validation fails.
	ErrInvalidConfig = errors.New("zone: invalid config")

	// ErrUnknownDevice is returned when a config references a device record
	// that does not exist.
	ErrUnknownDevice = errors.New("zone: unknown device")
)
