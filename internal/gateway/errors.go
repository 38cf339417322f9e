package gateway

import "errors"

var (
	// ErrDeviceOffline is returned when a command targets a device with no
	// live session.
	ErrDeviceOffline = errors.New("gateway: device offline")

	// ErrUnknownCommand is returned for operator commands the gateway does
	// not recognise.
	ErrUnknownCommand = errors.New("gateway: unknown command")

	// ErrInvalidCommand is returned when a command payload cannot be parsed
	// or is missing required fields.
	ErrInvalidCommand = errors.New("gateway: invalid command")
)
