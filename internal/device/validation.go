package device

import (
	"fmt"
	"strings"
	"unicode"
)

const (
	maxIdentityLength = 128
	maxNameLength     = 100
)

// ValidateIdentity checks a hardware-reported device identity.
func ValidateIdentity(identity string) error {
	if strings.TrimSpace(identity) == "" {
		return fmt.Errorf("%w: device identity is required", ErrInvalidDevice)
	}
	if len(identity) > maxIdentityLength {
		return fmt.Errorf("%w: device identity exceeds %d characters", ErrInvalidDevice, maxIdentityLength)
	}
	for _, r := range identity {
		if unicode.IsControl(r) || unicode.IsSpace(r) {
			return fmt.Errorf("%w: device identity contains whitespace or control characters", ErrInvalidDevice)
		}
	}
	return nil
}

// ValidateName checks an operator-assigned device name.
func ValidateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidDevice)
	}
	if len(name) > maxNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidDevice, maxNameLength)
	}
	return nil
}
