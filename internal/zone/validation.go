package zone

import (
	"errors"
	"fmt"
)

// Validate checks the config against the rules the control loop relies on.
// All failures are reported together.
func (c *Config) Validate() error {
	var errs []error

	if c.DeviceKey == "" {
		errs = append(errs, errors.New("device_id is required"))
	}
	if c.SoundtrackAccountID == "" {
		errs = append(errs, errors.New("soundtrack_account_id is required"))
	}
	if c.SoundtrackZoneID == "" {
		errs = append(errs, errors.New("soundtrack_zone_id is required"))
	}
	if c.MinVolume < 0 || c.MinVolume > MaxVolume {
		errs = append(errs, fmt.Errorf("min_volume must be between 0 and %d", MaxVolume))
	}
	if c.MaxVolume < 0 || c.MaxVolume > MaxVolume {
		errs = append(errs, fmt.Errorf("max_volume must be between 0 and %d", MaxVolume))
	}
	if c.MinVolume > c.MaxVolume {
		errs = append(errs, errors.New("min_volume must not exceed max_volume"))
	}
	if c.QuietThresholdDB >= c.LoudThresholdDB {
		errs = append(errs, errors.New("quiet_threshold_db must be below loud_threshold_db"))
	}
	if !(c.SmoothingFactor > 0 && c.SmoothingFactor <= 1) {
		errs = append(errs, errors.New("smoothing_factor must be in (0, 1]"))
	}
	if c.SustainCount < 1 {
		errs = append(errs, errors.New("sustain_count must be at least 1"))
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
}
