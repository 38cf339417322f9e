package device

import "time"

// Device is the durable record for one sound-sensing device.
type Device struct {
	ID       string `json:"id"`
	DeviceID string `json:"device_id"`
	Name     string `json:"name"`
	Firmware string `json:"firmware,omitempty"`

	IsOnline bool       `json:"is_online"`
	IsPaused bool       `json:"is_paused"`
	LastSeen *time.Time `json:"last_seen,omitempty"`

	// SoundtrackAccountID is the zone-service account this device was last
	// associated with. It is pushed back to the device on registration when
	// the device did not report one itself.
	SoundtrackAccountID *string `json:"soundtrack_account_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AccountID returns the associated account, or "" when there is none.
func (d *Device) AccountID() string {
	if d.SoundtrackAccountID == nil {
		return ""
	}
	return *d.SoundtrackAccountID
}
