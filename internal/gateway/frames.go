package gateway

import "github.com/brightears/soundtrack-auto-volume/internal/zone"

// Frame types on the device socket.
const (
	TypeRegister     = "register"
	TypeSoundLevel   = "sound_level"
	TypeRegistered   = "registered"
	TypeSetAccount   = "set_account"
	TypeFactoryReset = "factory_reset"
)

// envelope is decoded first to dispatch on the frame type.
type envelope struct {
	Type string `json:"type"`
}

// RegisterFrame is sent by a device when its socket opens.
type RegisterFrame struct {
	Type      string `json:"type"`
	DeviceID  string `json:"deviceId"`
	Firmware  string `json:"firmware,omitempty"`
	AccountID string `json:"accountId,omitempty"`
}

// SoundLevelFrame carries one reading.
type SoundLevelFrame struct {
	Type     string   `json:"type"`
	DeviceID string   `json:"deviceId"`
	RMS      *float64 `json:"rms,omitempty"`
	DBFS     *float64 `json:"dbFS"`
}

// RegisteredMessage confirms a registration.
type RegisteredMessage struct {
	Type     string          `json:"type"`
	DeviceID string          `json:"deviceId"`
	Configs  []ConfigSummary `json:"configs"`
}

// ConfigSummary is the device-facing view of a zone config.
type ConfigSummary struct {
	ID               string  `json:"id"`
	ZoneID           string  `json:"soundtrackZoneId"`
	ZoneName         string  `json:"zoneName,omitempty"`
	IsEnabled        bool    `json:"isEnabled"`
	IsPaused         bool    `json:"isPaused"`
	MinVolume        int     `json:"minVolume"`
	MaxVolume        int     `json:"maxVolume"`
	QuietThresholdDB float64 `json:"quietThresholdDb"`
	LoudThresholdDB  float64 `json:"loudThresholdDb"`
	CurrentVolume    *int    `json:"currentVolume,omitempty"`
}

// SetAccountMessage tells a device which zone-service account it belongs to.
type SetAccountMessage struct {
	Type      string `json:"type"`
	AccountID string `json:"accountId"`
}

// FactoryResetMessage tells a device to wipe its provisioning.
type FactoryResetMessage struct {
	Type string `json:"type"`
}

func summarize(configs []zone.Config) []ConfigSummary {
	out := make([]ConfigSummary, 0, len(configs))
	for i := range configs {
		c := &configs[i]
		out = append(out, ConfigSummary{
			ID:               c.ID,
			ZoneID:           c.SoundtrackZoneID,
			ZoneName:         c.SoundtrackZoneName,
			IsEnabled:        c.IsEnabled,
			IsPaused:         c.IsPaused,
			MinVolume:        c.MinVolume,
			MaxVolume:        c.MaxVolume,
			QuietThresholdDB: c.QuietThresholdDB,
			LoudThresholdDB:  c.LoudThresholdDB,
			CurrentVolume:    c.CurrentVolume,
		})
	}
	return out
}
