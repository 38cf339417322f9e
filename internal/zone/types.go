package zone

import (
	"time"

	"github.com/brightears/soundtrack-auto-volume/internal/volume"
)

// MaxVolume is the highest level the zone service accepts.
const MaxVolume = 16

// Config is the mapping configuration for one (device, zone) pair.
type Config struct {
	ID string `json:"id"`

	// DeviceKey is the device's record key, not its hardware identity.
	DeviceKey string `json:"device_id"`

	SoundtrackAccountID   string `json:"soundtrack_account_id"`
	SoundtrackAccountName string `json:"soundtrack_account_name,omitempty"`
	SoundtrackZoneID      string `json:"soundtrack_zone_id"`
	SoundtrackZoneName    string `json:"soundtrack_zone_name,omitempty"`

	IsEnabled bool `json:"is_enabled"`
	IsPaused  bool `json:"is_paused"`

	MinVolume        int     `json:"min_volume"`
	MaxVolume        int     `json:"max_volume"`
	QuietThresholdDB float64 `json:"quiet_threshold_db"`
	LoudThresholdDB  float64 `json:"loud_threshold_db"`
	SmoothingFactor  float64 `json:"smoothing_factor"`
	SustainCount     int     `json:"sustain_count"`

	// CurrentVolume is the last volume successfully applied to the zone.
	CurrentVolume *int `json:"current_volume,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Active reports whether readings should drive this zone.
func (c *Config) Active() bool {
	return c.IsEnabled && !c.IsPaused
}

// Params converts the config into control-loop parameters.
func (c *Config) Params() volume.Params {
	return volume.Params{
		Enabled:          c.Active(),
		MinVolume:        c.MinVolume,
		MaxVolume:        c.MaxVolume,
		QuietThresholdDB: c.QuietThresholdDB,
		LoudThresholdDB:  c.LoudThresholdDB,
		SmoothingFactor:  c.SmoothingFactor,
		SustainCount:     c.SustainCount,
	}
}

// Defaults are the mapping values given to a new config when the operator
// does not supply them.
type Defaults struct {
	MinVolume        int
	MaxVolume        int
	QuietThresholdDB float64
	LoudThresholdDB  float64
	SmoothingFactor  float64
	SustainCount     int
}

// NewConfig returns an enabled config for the pair, populated from d.
func (d Defaults) NewConfig(deviceKey, accountID, zoneID string) *Config {
	return &Config{
		DeviceKey:           deviceKey,
		SoundtrackAccountID: accountID,
		SoundtrackZoneID:    zoneID,
		IsEnabled:           true,
		MinVolume:           d.MinVolume,
		MaxVolume:           d.MaxVolume,
		QuietThresholdDB:    d.QuietThresholdDB,
		LoudThresholdDB:     d.LoudThresholdDB,
		SmoothingFactor:     d.SmoothingFactor,
		SustainCount:        d.SustainCount,
	}
}

// Patch is a partial update. Nil fields are left unchanged.
type Patch struct {
	SoundtrackAccountName *string  `json:"soundtrack_account_name,omitempty"`
	SoundtrackZoneName    *string  `json:"soundtrack_zone_name,omitempty"`
	IsEnabled             *bool    `json:"is_enabled,omitempty"`
	IsPaused              *bool    `json:"is_paused,omitempty"`
	MinVolume             *int     `json:"min_volume,omitempty"`
	MaxVolume             *int     `json:"max_volume,omitempty"`
	QuietThresholdDB      *float64 `json:"quiet_threshold_db,omitempty"`
	LoudThresholdDB       *float64 `json:"loud_threshold_db,omitempty"`
	SmoothingFactor       *float64 `json:"smoothing_factor,omitempty"`
	SustainCount          *int     `json:"sustain_count,omitempty"`
}

// Apply copies the set fields of p onto c.
func (p Patch) Apply(c *Config) {
	setIf(&c.SoundtrackAccountName, p.SoundtrackAccountName)
	setIf(&c.SoundtrackZoneName, p.SoundtrackZoneName)
	setIf(&c.IsEnabled, p.IsEnabled)
	setIf(&c.IsPaused, p.IsPaused)
	setIf(&c.MinVolume, p.MinVolume)
	setIf(&c.MaxVolume, p.MaxVolume)
	setIf(&c.QuietThresholdDB, p.QuietThresholdDB)
	setIf(&c.LoudThresholdDB, p.LoudThresholdDB)
	setIf(&c.SmoothingFactor, p.SmoothingFactor)
	setIf(&c.SustainCount, p.SustainCount)
}

// MappingChanged reports whether p touches any field the control loop's
// state depends on.
func (p Patch) MappingChanged() bool {
	return p.MinVolume != nil || p.MaxVolume != nil ||
		p.QuietThresholdDB != nil || p.LoudThresholdDB != nil ||
		p.SmoothingFactor != nil
}

func setIf[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}
