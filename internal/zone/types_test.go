package zone

import (
	"errors"
	"testing"
)

func validConfig() *Config {
	return testDefaults.NewConfig("dev-key", "acct-1", "zone-1")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "full range", mutate: func(c *Config) { c.MinVolume, c.MaxVolume = 0, 16 }},
		{name: "fixed volume", mutate: func(c *Config) { c.MinVolume, c.MaxVolume = 8, 8 }},
		{name: "smoothing of one", mutate: func(c *Config) { c.SmoothingFactor = 1 }},
		{name: "missing device", mutate: func(c *Config) { c.DeviceKey = "" }, wantErr: true},
		{name: "missing account", mutate: func(c *Config) { c.SoundtrackAccountID = "" }, wantErr: true},
		{name: "missing zone", mutate: func(c *Config) { c.SoundtrackZoneID = "" }, wantErr: true},
		{name: "negative min", mutate: func(c *Config) { c.MinVolume = -1 }, wantErr: true},
		{name: "max above 16", mutate: func(c *Config) { c.MaxVolume = 17 }, wantErr: true},
		{name: "min above max", mutate: func(c *Config) { c.MinVolume, c.MaxVolume = 10, 5 }, wantErr: true},
		{name: "equal thresholds", mutate: func(c *Config) { c.QuietThresholdDB = c.LoudThresholdDB }, wantErr: true},
		{name: "inverted thresholds", mutate: func(c *Config) { c.QuietThresholdDB = -30 }, wantErr: true},
		{name: "zero smoothing", mutate: func(c *Config) { c.SmoothingFactor = 0 }, wantErr: true},
		{name: "smoothing above one", mutate: func(c *Config) { c.SmoothingFactor = 1.5 }, wantErr: true},
		{name: "zero sustain", mutate: func(c *Config) { c.SustainCount = 0 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			tt.mutate(c)
			err := c.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("Validate() error = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestParams(t *testing.T) {
	c := validConfig()

	p := c.Params()
	if !p.Enabled || p.MinVolume != 4 || p.MaxVolume != 12 || p.SustainCount != 3 {
		t.Errorf("Params() = %+v, want enabled defaults", p)
	}

	c.IsPaused = true
	if c.Params().Enabled {
		t.Error("paused config produced enabled params")
	}

	c.IsPaused = false
	c.IsEnabled = false
	if c.Params().Enabled {
		t.Error("disabled config produced enabled params")
	}
}

func TestPatch(t *testing.T) {
	c := validConfig()
	quiet := -65.0
	name := "Patio"

	p := Patch{QuietThresholdDB: &quiet, SoundtrackZoneName: &name}
	p.Apply(c)

	if c.QuietThresholdDB != -65 || c.SoundtrackZoneName != "Patio" {
		t.Errorf("Apply() = %+v, want quiet -65 and zone name Patio", c)
	}
	if c.LoudThresholdDB != -40 || c.MaxVolume != 12 {
		t.Error("Apply() changed fields that were not set")
	}
	if !p.MappingChanged() {
		t.Error("MappingChanged() = false for a threshold change")
	}

	enabled := false
	if (Patch{IsEnabled: &enabled}).MappingChanged() {
		t.Error("MappingChanged() = true for an enable toggle")
	}
}
