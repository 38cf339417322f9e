package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the auto-volume service.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Database     DatabaseConfig     `yaml:"database"`
	MQTT         MQTTConfig         `yaml:"mqtt"`
	API          APIConfig          `yaml:"api"`
	WebSocket    WebSocketConfig    `yaml:"websocket"`
	InfluxDB     InfluxDBConfig     `yaml:"influxdb"`
	Logging      LoggingConfig      `yaml:"logging"`
	Soundtrack   SoundtrackConfig   `yaml:"soundtrack"`
	Control      ControlConfig      `yaml:"control"`
	ZoneDefaults ZoneDefaultsConfig `yaml:"zone_defaults"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
// MQTT is optional; when disabled no events are published and no
// operator commands are accepted over the broker.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// WebSocketConfig contains settings shared by the device gateway socket and
// the operator event socket.
type WebSocketConfig struct {
	// Path is where hardware clients connect.
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`

	// PingInterval is in seconds. Zero disables keepalive pings and read
	// deadlines, leaving liveness entirely to the transport.
	PingInterval int `yaml:"ping_interval"`
	PongTimeout  int `yaml:"pong_timeout"`

	// SendBuffer is the per-connection outbound frame buffer. Frames pushed
	// while the buffer is full are dropped.
	SendBuffer int `yaml:"send_buffer"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// SoundtrackConfig contains credentials and endpoints for the zone-control API.
//
// Either APIToken (a pre-issued bearer token) or ClientID/ClientSecret
// (OAuth client-credentials) must be set for actuation to work.
type SoundtrackConfig struct {
	APIURL       string `yaml:"api_url"`
	TokenURL     string `yaml:"token_url"`
	APIToken     string `yaml:"api_token"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`

	// Timeout is the per-request HTTP timeout in seconds.
	Timeout int `yaml:"timeout"`
}

// ControlConfig contains control-loop policy settings.
type ControlConfig struct {
	// MinActuationIntervalMS is the minimum time between two set-volume
	// calls for the same zone.
	MinActuationIntervalMS int `yaml:"min_actuation_interval_ms"`
}

// ZoneDefaultsConfig holds the values applied to a new zone configuration
// when the operator leaves them unset.
type ZoneDefaultsConfig struct {
	MinVolume        int     `yaml:"min_volume"`
	MaxVolume        int     `yaml:"max_volume"`
	QuietThresholdDB float64 `yaml:"quiet_threshold_db"`
	LoudThresholdDB  float64 `yaml:"loud_threshold_db"`
	SmoothingFactor  float64 `yaml:"smoothing_factor"`
	SustainCount     int     `yaml:"sustain_count"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults), skipped if the file does not exist
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: AUTOVOLUME_SECTION_KEY
// For example: AUTOVOLUME_DATABASE_PATH, AUTOVOLUME_API_PORT
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	case errors.Is(err, fs.ErrNotExist):
		// Hosted deployments configure everything through the environment.
	default:
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:        "./data/autovolume.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "autovolume",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 10000,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
			SendBuffer:     32,
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Soundtrack: SoundtrackConfig{
			APIURL:   "https://api.soundtrackyourbrand.com/v2",
			TokenURL: "https://accounts.soundtrackyourbrand.com/oauth/token",
			Timeout:  10,
		},
		Control: ControlConfig{
			MinActuationIntervalMS: 2000,
		},
		ZoneDefaults: ZoneDefaultsConfig{
			MinVolume:        4,
			MaxVolume:        12,
			QuietThresholdDB: -70,
			LoudThresholdDB:  -40,
			SmoothingFactor:  0.2,
			SustainCount:     3,
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("AUTOVOLUME_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	if v := os.Getenv("AUTOVOLUME_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("AUTOVOLUME_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("AUTOVOLUME_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	if v := os.Getenv("AUTOVOLUME_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	// PORT is what most PaaS hosts inject.
	for _, key := range []string{"PORT", "AUTOVOLUME_API_PORT"} {
		if v := os.Getenv(key); v != "" {
			if port, err := strconv.Atoi(v); err == nil {
				cfg.API.Port = port
			}
		}
	}

	if v := os.Getenv("AUTOVOLUME_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	if v := os.Getenv("AUTOVOLUME_SOUNDTRACK_API_TOKEN"); v != "" {
		cfg.Soundtrack.APIToken = v
	}
	if v := os.Getenv("AUTOVOLUME_SOUNDTRACK_CLIENT_ID"); v != "" {
		cfg.Soundtrack.ClientID = v
	}
	if v := os.Getenv("AUTOVOLUME_SOUNDTRACK_CLIENT_SECRET"); v != "" {
		cfg.Soundtrack.ClientSecret = v
	}
}

// Validate checks the configuration for errors.
// All problems are reported together rather than one at a time.
func (c *Config) Validate() error {
	var errs []string

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if !strings.HasPrefix(c.WebSocket.Path, "/") {
		errs = append(errs, "websocket.path must start with /")
	}
	if c.WebSocket.MaxMessageSize <= 0 {
		errs = append(errs, "websocket.max_message_size must be positive")
	}

	if c.Soundtrack.APIURL == "" {
		errs = append(errs, "soundtrack.api_url is required")
	}

	if c.Control.MinActuationIntervalMS < 0 {
		errs = append(errs, "control.min_actuation_interval_ms must not be negative")
	}

	d := c.ZoneDefaults
	if d.MinVolume < 0 || d.MaxVolume > 16 || d.MinVolume > d.MaxVolume {
		errs = append(errs, "zone_defaults volume bounds must satisfy 0 <= min <= max <= 16")
	}
	if d.QuietThresholdDB >= d.LoudThresholdDB {
		errs = append(errs, "zone_defaults.quiet_threshold_db must be below loud_threshold_db")
	}
	if d.SmoothingFactor <= 0 || d.SmoothingFactor > 1 {
		errs = append(errs, "zone_defaults.smoothing_factor must be in (0, 1]")
	}
	if d.SustainCount < 1 {
		errs = append(errs, "zone_defaults.sustain_count must be at least 1")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}

// MinActuationInterval returns the control-loop rate limit as a Duration.
func (c *Config) MinActuationInterval() time.Duration {
	return time.Duration(c.Control.MinActuationIntervalMS) * time.Millisecond
}
