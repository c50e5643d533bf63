package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// minJWTSecretLength is the shortest accepted HS256 secret.
const minJWTSecretLength = 32

// Zone source values for HeatingConfig.ZoneSource.
const (
	// ZoneSourceDatabase reads zone definitions from the SQLite database.
	ZoneSourceDatabase = "database"

	// ZoneSourceConfig reads zone definitions from heating.zones in this file.
	ZoneSourceConfig = "config"
)

// Config is the root configuration structure for sensor2mqtt.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	// Host overrides the hostname used to namespace per-host topics.
	// Empty means os.Hostname().
	Host string `yaml:"host"`

	// Debug forces debug level logging regardless of logging.level.
	Debug bool `yaml:"debug"`

	MQTT      MQTTConfig      `yaml:"mqtt"`
	Database  DatabaseConfig  `yaml:"database"`
	Heating   HeatingConfig   `yaml:"heating"`
	Sensors   SensorsConfig   `yaml:"sensors"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	TLS  bool   `yaml:"tls"`

	// ClientID defaults to "<host>.<pid>" when empty.
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	// ConnectRetryDelay is the fixed pause between initial connection
	// attempts (seconds).
	ConnectRetryDelay int `yaml:"connect_retry_delay"`

	// InitialDelay and MaxDelay bound the broker client's automatic
	// reconnect backoff after a connection is lost (seconds).
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// HeatingConfig configures the heating zone coordinator.
type HeatingConfig struct {
	Enabled bool `yaml:"enabled"`

	// ZoneSource selects where zone definitions are read from:
	// "database" (default) or "config".
	ZoneSource string `yaml:"zone_source"`

	// Zones is only consulted when ZoneSource is "config".
	Zones []ZoneConfig `yaml:"zones"`
}

// ZoneConfig describes one heating zone.
type ZoneConfig struct {
	Controls     string `yaml:"controls"`
	HeatingRelay string `yaml:"heating_relay"`
	ValveRelay   string `yaml:"valve_relay,omitempty"`
	ValveSwitch  string `yaml:"valve_switch,omitempty"`
}

// SensorsConfig groups the locally attached hardware adapters.
type SensorsConfig struct {
	DS18B20     DS18B20Config     `yaml:"ds18b20"`
	PIR         PIRConfig         `yaml:"pir"`
	Relays      RelaysConfig      `yaml:"relays"`
	Switches    SwitchesConfig    `yaml:"switches"`
	PondSkimmer PondSkimmerConfig `yaml:"pond_skimmer"`
	TSL2561     TSL2561Config     `yaml:"tsl2561"`
}

// DS18B20Config configures 1-wire temperature probe polling.
type DS18B20Config struct {
	Enabled bool `yaml:"enabled"`

	// Pins get their internal pull-up enabled for the 1-wire bus.
	Pins []int `yaml:"pins"`

	// Period between polls (seconds).
	Period int `yaml:"period"`

	// DevicesPath is the sysfs 1-wire device directory.
	DevicesPath string `yaml:"devices_path"`
}

// PIRConfig configures passive infrared motion sensors.
type PIRConfig struct {
	Pins []int `yaml:"pins"`
}

// RelaysConfig configures GPIO driven relays.
type RelaysConfig struct {
	Pins         []int `yaml:"pins"`
	InvertedPins []int `yaml:"inverted_pins"`
}

// SwitchesConfig configures GPIO switch inputs.
type SwitchesConfig struct {
	Pins []int `yaml:"pins"`
}

// TSL2561Config configures the I2C light sensor.
type TSL2561Config struct {
	Enabled bool `yaml:"enabled"`

	// Bus is the I2C bus number (/dev/i2c-N).
	Bus int `yaml:"bus"`

	// Address is the 7-bit device address: 0x29, 0x39 or 0x49.
	Address uint16 `yaml:"address"`

	// Period between readings (seconds).
	Period int `yaml:"period"`
}

// PondSkimmerConfig configures the timed pond skimmer relay.
type PondSkimmerConfig struct {
	// Relay is the controls key of the skimmer relay. Empty disables the skimmer.
	Relay string `yaml:"relay"`

	// HoldSeconds is how long the pump stays off after a feed request.
	HoldSeconds int `yaml:"hold_seconds"`
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

// APIConfig contains the status HTTP server settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`

	// JWTSecret, when set, requires an HS256 bearer token on every
	// route except health.
	JWTSecret string `yaml:"jwt_secret"`
}

// APITimeoutConfig contains HTTP timeout settings (seconds).
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// WebSocketConfig contains live feed settings.
type WebSocketConfig struct {
	MaxMessageSize int `yaml:"max_message_size"`
	PingInterval   int `yaml:"ping_interval"`
	PongTimeout    int `yaml:"pong_timeout"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: SENSOR2MQTT_SECTION_KEY
// For example: SENSOR2MQTT_DATABASE_PATH, SENSOR2MQTT_MQTT_HOST
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
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
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host: "localhost",
				Port: 1883,
			},
			QoS: 2,
			Reconnect: MQTTReconnectConfig{
				ConnectRetryDelay: 1,
				InitialDelay:      1,
				MaxDelay:          60,
			},
		},
		Database: DatabaseConfig{
			Path:        "./data/sensor2mqtt.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		Heating: HeatingConfig{
			ZoneSource: ZoneSourceDatabase,
		},
		Sensors: SensorsConfig{
			DS18B20: DS18B20Config{
				Period:      30,
				DevicesPath: "/sys/bus/w1/devices",
			},
			PondSkimmer: PondSkimmerConfig{
				HoldSeconds: 3600,
			},
			TSL2561: TSL2561Config{
				Bus:     1,
				Address: 0x29,
				Period:  30,
			},
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: SENSOR2MQTT_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SENSOR2MQTT_HOST"); v != "" {
		cfg.Host = v
	}

	// Database
	if v := os.Getenv("SENSOR2MQTT_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("SENSOR2MQTT_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("SENSOR2MQTT_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("SENSOR2MQTT_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("SENSOR2MQTT_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// API
	if v := os.Getenv("SENSOR2MQTT_API_JWT_SECRET"); v != "" {
		cfg.API.JWTSecret = v
	}
}

// Validate checks the configuration for errors.
// Every problem is reported, not just the first.
func (c *Config) Validate() error {
	var errs []string

	// MQTT
	if c.MQTT.Broker.Host == "" {
		errs = append(errs, "mqtt.broker.host is required")
	}
	if c.MQTT.Broker.Port < 1 || c.MQTT.Broker.Port > 65535 {
		errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Reconnect.ConnectRetryDelay < 1 {
		errs = append(errs, "mqtt.reconnect.connect_retry_delay must be at least 1 second")
	}

	// Heating
	if c.Heating.Enabled {
		errs = append(errs, c.Heating.validate(c.Database)...)
	}

	// Sensors
	errs = append(errs, c.Sensors.validate()...)

	// InfluxDB
	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			errs = append(errs, "influxdb.url is required when influxdb is enabled")
		}
		if c.InfluxDB.Bucket == "" {
			errs = append(errs, "influxdb.bucket is required when influxdb is enabled")
		}
	}

	// API
	if c.API.Enabled {
		if c.API.Port < 1 || c.API.Port > 65535 {
			errs = append(errs, "api.port must be between 1 and 65535")
		}
		if c.API.JWTSecret != "" && len(c.API.JWTSecret) < minJWTSecretLength {
			errs = append(errs, fmt.Sprintf("api.jwt_secret must be at least %d characters", minJWTSecretLength))
		}
		if c.WebSocket.PingInterval < 1 || c.WebSocket.PongTimeout < 1 {
			errs = append(errs, "websocket.ping_interval and websocket.pong_timeout must be at least 1 second")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

func (h HeatingConfig) validate(db DatabaseConfig) []string {
	var errs []string

	switch h.ZoneSource {
	case ZoneSourceDatabase:
		if db.Path == "" {
			errs = append(errs, "database.path is required when heating.zone_source is database")
		}
	case ZoneSourceConfig:
		seen := make(map[string]bool, len(h.Zones))
		for i, z := range h.Zones {
			prefix := fmt.Sprintf("heating.zones[%d]", i)
			if z.Controls == "" {
				errs = append(errs, prefix+".controls is required")
			} else if seen[z.Controls] {
				errs = append(errs, fmt.Sprintf("%s.controls %q is duplicated", prefix, z.Controls))
			}
			seen[z.Controls] = true
			if z.HeatingRelay == "" {
				errs = append(errs, prefix+".heating_relay is required")
			}
			if z.ValveSwitch != "" && z.ValveRelay == "" {
				errs = append(errs, prefix+" has a valve_switch without a valve_relay")
			}
		}
	default:
		errs = append(errs, fmt.Sprintf("heating.zone_source must be %q or %q", ZoneSourceDatabase, ZoneSourceConfig))
	}

	return errs
}

func (s SensorsConfig) validate() []string {
	var errs []string

	// A GPIO pin can only be owned by one adapter.
	owners := make(map[int]string)
	claim := func(kind string, pins []int) {
		for _, p := range pins {
			if p < 0 {
				errs = append(errs, fmt.Sprintf("sensors.%s pin %d is negative", kind, p))
				continue
			}
			if prev, ok := owners[p]; ok {
				errs = append(errs, fmt.Sprintf("sensors.%s pin %d already used by sensors.%s", kind, p, prev))
				continue
			}
			owners[p] = kind
		}
	}
	claim("ds18b20.pins", s.DS18B20.Pins)
	claim("pir.pins", s.PIR.Pins)
	claim("relays.pins", s.Relays.Pins)
	claim("relays.inverted_pins", s.Relays.InvertedPins)
	claim("switches.pins", s.Switches.Pins)

	if s.DS18B20.Enabled {
		if s.DS18B20.Period < 1 {
			errs = append(errs, "sensors.ds18b20.period must be at least 1 second")
		}
		if s.DS18B20.DevicesPath == "" {
			errs = append(errs, "sensors.ds18b20.devices_path is required")
		}
	}

	if s.TSL2561.Enabled {
		switch s.TSL2561.Address {
		case 0x29, 0x39, 0x49:
		default:
			errs = append(errs, fmt.Sprintf("sensors.tsl2561.address %#x must be 0x29, 0x39 or 0x49", s.TSL2561.Address))
		}
		if s.TSL2561.Bus < 0 {
			errs = append(errs, "sensors.tsl2561.bus is negative")
		}
		if s.TSL2561.Period < 1 {
			errs = append(errs, "sensors.tsl2561.period must be at least 1 second")
		}
	}

	if s.PondSkimmer.Relay != "" && s.PondSkimmer.HoldSeconds < 1 {
		errs = append(errs, "sensors.pond_skimmer.hold_seconds must be at least 1 second")
	}

	return errs
}

// ConnectRetryDelay returns the fixed delay between initial connection attempts.
func (c *Config) ConnectRetryDelay() time.Duration {
	return time.Duration(c.MQTT.Reconnect.ConnectRetryDelay) * time.Second
}

// PeriodDuration returns the probe poll period as a Duration.
func (d DS18B20Config) PeriodDuration() time.Duration {
	return time.Duration(d.Period) * time.Second
}

// Hold returns the skimmer hold time as a Duration.
func (p PondSkimmerConfig) Hold() time.Duration {
	return time.Duration(p.HoldSeconds) * time.Second
}

// PeriodDuration returns the light sensor poll period as a Duration.
func (t TSL2561Config) PeriodDuration() time.Duration {
	return time.Duration(t.Period) * time.Second
}
