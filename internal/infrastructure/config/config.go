package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for ConsultEase Core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site           SiteConfig           `yaml:"site"`
	Database       DatabaseConfig       `yaml:"database"`
	MQTT           MQTTConfig           `yaml:"mqtt"`
	EmbeddedBroker EmbeddedBrokerConfig `yaml:"embedded_broker"`
	API            APIConfig            `yaml:"api"`
	WebSocket      WebSocketConfig      `yaml:"websocket"`
	InfluxDB       InfluxDBConfig       `yaml:"influxdb"`
	Telemetry      TelemetryConfig      `yaml:"telemetry"`
	Presence       PresenceConfig       `yaml:"presence"`
	Logging        LoggingConfig        `yaml:"logging"`
}

// SiteConfig identifies the deployment (one central system per campus building).
type SiteConfig struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Timezone string `yaml:"timezone"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains message bus settings.
type MQTTConfig struct {
	Broker         MQTTBrokerConfig    `yaml:"broker"`
	Auth           MQTTAuthConfig      `yaml:"auth"`
	QoS            int                 `yaml:"qos"`
	KeepAlive      time.Duration       `yaml:"keep_alive"`
	ConnectTimeout time.Duration       `yaml:"connect_timeout"`
	Reconnect      MQTTReconnectConfig `yaml:"reconnect"`
	Publish        MQTTPublishConfig   `yaml:"publish"`
	Dispatch       MQTTDispatchConfig  `yaml:"dispatch"`
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

// MQTTReconnectConfig controls the reconnect backoff.
// Delays are YAML durations ("500ms", "30s").
type MQTTReconnectConfig struct {
	InitialDelay time.Duration `yaml:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
	Multiplier   float64       `yaml:"multiplier"`
	// Jitter is the randomisation factor applied to each delay (0 disables it).
	Jitter float64 `yaml:"jitter"`
}

// Publish acknowledgement policies.
const (
	// AckPolicyBroker waits for the broker acknowledgement (PUBACK/PUBCOMP).
	AckPolicyBroker = "broker"
	// AckPolicyHandoff returns once the message is handed to the transport.
	AckPolicyHandoff = "handoff"
)

// MQTTPublishConfig controls publish delivery accounting.
type MQTTPublishConfig struct {
	Timeout   time.Duration `yaml:"timeout"`
	AckPolicy string        `yaml:"ack_policy"`
}

// MQTTDispatchConfig controls the inbound message queue.
type MQTTDispatchConfig struct {
	QueueSize int `yaml:"queue_size"`
}

// EmbeddedBrokerConfig configures the in-process development broker.
type EmbeddedBrokerConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
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
}

// WebSocketConfig contains WebSocket relay settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
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

// TelemetryConfig controls periodic bus statistics reporting.
type TelemetryConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
}

// PresenceConfig controls faculty presence tracking.
type PresenceConfig struct {
	// HistoryRetention is how long presence transitions are kept. Zero keeps everything.
	HistoryRetention time.Duration `yaml:"history_retention"`
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
// Environment variables follow the pattern: CONSULTEASE_SECTION_KEY
// For example: CONSULTEASE_DATABASE_PATH, CONSULTEASE_MQTT_HOST
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
	cfg.MQTT.Broker.ClientID = resolveClientID(cfg.MQTT.Broker.ClientID)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns the built-in configuration without reading a file.
// Useful for tests and for running against a local broker with no config.
func Default() *Config {
	cfg := defaultConfig()
	cfg.MQTT.Broker.ClientID = resolveClientID(cfg.MQTT.Broker.ClientID)
	return cfg
}

// DefaultMQTT returns the default message bus settings.
func DefaultMQTT() MQTTConfig {
	return defaultConfig().MQTT
}

func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			ID:       "consultease-central",
			Name:     "ConsultEase",
			Timezone: "UTC",
		},
		Database: DatabaseConfig{
			Path:        "./data/consultease.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host: "localhost",
				Port: 1883,
			},
			QoS:            1,
			KeepAlive:      60 * time.Second,
			ConnectTimeout: 10 * time.Second,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: time.Second,
				MaxDelay:     60 * time.Second,
				Multiplier:   2,
				Jitter:       0.2,
			},
			Publish: MQTTPublishConfig{
				Timeout:   5 * time.Second,
				AckPolicy: AckPolicyBroker,
			},
			Dispatch: MQTTDispatchConfig{
				QueueSize: 256,
			},
		},
		EmbeddedBroker: EmbeddedBrokerConfig{
			Address: "127.0.0.1:1883",
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
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		InfluxDB: InfluxDBConfig{
			Org:           "consultease",
			Bucket:        "consultease",
			BatchSize:     100,
			FlushInterval: 10,
		},
		Telemetry: TelemetryConfig{
			Interval: 30 * time.Second,
		},
		Presence: PresenceConfig{
			HistoryRetention: 30 * 24 * time.Hour,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) {
	// Database
	if v := os.Getenv("CONSULTEASE_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("CONSULTEASE_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("CONSULTEASE_MQTT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.MQTT.Broker.Port = port
		}
	}
	if v := os.Getenv("CONSULTEASE_MQTT_CLIENT_ID"); v != "" {
		cfg.MQTT.Broker.ClientID = v
	}
	if v := os.Getenv("CONSULTEASE_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("CONSULTEASE_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("CONSULTEASE_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	// InfluxDB
	if v := os.Getenv("CONSULTEASE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// resolveClientID fills an empty client ID with a unique one.
// Two central instances sharing an ID would keep kicking each other off the broker.
func resolveClientID(id string) string {
	if id != "" {
		return id
	}
	return "consultease-central-" + uuid.NewString()[:8]
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string

	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	errs = append(errs, c.MQTT.validate()...)

	if c.EmbeddedBroker.Enabled && c.EmbeddedBroker.Address == "" {
		errs = append(errs, "embedded_broker.address is required when enabled")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when enabled")
	}

	if c.Telemetry.Enabled && c.Telemetry.Interval <= 0 {
		errs = append(errs, "telemetry.interval must be positive when enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// Validate checks the message bus settings on their own.
// The bus service calls this before starting.
func (m MQTTConfig) Validate() error {
	if errs := m.validate(); len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (m MQTTConfig) validate() []string {
	var errs []string

	if m.Broker.Host == "" {
		errs = append(errs, "mqtt.broker.host is required")
	}
	if m.Broker.Port < 1 || m.Broker.Port > 65535 {
		errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
	}
	if m.QoS < 0 || m.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if m.Reconnect.InitialDelay <= 0 {
		errs = append(errs, "mqtt.reconnect.initial_delay must be positive")
	}
	if m.Reconnect.MaxDelay < m.Reconnect.InitialDelay {
		errs = append(errs, "mqtt.reconnect.max_delay must not be less than initial_delay")
	}
	if m.Reconnect.Multiplier < 1 {
		errs = append(errs, "mqtt.reconnect.multiplier must be at least 1")
	}
	if m.Reconnect.Jitter < 0 || m.Reconnect.Jitter > 1 {
		errs = append(errs, "mqtt.reconnect.jitter must be between 0 and 1")
	}
	switch m.Publish.AckPolicy {
	case AckPolicyBroker, AckPolicyHandoff:
	default:
		errs = append(errs, fmt.Sprintf("mqtt.publish.ack_policy %q must be %q or %q",
			m.Publish.AckPolicy, AckPolicyBroker, AckPolicyHandoff))
	}
	if m.Publish.Timeout <= 0 {
		errs = append(errs, "mqtt.publish.timeout must be positive")
	}
	if m.Dispatch.QueueSize < 1 {
		errs = append(errs, "mqtt.dispatch.queue_size must be at least 1")
	}

	return errs
}

// BrokerURL returns the broker endpoint as a URL string (tcp:// or ssl://).
func (m MQTTConfig) BrokerURL() string {
	scheme := "tcp"
	if m.Broker.TLS {
		scheme = "ssl"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, m.Broker.Host, m.Broker.Port)
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
