package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	path := writeConfig(t, `
site:
  id: "test-site"
database:
  path: "/tmp/test.db"
mqtt:
  broker:
    host: "broker.local"
    port: 1884
    client_id: "test-client"
  qos: 2
  reconnect:
    initial_delay: 250ms
    max_delay: 5s
    multiplier: 1.5
    jitter: 0.1
  publish:
    timeout: 2s
    ack_policy: handoff
  dispatch:
    queue_size: 32
api:
  port: 8080
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Site.ID != "test-site" {
		t.Errorf("Site.ID = %q, want %q", cfg.Site.ID, "test-site")
	}
	if cfg.MQTT.Broker.Host != "broker.local" || cfg.MQTT.Broker.Port != 1884 {
		t.Errorf("MQTT.Broker = %+v, want broker.local:1884", cfg.MQTT.Broker)
	}
	if cfg.MQTT.Broker.ClientID != "test-client" {
		t.Errorf("ClientID = %q, want %q", cfg.MQTT.Broker.ClientID, "test-client")
	}
	if cfg.MQTT.Reconnect.InitialDelay != 250*time.Millisecond {
		t.Errorf("Reconnect.InitialDelay = %v, want 250ms", cfg.MQTT.Reconnect.InitialDelay)
	}
	if cfg.MQTT.Reconnect.MaxDelay != 5*time.Second {
		t.Errorf("Reconnect.MaxDelay = %v, want 5s", cfg.MQTT.Reconnect.MaxDelay)
	}
	if cfg.MQTT.Publish.AckPolicy != AckPolicyHandoff {
		t.Errorf("Publish.AckPolicy = %q, want %q", cfg.MQTT.Publish.AckPolicy, AckPolicyHandoff)
	}
	if cfg.MQTT.Dispatch.QueueSize != 32 {
		t.Errorf("Dispatch.QueueSize = %d, want 32", cfg.MQTT.Dispatch.QueueSize)
	}
	// Unset keys keep their defaults.
	if cfg.MQTT.KeepAlive != 60*time.Second {
		t.Errorf("KeepAlive = %v, want default 60s", cfg.MQTT.KeepAlive)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "invalid: [yaml: content")

	_, err := Load(path)
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	path := writeConfig(t, `
site:
  id: ""
mqtt:
  publish:
    ack_policy: "whenever"
`)

	_, err := Load(path)
	if err == nil {
		t.Fatal("Load() expected validation error, got nil")
	}
	for _, want := range []string{"site.id", "ack_policy"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %q", err, want)
		}
	}
}

func TestLoad_GeneratesClientID(t *testing.T) {
	path := writeConfig(t, "site:\n  id: s\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !strings.HasPrefix(cfg.MQTT.Broker.ClientID, "consultease-central-") {
		t.Errorf("ClientID = %q, want generated consultease-central-* id", cfg.MQTT.Broker.ClientID)
	}

	other, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if other.MQTT.Broker.ClientID == cfg.MQTT.Broker.ClientID {
		t.Errorf("generated client IDs should differ, both %q", cfg.MQTT.Broker.ClientID)
	}
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config { return defaultConfig() }

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(*Config) {}, wantErr: false},
		{name: "missing site ID", mutate: func(c *Config) { c.Site.ID = "" }, wantErr: true},
		{name: "missing database path", mutate: func(c *Config) { c.Database.Path = "" }, wantErr: true},
		{name: "invalid QoS", mutate: func(c *Config) { c.MQTT.QoS = 3 }, wantErr: true},
		{name: "missing broker host", mutate: func(c *Config) { c.MQTT.Broker.Host = "" }, wantErr: true},
		{name: "broker port zero", mutate: func(c *Config) { c.MQTT.Broker.Port = 0 }, wantErr: true},
		{name: "max delay below initial", mutate: func(c *Config) { c.MQTT.Reconnect.MaxDelay = time.Millisecond }, wantErr: true},
		{name: "multiplier below one", mutate: func(c *Config) { c.MQTT.Reconnect.Multiplier = 0.5 }, wantErr: true},
		{name: "jitter above one", mutate: func(c *Config) { c.MQTT.Reconnect.Jitter = 1.5 }, wantErr: true},
		{name: "zero queue", mutate: func(c *Config) { c.MQTT.Dispatch.QueueSize = 0 }, wantErr: true},
		{name: "handoff policy", mutate: func(c *Config) { c.MQTT.Publish.AckPolicy = AckPolicyHandoff }, wantErr: false},
		{name: "invalid port low", mutate: func(c *Config) { c.API.Port = 0 }, wantErr: true},
		{name: "invalid port high", mutate: func(c *Config) { c.API.Port = 70000 }, wantErr: true},
		{name: "influx enabled without url", mutate: func(c *Config) { c.InfluxDB.Enabled = true }, wantErr: true},
		{name: "embedded broker without address", mutate: func(c *Config) {
			c.EmbeddedBroker.Enabled = true
			c.EmbeddedBroker.Address = ""
		}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestMQTTConfig_BrokerURL(t *testing.T) {
	m := DefaultMQTT()
	if got := m.BrokerURL(); got != "tcp://localhost:1883" {
		t.Errorf("BrokerURL() = %q, want tcp://localhost:1883", got)
	}

	m.Broker.TLS = true
	m.Broker.Port = 8883
	if got := m.BrokerURL(); got != "ssl://localhost:8883" {
		t.Errorf("BrokerURL() = %q, want ssl://localhost:8883", got)
	}
}

func TestConfig_GetTimeouts(t *testing.T) {
	cfg := &Config{
		API: APIConfig{
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 45,
				Idle:  60,
			},
		},
	}

	if got := cfg.GetReadTimeout().Seconds(); got != 30 {
		t.Errorf("GetReadTimeout() = %v, want 30", got)
	}

	if got := cfg.GetWriteTimeout().Seconds(); got != 45 {
		t.Errorf("GetWriteTimeout() = %v, want 45", got)
	}

	if got := cfg.GetIdleTimeout().Seconds(); got != 60 {
		t.Errorf("GetIdleTimeout() = %v, want 60", got)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := defaultConfig()

	t.Setenv("CONSULTEASE_DATABASE_PATH", "/custom/path.db")
	t.Setenv("CONSULTEASE_MQTT_HOST", "mqtt.example.com")
	t.Setenv("CONSULTEASE_MQTT_PORT", "8883")
	t.Setenv("CONSULTEASE_MQTT_CLIENT_ID", "central-a")
	t.Setenv("CONSULTEASE_MQTT_USERNAME", "testuser")
	t.Setenv("CONSULTEASE_MQTT_PASSWORD", "testpass")
	t.Setenv("CONSULTEASE_API_HOST", "192.168.1.1")
	t.Setenv("CONSULTEASE_INFLUXDB_TOKEN", "secret-token")

	applyEnvOverrides(cfg)

	if cfg.Database.Path != "/custom/path.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/custom/path.db")
	}
	if cfg.MQTT.Broker.Host != "mqtt.example.com" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "mqtt.example.com")
	}
	if cfg.MQTT.Broker.Port != 8883 {
		t.Errorf("MQTT.Broker.Port = %d, want 8883", cfg.MQTT.Broker.Port)
	}
	if cfg.MQTT.Broker.ClientID != "central-a" {
		t.Errorf("MQTT.Broker.ClientID = %q, want %q", cfg.MQTT.Broker.ClientID, "central-a")
	}
	if cfg.MQTT.Auth.Username != "testuser" {
		t.Errorf("MQTT.Auth.Username = %q, want %q", cfg.MQTT.Auth.Username, "testuser")
	}
	if cfg.MQTT.Auth.Password != "testpass" {
		t.Errorf("MQTT.Auth.Password = %q, want %q", cfg.MQTT.Auth.Password, "testpass")
	}
	if cfg.API.Host != "192.168.1.1" {
		t.Errorf("API.Host = %q, want %q", cfg.API.Host, "192.168.1.1")
	}
	if cfg.InfluxDB.Token != "secret-token" {
		t.Errorf("InfluxDB.Token = %q, want %q", cfg.InfluxDB.Token, "secret-token")
	}
}

func TestApplyEnvOverrides_BadPortIgnored(t *testing.T) {
	cfg := defaultConfig()
	t.Setenv("CONSULTEASE_MQTT_PORT", "not-a-port")

	applyEnvOverrides(cfg)

	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("MQTT.Broker.Port = %d, want unchanged 1883", cfg.MQTT.Broker.Port)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := Default()

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default().Validate() error = %v", err)
	}
	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("MQTT.Broker.Port = %d, want 1883", cfg.MQTT.Broker.Port)
	}
	if cfg.MQTT.Publish.AckPolicy != AckPolicyBroker {
		t.Errorf("Publish.AckPolicy = %q, want %q", cfg.MQTT.Publish.AckPolicy, AckPolicyBroker)
	}
	if cfg.MQTT.Broker.ClientID == "" {
		t.Error("Default() should fill MQTT.Broker.ClientID")
	}
	if cfg.API.Port != 8080 {
		t.Errorf("API.Port = %d, want 8080", cfg.API.Port)
	}
}
