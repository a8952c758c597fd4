package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"
)

// freePort returns a TCP port that was free a moment ago.
func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("reserving port: %v", err)
	}
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test-config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

// TestRun_InvalidConfig verifies run fails with invalid config path.
func TestRun_InvalidConfig(t *testing.T) {
	t.Setenv("CONSULTEASE_CONFIG", "/nonexistent/path/config.yaml")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail with invalid config path")
	}
}

// TestRun_MissingDatabasePath verifies run fails validation with an empty database path.
func TestRun_MissingDatabasePath(t *testing.T) {
	configPath := writeConfig(t, `
site:
  id: test-site

database:
  path: ""

logging:
  level: error
  format: text
`)
	t.Setenv("CONSULTEASE_CONFIG", configPath)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail with empty database path")
	}
}

// TestRun_InvalidAckPolicy verifies bus settings are validated at load time.
func TestRun_InvalidAckPolicy(t *testing.T) {
	configPath := writeConfig(t, `
mqtt:
  publish:
    ack_policy: eventually

logging:
  level: error
`)
	t.Setenv("CONSULTEASE_CONFIG", configPath)

	if err := run(context.Background()); err == nil {
		t.Fatal("run() should fail with an unknown ack policy")
	}
}

// TestGetConfigPath_Default verifies default config path.
func TestGetConfigPath_Default(t *testing.T) {
	t.Setenv("CONSULTEASE_CONFIG", "")

	if path := getConfigPath(); path != defaultConfigPath {
		t.Errorf("getConfigPath() = %q, want %q", path, defaultConfigPath)
	}
}

// TestGetConfigPath_EnvOverride verifies environment variable override.
func TestGetConfigPath_EnvOverride(t *testing.T) {
	expected := "/custom/path/config.yaml"
	t.Setenv("CONSULTEASE_CONFIG", expected)

	if path := getConfigPath(); path != expected {
		t.Errorf("getConfigPath() = %q, want %q", path, expected)
	}
}

// TestRun_SuccessfulStartupAndShutdown starts the whole service against the
// embedded broker, waits for a healthy API, then shuts down.
func TestRun_SuccessfulStartupAndShutdown(t *testing.T) {
	tmpDir := t.TempDir()
	brokerPort := freePort(t)
	apiPort := freePort(t)

	configPath := writeConfig(t, fmt.Sprintf(`
site:
  id: test-site

database:
  path: %q
  wal_mode: true
  busy_timeout: 5

embedded_broker:
  enabled: true
  address: "127.0.0.1:%d"

mqtt:
  broker:
    host: "127.0.0.1"
    port: %d
    client_id: "test-successful-startup"
  qos: 1
  reconnect:
    initial_delay: 100ms
    max_delay: 1s

influxdb:
  enabled: false

presence:
  history_retention: 24h

logging:
  level: error
  format: text
  output: stdout

api:
  host: "127.0.0.1"
  port: %d
`, filepath.Join(tmpDir, "test.db"), brokerPort, brokerPort, apiPort))
	t.Setenv("CONSULTEASE_CONFIG", configPath)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- run(ctx) }()

	healthURL := "http://127.0.0.1:" + strconv.Itoa(apiPort) + "/api/v1/health"
	deadline := time.Now().Add(10 * time.Second)
	for {
		resp, err := http.Get(healthURL)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				break
			}
		}
		if time.Now().After(deadline) {
			t.Fatalf("service never became healthy (last error: %v)", err)
		}
		select {
		case runErr := <-errCh:
			t.Fatalf("run() exited early: %v", runErr)
		case <-time.After(50 * time.Millisecond):
		}
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("run() error = %v, want nil on shutdown", err)
		}
	case <-time.After(15 * time.Second):
		t.Fatal("run() did not return after cancel")
	}
}
