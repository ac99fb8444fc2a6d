package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, name, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, "config.yaml", `mqtt:
  broker: "tcp://localhost:1883"
  client_id: "medbox-engine"
  username: "user"
  password: "pass"
  device_id: "01"
dispense:
  ack_timeout_seconds: 3
scheduler:
  tick_interval_seconds: 30
store:
  path: "/tmp/medbox.db"
metrics:
  prometheus_enabled: true
  prometheus_port: ":9100"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	checks := []struct {
		name string
		got  any
		want any
	}{
		{"broker", cfg.MQTT.Broker, "tcp://localhost:1883"},
		{"client_id", cfg.MQTT.ClientID, "medbox-engine"},
		{"username", cfg.MQTT.Username, "user"},
		{"device_id", cfg.MQTT.DeviceID, "01"},
		{"ack_timeout_seconds", cfg.Dispense.AckTimeoutSeconds, 3},
		{"tick_interval_seconds", cfg.Scheduler.TickIntervalSeconds, 30},
		{"store_path", cfg.Store.Path, "/tmp/medbox.db"},
		{"prometheus_enabled", cfg.Metrics.PrometheusEnabled, true},
		{"prometheus_port", cfg.Metrics.PrometheusPort, ":9100"},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s mismatch: %v", c.name, c.got)
		}
	}
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, "config.yaml", `mqtt:
  broker: "tcp://localhost:1883"
  device_id: "01"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	if cfg.Scheduler.TickIntervalSeconds != 60 {
		t.Errorf("tick interval default = %d, want 60", cfg.Scheduler.TickIntervalSeconds)
	}
	if cfg.Store.Path != "medbox.db" {
		t.Errorf("store path default = %s", cfg.Store.Path)
	}
	if cfg.Metrics.PrometheusPort != ":2112" {
		t.Errorf("prometheus port default = %s", cfg.Metrics.PrometheusPort)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	path := writeConfig(t, "config.yaml", `mqtt:
  broker: "tcp://localhost:1883"
  device_id: "01"
`)
	t.Setenv("MEDBOX_MQTT__BROKER", "tcp://broker.example:1883")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	if cfg.MQTT.Broker != "tcp://broker.example:1883" {
		t.Errorf("broker = %s, want env override", cfg.MQTT.Broker)
	}
}

func TestLoadRejectsMissingBroker(t *testing.T) {
	path := writeConfig(t, "config.yaml", `mqtt:
  device_id: "01"
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for missing broker")
	}
}

func TestLoadRejectsUnknownFormat(t *testing.T) {
	path := writeConfig(t, "config.toml", `broker = "x"`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}
