package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("expected defaults to load, got error: %v", err)
	}

	if cfg.MAVLink.Host != "127.0.0.1" {
		t.Errorf("expected default host 127.0.0.1, got '%s'", cfg.MAVLink.Host)
	}
	if cfg.MAVLink.Port != 5760 {
		t.Errorf("expected default port 5760, got %d", cfg.MAVLink.Port)
	}
	if cfg.MAVLink.RetryDelay != 5*time.Second {
		t.Errorf("expected 5s retry delay, got %s", cfg.MAVLink.RetryDelay)
	}
	if cfg.Activity.StaleAfter != 5*time.Second {
		t.Errorf("expected 5s stale window, got %s", cfg.Activity.StaleAfter)
	}
	if cfg.Server.Port != "8080" {
		t.Errorf("expected server port 8080, got '%s'", cfg.Server.Port)
	}
	if cfg.MQTT.Enabled || cfg.Notify.Enabled || cfg.Recorder.Enabled {
		t.Error("optional sinks should be disabled by default")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("MAVLINK_HOST", "10.0.0.7")
	t.Setenv("AISBRIDGE_MAVLINK_PORT", "14550")
	t.Setenv("AISBRIDGE_MAVLINK_RETRY_DELAY", "250ms")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.MAVLink.Host != "10.0.0.7" {
		t.Errorf("expected host from MAVLINK_HOST, got '%s'", cfg.MAVLink.Host)
	}
	if cfg.MAVLink.Port != 14550 {
		t.Errorf("expected port 14550, got %d", cfg.MAVLink.Port)
	}
	if cfg.MAVLink.RetryDelay != 250*time.Millisecond {
		t.Errorf("expected 250ms retry delay, got %s", cfg.MAVLink.RetryDelay)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bridge.yaml")
	content := `
mavlink:
  host: sitl.local
  port: 5762
mqtt:
  enabled: true
  broker: tcp://broker:1883
  qos: 1
recorder:
  enabled: true
  directory: /tmp/tracks
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.MAVLink.Host != "sitl.local" || cfg.MAVLink.Port != 5762 {
		t.Errorf("unexpected upstream %s:%d", cfg.MAVLink.Host, cfg.MAVLink.Port)
	}
	if !cfg.MQTT.Enabled || cfg.MQTT.QoS != 1 || cfg.MQTT.TopicPrefix != "ais/vessels" {
		t.Errorf("unexpected mqtt config %+v", cfg.MQTT)
	}
	if !cfg.Recorder.Enabled || cfg.Recorder.Directory != "/tmp/tracks" || !cfg.Recorder.Compress {
		t.Errorf("unexpected recorder config %+v", cfg.Recorder)
	}
}

func TestLoadInvalidPort(t *testing.T) {
	t.Setenv("AISBRIDGE_MAVLINK_PORT", "70000")

	_, err := Load("")
	if err == nil {
		t.Fatal("expected error for out of range port")
	}
	if !strings.Contains(err.Error(), "mavlink.port") {
		t.Errorf("error should mention mavlink.port, got: %v", err)
	}
}

func TestLoadNotifyWithoutTopic(t *testing.T) {
	t.Setenv("AISBRIDGE_NOTIFY_ENABLED", "true")

	if _, err := Load(""); err == nil {
		t.Fatal("expected error when notify is enabled without a topic")
	}
}
