package config

import (
	"os"
	"path/filepath"
	"testing"
)

// isolate keeps Load("") away from real config files on the machine
// running the tests.
func isolate(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(wd); err != nil {
			t.Fatalf("restore wd: %v", err)
		}
	})
	t.Setenv("HOME", dir)
}

func TestLoadDefaults(t *testing.T) {
	isolate(t)
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Multicast.Group != "239.12.255.254" || cfg.Multicast.Port != 9522 {
		t.Fatalf("unexpected multicast defaults: %+v", cfg.Multicast)
	}
	if cfg.MQTT.BaseTopic != "sma/data" {
		t.Fatalf("unexpected base topic: %s", cfg.MQTT.BaseTopic)
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sma2mqtt.yaml")
	content := []byte("mqtt:\n  broker: mqtt://broker.lan:1883\n  base_topic: energy/meter\nmulticast:\n  interface: eth0\nlog_level: debug\n")
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MQTT.Broker != "mqtt://broker.lan:1883" {
		t.Fatalf("broker not read: %s", cfg.MQTT.Broker)
	}
	if cfg.MQTT.BaseTopic != "energy/meter" {
		t.Fatalf("base topic not read: %s", cfg.MQTT.BaseTopic)
	}
	if cfg.Multicast.Interface != "eth0" {
		t.Fatalf("interface not read: %s", cfg.Multicast.Interface)
	}
	if cfg.Multicast.Port != 9522 {
		t.Fatalf("unset fields must keep defaults: %d", cfg.Multicast.Port)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("log level not read: %s", cfg.LogLevel)
	}
}

func TestLoadExplicitMissing(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing explicit config")
	}
}

func TestEnvOverrides(t *testing.T) {
	isolate(t)
	t.Setenv("MQTT_BROKER", "192.168.0.180")
	t.Setenv("MQTT_PORT", "8883")
	t.Setenv("MQTT_TOPIC", "sma/em")
	t.Setenv("MQTT_USERNAME", "meter")
	t.Setenv("MQTT_PASSWORD", "secret")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MQTT.Broker != "mqtt://192.168.0.180:8883" {
		t.Fatalf("broker override broken: %s", cfg.MQTT.Broker)
	}
	if cfg.MQTT.BaseTopic != "sma/em" || cfg.MQTT.Username != "meter" || cfg.MQTT.Password != "secret" {
		t.Fatalf("env overrides not applied: %+v", cfg.MQTT)
	}
}

func TestEnvBrokerURL(t *testing.T) {
	isolate(t)
	t.Setenv("MQTT_BROKER", "mqtts://broker.lan:8883")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MQTT.Broker != "mqtts://broker.lan:8883" {
		t.Fatalf("URL-form broker must pass through: %s", cfg.MQTT.Broker)
	}
}
