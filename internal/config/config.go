// Package config handles sma2mqtt configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all sma2mqtt configuration.
type Config struct {
	MQTT      MQTTConfig      `yaml:"mqtt"`
	Multicast MulticastConfig `yaml:"multicast"`
	LogLevel  string          `yaml:"log_level"`
}

// MQTTConfig defines the broker connection and topic layout.
type MQTTConfig struct {
	// Broker is the broker URL, e.g. mqtt://192.168.0.180:1883.
	Broker   string `yaml:"broker"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	// BaseTopic prefixes every reading topic: <base>/<serial>/<name>.
	BaseTopic string `yaml:"base_topic"`
	// DiscoveryPrefix is the Home Assistant discovery root. Empty
	// disables discovery publishing.
	DiscoveryPrefix string `yaml:"discovery_prefix"`
	ClientID        string `yaml:"client_id"`
}

// MulticastConfig defines the Speedwire listening socket.
type MulticastConfig struct {
	Group string `yaml:"group"`
	Port  int    `yaml:"port"`
	// Interface optionally pins the multicast join to one interface.
	Interface string `yaml:"interface"`
}

// Default returns the configuration matching a stock SMA Home Manager
// setup.
func Default() Config {
	return Config{
		MQTT: MQTTConfig{
			Broker:          "mqtt://127.0.0.1:1883",
			BaseTopic:       "sma/data",
			DiscoveryPrefix: "homeassistant",
			ClientID:        "sma2mqtt",
		},
		Multicast: MulticastConfig{
			Group: "239.12.255.254",
			Port:  9522,
		},
		LogLevel: "info",
	}
}

// DefaultSearchPaths returns the config file search order. An explicit
// path (from the -config flag) is checked first by Load.
func DefaultSearchPaths() []string {
	paths := []string{"sma2mqtt.yaml"}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "sma2mqtt", "sma2mqtt.yaml"))
	}
	paths = append(paths, "/etc/sma2mqtt/sma2mqtt.yaml")
	return paths
}

// Load reads the config file, falling back to defaults when none exists,
// and applies environment overrides on top. An explicit path that does
// not exist is an error; a missing default path is not, so the daemon can
// run from environment variables alone.
func Load(explicit string) (Config, error) {
	cfg := Default()

	path := ""
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return Config{}, fmt.Errorf("config file not found: %s", explicit)
		}
		path = explicit
	} else {
		for _, p := range DefaultSearchPaths() {
			if _, err := os.Stat(p); err == nil {
				path = p
				break
			}
		}
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnv(&cfg)
	return cfg, nil
}

// applyEnv honors the environment variables the original deployment
// tooling used, so container setups keep working without a config file.
func applyEnv(cfg *Config) {
	if host, ok := os.LookupEnv("MQTT_BROKER"); ok {
		port := brokerPort(cfg.MQTT.Broker)
		if p, ok := os.LookupEnv("MQTT_PORT"); ok {
			port = p
		}
		if strings.Contains(host, "://") {
			cfg.MQTT.Broker = host
		} else {
			cfg.MQTT.Broker = "mqtt://" + host + ":" + port
		}
	} else if p, ok := os.LookupEnv("MQTT_PORT"); ok {
		host := brokerHost(cfg.MQTT.Broker)
		cfg.MQTT.Broker = "mqtt://" + host + ":" + p
	}
	if v, ok := os.LookupEnv("MQTT_TOPIC"); ok {
		cfg.MQTT.BaseTopic = v
	}
	if v, ok := os.LookupEnv("MQTT_USERNAME"); ok {
		cfg.MQTT.Username = v
	}
	if v, ok := os.LookupEnv("MQTT_PASSWORD"); ok {
		cfg.MQTT.Password = v
	}
}

func brokerHost(broker string) string {
	s := broker
	if i := strings.Index(s, "://"); i >= 0 {
		s = s[i+3:]
	}
	if i := strings.LastIndex(s, ":"); i >= 0 {
		if _, err := strconv.Atoi(s[i+1:]); err == nil {
			s = s[:i]
		}
	}
	return s
}

func brokerPort(broker string) string {
	s := broker
	if i := strings.Index(s, "://"); i >= 0 {
		s = s[i+3:]
	}
	if i := strings.LastIndex(s, ":"); i >= 0 {
		if _, err := strconv.Atoi(s[i+1:]); err == nil {
			return s[i+1:]
		}
	}
	return "1883"
}
