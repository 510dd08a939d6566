package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/lumabench/spectro-service/internal/adapters/sim"
)

// Duration parses "5m"-style strings from YAML.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	dur, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	*d = Duration(dur)
	return nil
}

// Config holds application configuration
type Config struct {
	Port           string             `yaml:"port"`
	RecordInterval Duration           `yaml:"record_interval"`
	RecordSerial   string             `yaml:"record_serial"` // device the recorder captures; empty = first device
	RepoType       string             `yaml:"repo"`          // "memory" | "sqlite"
	DBPath         string             `yaml:"db_path"`       // SQLite database file path (used when RepoType=sqlite)
	CalibDir       string             `yaml:"calib_dir"`     // correction matrix store directory
	MQTTBroker     string             `yaml:"mqtt_broker"`   // empty disables telemetry
	MQTTClientID   string             `yaml:"mqtt_client_id"`
	MQTTPrefix     string             `yaml:"mqtt_prefix"`
	TLSCert        string             `yaml:"tls_cert"`
	TLSKey         string             `yaml:"tls_key"`
	TLSCA          string             `yaml:"tls_ca"`
	Devices        []sim.DeviceConfig `yaml:"devices"` // simulated fleet
}

// defaultConfig is the zero-setup configuration: one simulated meter,
// in-memory storage, no broker.
func defaultConfig() Config {
	return Config{
		Port:           "8080",
		RecordInterval: Duration(5 * time.Minute),
		RepoType:       "memory",
		DBPath:         "./spectro.db",
		CalibDir:       "./calib",
		MQTTClientID:   "spectrod",
		MQTTPrefix:     "spectro",
		Devices: []sim.DeviceConfig{
			{Serial: "SP0001"},
		},
	}
}

// loadConfig builds the configuration: defaults, then the YAML file
// named by CONFIG_FILE (if any), then environment variable overrides.
func loadConfig() (Config, error) {
	cfg := defaultConfig()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
		if len(cfg.Devices) == 0 {
			return Config{}, fmt.Errorf("config file %s declares no devices", path)
		}
	}

	applyEnv(&cfg)
	return cfg, nil
}

// applyEnv overlays environment variables onto the config.
func applyEnv(cfg *Config) {
	setString(&cfg.Port, "PORT")
	setString(&cfg.RecordSerial, "RECORD_SERIAL")
	setString(&cfg.RepoType, "REPO_TYPE")
	setString(&cfg.DBPath, "DB_PATH")
	setString(&cfg.CalibDir, "CALIB_DIR")
	setString(&cfg.MQTTBroker, "MQTT_BROKER")
	setString(&cfg.MQTTClientID, "MQTT_CLIENT_ID")
	setString(&cfg.MQTTPrefix, "MQTT_PREFIX")
	setString(&cfg.TLSCert, "TLS_CERT")
	setString(&cfg.TLSKey, "TLS_KEY")
	setString(&cfg.TLSCA, "TLS_CA")

	if v := os.Getenv("RECORD_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.RecordInterval = Duration(d)
		}
	}
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}
