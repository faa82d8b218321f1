package daemon

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/adrg/xdg"

	"github.com/mikey-austin/clautify/internal/adapters/config"
)

// Config is the top-level configuration for clautifyd.
type Config struct {
	Server   ServerConfig    `toml:"server"`
	Metrics  MetricsConfig   `toml:"metrics"`
	Catalog  config.Catalog  `toml:"catalog"`
	Playback config.Playback `toml:"playback"`
	Modules  ModulesConfig   `toml:"modules"`
}

// ServerConfig defines shared server settings.
type ServerConfig struct {
	Broker    string     `toml:"broker"`
	Identity  string     `toml:"identity"`
	TopicBase string     `toml:"topic_base"`
	LogLevel  string     `toml:"log_level"`
	LogFormat string     `toml:"log_format"`
	LogOutput string     `toml:"log_output"`
	LogSource bool       `toml:"log_source"`
	LogUTC    bool       `toml:"log_utc"`
	Debug     bool       `toml:"debug"`
	TLS       TLSConfig  `toml:"tls"`
	Auth      AuthConfig `toml:"auth"`
}

// TLSConfig holds TLS paths for MQTT.
type TLSConfig struct {
	CA   string `toml:"ca"`
	Cert string `toml:"cert"`
	Key  string `toml:"key"`
}

// AuthConfig holds MQTT auth credentials.
type AuthConfig struct {
	User string `toml:"user"`
	Pass string `toml:"pass"`
}

// MetricsConfig configures the Prometheus endpoint. An empty Listen
// disables it.
type MetricsConfig struct {
	Listen string `toml:"listen"`
	Path   string `toml:"path"`
}

// ModulesConfig holds module configurations.
type ModulesConfig struct {
	DSLEndpoint  DSLEndpointConfig  `toml:"dsl_endpoint"`
	EmbeddedMQTT EmbeddedMQTTConfig `toml:"embedded_mqtt"`
}

// DSLEndpointConfig configures the command endpoint module.
type DSLEndpointConfig struct {
	Enabled       bool     `toml:"enabled"`
	NodeID        string   `toml:"node_id"`
	Name          string   `toml:"name"`
	VolumeCeiling *float64 `toml:"volume_ceiling"`
	Eager         bool     `toml:"eager"`
}

// EmbeddedMQTTConfig configures the embedded MQTT broker.
type EmbeddedMQTTConfig struct {
	Enabled        bool   `toml:"enabled"`
	Listen         string `toml:"listen"`
	AllowAnonymous bool   `toml:"allow_anonymous"`
	Username       string `toml:"username"`
	Password       string `toml:"password"`
	TLSCA          string `toml:"tls_ca"`
	TLSCert        string `toml:"tls_cert"`
	TLSKey         string `toml:"tls_key"`
}

// LoadConfig loads a config file from path.
func LoadConfig(path string) (Config, error) {
	if path == "" {
		return Config{}, errors.New("config path required")
	}
	info, err := os.Stat(path)
	if err != nil {
		return Config{}, err
	}
	if info.IsDir() {
		return Config{}, errors.New("config path is a directory")
	}

	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, err
	}
	if cfg.Catalog.Token == "" {
		cfg.Catalog.Token = os.Getenv(config.TokenEnv)
	}
	if cfg.Playback.Backend == "" {
		cfg.Playback.Backend = config.BackendWebAPI
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
	return cfg, nil
}

// DefaultConfigPath returns the default config location.
func DefaultConfigPath() string {
	return filepath.Join(xdg.ConfigHome, "clautify", "clautifyd.toml")
}
