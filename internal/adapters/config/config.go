package config

import (
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/adrg/xdg"
)

// TokenEnv names the environment variable consulted when no catalog
// token is configured.
const TokenEnv = "CLAUTIFY_TOKEN"

// Playback backends.
const (
	BackendWebAPI = "webapi"
	BackendMQTT   = "mqtt"
)

// Config holds CLI configuration from config.toml.
type Config struct {
	VolumeCeiling *float64 `toml:"volume_ceiling"`
	Eager         bool     `toml:"eager"`
	// Remote is the node id of a clautifyd endpoint. When set the CLI
	// sends command lines there instead of running them locally.
	Remote   string   `toml:"remote"`
	Catalog  Catalog  `toml:"catalog"`
	Playback Playback `toml:"playback"`
}

// Catalog configures the catalog adapter.
type Catalog struct {
	Token       string `toml:"token"`
	BaseURL     string `toml:"base_url"`
	SpclientURL string `toml:"spclient_url"`
	Username    string `toml:"username"`
	Language    string `toml:"language"`
	// Operations maps catalog operation names to persisted-query hashes.
	Operations map[string]string `toml:"operations"`
}

// Playback configures the playback channel and the MQTT connection.
type Playback struct {
	Backend   string `toml:"backend"`
	WebAPIURL string `toml:"webapi_url"`
	Broker    string `toml:"broker"`
	NodeID    string `toml:"node_id"`
	TopicBase string `toml:"topic_base"`
	Username  string `toml:"username"`
	Password  string `toml:"password"`
	TLSCA     string `toml:"tls_ca"`
	TLSCert   string `toml:"tls_cert"`
	TLSKey    string `toml:"tls_key"`
	TimeoutMS int64  `toml:"timeout_ms"`
}

// Timeout returns the configured reply timeout, or zero for the
// adapter default.
func (p Playback) Timeout() time.Duration {
	return time.Duration(p.TimeoutMS) * time.Millisecond
}

// Load loads config.toml if present. Missing file returns an empty config.
func Load() (Config, error) {
	return LoadFile(Path())
}

// LoadFile loads the config at path. Missing file returns an empty config.
func LoadFile(path string) (Config, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return withDefaults(Config{}), nil
		}
		return Config{}, err
	}
	if info.IsDir() {
		return Config{}, errors.New("config path is a directory")
	}

	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, err
	}
	return withDefaults(cfg), nil
}

// Path returns the CLI config location under the XDG config home.
func Path() string {
	return filepath.Join(xdg.ConfigHome, "clautify", "config.toml")
}

func withDefaults(cfg Config) Config {
	if cfg.Catalog.Token == "" {
		cfg.Catalog.Token = os.Getenv(TokenEnv)
	}
	if cfg.Catalog.Operations == nil {
		cfg.Catalog.Operations = map[string]string{}
	}
	if cfg.Playback.Backend == "" {
		cfg.Playback.Backend = BackendWebAPI
	}
	return cfg
}
