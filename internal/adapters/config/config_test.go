package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/adrg/xdg"
)

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	data := []byte("" +
		"volume_ceiling = 0.6\n" +
		"eager = true\n" +
		"\n" +
		"[catalog]\n" +
		"token = \"abc\"\n" +
		"language = \"en\"\n" +
		"\n" +
		"[catalog.operations]\n" +
		"searchDesktop = \"deadbeef\"\n" +
		"\n" +
		"[playback]\n" +
		"backend = \"mqtt\"\n" +
		"broker = \"mqtt://localhost:1883\"\n" +
		"node_id = \"bridge\"\n" +
		"timeout_ms = 1500\n")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.VolumeCeiling == nil || *cfg.VolumeCeiling != 0.6 || !cfg.Eager {
		t.Fatalf("unexpected top level %+v", cfg)
	}
	if cfg.Catalog.Token != "abc" || cfg.Catalog.Operations["searchDesktop"] != "deadbeef" {
		t.Fatalf("unexpected catalog %+v", cfg.Catalog)
	}
	if cfg.Playback.Backend != BackendMQTT || cfg.Playback.NodeID != "bridge" {
		t.Fatalf("unexpected playback %+v", cfg.Playback)
	}
	if cfg.Playback.Timeout().Milliseconds() != 1500 {
		t.Fatalf("unexpected timeout %s", cfg.Playback.Timeout())
	}
}

func TestLoadMissingUsesDefaults(t *testing.T) {
	t.Setenv(TokenEnv, "from-env")
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.VolumeCeiling != nil || cfg.Catalog.Token != "from-env" || cfg.Playback.Backend != BackendWebAPI {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
}

func TestLoadRejectsDirectory(t *testing.T) {
	if _, err := LoadFile(t.TempDir()); err == nil {
		t.Fatalf("expected directory error")
	}
}

func TestPathFollowsXDG(t *testing.T) {
	dir := t.TempDir()
	t.Cleanup(xdg.Reload)
	t.Setenv("XDG_CONFIG_HOME", dir)
	xdg.Reload()

	if got := Path(); got != filepath.Join(dir, "clautify", "config.toml") {
		t.Fatalf("unexpected path %s", got)
	}
}
