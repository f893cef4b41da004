package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDirOverride(t *testing.T) {
	t.Setenv("IMESSAGE_EXPORTER_CONFIG_DIR", "/custom/config")

	dir, err := Dir()
	if err != nil {
		t.Fatalf("Dir: %v", err)
	}
	if dir != "/custom/config" {
		t.Errorf("dir = %q, want /custom/config", dir)
	}
}

func TestDirXDG(t *testing.T) {
	t.Setenv("IMESSAGE_EXPORTER_CONFIG_DIR", "")
	t.Setenv("XDG_CONFIG_HOME", "/xdg")

	dir, err := Dir()
	if err != nil {
		t.Fatalf("Dir: %v", err)
	}
	if dir != filepath.Join("/xdg", "imessage-exporter") {
		t.Errorf("dir = %q", dir)
	}
}

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	t.Setenv("IMESSAGE_EXPORTER_CONFIG_DIR", t.TempDir())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Format != "txt" || cfg.SelfName != "Me" || cfg.LogLevel != "info" {
		t.Errorf("defaults = %+v", cfg)
	}
	if !strings.HasSuffix(cfg.DatabasePath, filepath.Join("Library", "Messages", "chat.db")) {
		t.Errorf("database path = %q", cfg.DatabasePath)
	}
}

func TestSaveThenLoadRoundTrip(t *testing.T) {
	t.Setenv("IMESSAGE_EXPORTER_CONFIG_DIR", t.TempDir())

	cfg := Default()
	cfg.DatabasePath = "/backups/chat.db"
	cfg.Format = "ndjson"
	cfg.Workers = 8
	cfg.SkipAttachmentCheck = true
	cfg.SelfName = "Jared"
	if err := cfg.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	dir, _ := Dir()
	info, err := os.Stat(filepath.Join(dir, "config.yaml"))
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("file mode = %o, want 600", perm)
	}

	loaded, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if *loaded != *cfg {
		t.Errorf("round trip changed config:\n got %+v\nwant %+v", loaded, cfg)
	}
}

func TestLoadPartialFileKeepsDefaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("IMESSAGE_EXPORTER_CONFIG_DIR", dir)
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("format: ndjson\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Format != "ndjson" {
		t.Errorf("format = %q, want ndjson", cfg.Format)
	}
	if cfg.SelfName != "Me" {
		t.Errorf("self name = %q, the unset field should keep its default", cfg.SelfName)
	}
}

func TestLoadBadYAML(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("IMESSAGE_EXPORTER_CONFIG_DIR", dir)
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("{not yaml"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	if _, err := Load(); err == nil {
		t.Fatal("expected a parse error")
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}

	cfg.Format = "html"
	if err := cfg.Validate(); err == nil {
		t.Error("unknown format accepted")
	}

	cfg.Format = "ndjson"
	cfg.Workers = -1
	if err := cfg.Validate(); err == nil {
		t.Error("negative workers accepted")
	}
}
