package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSaveAndLoad(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.toml")

	cfg := &Config{DefaultProfile: "work", ListenAddr: "127.0.0.1:9999", PageSize: 50}
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.DefaultProfile != "work" {
		t.Errorf("DefaultProfile = %q, want %q", loaded.DefaultProfile, "work")
	}
	if loaded.ListenAddr != "127.0.0.1:9999" {
		t.Errorf("ListenAddr = %q", loaded.ListenAddr)
	}
	if loaded.PageSize != 50 {
		t.Errorf("PageSize = %d, want 50", loaded.PageSize)
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("default_profile = \"main\"\n"), 0600); err != nil {
		t.Fatal(err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	def := Default()
	if loaded.PageSize != def.PageSize {
		t.Errorf("PageSize = %d, want default %d", loaded.PageSize, def.PageSize)
	}
	if loaded.CacheTTLMinutes != def.CacheTTLMinutes {
		t.Errorf("CacheTTLMinutes = %d, want default %d", loaded.CacheTTLMinutes, def.CacheTTLMinutes)
	}
	if loaded.FreeDailyMessageLimit != def.FreeDailyMessageLimit {
		t.Errorf("FreeDailyMessageLimit = %d, want default %d", loaded.FreeDailyMessageLimit, def.FreeDailyMessageLimit)
	}
	if loaded.ListenAddr != def.ListenAddr {
		t.Errorf("ListenAddr = %q, want default %q", loaded.ListenAddr, def.ListenAddr)
	}
}

func TestLoadMissing(t *testing.T) {
	_, err := Load("/nonexistent/config.toml")
	if err == nil {
		t.Error("Load() expected error for missing file")
	}
}

func TestSavePermissions(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.toml")

	if err := Save(path, Default()); err != nil {
		t.Fatal(err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	perm := info.Mode().Perm()
	if perm != 0600 {
		t.Errorf("file permission = %o, want 0600", perm)
	}
}
