package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSaveRoundTrip(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.json")

	cfg := DefaultConfig()
	cfg.Git.Executable = "/opt/git/bin/git"
	cfg.Repositories["site"] = "/src/site"

	if err := Save(cfg, path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(path, "")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Git.Executable != "/opt/git/bin/git" {
		t.Errorf("Expected git executable to survive, got %q", loaded.Git.Executable)
	}
	if loaded.Repositories["site"] != "/src/site" {
		t.Errorf("Expected repository to survive, got %v", loaded.Repositories)
	}
	if loaded.Download.Timeout != cfg.Download.Timeout {
		t.Errorf("Expected timeout %v, got %v", cfg.Download.Timeout.Std(), loaded.Download.Timeout.Std())
	}
}

func TestSaveCreatesParentDir(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "nested", "deep", "config.json")

	if err := Save(DefaultConfig(), path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Fatalf("Config file was not created: %s", path)
	}

	// No temp files left behind
	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("Expected only config.json, found %d entries", len(entries))
	}
}

func TestSaveRejectsInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Git.Executable = ""

	path := filepath.Join(t.TempDir(), "config.json")
	if err := Save(cfg, path); err == nil {
		t.Fatal("Expected error for invalid config")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("Invalid config should not be written")
	}
}
