package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	old, _ := os.Getwd()
	defer os.Chdir(old)
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Chdir: %v", err)
	}

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.SocketPath != "/tmp/ustorekv.sock" {
		t.Errorf("SocketPath = %q, want default", cfg.SocketPath)
	}
	if cfg.MaxConnections != 256 {
		t.Errorf("MaxConnections = %d, want 256", cfg.MaxConnections)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ustorekv.yaml")
	contents := "data_dir: /var/lib/ustorekv\nsocket_path: /run/ustorekv.sock\nmax_connections: 16\n"
	if err := os.WriteFile(path, []byte(contents), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DataDir != "/var/lib/ustorekv" {
		t.Errorf("DataDir = %q", cfg.DataDir)
	}
	if cfg.SocketPath != "/run/ustorekv.sock" {
		t.Errorf("SocketPath = %q", cfg.SocketPath)
	}
	if cfg.MaxConnections != 16 {
		t.Errorf("MaxConnections = %d, want 16", cfg.MaxConnections)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	dir := t.TempDir()
	old, _ := os.Getwd()
	defer os.Chdir(old)
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Chdir: %v", err)
	}

	os.Setenv("USTOREKV_SOCKET_PATH", "/tmp/override.sock")
	defer os.Unsetenv("USTOREKV_SOCKET_PATH")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.SocketPath != "/tmp/override.sock" {
		t.Errorf("SocketPath = %q, want env override", cfg.SocketPath)
	}
}
