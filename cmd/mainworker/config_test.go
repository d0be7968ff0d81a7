package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadFileConfigParsesBootstrapKeys(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := []byte(`
worker_ttl: 2m
session_ttl: 30m
initial_admin_keys:
  - name: ci-bot
    permissions: [read, write]
`)
	if err := os.WriteFile(path, body, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	fc, err := loadFileConfig(path)
	if err != nil {
		t.Fatalf("loadFileConfig: %v", err)
	}
	if fc.WorkerTTL != "2m" || fc.SessionTTL != "30m" {
		t.Fatalf("fc = %+v, want worker_ttl=2m session_ttl=30m", fc)
	}

	keys := fc.bootstrapKeys()
	if len(keys) != 1 || keys[0].Name != "ci-bot" || len(keys[0].Permissions) != 2 {
		t.Fatalf("bootstrapKeys() = %+v, want one ci-bot key with 2 permissions", keys)
	}
}

func TestApplyFileConfigDefaultsFillsUnsetFlags(t *testing.T) {
	workerTTL := 60 * time.Second
	sessionTTL := time.Hour
	fc := &fileConfig{WorkerTTL: "5m", SessionTTL: "10m"}

	applyFileConfigDefaults(fc, &workerTTL, &sessionTTL)

	if workerTTL != 5*time.Minute {
		t.Fatalf("workerTTL = %v, want 5m (file value applied when flag unset)", workerTTL)
	}
	if sessionTTL != 10*time.Minute {
		t.Fatalf("sessionTTL = %v, want 10m", sessionTTL)
	}
}
