package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/deltadb/deltadb/internal/dbtypes"
	"github.com/deltadb/deltadb/internal/mainsvc"
)

// fileConfig is the optional on-disk bootstrap config (-config), layered
// under flags: a flag the operator set explicitly always wins over a
// value from this file. Mirrors the teacher's yaml-manifest parsing
// style (cmd/warren/apply.go), repurposed from a cluster resource
// manifest to a process bootstrap file.
type fileConfig struct {
	WorkerTTL        string            `yaml:"worker_ttl,omitempty"`
	SessionTTL       string            `yaml:"session_ttl,omitempty"`
	InitialAdminKeys []fileConfigAdmin `yaml:"initial_admin_keys,omitempty"`
}

type fileConfigAdmin struct {
	Name        string   `yaml:"name"`
	Permissions []string `yaml:"permissions"`
}

func loadFileConfig(path string) (*fileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	return &fc, nil
}

// applyFileConfigDefaults fills workerTTL/sessionTTL from fc only for
// flags the operator didn't set on the command line.
func applyFileConfigDefaults(fc *fileConfig, workerTTL, sessionTTL *time.Duration) {
	explicit := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { explicit[f.Name] = true })

	if fc.WorkerTTL != "" && !explicit["worker-ttl"] {
		if d, err := time.ParseDuration(fc.WorkerTTL); err == nil {
			*workerTTL = d
		}
	}
	if fc.SessionTTL != "" && !explicit["session-ttl"] {
		if d, err := time.ParseDuration(fc.SessionTTL); err == nil {
			*sessionTTL = d
		}
	}
}

func (fc *fileConfig) bootstrapKeys() []mainsvc.BootstrapKey {
	keys := make([]mainsvc.BootstrapKey, 0, len(fc.InitialAdminKeys))
	for _, a := range fc.InitialAdminKeys {
		perms := make(dbtypes.Permissions, 0, len(a.Permissions))
		for _, p := range a.Permissions {
			perms = append(perms, dbtypes.Permission(p))
		}
		keys = append(keys, mainsvc.BootstrapKey{Name: a.Name, Permissions: perms})
	}
	return keys
}
