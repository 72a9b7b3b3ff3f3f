// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads daemon configuration from the environment, with an
// optional argo.yaml overlay for settings that don't belong in env vars.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Denylist of environment variables never forwarded to an executor child,
// regardless of the env map passed to a start request.
var EnvDenylist = []string{
	"LD_PRELOAD",
	"LD_LIBRARY_PATH",
	"PATH",
	"DYLD_INSERT_LIBRARIES",
	"DYLD_LIBRARY_PATH",
	"DYLD_FRAMEWORK_PATH",
	"IFS",
}

// IsDenied reports whether key matches the env denylist, including the
// DYLD_* wildcard.
func IsDenied(key string) bool {
	if len(key) >= 5 && key[:5] == "DYLD_" {
		return true
	}
	for _, d := range EnvDenylist {
		if d == key {
			return true
		}
	}
	return false
}

// Config holds daemon tuning parameters. Fields here may be set via
// ARGO_* environment variables; an optional argo.yaml overlay (see Load)
// can set the ones with no natural single env var.
type Config struct {
	DaemonHost string `yaml:"daemon_host"`
	DaemonPort int    `yaml:"daemon_port"`
	ArgoRoot   string `yaml:"argo_root"`

	RegistryPath   string `yaml:"registry_path"`
	LogDir         string `yaml:"log_dir"`
	CheckpointDir  string `yaml:"checkpoint_dir"`
	ExecutorBinary string `yaml:"executor_binary"`

	MaxConcurrentWorkflows int           `yaml:"max_concurrent_workflows"`
	DefaultTimeout         time.Duration `yaml:"default_timeout"`
	MaxRetries             int           `yaml:"max_retries"`
	RetryDelayBase         time.Duration `yaml:"retry_delay_base"`
	ShutdownGrace          time.Duration `yaml:"shutdown_grace"`
	DrainTimeout           time.Duration `yaml:"drain_timeout"`
	PruneAfter             time.Duration `yaml:"prune_after"`

	LogRotateMaxBytes int64 `yaml:"log_rotate_max_bytes"`
	LogRotateKeep     int   `yaml:"log_rotate_keep"`
	LogRotateMaxAge   time.Duration `yaml:"log_rotate_max_age"`
}

// Default returns the built-in defaults, matching spec.md's documented
// source values.
func Default() Config {
	home, _ := os.UserHomeDir()
	root := filepath.Join(home, ".argo")
	return Config{
		DaemonHost: "localhost",
		DaemonPort: 9876,
		ArgoRoot:   root,

		RegistryPath:   filepath.Join(root, "registry.json"),
		LogDir:         filepath.Join(root, "logs"),
		CheckpointDir:  filepath.Join(root, "workflows", "checkpoints"),
		ExecutorBinary: "argo-executor",

		MaxConcurrentWorkflows: 16,
		DefaultTimeout:         30 * time.Minute,
		MaxRetries:             3,
		RetryDelayBase:         2 * time.Second,
		ShutdownGrace:          2 * time.Second,
		DrainTimeout:           30 * time.Second,
		PruneAfter:             24 * time.Hour,

		LogRotateMaxBytes: 50 * 1024 * 1024,
		LogRotateKeep:     5,
		LogRotateMaxAge:   7 * 24 * time.Hour,
	}
}

// Load builds the effective configuration: defaults, overlaid by an
// optional YAML file (path argument, skipped silently if absent), overlaid
// by ARGO_* environment variables (highest priority).
func Load(yamlPath string) (Config, error) {
	cfg := Default()

	if yamlPath != "" {
		data, err := os.ReadFile(yamlPath)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, fmt.Errorf("config: reading %s: %w", yamlPath, err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parsing %s: %w", yamlPath, err)
		}
	}

	applyEnvOverrides(&cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ARGO_DAEMON_HOST"); v != "" {
		cfg.DaemonHost = v
	}
	if v := os.Getenv("ARGO_DAEMON_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.DaemonPort = port
		}
	}
	if v := os.Getenv("ARGO_ROOT"); v != "" {
		cfg.ArgoRoot = v
		cfg.RegistryPath = filepath.Join(v, "registry.json")
		cfg.LogDir = filepath.Join(v, "logs")
		cfg.CheckpointDir = filepath.Join(v, "workflows", "checkpoints")
	}
}

// Addr returns the "host:port" the daemon's HTTP server binds to.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.DaemonHost, c.DaemonPort)
}

// DaemonURL returns the base URL an executor uses to reach the daemon.
func (c Config) DaemonURL() string {
	return fmt.Sprintf("http://%s:%d", c.DaemonHost, c.DaemonPort)
}
