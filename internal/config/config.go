package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	doerrors "github.com/EUDAT-DTR/DTR-sub001/internal/errors"
	pebblestore "github.com/EUDAT-DTR/DTR-sub001/internal/storage/pebble"
	logpkg "github.com/EUDAT-DTR/DTR-sub001/pkg/log"
)

// Config is the top-level configuration loaded from file/env.
type Config struct {
	DataDir              string            `json:"dataDir" yaml:"dataDir"`
	TxnDir               string            `json:"txnDir" yaml:"txnDir"`
	Fsync                string            `json:"fsync" yaml:"fsync"`
	FsyncIntervalMs      int               `json:"fsyncIntervalMs" yaml:"fsyncIntervalMs"`
	AppendMaxAttempts    int               `json:"appendMaxAttempts" yaml:"appendMaxAttempts"`
	AppendRetryBackoffMs int               `json:"appendRetryBackoffMs" yaml:"appendRetryBackoffMs"`
	LegacySuffix         string            `json:"legacySuffix" yaml:"legacySuffix"`
	HTTPAddr             string            `json:"httpAddr" yaml:"httpAddr"`
	GRPCAddr             string            `json:"grpcAddr" yaml:"grpcAddr"`
	Replication          ReplicationConfig `json:"replication" yaml:"replication"`
	Log                  logpkg.Config     `json:"log" yaml:"log"`
}

// ReplicationConfig bounds replication reads.
type ReplicationConfig struct {
	MaxBatch  int `json:"maxBatch" yaml:"maxBatch"`
	MaxWaitMs int `json:"maxWaitMs" yaml:"maxWaitMs"`
}

// Default returns built-in defaults. DataDir is left empty so callers can
// tell whether it was configured; see ResolvedDataDir.
func Default() Config {
	return Config{
		Fsync:                "always",
		FsyncIntervalMs:      5,
		AppendMaxAttempts:    5,
		AppendRetryBackoffMs: 10,
		LegacySuffix:         ".q",
		HTTPAddr:             ":8080",
		GRPCAddr:             ":50051",
		Replication: ReplicationConfig{
			MaxBatch:  256,
			MaxWaitMs: 30000,
		},
		Log: logpkg.Config{Level: "info", Format: "text"},
	}
}

// Load reads configuration from a JSON or YAML file (by extension). If path is empty, returns defaults.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg := Default()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	return cfg, nil
}

// ResolvedDataDir returns DataDir, or DefaultDataDir when unset.
func (c Config) ResolvedDataDir() string {
	if c.DataDir != "" {
		return c.DataDir
	}
	return DefaultDataDir()
}

// ResolvedTxnDir returns TxnDir, or <dataDir>/txns when unset.
func (c Config) ResolvedTxnDir() string {
	if c.TxnDir != "" {
		return c.TxnDir
	}
	return filepath.Join(c.ResolvedDataDir(), "txns")
}

// FsyncMode parses Fsync. Validate reports bad values.
func (c Config) FsyncMode() pebblestore.FsyncMode {
	mode, err := pebblestore.ParseFsyncMode(c.Fsync)
	if err != nil {
		return pebblestore.FsyncModeAlways
	}
	return mode
}

func (c Config) FsyncInterval() time.Duration {
	return time.Duration(c.FsyncIntervalMs) * time.Millisecond
}

func (c Config) AppendRetryBackoff() time.Duration {
	return time.Duration(c.AppendRetryBackoffMs) * time.Millisecond
}

func (c Config) ReplicationMaxWait() time.Duration {
	return time.Duration(c.Replication.MaxWaitMs) * time.Millisecond
}

// Validate checks value ranges and enumerations.
func (c Config) Validate() error {
	if _, err := pebblestore.ParseFsyncMode(c.Fsync); err != nil {
		return doerrors.InvalidArgument(err.Error())
	}
	if c.FsyncMode() == pebblestore.FsyncModeInterval && c.FsyncIntervalMs <= 0 {
		return doerrors.InvalidArgument("fsyncIntervalMs must be positive with fsync=interval")
	}
	if c.AppendMaxAttempts < 1 {
		return doerrors.InvalidArgument("appendMaxAttempts must be at least 1")
	}
	if c.AppendRetryBackoffMs < 0 {
		return doerrors.InvalidArgument("appendRetryBackoffMs must not be negative")
	}
	if c.LegacySuffix == "" {
		return doerrors.InvalidArgument("legacySuffix must not be empty")
	}
	if c.Replication.MaxBatch < 1 {
		return doerrors.InvalidArgument("replication.maxBatch must be at least 1")
	}
	if c.Replication.MaxWaitMs < 0 {
		return doerrors.InvalidArgument("replication.maxWaitMs must not be negative")
	}
	if _, err := logpkg.ParseLevel(c.Log.Level); err != nil {
		return doerrors.InvalidArgument(fmt.Sprintf("log.level: %v", err))
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		return doerrors.InvalidArgument(fmt.Sprintf("log.format must be text or json; got %q", c.Log.Format))
	}
	return nil
}
