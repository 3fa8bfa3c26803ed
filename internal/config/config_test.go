package config

import (
	"os"
	"path/filepath"
	"testing"

	doerrors "github.com/EUDAT-DTR/DTR-sub001/internal/errors"
	pebblestore "github.com/EUDAT-DTR/DTR-sub001/internal/storage/pebble"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.AppendMaxAttempts != 5 {
		t.Fatalf("append attempts default: %d", cfg.AppendMaxAttempts)
	}
	if cfg.LegacySuffix != ".q" {
		t.Fatalf("legacy suffix default: %q", cfg.LegacySuffix)
	}
	if cfg.Replication.MaxBatch != 256 || cfg.Replication.MaxWaitMs != 30000 {
		t.Fatalf("replication defaults: %+v", cfg.Replication)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
}

func TestLoadJSON(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "dorepo.json")
	data := []byte(`{"dataDir":"/srv/repo","fsync":"interval","fsyncIntervalMs":20,"replication":{"maxBatch":32}}`)
	if err := os.WriteFile(file, data, 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(file)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DataDir != "/srv/repo" {
		t.Fatalf("expected /srv/repo, got %q", cfg.DataDir)
	}
	if cfg.FsyncMode() != pebblestore.FsyncModeInterval {
		t.Fatalf("expected interval fsync")
	}
	if cfg.Replication.MaxBatch != 32 {
		t.Fatalf("expected 32")
	}
	if cfg.Replication.MaxWaitMs != 30000 {
		t.Fatalf("unset keys keep defaults, got %d", cfg.Replication.MaxWaitMs)
	}
	if cfg.ResolvedTxnDir() != filepath.Join("/srv/repo", "txns") {
		t.Fatalf("txn dir: %s", cfg.ResolvedTxnDir())
	}
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "dorepo.yaml")
	data := []byte("dataDir: /srv/repo\ntxnDir: /srv/txns\nappendMaxAttempts: 3\nlog:\n  level: debug\n  format: json\n")
	if err := os.WriteFile(file, data, 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(file)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.TxnDir != "/srv/txns" || cfg.ResolvedTxnDir() != "/srv/txns" {
		t.Fatalf("txn dir: %q", cfg.TxnDir)
	}
	if cfg.AppendMaxAttempts != 3 {
		t.Fatalf("expected 3 attempts")
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "json" {
		t.Fatalf("log config: %+v", cfg.Log)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Fatalf("unset keys keep defaults")
	}
}

func TestLoadBadYAML(t *testing.T) {
	file := filepath.Join(t.TempDir(), "bad.yml")
	if err := os.WriteFile(file, []byte("dataDir: [unterminated"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(file); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestFromEnv(t *testing.T) {
	cfg := Default()
	t.Setenv("DOREPO_DATA_DIR", "/env/data")
	t.Setenv("DOREPO_FSYNC", "never")
	t.Setenv("DOREPO_REPLICATION_MAX_BATCH", "64")
	t.Setenv("DOREPO_APPEND_MAX_ATTEMPTS", "not-a-number")
	FromEnv(&cfg)
	if cfg.DataDir != "/env/data" {
		t.Fatalf("env override data dir")
	}
	if cfg.FsyncMode() != pebblestore.FsyncModeNever {
		t.Fatalf("env override fsync")
	}
	if cfg.Replication.MaxBatch != 64 {
		t.Fatalf("env override max batch")
	}
	if cfg.AppendMaxAttempts != 5 {
		t.Fatalf("unparsable numbers are ignored, got %d", cfg.AppendMaxAttempts)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"fsync", func(c *Config) { c.Fsync = "sometimes" }},
		{"interval", func(c *Config) { c.Fsync = "interval"; c.FsyncIntervalMs = 0 }},
		{"attempts", func(c *Config) { c.AppendMaxAttempts = 0 }},
		{"suffix", func(c *Config) { c.LegacySuffix = "" }},
		{"batch", func(c *Config) { c.Replication.MaxBatch = 0 }},
		{"level", func(c *Config) { c.Log.Level = "loud" }},
		{"format", func(c *Config) { c.Log.Format = "xml" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if doerrors.CodeOf(err) != doerrors.CodeInvalidArgument {
				t.Fatalf("expected invalid argument, got %v", err)
			}
		})
	}
}
