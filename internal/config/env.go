package config

import (
	"os"
	"strconv"
)

// FromEnv overlays DOREPO_* environment variables onto cfg.
func FromEnv(cfg *Config) {
	str := func(name string, dst *string) {
		if v := os.Getenv(name); v != "" {
			*dst = v
		}
	}
	num := func(name string, dst *int) {
		if v := os.Getenv(name); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	str("DOREPO_DATA_DIR", &cfg.DataDir)
	str("DOREPO_TXN_DIR", &cfg.TxnDir)
	str("DOREPO_FSYNC", &cfg.Fsync)
	num("DOREPO_FSYNC_INTERVAL_MS", &cfg.FsyncIntervalMs)
	num("DOREPO_APPEND_MAX_ATTEMPTS", &cfg.AppendMaxAttempts)
	num("DOREPO_APPEND_RETRY_BACKOFF_MS", &cfg.AppendRetryBackoffMs)
	str("DOREPO_LEGACY_SUFFIX", &cfg.LegacySuffix)
	str("DOREPO_HTTP_ADDR", &cfg.HTTPAddr)
	str("DOREPO_GRPC_ADDR", &cfg.GRPCAddr)
	num("DOREPO_REPLICATION_MAX_BATCH", &cfg.Replication.MaxBatch)
	num("DOREPO_REPLICATION_MAX_WAIT_MS", &cfg.Replication.MaxWaitMs)
	str("DOREPO_LOG_LEVEL", &cfg.Log.Level)
	str("DOREPO_LOG_FORMAT", &cfg.Log.Format)
}
