package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	admincmd "github.com/EUDAT-DTR/DTR-sub001/internal/cmd/admin"
	clientcmd "github.com/EUDAT-DTR/DTR-sub001/internal/cmd/client"
	serverrun "github.com/EUDAT-DTR/DTR-sub001/internal/cmd/server"
	cfgpkg "github.com/EUDAT-DTR/DTR-sub001/internal/config"
	logpkg "github.com/EUDAT-DTR/DTR-sub001/pkg/log"
)

func main() {
	// initialize logger for CLI
	// Respect DOREPO_LOG_LEVEL for both CLI and server start output
	level := os.Getenv("DOREPO_LOG_LEVEL")
	parsed, err := logpkg.ParseLevel(level)
	if err != nil || level == "" {
		parsed = logpkg.InfoLevel
	}
	logger := logpkg.NewLogger(
		logpkg.WithLevel(parsed),
		logpkg.WithFormatter(&logpkg.TextFormatter{}),
		logpkg.WithOutput(logpkg.NewConsoleOutput()),
	)

	rootCmd := clientcmd.NewRoot(clientcmd.HTTPURLFromEnv)
	rootCmd.Short = "Repository server and transaction log CLI"
	rootCmd.Long = "dorepo runs the repository server and reads or maintains its transaction log."

	rootCmd.AddCommand(newServerCommand())
	rootCmd.AddCommand(admincmd.NewTxnlogCommand(admincmd.Options{
		Dir: func() string {
			cfg := cfgpkg.Default()
			cfgpkg.FromEnv(&cfg)
			return cfg.ResolvedTxnDir()
		},
		LegacySuffix: os.Getenv("DOREPO_LEGACY_SUFFIX"),
		Logger:       logger,
	}))

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newServerCommand builds `server start`. Settings are layered: defaults,
// then --config, then DOREPO_* variables, then flags.
func newServerCommand() *cobra.Command {
	serverCmd := &cobra.Command{Use: "server", Short: "Server commands"}
	serverStartCmd := &cobra.Command{
		Use:     "start",
		Short:   "Start the repository server (gRPC and HTTP)",
		Aliases: []string{"run"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := cfgpkg.Default()
			if path, _ := cmd.Flags().GetString("config"); path != "" {
				loaded, err := cfgpkg.Load(path)
				if err != nil {
					return err
				}
				cfg = loaded
			}
			cfgpkg.FromEnv(&cfg)

			flags := cmd.Flags()
			if flags.Changed("data-dir") {
				cfg.DataDir, _ = flags.GetString("data-dir")
			}
			if flags.Changed("txn-dir") {
				cfg.TxnDir, _ = flags.GetString("txn-dir")
			}
			if flags.Changed("grpc") {
				cfg.GRPCAddr, _ = flags.GetString("grpc")
			}
			if flags.Changed("http") {
				cfg.HTTPAddr, _ = flags.GetString("http")
			}
			if flags.Changed("fsync") {
				cfg.Fsync, _ = flags.GetString("fsync")
			}
			if flags.Changed("fsync-interval-ms") {
				cfg.FsyncIntervalMs, _ = flags.GetInt("fsync-interval-ms")
			}
			if flags.Changed("log-level") {
				cfg.Log.Level, _ = flags.GetString("log-level")
			}
			if flags.Changed("log-format") {
				cfg.Log.Format, _ = flags.GetString("log-format")
			}

			if err := serverrun.Run(context.Background(), serverrun.Options{Config: cfg}); err != nil {
				return fmt.Errorf("server error: %w", err)
			}
			// brief delay to allow logs flush
			time.Sleep(100 * time.Millisecond)
			return nil
		},
	}
	serverStartCmd.Flags().String("config", os.Getenv("DOREPO_CONFIG"), "Config file (.yaml, .yml or .json)")
	serverStartCmd.Flags().String("data-dir", "", "Data directory (if not specified, uses OS-specific application data directory)")
	serverStartCmd.Flags().String("txn-dir", "", "Transaction log directory (default <data-dir>/txns)")
	serverStartCmd.Flags().String("grpc", ":50051", "gRPC listen address")
	serverStartCmd.Flags().String("http", ":8080", "HTTP listen address")
	serverStartCmd.Flags().String("fsync", "always", "Fsync mode: always|interval|never")
	serverStartCmd.Flags().Int("fsync-interval-ms", 5, "When --fsync=interval, group-commit window in ms (default 5)")
	serverStartCmd.Flags().String("log-level", "", "Log level: debug|info|warn|error")
	serverStartCmd.Flags().String("log-format", "", "Log format: text|json (default text)")
	serverCmd.AddCommand(serverStartCmd)
	return serverCmd
}
