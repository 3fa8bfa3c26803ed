package admin

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	pebblestore "github.com/EUDAT-DTR/DTR-sub001/internal/storage/pebble"
	"github.com/EUDAT-DTR/DTR-sub001/internal/txnlog"
	logpkg "github.com/EUDAT-DTR/DTR-sub001/pkg/log"
)

// Options supplies defaults shared by the admin commands.
type Options struct {
	// Dir is the default transaction directory when --dir is not given.
	Dir          func() string
	LegacySuffix string
	Logger       logpkg.Logger
}

func (o Options) queueOptions() txnlog.Options {
	return txnlog.Options{LegacySuffix: o.LegacySuffix, Fsync: pebblestore.FsyncModeAlways, Logger: o.Logger}
}

// NewTxnlogCommand constructs the `txnlog` command group.
func NewTxnlogCommand(opts Options) *cobra.Command {
	if opts.Logger == nil {
		opts.Logger = logpkg.NewNopLogger()
	}
	cmd := &cobra.Command{Use: "txnlog", Short: "Offline transaction log maintenance"}
	cmd.PersistentFlags().String("dir", "", "Transaction log directory")
	cmd.AddCommand(
		newDumpCommand(opts),
		newStatCommand(opts),
		newMigrateCommand(opts),
	)
	return cmd
}

func resolveDir(cmd *cobra.Command, opts Options) (string, error) {
	dir, _ := cmd.Flags().GetString("dir")
	if dir == "" && opts.Dir != nil {
		dir = opts.Dir()
	}
	if dir == "" {
		return "", fmt.Errorf("--dir is required")
	}
	return dir, nil
}

func newDumpCommand(opts Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dump",
		Short: "Write records as JSON lines",
		RunE: func(cmd *cobra.Command, _ []string) error {
			dir, err := resolveDir(cmd, opts)
			if err != nil {
				return err
			}
			from, _ := cmd.Flags().GetUint64("from")
			expr, _ := cmd.Flags().GetString("filter")
			filter, err := txnlog.CompileFilter(expr)
			if err != nil {
				return err
			}
			q, err := txnlog.Open(dir, opts.queueOptions())
			if err != nil {
				return err
			}
			defer q.Close()
			return dump(cmd, q, from, filter, cmd.OutOrStdout())
		},
	}
	cmd.Flags().Uint64("from", 0, "First sequence to dump")
	cmd.Flags().String("filter", "", "CEL filter")
	return cmd
}

// dump streams records up to the length observed at start.
func dump(cmd *cobra.Command, q txnlog.Queue, from uint64, filter txnlog.Filter, w io.Writer) error {
	end := q.Len()
	if from >= end {
		return nil
	}
	sc := q.ReadFrom(from)
	defer sc.Close()
	enc := json.NewEncoder(w)
	for seq := from; seq < end; seq++ {
		r, err := sc.Next(cmd.Context())
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if !filter.Match(r) {
			continue
		}
		if err := enc.Encode(r); err != nil {
			return err
		}
	}
	return nil
}

// Stat is the summary printed by `txnlog stat`.
type Stat struct {
	Dir      string                  `json:"dir"`
	Records  uint64                  `json:"records"`
	Boundary uint64                  `json:"boundary"`
	Legacy   []txnlog.LegacyFileInfo `json:"legacyFiles,omitempty"`
	Poisoned string                  `json:"poisoned,omitempty"`
}

func newStatCommand(opts Options) *cobra.Command {
	return &cobra.Command{
		Use:   "stat",
		Short: "Summarize a transaction log directory",
		RunE: func(cmd *cobra.Command, _ []string) error {
			dir, err := resolveDir(cmd, opts)
			if err != nil {
				return err
			}
			q, err := txnlog.Open(dir, opts.queueOptions())
			if err != nil {
				return err
			}
			defer q.Close()
			st := statQueue(dir, q)
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(st)
		},
	}
}

func statQueue(dir string, q txnlog.Queue) Stat {
	st := Stat{Dir: dir, Records: q.Len()}
	var emb *txnlog.EmbeddedQueue
	switch v := q.(type) {
	case *txnlog.ConcatenatedQueue:
		st.Boundary = v.Boundary()
		st.Legacy = v.Legacy().Files()
		emb = v.Embedded()
	case *txnlog.EmbeddedQueue:
		emb = v
	}
	if emb != nil {
		if err := emb.Poisoned(); err != nil {
			st.Poisoned = err.Error()
		}
	}
	return st
}

func newMigrateCommand(opts Options) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Fold legacy queue files into the embedded queue",
		Long: "Moves the directory aside to <dir>.old and copies every record, in order, " +
			"into a fresh embedded queue so sequence numbers are unchanged.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			dir, err := resolveDir(cmd, opts)
			if err != nil {
				return err
			}
			errOut := cmd.ErrOrStderr()
			res, err := txnlog.Migrate(cmd.Context(), dir, opts.queueOptions(), func(copied, total uint64) {
				fmt.Fprintf(errOut, "copied %d/%d\n", copied, total)
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "migrated %d records (%d legacy, %d embedded) and %d cursors; previous log kept at %s\n",
				res.Copied, res.Legacy, res.Embedded, res.Cursors, res.OldDir)
			return nil
		},
	}
}
