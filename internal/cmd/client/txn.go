package client

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	transports "github.com/EUDAT-DTR/DTR-sub001/internal/cmd/client/transports"
	"github.com/EUDAT-DTR/DTR-sub001/internal/txnlog"
)

// NewTxnCommand constructs the `txn` command group and subcommands.
func NewTxnCommand(t transports.TxnTransport) *cobra.Command {
	txnCmd := &cobra.Command{Use: "txn", Short: "Transaction log operations"}
	txnCmd.AddCommand(
		newTxnPageCommand(t),
		newTxnTailCommand(t),
		newTxnCursorCommand(t),
	)
	return txnCmd
}

// newTxnPageCommand constructs the `txn page` subcommand.
func newTxnPageCommand(t transports.TxnTransport) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "page",
		Short: "Print one page of transaction records as JSON lines",
		RunE: func(cmd *cobra.Command, _ []string) error {
			from, _ := cmd.Flags().GetUint64("from")
			limit, _ := cmd.Flags().GetInt("limit")
			filter, _ := cmd.Flags().GetString("filter")
			wait, _ := cmd.Flags().GetBool("wait")

			page, err := t.Page(cmd.Context(), transports.PageRequest{From: from, Limit: limit, Filter: filter, Wait: wait})
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			for _, r := range page.Records {
				if err := enc.Encode(r); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "next: %d\n", page.Next)
			return nil
		},
	}
	cmd.Flags().Uint64("from", 0, "First sequence to read")
	cmd.Flags().Int("limit", 0, "Maximum records (server caps the page)")
	cmd.Flags().String("filter", "", "CEL filter, e.g. kind == \"DELETE_OBJECT\"")
	cmd.Flags().Bool("wait", false, "Wait briefly for new records when none are available")
	return cmd
}

// newTxnTailCommand constructs the `txn tail` subcommand.
//
// With --consumer the stored cursor is the default start and is committed
// every --commit-every records.
func newTxnTailCommand(t transports.TxnTransport) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Follow the transaction log, printing records as JSON lines",
		RunE: func(cmd *cobra.Command, _ []string) error {
			from, _ := cmd.Flags().GetUint64("from")
			filter, _ := cmd.Flags().GetString("filter")
			consumer, _ := cmd.Flags().GetString("consumer")
			every, _ := cmd.Flags().GetInt("commit-every")
			limit, _ := cmd.Flags().GetInt("limit")
			ctx := cmd.Context()

			if consumer != "" && !cmd.Flags().Changed("from") {
				seq, found, err := t.GetCursor(ctx, consumer)
				if err != nil {
					return err
				}
				if found {
					from = seq
				}
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			var (
				seen    int
				pending int
				last    uint64
			)
			commit := func() error {
				if consumer == "" || pending == 0 {
					return nil
				}
				pending = 0
				return t.CommitCursor(ctx, consumer, last+1)
			}
			err := t.Follow(ctx, from, filter, func(r txnlog.Record) error {
				if err := enc.Encode(r); err != nil {
					return err
				}
				seen++
				pending++
				last = r.Seq
				if every > 0 && pending >= every {
					if err := commit(); err != nil {
						return err
					}
				}
				if limit > 0 && seen >= limit {
					return errStop
				}
				return nil
			})
			if err != nil && err != errStop {
				return err
			}
			return commit()
		},
	}
	cmd.Flags().Uint64("from", 0, "First sequence to read (default: consumer cursor or 0)")
	cmd.Flags().String("filter", "", "CEL filter")
	cmd.Flags().String("consumer", "", "Consumer name for durable cursors")
	cmd.Flags().Int("commit-every", 100, "Commit the consumer cursor every N records")
	cmd.Flags().Int("limit", 0, "Stop after N records (0 = follow forever)")
	return cmd
}

// newTxnCursorCommand constructs the `txn cursor` subcommand.
func newTxnCursorCommand(t transports.TxnTransport) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cursor",
		Short: "Show or commit a consumer cursor",
		RunE: func(cmd *cobra.Command, _ []string) error {
			consumer, _ := cmd.Flags().GetString("consumer")
			if cmd.Flags().Changed("commit") {
				seq, _ := cmd.Flags().GetUint64("commit")
				if err := t.CommitCursor(cmd.Context(), consumer, seq); err != nil {
					return err
				}
			}
			seq, found, err := t.GetCursor(cmd.Context(), consumer)
			if err != nil {
				return err
			}
			if !found {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: no cursor\n", consumer)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d\n", consumer, seq)
			return nil
		},
	}
	cmd.Flags().String("consumer", "", "Consumer name")
	cmd.Flags().Uint64("commit", 0, "Commit this sequence before reading")
	_ = cmd.MarkFlagRequired("consumer")
	return cmd
}

type stopError struct{}

func (stopError) Error() string { return "stop" }

var errStop error = stopError{}
