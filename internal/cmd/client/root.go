package client

import (
	"github.com/spf13/cobra"

	transports "github.com/EUDAT-DTR/DTR-sub001/internal/cmd/client/transports"
)

// NewRoot constructs a root Cobra command for the repository client.
// It registers the txn and health command groups.
func NewRoot(baseURL BaseURLFunc) *cobra.Command {
	root := &cobra.Command{
		Use:   "dorepo",
		Short: "Repository client commands",
	}
	root.AddCommand(NewTxnCommand(transports.NewHTTPTransport(baseURL, nil)))
	root.AddCommand(NewHealthCommand(transports.NewGrpcHealth(dialGRPCContext)))
	return root
}
