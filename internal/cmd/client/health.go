package client

import (
	"fmt"

	"github.com/spf13/cobra"

	transports "github.com/EUDAT-DTR/DTR-sub001/internal/cmd/client/transports"
)

// NewHealthCommand constructs the `health` command.
func NewHealthCommand(t transports.HealthTransport) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check server health over gRPC",
		RunE: func(cmd *cobra.Command, _ []string) error {
			service, _ := cmd.Flags().GetString("service")
			if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
				b, err := t.CheckJSON(cmd.Context(), service)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(b))
				return nil
			}
			status, err := t.Check(cmd.Context(), service)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "status:", status)
			if status != "SERVING" {
				return fmt.Errorf("server is %s", status)
			}
			return nil
		},
	}
	cmd.Flags().String("service", "", "Service name (empty checks the whole server)")
	cmd.Flags().Bool("json", false, "Print the raw health response as JSON")
	return cmd
}
