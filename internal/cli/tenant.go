package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var deleteTenantCmd = &cobra.Command{
	Use:   "delete-tenant <tenant>",
	Short: "Remove every chunk owned by a tenant",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context(), GetConfig(), GetRootDir(), appOptions{})
		if err != nil {
			return err
		}
		defer a.Close()

		n, err := a.ingest.DeleteTenant(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("delete failed: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d entries of tenant %q; %d remain\n", n, args[0], a.index.Count())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(deleteTenantCmd)
}
