package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/chaz8081/weathercat-logger/internal/ledger"
)

var ledgerJSON bool

// ledgerCmd represents the ledger command
var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Inspect or create the reading ledger",
}

var ledgerInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create an empty ledger file if none exists",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		created, err := ledger.Init(cfg.Store.Path)
		if err != nil {
			return err
		}
		if created {
			fmt.Fprintf(cmd.OutOrStdout(), "Created %s\n", cfg.Store.Path)
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "%s already exists\n", cfg.Store.Path)
		}
		return nil
	},
}

var ledgerListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "Print every reading in the ledger",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		records, err := ledger.Open(cfg.Store.Path).Load()
		if err != nil {
			return err
		}
		if ledgerJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(records)
		}
		for _, r := range records {
			fmt.Fprintln(cmd.OutOrStdout(), r)
		}
		return nil
	},
}

func init() {
	ledgerListCmd.Flags().BoolVar(&ledgerJSON, "json", false, "print records as JSON")
	ledgerCmd.AddCommand(ledgerInitCmd, ledgerListCmd)
	rootCmd.AddCommand(ledgerCmd)
}
