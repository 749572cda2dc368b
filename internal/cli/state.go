package cli

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/mbroton/notcli/internal/idempotency"
)

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Inspect and maintain local idempotency records",
}

var (
	stateListCommands []string
	stateListLimit    int
)

var stateListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored idempotency records, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := idempotency.OpenStore(cfg.ResolveStateDir())
		if err != nil {
			return fail(err)
		}
		defer store.Close()

		ctx, cancel := cmdContext()
		defer cancel()

		records, err := store.Records(ctx, stateListCommands, stateListLimit)
		if err != nil {
			return fail(err)
		}
		if records == nil {
			records = []idempotency.Record{}
		}
		return outputSuccess(map[string]any{"records": records}, &Meta{Count: len(records)})
	},
}

var statePruneOlderThan time.Duration

var statePruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete completed records older than a cutoff",
	RunE: func(cmd *cobra.Command, args []string) error {
		if statePruneOlderThan <= 0 {
			return fail(invalidInputf("--older-than must be a positive duration (e.g. 168h)"))
		}

		store, err := idempotency.OpenStore(cfg.ResolveStateDir())
		if err != nil {
			return fail(err)
		}
		defer store.Close()

		ctx, cancel := cmdContext()
		defer cancel()

		pruned, err := store.Prune(ctx, time.Now().Add(-statePruneOlderThan))
		if err != nil {
			return fail(err)
		}
		return outputSuccess(map[string]any{"pruned": pruned}, nil)
	},
}

func init() {
	stateListCmd.Flags().StringArrayVar(&stateListCommands, "command", nil, "Only records for this command (repeatable)")
	stateListCmd.Flags().IntVar(&stateListLimit, "limit", 50, "Maximum records to return (0 for all)")
	statePruneCmd.Flags().DurationVar(&statePruneOlderThan, "older-than", 0, "Delete completed records older than this age")
	stateCmd.AddCommand(stateListCmd)
	stateCmd.AddCommand(statePruneCmd)
	rootCmd.AddCommand(stateCmd)
}
