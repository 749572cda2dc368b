package cli

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/mbroton/notcli/internal/audit"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Inspect the local audit log",
}

var auditSince time.Duration

var auditListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded mutation events",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := audit.New(cfg.ResolveStateDir(), true)

		var events []audit.Event
		var err error
		if auditSince > 0 {
			events, err = logger.ReadSince(time.Now().Add(-auditSince))
		} else {
			events, err = logger.Read()
		}
		if err != nil {
			return fail(err)
		}
		if events == nil {
			events = []audit.Event{}
		}

		return outputSuccess(map[string]any{"events": events}, &Meta{Count: len(events)})
	},
}

func init() {
	auditListCmd.Flags().DurationVar(&auditSince, "since", 0, "Only events newer than this age (e.g. 24h)")
	auditCmd.AddCommand(auditListCmd)
	rootCmd.AddCommand(auditCmd)
}
