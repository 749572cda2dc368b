package cli

import (
	"github.com/spf13/cobra"
)

var blocksGetCmd = &cobra.Command{
	Use:   "get <block-id>",
	Short: "Retrieve a single block",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp()
		if err != nil {
			return fail(err)
		}
		defer app.Close()

		ctx, cancel := cmdContext()
		defer cancel()

		block, err := app.client.RetrieveBlock(ctx, args[0])
		if err != nil {
			return fail(err)
		}
		return outputSuccess(renderBlock(block), nil)
	},
}

func init() {
	blocksCmd.AddCommand(blocksGetCmd)
}
