package cli

import (
	"github.com/spf13/cobra"

	"github.com/mbroton/notcli/internal/notion"
)

var (
	searchFilter string
	searchLimit  int
	searchCursor string
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search pages by title across the workspace",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := ""
		if len(args) == 1 {
			query = args[0]
		}

		req := notion.SearchRequest{
			Query:       query,
			StartCursor: searchCursor,
			PageSize:    searchLimit,
		}
		if searchFilter != "" {
			req.Filter = map[string]any{"property": "object", "value": searchFilter}
		}

		app, err := newApp()
		if err != nil {
			return fail(err)
		}
		defer app.Close()

		ctx, cancel := cmdContext()
		defer cancel()

		list, err := app.client.Search(ctx, req)
		if err != nil {
			return fail(err)
		}

		data := map[string]any{
			"results":     renderPages(list.Results),
			"has_more":    list.HasMore,
			"next_cursor": list.NextCursor,
		}
		return outputSuccess(data, &Meta{Count: len(list.Results)})
	},
}

func init() {
	searchCmd.Flags().StringVar(&searchFilter, "filter", "", "Limit results to an object kind (page, data_source)")
	searchCmd.Flags().IntVar(&searchLimit, "limit", 0, "Page size (upstream default when 0)")
	searchCmd.Flags().StringVar(&searchCursor, "cursor", "", "Pagination cursor from a previous call")
	rootCmd.AddCommand(searchCmd)
}
