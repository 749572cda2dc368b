package cli

import (
	"encoding/json"

	"github.com/spf13/cobra"
)

var (
	listDataSource string
	listFilterJSON string
	listLimit      int
	listCursor     string
)

var pagesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List pages in a data source, optionally filtered",
	RunE: func(cmd *cobra.Command, args []string) error {
		parent, err := resolveParent(listDataSource, "")
		if err != nil {
			return fail(err)
		}

		body := map[string]any{}
		if listFilterJSON != "" {
			var filter map[string]any
			if err := json.Unmarshal([]byte(listFilterJSON), &filter); err != nil {
				return fail(invalidInputf("invalid --filter-json: %v", err))
			}
			body["filter"] = filter
		}
		if listLimit > 0 {
			body["page_size"] = listLimit
		}
		if listCursor != "" {
			body["start_cursor"] = listCursor
		}

		app, err := newApp()
		if err != nil {
			return fail(err)
		}
		defer app.Close()

		ctx, cancel := cmdContext()
		defer cancel()

		list, err := app.client.QueryDataSource(ctx, parent.DataSourceID, body)
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
	pagesListCmd.Flags().StringVar(&listDataSource, "data-source", "", "Data source id (default from config)")
	pagesListCmd.Flags().StringVar(&listFilterJSON, "filter-json", "", "Upstream filter object as JSON")
	pagesListCmd.Flags().IntVar(&listLimit, "limit", 0, "Page size (upstream default when 0)")
	pagesListCmd.Flags().StringVar(&listCursor, "cursor", "", "Pagination cursor from a previous call")
	pagesCmd.AddCommand(pagesListCmd)
}
