package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/mbroton/notcli/internal/blocks"
	"github.com/mbroton/notcli/internal/notion"
	"github.com/mbroton/notcli/internal/pages"
	"github.com/mbroton/notcli/internal/ui"
)

var pagesCmd = &cobra.Command{
	Use:   "pages",
	Short: "Create and mutate pages",
}

var (
	createDataSource  string
	createParentPage  string
	createTitle       string
	createProps       []string
	createPropsJSON   string
	createContent     string
	createContentFile string
)

var pagesCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a page under a data source or parent page",
	RunE: func(cmd *cobra.Command, args []string) error {
		parent, err := resolveParent(createDataSource, createParentPage)
		if err != nil {
			return fail(err)
		}
		properties, err := parseProperties(createTitle, createProps, createPropsJSON)
		if err != nil {
			return fail(err)
		}
		children, err := contentBlocks(createContent, createContentFile)
		if err != nil {
			return fail(err)
		}

		req := notion.CreatePageRequest{Parent: parent, Properties: properties, Children: children}

		app, err := newApp()
		if err != nil {
			return fail(err)
		}
		defer app.Close()

		ctx, cancel := cmdContext()
		defer cancel()

		result, err := app.pipeline.Run(ctx, "pages.create", req, func(ctx context.Context) (json.RawMessage, []string, error) {
			page, err := app.client.CreatePage(ctx, req)
			if err != nil {
				return nil, nil, err
			}
			raw, err := notion.RawResult(page)
			if err != nil {
				return nil, nil, err
			}
			return raw, []string{page.ID}, nil
		})
		if err != nil {
			return fail(err)
		}

		hintStderr(ui.Successf("page created"))
		return outputSuccess(renderStoredPage(result.Response), &Meta{Replayed: result.Replayed, Key: result.Key})
	},
}

var (
	updateProps     []string
	updatePropsJSON string
)

var pagesUpdateCmd = &cobra.Command{
	Use:   "update <page-id>",
	Short: "Patch page properties with optimistic conflict retry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pageID := args[0]
		properties, err := parseProperties("", updateProps, updatePropsJSON)
		if err != nil {
			return fail(err)
		}
		if len(properties) == 0 {
			return fail(invalidInputf("no properties given: use --prop or --properties-json"))
		}

		app, err := newApp()
		if err != nil {
			return fail(err)
		}
		defer app.Close()

		ctx, cancel := cmdContext()
		defer cancel()

		shape := map[string]any{"page_id": pageID, "properties": properties}
		result, err := app.pipeline.Run(ctx, "pages.update", shape, func(ctx context.Context) (json.RawMessage, []string, error) {
			page, err := pages.UpdateProperties(ctx, app.client, app.cache, pageID, properties)
			if err != nil {
				return nil, []string{pageID}, err
			}
			raw, err := notion.RawResult(page)
			return raw, []string{pageID}, err
		})
		if err != nil {
			return fail(err)
		}

		return outputSuccess(renderStoredPage(result.Response), &Meta{Replayed: result.Replayed, Key: result.Key})
	},
}

var archiveRestore bool

var pagesArchiveCmd = &cobra.Command{
	Use:   "archive <page-id>",
	Short: "Archive a page (or restore it with --restore)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pageID := args[0]
		archived := !archiveRestore

		app, err := newApp()
		if err != nil {
			return fail(err)
		}
		defer app.Close()

		ctx, cancel := cmdContext()
		defer cancel()

		shape := map[string]any{"page_id": pageID, "archived": archived}
		result, err := app.pipeline.Run(ctx, "pages.archive", shape, func(ctx context.Context) (json.RawMessage, []string, error) {
			page, err := pages.SetArchived(ctx, app.client, pageID, archived)
			if err != nil {
				return nil, []string{pageID}, err
			}
			raw, err := notion.RawResult(page)
			return raw, []string{pageID}, err
		})
		if err != nil {
			return fail(err)
		}

		return outputSuccess(renderStoredPage(result.Response), &Meta{Replayed: result.Replayed, Key: result.Key})
	},
}

var (
	relateProperty string
	relateTargets  []string
)

var pagesRelateCmd = &cobra.Command{
	Use:   "relate <page-id>",
	Short: "Set a relation property to one or more target pages",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pageID := args[0]
		if relateProperty == "" {
			return fail(invalidInputf("--property is required"))
		}
		if len(relateTargets) == 0 {
			return fail(invalidInputf("at least one --to target page id is required"))
		}

		app, err := newApp()
		if err != nil {
			return fail(err)
		}
		defer app.Close()

		ctx, cancel := cmdContext()
		defer cancel()

		shape := map[string]any{
			"page_id":  pageID,
			"property": relateProperty,
			"targets":  toAnySlice(relateTargets),
		}
		result, err := app.pipeline.Run(ctx, "pages.relate", shape, func(ctx context.Context) (json.RawMessage, []string, error) {
			page, err := pages.Relate(ctx, app.client, app.cache, pageID, relateProperty, relateTargets)
			if err != nil {
				return nil, []string{pageID}, err
			}
			raw, err := notion.RawResult(page)
			return raw, []string{pageID}, err
		})
		if err != nil {
			return fail(err)
		}

		return outputSuccess(renderStoredPage(result.Response), &Meta{Replayed: result.Replayed, Key: result.Key})
	},
}

var (
	bulkDataSource  string
	bulkFromFile    string
	bulkConcurrency int
)

// bulkItemView is the per-item entry in the create-bulk response.
type bulkItemView struct {
	Index int        `json:"index"`
	OK    bool       `json:"ok"`
	Page  any        `json:"page,omitempty"`
	Error *ErrorInfo `json:"error,omitempty"`
}

var pagesCreateBulkCmd = &cobra.Command{
	Use:   "create-bulk",
	Short: "Create up to 100 pages with bounded concurrency",
	Long: `Reads creation items from a YAML or JSON file (--from, or - for stdin)
and creates them under one data source. Items fail independently: one
rejected page never aborts its siblings.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		items, err := loadBulkItems(bulkFromFile)
		if err != nil {
			return fail(err)
		}
		parent, err := resolveParent(bulkDataSource, "")
		if err != nil {
			return fail(err)
		}

		app, err := newApp()
		if err != nil {
			return fail(err)
		}
		defer app.Close()

		ctx, cancel := cmdContext()
		defer cancel()

		shape := map[string]any{"parent": parent, "items": items}
		result, err := app.pipeline.Run(ctx, "pages.create-bulk", shape, func(ctx context.Context) (json.RawMessage, []string, error) {
			bulk, err := pages.CreateBulk(ctx, app.client, parent, items, bulkConcurrency)
			if err != nil {
				return nil, nil, err
			}

			views := make([]bulkItemView, len(bulk.Items))
			var targets []string
			for i, item := range bulk.Items {
				view := bulkItemView{Index: item.Index, OK: item.OK}
				if item.OK {
					view.Page = renderPage(item.Page)
					targets = append(targets, item.Page.ID)
				} else {
					code, details := classifyError(item.Err)
					view.Error = &ErrorInfo{Code: code, Message: item.Err.Error(), Details: details}
				}
				views[i] = view
			}

			raw, err := json.Marshal(map[string]any{
				"summary": bulk.Summary,
				"items":   views,
			})
			return raw, targets, err
		})
		if err != nil {
			return fail(err)
		}

		return outputSuccess(json.RawMessage(result.Response), &Meta{Replayed: result.Replayed, Key: result.Key})
	},
}

func init() {
	pagesCreateCmd.Flags().StringVar(&createDataSource, "data-source", "", "Parent data source id")
	pagesCreateCmd.Flags().StringVar(&createParentPage, "parent-page", "", "Parent page id (instead of a data source)")
	pagesCreateCmd.Flags().StringVar(&createTitle, "title", "", "Title property value")
	pagesCreateCmd.Flags().StringArrayVar(&createProps, "prop", nil, "Property as name=json-value (repeatable)")
	pagesCreateCmd.Flags().StringVar(&createPropsJSON, "properties-json", "", "Full properties object as JSON")
	pagesCreateCmd.Flags().StringVar(&createContent, "content", "", "Markdown content for the page body")
	pagesCreateCmd.Flags().StringVar(&createContentFile, "content-file", "", "File with markdown content (- for stdin)")

	pagesUpdateCmd.Flags().StringArrayVar(&updateProps, "prop", nil, "Property as name=json-value (repeatable)")
	pagesUpdateCmd.Flags().StringVar(&updatePropsJSON, "properties-json", "", "Full properties object as JSON")

	pagesArchiveCmd.Flags().BoolVar(&archiveRestore, "restore", false, "Restore instead of archive")

	pagesRelateCmd.Flags().StringVar(&relateProperty, "property", "", "Relation property name")
	pagesRelateCmd.Flags().StringArrayVar(&relateTargets, "to", nil, "Target page id (repeatable)")

	pagesCreateBulkCmd.Flags().StringVar(&bulkDataSource, "data-source", "", "Parent data source id")
	pagesCreateBulkCmd.Flags().StringVar(&bulkFromFile, "from", "", "YAML/JSON file with creation items (- for stdin)")
	pagesCreateBulkCmd.Flags().IntVar(&bulkConcurrency, "concurrency", pages.DefaultBulkConcurrency, "Max creations in flight")

	pagesCmd.AddCommand(pagesCreateCmd, pagesUpdateCmd, pagesArchiveCmd, pagesRelateCmd, pagesCreateBulkCmd)
	rootCmd.AddCommand(pagesCmd)
}

// resolveParent builds the parent reference from flags, falling back to
// the configured default data source.
func resolveParent(dataSourceID, parentPageID string) (notion.Parent, error) {
	if dataSourceID != "" && parentPageID != "" {
		return notion.Parent{}, invalidInputf("--data-source and --parent-page are mutually exclusive")
	}
	if parentPageID != "" {
		return notion.Parent{Type: "page_id", PageID: parentPageID}, nil
	}
	if dataSourceID == "" && cfg != nil {
		dataSourceID = cfg.DefaultDataSource
	}
	if dataSourceID == "" {
		return notion.Parent{}, invalidInputf("no parent given: use --data-source, --parent-page, or set default_data_source in config")
	}
	return notion.Parent{Type: "data_source_id", DataSourceID: dataSourceID}, nil
}

// parseProperties merges --title, repeated --prop name=json pairs, and a
// raw --properties-json object.
func parseProperties(title string, props []string, propsJSON string) (map[string]any, error) {
	properties := make(map[string]any)

	if propsJSON != "" {
		if err := json.Unmarshal([]byte(propsJSON), &properties); err != nil {
			return nil, invalidInputf("invalid --properties-json: %v", err)
		}
	}

	for _, pair := range props {
		name, value, ok := strings.Cut(pair, "=")
		if !ok || name == "" {
			return nil, invalidInputf("invalid --prop %q: want name=json-value", pair)
		}
		var parsed any
		if err := json.Unmarshal([]byte(value), &parsed); err != nil {
			return nil, invalidInputf("invalid JSON value for property %q: %v", name, err)
		}
		properties[name] = parsed
	}

	if title != "" {
		properties["title"] = map[string]any{
			"title": []any{
				map[string]any{
					"type": "text",
					"text": map[string]any{"content": title},
				},
			},
		}
	}

	return properties, nil
}

// contentBlocks converts inline or file markdown to child block inputs.
func contentBlocks(content, contentFile string) ([]notion.BlockInput, error) {
	if content != "" && contentFile != "" {
		return nil, invalidInputf("--content and --content-file are mutually exclusive")
	}
	if contentFile != "" {
		data, err := readFileOrStdin(contentFile)
		if err != nil {
			return nil, err
		}
		content = string(data)
	}
	if content == "" {
		return nil, nil
	}
	return blocks.FromMarkdown(content), nil
}

// loadBulkItems parses bulk creation items from a YAML or JSON file.
func loadBulkItems(path string) ([]pages.Item, error) {
	if path == "" {
		return nil, invalidInputf("--from is required")
	}
	data, err := readFileOrStdin(path)
	if err != nil {
		return nil, err
	}

	var items []pages.Item
	if err := yaml.Unmarshal(data, &items); err != nil {
		return nil, invalidInputf("invalid items file %s: %v", path, err)
	}
	if len(items) == 0 {
		return nil, invalidInputf("items file %s contains no items", path)
	}
	if len(items) > pages.MaxBulkItems {
		return nil, invalidInputf("items file has %d items, limit is %d", len(items), pages.MaxBulkItems)
	}
	return items, nil
}

func readFileOrStdin(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}

func toAnySlice(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
