package cli

import (
	"context"
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/mbroton/notcli/internal/blocks"
	"github.com/mbroton/notcli/internal/notion"
)

var blocksCmd = &cobra.Command{
	Use:   "blocks",
	Short: "Address and edit page content blocks",
}

var (
	selType      string
	selContains  string
	selNth       int
	selFromEnd   bool
	selMaxBlocks int
)

var blocksSelectCmd = &cobra.Command{
	Use:   "select <scope-id>",
	Short: "Resolve a selector against a scope's direct children",
	Long: `Evaluates a predicate (block type, substring of the plain text) over the
scope's direct children. With --nth, picks the 1-indexed ordinal match.
Without it, more than one match reports ambiguous=true and selects nothing;
disambiguation is left to you. Read-only, safe to repeat.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		scopeID := args[0]
		sel := blocks.Selector{
			Type:         selType,
			TextContains: selContains,
			Nth:          selNth,
			FromEnd:      selFromEnd,
		}

		app, err := newApp()
		if err != nil {
			return fail(err)
		}
		defer app.Close()

		ctx, cancel := cmdContext()
		defer cancel()

		selection, err := blocks.Select(ctx, app.client, scopeID, sel, selMaxBlocks)
		if err != nil {
			return fail(err)
		}

		data := map[string]any{
			"match_count": selection.MatchCount,
			"ambiguous":   selection.Ambiguous,
			"selected":    nil,
		}
		if selection.Block != nil {
			data["selected"] = renderBlock(selection.Block)
		}
		return outputSuccess(data, &Meta{Count: selection.MatchCount})
	},
}

var (
	insertAt        string
	insertAfterID   string
	insertText      string
	insertMarkdown  string
	insertBlocksRaw string
)

var blocksInsertCmd = &cobra.Command{
	Use:   "insert <parent-id>",
	Short: "Insert blocks at a sibling position",
	Long: `Inserts content under a parent at start, end, or after a sibling block.
Input larger than the upstream per-call limit is split into chunks, each
chunk anchored after the previous one so overall order is preserved.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		parentID := args[0]
		inputs, err := inputBlocks(insertText, insertMarkdown, insertBlocksRaw)
		if err != nil {
			return fail(err)
		}
		pos := blocks.Position{At: insertAt, AfterID: insertAfterID}

		app, err := newApp()
		if err != nil {
			return fail(err)
		}
		defer app.Close()

		ctx, cancel := cmdContext()
		defer cancel()

		shape := map[string]any{"parent": parentID, "position": pos, "blocks": inputs}
		result, err := app.pipeline.Run(ctx, "blocks.insert", shape, func(ctx context.Context) (json.RawMessage, []string, error) {
			inserted, err := blocks.InsertBlocks(ctx, app.client, parentID, pos, inputs)
			if err != nil {
				return nil, []string{parentID}, err
			}
			raw, err := json.Marshal(inserted)
			return raw, append([]string{parentID}, inserted.InsertedIDs...), err
		})
		if err != nil {
			return fail(err)
		}

		return outputSuccess(json.RawMessage(result.Response), &Meta{Replayed: result.Replayed, Key: result.Key})
	},
}

var (
	replStartType     string
	replStartContains string
	replStartNth      int
	replStartFromEnd  bool
	replEndType       string
	replEndContains   string
	replEndNth        int
	replEndFromEnd    bool
	replExclStart     bool
	replExclEnd       bool
	replText          string
	replMarkdown      string
	replBlocksRaw     string
	replMaxBlocks     int
)

var blocksReplaceRangeCmd = &cobra.Command{
	Use:   "replace-range <parent-id>",
	Short: "Replace the sibling range between two selectors",
	Long: `Resolves start and end selectors against the current sibling list,
fingerprints the enclosed range, inserts the replacement just before it,
re-verifies the fingerprints, and only then deletes the original blocks.

If the range changed between selection and deletion the command fails with
a conflict and deletes nothing; replacement content already inserted stays
in place and is reported in the error details.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		parentID := args[0]
		content, err := inputBlocks(replText, replMarkdown, replBlocksRaw)
		if err != nil {
			return fail(err)
		}

		spec := blocks.ReplaceSpec{
			Start: blocks.Selector{
				Type:         replStartType,
				TextContains: replStartContains,
				Nth:          replStartNth,
				FromEnd:      replStartFromEnd,
			},
			End: blocks.Selector{
				Type:         replEndType,
				TextContains: replEndContains,
				Nth:          replEndNth,
				FromEnd:      replEndFromEnd,
			},
			ExclusiveStart: replExclStart,
			ExclusiveEnd:   replExclEnd,
			Content:        content,
			MaxBlocks:      replMaxBlocks,
		}
		if spec.Start.Empty() || spec.End.Empty() {
			return fail(invalidInputf("both start and end selectors are required"))
		}

		app, err := newApp()
		if err != nil {
			return fail(err)
		}
		defer app.Close()

		ctx, cancel := cmdContext()
		defer cancel()

		shape := map[string]any{
			"parent":          parentID,
			"start":           spec.Start,
			"end":             spec.End,
			"exclusive_start": spec.ExclusiveStart,
			"exclusive_end":   spec.ExclusiveEnd,
			"blocks":          content,
		}
		result, err := app.pipeline.Run(ctx, "blocks.replace-range", shape, func(ctx context.Context) (json.RawMessage, []string, error) {
			replaced, err := blocks.ReplaceRange(ctx, app.client, parentID, spec)
			if err != nil {
				return nil, []string{parentID}, err
			}
			raw, err := json.Marshal(replaced)
			return raw, append([]string{parentID}, replaced.InsertedIDs...), err
		})
		if err != nil {
			return fail(err)
		}

		return outputSuccess(json.RawMessage(result.Response), &Meta{Replayed: result.Replayed, Key: result.Key})
	},
}

func init() {
	blocksSelectCmd.Flags().StringVar(&selType, "type", "", "Match blocks of this type")
	blocksSelectCmd.Flags().StringVar(&selContains, "contains", "", "Match blocks whose text contains this substring")
	blocksSelectCmd.Flags().IntVar(&selNth, "nth", 0, "Pick the 1-indexed ordinal match")
	blocksSelectCmd.Flags().BoolVar(&selFromEnd, "from-end", false, "Count the ordinal from the end")
	blocksSelectCmd.Flags().IntVar(&selMaxBlocks, "max-blocks", blocks.DefaultMaxBlocks, "Cap on siblings enumerated")

	blocksInsertCmd.Flags().StringVar(&insertAt, "at", "end", "Position: start, end, or after")
	blocksInsertCmd.Flags().StringVar(&insertAfterID, "after", "", "Anchor sibling id for --at after")
	blocksInsertCmd.Flags().StringVar(&insertText, "text", "", "Insert a single paragraph with this text")
	blocksInsertCmd.Flags().StringVar(&insertMarkdown, "markdown", "", "Markdown file to convert to blocks (- for stdin)")
	blocksInsertCmd.Flags().StringVar(&insertBlocksRaw, "blocks-json", "", "JSON array of raw block inputs (file path or -)")

	blocksReplaceRangeCmd.Flags().StringVar(&replStartType, "start-type", "", "Start selector: block type")
	blocksReplaceRangeCmd.Flags().StringVar(&replStartContains, "start-contains", "", "Start selector: text substring")
	blocksReplaceRangeCmd.Flags().IntVar(&replStartNth, "start-nth", 0, "Start selector: ordinal match")
	blocksReplaceRangeCmd.Flags().BoolVar(&replStartFromEnd, "start-from-end", false, "Start selector: count ordinal from end")
	blocksReplaceRangeCmd.Flags().StringVar(&replEndType, "end-type", "", "End selector: block type")
	blocksReplaceRangeCmd.Flags().StringVar(&replEndContains, "end-contains", "", "End selector: text substring")
	blocksReplaceRangeCmd.Flags().IntVar(&replEndNth, "end-nth", 0, "End selector: ordinal match")
	blocksReplaceRangeCmd.Flags().BoolVar(&replEndFromEnd, "end-from-end", false, "End selector: count ordinal from end")
	blocksReplaceRangeCmd.Flags().BoolVar(&replExclStart, "exclusive-start", false, "Exclude the start block from the range")
	blocksReplaceRangeCmd.Flags().BoolVar(&replExclEnd, "exclusive-end", false, "Exclude the end block from the range")
	blocksReplaceRangeCmd.Flags().StringVar(&replText, "text", "", "Replacement: a single paragraph with this text")
	blocksReplaceRangeCmd.Flags().StringVar(&replMarkdown, "markdown", "", "Replacement: markdown file (- for stdin)")
	blocksReplaceRangeCmd.Flags().StringVar(&replBlocksRaw, "blocks-json", "", "Replacement: JSON array of raw block inputs")
	blocksReplaceRangeCmd.Flags().IntVar(&replMaxBlocks, "max-blocks", blocks.DefaultMaxBlocks, "Cap on siblings enumerated")

	blocksCmd.AddCommand(blocksSelectCmd, blocksInsertCmd, blocksReplaceRangeCmd)
	rootCmd.AddCommand(blocksCmd)
}

// inputBlocks builds block inputs from exactly one of --text, --markdown,
// or --blocks-json.
func inputBlocks(text, markdownFile, blocksFile string) ([]notion.BlockInput, error) {
	set := 0
	for _, v := range []string{text, markdownFile, blocksFile} {
		if v != "" {
			set++
		}
	}
	if set == 0 {
		return nil, invalidInputf("no content given: use --text, --markdown, or --blocks-json")
	}
	if set > 1 {
		return nil, invalidInputf("--text, --markdown, and --blocks-json are mutually exclusive")
	}

	switch {
	case text != "":
		return []notion.BlockInput{notion.NewTextBlock("paragraph", text)}, nil
	case markdownFile != "":
		data, err := readFileOrStdin(markdownFile)
		if err != nil {
			return nil, err
		}
		inputs := blocks.FromMarkdown(string(data))
		if len(inputs) == 0 {
			return nil, invalidInputf("markdown input produced no blocks")
		}
		return inputs, nil
	default:
		data, err := readFileOrStdin(blocksFile)
		if err != nil {
			return nil, err
		}
		var inputs []notion.BlockInput
		if err := json.Unmarshal(data, &inputs); err != nil {
			return nil, invalidInputf("invalid block inputs: %v", err)
		}
		if len(inputs) == 0 {
			return nil, invalidInputf("block input array is empty")
		}
		return inputs, nil
	}
}
