package cli

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	builtindocs "github.com/mbroton/notcli/docs"
	"github.com/mbroton/notcli/internal/ui"
)

type docsTopicView struct {
	Section string `json:"section"`
	Topic   string `json:"topic"`
	Path    string `json:"path"`
}

var docsCmd = &cobra.Command{
	Use:   "docs [section] [topic]",
	Short: "Browse long-form documentation bundled into the binary",
	Long: `Browse guides and references bundled into the notcli binary.

With no arguments, lists all topics. With a section and topic, prints
the document: rendered for terminals, raw Markdown when piped.

Examples:
  notcli docs
  notcli docs guide
  notcli docs guide idempotency
  notcli docs reference error-codes`,
	Args: cobra.RangeArgs(0, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		topics, err := listDocsTopics()
		if err != nil {
			return fail(fmt.Errorf("bundled docs unavailable: %w", err))
		}

		switch len(args) {
		case 0:
			return outputSuccess(map[string]any{"topics": topics}, &Meta{Count: len(topics)})
		case 1:
			var section []docsTopicView
			for _, t := range topics {
				if t.Section == args[0] {
					section = append(section, t)
				}
			}
			if len(section) == 0 {
				return fail(invalidInputf("unknown docs section %q", args[0]))
			}
			return outputSuccess(map[string]any{"topics": section}, &Meta{Count: len(section)})
		default:
			return printDocsTopic(topics, args[0], args[1])
		}
	},
}

func listDocsTopics() ([]docsTopicView, error) {
	var topics []docsTopicView
	err := fs.WalkDir(builtindocs.FS, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(p, ".md") {
			return nil
		}
		topics = append(topics, docsTopicView{
			Section: path.Dir(p),
			Topic:   strings.TrimSuffix(path.Base(p), ".md"),
			Path:    p,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(topics, func(i, j int) bool {
		if topics[i].Section != topics[j].Section {
			return topics[i].Section < topics[j].Section
		}
		return topics[i].Topic < topics[j].Topic
	})
	return topics, nil
}

func printDocsTopic(topics []docsTopicView, section, topic string) error {
	for _, t := range topics {
		if t.Section != section || t.Topic != topic {
			continue
		}
		content, err := fs.ReadFile(builtindocs.FS, t.Path)
		if err != nil {
			return fail(fmt.Errorf("read bundled doc %s: %w", t.Path, err))
		}

		if !ui.IsTerminal() {
			fmt.Print(string(content))
			return nil
		}
		rendered, err := ui.RenderMarkdown(string(content), ui.TermWidth())
		if err != nil {
			fmt.Print(string(content))
			return nil
		}
		fmt.Fprint(os.Stdout, rendered)
		return nil
	}
	return fail(invalidInputf("unknown docs topic %q in section %q", topic, section))
}

func init() {
	rootCmd.AddCommand(docsCmd)
}
