package blocks

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/mbroton/notcli/internal/notion"
)

// FromMarkdown converts markdown content into block inputs using goldmark.
// Supported constructs: headings (levels clamp to 1-3), paragraphs,
// bulleted and numbered list items, fenced code blocks, block quotes, and
// thematic breaks. Anything else flattens to a paragraph.
func FromMarkdown(content string) []notion.BlockInput {
	source := []byte(content)
	md := goldmark.New()
	doc := md.Parser().Parse(text.NewReader(source))

	var inputs []notion.BlockInput
	for node := doc.FirstChild(); node != nil; node = node.NextSibling() {
		inputs = append(inputs, convertNode(node, source)...)
	}
	return inputs
}

func convertNode(node ast.Node, source []byte) []notion.BlockInput {
	switch n := node.(type) {
	case *ast.Heading:
		level := n.Level
		if level > 3 {
			level = 3
		}
		blockType := [...]string{"heading_1", "heading_2", "heading_3"}[level-1]
		return []notion.BlockInput{notion.NewTextBlock(blockType, nodeText(n, source))}

	case *ast.Paragraph:
		return []notion.BlockInput{notion.NewTextBlock("paragraph", nodeText(n, source))}

	case *ast.List:
		itemType := "bulleted_list_item"
		if n.IsOrdered() {
			itemType = "numbered_list_item"
		}
		var items []notion.BlockInput
		for item := n.FirstChild(); item != nil; item = item.NextSibling() {
			items = append(items, notion.NewTextBlock(itemType, nodeText(item, source)))
		}
		return items

	case *ast.FencedCodeBlock:
		block := notion.NewTextBlock("code", codeText(n, source))
		if lang := string(n.Language(source)); lang != "" {
			payload := block["code"].(map[string]any)
			payload["language"] = lang
		}
		return []notion.BlockInput{block}

	case *ast.Blockquote:
		return []notion.BlockInput{notion.NewTextBlock("quote", nodeText(n, source))}

	case *ast.ThematicBreak:
		return []notion.BlockInput{{
			"object":  "block",
			"type":    "divider",
			"divider": map[string]any{},
		}}

	default:
		if txt := nodeText(node, source); txt != "" {
			return []notion.BlockInput{notion.NewTextBlock("paragraph", txt)}
		}
		return nil
	}
}

// nodeText collects the plain text under a node, joining nested paragraph
// runs with newlines.
func nodeText(node ast.Node, source []byte) string {
	var sb strings.Builder
	_ = ast.Walk(node, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch t := n.(type) {
		case *ast.Text:
			sb.Write(t.Segment.Value(source))
			if t.SoftLineBreak() || t.HardLineBreak() {
				sb.WriteByte('\n')
			}
		case *ast.Paragraph:
			if n != node && sb.Len() > 0 {
				sb.WriteByte('\n')
			}
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(sb.String())
}

func codeText(n *ast.FencedCodeBlock, source []byte) string {
	var sb strings.Builder
	for i := 0; i < n.Lines().Len(); i++ {
		segment := n.Lines().At(i)
		sb.Write(segment.Value(source))
	}
	return strings.TrimRight(sb.String(), "\n")
}
