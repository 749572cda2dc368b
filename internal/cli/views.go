package cli

import (
	"encoding/json"

	"github.com/mbroton/notcli/internal/notion"
)

// compactPage trims a page to the fields agents usually want. Full view
// passes the upstream object through untouched.
type compactPageView struct {
	ID             string `json:"id"`
	Title          string `json:"title,omitempty"`
	URL            string `json:"url,omitempty"`
	Archived       bool   `json:"archived,omitempty"`
	LastEditedTime string `json:"last_edited_time,omitempty"`
}

type compactBlockView struct {
	ID             string `json:"id"`
	Type           string `json:"type"`
	HasChildren    bool   `json:"has_children,omitempty"`
	Text           string `json:"text,omitempty"`
	LastEditedTime string `json:"last_edited_time,omitempty"`
}

func renderPage(page *notion.Page) any {
	if viewMode == viewFull {
		return page
	}
	view := compactPageView{
		ID:       page.ID,
		Title:    pageTitle(page),
		URL:      page.URL,
		Archived: page.Archived,
	}
	if !page.LastEditedTime.IsZero() {
		view.LastEditedTime = page.LastEditedTime.UTC().Format("2006-01-02T15:04:05Z07:00")
	}
	return view
}

func renderPages(list []notion.Page) []any {
	out := make([]any, 0, len(list))
	for i := range list {
		out = append(out, renderPage(&list[i]))
	}
	return out
}

func renderBlock(block *notion.Block) any {
	if viewMode == viewFull {
		return block
	}
	view := compactBlockView{
		ID:          block.ID,
		Type:        block.Type,
		HasChildren: block.HasChildren,
		Text:        block.PlainText(),
	}
	if !block.LastEditedTime.IsZero() {
		view.LastEditedTime = block.LastEditedTime.UTC().Format("2006-01-02T15:04:05Z07:00")
	}
	return view
}

// pageTitle extracts the plain text of the page's title property, if any.
func pageTitle(page *notion.Page) string {
	for _, raw := range page.Properties {
		var prop struct {
			Type  string            `json:"type"`
			Title []notion.RichText `json:"title"`
		}
		if err := json.Unmarshal(raw, &prop); err != nil {
			continue
		}
		if prop.Type == "title" || len(prop.Title) > 0 {
			return notion.PlainTitle(prop.Title)
		}
	}
	return ""
}

// renderStoredPage decodes a pipeline response (possibly a replay) back
// into a page for display.
func renderStoredPage(raw json.RawMessage) any {
	if viewMode == viewFull {
		return raw
	}
	var page notion.Page
	if err := json.Unmarshal(raw, &page); err != nil {
		return raw
	}
	return renderPage(&page)
}
