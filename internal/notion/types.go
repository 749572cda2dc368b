// Package notion implements the client for the upstream document service.
// It is the sole network boundary: every other package performs upstream
// calls through Client, which funnels them through a rate-limited,
// retrying Transport.
package notion

import (
	"encoding/json"
	"strings"
	"time"
)

// Page is a record with typed properties and an ordered tree of content blocks.
type Page struct {
	ID             string                     `json:"id"`
	Object         string                     `json:"object"`
	CreatedTime    time.Time                  `json:"created_time"`
	LastEditedTime time.Time                  `json:"last_edited_time"`
	Archived       bool                       `json:"archived"`
	Parent         *Parent                    `json:"parent,omitempty"`
	Properties     map[string]json.RawMessage `json:"properties,omitempty"`
	URL            string                     `json:"url,omitempty"`
}

// Parent identifies the container a page or block lives under.
type Parent struct {
	Type         string `json:"type"`
	DataSourceID string `json:"data_source_id,omitempty"`
	PageID       string `json:"page_id,omitempty"`
	BlockID      string `json:"block_id,omitempty"`
}

// RichText is a single run of styled text inside a block or property.
type RichText struct {
	Type      string `json:"type"`
	PlainText string `json:"plain_text,omitempty"`
	Text      *struct {
		Content string `json:"content"`
		Link    *struct {
			URL string `json:"url"`
		} `json:"link,omitempty"`
	} `json:"text,omitempty"`
}

// Block is an atomic content node. The type-specific payload (rich text,
// language for code blocks, and so on) stays raw; callers that need the
// text use PlainText.
type Block struct {
	ID             string    `json:"id"`
	Object         string    `json:"object"`
	Type           string    `json:"type"`
	HasChildren    bool      `json:"has_children"`
	LastEditedTime time.Time `json:"last_edited_time"`

	fields map[string]json.RawMessage
}

// blockAlias avoids recursing into Block's own UnmarshalJSON.
type blockAlias Block

// UnmarshalJSON captures the type-keyed payload alongside the fixed fields.
func (b *Block) UnmarshalJSON(data []byte) error {
	var alias blockAlias
	if err := json.Unmarshal(data, &alias); err != nil {
		return err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	*b = Block(alias)
	b.fields = fields
	return nil
}

// MarshalJSON re-emits the block with its type payload intact.
func (b Block) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(b.fields)+5)
	for k, v := range b.fields {
		out[k] = v
	}
	put := func(key string, v any) error {
		raw, err := json.Marshal(v)
		if err != nil {
			return err
		}
		out[key] = raw
		return nil
	}
	if err := put("id", b.ID); err != nil {
		return nil, err
	}
	if b.Object != "" {
		if err := put("object", b.Object); err != nil {
			return nil, err
		}
	}
	if err := put("type", b.Type); err != nil {
		return nil, err
	}
	if err := put("has_children", b.HasChildren); err != nil {
		return nil, err
	}
	if !b.LastEditedTime.IsZero() {
		if err := put("last_edited_time", b.LastEditedTime); err != nil {
			return nil, err
		}
	}
	return json.Marshal(out)
}

// Payload returns the raw type-specific payload (the object under the
// block's "type" key), or nil if absent.
func (b *Block) Payload() json.RawMessage {
	if b.fields == nil {
		return nil
	}
	return b.fields[b.Type]
}

// PlainText extracts the concatenated plain text of the block's rich
// content. Blocks without rich text (dividers, images) yield "".
func (b *Block) PlainText() string {
	payload := b.Payload()
	if payload == nil {
		return ""
	}
	var body struct {
		RichText []RichText `json:"rich_text"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return ""
	}
	var sb strings.Builder
	for _, rt := range body.RichText {
		if rt.PlainText != "" {
			sb.WriteString(rt.PlainText)
		} else if rt.Text != nil {
			sb.WriteString(rt.Text.Content)
		}
	}
	return sb.String()
}

// BlockInput is the payload for creating a new block upstream. Built by
// callers (or blocks.FromMarkdown) as a type-keyed JSON object.
type BlockInput map[string]any

// NewTextBlock builds a BlockInput of the given type with a single plain
// text run, e.g. NewTextBlock("paragraph", "hello").
func NewTextBlock(blockType, text string) BlockInput {
	return BlockInput{
		"object": "block",
		"type":   blockType,
		blockType: map[string]any{
			"rich_text": []any{
				map[string]any{
					"type": "text",
					"text": map[string]any{"content": text},
				},
			},
		},
	}
}

// DataSource describes a typed collection of pages sharing a property schema.
type DataSource struct {
	ID             string                        `json:"id"`
	Object         string                        `json:"object"`
	Title          []RichText                    `json:"title,omitempty"`
	LastEditedTime time.Time                     `json:"last_edited_time"`
	Properties     map[string]PropertyDescriptor `json:"properties,omitempty"`
}

// PropertyDescriptor is the schema entry for one page property.
type PropertyDescriptor struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

// BlockList is one page of a paginated children listing.
type BlockList struct {
	Object     string  `json:"object"`
	Results    []Block `json:"results"`
	HasMore    bool    `json:"has_more"`
	NextCursor string  `json:"next_cursor,omitempty"`
}

// PageList is one page of a paginated page listing (query or search).
type PageList struct {
	Object     string `json:"object"`
	Results    []Page `json:"results"`
	HasMore    bool   `json:"has_more"`
	NextCursor string `json:"next_cursor,omitempty"`
}

// PlainTitle extracts the concatenated plain text of a rich text run list.
func PlainTitle(rts []RichText) string {
	var sb strings.Builder
	for _, rt := range rts {
		if rt.PlainText != "" {
			sb.WriteString(rt.PlainText)
		} else if rt.Text != nil {
			sb.WriteString(rt.Text.Content)
		}
	}
	return sb.String()
}
