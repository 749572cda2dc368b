package notion

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// Client exposes the upstream operations the CLI needs. All calls go
// through the shared Transport.
type Client struct {
	transport *Transport
}

// NewClient wraps a Transport.
func NewClient(transport *Transport) *Client {
	return &Client{transport: transport}
}

// RetrievePage fetches a page by id.
func (c *Client) RetrievePage(ctx context.Context, pageID string) (*Page, error) {
	var page Page
	if err := c.transport.Do(ctx, http.MethodGet, "/pages/"+url.PathEscape(pageID), nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// CreatePageRequest is the payload for CreatePage.
type CreatePageRequest struct {
	Parent     Parent         `json:"parent"`
	Properties map[string]any `json:"properties"`
	Children   []BlockInput   `json:"children,omitempty"`
}

// CreatePage creates a page under a data source or parent page.
func (c *Client) CreatePage(ctx context.Context, req CreatePageRequest) (*Page, error) {
	var page Page
	if err := c.transport.Do(ctx, http.MethodPost, "/pages", req, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// UpdatePageRequest is the payload for UpdatePage. Nil fields are omitted
// so an archive toggle doesn't clobber properties and vice versa.
type UpdatePageRequest struct {
	Properties map[string]any `json:"properties,omitempty"`
	Archived   *bool          `json:"archived,omitempty"`
}

// UpdatePage patches page properties and/or the archived flag.
func (c *Client) UpdatePage(ctx context.Context, pageID string, req UpdatePageRequest) (*Page, error) {
	var page Page
	if err := c.transport.Do(ctx, http.MethodPatch, "/pages/"+url.PathEscape(pageID), req, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// RetrieveDataSource fetches a data source, including its property schema.
func (c *Client) RetrieveDataSource(ctx context.Context, dataSourceID string) (*DataSource, error) {
	var ds DataSource
	if err := c.transport.Do(ctx, http.MethodGet, "/data_sources/"+url.PathEscape(dataSourceID), nil, &ds); err != nil {
		return nil, err
	}
	return &ds, nil
}

// QueryDataSource runs a filter/sort query against a data source.
func (c *Client) QueryDataSource(ctx context.Context, dataSourceID string, body map[string]any) (*PageList, error) {
	var list PageList
	path := "/data_sources/" + url.PathEscape(dataSourceID) + "/query"
	if err := c.transport.Do(ctx, http.MethodPost, path, body, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// RetrieveBlock fetches a single block by id.
func (c *Client) RetrieveBlock(ctx context.Context, blockID string) (*Block, error) {
	var block Block
	if err := c.transport.Do(ctx, http.MethodGet, "/blocks/"+url.PathEscape(blockID), nil, &block); err != nil {
		return nil, err
	}
	return &block, nil
}

// ListChildren fetches one page of a block's direct children. An empty
// cursor starts from the beginning; pageSize <= 0 uses the service default.
func (c *Client) ListChildren(ctx context.Context, blockID, cursor string, pageSize int) (*BlockList, error) {
	path := "/blocks/" + url.PathEscape(blockID) + "/children"
	query := url.Values{}
	if cursor != "" {
		query.Set("start_cursor", cursor)
	}
	if pageSize > 0 {
		query.Set("page_size", fmt.Sprintf("%d", pageSize))
	}
	if len(query) > 0 {
		path += "?" + query.Encode()
	}

	var list BlockList
	if err := c.transport.Do(ctx, http.MethodGet, path, nil, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// ChildPosition controls where AppendChildren places the new blocks.
// Zero value appends at the end; AfterID anchors after a sibling; Start
// places before the first existing sibling.
type ChildPosition struct {
	Start   bool
	AfterID string
}

// AppendChildren appends blocks under a parent at the given position and
// returns the created blocks in order.
func (c *Client) AppendChildren(ctx context.Context, blockID string, children []BlockInput, pos ChildPosition) (*BlockList, error) {
	body := map[string]any{"children": children}
	if pos.AfterID != "" {
		body["after"] = pos.AfterID
	} else if pos.Start {
		body["position"] = "start"
	}

	var list BlockList
	path := "/blocks/" + url.PathEscape(blockID) + "/children"
	if err := c.transport.Do(ctx, http.MethodPatch, path, body, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// DeleteBlock archives a block.
func (c *Client) DeleteBlock(ctx context.Context, blockID string) (*Block, error) {
	var block Block
	if err := c.transport.Do(ctx, http.MethodDelete, "/blocks/"+url.PathEscape(blockID), nil, &block); err != nil {
		return nil, err
	}
	return &block, nil
}

// SearchRequest is the payload for Search.
type SearchRequest struct {
	Query       string         `json:"query,omitempty"`
	Filter      map[string]any `json:"filter,omitempty"`
	Sort        map[string]any `json:"sort,omitempty"`
	StartCursor string         `json:"start_cursor,omitempty"`
	PageSize    int            `json:"page_size,omitempty"`
}

// Search runs a workspace-wide title search.
func (c *Client) Search(ctx context.Context, req SearchRequest) (*PageList, error) {
	var list PageList
	if err := c.transport.Do(ctx, http.MethodPost, "/search", req, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// RawResult re-encodes a typed API result for storage or display.
func RawResult(v any) (json.RawMessage, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	return json.RawMessage(data), nil
}
