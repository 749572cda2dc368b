// Package pages implements page-level mutations: schema-validated property
// patches with optimistic conflict retry, and bounded-concurrency bulk
// creation.
package pages

import (
	"context"
	"fmt"

	"github.com/mbroton/notcli/internal/notion"
	"github.com/mbroton/notcli/internal/schemacache"
)

// Client is the subset of upstream operations page mutations need.
// *notion.Client satisfies it.
type Client interface {
	RetrievePage(ctx context.Context, pageID string) (*notion.Page, error)
	UpdatePage(ctx context.Context, pageID string, req notion.UpdatePageRequest) (*notion.Page, error)
	RetrieveDataSource(ctx context.Context, dataSourceID string) (*notion.DataSource, error)
}

// ConflictError reports a property mutation that hit an upstream version
// conflict twice in a row. Not retried further; the caller must re-read.
type ConflictError struct {
	PageID string
	Err    error
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("page %s changed concurrently during update", e.PageID)
}

func (e *ConflictError) Unwrap() error { return e.Err }

// UpdateProperties patches page properties. Each attempt re-reads the
// current page, validates the property names against the data source
// schema, and submits the patch. An upstream version conflict gets exactly
// one more attempt from a fresh read.
func UpdateProperties(ctx context.Context, client Client, cache *schemacache.Cache, pageID string, properties map[string]any) (*notion.Page, error) {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		page, err := attemptUpdate(ctx, client, cache, pageID, properties)
		if err == nil {
			return page, nil
		}
		if !notion.IsConflict(err) {
			return nil, err
		}
		lastErr = err
	}
	return nil, &ConflictError{PageID: pageID, Err: lastErr}
}

func attemptUpdate(ctx context.Context, client Client, cache *schemacache.Cache, pageID string, properties map[string]any) (*notion.Page, error) {
	page, err := client.RetrievePage(ctx, pageID)
	if err != nil {
		return nil, fmt.Errorf("read page %s: %w", pageID, err)
	}

	if page.Parent != nil && page.Parent.DataSourceID != "" && cache != nil {
		names := make([]string, 0, len(properties))
		for name := range properties {
			names = append(names, name)
		}
		if err := cache.ValidateProperties(ctx, client, page.Parent.DataSourceID, names); err != nil {
			return nil, err
		}
	}

	return client.UpdatePage(ctx, pageID, notion.UpdatePageRequest{Properties: properties})
}

// SetArchived toggles a page's archived flag.
func SetArchived(ctx context.Context, client Client, pageID string, archived bool) (*notion.Page, error) {
	return client.UpdatePage(ctx, pageID, notion.UpdatePageRequest{Archived: &archived})
}

// Relate sets a relation property to the given target page ids, going
// through the same optimistic update path as any property patch.
func Relate(ctx context.Context, client Client, cache *schemacache.Cache, pageID, property string, targetIDs []string) (*notion.Page, error) {
	refs := make([]any, 0, len(targetIDs))
	for _, id := range targetIDs {
		refs = append(refs, map[string]any{"id": id})
	}
	properties := map[string]any{
		property: map[string]any{"relation": refs},
	}
	return UpdateProperties(ctx, client, cache, pageID, properties)
}
