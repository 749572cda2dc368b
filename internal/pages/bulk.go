package pages

import (
	"context"
	"fmt"
	"sync"

	"github.com/mbroton/notcli/internal/blocks"
	"github.com/mbroton/notcli/internal/notion"
)

// MaxBulkItems caps how many creations one bulk call accepts.
const MaxBulkItems = 100

// DefaultBulkConcurrency bounds in-flight creations when the caller does
// not choose a limit.
const DefaultBulkConcurrency = 4

// Item is one page to create in a bulk batch. ContentMarkdown, when set,
// is converted to child blocks.
type Item struct {
	Properties      map[string]any `json:"properties" yaml:"properties"`
	ContentMarkdown string         `json:"content_markdown,omitempty" yaml:"content_markdown,omitempty"`
}

// Creator creates pages upstream. *notion.Client satisfies it.
type Creator interface {
	CreatePage(ctx context.Context, req notion.CreatePageRequest) (*notion.Page, error)
}

// ItemResult is the outcome of one bulk item, at its original index.
type ItemResult struct {
	Index int
	OK    bool
	Page  *notion.Page
	Err   error
}

// Summary counts bulk outcomes.
type Summary struct {
	Requested int `json:"requested"`
	Created   int `json:"created"`
	Failed    int `json:"failed"`
}

// BulkResult is the full outcome of a bulk creation, items in input order.
type BulkResult struct {
	Summary Summary
	Items   []ItemResult
}

// CreateBulk creates the items under parent using a bounded worker pool.
// A per-item upstream failure is captured in that item's result and does
// not cancel sibling items. Results preserve input order regardless of
// completion order.
func CreateBulk(ctx context.Context, creator Creator, parent notion.Parent, items []Item, concurrency int) (BulkResult, error) {
	if len(items) == 0 {
		return BulkResult{Items: []ItemResult{}}, nil
	}
	if len(items) > MaxBulkItems {
		return BulkResult{}, fmt.Errorf("bulk create accepts at most %d items, got %d", MaxBulkItems, len(items))
	}
	if concurrency <= 0 {
		concurrency = DefaultBulkConcurrency
	}
	if concurrency > len(items) {
		concurrency = len(items)
	}

	results := make([]ItemResult, len(items))
	jobs := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				results[idx] = createOne(ctx, creator, parent, idx, items[idx])
			}
		}()
	}

	for idx := range items {
		jobs <- idx
	}
	close(jobs)
	wg.Wait()

	result := BulkResult{Items: results}
	result.Summary.Requested = len(items)
	for _, item := range results {
		if item.OK {
			result.Summary.Created++
		} else {
			result.Summary.Failed++
		}
	}
	return result, nil
}

func createOne(ctx context.Context, creator Creator, parent notion.Parent, idx int, item Item) ItemResult {
	req := notion.CreatePageRequest{
		Parent:     parent,
		Properties: item.Properties,
	}
	if item.ContentMarkdown != "" {
		req.Children = blocks.FromMarkdown(item.ContentMarkdown)
	}

	page, err := creator.CreatePage(ctx, req)
	if err != nil {
		return ItemResult{Index: idx, Err: err}
	}
	return ItemResult{Index: idx, OK: true, Page: page}
}
