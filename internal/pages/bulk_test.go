package pages

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mbroton/notcli/internal/notion"
)

// fakeCreator mints page ids from the title property and tracks in-flight
// concurrency. failTitles map titles to the error their creation returns.
type fakeCreator struct {
	mu           sync.Mutex
	inFlight     int
	maxInFlight  int
	requests     []notion.CreatePageRequest
	failTitles   map[string]error
	perCallDelay time.Duration
}

func (c *fakeCreator) CreatePage(ctx context.Context, req notion.CreatePageRequest) (*notion.Page, error) {
	c.mu.Lock()
	c.inFlight++
	if c.inFlight > c.maxInFlight {
		c.maxInFlight = c.inFlight
	}
	c.requests = append(c.requests, req)
	c.mu.Unlock()

	if c.perCallDelay > 0 {
		time.Sleep(c.perCallDelay)
	}

	c.mu.Lock()
	c.inFlight--
	c.mu.Unlock()

	title := itemTitle(req.Properties)
	if err, ok := c.failTitles[title]; ok {
		return nil, err
	}
	return &notion.Page{ID: "page-" + title}, nil
}

func itemTitle(properties map[string]any) string {
	title, _ := properties["title"].(string)
	return title
}

func bulkItems(n int) []Item {
	items := make([]Item, 0, n)
	for i := 0; i < n; i++ {
		items = append(items, Item{Properties: map[string]any{"title": fmt.Sprintf("%d", i)}})
	}
	return items
}

var testParent = notion.Parent{Type: "data_source_id", DataSourceID: "ds-1"}

func TestCreateBulkPreservesInputOrder(t *testing.T) {
	creator := &fakeCreator{perCallDelay: time.Millisecond}

	result, err := CreateBulk(context.Background(), creator, testParent, bulkItems(12), 4)
	require.NoError(t, err)
	require.Equal(t, Summary{Requested: 12, Created: 12, Failed: 0}, result.Summary)
	require.Len(t, result.Items, 12)
	for i, item := range result.Items {
		require.Equal(t, i, item.Index)
		require.True(t, item.OK)
		require.Equal(t, fmt.Sprintf("page-%d", i), item.Page.ID)
	}
}

func TestCreateBulkBoundsConcurrency(t *testing.T) {
	creator := &fakeCreator{perCallDelay: 5 * time.Millisecond}

	_, err := CreateBulk(context.Background(), creator, testParent, bulkItems(20), 3)
	require.NoError(t, err)
	require.LessOrEqual(t, creator.maxInFlight, 3)
	require.Len(t, creator.requests, 20)
}

func TestCreateBulkPerItemFailure(t *testing.T) {
	creator := &fakeCreator{failTitles: map[string]error{
		"1": &notion.APIError{Status: 400, Code: "validation_error", Kind: notion.KindClientError},
	}}

	result, err := CreateBulk(context.Background(), creator, testParent, bulkItems(3), 2)
	require.NoError(t, err, "item failures do not fail the batch")
	require.Equal(t, Summary{Requested: 3, Created: 2, Failed: 1}, result.Summary)

	require.True(t, result.Items[0].OK)
	require.False(t, result.Items[1].OK)
	apiErr, ok := notion.AsAPIError(result.Items[1].Err)
	require.True(t, ok)
	require.Equal(t, "validation_error", apiErr.Code)
	require.True(t, result.Items[2].OK, "siblings of a failed item still run")
}

func TestCreateBulkRejectsOversizedBatch(t *testing.T) {
	creator := &fakeCreator{}

	_, err := CreateBulk(context.Background(), creator, testParent, bulkItems(MaxBulkItems+1), 4)
	require.ErrorContains(t, err, "at most")
	require.Empty(t, creator.requests)
}

func TestCreateBulkEmpty(t *testing.T) {
	creator := &fakeCreator{}

	result, err := CreateBulk(context.Background(), creator, testParent, nil, 4)
	require.NoError(t, err)
	require.Equal(t, Summary{}, result.Summary)
	require.Empty(t, result.Items)
}

func TestCreateBulkConvertsMarkdownContent(t *testing.T) {
	creator := &fakeCreator{}
	items := []Item{{
		Properties:      map[string]any{"title": "0"},
		ContentMarkdown: "# Heading\n\nbody text",
	}}

	_, err := CreateBulk(context.Background(), creator, testParent, items, 1)
	require.NoError(t, err)
	require.Len(t, creator.requests, 1)
	require.Len(t, creator.requests[0].Children, 2)
	require.Equal(t, "heading_1", creator.requests[0].Children[0]["type"])
}
