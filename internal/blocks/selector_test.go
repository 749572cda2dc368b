package blocks

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mbroton/notcli/internal/notion"
)

// makeBlock builds a block through its JSON form so the rich text payload
// is populated the same way upstream responses are.
func makeBlock(t *testing.T, id, blockType, text string, edited time.Time) notion.Block {
	t.Helper()
	raw := fmt.Sprintf(`{
		"object": "block",
		"id": %q,
		"type": %q,
		"last_edited_time": %q,
		%q: {"rich_text": [{"type":"text","plain_text":%q}]}
	}`, id, blockType, edited.UTC().Format(time.RFC3339), blockType, text)

	var block notion.Block
	require.NoError(t, json.Unmarshal([]byte(raw), &block))
	return block
}

var testEdited = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// pagedLister serves a fixed sibling list in pages of pageLen, to exercise
// cursor following.
type pagedLister struct {
	blocks  []notion.Block
	pageLen int
	calls   int
}

func (l *pagedLister) ListChildren(ctx context.Context, blockID, cursor string, pageSize int) (*notion.BlockList, error) {
	l.calls++
	start := 0
	if cursor != "" {
		start, _ = strconv.Atoi(cursor)
	}
	end := start + l.pageLen
	if end > len(l.blocks) {
		end = len(l.blocks)
	}

	list := &notion.BlockList{Results: l.blocks[start:end]}
	if end < len(l.blocks) {
		list.HasMore = true
		list.NextCursor = strconv.Itoa(end)
	}
	return list, nil
}

func sampleSiblings(t *testing.T) []notion.Block {
	return []notion.Block{
		makeBlock(t, "b1", "heading_1", "Intro", testEdited),
		makeBlock(t, "b2", "paragraph", "alpha text", testEdited),
		makeBlock(t, "b3", "paragraph", "beta text", testEdited),
		makeBlock(t, "b4", "heading_2", "Details", testEdited),
		makeBlock(t, "b5", "paragraph", "gamma", testEdited),
	}
}

func TestSelectSingleMatch(t *testing.T) {
	lister := &pagedLister{blocks: sampleSiblings(t), pageLen: 2}

	sel, err := Select(context.Background(), lister, "page", Selector{Type: "heading_2"}, 0)
	require.NoError(t, err)
	require.Equal(t, 1, sel.MatchCount)
	require.False(t, sel.Ambiguous)
	require.Equal(t, "b4", sel.Block.ID)
	require.Greater(t, lister.calls, 1, "pagination should be followed")
}

func TestSelectAmbiguousWithoutOrdinal(t *testing.T) {
	lister := &pagedLister{blocks: sampleSiblings(t), pageLen: 10}

	sel, err := Select(context.Background(), lister, "page", Selector{Type: "paragraph", TextContains: "text"}, 0)
	require.NoError(t, err)
	require.Equal(t, 2, sel.MatchCount)
	require.True(t, sel.Ambiguous)
	require.Nil(t, sel.Block, "ambiguity leaves disambiguation to the caller")
}

func TestSelectNoMatch(t *testing.T) {
	lister := &pagedLister{blocks: sampleSiblings(t), pageLen: 10}

	sel, err := Select(context.Background(), lister, "page", Selector{Type: "code"}, 0)
	require.NoError(t, err)
	require.Equal(t, 0, sel.MatchCount)
	require.False(t, sel.Ambiguous)
	require.Nil(t, sel.Block)
}

func TestSelectOrdinal(t *testing.T) {
	lister := &pagedLister{blocks: sampleSiblings(t), pageLen: 10}

	t.Run("from start", func(t *testing.T) {
		sel, err := Select(context.Background(), lister, "page", Selector{Type: "paragraph", Nth: 2}, 0)
		require.NoError(t, err)
		require.Equal(t, "b3", sel.Block.ID)
	})

	t.Run("from end", func(t *testing.T) {
		sel, err := Select(context.Background(), lister, "page", Selector{Type: "paragraph", Nth: 1, FromEnd: true}, 0)
		require.NoError(t, err)
		require.Equal(t, "b5", sel.Block.ID)
	})

	t.Run("out of range", func(t *testing.T) {
		_, err := Select(context.Background(), lister, "page", Selector{Type: "paragraph", Nth: 4}, 0)
		var noMatch *NoMatchError
		require.ErrorAs(t, err, &noMatch)
		require.Equal(t, 3, noMatch.MatchCount)
	})
}

func TestListSiblingsCap(t *testing.T) {
	var many []notion.Block
	for i := 0; i < 30; i++ {
		many = append(many, makeBlock(t, fmt.Sprintf("b%d", i), "paragraph", "x", testEdited))
	}
	lister := &pagedLister{blocks: many, pageLen: 10}

	siblings, err := ListSiblings(context.Background(), lister, "page", 15)
	require.NoError(t, err)
	require.Len(t, siblings, 15)
}

func TestResolveCombinedPredicate(t *testing.T) {
	siblings := sampleSiblings(t)

	sel, err := Resolve(siblings, Selector{Type: "paragraph", TextContains: "beta"})
	require.NoError(t, err)
	require.Equal(t, 1, sel.MatchCount)
	require.Equal(t, "b3", sel.Block.ID)
}
