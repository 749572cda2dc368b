// Package blocks implements declarative block addressing and structural
// editing of a page's child block list.
package blocks

import (
	"context"
	"fmt"
	"strings"

	"github.com/mbroton/notcli/internal/notion"
)

// DefaultMaxBlocks caps how many siblings a selector enumeration walks.
const DefaultMaxBlocks = 500

// listPageSize is the per-call pagination size for children listings.
const listPageSize = 100

// Selector identifies zero, one, or many blocks within a scope.
// Type and TextContains form the predicate; Nth picks the 1-indexed
// ordinal match, counting from the end when FromEnd is set.
type Selector struct {
	Type         string `json:"type,omitempty"`
	TextContains string `json:"text_contains,omitempty"`
	Nth          int    `json:"nth,omitempty"`
	FromEnd      bool   `json:"from_end,omitempty"`
}

// Empty reports whether the selector has no predicate and no ordinal.
func (s Selector) Empty() bool {
	return s.Type == "" && s.TextContains == "" && s.Nth == 0
}

func (s Selector) String() string {
	var parts []string
	if s.Type != "" {
		parts = append(parts, "type="+s.Type)
	}
	if s.TextContains != "" {
		parts = append(parts, fmt.Sprintf("text_contains=%q", s.TextContains))
	}
	if s.Nth != 0 {
		origin := "start"
		if s.FromEnd {
			origin = "end"
		}
		parts = append(parts, fmt.Sprintf("nth=%d from=%s", s.Nth, origin))
	}
	if len(parts) == 0 {
		return "(any)"
	}
	return strings.Join(parts, " ")
}

// Selection is the result of resolving a selector against a sibling list.
// Ambiguous is set when the predicate matched more than one block and no
// ordinal was given; disambiguation is left to the caller.
type Selection struct {
	MatchCount int
	Ambiguous  bool
	Block      *notion.Block
}

// NoMatchError reports a selector that matched nothing, or an ordinal out
// of range of the matches.
type NoMatchError struct {
	Selector   Selector
	MatchCount int
}

func (e *NoMatchError) Error() string {
	if e.Selector.Nth != 0 {
		return fmt.Sprintf("selector %s: ordinal out of range (%d matches)", e.Selector, e.MatchCount)
	}
	return fmt.Sprintf("selector %s matched no blocks", e.Selector)
}

// AmbiguousError reports a selector that matched several blocks where
// exactly one was required.
type AmbiguousError struct {
	Selector   Selector
	MatchCount int
}

func (e *AmbiguousError) Error() string {
	return fmt.Sprintf("selector %s is ambiguous: %d matches (add nth to disambiguate)", e.Selector, e.MatchCount)
}

// ChildLister lists a scope's direct children. *notion.Client satisfies it.
type ChildLister interface {
	ListChildren(ctx context.Context, blockID, cursor string, pageSize int) (*notion.BlockList, error)
}

// ListSiblings enumerates the scope's direct children in order, following
// pagination, capped at maxBlocks.
func ListSiblings(ctx context.Context, lister ChildLister, scopeID string, maxBlocks int) ([]notion.Block, error) {
	if maxBlocks <= 0 {
		maxBlocks = DefaultMaxBlocks
	}

	var siblings []notion.Block
	cursor := ""
	for {
		list, err := lister.ListChildren(ctx, scopeID, cursor, listPageSize)
		if err != nil {
			return nil, err
		}
		for _, block := range list.Results {
			siblings = append(siblings, block)
			if len(siblings) >= maxBlocks {
				return siblings, nil
			}
		}
		if !list.HasMore || list.NextCursor == "" {
			return siblings, nil
		}
		cursor = list.NextCursor
	}
}

// Select resolves a selector against the live sibling list of a scope.
// It never mutates and is safe to call repeatedly.
func Select(ctx context.Context, lister ChildLister, scopeID string, sel Selector, maxBlocks int) (Selection, error) {
	siblings, err := ListSiblings(ctx, lister, scopeID, maxBlocks)
	if err != nil {
		return Selection{}, err
	}
	return Resolve(siblings, sel)
}

// Resolve evaluates a selector against an already-fetched sibling list.
// Range replacement resolves both of its selectors against one snapshot
// through this function.
func Resolve(siblings []notion.Block, sel Selector) (Selection, error) {
	var matches []*notion.Block
	for i := range siblings {
		if matchesPredicate(&siblings[i], sel) {
			matches = append(matches, &siblings[i])
		}
	}

	if sel.Nth != 0 {
		if sel.Nth < 0 || sel.Nth > len(matches) {
			return Selection{MatchCount: len(matches)}, &NoMatchError{Selector: sel, MatchCount: len(matches)}
		}
		idx := sel.Nth - 1
		if sel.FromEnd {
			idx = len(matches) - sel.Nth
		}
		return Selection{MatchCount: len(matches), Block: matches[idx]}, nil
	}

	switch len(matches) {
	case 0:
		return Selection{}, nil
	case 1:
		return Selection{MatchCount: 1, Block: matches[0]}, nil
	default:
		return Selection{MatchCount: len(matches), Ambiguous: true}, nil
	}
}

func matchesPredicate(block *notion.Block, sel Selector) bool {
	if sel.Type != "" && block.Type != sel.Type {
		return false
	}
	if sel.TextContains != "" && !strings.Contains(block.PlainText(), sel.TextContains) {
		return false
	}
	return true
}
