package blocks

import (
	"context"
	"fmt"
	"time"

	"github.com/mbroton/notcli/internal/notion"
)

// AppendChunkLimit is the upstream per-call ceiling on appended children.
const AppendChunkLimit = 100

// Position names where an insertion goes within the sibling list.
type Position struct {
	At      string `json:"at"` // "start", "end", or "after"
	AfterID string `json:"after_id,omitempty"`
}

// Editor performs the upstream calls structural edits need. *notion.Client
// satisfies it.
type Editor interface {
	ChildLister
	AppendChildren(ctx context.Context, blockID string, children []notion.BlockInput, pos notion.ChildPosition) (*notion.BlockList, error)
	DeleteBlock(ctx context.Context, blockID string) (*notion.Block, error)
}

// InsertResult reports the blocks created by InsertBlocks, in order.
type InsertResult struct {
	InsertedIDs []string `json:"inserted_ids"`
	Count       int      `json:"count"`
}

// InsertBlocks appends inputs under parentID at the given position,
// splitting into chunks of at most AppendChunkLimit. Each chunk after the
// first is anchored immediately after the last block id the previous chunk
// returned, preserving overall order across calls.
func InsertBlocks(ctx context.Context, editor Editor, parentID string, pos Position, inputs []notion.BlockInput) (InsertResult, error) {
	anchor, err := initialPosition(pos)
	if err != nil {
		return InsertResult{}, err
	}

	result := InsertResult{InsertedIDs: []string{}}
	for start := 0; start < len(inputs); start += AppendChunkLimit {
		end := start + AppendChunkLimit
		if end > len(inputs) {
			end = len(inputs)
		}

		list, err := editor.AppendChildren(ctx, parentID, inputs[start:end], anchor)
		if err != nil {
			return InsertResult{}, err
		}
		if len(list.Results) == 0 {
			return InsertResult{}, fmt.Errorf("upstream returned no blocks for appended chunk")
		}

		for _, block := range list.Results {
			result.InsertedIDs = append(result.InsertedIDs, block.ID)
		}
		anchor = notion.ChildPosition{AfterID: result.InsertedIDs[len(result.InsertedIDs)-1]}
	}

	result.Count = len(result.InsertedIDs)
	return result, nil
}

func initialPosition(pos Position) (notion.ChildPosition, error) {
	switch pos.At {
	case "start":
		return notion.ChildPosition{Start: true}, nil
	case "", "end":
		return notion.ChildPosition{}, nil
	case "after":
		if pos.AfterID == "" {
			return notion.ChildPosition{}, fmt.Errorf("position %q requires an anchor block id", pos.At)
		}
		return notion.ChildPosition{AfterID: pos.AfterID}, nil
	default:
		return notion.ChildPosition{}, fmt.Errorf("unknown position %q (want start, end, or after)", pos.At)
	}
}

// Fingerprint is the (id, last_edited_time) pair used to detect concurrent
// modification of a block between selection and mutation.
type Fingerprint struct {
	ID         string    `json:"id"`
	LastEdited time.Time `json:"last_edited_time"`
}

// RangeConflictError reports that the selected sibling range changed
// between selection and deletion. No deletes were issued; content already
// inserted as the replacement is listed so the caller can clean up.
type RangeConflictError struct {
	Reason      string
	InsertedIDs []string
}

func (e *RangeConflictError) Error() string {
	return fmt.Sprintf("block range changed concurrently (%s); deletion aborted", e.Reason)
}

// ReplaceSpec describes a range replacement: start and end selectors
// resolved against one sibling snapshot, per-side exclusivity, and the
// replacement content.
type ReplaceSpec struct {
	Start          Selector
	End            Selector
	ExclusiveStart bool
	ExclusiveEnd   bool
	Content        []notion.BlockInput
	MaxBlocks      int
}

// ReplaceResult reports the blocks inserted and deleted by ReplaceRange.
type ReplaceResult struct {
	InsertedIDs []string `json:"inserted_ids"`
	DeletedIDs  []string `json:"deleted_ids"`
}

// ReplaceRange replaces the sibling range between two selectors with new
// content. The replacement is inserted immediately before the range, then
// the range is re-verified by fingerprint and deleted block by block.
//
// A fingerprint mismatch after insertion aborts before any deletion; the
// inserted content stays in place (reported in the error) rather than
// risking a second mutation on a page that is visibly changing underneath.
func ReplaceRange(ctx context.Context, editor Editor, parentID string, spec ReplaceSpec) (ReplaceResult, error) {
	siblings, err := ListSiblings(ctx, editor, parentID, spec.MaxBlocks)
	if err != nil {
		return ReplaceResult{}, err
	}

	startIdx, err := resolveSingle(siblings, spec.Start)
	if err != nil {
		return ReplaceResult{}, fmt.Errorf("start selector: %w", err)
	}
	endIdx, err := resolveSingle(siblings, spec.End)
	if err != nil {
		return ReplaceResult{}, fmt.Errorf("end selector: %w", err)
	}
	if endIdx < startIdx {
		return ReplaceResult{}, fmt.Errorf("end selector resolves before start selector")
	}

	lo, hi := startIdx, endIdx
	if spec.ExclusiveStart {
		lo++
	}
	if spec.ExclusiveEnd {
		hi--
	}
	if lo > hi {
		return ReplaceResult{}, fmt.Errorf("selected range is empty after applying exclusive bounds")
	}

	fingerprints := make([]Fingerprint, 0, hi-lo+1)
	for _, block := range siblings[lo : hi+1] {
		fingerprints = append(fingerprints, Fingerprint{ID: block.ID, LastEdited: block.LastEditedTime})
	}

	insertPos := Position{At: "start"}
	if lo > 0 {
		insertPos = Position{At: "after", AfterID: siblings[lo-1].ID}
	}

	inserted, err := InsertBlocks(ctx, editor, parentID, insertPos, spec.Content)
	if err != nil {
		return ReplaceResult{}, err
	}

	// Re-verify the range immediately before deleting. Any divergence is
	// a conflict, never silently overwritten.
	if err := verifyRange(ctx, editor, parentID, spec.MaxBlocks, fingerprints, inserted.InsertedIDs); err != nil {
		return ReplaceResult{}, err
	}

	deleted := make([]string, 0, len(fingerprints))
	for _, fp := range fingerprints {
		if _, err := editor.DeleteBlock(ctx, fp.ID); err != nil {
			return ReplaceResult{}, fmt.Errorf("delete block %s: %w", fp.ID, err)
		}
		deleted = append(deleted, fp.ID)
	}

	return ReplaceResult{InsertedIDs: inserted.InsertedIDs, DeletedIDs: deleted}, nil
}

// resolveSingle requires a selector to name exactly one block and returns
// its index in the sibling list.
func resolveSingle(siblings []notion.Block, sel Selector) (int, error) {
	selection, err := Resolve(siblings, sel)
	if err != nil {
		return 0, err
	}
	if selection.Ambiguous {
		return 0, &AmbiguousError{Selector: sel, MatchCount: selection.MatchCount}
	}
	if selection.Block == nil {
		return 0, &NoMatchError{Selector: sel}
	}
	for i := range siblings {
		if siblings[i].ID == selection.Block.ID {
			return i, nil
		}
	}
	return 0, fmt.Errorf("resolved block %s missing from sibling list", selection.Block.ID)
}

// verifyRange re-lists the siblings, masks out the just-inserted blocks,
// and checks the original range is still present, contiguous, in order,
// and unmodified.
func verifyRange(ctx context.Context, editor Editor, parentID string, maxBlocks int, fingerprints []Fingerprint, insertedIDs []string) error {
	if maxBlocks <= 0 {
		maxBlocks = DefaultMaxBlocks
	}
	current, err := ListSiblings(ctx, editor, parentID, maxBlocks+len(insertedIDs))
	if err != nil {
		return err
	}

	inserted := make(map[string]bool, len(insertedIDs))
	for _, id := range insertedIDs {
		inserted[id] = true
	}

	var remaining []notion.Block
	for _, block := range current {
		if !inserted[block.ID] {
			remaining = append(remaining, block)
		}
	}

	first := -1
	for i := range remaining {
		if remaining[i].ID == fingerprints[0].ID {
			first = i
			break
		}
	}
	if first < 0 || first+len(fingerprints) > len(remaining) {
		return &RangeConflictError{Reason: "range start no longer present", InsertedIDs: insertedIDs}
	}

	for i, fp := range fingerprints {
		block := remaining[first+i]
		if block.ID != fp.ID {
			return &RangeConflictError{
				Reason:      fmt.Sprintf("block %s replaced by %s", fp.ID, block.ID),
				InsertedIDs: insertedIDs,
			}
		}
		if !block.LastEditedTime.Equal(fp.LastEdited) {
			return &RangeConflictError{
				Reason:      fmt.Sprintf("block %s edited since selection", fp.ID),
				InsertedIDs: insertedIDs,
			}
		}
	}
	return nil
}
