// Package structure builds and maintains cached course structure snapshots.
//
// A snapshot is a flattened view of a course tree: per-block summaries keyed
// by usage id plus a root pointer. It is cheap to serve compared to walking
// the module store, and is regenerated whenever a course is published.
package structure

import (
	"context"
	"fmt"

	"github.com/tendant/coursestore/pkg/coursestore"
)

// BlockSummary is the snapshot record for a single block.
type BlockSummary struct {
	UsageKey    coursestore.UsageKey  `json:"usage_key"`
	BlockType   string                `json:"block_type"`
	DisplayName string                `json:"display_name"`
	Graded      bool                  `json:"graded"`
	Format      string                `json:"format,omitempty"`
	Children    []coursestore.UsageID `json:"children"`
}

// Snapshot is the cached structure of one course.
type Snapshot struct {
	Root   coursestore.UsageID                   `json:"root"`
	Blocks map[coursestore.UsageID]*BlockSummary `json:"blocks"`
}

// Generate builds a snapshot from the course's current tree. The walk uses an
// explicit stack rather than recursion so arbitrarily deep trees cannot blow
// the goroutine stack.
func Generate(ctx context.Context, store coursestore.ModuleStore, key coursestore.CourseKey) (*Snapshot, error) {
	root, err := store.GetCourse(ctx, key, coursestore.FetchAll)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch course %s: %w", key, err)
	}

	snapshot := &Snapshot{
		Root:   root.UsageKey.ID,
		Blocks: make(map[coursestore.UsageID]*BlockSummary),
	}

	stack := []*coursestore.Block{root}
	for len(stack) > 0 {
		block := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if _, seen := snapshot.Blocks[block.UsageKey.ID]; seen {
			continue
		}
		children := make([]coursestore.UsageID, 0, len(block.ChildIDs))
		children = append(children, block.ChildIDs...)
		snapshot.Blocks[block.UsageKey.ID] = &BlockSummary{
			UsageKey:    block.UsageKey,
			BlockType:   block.BlockType(),
			DisplayName: block.DisplayName(),
			Graded:      block.Graded(),
			Format:      block.Format(),
			Children:    children,
		}
		stack = append(stack, block.GetChildren()...)
	}
	return snapshot, nil
}
