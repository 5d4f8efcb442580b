package coursestore

import (
	"time"
)

// Fetch depths for GetCourse and GetItem.
const (
	// FetchBlock loads just the addressed block; Children stays nil.
	FetchBlock = 0

	// FetchAll loads the addressed block and its entire subtree eagerly.
	FetchAll = -1
)

// Block is one node of the course tree.
//
// ChildIDs is the persisted, ordered list of child usage ids; the order is
// authoring order and is semantically significant. Children holds the loaded
// child blocks when the block was fetched with sufficient depth, in the same
// order as ChildIDs.
type Block struct {
	UsageKey UsageKey `json:"usage_key"`
	Fields   FieldMap `json:"fields"`

	// ParentID is a weak back-reference; empty for the root block.
	ParentID UsageID   `json:"parent_id,omitempty"`
	ChildIDs []UsageID `json:"child_ids,omitempty"`

	Children []*Block `json:"-"`
}

// BlockType returns the block's category (e.g. "chapter", "problem").
func (b *Block) BlockType() string {
	return b.UsageKey.BlockType
}

// DisplayName returns the display_name field, or "" when unset.
func (b *Block) DisplayName() string {
	s, _ := b.Fields.String(FieldDisplayName)
	return s
}

// Graded returns the graded field, or false when unset.
func (b *Block) Graded() bool {
	v, _ := b.Fields.Bool(FieldGraded)
	return v
}

// Format returns the grading-format label, or "" when unset.
func (b *Block) Format() string {
	s, _ := b.Fields.String(FieldFormat)
	return s
}

// HasChildren reports whether the block has any children recorded.
func (b *Block) HasChildren() bool {
	return len(b.ChildIDs) > 0
}

// GetChildren returns the loaded child blocks. It is nil unless the block was
// fetched with a depth that covers its children.
func (b *Block) GetChildren() []*Block {
	return b.Children
}

// Clone returns a deep copy of the block without its loaded children.
func (b *Block) Clone() *Block {
	nb := &Block{
		UsageKey: b.UsageKey,
		Fields:   b.Fields.Clone(),
		ParentID: b.ParentID,
	}
	if b.ChildIDs != nil {
		nb.ChildIDs = append([]UsageID(nil), b.ChildIDs...)
	}
	return nb
}

// Course is the root of one course tree within a store.
type Course struct {
	Key  CourseKey `json:"key"`
	Root UsageID   `json:"root"`
}

// Asset is the metadata record for one binary content item of a course.
//
// Fields carries backend-assigned bookkeeping (e.g. "_id", "uploadDate",
// "content_son", "thumbnail_location") that is expected to diverge between
// backends and is excluded from cross-store comparison.
type Asset struct {
	Key           AssetKey       `json:"key"`
	DisplayName   string         `json:"display_name"`
	ContentType   string         `json:"content_type,omitempty"`
	UploadDate    time.Time      `json:"upload_date"`
	ContentDigest string         `json:"content_digest,omitempty"`
	Locked        bool           `json:"locked,omitempty"`
	Fields        map[string]any `json:"fields,omitempty"`
}

// Clone returns a deep copy of the asset metadata.
func (a *Asset) Clone() *Asset {
	na := *a
	if a.Fields != nil {
		na.Fields = make(map[string]any, len(a.Fields))
		for k, v := range a.Fields {
			na.Fields[k] = v
		}
	}
	return &na
}
