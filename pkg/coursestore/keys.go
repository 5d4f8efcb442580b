package coursestore

import (
	"fmt"
	"strings"
)

// CourseKey identifies one course within a store as the triple of
// organization, course number, and run.
type CourseKey struct {
	Org    string `json:"org" yaml:"org"`
	Course string `json:"course" yaml:"course"`
	Run    string `json:"run" yaml:"run"`
}

// NewCourseKey builds a CourseKey from its three parts.
func NewCourseKey(org, course, run string) CourseKey {
	return CourseKey{Org: org, Course: course, Run: run}
}

// ParseCourseKey parses the "org/course/run" form produced by String.
func ParseCourseKey(s string) (CourseKey, error) {
	parts := strings.Split(s, "/")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return CourseKey{}, fmt.Errorf("%w: %q", ErrInvalidCourseKey, s)
	}
	return CourseKey{Org: parts[0], Course: parts[1], Run: parts[2]}, nil
}

// String renders the key in its canonical "org/course/run" form.
func (k CourseKey) String() string {
	return fmt.Sprintf("%s/%s/%s", k.Org, k.Course, k.Run)
}

// IsZero reports whether the key has no parts set. Zero keys are rejected by
// store operations and by the structure updater's boundary guard.
func (k CourseKey) IsZero() bool {
	return k.Org == "" && k.Course == "" && k.Run == ""
}

// UsageID identifies one block instance within a course. Usage ids are
// backend-assigned and unique within one store+course pair, but carry no
// meaning across stores.
type UsageID string

// UsageKey is the fully qualified address of a block: the owning course, the
// block type, and the backend-assigned usage id.
type UsageKey struct {
	Course    CourseKey `json:"course" yaml:"course"`
	BlockType string    `json:"block_type" yaml:"block_type"`
	ID        UsageID   `json:"id" yaml:"id"`
}

// String renders the key as "org/course/run@type@id".
func (k UsageKey) String() string {
	return fmt.Sprintf("%s@%s@%s", k.Course, k.BlockType, k.ID)
}

// AssetKey addresses one binary asset within a course.
type AssetKey struct {
	Course CourseKey `json:"course" yaml:"course"`
	Path   string    `json:"path" yaml:"path"`
}

// String renders the key as "org/course/run!path/to/asset".
func (k AssetKey) String() string {
	return fmt.Sprintf("%s!%s", k.Course, k.Path)
}
