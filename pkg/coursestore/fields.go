package coursestore

import (
	"fmt"
	"sort"
)

// Well-known field names shared by every block type.
const (
	FieldDisplayName = "display_name"
	FieldGraded      = "graded"
	FieldFormat      = "format"
)

// FieldKind is the declared type of a schema field.
type FieldKind string

// Field kind constants (typed).
const (
	KindString FieldKind = "string"
	KindBool   FieldKind = "bool"
	KindInt    FieldKind = "int"
	KindFloat  FieldKind = "float"
	KindList   FieldKind = "list"
	KindMap    FieldKind = "map"
)

// FieldMap is the polymorphic field bag of a block, keyed by field name.
// Declared fields hold values of their schema kind; unknown fields pass
// through as opaque values for forward compatibility.
type FieldMap map[string]any

// String returns the named field as a string.
func (m FieldMap) String(name string) (string, bool) {
	v, ok := m[name]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Bool returns the named field as a bool.
func (m FieldMap) Bool(name string) (bool, bool) {
	v, ok := m[name]
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}

// Names returns the field names in sorted order.
func (m FieldMap) Names() []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Clone returns a shallow-value copy of the field map.
func (m FieldMap) Clone() FieldMap {
	if m == nil {
		return nil
	}
	nm := make(FieldMap, len(m))
	for k, v := range m {
		nm[k] = v
	}
	return nm
}

// FieldSchema declares the expected fields for one block type.
type FieldSchema struct {
	BlockType string
	Fields    map[string]FieldKind
}

// schemas is the registry of declared block-type schemas. Types without an
// entry accept any field bag.
var schemas = map[string]FieldSchema{}

func registerSchema(blockType string, fields map[string]FieldKind) {
	base := map[string]FieldKind{
		FieldDisplayName: KindString,
		FieldGraded:      KindBool,
		FieldFormat:      KindString,
	}
	for k, v := range fields {
		base[k] = v
	}
	schemas[blockType] = FieldSchema{BlockType: blockType, Fields: base}
}

func init() {
	registerSchema("course", map[string]FieldKind{
		"wiki_slug":        KindString,
		"start":            KindString,
		"advanced_modules": KindList,
	})
	registerSchema("chapter", nil)
	registerSchema("sequential", nil)
	registerSchema("vertical", nil)
	registerSchema("html", map[string]FieldKind{"data": KindString})
	registerSchema("problem", map[string]FieldKind{
		"data":         KindString,
		"max_attempts": KindInt,
		"weight":       KindFloat,
	})
	registerSchema("video", map[string]FieldKind{
		"youtube_id":    KindString,
		"html5_sources": KindList,
	})
}

// SchemaFor returns the declared schema for a block type, if one exists.
func SchemaFor(blockType string) (FieldSchema, bool) {
	s, ok := schemas[blockType]
	return s, ok
}

// ValidateFields checks declared fields against the block type's schema.
// Unknown fields are allowed; declared fields with a mismatched kind are not.
func ValidateFields(blockType string, fields FieldMap) error {
	schema, ok := schemas[blockType]
	if !ok {
		return nil
	}
	for name, value := range fields {
		kind, declared := schema.Fields[name]
		if !declared || value == nil {
			continue
		}
		if !kindMatches(kind, value) {
			return fmt.Errorf("block type %s: field %s: expected %s, got %T", blockType, name, kind, value)
		}
	}
	return nil
}

func kindMatches(kind FieldKind, value any) bool {
	switch kind {
	case KindString:
		_, ok := value.(string)
		return ok
	case KindBool:
		_, ok := value.(bool)
		return ok
	case KindInt:
		// JSON and normalized YAML decoding both surface integers as
		// float64, so accept either representation.
		switch value.(type) {
		case int, int32, int64, float64:
			return true
		}
		return false
	case KindFloat:
		switch value.(type) {
		case float32, float64, int, int64:
			return true
		}
		return false
	case KindList:
		_, ok := value.([]any)
		return ok
	case KindMap:
		_, ok := value.(map[string]any)
		return ok
	}
	return true
}
