// Package registry implements the fact-type registry: registration of
// fact type descriptors, group-name expansion, and reserved-name
// enforcement.
//
// Reimplemented as an explicit descriptor struct registered by value,
// rather than welding metadata onto a class at definition time — field
// access goes through an accessor map and the reserved-name check is a
// static set lookup. No runtime class surgery.
package registry

// FieldKind enumerates the field-kind catalog a fact type descriptor can
// declare a field against.
type FieldKind string

const (
	KindString        FieldKind = "string"
	KindBytes         FieldKind = "bytes"
	KindBool          FieldKind = "bool"
	KindInt           FieldKind = "int"
	KindFloat         FieldKind = "float"
	KindNumeric       FieldKind = "numeric"
	KindDict          FieldKind = "dict"
	KindList          FieldKind = "list"
	KindListOfDicts   FieldKind = "list_of_dicts"
	KindStringOrBytes FieldKind = "string_or_bytes"
	KindCustom        FieldKind = "custom"
)

func (k FieldKind) valid() bool {
	switch k {
	case KindString, KindBytes, KindBool, KindInt, KindFloat, KindNumeric,
		KindDict, KindList, KindListOfDicts, KindStringOrBytes, KindCustom:
		return true
	default:
		return false
	}
}

// FieldSchema describes one declared field of a fact type.
type FieldSchema struct {
	Kind FieldKind
	// ElemKind constrains the element type of List/ListOfDicts fields,
	// mirroring original_source's ConstrainedList element-type check.
	ElemKind      FieldKind
	Required      bool
	Default       any
	AllowedValues []any
	Help          string
}

// TypeDescriptor is the registered shape of one fact type: its name, the
// groups it belongs to, and its field schema.
type TypeDescriptor struct {
	Name   string
	Groups []string
	Fields map[string]FieldSchema
}
