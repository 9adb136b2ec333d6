package registry

import "fmt"

// ErrDuplicateType is returned when a type name is registered twice with
// a structurally different descriptor.
type ErrDuplicateType struct {
	Name string
}

func (e *ErrDuplicateType) Error() string {
	return fmt.Sprintf("registry: type %q already registered with a different shape", e.Name)
}

// ErrReservedName is returned when a descriptor declares a field using
// one of the reserved public-API names.
type ErrReservedName struct {
	Type, Field string
}

func (e *ErrReservedName) Error() string {
	return fmt.Sprintf("registry: field %q on type %q collides with a reserved name", e.Field, e.Type)
}

// ErrUnknownFieldKind is returned when a descriptor declares a field
// with a kind outside the catalog.
type ErrUnknownFieldKind struct {
	Type, Field string
	Kind        FieldKind
}

func (e *ErrUnknownFieldKind) Error() string {
	return fmt.Sprintf("registry: field %q on type %q has unknown kind %q", e.Field, e.Type, e.Kind)
}

// ErrEmptyGroupExpansion is returned when a group name expands to zero
// concrete types at the point a worker's interest set is frozen.
type ErrEmptyGroupExpansion struct {
	Group string
}

func (e *ErrEmptyGroupExpansion) Error() string {
	return fmt.Sprintf("registry: group %q expands to zero concrete types", e.Group)
}

// ErrUnknownType is returned by Expand when name is neither a
// registered concrete type nor a registered group.
type ErrUnknownType struct {
	Name string
}

func (e *ErrUnknownType) Error() string {
	return fmt.Sprintf("registry: %q is not a registered type or group", e.Name)
}

// ErrMissingRequiredField is returned by ValidateFields when a
// registered type declares a field Required and add_fact/add_hyp's
// caller did not set it.
type ErrMissingRequiredField struct {
	Type, Field string
}

func (e *ErrMissingRequiredField) Error() string {
	return fmt.Sprintf("registry: field %q on type %q is required but was not set", e.Field, e.Type)
}

// ErrDisallowedValue is returned by ValidateFields when a field's value
// is not a member of its schema's AllowedValues.
type ErrDisallowedValue struct {
	Type, Field string
	Value       any
}

func (e *ErrDisallowedValue) Error() string {
	return fmt.Sprintf("registry: field %q on type %q got disallowed value %v", e.Field, e.Type, e.Value)
}

// ErrElementKindMismatch is returned by ValidateFields when a List or
// ListOfDicts field's value is not a slice, or contains an element that
// does not match the schema's declared ElemKind.
type ErrElementKindMismatch struct {
	Type, Field string
	ElemKind    FieldKind
}

func (e *ErrElementKindMismatch) Error() string {
	return fmt.Sprintf("registry: field %q on type %q has an element that does not match declared element kind %q", e.Field, e.Type, e.ElemKind)
}
