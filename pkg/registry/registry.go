package registry

import (
	"reflect"
	"sort"
	"strings"
	"sync"
)

// reservedNames is the public API surface a fact field may never shadow.
// Mirrors spec.md §3's list plus the underscore-framed private space.
var reservedNames = map[string]bool{
	"id":              true,
	"factType":        true,
	"groups":          true,
	"parentObjects":   true,
	"parentFacts":     true,
	"parentHyps":      true,
	"childObjects":    true,
	"childFacts":      true,
	"childHyps":       true,
	"addParentFact":   true,
	"addParentHyp":    true,
	"addParentObject": true,
	"creator":         true,
	"created":         true,
	"tainted":         true,
	"save":            true,
	"load":            true,
}

func isReserved(name string) bool {
	if strings.HasPrefix(name, "_") {
		return true
	}
	return reservedNames[name]
}

// Registry holds registered fact type descriptors and their group
// memberships.
type Registry struct {
	mu     sync.RWMutex
	types  map[string]TypeDescriptor
	groups map[string]map[string]bool // group name -> set of concrete type names
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{
		types:  make(map[string]TypeDescriptor),
		groups: make(map[string]map[string]bool),
	}
}

// Register validates td and stores it under its own name and under
// every listed group name. Re-registering the exact same descriptor
// (structural equality) is a no-op; registering a different descriptor
// under an already-used name fails with ErrDuplicateType.
func (r *Registry) Register(td TypeDescriptor) error {
	for field, schema := range td.Fields {
		if isReserved(field) {
			return &ErrReservedName{Type: td.Name, Field: field}
		}
		if !schema.Kind.valid() {
			return &ErrUnknownFieldKind{Type: td.Name, Field: field, Kind: schema.Kind}
		}
		if (schema.Kind == KindList || schema.Kind == KindListOfDicts) && schema.ElemKind != "" && !schema.ElemKind.valid() {
			return &ErrUnknownFieldKind{Type: td.Name, Field: field, Kind: schema.ElemKind}
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.types[td.Name]; ok {
		if !sameShape(existing, td) {
			return &ErrDuplicateType{Name: td.Name}
		}
		return nil // idempotent re-declaration
	}

	r.types[td.Name] = td
	for _, g := range td.Groups {
		set, ok := r.groups[g]
		if !ok {
			set = make(map[string]bool)
			r.groups[g] = set
		}
		set[td.Name] = true
	}
	return nil
}

// sameShape treats two descriptors as "the same class" if their fields
// and group memberships are structurally identical, standing in for the
// class-identity check the original framework does via Python decorator
// metadata.
func sameShape(a, b TypeDescriptor) bool {
	if a.Name != b.Name {
		return false
	}
	ag := append([]string(nil), a.Groups...)
	bg := append([]string(nil), b.Groups...)
	sort.Strings(ag)
	sort.Strings(bg)
	if !reflect.DeepEqual(ag, bg) {
		return false
	}
	return reflect.DeepEqual(a.Fields, b.Fields)
}

// Expand returns the concrete type names covered by name: itself if name
// is a registered concrete type, or its member set if name is a
// registered group. Returns ErrUnknownType if name is neither.
func (r *Registry) Expand(name string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.types[name]; ok {
		return []string{name}, nil
	}
	if set, ok := r.groups[name]; ok {
		out := make([]string, 0, len(set))
		for t := range set {
			out = append(out, t)
		}
		sort.Strings(out)
		return out, nil
	}
	return nil, &ErrUnknownType{Name: name}
}

// Lookup returns the descriptor registered under name, if any.
func (r *Registry) Lookup(name string) (TypeDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	td, ok := r.types[name]
	return td, ok
}

// ValidateFields checks fields against typeName's registered schema at
// add_fact/add_hyp time: every Required field must be present,
// AllowedValues constrains the field's value where declared, and a
// List/ListOfDicts field's ElemKind constrains its elements
// (mirroring original_source's ConstrainedList element-type check). A
// missing, non-required field with a Default is filled in on the
// returned map. typeName not being registered is not itself an error —
// add_fact/add_hyp never required pre-registration — and fields passes
// through unchanged.
func (r *Registry) ValidateFields(typeName string, fields map[string]any) (map[string]any, error) {
	r.mu.RLock()
	td, ok := r.types[typeName]
	r.mu.RUnlock()
	if !ok {
		return fields, nil
	}

	out := fields
	for name, schema := range td.Fields {
		v, present := out[name]
		if !present {
			if schema.Required {
				return nil, &ErrMissingRequiredField{Type: typeName, Field: name}
			}
			if schema.Default != nil {
				if out == nil {
					out = make(map[string]any, len(td.Fields))
					for k, vv := range fields {
						out[k] = vv
					}
				}
				out[name] = schema.Default
			}
			continue
		}
		if len(schema.AllowedValues) > 0 && !valueAllowed(v, schema.AllowedValues) {
			return nil, &ErrDisallowedValue{Type: typeName, Field: name, Value: v}
		}
		if (schema.Kind == KindList || schema.Kind == KindListOfDicts) && schema.ElemKind != "" {
			if !elementsMatchKind(v, schema.ElemKind) {
				return nil, &ErrElementKindMismatch{Type: typeName, Field: name, ElemKind: schema.ElemKind}
			}
		}
	}
	return out, nil
}

func valueAllowed(v any, allowed []any) bool {
	for _, a := range allowed {
		if reflect.DeepEqual(v, a) {
			return true
		}
	}
	return false
}

func elementsMatchKind(v any, elemKind FieldKind) bool {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice {
		return false
	}
	for i := 0; i < rv.Len(); i++ {
		if !elemMatchesKind(rv.Index(i).Interface(), elemKind) {
			return false
		}
	}
	return true
}

func elemMatchesKind(v any, kind FieldKind) bool {
	switch kind {
	case KindString:
		_, ok := v.(string)
		return ok
	case KindBytes:
		_, ok := v.([]byte)
		return ok
	case KindBool:
		_, ok := v.(bool)
		return ok
	case KindInt:
		switch v.(type) {
		case int, int32, int64:
			return true
		default:
			return false
		}
	case KindFloat, KindNumeric:
		switch v.(type) {
		case float32, float64, int, int32, int64:
			return true
		default:
			return false
		}
	case KindDict, KindListOfDicts:
		_, ok := v.(map[string]any)
		return ok
	case KindStringOrBytes:
		switch v.(type) {
		case string, []byte:
			return true
		default:
			return false
		}
	default:
		return true
	}
}

// Names returns every registered concrete type name, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.types))
	for n := range r.types {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
