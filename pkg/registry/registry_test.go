package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterAndExpandConcreteType(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(TypeDescriptor{
		Name:   "md5",
		Groups: []string{"hash"},
		Fields: map[string]FieldSchema{"value": {Kind: KindString, Required: true}},
	}))

	types, err := r.Expand("md5")
	require.NoError(t, err)
	assert.Equal(t, []string{"md5"}, types)
}

func TestExpandGroup(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(TypeDescriptor{Name: "md5", Groups: []string{"hash"}}))
	require.NoError(t, r.Register(TypeDescriptor{Name: "sha1", Groups: []string{"hash"}}))

	types, err := r.Expand("hash")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"md5", "sha1"}, types)
}

func TestExpandUnknownFails(t *testing.T) {
	r := New()
	_, err := r.Expand("nope")
	require.Error(t, err)
	var unknown *ErrUnknownType
	assert.ErrorAs(t, err, &unknown)
}

func TestRegisterReservedNameFails(t *testing.T) {
	r := New()
	err := r.Register(TypeDescriptor{
		Name:   "bad",
		Fields: map[string]FieldSchema{"created": {Kind: KindString}},
	})
	require.Error(t, err)
	var reserved *ErrReservedName
	assert.ErrorAs(t, err, &reserved)
}

func TestRegisterUnderscorePrefixedFieldFails(t *testing.T) {
	r := New()
	err := r.Register(TypeDescriptor{
		Name:   "bad",
		Fields: map[string]FieldSchema{"_private": {Kind: KindString}},
	})
	require.Error(t, err)
	var reserved *ErrReservedName
	assert.ErrorAs(t, err, &reserved)
}

func TestRegisterUnknownFieldKindFails(t *testing.T) {
	r := New()
	err := r.Register(TypeDescriptor{
		Name:   "bad",
		Fields: map[string]FieldSchema{"value": {Kind: "wat"}},
	})
	require.Error(t, err)
	var unknown *ErrUnknownFieldKind
	assert.ErrorAs(t, err, &unknown)
}

func TestRegisterDuplicateDistinctShapeFails(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(TypeDescriptor{
		Name:   "md5",
		Fields: map[string]FieldSchema{"value": {Kind: KindString}},
	}))
	err := r.Register(TypeDescriptor{
		Name:   "md5",
		Fields: map[string]FieldSchema{"value": {Kind: KindBytes}},
	})
	require.Error(t, err)
	var dup *ErrDuplicateType
	assert.ErrorAs(t, err, &dup)
}

func TestRegisterIdenticalRedeclarationIsIdempotent(t *testing.T) {
	r := New()
	td := TypeDescriptor{
		Name:   "md5",
		Groups: []string{"hash"},
		Fields: map[string]FieldSchema{"value": {Kind: KindString}},
	}
	require.NoError(t, r.Register(td))
	require.NoError(t, r.Register(td))

	types, err := r.Expand("hash")
	require.NoError(t, err)
	assert.Equal(t, []string{"md5"}, types) // not duplicated in the group set
}

func TestValidateFieldsPassesThroughUnregisteredType(t *testing.T) {
	r := New()
	fields := map[string]any{"anything": 1}
	out, err := r.ValidateFields("nope", fields)
	require.NoError(t, err)
	assert.Equal(t, fields, out)
}

func TestValidateFieldsRejectsMissingRequired(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(TypeDescriptor{
		Name:   "md5",
		Fields: map[string]FieldSchema{"value": {Kind: KindString, Required: true}},
	}))

	_, err := r.ValidateFields("md5", map[string]any{})
	require.Error(t, err)
	var missing *ErrMissingRequiredField
	assert.ErrorAs(t, err, &missing)
}

func TestValidateFieldsFillsDefaultForMissingOptionalField(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(TypeDescriptor{
		Name:   "observation",
		Fields: map[string]FieldSchema{"confidence": {Kind: KindFloat, Default: 0.5}},
	}))

	out, err := r.ValidateFields("observation", nil)
	require.NoError(t, err)
	assert.Equal(t, 0.5, out["confidence"])
}

func TestValidateFieldsRejectsDisallowedValue(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(TypeDescriptor{
		Name:   "severity",
		Fields: map[string]FieldSchema{"level": {Kind: KindString, AllowedValues: []any{"low", "high"}}},
	}))

	_, err := r.ValidateFields("severity", map[string]any{"level": "medium"})
	require.Error(t, err)
	var disallowed *ErrDisallowedValue
	assert.ErrorAs(t, err, &disallowed)

	_, err = r.ValidateFields("severity", map[string]any{"level": "high"})
	assert.NoError(t, err)
}

func TestValidateFieldsRejectsElementKindMismatch(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(TypeDescriptor{
		Name:   "tagged",
		Fields: map[string]FieldSchema{"tags": {Kind: KindList, ElemKind: KindString}},
	}))

	_, err := r.ValidateFields("tagged", map[string]any{"tags": []any{"ok", 5}})
	require.Error(t, err)
	var mismatch *ErrElementKindMismatch
	assert.ErrorAs(t, err, &mismatch)

	_, err = r.ValidateFields("tagged", map[string]any{"tags": []any{"ok", "also-ok"}})
	assert.NoError(t, err)
}
