package blackboard

import "fmt"

// FrameworkError is the common shape for errors surfaced across the
// fact-registration/reference/immutability taxonomy the rest of this
// module follows.
type FrameworkError struct {
	Kind   string
	Where  string
	Detail string
}

func (e *FrameworkError) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.Kind, e.Where, e.Detail)
}

// ErrNotFound is returned when a caller references an id that does not
// exist in the named table, or exists in a different table than expected.
type ErrNotFound struct {
	Kind Kind
	ID   int
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("blackboard: no %s with id %d", e.Kind, e.ID)
}

// ErrWrongKind describes an id that exists, but not in the table the
// caller asked for (e.g. a fact id passed where a hyp id was expected).
// No Store method returns it: ids are assigned per table, so the same id
// can exist in several tables, and a lookup of an id absent from the
// requested table returns ErrNotFound.
type ErrWrongKind struct {
	Want, Have Kind
	ID         int
}

func (e *ErrWrongKind) Error() string {
	return fmt.Sprintf("blackboard: id %d is a %s, not a %s", e.ID, e.Have, e.Want)
}

// ErrImmutable is returned when a caller tries to mutate a Fact/Hyp
// field or relation, or re-add it, after it has already been committed
// via Store.AddFact/AddHyp.
var ErrImmutable = &FrameworkError{Kind: "Immutable", Where: "Entry", Detail: "entry already added"}

// ErrUnknownParent is returned when a relation names a parent id that is
// not (yet) extant in the referenced table.
type ErrUnknownParent struct {
	ParentKind Kind
	ParentID   int
}

func (e *ErrUnknownParent) Error() string {
	return fmt.Sprintf("blackboard: unknown parent %s id %d", e.ParentKind, e.ParentID)
}
