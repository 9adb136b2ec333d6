package blackboard

import "time"

// Kind identifies which of the three tables an id or event refers to.
type Kind int

const (
	KindObject Kind = iota
	KindFact
	KindHyp
)

func (k Kind) String() string {
	switch k {
	case KindObject:
		return "object"
	case KindFact:
		return "fact"
	case KindHyp:
		return "hyp"
	default:
		return "unknown"
	}
}

// Relations carries the three parent-id lists and three child-id lists
// every entry holds. An edge is always bidirectional: if x is added with
// parent y, y gains x in the matching child list.
type Relations struct {
	ParentObjects []int
	ParentFacts   []int
	ParentHyps    []int
	ChildObjects  []int
	ChildFacts    []int
	ChildHyps     []int
}

// Clone returns a deep copy so callers can't mutate a Store-owned slice.
func (r Relations) Clone() Relations {
	return Relations{
		ParentObjects: append([]int(nil), r.ParentObjects...),
		ParentFacts:   append([]int(nil), r.ParentFacts...),
		ParentHyps:    append([]int(nil), r.ParentHyps...),
		ChildObjects:  append([]int(nil), r.ChildObjects...),
		ChildFacts:    append([]int(nil), r.ChildFacts...),
		ChildHyps:     append([]int(nil), r.ChildHyps...),
	}
}

func (r *Relations) addChild(kind Kind, id int) {
	switch kind {
	case KindObject:
		r.ChildObjects = appendUnique(r.ChildObjects, id)
	case KindFact:
		r.ChildFacts = appendUnique(r.ChildFacts, id)
	case KindHyp:
		r.ChildHyps = appendUnique(r.ChildHyps, id)
	}
}

func (r Relations) parentIDs(kind Kind) []int {
	switch kind {
	case KindObject:
		return r.ParentObjects
	case KindFact:
		return r.ParentFacts
	case KindHyp:
		return r.ParentHyps
	default:
		return nil
	}
}

func appendUnique(ids []int, id int) []int {
	for _, existing := range ids {
		if existing == id {
			return ids
		}
	}
	return append(ids, id)
}

// Object is an opaque, content-addressed byte buffer.
type Object struct {
	ID        int
	Creator   string
	CreatedAt time.Time
	Data      []byte
	Digest    [32]byte
	Relations Relations
}

// Entry is the common shape of both Fact and Hyp records. Hyp is
// structurally identical to Fact; the only difference is Tainted and
// which table holds it.
type Entry struct {
	ID        int
	Type      string
	Groups    []string
	Creator   string
	CreatedAt time.Time
	Tainted   bool
	Fields    map[string]any
	Relations Relations

	// added marks that this Entry pointer has already been committed via
	// Store.AddFact/AddHyp. Console uses it to enforce that a Fact/Hyp
	// value is never added twice and never mutated after being added.
	added bool
}

// Fact and Hyp are aliases of Entry; they are stored in different tables
// and differ only in the Tainted flag.
type Fact = Entry
type Hyp = Entry

// Added reports whether this Entry has already been committed to a
// table. Console uses this to enforce immutability.
func (e *Entry) Added() bool { return e.added }

// MarkAdded is called by Console.AddFact/AddHyp after a successful
// commit; Store.AddFact/AddHyp do not set it themselves.
func (e *Entry) MarkAdded() { e.added = true }

// SetField sets a field value. Fields must be set before AddFact/AddHyp
// commits the entry; any call after that returns ErrImmutable.
func (e *Entry) SetField(name string, value any) error {
	if e.added {
		return ErrImmutable
	}
	if e.Fields == nil {
		e.Fields = make(map[string]any)
	}
	e.Fields[name] = value
	return nil
}

// AddParentObject records a parent object id. Must be called before the
// entry is added.
func (e *Entry) AddParentObject(id int) error {
	if e.added {
		return ErrImmutable
	}
	e.Relations.ParentObjects = appendUnique(e.Relations.ParentObjects, id)
	return nil
}

// AddParentFact records a parent fact id. Must be called before the
// entry is added.
func (e *Entry) AddParentFact(id int) error {
	if e.added {
		return ErrImmutable
	}
	e.Relations.ParentFacts = appendUnique(e.Relations.ParentFacts, id)
	return nil
}

// AddParentHyp records a parent hyp id. Must be called before the entry
// is added.
func (e *Entry) AddParentHyp(id int) error {
	if e.added {
		return ErrImmutable
	}
	e.Relations.ParentHyps = appendUnique(e.Relations.ParentHyps, id)
	return nil
}

// PostEvent is published by the Store after every successful mutation.
type PostEvent struct {
	Kind    Kind
	Type    string
	ID      int
	Groups  []string
	Parents Relations
	Deduped bool
}
