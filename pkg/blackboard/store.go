package blackboard

import (
	"crypto/sha256"
	"sync"
	"time"
)

// Store is the in-process, thread-safe blackboard: three tables (objects,
// facts, hyps) plus the relationship graph spanning them.
//
// A single sync.RWMutex guards the whole store. spec.md describes a
// finer-grained scheme (one lock per table plus a relationship-graph lock
// acquired in a fixed "object < fact < hyp, then by id" order); this
// store folds all of that into one mutex instead (see DESIGN.md). Every
// critical section here is O(1) append/lookup or a bounded edge rewrite —
// never blocking I/O — so the "non-blocking, short critical sections"
// requirement in spec.md §5 still holds.
type Store struct {
	mu sync.RWMutex

	objects     []*Object
	digestIndex map[[32]byte]int

	facts []*Fact

	hyps      map[int]*Hyp
	hypOrder  []int // ids in assignment order, for stable iteration
	nextHypID int

	events   *EventQueue
	notifier Notifier
}

// Notifier receives a PostEvent synchronously, in the same critical
// section as the mutation that produced it. pkg/wait.Registry satisfies
// this interface; Store depends only on this interface, not on
// pkg/wait itself, since pkg/wait already imports pkg/blackboard for
// Kind/PostEvent and a direct dependency the other way would cycle.
type Notifier interface {
	Notify(PostEvent)
}

// SetNotifier installs n to be called under the store's write lock on
// every commit, in addition to the asynchronous EventQueue the
// scheduler drains for clone dispatch. This is what lets Subscribe's
// "snapshot, then register" sequence be atomic (spec.md §4.4): a
// waiter registered inside a Subscribe callback cannot miss an event
// racing it, because both the registration and every Notify call run
// under s.mu.
func (s *Store) SetNotifier(n Notifier) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifier = n
}

func (s *Store) notifyLocked(ev PostEvent) {
	if s.notifier != nil {
		s.notifier.Notify(ev)
	}
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		digestIndex: make(map[[32]byte]int),
		hyps:        make(map[int]*Hyp),
		events:      NewEventQueue(),
	}
}

// Events returns the queue of PostEvents the scheduler dispatches from.
func (s *Store) Events() *EventQueue { return s.events }

// validateParentsLocked checks that every id named in p refers to an
// extant entry of the matching kind. Caller must hold mu (read or write).
func (s *Store) validateParentsLocked(p Relations) error {
	for _, id := range p.ParentObjects {
		if id < 0 || id >= len(s.objects) {
			return &ErrUnknownParent{ParentKind: KindObject, ParentID: id}
		}
	}
	for _, id := range p.ParentFacts {
		if id < 0 || id >= len(s.facts) {
			return &ErrUnknownParent{ParentKind: KindFact, ParentID: id}
		}
	}
	for _, id := range p.ParentHyps {
		if _, ok := s.hyps[id]; !ok {
			return &ErrUnknownParent{ParentKind: KindHyp, ParentID: id}
		}
	}
	return nil
}

// wireChildEdgesLocked records childID as a child of every id in
// parents. Caller must hold mu for writing.
func (s *Store) wireChildEdgesLocked(childKind Kind, childID int, parents Relations) {
	for _, id := range parents.ParentObjects {
		if id >= 0 && id < len(s.objects) {
			s.objects[id].Relations.addChild(childKind, childID)
		}
	}
	for _, id := range parents.ParentFacts {
		if id >= 0 && id < len(s.facts) {
			s.facts[id].Relations.addChild(childKind, childID)
		}
	}
	for _, id := range parents.ParentHyps {
		if h, ok := s.hyps[id]; ok {
			h.Relations.addChild(childKind, childID)
		}
	}
}

func mergeIDs(existing, incoming []int) []int {
	out := append([]int(nil), existing...)
	for _, id := range incoming {
		out = appendUnique(out, id)
	}
	return out
}

// AddObject inserts data, deduplicating on content digest. If identical
// bytes already exist, the requested parents are merged into the
// existing object's relations and the existing id is returned with
// wasNew=false; a PostEvent with Deduped=true is still published so
// interest-holders observe the write.
func (s *Store) AddObject(data []byte, creator string, parents Relations) (id int, wasNew bool, err error) {
	digest := sha256.Sum256(data)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.validateParentsLocked(parents); err != nil {
		return 0, false, err
	}

	existingID, dup := s.digestIndex[digest]
	if dup {
		id = existingID
		s.objects[id].Relations.ParentObjects = mergeIDs(s.objects[id].Relations.ParentObjects, parents.ParentObjects)
		s.objects[id].Relations.ParentFacts = mergeIDs(s.objects[id].Relations.ParentFacts, parents.ParentFacts)
		s.objects[id].Relations.ParentHyps = mergeIDs(s.objects[id].Relations.ParentHyps, parents.ParentHyps)
	} else {
		id = len(s.objects)
		obj := &Object{
			ID:        id,
			Creator:   creator,
			CreatedAt: time.Now(),
			Data:      data,
			Digest:    digest,
			Relations: parents.Clone(),
		}
		s.objects = append(s.objects, obj)
		s.digestIndex[digest] = id
		wasNew = true
	}

	s.wireChildEdgesLocked(KindObject, id, parents)

	ev := PostEvent{Kind: KindObject, ID: id, Parents: parents, Deduped: dup}
	s.events.Push(ev)
	s.notifyLocked(ev)
	return id, wasNew, nil
}

// AddFact inserts e into the fact table. e must not have been previously
// added (callers enforce this via Entry.Added/MarkAdded — see
// pkg/console). Returns the assigned id.
func (s *Store) AddFact(e *Entry) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.validateParentsLocked(e.Relations); err != nil {
		return 0, err
	}

	id := len(s.facts)
	e.ID = id
	e.Tainted = false
	e.CreatedAt = time.Now()
	parents := e.Relations
	e.Relations = parents.Clone()
	s.facts = append(s.facts, e)

	s.wireChildEdgesLocked(KindFact, id, parents)

	ev := PostEvent{Kind: KindFact, Type: e.Type, ID: id, Groups: e.Groups, Parents: parents}
	s.events.Push(ev)
	s.notifyLocked(ev)
	return id, nil
}

// AddHyp inserts e into the hyp table (tainted=true). Returns the
// assigned id.
func (s *Store) AddHyp(e *Entry) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.validateParentsLocked(e.Relations); err != nil {
		return 0, err
	}

	id := s.nextHypID
	s.nextHypID++
	e.ID = id
	e.Tainted = true
	e.CreatedAt = time.Now()
	parents := e.Relations
	e.Relations = parents.Clone()
	s.hyps[id] = e
	s.hypOrder = append(s.hypOrder, id)

	s.wireChildEdgesLocked(KindHyp, id, parents)

	ev := PostEvent{Kind: KindHyp, Type: e.Type, ID: id, Groups: e.Groups, Parents: parents}
	s.events.Push(ev)
	s.notifyLocked(ev)
	return id, nil
}

// GetObject returns a copy of the object with the given id.
func (s *Store) GetObject(id int) (Object, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if id < 0 || id >= len(s.objects) {
		return Object{}, &ErrNotFound{Kind: KindObject, ID: id}
	}
	o := *s.objects[id]
	o.Relations = s.objects[id].Relations.Clone()
	return o, nil
}

// GetFact returns a copy of the fact with the given id.
func (s *Store) GetFact(id int) (Fact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if id < 0 || id >= len(s.facts) {
		return Fact{}, &ErrNotFound{Kind: KindFact, ID: id}
	}
	f := *s.facts[id]
	f.Relations = s.facts[id].Relations.Clone()
	return f, nil
}

// GetHyp returns a copy of the hyp with the given id.
func (s *Store) GetHyp(id int) (Hyp, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.hyps[id]
	if !ok {
		return Hyp{}, &ErrNotFound{Kind: KindHyp, ID: id}
	}
	out := *h
	out.Relations = h.Relations.Clone()
	return out, nil
}

// ListObjects returns copies of every object, in id order.
func (s *Store) ListObjects() []Object {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Object, 0, len(s.objects))
	for _, o := range s.objects {
		cp := *o
		cp.Relations = o.Relations.Clone()
		out = append(out, cp)
	}
	return out
}

// ListFacts returns copies of every fact of the given type, in id order.
// An empty typ returns every fact.
func (s *Store) ListFacts(typ string) []Fact {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Fact, 0)
	for _, f := range s.facts {
		if typ != "" && f.Type != typ {
			continue
		}
		cp := *f
		cp.Relations = f.Relations.Clone()
		out = append(out, cp)
	}
	return out
}

// ListHyps returns copies of every currently-present hyp of the given
// type, in id order. An empty typ returns every hyp.
func (s *Store) ListHyps(typ string) []Hyp {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Hyp, 0)
	for _, id := range s.hypOrder {
		h, ok := s.hyps[id]
		if !ok {
			continue // promoted away
		}
		if typ != "" && h.Type != typ {
			continue
		}
		cp := *h
		cp.Relations = h.Relations.Clone()
		out = append(out, cp)
	}
	return out
}

// PromoteHyp moves the hyp with the given id into the fact table with a
// fresh fact id, untainted, fields and relations carried verbatim
// (non-cascading: parents that are themselves hyps are not further
// promoted). Every edge referencing the old hyp id, on either side, is
// rewritten to the new fact id. Returns the new fact id.
func (s *Store) PromoteHyp(id int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.hyps[id]
	if !ok {
		return 0, &ErrNotFound{Kind: KindHyp, ID: id}
	}
	delete(s.hyps, id)

	newID := len(s.facts)
	f := &Entry{
		ID:        newID,
		Type:      h.Type,
		Groups:    append([]string(nil), h.Groups...),
		Creator:   h.Creator,
		CreatedAt: h.CreatedAt,
		Tainted:   false,
		Fields:    h.Fields,
		Relations: h.Relations.Clone(),
		added:     true,
	}
	s.facts = append(s.facts, f)

	for _, idx := range h.Relations.ParentObjects {
		if idx >= 0 && idx < len(s.objects) {
			replaceChildHyp(&s.objects[idx].Relations, id, newID)
		}
	}
	for _, idx := range h.Relations.ParentFacts {
		if idx >= 0 && idx < len(s.facts) {
			replaceChildHyp(&s.facts[idx].Relations, id, newID)
		}
	}
	for _, pid := range h.Relations.ParentHyps {
		if ph, ok := s.hyps[pid]; ok {
			replaceChildHyp(&ph.Relations, id, newID)
		}
	}
	for _, cid := range h.Relations.ChildObjects {
		if cid >= 0 && cid < len(s.objects) {
			replaceParentHyp(&s.objects[cid].Relations, id, newID)
		}
	}
	for _, cid := range h.Relations.ChildFacts {
		if cid >= 0 && cid < len(s.facts) {
			replaceParentHyp(&s.facts[cid].Relations, id, newID)
		}
	}
	for _, cid := range h.Relations.ChildHyps {
		if ch, ok := s.hyps[cid]; ok {
			replaceParentHyp(&ch.Relations, id, newID)
		}
	}

	ev := PostEvent{Kind: KindFact, Type: f.Type, ID: newID, Groups: f.Groups, Parents: f.Relations}
	s.events.Push(ev)
	s.notifyLocked(ev)
	return newID, nil
}

func replaceChildHyp(r *Relations, oldHyp, newFact int) {
	out := r.ChildHyps[:0:0]
	for _, id := range r.ChildHyps {
		if id != oldHyp {
			out = append(out, id)
		}
	}
	r.ChildHyps = out
	r.ChildFacts = appendUnique(r.ChildFacts, newFact)
}

func replaceParentHyp(r *Relations, oldHyp, newFact int) {
	out := r.ParentHyps[:0:0]
	for _, id := range r.ParentHyps {
		if id != oldHyp {
			out = append(out, id)
		}
	}
	r.ParentHyps = out
	r.ParentFacts = appendUnique(r.ParentFacts, newFact)
}
