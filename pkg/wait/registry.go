package wait

import (
	"sync"

	"github.com/oakmoor/cairn/pkg/blackboard"
)

type waiter struct {
	sink  *Sink
	types map[string]bool // empty/nil means "any type"
}

type childKey struct {
	parentKind blackboard.Kind
	parentID   int
	kind       blackboard.Kind
}

// Registry parks suspended worker tasks on predicates and wakes them
// when PostEvents match. The caller (pkg/scheduler, on behalf of
// pkg/console) is responsible for gathering any historical backlog and
// seeding the returned Sink before releasing whatever store-level lock
// it held while doing so — see spec.md §4.4's "atomically under a table
// read lock" requirement.
type Registry struct {
	mu        sync.Mutex
	byKind    map[blackboard.Kind][]*waiter
	byParent  map[childKey][]*waiter
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{
		byKind:   make(map[blackboard.Kind][]*waiter),
		byParent: make(map[childKey][]*waiter),
	}
}

// Register parks a waiter on every concrete type in types within kind's
// table. An empty types matches every entry of that kind. Returns the
// waiter's Sink and a cancel function; cancel is safe to call more than
// once and releases the parking slot without leaking.
func (r *Registry) Register(kind blackboard.Kind, types []string) (*Sink, func()) {
	w := &waiter{sink: newSink(), types: toSet(types)}

	r.mu.Lock()
	r.byKind[kind] = append(r.byKind[kind], w)
	r.mu.Unlock()

	return w.sink, func() { r.cancel(kind, w) }
}

// RegisterChild parks a waiter on entries of kind that are children of
// (parentKind, parentID), optionally filtered to types.
func (r *Registry) RegisterChild(kind, parentKind blackboard.Kind, parentID int, types []string) (*Sink, func()) {
	w := &waiter{sink: newSink(), types: toSet(types)}
	key := childKey{parentKind: parentKind, parentID: parentID, kind: kind}

	r.mu.Lock()
	r.byParent[key] = append(r.byParent[key], w)
	r.mu.Unlock()

	return w.sink, func() { r.cancelChild(key, w) }
}

func toSet(types []string) map[string]bool {
	if len(types) == 0 {
		return nil
	}
	set := make(map[string]bool, len(types))
	for _, t := range types {
		set[t] = true
	}
	return set
}

func (w *waiter) matches(typ string) bool {
	if len(w.types) == 0 {
		return true
	}
	return w.types[typ]
}

// Notify wakes every matching waiter with ev, exactly once per event,
// and wakes matching child-waiters for each of ev's parents.
func (r *Registry) Notify(ev blackboard.PostEvent) {
	item := Item{Event: ev}

	r.mu.Lock()
	kindWaiters := append([]*waiter(nil), r.byKind[ev.Kind]...)
	var childWaiters []*waiter
	for _, pid := range ev.Parents.ParentObjects {
		childWaiters = append(childWaiters, r.byParent[childKey{parentKind: blackboard.KindObject, parentID: pid, kind: ev.Kind}]...)
	}
	for _, pid := range ev.Parents.ParentFacts {
		childWaiters = append(childWaiters, r.byParent[childKey{parentKind: blackboard.KindFact, parentID: pid, kind: ev.Kind}]...)
	}
	for _, pid := range ev.Parents.ParentHyps {
		childWaiters = append(childWaiters, r.byParent[childKey{parentKind: blackboard.KindHyp, parentID: pid, kind: ev.Kind}]...)
	}
	r.mu.Unlock()

	for _, w := range kindWaiters {
		if w.matches(ev.Type) {
			w.sink.push(item)
		}
	}
	for _, w := range childWaiters {
		if w.matches(ev.Type) {
			w.sink.push(item)
		}
	}
}

func (r *Registry) cancel(kind blackboard.Kind, target *waiter) {
	r.mu.Lock()
	list := r.byKind[kind]
	for i, w := range list {
		if w == target {
			r.byKind[kind] = append(list[:i], list[i+1:]...)
			break
		}
	}
	r.mu.Unlock()
	target.sink.Close()
}

func (r *Registry) cancelChild(key childKey, target *waiter) {
	r.mu.Lock()
	list := r.byParent[key]
	for i, w := range list {
		if w == target {
			r.byParent[key] = append(list[:i], list[i+1:]...)
			break
		}
	}
	r.mu.Unlock()
	target.sink.Close()
}

// CancelAll closes every currently-parked waiter's sink, delivering
// Cancelled to every clone suspended on a wait primitive. Used when the
// scheduler declares quiescence or aborts the game.
func (r *Registry) CancelAll() {
	r.mu.Lock()
	var all []*waiter
	for _, list := range r.byKind {
		all = append(all, list...)
	}
	for _, list := range r.byParent {
		all = append(all, list...)
	}
	r.byKind = make(map[blackboard.Kind][]*waiter)
	r.byParent = make(map[childKey][]*waiter)
	r.mu.Unlock()

	for _, w := range all {
		w.sink.Close()
	}
}
