package blackboard

// Subscribe atomically gathers the historical backlog of kind filtered
// to types (id > *sinceID when sinceID is non-nil; every matching entry
// when sinceID is nil), then hands it to register while still holding
// the store's read lock, and only releases the lock once register
// returns. Combined with SetNotifier's guarantee that every Notify call
// runs under the store's write lock, this satisfies the "backlog, then
// live, with no gaps or duplicates" ordering requirement in spec.md
// §4.4: register is expected to hand the backlog to a fresh
// pkg/wait.Registry waiter before returning, so no event Notified after
// this call returns can already have been missed.
func (s *Store) Subscribe(kind Kind, types []string, sinceID *int, register func(backlog []PostEvent)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	register(s.backlogLocked(kind, types, sinceID))
}

// SubscribeChild is Subscribe filtered to children of (parentKind,
// parentID). Returns *ErrNotFound if parentID does not (yet) exist in
// parentKind's table, satisfying spec.md §9's "wait_on_child_* on a
// not-yet-existing parent id fails fast" resolution.
func (s *Store) SubscribeChild(kind, parentKind Kind, parentID int, types []string, register func(backlog []PostEvent)) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkExistsLocked(parentKind, parentID); err != nil {
		return err
	}
	register(s.childBacklogLocked(kind, parentKind, parentID, types))
	return nil
}

func (s *Store) checkExistsLocked(kind Kind, id int) error {
	switch kind {
	case KindObject:
		if id < 0 || id >= len(s.objects) {
			return &ErrNotFound{Kind: KindObject, ID: id}
		}
	case KindFact:
		if id < 0 || id >= len(s.facts) {
			return &ErrNotFound{Kind: KindFact, ID: id}
		}
	case KindHyp:
		if _, ok := s.hyps[id]; !ok {
			return &ErrNotFound{Kind: KindHyp, ID: id}
		}
	}
	return nil
}

func toTypeSet(types []string) map[string]bool {
	if len(types) == 0 {
		return nil
	}
	set := make(map[string]bool, len(types))
	for _, t := range types {
		set[t] = true
	}
	return set
}

func matchesTypeSet(set map[string]bool, typ string) bool {
	return set == nil || set[typ]
}

// backlogLocked returns every entry of kind, filtered to types and to
// id > *sinceID, as synthesized PostEvents. Caller must hold s.mu
// (read or write).
func (s *Store) backlogLocked(kind Kind, types []string, sinceID *int) []PostEvent {
	set := toTypeSet(types)
	var out []PostEvent
	switch kind {
	case KindObject:
		for _, o := range s.objects {
			if sinceID != nil && o.ID <= *sinceID {
				continue
			}
			out = append(out, PostEvent{Kind: KindObject, ID: o.ID, Parents: o.Relations.Clone()})
		}
	case KindFact:
		for _, f := range s.facts {
			if sinceID != nil && f.ID <= *sinceID {
				continue
			}
			if !matchesTypeSet(set, f.Type) {
				continue
			}
			out = append(out, PostEvent{Kind: KindFact, Type: f.Type, ID: f.ID, Groups: f.Groups, Parents: f.Relations.Clone()})
		}
	case KindHyp:
		for _, id := range s.hypOrder {
			h, ok := s.hyps[id]
			if !ok {
				continue // promoted away
			}
			if sinceID != nil && h.ID <= *sinceID {
				continue
			}
			if !matchesTypeSet(set, h.Type) {
				continue
			}
			out = append(out, PostEvent{Kind: KindHyp, Type: h.Type, ID: h.ID, Groups: h.Groups, Parents: h.Relations.Clone()})
		}
	}
	return out
}

func childIDsFor(r Relations, kind Kind) []int {
	switch kind {
	case KindObject:
		return r.ChildObjects
	case KindFact:
		return r.ChildFacts
	case KindHyp:
		return r.ChildHyps
	default:
		return nil
	}
}

// childBacklogLocked returns every existing entry of kind that is a
// child of (parentKind, parentID), filtered to types. Caller must hold
// s.mu (read or write) and must have already checked the parent exists.
func (s *Store) childBacklogLocked(kind, parentKind Kind, parentID int, types []string) []PostEvent {
	set := toTypeSet(types)

	var childIDs []int
	switch parentKind {
	case KindObject:
		if parentID >= 0 && parentID < len(s.objects) {
			childIDs = childIDsFor(s.objects[parentID].Relations, kind)
		}
	case KindFact:
		if parentID >= 0 && parentID < len(s.facts) {
			childIDs = childIDsFor(s.facts[parentID].Relations, kind)
		}
	case KindHyp:
		if h, ok := s.hyps[parentID]; ok {
			childIDs = childIDsFor(h.Relations, kind)
		}
	}

	var out []PostEvent
	for _, id := range childIDs {
		switch kind {
		case KindObject:
			if id >= 0 && id < len(s.objects) {
				out = append(out, PostEvent{Kind: KindObject, ID: id, Parents: s.objects[id].Relations.Clone()})
			}
		case KindFact:
			if id >= 0 && id < len(s.facts) && matchesTypeSet(set, s.facts[id].Type) {
				f := s.facts[id]
				out = append(out, PostEvent{Kind: KindFact, Type: f.Type, ID: f.ID, Groups: f.Groups, Parents: f.Relations.Clone()})
			}
		case KindHyp:
			if h, ok := s.hyps[id]; ok && matchesTypeSet(set, h.Type) {
				out = append(out, PostEvent{Kind: KindHyp, Type: h.Type, ID: h.ID, Groups: h.Groups, Parents: h.Relations.Clone()})
			}
		}
	}
	return out
}
