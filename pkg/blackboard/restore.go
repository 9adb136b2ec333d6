package blackboard

// LoadSnapshot replaces the store's entire contents with a previously
// saved snapshot, verbatim: ids, relations, and table membership are
// taken as given rather than recomputed, since this data was already
// validated once by the run that produced it. Used only by
// pkg/scheduler's Load path, immediately after construction, never
// against a store already serving live traffic.
func (s *Store) LoadSnapshot(objects []Object, facts []Fact, hyps []Hyp, hypIDs []int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.objects = make([]*Object, len(objects))
	s.digestIndex = make(map[[32]byte]int, len(objects))
	for i := range objects {
		o := objects[i]
		s.objects[i] = &o
		s.digestIndex[o.Digest] = o.ID
	}

	s.facts = make([]*Fact, len(facts))
	for i := range facts {
		f := facts[i]
		f.added = true
		s.facts[i] = &f
	}

	s.hyps = make(map[int]*Hyp, len(hyps))
	s.hypOrder = append([]int(nil), hypIDs...)
	nextHypID := 0
	for i, h := range hyps {
		hp := h
		hp.added = true
		id := hypIDs[i]
		s.hyps[id] = &hp
		if id+1 > nextHypID {
			nextHypID = id + 1
		}
	}
	s.nextHypID = nextHypID
}
