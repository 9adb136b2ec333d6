package scheduler

import (
	"io"
	"time"

	"github.com/oakmoor/cairn/internal/version"
	"github.com/oakmoor/cairn/pkg/blackboard"
	"github.com/oakmoor/cairn/pkg/interest"
	"github.com/oakmoor/cairn/pkg/registry"
	"github.com/oakmoor/cairn/pkg/snapshot"
	"github.com/oakmoor/cairn/pkg/worker"
)

func toSnapshotState(s CloneState) snapshot.CloneState {
	switch s {
	case Runnable:
		return snapshot.CloneRunnable
	case Running:
		return snapshot.CloneRunning
	case Waiting:
		return snapshot.CloneWaiting
	default:
		return snapshot.CloneDone
	}
}

func fromSnapshotState(s snapshot.CloneState) CloneState {
	switch s {
	case snapshot.CloneRunnable:
		return Runnable
	case snapshot.CloneRunning:
		return Running
	case snapshot.CloneWaiting:
		return Waiting
	default:
		return Done
	}
}

// Save writes the full blackboard, per-template memory, every clone's
// state, and the clone-transition log to w via the Snapshot Codec.
// Running and Waiting clones are saved as-is; Load is responsible for
// restarting both as Runnable, since neither's in-flight call stack
// nor parked wait predicate was ever captured (spec.md §9).
func (s *Scheduler) Save(w io.Writer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	hyps := s.store.ListHyps("")
	hypIDs := make([]int, len(hyps))
	for i, h := range hyps {
		hypIDs[i] = h.ID
	}

	clones := make([]snapshot.CloneRecord, 0, len(s.clones))
	for _, c := range s.clones {
		if c.State == Done {
			continue
		}
		clones = append(clones, snapshot.CloneRecord{
			TemplateName: c.ID.TemplateName,
			Serial:       c.ID.Serial,
			State:        toSnapshotState(c.State),
			Trigger:      c.Trigger,
			TriggerValid: !c.HasSeed,
		})
	}

	transitions := make([]snapshot.TransitionRecord, len(s.transitions))
	for i, t := range s.transitions {
		transitions[i] = snapshot.TransitionRecord{
			Seq:          t.Seq,
			TemplateName: t.CloneID.TemplateName,
			Serial:       t.CloneID.Serial,
			From:         toSnapshotState(t.From),
			To:           toSnapshotState(t.To),
			At:           t.At,
		}
	}

	payload := snapshot.Payload{
		EngineVersion: s.engineVersion,
		SavedAt:       time.Now(),
		Objects:       s.store.ListObjects(),
		Facts:         s.store.ListFacts(""),
		Hyps:          hyps,
		HypIDs:        hypIDs,
		Clones:        clones,
		Transitions:   transitions,
		Memory:        s.memory.Snapshot(),
	}
	return snapshot.Write(w, payload)
}

// Load replaces the scheduler's entire state with a previously-saved
// snapshot: the blackboard, per-template memory, and every non-Done
// clone, rebound against templates by name. reg and templates replace
// the scheduler's registry and worker population outright — Load is
// meant to be called once, immediately after New, before Run.
//
// A payload whose EngineVersion does not exactly match the running
// engine version fails the load outright (spec.md §9): unlike
// Register's engine_version ≤ running rule for an individual worker,
// a save file is a whole-engine artifact and is never forward- or
// backward-compatible across engine versions.
func (s *Scheduler) Load(r io.Reader, reg *registry.Registry, templates map[string]*worker.Template) error {
	payload, err := snapshot.Read(r)
	if err != nil {
		return err
	}
	if cmp, cerr := version.Compare(payload.EngineVersion, s.engineVersion); cerr != nil || cmp != 0 {
		return snapshot.ErrIncompatibleVersion
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.store.LoadSnapshot(payload.Objects, payload.Facts, payload.Hyps, payload.HypIDs)
	s.memory.Restore(payload.Memory)

	s.registry = reg
	s.templates = make(map[string]*worker.Template, len(templates))
	for name, tpl := range templates {
		s.templates[name] = tpl
	}

	s.index = interest.New()
	for name, tpl := range s.templates {
		switch tpl.Kind {
		case worker.KindNPC:
			s.index.RegisterObjectWorker(name)
		case worker.KindPlayer:
			if err := s.index.RegisterFactInterests(name, reg, tpl.Declaration.Interests.Facts); err != nil {
				return err
			}
			if err := s.index.RegisterHypInterests(name, reg, tpl.Declaration.Interests.Hyps); err != nil {
				return err
			}
		}
	}

	s.clones = make(map[string]*Clone, len(payload.Clones))
	s.nextSerial = make(map[string]uint64)
	s.singleBusy = make(map[string]bool)
	s.singlePending = make(map[string][]blackboard.PostEvent)

	s.restoreTransitions(payload.Transitions)

	return s.restoreClones(payload.Clones)
}

// restoreTransitions repopulates the clone-transition log from a saved
// payload and continues its sequence counter from the saved high-water
// mark, so transitions recorded after Load carry sequence numbers that
// never collide with the ones a save captured.
func (s *Scheduler) restoreTransitions(records []snapshot.TransitionRecord) {
	s.transitions = make([]CloneTransition, len(records))
	var maxSeq uint64
	for i, t := range records {
		s.transitions[i] = CloneTransition{
			Seq:     t.Seq,
			CloneID: CloneID{TemplateName: t.TemplateName, Serial: t.Serial},
			From:    fromSnapshotState(t.From),
			To:      fromSnapshotState(t.To),
			At:      t.At,
		}
		if t.Seq > maxSeq {
			maxSeq = t.Seq
		}
	}
	s.seq = maxSeq
}

// restoreClones rebuilds s.clones from saved records, rebinding each to
// its template by name and downgrading a saved Running or Waiting
// clone to Runnable so Run restarts it from the top of its handler
// call against the same trigger. A Waiting clone's parked wait
// predicate is never captured by Save, so there is nothing to
// re-register it against on load; restarting it from its trigger is
// the only way to avoid orphaning it (spec.md §9).
func (s *Scheduler) restoreClones(records []snapshot.CloneRecord) error {
	for _, rec := range records {
		tpl, ok := s.templates[rec.TemplateName]
		if !ok {
			return &ErrUnregisteredTemplate{Name: rec.TemplateName}
		}

		state := fromSnapshotState(rec.State)
		if state == Running || state == Waiting {
			state = Runnable
		}

		id := CloneID{TemplateName: rec.TemplateName, Serial: rec.Serial}
		clone := &Clone{
			ID:       id,
			Template: tpl,
			State:    state,
			Trigger:  rec.Trigger,
			HasSeed:  !rec.TriggerValid,
		}
		s.clones[id.String()] = clone

		if rec.Serial+1 > s.nextSerial[rec.TemplateName] {
			s.nextSerial[rec.TemplateName] = rec.Serial + 1
		}
	}
	return nil
}
