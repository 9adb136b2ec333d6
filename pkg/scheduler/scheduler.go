// Package scheduler implements the Game Master: the dispatch engine
// that clones interested workers on matching blackboard events, parks
// and wakes clones suspended on wait primitives, detects quiescence
// across the whole worker population, and drives save/load.
//
// Grounded on internal/orchestrator/engine.go's Run(ctx) select-loop
// shape and internal/cub/engine.go's goroutine-pool-plus-WaitGroup
// graceful-shutdown idiom (see DESIGN.md); the quiescence predicate
// itself is ported from original_source/d20/Manual/GameMaster.py's
// checkGameState, the authoritative algorithm spec.md §9 names.
package scheduler

import (
	"fmt"
	"sync"
	"time"

	"github.com/oakmoor/cairn/internal/config"
	"github.com/oakmoor/cairn/internal/printer"
	"github.com/oakmoor/cairn/internal/version"
	"github.com/oakmoor/cairn/pkg/blackboard"
	"github.com/oakmoor/cairn/pkg/interest"
	"github.com/oakmoor/cairn/pkg/registry"
	"github.com/oakmoor/cairn/pkg/wait"
	"github.com/oakmoor/cairn/pkg/worker"
)

// Scheduler is the Game Master: it owns the worker population, the
// clone state machine, and the dispatch loop, and implements
// pkg/console.Engine so Console never needs to import this package.
type Scheduler struct {
	store         *blackboard.Store
	registry      *registry.Registry
	index         *interest.Index
	waits         *wait.Registry
	opts          config.Options
	engineVersion string

	mu             sync.Mutex
	templates      map[string]*worker.Template
	templateConfig map[string]map[string]any
	nextSerial     map[string]uint64
	clones         map[string]*Clone
	transitions    []CloneTransition
	seq            uint64
	singleBusy     map[string]bool
	singlePending  map[string][]blackboard.PostEvent
	seeds          []*blackboard.Entry

	memory   *memoryStore
	tempDirs *tempDirs

	printMu sync.Mutex
}

// New creates a Scheduler bound to store, reg, idx, and waits. Callers
// wire these together once (typically at process start) rather than
// having the Scheduler construct its own collaborators, so tests can
// substitute their own store/registry/index for isolation.
func New(store *blackboard.Store, reg *registry.Registry, idx *interest.Index, waits *wait.Registry, opts config.Options, engineVersion string) *Scheduler {
	s := &Scheduler{
		store:          store,
		registry:       reg,
		index:          idx,
		waits:          waits,
		opts:           opts,
		engineVersion:  engineVersion,
		templates:      make(map[string]*worker.Template),
		templateConfig: make(map[string]map[string]any),
		nextSerial:     make(map[string]uint64),
		clones:         make(map[string]*Clone),
		singleBusy:     make(map[string]bool),
		singlePending:  make(map[string][]blackboard.PostEvent),
		memory:         newMemoryStore(),
		tempDirs:       newTempDirs(opts.TemporaryBase),
	}
	store.SetNotifier(waits)
	return s
}

// Register loads tpl into the running game: checks engine_version
// compatibility (spec.md §6: a worker loads iff
// engine_version ≤ running_engine_version), then wires its interests
// into the Interest Index. Interests are expanded and frozen here, at
// registration time — later registry changes never retroactively
// update them (spec.md §4.3).
func (s *Scheduler) Register(tpl *worker.Template) error {
	ok, err := version.Satisfies(tpl.Declaration.EngineVersion, s.engineVersion)
	if err != nil {
		return err
	}
	if !ok {
		return &ErrIncompatibleEngineVersion{
			Template:      tpl.Declaration.Name,
			EngineVersion: tpl.Declaration.EngineVersion,
			Running:       s.engineVersion,
		}
	}

	merged, err := config.Merge(s.opts.Common, tpl.Declaration.Options)
	if err != nil {
		return fmt.Errorf("scheduler: template %q: %w", tpl.Declaration.Name, err)
	}

	s.mu.Lock()
	if _, exists := s.templates[tpl.Declaration.Name]; exists {
		s.mu.Unlock()
		return fmt.Errorf("scheduler: template %q already registered", tpl.Declaration.Name)
	}
	s.templates[tpl.Declaration.Name] = tpl
	s.templateConfig[tpl.Declaration.Name] = merged
	s.mu.Unlock()

	switch tpl.Kind {
	case worker.KindNPC:
		s.index.RegisterObjectWorker(tpl.Declaration.Name)
	case worker.KindPlayer:
		if err := s.index.RegisterFactInterests(tpl.Declaration.Name, s.registry, tpl.Declaration.Interests.Facts); err != nil {
			return err
		}
		if err := s.index.RegisterHypInterests(tpl.Declaration.Name, s.registry, tpl.Declaration.Interests.Hyps); err != nil {
			return err
		}
	case worker.KindBackStory:
		// No index registration: BackStories react to seed facts handed
		// in via SeedFact, processed once at Run's start, not to
		// blackboard events.
	}
	return nil
}

// SeedFact queues e to be handed to every registered BackStory
// template, once each, in template-name order, when Run starts. Seed
// facts are supplied externally (the seed-facts file the CLI driver
// loads is out of scope per spec.md §1) and are never themselves added
// to the fact table — a BackStory's handler decides what, if anything,
// to commit to the blackboard from one.
func (s *Scheduler) SeedFact(e *blackboard.Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seeds = append(s.seeds, e)
}

// Templates returns the currently registered templates, keyed by name.
// cmd/gamemaster does not call it; it passes its own template map to
// Load.
func (s *Scheduler) Templates() map[string]*worker.Template {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]*worker.Template, len(s.templates))
	for k, v := range s.templates {
		out[k] = v
	}
	return out
}

// --- pkg/console.Engine ---

func (s *Scheduler) AddObject(data []byte, creator string, parents blackboard.Relations) (int, bool, error) {
	return s.store.AddObject(data, creator, parents)
}

// AddFact validates e.Fields against e.Type's registered schema
// (required fields present, allowed values, element kinds; see
// registry.Registry.ValidateFields) before committing it.
func (s *Scheduler) AddFact(e *blackboard.Entry) (int, error) {
	fields, err := s.registry.ValidateFields(e.Type, e.Fields)
	if err != nil {
		return 0, err
	}
	e.Fields = fields
	return s.store.AddFact(e)
}

// AddHyp is AddFact for the hyp table.
func (s *Scheduler) AddHyp(e *blackboard.Entry) (int, error) {
	fields, err := s.registry.ValidateFields(e.Type, e.Fields)
	if err != nil {
		return 0, err
	}
	e.Fields = fields
	return s.store.AddHyp(e)
}

func (s *Scheduler) GetObject(id int) (blackboard.Object, error) { return s.store.GetObject(id) }
func (s *Scheduler) GetFact(id int) (blackboard.Fact, error)     { return s.store.GetFact(id) }
func (s *Scheduler) GetAllFacts(typ string) []blackboard.Fact    { return s.store.ListFacts(typ) }
func (s *Scheduler) GetHyp(id int) (blackboard.Hyp, error)       { return s.store.GetHyp(id) }
func (s *Scheduler) GetAllHyps(typ string) []blackboard.Hyp      { return s.store.ListHyps(typ) }

func (s *Scheduler) WaitOnEntries(kind blackboard.Kind, types []string, sinceID *int) (*wait.Sink, func()) {
	var sink *wait.Sink
	var cancel func()
	s.store.Subscribe(kind, types, sinceID, func(backlog []blackboard.PostEvent) {
		sink, cancel = s.waits.Register(kind, types)
		sink.Seed(toItems(backlog))
	})
	return sink, cancel
}

func (s *Scheduler) WaitOnChildEntries(kind, parentKind blackboard.Kind, parentID int, types []string) (*wait.Sink, func(), error) {
	var sink *wait.Sink
	var cancel func()
	err := s.store.SubscribeChild(kind, parentKind, parentID, types, func(backlog []blackboard.PostEvent) {
		sink, cancel = s.waits.RegisterChild(kind, parentKind, parentID, types)
		sink.Seed(toItems(backlog))
	})
	if err != nil {
		return nil, nil, err
	}
	return sink, cancel, nil
}

func toItems(evs []blackboard.PostEvent) []wait.Item {
	items := make([]wait.Item, len(evs))
	for i, ev := range evs {
		items[i] = wait.Item{Event: ev}
	}
	return items
}

func (s *Scheduler) MemoryGet(template, key string) (any, bool) { return s.memory.Get(template, key) }
func (s *Scheduler) MemorySet(template, key string, value any)  { s.memory.Set(template, key, value) }

// Print routes a clone's output through internal/printer, tagged with
// the clone's identity, serialized so concurrent clones never interleave
// a single line.
func (s *Scheduler) Print(cloneID string, args ...any) {
	s.printMu.Lock()
	defer s.printMu.Unlock()
	printer.Printf("[%s] ", cloneID)
	printer.Println(args...)
}

// Config returns the option bag Register merged for templateName: the
// engine-wide common bag with the template's own declared options
// layered on top. Returns nil for an unregistered template.
func (s *Scheduler) Config(templateName string) map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.templateConfig[templateName]
}

func (s *Scheduler) MyDirectory(cloneID string) (string, error) { return s.tempDirs.MyDirectory(cloneID) }
func (s *Scheduler) NewTempDirectory(cloneID string) (string, error) {
	return s.tempDirs.New(cloneID)
}

// MarkWaiting/MarkRunnable bracket a clone's blocking call into a wait
// primitive. MarkRunnable is named for the spec's WAITING→RUNNABLE
// transition, but records the clone straight into Running: the clone's
// own goroutine resumes executing immediately once Sink.Next returns,
// with no actual re-dispatch gap for a Runnable state to occupy.
func (s *Scheduler) MarkWaiting(cloneID string)  { s.setCloneRuntimeState(cloneID, Waiting) }
func (s *Scheduler) MarkRunnable(cloneID string) { s.setCloneRuntimeState(cloneID, Running) }

func (s *Scheduler) setCloneRuntimeState(cloneID string, to CloneState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.clones[cloneID]
	if !ok {
		return
	}
	s.transitionLocked(c, to)
}

// PromoteHyp moves hyp id from the hyp table to the fact table and lets
// Store.PromoteHyp's own event emission (synchronous Notify plus queued
// PostEvent) carry the re-triggering of fact-interested clones, usable
// both mid-run and immediately after Load.
func (s *Scheduler) PromoteHyp(id int) (int, error) {
	return s.store.PromoteHyp(id)
}

func (s *Scheduler) transitionLocked(c *Clone, to CloneState) {
	from := c.State
	c.State = to
	s.seq++
	s.transitions = append(s.transitions, CloneTransition{Seq: s.seq, CloneID: c.ID, From: from, To: to, At: time.Now()})
}
