package scheduler

import (
	"context"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/oakmoor/cairn/internal/clock"
	"github.com/oakmoor/cairn/internal/obslog"
	"github.com/oakmoor/cairn/pkg/blackboard"
	"github.com/oakmoor/cairn/pkg/console"
	"github.com/oakmoor/cairn/pkg/worker"
)

// Run drives the dispatch loop until ctx is cancelled or the game
// reaches quiescence: every clone parked or done, and the event queue
// idle for the configured grace time (spec.md §4.5, §9). Run processes
// BackStory seed facts once, synchronously, before entering the loop,
// then restarts any clone left Runnable by a prior Load, then pumps
// PostEvents from the Store's queue, dispatching matching templates as
// bounded-concurrency goroutines.
//
// Grounded on internal/orchestrator/engine.go's Run(ctx) select-loop
// and internal/cub/engine.go's bounded-worker-pool idiom; unlike the
// teacher's fixed-size channel pool, concurrency here is capped with
// golang.org/x/sync/errgroup.Group.SetLimit against one long-lived
// group spanning the whole run, since clones come and go at
// unpredictable rates rather than in fixed batches.
func (s *Scheduler) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	g := &errgroup.Group{}
	g.SetLimit(s.opts.Parallelism)

	s.runBackStories(runCtx)
	s.resumeLoadedClones(runCtx, g)

	events := make(chan blackboard.PostEvent)
	go s.pumpEvents(runCtx, events)

	clk := clock.New()
	idle := clk.After(s.opts.GraceTime)
	defer idle.Stop()

	// MaxGameTime of zero means unlimited (config.Options.Validate only
	// rejects negative values); a positive value bounds the whole run
	// regardless of quiescence, same as a caller-supplied ctx deadline.
	var deadline <-chan time.Time
	if s.opts.MaxGameTime > 0 {
		maxTimer := clk.After(s.opts.MaxGameTime)
		defer maxTimer.Stop()
		deadline = maxTimer.C
	}

	for {
		select {
		case <-runCtx.Done():
			_ = g.Wait()
			return nil
		case <-deadline:
			obslog.Event("scheduler", "max_game_time_exceeded", map[string]any{"max_game_time": s.opts.MaxGameTime.String()})
			cancel()
			_ = g.Wait()
			return &ErrMaxGameTimeExceeded{MaxGameTime: s.opts.MaxGameTime}
		case ev, ok := <-events:
			if !ok {
				_ = g.Wait()
				return nil
			}
			s.dispatchEvent(runCtx, g, ev)
			idle.Reset(s.opts.GraceTime)
		case <-idle.C:
			if s.quiescent() {
				s.declareQuiescence()
				_ = g.Wait()
				return nil
			}
			idle.Reset(s.opts.GraceTime)
		}
	}
}

func (s *Scheduler) pumpEvents(ctx context.Context, out chan<- blackboard.PostEvent) {
	defer close(out)
	for {
		ev, ok := s.store.Events().Pop(ctx)
		if !ok {
			return
		}
		select {
		case out <- ev:
		case <-ctx.Done():
			return
		}
	}
}

// runBackStories hands every queued seed fact to every registered
// BackStory template, once each, in template-name order, sequentially
// and before the dispatch loop starts. A crashing BackStory clone is
// recorded and skipped, same as any other worker crash.
func (s *Scheduler) runBackStories(ctx context.Context) {
	s.mu.Lock()
	var backstories []*worker.Template
	for _, tpl := range s.templates {
		if tpl.Kind == worker.KindBackStory {
			backstories = append(backstories, tpl)
		}
	}
	seeds := append([]*blackboard.Entry(nil), s.seeds...)
	s.mu.Unlock()

	sort.Slice(backstories, func(i, j int) bool {
		return backstories[i].Declaration.Name < backstories[j].Declaration.Name
	})

	for _, tpl := range backstories {
		for _, seed := range seeds {
			id := CloneID{TemplateName: tpl.Declaration.Name, Serial: 0}
			s.mu.Lock()
			clone := &Clone{ID: id, Template: tpl, State: Runnable, HasSeed: true, Seed: seed}
			s.clones[id.String()] = clone
			s.mu.Unlock()

			_ = s.runClone(ctx, clone)
		}
	}
}

// resumeLoadedClones re-enters the errgroup every clone Load left in
// the Runnable state: a Running clone saved mid-callback resumes as a
// fresh call against its original trigger, since the in-flight call
// stack itself was never captured.
func (s *Scheduler) resumeLoadedClones(ctx context.Context, g *errgroup.Group) {
	s.mu.Lock()
	var pending []*Clone
	for _, c := range s.clones {
		if c.State == Runnable {
			pending = append(pending, c)
		}
	}
	s.mu.Unlock()

	for _, c := range pending {
		c := c
		if c.Template.Kind == worker.KindPlayer {
			g.Go(func() error { return s.runClone(ctx, c) })
			continue
		}
		s.mu.Lock()
		s.singleBusy[c.ID.TemplateName] = true
		s.mu.Unlock()
		g.Go(func() error { return s.runSingletonChain(ctx, g, c.Template, c) })
	}
}

// dispatchEvent looks up every template interested in ev and spawns a
// clone per match: a fresh Player clone per event, or an enqueued turn
// of the relevant NPC singleton (BackStories are never in the index). A deduped object event
// (digest already seen) never re-triggers NPCs, since the object
// itself produced no new content — only its parent edges changed.
func (s *Scheduler) dispatchEvent(ctx context.Context, g *errgroup.Group, ev blackboard.PostEvent) {
	var names []string
	switch ev.Kind {
	case blackboard.KindObject:
		if ev.Deduped {
			return
		}
		names = s.index.MatchObject()
	case blackboard.KindFact:
		names = s.index.MatchFact(ev.Type)
	case blackboard.KindHyp:
		names = s.index.MatchHyp(ev.Type)
	}

	for _, name := range names {
		s.mu.Lock()
		tpl, ok := s.templates[name]
		s.mu.Unlock()
		if !ok {
			continue
		}

		if tpl.Kind == worker.KindNPC {
			s.dispatchSingleton(ctx, g, tpl, ev)
			continue
		}

		clone := s.newPlayerClone(tpl, ev)
		g.Go(func() error { return s.runClone(ctx, clone) })
	}
}

func (s *Scheduler) newPlayerClone(tpl *worker.Template, ev blackboard.PostEvent) *Clone {
	s.mu.Lock()
	defer s.mu.Unlock()
	serial := s.nextSerial[tpl.Declaration.Name]
	s.nextSerial[tpl.Declaration.Name] = serial + 1
	id := CloneID{TemplateName: tpl.Declaration.Name, Serial: serial}
	c := &Clone{ID: id, Template: tpl, State: Runnable, Trigger: ev}
	s.clones[id.String()] = c
	return c
}

// dispatchSingleton enqueues ev for tpl's single instance: if the
// instance is idle it starts a new chain immediately; if it's mid-turn,
// ev joins the pending queue and runs as soon as the current turn ends
// (spec.md §6's "NPC and BackStory workers are single-instance" rule).
func (s *Scheduler) dispatchSingleton(ctx context.Context, g *errgroup.Group, tpl *worker.Template, ev blackboard.PostEvent) {
	s.mu.Lock()
	if s.singleBusy[tpl.Declaration.Name] {
		s.singlePending[tpl.Declaration.Name] = append(s.singlePending[tpl.Declaration.Name], ev)
		s.mu.Unlock()
		return
	}
	s.singleBusy[tpl.Declaration.Name] = true
	id := CloneID{TemplateName: tpl.Declaration.Name, Serial: 0}
	clone, ok := s.clones[id.String()]
	if !ok {
		clone = &Clone{ID: id, Template: tpl}
		s.clones[id.String()] = clone
	}
	clone.State = Runnable
	clone.Trigger = ev
	clone.HasSeed = false
	s.mu.Unlock()

	g.Go(func() error { return s.runSingletonChain(ctx, g, tpl, clone) })
}

// runSingletonChain runs clone, then keeps draining tpl's pending queue
// against the same CloneID until it's empty, marking the template idle
// again only once there is nothing left queued.
func (s *Scheduler) runSingletonChain(ctx context.Context, g *errgroup.Group, tpl *worker.Template, clone *Clone) error {
	var last error
	for {
		if err := s.runClone(ctx, clone); err != nil {
			last = err
		}

		s.mu.Lock()
		pending := s.singlePending[tpl.Declaration.Name]
		if len(pending) == 0 {
			s.singleBusy[tpl.Declaration.Name] = false
			s.mu.Unlock()
			return last
		}
		next := pending[0]
		s.singlePending[tpl.Declaration.Name] = pending[1:]
		clone.State = Runnable
		clone.Trigger = next
		clone.HasSeed = false
		s.mu.Unlock()
	}
}

// runClone invokes tpl's handler against clone's trigger, bracketing
// the call with the Runnable→Running→Done transitions and recovering a
// panicking or error-returning handler into a recorded CloneCrash — a
// crashing worker never aborts the game (spec.md §7).
func (s *Scheduler) runClone(ctx context.Context, c *Clone) (err error) {
	s.mu.Lock()
	s.transitionLocked(c, Running)
	s.mu.Unlock()

	cons := console.New(s, c.ID.String(), c.Template.Declaration.Name)

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%v", r)
		}
		if err != nil {
			crash := &CloneCrash{CloneID: c.ID, Err: err}
			obslog.Event("scheduler", "clone_crash", map[string]any{"clone": c.ID.String(), "error": err.Error()})
			err = crash
		}
		s.mu.Lock()
		c.Err = err
		s.transitionLocked(c, Done)
		s.mu.Unlock()
		s.tempDirs.Release(c.ID.String())
	}()

	handler := c.Template.NewHandler()

	if c.HasSeed {
		if handler.OnFact == nil {
			return fmt.Errorf("scheduler: backstory %q has no fact handler", c.Template.Declaration.Name)
		}
		return handler.OnFact(ctx, cons, c.Seed)
	}

	switch c.Trigger.Kind {
	case blackboard.KindObject:
		if handler.OnData == nil {
			return fmt.Errorf("scheduler: %q has no object handler", c.Template.Declaration.Name)
		}
		obj, getErr := s.store.GetObject(c.Trigger.ID)
		if getErr != nil {
			return getErr
		}
		return handler.OnData(ctx, cons, &obj)
	case blackboard.KindFact:
		if handler.OnFact == nil {
			return fmt.Errorf("scheduler: %q has no fact handler", c.Template.Declaration.Name)
		}
		fact, getErr := s.store.GetFact(c.Trigger.ID)
		if getErr != nil {
			return getErr
		}
		return handler.OnFact(ctx, cons, &fact)
	case blackboard.KindHyp:
		if handler.OnHyp == nil {
			return fmt.Errorf("scheduler: %q has no hyp handler", c.Template.Declaration.Name)
		}
		hyp, getErr := s.store.GetHyp(c.Trigger.ID)
		if getErr != nil {
			return getErr
		}
		return handler.OnHyp(ctx, cons, &hyp)
	}
	return nil
}

// quiescent reports whether the game has nothing left to do: the event
// queue is empty and no clone is Runnable or Running. Called only after
// the idle timer fires, so the grace-time window is already satisfied
// by construction.
func (s *Scheduler) quiescent() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.store.Events().Len() > 0 {
		return false
	}
	for _, c := range s.clones {
		if c.State == Runnable || c.State == Running {
			return false
		}
	}
	return true
}

func (s *Scheduler) declareQuiescence() {
	obslog.Event("scheduler", "quiescence", map[string]any{})
	s.waits.CancelAll()
}
