// Package console implements the per-clone facade onto the blackboard
// and framework services that worker callbacks receive as their ctx
// argument's sibling parameter.
//
// Console depends only on pkg/blackboard, pkg/wait and internal/clock; it never imports
// pkg/scheduler, so pkg/scheduler can freely import pkg/console without
// an import cycle. The Engine interface is implemented by
// *scheduler.Scheduler.
package console

import (
	"context"
	"time"

	"github.com/oakmoor/cairn/internal/clock"
	"github.com/oakmoor/cairn/pkg/blackboard"
	"github.com/oakmoor/cairn/pkg/wait"
)

// ErrImmutable is returned by AddFact/AddHyp when the entry passed in
// has already been committed once.
var ErrImmutable = blackboard.ErrImmutable

// Engine is the subset of scheduler behavior a Console needs. Kept
// narrow on purpose: Console is a facade, not a second copy of the
// scheduler's internals.
type Engine interface {
	AddObject(data []byte, creator string, parents blackboard.Relations) (id int, wasNew bool, err error)
	AddFact(e *blackboard.Entry) (int, error)
	AddHyp(e *blackboard.Entry) (int, error)
	GetObject(id int) (blackboard.Object, error)
	GetFact(id int) (blackboard.Fact, error)
	GetAllFacts(typ string) []blackboard.Fact
	GetHyp(id int) (blackboard.Hyp, error)
	GetAllHyps(typ string) []blackboard.Hyp

	WaitOnEntries(kind blackboard.Kind, types []string, sinceID *int) (*wait.Sink, func())
	WaitOnChildEntries(kind, parentKind blackboard.Kind, parentID int, types []string) (*wait.Sink, func(), error)

	MemoryGet(template, key string) (any, bool)
	MemorySet(template, key string, value any)

	// Config returns the merged common/per-template option bag Register
	// computed for a template (internal/config.Merge).
	Config(template string) map[string]any

	Print(cloneID string, args ...any)
	MyDirectory(cloneID string) (string, error)
	NewTempDirectory(cloneID string) (string, error)

	// MarkWaiting/MarkRunnable record a clone's transition into and out
	// of the Waiting state (spec.md §4.5's clone-state machine) around a
	// blocking Sink.Next call. Console never blocks on a wait primitive
	// without bracketing it this way, so the scheduler's quiescence
	// detector always has an accurate view of whether a clone is
	// currently parked.
	MarkWaiting(cloneID string)
	MarkRunnable(cloneID string)
}

// Console is the per-clone facade. One instance is created per running
// clone and discarded when the clone reaches Done.
type Console struct {
	engine   Engine
	cloneID  string
	template string
	data     map[string]any
	clk      *clock.Wheel
}

// New creates a Console bound to one clone's identity.
func New(engine Engine, cloneID, templateName string) *Console {
	return &Console{engine: engine, cloneID: cloneID, template: templateName, data: make(map[string]any), clk: clock.New()}
}

// AddObject inserts data and returns its id (existing id on a dedup
// hit).
func (c *Console) AddObject(data []byte, parents blackboard.Relations) (int, error) {
	id, _, err := c.engine.AddObject(data, c.cloneID, parents)
	return id, err
}

// AddFact commits fact. fact must not have been previously added.
func (c *Console) AddFact(fact *blackboard.Fact) error {
	if fact.Added() {
		return ErrImmutable
	}
	if fact.Creator == "" {
		fact.Creator = c.cloneID
	}
	_, err := c.engine.AddFact(fact)
	if err != nil {
		return err
	}
	fact.MarkAdded()
	return nil
}

// AddHyp commits hyp. hyp must not have been previously added.
func (c *Console) AddHyp(hyp *blackboard.Hyp) error {
	if hyp.Added() {
		return ErrImmutable
	}
	if hyp.Creator == "" {
		hyp.Creator = c.cloneID
	}
	_, err := c.engine.AddHyp(hyp)
	if err != nil {
		return err
	}
	hyp.MarkAdded()
	return nil
}

func (c *Console) GetObject(id int) (blackboard.Object, error) { return c.engine.GetObject(id) }
func (c *Console) GetFact(id int) (blackboard.Fact, error)     { return c.engine.GetFact(id) }
func (c *Console) GetAllFacts(typ string) []blackboard.Fact    { return c.engine.GetAllFacts(typ) }
func (c *Console) GetHyp(id int) (blackboard.Hyp, error)       { return c.engine.GetHyp(id) }
func (c *Console) GetAllHyps(typ string) []blackboard.Hyp      { return c.engine.GetAllHyps(typ) }

// Waiter is a worker-facing handle onto a parked wait primitive. It
// wraps the raw wait.Sink so every blocking Next call brackets the
// clone's state with Engine.MarkWaiting/MarkRunnable, and Cancel
// releases the parking slot.
type Waiter struct {
	engine  Engine
	cloneID string
	sink    *wait.Sink
	cancel  func()
}

// Next blocks until a matching entry arrives, the waiter is cancelled
// (wait.ErrCancelled), or ctx is done (ctx.Err()).
func (w *Waiter) Next(ctx context.Context) (wait.Item, error) {
	w.engine.MarkWaiting(w.cloneID)
	defer w.engine.MarkRunnable(w.cloneID)
	return w.sink.Next(ctx)
}

// Cancel releases the parking slot. Safe to call more than once.
func (w *Waiter) Cancel() { w.cancel() }

func newWaiter(engine Engine, cloneID string, sink *wait.Sink, cancel func()) *Waiter {
	return &Waiter{engine: engine, cloneID: cloneID, sink: sink, cancel: cancel}
}

// WaitOnFacts yields every existing fact matching types (id > sinceID
// when provided) then blocks for future ones. Callers iterate by
// calling waiter.Next(ctx) until it returns wait.ErrCancelled;
// waiter.Cancel releases the parking slot.
func (c *Console) WaitOnFacts(types []string, sinceID *int) *Waiter {
	sink, cancel := c.engine.WaitOnEntries(blackboard.KindFact, types, sinceID)
	return newWaiter(c.engine, c.cloneID, sink, cancel)
}

// WaitOnHyps is WaitOnFacts for the hyp table.
func (c *Console) WaitOnHyps(types []string, sinceID *int) *Waiter {
	sink, cancel := c.engine.WaitOnEntries(blackboard.KindHyp, types, sinceID)
	return newWaiter(c.engine, c.cloneID, sink, cancel)
}

// WaitOnChildFacts is WaitOnFacts filtered to children of a specific
// parent. Fails fast with blackboard.ErrNotFound if parentID does not
// yet exist in parentKind's table.
func (c *Console) WaitOnChildFacts(parentKind blackboard.Kind, parentID int, types []string) (*Waiter, error) {
	sink, cancel, err := c.engine.WaitOnChildEntries(blackboard.KindFact, parentKind, parentID, types)
	if err != nil {
		return nil, err
	}
	return newWaiter(c.engine, c.cloneID, sink, cancel), nil
}

// WaitOnChildHyps is WaitOnChildFacts for the hyp table.
func (c *Console) WaitOnChildHyps(parentKind blackboard.Kind, parentID int, types []string) (*Waiter, error) {
	sink, cancel, err := c.engine.WaitOnChildEntries(blackboard.KindHyp, parentKind, parentID, types)
	if err != nil {
		return nil, err
	}
	return newWaiter(c.engine, c.cloneID, sink, cancel), nil
}

// WaitOnChildObjects is WaitOnChildFacts for the object table.
func (c *Console) WaitOnChildObjects(parentKind blackboard.Kind, parentID int, types []string) (*Waiter, error) {
	sink, cancel, err := c.engine.WaitOnChildEntries(blackboard.KindObject, parentKind, parentID, types)
	if err != nil {
		return nil, err
	}
	return newWaiter(c.engine, c.cloneID, sink, cancel), nil
}

// WaitTillFact blocks for a single next matching fact. Fails with
// wait.ErrTimeout if timeout elapses with no match, or wait.ErrCancelled
// if the clone is cancelled first.
func (c *Console) WaitTillFact(ctx context.Context, types []string, timeout time.Duration, lastID *int) (blackboard.Fact, error) {
	return c.waitTillEntry(ctx, blackboard.KindFact, types, timeout, lastID)
}

// WaitTillHyp is WaitTillFact for the hyp table.
func (c *Console) WaitTillHyp(ctx context.Context, types []string, timeout time.Duration, lastID *int) (blackboard.Hyp, error) {
	return c.waitTillEntry(ctx, blackboard.KindHyp, types, timeout, lastID)
}

type waitResult struct {
	item wait.Item
	err  error
}

func (c *Console) waitTillEntry(ctx context.Context, kind blackboard.Kind, types []string, timeout time.Duration, lastID *int) (blackboard.Entry, error) {
	sink, cancel := c.engine.WaitOnEntries(kind, types, lastID)
	defer cancel()

	c.engine.MarkWaiting(c.cloneID)
	defer c.engine.MarkRunnable(c.cloneID)

	results := make(chan waitResult, 1)
	go func() {
		item, err := sink.Next(ctx)
		results <- waitResult{item, err}
	}()

	if timeout > 0 {
		timer := c.clk.After(timeout)
		defer timer.Stop()
		select {
		case r := <-results:
			return c.resolveWaitResult(kind, r)
		case <-timer.C:
			return blackboard.Entry{}, wait.ErrTimeout
		}
	}

	r := <-results
	return c.resolveWaitResult(kind, r)
}

func (c *Console) resolveWaitResult(kind blackboard.Kind, r waitResult) (blackboard.Entry, error) {
	if r.err != nil {
		return blackboard.Entry{}, wait.ErrCancelled
	}
	if kind == blackboard.KindFact {
		return c.engine.GetFact(r.item.Event.ID)
	}
	return c.engine.GetHyp(r.item.Event.ID)
}

// Memory returns a read/write handle onto the shared mapping for this
// clone's template, guarded by a per-template lock owned by the engine.
func (c *Console) Memory() *Memory { return &Memory{engine: c.engine, template: c.template} }

// Config returns this clone's template's merged option bag: the
// engine-wide common options with the template's own declared options
// taking precedence, computed once at Register time.
func (c *Console) Config() map[string]any { return c.engine.Config(c.template) }

// Memory is a handle onto the shared, per-template key/value mapping.
type Memory struct {
	engine   Engine
	template string
}

func (m *Memory) Get(key string) (any, bool)  { return m.engine.MemoryGet(m.template, key) }
func (m *Memory) Set(key string, value any)   { m.engine.MemorySet(m.template, key, value) }

// Data returns the mapping private to this clone. No lock: a single
// clone's callback runs single-threaded.
func (c *Console) Data() map[string]any { return c.data }

// MyDirectory returns this clone's scoped temp directory, creating it
// lazily on first call. Released when the clone reaches Done,
// Cancelled, or crashed.
func (c *Console) MyDirectory() (string, error) { return c.engine.MyDirectory(c.cloneID) }

// CreateTempDirectory returns a fresh temp directory, with the same
// release lifecycle as MyDirectory, on every call.
func (c *Console) CreateTempDirectory() (string, error) { return c.engine.NewTempDirectory(c.cloneID) }

// Print routes to the scheduler's stdout, tagged with this clone's
// identity.
func (c *Console) Print(args ...any) { c.engine.Print(c.cloneID, args...) }
