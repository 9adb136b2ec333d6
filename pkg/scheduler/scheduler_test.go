package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/oakmoor/cairn/internal/config"
	"github.com/oakmoor/cairn/pkg/blackboard"
	"github.com/oakmoor/cairn/pkg/console"
	"github.com/oakmoor/cairn/pkg/interest"
	"github.com/oakmoor/cairn/pkg/registry"
	"github.com/oakmoor/cairn/pkg/wait"
	"github.com/oakmoor/cairn/pkg/worker"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestScheduler(t *testing.T) (*Scheduler, *blackboard.Store, *registry.Registry) {
	t.Helper()
	store := blackboard.NewStore()
	reg := registry.New()
	idx := interest.New()
	waits := wait.New()
	opts := config.Options{
		GraceTime:     20 * time.Millisecond,
		Parallelism:   4,
		TemporaryBase: t.TempDir(),
	}
	return New(store, reg, idx, waits, opts, "1.0"), store, reg
}

func runUntilQuiescent(t *testing.T, s *Scheduler) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Run(ctx))
}

func TestPlayerClonePerTriggeringFact(t *testing.T) {
	s, store, reg := newTestScheduler(t)
	require.NoError(t, reg.Register(registry.TypeDescriptor{Name: "observation"}))

	var mu sync.Mutex
	var seen []int
	tpl := &worker.Template{
		Declaration: worker.Declaration{
			Name: "watcher", Version: "1.0", EngineVersion: "1.0",
			Interests: worker.Interests{Facts: []string{"observation"}},
		},
		Kind: worker.KindPlayer,
		NewHandler: func() worker.Handler {
			return worker.Handler{OnFact: func(_ context.Context, _ *console.Console, f *blackboard.Fact) error {
				mu.Lock()
				seen = append(seen, f.ID)
				mu.Unlock()
				return nil
			}}
		},
	}
	require.NoError(t, s.Register(tpl))

	_, err := store.AddFact(&blackboard.Entry{Type: "observation"})
	require.NoError(t, err)
	_, err = store.AddFact(&blackboard.Entry{Type: "observation"})
	require.NoError(t, err)

	runUntilQuiescent(t, s)

	mu.Lock()
	defer mu.Unlock()
	assert.ElementsMatch(t, []int{0, 1}, seen)

	s.mu.Lock()
	defer s.mu.Unlock()
	assert.Len(t, s.clones, 2, "one clone per triggering fact")
	for _, c := range s.clones {
		assert.Equal(t, Done, c.State)
	}
}

func TestNPCSingletonSerializesTurns(t *testing.T) {
	s, store, _ := newTestScheduler(t)

	var mu sync.Mutex
	var order []int
	var concurrent int32
	var sawOverlap bool
	tpl := &worker.Template{
		Declaration: worker.Declaration{Name: "digest", Version: "1.0", EngineVersion: "1.0"},
		Kind:        worker.KindNPC,
		NewHandler: func() worker.Handler {
			return worker.Handler{OnData: func(_ context.Context, _ *console.Console, obj *blackboard.Object) error {
				mu.Lock()
				concurrent++
				if concurrent > 1 {
					sawOverlap = true
				}
				mu.Unlock()

				time.Sleep(5 * time.Millisecond)

				mu.Lock()
				order = append(order, obj.ID)
				concurrent--
				mu.Unlock()
				return nil
			}}
		},
	}
	require.NoError(t, s.Register(tpl))

	for i := 0; i < 4; i++ {
		_, _, err := store.AddObject([]byte{byte(i)}, "test", blackboard.Relations{})
		require.NoError(t, err)
	}

	runUntilQuiescent(t, s)

	mu.Lock()
	defer mu.Unlock()
	assert.False(t, sawOverlap, "NPC turns must never run concurrently")
	assert.ElementsMatch(t, []int{0, 1, 2, 3}, order)

	s.mu.Lock()
	defer s.mu.Unlock()
	assert.Len(t, s.clones, 1, "NPC is single-instance: one CloneID reused across turns")
}

func TestBackStorySeedFactHandledOncePerSeed(t *testing.T) {
	s, _, _ := newTestScheduler(t)

	var mu sync.Mutex
	var types []string
	tpl := &worker.Template{
		Declaration: worker.Declaration{Name: "intake", Version: "1.0", EngineVersion: "1.0"},
		Kind:        worker.KindBackStory,
		NewHandler: func() worker.Handler {
			return worker.Handler{OnFact: func(_ context.Context, _ *console.Console, f *blackboard.Fact) error {
				mu.Lock()
				types = append(types, f.Type)
				mu.Unlock()
				return nil
			}}
		},
	}
	require.NoError(t, s.Register(tpl))

	s.SeedFact(&blackboard.Entry{Type: "seed-a"})
	s.SeedFact(&blackboard.Entry{Type: "seed-b"})

	runUntilQuiescent(t, s)

	mu.Lock()
	defer mu.Unlock()
	assert.ElementsMatch(t, []string{"seed-a", "seed-b"}, types)
}

func TestDedupedObjectEventNeverRetriggersNPC(t *testing.T) {
	s, store, _ := newTestScheduler(t)

	var mu sync.Mutex
	var calls int
	tpl := &worker.Template{
		Declaration: worker.Declaration{Name: "digest", Version: "1.0", EngineVersion: "1.0"},
		Kind:        worker.KindNPC,
		NewHandler: func() worker.Handler {
			return worker.Handler{OnData: func(_ context.Context, _ *console.Console, _ *blackboard.Object) error {
				mu.Lock()
				calls++
				mu.Unlock()
				return nil
			}}
		},
	}
	require.NoError(t, s.Register(tpl))

	_, wasNew1, err := store.AddObject([]byte("same"), "test", blackboard.Relations{})
	require.NoError(t, err)
	require.True(t, wasNew1)
	_, wasNew2, err := store.AddObject([]byte("same"), "test", blackboard.Relations{})
	require.NoError(t, err)
	require.False(t, wasNew2)

	runUntilQuiescent(t, s)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, calls, "a deduped object event must not re-trigger an NPC")
}

func TestWaitOnEntriesDeliversBacklogBeforeLive(t *testing.T) {
	s, store, _ := newTestScheduler(t)

	_, err := store.AddFact(&blackboard.Entry{Type: "hash"})
	require.NoError(t, err)

	sink, cancel := s.WaitOnEntries(blackboard.KindFact, []string{"hash"}, nil)
	defer cancel()

	_, err = store.AddFact(&blackboard.Entry{Type: "hash"})
	require.NoError(t, err)

	ctx, done := context.WithTimeout(context.Background(), time.Second)
	defer done()

	item0, err := sink.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, item0.Event.ID)

	item1, err := sink.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, item1.Event.ID)
}

func TestQuiescentIgnoresWaitingClones(t *testing.T) {
	s, _, _ := newTestScheduler(t)

	id := CloneID{TemplateName: "parked", Serial: 0}
	s.mu.Lock()
	s.clones[id.String()] = &Clone{ID: id, State: Waiting}
	s.mu.Unlock()

	assert.True(t, s.quiescent(), "a Waiting clone with an empty event queue is quiescent")

	s.mu.Lock()
	s.clones[id.String()].State = Runnable
	s.mu.Unlock()
	assert.False(t, s.quiescent(), "a Runnable clone blocks quiescence")
}

func TestRunStopsAtMaxGameTimeBeforeQuiescence(t *testing.T) {
	store := blackboard.NewStore()
	reg := registry.New()
	idx := interest.New()
	waits := wait.New()
	opts := config.Options{
		GraceTime:     5 * time.Second, // long enough that the idle timer never fires first
		MaxGameTime:   30 * time.Millisecond,
		Parallelism:   4,
		TemporaryBase: t.TempDir(),
	}
	s := New(store, reg, idx, waits, opts, "1.0")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := s.Run(ctx)
	require.Error(t, err)
	var exceeded *ErrMaxGameTimeExceeded
	assert.ErrorAs(t, err, &exceeded)
}

func TestRegisterRejectsIncompatibleEngineVersion(t *testing.T) {
	s, _, _ := newTestScheduler(t)
	tpl := &worker.Template{
		Declaration: worker.Declaration{Name: "future", Version: "1.0", EngineVersion: "9.0"},
		Kind:        worker.KindNPC,
		NewHandler:  func() worker.Handler { return worker.Handler{} },
	}
	err := s.Register(tpl)
	require.Error(t, err)
	var incompat *ErrIncompatibleEngineVersion
	assert.ErrorAs(t, err, &incompat)
}

func TestRegisterRejectsDuplicateName(t *testing.T) {
	s, _, _ := newTestScheduler(t)
	tpl := &worker.Template{
		Declaration: worker.Declaration{Name: "dup", Version: "1.0", EngineVersion: "1.0"},
		Kind:        worker.KindNPC,
		NewHandler:  func() worker.Handler { return worker.Handler{} },
	}
	require.NoError(t, s.Register(tpl))
	err := s.Register(tpl)
	assert.Error(t, err)
}

func TestAddFactRejectsMissingRequiredField(t *testing.T) {
	s, _, reg := newTestScheduler(t)
	require.NoError(t, reg.Register(registry.TypeDescriptor{
		Name:   "observation",
		Fields: map[string]registry.FieldSchema{"value": {Kind: registry.KindString, Required: true}},
	}))

	c := console.New(s, "probe#0", "probe")
	err := c.AddFact(&blackboard.Entry{Type: "observation"})
	require.Error(t, err)
	var missing *registry.ErrMissingRequiredField
	assert.ErrorAs(t, err, &missing)
}

func TestAddFactFillsRegisteredDefaultField(t *testing.T) {
	s, _, reg := newTestScheduler(t)
	require.NoError(t, reg.Register(registry.TypeDescriptor{
		Name:   "observation",
		Fields: map[string]registry.FieldSchema{"confidence": {Kind: registry.KindFloat, Default: 0.5}},
	}))

	c := console.New(s, "probe#0", "probe")
	fact := &blackboard.Entry{Type: "observation"}
	require.NoError(t, c.AddFact(fact))

	got, err := s.GetFact(fact.ID)
	require.NoError(t, err)
	assert.Equal(t, 0.5, got.Fields["confidence"])
}

func TestConfigMergesCommonUnderTemplateOptions(t *testing.T) {
	store := blackboard.NewStore()
	reg := registry.New()
	idx := interest.New()
	waits := wait.New()
	opts := config.Options{
		GraceTime:     20 * time.Millisecond,
		Parallelism:   4,
		TemporaryBase: t.TempDir(),
		Common:        map[string]any{"timeout": "10s", "verbose": false},
	}
	s := New(store, reg, idx, waits, opts, "1.0")

	tpl := &worker.Template{
		Declaration: worker.Declaration{
			Name: "digest", Version: "1.0", EngineVersion: "1.0",
			Options: map[string]any{"verbose": true},
		},
		Kind:       worker.KindNPC,
		NewHandler: func() worker.Handler { return worker.Handler{} },
	}
	require.NoError(t, s.Register(tpl))

	merged := s.Config("digest")
	assert.Equal(t, "10s", merged["timeout"], "common options carry through untouched")
	assert.Equal(t, true, merged["verbose"], "a template's own option wins over common")
}

func TestCloneCrashIsRecoveredAndRecorded(t *testing.T) {
	s, store, reg := newTestScheduler(t)
	require.NoError(t, reg.Register(registry.TypeDescriptor{Name: "observation"}))

	tpl := &worker.Template{
		Declaration: worker.Declaration{
			Name: "flaky", Version: "1.0", EngineVersion: "1.0",
			Interests: worker.Interests{Facts: []string{"observation"}},
		},
		Kind: worker.KindPlayer,
		NewHandler: func() worker.Handler {
			return worker.Handler{OnFact: func(_ context.Context, _ *console.Console, _ *blackboard.Fact) error {
				panic("boom")
			}}
		},
	}
	require.NoError(t, s.Register(tpl))

	_, err := store.AddFact(&blackboard.Entry{Type: "observation"})
	require.NoError(t, err)

	runUntilQuiescent(t, s)

	s.mu.Lock()
	defer s.mu.Unlock()
	require.Len(t, s.clones, 1)
	for _, c := range s.clones {
		assert.Equal(t, Done, c.State)
		require.Error(t, c.Err)
		var crash *CloneCrash
		assert.ErrorAs(t, c.Err, &crash)
	}
}
