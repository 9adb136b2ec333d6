// Package worker defines the contract a worker announces to the engine:
// its declaration (name, versions, interests) and the entrypoint
// callback shapes the scheduler invokes on its clones.
//
// Grounded on original_source/d20/Manual/Registration.py's
// RegistrationForm.
package worker

import (
	"context"

	"github.com/oakmoor/cairn/pkg/blackboard"
	"github.com/oakmoor/cairn/pkg/console"
)

// Kind distinguishes the three worker roles. NPC and BackStory workers
// are single-instance; Player workers are cloned per triggering entry.
type Kind int

const (
	KindNPC Kind = iota
	KindPlayer
	KindBackStory
)

func (k Kind) String() string {
	switch k {
	case KindNPC:
		return "npc"
	case KindPlayer:
		return "player"
	case KindBackStory:
		return "backstory"
	default:
		return "unknown"
	}
}

// Interests is the dual shape spec.md §6 describes: a flat list of
// type/group names (facts only) corresponds to Facts alone; the
// {facts:[...], hyps:[...]} form corresponds to both. This package does
// no unmarshaling of either form; callers fill the fields directly.
type Interests struct {
	Facts []string
	Hyps  []string
}

// Declaration is the metadata a worker announces, independent of its
// handler logic.
type Declaration struct {
	Name          string
	Description   string
	Creator       string
	Version       string
	EngineVersion string
	Help          string
	Interests     Interests

	// FactsConsumed/FactsGenerated are carried through for external
	// renderers (out of core scope) to draw dependency graphs from; the
	// core neither computes nor enforces them. Supplements
	// original_source/d20/Manual/Registration.py's introspection sets.
	FactsConsumed  []string
	FactsGenerated []string

	// Options is this worker's own declared option bag, merged under
	// the engine-wide common bag (internal/config.Options.Common) at
	// Register time, with these keys taking precedence on conflict.
	// Console.Config() returns the merged result.
	Options map[string]any
}

// DataHandler reacts to a new object.
type DataHandler func(ctx context.Context, c *console.Console, obj *blackboard.Object) error

// FactHandler reacts to a new fact (or, for BackStory workers, a seed
// fact supplied once at game start).
type FactHandler func(ctx context.Context, c *console.Console, fact *blackboard.Fact) error

// HypHandler reacts to a new hyp.
type HypHandler func(ctx context.Context, c *console.Console, hyp *blackboard.Hyp) error

// Handler is implemented by exactly one of DataHandler, FactHandler, or
// HypHandler, selected by the registering code based on Kind and the
// declared Interests.
type Handler struct {
	OnData DataHandler
	OnFact FactHandler
	OnHyp  HypHandler
}

// Template binds a Declaration and Kind to a constructor that produces a
// fresh Handler each time the scheduler runs a clone. For single-instance
// NPC/BackStory templates that means once per turn (each triggering
// object or seed fact), not once per template.
type Template struct {
	Declaration
	Kind       Kind
	NewHandler func() Handler
}
