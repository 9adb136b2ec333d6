package scheduler

import (
	"fmt"
	"time"

	"github.com/oakmoor/cairn/pkg/blackboard"
	"github.com/oakmoor/cairn/pkg/worker"
)

// CloneState is one of the four states a clone moves through, per
// spec.md §4.5: RUNNABLE → RUNNING → {WAITING, DONE}; WAITING →
// RUNNABLE on wake.
type CloneState int

const (
	Runnable CloneState = iota
	Running
	Waiting
	Done
)

func (s CloneState) String() string {
	switch s {
	case Runnable:
		return "runnable"
	case Running:
		return "running"
	case Waiting:
		return "waiting"
	case Done:
		return "done"
	default:
		return "unknown"
	}
}

// CloneID identifies a clone. For Player templates, Serial increments
// per triggering entry; for NPC/BackStory templates (single-instance),
// Serial is always 0.
type CloneID struct {
	TemplateName string
	Serial       uint64
}

func (id CloneID) String() string {
	return fmt.Sprintf("%s#%d", id.TemplateName, id.Serial)
}

// Clone is a live worker task bound to a template plus the entry that
// triggered it (for NPC/BackStory, the most recent triggering entry;
// those templates process triggers one at a time, serialized, reusing
// the same CloneID).
type Clone struct {
	ID       CloneID
	Template *worker.Template
	State    CloneState
	Trigger  blackboard.PostEvent
	HasSeed  bool // true when Trigger is a synthesized seed-fact dispatch, not a PostEvent
	Seed     *blackboard.Entry
	Err      error
}

// CloneTransition records one state change, with a monotonic sequence
// number, consumed by the Snapshot Codec to reproduce scheduling order
// across save/load.
type CloneTransition struct {
	Seq     uint64
	CloneID CloneID
	From    CloneState
	To      CloneState
	At      time.Time
}
