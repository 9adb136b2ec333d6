// Package snapshot implements the save-file container format: a fixed
// magic+version header followed by a single gob-encoded payload,
// generalizing the teacher's "encode complex fields, flat container"
// serialization idiom from a per-field Redis hash encoding to a
// whole-snapshot stream, since the payload here is one in-process
// data structure rather than many independently-addressed hash fields.
package snapshot

import (
	"bufio"
	"encoding/binary"
	"encoding/gob"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/oakmoor/cairn/pkg/blackboard"
)

func init() {
	// gob requires every concrete type ever stored in an Entry.Fields or
	// Memory `any` slot to be registered up front.
	gob.Register("")
	gob.Register(0)
	gob.Register(int64(0))
	gob.Register(float64(0))
	gob.Register(false)
	gob.Register([]byte(nil))
	gob.Register([]string(nil))
	gob.Register([]any(nil))
	gob.Register(map[string]any(nil))
	gob.Register(time.Time{})
}

var magic = [8]byte{'C', 'A', 'I', 'R', 'N', 'S', 'A', 'V'}

// FormatVersion is the container format's own version, independent of
// the engine version carried inside the payload.
const FormatVersion uint32 = 1

// ErrCorruptSave is returned when the header magic or trailing gob
// stream cannot be parsed.
var ErrCorruptSave = errors.New("snapshot: corrupt save file")

// ErrIncompatibleVersion is returned by Read when the header's format
// version is newer than this build supports, and by scheduler.Load when
// the payload's EngineVersion differs in any way from the running engine
// version.
var ErrIncompatibleVersion = errors.New("snapshot: incompatible version")

// CloneState mirrors scheduler.CloneState without importing pkg/scheduler
// (which itself imports pkg/snapshot) — kept as a small integer so the
// two packages don't need to agree on anything but the encoding.
type CloneState int

const (
	CloneRunnable CloneState = iota
	CloneRunning
	CloneWaiting
	CloneDone
)

// CloneRecord is one clone's persisted state.
type CloneRecord struct {
	TemplateName string
	Serial       uint64
	State        CloneState
	Trigger      blackboard.PostEvent
	TriggerValid bool
}

// TransitionRecord is one persisted entry from the clone-transition
// log: a monotonic sequence number plus the state change it recorded,
// addressed by template name and serial rather than a scheduler-side
// CloneID so this package never needs to import pkg/scheduler.
type TransitionRecord struct {
	Seq          uint64
	TemplateName string
	Serial       uint64
	From         CloneState
	To           CloneState
	At           time.Time
}

// Payload is everything a Save/Load round-trip needs to reproduce
// scheduling order and blackboard content exactly.
type Payload struct {
	EngineVersion string
	SavedAt       time.Time

	Objects []blackboard.Object
	Facts   []blackboard.Fact
	Hyps    []blackboard.Hyp
	HypIDs  []int // parallel to Hyps, since hyps live in a map keyed by id

	Clones      []CloneRecord
	Transitions []TransitionRecord
	Memory      map[string]map[string]any // per-template shared memory
}

// Write encodes payload behind the magic+version header and writes it
// to w.
func Write(w io.Writer, payload Payload) error {
	bw := bufio.NewWriter(w)

	if _, err := bw.Write(magic[:]); err != nil {
		return fmt.Errorf("snapshot: write magic: %w", err)
	}
	var versionBuf [8]byte
	binary.BigEndian.PutUint32(versionBuf[0:4], FormatVersion)
	binary.BigEndian.PutUint32(versionBuf[4:8], 0) // reserved
	if _, err := bw.Write(versionBuf[:]); err != nil {
		return fmt.Errorf("snapshot: write header: %w", err)
	}

	if err := gob.NewEncoder(bw).Encode(payload); err != nil {
		return fmt.Errorf("snapshot: encode payload: %w", err)
	}
	return bw.Flush()
}

// Read parses the header and decodes the payload from r. It checks only
// the container format version; it does not look at the payload's
// EngineVersion, which callers compare themselves (scheduler.Load uses
// internal/version for this).
func Read(r io.Reader) (Payload, error) {
	var header [16]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return Payload{}, fmt.Errorf("%w: %v", ErrCorruptSave, err)
	}
	if [8]byte(header[:8]) != magic {
		return Payload{}, ErrCorruptSave
	}
	formatVersion := binary.BigEndian.Uint32(header[8:12])
	if formatVersion > FormatVersion {
		return Payload{}, ErrIncompatibleVersion
	}

	var payload Payload
	if err := gob.NewDecoder(r).Decode(&payload); err != nil {
		return Payload{}, fmt.Errorf("%w: %v", ErrCorruptSave, err)
	}
	return payload, nil
}
