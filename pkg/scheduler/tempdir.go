package scheduler

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// tempDirs tracks every temp directory a clone has acquired, scoped to
// the clone's lifetime: released on the owning clone reaching Done,
// Cancelled, or crashed (spec.md §4.6, §9's "per-clone temp directories"
// design note). Save/load never touches these paths.
type tempDirs struct {
	mu      sync.Mutex
	base    string
	primary map[string]string   // cloneID -> lazily-created "my_directory"
	all     map[string][]string // cloneID -> every directory ever created for it
}

func newTempDirs(base string) *tempDirs {
	return &tempDirs{
		base:    base,
		primary: make(map[string]string),
		all:     make(map[string][]string),
	}
}

// MyDirectory returns cloneID's scoped directory, creating it lazily on
// first call and returning the same path on every subsequent call.
func (t *tempDirs) MyDirectory(cloneID string) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if dir, ok := t.primary[cloneID]; ok {
		return dir, nil
	}
	dir, err := t.newDirLocked(cloneID)
	if err != nil {
		return "", err
	}
	t.primary[cloneID] = dir
	return dir, nil
}

// New returns a fresh directory, with the same release lifecycle as
// MyDirectory, on every call.
func (t *tempDirs) New(cloneID string) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.newDirLocked(cloneID)
}

func (t *tempDirs) newDirLocked(cloneID string) (string, error) {
	scoped := filepath.Join(t.base, cloneID)
	if err := os.MkdirAll(scoped, 0o755); err != nil {
		return "", fmt.Errorf("scheduler: create temp base for clone %s: %w", cloneID, err)
	}
	dir, err := os.MkdirTemp(scoped, "d20-")
	if err != nil {
		return "", fmt.Errorf("scheduler: create temp directory for clone %s: %w", cloneID, err)
	}
	t.all[cloneID] = append(t.all[cloneID], dir)
	return dir, nil
}

// Release removes every directory acquired by cloneID. Called when the
// owning clone reaches Done, is cancelled, or crashes.
func (t *tempDirs) Release(cloneID string) {
	t.mu.Lock()
	dirs := t.all[cloneID]
	delete(t.all, cloneID)
	delete(t.primary, cloneID)
	t.mu.Unlock()

	for _, dir := range dirs {
		os.RemoveAll(dir)
	}
}
