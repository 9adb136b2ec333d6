// Package interest implements the interest-matching index: the map from
// (kind, concrete type) to the worker templates that should be cloned
// when a matching entry is added.
package interest

import (
	"sync"

	"github.com/oakmoor/cairn/pkg/blackboard"
	"github.com/oakmoor/cairn/pkg/registry"
)

// Index maps (kind, concrete type) to subscribed worker template names.
// Object-interested (NPC) workers always match; they are tracked
// separately since they have no declared type/group interests.
type Index struct {
	mu         sync.RWMutex
	objectSubs []string
	factSubs   map[string][]string
	hypSubs    map[string][]string
}

// New creates an empty Index.
func New() *Index {
	return &Index{
		factSubs: make(map[string][]string),
		hypSubs:  make(map[string][]string),
	}
}

// RegisterObjectWorker subscribes templateName to every object added to
// the blackboard (the "automatic" kind: NPCs).
func (idx *Index) RegisterObjectWorker(templateName string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.objectSubs = append(idx.objectSubs, templateName)
}

// RegisterFactInterests expands each entry in interests (types or
// groups) via reg and subscribes templateName to every resulting
// concrete fact type. Expansion happens once, here, at registration
// time; later registry changes do not retroactively update it.
func (idx *Index) RegisterFactInterests(templateName string, reg *registry.Registry, interests []string) error {
	return idx.registerInterests(templateName, reg, interests, blackboard.KindFact)
}

// RegisterHypInterests is RegisterFactInterests for the hyp table.
func (idx *Index) RegisterHypInterests(templateName string, reg *registry.Registry, interests []string) error {
	return idx.registerInterests(templateName, reg, interests, blackboard.KindHyp)
}

func (idx *Index) registerInterests(templateName string, reg *registry.Registry, interests []string, kind blackboard.Kind) error {
	concrete := make([]string, 0, len(interests))
	for _, nameOrGroup := range interests {
		types, err := reg.Expand(nameOrGroup)
		if err != nil {
			return err
		}
		if len(types) == 0 {
			return &registry.ErrEmptyGroupExpansion{Group: nameOrGroup}
		}
		concrete = append(concrete, types...)
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()
	table := idx.factSubs
	if kind == blackboard.KindHyp {
		table = idx.hypSubs
	}
	for _, t := range concrete {
		table[t] = append(table[t], templateName)
	}
	return nil
}

// MatchObject returns every NPC template name.
func (idx *Index) MatchObject() []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return append([]string(nil), idx.objectSubs...)
}

// MatchFact returns the template names subscribed to concreteType in the
// fact table.
func (idx *Index) MatchFact(concreteType string) []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return append([]string(nil), idx.factSubs[concreteType]...)
}

// MatchHyp returns the template names subscribed to concreteType in the
// hyp table.
func (idx *Index) MatchHyp(concreteType string) []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return append([]string(nil), idx.hypSubs[concreteType]...)
}
