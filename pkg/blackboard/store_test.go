package blackboard

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddObjectDedup(t *testing.T) {
	s := NewStore()

	id1, wasNew1, err := s.AddObject([]byte("x"), "alice", Relations{})
	require.NoError(t, err)
	assert.True(t, wasNew1)
	assert.Equal(t, 0, id1)

	id2, wasNew2, err := s.AddObject([]byte("x"), "bob", Relations{})
	require.NoError(t, err)
	assert.False(t, wasNew2)
	assert.Equal(t, id1, id2)

	obj, err := s.GetObject(id1)
	require.NoError(t, err)
	assert.Equal(t, "alice", obj.Creator) // first writer keeps creator attribution

	// Both AddObject calls must have posted an event, the second flagged deduped.
	ev1, ok := s.Events().Pop(context.Background())
	require.True(t, ok)
	assert.False(t, ev1.Deduped)
	ev2, ok := s.Events().Pop(context.Background())
	require.True(t, ok)
	assert.True(t, ev2.Deduped)
}

func TestAddObjectDedupMergesParents(t *testing.T) {
	s := NewStore()
	pObj, _, err := s.AddObject([]byte("parent"), "alice", Relations{})
	require.NoError(t, err)

	id, _, err := s.AddObject([]byte("x"), "alice", Relations{})
	require.NoError(t, err)

	_, _, err = s.AddObject([]byte("x"), "bob", Relations{ParentObjects: []int{pObj}})
	require.NoError(t, err)

	obj, err := s.GetObject(id)
	require.NoError(t, err)
	assert.Equal(t, []int{pObj}, obj.Relations.ParentObjects)

	parent, err := s.GetObject(pObj)
	require.NoError(t, err)
	assert.Equal(t, []int{id}, parent.Relations.ChildObjects)
}

func TestAddObjectUnknownParentFails(t *testing.T) {
	s := NewStore()
	_, _, err := s.AddObject([]byte("x"), "alice", Relations{ParentObjects: []int{7}})
	require.Error(t, err)
	var notFound *ErrUnknownParent
	assert.ErrorAs(t, err, &notFound)
}

func TestAddFactWiresObjectParent(t *testing.T) {
	s := NewStore()
	objID, _, err := s.AddObject([]byte("abc"), "npc", Relations{})
	require.NoError(t, err)

	factID, err := s.AddFact(&Entry{Type: "md5", Relations: Relations{ParentObjects: []int{objID}}})
	require.NoError(t, err)
	assert.Equal(t, 0, factID)

	obj, err := s.GetObject(objID)
	require.NoError(t, err)
	assert.Equal(t, []int{factID}, obj.Relations.ChildFacts)

	fact, err := s.GetFact(factID)
	require.NoError(t, err)
	assert.Equal(t, []int{objID}, fact.Relations.ParentObjects)
	assert.False(t, fact.Tainted)
}

func TestAddHypIsTainted(t *testing.T) {
	s := NewStore()
	id, err := s.AddHyp(&Entry{Type: "mimetype"})
	require.NoError(t, err)

	h, err := s.GetHyp(id)
	require.NoError(t, err)
	assert.True(t, h.Tainted)
}

func TestPromoteHypRewritesEdges(t *testing.T) {
	s := NewStore()
	objID, _, err := s.AddObject([]byte("abc"), "npc", Relations{})
	require.NoError(t, err)
	factID, err := s.AddFact(&Entry{Type: "md5", Relations: Relations{ParentObjects: []int{objID}}})
	require.NoError(t, err)
	hypID, err := s.AddHyp(&Entry{
		Type:   "mimetype",
		Fields: map[string]any{"value": "text/plain"},
		Relations: Relations{
			ParentFacts: []int{factID},
		},
	})
	require.NoError(t, err)

	// Give the hyp a child fact too, to exercise the child-side rewrite.
	childFactID, err := s.AddFact(&Entry{Type: "confidence", Relations: Relations{ParentHyps: []int{hypID}}})
	require.NoError(t, err)

	newFactID, err := s.PromoteHyp(hypID)
	require.NoError(t, err)

	_, err = s.GetHyp(hypID)
	assert.Error(t, err, "promoted hyp must be absent from the hyp table")

	newFact, err := s.GetFact(newFactID)
	require.NoError(t, err)
	assert.Equal(t, []int{factID}, newFact.Relations.ParentFacts)
	assert.Equal(t, map[string]any{"value": "text/plain"}, newFact.Fields)

	originalFact, err := s.GetFact(factID)
	require.NoError(t, err)
	assert.Contains(t, originalFact.Relations.ChildFacts, newFactID)
	assert.NotContains(t, originalFact.Relations.ChildHyps, hypID)

	child, err := s.GetFact(childFactID)
	require.NoError(t, err)
	assert.Contains(t, child.Relations.ParentFacts, newFactID)
	assert.NotContains(t, child.Relations.ParentHyps, hypID)
}

func TestIDsAreDenseAndOrdered(t *testing.T) {
	s := NewStore()
	for i := 0; i < 5; i++ {
		id, err := s.AddFact(&Entry{Type: "hash"})
		require.NoError(t, err)
		assert.Equal(t, i, id)
	}
}

func TestConcurrentAddFactIsRaceFree(t *testing.T) {
	s := NewStore()
	var wg sync.WaitGroup
	ids := make(chan int, 100)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := s.AddFact(&Entry{Type: "hash"})
			require.NoError(t, err)
			ids <- id
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[int]bool)
	for id := range ids {
		assert.False(t, seen[id], "duplicate id assigned")
		seen[id] = true
	}
	assert.Len(t, seen, 100)
}
