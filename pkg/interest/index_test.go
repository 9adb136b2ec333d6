package interest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oakmoor/cairn/pkg/registry"
)

func TestRegisterFactInterestsExpandsGroup(t *testing.T) {
	reg := registry.New()
	require.NoError(t, reg.Register(registry.TypeDescriptor{Name: "md5", Groups: []string{"hash"}}))
	require.NoError(t, reg.Register(registry.TypeDescriptor{Name: "sha1", Groups: []string{"hash"}}))

	idx := New()
	require.NoError(t, idx.RegisterFactInterests("player-a", reg, []string{"hash"}))

	assert.Equal(t, []string{"player-a"}, idx.MatchFact("md5"))
	assert.Equal(t, []string{"player-a"}, idx.MatchFact("sha1"))
	assert.Empty(t, idx.MatchFact("sha256"))
}

func TestRegisterFactInterestsUnknownTypeFails(t *testing.T) {
	reg := registry.New()
	idx := New()
	err := idx.RegisterFactInterests("player-a", reg, []string{"nope"})
	require.Error(t, err)
}

func TestObjectWorkersAlwaysMatch(t *testing.T) {
	idx := New()
	idx.RegisterObjectWorker("npc-hasher")
	idx.RegisterObjectWorker("npc-mime")
	assert.ElementsMatch(t, []string{"npc-hasher", "npc-mime"}, idx.MatchObject())
}

func TestEmptyInterestListNeverMatches(t *testing.T) {
	reg := registry.New()
	idx := New()
	require.NoError(t, idx.RegisterFactInterests("player-a", reg, nil))
	assert.Empty(t, idx.MatchFact("anything"))
}
