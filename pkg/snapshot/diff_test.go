package snapshot

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/furrow/pkg/core"
)

func snap(pairs ...string) core.Snapshot {
	m := make(map[string]string)
	for i := 0; i+1 < len(pairs); i += 2 {
		m[pairs[i]] = pairs[i+1]
	}
	return core.NewSnapshot(m)
}

func TestDiff_SameSnapshotIsEqual(t *testing.T) {
	for _, s := range []core.Snapshot{
		{},
		snap("a", "1"),
		snap("a", "1", "b", "2", "c", "3"),
	} {
		r := Diff(s, s)
		assert.True(t, r.IsEqual())
		assert.Empty(t, r.Added)
		assert.Empty(t, r.Updated)
		assert.Empty(t, r.Deleted)
		assert.Len(t, r.Unchanged, len(s.Entries))
	}
}

func TestDiff_Classification(t *testing.T) {
	local := snap("a", "2", "b", "1", "c", "1")
	remote := snap("a", "1", "c", "1", "d", "1")

	r := Diff(local, remote)

	assert.Equal(t, []string{"b"}, r.Added)
	assert.Equal(t, []string{"a"}, r.Updated)
	assert.Equal(t, []string{"d"}, r.Deleted)
	assert.Equal(t, []string{"c"}, r.Unchanged)
	assert.False(t, r.IsEqual())
	assert.Equal(t, []string{"b", "a"}, r.Changed())

	assert.Equal(t, Added, r.Classify("b"))
	assert.Equal(t, Updated, r.Classify("a"))
	assert.Equal(t, Deleted, r.Classify("d"))
	assert.Equal(t, Unchanged, r.Classify("c"))
	assert.Equal(t, Unknown, r.Classify("zzz"))
}

func TestDiff_ScenarioFromNoOpToIncremental(t *testing.T) {
	remote := snap("a", "v1")

	r := Diff(snap("a", "v1"), remote)
	require.True(t, r.IsEqual())

	r = Diff(snap("a", "v2", "b", "v1"), remote)
	assert.Equal(t, []string{"b"}, r.Added)
	assert.Equal(t, []string{"a"}, r.Updated)
	assert.Empty(t, r.Deleted)
}

func TestDiff_EveryIDInExactlyOneClass(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for round := 0; round < 50; round++ {
		local := map[string]string{}
		remote := map[string]string{}
		for i := 0; i < 20; i++ {
			id := fmt.Sprintf("doc-%02d", i)
			switch rng.Intn(4) {
			case 0:
				local[id] = "v1"
			case 1:
				remote[id] = "v1"
			case 2:
				local[id] = "v1"
				remote[id] = "v1"
			case 3:
				local[id] = "v2"
				remote[id] = "v1"
			}
		}

		r := Diff(core.NewSnapshot(local), core.NewSnapshot(remote))

		seen := map[string]int{}
		for _, ids := range [][]string{r.Added, r.Updated, r.Deleted, r.Unchanged} {
			for _, id := range ids {
				seen[id]++
			}
		}
		for id := range local {
			assert.Equal(t, 1, seen[id], "round %d: id %s", round, id)
		}
		for id := range remote {
			assert.Equal(t, 1, seen[id], "round %d: id %s", round, id)
		}
	}
}

func TestFromDocuments(t *testing.T) {
	docs := []core.Document{
		{ID: "b", Content: `{"x":1}`},
		{ID: "a", Content: `{"x":2}`},
	}
	s, err := FromDocuments(docs)
	require.NoError(t, err)
	require.Len(t, s.Entries, 2)
	assert.Equal(t, "a", s.Entries[0].ID)
	assert.NotEqual(t, s.Entries[0].Version, s.Entries[1].Version)

	_, err = FromDocuments([]core.Document{{ID: "bad", Content: "{"}})
	assert.Error(t, err)
}
