package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdentifierRegistryReusesSlots(t *testing.T) {
	r := NewIdentifierRegistry[string](2)
	a := r.AquireNewID("a")
	b := r.AquireNewID("b")
	assert.NotEqual(t, a, b)
	assert.Equal(t, 2, r.Len())

	require.NoError(t, r.ReleaseID(a))
	_, ok := r.Lookup(a)
	assert.False(t, ok)

	c := r.AquireNewID("c")
	assert.Equal(t, a.ID, c.ID)
	assert.NotEqual(t, a.Generation, c.Generation)

	owner, ok := r.Lookup(c)
	require.True(t, ok)
	assert.Equal(t, "c", owner)
	_, ok = r.Lookup(a)
	assert.False(t, ok, "stale handle must not resolve to the new owner")
}

func TestIdentifierRegistryRejectsStaleRelease(t *testing.T) {
	r := NewIdentifierRegistry[int](1)
	h := r.AquireNewID(1)
	require.NoError(t, r.ReleaseID(h))
	assert.Error(t, r.ReleaseID(h))
	assert.Error(t, r.ReleaseID(Handle{ID: 10}))

	_, ok := r.Lookup(InvalidHandle)
	assert.False(t, ok)
}

func TestIdentifierRegistryEach(t *testing.T) {
	r := NewIdentifierRegistry[int](4)
	for i := 0; i < 4; i++ {
		r.AquireNewID(i)
	}
	require.NoError(t, r.ReleaseID(Handle{ID: 2}))

	seen := map[int]Handle{}
	r.Each(func(h Handle, owner int) {
		seen[owner] = h
	})
	assert.Len(t, seen, 3)
	assert.NotContains(t, seen, 2)
	assert.Equal(t, Handle{ID: 3}, seen[3])
}
