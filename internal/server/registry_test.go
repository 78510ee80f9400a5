package server

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bareSession(addr string) *Session {
	return newSession(newFakeConn(addr), nil, nil, nil, nil)
}

// TestRegistryJoinOrder verifies that the first joiner is Chat 1 and the
// second is Chat 2.
func TestRegistryJoinOrder(t *testing.T) {
	r := NewRegistry(TwoParty{})

	first, second := bareSession("a"), bareSession("b")

	id, err := r.Register(first)
	require.NoError(t, err)
	assert.Equal(t, Identity(1), id)
	assert.Equal(t, Identity(1), first.Identity())

	id, err = r.Register(second)
	require.NoError(t, err)
	assert.Equal(t, Identity(2), id)

	assert.Equal(t, 2, r.Count())

	got, ok := r.Lookup(1)
	require.True(t, ok)
	assert.Same(t, first, got)

	_, ok = r.Lookup(3)
	assert.False(t, ok)
}

// TestRegistryThirdJoinerRejected verifies that a third concurrent joiner
// never overwrites an active identity.
func TestRegistryThirdJoinerRejected(t *testing.T) {
	r := NewRegistry(TwoParty{})
	first, second, third := bareSession("a"), bareSession("b"), bareSession("c")

	_, err := r.Register(first)
	require.NoError(t, err)
	_, err = r.Register(second)
	require.NoError(t, err)

	_, err = r.Register(third)
	assert.ErrorIs(t, err, ErrRoomFull)

	got, ok := r.Lookup(2)
	require.True(t, ok)
	assert.Same(t, second, got)
	assert.Equal(t, 2, r.Count())
}

// TestRegistryRemove verifies that Remove is idempotent and never removes a
// session that later took over the same identity.
func TestRegistryRemove(t *testing.T) {
	r := NewRegistry(TwoParty{})
	first, second := bareSession("a"), bareSession("b")

	_, err := r.Register(first)
	require.NoError(t, err)
	_, err = r.Register(second)
	require.NoError(t, err)

	assert.True(t, r.Remove(first))
	assert.False(t, r.Remove(first))
	assert.False(t, r.Remove(nil))
	assert.Equal(t, 1, r.Count())

	// Chat 1 is free again and goes to the next joiner.
	rejoin := bareSession("c")
	id, err := r.Register(rejoin)
	require.NoError(t, err)
	assert.Equal(t, Identity(1), id)

	assert.False(t, r.Remove(first), "stale session must not evict the new holder")
	got, ok := r.Lookup(1)
	require.True(t, ok)
	assert.Same(t, rejoin, got)
}

// TestRegistrySnapshotIsACopy verifies that a snapshot is unaffected by later
// changes and ordered by identity.
func TestRegistrySnapshotIsACopy(t *testing.T) {
	r := NewRegistry(Pairs{})
	sessions := make([]*Session, 4)
	for i := range sessions {
		sessions[i] = bareSession(fmt.Sprintf("client-%d", i))
		_, err := r.Register(sessions[i])
		require.NoError(t, err)
	}

	snapshot := r.Snapshot()
	require.Len(t, snapshot, 4)
	for i, s := range snapshot {
		assert.Equal(t, Identity(i+1), s.Identity())
	}

	r.Remove(sessions[0])
	assert.Len(t, snapshot, 4)
	assert.Len(t, r.Snapshot(), 3)
}

// TestRegistryConcurrentAccess verifies that concurrent registrations never
// share an identity and that iteration is safe while the set changes.
func TestRegistryConcurrentAccess(t *testing.T) {
	r := NewRegistry(Pairs{})

	const workers = 50
	ids := make(chan Identity, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s := bareSession(fmt.Sprintf("client-%d", i))
			id, err := r.Register(s)
			if err != nil {
				t.Errorf("register %d: %v", i, err)
				return
			}
			ids <- id
			_ = r.Snapshot()
			if i%2 == 0 {
				r.Remove(s)
			}
		}(i)
	}
	wg.Wait()
	close(ids)

	seen := make(map[Identity]bool)
	for id := range ids {
		assert.False(t, seen[id], "identity %d assigned twice", id)
		seen[id] = true
	}
	assert.Len(t, seen, workers)
	assert.Equal(t, workers/2, r.Count())
}

// TestRegistryClose verifies that Close drains the registry and refuses
// later registrations.
func TestRegistryClose(t *testing.T) {
	r := NewRegistry(TwoParty{})
	first, second := bareSession("a"), bareSession("b")
	_, err := r.Register(first)
	require.NoError(t, err)
	_, err = r.Register(second)
	require.NoError(t, err)

	drained := r.Close()
	require.Len(t, drained, 2)
	assert.Same(t, first, drained[0])
	assert.Same(t, second, drained[1])
	assert.Equal(t, 0, r.Count())

	_, err = r.Register(bareSession("c"))
	assert.ErrorIs(t, err, ErrServerClosed)
	assert.Empty(t, r.Close())
}
