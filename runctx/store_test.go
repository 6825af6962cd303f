package runctx

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGet(t *testing.T) {
	s := New()

	_, _, err := s.Get("missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.Put("k", "v", 0)
	require.NoError(t, err)

	v, ver, err := s.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "v", v)
	assert.Equal(t, uint64(1), ver)
}

func TestPut(t *testing.T) {
	t.Run("versions start at 1 and increment", func(t *testing.T) {
		s := New()
		ver, err := s.Put("k", 1, 0)
		require.NoError(t, err)
		assert.Equal(t, uint64(1), ver)

		ver, err = s.Put("k", 2, 1)
		require.NoError(t, err)
		assert.Equal(t, uint64(2), ver)
	})

	t.Run("stale expected version conflicts", func(t *testing.T) {
		s := New()
		_, err := s.Put("k", 1, 0)
		require.NoError(t, err)

		_, err = s.Put("k", 2, 0)
		var ce *ConflictError
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, "k", ce.Key)
		assert.Equal(t, uint64(0), ce.Expected)
		assert.Equal(t, uint64(1), ce.Current)

		// The conflicting write must not have landed.
		v, _, err := s.Get("k")
		require.NoError(t, err)
		assert.Equal(t, 1, v)
	})
}

func TestMerge(t *testing.T) {
	t.Run("applies all keys", func(t *testing.T) {
		s := New()
		keys, err := s.Merge(map[string]any{"b": 2, "a": 1}, nil)
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b"}, keys)
		assert.Equal(t, uint64(1), s.Version("a"))
		assert.Equal(t, uint64(1), s.Version("b"))
	})

	t.Run("all-or-nothing on conflict", func(t *testing.T) {
		s := New()
		_, err := s.Put("b", "old", 0)
		require.NoError(t, err)

		_, err = s.Merge(
			map[string]any{"a": 1, "b": 2},
			map[string]uint64{"a": 0, "b": 0},
		)
		var ce *ConflictError
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, "b", ce.Key)

		// Neither key was written.
		assert.Equal(t, uint64(0), s.Version("a"))
		v, _, err := s.Get("b")
		require.NoError(t, err)
		assert.Equal(t, "old", v)
	})

	t.Run("keys absent from expected are unchecked", func(t *testing.T) {
		s := New()
		_, err := s.Put("k", "old", 0)
		require.NoError(t, err)

		_, err = s.Merge(map[string]any{"k": "new"}, nil)
		require.NoError(t, err)
		assert.Equal(t, uint64(2), s.Version("k"))
	})
}

func TestConcurrentWriters(t *testing.T) {
	t.Run("disjoint keys never conflict", func(t *testing.T) {
		s := New()
		var wg sync.WaitGroup
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				key := fmt.Sprintf("key-%d", i)
				_, err := s.Merge(map[string]any{key: i}, map[string]uint64{key: 0})
				assert.NoError(t, err)
			}(i)
		}
		wg.Wait()
		assert.Equal(t, 16, s.Len())
	})

	t.Run("same key admits exactly one optimistic writer", func(t *testing.T) {
		s := New()
		var wg sync.WaitGroup
		var mu sync.Mutex
		conflicts := 0
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				if _, err := s.Put("shared", i, 0); err != nil {
					mu.Lock()
					conflicts++
					mu.Unlock()
				}
			}(i)
		}
		wg.Wait()
		assert.Equal(t, 7, conflicts)
		assert.Equal(t, uint64(1), s.Version("shared"))
	})
}

func TestFreeze(t *testing.T) {
	s := New()
	_, err := s.Put("k", "v", 0)
	require.NoError(t, err)

	final := s.Freeze()
	assert.Equal(t, map[string]any{"k": "v"}, final)

	_, err = s.Put("k", "late", 1)
	assert.Error(t, err)
	_, err = s.Merge(map[string]any{"other": 1}, nil)
	assert.Error(t, err)
}

func TestSnapshot(t *testing.T) {
	s := New()
	_, err := s.Put("k", "v", 0)
	require.NoError(t, err)

	snap := s.Snapshot()
	snap["k"] = "mutated"

	v, _, err := s.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "v", v)
}
