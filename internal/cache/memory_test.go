package cache

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// storeContract runs the behavior every backend must share.
func storeContract(t *testing.T, store Store) {
	ctx := context.Background()
	require.NoError(t, store.Clear(ctx))

	t.Run("missing key", func(t *testing.T) {
		ok, err := store.Contains(ctx, "js_missing.js")
		require.NoError(t, err)
		assert.False(t, ok)

		_, err = store.Get(ctx, "js_missing.js")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("first write wins", func(t *testing.T) {
		written, err := store.Put(ctx, "js_output_#.js", &Entry{
			Content:      "function a(){}",
			Hash:         "ABC",
			Dependencies: []Dependency{{Path: "js/a.js", Fingerprint: "1"}},
		})
		require.NoError(t, err)
		assert.True(t, written)

		written, err = store.Put(ctx, "js_output_#.js", &Entry{Content: "other"})
		require.NoError(t, err)
		assert.False(t, written)

		e, err := store.Get(ctx, "js_output_#.js")
		require.NoError(t, err)
		assert.Equal(t, "js_output_#.js", e.Key)
		assert.Equal(t, "function a(){}", e.Content)
		assert.Equal(t, []Dependency{{Path: "js/a.js", Fingerprint: "1"}}, e.Dependencies)
		assert.False(t, e.CreatedAt.IsZero())
	})

	t.Run("keys delete and clear", func(t *testing.T) {
		_, err := store.Put(ctx, "css_site.css", &Entry{Content: "a{}"})
		require.NoError(t, err)

		keys, err := store.Keys(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"css_site.css", "js_output_#.js"}, keys)

		require.NoError(t, store.Delete(ctx, "css_site.css"))
		require.NoError(t, store.Delete(ctx, "css_site.css"))
		ok, err := store.Contains(ctx, "css_site.css")
		require.NoError(t, err)
		assert.False(t, ok)

		require.NoError(t, store.Clear(ctx))
		keys, err = store.Keys(ctx)
		require.NoError(t, err)
		assert.Empty(t, keys)
	})
}

func TestMemoryStore(t *testing.T) {
	storeContract(t, NewMemoryStore())
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	entry := &Entry{Content: "a", Dependencies: []Dependency{{Path: "a.js"}}}
	_, err := store.Put(ctx, "k", entry)
	require.NoError(t, err)
	entry.Dependencies[0].Path = "mutated"

	got, err := store.Get(ctx, "k")
	require.NoError(t, err)
	got.Content = "changed"

	again, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "a", again.Content)
	assert.Equal(t, "a.js", again.Dependencies[0].Path)
}

func TestMemoryStore_ConcurrentPut(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			written, err := store.Put(ctx, "shared", &Entry{Content: fmt.Sprint(i)})
			assert.NoError(t, err)
			if written {
				wins.Add(1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	assert.Equal(t, 1, store.Len())
}
