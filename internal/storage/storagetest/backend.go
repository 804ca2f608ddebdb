// Package storagetest holds a conformance suite every storage.Backend must pass.
package storagetest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"complyflow/internal/storage"
)

// RunBackendTest exercises b through its whole contract. factory must return an empty backend.
func RunBackendTest(t *testing.T, factory func() storage.Backend) {
	t.Run("get missing", func(t *testing.T) {
		b := factory()
		_, ok, err := b.Get(context.Background(), "nope")
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("set get overwrite", func(t *testing.T) {
		ctx := context.Background()
		b := factory()
		require.NoError(t, b.Set(ctx, "k", "v1"))
		require.NoError(t, b.Set(ctx, "k", "v2"))
		v, ok, err := b.Get(ctx, "k")
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, "v2", v)
	})

	t.Run("delete", func(t *testing.T) {
		ctx := context.Background()
		b := factory()
		require.NoError(t, b.Set(ctx, "k", "v"))
		require.NoError(t, b.Delete(ctx, "k"))
		require.NoError(t, b.Delete(ctx, "k"))
		_, ok, err := b.Get(ctx, "k")
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("keys by prefix", func(t *testing.T) {
		ctx := context.Background()
		b := factory()
		for _, k := range []string{"project_a", "project_b", "app_mode", "project%_c", "projectX"} {
			require.NoError(t, b.Set(ctx, k, "{}"))
		}
		keys, err := b.Keys(ctx, "project_")
		require.NoError(t, err)
		require.ElementsMatch(t, []string{"project_a", "project_b"}, keys)

		all, err := b.Keys(ctx, "")
		require.NoError(t, err)
		require.Len(t, all, 5)
	})

	t.Run("clear", func(t *testing.T) {
		ctx := context.Background()
		b := factory()
		require.NoError(t, b.Set(ctx, "a", "1"))
		require.NoError(t, b.Set(ctx, "b", "2"))
		require.NoError(t, b.Clear(ctx))
		keys, err := b.Keys(ctx, "")
		require.NoError(t, err)
		require.Empty(t, keys)
	})
}
