package blobstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCompareAndSwap(t *testing.T) {
	local, err := NewLocal(t.TempDir())
	require.NoError(t, err)

	for name, store := range map[string]Store{
		"memory":       NewMemory(),
		"local":        local,
		"instrumented": Instrument("memory", NewMemory()),
	} {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, err := store.Get(ctx, "db/database.db")
			require.ErrorIs(t, err, ErrNotFound)

			v1, err := store.Put(ctx, "db/database.db", []byte("first"), "")
			require.NoError(t, err)
			require.NotEmpty(t, v1)

			_, err = store.Put(ctx, "db/database.db", []byte("again"), "")
			require.ErrorIs(t, err, ErrConflict)

			blob, err := store.Get(ctx, "db/database.db")
			require.NoError(t, err)
			require.Equal(t, "first", string(blob.Content))
			require.Equal(t, v1, blob.Version)

			v2, err := store.Put(ctx, "db/database.db", []byte("second"), v1)
			require.NoError(t, err)
			require.NotEqual(t, v1, v2)

			_, err = store.Put(ctx, "db/database.db", []byte("stale"), v1)
			var conflict *ConflictError
			require.ErrorAs(t, err, &conflict)
			require.Equal(t, v1, conflict.Expected)

			blob, err = store.Get(ctx, "db/database.db")
			require.NoError(t, err)
			require.Equal(t, "second", string(blob.Content))
		})
	}
}

func TestLocalRejectsEscapingPath(t *testing.T) {
	local, err := NewLocal(t.TempDir())
	require.NoError(t, err)
	_, err = local.Put(context.Background(), "../outside.db", []byte("x"), "")
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrConflict)
}

func TestMemoryBeforePut(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory()
	v1, err := mem.Put(ctx, "database.db", []byte("base"), "")
	require.NoError(t, err)

	raced := false
	mem.BeforePut(func(path string) {
		if raced {
			return
		}
		raced = true
		_, err := mem.Put(ctx, path, []byte("other writer"), v1)
		require.NoError(t, err)
	})
	_, err = mem.Put(ctx, "database.db", []byte("mine"), v1)
	require.ErrorIs(t, err, ErrConflict)
	require.Equal(t, 2, mem.Puts())
}
