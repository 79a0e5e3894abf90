package blob_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/docpipe/docpipe/internal/blob"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFS(t *testing.T) *blob.FSStore {
	t.Helper()
	s, err := blob.NewFSStore(t.TempDir())
	require.NoError(t, err)
	return s
}

func TestFSStore_PutGetRoundtrip(t *testing.T) {
	s := newFS(t)
	ctx := context.Background()

	ref, err := s.Put(ctx, []byte("page bytes"))
	require.NoError(t, err)
	require.NotEmpty(t, ref)

	got, err := s.Get(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, []byte("page bytes"), got)
}

func TestFSStore_PutIsImmediatelyReadable(t *testing.T) {
	s := newFS(t)
	ctx := context.Background()

	// Every returned ref must be readable without any flush/settle step.
	for i := 0; i < 20; i++ {
		ref, err := s.Put(ctx, []byte{byte(i)})
		require.NoError(t, err)
		got, err := s.Get(ctx, ref)
		require.NoError(t, err)
		assert.Equal(t, []byte{byte(i)}, got)
	}
}

func TestFSStore_GetUnknownRef(t *testing.T) {
	s := newFS(t)

	_, err := s.Get(context.Background(), "00000000-0000-0000-0000-000000000000")
	assert.ErrorIs(t, err, blob.ErrNotFound)
}

func TestFSStore_DeleteIsIdempotent(t *testing.T) {
	s := newFS(t)
	ctx := context.Background()

	ref, err := s.Put(ctx, []byte("x"))
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, ref))
	require.NoError(t, s.Delete(ctx, ref))

	_, err = s.Get(ctx, ref)
	assert.ErrorIs(t, err, blob.ErrNotFound)
}

func TestFSStore_RejectsTraversalRefs(t *testing.T) {
	root := t.TempDir()
	s, err := blob.NewFSStore(root)
	require.NoError(t, err)

	outside := filepath.Join(root, "..", "secret")
	require.NoError(t, os.WriteFile(outside, []byte("nope"), 0o600))

	_, err = s.Get(context.Background(), "../secret")
	assert.ErrorIs(t, err, blob.ErrNotFound)

	assert.ErrorIs(t, s.Delete(context.Background(), "../secret"), blob.ErrNotFound)
}

func TestFSStore_NoTempLeftovers(t *testing.T) {
	root := t.TempDir()
	s, err := blob.NewFSStore(root)
	require.NoError(t, err)

	ref, err := s.Put(context.Background(), []byte("data"))
	require.NoError(t, err)

	entries, err := os.ReadDir(filepath.Join(root, ref[:2]))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, ref, entries[0].Name())
}
