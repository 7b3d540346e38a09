package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLocalPutOpenExists(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocal(t.TempDir())
	require.NoError(t, err)

	exists, err := store.Exists(ctx, "beats/mp3/track.mp3")
	require.NoError(t, err)
	require.False(t, exists)

	data := []byte("ID3-fake-audio")
	require.NoError(t, store.Put(ctx, "beats/mp3/track.mp3", bytes.NewReader(data), int64(len(data)), "audio/mpeg"))

	exists, err = store.Exists(ctx, "beats/mp3/track.mp3")
	require.NoError(t, err)
	require.True(t, exists)

	obj, err := store.Open(ctx, "beats/mp3/track.mp3")
	require.NoError(t, err)
	defer obj.Body.Close()
	got, err := io.ReadAll(obj.Body)
	require.NoError(t, err)
	require.Equal(t, data, got)
	require.Equal(t, int64(len(data)), obj.Size)
}

func TestLocalOpenMissingReturnsNotFound(t *testing.T) {
	store, err := NewLocal(t.TempDir())
	require.NoError(t, err)

	_, err = store.Open(context.Background(), "beats/wav/missing.wav")
	require.True(t, errors.Is(err, ErrNotFound))
}

func TestLocalRejectsTraversal(t *testing.T) {
	root := t.TempDir()
	outside := filepath.Join(filepath.Dir(root), "secret.txt")
	require.NoError(t, os.WriteFile(outside, []byte("nope"), 0o644))
	t.Cleanup(func() { _ = os.Remove(outside) })

	store, err := NewLocal(root)
	require.NoError(t, err)

	_, err = store.Open(context.Background(), "../secret.txt")
	require.True(t, errors.Is(err, ErrInvalidKey))
	_, err = store.Exists(context.Background(), "beats/../../secret.txt")
	require.True(t, errors.Is(err, ErrInvalidKey))
}

func TestCleanKey(t *testing.T) {
	got, err := CleanKey("/beats//stems/a.zip")
	require.NoError(t, err)
	require.Equal(t, "beats/stems/a.zip", got)

	for _, bad := range []string{"", "  ", "/", "..", "a/../../b"} {
		_, err := CleanKey(bad)
		require.Error(t, err, "key %q", bad)
	}
}

func TestLocalWalkListsFiles(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocal(t.TempDir())
	require.NoError(t, err)
	for _, key := range []string{"covers/a.jpg", "beats/mp3/a.mp3"} {
		require.NoError(t, store.Put(ctx, key, bytes.NewReader([]byte("x")), 1, ""))
	}

	var keys []string
	require.NoError(t, store.Walk(ctx, func(key string) error {
		keys = append(keys, key)
		return nil
	}))
	sort.Strings(keys)
	require.Equal(t, []string{"beats/mp3/a.mp3", "covers/a.jpg"}, keys)
	require.NoError(t, store.Ping(ctx))
}
