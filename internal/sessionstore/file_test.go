// File: internal/sessionstore/file_test.go
package sessionstore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestFileStore(t *testing.T) *FileStore {
	t.Helper()
	store, err := NewFileStore(filepath.Join(t.TempDir(), "sessions"), zap.NewNop())
	require.NoError(t, err)
	return store
}

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "alice", "alice"},
		{"spaces become underscores", "my main account", "my_main_account"},
		{"hostile characters stripped", `a\b/c*d?e"f<g>h|i:j`, "abcdefghij"},
		{"length capped", "0123456789012345678901234567890123456789012345678901234", "01234567890123456789012345678901234567890123456789"},
		{"empty stays empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeName(tt.in))
		})
	}
}

func TestFileStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestFileStore(t)

	blob := []byte(`{"cookies":[{"name":"SESSION","value":"abc"}]}`)
	require.NoError(t, store.Save(ctx, "my account", blob))

	loaded, err := store.Load(ctx, "my account")
	require.NoError(t, err)
	assert.Equal(t, blob, loaded)

	// Save replaces the previous blob for the same name.
	blob2 := []byte(`{"cookies":[]}`)
	require.NoError(t, store.Save(ctx, "my account", blob2))
	loaded, err = store.Load(ctx, "my account")
	require.NoError(t, err)
	assert.Equal(t, blob2, loaded)
}

func TestFileStoreLoadMissing(t *testing.T) {
	store := newTestFileStore(t)
	_, err := store.Load(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFileStoreList(t *testing.T) {
	ctx := context.Background()
	store := newTestFileStore(t)

	require.NoError(t, store.Save(ctx, "beta", []byte("b")))
	require.NoError(t, store.Save(ctx, "alpha", []byte("a")))

	sessions, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, "alpha", sessions[0].Name)
	assert.Equal(t, "beta", sessions[1].Name)
	assert.Equal(t, int64(1), sessions[0].SizeBytes)
	assert.False(t, sessions[0].ModifiedAt.IsZero())
}

func TestFileStoreListIgnoresStrays(t *testing.T) {
	ctx := context.Background()
	store := newTestFileStore(t)
	require.NoError(t, store.Save(ctx, "real", []byte("x")))

	// Leftover temp files and unrelated entries are not sessions.
	require.NoError(t, os.WriteFile(filepath.Join(store.dir, ".session-123.tmp"), []byte("junk"), 0o600))
	require.NoError(t, os.MkdirAll(filepath.Join(store.dir, "subdir"), 0o700))

	sessions, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "real", sessions[0].Name)
}

func TestFileStoreDelete(t *testing.T) {
	ctx := context.Background()
	store := newTestFileStore(t)

	require.NoError(t, store.Save(ctx, "gone", []byte("x")))
	require.NoError(t, store.Delete(ctx, "gone"))

	_, err := store.Load(ctx, "gone")
	assert.ErrorIs(t, err, ErrNotFound)

	err = store.Delete(ctx, "gone")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFileStoreCanceledContext(t *testing.T) {
	store := newTestFileStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Error(t, store.Save(ctx, "x", []byte("x")))
	_, err := store.Load(ctx, "x")
	assert.True(t, errors.Is(err, context.Canceled))
}
