// File: cmd/sessions_test.go
package cmd

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/checkout-cli/internal/sessionstore"
)

func TestSessionsList_Empty(t *testing.T) {
	t.Setenv("CHECKOUT_STORE_DATA_DIR", t.TempDir())

	out, err := runCommand("sessions", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "No stored sessions.")
}

func TestSessionsList_ShowsStoredSessions(t *testing.T) {
	dataDir := t.TempDir()
	t.Setenv("CHECKOUT_STORE_DATA_DIR", dataDir)

	store, err := sessionstore.NewFileStore(filepath.Join(dataDir, "sessions"), zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, store.Save(context.Background(), "default", []byte(`{"cookies":[]}`)))

	out, err := runCommand("sessions", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "default")
	assert.Contains(t, out, "NAME")
}

func TestSessionsDelete(t *testing.T) {
	dataDir := t.TempDir()
	t.Setenv("CHECKOUT_STORE_DATA_DIR", dataDir)

	store, err := sessionstore.NewFileStore(filepath.Join(dataDir, "sessions"), zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, store.Save(context.Background(), "work", []byte(`{"cookies":[]}`)))

	out, err := runCommand("sessions", "delete", "work")
	require.NoError(t, err)
	assert.Contains(t, out, `Deleted session "work".`)

	_, err = store.Load(context.Background(), "work")
	assert.ErrorIs(t, err, sessionstore.ErrNotFound)
}

func TestSessionsDelete_Missing(t *testing.T) {
	t.Setenv("CHECKOUT_STORE_DATA_DIR", t.TempDir())

	_, err := runCommand("sessions", "delete", "nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no stored session")
}
