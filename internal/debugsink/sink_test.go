// File: internal/debugsink/sink_test.go
package debugsink

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestFileSinkCapture(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "debug")
	sink, err := NewFileSink(dir, zap.NewNop())
	require.NoError(t, err)

	png := []byte{0x89, 'P', 'N', 'G'}
	ref, err := sink.Capture(context.Background(), "login_entry", "0b5c1a9e-dead-beef-0000-000000000000", png)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(filepath.Base(ref), "0b5c1a9e_login_entry_"))
	assert.True(t, strings.HasSuffix(ref, ".png"))

	content, err := os.ReadFile(ref)
	require.NoError(t, err)
	assert.Equal(t, png, content)
}

func TestFileSinkRejectsEmptyCapture(t *testing.T) {
	sink, err := NewFileSink(t.TempDir(), zap.NewNop())
	require.NoError(t, err)

	_, err = sink.Capture(context.Background(), "tag", "id", nil)
	assert.Error(t, err)
}

func TestFileSinkCanceledContext(t *testing.T) {
	sink, err := NewFileSink(t.TempDir(), zap.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = sink.Capture(ctx, "tag", "id", []byte("x"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNopSink(t *testing.T) {
	ref, err := NopSink{}.Capture(context.Background(), "tag", "id", []byte("x"))
	assert.NoError(t, err)
	assert.Empty(t, ref)
}
