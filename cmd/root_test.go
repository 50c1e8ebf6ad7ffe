// File: cmd/root_test.go
package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCmd_VersionFlag(t *testing.T) {
	out, err := runCommand("--version")
	require.NoError(t, err)
	assert.Contains(t, out, "checkout-cli version "+Version)
}

func TestRootCmd_NoArgs(t *testing.T) {
	out, err := runCommand()
	require.NoError(t, err)
	assert.Contains(t, out, "multi-stage e-commerce checkout")
}

func TestRootCmd_BadConfigFile(t *testing.T) {
	_, err := runCommand("--config", "/no/such/config.yaml", "sessions", "list")
	require.Error(t, err)
}

func TestBuyCmd_RequiresProductURL(t *testing.T) {
	t.Setenv("CHECKOUT_STORE_DATA_DIR", t.TempDir())
	_, err := runCommand("buy")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg")
}
