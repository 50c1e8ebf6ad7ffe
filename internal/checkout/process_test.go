// File: internal/checkout/process_test.go
package checkout

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/checkout-cli/api/schemas"
)

func TestProcessTransitionHistory(t *testing.T) {
	p := newProcess("p1", "https://www.flipkart.com/p/x", "default", func() {})

	p.transition(schemas.StatusAwaitingInput, "awaiting otp")
	p.transition(schemas.StatusRunning, "input received")
	p.transition(schemas.StatusSucceeded, "")

	want := []schemas.Transition{
		{From: schemas.StatusRunning, To: schemas.StatusAwaitingInput, Phase: schemas.PhaseInitializing, Note: "awaiting otp"},
		{From: schemas.StatusAwaitingInput, To: schemas.StatusRunning, Phase: schemas.PhaseInitializing, Note: "input received"},
		{From: schemas.StatusRunning, To: schemas.StatusSucceeded, Phase: schemas.PhaseInitializing},
	}
	if diff := cmp.Diff(want, p.history, cmpopts.IgnoreFields(schemas.Transition{}, "Timestamp")); diff != "" {
		t.Errorf("history mismatch (-want +got):\n%s", diff)
	}
	assert.True(t, p.terminated())
	assert.False(t, p.doneAt.IsZero())
}

func TestTerminalTransitionClearsPending(t *testing.T) {
	p := newProcess("p2", "https://www.flipkart.com/p/x", "", func() {})
	p.pending = &schemas.InputRequest{
		Phase:     schemas.PhaseLogin,
		Fields:    []schemas.InputField{{Name: "otp", Secret: true}},
		CreatedAt: time.Now(),
	}

	p.transition(schemas.StatusAborted, "aborted by caller")
	assert.Nil(t, p.pending)
	assert.Nil(t, p.snapshot().PendingInput)
}

func TestSnapshotIsolatedFromProcess(t *testing.T) {
	p := newProcess("p3", "https://www.flipkart.com/p/x", "", func() {})
	p.pending = &schemas.InputRequest{
		Phase:  schemas.PhaseAddress,
		Fields: []schemas.InputField{{Name: "selectedAddressIndex"}},
	}
	p.transition(schemas.StatusAwaitingInput, "awaiting selectedAddressIndex")

	snap := p.snapshot()
	require.NotNil(t, snap.PendingInput)
	snap.PendingInput.Fields[0].Name = "mutated"
	snap.History[0].Note = "mutated"

	assert.Equal(t, "selectedAddressIndex", p.pending.Fields[0].Name)
	assert.Equal(t, "awaiting selectedAddressIndex", p.history[0].Note)
}
