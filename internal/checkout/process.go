// File: internal/checkout/process.go
package checkout

import (
	"context"
	"time"

	"github.com/xkilldash9x/checkout-cli/api/schemas"
)

// phaseOrdinal encodes the strict forward order of checkout phases. The
// manager uses it to refuse phase regression: once a later phase has
// executed, classifying an earlier one means the session was invalidated
// mid-flow, and retrying across phase boundaries is forbidden.
var phaseOrdinal = map[PageKind]int{
	KindLogin:   1,
	KindAddress: 2,
	KindSummary: 3,
	KindPayment: 4,
	KindBankOTP: 5,
}

// phaseOf maps a classified page kind to the externally visible phase tag.
func phaseOf(kind PageKind) schemas.Phase {
	switch kind {
	case KindLogin:
		return schemas.PhaseLogin
	case KindAddress:
		return schemas.PhaseAddress
	case KindSummary:
		return schemas.PhaseSummary
	case KindPayment:
		return schemas.PhasePayment
	case KindBankOTP:
		return schemas.PhaseBankOTP
	default:
		return schemas.PhaseClassifying
	}
}

// Process is the manager-owned record of one checkout attempt. All fields
// are guarded by the manager's lock; nothing outside the manager mutates
// them. The externally visible view is the snapshot.
type Process struct {
	ID          string
	ProductURL  string
	SessionName string

	phase        schemas.Phase
	status       schemas.ProcessStatus
	pending      *schemas.InputRequest
	history      []schemas.Transition
	lastErr      error
	lastCapture  string
	productTitle string
	orderTotal   string

	startedAt time.Time
	updatedAt time.Time
	doneAt    time.Time

	// highWater is the highest phase ordinal that has started executing.
	highWater int

	// input carries one satisfied input request at a time. Buffer size 1 is
	// an invariant: SubmitInput only sends while a request is pending, and
	// clearing the pending request under the lock makes a double send
	// impossible.
	input  chan map[string]string
	cancel context.CancelFunc
}

func newProcess(id, productURL, sessionName string, cancel context.CancelFunc) *Process {
	now := time.Now()
	return &Process{
		ID:          id,
		ProductURL:  productURL,
		SessionName: sessionName,
		phase:       schemas.PhaseInitializing,
		status:      schemas.StatusRunning,
		startedAt:   now,
		updatedAt:   now,
		input:       make(chan map[string]string, 1),
		cancel:      cancel,
	}
}

// transition appends a history entry and moves the process to the new
// status. Caller holds the manager lock.
func (p *Process) transition(to schemas.ProcessStatus, note string) {
	now := time.Now()
	p.history = append(p.history, schemas.Transition{
		From:      p.status,
		To:        to,
		Phase:     p.phase,
		Note:      note,
		Timestamp: now,
	})
	p.status = to
	p.updatedAt = now
	if to.Terminal() {
		p.doneAt = now
		p.pending = nil
	}
}

// snapshot renders the externally visible view. Caller holds the manager
// lock (read or write).
func (p *Process) snapshot() schemas.ProcessSnapshot {
	snap := schemas.ProcessSnapshot{
		ID:             p.ID,
		ProductURL:     p.ProductURL,
		ProductTitle:   p.productTitle,
		OrderTotal:     p.orderTotal,
		SessionName:    p.SessionName,
		Phase:          p.phase,
		Status:         p.status,
		History:        append([]schemas.Transition(nil), p.history...),
		LastCaptureRef: p.lastCapture,
		StartedAt:      p.startedAt,
		UpdatedAt:      p.updatedAt,
	}
	if p.lastErr != nil {
		snap.LastError = FailureReason(p.lastErr)
	}
	if p.pending != nil {
		req := *p.pending
		req.Fields = append([]schemas.InputField(nil), p.pending.Fields...)
		snap.PendingInput = &req
	}
	return snap
}

// terminated reports whether the process accepts no further actions.
// Caller holds the manager lock.
func (p *Process) terminated() bool {
	return p.status.Terminal()
}
