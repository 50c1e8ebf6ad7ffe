package schemas

import "time"

// -- Checkout Process Lifecycle Schemas --

// ProcessStatus describes where a checkout process is in its lifecycle.
type ProcessStatus string

const (
	StatusRunning       ProcessStatus = "RUNNING"
	StatusAwaitingInput ProcessStatus = "AWAITING_INPUT"
	StatusSucceeded     ProcessStatus = "SUCCEEDED"
	StatusFailed        ProcessStatus = "FAILED"
	StatusAborted       ProcessStatus = "ABORTED"
)

// Terminal reports whether the status accepts no further transitions.
func (s ProcessStatus) Terminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusAborted:
		return true
	}
	return false
}

// Phase identifies a stage of the checkout flow.
type Phase string

const (
	PhaseInitializing Phase = "INITIALIZING"
	PhaseClassifying  Phase = "CLASSIFYING"
	PhaseLogin        Phase = "LOGIN"
	PhaseAddress      Phase = "ADDRESS"
	PhaseSummary      Phase = "SUMMARY"
	PhasePayment      Phase = "PAYMENT"
	PhaseBankOTP      Phase = "BANK_OTP"
)

// InputField names one value a suspended process is waiting for. Options,
// when present, enumerate the legal choices (e.g. saved addresses).
type InputField struct {
	Name    string   `json:"name"`
	Prompt  string   `json:"prompt"`
	Secret  bool     `json:"secret,omitempty"`
	Options []string `json:"options,omitempty"`
}

// InputRequest is the full set of fields a process needs before it can
// resume. A request is satisfied by exactly one submission carrying every
// named field.
type InputRequest struct {
	Phase     Phase        `json:"phase"`
	Fields    []InputField `json:"fields"`
	CreatedAt time.Time    `json:"created_at"`
}

// Transition is one entry in a process's history.
type Transition struct {
	From      ProcessStatus `json:"from"`
	To        ProcessStatus `json:"to"`
	Phase     Phase         `json:"phase"`
	Note      string        `json:"note,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

// ProcessSnapshot is the externally visible view of one checkout process.
// Card values never appear here.
type ProcessSnapshot struct {
	ID             string        `json:"id"`
	ProductURL     string        `json:"product_url"`
	ProductTitle   string        `json:"product_title,omitempty"`
	OrderTotal     string        `json:"order_total,omitempty"`
	SessionName    string        `json:"session_name,omitempty"`
	Phase          Phase         `json:"phase"`
	Status         ProcessStatus `json:"status"`
	PendingInput   *InputRequest `json:"pending_input,omitempty"`
	History        []Transition  `json:"history"`
	LastError      string        `json:"last_error,omitempty"`
	LastCaptureRef string        `json:"last_capture_ref,omitempty"`
	StartedAt      time.Time     `json:"started_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// SessionInfo describes one stored login session.
type SessionInfo struct {
	Name       string    `json:"name"`
	ModifiedAt time.Time `json:"modified_at"`
	SizeBytes  int64     `json:"size_bytes"`
}
