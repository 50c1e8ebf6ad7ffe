// File: internal/checkout/errors.go
package checkout

import "errors"

// Failure taxonomy for the checkout flow. Handlers and the process manager
// wrap these with context via %w; callers classify with errors.Is.
var (
	// ErrClassificationTimeout: no recognizable page state within the
	// configured polling window and attempt ceiling.
	ErrClassificationTimeout = errors.New("classification timeout")

	// ErrAuthenticationFailed: login OTP retries exhausted.
	ErrAuthenticationFailed = errors.New("authentication failed")

	// ErrInvalidSelection: an out-of-range or non-numeric address choice.
	ErrInvalidSelection = errors.New("invalid selection")

	// ErrStepTimeout: a bounded driver wait elapsed.
	ErrStepTimeout = errors.New("step timeout")

	// ErrWrongPhaseInput: input submitted for a phase the process is not
	// suspended in.
	ErrWrongPhaseInput = errors.New("input does not match the awaited phase")

	// ErrProcessTerminated: an action on a process that already reached a
	// terminal status (or was reaped).
	ErrProcessTerminated = errors.New("process terminated")

	// ErrSessionCorrupt: a stored session blob failed to load or apply.
	ErrSessionCorrupt = errors.New("stored session corrupt")

	// ErrAmbiguousBankResult: the bank page neither confirmed nor explicitly
	// rejected the payment. Always escalated for manual review, never
	// guessed as success.
	ErrAmbiguousBankResult = errors.New("ambiguous bank verification result")
)

// FailureReason renders the human-readable reason recorded on a failed
// process.
func FailureReason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrClassificationTimeout):
		return "no recognizable page state within the allotted window"
	case errors.Is(err, ErrAuthenticationFailed):
		return "login failed: OTP attempts exhausted"
	case errors.Is(err, ErrInvalidSelection):
		return "address selection out of range"
	case errors.Is(err, ErrStepTimeout):
		return "timed out waiting on the page"
	case errors.Is(err, ErrSessionCorrupt):
		return "stored session could not be applied"
	case errors.Is(err, ErrAmbiguousBankResult):
		return "bank result unclear; manual review required"
	default:
		return err.Error()
	}
}
