// File: internal/checkout/handler.go
package checkout

import (
	"context"

	"go.uber.org/zap"

	"github.com/xkilldash9x/checkout-cli/api/schemas"
	"github.com/xkilldash9x/checkout-cli/internal/browser"
	"github.com/xkilldash9x/checkout-cli/internal/config"
	"github.com/xkilldash9x/checkout-cli/internal/sessionstore"
)

// outcomeKind is what a handler tells the process manager to do next.
type outcomeKind int

const (
	// outcomeAdvance: the phase completed, re-classify the page.
	outcomeAdvance outcomeKind = iota
	// outcomeSuccess: the checkout finished. Only the bank OTP handler may
	// return this.
	outcomeSuccess
	// outcomeFailure: the phase failed terminally; err carries the reason.
	outcomeFailure
)

// stepOutcome is a handler's result. Suspension is not an outcome: handlers
// park inside Run via stepEnv.RequestInput and return only once resumed.
type stepOutcome struct {
	kind outcomeKind
	err  error
}

func advance() stepOutcome       { return stepOutcome{kind: outcomeAdvance} }
func succeed() stepOutcome       { return stepOutcome{kind: outcomeSuccess} }
func fail(err error) stepOutcome { return stepOutcome{kind: outcomeFailure, err: err} }

// handler drives one checkout phase. Run blocks for the whole phase,
// including any suspensions for human input, and returns the terminal
// outcome for the phase.
type handler interface {
	Kind() PageKind
	Run(ctx context.Context, env *stepEnv) stepOutcome
}

// stepEnv is everything a handler may touch. Handlers never see the process
// registry; input requests and debug captures go through manager-provided
// closures so all process mutation stays under the manager's lock.
type stepEnv struct {
	drv         browser.Driver
	cfg         config.CheckoutConfig
	log         *zap.Logger
	store       sessionstore.Store
	sessionName string

	// requestInput suspends the process until the caller supplies the
	// requested fields, or the process is aborted.
	requestInput func(ctx context.Context, fields []schemas.InputField) (map[string]string, error)
	// capture asks the debug sink for a screenshot; best effort, never fails
	// the step.
	capture func(ctx context.Context, tag string)
	// recordTotal notes the order total on the process status.
	recordTotal func(total string)
}

// newHandlers builds the dispatch table, one handler per page kind.
func newHandlers() map[PageKind]handler {
	hs := []handler{
		&loginHandler{},
		&addressHandler{},
		&summaryHandler{},
		&paymentHandler{},
		&bankOTPHandler{},
	}
	table := make(map[PageKind]handler, len(hs))
	for _, h := range hs {
		table[h.Kind()] = h
	}
	return table
}

// retry runs fn up to attempts times, stopping early on success or context
// cancellation. Used for handler-local transient errors (fill and click
// misses); the last error is returned once attempts are exhausted.
func retry(ctx context.Context, attempts int, log *zap.Logger, what string, fn func() error) error {
	var err error
	for i := 1; i <= attempts; i++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err = fn(); err == nil {
			return nil
		}
		log.Warn("Step action failed, retrying.",
			zap.String("action", what), zap.Int("attempt", i), zap.Error(err))
	}
	return err
}
