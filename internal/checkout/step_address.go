// File: internal/checkout/step_address.go
package checkout

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/checkout-cli/api/schemas"
)

const (
	viewAllAddressesText = `View all \d+ addresses`
	deliverHereText      = `^\s*Deliver Here\s*$`
)

// addressHandler enumerates the saved delivery addresses, suspends for the
// caller's choice, and confirms it. An out-of-range or non-numeric choice is
// a terminal failure, not a retry: the presented list was valid, so a bad
// index means the caller and the process disagree about the page.
type addressHandler struct{}

func (h *addressHandler) Kind() PageKind { return KindAddress }

func (h *addressHandler) Run(ctx context.Context, env *stepEnv) stepOutcome {
	log := env.log.Named("address")
	env.capture(ctx, "address_entry")

	h.revealAll(ctx, env, log)

	var addresses []addressOption
	err := retry(ctx, env.cfg.StepAttempts, log, "enumerate addresses", func() error {
		var err error
		addresses, err = listAddresses(ctx, env.drv)
		if err != nil {
			return err
		}
		if len(addresses) == 0 {
			return fmt.Errorf("no address blocks found")
		}
		return nil
	})
	if err != nil {
		env.capture(ctx, "address_enumeration_error")
		return fail(fmt.Errorf("could not retrieve delivery addresses: %w", err))
	}
	log.Info("Addresses enumerated.", zap.Int("count", len(addresses)))

	options := make([]string, len(addresses))
	for i, addr := range addresses {
		options[i] = fmt.Sprintf("%s: %s", addr.Name, addr.Text)
	}

	vals, err := env.requestInput(ctx, []schemas.InputField{{
		Name:    "selectedAddressIndex",
		Prompt:  fmt.Sprintf("Select a delivery address (0-%d)", len(addresses)-1),
		Options: options,
	}})
	if err != nil {
		return fail(err)
	}

	idx, convErr := strconv.Atoi(vals["selectedAddressIndex"])
	if convErr != nil || idx < 0 || idx >= len(addresses) {
		env.capture(ctx, "address_invalid_selection")
		return fail(fmt.Errorf("selection %q not in range 0-%d: %w",
			vals["selectedAddressIndex"], len(addresses)-1, ErrInvalidSelection))
	}
	log.Info("Address selected.", zap.Int("index", idx), zap.String("name", addresses[idx].Name))

	err = retry(ctx, env.cfg.StepAttempts, log, "confirm address", func() error {
		if err := clickAddress(ctx, env.drv, idx); err != nil {
			return err
		}
		return clickText(ctx, env.drv, deliverHereText)
	})
	if err != nil {
		env.capture(ctx, "address_confirm_error")
		return fail(fmt.Errorf("failed to confirm address: %w", err))
	}

	env.capture(ctx, "address_exit")
	return advance()
}

// revealAll clicks the "View all N addresses" control when present so the
// enumeration sees the full list. Best effort.
func (h *addressHandler) revealAll(ctx context.Context, env *stepEnv, log *zap.Logger) {
	visible, err := textVisible(ctx, env.drv, viewAllAddressesText)
	if err != nil || !visible {
		return
	}
	if err := clickText(ctx, env.drv, viewAllAddressesText); err != nil {
		log.Debug("Could not expand address list.", zap.Error(err))
		return
	}
	log.Debug("Expanded the full address list.")
	// Give the revealed entries a moment to render.
	select {
	case <-time.After(1500 * time.Millisecond):
	case <-ctx.Done():
	}
}
