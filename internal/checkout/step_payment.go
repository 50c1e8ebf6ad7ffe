// File: internal/checkout/step_payment.go
package checkout

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/checkout-cli/api/schemas"
)

const (
	cardOptionText = `Credit\s*/\s*Debit\s*/\s*ATM\s*Card`
	payButtonText  = `^\s*PAY\s*₹`
	maybeLaterText = `^\s*Maybe later\s*$`

	cardNumberSelector   = `input[name="cardNumber"], input[autocomplete="cc-number"]`
	cvvSelector          = `input[name="cvv"], input#cvv-input`
	nameOnCardSelector   = `input[name="nameOnCard"], input[autocomplete="cc-name"]`
	combinedExpirySelect = `input[autocomplete="cc-exp"]`
	monthSelectSelector  = `select[name="month"]`
	yearSelectSelector   = `select[name="year"]`
)

// paymentHandler selects the card payment method, adapts to the two expiry
// layouts the form ships with (a single MM/YY input or month and year
// dropdowns), fills the caller-supplied card, and submits. Card values are
// wiped from memory once the form is filled and never recorded anywhere.
type paymentHandler struct{}

func (h *paymentHandler) Kind() PageKind { return KindPayment }

func (h *paymentHandler) Run(ctx context.Context, env *stepEnv) stepOutcome {
	log := env.log.Named("payment")
	env.capture(ctx, "payment_entry")

	err := retry(ctx, env.cfg.StepAttempts, log, "select card option", func() error {
		return clickTextAncestor(ctx, env.drv, cardOptionText)
	})
	if err != nil {
		env.capture(ctx, "payment_option_error")
		return fail(fmt.Errorf("could not select the card payment option: %w", err))
	}

	if err := env.drv.WaitVisible(ctx, cardNumberSelector, env.cfg.StepTimeout); err != nil {
		env.capture(ctx, "payment_form_missing")
		return fail(fmt.Errorf("card form never appeared: %w", ErrStepTimeout))
	}

	combinedLayout, err := env.drv.Visible(ctx, combinedExpirySelect)
	if err != nil {
		combinedLayout = false
	}
	log.Info("Card form detected.", zap.Bool("combined_expiry", combinedLayout))

	expiryPrompt := "Expiry month and year (MM/YY)"
	vals, err := env.requestInput(ctx, []schemas.InputField{
		{Name: "cardNumber", Prompt: "Card number", Secret: true},
		{Name: "expiry", Prompt: expiryPrompt},
		{Name: "cvv", Prompt: "CVV", Secret: true},
		{Name: "name", Prompt: "Name on card"},
	})
	if err != nil {
		return fail(err)
	}
	// Drop the secrets as soon as the form is filled, whatever the outcome.
	defer wipeValues(vals)

	month, year, parseErr := normalizeExpiry(vals["expiry"])
	if parseErr != nil {
		env.capture(ctx, "payment_bad_expiry")
		return fail(fmt.Errorf("expiry %w", parseErr))
	}

	if err := h.fillCard(ctx, env, vals, combinedLayout, month, year); err != nil {
		env.capture(ctx, "payment_fill_error")
		return fail(fmt.Errorf("failed to fill card form: %w", err))
	}
	log.Info("Card form filled.")

	err = retry(ctx, env.cfg.StepAttempts, log, "click pay", func() error {
		return clickText(ctx, env.drv, payButtonText)
	})
	if err != nil {
		env.capture(ctx, "payment_pay_error")
		return fail(fmt.Errorf("failed to click pay: %w", err))
	}

	h.dismissSaveCard(ctx, env, log)
	env.capture(ctx, "payment_exit")
	return advance()
}

func (h *paymentHandler) fillCard(ctx context.Context, env *stepEnv, vals map[string]string, combined bool, month, year string) error {
	if err := env.drv.Fill(ctx, cardNumberSelector, vals["cardNumber"]); err != nil {
		return err
	}
	if err := env.drv.Fill(ctx, cvvSelector, vals["cvv"]); err != nil {
		return err
	}
	if name := vals["name"]; name != "" {
		if visible, _ := env.drv.Visible(ctx, nameOnCardSelector); visible {
			if err := env.drv.Fill(ctx, nameOnCardSelector, name); err != nil {
				return err
			}
		}
	}
	if combined {
		return env.drv.Fill(ctx, combinedExpirySelect, month+" / "+year)
	}
	if err := env.drv.SelectOption(ctx, monthSelectSelector, month); err != nil {
		return err
	}
	return env.drv.SelectOption(ctx, yearSelectSelector, year)
}

// dismissSaveCard clears the save-card prompt that sometimes follows the pay
// click. Its absence is the normal case.
func (h *paymentHandler) dismissSaveCard(ctx context.Context, env *stepEnv, log *zap.Logger) {
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		visible, err := textVisible(ctx, env.drv, maybeLaterText)
		if err == nil && visible {
			if err := clickText(ctx, env.drv, maybeLaterText); err == nil {
				log.Info("Dismissed the save-card prompt.")
			}
			return
		}
		select {
		case <-time.After(time.Second):
		case <-ctx.Done():
			return
		}
	}
}

var expiryPattern = regexp.MustCompile(`^\s*(\d{2})\s*/?\s*(\d{2})\s*$`)

// normalizeExpiry parses "MM/YY", "MM / YY" or "MMYY" into its components,
// validating the month range.
func normalizeExpiry(expiry string) (month, year string, err error) {
	m := expiryPattern.FindStringSubmatch(expiry)
	if m == nil {
		return "", "", fmt.Errorf("must be MM/YY")
	}
	month, year = m[1], m[2]
	if month < "01" || month > "12" {
		return "", "", fmt.Errorf("month %s out of range", month)
	}
	return month, year, nil
}

// wipeValues overwrites submitted secrets so they do not linger in the input
// map after the step completes.
func wipeValues(vals map[string]string) {
	for k := range vals {
		vals[k] = ""
	}
}
