// File: internal/checkout/step_bankotp.go
package checkout

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/checkout-cli/api/schemas"
)

const (
	bankOTPInputSelector = `input#otpValue[type="password"], input[type="password"], input[type="tel"], input[name*="otp" i], input[id*="otp" i]`
	bankConfirmText      = `^\s*(CONFIRM|SUBMIT|PAY)\s*$`

	bankSuccessText = `(payment|transaction|order).{0,40}(successful|confirmed|complete)|thank you for your (order|purchase)`
	bankRejectText  = `(incorrect|invalid|wrong).{0,20}(otp|code|password)|(transaction|payment).{0,30}(declined|failed|unsuccessful)|authentication failed`
)

// bankOTPHandler drives the bank's 3-D Secure page: waits for the OTP field
// (these pages render slowly), suspends for the code, submits it, and reads
// the result page. Only an explicit success marker completes the checkout;
// an explicit rejection fails it, and anything else escalates as ambiguous
// for manual review.
type bankOTPHandler struct{}

func (h *bankOTPHandler) Kind() PageKind { return KindBankOTP }

func (h *bankOTPHandler) Run(ctx context.Context, env *stepEnv) stepOutcome {
	log := env.log.Named("bank_otp")
	env.capture(ctx, "bank_otp_entry")

	if err := env.drv.WaitVisible(ctx, bankOTPInputSelector, env.cfg.BankOTPWait); err != nil {
		env.capture(ctx, "bank_otp_field_missing")
		return fail(fmt.Errorf("bank OTP field never appeared: %w", ErrStepTimeout))
	}

	vals, err := env.requestInput(ctx, []schemas.InputField{{
		Name:   "otp",
		Prompt: "Enter the OTP sent by your bank",
		Secret: true,
	}})
	if err != nil {
		return fail(err)
	}

	err = retry(ctx, env.cfg.StepAttempts, log, "submit bank OTP", func() error {
		if err := env.drv.Fill(ctx, bankOTPInputSelector, vals["otp"]); err != nil {
			return err
		}
		return clickText(ctx, env.drv, bankConfirmText)
	})
	wipeValues(vals)
	if err != nil {
		env.capture(ctx, "bank_otp_submit_error")
		return fail(fmt.Errorf("failed to submit bank OTP: %w", err))
	}
	env.capture(ctx, "bank_otp_submitted")

	return h.awaitResult(ctx, env, log)
}

// awaitResult polls the result page for an explicit verdict within the bank
// wait window.
func (h *bankOTPHandler) awaitResult(ctx context.Context, env *stepEnv, log *zap.Logger) stepOutcome {
	deadline := time.Now().Add(env.cfg.BankOTPWait)
	for time.Now().Before(deadline) {
		if ok, err := textVisible(ctx, env.drv, bankSuccessText); err == nil && ok {
			log.Info("Bank confirmed the payment.")
			env.capture(ctx, "order_confirmed")
			return succeed()
		}
		if ok, err := textVisible(ctx, env.drv, bankRejectText); err == nil && ok {
			log.Warn("Bank rejected the payment.")
			env.capture(ctx, "bank_rejected")
			return fail(fmt.Errorf("bank rejected the verification"))
		}
		select {
		case <-time.After(2 * time.Second):
		case <-ctx.Done():
			return fail(ctx.Err())
		}
	}

	log.Warn("Bank result page showed neither success nor rejection.")
	env.capture(ctx, "bank_result_ambiguous")
	return fail(fmt.Errorf("no verdict within %v: %w", env.cfg.BankOTPWait, ErrAmbiguousBankResult))
}
