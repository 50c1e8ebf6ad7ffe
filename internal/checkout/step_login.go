// File: internal/checkout/step_login.go
package checkout

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/checkout-cli/api/schemas"
)

const (
	phoneInputSelector = `input[type="text"][autocomplete="off"]`
	otpInputSelector   = `input[type="text"][maxlength="6"]`

	continueButtonText = `^\s*CONTINUE\s*$`
	loginButtonText    = `^\s*(LOGIN|SIGNUP)\s*$`
)

// loginHandler submits the phone number, then loops OTP entry attempts,
// settling each attempt on the intercepted login-API response rather than
// the rendered page. On success the authenticated session is persisted when
// the process carries a session name.
type loginHandler struct{}

func (h *loginHandler) Kind() PageKind { return KindLogin }

func (h *loginHandler) Run(ctx context.Context, env *stepEnv) stepOutcome {
	log := env.log.Named("login")
	env.capture(ctx, "login_entry")

	phone := env.cfg.PhoneNumber
	if phone == "" {
		vals, err := env.requestInput(ctx, []schemas.InputField{{
			Name:   "phone",
			Prompt: "Enter your registered email or mobile number",
		}})
		if err != nil {
			return fail(err)
		}
		phone = vals["phone"]
	}

	err := retry(ctx, env.cfg.StepAttempts, log, "submit phone", func() error {
		if err := env.drv.Fill(ctx, phoneInputSelector, phone); err != nil {
			return err
		}
		return clickText(ctx, env.drv, continueButtonText)
	})
	if err != nil {
		env.capture(ctx, "login_phone_error")
		return fail(fmt.Errorf("failed to submit phone number: %w", err))
	}

	if err := env.drv.WaitVisible(ctx, otpInputSelector, env.cfg.StepTimeout); err != nil {
		env.capture(ctx, "login_otp_field_missing")
		return fail(fmt.Errorf("OTP entry field never appeared: %w", ErrStepTimeout))
	}

	for attempt := 1; attempt <= env.cfg.OTPAttempts; attempt++ {
		log.Info("Requesting login OTP from caller.",
			zap.Int("attempt", attempt), zap.Int("max_attempts", env.cfg.OTPAttempts))

		vals, err := env.requestInput(ctx, []schemas.InputField{{
			Name:   "otp",
			Prompt: fmt.Sprintf("Enter the OTP you received (attempt %d of %d)", attempt, env.cfg.OTPAttempts),
			Secret: true,
		}})
		if err != nil {
			return fail(err)
		}

		if err := env.drv.Fill(ctx, otpInputSelector, vals["otp"]); err != nil {
			env.capture(ctx, "login_otp_fill_error")
			return fail(fmt.Errorf("failed to fill OTP: %w", err))
		}

		// Arm interception before the click; the response can arrive faster
		// than a post-click listener would attach.
		validator, err := armOTPValidator(ctx, env.drv, env.cfg.OTPWindow, log)
		if err != nil {
			return fail(err)
		}

		if err := clickText(ctx, env.drv, loginButtonText); err != nil {
			validator.Close()
			env.capture(ctx, "login_submit_error")
			return fail(fmt.Errorf("failed to click login: %w", err))
		}

		verdict := validator.Await(ctx)
		validator.Close()

		switch verdict {
		case otpSuccess:
			log.Info("Login confirmed by API response.")
			h.persistSession(ctx, env, log)
			env.capture(ctx, "login_success")
			return advance()
		case otpIncorrect:
			log.Warn("OTP incorrect.", zap.Int("attempt", attempt))
			// loop: re-request from the caller
		case otpFailed:
			env.capture(ctx, "login_api_failure")
			return fail(fmt.Errorf("login API rejected the attempt"))
		case otpTimeout:
			env.capture(ctx, "login_api_timeout")
			return fail(fmt.Errorf("no login API response: %w", ErrStepTimeout))
		}
	}

	env.capture(ctx, "login_attempts_exhausted")
	return fail(fmt.Errorf("%d OTP attempts rejected: %w", env.cfg.OTPAttempts, ErrAuthenticationFailed))
}

// persistSession saves the authenticated storage state under the process's
// session name. Failures are logged, not fatal: the checkout is already
// authenticated and should proceed.
func (h *loginHandler) persistSession(ctx context.Context, env *stepEnv, log *zap.Logger) {
	if env.sessionName == "" || env.store == nil {
		return
	}
	blob, err := env.drv.StorageState(ctx)
	if err != nil {
		log.Warn("Failed to export session state.", zap.Error(err))
		return
	}
	if err := env.store.Save(ctx, env.sessionName, blob); err != nil {
		log.Warn("Failed to persist session.", zap.String("session", env.sessionName), zap.Error(err))
		return
	}
	log.Info("Session persisted.", zap.String("session", env.sessionName))
}
