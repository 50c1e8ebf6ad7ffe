// File: internal/checkout/otpcheck.go
package checkout

import (
	"context"
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/checkout-cli/internal/browser"
)

// otpAPIEndpoint is the login verification endpoint whose response settles
// an OTP attempt regardless of what the UI renders.
const otpAPIEndpoint = "/api/1/user/login/otp"

var jsonCodec = jsoniter.ConfigCompatibleWithStandardLibrary

// otpVerdict classifies the outcome of one OTP submission.
type otpVerdict int

const (
	otpSuccess otpVerdict = iota
	otpIncorrect
	otpFailed
	otpTimeout
)

func (v otpVerdict) String() string {
	switch v {
	case otpSuccess:
		return "success"
	case otpIncorrect:
		return "incorrect"
	case otpFailed:
		return "failed"
	default:
		return "timeout"
	}
}

// otpValidator watches intercepted login-API responses for one attempt.
// It must be armed BEFORE the submit click so the response cannot slip past
// between click and listen.
type otpValidator struct {
	responses <-chan browser.InterceptedResponse
	stop      func()
	window    time.Duration
	log       *zap.Logger
}

// armOTPValidator starts interception of the login verification endpoint.
// Callers must invoke Close when the login phase ends.
func armOTPValidator(ctx context.Context, drv browser.Driver, window time.Duration, logger *zap.Logger) (*otpValidator, error) {
	responses, stop, err := drv.InterceptResponse(ctx, otpAPIEndpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to arm OTP response interception: %w", err)
	}
	return &otpValidator{
		responses: responses,
		stop:      stop,
		window:    window,
		log:       logger.Named("otp_validator"),
	}, nil
}

// Await blocks until a login-API response arrives and returns its verdict.
// An empty window gets one re-poll before the attempt is declared timed out;
// success and failure pages can render with delay, so DOM state is never
// consulted here.
func (v *otpValidator) Await(ctx context.Context) otpVerdict {
	for poll := 0; poll < 2; poll++ {
		timer := time.NewTimer(v.window)
		select {
		case resp, ok := <-v.responses:
			timer.Stop()
			if !ok {
				return otpTimeout
			}
			verdict := classifyOTPPayload(resp.Body)
			v.log.Info("OTP API response classified.",
				zap.String("url", resp.URL),
				zap.Int64("status", resp.Status),
				zap.String("verdict", verdict.String()))
			return verdict
		case <-ctx.Done():
			timer.Stop()
			return otpTimeout
		case <-timer.C:
			if poll == 0 {
				v.log.Warn("No OTP API response within window, re-polling once.",
					zap.Duration("window", v.window))
			}
		}
	}
	return otpTimeout
}

// Close stops interception.
func (v *otpValidator) Close() {
	v.stop()
}

// otpPayload is the subset of the login API response the verdict depends on.
type otpPayload struct {
	StatusCode int    `json:"STATUS_CODE"`
	ErrorCode  string `json:"errorCode"`
	Message    string `json:"message"`
	Errors     []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// wrongOTPErrorCode is the API's signal for a well-formed but incorrect code.
const wrongOTPErrorCode = "LOGIN_1008"

// classifyOTPPayload maps a login-API body to a verdict: STATUS_CODE 200 is
// success, the wrong-code errorCode is a retryable incorrect entry, anything
// else (including an unparsable body) is a generic failure.
func classifyOTPPayload(body []byte) otpVerdict {
	var payload otpPayload
	if err := jsonCodec.Unmarshal(body, &payload); err != nil {
		return otpFailed
	}
	switch {
	case payload.StatusCode == 200:
		return otpSuccess
	case payload.ErrorCode == wrongOTPErrorCode:
		return otpIncorrect
	default:
		return otpFailed
	}
}
