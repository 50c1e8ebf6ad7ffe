// File: internal/checkout/classify.go
package checkout

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/checkout-cli/internal/browser"
)

// PageKind tags the checkout stage the browser currently shows.
type PageKind string

const (
	KindLogin   PageKind = "LOGIN"
	KindAddress PageKind = "ADDRESS"
	KindSummary PageKind = "SUMMARY"
	KindPayment PageKind = "PAYMENT"
	KindBankOTP PageKind = "BANK_OTP"
	KindUnknown PageKind = "UNKNOWN"
)

// A marker is one distinguishing signal for a page kind: either a CSS
// selector that must match a visible node, or a text pattern that must match
// a visible element's text.
type marker struct {
	selector string
	text     string // case-insensitive regular expression
}

// detector ties a page kind to its markers. Any one matching marker
// identifies the kind. The optional urlGuard must also pass; it keeps
// broad markers (the generic bank OTP inputs) from firing on the retailer's
// own pages.
type detector struct {
	kind    PageKind
	markers []marker
	// exclude is a CSS selector that disqualifies the detector when visible.
	exclude  string
	urlGuard func(url string) bool
}

// detectors in priority order. Overlap is real: the summary CONTINUE button
// exists while a payment iframe is still rendering, and the generic OTP
// inputs resemble the login form. Higher-priority kinds are listed first so
// the first match wins deterministically.
var detectors = []detector{
	{
		kind:    KindPayment,
		markers: []marker{{text: `Credit\s*/\s*Debit\s*/\s*ATM\s*Card`}},
	},
	{
		// The login form submits with an identically labeled button, so the
		// summary marker is only trusted while no phone field is on screen.
		kind:    KindSummary,
		markers: []marker{{text: `^\s*CONTINUE\s*$`}},
		exclude: `input[type="text"][autocomplete="off"]`,
	},
	{
		kind:    KindAddress,
		markers: []marker{{selector: `label input[name="address"]`}},
	},
	{
		kind:    KindLogin,
		markers: []marker{{selector: `input[type="text"][autocomplete="off"]`}},
	},
	{
		// Bank-specific OTP field, recognizable anywhere.
		kind:    KindBankOTP,
		markers: []marker{{selector: `input#otpValue[type="password"]`}},
	},
	{
		// Generic 3DS inputs. Only trusted once the browser has left the
		// retailer, otherwise search boxes and login fields false-positive.
		kind: KindBankOTP,
		markers: []marker{
			{selector: `input[type="password"], input[type="tel"], input[name*="otp" i], input[id*="otp" i]`},
		},
		urlGuard: offRetailer,
	},
}

func offRetailer(url string) bool {
	return !strings.Contains(url, "flipkart.com")
}

// Classify performs one read-only pass over the detector table and returns
// the first matching kind, or KindUnknown when nothing matches. It never
// mutates page state; polling and retry policy belong to the caller.
func Classify(ctx context.Context, drv browser.Driver, logger *zap.Logger) PageKind {
	var url string
	var urlErr error
	urlLoaded := false

	for _, det := range detectors {
		if det.urlGuard != nil {
			if !urlLoaded {
				url, urlErr = drv.Location(ctx)
				urlLoaded = true
			}
			if urlErr != nil || !det.urlGuard(url) {
				continue
			}
		}
		if det.exclude != "" {
			if visible, err := drv.Visible(ctx, det.exclude); err == nil && visible {
				continue
			}
		}
		for _, mk := range det.markers {
			var found bool
			var err error
			if mk.selector != "" {
				found, err = drv.Visible(ctx, mk.selector)
			} else {
				found, err = textVisible(ctx, drv, mk.text)
			}
			if err != nil {
				logger.Debug("Marker probe failed.",
					zap.String("kind", string(det.kind)), zap.Error(err))
				continue
			}
			if found {
				logger.Debug("Page state detected.", zap.String("kind", string(det.kind)))
				return det.kind
			}
		}
	}
	return KindUnknown
}
