// File: internal/checkout/step_summary.go
package checkout

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

const (
	couponDismissText   = `^\s*(No thanks|Not now|Skip)\s*$`
	summaryItemSelector = `div[id^="itemid"]`
)

// summaryHandler validates the order summary and continues to payment. No
// human input is needed here; an unexpected coupon interstitial is dismissed
// rather than surfaced.
type summaryHandler struct{}

func (h *summaryHandler) Kind() PageKind { return KindSummary }

func (h *summaryHandler) Run(ctx context.Context, env *stepEnv) stepOutcome {
	log := env.log.Named("summary")
	env.capture(ctx, "summary_entry")

	// A well-formed summary lists at least one item and shows a payable
	// total. Missing either means the page is mid-render or the order is
	// empty; neither should be clicked through blindly.
	if items, err := env.drv.Visible(ctx, summaryItemSelector); err != nil || !items {
		env.capture(ctx, "summary_no_items")
		return fail(fmt.Errorf("order summary shows no line items"))
	}

	total, err := summaryTotal(ctx, env.drv)
	if err == nil && total != "" {
		env.recordTotal(total)
		log.Info("Order total extracted.", zap.String("total", total))
	} else {
		env.capture(ctx, "summary_no_total")
		return fail(fmt.Errorf("order summary shows no payable total"))
	}

	h.dismissInterstitial(ctx, env, log)

	err = retry(ctx, env.cfg.StepAttempts, log, "continue from summary", func() error {
		return clickText(ctx, env.drv, continueButtonText)
	})
	if err != nil {
		env.capture(ctx, "summary_continue_error")
		return fail(fmt.Errorf("failed to continue from order summary: %w", err))
	}

	env.capture(ctx, "summary_exit")
	return advance()
}

// dismissInterstitial closes a coupon or upsell prompt when one covers the
// continue button. Best effort.
func (h *summaryHandler) dismissInterstitial(ctx context.Context, env *stepEnv, log *zap.Logger) {
	visible, err := textVisible(ctx, env.drv, couponDismissText)
	if err != nil || !visible {
		return
	}
	if err := clickText(ctx, env.drv, couponDismissText); err != nil {
		log.Debug("Could not dismiss interstitial.", zap.Error(err))
		return
	}
	log.Info("Dismissed an interstitial prompt on the order summary.")
}
