// File: cmd/buy.go
package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/checkout-cli/api/schemas"
	"github.com/xkilldash9x/checkout-cli/internal/browser"
	"github.com/xkilldash9x/checkout-cli/internal/checkout"
	"github.com/xkilldash9x/checkout-cli/internal/config"
	"github.com/xkilldash9x/checkout-cli/internal/debugsink"
	"github.com/xkilldash9x/checkout-cli/internal/observability"
	"github.com/xkilldash9x/checkout-cli/internal/sessionstore"
)

// newBuyCmd creates the `buy` command: an interactive checkout for one
// product page.
func newBuyCmd() *cobra.Command {
	var (
		sessionName string
		phone       string
		headless    bool
	)

	buyCmd := &cobra.Command{
		Use:   "buy <product-url>",
		Short: "Runs an interactive checkout for the given product page",
		Long: `Opens the product page, presses Buy Now, and walks the checkout to
completion. Whenever the flow needs something only you know (a login OTP,
an address choice, card details, the bank's verification code) it suspends
and prompts on this terminal. Card details are forwarded to the payment
form and kept nowhere.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()
			cfg := appConfig

			if phone != "" {
				cfg.Checkout.PhoneNumber = phone
			}
			if cmd.Flags().Changed("headless") {
				cfg.Browser.Headless = headless
			}

			productURL := args[0]
			if !strings.HasPrefix(productURL, "http://") && !strings.HasPrefix(productURL, "https://") {
				productURL = "https://" + productURL
			}

			store, closeStore, err := newSessionStore(ctx, cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to open session store: %w", err)
			}
			defer closeStore()

			sink, err := newDebugSink(cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to set up debug captures: %w", err)
			}

			browsers := browser.NewManager(cfg, logger)
			mgr := checkout.NewManager(cfg.Checkout, browsers, store, sink, logger)
			defer func() {
				sctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
				defer cancel()
				_ = mgr.Shutdown(sctx)
				_ = browsers.Shutdown(sctx)
			}()

			id, err := mgr.Start(ctx, productURL, sessionName)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Checkout started (process %s).\n", id)

			return interact(ctx, cmd, mgr, id)
		},
	}

	buyCmd.Flags().StringVar(&sessionName, "session", "default", "named session used to persist and reuse the login")
	buyCmd.Flags().StringVar(&phone, "phone", "", "registered phone number; prompted for when empty")
	buyCmd.Flags().BoolVar(&headless, "headless", false, "run the browser without a window")
	return buyCmd
}

// interact polls the process and bridges its input requests to the terminal
// until the checkout reaches a terminal status.
func interact(ctx context.Context, cmd *cobra.Command, mgr *checkout.Manager, id string) error {
	in := bufio.NewReader(cmd.InOrStdin())
	out := cmd.OutOrStdout()

	ticker := time.NewTicker(300 * time.Millisecond)
	defer ticker.Stop()

	var lastPhase schemas.Phase
	for {
		select {
		case <-ctx.Done():
			_ = mgr.Abort(id)
			return fmt.Errorf("checkout aborted: %w", ctx.Err())
		case <-ticker.C:
		}

		snap, err := mgr.Status(id)
		if err != nil {
			return err
		}
		if snap.Phase != lastPhase {
			fmt.Fprintf(out, "-> %s\n", snap.Phase)
			lastPhase = snap.Phase
		}

		switch snap.Status {
		case schemas.StatusAwaitingInput:
			if snap.PendingInput == nil {
				continue
			}
			values, err := promptFields(in, out, snap.PendingInput)
			if err != nil {
				_ = mgr.Abort(id)
				return fmt.Errorf("input closed: %w", err)
			}
			if err := mgr.SubmitInput(id, values); err != nil {
				// The process may have moved on while we were typing.
				if errors.Is(err, checkout.ErrWrongPhaseInput) {
					fmt.Fprintln(out, "The checkout moved on; latest prompt follows.")
					continue
				}
				return err
			}
		case schemas.StatusSucceeded:
			fmt.Fprintf(out, "Order placed: %s", snap.ProductTitle)
			if snap.OrderTotal != "" {
				fmt.Fprintf(out, " (%s)", snap.OrderTotal)
			}
			fmt.Fprintln(out)
			return nil
		case schemas.StatusFailed:
			if snap.LastCaptureRef != "" {
				fmt.Fprintf(out, "Last screenshot: %s\n", snap.LastCaptureRef)
			}
			return fmt.Errorf("checkout failed: %s", snap.LastError)
		case schemas.StatusAborted:
			return fmt.Errorf("checkout aborted")
		}
	}
}

// promptFields collects one value per requested field, echoing any presented
// options first.
func promptFields(in *bufio.Reader, out io.Writer, req *schemas.InputRequest) (map[string]string, error) {
	values := make(map[string]string, len(req.Fields))
	for _, field := range req.Fields {
		for i, opt := range field.Options {
			fmt.Fprintf(out, "  [%d] %s\n", i, opt)
		}
		fmt.Fprintf(out, "%s: ", field.Prompt)
		line, err := in.ReadString('\n')
		if err != nil && line == "" {
			return nil, err
		}
		values[field.Name] = strings.TrimSpace(line)
	}
	return values, nil
}

// newSessionStore opens the configured session store backend. The returned
// close function releases any backing pool.
func newSessionStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (sessionstore.Store, func(), error) {
	switch cfg.Store.Backend {
	case "postgres":
		pool, err := pgxpool.New(ctx, cfg.Store.PostgresURL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		store, err := sessionstore.NewPostgresStore(ctx, pool, logger)
		if err != nil {
			pool.Close()
			return nil, nil, err
		}
		return store, pool.Close, nil
	default:
		store, err := sessionstore.NewFileStore(cfg.Store.SessionsDir(), logger)
		if err != nil {
			return nil, nil, err
		}
		return store, func() {}, nil
	}
}

func newDebugSink(cfg *config.Config, logger *zap.Logger) (debugsink.Sink, error) {
	if !cfg.Debug.Enabled {
		return debugsink.NopSink{}, nil
	}
	return debugsink.NewFileSink(cfg.Debug.Dir, logger)
}
