// File: internal/browser/manager.go
package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/checkout-cli/internal/config"
)

const shutdownGracePeriod = 15 * time.Second

// Manager owns the shared Chrome allocator and hands out one isolated
// browser context per checkout process. Allocation is deferred until the
// first driver is requested so commands that never touch the browser
// (session listing, version) stay cheap.
type Manager struct {
	cfg    *config.Config
	logger *zap.Logger

	allocCtx    context.Context
	allocCancel context.CancelFunc

	drivers map[string]*chromeDriver
	mu      sync.RWMutex
	wg      sync.WaitGroup // Ensures all drivers are closed before the allocator goes away.

	initOnce sync.Once
	initErr  error
}

// NewManager creates a browser manager. Allocator startup is deferred until
// the first driver is requested.
func NewManager(cfg *config.Config, logger *zap.Logger) *Manager {
	m := &Manager{
		cfg:     cfg,
		logger:  logger.Named("browser_manager"),
		drivers: make(map[string]*chromeDriver),
	}
	m.logger.Info("Browser manager created (allocator startup deferred).")
	return m
}

// initialize builds the exec allocator that all browser contexts share.
func (m *Manager) initialize(ctx context.Context) error {
	m.initOnce.Do(func() {
		m.logger.Info("Starting Chrome allocator.",
			zap.Bool("headless", m.cfg.Browser.Headless))

		opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
		// The defaults force headless; checkout flows usually want a window.
		if !m.cfg.Browser.Headless {
			opts = append(opts,
				chromedp.Flag("headless", false),
				chromedp.Flag("hide-scrollbars", false),
				chromedp.Flag("mute-audio", false),
			)
		}
		opts = append(opts,
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
		)
		if m.cfg.Browser.ExecPath != "" {
			opts = append(opts, chromedp.ExecPath(m.cfg.Browser.ExecPath))
		}
		if m.cfg.Browser.UserAgent != "" {
			opts = append(opts, chromedp.UserAgent(m.cfg.Browser.UserAgent))
		}
		for _, arg := range m.cfg.Browser.Args {
			opts = append(opts, chromedp.Flag(arg, true))
		}

		// The allocator must outlive ctx; it is torn down in Shutdown.
		m.allocCtx, m.allocCancel = chromedp.NewExecAllocator(context.Background(), opts...)
	})
	return m.initErr
}

// NewDriver creates an isolated browser context (own tab, own cookie
// partition) registered under the given id.
func (m *Manager) NewDriver(ctx context.Context, id string) (Driver, error) {
	if err := m.initialize(ctx); err != nil {
		return nil, err
	}

	d, err := newChromeDriver(m.allocCtx, m.cfg, m.logger, id)
	if err != nil {
		return nil, fmt.Errorf("failed to create browser context: %w", err)
	}

	m.wg.Add(1) // Increment before registering.
	d.onClose = func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.drivers, id)
		m.wg.Done()
		m.logger.Debug("Driver removed from manager.", zap.String("driver_id", id))
	}

	m.mu.Lock()
	m.drivers[id] = d
	m.mu.Unlock()

	m.logger.Info("New browser context created.", zap.String("driver_id", id))
	return d, nil
}

// Shutdown closes every open driver and tears down the allocator.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.logger.Info("Shutting down browser manager.")

	if m.allocCtx == nil {
		m.logger.Info("Allocator never started, nothing to shut down.")
		return nil
	}

	m.mu.RLock()
	toClose := make([]*chromeDriver, 0, len(m.drivers))
	for _, d := range m.drivers {
		toClose = append(toClose, d)
	}
	m.mu.RUnlock()

	for _, d := range toClose {
		go func(d *chromeDriver) {
			if err := d.Close(); err != nil {
				m.logger.Warn("Error closing driver during shutdown.",
					zap.String("driver_id", d.id), zap.Error(err))
			}
		}(d)
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.logger.Info("All browser contexts closed gracefully.")
	case <-ctx.Done():
		m.logger.Warn("Timeout waiting for browser contexts to close.", zap.Error(ctx.Err()))
	case <-time.After(shutdownGracePeriod):
		m.logger.Warn("Grace period elapsed waiting for browser contexts to close.")
	}

	m.allocCancel()
	m.logger.Info("Browser manager shutdown complete.")
	return nil
}
