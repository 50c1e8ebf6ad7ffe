// File: internal/checkout/manager.go
package checkout

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/checkout-cli/api/schemas"
	"github.com/xkilldash9x/checkout-cli/internal/browser"
	"github.com/xkilldash9x/checkout-cli/internal/config"
	"github.com/xkilldash9x/checkout-cli/internal/debugsink"
	"github.com/xkilldash9x/checkout-cli/internal/sessionstore"
)

const (
	productTitleSelector = `span.B_NuCI, h1 span._35KyD6`
	buyNowText           = `Buy now`
)

// DriverFactory hands out one isolated browser context per process.
// *browser.Manager satisfies it; tests inject scripted fakes.
type DriverFactory interface {
	NewDriver(ctx context.Context, id string) (browser.Driver, error)
}

// Manager owns every checkout process: it runs the classify-execute loop
// per process on its own goroutine, brokers suspend/resume for human input,
// and retains terminal processes for a configured window before reaping.
type Manager struct {
	cfg      config.CheckoutConfig
	drivers  DriverFactory
	store    sessionstore.Store
	sink     debugsink.Sink
	log      *zap.Logger
	handlers map[PageKind]handler

	mu    sync.RWMutex
	procs map[string]*Process

	rootCtx    context.Context
	rootCancel context.CancelFunc
	group      *errgroup.Group

	reaperOnce sync.Once
	closed     bool
}

// NewManager wires the process manager. The store may be nil when session
// persistence is disabled; the sink must not be nil (use debugsink.NopSink).
func NewManager(cfg config.CheckoutConfig, drivers DriverFactory, store sessionstore.Store, sink debugsink.Sink, logger *zap.Logger) *Manager {
	rootCtx, rootCancel := context.WithCancel(context.Background())
	group, groupCtx := errgroup.WithContext(rootCtx)
	return &Manager{
		cfg:        cfg,
		drivers:    drivers,
		store:      store,
		sink:       sink,
		log:        logger.Named("checkout_manager"),
		handlers:   newHandlers(),
		procs:      make(map[string]*Process),
		rootCtx:    groupCtx,
		rootCancel: rootCancel,
		group:      group,
	}
}

// Start creates a checkout process for the product URL and begins driving
// it. The returned id keys every later interaction.
func (m *Manager) Start(ctx context.Context, productURL, sessionName string) (string, error) {
	if productURL == "" {
		return "", fmt.Errorf("product URL is required")
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return "", fmt.Errorf("manager is shut down: %w", ErrProcessTerminated)
	}
	id := uuid.NewString()
	procCtx, procCancel := context.WithCancel(m.rootCtx)
	p := newProcess(id, productURL, sessionName, procCancel)
	m.procs[id] = p
	m.mu.Unlock()

	m.startReaper()
	m.group.Go(func() error {
		m.run(procCtx, p)
		return nil
	})

	m.log.Info("Checkout process started.",
		zap.String("process_id", id),
		zap.String("product_url", productURL),
		zap.String("session", sessionName))
	return id, nil
}

// Status returns the externally visible view of one process.
func (m *Manager) Status(id string) (schemas.ProcessSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.procs[id]
	if !ok {
		return schemas.ProcessSnapshot{}, fmt.Errorf("process %s: %w", id, ErrProcessTerminated)
	}
	return p.snapshot(), nil
}

// List returns snapshots of all known processes, oldest first.
func (m *Manager) List() []schemas.ProcessSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snaps := make([]schemas.ProcessSnapshot, 0, len(m.procs))
	for _, p := range m.procs {
		snaps = append(snaps, p.snapshot())
	}
	sort.Slice(snaps, func(i, j int) bool { return snaps[i].StartedAt.Before(snaps[j].StartedAt) })
	return snaps
}

// SubmitInput delivers the values a suspended process asked for. The
// submission must match the pending request's phase and field set exactly;
// anything else is rejected without touching process state. A request is
// satisfied at most once: the pending request is cleared under the lock
// before the values are handed over, so a racing second submission fails
// with ErrWrongPhaseInput instead of resuming the process twice.
func (m *Manager) SubmitInput(id string, values map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.procs[id]
	if !ok {
		return fmt.Errorf("process %s: %w", id, ErrProcessTerminated)
	}
	if p.terminated() {
		return fmt.Errorf("process %s is %s: %w", id, p.status, ErrProcessTerminated)
	}
	if p.status != schemas.StatusAwaitingInput || p.pending == nil {
		return fmt.Errorf("process %s is not awaiting input: %w", id, ErrWrongPhaseInput)
	}

	expected := make(map[string]bool, len(p.pending.Fields))
	for _, f := range p.pending.Fields {
		expected[f.Name] = true
		if _, present := values[f.Name]; !present {
			return fmt.Errorf("missing field %q for phase %s: %w", f.Name, p.pending.Phase, ErrWrongPhaseInput)
		}
	}
	for name := range values {
		if !expected[name] {
			return fmt.Errorf("unexpected field %q for phase %s: %w", name, p.pending.Phase, ErrWrongPhaseInput)
		}
	}

	p.pending = nil
	p.transition(schemas.StatusRunning, "input received")
	p.input <- values // buffered; guaranteed empty while a request was pending
	return nil
}

// Abort cancels a non-terminal process and tears down its browser context.
func (m *Manager) Abort(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.procs[id]
	if !ok {
		return fmt.Errorf("process %s: %w", id, ErrProcessTerminated)
	}
	if p.terminated() {
		return fmt.Errorf("process %s is already %s: %w", id, p.status, ErrProcessTerminated)
	}

	p.transition(schemas.StatusAborted, "aborted by caller")
	p.cancel()
	m.log.Info("Process aborted.", zap.String("process_id", id))
	return nil
}

// Shutdown aborts everything still running and waits for process goroutines
// to drain, bounded by ctx.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	for _, p := range m.procs {
		if !p.terminated() {
			p.transition(schemas.StatusAborted, "manager shutdown")
		}
	}
	m.mu.Unlock()

	m.rootCancel()

	done := make(chan struct{})
	go func() {
		_ = m.group.Wait()
		close(done)
	}()
	select {
	case <-done:
		m.log.Info("Checkout manager shut down.")
		return nil
	case <-ctx.Done():
		m.log.Warn("Timeout waiting for checkout processes to stop.", zap.Error(ctx.Err()))
		return ctx.Err()
	}
}

// -- process goroutine --

// run drives one process to a terminal status.
func (m *Manager) run(ctx context.Context, p *Process) {
	log := m.log.With(zap.String("process_id", p.ID))

	drv, err := m.drivers.NewDriver(ctx, p.ID)
	if err != nil {
		m.finish(p, schemas.StatusFailed, fmt.Errorf("browser context unavailable: %w", err), log)
		return
	}
	defer drv.Close()

	env := m.newEnv(p, drv, log)

	if err := m.initialize(ctx, p, drv, env, log); err != nil {
		m.finishFromErr(p, err, log)
		return
	}

	for {
		m.setPhase(p, schemas.PhaseClassifying, schemas.StatusRunning)
		kind, err := m.classifyLoop(ctx, p, drv, env, log)
		if err != nil {
			m.finishFromErr(p, err, log)
			return
		}

		ord := phaseOrdinal[kind]
		m.mu.Lock()
		regressed := ord < p.highWater
		if ord > p.highWater {
			p.highWater = ord
		}
		m.mu.Unlock()
		if regressed {
			m.finish(p, schemas.StatusFailed,
				fmt.Errorf("page regressed to %s after a later phase executed", kind), log)
			return
		}

		m.setPhase(p, phaseOf(kind), schemas.StatusRunning)
		log.Info("Executing phase handler.", zap.String("kind", string(kind)))

		outcome := m.handlers[kind].Run(ctx, env)
		switch outcome.kind {
		case outcomeAdvance:
			continue
		case outcomeSuccess:
			if kind != KindBankOTP {
				// Success is only reachable through bank verification.
				m.finish(p, schemas.StatusFailed,
					fmt.Errorf("handler %s reported success out of order", kind), log)
				return
			}
			m.finish(p, schemas.StatusSucceeded, nil, log)
			return
		case outcomeFailure:
			m.finishFromErr(p, outcome.err, log)
			return
		}
	}
}

// initialize resolves the stored session, opens the product page, and
// presses Buy Now.
func (m *Manager) initialize(ctx context.Context, p *Process, drv browser.Driver, env *stepEnv, log *zap.Logger) error {
	m.restoreSession(ctx, p, drv, log)

	if err := drv.Navigate(ctx, p.ProductURL); err != nil {
		return fmt.Errorf("failed to open product page: %w", err)
	}

	if title, err := selectorText(ctx, drv, productTitleSelector); err == nil && title != "" {
		m.mu.Lock()
		p.productTitle = title
		m.mu.Unlock()
		log.Info("Product identified.", zap.String("title", title))
	}

	err := retry(ctx, m.cfg.StepAttempts, log, "click buy now", func() error {
		return clickText(ctx, drv, buyNowText)
	})
	if err != nil {
		env.capture(ctx, "buy_now_error")
		return fmt.Errorf("failed to start checkout from the product page: %w", err)
	}
	env.capture(ctx, "buy_now_clicked")
	return nil
}

// restoreSession applies the named stored session when one loads cleanly. A
// corrupt blob is recorded and ignored: the checkout proceeds fresh through
// Login rather than failing, and the blob is left in place for the user to
// inspect or delete.
func (m *Manager) restoreSession(ctx context.Context, p *Process, drv browser.Driver, log *zap.Logger) {
	if p.SessionName == "" || m.store == nil {
		return
	}

	blob, err := m.store.Load(ctx, p.SessionName)
	if errors.Is(err, sessionstore.ErrNotFound) {
		log.Info("No stored session; starting fresh.", zap.String("session", p.SessionName))
		return
	}
	if err == nil {
		err = drv.SetStorageState(ctx, blob)
	}
	if err != nil {
		log.Warn("Stored session could not be applied; proceeding without it.",
			zap.String("session", p.SessionName), zap.Error(err))
		m.mu.Lock()
		p.lastErr = fmt.Errorf("session %q: %w", p.SessionName, ErrSessionCorrupt)
		m.mu.Unlock()
		return
	}
	log.Info("Stored session applied.", zap.String("session", p.SessionName))
}

// classifyLoop polls the classifier at a fixed cadence. Each window of only
// Unknown results consumes one attempt and triggers a debug capture;
// exhausting every attempt is a classification timeout.
func (m *Manager) classifyLoop(ctx context.Context, p *Process, drv browser.Driver, env *stepEnv, log *zap.Logger) (PageKind, error) {
	limiter := rate.NewLimiter(rate.Every(m.cfg.ClassifyInterval), 1)

	for attempt := 1; attempt <= m.cfg.ClassifyAttempts; attempt++ {
		deadline := time.Now().Add(m.cfg.ClassifyWindow)
		for time.Now().Before(deadline) {
			if err := limiter.Wait(ctx); err != nil {
				return KindUnknown, err
			}
			if kind := Classify(ctx, drv, log); kind != KindUnknown {
				return kind, nil
			}
		}
		log.Warn("No recognizable page state in this window.",
			zap.Int("attempt", attempt), zap.Int("max_attempts", m.cfg.ClassifyAttempts))
		env.capture(ctx, fmt.Sprintf("unknown_state_attempt_%d", attempt))
	}
	return KindUnknown, fmt.Errorf("after %d windows of %v: %w",
		m.cfg.ClassifyAttempts, m.cfg.ClassifyWindow, ErrClassificationTimeout)
}

// -- env plumbing --

func (m *Manager) newEnv(p *Process, drv browser.Driver, log *zap.Logger) *stepEnv {
	return &stepEnv{
		drv:         drv,
		cfg:         m.cfg,
		log:         log,
		store:       m.store,
		sessionName: p.SessionName,
		requestInput: func(ctx context.Context, fields []schemas.InputField) (map[string]string, error) {
			return m.awaitInput(ctx, p, fields)
		},
		capture: func(ctx context.Context, tag string) {
			m.capture(ctx, p, drv, tag, log)
		},
		recordTotal: func(total string) {
			m.mu.Lock()
			p.orderTotal = total
			m.mu.Unlock()
		},
	}
}

// awaitInput publishes a pending request and parks the process goroutine
// until SubmitInput satisfies it or the process is canceled.
func (m *Manager) awaitInput(ctx context.Context, p *Process, fields []schemas.InputField) (map[string]string, error) {
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.Name
	}

	m.mu.Lock()
	if p.terminated() {
		m.mu.Unlock()
		return nil, ErrProcessTerminated
	}
	p.pending = &schemas.InputRequest{
		Phase:     p.phase,
		Fields:    fields,
		CreatedAt: time.Now(),
	}
	p.transition(schemas.StatusAwaitingInput, "awaiting "+strings.Join(names, ", "))
	m.mu.Unlock()

	select {
	case vals := <-p.input:
		return vals, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("process canceled while awaiting input: %w", ErrProcessTerminated)
	}
}

// capture asks the sink for a screenshot and records the reference. Sink
// failures never propagate.
func (m *Manager) capture(ctx context.Context, p *Process, drv browser.Driver, tag string, log *zap.Logger) {
	png, err := drv.Screenshot(ctx)
	if err != nil {
		log.Debug("Screenshot unavailable.", zap.String("tag", tag), zap.Error(err))
		return
	}
	ref, err := m.sink.Capture(ctx, tag, p.ID, png)
	if err != nil {
		log.Debug("Debug capture failed.", zap.String("tag", tag), zap.Error(err))
		return
	}
	if ref != "" {
		m.mu.Lock()
		p.lastCapture = ref
		m.mu.Unlock()
	}
}

// -- terminal transitions --

func (m *Manager) setPhase(p *Process, phase schemas.Phase, status schemas.ProcessStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.terminated() {
		return
	}
	// A phase change is a history event even when the status stays the same;
	// phases that never suspend (Summary, or Login/Payment fed from config)
	// would otherwise leave no trace.
	phaseChanged := p.phase != phase
	p.phase = phase
	if p.status != status || phaseChanged {
		p.transition(status, "")
	}
	p.updatedAt = time.Now()
}

// finishFromErr distinguishes abort (context canceled) from failure.
func (m *Manager) finishFromErr(p *Process, err error, log *zap.Logger) {
	if errors.Is(err, context.Canceled) || errors.Is(err, ErrProcessTerminated) {
		m.finish(p, schemas.StatusAborted, err, log)
		return
	}
	m.finish(p, schemas.StatusFailed, err, log)
}

func (m *Manager) finish(p *Process, status schemas.ProcessStatus, err error, log *zap.Logger) {
	m.mu.Lock()
	if p.terminated() {
		// Abort or shutdown already sealed the process.
		m.mu.Unlock()
		return
	}
	if err != nil {
		p.lastErr = err
	}
	note := ""
	if err != nil {
		note = FailureReason(err)
	}
	p.transition(status, note)
	m.mu.Unlock()

	// Release the process context so the root context does not accumulate
	// children across completed checkouts. Idempotent when Abort got here
	// first.
	p.cancel()

	switch status {
	case schemas.StatusSucceeded:
		log.Info("Checkout succeeded.")
	case schemas.StatusAborted:
		log.Info("Checkout aborted.")
	default:
		log.Warn("Checkout failed.", zap.Error(err))
	}
}

// -- retention --

// startReaper drops terminal processes from the registry once they have
// been queryable for the retention window.
func (m *Manager) startReaper() {
	m.reaperOnce.Do(func() {
		interval := m.cfg.Retention / 4
		if interval <= 0 || interval > time.Minute {
			interval = time.Minute
		}
		m.group.Go(func() error {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case <-m.rootCtx.Done():
					return nil
				case <-ticker.C:
					m.reap()
				}
			}
		})
	})
}

func (m *Manager) reap() {
	cutoff := time.Now().Add(-m.cfg.Retention)
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, p := range m.procs {
		if p.terminated() && p.doneAt.Before(cutoff) {
			delete(m.procs, id)
			m.log.Debug("Reaped terminal process.", zap.String("process_id", id))
		}
	}
}
