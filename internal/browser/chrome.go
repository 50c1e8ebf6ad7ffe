// File: internal/browser/chrome.go
package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/checkout-cli/internal/config"
)

var jsonCodec = jsoniter.ConfigCompatibleWithStandardLibrary

// chromeDriver implements Driver on a dedicated chromedp browser context.
type chromeDriver struct {
	id     string
	logger *zap.Logger

	tabCtx    context.Context
	tabCancel context.CancelFunc

	navTimeout time.Duration
	opTimeout  time.Duration

	onClose   func()
	closeOnce sync.Once
}

var _ Driver = (*chromeDriver)(nil)

const defaultOpTimeout = 10 * time.Second

func newChromeDriver(allocCtx context.Context, cfg *config.Config, logger *zap.Logger, id string) (*chromeDriver, error) {
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)

	opTimeout := defaultOpTimeout
	if cfg.Checkout.StepTimeout > 0 && cfg.Checkout.StepTimeout < opTimeout {
		opTimeout = cfg.Checkout.StepTimeout
	}

	d := &chromeDriver{
		id:         id,
		logger:     logger.Named("driver").With(zap.String("driver_id", id)),
		tabCtx:     tabCtx,
		tabCancel:  tabCancel,
		navTimeout: cfg.Checkout.NavigationTimeout,
		opTimeout:  opTimeout,
	}

	// Launch the tab and enable network events eagerly so interception and
	// cookie export never race the first navigation.
	if err := chromedp.Run(tabCtx, network.Enable()); err != nil {
		tabCancel()
		return nil, fmt.Errorf("failed to launch browser tab: %w", err)
	}
	return d, nil
}

// runActions executes chromedp actions against the tab while honoring the
// operational context. The combined context carries the tab's CDP target but
// cancels as soon as the caller's ctx does.
func (d *chromeDriver) runActions(ctx context.Context, actions ...chromedp.Action) error {
	combined, cancel := CombineContext(d.tabCtx, ctx)
	defer cancel()

	err := chromedp.Run(combined, actions...)
	if err != nil && ctx.Err() != nil {
		return fmt.Errorf("operation canceled: %w", ctx.Err())
	}
	return err
}

func (d *chromeDriver) Navigate(ctx context.Context, url string) error {
	opCtx, cancel := context.WithTimeout(ctx, d.navTimeout)
	defer cancel()

	if err := d.runActions(opCtx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigation to %s failed: %w", url, err)
	}
	return nil
}

func (d *chromeDriver) Click(ctx context.Context, selector string) error {
	opCtx, cancel := context.WithTimeout(ctx, d.opTimeout)
	defer cancel()

	if err := d.runActions(opCtx,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Click(selector, chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("click on %q failed: %w", selector, err)
	}
	return nil
}

func (d *chromeDriver) Fill(ctx context.Context, selector, value string) error {
	opCtx, cancel := context.WithTimeout(ctx, d.opTimeout)
	defer cancel()

	// SendKeys rather than a direct value set so the page's input listeners
	// fire the way they would for a human typist.
	if err := d.runActions(opCtx,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Clear(selector, chromedp.ByQuery),
		chromedp.SendKeys(selector, value, chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("fill of %q failed: %w", selector, err)
	}
	return nil
}

func (d *chromeDriver) SelectOption(ctx context.Context, selector, value string) error {
	script := fmt.Sprintf(`
		(function(sel, val) {
			const node = document.querySelector(sel);
			if (!node) return false;
			node.value = val;
			node.dispatchEvent(new Event('input', { bubbles: true }));
			node.dispatchEvent(new Event('change', { bubbles: true }));
			return node.value === val;
		})(%s, %s);
	`, jsEncode(selector), jsEncode(value))

	var ok bool
	if err := d.Evaluate(ctx, script, &ok); err != nil {
		return fmt.Errorf("select on %q failed: %w", selector, err)
	}
	if !ok {
		return fmt.Errorf("select on %q: option %q not accepted", selector, value)
	}
	return nil
}

func (d *chromeDriver) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	opCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := d.runActions(opCtx, chromedp.WaitVisible(selector, chromedp.ByQuery))
	if err != nil && opCtx.Err() == context.DeadlineExceeded {
		return fmt.Errorf("timed out after %v waiting for %q: %w", timeout, selector, opCtx.Err())
	}
	return err
}

func (d *chromeDriver) Visible(ctx context.Context, selector string) (bool, error) {
	script := fmt.Sprintf(`
		(function(sel) {
			const node = document.querySelector(sel);
			if (!node) return false;
			const rect = node.getBoundingClientRect();
			const style = window.getComputedStyle(node);
			return rect.width > 0 && rect.height > 0 &&
				style.display !== 'none' &&
				style.visibility !== 'hidden' &&
				style.opacity !== '0';
		})(%s);
	`, jsEncode(selector))

	var visible bool
	if err := d.Evaluate(ctx, script, &visible); err != nil {
		return false, err
	}
	return visible, nil
}

func (d *chromeDriver) Location(ctx context.Context) (string, error) {
	opCtx, cancel := context.WithTimeout(ctx, d.opTimeout)
	defer cancel()

	var loc string
	if err := d.runActions(opCtx, chromedp.Location(&loc)); err != nil {
		return "", fmt.Errorf("failed to read location: %w", err)
	}
	return loc, nil
}

func (d *chromeDriver) Evaluate(ctx context.Context, script string, out any) error {
	opCtx, cancel := context.WithTimeout(ctx, d.opTimeout)
	defer cancel()

	var raw json.RawMessage
	err := d.runActions(opCtx,
		chromedp.Evaluate(script, &raw, func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
			return p.WithReturnByValue(true).WithAwaitPromise(true).WithSilent(true)
		}),
	)
	if err != nil {
		if opCtx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("timeout during script evaluation: %w", opCtx.Err())
		}
		return fmt.Errorf("script evaluation failed: %w", err)
	}

	if out == nil || len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if err := jsonCodec.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode script result: %w (payload: %s)", err, string(raw))
	}
	return nil
}

func (d *chromeDriver) InterceptResponse(ctx context.Context, urlSubstr string) (<-chan InterceptedResponse, func(), error) {
	out := make(chan InterceptedResponse, 4)
	done := make(chan struct{})
	var stopOnce sync.Once
	stop := func() { stopOnce.Do(func() { close(done) }) }

	// Deriving from the tab context keeps the CDP target attached while
	// giving the listener its own lifetime.
	listenCtx, listenCancel := context.WithCancel(d.tabCtx)
	go func() {
		select {
		case <-done:
		case <-ctx.Done():
		case <-listenCtx.Done():
		}
		listenCancel()
	}()

	target := chromedp.FromContext(d.tabCtx)
	chromedp.ListenTarget(listenCtx, func(ev any) {
		resp, ok := ev.(*network.EventResponseReceived)
		if !ok || !strings.Contains(resp.Response.URL, urlSubstr) {
			return
		}
		requestID := resp.RequestID
		url := resp.Response.URL
		status := resp.Response.Status

		// The body only becomes fetchable once loading finishes; poll
		// briefly instead of subscribing to loadingFinished per request.
		go func() {
			execCtx := cdp.WithExecutor(d.tabCtx, target.Target)
			var body []byte
			var err error
			for attempt := 0; attempt < 5; attempt++ {
				body, err = network.GetResponseBody(requestID).Do(execCtx)
				if err == nil {
					break
				}
				select {
				case <-time.After(200 * time.Millisecond):
				case <-done:
					return
				case <-d.tabCtx.Done():
					return
				}
			}
			if err != nil {
				d.logger.Debug("Failed to fetch intercepted response body.",
					zap.String("url", url), zap.Error(err))
				body = nil
			}
			select {
			case out <- InterceptedResponse{URL: url, Status: status, Body: body}:
			default:
				d.logger.Debug("Intercept buffer full, dropping response.", zap.String("url", url))
			}
		}()
	})

	return out, stop, nil
}

func (d *chromeDriver) Screenshot(ctx context.Context) ([]byte, error) {
	opCtx, cancel := context.WithTimeout(ctx, d.opTimeout)
	defer cancel()

	var png []byte
	if err := d.runActions(opCtx, chromedp.CaptureScreenshot(&png)); err != nil {
		return nil, fmt.Errorf("screenshot failed: %w", err)
	}
	return png, nil
}

// storedCookie is the blob layout for one cookie. The raw CDP cookie type is
// unusable here: its enum fields reject empty values on decode, which would
// poison every saved session. Unknown fields in older blobs are ignored.
type storedCookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires,omitempty"`
	Secure   bool    `json:"secure,omitempty"`
	HTTPOnly bool    `json:"httpOnly,omitempty"`
	SameSite string  `json:"sameSite,omitempty"`
}

// storageState is the blob layout produced by StorageState. It stays stable
// so previously saved sessions keep loading.
type storageState struct {
	Cookies []storedCookie `json:"cookies"`
}

func (d *chromeDriver) StorageState(ctx context.Context) ([]byte, error) {
	var cookies []*network.Cookie
	err := d.runActions(ctx, chromedp.ActionFunc(func(c context.Context) error {
		var err error
		cookies, err = storage.GetCookies().Do(c)
		return err
	}))
	if err != nil {
		return nil, fmt.Errorf("failed to export cookies: %w", err)
	}

	stored := make([]storedCookie, 0, len(cookies))
	for _, c := range cookies {
		stored = append(stored, storedCookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  c.Expires,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
			SameSite: string(c.SameSite),
		})
	}

	blob, err := jsonCodec.Marshal(storageState{Cookies: stored})
	if err != nil {
		return nil, fmt.Errorf("failed to encode storage state: %w", err)
	}
	return blob, nil
}

func (d *chromeDriver) SetStorageState(ctx context.Context, blob []byte) error {
	var state storageState
	if err := jsonCodec.Unmarshal(blob, &state); err != nil {
		return fmt.Errorf("failed to decode storage state: %w", err)
	}
	if len(state.Cookies) == 0 {
		return fmt.Errorf("storage state contains no cookies")
	}

	params := cookieParams(state.Cookies)
	err := d.runActions(ctx, chromedp.ActionFunc(func(c context.Context) error {
		return storage.SetCookies(params).Do(c)
	}))
	if err != nil {
		return fmt.Errorf("failed to restore cookies: %w", err)
	}
	return nil
}

// cookieParams converts stored cookies back into settable parameters.
func cookieParams(cookies []storedCookie) []*network.CookieParam {
	params := make([]*network.CookieParam, 0, len(cookies))
	for _, c := range cookies {
		p := &network.CookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
			SameSite: network.CookieSameSite(c.SameSite),
		}
		if c.Expires > 0 {
			expires := cdp.TimeSinceEpoch(time.Unix(int64(c.Expires), 0))
			p.Expires = &expires
		}
		params = append(params, p)
	}
	return params
}

func (d *chromeDriver) Close() error {
	d.closeOnce.Do(func() {
		d.logger.Debug("Closing browser context.")
		d.tabCancel()
		if d.onClose != nil {
			d.onClose()
		}
	})
	return nil
}

// jsEncode safely encodes a value for injection into a script literal.
func jsEncode(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return `""`
	}
	return string(b)
}
