// File: internal/checkout/fake_driver_test.go
package checkout

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/xkilldash9x/checkout-cli/internal/browser"
)

// fakeDriver simulates the target site for the checkout core. Tests shape
// its page model (visible selectors, visible texts, addresses) and mutate it
// from the onClickText hook to emulate navigation between checkout stages.
type fakeDriver struct {
	mu sync.Mutex

	page      string
	url       string
	selectors map[string]bool
	texts     []string
	addresses []addressOption
	titles    map[string]string // selectorText answers

	// onClickText fires after a text click matched; it receives the matched
	// text and mutates the page model under the driver lock.
	onClickText func(d *fakeDriver, matched string)
	// onClickAddress fires when an address label is clicked.
	onClickAddress func(d *fakeDriver, idx int)

	otpCh chan browser.InterceptedResponse

	fills   map[string]string
	storage []byte

	setStorageErr    error
	setStorageCalled bool
	closed           bool
}

var _ browser.Driver = (*fakeDriver)(nil)

func newFakeDriver() *fakeDriver {
	return &fakeDriver{
		url:       "https://www.flipkart.com/product",
		selectors: map[string]bool{},
		titles:    map[string]string{},
		fills:     map[string]string{},
		otpCh:     make(chan browser.InterceptedResponse, 4),
	}
}

// setPage swaps the whole visible page model.
func (d *fakeDriver) setPage(page, url string, selectors []string, texts ...string) {
	d.page = page
	d.url = url
	d.selectors = map[string]bool{}
	for _, s := range selectors {
		d.selectors[s] = true
	}
	d.texts = texts
}

func (d *fakeDriver) addSelector(sel string) { d.selectors[sel] = true }
func (d *fakeDriver) addText(text string)    { d.texts = append(d.texts, text) }

func (d *fakeDriver) Navigate(ctx context.Context, url string) error { return ctx.Err() }

func (d *fakeDriver) Click(ctx context.Context, selector string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.selectors[selector] {
		return fmt.Errorf("selector %q not on page", selector)
	}
	return nil
}

func (d *fakeDriver) Fill(ctx context.Context, selector, value string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.selectors[selector] {
		return fmt.Errorf("selector %q not on page", selector)
	}
	d.fills[selector] = value
	return nil
}

func (d *fakeDriver) SelectOption(ctx context.Context, selector, value string) error {
	return d.Fill(ctx, selector, value)
}

func (d *fakeDriver) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		d.mu.Lock()
		visible := d.selectors[selector]
		d.mu.Unlock()
		if visible {
			return nil
		}
		select {
		case <-time.After(5 * time.Millisecond):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fmt.Errorf("timed out waiting for %q", selector)
}

func (d *fakeDriver) Visible(ctx context.Context, selector string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.selectors[selector], nil
}

func (d *fakeDriver) Location(ctx context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.url, nil
}

// Evaluate dispatches on the shape of the scripts the checkout helpers
// emit; the fake answers from its page model instead of a DOM.
func (d *fakeDriver) Evaluate(ctx context.Context, script string, out any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	switch {
	case strings.Contains(script, "out.push"): // listAddresses
		*(out.(*[]addressOption)) = append([]addressOption(nil), d.addresses...)
		return nil

	case strings.Contains(script, "inputs["): // clickAddress
		idx := extractAddressIndex(script)
		if idx < 0 || idx >= len(d.addresses) {
			*(out.(*bool)) = false
			return nil
		}
		if d.onClickAddress != nil {
			d.onClickAddress(d, idx)
		}
		*(out.(*bool)) = true
		return nil

	case strings.Contains(script, "__findText"):
		pattern := extractPattern(script)
		matched, found := d.matchText(pattern)
		switch {
		case strings.Contains(script, "!== null"): // textVisible
			*(out.(*bool)) = found
		case strings.Contains(script, ".click()"): // clickText / clickTextAncestor
			if found && d.onClickText != nil {
				d.onClickText(d, matched)
			}
			*(out.(*bool)) = found
		default: // textContent
			*(out.(*string)) = matched
		}
		return nil

	case strings.Contains(script, "document.querySelector"): // selectorText
		sel := extractQuerySelector(script)
		*(out.(*string)) = d.titles[sel]
		return nil
	}
	return fmt.Errorf("fake driver: unrecognized script: %.80s", script)
}

func (d *fakeDriver) matchText(pattern string) (string, bool) {
	re := regexp.MustCompile("(?i)" + pattern)
	for _, text := range d.texts {
		if re.MatchString(text) {
			return text, true
		}
	}
	return "", false
}

func (d *fakeDriver) InterceptResponse(ctx context.Context, urlSubstr string) (<-chan browser.InterceptedResponse, func(), error) {
	return d.otpCh, func() {}, nil
}

func (d *fakeDriver) Screenshot(ctx context.Context) ([]byte, error) {
	return []byte{0x89, 'P', 'N', 'G'}, nil
}

func (d *fakeDriver) StorageState(ctx context.Context) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.storage == nil {
		return []byte(`{"cookies":[{"name":"SESSION","value":"fake"}]}`), nil
	}
	return d.storage, nil
}

func (d *fakeDriver) SetStorageState(ctx context.Context, blob []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.setStorageErr != nil {
		return d.setStorageErr
	}
	d.setStorageCalled = true
	d.storage = blob
	return nil
}

func (d *fakeDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

// fakeFactory hands the same driver to every process; tests run one process
// per factory.
type fakeFactory struct {
	drv *fakeDriver
	err error
}

func (f *fakeFactory) NewDriver(ctx context.Context, id string) (browser.Driver, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.drv, nil
}

var (
	findTextArg  = regexp.MustCompile(`__findText\((".*?")\)`)
	querySelArg  = regexp.MustCompile(`document\.querySelector\((".*?")\)`)
	addressIndex = regexp.MustCompile(`inputs\[(\d+)\]`)
)

func extractPattern(script string) string {
	m := findTextArg.FindStringSubmatch(script)
	if m == nil {
		return ""
	}
	var pattern string
	if err := json.Unmarshal([]byte(m[1]), &pattern); err != nil {
		return ""
	}
	return pattern
}

func extractQuerySelector(script string) string {
	m := querySelArg.FindStringSubmatch(script)
	if m == nil {
		return ""
	}
	var sel string
	if err := json.Unmarshal([]byte(m[1]), &sel); err != nil {
		return ""
	}
	return sel
}

func extractAddressIndex(script string) int {
	m := addressIndex.FindStringSubmatch(script)
	if m == nil {
		return -1
	}
	var idx int
	fmt.Sscanf(m[1], "%d", &idx)
	return idx
}
