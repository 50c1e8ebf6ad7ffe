// File: internal/browser/driver.go
package browser

import (
	"context"
	"sync"
	"time"
)

// InterceptedResponse is one network response captured by InterceptResponse.
type InterceptedResponse struct {
	URL    string
	Status int64
	Body   []byte
}

// Driver is the narrow browser surface the checkout core drives. One Driver
// owns one isolated browser context (its own tab and cookie partition);
// nothing above this interface touches CDP directly, which keeps the core
// testable with a scripted fake.
//
// Every operation honors ctx cancellation. Operations that wait on the page
// additionally bound themselves so a dead page cannot park a process forever.
type Driver interface {
	// Navigate loads the URL and waits for the load event.
	Navigate(ctx context.Context, url string) error
	// Click dispatches a click on the first match of the CSS selector.
	Click(ctx context.Context, selector string) error
	// Fill focuses the first match and types the value into it.
	Fill(ctx context.Context, selector, value string) error
	// SelectOption sets a <select> element to the given option value and
	// fires a change event.
	SelectOption(ctx context.Context, selector, value string) error
	// WaitVisible blocks until the selector is visible or the timeout lapses.
	WaitVisible(ctx context.Context, selector string, timeout time.Duration) error
	// Visible reports whether the selector currently matches a visible node.
	// It never waits.
	Visible(ctx context.Context, selector string) (bool, error)
	// Location returns the current page URL.
	Location(ctx context.Context) (string, error)
	// Evaluate runs the script in the page and unmarshals the result into out.
	// A nil out discards the result.
	Evaluate(ctx context.Context, script string, out any) error
	// InterceptResponse arms a listener for responses whose URL contains
	// urlSubstr. Captured responses are delivered on the returned channel
	// until the stop function is called. The channel is buffered; a capture
	// that arrives while the buffer is full is dropped.
	InterceptResponse(ctx context.Context, urlSubstr string) (<-chan InterceptedResponse, func(), error)
	// Screenshot captures the viewport as PNG.
	Screenshot(ctx context.Context) ([]byte, error)
	// StorageState exports the context's cookies as an opaque JSON blob.
	StorageState(ctx context.Context) ([]byte, error)
	// SetStorageState restores a blob previously produced by StorageState.
	SetStorageState(ctx context.Context, blob []byte) error
	// Close tears down the browser context. Safe to call more than once.
	Close() error
}

// CombineContext returns a context that carries the values of primary but is
// canceled as soon as either primary or secondary is done. The returned
// cancel must be called to release the watcher goroutine.
func CombineContext(primary, secondary context.Context) (context.Context, context.CancelFunc) {
	combined, cancel := context.WithCancel(primary)

	var once sync.Once
	stop := make(chan struct{})
	go func() {
		select {
		case <-secondary.Done():
			cancel()
		case <-combined.Done():
		case <-stop:
		}
	}()

	return combined, func() {
		once.Do(func() { close(stop) })
		cancel()
	}
}
