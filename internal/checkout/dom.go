// File: internal/checkout/dom.go
package checkout

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xkilldash9x/checkout-cli/internal/browser"
)

// Text-based probes. The target UI identifies most actionable controls by
// label text rather than stable attributes, so these helpers scan the
// document (and any same-origin iframes) for visible elements whose own text
// matches a pattern. Cross-origin frames are skipped silently.

const domHelpers = `
	function __docs() {
		const docs = [document];
		for (const f of document.querySelectorAll('iframe')) {
			try { if (f.contentDocument) docs.push(f.contentDocument); } catch (e) {}
		}
		return docs;
	}
	function __visible(node) {
		const rect = node.getBoundingClientRect();
		const style = node.ownerDocument.defaultView.getComputedStyle(node);
		return rect.width > 0 && rect.height > 0 &&
			style.display !== 'none' && style.visibility !== 'hidden';
	}
	function __findText(pattern) {
		const re = new RegExp(pattern, 'i');
		for (const doc of __docs()) {
			const walker = doc.createTreeWalker(doc.body || doc.documentElement, NodeFilter.SHOW_ELEMENT);
			let node;
			while ((node = walker.nextNode())) {
				if (node.childElementCount > 0 && !['BUTTON','A','LABEL'].includes(node.tagName)) continue;
				const text = (node.innerText || node.textContent || '').trim();
				if (text && re.test(text) && __visible(node)) return node;
			}
		}
		return null;
	}
`

// textVisible reports whether any visible element's text matches the
// case-insensitive pattern.
func textVisible(ctx context.Context, drv browser.Driver, pattern string) (bool, error) {
	script := fmt.Sprintf(`(function() { %s return __findText(%s) !== null; })()`,
		domHelpers, jsString(pattern))
	var found bool
	if err := drv.Evaluate(ctx, script, &found); err != nil {
		return false, err
	}
	return found, nil
}

// clickText clicks the first visible element whose text matches the pattern.
func clickText(ctx context.Context, drv browser.Driver, pattern string) error {
	script := fmt.Sprintf(`(function() {
		%s
		const node = __findText(%s);
		if (!node) return false;
		node.click();
		return true;
	})()`, domHelpers, jsString(pattern))

	var clicked bool
	if err := drv.Evaluate(ctx, script, &clicked); err != nil {
		return fmt.Errorf("click by text %q failed: %w", pattern, err)
	}
	if !clicked {
		return fmt.Errorf("no visible element matching text %q", pattern)
	}
	return nil
}

// clickTextAncestor clicks the nearest label or div enclosing the matched
// text. The card payment option renders its radio control on an ancestor of
// the label text, so clicking the text node itself does nothing.
func clickTextAncestor(ctx context.Context, drv browser.Driver, pattern string) error {
	script := fmt.Sprintf(`(function() {
		%s
		const node = __findText(%s);
		if (!node) return false;
		const target = node.closest('label, div') || node;
		target.click();
		return true;
	})()`, domHelpers, jsString(pattern))

	var clicked bool
	if err := drv.Evaluate(ctx, script, &clicked); err != nil {
		return fmt.Errorf("click by text %q failed: %w", pattern, err)
	}
	if !clicked {
		return fmt.Errorf("no visible element matching text %q", pattern)
	}
	return nil
}

// textContent returns the trimmed text of the first visible match, or "".
func textContent(ctx context.Context, drv browser.Driver, pattern string) (string, error) {
	script := fmt.Sprintf(`(function() {
		%s
		const node = __findText(%s);
		return node ? (node.innerText || node.textContent || '').trim() : '';
	})()`, domHelpers, jsString(pattern))

	var text string
	if err := drv.Evaluate(ctx, script, &text); err != nil {
		return "", err
	}
	return text, nil
}

// selectorText returns the trimmed text of the first match of a CSS
// selector, or "" when nothing matches.
func selectorText(ctx context.Context, drv browser.Driver, selector string) (string, error) {
	script := fmt.Sprintf(`(function() {
		const node = document.querySelector(%s);
		return node ? (node.innerText || node.textContent || '').trim() : '';
	})()`, jsString(selector))

	var text string
	if err := drv.Evaluate(ctx, script, &text); err != nil {
		return "", err
	}
	return text, nil
}

// addressOption is one saved delivery address scraped from the page.
type addressOption struct {
	Name string `json:"name"`
	Text string `json:"text"`
}

// listAddresses enumerates the saved delivery addresses. Each address block
// is a label wrapping a radio input named "address"; the recipient name and
// the address body are best-effort text extractions within the block.
func listAddresses(ctx context.Context, drv browser.Driver) ([]addressOption, error) {
	script := `(function() {
		const out = [];
		for (const input of document.querySelectorAll('label input[name="address"]')) {
			const label = input.closest('label');
			if (!label) continue;
			let name = '';
			const nameNode = label.querySelector('p > span:first-child, span');
			if (nameNode) name = (nameNode.textContent || '').trim();
			const text = (label.innerText || label.textContent || '')
				.replace(/\s+/g, ' ').trim();
			out.push({ name: name, text: text });
		}
		return out;
	})()`

	var addresses []addressOption
	if err := drv.Evaluate(ctx, script, &addresses); err != nil {
		return nil, fmt.Errorf("failed to enumerate addresses: %w", err)
	}
	return addresses, nil
}

// clickAddress clicks the idx-th address label.
func clickAddress(ctx context.Context, drv browser.Driver, idx int) error {
	script := fmt.Sprintf(`(function() {
		const inputs = document.querySelectorAll('label input[name="address"]');
		if (%d >= inputs.length) return false;
		const label = inputs[%d].closest('label');
		if (!label) return false;
		label.click();
		return true;
	})()`, idx, idx)

	var clicked bool
	if err := drv.Evaluate(ctx, script, &clicked); err != nil {
		return fmt.Errorf("failed to click address %d: %w", idx, err)
	}
	if !clicked {
		return fmt.Errorf("address %d no longer present", idx)
	}
	return nil
}

// jsString encodes a Go string as a JS string literal.
func jsString(s string) string {
	b, err := json.Marshal(s)
	if err != nil {
		return `""`
	}
	return string(b)
}

// summaryTotal extracts the payable total shown on the order summary, e.g.
// "₹1,299". Empty when no amount is visible.
func summaryTotal(ctx context.Context, drv browser.Driver) (string, error) {
	text, err := textContent(ctx, drv, `₹\s*[\d,]+`)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}
