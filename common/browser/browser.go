package browser

import (
	"context"
	"time"
)

// Session is a single coherent browser page against one portal. Scrapers
// drive it through this interface so the state machines can be exercised
// in tests without a real browser behind them.
type Session interface {
	// Navigate loads the URL and waits for the page to settle
	Navigate(ctx context.Context, url string) error

	// Reload reloads the current page, keeping cookies and storage
	Reload(ctx context.Context) error

	// WaitStable waits until the page stops mutating, bounded by timeout
	WaitStable(ctx context.Context, timeout time.Duration) error

	// Has reports whether at least one element matches the selector
	Has(ctx context.Context, selector string) (bool, error)

	// Type focuses the element and replaces its value with text
	Type(ctx context.Context, selector string, text string) error

	// TypeAt fills the index-th element matching the selector. Portals
	// sometimes reuse one generic input selector for several fields.
	TypeAt(ctx context.Context, selector string, index int, text string) error

	// Click activates the element, escalating through click strategies
	// until one of them lands
	Click(ctx context.Context, selector string) error

	// ClickText activates the first element matching selector whose text
	// matches the pattern, with the same escalation as Click
	ClickText(ctx context.Context, selector string, pattern string) error

	// PressEnter sends an Enter keystroke to the focused element
	PressEnter(ctx context.Context) error

	// Eval runs a JS function on the page and returns its result as a string
	Eval(ctx context.Context, js string) (string, error)

	// HTML returns the current serialized DOM
	HTML(ctx context.Context) (string, error)

	// LocalStorageItem reads a key from the page's localStorage
	LocalStorageItem(ctx context.Context, key string) (string, error)

	// WaitDownload runs trigger and waits for the download it starts,
	// returning the file bytes and the suggested file name
	WaitDownload(ctx context.Context, trigger func() error, timeout time.Duration) ([]byte, string, error)

	// Exchanges exposes the buffer of captured network responses
	Exchanges() *ExchangeBuffer

	// Close releases the page and the browser connection
	Close() error
}
