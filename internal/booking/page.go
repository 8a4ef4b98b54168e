package booking

import (
	"context"
	"time"
)

// Page is the slice of browser behavior the booking stages need. The real
// implementation drives Chrome (internal/browser); tests script it.
//
// The ...AndWait variants pair the triggering action with a settle wait for
// the postback navigation it causes, since the site re-renders the whole
// page on most interactions.
type Page interface {
	Navigate(ctx context.Context, url string) error

	Click(ctx context.Context, sel string) error
	ClickAndWait(ctx context.Context, sel string) error
	// ClickIndexedAndWait clicks the index-th match of sel (0-based).
	ClickIndexedAndWait(ctx context.Context, sel string, index int) error
	// ClickMatchingText clicks the first match of sel whose trimmed text
	// equals text.
	ClickMatchingText(ctx context.Context, sel, text string) error

	SetValue(ctx context.Context, sel, value string) error
	SelectOption(ctx context.Context, sel, value string) error
	SelectOptionAndWait(ctx context.Context, sel, value string) error

	Value(ctx context.Context, sel string) (string, error)
	Text(ctx context.Context, sel string) (string, error)
	Attribute(ctx context.Context, sel, name string) (string, error)
	WaitVisible(ctx context.Context, sel string, timeout time.Duration) error

	// CaptureElement screenshots a single element into path.
	CaptureElement(ctx context.Context, sel, path string) error
	CaptureScreen(ctx context.Context, path string) error

	// SendKeys sends raw keystrokes to whatever currently has focus.
	SendKeys(ctx context.Context, keys string) error

	Location(ctx context.Context) (string, error)

	// AcceptDialogs installs an auto-accept handler for JavaScript dialogs
	// and returns the function that tears it down.
	AcceptDialogs(ctx context.Context) (release func())
}
