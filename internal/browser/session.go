// Package browser is the chromedp-backed implementation of booking.Page.
// One Session owns one Chrome process and one tab for the whole run; the
// window is left open after a successful booking so payment can be
// completed by hand.
package browser

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/rs/zerolog"

	"courtbook/internal/booking"
	"courtbook/internal/config"
)

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// findTimeout bounds how long element operations wait for their node before
// reporting it missing. The retry layer above decides whether to try again.
const findTimeout = 10 * time.Second

// Session drives a single Chrome tab.
type Session struct {
	ctx    context.Context
	cancel context.CancelFunc
	log    zerolog.Logger
}

// NewSession launches Chrome and opens the run's tab. The browser dies when
// Close is called or parent is canceled.
func NewSession(parent context.Context, cfg config.Run, log zerolog.Logger) (*Session, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("headless", cfg.Headless),
		chromedp.UserAgent(userAgent),
	)
	if cfg.ReuseProfile && cfg.ProfileDir != "" {
		opts = append(opts, chromedp.UserDataDir(cfg.ProfileDir))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(parent, opts...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)

	cancel := func() {
		tabCancel()
		allocCancel()
	}

	// Start the browser now so launch failures surface here, not on the
	// first navigation.
	if err := chromedp.Run(tabCtx); err != nil {
		cancel()
		return nil, fmt.Errorf("launching chrome: %w", err)
	}

	log.Debug().Bool("headless", cfg.Headless).Bool("reuse_profile", cfg.ReuseProfile).Msg("chrome started")
	return &Session{ctx: tabCtx, cancel: cancel, log: log}, nil
}

// Close tears the browser down. Callers skip it on success to leave the
// payment window open.
func (s *Session) Close() {
	s.cancel()
}

// run executes actions on the session tab while honoring the caller's
// context: chromedp actions must run on the tab context, so cancellation is
// forwarded instead of passed through.
func (s *Session) run(ctx context.Context, actions ...chromedp.Action) error {
	opCtx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	if err := chromedp.Run(opCtx, actions...); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return err
	}
	return nil
}

// runOnElement is run with a find deadline; a timeout means the node never
// showed up and maps to booking.ErrElementNotFound.
func (s *Session) runOnElement(ctx context.Context, sel string, actions ...chromedp.Action) error {
	opCtx, cancel := context.WithTimeout(ctx, findTimeout)
	defer cancel()
	if err := s.run(opCtx, actions...); err != nil {
		if opCtx.Err() != nil && ctx.Err() == nil {
			return fmt.Errorf("%w: %s", booking.ErrElementNotFound, sel)
		}
		return fmt.Errorf("%s: %w", sel, err)
	}
	return nil
}

// settle waits out the full-page postback the site answers most clicks with.
func settle() chromedp.Action {
	return chromedp.WaitReady("body", chromedp.ByQuery)
}

func (s *Session) Navigate(ctx context.Context, url string) error {
	return s.run(ctx, chromedp.Navigate(url), settle())
}

func (s *Session) Click(ctx context.Context, sel string) error {
	return s.runOnElement(ctx, sel, chromedp.Click(sel, chromedp.ByQuery))
}

func (s *Session) ClickAndWait(ctx context.Context, sel string) error {
	return s.runOnElement(ctx, sel, chromedp.Click(sel, chromedp.ByQuery), settle())
}

func (s *Session) ClickIndexedAndWait(ctx context.Context, sel string, index int) error {
	js := fmt.Sprintf(`
        (function() {
            const els = document.querySelectorAll(%q);
            if (els.length <= %d) return false;
            els[%d].click();
            return true;
        })()`, sel, index, index)
	return s.clickByScript(ctx, fmt.Sprintf("%s[%d]", sel, index), js)
}

func (s *Session) ClickMatchingText(ctx context.Context, sel, text string) error {
	js := fmt.Sprintf(`
        (function() {
            for (const el of document.querySelectorAll(%q)) {
                if (el.innerText.trim() === %q) {
                    el.click();
                    return true;
                }
            }
            return false;
        })()`, sel, text)
	return s.clickByScript(ctx, fmt.Sprintf("%s=%q", sel, text), js)
}

func (s *Session) clickByScript(ctx context.Context, desc, js string) error {
	var clicked bool
	if err := s.runOnElement(ctx, desc, chromedp.EvaluateAsDevTools(js, &clicked)); err != nil {
		return err
	}
	if !clicked {
		return fmt.Errorf("%w: %s", booking.ErrElementNotFound, desc)
	}
	return s.run(ctx, settle())
}

func (s *Session) SetValue(ctx context.Context, sel, value string) error {
	return s.runOnElement(ctx, sel, chromedp.SetValue(sel, value, chromedp.ByQuery))
}

// SelectOption sets a <select>'s value and fires the change event the
// site's postback handlers hang off.
func (s *Session) SelectOption(ctx context.Context, sel, value string) error {
	return s.selectOption(ctx, sel, value, false)
}

func (s *Session) SelectOptionAndWait(ctx context.Context, sel, value string) error {
	return s.selectOption(ctx, sel, value, true)
}

func (s *Session) selectOption(ctx context.Context, sel, value string, wait bool) error {
	js := fmt.Sprintf(`
        (function() {
            const el = document.querySelector(%q);
            if (!el) return false;
            el.value = %q;
            el.dispatchEvent(new Event('change', { bubbles: true }));
            return true;
        })()`, sel, value)
	var ok bool
	if err := s.runOnElement(ctx, sel, chromedp.EvaluateAsDevTools(js, &ok)); err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", booking.ErrElementNotFound, sel)
	}
	if wait {
		return s.run(ctx, settle())
	}
	return nil
}

func (s *Session) Value(ctx context.Context, sel string) (string, error) {
	var v string
	if err := s.runOnElement(ctx, sel, chromedp.Value(sel, &v, chromedp.ByQuery)); err != nil {
		return "", err
	}
	return v, nil
}

func (s *Session) Text(ctx context.Context, sel string) (string, error) {
	var v string
	if err := s.runOnElement(ctx, sel, chromedp.Text(sel, &v, chromedp.ByQuery)); err != nil {
		return "", err
	}
	return v, nil
}

func (s *Session) Attribute(ctx context.Context, sel, name string) (string, error) {
	var v string
	var ok bool
	if err := s.runOnElement(ctx, sel, chromedp.AttributeValue(sel, name, &v, &ok, chromedp.ByQuery)); err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("%w: %s[%s]", booking.ErrElementNotFound, sel, name)
	}
	return v, nil
}

func (s *Session) WaitVisible(ctx context.Context, sel string, timeout time.Duration) error {
	opCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := s.run(opCtx, chromedp.WaitVisible(sel, chromedp.ByQuery)); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %s", booking.ErrElementNotFound, sel)
	}
	return nil
}

func (s *Session) CaptureElement(ctx context.Context, sel, path string) error {
	var buf []byte
	if err := s.runOnElement(ctx, sel, chromedp.Screenshot(sel, &buf, chromedp.ByQuery)); err != nil {
		return err
	}
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

func (s *Session) CaptureScreen(ctx context.Context, path string) error {
	var buf []byte
	if err := s.run(ctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return err
	}
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// SendKeys types into whatever has focus, one chromedp key event per call.
func (s *Session) SendKeys(ctx context.Context, keys string) error {
	return s.run(ctx, chromedp.KeyEvent(keys))
}

func (s *Session) Location(ctx context.Context) (string, error) {
	var url string
	if err := s.run(ctx, chromedp.Location(&url)); err != nil {
		return "", err
	}
	return url, nil
}

// AcceptDialogs installs an auto-accept handler for JavaScript dialogs on
// the tab. The returned release detaches it, so confirm dialogs elsewhere
// in the flow keep their default behavior.
func (s *Session) AcceptDialogs(ctx context.Context) func() {
	listenCtx, cancel := context.WithCancel(s.ctx)
	chromedp.ListenTarget(listenCtx, func(ev interface{}) {
		if e, ok := ev.(*page.EventJavascriptDialogOpening); ok {
			s.log.Debug().Str("message", e.Message).Msg("auto-accepting dialog")
			go func() {
				_ = chromedp.Run(s.ctx, chromedp.ActionFunc(func(c context.Context) error {
					return page.HandleJavaScriptDialog(true).Do(c)
				}))
			}()
		}
	})
	return cancel
}
