// Package booking drives one end-to-end reservation attempt against the
// sports-facility site: login past the arithmetic CAPTCHA, walk the wizard,
// poll for the court to become available, clear the confirmation CAPTCHA,
// accept the terms, and report the payment URL.
package booking

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"courtbook/internal/captcha"
	"courtbook/internal/config"
	"courtbook/internal/retry"
)

// Result is a run's terminal output. The browser stays open afterwards so a
// human can complete payment at the reported URL.
type Result struct {
	PaymentURL string
}

// Flow executes the booking stages strictly in order against one Page.
// Stages never run concurrently; the only sanctioned parallelism is the
// confirmation screenshot.
type Flow struct {
	Page   Page
	Arith  captcha.Solver
	Vision captcha.Solver // nil when no vision credentials are configured
	Cfg    config.Run
	Log    zerolog.Logger

	// Pacing. Overridable in tests; NewFlow sets the production values.
	KeyDelay  time.Duration
	Cooldown  time.Duration
	ModalWait time.Duration
	StepRetry retry.Policy
	ErrorPoll retry.Policy
}

// NewFlow wires a flow with production pacing.
func NewFlow(page Page, arith, vision captcha.Solver, cfg config.Run, log zerolog.Logger) *Flow {
	return &Flow{
		Page:      page,
		Arith:     arith,
		Vision:    vision,
		Cfg:       cfg,
		Log:       log,
		KeyDelay:  300 * time.Millisecond,
		Cooldown:  2 * time.Second,
		ModalWait: 1500 * time.Millisecond,
		StepRetry: retry.Default,
		ErrorPoll: retry.Policy{Attempts: 3, Delay: 500 * time.Millisecond},
	}
}

// Run executes every stage. Each stage's success is a precondition for the
// next; the first unrecovered error aborts the run.
func (f *Flow) Run(ctx context.Context) (Result, error) {
	f.Log.Info().Str("url", f.Cfg.BaseURL).Msg("opening login page")
	if err := f.Page.Navigate(ctx, f.Cfg.BaseURL); err != nil {
		return Result{}, fmt.Errorf("opening login page: %w", err)
	}

	if err := f.login(ctx); err != nil {
		return Result{}, err
	}
	if err := f.openBookingMenu(ctx); err != nil {
		return Result{}, err
	}
	if err := f.selectDate(ctx); err != nil {
		return Result{}, err
	}
	if err := f.selectGame(ctx); err != nil {
		return Result{}, err
	}
	if err := f.selectCategory(ctx); err != nil {
		return Result{}, err
	}
	if err := f.acquireCourt(ctx); err != nil {
		return Result{}, err
	}
	if err := f.confirm(ctx); err != nil {
		return Result{}, err
	}

	paymentURL, err := f.acceptTerms(ctx)
	if err != nil {
		return Result{}, err
	}

	f.Log.Info().Str("payment_url", paymentURL).Msg("booking complete, window stays open for payment")
	return Result{PaymentURL: paymentURL}, nil
}

// openBookingMenu clicks the member menu's booking entry. The menu layout
// is assumed stable, so a missing link is fatal for the run.
func (f *Flow) openBookingMenu(ctx context.Context) error {
	f.Log.Info().Msg("navigating to booking page")
	if err := retry.Do(ctx, &f.Log, "open booking menu", f.StepRetry, func(ctx context.Context) error {
		return f.Page.ClickIndexedAndWait(ctx, selMenuLinks, bookingMenuIndex)
	}); err != nil {
		return fmt.Errorf("booking menu entry missing: %w", err)
	}
	return nil
}

// selectDate opens the picker and clicks the enabled day cell matching the
// target day-of-month. The picker opens on the month containing the date.
func (f *Flow) selectDate(ctx context.Context) error {
	f.Log.Info().Int("day", f.Cfg.Day).Msg("selecting booking date")
	day := strconv.Itoa(f.Cfg.Day)
	return retry.Do(ctx, &f.Log, "select booking date", f.StepRetry, func(ctx context.Context) error {
		if err := f.Page.Click(ctx, selDateInput); err != nil {
			return err
		}
		return f.Page.ClickMatchingText(ctx, selEnabledDays, day)
	})
}

func (f *Flow) selectGame(ctx context.Context) error {
	f.Log.Info().Str("game", f.Cfg.GameID).Msg("selecting game type")
	return retry.Do(ctx, &f.Log, "select game type", f.StepRetry, func(ctx context.Context) error {
		return f.Page.SelectOptionAndWait(ctx, selGames, f.Cfg.GameID)
	})
}

func (f *Flow) selectCategory(ctx context.Context) error {
	f.Log.Info().Str("category", f.Cfg.CategoryID).Msg("selecting game category")
	return retry.Do(ctx, &f.Log, "select game category", f.StepRetry, func(ctx context.Context) error {
		return f.Page.SelectOptionAndWait(ctx, selGameCategory, f.Cfg.CategoryID)
	})
}

// acceptTerms ticks the terms checkbox and confirms. Both elements can be
// momentarily absent while the page settles, so each click retries on its
// own. The URL the site lands on afterwards is the payment gateway.
func (f *Flow) acceptTerms(ctx context.Context) (string, error) {
	f.Log.Info().Msg("accepting terms and conditions")
	if err := retry.Do(ctx, &f.Log, "tick terms checkbox", f.StepRetry, func(ctx context.Context) error {
		return f.Page.Click(ctx, selTermsCheckbox)
	}); err != nil {
		return "", fmt.Errorf("terms checkbox: %w", err)
	}
	if err := retry.Do(ctx, &f.Log, "confirm terms", f.StepRetry, func(ctx context.Context) error {
		return f.Page.ClickAndWait(ctx, selTermsConfirm)
	}); err != nil {
		return "", fmt.Errorf("terms confirm button: %w", err)
	}
	paymentURL, err := f.Page.Location(ctx)
	if err != nil {
		return "", fmt.Errorf("reading payment url: %w", err)
	}
	return paymentURL, nil
}

func (f *Flow) pause(ctx context.Context, d time.Duration) error {
	return retry.Sleep(ctx, d)
}
