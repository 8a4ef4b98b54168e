package booking

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"courtbook/internal/retry"
)

// login drives the credential + arithmetic-CAPTCHA loop:
//
//	AwaitingCaptcha -> FieldsFilled -> Submitted -> {Success | CaptchaRejected}
//
// A rejected answer loops back with a freshly captured challenge; a
// challenge image is never rescored. The loop is bounded by MaxLoginCycles
// so a permanently misreading OCR pipeline cannot livelock the run.
func (f *Flow) login(ctx context.Context) error {
	for cycle := 1; cycle <= f.Cfg.MaxLoginCycles; cycle++ {
		answer, err := f.solveLoginCaptcha(ctx, cycle)
		if err != nil {
			// Detection kept failing across captures: fatal for the run.
			return fmt.Errorf("login captcha unusable: %w", err)
		}
		f.Log.Info().Int("cycle", cycle).Str("answer", answer).Msg("solved login captcha")

		if err := f.fillLoginForm(ctx, answer); err != nil {
			return fmt.Errorf("filling login form: %w", err)
		}
		if err := f.Page.ClickAndWait(ctx, selLoginButton); err != nil {
			return fmt.Errorf("submitting login: %w", err)
		}

		msg := f.loginErrorMessage(ctx)
		if msg == "" {
			f.Log.Info().Int("cycle", cycle).Msg("logged in")
			return nil
		}
		f.Log.Warn().Int("cycle", cycle).Str("message", msg).Msg("captcha rejected, retrying with a new challenge")
	}
	return fmt.Errorf("%w: %d cycles (%w)", ErrLoginExhausted, f.Cfg.MaxLoginCycles, ErrCaptchaRejected)
}

// solveLoginCaptcha captures the challenge element and OCRs it. Every retry
// attempt captures a fresh image; the arithmetic solver never retries
// internally because rescoring the same pixels cannot change the outcome.
func (f *Flow) solveLoginCaptcha(ctx context.Context, cycle int) (string, error) {
	return retry.Value(ctx, &f.Log, "solve login captcha", f.StepRetry, func(ctx context.Context) (string, error) {
		path := filepath.Join(f.Cfg.ScratchDir,
			fmt.Sprintf("captcha-login-%s-%d-%s.png", f.Cfg.RunID, cycle, uuid.NewString()[:8]))
		if err := f.Page.CaptureElement(ctx, selLoginCaptcha, path); err != nil {
			return "", err
		}
		return f.Arith.Solve(ctx, path)
	})
}

// fillLoginForm is idempotent: on re-entry after a rejected CAPTCHA the
// credential fields are still populated and only the answer is replaced.
func (f *Flow) fillLoginForm(ctx context.Context, answer string) error {
	if v, _ := f.Page.Value(ctx, selUsername); v == "" {
		if err := f.Page.SetValue(ctx, selUsername, f.Cfg.Username); err != nil {
			return err
		}
	}
	if v, _ := f.Page.Value(ctx, selPassword); v == "" {
		if err := f.Page.SetValue(ctx, selPassword, f.Cfg.Password); err != nil {
			return err
		}
	}
	if v, _ := f.Page.Value(ctx, selUserType); v == "" {
		if err := f.Page.SelectOption(ctx, selUserType, f.Cfg.UserType); err != nil {
			return err
		}
	}
	if err := f.Page.SelectOption(ctx, selOrganization, f.Cfg.Organization); err != nil {
		return err
	}

	if err := f.Page.SetValue(ctx, selCaptchaAnswer, ""); err != nil {
		return err
	}
	return f.Page.SetValue(ctx, selCaptchaAnswer, answer)
}

// loginErrorMessage polls for the page-rendered error label, which shows up
// a beat after the postback when the answer was wrong. Exhausting the poll
// without finding it means the login went through.
func (f *Flow) loginErrorMessage(ctx context.Context) string {
	msg, err := retry.Value(ctx, &f.Log, "check login error", f.ErrorPoll, func(ctx context.Context) (string, error) {
		return f.Page.Text(ctx, selLoginMessage)
	})
	if err != nil {
		return ""
	}
	return strings.TrimSpace(msg)
}
