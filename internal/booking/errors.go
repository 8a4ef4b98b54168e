package booking

import "errors"

var (
	// ErrElementNotFound reports that an expected DOM node never appeared.
	// Retryable inside a stage; fatal when the site's fixed layout is the
	// thing that is missing.
	ErrElementNotFound = errors.New("booking: expected element not found")

	// ErrCaptchaRejected means the site declared a submitted answer wrong.
	ErrCaptchaRejected = errors.New("booking: captcha answer rejected by site")

	// ErrLoginExhausted is returned when the bounded login loop runs out of
	// cycles without the site accepting a challenge answer.
	ErrLoginExhausted = errors.New("booking: login cycles exhausted")

	// ErrConfirmExhausted is returned when the confirmation loop keeps
	// hitting the wrong-code modal.
	ErrConfirmExhausted = errors.New("booking: confirmation attempts exhausted")
)
