// Package captcha resolves the two challenge kinds the reservation site
// serves: an arithmetic puzzle at login and an opaque alphanumeric code at
// final confirmation.
package captcha

import (
	"context"
	"errors"
	"strings"
)

// ErrDetection reports that a challenge image could not be turned into a
// usable answer. Re-scoring the same image will not help; callers retry by
// capturing a fresh challenge.
var ErrDetection = errors.New("captcha: no usable answer detected")

// Solver turns a captured challenge image into the textual answer to type
// into the site's answer field.
type Solver interface {
	Solve(ctx context.Context, imagePath string) (string, error)
}

// Sanitize strips everything that is not a letter or digit. Model replies
// and URL-embedded answers both arrive with stray whitespace or punctuation.
func Sanitize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
			b.WriteRune(r)
		}
	}
	return b.String()
}
