package captcha

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/otiai10/gosseract/v2"
)

var digitRuns = regexp.MustCompile(`\d+`)

// Arithmetic solves the login challenge, which always renders "A + B = ?".
// The answer is the sum of the two operands read off the image by Tesseract.
type Arithmetic struct {
	// Languages passed to Tesseract; defaults to eng.
	Languages []string
}

// Solve OCRs the image at path and returns the sum as decimal text.
// The same image is never rescored: on ErrDetection the caller must capture
// a fresh challenge before calling again.
func (a *Arithmetic) Solve(ctx context.Context, imagePath string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	prepared, err := preprocess(imagePath)
	if err != nil {
		return "", fmt.Errorf("preparing captcha image: %w", err)
	}

	client := gosseract.NewClient()
	defer client.Close()

	langs := a.Languages
	if len(langs) == 0 {
		langs = []string{"eng"}
	}
	if err := client.SetLanguage(langs...); err != nil {
		return "", fmt.Errorf("configuring ocr language: %w", err)
	}
	// The puzzle only ever contains digits and the operator glyphs.
	if err := client.SetWhitelist("0123456789+=? "); err != nil {
		return "", fmt.Errorf("configuring ocr whitelist: %w", err)
	}
	if err := client.SetImage(prepared); err != nil {
		return "", fmt.Errorf("loading captcha image: %w", err)
	}

	text, err := client.Text()
	if err != nil {
		return "", fmt.Errorf("running ocr: %w", err)
	}

	x, y, err := ExtractOperands(text)
	if err != nil {
		return "", err
	}
	return strconv.Itoa(x + y), nil
}

// ExtractOperands pulls the first two decimal-digit runs out of OCR text, in
// image order. Fewer than two runs means the OCR pass produced garbage.
func ExtractOperands(text string) (int, int, error) {
	runs := digitRuns.FindAllString(text, -1)
	if len(runs) < 2 {
		return 0, 0, fmt.Errorf("%w: found %d number(s) in %q", ErrDetection, len(runs), strings.TrimSpace(text))
	}
	x, err := strconv.Atoi(runs[0])
	if err != nil {
		return 0, 0, fmt.Errorf("%w: operand %q", ErrDetection, runs[0])
	}
	y, err := strconv.Atoi(runs[1])
	if err != nil {
		return 0, 0, fmt.Errorf("%w: operand %q", ErrDetection, runs[1])
	}
	return x, y, nil
}

// preprocess upscales and cleans the captured element so Tesseract sees
// crisp glyphs instead of the site's low-contrast 80x30 strip. Returns the
// path of the prepared copy.
func preprocess(imagePath string) (string, error) {
	src, err := imaging.Open(imagePath)
	if err != nil {
		return "", err
	}

	img := imaging.Grayscale(src)
	img = imaging.Resize(img, img.Bounds().Dx()*3, 0, imaging.Lanczos)
	img = imaging.AdjustContrast(img, 20)
	img = imaging.Sharpen(img, 1.0)

	out := imagePath + ".ocr.png"
	if err := imaging.Save(img, out); err != nil {
		return "", err
	}
	return out, nil
}
