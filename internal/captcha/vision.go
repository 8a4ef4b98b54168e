package captcha

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const (
	visionScope  = "https://www.googleapis.com/auth/generative-language.retriever"
	visionPrompt = "Read and return ONLY the text characters from this CAPTCHA image. " +
		"Do not include any explanations, punctuation, or additional text. Just the characters."
	defaultModel  = "gemini-flash-latest"
	visionTimeout = 30 * time.Second
)

// Vision reads the confirmation challenge with a vision-capable model.
// Any transport, auth, or empty-reply failure surfaces as an error; the
// confirmation stage owns the bounded retry and the degraded-mode fallback.
type Vision struct {
	Endpoint   string // override for tests; defaults to the Gemini API
	Model      string
	HTTPClient *http.Client
	Tokens     oauth2.TokenSource
}

// NewVision builds a solver from a service-account credentials file.
func NewVision(ctx context.Context, credentialsPath, model string) (*Vision, error) {
	raw, err := os.ReadFile(credentialsPath)
	if err != nil {
		return nil, fmt.Errorf("reading service credentials: %w", err)
	}
	creds, err := google.CredentialsFromJSON(ctx, raw, visionScope)
	if err != nil {
		return nil, fmt.Errorf("parsing service credentials: %w", err)
	}
	if model == "" {
		model = defaultModel
	}
	return &Vision{
		Model:      model,
		HTTPClient: &http.Client{Timeout: visionTimeout},
		Tokens:     creds.TokenSource,
	}, nil
}

type visionRequest struct {
	Contents         []visionContent  `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type visionContent struct {
	Parts []visionPart `json:"parts"`
}

type visionPart struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inline_data,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type generationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type visionResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// Solve sends the image with a constrained prompt and returns the sanitized
// characters the model read.
func (v *Vision) Solve(ctx context.Context, imagePath string) (string, error) {
	img, err := os.ReadFile(imagePath)
	if err != nil {
		return "", fmt.Errorf("reading captcha image: %w", err)
	}

	payload := visionRequest{
		Contents: []visionContent{{
			Parts: []visionPart{
				{Text: visionPrompt},
				{InlineData: &inlineData{
					MimeType: "image/png",
					Data:     base64.StdEncoding.EncodeToString(img),
				}},
			},
		}},
		GenerationConfig: generationConfig{Temperature: 0.1, MaxOutputTokens: 20},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.endpoint(), bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	if v.Tokens != nil {
		tok, err := v.Tokens.Token()
		if err != nil {
			return "", fmt.Errorf("fetching bearer token: %w", err)
		}
		tok.SetAuthHeader(req)
	}

	client := v.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: visionTimeout}
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("vision request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("vision request returned %s", resp.Status)
	}

	var parsed visionResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decoding vision response: %w", err)
	}
	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("%w: empty model reply", ErrDetection)
	}

	answer := Sanitize(parsed.Candidates[0].Content.Parts[0].Text)
	if answer == "" {
		return "", fmt.Errorf("%w: model reply had no characters", ErrDetection)
	}
	return answer, nil
}

func (v *Vision) endpoint() string {
	if v.Endpoint != "" {
		return v.Endpoint
	}
	model := v.Model
	if model == "" {
		model = defaultModel
	}
	return fmt.Sprintf("https://generativelanguage.googleapis.com/v1beta/models/%s:generateContent", model)
}
