package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ErrDenied means the auth service answered and said no.
var ErrDenied = errors.New("device denied by auth service")

// Client talks to the booking server's device endpoints. Automation runs
// verify themselves before touching the reservation site.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
	}
}

type registerRequest struct {
	DeviceName  string `json:"deviceName"`
	DeviceToken string `json:"deviceToken"`
}

type registerResponse struct {
	DeviceToken string `json:"deviceToken"`
}

type verifyRequest struct {
	DeviceToken string `json:"deviceToken"`
}

// Register enrolls this device and returns the token the service settled
// on, which may be an earlier token for the same device name.
func (c *Client) Register(ctx context.Context, deviceName, deviceToken string) (string, error) {
	var resp registerResponse
	if err := c.post(ctx, "/api/devices/register", registerRequest{
		DeviceName:  deviceName,
		DeviceToken: deviceToken,
	}, &resp); err != nil {
		return "", err
	}
	if resp.DeviceToken == "" {
		return "", fmt.Errorf("auth service returned no token")
	}
	return resp.DeviceToken, nil
}

// Verify asks whether the device may run. ErrDenied distinguishes a
// deliberate rejection from the service being unreachable.
func (c *Client) Verify(ctx context.Context, deviceToken string) error {
	return c.post(ctx, "/api/devices/verify", verifyRequest{DeviceToken: deviceToken}, nil)
}

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("reaching auth service: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusUnauthorized:
		return fmt.Errorf("%w: %s", ErrDenied, path)
	case resp.StatusCode != http.StatusOK:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("auth service %s: status %d: %s", path, resp.StatusCode, bytes.TrimSpace(msg))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decoding auth response: %w", err)
		}
	}
	return nil
}
