package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"courtbook/internal/auth"
	"courtbook/internal/launcher"
)

func newTestServer(t *testing.T, script string) *httptest.Server {
	t.Helper()
	bin := filepath.Join(t.TempDir(), "automation.sh")
	require.NoError(t, os.WriteFile(bin, []byte("#!/bin/sh\n"+script), 0o755))

	registry, err := auth.OpenRegistry(filepath.Join(t.TempDir(), "devices.db"))
	require.NoError(t, err)
	t.Cleanup(func() { registry.Close() })

	runs := launcher.NewManager(bin, "device-server", zerolog.Nop())
	srv := httptest.NewServer(New(runs, registry, zerolog.Nop()).Router())
	t.Cleanup(srv.Close)
	return srv
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(b))
	require.NoError(t, err)
	return resp
}

func decode(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

func TestStartBookingValidatesFields(t *testing.T) {
	srv := newTestServer(t, "exit 0")

	resp := postJSON(t, srv.URL+"/api/bookings", map[string]string{
		"username": "member01",
		"date":     "15/03/2025",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var body struct {
		Error    string   `json:"error"`
		Required []string `json:"required"`
	}
	decode(t, resp, &body)
	assert.Equal(t, "Missing required fields", body.Error)
	assert.ElementsMatch(t, []string{"password", "courtNumber", "timeSlot"}, body.Required)
}

func TestStartBookingAndPollStatus(t *testing.T) {
	srv := newTestServer(t, `echo "PAYMENT_URL_OUTPUT:https://pay.example/order/7"`)

	resp := postJSON(t, srv.URL+"/api/bookings", map[string]any{
		"username":    "member01",
		"password":    "hunter2",
		"date":        "15/03/2025",
		"courtNumber": "7",
		"timeSlot":    "20",
	})
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	var started struct {
		Success      bool   `json:"success"`
		AutomationID string `json:"automationId"`
		Status       string `json:"status"`
	}
	decode(t, resp, &started)
	assert.True(t, started.Success)
	require.NotEmpty(t, started.AutomationID)
	assert.Equal(t, "running", started.Status)

	var status struct {
		AutomationID string           `json:"automationId"`
		Status       string           `json:"status"`
		Result       *launcher.Result `json:"result"`
	}
	deadline := time.Now().Add(5 * time.Second)
	for {
		resp, err := http.Get(srv.URL + "/api/bookings/" + started.AutomationID)
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		decode(t, resp, &status)
		if status.Status != "running" || time.Now().After(deadline) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	assert.Equal(t, "completed", status.Status)
	require.NotNil(t, status.Result)
	assert.Equal(t, "https://pay.example/order/7", status.Result.PaymentURL)

	listResp, err := http.Get(srv.URL + "/api/bookings")
	require.NoError(t, err)
	var list struct {
		Automations []json.RawMessage `json:"automations"`
	}
	decode(t, listResp, &list)
	assert.Len(t, list.Automations, 1)
}

func TestGetBookingNotFound(t *testing.T) {
	srv := newTestServer(t, "exit 0")
	resp, err := http.Get(srv.URL + "/api/bookings/mobile-0-0000")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestDeviceRegisterAndVerify(t *testing.T) {
	srv := newTestServer(t, "exit 0")

	resp := postJSON(t, srv.URL+"/api/devices/register", map[string]string{
		"deviceName":  "laptop-01",
		"deviceToken": "device-aaaa",
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var reg struct {
		DeviceToken string `json:"deviceToken"`
	}
	decode(t, resp, &reg)
	assert.Equal(t, "device-aaaa", reg.DeviceToken)

	verify := postJSON(t, srv.URL+"/api/devices/verify", map[string]string{"deviceToken": "device-aaaa"})
	defer verify.Body.Close()
	assert.Equal(t, http.StatusOK, verify.StatusCode)

	unknown := postJSON(t, srv.URL+"/api/devices/verify", map[string]string{"deviceToken": "device-zzzz"})
	defer unknown.Body.Close()
	assert.Equal(t, http.StatusForbidden, unknown.StatusCode)
}

func TestDeviceVerifyRequiresToken(t *testing.T) {
	srv := newTestServer(t, "exit 0")
	resp := postJSON(t, srv.URL+"/api/devices/verify", map[string]string{})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
