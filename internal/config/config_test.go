package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("USERNAME", "S2065")
	t.Setenv("PASSWORD", "secret")
	t.Setenv("BOOKING_DATE", "15/03/2025")
	t.Setenv("COURT_NUMBER", "7")
	t.Setenv("TIME_SLOT", "20")
	t.Setenv("DEVICE_TOKEN", "device-abc123")
}

func TestFromEnvDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, 15, cfg.Day)
	assert.Equal(t, "7", cfg.Court)
	assert.Equal(t, "20", cfg.TimeSlot)
	assert.Equal(t, "20", cfg.GameID)
	assert.Equal(t, "201", cfg.CategoryID)
	assert.Equal(t, "LM", cfg.UserType)
	assert.Equal(t, "YSC", cfg.Organization)
	assert.Equal(t, 25, cfg.MaxLoginCycles)
	assert.Equal(t, 4, cfg.ConfirmAttempts)
	assert.Equal(t, 2*time.Second, cfg.SlotPollTimeout)
	assert.False(t, cfg.ReuseProfile)
	assert.NotEmpty(t, cfg.RunID)
}

func TestFromEnvOverrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("AUTOMATION_ID", "mobile-1700000000-42")
	t.Setenv("USE_CHROME_PROFILE", "1")
	t.Setenv("CHROME_PROFILE_DIR", "/tmp/profile")
	t.Setenv("MAX_LOGIN_CYCLES", "3")
	t.Setenv("CONFIRM_ATTEMPTS", "6")
	t.Setenv("SLOT_POLL_TIMEOUT_MS", "1500")
	t.Setenv("HEADLESS", "1")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, "mobile-1700000000-42", cfg.RunID)
	assert.True(t, cfg.ReuseProfile)
	assert.Equal(t, "/tmp/profile", cfg.ProfileDir)
	assert.Equal(t, 3, cfg.MaxLoginCycles)
	assert.Equal(t, 6, cfg.ConfirmAttempts)
	assert.Equal(t, 1500*time.Millisecond, cfg.SlotPollTimeout)
	assert.True(t, cfg.Headless)
}

func TestFromEnvMissingRequired(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("PASSWORD", "")
	t.Setenv("TIME_SLOT", "")

	_, err := FromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PASSWORD")
	assert.Contains(t, err.Error(), "TIME_SLOT")
	assert.NotContains(t, err.Error(), "USERNAME")
}

func TestFromEnvBadDate(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("BOOKING_DATE", "2025-03-15")

	_, err := FromEnv()
	assert.Error(t, err)
}

func TestDayOfMonth(t *testing.T) {
	tests := []struct {
		date    string
		want    int
		wantErr bool
	}{
		{date: "01/04/2025", want: 1},
		{date: "15/03/2025", want: 15},
		{date: "31/12/2025", want: 31},
		{date: "9/7/2025", want: 9},
		{date: "2025-04-01", wantErr: true},
		{date: "00/04/2025", wantErr: true},
		{date: "32/01/2025", wantErr: true},
		{date: "", wantErr: true},
	}
	for _, tt := range tests {
		day, err := DayOfMonth(tt.date)
		if tt.wantErr {
			assert.Error(t, err, "date %q", tt.date)
			continue
		}
		require.NoError(t, err, "date %q", tt.date)
		assert.Equal(t, tt.want, day)
	}
}
