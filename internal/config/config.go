// Package config builds the immutable per-run configuration from the
// environment the launching shell provides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Run holds everything one booking attempt needs. Built once at startup and
// passed explicitly to every stage; never mutated afterwards.
type Run struct {
	Username string
	Password string

	// BookingDate is the raw DD/MM/YYYY input; Day is the extracted
	// day-of-month the date picker is matched against.
	BookingDate string
	Day         int

	Court    string
	TimeSlot string

	RunID       string
	DeviceToken string

	ReuseProfile bool
	ProfileDir   string

	BaseURL        string
	AuthServiceURL string
	Headless       bool
	ScratchDir     string

	// Site dropdown values: sport and indoor/outdoor category.
	GameID     string
	CategoryID string

	// User-type and organization the login form expects.
	UserType     string
	Organization string

	MaxLoginCycles  int
	ConfirmAttempts int
	SlotPollTimeout time.Duration

	VisionCredentials string
	VisionModel       string
}

// FromEnv reads the process environment. Missing required values are a
// startup error; the caller exits non-zero.
func FromEnv() (Run, error) {
	cfg := Run{
		Username:     os.Getenv("USERNAME"),
		Password:     os.Getenv("PASSWORD"),
		BookingDate:  os.Getenv("BOOKING_DATE"),
		Court:        os.Getenv("COURT_NUMBER"),
		TimeSlot:     os.Getenv("TIME_SLOT"),
		RunID:        getenvDefault("AUTOMATION_ID", fmt.Sprintf("local-%d", time.Now().Unix())),
		DeviceToken:  os.Getenv("DEVICE_TOKEN"),
		ReuseProfile: os.Getenv("USE_CHROME_PROFILE") == "1",
		ProfileDir:   os.Getenv("CHROME_PROFILE_DIR"),

		BaseURL:        getenvDefault("BOOKING_BASE_URL", "https://ddasports.com/app/"),
		AuthServiceURL: getenvDefault("AUTH_SERVICE_URL", "http://localhost:3000"),
		Headless:       os.Getenv("HEADLESS") == "1",
		ScratchDir:     getenvDefault("SCRATCH_DIR", os.TempDir()),

		GameID:       getenvDefault("GAME_ID", "20"),
		CategoryID:   getenvDefault("GAME_CATEGORY_ID", "201"),
		UserType:     getenvDefault("USER_TYPE", "LM"),
		Organization: getenvDefault("ORGANIZATION", "YSC"),

		MaxLoginCycles:  readIntEnv("MAX_LOGIN_CYCLES", 25),
		ConfirmAttempts: readIntEnv("CONFIRM_ATTEMPTS", 4),
		SlotPollTimeout: time.Duration(readIntEnv("SLOT_POLL_TIMEOUT_MS", 2000)) * time.Millisecond,

		VisionCredentials: os.Getenv("VISION_CREDENTIALS"),
		VisionModel:       os.Getenv("VISION_MODEL"),
	}

	var missing []string
	for _, req := range []struct{ name, val string }{
		{"USERNAME", cfg.Username},
		{"PASSWORD", cfg.Password},
		{"BOOKING_DATE", cfg.BookingDate},
		{"COURT_NUMBER", cfg.Court},
		{"TIME_SLOT", cfg.TimeSlot},
		{"DEVICE_TOKEN", cfg.DeviceToken},
	} {
		if req.val == "" {
			missing = append(missing, req.name)
		}
	}
	if len(missing) > 0 {
		return Run{}, fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}

	day, err := DayOfMonth(cfg.BookingDate)
	if err != nil {
		return Run{}, err
	}
	cfg.Day = day

	return cfg, nil
}

// DayOfMonth extracts the day from a DD/MM/YYYY string. The date picker is
// assumed to open on the month containing the target date, so only the day
// matters.
func DayOfMonth(date string) (int, error) {
	parts := strings.Split(date, "/")
	if len(parts) != 3 {
		return 0, fmt.Errorf("booking date %q is not DD/MM/YYYY", date)
	}
	day, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil || day < 1 || day > 31 {
		return 0, fmt.Errorf("booking date %q has no valid day-of-month", date)
	}
	return day, nil
}

func getenvDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func readIntEnv(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
