// Command courtbook-desktop is the Gio shell around the automation: fill
// in the booking form, hit the button, watch the logs.
package main

import (
	"flag"
	"os"

	"github.com/joho/godotenv"

	"courtbook/internal/auth"
	"courtbook/internal/gui"
)

func main() {
	_ = godotenv.Load()

	binary := flag.String("binary", envDefault("COURTBOOK_BIN", "./courtbook"), "path to the courtbook automation binary")
	flag.Parse()

	gui.NewGUI(*binary, auth.DeviceToken()).Run()
}

func envDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
