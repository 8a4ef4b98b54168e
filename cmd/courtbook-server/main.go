// Command courtbook-server hosts the booking API: it starts courtbook
// child processes on request, tracks their status, and owns the device
// registry the auth gate checks against.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"courtbook/internal/auth"
	"courtbook/internal/launcher"
	"courtbook/internal/server"
)

func main() {
	_ = godotenv.Load()

	addr := flag.String("addr", ":"+envDefault("PORT", "3000"), "listen address")
	binary := flag.String("binary", envDefault("COURTBOOK_BIN", "./courtbook"), "path to the courtbook automation binary")
	registryPath := flag.String("registry", envDefault("REGISTRY_PATH", "devices.db"), "device registry database")
	scratchDir := flag.String("scratch", os.Getenv("SCRATCH_DIR"), "scratch dir swept by the janitor")
	flag.Parse()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).Level(logLevel()).With().Timestamp().Logger()

	registry, err := auth.OpenRegistry(*registryPath)
	if err != nil {
		log.Fatal().Err(err).Msg("could not open device registry")
	}
	defer registry.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Enroll the server's own machine so the children it spawns pass the
	// gate without a network round trip back to us.
	token, err := registry.Register(ctx, auth.DeviceName(), auth.DeviceToken())
	if err != nil {
		log.Fatal().Err(err).Msg("could not register this host")
	}
	log.Info().Str("device_token", token).Msg("host enrolled in device registry")

	runs := launcher.NewManager(*binary, token, log)
	go runs.RunJanitor(ctx, 30*time.Minute, *scratchDir)

	srv := &http.Server{
		Addr:    *addr,
		Handler: server.New(runs, registry, log).Router(),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", *addr).Str("binary", *binary).Msg("booking server listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("server failed")
	}
	log.Info().Msg("server stopped")
}

func logLevel() zerolog.Level {
	if lvl, err := zerolog.ParseLevel(os.Getenv("LOG_LEVEL")); err == nil && lvl != zerolog.NoLevel {
		return lvl
	}
	return zerolog.InfoLevel
}

func envDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
