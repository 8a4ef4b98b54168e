// Command courtbook runs one booking attempt end to end and prints the
// payment URL for whoever launched it. The server and desktop shells run
// this binary as a child and scan its output.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"courtbook/internal/auth"
	"courtbook/internal/booking"
	"courtbook/internal/browser"
	"courtbook/internal/captcha"
	"courtbook/internal/config"
)

func main() {
	if err := godotenv.Load(); err != nil {
		fmt.Fprintln(os.Stderr, "no .env file loaded")
	}

	// Standalone runs derive their own device identity; shells pass one in.
	if os.Getenv("DEVICE_TOKEN") == "" {
		os.Setenv("DEVICE_TOKEN", auth.DeviceToken())
	}

	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintln(os.Stderr, "configuration error:", err)
		os.Exit(1)
	}

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).Level(logLevel()).With().
		Timestamp().Str("run_id", cfg.RunID).Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := verifyDevice(ctx, cfg, log); err != nil {
		log.Error().Err(err).Msg("this device is not authorized to run bookings")
		os.Exit(2)
	}

	arith := &captcha.Arithmetic{}
	var vision captcha.Solver
	if cfg.VisionCredentials != "" {
		v, err := captcha.NewVision(ctx, cfg.VisionCredentials, cfg.VisionModel)
		if err != nil {
			log.Warn().Err(err).Msg("vision solver unavailable, confirmation will use the fallback answer")
		} else {
			vision = v
		}
	}

	session, err := browser.NewSession(ctx, cfg, log)
	if err != nil {
		log.Error().Err(err).Msg("could not start browser")
		os.Exit(1)
	}

	flow := booking.NewFlow(session, arith, vision, cfg, log)
	result, err := flow.Run(ctx)
	if err != nil {
		log.Error().Err(err).Msg("booking failed")
		session.Close()
		os.Exit(1)
	}

	// Both lines matter: the first is for humans, the second is the marker
	// the launching shell scans for.
	fmt.Printf("Payment URL: %s\n", result.PaymentURL)
	fmt.Printf("PAYMENT_URL_OUTPUT:%s\n", result.PaymentURL)
	log.Info().Msg("booking process completed, leaving the browser open for payment")

	// The browser stays up until this process is told to go away.
	<-ctx.Done()
	session.Close()
}

func logLevel() zerolog.Level {
	if lvl, err := zerolog.ParseLevel(os.Getenv("LOG_LEVEL")); err == nil && lvl != zerolog.NoLevel {
		return lvl
	}
	return zerolog.InfoLevel
}

// verifyDevice checks the device-auth gate. A deliberate denial is fatal;
// an unreachable auth service is logged and waved through so a dead server
// cannot strand a standalone run.
func verifyDevice(ctx context.Context, cfg config.Run, log zerolog.Logger) error {
	client := auth.NewClient(cfg.AuthServiceURL)

	err := client.Verify(ctx, cfg.DeviceToken)
	if err == nil {
		log.Info().Msg("device verified")
		return nil
	}
	if errors.Is(err, auth.ErrDenied) {
		// Unknown device: enroll once and re-check with the token the
		// service settled on, which may be an earlier one for this name.
		if settled, regErr := client.Register(ctx, auth.DeviceName(), cfg.DeviceToken); regErr == nil {
			if err := client.Verify(ctx, settled); err == nil {
				log.Info().Str("device_token", settled).Msg("device registered and verified")
				return nil
			} else if errors.Is(err, auth.ErrDenied) {
				return err
			}
		}
		return err
	}

	log.Warn().Err(err).Msg("auth service unreachable, continuing without device verification")
	return nil
}
