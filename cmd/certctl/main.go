// Command certctl runs maintenance jobs against the certificate store:
// expiry alert dispatch, security token purge, schema migrations and
// admin account bootstrap.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/certtrack/certificate-service/internal/config"
	"github.com/certtrack/certificate-service/internal/migrations"
	"github.com/certtrack/certificate-service/internal/services"
	"github.com/certtrack/certificate-service/pkg"
)

const usage = `usage: certctl <command> [flags]

commands:
  expiry-alerts [--dry-run]           notify students about expiring certificates
  purge-tokens [--older-than 168h]    delete expired or used security tokens
  migrate                             apply database migrations
  create-admin --username --email     create a verified admin account; the
                                      password comes from --password or
                                      CERTCTL_ADMIN_PASSWORD
`

const adminPasswordEnv = "CERTCTL_ADMIN_PASSWORD"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "certctl:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	if len(args) == 0 {
		fmt.Fprint(out, usage)
		return errors.New("missing command")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))

	switch args[0] {
	case "expiry-alerts":
		fs := flag.NewFlagSet("expiry-alerts", flag.ContinueOnError)
		dryRun := fs.Bool("dry-run", false, "compute alerts without publishing")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		return withRuntime(ctx, cfg, logger, func(rt *pkg.Runtime) error {
			report, err := rt.Services.ExpiryAlerts().Dispatch(ctx, *dryRun)
			if err != nil {
				return err
			}
			return writeJSON(out, report)
		})

	case "purge-tokens":
		fs := flag.NewFlagSet("purge-tokens", flag.ContinueOnError)
		olderThan := fs.Duration("older-than", 7*24*time.Hour, "minimum age of purged tokens")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		if *olderThan < 0 {
			return fmt.Errorf("--older-than must not be negative")
		}
		return withRuntime(ctx, cfg, logger, func(rt *pkg.Runtime) error {
			before := time.Now().Add(-*olderThan)
			purged, err := rt.Services.Tokens().PurgeExpired(ctx, before)
			if err != nil {
				return err
			}
			return writeJSON(out, map[string]interface{}{"purged": purged, "before": before.UTC()})
		})

	case "migrate":
		if cfg.Database.URL == "" {
			return errors.New("DATABASE_URL is not set")
		}
		if err := migrations.Up(ctx, cfg.Database.URL); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		version, err := migrations.Status(ctx, cfg.Database.URL)
		if err != nil {
			return fmt.Errorf("migration status: %w", err)
		}
		return writeJSON(out, map[string]int64{"version": version})

	case "create-admin":
		fs := flag.NewFlagSet("create-admin", flag.ContinueOnError)
		req := &services.CreateAdminRequest{}
		fs.StringVar(&req.Username, "username", "", "admin username")
		fs.StringVar(&req.Email, "email", "", "admin email address")
		fs.StringVar(&req.Password, "password", os.Getenv(adminPasswordEnv), "admin password")
		fs.StringVar(&req.FirstName, "first-name", "", "given name")
		fs.StringVar(&req.LastName, "last-name", "", "family name")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		if req.Username == "" || req.Email == "" {
			return errors.New("--username and --email are required")
		}
		if req.Password == "" {
			return fmt.Errorf("--password or %s is required", adminPasswordEnv)
		}
		return withRuntime(ctx, cfg, logger, func(rt *pkg.Runtime) error {
			account, err := rt.Services.Account().CreateAdmin(ctx, req)
			if err != nil {
				return err
			}
			return writeJSON(out, account)
		})

	default:
		fmt.Fprint(out, usage)
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func withRuntime(ctx context.Context, cfg *config.Config, logger *slog.Logger, fn func(*pkg.Runtime) error) error {
	rt, err := pkg.NewRuntime(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := rt.Close(context.Background()); cerr != nil {
			logger.Warn("Failed to release resources", "error", cerr)
		}
	}()
	return fn(rt)
}

func writeJSON(out io.Writer, v interface{}) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
