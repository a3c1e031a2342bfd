// Package main is the entrypoint for the hybrid bridge (binary name "bridged").
package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/morezero/hybrid-bridge/internal/config"
	"github.com/morezero/hybrid-bridge/internal/server"
	"github.com/morezero/hybrid-bridge/pkg/db"
)

const usage = `Usage: bridged [command]
       bridged serve              Start the bridge (NATS transport, sessions, HTTP status).
       bridged migrate up         Create the storage schema.
       bridged migrate status     Show whether the storage schema exists.

Commands:
  serve           (default) Start the bridge.
  migrate up      Run database migrations only.
  migrate status  Show current migration status.
  help            Show this message.

Environment: COMMS_URL, BRIDGE_SUBJECT_PREFIX, BRIDGE_MANIFEST_FILE, DATABASE_URL (optional for serve,
required for migrate), MIGRATION_PATH, HTTP_PORT, LOG_LEVEL, OTEL_ENDPOINT.
`

func main() {
	args := os.Args[1:]
	cmd := ""
	if len(args) > 0 && args[0] != "" {
		cmd = args[0]
	}

	switch cmd {
	case "migrate":
		if len(args) < 2 {
			log.Fatalf("bridged migrate: require subcommand (up, status)")
		}
		switch sub := args[1]; sub {
		case "up":
			if err := runMigrateUp(); err != nil {
				log.Fatalf("bridged migrate up: %v", err)
			}
		case "status":
			if err := runMigrateStatus(); err != nil {
				log.Fatalf("bridged migrate status: %v", err)
			}
		default:
			log.Fatalf("bridged migrate: unknown subcommand %q (use up, status)", sub)
		}
		return
	case "help", "-h", "--help":
		fmt.Print(usage)
		return
	case "serve", "":
	default:
		fmt.Fprintf(os.Stderr, "Unknown command %q.\n%s", cmd, usage)
		os.Exit(1)
	}

	if err := server.Run(); err != nil {
		log.Fatalf("bridged: %v", err)
	}
}

func runMigrateUp() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ValidateForDB(); err != nil {
		return err
	}
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	migrations, err := db.LoadMigrations(cfg.MigrationPath)
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}
	if err := db.RunMigrations(ctx, pool, migrations); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

func runMigrateStatus() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ValidateForDB(); err != nil {
		return err
	}
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	report, err := db.MigrationStatus(ctx, pool, cfg.MigrationPath)
	if err != nil {
		return err
	}
	fmt.Print(formatStatus(report))
	return nil
}

func formatStatus(report *db.StatusReport) string {
	state := "not applied"
	if report.Applied {
		state = "applied"
	}
	out := fmt.Sprintf("Schema: %s\n", state)
	for _, f := range report.Files {
		out += fmt.Sprintf("  %s\n", f)
	}
	return out
}
