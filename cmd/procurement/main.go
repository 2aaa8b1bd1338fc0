// procurement is the operator CLI: preview and generate purchase orders,
// drive their lifecycle, run scheduled jobs by hand and apply migrations.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cafeteria/internal/adapters/cli"
	"cafeteria/internal/config"
	"cafeteria/internal/engine"
	"cafeteria/internal/logger"
	"cafeteria/internal/scheduler"
	"cafeteria/migrations"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "procurement:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	// Command output goes to stdout; logs go to stderr unless configured otherwise.
	if cfg.Log.Output == "stdout" {
		cfg.Log.Output = "stderr"
	}
	log, closeLog, err := logger.New(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = closeLog() }()

	app := &cli.App{SessionSecret: cfg.JWTSecret}
	var backing *engine.Backing
	if cfg.DatabaseURL == "" {
		backing = engine.OpenDemo(time.Now().In(cfg.Timezone), log)
	} else {
		if backing, err = engine.OpenPostgres(ctx, cfg, false, log); err != nil {
			return fmt.Errorf("database: %w", err)
		}
		app.Migrate = func(ctx context.Context) ([]string, error) {
			return migrations.Apply(ctx, backing.Pool)
		}
	}
	defer backing.Close()

	if cfg.TokenSecret != "" {
		// Manual runs bypass the slot ledger; the server keeps the Pebble one.
		eng, err := engine.New(cfg, backing.Store, engine.Options{Logger: log, Ledger: scheduler.NewMemoryLedger()})
		if err != nil {
			return err
		}
		defer func() { _ = eng.Close() }()
		app.Service = eng.Service
	}

	return cli.NewRootCmd(app).ExecuteContext(ctx)
}
