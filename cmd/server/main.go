package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	webAdapter "cafeteria/internal/adapters/web"
	"cafeteria/internal/config"
	"cafeteria/internal/engine"
	"cafeteria/internal/logger"
)

func main() {
	var demo bool
	cmd := &cobra.Command{
		Use:           "server",
		Short:         "Serve the procurement API and run the scheduler",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), demo)
		},
	}
	cmd.Flags().BoolVar(&demo, "memory", false, "Use the in-memory demo store instead of PostgreSQL")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "server:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, demo bool) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.RequireSecrets(); err != nil {
		return err
	}
	log, closeLog, err := logger.New(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = closeLog() }()
	slog.SetDefault(log)

	var backing *engine.Backing
	if demo {
		backing = engine.OpenDemo(time.Now().In(cfg.Timezone), log)
	} else if backing, err = engine.OpenPostgres(ctx, cfg, true, log); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer backing.Close()

	eng, err := engine.New(cfg, backing.Store, engine.Options{Logger: log})
	if err != nil {
		return err
	}
	defer func() {
		if err := eng.Close(); err != nil {
			log.Error("engine close", "error", err)
		}
	}()

	handler := webAdapter.NewHandler(eng.Service, webAdapter.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		JWTSecret:      cfg.JWTSecret,
		Metrics:        eng.Metrics.Handler(),
		Logger:         log,
	})
	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	engineCtx, stopEngine := context.WithCancel(ctx)
	defer stopEngine()
	engineDone := make(chan struct{})
	go func() {
		defer close(engineDone)
		eng.Run(engineCtx)
	}()

	serveErr := make(chan error, 1)
	go func() {
		log.Info("server starting", "port", cfg.ServerPort, "scheduler", cfg.Scheduler, "memory", demo)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			log.Error("server failed", "error", err)
		}
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown", "error", err)
	}
	stopEngine()
	<-engineDone
	return nil
}
