// Command mindflow serves the MindMoney coaching workflow over HTTP.
//
// Usage:
//
//	mindflow -config mindflow.yaml
//
// Secrets come from the environment: GEMINI_API_KEY, TAVILY_API_KEY, and
// DATABASE_URL.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/randalmurphal/mindflow/pkg/mindmoney"
)

func main() {
	configPath := flag.String("config", "mindflow.yaml", "path to the YAML or JSON config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, "mindflow:", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	settings, err := mindmoney.LoadSettings(configPath)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	logger := newLogger(settings.LogLevel, settings.LogFormat, os.Stderr)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := newCompletionClient(ctx, settings)
	if err != nil {
		return fmt.Errorf("completion client: %w", err)
	}

	db, err := openStore(ctx, settings, logger)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	checkpoints, err := openCheckpoints(settings)
	if err != nil {
		return fmt.Errorf("open checkpoints: %w", err)
	}
	if checkpoints != nil {
		defer checkpoints.Close()
	}

	searcher := newSearch(settings)
	if !searcher.Enabled() {
		logger.Warn("search disabled, TAVILY_API_KEY not set")
	}

	wf, err := mindmoney.NewWorkflow(mindmoney.Deps{
		LLM:         client,
		Search:      searcher,
		Store:       db,
		Logger:      logger,
		Checkpoints: checkpoints,
	}, settings)
	if err != nil {
		return fmt.Errorf("build workflow: %w", err)
	}

	app := newServer(wf, db, settings, logger)

	errc := make(chan error, 1)
	go func() {
		logger.Info("listening", slog.String("addr", settings.Addr), slog.String("provider", settings.Provider))
		errc <- app.Listen(settings.Addr, fiber.ListenConfig{DisableStartupMessage: true})
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return nil
}
