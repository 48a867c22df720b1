package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"news-trading-bot/internal/logger"
	"news-trading-bot/internal/monitoring"
	"news-trading-bot/internal/store"
	"news-trading-bot/internal/trace"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	if err := logger.Init(); err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	if err := trace.Init(); err != nil {
		return fmt.Errorf("initializing tracing: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := store.LoadConfig(*configPath)
	if err != nil {
		return err
	}
	logger.Info(ctx, "Configuration loaded",
		"mode", cfg.Mode,
		"universe_size", len(cfg.Universe),
		"max_trades_per_day", cfg.Risk.MaxTradesPerDay,
	)

	app, err := build(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.journal.Close()

	if err := app.manager.Recover(ctx); err != nil {
		return fmt.Errorf("recovering journaled orders: %w", err)
	}

	metricsSrv := &http.Server{Addr: cfg.Metrics.Addr, Handler: monitoring.Handler()}
	go func() {
		logger.Info(ctx, "Metrics endpoint listening", "addr", cfg.Metrics.Addr)
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.ErrorWithErr(ctx, "Metrics server failed", err)
		}
	}()

	go func() {
		logger.Info(ctx, "Webhook endpoint listening", "addr", cfg.Webhook.Addr)
		if err := app.server.ListenAndServe(); err != nil {
			logger.ErrorWithErr(ctx, "Webhook server failed", err)
			stop()
		}
	}()

	go app.scheduler.Run(ctx)

	<-ctx.Done()
	logger.Info(context.Background(), "Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := app.server.Shutdown(shutdownCtx); err != nil {
		logger.Warn(shutdownCtx, "Webhook server shutdown error", "error", err)
	}
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn(shutdownCtx, "Metrics server shutdown error", "error", err)
	}
	app.manager.Wait()

	if err := trace.Shutdown(shutdownCtx); err != nil {
		logger.Warn(shutdownCtx, "Tracer shutdown error", "error", err)
	}
	logger.Info(context.Background(), "Shutdown complete")
	return nil
}
