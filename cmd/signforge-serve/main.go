package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"signforge/internal/config"
	"signforge/internal/inference"
	"signforge/internal/logging"
	"signforge/internal/server"
)

func main() {
	checkpointPath := flag.String("checkpoint", config.Default().CheckpointPath, "Path to a trained checkpoint")
	addr := flag.String("addr", ":8080", "Listen address")
	logLevel := flag.String("log-level", "INFO", "Log level: DEBUG, INFO, WARN or ERROR")

	flag.Parse()
	logging.Configure(os.Stdout, *logLevel)

	p, err := inference.Load(*checkpointPath)
	if err != nil {
		slog.Error("failed to load checkpoint", "path", *checkpointPath, "err", err)
		os.Exit(1)
	}
	slog.Info("model loaded", "run_id", p.RunID(), "classes", len(p.Classes()), "inputs", p.InputDim())

	srv := &http.Server{
		Addr:              *addr,
		Handler:           server.NewRouter(p),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	go func() {
		slog.Info("listening", "addr", *addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server failed", "err", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown", "err", err)
		}
		slog.Info("server stopped")
	}
}
