// Command server runs the Egaku HTTP API.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"egaku/internal/bootstrap"
	"egaku/internal/config"
	"egaku/internal/middleware"
	"egaku/internal/server"
)

const shutdownTimeout = 15 * time.Second

func fatal(msg string, err error) {
	middleware.Logger.Error(msg, slog.String("error", err.Error()))
	os.Exit(1)
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fatal("failed to load configuration", err)
	}

	rt, err := bootstrap.InitRuntime(context.Background(), cfg, bootstrap.Options{Migrate: true, Tracing: true})
	if err != nil {
		fatal("failed to initialize runtime", err)
	}

	srv, err := server.NewServerWithDeps(cfg, rt.DB, rt.Redis)
	if err != nil {
		fatal("failed to create server", err)
	}

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		got := <-sig
		middleware.Logger.Info("shutting down", slog.String("signal", got.String()))

		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			middleware.Logger.Error("server shutdown failed", slog.String("error", err.Error()))
		}
		if err := rt.ShutdownTracing(ctx); err != nil {
			middleware.Logger.Error("tracing shutdown failed", slog.String("error", err.Error()))
		}
	}()

	if err := srv.Start(); err != nil {
		fatal("server stopped", err)
	}
	<-stopped
}
