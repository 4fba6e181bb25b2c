package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	jwttoken "agora/internal/jwt_token"
	"agora/internal/platform/config"
	"agora/internal/platform/httpserver"
	"agora/internal/platform/logger"
	"agora/internal/platform/metrics"
	"agora/internal/voting/handler"
	"agora/internal/voting/worker"
	"agora/pkg/platform/httputil"
	"agora/pkg/platform/middleware/metadata"
	request "agora/pkg/platform/middleware/request"
)

// main wires dependencies and runs the HTTP server and the sweeper until
// SIGINT/SIGTERM. Business logic lives in internal/voting.
func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "agora:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	log := logger.New(cfg.Logging.Level, cfg.Logging.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := metrics.NewRegistry()
	app, err := buildApp(ctx, cfg, reg, log)
	if err != nil {
		return err
	}
	defer app.Close()

	jwt := jwttoken.NewJWTService(cfg.Auth.JWTSigningKey, cfg.Auth.Issuer, cfg.Auth.Audience)

	r := chi.NewRouter()
	r.Use(request.Recover(log))
	r.Use(metadata.ClientMetadata)
	r.Use(request.RequestID)
	r.Use(request.Logger(log))
	r.Handle("/metrics", metrics.Handler(reg))
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := app.Health(r.Context()); err != nil {
			httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "error": err.Error()})
			return
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	handler.New(app.service, jwttoken.NewJWTServiceAdapter(jwt), log).Register(r)

	srv := httpserver.New(cfg.Server.Addr, r)
	sweeper := worker.New(app.service, cfg.Worker.SweepInterval, log)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting agora", "addr", cfg.Server.Addr, "store", app.storeKind)
		return httpserver.Run(gctx, srv, cfg.Server.ShutdownTimeout)
	})
	g.Go(func() error {
		return sweeper.Run(gctx)
	})

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	log.Info("agora stopped")
	return err
}
