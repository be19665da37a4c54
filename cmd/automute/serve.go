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

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/HilistonGit/redflag-automute/internal/adapter/actuator"
	"github.com/HilistonGit/redflag-automute/internal/adapter/httpserver"
	"github.com/HilistonGit/redflag-automute/internal/adapter/memory"
	"github.com/HilistonGit/redflag-automute/internal/adapter/metrics"
	"github.com/HilistonGit/redflag-automute/internal/adapter/redis"
	"github.com/HilistonGit/redflag-automute/internal/adapter/statefile"
	"github.com/HilistonGit/redflag-automute/internal/app"
	"github.com/HilistonGit/redflag-automute/internal/domain"
	"github.com/HilistonGit/redflag-automute/internal/platform/config"
	"github.com/HilistonGit/redflag-automute/internal/platform/logging"
)

const (
	startTimeout    = 15 * time.Second
	shutdownTimeout = 10 * time.Second
)

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Application starting", "env", cfg.AppEnv, "port", cfg.Port,
		"remote_backend", cfg.RemoteBackend, "actuator_backend", cfg.ActuatorBackend)

	reg := metrics.NewRegistry()
	session := newSession(cfg, reg)

	startCtx, cancel := context.WithTimeout(cmd.Context(), startTimeout)
	err = session.Start(startCtx)
	cancel()
	var connErr *domain.ConnectionError
	if err != nil && !errors.As(err, &connErr) {
		return fmt.Errorf("failed to start session: %w", err)
	}

	healthChecks := []httpserver.HealthCheck{
		{Name: "session", Check: func(context.Context) error {
			if !session.Status().Running {
				return domain.ErrSessionStopped
			}
			return nil
		}},
		{Name: "remote_store", Check: session.Ping},
	}
	srv := httpserver.NewServer(cfg, session, reg, metrics.NewHTTPMetrics(reg), healthChecks)

	done := runGracefulShutdown(srv, session)

	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		stopSession(session)
		return err
	}

	<-done
	return nil
}

func newSession(cfg *config.Config, reg prometheus.Registerer) *app.Session {
	var remote domain.RemoteStore
	creds := domain.Credentials{Endpoint: cfg.RemoteEndpoint, Secret: cfg.RemoteCredentials}
	switch cfg.RemoteBackend {
	case config.BackendMemory:
		remote = memory.NewRemoteStore("")
		creds.Endpoint = "memory://local"
	default:
		remote = redis.NewRemoteStore(metrics.NewRedisMetrics(reg))
	}

	var resolver domain.CapabilityResolver
	switch cfg.ActuatorBackend {
	case config.BackendMemory:
		resolver = &memory.Resolver{Actuator: memory.NewActuator(), Shape: domain.ShapeDirectFlag}
	default:
		resolver = actuator.NewHTTPResolver(cfg.ActuatorURL, nil)
	}

	state := statefile.New(cfg.StateFile)

	healInterval := cfg.HealInterval
	if healInterval == 0 {
		healInterval = -1
	}

	return app.NewSession(app.Deps{
		Remote:           remote,
		Resolver:         resolver,
		Fallback:         state,
		Settings:         state,
		ReconcileMetrics: metrics.NewReconcileMetrics(reg),
		RemoteMetrics:    metrics.NewRemoteMetrics(reg),
		Clock:            clockwork.NewRealClock(),
	}, app.Options{
		Credentials:      creds,
		IncludeSecondary: cfg.IncludeSecondary,
		SelfID:           domain.Identity(cfg.SelfID),
		HealInterval:     healInterval,
		EffectRate:       rate.Limit(cfg.EffectRate),
		EffectBurst:      cfg.EffectBurst,
	})
}

func runGracefulShutdown(srv *httpserver.Server, session *app.Session) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, unmuting everyone...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		stopSession(session)
		close(done)
	}()

	return done
}

func stopSession(session *app.Session) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := session.Stop(ctx); err != nil {
		slog.Error("Session stop incomplete", "error", err)
	}
}
