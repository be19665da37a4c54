package httpserver

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/HilistonGit/redflag-automute/internal/adapter/metrics"
	"github.com/HilistonGit/redflag-automute/internal/app"
	"github.com/HilistonGit/redflag-automute/internal/domain"
	"github.com/HilistonGit/redflag-automute/internal/platform/config"
	"github.com/HilistonGit/redflag-automute/internal/reconcile"
)

type sessionService interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Reconnect(ctx context.Context) error
	AddTag(ctx context.Context, id domain.Identity, tag domain.SeverityTag) (app.EditOutcome, error)
	RemoveTag(ctx context.Context, id domain.Identity) (app.EditOutcome, error)
	SetIncludeSecondary(ctx context.Context, include bool) (reconcile.Result, error)
	ReconcileNow(ctx context.Context) (reconcile.Result, error)
	Tags() domain.Mapping
	Fallback(ctx context.Context) (domain.Mapping, error)
	Stats() domain.Stats
	Muted() []domain.Identity
	Status() app.Status
}

type Server struct {
	echo   *echo.Echo
	config *config.Config

	session      sessionService
	registry     *prometheus.Registry
	httpMetrics  *metrics.HTTPMetrics
	healthChecks []HealthCheck
	startTime    time.Time
}

// NewServer builds the admin API. reg and httpMetrics may be nil.
func NewServer(cfg *config.Config, session sessionService, reg *prometheus.Registry, httpMetrics *metrics.HTTPMetrics, healthChecks []HealthCheck) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	srv := &Server{
		echo:         e,
		config:       cfg,
		session:      session,
		registry:     reg,
		httpMetrics:  httpMetrics,
		healthChecks: healthChecks,
		startTime:    time.Now(),
	}

	srv.registerRoutes()

	return srv
}

func (s *Server) Start() error {
	slog.Info("Starting admin API", "port", s.config.Port)
	if err := s.echo.Start(":" + s.config.Port); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}
