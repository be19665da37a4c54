package httpserver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/HilistonGit/redflag-automute/internal/app"
	"github.com/HilistonGit/redflag-automute/internal/domain"
	"github.com/HilistonGit/redflag-automute/internal/platform/config"
	"github.com/HilistonGit/redflag-automute/internal/reconcile"
)

// --- Mock implementations ---

type mockSession struct {
	mu sync.Mutex

	status app.Status
	tags     domain.Mapping
	fallback domain.Mapping
	muted    []domain.Identity

	startFn     func(ctx context.Context) error
	stopFn      func(ctx context.Context) error
	reconnectFn func(ctx context.Context) error
	addTagFn    func(ctx context.Context, id domain.Identity, tag domain.SeverityTag) (app.EditOutcome, error)
	removeTagFn func(ctx context.Context, id domain.Identity) (app.EditOutcome, error)
	setIncFn    func(ctx context.Context, include bool) (reconcile.Result, error)
	reconcileFn func(ctx context.Context) (reconcile.Result, error)
	fallbackErr error

	addCalls []domain.Identity
}

func (m *mockSession) Start(ctx context.Context) error {
	if m.startFn != nil {
		return m.startFn(ctx)
	}
	m.status.Running = true
	return nil
}

func (m *mockSession) Stop(ctx context.Context) error {
	if m.stopFn != nil {
		return m.stopFn(ctx)
	}
	m.status.Running = false
	return nil
}

func (m *mockSession) Reconnect(ctx context.Context) error {
	if m.reconnectFn != nil {
		return m.reconnectFn(ctx)
	}
	return nil
}

func (m *mockSession) AddTag(ctx context.Context, id domain.Identity, tag domain.SeverityTag) (app.EditOutcome, error) {
	m.mu.Lock()
	m.addCalls = append(m.addCalls, id)
	m.mu.Unlock()
	if m.addTagFn != nil {
		return m.addTagFn(ctx, id, tag)
	}
	return app.EditOutcome{Reconcile: reconcile.Result{Muted: []domain.Identity{id}}}, nil
}

func (m *mockSession) RemoveTag(ctx context.Context, id domain.Identity) (app.EditOutcome, error) {
	if m.removeTagFn != nil {
		return m.removeTagFn(ctx, id)
	}
	return app.EditOutcome{Reconcile: reconcile.Result{Unmuted: []domain.Identity{id}}}, nil
}

func (m *mockSession) SetIncludeSecondary(ctx context.Context, include bool) (reconcile.Result, error) {
	if m.setIncFn != nil {
		return m.setIncFn(ctx, include)
	}
	m.status.IncludeSecondary = include
	return reconcile.Result{}, nil
}

func (m *mockSession) ReconcileNow(ctx context.Context) (reconcile.Result, error) {
	if m.reconcileFn != nil {
		return m.reconcileFn(ctx)
	}
	return reconcile.Result{}, nil
}

func (m *mockSession) Tags() domain.Mapping {
	if m.tags == nil {
		return domain.Mapping{}
	}
	return m.tags.Clone()
}

func (m *mockSession) Fallback(context.Context) (domain.Mapping, error) {
	if m.fallbackErr != nil {
		return nil, m.fallbackErr
	}
	if m.fallback == nil {
		return domain.Mapping{}, nil
	}
	return m.fallback.Clone(), nil
}

func (m *mockSession) Stats() domain.Stats { return m.Tags().Stats() }

func (m *mockSession) Muted() []domain.Identity { return m.muted }

func (m *mockSession) Status() app.Status { return m.status }

// --- Test helpers ---

func newTestServer(t *testing.T, session sessionService, opts ...func(*Server)) *Server {
	t.Helper()

	srv := &Server{
		echo:    echo.New(),
		config:  &config.Config{Port: "0"},
		session: session,
	}

	for _, opt := range opts {
		opt(srv)
	}

	srv.registerRoutes()

	return srv
}

func withHealthChecks(checks ...HealthCheck) func(*Server) {
	return func(s *Server) {
		s.healthChecks = checks
	}
}

// serve runs a request through the full middleware stack.
func serve(srv *Server, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)
	return rec
}
