package httpserver

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/HilistonGit/redflag-automute/internal/domain"
	apperrors "github.com/HilistonGit/redflag-automute/internal/platform/errors"
	"github.com/HilistonGit/redflag-automute/internal/reconcile"
)

func (s *Server) registerAPIRoutes(limiter echo.MiddlewareFunc) {
	api := s.echo.Group("/api")

	api.GET("/status", s.handleStatus)
	api.GET("/tags", s.handleListTags)
	api.GET("/stats", s.handleStats)
	api.GET("/muted", s.handleMuted)
	api.GET("/settings", s.handleGetSettings)
	api.GET("/fallback", s.handleFallback)

	api.PUT("/tags/:id", s.handlePutTag, limiter)
	api.DELETE("/tags/:id", s.handleDeleteTag, limiter)
	api.PUT("/settings", s.handlePutSettings, limiter)
	api.POST("/reconcile", s.handleReconcile, limiter)

	api.POST("/session/start", s.handleStart, limiter)
	api.POST("/session/stop", s.handleStop, limiter)
	api.POST("/session/reconnect", s.handleReconnect, limiter)
}

type resultResponse struct {
	Muted      []domain.Identity `json:"muted"`
	Unmuted    []domain.Identity `json:"unmuted"`
	Deferred   []domain.Identity `json:"deferred,omitempty"`
	Failures   []string          `json:"failures,omitempty"`
	DurationMS int64             `json:"duration_ms"`
}

func toResultResponse(r reconcile.Result) resultResponse {
	resp := resultResponse{
		Muted:      nonNil(r.Muted),
		Unmuted:    nonNil(r.Unmuted),
		Deferred:   r.Deferred,
		DurationMS: r.Duration.Milliseconds(),
	}
	for _, f := range r.Failures {
		resp.Failures = append(resp.Failures, f.Error())
	}
	return resp
}

func nonNil(ids []domain.Identity) []domain.Identity {
	if ids == nil {
		return []domain.Identity{}
	}
	return ids
}

type editResponse struct {
	Result     resultResponse `json:"result"`
	Persisted  bool           `json:"persisted"`
	WriteError string         `json:"write_error,omitempty"`
}

type tagRequest struct {
	Tag string `json:"tag"`
}

type settingsBody struct {
	IncludeSecondary *bool `json:"include_secondary"`
}

func writeJSON(c echo.Context, status int, body any) error {
	if err := c.JSON(status, body); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleStatus(c echo.Context) error {
	return writeJSON(c, http.StatusOK, s.session.Status())
}

func (s *Server) handleListTags(c echo.Context) error {
	return writeJSON(c, http.StatusOK, s.session.Tags())
}

func (s *Server) handleFallback(c echo.Context) error {
	m, err := s.session.Fallback(c.Request().Context())
	if err != nil {
		return err
	}
	return writeJSON(c, http.StatusOK, m)
}

func (s *Server) handleStats(c echo.Context) error {
	return writeJSON(c, http.StatusOK, s.session.Stats())
}

func (s *Server) handleMuted(c echo.Context) error {
	return writeJSON(c, http.StatusOK, map[string][]domain.Identity{"muted": nonNil(s.session.Muted())})
}

func (s *Server) handleGetSettings(c echo.Context) error {
	include := s.session.Status().IncludeSecondary
	return writeJSON(c, http.StatusOK, settingsBody{IncludeSecondary: &include})
}

func (s *Server) handlePutTag(c echo.Context) error {
	id := domain.Identity(c.Param("id"))

	var req tagRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid request body")
	}
	tag, err := domain.ParseSeverityTag(req.Tag)
	if err != nil {
		return apperrors.ValidationError(fmt.Sprintf("tag must be %q or %q", domain.Primary, domain.Secondary)).
			WithField("tag", req.Tag)
	}

	out, err := s.session.AddTag(c.Request().Context(), id, tag)
	if err != nil {
		return err
	}
	return writeJSON(c, http.StatusOK, toEditResponse(out.Reconcile, out.WriteErr))
}

func (s *Server) handleDeleteTag(c echo.Context) error {
	id := domain.Identity(c.Param("id"))
	if _, ok := s.session.Tags()[id]; !ok {
		return apperrors.NotFoundError("identity is not tagged").WithField("identity", string(id))
	}

	out, err := s.session.RemoveTag(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return writeJSON(c, http.StatusOK, toEditResponse(out.Reconcile, out.WriteErr))
}

func toEditResponse(r reconcile.Result, writeErr error) editResponse {
	resp := editResponse{Result: toResultResponse(r), Persisted: writeErr == nil}
	if writeErr != nil {
		resp.WriteError = writeErr.Error()
	}
	return resp
}

func (s *Server) handlePutSettings(c echo.Context) error {
	var req settingsBody
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid request body")
	}
	if req.IncludeSecondary == nil {
		return apperrors.ValidationError("include_secondary is required")
	}

	res, err := s.session.SetIncludeSecondary(c.Request().Context(), *req.IncludeSecondary)
	if err != nil {
		return err
	}
	return writeJSON(c, http.StatusOK, toResultResponse(res))
}

func (s *Server) handleReconcile(c echo.Context) error {
	res, err := s.session.ReconcileNow(c.Request().Context())
	if err != nil {
		return err
	}
	return writeJSON(c, http.StatusOK, toResultResponse(res))
}

// handleStart reports a connection failure in the body; the session still runs.
func (s *Server) handleStart(c echo.Context) error {
	if err := s.session.Start(c.Request().Context()); err != nil {
		var connErr *domain.ConnectionError
		if !errors.As(err, &connErr) {
			return err
		}
	}
	return writeJSON(c, http.StatusOK, s.session.Status())
}

func (s *Server) handleStop(c echo.Context) error {
	if err := s.session.Stop(c.Request().Context()); err != nil {
		return apperrors.ExternalError("teardown incomplete", err)
	}
	return writeJSON(c, http.StatusOK, s.session.Status())
}

func (s *Server) handleReconnect(c echo.Context) error {
	if err := s.session.Reconnect(c.Request().Context()); err != nil {
		return err
	}
	return writeJSON(c, http.StatusOK, s.session.Status())
}
