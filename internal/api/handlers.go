// Package api contains the HTTP handlers for the content payment service
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel/trace"

	"contentpay/backend/internal/apperrors"
	"contentpay/backend/internal/auth"
	"contentpay/backend/internal/logging"
	"contentpay/backend/internal/pipeline"
	"contentpay/backend/pkg/models"
)

const (
	serviceName    = "contentpay"
	serviceVersion = "1.0.0"
)

// HealthCheck probes one dependency.
type HealthCheck func(ctx context.Context) error

// Server holds the dependencies for the API server.
type Server struct {
	svc    *pipeline.Service
	logger *logging.Logger
	checks map[string]HealthCheck
	now    func() time.Time
}

// NewServer creates a new Server.
func NewServer(svc *pipeline.Service, logger *logging.Logger) *Server {
	return &Server{
		svc:    svc,
		logger: logger.With("component", "api"),
		checks: make(map[string]HealthCheck),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// AddHealthCheck registers a dependency probe reported by the health endpoint.
func (s *Server) AddHealthCheck(name string, check HealthCheck) {
	s.checks[name] = check
}

// HandleHealth reports service health. It answers 503 when a dependency
// probe fails.
// (GET /health)
func (s *Server) HandleHealth(c echo.Context) error {
	status := models.HealthStatus{
		Status:    "ok",
		Service:   serviceName,
		Version:   serviceVersion,
		Timestamp: s.now(),
	}
	code := http.StatusOK

	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if status.Checks == nil {
			status.Checks = make(map[string]string, len(names))
		}
		if err := s.checks[name](c.Request().Context()); err != nil {
			status.Checks[name] = err.Error()
			status.Status = "degraded"
			code = http.StatusServiceUnavailable
			continue
		}
		status.Checks[name] = "ok"
	}
	return c.JSON(code, status)
}

// authorize rejects acting on behalf of another user. Unauthenticated
// requests only reach the handlers in bypass mode and are let through.
func authorize(c echo.Context, userID string) error {
	return auth.Authorize(c.Request().Context(), userID)
}

// jobError carries the id of the failed job to the error handler.
type jobError struct {
	jobID string
	err   error
}

func (e *jobError) Error() string { return e.err.Error() }
func (e *jobError) Unwrap() error { return e.err }

// ErrorHandler renders every error as an RFC 7807 Problem Details document.
// Validation and business failures map to 400, missing resources to 404 and
// anything unexpected to 500 with a generic message.
func (s *Server) ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	problem := models.ProblemDetails{
		Type:     "about:blank",
		Instance: c.Request().URL.Path,
	}

	var httpErr *echo.HTTPError
	switch {
	case errors.As(err, &httpErr):
		problem.Status = httpErr.Code
		problem.Detail = fmt.Sprint(httpErr.Message)
	case apperrors.IsNotFound(err):
		problem.Status = http.StatusNotFound
		problem.Detail = err.Error()
	case errors.Is(err, apperrors.ErrForbidden):
		problem.Status = http.StatusForbidden
		problem.Detail = err.Error()
	case apperrors.IsClientError(err):
		problem.Status = http.StatusBadRequest
		problem.Detail = err.Error()
	default:
		problem.Status = http.StatusInternalServerError
		problem.Detail = "Internal server error"
		s.logger.Error("Unhandled request error",
			"method", c.Request().Method,
			"path", c.Request().URL.Path,
			"error", err.Error(),
		)
	}
	problem.Title = http.StatusText(problem.Status)
	problem.Error = problem.Detail

	var je *jobError
	if errors.As(err, &je) {
		problem.Instance = "/api/jobs/" + je.jobID
	}
	if sc := trace.SpanContextFromContext(c.Request().Context()); sc.HasTraceID() {
		problem.TraceID = sc.TraceID().String()
	}

	if problem.Status < http.StatusInternalServerError {
		s.logger.Debug("Request rejected", "path", c.Request().URL.Path, "status", problem.Status, "detail", problem.Detail)
	}

	c.Response().Header().Set(echo.HeaderContentType, "application/problem+json")
	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(problem.Status)
		return
	}
	if werr := c.JSON(problem.Status, problem); werr != nil {
		s.logger.Error("Failed to write error response", "error", werr.Error())
	}
}
