// Package api contains the HTTP handlers for the desk builder service
package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/rdey2-atlassian/desk-builder-ai-sub000/internal/composer"
	"github.com/rdey2-atlassian/desk-builder-ai-sub000/internal/logging"
	"github.com/rdey2-atlassian/desk-builder-ai-sub000/internal/repository"
	"github.com/rdey2-atlassian/desk-builder-ai-sub000/internal/seed"
	"github.com/rdey2-atlassian/desk-builder-ai-sub000/internal/services"
	"github.com/rdey2-atlassian/desk-builder-ai-sub000/pkg/models"
)

const (
	serviceName    = "desk-builder"
	serviceVersion = "1.0.0"
	problemJSON    = "application/problem+json"
)

// Server holds the dependencies for the API server.
type Server struct {
	Service      *services.SolutionService
	Logger       *logging.Logger
	SeedRecords  int
	DefaultActor string
	now          func() time.Time
}

// NewServer creates a new Server.
func NewServer(svc *services.SolutionService, logger *logging.Logger) *Server {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Server{Service: svc, Logger: logger, SeedRecords: 5, DefaultActor: "api", now: time.Now}
}

// NewRouter builds the echo instance with the problem-details error handler
// and every /api/v1 route registered.
func NewRouter(s *Server) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = s.HandleError
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit("4M"))
	s.Register(e.Group("/api/v1"))
	e.GET("/openapi.yaml", echo.WrapHandler(SpecHandler()))
	e.GET("/docs", echo.WrapHandler(SwaggerHandler()))
	return e
}

// Register adds every API route to g.
func (s *Server) Register(g *echo.Group) {
	g.GET("/health", s.Health)

	g.POST("/validate", s.ValidateManifest)
	g.POST("/preflight", s.PreflightManifest)
	g.POST("/plan", s.CompilePlan)
	g.POST("/diff", s.DiffPlans)
	g.POST("/seed", s.GenerateSeed)
	g.POST("/run", s.RunWorkflow)

	g.GET("/manifests", s.ListManifests)
	g.POST("/manifests", s.CreateManifest)
	g.GET("/manifests/:id", s.GetManifest)
	g.PUT("/manifests/:id", s.PutManifest)
	g.GET("/manifests/:id/versions", s.ListVersions)
	g.GET("/manifests/:id/export", s.ExportManifest)
	g.POST("/manifests/:id/commands", s.ApplyCommands)
	g.GET("/manifests/:id/preflight", s.PreflightStored)
	g.GET("/manifests/:id/plan", s.PlanStored)
	g.GET("/manifests/:id/seed", s.SeedStored)
	g.POST("/manifests/:id/runs", s.RunStored)
	g.POST("/manifests/:id/generate", s.GenerateBlocks)
}

// Health reports service and store health
// (GET /api/v1/health)
func (s *Server) Health(c echo.Context) error {
	status := models.HealthStatus{
		Status:    "ok",
		Service:   serviceName,
		Version:   serviceVersion,
		Timestamp: s.now().UTC(),
		Checks:    map[string]string{"store": "ok"},
	}
	code := http.StatusOK
	if err := s.Service.Ping(c.Request().Context()); err != nil {
		status.Status = "degraded"
		status.Checks["store"] = err.Error()
		code = http.StatusServiceUnavailable
	}
	return c.JSON(code, status)
}

// HandleError renders every error as RFC 7807 problem details.
func (s *Server) HandleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	pd := s.problemFor(err)
	pd.Instance = c.Request().URL.Path
	if pd.Status >= http.StatusInternalServerError {
		s.Logger.Error("request failed", "method", c.Request().Method, "path", pd.Instance, "error", err)
	}

	var writeErr error
	if c.Request().Method == http.MethodHead {
		writeErr = c.NoContent(pd.Status)
	} else {
		c.Response().Header().Set(echo.HeaderContentType, problemJSON)
		writeErr = c.JSON(pd.Status, pd)
	}
	if writeErr != nil {
		s.Logger.Error("failed to write error response", "error", writeErr)
	}
}

func (s *Server) problemFor(err error) models.ProblemDetails {
	var (
		httpErr  *echo.HTTPError
		invalid  *services.ValidationError
		badBlock *composer.InvalidBlockError
	)
	switch {
	case errors.As(err, &invalid):
		return problem(http.StatusUnprocessableEntity, "Invalid manifest", "manifest failed schema validation", invalid.Issues)
	case errors.As(err, &badBlock):
		return problem(http.StatusUnprocessableEntity, "Invalid block", "block failed schema validation", badBlock.Issues)
	case errors.As(err, &httpErr):
		detail := http.StatusText(httpErr.Code)
		if msg, ok := httpErr.Message.(string); ok {
			detail = msg
		}
		return problem(httpErr.Code, http.StatusText(httpErr.Code), detail, nil)
	case errors.Is(err, repository.ErrNotFound), errors.Is(err, composer.ErrBlockNotFound):
		return problem(http.StatusNotFound, "Not Found", err.Error(), nil)
	case errors.Is(err, composer.ErrDuplicateID), errors.Is(err, composer.ErrTypeChange):
		return problem(http.StatusConflict, "Conflict", err.Error(), nil)
	case errors.Is(err, composer.ErrIndexOutOfRange), errors.Is(err, composer.ErrEmptyName),
		errors.Is(err, composer.ErrMissingBlock), errors.Is(err, seed.ErrInvalidCount),
		errors.Is(err, services.ErrEmptyPrompt):
		return problem(http.StatusBadRequest, "Bad Request", err.Error(), nil)
	case errors.Is(err, services.ErrGeneratorUnavailable):
		return problem(http.StatusServiceUnavailable, "Service Unavailable", err.Error(), nil)
	}
	return problem(http.StatusInternalServerError, "Internal Server Error", "unexpected error", nil)
}

func problem(status int, title, detail string, issues any) models.ProblemDetails {
	return models.ProblemDetails{Type: "about:blank", Title: title, Status: status, Detail: detail, Errors: issues}
}
