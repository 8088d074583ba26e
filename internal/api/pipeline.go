package api

import (
	"encoding/json"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/rdey2-atlassian/desk-builder-ai-sub000/internal/plan"
	"github.com/rdey2-atlassian/desk-builder-ai-sub000/internal/preflight"
	"github.com/rdey2-atlassian/desk-builder-ai-sub000/pkg/models"
)

// DiffRequest is the body of POST /api/v1/diff.
type DiffRequest struct {
	Previous *models.DryRunPlan `json:"previous"`
	Current  models.DryRunPlan  `json:"current"`
}

// RunRequest is the body of POST /api/v1/run. Stored runs omit Manifest.
type RunRequest struct {
	Manifest   json.RawMessage `json:"manifest,omitempty"`
	WorkflowID string          `json:"workflowId"`
	Ticket     map[string]any  `json:"ticket"`
}

// importBody validates the request body as a manifest.
func (s *Server) importBody(c echo.Context) (models.Manifest, error) {
	data, err := readBody(c)
	if err != nil {
		return models.Manifest{}, err
	}
	return s.Service.Import(c.Request().Context(), data)
}

// ValidateManifest reports the structural issues of a manifest. Invalid
// manifests are a normal 200 result here.
// (POST /api/v1/validate)
func (s *Server) ValidateManifest(c echo.Context) error {
	data, err := readBody(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, s.Service.Validate(c.Request().Context(), data))
}

// PreflightManifest runs the preflight rules over a manifest;
// ?referential=true adds the cross-reference checks
// (POST /api/v1/preflight)
func (s *Server) PreflightManifest(c echo.Context) error {
	opts, err := preflightOptions(c)
	if err != nil {
		return err
	}
	m, err := s.importBody(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, s.Service.PreflightManifest(c.Request().Context(), m, opts...))
}

func preflightOptions(c echo.Context) ([]preflight.Option, error) {
	referential, err := queryBool(c, "referential")
	if err != nil {
		return nil, err
	}
	if referential {
		return []preflight.Option{preflight.WithReferentialChecks()}, nil
	}
	return nil, nil
}

// CompilePlan compiles a manifest into a dry-run plan
// (POST /api/v1/plan)
func (s *Server) CompilePlan(c echo.Context) error {
	m, err := s.importBody(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, s.Service.PlanManifest(c.Request().Context(), nil, m))
}

// DiffPlans compares two plans. ?changes=true enables field-level change
// detection.
// (POST /api/v1/diff)
func (s *Server) DiffPlans(c echo.Context) error {
	changes, err := queryBool(c, "changes")
	if err != nil {
		return err
	}
	var req DiffRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body: "+err.Error())
	}
	var opts []plan.DiffOption
	if changes {
		opts = append(opts, plan.WithChangeDetection())
	}
	return c.JSON(http.StatusOK, plan.Diff(req.Previous, req.Current, opts...))
}

// GenerateSeed synthesizes ?records=N records per entity
// (POST /api/v1/seed)
func (s *Server) GenerateSeed(c echo.Context) error {
	n, err := queryInt(c, "records", s.SeedRecords)
	if err != nil {
		return err
	}
	m, err := s.importBody(c)
	if err != nil {
		return err
	}
	out, err := s.Service.SeedManifest(c.Request().Context(), m, n)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, out)
}

// RunWorkflow replays a workflow of the manifest in the body
// (POST /api/v1/run)
func (s *Server) RunWorkflow(c echo.Context) error {
	var req RunRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body: "+err.Error())
	}
	if len(req.Manifest) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "manifest is required")
	}
	m, err := s.Service.Import(c.Request().Context(), req.Manifest)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, s.Service.RunManifest(c.Request().Context(), m, req.WorkflowID, req.Ticket))
}
