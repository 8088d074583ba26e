package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/rdey2-atlassian/desk-builder-ai-sub000/internal/composer"
	"github.com/rdey2-atlassian/desk-builder-ai-sub000/internal/plan"
)

// GenerateRequest is the body of POST /api/v1/manifests/:id/generate.
type GenerateRequest struct {
	Prompt string `json:"prompt"`
}

// ListManifests returns the latest version of every manifest
// (GET /api/v1/manifests)
func (s *Server) ListManifests(c echo.Context) error {
	list, err := s.Service.List(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, list)
}

// CreateManifest stores a new manifest at version 1
// (POST /api/v1/manifests)
func (s *Server) CreateManifest(c echo.Context) error {
	return s.save(c, "", http.StatusCreated)
}

// PutManifest stores the body as the next version of :id
// (PUT /api/v1/manifests/:id)
func (s *Server) PutManifest(c echo.Context) error {
	return s.save(c, c.Param("id"), http.StatusOK)
}

func (s *Server) save(c echo.Context, manifestID string, code int) error {
	author, err := s.actor(c)
	if err != nil {
		return err
	}
	data, err := readBody(c)
	if err != nil {
		return err
	}
	stored, err := s.Service.Save(c.Request().Context(), data, manifestID, author)
	if err != nil {
		return err
	}
	return c.JSON(code, stored)
}

// GetManifest returns the latest version, or ?version=N
// (GET /api/v1/manifests/:id)
func (s *Server) GetManifest(c echo.Context) error {
	version, err := queryInt(c, "version", 0)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	id := c.Param("id")
	if version > 0 {
		stored, err := s.Service.LoadVersion(ctx, id, version)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, stored)
	}
	stored, err := s.Service.Load(ctx, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, stored)
}

// ListVersions returns the version history of a manifest
// (GET /api/v1/manifests/:id/versions)
func (s *Server) ListVersions(c echo.Context) error {
	versions, err := s.Service.Versions(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, versions)
}

// ExportManifest downloads the latest version as pretty-printed JSON
// (GET /api/v1/manifests/:id/export)
func (s *Server) ExportManifest(c echo.Context) error {
	id := c.Param("id")
	data, err := s.Service.Export(c.Request().Context(), id)
	if err != nil {
		return err
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", id+".json"))
	return c.Blob(http.StatusOK, echo.MIMEApplicationJSON, data)
}

// ApplyCommands applies a JSON array of composer commands and stores the
// result as a new version
// (POST /api/v1/manifests/:id/commands)
func (s *Server) ApplyCommands(c echo.Context) error {
	author, err := s.actor(c)
	if err != nil {
		return err
	}
	var raw []json.RawMessage
	if err := c.Bind(&raw); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body: "+err.Error())
	}
	if len(raw) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "at least one command is required")
	}
	cmds := make([]composer.Command, 0, len(raw))
	for i, r := range raw {
		cmd, err := composer.DecodeCommand(r)
		if err != nil {
			return fmt.Errorf("command %d: %w", i, toHTTP(err))
		}
		cmds = append(cmds, cmd)
	}
	stored, err := s.Service.Apply(c.Request().Context(), c.Param("id"), author, cmds...)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, stored)
}

// toHTTP marks command decode failures that are not typed errors as bad
// requests.
func toHTTP(err error) error {
	var badBlock *composer.InvalidBlockError
	if errors.As(err, &badBlock) || errors.Is(err, composer.ErrIndexOutOfRange) || errors.Is(err, composer.ErrMissingBlock) {
		return err
	}
	return echo.NewHTTPError(http.StatusBadRequest, err.Error())
}

// PreflightStored runs preflight over the latest version; ?referential=true
// adds the cross-reference checks
// (GET /api/v1/manifests/:id/preflight)
func (s *Server) PreflightStored(c echo.Context) error {
	opts, err := preflightOptions(c)
	if err != nil {
		return err
	}
	report, err := s.Service.Preflight(c.Request().Context(), c.Param("id"), opts...)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, report)
}

// PlanStored compiles the latest version and diffs it against the previous
// one; ?changes=true enables field-level change detection
// (GET /api/v1/manifests/:id/plan)
func (s *Server) PlanStored(c echo.Context) error {
	changes, err := queryBool(c, "changes")
	if err != nil {
		return err
	}
	var opts []plan.DiffOption
	if changes {
		opts = append(opts, plan.WithChangeDetection())
	}
	report, err := s.Service.Plan(c.Request().Context(), c.Param("id"), opts...)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, report)
}

// SeedStored generates ?records=N records per entity of the latest version
// (GET /api/v1/manifests/:id/seed)
func (s *Server) SeedStored(c echo.Context) error {
	n, err := queryInt(c, "records", s.SeedRecords)
	if err != nil {
		return err
	}
	out, err := s.Service.Seed(c.Request().Context(), c.Param("id"), n)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, out)
}

// RunStored replays a workflow of the latest version
// (POST /api/v1/manifests/:id/runs)
func (s *Server) RunStored(c echo.Context) error {
	var req RunRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body: "+err.Error())
	}
	log, err := s.Service.Run(c.Request().Context(), c.Param("id"), req.WorkflowID, req.Ticket)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, log)
}

// GenerateBlocks asks the AI block generator for blocks and stores the
// validated result as a new version
// (POST /api/v1/manifests/:id/generate)
func (s *Server) GenerateBlocks(c echo.Context) error {
	author, err := s.actor(c)
	if err != nil {
		return err
	}
	var req GenerateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body: "+err.Error())
	}
	stored, err := s.Service.Generate(c.Request().Context(), c.Param("id"), req.Prompt, author)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, stored)
}
