package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/rdey2-atlassian/desk-builder-ai-sub000/internal/plan"
	"github.com/rdey2-atlassian/desk-builder-ai-sub000/internal/preflight"
	"github.com/rdey2-atlassian/desk-builder-ai-sub000/internal/services"
	"github.com/rdey2-atlassian/desk-builder-ai-sub000/pkg/models"
)

const defaultSeedRecords = 5

type Server struct {
	mcpServer *server.MCPServer
	service   *services.SolutionService
}

func NewServer(service *services.SolutionService) *Server {
	s := &Server{
		mcpServer: server.NewMCPServer(
			"Desk Builder",
			"1.0.0",
			server.WithToolCapabilities(true),
		),
		service: service,
	}

	s.registerTools()
	return s
}

func (s *Server) GetMCPServer() *server.MCPServer {
	return s.mcpServer
}

func (s *Server) registerTools() {
	manifestArg := mcp.WithString("manifest", mcp.Required(), mcp.Description("The solution manifest as a JSON document"))

	s.mcpServer.AddTool(
		mcp.NewTool(
			"validate_manifest",
			mcp.WithDescription("Structurally validate a manifest and list every issue by path"),
			manifestArg,
		),
		s.handleValidate,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"preflight_manifest",
			mcp.WithDescription("Run the cross-block preflight checks over a manifest"),
			manifestArg,
			mcp.WithBoolean("referential", mcp.Description("Also check that relationships, refs, transitions, fulfillment and security name declared blocks")),
		),
		s.handlePreflight,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"compile_plan",
			mcp.WithDescription("Compile a manifest into a dry-run deployment plan, diffed against an optional previous manifest"),
			manifestArg,
			mcp.WithString("previous", mcp.Description("The previous manifest as a JSON document")),
		),
		s.handleCompilePlan,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"diff_plans",
			mcp.WithDescription("Diff two dry-run plans by item name"),
			mcp.WithString("current", mcp.Required(), mcp.Description("The current plan as a JSON document")),
			mcp.WithString("previous", mcp.Description("The previous plan as a JSON document; omit for a first deployment")),
			mcp.WithBoolean("detect_changes", mcp.Description("Also report field-level changes between items with the same name")),
		),
		s.handleDiffPlans,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"generate_seed_data",
			mcp.WithDescription("Generate deterministic example records for every entity"),
			manifestArg,
			mcp.WithNumber("records", mcp.Description("Records per entity (default 5)")),
		),
		s.handleSeed,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"run_synthetic_workflow",
			mcp.WithDescription("Replay a workflow and its rules against ticket data"),
			manifestArg,
			mcp.WithString("workflow_id", mcp.Required(), mcp.Description("The id of the workflow block")),
			mcp.WithString("ticket", mcp.Description("Ticket field values as a JSON object")),
		),
		s.handleRun,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"load_manifest",
			mcp.WithDescription("Load a stored manifest, latest version unless a version is given"),
			mcp.WithString("manifest_id", mcp.Required(), mcp.Description("The stored manifest id")),
			mcp.WithNumber("version", mcp.Description("A specific version")),
		),
		s.handleLoad,
	)
}

func arguments(request mcp.CallToolRequest) (map[string]interface{}, bool) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	return args, ok
}

// document reads a JSON document argument given either as a string or as an
// already-decoded object.
func document(args map[string]interface{}, key string) ([]byte, bool, error) {
	v, ok := args[key]
	if !ok || v == nil {
		return nil, false, nil
	}
	switch d := v.(type) {
	case string:
		if d == "" {
			return nil, false, nil
		}
		return []byte(d), true, nil
	case map[string]interface{}:
		raw, err := json.Marshal(d)
		return raw, true, err
	}
	return nil, false, fmt.Errorf("parameter %s must be a JSON document", key)
}

func (s *Server) manifest(ctx context.Context, args map[string]interface{}, key string, required bool) (*models.Manifest, *mcp.CallToolResult) {
	raw, present, err := document(args, key)
	if err != nil {
		return nil, mcp.NewToolResultError(err.Error())
	}
	if !present {
		if required {
			return nil, mcp.NewToolResultError("Missing required parameter: " + key)
		}
		return nil, nil
	}
	m, err := s.service.Import(ctx, raw)
	if err != nil {
		return nil, mcp.NewToolResultError(fmt.Sprintf("Invalid %s: %v", key, err))
	}
	return &m, nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	jsonBytes, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

func (s *Server) handleValidate(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := arguments(request)
	if !ok {
		return mcp.NewToolResultError("Invalid arguments type"), nil
	}
	raw, present, err := document(args, "manifest")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if !present {
		return mcp.NewToolResultError("Missing required parameter: manifest"), nil
	}
	return jsonResult(s.service.Validate(ctx, raw))
}

func (s *Server) handlePreflight(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := arguments(request)
	if !ok {
		return mcp.NewToolResultError("Invalid arguments type"), nil
	}
	m, failed := s.manifest(ctx, args, "manifest", true)
	if failed != nil {
		return failed, nil
	}
	var opts []preflight.Option
	if referential, _ := args["referential"].(bool); referential {
		opts = append(opts, preflight.WithReferentialChecks())
	}
	return jsonResult(s.service.PreflightManifest(ctx, *m, opts...))
}

func (s *Server) handleCompilePlan(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := arguments(request)
	if !ok {
		return mcp.NewToolResultError("Invalid arguments type"), nil
	}
	cur, failed := s.manifest(ctx, args, "manifest", true)
	if failed != nil {
		return failed, nil
	}
	prev, failed := s.manifest(ctx, args, "previous", false)
	if failed != nil {
		return failed, nil
	}
	return jsonResult(s.service.PlanManifest(ctx, prev, *cur))
}

func (s *Server) handleDiffPlans(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := arguments(request)
	if !ok {
		return mcp.NewToolResultError("Invalid arguments type"), nil
	}
	curRaw, present, err := document(args, "current")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if !present {
		return mcp.NewToolResultError("Missing required parameter: current"), nil
	}
	var cur models.DryRunPlan
	if err := json.Unmarshal(curRaw, &cur); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Invalid current plan: %v", err)), nil
	}

	var prev *models.DryRunPlan
	prevRaw, present, err := document(args, "previous")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if present {
		prev = &models.DryRunPlan{}
		if err := json.Unmarshal(prevRaw, prev); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Invalid previous plan: %v", err)), nil
		}
	}

	var opts []plan.DiffOption
	if detect, _ := args["detect_changes"].(bool); detect {
		opts = append(opts, plan.WithChangeDetection())
	}
	return jsonResult(plan.Diff(prev, cur, opts...))
}

func (s *Server) handleSeed(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := arguments(request)
	if !ok {
		return mcp.NewToolResultError("Invalid arguments type"), nil
	}
	m, failed := s.manifest(ctx, args, "manifest", true)
	if failed != nil {
		return failed, nil
	}
	records := defaultSeedRecords
	if v, present := args["records"]; present {
		n, ok := v.(float64)
		if !ok || n != float64(int(n)) {
			return mcp.NewToolResultError("Parameter records must be an integer"), nil
		}
		records = int(n)
	}
	out, err := s.service.SeedManifest(ctx, *m, records)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to generate seed data: %v", err)), nil
	}
	return jsonResult(out)
}

func (s *Server) handleRun(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := arguments(request)
	if !ok {
		return mcp.NewToolResultError("Invalid arguments type"), nil
	}
	m, failed := s.manifest(ctx, args, "manifest", true)
	if failed != nil {
		return failed, nil
	}
	workflowID, ok := args["workflow_id"].(string)
	if !ok || workflowID == "" {
		return mcp.NewToolResultError("Missing required parameter: workflow_id"), nil
	}
	ticket := map[string]any{}
	raw, present, err := document(args, "ticket")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if present {
		if err := json.Unmarshal(raw, &ticket); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Invalid ticket: %v", err)), nil
		}
	}
	return jsonResult(s.service.RunManifest(ctx, *m, workflowID, ticket))
}

func (s *Server) handleLoad(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := arguments(request)
	if !ok {
		return mcp.NewToolResultError("Invalid arguments type"), nil
	}
	id, ok := args["manifest_id"].(string)
	if !ok || id == "" {
		return mcp.NewToolResultError("Missing required parameter: manifest_id"), nil
	}

	var (
		stored *models.StoredManifest
		err    error
	)
	if v, present := args["version"]; present {
		n, ok := v.(float64)
		if !ok || n < 1 || n != float64(int(n)) {
			return mcp.NewToolResultError("Parameter version must be a positive integer"), nil
		}
		stored, err = s.service.LoadVersion(ctx, id, int(n))
	} else {
		stored, err = s.service.Load(ctx, id)
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to load manifest: %v", err)), nil
	}
	return jsonResult(stored)
}

// MountHTTPHandlers serves the SSE transport at basePath/sse and basePath/message.
func MountHTTPHandlers(mux *http.ServeMux, mcpServer *server.MCPServer, basePath string) {
	basePath = "/" + strings.Trim(basePath, "/")
	sseServer := server.NewSSEServer(mcpServer, server.WithStaticBasePath(basePath))

	mux.Handle(sseServer.CompleteSsePath(), sseServer)
	mux.Handle(sseServer.CompleteMessagePath(), sseServer)
}
