package mcp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/rdey2-atlassian/desk-builder-ai-sub000/internal/plan"
	"github.com/rdey2-atlassian/desk-builder-ai-sub000/internal/repository"
	"github.com/rdey2-atlassian/desk-builder-ai-sub000/internal/samples"
	"github.com/rdey2-atlassian/desk-builder-ai-sub000/internal/services"
	"github.com/rdey2-atlassian/desk-builder-ai-sub000/pkg/models"
)

func newTestServer(t *testing.T) (*Server, *services.SolutionService) {
	t.Helper()
	svc, err := services.NewSolutionService(repository.NewMemoryManifestStore(), services.WithMeterProvider(noop.NewMeterProvider()))
	require.NoError(t, err)
	return NewServer(svc), svc
}

func call(args any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func text(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, res)
	require.NotEmpty(t, res.Content)
	tc, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected text content, got %T", res.Content[0])
	return tc.Text
}

func sample() string {
	return string(samples.OnboardingJSON())
}

func TestValidateManifest(t *testing.T) {
	s, _ := newTestServer(t)

	res, err := s.handleValidate(context.Background(), call(map[string]interface{}{"manifest": sample()}))
	require.NoError(t, err)
	assert.False(t, res.IsError)
	assert.Contains(t, text(t, res), `"ok":true`)

	res, err = s.handleValidate(context.Background(), call(map[string]interface{}{"manifest": `{"blocks": []}`}))
	require.NoError(t, err)
	assert.False(t, res.IsError, "an invalid manifest is a result, not a tool error")
	assert.Contains(t, text(t, res), `"ok":false`)
}

func TestBadArgumentsAreToolErrors(t *testing.T) {
	s, _ := newTestServer(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		handler func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error)
		args    any
	}{
		{"validate wrong type", s.handleValidate, []string{"x"}},
		{"validate missing", s.handleValidate, map[string]interface{}{}},
		{"preflight invalid manifest", s.handlePreflight, map[string]interface{}{"manifest": `{"name": ""}`}},
		{"preflight not a document", s.handlePreflight, map[string]interface{}{"manifest": 42.0}},
		{"diff missing current", s.handleDiffPlans, map[string]interface{}{}},
		{"seed zero", s.handleSeed, map[string]interface{}{"manifest": sample(), "records": 0.0}},
		{"seed fraction", s.handleSeed, map[string]interface{}{"manifest": sample(), "records": 1.5}},
		{"run missing workflow", s.handleRun, map[string]interface{}{"manifest": sample()}},
		{"run bad ticket", s.handleRun, map[string]interface{}{"manifest": sample(), "workflow_id": "wf-onboarding", "ticket": "[1,2]"}},
		{"load missing id", s.handleLoad, map[string]interface{}{}},
		{"load unknown", s.handleLoad, map[string]interface{}{"manifest_id": "nope"}},
		{"load bad version", s.handleLoad, map[string]interface{}{"manifest_id": "nope", "version": -1.0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := tt.handler(ctx, call(tt.args))
			require.NoError(t, err)
			assert.True(t, res.IsError)
		})
	}
}

func TestPreflightAndPlan(t *testing.T) {
	s, _ := newTestServer(t)
	ctx := context.Background()

	res, err := s.handlePreflight(ctx, call(map[string]interface{}{"manifest": sample()}))
	require.NoError(t, err)
	var report services.PreflightReport
	require.NoError(t, json.Unmarshal([]byte(text(t, res)), &report))
	assert.True(t, report.Summary.Passed)

	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(samples.OnboardingJSON(), &doc))
	res, err = s.handleCompilePlan(ctx, call(map[string]interface{}{"manifest": doc, "previous": sample()}))
	require.NoError(t, err)
	require.False(t, res.IsError, text(t, res))
	var planReport services.PlanReport
	require.NoError(t, json.Unmarshal([]byte(text(t, res)), &planReport))
	assert.Empty(t, plan.Changes(planReport.Diff))

	current, err := json.Marshal(planReport.Plan)
	require.NoError(t, err)
	res, err = s.handleDiffPlans(ctx, call(map[string]interface{}{"current": string(current)}))
	require.NoError(t, err)
	var items []models.DiffItem
	require.NoError(t, json.Unmarshal([]byte(text(t, res)), &items))
	assert.Len(t, items, planReport.Plan.ItemCount())
	for _, d := range items {
		assert.Equal(t, models.DiffAdded, d.Type)
	}
}

func TestPreflightReferential(t *testing.T) {
	s, _ := newTestServer(t)
	ctx := context.Background()
	doc := `{"version": "1", "name": "Refs", "blocks": [
		{"type": "relationship", "id": "rel", "name": "Owns", "fromEntity": "User", "toEntity": "Device", "relationshipType": "oneToMany"}
	]}`

	res, err := s.handlePreflight(ctx, call(map[string]interface{}{"manifest": doc}))
	require.NoError(t, err)
	var report services.PreflightReport
	require.NoError(t, json.Unmarshal([]byte(text(t, res)), &report))
	assert.True(t, report.Summary.Passed)

	res, err = s.handlePreflight(ctx, call(map[string]interface{}{"manifest": doc, "referential": true}))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(text(t, res)), &report))
	assert.Equal(t, 2, report.Summary.Warnings)
}

func TestSeedAndRun(t *testing.T) {
	s, _ := newTestServer(t)
	ctx := context.Background()

	res, err := s.handleSeed(ctx, call(map[string]interface{}{"manifest": sample(), "records": 3.0}))
	require.NoError(t, err)
	var seed models.SeedDataOutput
	require.NoError(t, json.Unmarshal([]byte(text(t, res)), &seed))
	assert.Len(t, seed["Employee"], 3)

	res, err = s.handleSeed(ctx, call(map[string]interface{}{"manifest": sample()}))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(text(t, res)), &seed))
	assert.Len(t, seed["Employee"], defaultSeedRecords)

	res, err = s.handleRun(ctx, call(map[string]interface{}{
		"manifest":    sample(),
		"workflow_id": "wf-onboarding",
		"ticket":      `{"department": "Engineering"}`,
	}))
	require.NoError(t, err)
	var log models.SyntheticRunLog
	require.NoError(t, json.Unmarshal([]byte(text(t, res)), &log))
	assert.Equal(t, models.RunCompleted, log.Status)
	assert.Len(t, log.Steps, 11)
}

func TestLoadManifest(t *testing.T) {
	s, svc := newTestServer(t)
	ctx := context.Background()
	stored, err := svc.Save(ctx, samples.OnboardingJSON(), "", "tester")
	require.NoError(t, err)

	res, err := s.handleLoad(ctx, call(map[string]interface{}{"manifest_id": stored.ManifestID}))
	require.NoError(t, err)
	require.False(t, res.IsError, text(t, res))
	var got models.StoredManifest
	require.NoError(t, json.Unmarshal([]byte(text(t, res)), &got))
	assert.Equal(t, stored.ManifestID, got.ManifestID)
	assert.Len(t, got.Manifest.Blocks, 10)

	res, err = s.handleLoad(ctx, call(map[string]interface{}{"manifest_id": stored.ManifestID, "version": 1.0}))
	require.NoError(t, err)
	assert.False(t, res.IsError)
}

func TestMountHTTPHandlers(t *testing.T) {
	s, _ := newTestServer(t)
	mux := http.NewServeMux()
	MountHTTPHandlers(mux, s.GetMCPServer(), "/tools/")

	tests := []struct {
		name   string
		method string
		path   string
		want   int
	}{
		{"message without session", http.MethodPost, "/tools/message", http.StatusBadRequest},
		{"bare base path", http.MethodPost, "/tools", http.StatusNotFound},
		{"default path unmounted", http.MethodGet, "/mcp/sse", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, strings.NewReader(`{}`)))
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}
