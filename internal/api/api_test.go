package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/goleak"

	"github.com/rdey2-atlassian/desk-builder-ai-sub000/internal/repository"
	"github.com/rdey2-atlassian/desk-builder-ai-sub000/internal/samples"
	"github.com/rdey2-atlassian/desk-builder-ai-sub000/internal/services"
	"github.com/rdey2-atlassian/desk-builder-ai-sub000/pkg/models"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type stubGenerator struct {
	blocks []services.GeneratedBlock
}

func (g stubGenerator) GenerateBlocks(context.Context, string) ([]services.GeneratedBlock, error) {
	return g.blocks, nil
}

type downStore struct {
	repository.ManifestStore
}

func (downStore) Ping(context.Context) error { return errors.New("connection refused") }

func newTestRouter(t *testing.T, store repository.ManifestStore, opts ...services.Option) *echo.Echo {
	t.Helper()
	now := func() time.Time { return time.Date(2026, 2, 27, 9, 0, 0, 0, time.UTC) }
	opts = append([]services.Option{services.WithClock(now), services.WithMeterProvider(noop.NewMeterProvider())}, opts...)
	svc, err := services.NewSolutionService(store, opts...)
	require.NoError(t, err)
	return NewRouter(NewServer(svc, nil))
}

func do(t *testing.T, e *echo.Echo, method, target string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	if body != nil {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decodeJSON[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return raw
}

func TestHealth(t *testing.T) {
	rec := do(t, newTestRouter(t, repository.NewMemoryManifestStore()), http.MethodGet, "/api/v1/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	h := decodeJSON[models.HealthStatus](t, rec)
	assert.Equal(t, "ok", h.Status)
	assert.Equal(t, "ok", h.Checks["store"])

	rec = do(t, newTestRouter(t, downStore{}), http.MethodGet, "/api/v1/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "degraded", decodeJSON[models.HealthStatus](t, rec).Status)
}

func TestValidate(t *testing.T) {
	e := newTestRouter(t, repository.NewMemoryManifestStore())

	rec := do(t, e, http.MethodPost, "/api/v1/validate", samples.OnboardingJSON())
	require.Equal(t, http.StatusOK, rec.Code)
	ok := decodeJSON[map[string]any](t, rec)
	assert.Equal(t, true, ok["ok"])

	rec = do(t, e, http.MethodPost, "/api/v1/validate", []byte(`{"version": "1", "blocks": []}`))
	require.Equal(t, http.StatusOK, rec.Code)
	bad := decodeJSON[map[string]any](t, rec)
	assert.Equal(t, false, bad["ok"])
	assert.Len(t, bad["issues"], 1)
}

func TestStatelessPipeline(t *testing.T) {
	e := newTestRouter(t, repository.NewMemoryManifestStore())

	rec := do(t, e, http.MethodPost, "/api/v1/preflight", samples.OnboardingJSON())
	require.Equal(t, http.StatusOK, rec.Code)
	report := decodeJSON[services.PreflightReport](t, rec)
	assert.True(t, report.Summary.Passed)

	rec = do(t, e, http.MethodPost, "/api/v1/plan", samples.OnboardingJSON())
	require.Equal(t, http.StatusOK, rec.Code)
	planReport := decodeJSON[services.PlanReport](t, rec)
	assert.Len(t, planReport.Diff, planReport.Plan.ItemCount())

	rec = do(t, e, http.MethodPost, "/api/v1/diff?changes=true", mustJSON(t, map[string]any{
		"previous": planReport.Plan, "current": planReport.Plan,
	}))
	require.Equal(t, http.StatusOK, rec.Code)
	for _, d := range decodeJSON[[]models.DiffItem](t, rec) {
		assert.Equal(t, models.DiffUnchanged, d.Type)
	}

	rec = do(t, e, http.MethodPost, "/api/v1/seed?records=3", samples.OnboardingJSON())
	require.Equal(t, http.StatusOK, rec.Code)
	seed := decodeJSON[models.SeedDataOutput](t, rec)
	assert.Len(t, seed["Employee"], 3)

	rec = do(t, e, http.MethodPost, "/api/v1/seed?records=0", samples.OnboardingJSON())
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, e, http.MethodPost, "/api/v1/seed?records=many", samples.OnboardingJSON())
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, e, http.MethodPost, "/api/v1/run", mustJSON(t, map[string]any{
		"manifest":   json.RawMessage(samples.OnboardingJSON()),
		"workflowId": "wf-onboarding",
		"ticket":     map[string]any{"department": "Engineering"},
	}))
	require.Equal(t, http.StatusOK, rec.Code)
	log := decodeJSON[models.SyntheticRunLog](t, rec)
	assert.Equal(t, models.RunCompleted, log.Status)
}

func TestInvalidManifestIsProblem422(t *testing.T) {
	e := newTestRouter(t, repository.NewMemoryManifestStore())
	rec := do(t, e, http.MethodPost, "/api/v1/preflight", []byte(`{"version": "1", "name": "x", "blocks": [{"type": "workflow", "id": "w", "name": "W", "states": ["a"], "transitions": []}]}`))

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, problemJSON, rec.Header().Get(echo.HeaderContentType))
	pd := decodeJSON[map[string]any](t, rec)
	assert.Equal(t, "/api/v1/preflight", pd["instance"])
	issues, ok := pd["errors"].([]any)
	require.True(t, ok)
	require.Len(t, issues, 1)
	assert.Equal(t, "blocks.0.states", issues[0].(map[string]any)["path"])
}

func TestManifestLifecycle(t *testing.T) {
	e := newTestRouter(t, repository.NewMemoryManifestStore())

	rec := do(t, e, http.MethodPost, "/api/v1/manifests?author=ana", samples.OnboardingJSON())
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeJSON[models.StoredManifest](t, rec)
	assert.Equal(t, 1, created.Version)
	assert.Equal(t, "ana", created.CreatedBy)
	base := "/api/v1/manifests/" + created.ManifestID

	rec = do(t, e, http.MethodPost, base+"/commands", []byte(`[
		{"op": "removeBlock", "id": "adp-intune"},
		{"op": "setMetadata", "description": "trimmed"}
	]`))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	edited := decodeJSON[models.StoredManifest](t, rec)
	assert.Equal(t, 2, edited.Version)
	assert.Equal(t, "api", edited.CreatedBy)

	rec = do(t, e, http.MethodGet, base+"?version=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeJSON[models.StoredManifest](t, rec).Manifest.Blocks, 10)

	rec = do(t, e, http.MethodGet, base+"/versions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeJSON[[]models.ManifestSummary](t, rec), 2)

	rec = do(t, e, http.MethodGet, base+"/plan", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	planReport := decodeJSON[services.PlanReport](t, rec)
	assert.Equal(t, 1, planReport.PreviousVersion)
	var removed []string
	for _, d := range planReport.Diff {
		if d.Type == models.DiffRemoved {
			removed = append(removed, d.Category+"/"+d.Name)
		}
	}
	assert.Equal(t, []string{"adapters/Intune"}, removed)

	rec = do(t, e, http.MethodGet, base+"/preflight", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Greater(t, decodeJSON[services.PreflightReport](t, rec).Summary.Errors, 0, "task still points at the removed adapter")

	rec = do(t, e, http.MethodGet, base+"/seed?records=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeJSON[models.SeedDataOutput](t, rec)["Device"], 2)

	rec = do(t, e, http.MethodPost, base+"/runs", []byte(`{"workflowId": "missing"}`))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.RunError, decodeJSON[models.SyntheticRunLog](t, rec).Status)

	rec = do(t, e, http.MethodGet, base+"/export", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get(echo.HeaderContentDisposition), created.ManifestID+".json")
	assert.Contains(t, rec.Body.String(), "\n  \"version\"")

	rec = do(t, e, http.MethodPut, base, rec.Body.Bytes())
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 3, decodeJSON[models.StoredManifest](t, rec).Version)

	rec = do(t, e, http.MethodGet, "/api/v1/manifests", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decodeJSON[[]models.ManifestSummary](t, rec)
	require.Len(t, list, 1)
	assert.Equal(t, 3, list[0].Version)
}

func TestCommandErrors(t *testing.T) {
	e := newTestRouter(t, repository.NewMemoryManifestStore())
	rec := do(t, e, http.MethodPost, "/api/v1/manifests", samples.OnboardingJSON())
	require.Equal(t, http.StatusCreated, rec.Code)
	base := "/api/v1/manifests/" + decodeJSON[models.StoredManifest](t, rec).ManifestID

	tests := []struct {
		name string
		body string
		code int
	}{
		{"unknown block", `[{"op": "removeBlock", "id": "nope"}]`, http.StatusNotFound},
		{"duplicate id", `[{"op": "addBlock", "block": {"type": "security", "id": "sec-hr", "name": "S", "visibility": []}}]`, http.StatusConflict},
		{"type change", `[{"op": "updateBlock", "block": {"type": "security", "id": "ent-employee", "name": "S", "visibility": []}}]`, http.StatusConflict},
		{"invalid block", `[{"op": "addBlock", "block": {"type": "entity", "id": "e", "name": "E"}}]`, http.StatusUnprocessableEntity},
		{"unknown op", `[{"op": "explode"}]`, http.StatusBadRequest},
		{"empty list", `[]`, http.StatusBadRequest},
		{"bad index", `[{"op": "moveBlock", "id": "sec-hr", "index": 99}]`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, e, http.MethodPost, base+"/commands", []byte(tt.body))
			assert.Equal(t, tt.code, rec.Code, rec.Body.String())
		})
	}

	rec = do(t, e, http.MethodGet, base+"/versions", nil)
	assert.Len(t, decodeJSON[[]models.ManifestSummary](t, rec), 1, "failed commands must not store versions")
}

func TestNotFound(t *testing.T) {
	e := newTestRouter(t, repository.NewMemoryManifestStore())
	for _, target := range []string{"/api/v1/manifests/nope", "/api/v1/manifests/nope/versions", "/api/v1/manifests/nope/plan"} {
		rec := do(t, e, http.MethodGet, target, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code, target)
		assert.Equal(t, problemJSON, rec.Header().Get(echo.HeaderContentType))
	}
}

func TestGenerate(t *testing.T) {
	gen := stubGenerator{blocks: []services.GeneratedBlock{{
		Type: "rule", Name: "VIP routing",
		Parameters: map[string]any{
			"when": []any{map[string]any{"field": "vip", "operator": "equals", "value": "yes"}},
			"then": []any{map[string]any{"type": "assignToQueue", "value": "VIP"}},
		},
	}}}
	e := newTestRouter(t, repository.NewMemoryManifestStore(), services.WithGenerator(gen))
	rec := do(t, e, http.MethodPost, "/api/v1/manifests", samples.OnboardingJSON())
	require.Equal(t, http.StatusCreated, rec.Code)
	base := "/api/v1/manifests/" + decodeJSON[models.StoredManifest](t, rec).ManifestID

	rec = do(t, e, http.MethodPost, base+"/generate", []byte(`{"prompt": "route VIPs"}`))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	stored := decodeJSON[models.StoredManifest](t, rec)
	assert.Equal(t, 2, stored.Version)
	assert.Len(t, stored.Manifest.Rules(), 2)

	rec = do(t, e, http.MethodPost, base+"/generate", []byte(`{"prompt": ""}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	plain := newTestRouter(t, repository.NewMemoryManifestStore())
	rec = do(t, plain, http.MethodPost, "/api/v1/manifests/x/generate", []byte(`{"prompt": "x"}`))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestDocs(t *testing.T) {
	e := newTestRouter(t, repository.NewMemoryManifestStore())

	rec := do(t, e, http.MethodGet, "/openapi.yaml", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "/manifests/{id}/commands")

	rec = do(t, e, http.MethodGet, "/docs", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `url: "/openapi.yaml"`)
}

func TestPreflightReferential(t *testing.T) {
	e := newTestRouter(t, repository.NewMemoryManifestStore())
	body := []byte(`{"version": "1", "name": "Refs", "blocks": [
		{"type": "entity", "id": "ent-asset", "name": "Asset", "fields": [
			{"name": "id", "type": "string"},
			{"name": "owner", "type": "ref", "ref": {"entity": "User"}}
		]}
	]}`)

	rec := do(t, e, http.MethodPost, "/api/v1/preflight", body)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decodeJSON[services.PreflightReport](t, rec).Summary.Passed)

	rec = do(t, e, http.MethodPost, "/api/v1/preflight?referential=true", body)
	require.Equal(t, http.StatusOK, rec.Code)
	report := decodeJSON[services.PreflightReport](t, rec)
	assert.Equal(t, 1, report.Summary.Warnings)
	require.Len(t, report.Issues, 1)
	assert.Equal(t, "fields.1.ref", report.Issues[0].Field)

	rec = do(t, e, http.MethodPost, "/api/v1/preflight?referential=maybe", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
