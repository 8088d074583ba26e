package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/rdey2-atlassian/desk-builder-ai-sub000/internal/samples"
	"github.com/rdey2-atlassian/desk-builder-ai-sub000/pkg/models"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func sampleYAML(t *testing.T) []byte {
	t.Helper()
	var doc any
	require.NoError(t, json.Unmarshal(samples.OnboardingJSON(), &doc))
	data, err := yaml.Marshal(doc)
	require.NoError(t, err)
	return data
}

func TestValidate(t *testing.T) {
	jsonPath := writeFile(t, "onboarding.json", samples.OnboardingJSON())
	yamlPath := writeFile(t, "onboarding.yaml", sampleYAML(t))

	for _, path := range []string{jsonPath, yamlPath} {
		out, err := execute(t, "validate", path)
		require.NoError(t, err, path)
		assert.Contains(t, out, `"ok": true`)
	}

	bad := writeFile(t, "bad.json", []byte(`{"name": "", "blocks": []}`))
	out, err := execute(t, "validate", bad)
	var exit *exitError
	require.ErrorAs(t, err, &exit)
	assert.Contains(t, out, `"ok": false`)
	assert.Contains(t, out, `"path": "name"`)
}

func TestLoadReportsIssues(t *testing.T) {
	bad := writeFile(t, "bad.json", []byte(`{"name": "x", "blocks": [{"type": "entity"}]}`))
	_, err := execute(t, "preflight", bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "is not a valid manifest")
	assert.Contains(t, err.Error(), "blocks.0")

	_, err = execute(t, "seed", filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read")
}

func TestPreflightStrict(t *testing.T) {
	noSecurity := models.Manifest{
		Name: "No Security",
		Blocks: []models.Block{
			models.EntityBlock{
				Base:   models.Base{ID: "ent-person", Name: "Person"},
				Fields: []models.EntityField{{Name: "email", Type: models.FieldTypeString, PII: true}},
			},
		},
	}
	data, err := json.Marshal(noSecurity)
	require.NoError(t, err)
	path := writeFile(t, "nosec.json", data)

	out, err := execute(t, "preflight", path)
	require.NoError(t, err)
	assert.Contains(t, out, `"passed": false`)

	_, err = execute(t, "preflight", "--strict", path)
	var exit *exitError
	require.ErrorAs(t, err, &exit)

	sample := writeFile(t, "onboarding.json", samples.OnboardingJSON())
	_, err = execute(t, "preflight", "--strict", sample)
	require.NoError(t, err)
}

func TestPreflightReferential(t *testing.T) {
	m := models.Manifest{
		Name: "Dangling Graph",
		Blocks: []models.Block{
			models.CatalogItemBlock{
				Base:        models.Base{ID: "cat-laptop", Name: "Laptop"},
				Form:        models.Form{Sections: []models.FormSection{}},
				Fulfillment: models.Fulfillment{Type: models.FulfillmentTaskGraph, TaskGraphID: "tg-missing"},
			},
		},
	}
	data, err := json.Marshal(m)
	require.NoError(t, err)
	path := writeFile(t, "dangling.json", data)

	out, err := execute(t, "preflight", "--strict", path)
	require.NoError(t, err)
	assert.Contains(t, out, `"passed": true`)

	out, err = execute(t, "preflight", "--strict", "--referential", path)
	var exit *exitError
	require.ErrorAs(t, err, &exit)
	assert.Contains(t, out, "tg-missing")
}

func TestPlanAndDiff(t *testing.T) {
	path := writeFile(t, "onboarding.json", samples.OnboardingJSON())

	out, err := execute(t, "plan", path)
	require.NoError(t, err)
	var report struct {
		Plan models.DryRunPlan `json:"plan"`
		Diff []models.DiffItem `json:"diff"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	require.Len(t, report.Diff, report.Plan.ItemCount())
	for _, d := range report.Diff {
		assert.Equal(t, models.DiffAdded, d.Type)
	}

	out, err = execute(t, "diff", "--hide-unchanged", path, path)
	require.NoError(t, err)
	var items []models.DiffItem
	require.NoError(t, json.Unmarshal([]byte(out), &items))
	assert.Empty(t, items)
}

func TestSeedYAMLOutput(t *testing.T) {
	path := writeFile(t, "onboarding.yaml", sampleYAML(t))

	out, err := execute(t, "seed", path, "--records", "2", "--output", "yaml")
	require.NoError(t, err)
	var seed map[string][]map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(out), &seed))
	assert.Len(t, seed["Employee"], 2)
	assert.Len(t, seed["Device"], 2)

	_, err = execute(t, "seed", path, "--records", "0")
	require.Error(t, err)
}

func TestRun(t *testing.T) {
	path := writeFile(t, "onboarding.json", samples.OnboardingJSON())

	out, err := execute(t, "run", path, "--workflow", "wf-onboarding", "--set", "department=Engineering")
	require.NoError(t, err)
	var log models.SyntheticRunLog
	require.NoError(t, json.Unmarshal([]byte(out), &log))
	assert.Equal(t, models.RunCompleted, log.Status)
	assert.Len(t, log.Steps, 11)

	ticket := writeFile(t, "ticket.yaml", []byte("department: Engineering\n"))
	out, err = execute(t, "run", path, "-w", "wf-onboarding", "--ticket", ticket)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &log))
	assert.Len(t, log.Steps, 11)

	_, err = execute(t, "run", path, "--workflow", "wf-missing")
	var exit *exitError
	require.ErrorAs(t, err, &exit)

	_, err = execute(t, "run", path)
	require.Error(t, err, "--workflow is required")
}

func TestExportConvertsYAML(t *testing.T) {
	path := writeFile(t, "onboarding.yaml", sampleYAML(t))

	out, err := execute(t, "export", path)
	require.NoError(t, err)
	var m models.Manifest
	require.NoError(t, json.Unmarshal([]byte(out), &m))
	assert.Equal(t, "Employee Onboarding", m.Name)
	assert.Len(t, m.Blocks, 10)
}

func TestUnsupportedOutput(t *testing.T) {
	path := writeFile(t, "onboarding.json", samples.OnboardingJSON())
	_, err := execute(t, "validate", "--output", "xml", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported output")
}
