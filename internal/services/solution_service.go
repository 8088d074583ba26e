package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric"

	"github.com/rdey2-atlassian/desk-builder-ai-sub000/internal/composer"
	"github.com/rdey2-atlassian/desk-builder-ai-sub000/internal/logging"
	"github.com/rdey2-atlassian/desk-builder-ai-sub000/internal/plan"
	"github.com/rdey2-atlassian/desk-builder-ai-sub000/internal/preflight"
	"github.com/rdey2-atlassian/desk-builder-ai-sub000/internal/repository"
	"github.com/rdey2-atlassian/desk-builder-ai-sub000/internal/schema"
	"github.com/rdey2-atlassian/desk-builder-ai-sub000/internal/seed"
	"github.com/rdey2-atlassian/desk-builder-ai-sub000/internal/synthetic"
	"github.com/rdey2-atlassian/desk-builder-ai-sub000/pkg/models"
)

// PreflightReport is the preflight outcome for one manifest version.
type PreflightReport struct {
	ManifestID string                  `json:"manifest_id,omitempty"`
	Version    int                     `json:"version,omitempty"`
	Issues     []models.PreflightIssue `json:"issues"`
	Summary    preflight.Summary       `json:"summary"`
}

// PlanReport is a compiled plan and its diff against the previous version.
type PlanReport struct {
	ManifestID      string            `json:"manifest_id,omitempty"`
	Version         int               `json:"version,omitempty"`
	PreviousVersion int               `json:"previous_version,omitempty"`
	Plan            models.DryRunPlan `json:"plan"`
	Diff            []models.DiffItem `json:"diff"`
}

// SolutionService wires the manifest pipeline to the manifest store and the
// block generator.
type SolutionService struct {
	store     repository.ManifestStore
	generator BlockGenerator
	seeds     *seed.Generator
	runner    *synthetic.Runner
	logger    *logging.Logger
	meters    metric.MeterProvider
	metrics   *pipelineMetrics
}

// Option configures a SolutionService.
type Option func(*SolutionService)

// WithGenerator sets the AI block generator used by Generate.
func WithGenerator(g BlockGenerator) Option {
	return func(s *SolutionService) { s.generator = g }
}

// WithLogger sets the service logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *SolutionService) { s.logger = l }
}

// WithClock fixes the clock used for seed dates and run timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *SolutionService) {
		s.seeds = &seed.Generator{Now: now}
		s.runner = &synthetic.Runner{Now: now}
	}
}

// WithMeterProvider sets where pipeline counters are recorded. The global
// provider is used otherwise.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(s *SolutionService) { s.meters = mp }
}

// NewSolutionService creates a new SolutionService.
func NewSolutionService(store repository.ManifestStore, opts ...Option) (*SolutionService, error) {
	s := &SolutionService{
		store:  store,
		seeds:  seed.NewGenerator(),
		runner: synthetic.NewRunner(),
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	m, err := newPipelineMetrics(s.meters)
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics: %w", err)
	}
	s.metrics = m
	return s, nil
}

// Validate runs the schema validator over raw manifest JSON.
func (s *SolutionService) Validate(ctx context.Context, data []byte) schema.Result {
	res := schema.Validate(data)
	s.metrics.validated(ctx, res.OK)
	return res
}

// ValidateValue runs the schema validator over an already-decoded value.
func (s *SolutionService) ValidateValue(ctx context.Context, v any) schema.Result {
	res := schema.ValidateValue(v)
	s.metrics.validated(ctx, res.OK)
	return res
}

// Import validates raw manifest JSON and returns the typed manifest, or a
// *ValidationError listing every issue.
func (s *SolutionService) Import(ctx context.Context, data []byte) (models.Manifest, error) {
	res := s.Validate(ctx, data)
	if !res.OK {
		return models.Manifest{}, &ValidationError{Issues: res.Issues}
	}
	return *res.Manifest, nil
}

// Save imports raw manifest JSON and stores it as the next version of
// manifestID, or of a new manifest when manifestID is empty.
func (s *SolutionService) Save(ctx context.Context, data []byte, manifestID, author string) (*models.StoredManifest, error) {
	m, err := s.Import(ctx, data)
	if err != nil {
		return nil, err
	}
	return s.SaveManifest(ctx, m, manifestID, author)
}

// SaveManifest stores an already-typed manifest as a new version.
func (s *SolutionService) SaveManifest(ctx context.Context, m models.Manifest, manifestID, author string) (*models.StoredManifest, error) {
	stored := &models.StoredManifest{ManifestID: manifestID, Name: m.Name, Manifest: m, CreatedBy: author}
	if err := s.store.Save(ctx, stored); err != nil {
		return nil, fmt.Errorf("failed to save manifest: %w", err)
	}
	s.metrics.saves.Add(ctx, 1)
	s.logger.Info("manifest saved", "manifest_id", stored.ManifestID, "version", stored.Version, "blocks", len(m.Blocks))
	return stored, nil
}

// Load returns the latest version of a manifest.
func (s *SolutionService) Load(ctx context.Context, manifestID string) (*models.StoredManifest, error) {
	return s.store.Get(ctx, manifestID)
}

// LoadVersion returns one version of a manifest.
func (s *SolutionService) LoadVersion(ctx context.Context, manifestID string, version int) (*models.StoredManifest, error) {
	return s.store.GetVersion(ctx, manifestID, version)
}

// List returns the latest version of every stored manifest.
func (s *SolutionService) List(ctx context.Context) ([]models.ManifestSummary, error) {
	return s.store.List(ctx)
}

// Versions returns the version history of a manifest.
func (s *SolutionService) Versions(ctx context.Context, manifestID string) ([]models.ManifestSummary, error) {
	return s.store.Versions(ctx, manifestID)
}

// Export renders the latest version of a manifest as pretty JSON.
func (s *SolutionService) Export(ctx context.Context, manifestID string) ([]byte, error) {
	stored, err := s.store.Get(ctx, manifestID)
	if err != nil {
		return nil, err
	}
	return schema.Export(stored.Manifest)
}

// Ping checks the manifest store.
func (s *SolutionService) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// Apply runs cmds over the latest version of a manifest and stores the
// result as a new version. Nothing is stored when a command fails.
func (s *SolutionService) Apply(ctx context.Context, manifestID, author string, cmds ...composer.Command) (*models.StoredManifest, error) {
	stored, err := s.store.Get(ctx, manifestID)
	if err != nil {
		return nil, err
	}
	next, err := composer.ApplyAll(stored.Manifest, cmds...)
	if err != nil {
		return nil, err
	}
	return s.SaveManifest(ctx, next, manifestID, author)
}

// PreflightManifest runs the preflight rules over m.
func (s *SolutionService) PreflightManifest(ctx context.Context, m models.Manifest, opts ...preflight.Option) PreflightReport {
	issues := preflight.Run(m, opts...)
	for _, is := range issues {
		s.metrics.issue(ctx, string(is.Severity))
	}
	return PreflightReport{Issues: issues, Summary: preflight.Summarize(issues)}
}

// Preflight runs the preflight rules over the latest version of a manifest.
func (s *SolutionService) Preflight(ctx context.Context, manifestID string, opts ...preflight.Option) (*PreflightReport, error) {
	stored, err := s.store.Get(ctx, manifestID)
	if err != nil {
		return nil, err
	}
	report := s.PreflightManifest(ctx, stored.Manifest, opts...)
	report.ManifestID = stored.ManifestID
	report.Version = stored.Version
	return &report, nil
}

// PlanManifest compiles cur and diffs it against prev, which may be nil.
func (s *SolutionService) PlanManifest(ctx context.Context, prev *models.Manifest, cur models.Manifest, opts ...plan.DiffOption) PlanReport {
	compiled := plan.Compile(cur)
	s.metrics.plans.Add(ctx, 1)
	var prevPlan *models.DryRunPlan
	if prev != nil {
		p := plan.Compile(*prev)
		prevPlan = &p
	}
	return PlanReport{Plan: compiled, Diff: plan.Diff(prevPlan, compiled, opts...)}
}

// Plan compiles the latest version of a manifest and diffs it against the
// plan recomputed from the version before it.
func (s *SolutionService) Plan(ctx context.Context, manifestID string, opts ...plan.DiffOption) (*PlanReport, error) {
	stored, err := s.store.Get(ctx, manifestID)
	if err != nil {
		return nil, err
	}
	var prev *models.Manifest
	if stored.Version > 1 {
		p, err := s.store.GetVersion(ctx, manifestID, stored.Version-1)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
		if p != nil {
			prev = &p.Manifest
		}
	}
	report := s.PlanManifest(ctx, prev, stored.Manifest, opts...)
	report.ManifestID = stored.ManifestID
	report.Version = stored.Version
	if prev != nil {
		report.PreviousVersion = stored.Version - 1
	}
	return &report, nil
}

// SeedManifest generates n records per entity of m.
func (s *SolutionService) SeedManifest(ctx context.Context, m models.Manifest, n int) (models.SeedDataOutput, error) {
	out, err := s.seeds.Generate(m, n)
	if err != nil {
		return nil, err
	}
	total := 0
	for _, records := range out {
		total += len(records)
	}
	s.metrics.seedRecords.Add(ctx, int64(total))
	return out, nil
}

// Seed generates n records per entity of the latest version of a manifest.
func (s *SolutionService) Seed(ctx context.Context, manifestID string, n int) (models.SeedDataOutput, error) {
	stored, err := s.store.Get(ctx, manifestID)
	if err != nil {
		return nil, err
	}
	return s.SeedManifest(ctx, stored.Manifest, n)
}

// RunManifest replays a workflow of m against ticket data.
func (s *SolutionService) RunManifest(ctx context.Context, m models.Manifest, workflowID string, ticket map[string]any) models.SyntheticRunLog {
	log := s.runner.Run(m, workflowID, ticket)
	s.metrics.ran(ctx, string(log.Status))
	if log.Status != models.RunCompleted {
		s.logger.Warn("synthetic run failed", "workflow_id", workflowID, "error", log.Error)
	}
	return log
}

// Run replays a workflow of the latest version of a manifest.
func (s *SolutionService) Run(ctx context.Context, manifestID, workflowID string, ticket map[string]any) (*models.SyntheticRunLog, error) {
	stored, err := s.store.Get(ctx, manifestID)
	if err != nil {
		return nil, err
	}
	log := s.RunManifest(ctx, stored.Manifest, workflowID, ticket)
	return &log, nil
}

// Generate asks the block generator for blocks, validates them together
// with the latest version of the manifest and stores the result as a new
// version. Generated blocks get fresh ids.
func (s *SolutionService) Generate(ctx context.Context, manifestID, prompt, author string) (*models.StoredManifest, error) {
	if s.generator == nil {
		return nil, ErrGeneratorUnavailable
	}
	if strings.TrimSpace(prompt) == "" {
		return nil, ErrEmptyPrompt
	}
	stored, err := s.store.Get(ctx, manifestID)
	if err != nil {
		return nil, err
	}

	generated, err := s.generator.GenerateBlocks(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("block generator failed: %w", err)
	}

	doc, err := toValue(stored.Manifest)
	if err != nil {
		return nil, err
	}
	blocks, _ := doc["blocks"].([]any)
	for _, g := range generated {
		blocks = append(blocks, rawBlock(g))
	}
	doc["blocks"] = blocks

	res := s.ValidateValue(ctx, doc)
	s.metrics.generations.Add(ctx, int64(len(generated)), outcome(res.OK))
	if !res.OK {
		s.logger.Warn("generated blocks rejected", "manifest_id", manifestID, "issues", len(res.Issues))
		return nil, &ValidationError{Issues: res.Issues}
	}
	return s.SaveManifest(ctx, *res.Manifest, manifestID, author)
}

// rawBlock turns a generator tuple into an untyped block value. Parameters
// cannot override the type, id or name.
func rawBlock(g GeneratedBlock) map[string]any {
	out := make(map[string]any, len(g.Parameters)+3)
	for k, v := range g.Parameters {
		out[k] = v
	}
	out["type"] = g.Type
	out["id"] = g.Type + "-" + uuid.NewString()
	out["name"] = g.Name
	return out
}

func toValue(m models.Manifest) (map[string]any, error) {
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to encode manifest: %w", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode manifest: %w", err)
	}
	return doc, nil
}
