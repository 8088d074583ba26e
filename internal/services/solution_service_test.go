package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/rdey2-atlassian/desk-builder-ai-sub000/internal/composer"
	"github.com/rdey2-atlassian/desk-builder-ai-sub000/internal/plan"
	"github.com/rdey2-atlassian/desk-builder-ai-sub000/internal/repository"
	"github.com/rdey2-atlassian/desk-builder-ai-sub000/internal/samples"
	"github.com/rdey2-atlassian/desk-builder-ai-sub000/pkg/models"
)

// MockStore satisfies repository.ManifestStore
type MockStore struct {
	mock.Mock
}

func (m *MockStore) Save(ctx context.Context, sm *models.StoredManifest) error {
	args := m.Called(ctx, sm)
	return args.Error(0)
}

func (m *MockStore) Get(ctx context.Context, id string) (*models.StoredManifest, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.StoredManifest), args.Error(1)
}

func (m *MockStore) GetVersion(ctx context.Context, id string, version int) (*models.StoredManifest, error) {
	args := m.Called(ctx, id, version)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.StoredManifest), args.Error(1)
}

func (m *MockStore) List(ctx context.Context) ([]models.ManifestSummary, error) {
	args := m.Called(ctx)
	return args.Get(0).([]models.ManifestSummary), args.Error(1)
}

func (m *MockStore) Versions(ctx context.Context, id string) ([]models.ManifestSummary, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.ManifestSummary), args.Error(1)
}

func (m *MockStore) Ping(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

// MockGenerator satisfies BlockGenerator
type MockGenerator struct {
	mock.Mock
}

func (m *MockGenerator) GenerateBlocks(ctx context.Context, prompt string) ([]GeneratedBlock, error) {
	args := m.Called(ctx, prompt)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]GeneratedBlock), args.Error(1)
}

func fixedNow() time.Time {
	return time.Date(2026, 2, 27, 9, 0, 0, 0, time.UTC)
}

func newService(t *testing.T, store repository.ManifestStore, opts ...Option) *SolutionService {
	t.Helper()
	opts = append([]Option{WithClock(fixedNow), WithMeterProvider(noop.NewMeterProvider())}, opts...)
	svc, err := NewSolutionService(store, opts...)
	require.NoError(t, err)
	return svc
}

func storedSample(version int) *models.StoredManifest {
	return &models.StoredManifest{ID: "row", ManifestID: "m-1", Version: version, IsLatest: true, Name: "Employee Onboarding", Manifest: samples.Onboarding()}
}

func TestSave_ValidatesBeforeStoring(t *testing.T) {
	store := new(MockStore)
	svc := newService(t, store)

	_, err := svc.Save(context.Background(), []byte(`{"version": "1", "blocks": []}`), "", "ana")
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.True(t, errors.Is(err, ErrInvalidManifest))
	require.Len(t, verr.Issues, 1)
	assert.Equal(t, "name", verr.Issues[0].Path)
	store.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
}

func TestSave_StoresImportedManifest(t *testing.T) {
	store := new(MockStore)
	store.On("Save", mock.Anything, mock.MatchedBy(func(sm *models.StoredManifest) bool {
		return sm.ManifestID == "" && sm.CreatedBy == "ana" && len(sm.Manifest.Blocks) == 10
	})).Run(func(args mock.Arguments) {
		sm := args.Get(1).(*models.StoredManifest)
		sm.ManifestID = "m-1"
		sm.Version = 1
	}).Return(nil)
	svc := newService(t, store)

	out, err := svc.Save(context.Background(), samples.OnboardingJSON(), "", "ana")
	require.NoError(t, err)
	assert.Equal(t, "m-1", out.ManifestID)
	assert.Equal(t, "Employee Onboarding", out.Name)
	store.AssertExpectations(t)
}

func TestLoad_PropagatesNotFound(t *testing.T) {
	store := new(MockStore)
	store.On("Get", mock.Anything, "missing").Return(nil, repository.ErrNotFound)
	svc := newService(t, store)

	_, err := svc.Load(context.Background(), "missing")
	assert.ErrorIs(t, err, repository.ErrNotFound)
	_, err = svc.Preflight(context.Background(), "missing")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestApply_SavesNewVersion(t *testing.T) {
	store := new(MockStore)
	store.On("Get", mock.Anything, "m-1").Return(storedSample(1), nil)
	store.On("Save", mock.Anything, mock.MatchedBy(func(sm *models.StoredManifest) bool {
		return sm.ManifestID == "m-1" && len(sm.Manifest.Blocks) == 9
	})).Return(nil)
	svc := newService(t, store)

	_, err := svc.Apply(context.Background(), "m-1", "ana", composer.RemoveBlock{ID: "sec-hr"})
	require.NoError(t, err)
	store.AssertExpectations(t)
}

func TestApply_FailedCommandStoresNothing(t *testing.T) {
	store := new(MockStore)
	store.On("Get", mock.Anything, "m-1").Return(storedSample(1), nil)
	svc := newService(t, store)

	_, err := svc.Apply(context.Background(), "m-1", "ana", composer.RemoveBlock{ID: "nope"})
	assert.ErrorIs(t, err, composer.ErrBlockNotFound)
	store.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
}

func TestPreflight_Stored(t *testing.T) {
	store := new(MockStore)
	store.On("Get", mock.Anything, "m-1").Return(storedSample(3), nil)
	svc := newService(t, store)

	report, err := svc.Preflight(context.Background(), "m-1")
	require.NoError(t, err)
	assert.Equal(t, 3, report.Version)
	assert.Empty(t, report.Issues)
	assert.True(t, report.Summary.Passed)
}

func TestPlan_FirstVersionIsAllAdded(t *testing.T) {
	store := new(MockStore)
	store.On("Get", mock.Anything, "m-1").Return(storedSample(1), nil)
	svc := newService(t, store)

	report, err := svc.Plan(context.Background(), "m-1")
	require.NoError(t, err)
	assert.Equal(t, 0, report.PreviousVersion)
	assert.Len(t, report.Diff, report.Plan.ItemCount())
	for _, d := range report.Diff {
		assert.Equal(t, models.DiffAdded, d.Type)
	}
	store.AssertNotCalled(t, "GetVersion", mock.Anything, mock.Anything, mock.Anything)
}

func TestPlan_DiffsAgainstPreviousVersion(t *testing.T) {
	prev := storedSample(1)
	cur := storedSample(2)
	next, err := composer.Apply(cur.Manifest, composer.RemoveBlock{ID: "adp-intune"})
	require.NoError(t, err)
	cur.Manifest = next

	store := new(MockStore)
	store.On("Get", mock.Anything, "m-1").Return(cur, nil)
	store.On("GetVersion", mock.Anything, "m-1", 1).Return(prev, nil)
	svc := newService(t, store)

	report, err := svc.Plan(context.Background(), "m-1", plan.WithChangeDetection())
	require.NoError(t, err)
	assert.Equal(t, 1, report.PreviousVersion)

	changes := plan.Changes(report.Diff)
	require.Len(t, changes, 1)
	assert.Equal(t, models.DiffRemoved, changes[0].Type)
	assert.Equal(t, plan.CategoryAdapters, changes[0].Category)
	assert.Equal(t, "Intune", changes[0].Name)
}

func TestSeedAndRun_Stored(t *testing.T) {
	store := new(MockStore)
	store.On("Get", mock.Anything, "m-1").Return(storedSample(1), nil)
	svc := newService(t, store)

	out, err := svc.Seed(context.Background(), "m-1", 2)
	require.NoError(t, err)
	assert.Len(t, out["Employee"], 2)

	_, err = svc.Seed(context.Background(), "m-1", 0)
	assert.Error(t, err)

	log, err := svc.Run(context.Background(), "m-1", "wf-onboarding", map[string]any{"department": "Engineering"})
	require.NoError(t, err)
	assert.Equal(t, models.RunCompleted, log.Status)
	assert.Equal(t, fixedNow(), log.StartTime)
}

func TestGenerate_AppendsValidatedBlocks(t *testing.T) {
	store := new(MockStore)
	store.On("Get", mock.Anything, "m-1").Return(storedSample(1), nil)
	store.On("Save", mock.Anything, mock.AnythingOfType("*models.StoredManifest")).Return(nil)
	gen := new(MockGenerator)
	gen.On("GenerateBlocks", mock.Anything, "add a laptop request").Return([]GeneratedBlock{
		{Type: "security", Name: "Laptop visibility", Parameters: map[string]any{
			"visibility": []any{map[string]any{"entityName": "Device", "roles": []any{"IT"}}},
		}},
	}, nil)
	svc := newService(t, store, WithGenerator(gen))

	out, err := svc.Generate(context.Background(), "m-1", "add a laptop request", "ana")
	require.NoError(t, err)
	require.Len(t, out.Manifest.Blocks, 11)
	added := out.Manifest.Blocks[10]
	assert.Equal(t, models.BlockTypeSecurity, added.Kind())
	assert.Equal(t, "Laptop visibility", added.BlockName())
	assert.NotEmpty(t, added.BlockID())
	gen.AssertExpectations(t)
}

func TestGenerate_RejectsInvalidBlocks(t *testing.T) {
	store := new(MockStore)
	store.On("Get", mock.Anything, "m-1").Return(storedSample(1), nil)
	gen := new(MockGenerator)
	gen.On("GenerateBlocks", mock.Anything, "bad").Return([]GeneratedBlock{
		{Type: "workflow", Name: "Half", Parameters: map[string]any{"states": []any{"Only"}, "transitions": []any{}}},
	}, nil)
	svc := newService(t, store, WithGenerator(gen))

	_, err := svc.Generate(context.Background(), "m-1", "bad", "ana")
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "blocks.10.states", verr.Issues[0].Path)
	store.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
}

func TestGenerate_Preconditions(t *testing.T) {
	svc := newService(t, new(MockStore))
	_, err := svc.Generate(context.Background(), "m-1", "x", "ana")
	assert.ErrorIs(t, err, ErrGeneratorUnavailable)

	svc = newService(t, new(MockStore), WithGenerator(new(MockGenerator)))
	_, err = svc.Generate(context.Background(), "m-1", "   ", "ana")
	assert.ErrorIs(t, err, ErrEmptyPrompt)
}

func TestRawBlock_ParametersCannotOverrideIdentity(t *testing.T) {
	raw := rawBlock(GeneratedBlock{Type: "entity", Name: "Asset", Parameters: map[string]any{"id": "x", "type": "rule", "fields": []any{}}})
	assert.Equal(t, "entity", raw["type"])
	assert.Equal(t, "Asset", raw["name"])
	assert.NotEqual(t, "x", raw["id"])
}
