package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/rdey2-atlassian/desk-builder-ai-sub000/internal/logging"
	"github.com/rdey2-atlassian/desk-builder-ai-sub000/internal/repository"
	"github.com/rdey2-atlassian/desk-builder-ai-sub000/internal/services"
)

func TestSeedSamplesIsIdempotent(t *testing.T) {
	ctx := context.Background()
	svc, err := services.NewSolutionService(repository.NewMemoryManifestStore(), services.WithMeterProvider(noop.NewMeterProvider()))
	require.NoError(t, err)

	n, err := seedSamples(ctx, svc, "seed", logging.NewNop())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = seedSamples(ctx, svc, "seed", logging.NewNop())
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	list, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Employee Onboarding", list[0].Name)
	assert.Equal(t, 1, list[0].Version)
}
