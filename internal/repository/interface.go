package repository

import (
	"context"
	"errors"

	"github.com/rdey2-atlassian/desk-builder-ai-sub000/pkg/models"
)

// ErrNotFound is returned when a manifest or manifest version does not exist.
var ErrNotFound = errors.New("manifest not found")

// ManifestStore persists versioned manifests. Every Save creates a new
// immutable version; the previous latest version stays readable.
type ManifestStore interface {
	// Save stores m as the next version of m.ManifestID, assigning a fresh
	// manifest id when it is empty. ID, Version, IsLatest and CreatedAt are
	// filled in on success.
	Save(ctx context.Context, m *models.StoredManifest) error
	// Get returns the latest version of a manifest.
	Get(ctx context.Context, manifestID string) (*models.StoredManifest, error)
	// GetVersion returns one specific version of a manifest.
	GetVersion(ctx context.Context, manifestID string, version int) (*models.StoredManifest, error)
	// List returns the latest version of every manifest, newest first.
	List(ctx context.Context) ([]models.ManifestSummary, error)
	// Versions returns every version of a manifest, newest first, or
	// ErrNotFound when the manifest has none.
	Versions(ctx context.Context, manifestID string) ([]models.ManifestSummary, error)
	// Ping checks the store is reachable.
	Ping(ctx context.Context) error
}
