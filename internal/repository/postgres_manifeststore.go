package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rdey2-atlassian/desk-builder-ai-sub000/pkg/models"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS manifests (
		id          UUID PRIMARY KEY,
		manifest_id TEXT NOT NULL,
		version     INT NOT NULL,
		is_latest   BOOLEAN NOT NULL DEFAULT false,
		name        TEXT NOT NULL,
		body        JSONB NOT NULL,
		created_by  TEXT NOT NULL DEFAULT '',
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
		UNIQUE (manifest_id, version)
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS manifests_latest_idx ON manifests (manifest_id) WHERE is_latest`,
}

const selectStored = `SELECT id, manifest_id, version, is_latest, name, body, created_by, created_at FROM manifests`

const selectSummary = `SELECT manifest_id, version, name, jsonb_array_length(body->'blocks'), created_at FROM manifests`

// PostgresManifestStore is a PostgreSQL implementation of ManifestStore.
// Manifest bodies are stored as JSONB.
type PostgresManifestStore struct {
	db *pgxpool.Pool
}

// NewPostgresManifestStore creates a new PostgresManifestStore.
func NewPostgresManifestStore(db *pgxpool.Pool) *PostgresManifestStore {
	return &PostgresManifestStore{db: db}
}

// EnsureSchema creates the manifests table and its indexes if needed.
func (s *PostgresManifestStore) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := s.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to ensure schema: %w", err)
		}
	}
	return nil
}

// Save stores m as the next version of its manifest.
func (s *PostgresManifestStore) Save(ctx context.Context, m *models.StoredManifest) error {
	body, err := json.Marshal(m.Manifest)
	if err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}
	if m.ManifestID == "" {
		m.ManifestID = uuid.NewString()
	}
	if m.Name == "" {
		m.Name = m.Manifest.Name
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	// Serializes concurrent saves of the same manifest.
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, m.ManifestID); err != nil {
		return fmt.Errorf("failed to lock manifest: %w", err)
	}

	var current int
	err = tx.QueryRow(ctx, `SELECT COALESCE(MAX(version), 0) FROM manifests WHERE manifest_id = $1`, m.ManifestID).Scan(&current)
	if err != nil {
		return fmt.Errorf("failed to read current version: %w", err)
	}
	if _, err := tx.Exec(ctx, `UPDATE manifests SET is_latest = false WHERE manifest_id = $1 AND is_latest`, m.ManifestID); err != nil {
		return fmt.Errorf("failed to demote previous version: %w", err)
	}

	id := uuid.NewString()
	version := current + 1
	err = tx.QueryRow(ctx,
		`INSERT INTO manifests (id, manifest_id, version, is_latest, name, body, created_by)
		 VALUES ($1, $2, $3, true, $4, $5, $6) RETURNING created_at`,
		id, m.ManifestID, version, m.Name, body, m.CreatedBy,
	).Scan(&m.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert manifest: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit manifest: %w", err)
	}

	m.ID = id
	m.Version = version
	m.IsLatest = true
	return nil
}

// Get returns the latest version of a manifest.
func (s *PostgresManifestStore) Get(ctx context.Context, manifestID string) (*models.StoredManifest, error) {
	return s.scanOne(s.db.QueryRow(ctx, selectStored+` WHERE manifest_id = $1 AND is_latest`, manifestID))
}

// GetVersion returns one version of a manifest.
func (s *PostgresManifestStore) GetVersion(ctx context.Context, manifestID string, version int) (*models.StoredManifest, error) {
	return s.scanOne(s.db.QueryRow(ctx, selectStored+` WHERE manifest_id = $1 AND version = $2`, manifestID, version))
}

// List returns the latest version of every manifest.
func (s *PostgresManifestStore) List(ctx context.Context) ([]models.ManifestSummary, error) {
	return s.summaries(ctx, selectSummary+` WHERE is_latest ORDER BY created_at DESC, manifest_id`)
}

// Versions returns every version of a manifest, newest first.
func (s *PostgresManifestStore) Versions(ctx context.Context, manifestID string) ([]models.ManifestSummary, error) {
	out, err := s.summaries(ctx, selectSummary+` WHERE manifest_id = $1 ORDER BY version DESC`, manifestID)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, ErrNotFound
	}
	return out, nil
}

// Ping checks the database connection.
func (s *PostgresManifestStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func (s *PostgresManifestStore) scanOne(row pgx.Row) (*models.StoredManifest, error) {
	var (
		m    models.StoredManifest
		body []byte
	)
	err := row.Scan(&m.ID, &m.ManifestID, &m.Version, &m.IsLatest, &m.Name, &body, &m.CreatedBy, &m.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	if err := json.Unmarshal(body, &m.Manifest); err != nil {
		return nil, fmt.Errorf("failed to decode stored manifest %s v%d: %w", m.ManifestID, m.Version, err)
	}
	return &m, nil
}

func (s *PostgresManifestStore) summaries(ctx context.Context, query string, args ...any) ([]models.ManifestSummary, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query manifests: %w", err)
	}
	defer rows.Close()

	out := []models.ManifestSummary{}
	for rows.Next() {
		var sum models.ManifestSummary
		if err := rows.Scan(&sum.ManifestID, &sum.Version, &sum.Name, &sum.BlockCount, &sum.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan manifest: %w", err)
		}
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate manifests: %w", err)
	}
	return out, nil
}
