package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rdey2-atlassian/desk-builder-ai-sub000/pkg/models"
)

// MemoryManifestStore keeps manifests in process memory. It backs the server
// when no database is configured and the handler tests.
type MemoryManifestStore struct {
	mu       sync.RWMutex
	versions map[string][]stored
	now      func() time.Time
}

// stored keeps the manifest body encoded so callers never share block
// slices with the store.
type stored struct {
	meta models.StoredManifest
	body []byte
}

// NewMemoryManifestStore creates an empty in-memory store.
func NewMemoryManifestStore() *MemoryManifestStore {
	return &MemoryManifestStore{versions: map[string][]stored{}, now: time.Now}
}

// Save stores m as the next version of its manifest.
func (s *MemoryManifestStore) Save(_ context.Context, m *models.StoredManifest) error {
	body, err := json.Marshal(m.Manifest)
	if err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if m.ManifestID == "" {
		m.ManifestID = uuid.NewString()
	}
	if m.Name == "" {
		m.Name = m.Manifest.Name
	}
	list := s.versions[m.ManifestID]
	for i := range list {
		list[i].meta.IsLatest = false
	}
	m.ID = uuid.NewString()
	m.Version = len(list) + 1
	m.IsLatest = true
	m.CreatedAt = s.now().UTC()

	meta := *m
	meta.Manifest = models.Manifest{}
	s.versions[m.ManifestID] = append(list, stored{meta: meta, body: body})
	return nil
}

// Get returns the latest version of a manifest.
func (s *MemoryManifestStore) Get(_ context.Context, manifestID string) (*models.StoredManifest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := s.versions[manifestID]
	if len(list) == 0 {
		return nil, ErrNotFound
	}
	return decode(list[len(list)-1])
}

// GetVersion returns one version of a manifest.
func (s *MemoryManifestStore) GetVersion(_ context.Context, manifestID string, version int) (*models.StoredManifest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := s.versions[manifestID]
	if version < 1 || version > len(list) {
		return nil, ErrNotFound
	}
	return decode(list[version-1])
}

// List returns the latest version of every manifest, newest first.
func (s *MemoryManifestStore) List(_ context.Context) ([]models.ManifestSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.ManifestSummary, 0, len(s.versions))
	for _, list := range s.versions {
		sum, err := summarize(list[len(list)-1])
		if err != nil {
			return nil, err
		}
		out = append(out, sum)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ManifestID < out[j].ManifestID
	})
	return out, nil
}

// Versions returns every version of a manifest, newest first.
func (s *MemoryManifestStore) Versions(_ context.Context, manifestID string) ([]models.ManifestSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := s.versions[manifestID]
	if len(list) == 0 {
		return nil, ErrNotFound
	}
	out := make([]models.ManifestSummary, 0, len(list))
	for i := len(list) - 1; i >= 0; i-- {
		sum, err := summarize(list[i])
		if err != nil {
			return nil, err
		}
		out = append(out, sum)
	}
	return out, nil
}

// Ping always succeeds.
func (s *MemoryManifestStore) Ping(context.Context) error {
	return nil
}

func decode(st stored) (*models.StoredManifest, error) {
	m := st.meta
	if err := json.Unmarshal(st.body, &m.Manifest); err != nil {
		return nil, fmt.Errorf("failed to decode stored manifest %s v%d: %w", m.ManifestID, m.Version, err)
	}
	return &m, nil
}

func summarize(st stored) (models.ManifestSummary, error) {
	m, err := decode(st)
	if err != nil {
		return models.ManifestSummary{}, err
	}
	return models.ManifestSummary{
		ManifestID: m.ManifestID,
		Version:    m.Version,
		Name:       m.Name,
		BlockCount: len(m.Manifest.Blocks),
		CreatedAt:  m.CreatedAt,
	}, nil
}
