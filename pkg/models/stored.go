package models

import (
	"time"
)

// StoredManifest is one saved version of a named manifest.
type StoredManifest struct {
	ID         string    `json:"id"`          // Unique Version ID
	ManifestID string    `json:"manifest_id"` // Stable id across versions
	Version    int       `json:"version"`
	IsLatest   bool      `json:"is_latest"`
	Name       string    `json:"name"`
	Manifest   Manifest  `json:"manifest"`
	CreatedBy  string    `json:"created_by,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// ManifestSummary is a listing row for a stored manifest.
type ManifestSummary struct {
	ManifestID string    `json:"manifest_id"`
	Version    int       `json:"version"`
	Name       string    `json:"name"`
	BlockCount int       `json:"block_count"`
	CreatedAt  time.Time `json:"created_at"`
}

// HealthStatus represents service health
type HealthStatus struct {
	Status    string            `json:"status"`
	Service   string            `json:"service"`
	Version   string            `json:"version"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// ProblemDetails represents RFC 7807 Problem Details
type ProblemDetails struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
	Errors   any    `json:"errors,omitempty"`
}
