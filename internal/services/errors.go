package services

import (
	"errors"
	"strings"

	"github.com/rdey2-atlassian/desk-builder-ai-sub000/internal/schema"
)

var (
	// ErrInvalidManifest is matched by every ValidationError.
	ErrInvalidManifest = errors.New("invalid manifest")
	// ErrGeneratorUnavailable is returned by Generate when no block
	// generator is configured.
	ErrGeneratorUnavailable = errors.New("block generator not configured")
	// ErrEmptyPrompt is returned by Generate for a blank prompt.
	ErrEmptyPrompt = errors.New("prompt must not be empty")
)

// ValidationError reports the structural issues that rejected a manifest.
type ValidationError struct {
	Issues []schema.Issue
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Issues))
	for i, is := range e.Issues {
		parts[i] = is.String()
	}
	return "invalid manifest: " + strings.Join(parts, "; ")
}

// Is reports ErrInvalidManifest as a match.
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidManifest
}
