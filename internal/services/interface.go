package services

import "context"

// GeneratedBlock is one block proposal returned by the AI block generator.
// Parameters carry the variant-specific fields of the block.
type GeneratedBlock struct {
	Type       string         `json:"type"`
	Name       string         `json:"name"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

// BlockGenerator turns a free-text prompt into block proposals. Its output is
// untrusted and goes through the schema validator before use.
type BlockGenerator interface {
	GenerateBlocks(ctx context.Context, prompt string) ([]GeneratedBlock, error)
}
