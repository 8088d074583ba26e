// Package composer edits manifests through commands. Apply is a pure reducer:
// it returns a new manifest and never mutates the one it is given, so callers
// that own a mutable handle can swap snapshots atomically.
package composer

import (
	"errors"
	"fmt"

	"github.com/rdey2-atlassian/desk-builder-ai-sub000/pkg/models"
)

var (
	ErrBlockNotFound   = errors.New("block not found")
	ErrDuplicateID     = errors.New("duplicate block id")
	ErrTypeChange      = errors.New("block type cannot change")
	ErrIndexOutOfRange = errors.New("index out of range")
	ErrEmptyName       = errors.New("manifest name must not be empty")
	ErrMissingBlock    = errors.New("command carries no block")
)

// Command is one edit of a manifest.
type Command interface {
	apply(m models.Manifest) (models.Manifest, error)
}

// Apply returns the manifest produced by cmd. On error the input is returned
// unchanged alongside the error.
func Apply(m models.Manifest, cmd Command) (models.Manifest, error) {
	next, err := cmd.apply(m)
	if err != nil {
		return m, err
	}
	return next, nil
}

// ApplyAll folds cmds over m, stopping at the first failure.
func ApplyAll(m models.Manifest, cmds ...Command) (models.Manifest, error) {
	cur := m
	for i, c := range cmds {
		next, err := Apply(cur, c)
		if err != nil {
			return m, fmt.Errorf("command %d: %w", i, err)
		}
		cur = next
	}
	return cur, nil
}

// SetMetadata replaces manifest metadata. Empty Name and Version keep the
// current values; a nil Description keeps the current description.
type SetMetadata struct {
	Name        string
	Version     string
	Description *string
}

func (c SetMetadata) apply(m models.Manifest) (models.Manifest, error) {
	out := m.WithBlocks(m.CloneBlocks())
	if c.Name != "" {
		out.Name = c.Name
	}
	if c.Version != "" {
		out.Version = c.Version
	}
	if c.Description != nil {
		out.Description = *c.Description
	}
	if out.Name == "" {
		return m, ErrEmptyName
	}
	return out, nil
}

// AddBlock inserts a block at Index, or appends when Index is nil.
type AddBlock struct {
	Block models.Block
	Index *int
}

func (c AddBlock) apply(m models.Manifest) (models.Manifest, error) {
	if c.Block == nil {
		return m, ErrMissingBlock
	}
	if m.IndexOf(c.Block.BlockID()) >= 0 {
		return m, fmt.Errorf("%w: %q", ErrDuplicateID, c.Block.BlockID())
	}
	at := len(m.Blocks)
	if c.Index != nil {
		at = *c.Index
	}
	if at < 0 || at > len(m.Blocks) {
		return m, fmt.Errorf("%w: %d", ErrIndexOutOfRange, at)
	}
	blocks := make([]models.Block, 0, len(m.Blocks)+1)
	blocks = append(blocks, m.Blocks[:at]...)
	blocks = append(blocks, c.Block)
	blocks = append(blocks, m.Blocks[at:]...)
	return m.WithBlocks(blocks), nil
}

// AddBlocks appends several blocks, e.g. the output of the block generator.
type AddBlocks struct {
	Blocks []models.Block
}

func (c AddBlocks) apply(m models.Manifest) (models.Manifest, error) {
	cur := m
	for _, b := range c.Blocks {
		next, err := AddBlock{Block: b}.apply(cur)
		if err != nil {
			return m, err
		}
		cur = next
	}
	return cur, nil
}

// UpdateBlock replaces the block with the same id. The variant must match.
type UpdateBlock struct {
	Block models.Block
}

func (c UpdateBlock) apply(m models.Manifest) (models.Manifest, error) {
	if c.Block == nil {
		return m, ErrMissingBlock
	}
	i := m.IndexOf(c.Block.BlockID())
	if i < 0 {
		return m, fmt.Errorf("%w: %q", ErrBlockNotFound, c.Block.BlockID())
	}
	if old := m.Blocks[i].Kind(); old != c.Block.Kind() {
		return m, fmt.Errorf("%w: %q is %s, not %s", ErrTypeChange, c.Block.BlockID(), old, c.Block.Kind())
	}
	blocks := m.CloneBlocks()
	blocks[i] = c.Block
	return m.WithBlocks(blocks), nil
}

// RemoveBlock deletes the block with ID.
type RemoveBlock struct {
	ID string
}

func (c RemoveBlock) apply(m models.Manifest) (models.Manifest, error) {
	i := m.IndexOf(c.ID)
	if i < 0 {
		return m, fmt.Errorf("%w: %q", ErrBlockNotFound, c.ID)
	}
	blocks := make([]models.Block, 0, len(m.Blocks)-1)
	blocks = append(blocks, m.Blocks[:i]...)
	blocks = append(blocks, m.Blocks[i+1:]...)
	return m.WithBlocks(blocks), nil
}

// MoveBlock moves the block with ID so that it ends up at Index.
type MoveBlock struct {
	ID    string
	Index int
}

func (c MoveBlock) apply(m models.Manifest) (models.Manifest, error) {
	from := m.IndexOf(c.ID)
	if from < 0 {
		return m, fmt.Errorf("%w: %q", ErrBlockNotFound, c.ID)
	}
	if c.Index < 0 || c.Index >= len(m.Blocks) {
		return m, fmt.Errorf("%w: %d", ErrIndexOutOfRange, c.Index)
	}
	moved := m.Blocks[from]
	blocks := make([]models.Block, 0, len(m.Blocks))
	blocks = append(blocks, m.Blocks[:from]...)
	blocks = append(blocks, m.Blocks[from+1:]...)
	blocks = append(blocks[:c.Index], append([]models.Block{moved}, blocks[c.Index:]...)...)
	return m.WithBlocks(blocks), nil
}
