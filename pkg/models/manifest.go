package models

import (
	"encoding/json"
	"fmt"
)

// Manifest is the full ordered collection of blocks describing one solution.
// Block order matters for display only.
type Manifest struct {
	Version     string  `json:"version"`
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Blocks      []Block `json:"blocks"`
}

type manifestWire struct {
	Version     string            `json:"version"`
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Blocks      []json.RawMessage `json:"blocks"`
}

// MarshalJSON writes every block with its type discriminator.
func (m Manifest) MarshalJSON() ([]byte, error) {
	w := manifestWire{
		Version:     m.Version,
		Name:        m.Name,
		Description: m.Description,
		Blocks:      make([]json.RawMessage, 0, len(m.Blocks)),
	}
	for i, b := range m.Blocks {
		raw, err := MarshalBlock(b)
		if err != nil {
			return nil, fmt.Errorf("block %d: %w", i, err)
		}
		w.Blocks = append(w.Blocks, raw)
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes blocks by discriminator.
func (m *Manifest) UnmarshalJSON(data []byte) error {
	var w manifestWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	blocks := make([]Block, 0, len(w.Blocks))
	for i, raw := range w.Blocks {
		b, err := UnmarshalBlock(raw)
		if err != nil {
			return fmt.Errorf("block %d: %w", i, err)
		}
		blocks = append(blocks, b)
	}
	*m = Manifest{Version: w.Version, Name: w.Name, Description: w.Description, Blocks: blocks}
	return nil
}

// BlockByID returns the block with the given id.
func (m Manifest) BlockByID(id string) (Block, bool) {
	for _, b := range m.Blocks {
		if b.BlockID() == id {
			return b, true
		}
	}
	return nil, false
}

// IndexOf returns the position of the block with the given id, or -1.
func (m Manifest) IndexOf(id string) int {
	for i, b := range m.Blocks {
		if b.BlockID() == id {
			return i
		}
	}
	return -1
}

// Entities returns the entity blocks in manifest order.
func (m Manifest) Entities() []EntityBlock {
	var out []EntityBlock
	for _, b := range m.Blocks {
		if e, ok := b.(EntityBlock); ok {
			out = append(out, e)
		}
	}
	return out
}

// Workflows returns the workflow blocks in manifest order.
func (m Manifest) Workflows() []WorkflowBlock {
	var out []WorkflowBlock
	for _, b := range m.Blocks {
		if w, ok := b.(WorkflowBlock); ok {
			out = append(out, w)
		}
	}
	return out
}

// Rules returns the rule blocks in manifest order.
func (m Manifest) Rules() []RuleBlock {
	var out []RuleBlock
	for _, b := range m.Blocks {
		if r, ok := b.(RuleBlock); ok {
			out = append(out, r)
		}
	}
	return out
}

// Adapters returns the adapter blocks in manifest order.
func (m Manifest) Adapters() []AdapterBlock {
	var out []AdapterBlock
	for _, b := range m.Blocks {
		if a, ok := b.(AdapterBlock); ok {
			out = append(out, a)
		}
	}
	return out
}

// CountByType tallies blocks per variant.
func (m Manifest) CountByType() map[BlockType]int {
	counts := make(map[BlockType]int, len(AllBlockTypes))
	for _, b := range m.Blocks {
		counts[b.Kind()]++
	}
	return counts
}

// WithBlocks returns a copy of m holding blocks. The receiver is not modified.
func (m Manifest) WithBlocks(blocks []Block) Manifest {
	out := m
	out.Blocks = blocks
	return out
}

// CloneBlocks returns a fresh slice holding the same blocks. Blocks themselves
// are treated as immutable values and are shared.
func (m Manifest) CloneBlocks() []Block {
	out := make([]Block, len(m.Blocks))
	copy(out, m.Blocks)
	return out
}
