package composer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rdey2-atlassian/desk-builder-ai-sub000/internal/schema"
	"github.com/rdey2-atlassian/desk-builder-ai-sub000/pkg/models"
)

// Command names accepted on the wire.
const (
	OpSetMetadata = "setMetadata"
	OpAddBlock    = "addBlock"
	OpAddBlocks   = "addBlocks"
	OpUpdateBlock = "updateBlock"
	OpRemoveBlock = "removeBlock"
	OpMoveBlock   = "moveBlock"
)

// InvalidBlockError carries the structural issues of a block payload.
type InvalidBlockError struct {
	Issues []schema.Issue
}

func (e *InvalidBlockError) Error() string {
	parts := make([]string, len(e.Issues))
	for i, is := range e.Issues {
		parts[i] = is.String()
	}
	return "invalid block: " + strings.Join(parts, "; ")
}

type wireCommand struct {
	Op          string  `json:"op"`
	Name        string  `json:"name,omitempty"`
	Version     string  `json:"version,omitempty"`
	Description *string `json:"description,omitempty"`
	ID          string  `json:"id,omitempty"`
	Index       *int    `json:"index,omitempty"`
	Block       any     `json:"block,omitempty"`
	Blocks      []any   `json:"blocks,omitempty"`
}

// DecodeCommand parses one JSON command. Block payloads pass the schema
// validator before they become typed blocks.
func DecodeCommand(data []byte) (Command, error) {
	var w wireCommand
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&w); err != nil {
		return nil, fmt.Errorf("failed to decode command: %w", err)
	}

	switch w.Op {
	case OpSetMetadata:
		return SetMetadata{Name: w.Name, Version: w.Version, Description: w.Description}, nil
	case OpAddBlock:
		b, err := decodeBlock(w.Block)
		if err != nil {
			return nil, err
		}
		return AddBlock{Block: b, Index: w.Index}, nil
	case OpAddBlocks:
		if len(w.Blocks) == 0 {
			return nil, ErrMissingBlock
		}
		blocks, issues := schema.ValidateBlocks(w.Blocks)
		if len(issues) > 0 {
			return nil, &InvalidBlockError{Issues: issues}
		}
		return AddBlocks{Blocks: blocks}, nil
	case OpUpdateBlock:
		b, err := decodeBlock(w.Block)
		if err != nil {
			return nil, err
		}
		return UpdateBlock{Block: b}, nil
	case OpRemoveBlock:
		return RemoveBlock{ID: w.ID}, nil
	case OpMoveBlock:
		if w.Index == nil {
			return nil, fmt.Errorf("%w: moveBlock requires index", ErrIndexOutOfRange)
		}
		return MoveBlock{ID: w.ID, Index: *w.Index}, nil
	case "":
		return nil, fmt.Errorf("command op is required")
	}
	return nil, fmt.Errorf("unknown command op %q", w.Op)
}

func decodeBlock(v any) (models.Block, error) {
	if v == nil {
		return nil, ErrMissingBlock
	}
	blocks, issues := schema.ValidateBlocks([]any{v})
	if len(issues) > 0 {
		for i := range issues {
			issues[i].Path = strings.Replace(issues[i].Path, "blocks.0", "block", 1)
		}
		return nil, &InvalidBlockError{Issues: issues}
	}
	return blocks[0], nil
}
