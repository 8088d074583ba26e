package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// maxGeneratorResponse bounds how much of a generator response is read.
const maxGeneratorResponse = 4 << 20

// HTTPBlockGenerator is an HTTP implementation of the BlockGenerator interface.
// It POSTs {"prompt": ...} to the configured endpoint and expects either a
// JSON array of blocks or an object with a "blocks" array.
type HTTPBlockGenerator struct {
	url    string
	client *http.Client
}

// NewHTTPBlockGenerator creates a new HTTPBlockGenerator. A zero timeout
// means no client-side timeout beyond the request context.
func NewHTTPBlockGenerator(url string, timeout time.Duration) *HTTPBlockGenerator {
	return &HTTPBlockGenerator{url: url, client: &http.Client{Timeout: timeout}}
}

// GenerateBlocks asks the generator for block proposals.
func (c *HTTPBlockGenerator) GenerateBlocks(ctx context.Context, prompt string) ([]GeneratedBlock, error) {
	requestBody, err := json.Marshal(map[string]string{"prompt": prompt})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(requestBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to generate blocks: status code %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxGeneratorResponse))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	body = bytes.TrimSpace(body)

	var blocks []GeneratedBlock
	if len(body) > 0 && body[0] == '{' {
		var wrapped struct {
			Blocks []GeneratedBlock `json:"blocks"`
		}
		if err := json.Unmarshal(body, &wrapped); err != nil {
			return nil, fmt.Errorf("failed to decode response body: %w", err)
		}
		blocks = wrapped.Blocks
	} else if err := json.Unmarshal(body, &blocks); err != nil {
		return nil, fmt.Errorf("failed to decode response body: %w", err)
	}
	return blocks, nil
}
