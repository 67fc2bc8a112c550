// Package ollama implements the Embedder boundary against a local Ollama
// instance, matching the embedder the upstream ingestion job indexes with.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"docqa/internal/domain"
)

// Client talks to the Ollama embeddings API.
type Client struct {
	baseURL string
	model   string
	client  *http.Client
}

// Config configures the Ollama embeddings client.
type Config struct {
	BaseURL string
	Model   string
	Timeout time.Duration
}

// NewClient creates a new embeddings client using the provided configuration.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:11434"
	}
	if cfg.Model == "" {
		cfg.Model = "nomic-embed-text"
	}
	t := cfg.Timeout
	if t == 0 {
		t = 30 * time.Second
	}
	return &Client{
		baseURL: cfg.BaseURL,
		model:   cfg.Model,
		client:  &http.Client{Timeout: t},
	}
}

type embedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embedResponse struct {
	Embedding []float64 `json:"embedding"`
}

// Embed returns an embedding vector for the given text.
func (c *Client) Embed(ctx context.Context, text string) ([]float64, error) {
	data, err := json.Marshal(embedRequest{Model: c.model, Prompt: text})
	if err != nil {
		return nil, err
	}
	url := fmt.Sprintf("%s/api/embeddings", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrEmbeddingUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: ollama embeddings returned %s", domain.ErrEmbeddingUnavailable, resp.Status)
	}

	var out embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %v", domain.ErrEmbeddingUnavailable, err)
	}
	if len(out.Embedding) == 0 {
		return nil, fmt.Errorf("%w: %v", domain.ErrEmbeddingUnavailable, errors.New("empty embedding"))
	}
	return out.Embedding, nil
}
