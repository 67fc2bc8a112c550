// Package qdrant implements the VectorIndex boundary as a minimal REST
// client to Qdrant. The collection is created with cosine distance if it
// does not exist; point payloads carry chunk_id, page, modality and text.
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"docqa/internal/domain"
)

// Index is a Qdrant-backed vector index.
type Index struct {
	url        string
	apiKey     string
	collection string
	client     *http.Client
}

// Config contains connection details for a Qdrant vector index.
type Config struct {
	URL        string
	APIKey     string
	Collection string
	Timeout    time.Duration
}

// NewIndex creates a Qdrant index client.
func NewIndex(cfg Config) *Index {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Index{
		url:        cfg.URL,
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		client:     &http.Client{Timeout: timeout},
	}
}

// Init creates the collection if missing. Qdrant returns 200 for an existing
// collection with the same schema.
func (s *Index) Init(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	body := map[string]any{
		"vectors": map[string]any{
			"size":     dimension,
			"distance": "Cosine",
		},
	}
	return s.putJSON(ctx, fmt.Sprintf("%s/collections/%s", s.url, s.collection), body)
}

// Upsert writes chunks and their embeddings. Point ids are deterministic
// UUIDs derived from the chunk id, so re-loading the same chunks overwrites
// in place.
func (s *Index) Upsert(ctx context.Context, chunks []domain.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	points := make([]map[string]any, len(chunks))
	for i, ch := range chunks {
		if len(ch.Embedding) == 0 {
			return fmt.Errorf("chunk %s has no embedding", ch.ID)
		}
		points[i] = map[string]any{
			"id":     uuid.NewSHA1(uuid.NameSpaceOID, []byte(ch.ID)).String(),
			"vector": ch.Embedding,
			"payload": map[string]any{
				"chunk_id": ch.ID,
				"page":     ch.Page,
				"modality": string(ch.Modality),
				"text":     ch.Text,
			},
		}
	}
	body := map[string]any{"points": points}
	return s.putJSON(ctx, fmt.Sprintf("%s/collections/%s/points?wait=true", s.url, s.collection), body)
}

// Search returns the nearest chunks for the given vector, ordered by
// descending similarity.
func (s *Index) Search(ctx context.Context, vector []float64, limit int) ([]domain.ScoredPoint, error) {
	if limit <= 0 {
		limit = 5
	}
	req := map[string]any{
		"vector":       vector,
		"limit":        limit,
		"with_payload": true,
	}
	var resp struct {
		Result []struct {
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	url := fmt.Sprintf("%s/collections/%s/points/search", s.url, s.collection)
	if err := s.postJSON(ctx, url, req, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrRetrievalUnavailable, err)
	}
	points := make([]domain.ScoredPoint, 0, len(resp.Result))
	for _, r := range resp.Result {
		chunk := domain.Chunk{Modality: domain.ModalityText}
		if v, ok := r.Payload["chunk_id"].(string); ok {
			chunk.ID = v
		}
		if v, ok := r.Payload["page"].(float64); ok {
			chunk.Page = int(v)
		}
		if v, ok := r.Payload["modality"].(string); ok && v != "" {
			chunk.Modality = domain.Modality(v)
		}
		if v, ok := r.Payload["text"].(string); ok {
			chunk.Text = v
		}
		points = append(points, domain.ScoredPoint{Chunk: chunk, Score: r.Score})
	}
	return points, nil
}

// Count returns the exact number of indexed chunks.
func (s *Index) Count(ctx context.Context) (int, error) {
	var resp struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}
	url := fmt.Sprintf("%s/collections/%s/points/count", s.url, s.collection)
	if err := s.postJSON(ctx, url, map[string]any{"exact": true}, &resp); err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrRetrievalUnavailable, err)
	}
	return resp.Result.Count, nil
}

// Clear drops the collection.
func (s *Index) Clear(ctx context.Context) error {
	url := fmt.Sprintf("%s/collections/%s", s.url, s.collection)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, nil)
	if err != nil {
		return err
	}
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 && resp.StatusCode != http.StatusNotFound {
		return fmt.Errorf("qdrant DELETE %s failed: %s", url, resp.Status)
	}
	return nil
}

func (s *Index) putJSON(ctx context.Context, url string, body any) error {
	data, _ := json.Marshal(body)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("qdrant PUT %s failed: %s", url, resp.Status)
	}
	return nil
}

func (s *Index) postJSON(ctx context.Context, url string, body any, out any) error {
	data, _ := json.Marshal(body)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("qdrant POST %s failed: %s", url, resp.Status)
	}
	if out != nil {
		dec := json.NewDecoder(resp.Body)
		return dec.Decode(out)
	}
	return nil
}
