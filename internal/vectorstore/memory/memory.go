// Package memory implements an in-memory VectorIndex using brute-force
// cosine similarity. Used by tests and for small local corpora.
package memory

import (
	"context"
	"errors"
	"math"
	"sort"
	"sync"

	"docqa/internal/domain"
)

// Index is an in-memory vector index.
type Index struct {
	mu     sync.RWMutex
	chunks []domain.Chunk
}

// NewIndex creates an empty in-memory index.
func NewIndex() *Index { return &Index{} }

// Upsert stores chunks with their embeddings, replacing any chunk with the
// same id.
func (s *Index) Upsert(ctx context.Context, chunks []domain.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range chunks {
		if len(ch.Embedding) == 0 {
			return errors.New("chunk without embedding")
		}
		replaced := false
		for i := range s.chunks {
			if s.chunks[i].ID == ch.ID {
				s.chunks[i] = ch
				replaced = true
				break
			}
		}
		if !replaced {
			s.chunks = append(s.chunks, ch)
		}
	}
	return nil
}

// Search returns the most similar chunks to the query vector, ordered by
// descending cosine similarity.
func (s *Index) Search(ctx context.Context, vector []float64, limit int) ([]domain.ScoredPoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 {
		limit = 5
	}
	points := make([]domain.ScoredPoint, 0, len(s.chunks))
	for _, ch := range s.chunks {
		points = append(points, domain.ScoredPoint{Chunk: ch, Score: cosine(ch.Embedding, vector)})
	}
	sort.SliceStable(points, func(i, j int) bool { return points[i].Score > points[j].Score })
	if limit < len(points) {
		points = points[:limit]
	}
	return points, nil
}

// Count returns the number of stored chunks.
func (s *Index) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks), nil
}

// Clear removes all chunks.
func (s *Index) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks = nil
	return nil
}

func cosine(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
