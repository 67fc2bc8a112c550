// Package retriever performs semantic retrieval over the vector index.
package retriever

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"docqa/internal/domain"
)

// Retriever embeds a query and returns the top-k passages from the index.
// It is read-only; it never mutates the index.
type Retriever struct {
	embedder domain.Embedder
	index    domain.VectorIndex
	log      *zap.SugaredLogger
}

// New creates a Retriever over the given embedder and index.
func New(embedder domain.Embedder, index domain.VectorIndex, log *zap.SugaredLogger) *Retriever {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Retriever{embedder: embedder, index: index, log: log}
}

// Retrieve returns at most k passages ordered by descending similarity.
// Ties break by ascending page, then ascending chunk id, so results are
// reproducible.
func (r *Retriever) Retrieve(ctx context.Context, query string, k int) ([]domain.RetrievedPassage, error) {
	if k < 1 {
		return nil, fmt.Errorf("k must be >= 1, got %d", k)
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("empty query")
	}

	count, err := r.index.Count(ctx)
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, domain.ErrEmptyIndex
	}

	vector, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	points, err := r.index.Search(ctx, vector, k)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(points, func(i, j int) bool {
		if points[i].Score != points[j].Score {
			return points[i].Score > points[j].Score
		}
		if points[i].Chunk.Page != points[j].Chunk.Page {
			return points[i].Chunk.Page < points[j].Chunk.Page
		}
		return points[i].Chunk.ID < points[j].Chunk.ID
	})
	if k < len(points) {
		points = points[:k]
	}

	passages := make([]domain.RetrievedPassage, len(points))
	for i, p := range points {
		passages[i] = domain.RetrievedPassage{
			ChunkID:  p.Chunk.ID,
			Text:     p.Chunk.Text,
			Page:     p.Chunk.Page,
			Modality: p.Chunk.Modality,
			Score:    p.Score,
			Rank:     i + 1,
		}
	}
	r.log.Debugw("retrieved passages", "query", query, "k", k, "returned", len(passages))
	return passages, nil
}
