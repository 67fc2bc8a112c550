package domain

import "context"

// Embedder converts free text into a fixed-dimension vector representation.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// ScoredPoint is a raw nearest-neighbour hit from the vector index.
type ScoredPoint struct {
	Chunk Chunk
	Score float64
}

// VectorIndex stores chunk vectors and answers nearest-neighbour queries.
// Search results come back ordered by descending similarity.
type VectorIndex interface {
	Search(ctx context.Context, vector []float64, limit int) ([]ScoredPoint, error)
	Count(ctx context.Context) (int, error)
	Upsert(ctx context.Context, chunks []Chunk) error
	Clear(ctx context.Context) error
}

// Generator produces text from a prompt via a language model.
type Generator interface {
	Generate(ctx context.Context, prompt string, maxTokens int) (string, error)
}

// Retriever returns the top-k passages for a query in rank order.
// Deterministic ordering and tie-breaks are part of its contract.
type Retriever interface {
	Retrieve(ctx context.Context, query string, k int) ([]RetrievedPassage, error)
}

// Condensed is the output of a summarization pass over retrieved passages.
// Contributing lists the chunk ids whose content survived into Text, so the
// final citation step stays traceable.
type Condensed struct {
	Text         string
	Contributing []string
}

// Summarizer condenses retrieved passages to fit a generation budget.
// Implementations must behave as the identity when the passages already fit.
type Summarizer interface {
	Condense(ctx context.Context, passages []RetrievedPassage, targetSize int) (Condensed, error)
}

// AnswerCache stores previously computed answers keyed by normalized query
// text. Lookup misses are (nil, false, nil).
type AnswerCache interface {
	Lookup(ctx context.Context, question string) (*CacheEntry, bool, error)
	Store(ctx context.Context, question, answer string, sources []RetrievedPassage) (*CacheEntry, error)
	Clear(ctx context.Context) error
}

// ConversationMemory holds bounded multi-turn history per session.
// History and Clear on an unknown session are no-ops, not errors.
type ConversationMemory interface {
	Append(ctx context.Context, sessionID string, role Role, text string) error
	History(ctx context.Context, sessionID string) ([]ConversationTurn, error)
	Clear(ctx context.Context, sessionID string) error
}
