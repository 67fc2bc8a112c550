package domain

import "time"

// Modality identifies the kind of document content a chunk was extracted from.
type Modality string

const (
	ModalityText    Modality = "text"
	ModalityImage   Modality = "image"
	ModalityFormula Modality = "formula"
)

// Chunk is a unit of indexed document content produced by the upstream
// ingestion job. The vector index owns chunks; the query core only reads them.
type Chunk struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Page      int       `json:"page"`
	Modality  Modality  `json:"modality"`
	Embedding []float64 `json:"embedding,omitempty"`
}

// RetrievedPassage is a single ranked match for a query.
type RetrievedPassage struct {
	ChunkID  string   `json:"chunk_id"`
	Text     string   `json:"text"`
	Page     int      `json:"page"`
	Modality Modality `json:"modality"`
	Score    float64  `json:"score"`
	Rank     int      `json:"rank"`
}

// CacheEntry is a stored answer together with the exact sources that were
// used to generate it. Answer and sources always travel together so a cached
// reply can never cite sources it was not grounded on.
type CacheEntry struct {
	Key        string
	Question   string
	Answer     string
	Sources    []RetrievedPassage
	CreatedAt  time.Time
	LastAccess time.Time
	HitCount   int
}

// Role is the author of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ConversationTurn is one message in a session. Turns are append-only.
type ConversationTurn struct {
	Role      Role
	Text      string
	CreatedAt time.Time
}

// QueryResult is the outcome of a single answered query.
type QueryResult struct {
	Answer   string             `json:"answer"`
	Sources  []RetrievedPassage `json:"sources"`
	Elapsed  time.Duration      `json:"elapsed"`
	CacheHit bool               `json:"cache_hit"`
}

// Options selects the optional pipeline stages for one query.
type Options struct {
	UseCache       bool
	Conversational bool
	Summarize      bool
	TopK           int
	SessionID      string
}

// DefaultOptions returns the options used when the caller passes none.
func DefaultOptions() Options {
	return Options{
		UseCache:  true,
		TopK:      5,
		SessionID: "default",
	}
}
