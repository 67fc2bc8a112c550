package domain

import "errors"

// Fatal query errors. Each aborts the current query and is surfaced to the
// caller verbatim; none is retried inside the core. Match with errors.Is.
var (
	// ErrRetrievalUnavailable means the vector index could not be reached.
	ErrRetrievalUnavailable = errors.New("retrieval unavailable")

	// ErrEmptyIndex means the vector index holds no chunks, so no grounded
	// answer is possible.
	ErrEmptyIndex = errors.New("vector index is empty")

	// ErrEmbeddingUnavailable means the embedding service could not be reached.
	ErrEmbeddingUnavailable = errors.New("embedding unavailable")

	// ErrGenerationUnavailable means the language model service could not be
	// reached.
	ErrGenerationUnavailable = errors.New("generation unavailable")

	// ErrGenerationFailed means the language model rejected the request
	// (content policy, quota, malformed prompt).
	ErrGenerationFailed = errors.New("generation failed")
)
