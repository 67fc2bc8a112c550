package summarizer

import (
	"context"
	"fmt"
	"strings"

	"docqa/internal/domain"
)

// LLM condenses passages with a generation call. Every passage is reported
// as contributing since the model draws on the full labelled context.
type LLM struct {
	gen       domain.Generator
	maxTokens int
}

// NewLLM creates an LLM-backed summarizer.
func NewLLM(gen domain.Generator) *LLM {
	return &LLM{gen: gen, maxTokens: 300}
}

// Condense returns the passages unchanged when they fit targetSize,
// otherwise asks the model for a concise summary of the labelled context.
func (s *LLM) Condense(ctx context.Context, passages []domain.RetrievedPassage, targetSize int) (domain.Condensed, error) {
	if JoinedSize(passages) <= targetSize {
		return domain.Condensed{Text: Join(passages), Contributing: allChunkIDs(passages)}, nil
	}

	var sb strings.Builder
	sb.WriteString("You are analyzing content retrieved from an academic document.\n\n")
	sb.WriteString("Retrieved Context:\n")
	sb.WriteString(labelled(passages))
	sb.WriteString("\n\nProvide a concise summary (2-3 sentences) highlighting the key concepts, formulas, or examples mentioned in the retrieved content:")

	text, err := s.gen.Generate(ctx, sb.String(), s.maxTokens)
	if err != nil {
		return domain.Condensed{}, fmt.Errorf("summarizing context: %w", err)
	}
	return domain.Condensed{Text: text, Contributing: allChunkIDs(passages)}, nil
}
