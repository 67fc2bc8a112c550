// Package summarizer condenses retrieved passages when their combined size
// risks exceeding the generation budget. Condensation is lossy and may cost
// an extra generation call, so implementations act as the identity whenever
// the passages already fit the target size.
package summarizer

import (
	"fmt"
	"strings"

	"docqa/internal/domain"
)

// JoinedSize returns the size in characters of the passages once joined for
// prompting.
func JoinedSize(passages []domain.RetrievedPassage) int {
	n := 0
	for i, p := range passages {
		if i > 0 {
			n += 2 // separator
		}
		n += len(p.Text)
	}
	return n
}

// Join concatenates passage texts in rank order.
func Join(passages []domain.RetrievedPassage) string {
	parts := make([]string, len(passages))
	for i, p := range passages {
		parts[i] = p.Text
	}
	return strings.Join(parts, "\n\n")
}

// labelled renders passages with source labels for the summarization prompt.
func labelled(passages []domain.RetrievedPassage) string {
	parts := make([]string, len(passages))
	for i, p := range passages {
		parts[i] = fmt.Sprintf("Source %d (Page %d): %s", i+1, p.Page, p.Text)
	}
	return strings.Join(parts, "\n\n")
}

func allChunkIDs(passages []domain.RetrievedPassage) []string {
	ids := make([]string, len(passages))
	for i, p := range passages {
		ids[i] = p.ChunkID
	}
	return ids
}
