package summarizer

import (
	"context"
	"math"
	"regexp"
	"sort"
	"strings"

	"docqa/internal/domain"
)

// Extractive condenses passages without a generation call by ranking
// sentences by token frequency (stopwords filtered) and keeping the highest
// scoring ones, in original order, until the target size is reached. Because
// it only selects existing sentences, it reports exactly which passages
// contributed to the condensed text.
type Extractive struct {
	tokenPattern    *regexp.Regexp
	sentencePattern *regexp.Regexp
	stopwords       map[string]struct{}
}

// NewExtractive creates a frequency-based sentence ranker summarizer.
func NewExtractive() *Extractive {
	return &Extractive{
		tokenPattern:    regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`),
		sentencePattern: regexp.MustCompile(`(?m)(?U)([^.!?]+[.!?])`),
		stopwords:       defaultStopwords(),
	}
}

type sentence struct {
	text    string
	passage int // index into passages
	order   int // global position, for restoring original order
	score   float64
}

// Condense returns the passages unchanged when they fit targetSize,
// otherwise an extractive summary within the target.
func (e *Extractive) Condense(ctx context.Context, passages []domain.RetrievedPassage, targetSize int) (domain.Condensed, error) {
	if JoinedSize(passages) <= targetSize {
		return domain.Condensed{Text: Join(passages), Contributing: allChunkIDs(passages)}, nil
	}

	var sentences []sentence
	for pi, p := range passages {
		parts := e.sentencePattern.FindAllString(p.Text, -1)
		if len(parts) == 0 {
			trimmed := strings.TrimSpace(p.Text)
			if trimmed == "" {
				continue
			}
			parts = []string{trimmed}
		}
		for _, part := range parts {
			sentences = append(sentences, sentence{
				text:    strings.TrimSpace(part),
				passage: pi,
				order:   len(sentences),
			})
		}
	}
	if len(sentences) == 0 {
		return domain.Condensed{Text: "", Contributing: nil}, nil
	}

	// Token frequencies across all sentences, normalized to the maximum.
	freq := map[string]float64{}
	for _, s := range sentences {
		for _, tok := range e.tokens(s.text) {
			freq[tok]++
		}
	}
	maxF := 0.0
	for _, v := range freq {
		if v > maxF {
			maxF = v
		}
	}
	if maxF > 0 {
		for k, v := range freq {
			freq[k] = v / maxF
		}
	}

	for i := range sentences {
		toks := e.tokens(sentences[i].text)
		score := 0.0
		for _, tok := range toks {
			score += freq[tok]
		}
		// Normalize by sentence length to avoid bias toward long sentences.
		if l := float64(len(toks)); l > 0 {
			score /= math.Sqrt(l)
		}
		sentences[i].score = score
	}

	ranked := make([]sentence, len(sentences))
	copy(ranked, sentences)
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	// Take the best sentences until the budget runs out; always keep at
	// least one so the summary is never empty.
	var selected []sentence
	used := 0
	for _, s := range ranked {
		cost := len(s.text)
		if len(selected) > 0 {
			cost++ // joining space
		}
		if len(selected) > 0 && used+cost > targetSize {
			continue
		}
		selected = append(selected, s)
		used += cost
	}

	sort.Slice(selected, func(i, j int) bool { return selected[i].order < selected[j].order })

	contributed := map[int]struct{}{}
	parts := make([]string, len(selected))
	for i, s := range selected {
		parts[i] = s.text
		contributed[s.passage] = struct{}{}
	}
	var contributing []string
	for pi, p := range passages {
		if _, ok := contributed[pi]; ok {
			contributing = append(contributing, p.ChunkID)
		}
	}
	return domain.Condensed{Text: strings.Join(parts, " "), Contributing: contributing}, nil
}

func (e *Extractive) tokens(text string) []string {
	lower := strings.ToLower(text)
	raw := e.tokenPattern.FindAllString(lower, -1)
	out := raw[:0]
	for _, t := range raw {
		if _, isStop := e.stopwords[t]; isStop {
			continue
		}
		out = append(out, t)
	}
	return out
}

func defaultStopwords() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of", "in", "on", "at", "by", "with", "as", "is", "are", "was", "were", "be", "been", "being", "it", "this", "that", "these", "those", "from", "up", "down", "over", "under", "again", "further", "than", "so", "such", "into", "about", "between", "through", "during", "before", "after", "above", "below", "out", "off", "own", "same", "too", "very", "can", "will", "just", "don", "should", "now",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
