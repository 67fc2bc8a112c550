package summarizer

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docqa/internal/domain"
)

func passage(id string, page int, text string) domain.RetrievedPassage {
	return domain.RetrievedPassage{ChunkID: id, Page: page, Modality: domain.ModalityText, Text: text}
}

func TestExtractiveIdentityUnderTarget(t *testing.T) {
	passages := []domain.RetrievedPassage{
		passage("c1", 1, "Short passage one."),
		passage("c2", 2, "Short passage two."),
	}
	s := NewExtractive()

	cond, err := s.Condense(context.Background(), passages, 1000)
	require.NoError(t, err)
	assert.Equal(t, Join(passages), cond.Text)
	assert.Equal(t, []string{"c1", "c2"}, cond.Contributing)
}

func TestExtractiveCondensesOverTarget(t *testing.T) {
	passages := []domain.RetrievedPassage{
		passage("c1", 1, "The angle of elevation is the angle between the horizontal and the line of sight to an object above. "+
			"Surveyors measure the angle of elevation with a theodolite. "+
			"The tangent of the angle relates the height of the object to the horizontal distance."),
		passage("c2", 2, "Weather was pleasant that day. "+
			"A right triangle forms between the observer, the base of the object, and its top."),
	}
	s := NewExtractive()
	target := 150

	cond, err := s.Condense(context.Background(), passages, target)
	require.NoError(t, err)
	assert.NotEmpty(t, cond.Text)
	assert.Less(t, len(cond.Text), JoinedSize(passages))
	assert.NotEmpty(t, cond.Contributing)

	// Contributing ids must be a subset of the input passages.
	valid := map[string]struct{}{"c1": {}, "c2": {}}
	for _, id := range cond.Contributing {
		_, ok := valid[id]
		assert.True(t, ok, id)
	}

	// Every selected sentence must come verbatim from the input.
	joined := Join(passages)
	for _, sent := range strings.Split(cond.Text, ". ") {
		sent = strings.TrimSpace(strings.TrimSuffix(sent, "."))
		if sent == "" {
			continue
		}
		assert.Contains(t, joined, sent)
	}
}

func TestExtractiveNeverReturnsEmptyForNonEmptyInput(t *testing.T) {
	passages := []domain.RetrievedPassage{
		passage("c1", 1, "This single sentence is far longer than the tiny target size given below."),
	}
	s := NewExtractive()

	cond, err := s.Condense(context.Background(), passages, 10)
	require.NoError(t, err)
	assert.NotEmpty(t, cond.Text)
	assert.Equal(t, []string{"c1"}, cond.Contributing)
}

func TestJoinedSizeMatchesJoin(t *testing.T) {
	passages := []domain.RetrievedPassage{
		passage("c1", 1, "alpha"),
		passage("c2", 2, "beta"),
		passage("c3", 3, "gamma"),
	}
	assert.Equal(t, len(Join(passages)), JoinedSize(passages))
	assert.Equal(t, 0, JoinedSize(nil))
}

type fakeGenerator struct {
	reply   string
	err     error
	prompts []string
}

func (f *fakeGenerator) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	f.prompts = append(f.prompts, prompt)
	return f.reply, f.err
}

func TestLLMIdentityUnderTarget(t *testing.T) {
	gen := &fakeGenerator{reply: "unused"}
	s := NewLLM(gen)
	passages := []domain.RetrievedPassage{passage("c1", 1, "fits easily")}

	cond, err := s.Condense(context.Background(), passages, 1000)
	require.NoError(t, err)
	assert.Equal(t, "fits easily", cond.Text)
	assert.Empty(t, gen.prompts, "no generation call when passages fit")
}

func TestLLMCondensesWithGenerator(t *testing.T) {
	gen := &fakeGenerator{reply: "a concise summary"}
	s := NewLLM(gen)
	passages := []domain.RetrievedPassage{
		passage("c1", 3, strings.Repeat("long content ", 50)),
		passage("c2", 4, strings.Repeat("more content ", 50)),
	}

	cond, err := s.Condense(context.Background(), passages, 100)
	require.NoError(t, err)
	assert.Equal(t, "a concise summary", cond.Text)
	assert.Equal(t, []string{"c1", "c2"}, cond.Contributing)
	require.Len(t, gen.prompts, 1)
	assert.Contains(t, gen.prompts[0], "Source 1 (Page 3)")
	assert.Contains(t, gen.prompts[0], "Source 2 (Page 4)")
}
