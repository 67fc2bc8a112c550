package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docqa/internal/cache"
	"docqa/internal/conversation"
	"docqa/internal/domain"
	"docqa/internal/summarizer"
)

type fakeRetriever struct {
	passages []domain.RetrievedPassage
	err      error
	calls    int
}

func (f *fakeRetriever) Retrieve(ctx context.Context, query string, k int) ([]domain.RetrievedPassage, error) {
	f.calls++
	return f.passages, f.err
}

type fakeGenerator struct {
	answer  string
	err     error
	prompts []string
}

func (f *fakeGenerator) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	f.prompts = append(f.prompts, prompt)
	return f.answer, f.err
}

type fakeSummarizer struct {
	condensed domain.Condensed
	err       error
	calls     int
}

func (f *fakeSummarizer) Condense(ctx context.Context, passages []domain.RetrievedPassage, targetSize int) (domain.Condensed, error) {
	f.calls++
	return f.condensed, f.err
}

type brokenCache struct{}

func (brokenCache) Lookup(ctx context.Context, question string) (*domain.CacheEntry, bool, error) {
	return nil, false, errors.New("cache offline")
}
func (brokenCache) Store(ctx context.Context, question, answer string, sources []domain.RetrievedPassage) (*domain.CacheEntry, error) {
	return nil, errors.New("cache offline")
}
func (brokenCache) Clear(ctx context.Context) error { return errors.New("cache offline") }

func testPassages() []domain.RetrievedPassage {
	return []domain.RetrievedPassage{
		{ChunkID: "c1", Text: "The angle of elevation of the top of a tower is 30 degrees.", Page: 42, Modality: domain.ModalityText, Score: 0.92, Rank: 1},
		{ChunkID: "c2", Text: "tan(30) = h / 30 gives h = 10*sqrt(3).", Page: 42, Modality: domain.ModalityFormula, Score: 0.88, Rank: 2},
		{ChunkID: "c3", Text: "Angles of elevation are measured from the horizontal.", Page: 40, Modality: domain.ModalityText, Score: 0.71, Rank: 3},
	}
}

func newTestPipeline(t *testing.T, ret domain.Retriever, gen domain.Generator, sum domain.Summarizer, cfg Config) (*Pipeline, *cache.Store, *conversation.Store) {
	t.Helper()
	dir := t.TempDir()
	answerCache, err := cache.Open(filepath.Join(dir, "cache.db"), cache.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { answerCache.Close() })
	memory, err := conversation.Open(filepath.Join(dir, "memory.db"), conversation.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { memory.Close() })
	if sum == nil {
		sum = summarizer.NewExtractive()
	}
	return New(ret, gen, sum, answerCache, memory, cfg, nil), answerCache, memory
}

func TestAnswerMissThenCacheHit(t *testing.T) {
	ret := &fakeRetriever{passages: testPassages()}
	gen := &fakeGenerator{answer: "The tower is 10*sqrt(3) meters tall."}
	p, _, _ := newTestPipeline(t, ret, gen, nil, Config{})
	ctx := context.Background()

	question := "How tall is the tower?"
	first, err := p.Answer(ctx, question, domain.DefaultOptions())
	require.NoError(t, err)
	assert.False(t, first.CacheHit)
	assert.Equal(t, gen.answer, first.Answer)

	second, err := p.Answer(ctx, "how tall is the TOWER", domain.DefaultOptions())
	require.NoError(t, err)
	assert.True(t, second.CacheHit)
	assert.Equal(t, first.Answer, second.Answer)
	assert.Equal(t, first.Sources, second.Sources)
	assert.Equal(t, 1, ret.calls, "cache hit must not re-retrieve")
	assert.Len(t, gen.prompts, 1, "cache hit must not re-generate")
}

func TestAnswerNoCacheBypassesLookupAndStore(t *testing.T) {
	ret := &fakeRetriever{passages: testPassages()}
	gen := &fakeGenerator{answer: "fresh answer"}
	p, answerCache, _ := newTestPipeline(t, ret, gen, nil, Config{})
	ctx := context.Background()

	opts := domain.DefaultOptions()
	opts.UseCache = false

	result, err := p.Answer(ctx, "bypass question", opts)
	require.NoError(t, err)
	assert.False(t, result.CacheHit)

	n, err := answerCache.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestAnswerDeduplicatesSourcesByPage(t *testing.T) {
	ret := &fakeRetriever{passages: testPassages()}
	gen := &fakeGenerator{answer: "answer"}
	p, _, _ := newTestPipeline(t, ret, gen, nil, Config{})

	result, err := p.Answer(context.Background(), "dedupe question", domain.DefaultOptions())
	require.NoError(t, err)

	// Pages 42, 42, 40 collapse to one source per page, best rank kept.
	require.Len(t, result.Sources, 2)
	assert.Equal(t, 42, result.Sources[0].Page)
	assert.Equal(t, "c1", result.Sources[0].ChunkID)
	assert.Equal(t, 40, result.Sources[1].Page)
	assert.Equal(t, "c3", result.Sources[1].ChunkID)
}

func TestAnswerEmptyQuestionRejected(t *testing.T) {
	p, _, _ := newTestPipeline(t, &fakeRetriever{}, &fakeGenerator{}, nil, Config{})
	_, err := p.Answer(context.Background(), "   ", domain.DefaultOptions())
	assert.Error(t, err)
}

func TestAnswerRetrievalFailureAborts(t *testing.T) {
	ret := &fakeRetriever{err: domain.ErrRetrievalUnavailable}
	gen := &fakeGenerator{answer: "never produced"}
	p, answerCache, _ := newTestPipeline(t, ret, gen, nil, Config{})
	ctx := context.Background()

	_, err := p.Answer(ctx, "doomed question", domain.DefaultOptions())
	assert.ErrorIs(t, err, domain.ErrRetrievalUnavailable)
	assert.Empty(t, gen.prompts)

	n, err := answerCache.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestAnswerGenerationFailureWritesNothing(t *testing.T) {
	ret := &fakeRetriever{passages: testPassages()}
	gen := &fakeGenerator{err: domain.ErrGenerationUnavailable}
	p, answerCache, memory := newTestPipeline(t, ret, gen, nil, Config{})
	ctx := context.Background()

	opts := domain.DefaultOptions()
	opts.Conversational = true

	_, err := p.Answer(ctx, "failing question", opts)
	assert.ErrorIs(t, err, domain.ErrGenerationUnavailable)

	n, err := answerCache.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n, "failed generation must not be cached")

	turns, err := memory.History(ctx, opts.SessionID)
	require.NoError(t, err)
	assert.Empty(t, turns, "failed generation must not touch memory")
}

func TestAnswerConversationalRecordsBothTurns(t *testing.T) {
	ret := &fakeRetriever{passages: testPassages()}
	gen := &fakeGenerator{answer: "the assistant reply"}
	p, _, memory := newTestPipeline(t, ret, gen, nil, Config{})
	ctx := context.Background()

	opts := domain.DefaultOptions()
	opts.Conversational = true
	opts.SessionID = "lesson-1"

	_, err := p.Answer(ctx, "what is tan?", opts)
	require.NoError(t, err)

	turns, err := memory.History(ctx, "lesson-1")
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, domain.RoleUser, turns[0].Role)
	assert.Equal(t, "what is tan?", turns[0].Text)
	assert.Equal(t, domain.RoleAssistant, turns[1].Role)
	assert.Equal(t, "the assistant reply", turns[1].Text)
}

func TestAnswerHistoryAppearsInPrompt(t *testing.T) {
	ret := &fakeRetriever{passages: testPassages()}
	gen := &fakeGenerator{answer: "reply"}
	p, _, memory := newTestPipeline(t, ret, gen, nil, Config{})
	ctx := context.Background()

	require.NoError(t, memory.Append(ctx, "lesson-2", domain.RoleUser, "earlier question"))
	require.NoError(t, memory.Append(ctx, "lesson-2", domain.RoleAssistant, "earlier reply"))

	opts := domain.DefaultOptions()
	opts.Conversational = true
	opts.SessionID = "lesson-2"
	opts.UseCache = false

	_, err := p.Answer(ctx, "follow-up question", opts)
	require.NoError(t, err)

	require.Len(t, gen.prompts, 1)
	prompt := gen.prompts[0]
	assert.Contains(t, prompt, "Conversation so far:")
	assert.Contains(t, prompt, "User: earlier question")
	assert.Contains(t, prompt, "Assistant: earlier reply")
	assert.Less(t, strings.Index(prompt, "earlier question"), strings.Index(prompt, "follow-up question"))
}

func TestAnswerBrokenCacheDegradesGracefully(t *testing.T) {
	dir := t.TempDir()
	memory, err := conversation.Open(filepath.Join(dir, "memory.db"), conversation.Options{})
	require.NoError(t, err)
	defer memory.Close()

	ret := &fakeRetriever{passages: testPassages()}
	gen := &fakeGenerator{answer: "still answered"}
	p := New(ret, gen, summarizer.NewExtractive(), brokenCache{}, memory, Config{}, nil)

	result, err := p.Answer(context.Background(), "resilient question", domain.DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, "still answered", result.Answer)
	assert.False(t, result.CacheHit)
}

func TestAnswerSummarizeOnlyAboveTarget(t *testing.T) {
	ret := &fakeRetriever{passages: testPassages()}
	gen := &fakeGenerator{answer: "answer"}
	sum := &fakeSummarizer{condensed: domain.Condensed{Text: "condensed"}}
	p, _, _ := newTestPipeline(t, ret, gen, sum, Config{SummaryTarget: 100000})

	opts := domain.DefaultOptions()
	opts.Summarize = true
	opts.UseCache = false

	_, err := p.Answer(context.Background(), "small context", opts)
	require.NoError(t, err)
	assert.Equal(t, 0, sum.calls, "summarizer must not run when context fits")
}

func TestAnswerSummarizeCondensesPrompt(t *testing.T) {
	ret := &fakeRetriever{passages: testPassages()}
	gen := &fakeGenerator{answer: "answer"}
	sum := &fakeSummarizer{condensed: domain.Condensed{Text: "the condensed context"}}
	p, _, _ := newTestPipeline(t, ret, gen, sum, Config{SummaryTarget: 10})

	opts := domain.DefaultOptions()
	opts.Summarize = true
	opts.UseCache = false

	_, err := p.Answer(context.Background(), "big context", opts)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.calls)
	require.Len(t, gen.prompts, 1)
	assert.Contains(t, gen.prompts[0], "the condensed context")
	assert.NotContains(t, gen.prompts[0], testPassages()[0].Text)
}

func TestAnswerSummarizerFailureFallsBackToTruncation(t *testing.T) {
	ret := &fakeRetriever{passages: testPassages()}
	gen := &fakeGenerator{answer: "answer"}
	sum := &fakeSummarizer{err: errors.New("summarizer down")}
	target := 40
	p, _, _ := newTestPipeline(t, ret, gen, sum, Config{SummaryTarget: target})

	opts := domain.DefaultOptions()
	opts.Summarize = true
	opts.UseCache = false

	result, err := p.Answer(context.Background(), "fallback question", opts)
	require.NoError(t, err, "summarizer failure must not fail the query")
	assert.Equal(t, "answer", result.Answer)

	require.Len(t, gen.prompts, 1)
	// Truncated context, never the full joined passages.
	assert.NotContains(t, gen.prompts[0], testPassages()[2].Text)
}

func TestTruncateBreaksAtWordBoundary(t *testing.T) {
	text := "alpha beta gamma delta epsilon"
	out := truncate(text, 22)
	assert.Equal(t, "alpha beta gamma", out)

	assert.Equal(t, "short", truncate("short", 100))
}

func TestDedupeByPageKeepsRankOrder(t *testing.T) {
	in := []domain.RetrievedPassage{
		{ChunkID: "a", Page: 5, Rank: 1},
		{ChunkID: "b", Page: 3, Rank: 2},
		{ChunkID: "c", Page: 5, Rank: 3},
		{ChunkID: "d", Page: 3, Rank: 4},
	}
	out := dedupeByPage(in)
	require.Len(t, out, 2)
	assert.Equal(t, "a", out[0].ChunkID)
	assert.Equal(t, "b", out[1].ChunkID)
}
