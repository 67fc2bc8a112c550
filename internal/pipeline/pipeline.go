// Package pipeline orchestrates a single query: retrieval, optional
// summarization, conversational context injection, generation, and caching.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"docqa/internal/domain"
	"docqa/internal/summarizer"
)

// stage is the pipeline's position within a query. A query moves through
// retrieving -> (summarizing) -> generating -> (caching) -> done, or to
// failed from any stage.
type stage string

const (
	stageRetrieving  stage = "retrieving"
	stageSummarizing stage = "summarizing"
	stageGenerating  stage = "generating"
	stageCaching     stage = "caching"
	stageDone        stage = "done"
	stageFailed      stage = "failed"
)

// Config holds pipeline tunables.
type Config struct {
	// SummaryTarget is the context size in characters above which the
	// summarize stage activates (when requested).
	SummaryTarget int
	// MaxTokens bounds answer generation.
	MaxTokens int
	// StepTimeout wraps each external-service call. Zero disables it.
	StepTimeout time.Duration
}

// Pipeline composes the retriever, summarizer, generator, cache and memory
// into a single answer operation. Cache and memory failures degrade
// gracefully; retrieval and generation failures abort the query.
type Pipeline struct {
	retriever  domain.Retriever
	generator  domain.Generator
	summarizer domain.Summarizer
	cache      domain.AnswerCache
	memory     domain.ConversationMemory
	cfg        Config
	log        *zap.SugaredLogger
}

// New creates a Pipeline with injected collaborators.
func New(
	retriever domain.Retriever,
	generator domain.Generator,
	sum domain.Summarizer,
	cache domain.AnswerCache,
	memory domain.ConversationMemory,
	cfg Config,
	log *zap.SugaredLogger,
) *Pipeline {
	if cfg.SummaryTarget <= 0 {
		cfg.SummaryTarget = 4000
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 500
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Pipeline{
		retriever:  retriever,
		generator:  generator,
		summarizer: sum,
		cache:      cache,
		memory:     memory,
		cfg:        cfg,
		log:        log,
	}
}

// Answer runs the full query pipeline for a question.
//
// With UseCache set, a lookup hit short-circuits the pipeline and replays the
// stored answer with the exact sources it was generated from. On a miss the
// freshly generated answer is stored best-effort: a cache write failure is
// logged, never surfaced.
func (p *Pipeline) Answer(ctx context.Context, question string, opts domain.Options) (*domain.QueryResult, error) {
	start := time.Now()
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, fmt.Errorf("empty question")
	}
	if opts.TopK <= 0 {
		opts.TopK = 5
	}
	if opts.SessionID == "" {
		opts.SessionID = "default"
	}

	if opts.UseCache {
		entry, hit, err := p.cache.Lookup(ctx, question)
		if err != nil {
			p.log.Warnw("cache lookup failed, continuing without cache", "error", err)
		} else if hit {
			p.log.Debugw("cache hit", "question", question, "hits", entry.HitCount)
			return &domain.QueryResult{
				Answer:   entry.Answer,
				Sources:  entry.Sources,
				Elapsed:  time.Since(start),
				CacheHit: true,
			}, nil
		}
	}

	p.transition(stageRetrieving, question)
	passages, err := p.retrieve(ctx, question, opts.TopK)
	if err != nil {
		p.transition(stageFailed, question)
		return nil, err
	}

	contextText := summarizer.Join(passages)
	if opts.Summarize && len(contextText) > p.cfg.SummaryTarget {
		p.transition(stageSummarizing, question)
		contextText = p.condense(ctx, passages, contextText)
	}

	var history []domain.ConversationTurn
	if opts.Conversational {
		history, err = p.memory.History(ctx, opts.SessionID)
		if err != nil {
			p.log.Warnw("loading conversation history failed, continuing without it", "error", err, "session", opts.SessionID)
			history = nil
		}
	}

	p.transition(stageGenerating, question)
	prompt := buildPrompt(question, contextText, history)
	answer, err := p.generate(ctx, prompt)
	if err != nil {
		// No cache or memory writes happen for a failed generation.
		p.transition(stageFailed, question)
		return nil, err
	}

	if opts.Conversational {
		if err := p.memory.Append(ctx, opts.SessionID, domain.RoleUser, question); err != nil {
			p.log.Warnw("recording user turn failed", "error", err, "session", opts.SessionID)
		} else if err := p.memory.Append(ctx, opts.SessionID, domain.RoleAssistant, answer); err != nil {
			p.log.Warnw("recording assistant turn failed", "error", err, "session", opts.SessionID)
		}
	}

	sources := dedupeByPage(passages)

	if opts.UseCache {
		p.transition(stageCaching, question)
		if _, err := p.cache.Store(ctx, question, answer, sources); err != nil {
			p.log.Warnw("cache store failed, returning uncached answer", "error", err)
		}
	}

	p.transition(stageDone, question)
	return &domain.QueryResult{
		Answer:   answer,
		Sources:  sources,
		Elapsed:  time.Since(start),
		CacheHit: false,
	}, nil
}

func (p *Pipeline) retrieve(ctx context.Context, question string, k int) ([]domain.RetrievedPassage, error) {
	ctx, cancel := p.stepContext(ctx)
	defer cancel()
	return p.retriever.Retrieve(ctx, question, k)
}

// condense runs the summarizer and falls back to plain truncation when it
// fails; summarization never hard-fails a query.
func (p *Pipeline) condense(ctx context.Context, passages []domain.RetrievedPassage, joined string) string {
	sctx, cancel := p.stepContext(ctx)
	defer cancel()
	cond, err := p.summarizer.Condense(sctx, passages, p.cfg.SummaryTarget)
	if err != nil {
		p.log.Warnw("summarization failed, truncating raw context", "error", err)
		return truncate(joined, p.cfg.SummaryTarget)
	}
	return cond.Text
}

func (p *Pipeline) generate(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := p.stepContext(ctx)
	defer cancel()
	return p.generator.Generate(ctx, prompt, p.cfg.MaxTokens)
}

func (p *Pipeline) stepContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.cfg.StepTimeout > 0 {
		return context.WithTimeout(ctx, p.cfg.StepTimeout)
	}
	return context.WithCancel(ctx)
}

func (p *Pipeline) transition(to stage, question string) {
	p.log.Debugw("pipeline stage", "stage", string(to), "question", question)
}

// buildPrompt assembles instructions, context, optional history and the
// question.
func buildPrompt(question, contextText string, history []domain.ConversationTurn) string {
	var sb strings.Builder
	sb.WriteString("You are an expert academic tutor. Answer the question based ONLY on the provided context. Be clear, concise, and educational.\n\n")
	if len(history) > 0 {
		sb.WriteString("Conversation so far:\n")
		for _, turn := range history {
			if turn.Role == domain.RoleUser {
				sb.WriteString("User: ")
			} else {
				sb.WriteString("Assistant: ")
			}
			sb.WriteString(turn.Text)
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}
	sb.WriteString("Context:\n")
	sb.WriteString(contextText)
	sb.WriteString("\n\nQuestion: ")
	sb.WriteString(question)
	sb.WriteString("\n\nAnswer:")
	return sb.String()
}

// dedupeByPage keeps one source per page: passages arrive in rank order
// (best first), so the first passage seen for a page is the
// highest-similarity one.
func dedupeByPage(passages []domain.RetrievedPassage) []domain.RetrievedPassage {
	seen := make(map[int]struct{}, len(passages))
	out := make([]domain.RetrievedPassage, 0, len(passages))
	for _, p := range passages {
		if _, ok := seen[p.Page]; ok {
			continue
		}
		seen[p.Page] = struct{}{}
		out = append(out, p)
	}
	return out
}

func truncate(text string, limit int) string {
	if len(text) <= limit {
		return text
	}
	cut := text[:limit]
	// Break at a word boundary when one is near.
	if i := strings.LastIndexByte(cut, ' '); i > limit/2 {
		cut = cut[:i]
	}
	return cut
}
