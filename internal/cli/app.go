package cli

import (
	"fmt"
	"path/filepath"
	"time"

	"docqa/internal/cache"
	"docqa/internal/config"
	"docqa/internal/conversation"
	"docqa/internal/domain"
	"docqa/internal/embedding/ollama"
	"docqa/internal/embedding/openai"
	"docqa/internal/llm"
	"docqa/internal/pipeline"
	"docqa/internal/retriever"
	"docqa/internal/summarizer"
	"docqa/internal/vectorstore/memory"
	"docqa/internal/vectorstore/qdrant"
)

// app holds the assembled components for one command invocation.
type app struct {
	cache  *cache.Store
	memory *conversation.Store
	pipe   *pipeline.Pipeline
}

func (a *app) close() {
	if a.cache != nil {
		_ = a.cache.Close()
	}
	if a.memory != nil {
		_ = a.memory.Close()
	}
}

func openCache() (*cache.Store, error) {
	dir, err := resolveDataDir()
	if err != nil {
		return nil, err
	}
	return cache.Open(filepath.Join(dir, "cache.db"), cache.Options{
		Capacity: cfg.Cache.Capacity,
		TTL:      time.Duration(cfg.Cache.TTLSecs) * time.Second,
		Logger:   log,
	})
}

func openMemory() (*conversation.Store, error) {
	dir, err := resolveDataDir()
	if err != nil {
		return nil, err
	}
	return conversation.Open(filepath.Join(dir, "memory.db"), conversation.Options{
		Window:     cfg.Memory.Window,
		CharBudget: cfg.Memory.CharBudget,
		Logger:     log,
	})
}

func buildEmbedder() (domain.Embedder, error) {
	switch cfg.Embedder.Type {
	case "ollama", "":
		return ollama.NewClient(ollama.Config{
			BaseURL: cfg.Embedder.Ollama.BaseURL,
			Model:   cfg.Embedder.Ollama.Model,
			Timeout: time.Duration(cfg.Embedder.Ollama.TimeoutSecs) * time.Second,
		}), nil
	case "openai":
		if cfg.Embedder.OpenAI == nil {
			return nil, fmt.Errorf("openai embedder config missing")
		}
		return openai.NewClient(openai.Config{
			BaseURL:   cfg.Embedder.OpenAI.BaseURL,
			APIKeyEnv: cfg.Embedder.OpenAI.APIKeyEnv,
			Model:     cfg.Embedder.OpenAI.Model,
			Timeout:   time.Duration(cfg.Embedder.OpenAI.TimeoutSecs) * time.Second,
		})
	default:
		return nil, fmt.Errorf("unknown embedder: %s", cfg.Embedder.Type)
	}
}

func buildIndex() (domain.VectorIndex, error) {
	switch cfg.VectorStore.Type {
	case "qdrant", "":
		q := cfg.VectorStore.Qdrant
		if q == nil {
			return nil, fmt.Errorf("qdrant config missing")
		}
		return qdrant.NewIndex(qdrant.Config{
			URL:        q.URL,
			APIKey:     q.APIKey,
			Collection: q.Collection,
			Timeout:    time.Duration(q.TimeoutSecs) * time.Second,
		}), nil
	case "memory":
		return memory.NewIndex(), nil
	default:
		return nil, fmt.Errorf("unknown vector store: %s", cfg.VectorStore.Type)
	}
}

func buildGenerator() (domain.Generator, error) {
	return llm.NewClient(llm.Config{
		BaseURL:   cfg.LLM.BaseURL,
		APIKeyEnv: cfg.LLM.APIKeyEnv,
		Model:     cfg.LLM.Model,
		Timeout:   time.Duration(cfg.LLM.TimeoutSecs) * time.Second,
	})
}

func buildSummarizer(gen domain.Generator) (domain.Summarizer, error) {
	switch cfg.Summarizer.Type {
	case "llm", "":
		return summarizer.NewLLM(gen), nil
	case "extractive":
		return summarizer.NewExtractive(), nil
	default:
		return nil, fmt.Errorf("unknown summarizer: %s", cfg.Summarizer.Type)
	}
}

// buildApp assembles the full query pipeline.
func buildApp() (*app, error) {
	embedder, err := buildEmbedder()
	if err != nil {
		return nil, err
	}
	index, err := buildIndex()
	if err != nil {
		return nil, err
	}
	gen, err := buildGenerator()
	if err != nil {
		return nil, err
	}
	sum, err := buildSummarizer(gen)
	if err != nil {
		return nil, err
	}
	answerCache, err := openCache()
	if err != nil {
		return nil, err
	}
	mem, err := openMemory()
	if err != nil {
		answerCache.Close()
		return nil, err
	}

	pipe := pipeline.New(
		retriever.New(embedder, index, log),
		gen,
		sum,
		answerCache,
		mem,
		pipeline.Config{
			SummaryTarget: cfg.Summarizer.TargetChars,
			MaxTokens:     cfg.LLM.MaxTokens,
			StepTimeout:   stepTimeout(cfg),
		},
		log,
	)
	return &app{cache: answerCache, memory: mem, pipe: pipe}, nil
}

// stepTimeout derives the per-step timeout from the slowest configured
// external service.
func stepTimeout(cfg *config.AppConfig) time.Duration {
	secs := cfg.LLM.TimeoutSecs
	if cfg.VectorStore.Qdrant != nil && cfg.VectorStore.Qdrant.TimeoutSecs > secs {
		secs = cfg.VectorStore.Qdrant.TimeoutSecs
	}
	return time.Duration(secs) * time.Second
}
