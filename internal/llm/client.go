// Package llm implements the Generator boundary against an OpenAI-compatible
// chat-completions endpoint (Groq by default).
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"docqa/internal/domain"
)

// Client is an OpenAI-compatible chat-completions client.
type Client struct {
	baseURL     string
	apiKey      string
	model       string
	temperature float64
	client      *http.Client
	maxRetries  int
}

// Config configures the chat-completions client.
type Config struct {
	BaseURL   string
	APIKeyEnv string
	Model     string
	Timeout   time.Duration
}

// NewClient creates a new chat-completions client using the provided
// configuration.
func NewClient(cfg Config) (*Client, error) {
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" {
		return nil, fmt.Errorf("missing API key in env %s", cfg.APIKeyEnv)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.groq.com/openai/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "llama-3.3-70b-versatile"
	}
	t := cfg.Timeout
	if t == 0 {
		t = 60 * time.Second
	}
	return &Client{
		baseURL:     cfg.BaseURL,
		apiKey:      key,
		model:       cfg.Model,
		temperature: 0.7,
		client:      &http.Client{Timeout: t},
		maxRetries:  3,
	}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// Generate produces text for the given prompt. Transport failures and
// exhausted retries map to ErrGenerationUnavailable; request rejections
// (quota, content policy, bad model) map to ErrGenerationFailed.
func (c *Client) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	body := chatRequest{
		Model:       c.model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		MaxTokens:   maxTokens,
		Temperature: c.temperature,
	}
	url := fmt.Sprintf("%s/chat/completions", c.baseURL)
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		data, _ := json.Marshal(body)
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
		if err != nil {
			return "", err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.apiKey)

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = err
			if ctx.Err() == nil && attempt < c.maxRetries {
				sleep(ctx, retryDelay(attempt))
				continue
			}
			return "", fmt.Errorf("%w: %v", domain.ErrGenerationUnavailable, err)
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			delay := retryDelay(attempt)
			if ra := resp.Header.Get("Retry-After"); ra != "" {
				if secs, err := strconv.Atoi(ra); err == nil {
					delay = time.Duration(secs) * time.Second
				}
			}
			_ = resp.Body.Close()
			lastErr = fmt.Errorf("chat completions returned %s", resp.Status)
			if attempt < c.maxRetries {
				sleep(ctx, delay)
				continue
			}
			return "", fmt.Errorf("%w: %v", domain.ErrGenerationUnavailable, lastErr)
		}

		var out chatResponse
		err = json.NewDecoder(resp.Body).Decode(&out)
		_ = resp.Body.Close()

		if resp.StatusCode >= 300 {
			msg := resp.Status
			if out.Error != nil && out.Error.Message != "" {
				msg = out.Error.Message
			}
			return "", fmt.Errorf("%w: %s", domain.ErrGenerationFailed, msg)
		}
		if err != nil {
			return "", fmt.Errorf("%w: decoding response: %v", domain.ErrGenerationFailed, err)
		}
		if len(out.Choices) == 0 {
			return "", fmt.Errorf("%w: no choices returned", domain.ErrGenerationFailed)
		}
		return out.Choices[0].Message.Content, nil
	}
	return "", fmt.Errorf("%w: %v", domain.ErrGenerationUnavailable, lastErr)
}

func retryDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	base := 200 * time.Millisecond
	// exponential backoff capped at 5s
	d := base << attempt
	if d > 5*time.Second {
		d = 5 * time.Second
	}
	return d
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
