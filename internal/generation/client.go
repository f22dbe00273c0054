// Package generation wraps the external AI generation provider. The client
// is constructed once at startup and passed to every consumer; nothing in
// this repository reaches for a process-global instance.
package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/appforge-labs/appforge-backend/config"
)

// Client produces text for a prompt. Implementations may retry internally,
// but any error they surface counts as one attempt of the calling stage's
// own retry budget.
type Client interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// HTTPClient talks to an Anthropic-style messages endpoint.
type HTTPClient struct {
	baseURL    string
	apiKey     string
	model      string
	maxTokens  int
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewHTTPClient creates a generation client from config. The rate limiter
// smooths bursts across concurrent stage workers sharing one provider quota.
func NewHTTPClient(cfg config.GenerationConfig) *HTTPClient {
	rps := cfg.RatePerSecond
	if rps <= 0 {
		rps = 2
	}
	timeout := cfg.RequestTimeout
	if timeout == 0 {
		timeout = 90 * time.Second
	}
	return &HTTPClient{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		maxTokens:  cfg.MaxTokens,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Limit(rps), 1),
	}
}

type messagesRequest struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	Messages  []message `json:"messages"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

// Generate sends the prompt and returns the first text block of the reply.
// An empty or malformed reply is an error; the caller decides whether to
// spend a retry on it.
func (c *HTTPClient) Generate(ctx context.Context, prompt string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}

	body, err := json.Marshal(messagesRequest{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		Messages:  []message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	duration := time.Since(start)
	if err != nil {
		recordGenerationCall(duration, err)
		return "", fmt.Errorf("generation request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		err := fmt.Errorf("generation returned status %d: %s", resp.StatusCode, bytes.TrimSpace(raw))
		recordGenerationCall(duration, err)
		return "", err
	}

	var parsed messagesResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		recordGenerationCall(duration, err)
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(parsed.Content) == 0 || parsed.Content[0].Text == "" {
		err := fmt.Errorf("empty generation response")
		recordGenerationCall(duration, err)
		return "", err
	}

	recordGenerationCall(duration, nil)
	return parsed.Content[0].Text, nil
}
