package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"tasknest/internal/config"
)

// LLMService talks to an OpenAI-compatible provider for chat completions.
// Every call is bounded by the caller's context; callers fall back to the
// deterministic path on any error.
type LLMService struct {
	baseURL string
	apiKey  string
	client  *http.Client
	limiter *rate.Limiter
}

// NewLLMService creates the provider client.
func NewLLMService(cfg *config.Config) *LLMService {
	return &LLMService{
		baseURL: cfg.AIBaseURL,
		apiKey:  cfg.AIAPIKey,
		client:  &http.Client{Timeout: 60 * time.Second},
		// Client-side ceiling so a retry storm cannot exhaust quota
		limiter: rate.NewLimiter(rate.Limit(5), 10),
	}
}

// ChatCompletionSync performs a synchronous (non-streaming) chat completion
// and returns the first choice's content.
func (s *LLMService) ChatCompletionSync(ctx context.Context, model string, messages []map[string]interface{}) (string, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter: %w", err)
	}

	reqBody := map[string]interface{}{
		"model":    model,
		"messages": messages,
		"stream":   false,
	}

	reqJSON, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", s.baseURL+"/chat/completions", bytes.NewBuffer(reqJSON))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("API error (status %d): %s", resp.StatusCode, truncateString(string(body), 300))
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}

	if len(result.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}

	return result.Choices[0].Message.Content, nil
}
