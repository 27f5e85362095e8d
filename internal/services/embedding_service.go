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

// EmbeddingService generates query embeddings for hybrid search. It is an
// optional dependency: when it fails, search degrades to its lexical tiers.
type EmbeddingService struct {
	baseURL string
	apiKey  string
	model   string
	timeout time.Duration
	client  *http.Client
	limiter *rate.Limiter
}

// NewEmbeddingService creates the embedding client.
func NewEmbeddingService(cfg *config.Config) *EmbeddingService {
	return &EmbeddingService{
		baseURL: cfg.AIBaseURL,
		apiKey:  cfg.AIAPIKey,
		model:   cfg.EmbeddingModel,
		timeout: cfg.EmbeddingTimeout,
		client:  &http.Client{Timeout: cfg.EmbeddingTimeout},
		limiter: rate.NewLimiter(rate.Limit(10), 20),
	}
}

// Embed returns the embedding vector for text.
func (s *EmbeddingService) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	reqBody := map[string]interface{}{
		"model": s.model,
		"input": text,
	}
	reqJSON, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", s.baseURL+"/embeddings", bytes.NewBuffer(reqJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("embedding API error (status %d): %s", resp.StatusCode, truncateString(string(body), 300))
	}

	var result struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode embedding response: %w", err)
	}
	if len(result.Data) == 0 {
		return nil, fmt.Errorf("no embedding in response")
	}

	return result.Data[0].Embedding, nil
}
