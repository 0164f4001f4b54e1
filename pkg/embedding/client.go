// Package embedding provides a client for interacting with embedding models.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"ragcore-go/internal/config"
	"ragcore-go/pkg/log"
)

// Client defines the interface for an embedding client.
type Client interface {
	// Embed converts texts into vectors, one request per call, preserving
	// input order 1:1.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	// EmbedQuery converts a single query string into a vector.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// ProviderError reports a failed upstream embedding call. It is a hard
// failure: no retry happens here, quota and auth errors surface to the
// caller untouched.
type ProviderError struct {
	StatusCode int
	Message    string
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("embedding provider error (status %d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("embedding provider error: %s", e.Message)
}

type openAICompatibleClient struct {
	cfg    config.EmbeddingConfig
	client *http.Client
}

// NewClient creates a new embedding client for an OpenAI-compatible API.
func NewClient(cfg config.EmbeddingConfig) Client {
	return &openAICompatibleClient{
		cfg:    cfg,
		client: &http.Client{Timeout: 15 * time.Second},
	}
}

type embeddingRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Embed calls the embeddings endpoint with all texts batched into a single
// request so a provider failure never leaves a document partially embedded.
func (c *openAICompatibleClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	log.Infof("[EmbeddingClient] calling embeddings API, model: %s, batch: %d", c.cfg.Model, len(texts))

	reqBody := embeddingRequest{
		Model:      c.cfg.Model,
		Input:      texts,
		Dimensions: c.cfg.Dimensions,
	}

	reqBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal embedding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.cfg.BaseURL+"/embeddings", bytes.NewReader(reqBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		log.Errorf("[EmbeddingClient] embeddings API call failed: %v", err)
		return nil, &ProviderError{Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Errorf("[EmbeddingClient] embeddings API returned non-2xx status: %s", resp.Status)
		return nil, &ProviderError{StatusCode: resp.StatusCode, Message: resp.Status}
	}

	var embeddingResp embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&embeddingResp); err != nil {
		log.Errorf("[EmbeddingClient] failed to decode embeddings API response: %v", err)
		return nil, &ProviderError{StatusCode: resp.StatusCode, Message: "malformed response: " + err.Error()}
	}

	if len(embeddingResp.Data) != len(texts) {
		log.Errorf("[EmbeddingClient] embeddings API returned %d vectors for %d inputs", len(embeddingResp.Data), len(texts))
		return nil, &ProviderError{
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("expected %d embeddings, got %d", len(texts), len(embeddingResp.Data)),
		}
	}

	// Providers return entries tagged with the input index; honor it so the
	// output order always matches the input order.
	vectors := make([][]float32, len(texts))
	for i, item := range embeddingResp.Data {
		idx := item.Index
		if idx < 0 || idx >= len(vectors) {
			idx = i
		}
		if len(item.Embedding) == 0 {
			return nil, &ProviderError{StatusCode: resp.StatusCode, Message: "received empty embedding"}
		}
		vectors[idx] = item.Embedding
	}

	log.Infof("[EmbeddingClient] embeddings API returned %d vectors, dimension: %d", len(vectors), len(vectors[0]))
	return vectors, nil
}

// EmbedQuery embeds a single query string.
func (c *openAICompatibleClient) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, &ProviderError{Message: "received no embedding for query"}
	}
	return vectors[0], nil
}
