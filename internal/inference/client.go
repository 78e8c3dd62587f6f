// Package inference holds the two external collaborators the engine consumes:
// an embedding provider and a generation provider. Both are plain
// OpenAI-compatible HTTP calls with bounded timeouts; every failure is a soft
// miss for the caller, never a request-path error.
package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Embedder converts text into a vector. A nil vector with a nil error means
// "no embedding available" and callers must skip semantic paths.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Generator produces an answer for escalated requests.
type Generator interface {
	Generate(ctx context.Context, text string) (string, error)
}

// Client talks to OpenAI-compatible embedding and chat-completion endpoints.
type Client struct {
	httpClient *http.Client

	embeddingURL    string
	embeddingModel  string
	generationURL   string
	generationModel string
	apiKey          string
}

// Options configures a Client. Empty URLs disable the corresponding
// capability (Embed/Generate return a typed "not configured" error).
type Options struct {
	EmbeddingURL    string
	EmbeddingModel  string
	GenerationURL   string
	GenerationModel string
	APIKey          string
	Timeout         time.Duration
}

// ErrNotConfigured is returned when a collaborator endpoint is not set.
var ErrNotConfigured = fmt.Errorf("inference endpoint not configured")

// NewClient creates a new inference client.
func NewClient(opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		httpClient:      &http.Client{Timeout: timeout},
		embeddingURL:    opts.EmbeddingURL,
		embeddingModel:  opts.EmbeddingModel,
		generationURL:   opts.GenerationURL,
		generationModel: opts.GenerationModel,
		apiKey:          opts.APIKey,
	}
}

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Embed returns the embedding vector for text, or an error on any transport,
// status, or decode failure. Callers degrade to "no embedding" on error.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	if c.embeddingURL == "" {
		return nil, ErrNotConfigured
	}

	payload, err := json.Marshal(embeddingRequest{
		Model: c.embeddingModel,
		Input: []string{text},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal embedding request: %w", err)
	}

	body, err := c.post(ctx, c.embeddingURL, payload)
	if err != nil {
		return nil, err
	}

	var parsed embeddingResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse embedding response: %w", err)
	}
	if len(parsed.Data) == 0 || len(parsed.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("embedding response contained no vectors")
	}

	return parsed.Data[0].Embedding, nil
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Generate asks the generation collaborator for an answer to text.
func (c *Client) Generate(ctx context.Context, text string) (string, error) {
	if c.generationURL == "" {
		return "", ErrNotConfigured
	}

	payload, err := json.Marshal(chatRequest{
		Model: c.generationModel,
		Messages: []chatMessage{
			{Role: "user", Content: text},
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal generation request: %w", err)
	}

	body, err := c.post(ctx, c.generationURL, payload)
	if err != nil {
		return "", err
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("failed to parse generation response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("generation response contained no choices")
	}

	return parsed.Choices[0].Message.Content, nil
}

func (c *Client) post(ctx context.Context, url string, payload []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	return body, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
