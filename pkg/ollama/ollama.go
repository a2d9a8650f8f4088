// Package ollama provides embedding and text-generation clients for Ollama's
// HTTP API.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Defaults for a local Ollama install.
const (
	DefaultBaseURL         = "http://localhost:11434"
	DefaultEmbedModel      = "nomic-embed-text"
	DefaultChatModel       = "llama3"
	DefaultEmbedTimeout    = 10 * time.Second
	DefaultGenerateTimeout = 5 * time.Minute
)

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Op     string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("ollama %s: status %d: %s", e.Op, e.Status, e.Body)
}

func post(ctx context.Context, client *http.Client, url, op string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("ollama %s: encode: %w", op, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("ollama %s: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Op: op, Status: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("ollama %s decode: %w", op, err)
	}
	return nil
}

// EmbedClient calls /api/embeddings.
type EmbedClient struct {
	baseURL string
	model   string
	client  *http.Client
}

// NewEmbedClient creates an Ollama embedding client. timeout bounds each
// call; zero uses DefaultEmbedTimeout.
func NewEmbedClient(baseURL, model string, timeout time.Duration) *EmbedClient {
	if timeout <= 0 {
		timeout = DefaultEmbedTimeout
	}
	return &EmbedClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		client:  &http.Client{Timeout: timeout},
	}
}

type embedReq struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embedResp struct {
	Embedding []float64 `json:"embedding"`
}

// Embed returns the embedding vector for text.
func (c *EmbedClient) Embed(ctx context.Context, text string) ([]float32, error) {
	var result embedResp
	if err := post(ctx, c.client, c.baseURL+"/api/embeddings", "embed", embedReq{Model: c.model, Prompt: text}, &result); err != nil {
		return nil, err
	}
	if len(result.Embedding) == 0 {
		return nil, fmt.Errorf("ollama embed: empty embedding from model %s", c.model)
	}

	out := make([]float32, len(result.Embedding))
	for i, v := range result.Embedding {
		out[i] = float32(v)
	}
	return out, nil
}

// GenerateClient calls /api/generate without streaming.
type GenerateClient struct {
	baseURL string
	model   string
	client  *http.Client
}

// NewGenerateClient creates an Ollama text-generation client. Generation is
// slow, so timeout defaults to DefaultGenerateTimeout.
func NewGenerateClient(baseURL, model string, timeout time.Duration) *GenerateClient {
	if timeout <= 0 {
		timeout = DefaultGenerateTimeout
	}
	return &GenerateClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		client:  &http.Client{Timeout: timeout},
	}
}

type generateReq struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

type generateResp struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// Generate returns the model's completion for prompt. maxTokens <= 0 leaves
// the model default.
func (c *GenerateClient) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	req := generateReq{Model: c.model, Prompt: prompt}
	if maxTokens > 0 {
		req.Options = map[string]any{"num_predict": maxTokens}
	}
	var result generateResp
	if err := post(ctx, c.client, c.baseURL+"/api/generate", "generate", req, &result); err != nil {
		return "", err
	}
	return strings.TrimSpace(result.Response), nil
}
