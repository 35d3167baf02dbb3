package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	defaultVoyageBaseURL = "https://api.voyageai.com/v1"
	defaultVoyageModel   = "voyage-3"
)

// VoyageEmbedder generates embeddings through the Voyage AI REST API.
type VoyageEmbedder struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
	retry   retryConfig
}

// VoyageOption customizes a VoyageEmbedder.
type VoyageOption func(*VoyageEmbedder)

// WithVoyageModel overrides the default embedding model.
func WithVoyageModel(model string) VoyageOption {
	return func(v *VoyageEmbedder) { v.model = model }
}

// WithVoyageBaseURL overrides the API endpoint, mainly for tests.
func WithVoyageBaseURL(url string) VoyageOption {
	return func(v *VoyageEmbedder) { v.baseURL = url }
}

// WithVoyageHTTPClient overrides the HTTP client.
func WithVoyageHTTPClient(c *http.Client) VoyageOption {
	return func(v *VoyageEmbedder) { v.client = c }
}

// NewVoyageEmbedder creates an embedder. The key is validated up front so a
// misconfigured deployment fails at startup rather than on the first query.
func NewVoyageEmbedder(apiKey string, opts ...VoyageOption) (*VoyageEmbedder, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: voyage", ErrMissingAPIKey)
	}
	v := &VoyageEmbedder{
		apiKey:  apiKey,
		model:   defaultVoyageModel,
		baseURL: defaultVoyageBaseURL,
		client:  &http.Client{Timeout: 60 * time.Second},
		retry:   defaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

type voyageRequest struct {
	Input     []string `json:"input"`
	Model     string   `json:"model"`
	InputType string   `json:"input_type,omitempty"`
}

type voyageResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

// EmbedDocuments embeds a batch of document texts.
func (v *VoyageEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, ErrEmptyInput
	}
	return v.embed(ctx, texts, "document")
}

// EmbedQuery embeds a single query string.
func (v *VoyageEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, ErrEmptyInput
	}
	vecs, err := v.embed(ctx, []string{text}, "query")
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (v *VoyageEmbedder) embed(ctx context.Context, texts []string, inputType string) ([][]float32, error) {
	body, err := json.Marshal(voyageRequest{Input: texts, Model: v.model, InputType: inputType})
	if err != nil {
		return nil, fmt.Errorf("ai: marshal voyage request: %w", err)
	}

	return retryWithBackoff(ctx, v.retry, func() ([][]float32, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.baseURL+"/embeddings", bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("ai: build voyage request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+v.apiKey)

		resp, err := v.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("ai: voyage request: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			return nil, fmt.Errorf("ai: voyage status %d: %s", resp.StatusCode, msg)
		}

		var decoded voyageResponse
		if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
			return nil, fmt.Errorf("ai: decode voyage response: %w", err)
		}
		if len(decoded.Data) != len(texts) {
			return nil, fmt.Errorf("ai: voyage returned %d embeddings for %d inputs", len(decoded.Data), len(texts))
		}

		out := make([][]float32, len(texts))
		for _, d := range decoded.Data {
			if d.Index < 0 || d.Index >= len(out) {
				return nil, fmt.Errorf("ai: voyage embedding index %d out of range", d.Index)
			}
			out[d.Index] = d.Embedding
		}
		return out, nil
	})
}
