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
	defaultCohereBaseURL = "https://api.cohere.com/v2"
	defaultCohereModel   = "rerank-v3.5"
)

// CohereReranker reorders documents through the Cohere rerank REST API.
type CohereReranker struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
	retry   retryConfig
}

// CohereOption customizes a CohereReranker.
type CohereOption func(*CohereReranker)

// WithCohereModel overrides the default rerank model.
func WithCohereModel(model string) CohereOption {
	return func(c *CohereReranker) { c.model = model }
}

// WithCohereBaseURL overrides the API endpoint, mainly for tests.
func WithCohereBaseURL(url string) CohereOption {
	return func(c *CohereReranker) { c.baseURL = url }
}

// WithCohereHTTPClient overrides the HTTP client.
func WithCohereHTTPClient(hc *http.Client) CohereOption {
	return func(c *CohereReranker) { c.client = hc }
}

// NewCohereReranker creates a reranker, validating the key up front.
func NewCohereReranker(apiKey string, opts ...CohereOption) (*CohereReranker, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: cohere", ErrMissingAPIKey)
	}
	c := &CohereReranker{
		apiKey:  apiKey,
		model:   defaultCohereModel,
		baseURL: defaultCohereBaseURL,
		client:  &http.Client{Timeout: 30 * time.Second},
		retry:   defaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type cohereRequest struct {
	Model     string   `json:"model"`
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	TopN      int      `json:"top_n"`
}

type cohereResponse struct {
	Results []struct {
		Index          int     `json:"index"`
		RelevanceScore float64 `json:"relevance_score"`
	} `json:"results"`
}

// Rerank scores documents against the query and returns the topN best,
// ordered by relevance descending.
func (c *CohereReranker) Rerank(ctx context.Context, query string, documents []string, topN int) ([]RerankResult, error) {
	if query == "" || len(documents) == 0 {
		return nil, ErrEmptyInput
	}
	if topN <= 0 || topN > len(documents) {
		topN = len(documents)
	}

	body, err := json.Marshal(cohereRequest{Model: c.model, Query: query, Documents: documents, TopN: topN})
	if err != nil {
		return nil, fmt.Errorf("ai: marshal cohere request: %w", err)
	}

	return retryWithBackoff(ctx, c.retry, func() ([]RerankResult, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/rerank", bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("ai: build cohere request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.apiKey)

		resp, err := c.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("ai: cohere request: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			return nil, fmt.Errorf("ai: cohere status %d: %s", resp.StatusCode, msg)
		}

		var decoded cohereResponse
		if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
			return nil, fmt.Errorf("ai: decode cohere response: %w", err)
		}

		out := make([]RerankResult, 0, len(decoded.Results))
		for _, r := range decoded.Results {
			if r.Index < 0 || r.Index >= len(documents) {
				return nil, fmt.Errorf("ai: cohere result index %d out of range", r.Index)
			}
			out = append(out, RerankResult{Index: r.Index, Score: r.RelevanceScore})
		}
		return out, nil
	})
}
