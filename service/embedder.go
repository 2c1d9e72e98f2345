package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"harfy-backend/config"
)

var (
	ErrEmbeddingFailed   = errors.New("failed to generate embedding")
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	ErrEmptyText         = errors.New("text to embed is empty")
)

const (
	geminiEmbeddingAPI = "https://generativelanguage.googleapis.com/v1beta/models/%s:embedContent"
	maxRetries         = 3
	initialBackoff     = time.Second
)

// Embedder turns text into a fixed-length vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
	Dimension() int
}

// retryingClient posts JSON and retries transient failures with exponential
// backoff. 400 and 401 responses are not retried.
type retryingClient struct {
	httpClient *http.Client
	attempts   int
	backoff    time.Duration
}

type EmbedderOption func(*retryingClient)

// WithHTTPClient sets the HTTP client used for embedding calls.
func WithHTTPClient(c *http.Client) EmbedderOption {
	return func(r *retryingClient) {
		r.httpClient = c
	}
}

// WithRetryBackoff sets the delay before the first retry; it doubles on each
// subsequent attempt.
func WithRetryBackoff(d time.Duration) EmbedderOption {
	return func(r *retryingClient) {
		r.backoff = d
	}
}

func newRetryingClient(opts []EmbedderOption) retryingClient {
	r := retryingClient{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		attempts:   maxRetries,
		backoff:    initialBackoff,
	}
	for _, opt := range opts {
		opt(&r)
	}
	return r
}

func (r retryingClient) postJSON(ctx context.Context, url string, headers map[string]string, payload, out any) error {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	backoff := r.backoff
	for attempt := 0; attempt < r.attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := r.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil || attempt == r.attempts-1 {
				return fmt.Errorf("failed to send request after %d attempts: %w", attempt+1, err)
			}
			continue
		}

		if resp.StatusCode == http.StatusOK {
			err := json.NewDecoder(resp.Body).Decode(out)
			resp.Body.Close()
			if err == nil {
				return nil
			}
			if attempt == r.attempts-1 {
				return fmt.Errorf("failed to decode response: %w", err)
			}
			continue
		}

		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		resp.Body.Close()

		// Don't retry on 400 or 401 errors
		if resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnauthorized {
			return fmt.Errorf("API error: %d - %s", resp.StatusCode, strings.TrimSpace(string(body)))
		}
		if attempt == r.attempts-1 {
			return fmt.Errorf("API error after %d attempts: %d", r.attempts, resp.StatusCode)
		}
	}
	return ErrEmbeddingFailed
}

// SentenceTransformerEmbedder calls a sentence-transformer HTTP service
// exposing POST /embed.
type SentenceTransformerEmbedder struct {
	client    retryingClient
	baseURL   string
	model     string
	dimension int
}

type sentenceEmbeddingRequest struct {
	Text      string `json:"text"`
	Model     string `json:"model"`
	Normalize bool   `json:"normalize"`
}

type sentenceEmbeddingResponse struct {
	Embedding []float64 `json:"embedding"`
}

func NewSentenceTransformerEmbedder(baseURL, model string, dimension int, opts ...EmbedderOption) *SentenceTransformerEmbedder {
	return &SentenceTransformerEmbedder{
		client:    newRetryingClient(opts),
		baseURL:   strings.TrimRight(baseURL, "/"),
		model:     model,
		dimension: dimension,
	}
}

func (e *SentenceTransformerEmbedder) Dimension() int { return e.dimension }

func (e *SentenceTransformerEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}

	var resp sentenceEmbeddingResponse
	reqBody := sentenceEmbeddingRequest{Text: text, Model: e.model, Normalize: true}
	if err := e.client.postJSON(ctx, e.baseURL+"/embed", nil, reqBody, &resp); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEmbeddingFailed, err)
	}
	if err := checkDimension(resp.Embedding, e.dimension); err != nil {
		return nil, err
	}
	return resp.Embedding, nil
}

// GeminiEmbedder calls the Gemini embedContent REST endpoint with a reduced
// output dimensionality.
type GeminiEmbedder struct {
	client    retryingClient
	apiKey    string
	model     string
	endpoint  string
	dimension int
}

// EmbeddingRequest represents a Gemini embedding API request
type EmbeddingRequest struct {
	Model                string       `json:"model"`
	Content              ContentInput `json:"content"`
	TaskType             string       `json:"task_type,omitempty"`
	OutputDimensionality int          `json:"output_dimensionality,omitempty"`
}

// ContentInput represents content for embedding
type ContentInput struct {
	Parts []PartInput `json:"parts"`
}

// PartInput represents a part of content
type PartInput struct {
	Text string `json:"text"`
}

// EmbeddingResponse represents an embedding API response
type EmbeddingResponse struct {
	Embedding EmbeddingData `json:"embedding"`
}

// EmbeddingData contains the embedding values
type EmbeddingData struct {
	Values []float64 `json:"values"`
}

// NewGeminiEmbedder creates an embedder for model (for example
// "gemini-embedding-001"). An empty endpoint uses the public API.
func NewGeminiEmbedder(apiKey, model, endpoint string, dimension int, opts ...EmbedderOption) *GeminiEmbedder {
	if endpoint == "" {
		endpoint = fmt.Sprintf(geminiEmbeddingAPI, model)
	}
	return &GeminiEmbedder{
		client:    newRetryingClient(opts),
		apiKey:    apiKey,
		model:     model,
		endpoint:  endpoint,
		dimension: dimension,
	}
}

func (e *GeminiEmbedder) Dimension() int { return e.dimension }

func (e *GeminiEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}
	if e.apiKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY not set")
	}

	reqBody := EmbeddingRequest{
		Model:                "models/" + e.model,
		Content:              ContentInput{Parts: []PartInput{{Text: text}}},
		TaskType:             "RETRIEVAL_QUERY",
		OutputDimensionality: e.dimension,
	}

	var resp EmbeddingResponse
	headers := map[string]string{"x-goog-api-key": e.apiKey}
	if err := e.client.postJSON(ctx, e.endpoint, headers, reqBody, &resp); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEmbeddingFailed, err)
	}

	embedding := resp.Embedding.Values
	if err := checkDimension(embedding, e.dimension); err != nil {
		return nil, err
	}
	normalizeL2(embedding)
	return embedding, nil
}

func checkDimension(v []float64, want int) error {
	if len(v) == 0 {
		return fmt.Errorf("%w: empty embedding returned", ErrEmbeddingFailed)
	}
	if want > 0 && len(v) != want {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(v), want)
	}
	return nil
}

// normalizeL2 scales v to unit length in place.
func normalizeL2(v []float64) {
	norm := 0.0
	for _, x := range v {
		norm += x * x
	}
	norm = math.Sqrt(norm)
	if norm > 0 {
		for i := range v {
			v[i] /= norm
		}
	}
}

// NewEmbedderFromConfig builds the embedder selected by EMBEDDING_PROVIDER.
func NewEmbedderFromConfig(cfg *config.Config, opts ...EmbedderOption) Embedder {
	if cfg.EmbeddingProvider == config.EmbeddingGemini {
		return NewGeminiEmbedder(cfg.GeminiAPIKey, cfg.EmbeddingModel, "", cfg.EmbeddingDimension, opts...)
	}
	return NewSentenceTransformerEmbedder(cfg.SentenceTransformerAPIURL, cfg.EmbeddingModel, cfg.EmbeddingDimension, opts...)
}
