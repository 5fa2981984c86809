package services

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"zerorag/config"
	"zerorag/internal/models"
)

// Embedder produces dense vectors for text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	ModelName() string
	HealthCheck(ctx context.Context) error
	Close() error
}

const (
	embedMaxAttempts = 3
	embedBaseBackoff = 100 * time.Millisecond
)

// OllamaEmbedder generates embeddings through the Ollama REST API.
type OllamaEmbedder struct {
	host    string
	model   string
	dims    int
	timeout time.Duration
	client  *http.Client
	logger  *log.Logger
}

type ollamaEmbedRequest struct {
	Model string `json:"model"`
	Input any    `json:"input"` // string or []string
}

type ollamaEmbedResponse struct {
	Model      string      `json:"model"`
	Embeddings [][]float64 `json:"embeddings"`
}

type ollamaTagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// NewOllamaEmbedder creates an embedder for the configured embedding model.
// vectorSize is the expected output dimensionality.
func NewOllamaEmbedder(cfg config.OllamaConfig, vectorSize int, logger *log.Logger) *OllamaEmbedder {
	if logger == nil {
		logger = log.Default()
	}
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	transport := &http.Transport{
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	}
	return &OllamaEmbedder{
		host:    strings.TrimRight(cfg.Host, "/"),
		model:   cfg.EmbeddingModel,
		dims:    vectorSize,
		timeout: timeout,
		client:  &http.Client{Transport: transport},
		logger:  logger,
	}
}

// Embed returns the embedding for a single text. Whitespace-only input
// yields a zero vector without calling the model.
func (o *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return make([]float32, o.dims), nil
	}

	embeddings, err := o.requestWithRetry(ctx, text)
	if err != nil {
		return nil, err
	}
	if len(embeddings) != 1 {
		return nil, models.NewInternalError("embed.request",
			fmt.Errorf("expected 1 embedding, got %d", len(embeddings)))
	}
	return embeddings[0], nil
}

// EmbedBatch embeds texts in one request, preserving input order.
// Whitespace-only entries map to zero vectors.
func (o *OllamaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	results := make([][]float32, len(texts))
	nonEmptyIdx := make([]int, 0, len(texts))
	nonEmpty := make([]string, 0, len(texts))
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			results[i] = make([]float32, o.dims)
			continue
		}
		nonEmptyIdx = append(nonEmptyIdx, i)
		nonEmpty = append(nonEmpty, text)
	}
	if len(nonEmpty) == 0 {
		return results, nil
	}

	start := time.Now()
	embeddings, err := o.requestWithRetry(ctx, nonEmpty)
	if err != nil {
		return nil, err
	}
	if len(embeddings) != len(nonEmpty) {
		return nil, models.NewInternalError("embed.batch",
			fmt.Errorf("expected %d embeddings, got %d", len(nonEmpty), len(embeddings)))
	}
	for i, idx := range nonEmptyIdx {
		results[idx] = embeddings[i]
	}

	o.logger.Printf("🧮 Embedded %d texts in %.2fms", len(nonEmpty), time.Since(start).Seconds()*1000)
	return results, nil
}

// Dimensions returns the configured vector size.
func (o *OllamaEmbedder) Dimensions() int {
	return o.dims
}

// ModelName returns the embedding model identifier.
func (o *OllamaEmbedder) ModelName() string {
	return o.model
}

// HealthCheck verifies the server is reachable and the model is pulled.
func (o *OllamaEmbedder) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.host+"/api/tags", nil)
	if err != nil {
		return models.NewInternalError("embed.health", err)
	}
	resp, err := o.client.Do(req)
	if err != nil {
		return models.NewTransientError("embed.health", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return models.NewTransientError("embed.health",
			fmt.Errorf("ollama returned status %d", resp.StatusCode))
	}

	var tags ollamaTagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return models.NewInternalError("embed.health", err)
	}
	want := baseModelName(o.model)
	for _, m := range tags.Models {
		if baseModelName(m.Name) == want {
			return nil
		}
	}
	return models.NewPermanentError("embed.health",
		fmt.Errorf("embedding model %q is not available on the server", o.model))
}

// Close releases idle HTTP connections.
func (o *OllamaEmbedder) Close() error {
	if t, ok := o.client.Transport.(*http.Transport); ok {
		t.CloseIdleConnections()
	}
	return nil
}

// requestWithRetry posts to /api/embed, retrying transient failures with
// exponential backoff.
func (o *OllamaEmbedder) requestWithRetry(ctx context.Context, input any) ([][]float32, error) {
	var lastErr error
	for attempt := 0; attempt < embedMaxAttempts; attempt++ {
		if attempt > 0 {
			backoff := embedBaseBackoff * time.Duration(1<<(attempt-1))
			select {
			case <-ctx.Done():
				return nil, models.NewCancelledError("embed.request", ctx.Err())
			case <-time.After(backoff):
			}
		}

		embeddings, err := o.request(ctx, input)
		if err == nil {
			return embeddings, nil
		}
		lastErr = err
		if !models.IsTransient(err) {
			return nil, err
		}
	}
	return nil, models.NewTransientError("embed.request",
		fmt.Errorf("embedding failed after %d attempts: %w", embedMaxAttempts, lastErr))
}

func (o *OllamaEmbedder) request(ctx context.Context, input any) ([][]float32, error) {
	body, err := json.Marshal(ollamaEmbedRequest{Model: o.model, Input: input})
	if err != nil {
		return nil, models.NewInternalError("embed.request", err)
	}

	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.host+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, models.NewInternalError("embed.request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, models.NewCancelledError("embed.request", ctx.Err())
		}
		return nil, models.NewTransientError("embed.request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		err := fmt.Errorf("ollama embed returned status %d: %s", resp.StatusCode, string(respBody))
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return nil, models.NewTransientError("embed.request", err)
		}
		return nil, models.NewPermanentError("embed.request", err)
	}

	var parsed ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, models.NewInternalError("embed.request", err)
	}
	if len(parsed.Embeddings) == 0 {
		return nil, models.NewInternalError("embed.request", fmt.Errorf("response contained no embeddings"))
	}

	out := make([][]float32, len(parsed.Embeddings))
	for i, emb := range parsed.Embeddings {
		out[i] = normalizeVector(emb)
	}
	return out, nil
}

// normalizeVector converts to float32 and scales to unit length.
func normalizeVector(v []float64) []float32 {
	var norm float64
	for _, x := range v {
		norm += x * x
	}
	norm = math.Sqrt(norm)

	out := make([]float32, len(v))
	if norm == 0 {
		return out
	}
	for i, x := range v {
		out[i] = float32(x / norm)
	}
	return out
}

// baseModelName strips the tag suffix so "all-minilm:latest" matches "all-minilm".
func baseModelName(name string) string {
	if idx := strings.Index(name, ":"); idx >= 0 {
		return name[:idx]
	}
	return name
}

// ============================================================================
// Caching wrapper
// ============================================================================

// CachedEmbedder wraps an Embedder with an LRU cache keyed by content hash.
// Chunks shared across re-uploaded documents skip the model entirely.
type CachedEmbedder struct {
	inner  Embedder
	cache  *lru.Cache[string, []float32]
	hits   atomic.Int64
	misses atomic.Int64
}

// NewCachedEmbedder wraps inner with a cache holding up to size vectors.
func NewCachedEmbedder(inner Embedder, size int) (*CachedEmbedder, error) {
	if size < 1 {
		size = 1
	}
	cache, err := lru.New[string, []float32](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding cache: %w", err)
	}
	return &CachedEmbedder{inner: inner, cache: cache}, nil
}

// Embed returns a cached vector when available, embedding otherwise.
func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := c.cacheKey(text)
	if vec, ok := c.cache.Get(key); ok {
		c.hits.Add(1)
		return vec, nil
	}
	c.misses.Add(1)

	vec, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, vec)
	return vec, nil
}

// EmbedBatch resolves cached entries first and embeds only the misses.
func (c *CachedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	results := make([][]float32, len(texts))
	missIdx := make([]int, 0, len(texts))
	missTexts := make([]string, 0, len(texts))
	for i, text := range texts {
		if vec, ok := c.cache.Get(c.cacheKey(text)); ok {
			c.hits.Add(1)
			results[i] = vec
			continue
		}
		c.misses.Add(1)
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, text)
	}
	if len(missTexts) == 0 {
		return results, nil
	}

	embedded, err := c.inner.EmbedBatch(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(embedded) != len(missTexts) {
		return nil, models.NewInternalError("embed.cache",
			fmt.Errorf("expected %d embeddings, got %d", len(missTexts), len(embedded)))
	}
	for i, idx := range missIdx {
		results[idx] = embedded[i]
		c.cache.Add(c.cacheKey(missTexts[i]), embedded[i])
	}
	return results, nil
}

// Dimensions reports the wrapped embedder's vector size.
func (c *CachedEmbedder) Dimensions() int {
	return c.inner.Dimensions()
}

// ModelName reports the wrapped embedder's model.
func (c *CachedEmbedder) ModelName() string {
	return c.inner.ModelName()
}

// HealthCheck delegates to the wrapped embedder.
func (c *CachedEmbedder) HealthCheck(ctx context.Context) error {
	return c.inner.HealthCheck(ctx)
}

// Close purges the cache and closes the wrapped embedder.
func (c *CachedEmbedder) Close() error {
	c.cache.Purge()
	return c.inner.Close()
}

// CacheStats returns hit and miss counts since startup.
func (c *CachedEmbedder) CacheStats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// cacheKey hashes text together with the model name so vectors from
// different models never collide.
func (c *CachedEmbedder) cacheKey(text string) string {
	h := sha256.New()
	h.Write([]byte(text))
	h.Write([]byte{0})
	h.Write([]byte(c.inner.ModelName()))
	return hex.EncodeToString(h.Sum(nil))
}
