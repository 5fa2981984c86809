package db

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ErrCollectionNotFound is returned when the requested collection does not exist
var ErrCollectionNotFound = errors.New("collection not found")

// QdrantAPIError is a non-2xx response from the Qdrant REST API.
// The status code lets callers distinguish retryable server errors from bad requests.
type QdrantAPIError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *QdrantAPIError) Error() string {
	return fmt.Sprintf("%s failed (status %d): %s", e.Op, e.StatusCode, e.Body)
}

// Retryable reports whether the error is worth retrying (server-side or throttling)
func (e *QdrantAPIError) Retryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

func newAPIError(op string, resp *http.Response) *QdrantAPIError {
	body, _ := io.ReadAll(resp.Body)
	return &QdrantAPIError{Op: op, StatusCode: resp.StatusCode, Body: string(body)}
}

// QdrantClient wraps HTTP calls to the Qdrant REST API.
// This avoids pulling in the gRPC client and its protobuf dependency tree.
type QdrantClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// QdrantConfig holds configuration for the Qdrant connection
type QdrantConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// CollectionInfo represents collection-level metadata and counters
type CollectionInfo struct {
	Status       string `json:"status"`
	PointsCount  int    `json:"points_count"`
	VectorSize   int    `json:"vector_size"`
	VectorsCount int    `json:"vectors_count"`
}

// Point is a single vector record for upsert
type Point struct {
	ID      string                 `json:"id"`
	Vector  []float32              `json:"vector"`
	Payload map[string]interface{} `json:"payload,omitempty"`
}

// ScoredPoint is a single hit returned by a similarity query
type ScoredPoint struct {
	ID      string                 `json:"id"`
	Score   float64                `json:"score"`
	Payload map[string]interface{} `json:"payload"`
	Vector  []float32              `json:"vector,omitempty"`
}

// ScrollResult is one page of a collection scan
type ScrollResult struct {
	Points     []ScoredPoint `json:"points"`
	NextOffset *string       `json:"next_page_offset"`
}

// qdrantEnvelope is the standard response wrapper
type qdrantEnvelope struct {
	Result json.RawMessage `json:"result"`
	Status interface{}     `json:"status"`
	Time   float64         `json:"time"`
}

// NewQdrantClient creates a new Qdrant REST client
func NewQdrantClient(config QdrantConfig) *QdrantClient {
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}

	return &QdrantClient{
		baseURL: config.BaseURL,
		apiKey:  config.APIKey,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}
}

// HealthCheck verifies the Qdrant server is reachable and alive
func (c *QdrantClient) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/healthz", nil)
	if err != nil {
		return fmt.Errorf("failed to create health request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("health request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return newAPIError("health check", resp)
	}

	return nil
}

// GetCollection retrieves collection metadata and point counts
func (c *QdrantClient) GetCollection(ctx context.Context, name string) (*CollectionInfo, error) {
	url := fmt.Sprintf("%s/collections/%s", c.baseURL, name)

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", ErrCollectionNotFound, name)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, newAPIError("get collection", resp)
	}

	var envelope qdrantEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	var raw struct {
		Status      string `json:"status"`
		PointsCount int    `json:"points_count"`
		Config      struct {
			Params struct {
				Vectors struct {
					Size int `json:"size"`
				} `json:"vectors"`
			} `json:"params"`
		} `json:"config"`
	}
	if err := json.Unmarshal(envelope.Result, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode collection info: %w", err)
	}

	return &CollectionInfo{
		Status:       raw.Status,
		PointsCount:  raw.PointsCount,
		VectorsCount: raw.PointsCount,
		VectorSize:   raw.Config.Params.Vectors.Size,
	}, nil
}

// CreateCollection creates a collection with cosine distance vectors
func (c *QdrantClient) CreateCollection(ctx context.Context, name string, vectorSize int) error {
	payload := map[string]interface{}{
		"vectors": map[string]interface{}{
			"size":     vectorSize,
			"distance": "Cosine",
		},
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/collections/%s", c.baseURL, name)

	req, err := http.NewRequestWithContext(ctx, "PUT", url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return newAPIError("create collection", resp)
	}

	return nil
}

// DeleteCollection deletes a collection and all of its points
func (c *QdrantClient) DeleteCollection(ctx context.Context, name string) error {
	url := fmt.Sprintf("%s/collections/%s", c.baseURL, name)

	req, err := http.NewRequestWithContext(ctx, "DELETE", url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return newAPIError("delete collection", resp)
	}

	return nil
}

// UpsertPoints inserts or replaces points, waiting until the write is applied
func (c *QdrantClient) UpsertPoints(ctx context.Context, collection string, points []Point) error {
	if len(points) == 0 {
		return nil
	}

	payload := map[string]interface{}{
		"points": points,
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/collections/%s/points?wait=true", c.baseURL, collection)

	req, err := http.NewRequestWithContext(ctx, "PUT", url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return newAPIError("upsert points", resp)
	}

	return nil
}

// DeletePoints removes points by ID
func (c *QdrantClient) DeletePoints(ctx context.Context, collection string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	payload := map[string]interface{}{
		"points": ids,
	}

	return c.postDelete(ctx, collection, payload)
}

// DeletePointsByFilter removes every point matching a payload filter
func (c *QdrantClient) DeletePointsByFilter(ctx context.Context, collection string, filter map[string]interface{}) error {
	payload := map[string]interface{}{
		"filter": filter,
	}

	return c.postDelete(ctx, collection, payload)
}

func (c *QdrantClient) postDelete(ctx context.Context, collection string, payload map[string]interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/collections/%s/points/delete?wait=true", c.baseURL, collection)

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return newAPIError("delete points", resp)
	}

	return nil
}

// QueryPoints runs a similarity search and returns scored hits with payloads
func (c *QdrantClient) QueryPoints(ctx context.Context, collection string, vector []float32, limit int, scoreThreshold *float64, filter map[string]interface{}) ([]ScoredPoint, error) {
	payload := map[string]interface{}{
		"query":        vector,
		"limit":        limit,
		"with_payload": true,
	}

	if scoreThreshold != nil {
		payload["score_threshold"] = *scoreThreshold
	}
	if len(filter) > 0 {
		payload["filter"] = filter
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/collections/%s/points/query", c.baseURL, collection)

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", ErrCollectionNotFound, collection)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, newAPIError("query points", resp)
	}

	var envelope qdrantEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	var result struct {
		Points []ScoredPoint `json:"points"`
	}
	if err := json.Unmarshal(envelope.Result, &result); err != nil {
		return nil, fmt.Errorf("failed to decode query result: %w", err)
	}

	return result.Points, nil
}

// ScrollPoints pages through a collection, optionally with stored vectors
func (c *QdrantClient) ScrollPoints(ctx context.Context, collection string, filter map[string]interface{}, limit int, offset *string, withVectors bool) (*ScrollResult, error) {
	payload := map[string]interface{}{
		"limit":        limit,
		"with_payload": true,
		"with_vector":  withVectors,
	}

	if len(filter) > 0 {
		payload["filter"] = filter
	}
	if offset != nil {
		payload["offset"] = *offset
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/collections/%s/points/scroll", c.baseURL, collection)

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", ErrCollectionNotFound, collection)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, newAPIError("scroll points", resp)
	}

	var envelope qdrantEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	var result ScrollResult
	if err := json.Unmarshal(envelope.Result, &result); err != nil {
		return nil, fmt.Errorf("failed to decode scroll result: %w", err)
	}

	return &result, nil
}

// CountPoints returns the exact number of points matching a filter
func (c *QdrantClient) CountPoints(ctx context.Context, collection string, filter map[string]interface{}) (int, error) {
	payload := map[string]interface{}{
		"exact": true,
	}
	if len(filter) > 0 {
		payload["filter"] = filter
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/collections/%s/points/count", c.baseURL, collection)

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(data))
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, newAPIError("count points", resp)
	}

	var envelope qdrantEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return 0, fmt.Errorf("failed to decode response: %w", err)
	}

	var result struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(envelope.Result, &result); err != nil {
		return 0, fmt.Errorf("failed to decode count result: %w", err)
	}

	return result.Count, nil
}

func (c *QdrantClient) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("api-key", c.apiKey)
	}
}

// Close closes the HTTP client connections
func (c *QdrantClient) Close() {
	c.httpClient.CloseIdleConnections()
}
