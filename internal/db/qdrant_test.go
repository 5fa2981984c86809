package db

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// newTestQdrant starts a stub Qdrant server and returns a client pointed at it
func newTestQdrant(t *testing.T, handler http.HandlerFunc) *QdrantClient {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return NewQdrantClient(QdrantConfig{BaseURL: server.URL})
}

func writeEnvelope(w http.ResponseWriter, result interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"result": result,
		"status": "ok",
		"time":   0.001,
	})
}

// TestNewQdrantClient tests client initialization defaults
func TestNewQdrantClient(t *testing.T) {
	client := NewQdrantClient(QdrantConfig{BaseURL: "http://localhost:6333"})

	if client == nil {
		t.Fatal("Expected non-nil client")
	}
	if client.httpClient.Timeout != 30*time.Second {
		t.Errorf("Expected default timeout 30s, got %v", client.httpClient.Timeout)
	}

	custom := NewQdrantClient(QdrantConfig{BaseURL: "http://localhost:6333", Timeout: 5 * time.Second})
	if custom.httpClient.Timeout != 5*time.Second {
		t.Errorf("Expected timeout 5s, got %v", custom.httpClient.Timeout)
	}
}

// TestQdrantClient_HealthCheck tests liveness probing
func TestQdrantClient_HealthCheck(t *testing.T) {
	client := newTestQdrant(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/healthz" {
			t.Errorf("Expected path /healthz, got %s", r.URL.Path)
		}
		w.WriteHeader(http.StatusOK)
	})

	if err := client.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck failed: %v", err)
	}
}

// TestQdrantClient_HealthCheck_Down tests error reporting when the server is unhealthy
func TestQdrantClient_HealthCheck_Down(t *testing.T) {
	client := newTestQdrant(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	if err := client.HealthCheck(context.Background()); err == nil {
		t.Error("Expected error for unhealthy server")
	}
}

// TestQdrantClient_GetCollection tests metadata decoding
func TestQdrantClient_GetCollection(t *testing.T) {
	client := newTestQdrant(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/collections/docs" {
			t.Errorf("Expected path /collections/docs, got %s", r.URL.Path)
		}
		writeEnvelope(w, map[string]interface{}{
			"status":       "green",
			"points_count": 42,
			"config": map[string]interface{}{
				"params": map[string]interface{}{
					"vectors": map[string]interface{}{"size": 384, "distance": "Cosine"},
				},
			},
		})
	})

	info, err := client.GetCollection(context.Background(), "docs")
	if err != nil {
		t.Fatalf("GetCollection failed: %v", err)
	}
	if info.PointsCount != 42 {
		t.Errorf("Expected 42 points, got %d", info.PointsCount)
	}
	if info.VectorSize != 384 {
		t.Errorf("Expected vector size 384, got %d", info.VectorSize)
	}
	if info.Status != "green" {
		t.Errorf("Expected status green, got %s", info.Status)
	}
}

// TestQdrantClient_GetCollection_NotFound tests the missing-collection sentinel
func TestQdrantClient_GetCollection_NotFound(t *testing.T) {
	client := newTestQdrant(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := client.GetCollection(context.Background(), "missing")
	if !errors.Is(err, ErrCollectionNotFound) {
		t.Errorf("Expected ErrCollectionNotFound, got %v", err)
	}
}

// TestQdrantClient_CreateCollection tests the create request body
func TestQdrantClient_CreateCollection(t *testing.T) {
	client := newTestQdrant(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "PUT" {
			t.Errorf("Expected PUT, got %s", r.Method)
		}

		var body map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("Failed to decode request body: %v", err)
		}

		vectors, ok := body["vectors"].(map[string]interface{})
		if !ok {
			t.Fatal("Expected vectors object in request")
		}
		if vectors["size"].(float64) != 384 {
			t.Errorf("Expected size 384, got %v", vectors["size"])
		}
		if vectors["distance"] != "Cosine" {
			t.Errorf("Expected Cosine distance, got %v", vectors["distance"])
		}

		writeEnvelope(w, true)
	})

	if err := client.CreateCollection(context.Background(), "docs", 384); err != nil {
		t.Errorf("CreateCollection failed: %v", err)
	}
}

// TestQdrantClient_UpsertPoints tests point serialization and the wait flag
func TestQdrantClient_UpsertPoints(t *testing.T) {
	client := newTestQdrant(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("wait") != "true" {
			t.Error("Expected wait=true query parameter")
		}

		var body struct {
			Points []Point `json:"points"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("Failed to decode request body: %v", err)
		}
		if len(body.Points) != 2 {
			t.Errorf("Expected 2 points, got %d", len(body.Points))
		}
		if body.Points[0].Payload["document_id"] != "doc-1" {
			t.Errorf("Expected payload document_id doc-1, got %v", body.Points[0].Payload["document_id"])
		}

		writeEnvelope(w, map[string]interface{}{"operation_id": 1, "status": "completed"})
	})

	points := []Point{
		{ID: "a", Vector: []float32{0.1, 0.2}, Payload: map[string]interface{}{"document_id": "doc-1"}},
		{ID: "b", Vector: []float32{0.3, 0.4}, Payload: map[string]interface{}{"document_id": "doc-1"}},
	}

	if err := client.UpsertPoints(context.Background(), "docs", points); err != nil {
		t.Errorf("UpsertPoints failed: %v", err)
	}
}

// TestQdrantClient_UpsertPoints_Empty tests that empty batches are a no-op
func TestQdrantClient_UpsertPoints_Empty(t *testing.T) {
	called := false
	client := newTestQdrant(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
	})

	if err := client.UpsertPoints(context.Background(), "docs", nil); err != nil {
		t.Errorf("UpsertPoints failed: %v", err)
	}
	if called {
		t.Error("Expected no request for empty batch")
	}
}

// TestQdrantClient_QueryPoints tests similarity search request and response decoding
func TestQdrantClient_QueryPoints(t *testing.T) {
	threshold := 0.7
	client := newTestQdrant(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/collections/docs/points/query" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}

		var body map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("Failed to decode request body: %v", err)
		}
		if body["limit"].(float64) != 5 {
			t.Errorf("Expected limit 5, got %v", body["limit"])
		}
		if body["score_threshold"].(float64) != 0.7 {
			t.Errorf("Expected score_threshold 0.7, got %v", body["score_threshold"])
		}
		if body["with_payload"] != true {
			t.Error("Expected with_payload true")
		}
		if _, ok := body["filter"]; !ok {
			t.Error("Expected filter in request")
		}

		writeEnvelope(w, map[string]interface{}{
			"points": []map[string]interface{}{
				{"id": "a", "score": 0.92, "payload": map[string]interface{}{"text": "hello"}},
				{"id": "b", "score": 0.85, "payload": map[string]interface{}{"text": "world"}},
			},
		})
	})

	filter := map[string]interface{}{
		"must": []map[string]interface{}{
			{"key": "document_id", "match": map[string]interface{}{"any": []string{"doc-1"}}},
		},
	}

	hits, err := client.QueryPoints(context.Background(), "docs", []float32{0.1, 0.2}, 5, &threshold, filter)
	if err != nil {
		t.Fatalf("QueryPoints failed: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("Expected 2 hits, got %d", len(hits))
	}
	if hits[0].ID != "a" || hits[0].Score != 0.92 {
		t.Errorf("Unexpected first hit: %+v", hits[0])
	}
	if hits[0].Payload["text"] != "hello" {
		t.Errorf("Expected payload text hello, got %v", hits[0].Payload["text"])
	}
}

// TestQdrantClient_DeletePointsByFilter tests filtered deletion
func TestQdrantClient_DeletePointsByFilter(t *testing.T) {
	client := newTestQdrant(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/collections/docs/points/delete" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("wait") != "true" {
			t.Error("Expected wait=true query parameter")
		}

		var body map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("Failed to decode request body: %v", err)
		}
		if _, ok := body["filter"]; !ok {
			t.Error("Expected filter in delete request")
		}

		writeEnvelope(w, map[string]interface{}{"status": "completed"})
	})

	filter := map[string]interface{}{
		"must": []map[string]interface{}{
			{"key": "document_id", "match": map[string]interface{}{"value": "doc-1"}},
		},
	}

	if err := client.DeletePointsByFilter(context.Background(), "docs", filter); err != nil {
		t.Errorf("DeletePointsByFilter failed: %v", err)
	}
}

// TestQdrantClient_ScrollPoints tests paged export
func TestQdrantClient_ScrollPoints(t *testing.T) {
	client := newTestQdrant(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("Failed to decode request body: %v", err)
		}
		if body["with_vector"] != true {
			t.Error("Expected with_vector true")
		}

		writeEnvelope(w, map[string]interface{}{
			"points": []map[string]interface{}{
				{"id": "a", "payload": map[string]interface{}{"chunk_index": 0}, "vector": []float64{0.1, 0.2}},
			},
			"next_page_offset": "b",
		})
	})

	page, err := client.ScrollPoints(context.Background(), "docs", nil, 100, nil, true)
	if err != nil {
		t.Fatalf("ScrollPoints failed: %v", err)
	}
	if len(page.Points) != 1 {
		t.Fatalf("Expected 1 point, got %d", len(page.Points))
	}
	if page.NextOffset == nil || *page.NextOffset != "b" {
		t.Errorf("Expected next offset b, got %v", page.NextOffset)
	}
	if len(page.Points[0].Vector) != 2 {
		t.Errorf("Expected stored vector with 2 dims, got %v", page.Points[0].Vector)
	}
}

// TestQdrantClient_CountPoints tests exact counting
func TestQdrantClient_CountPoints(t *testing.T) {
	client := newTestQdrant(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("Failed to decode request body: %v", err)
		}
		if body["exact"] != true {
			t.Error("Expected exact count request")
		}

		writeEnvelope(w, map[string]interface{}{"count": 7})
	})

	count, err := client.CountPoints(context.Background(), "docs", nil)
	if err != nil {
		t.Fatalf("CountPoints failed: %v", err)
	}
	if count != 7 {
		t.Errorf("Expected count 7, got %d", count)
	}
}

// TestQdrantClient_APIKeyHeader tests that the api-key header is attached
func TestQdrantClient_APIKeyHeader(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("api-key") != "secret" {
			t.Errorf("Expected api-key header, got %q", r.Header.Get("api-key"))
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewQdrantClient(QdrantConfig{BaseURL: server.URL, APIKey: "secret"})
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck failed: %v", err)
	}
}
