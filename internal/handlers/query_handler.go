package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"

	"zerorag/internal/models"
)

// QueryAnswerer is the slice of the RAG service the query handlers need
type QueryAnswerer interface {
	Answer(ctx context.Context, query *models.RAGQuery) (*models.RAGResponse, error)
	Stream(ctx context.Context, query *models.RAGQuery) (<-chan models.StreamEvent, error)
}

// QueryHandler handles synchronous and streaming RAG queries
type QueryHandler struct {
	rag              QueryAnswerer
	connections      *ConnectionManager
	streamingEnabled bool
	responder
}

// NewQueryHandler creates a new query handler
func NewQueryHandler(rag QueryAnswerer, connections *ConnectionManager, streamingEnabled bool, logger *log.Logger) *QueryHandler {
	return &QueryHandler{
		rag:              rag,
		connections:      connections,
		streamingEnabled: streamingEnabled,
		responder:        responder{logger: logger},
	}
}

// Query answers a question against the indexed documents
// @Summary Answer a query
// @Description Run the full retrieval and generation pipeline for a query
// @Tags query
// @Accept json
// @Produce json
// @Param request body models.RAGQuery true "Query"
// @Success 200 {object} models.RAGResponse
// @Failure 400 {object} ErrorResponse
// @Failure 503 {object} ErrorResponse
// @Router /query [post]
func (h *QueryHandler) Query(w http.ResponseWriter, r *http.Request) {
	// Sources are included unless the caller opts out explicitly
	query := models.RAGQuery{IncludeSources: true}
	if err := json.NewDecoder(r.Body).Decode(&query); err != nil {
		h.sendErrorMessage(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid JSON body")
		return
	}

	response, err := h.rag.Answer(r.Context(), &query)
	if err != nil {
		h.sendError(w, err)
		return
	}

	h.sendJSON(w, http.StatusOK, response)
}

// QueryStream answers a query over Server-Sent Events
// @Summary Stream a query answer
// @Description Stream the answer as SSE events: content, sources, progress, error, end
// @Tags query
// @Produce text/event-stream
// @Param query query string true "Query text"
// @Param top_k query int false "Number of chunks to retrieve"
// @Param score_threshold query number false "Minimum similarity score"
// @Param max_tokens query int false "Generation token budget"
// @Param temperature query number false "Generation temperature"
// @Param max_context_length query int false "Context budget in characters"
// @Param document_ids query string false "Comma-separated document ID filter"
// @Param include_sources query bool false "Emit a sources event" default(true)
// @Success 200 {string} string "SSE stream"
// @Failure 400 {object} ErrorResponse
// @Failure 503 {object} ErrorResponse
// @Router /query/stream [get]
func (h *QueryHandler) QueryStream(w http.ResponseWriter, r *http.Request) {
	if !h.streamingEnabled {
		h.sendErrorMessage(w, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "streaming is disabled")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		h.sendErrorMessage(w, http.StatusInternalServerError, "INTERNAL_ERROR", "streaming unsupported by this connection")
		return
	}

	query := parseStreamQuery(r)
	if query.Query == "" {
		h.sendErrorMessage(w, http.StatusBadRequest, "VALIDATION_ERROR", "a 'query' parameter is required")
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	events, err := h.rag.Stream(ctx, query)
	if err != nil {
		h.sendError(w, err)
		return
	}

	connID := h.connections.Register(r.RemoteAddr, query.Query, cancel)
	defer h.connections.Unregister(connID)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Connection-ID", connID)
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for event := range events {
		payload, err := json.Marshal(event)
		if err != nil {
			h.logger.Printf("Failed to encode stream event: %v", err)
			continue
		}
		fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, payload)
		flusher.Flush()
		h.connections.Touch(connID)
	}

	h.logger.Printf("Stream %s finished for %q", connID, models.Preview(query.Query, 60))
}

// parseStreamQuery builds a RAGQuery from URL parameters
func parseStreamQuery(r *http.Request) *models.RAGQuery {
	q := r.URL.Query()
	query := &models.RAGQuery{
		Query:            strings.TrimSpace(q.Get("query")),
		TopK:             getIntPtrQueryParam(r, "top_k"),
		ScoreThreshold:   getFloatQueryParam(r, "score_threshold"),
		MaxContextLength: getIntQueryParam(r, "max_context_length", 0),
		MaxTokens:        getIntQueryParam(r, "max_tokens", 0),
		Temperature:      getFloatQueryParam(r, "temperature"),
		IncludeSources:   getBoolQueryParam(r, "include_sources", true),
		Stream:           true,
	}
	if ids := q.Get("document_ids"); ids != "" {
		for _, id := range strings.Split(ids, ",") {
			if id = strings.TrimSpace(id); id != "" {
				query.DocumentIDs = append(query.DocumentIDs, id)
			}
		}
	}
	if format := q.Get("response_format"); format != "" {
		query.ResponseFormat = models.ResponseFormat(format)
	}
	return query
}
