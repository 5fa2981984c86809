package routes

import (
	"net/http"

	"zerorag/internal/handlers"

	"github.com/gorilla/mux"
)

// Handlers collects the HTTP handlers and per-group rate limiters the
// router wires together.
type Handlers struct {
	Health    *handlers.HealthHandler
	Documents *handlers.DocumentHandler
	Query     *handlers.QueryHandler
	Advanced  *handlers.AdvancedHandler

	// QueryLimit guards the query and document groups; UploadLimit adds a
	// stricter budget on top for uploads. Either may be nil.
	QueryLimit  func(http.Handler) http.Handler
	UploadLimit func(http.Handler) http.Handler
}

// RegisterRoutes sets up all application routes
func RegisterRoutes(router *mux.Router, h *Handlers) {
	// Health and metadata endpoints stay unthrottled so probes keep working
	router.HandleFunc("/", h.Health.Home).Methods(http.MethodGet)
	router.HandleFunc("/health", h.Health.Health).Methods(http.MethodGet)
	router.HandleFunc("/health/ping", h.Health.Ping).Methods(http.MethodGet)
	router.HandleFunc("/health/services/{name}", h.Health.ServiceHealth).Methods(http.MethodGet)
	router.HandleFunc("/metrics", h.Health.Metrics).Methods(http.MethodGet)

	// Document endpoints. /upload and /validate must register before /{id}
	// so their literal segments are not captured as document IDs.
	docs := router.PathPrefix("/documents").Subrouter()
	if h.QueryLimit != nil {
		docs.Use(h.QueryLimit)
	}
	upload := http.Handler(http.HandlerFunc(h.Documents.UploadDocument))
	if h.UploadLimit != nil {
		upload = h.UploadLimit(upload)
	}
	docs.Handle("/upload", upload).Methods(http.MethodPost)
	docs.HandleFunc("/upload/{id}/progress", h.Documents.GetUploadProgress).Methods(http.MethodGet)
	docs.HandleFunc("/validate", h.Documents.ValidateDocument).Methods(http.MethodPost)
	docs.HandleFunc("", h.Documents.ListDocuments).Methods(http.MethodGet)
	docs.HandleFunc("/{id}", h.Documents.GetDocument).Methods(http.MethodGet)
	docs.HandleFunc("/{id}", h.Documents.DeleteDocument).Methods(http.MethodDelete)

	// Query endpoints
	query := router.PathPrefix("/query").Subrouter()
	if h.QueryLimit != nil {
		query.Use(h.QueryLimit)
	}
	query.HandleFunc("", h.Query.Query).Methods(http.MethodPost)
	query.HandleFunc("/stream", h.Query.QueryStream).Methods(http.MethodGet)

	// Maintenance endpoints
	advanced := router.PathPrefix("/advanced").Subrouter()
	advanced.HandleFunc("/connections", h.Advanced.ListConnections).Methods(http.MethodGet)
	advanced.HandleFunc("/connections/{id}", h.Advanced.CloseConnection).Methods(http.MethodDelete)
	advanced.HandleFunc("/cleanup", h.Advanced.Cleanup).Methods(http.MethodPost)
	advanced.HandleFunc("/storage/stats", h.Advanced.StorageStats).Methods(http.MethodGet)
}
