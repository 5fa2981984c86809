package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"zerorag/internal/models"
	"zerorag/internal/services"

	"github.com/gorilla/mux"
)

// DocumentManager is the slice of the document service the handlers need
type DocumentManager interface {
	UploadDocument(ctx context.Context, req *services.UploadDocumentRequest) (*services.UploadDocumentResponse, error)
	ValidateFile(req *models.FileValidationRequest) (*models.ValidationReport, error)
	GetProgress(ctx context.Context, documentID string) (*models.UploadProgress, error)
	GetDocument(ctx context.Context, documentID string) (*models.Document, error)
	ListDocuments(ctx context.Context, filter *models.DocumentFilter) ([]*models.Document, error)
	DeleteDocument(ctx context.Context, documentID string) (int, error)
	GetStats(ctx context.Context) (*models.DocumentStats, error)
}

// CacheInvalidator drops cached query answers after the corpus changes
type CacheInvalidator interface {
	ClearCache() int
}

// DocumentHandler handles HTTP requests for document operations
type DocumentHandler struct {
	documents      DocumentManager
	cache          CacheInvalidator
	maxUploadBytes int64
	responder
}

// NewDocumentHandler creates a new document handler. The cache invalidator
// may be nil when no query cache is wired.
func NewDocumentHandler(documents DocumentManager, cache CacheInvalidator, maxUploadBytes int64, logger *log.Logger) *DocumentHandler {
	return &DocumentHandler{
		documents:      documents,
		cache:          cache,
		maxUploadBytes: maxUploadBytes,
		responder:      responder{logger: logger},
	}
}

// UploadDocument handles document upload requests
// @Summary Upload a document
// @Description Upload a document for ingestion into the vector index
// @Tags documents
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "Document file"
// @Param metadata formData string false "Metadata JSON object"
// @Param async formData bool false "Process in the background" default(true)
// @Success 200 {object} services.UploadDocumentResponse
// @Failure 400 {object} ErrorResponse
// @Failure 413 {object} ErrorResponse
// @Failure 415 {object} ErrorResponse
// @Router /documents/upload [post]
func (h *DocumentHandler) UploadDocument(w http.ResponseWriter, r *http.Request) {
	h.logger.Printf("Upload request from %s", r.RemoteAddr)

	// Form overhead on top of the file itself gets a little slack
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes+(1<<20))
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			h.sendErrorMessage(w, http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE", "request body exceeds the upload limit")
			return
		}
		h.logger.Printf("Failed to parse form: %v", err)
		h.sendErrorMessage(w, http.StatusBadRequest, "VALIDATION_ERROR", "failed to parse multipart form data")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		h.sendErrorMessage(w, http.StatusBadRequest, "VALIDATION_ERROR", "no file uploaded: a 'file' form field is required")
		return
	}
	defer file.Close()

	var metadata map[string]interface{}
	if raw := r.FormValue("metadata"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &metadata); err != nil {
			h.sendErrorMessage(w, http.StatusBadRequest, "VALIDATION_ERROR", "metadata must be a JSON object")
			return
		}
	}

	req := &services.UploadDocumentRequest{
		Filename:    header.Filename,
		FileContent: file,
		FileSize:    header.Size,
		ContentType: header.Header.Get("Content-Type"),
		Metadata:    metadata,
		Async:       getBoolFormParam(r, "async", true),
	}

	resp, err := h.documents.UploadDocument(r.Context(), req)
	if err != nil {
		h.sendError(w, err)
		return
	}

	h.invalidateCache("upload")
	h.logger.Printf("✅ Uploaded %q as %s (status=%s)", resp.Filename, resp.DocumentID, resp.Status)
	h.sendJSON(w, http.StatusOK, resp)
}

// ValidateDocument checks a file before it is uploaded
// @Summary Validate a file for upload
// @Description Check filename, size, and content type against the ingestion limits
// @Tags documents
// @Accept json
// @Produce json
// @Param request body models.FileValidationRequest true "File descriptor"
// @Success 200 {object} models.ValidationReport
// @Failure 400 {object} ErrorResponse
// @Router /documents/validate [post]
func (h *DocumentHandler) ValidateDocument(w http.ResponseWriter, r *http.Request) {
	var req models.FileValidationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.sendErrorMessage(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid JSON body")
		return
	}

	report, err := h.documents.ValidateFile(&req)
	if err != nil {
		h.sendError(w, err)
		return
	}

	h.sendJSON(w, http.StatusOK, report)
}

// GetUploadProgress reports the state of an in-flight ingestion
// @Summary Get upload progress
// @Description Get live progress for a document being ingested
// @Tags documents
// @Produce json
// @Param id path string true "Document ID"
// @Success 200 {object} models.UploadProgress
// @Failure 404 {object} ErrorResponse
// @Router /documents/upload/{id}/progress [get]
func (h *DocumentHandler) GetUploadProgress(w http.ResponseWriter, r *http.Request) {
	documentID := mux.Vars(r)["id"]

	progress, err := h.documents.GetProgress(r.Context(), documentID)
	if err != nil {
		h.sendError(w, err)
		return
	}

	h.sendJSON(w, http.StatusOK, progress)
}

// DocumentListResponse represents a paged list of documents
type DocumentListResponse struct {
	Documents []models.DocumentDTO `json:"documents"`
	Count     int                  `json:"count"`
	Limit     int                  `json:"limit"`
	Offset    int                  `json:"offset"`
}

// ListDocuments handles requests to list documents
// @Summary List documents
// @Description Get a paged list of documents, optionally filtered by status
// @Tags documents
// @Produce json
// @Param limit query int false "Page size" default(50)
// @Param offset query int false "Page offset" default(0)
// @Param status query string false "Filter by status"
// @Success 200 {object} DocumentListResponse
// @Failure 400 {object} ErrorResponse
// @Router /documents [get]
func (h *DocumentHandler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	filter := &models.DocumentFilter{
		Limit:  getIntQueryParam(r, "limit", 50),
		Offset: getIntQueryParam(r, "offset", 0),
	}
	if status := r.URL.Query().Get("status"); status != "" {
		s := models.DocumentStatus(status)
		if !s.IsValid() {
			h.sendErrorMessage(w, http.StatusBadRequest, "VALIDATION_ERROR", "unknown document status: "+status)
			return
		}
		filter.Status = s
	}

	docs, err := h.documents.ListDocuments(r.Context(), filter)
	if err != nil {
		h.sendError(w, err)
		return
	}

	dtos := make([]models.DocumentDTO, 0, len(docs))
	for _, doc := range docs {
		dtos = append(dtos, doc.ToDTO())
	}

	h.sendJSON(w, http.StatusOK, DocumentListResponse{
		Documents: dtos,
		Count:     len(dtos),
		Limit:     filter.Limit,
		Offset:    filter.Offset,
	})
}

// GetDocument handles requests to get a specific document
// @Summary Get document
// @Description Get document metadata by ID
// @Tags documents
// @Produce json
// @Param id path string true "Document ID"
// @Success 200 {object} models.DocumentDTO
// @Failure 404 {object} ErrorResponse
// @Router /documents/{id} [get]
func (h *DocumentHandler) GetDocument(w http.ResponseWriter, r *http.Request) {
	documentID := mux.Vars(r)["id"]

	doc, err := h.documents.GetDocument(r.Context(), documentID)
	if err != nil {
		h.sendError(w, err)
		return
	}

	h.sendJSON(w, http.StatusOK, doc.ToDTO())
}

// DeleteDocument handles requests to delete a document
// @Summary Delete document
// @Description Delete a document, its chunks, and its stored file
// @Tags documents
// @Param id path string true "Document ID"
// @Success 204 "No Content"
// @Failure 404 {object} ErrorResponse
// @Router /documents/{id} [delete]
func (h *DocumentHandler) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	documentID := mux.Vars(r)["id"]
	h.logger.Printf("Delete document: %s", documentID)

	deleted, err := h.documents.DeleteDocument(r.Context(), documentID)
	if err != nil {
		h.sendError(w, err)
		return
	}

	h.invalidateCache("delete")
	h.logger.Printf("✅ Deleted document %s (%d chunks)", documentID, deleted)
	w.WriteHeader(http.StatusNoContent)
}

func (h *DocumentHandler) invalidateCache(reason string) {
	if h.cache == nil {
		return
	}
	if dropped := h.cache.ClearCache(); dropped > 0 {
		h.logger.Printf("Cleared %d cached answers after %s", dropped, reason)
	}
}
