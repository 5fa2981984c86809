package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"zerorag/internal/models"
	"zerorag/internal/repositories"
	"zerorag/internal/services"

	"github.com/gorilla/mux"
)

// VectorStoreStats is the slice of the vector store the handlers need
type VectorStoreStats interface {
	Stats(ctx context.Context) (*repositories.StoreStats, error)
	Health(ctx context.Context) services.StoreHealth
}

// AdvancedHandler serves the maintenance endpoints: streaming connection
// management, bulk cleanup, and storage statistics.
type AdvancedHandler struct {
	documents   DocumentManager
	store       VectorStoreStats
	connections *ConnectionManager
	cache       CacheInvalidator
	uploadDir   string
	responder
}

// NewAdvancedHandler creates a new maintenance handler
func NewAdvancedHandler(documents DocumentManager, store VectorStoreStats, connections *ConnectionManager, cache CacheInvalidator, uploadDir string, logger *log.Logger) *AdvancedHandler {
	return &AdvancedHandler{
		documents:   documents,
		store:       store,
		connections: connections,
		cache:       cache,
		uploadDir:   uploadDir,
		responder:   responder{logger: logger},
	}
}

// ConnectionListResponse lists the active streaming connections
type ConnectionListResponse struct {
	Connections []StreamConnection `json:"connections"`
	Count       int                `json:"count"`
}

// ListConnections returns the active streaming connections
// @Summary List streaming connections
// @Tags advanced
// @Produce json
// @Success 200 {object} ConnectionListResponse
// @Router /advanced/connections [get]
func (h *AdvancedHandler) ListConnections(w http.ResponseWriter, r *http.Request) {
	list := h.connections.List()
	h.sendJSON(w, http.StatusOK, ConnectionListResponse{
		Connections: list,
		Count:       len(list),
	})
}

// CloseConnection force-closes one streaming connection
// @Summary Close a streaming connection
// @Tags advanced
// @Produce json
// @Param id path string true "Connection ID"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} ErrorResponse
// @Router /advanced/connections/{id} [delete]
func (h *AdvancedHandler) CloseConnection(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if !h.connections.Close(id) {
		h.sendErrorMessage(w, http.StatusNotFound, "NOT_FOUND", "no active connection with ID "+id)
		return
	}

	h.sendJSON(w, http.StatusOK, map[string]interface{}{
		"closed": true,
		"id":     id,
	})
}

// CleanupRequest selects the documents to remove
type CleanupRequest struct {
	DocumentIDs       []string `json:"document_ids,omitempty"`
	OlderThanDays     *int     `json:"older_than_days,omitempty"`
	FailedUploadsOnly bool     `json:"failed_uploads_only,omitempty"`
	DryRun            bool     `json:"dry_run,omitempty"`
}

// CleanupReport summarizes what a cleanup removed or would remove
type CleanupReport struct {
	DeletedDocuments int      `json:"deleted_documents"`
	DeletedFiles     int      `json:"deleted_files"`
	FreedSpaceBytes  int64    `json:"freed_space_bytes"`
	Errors           []string `json:"errors"`
	DryRun           bool     `json:"dry_run"`
}

// Cleanup removes documents by ID, age, or failure state
// @Summary Bulk cleanup
// @Description Delete documents selected by ID list, age, or failed status. Set dry_run to preview.
// @Tags advanced
// @Accept json
// @Produce json
// @Param request body CleanupRequest true "Selection criteria"
// @Success 200 {object} CleanupReport
// @Failure 400 {object} ErrorResponse
// @Router /advanced/cleanup [post]
func (h *AdvancedHandler) Cleanup(w http.ResponseWriter, r *http.Request) {
	var req CleanupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.sendErrorMessage(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid JSON body")
		return
	}
	if len(req.DocumentIDs) == 0 && req.OlderThanDays == nil && !req.FailedUploadsOnly {
		h.sendErrorMessage(w, http.StatusBadRequest, "VALIDATION_ERROR",
			"at least one of document_ids, older_than_days, or failed_uploads_only is required")
		return
	}
	if req.OlderThanDays != nil && *req.OlderThanDays < 0 {
		h.sendErrorMessage(w, http.StatusBadRequest, "VALIDATION_ERROR", "older_than_days cannot be negative")
		return
	}

	report := CleanupReport{DryRun: req.DryRun, Errors: []string{}}
	candidates := h.selectCandidates(r.Context(), &req, &report)

	for _, doc := range candidates {
		path := filepath.Join(h.uploadDir, fmt.Sprintf("%s_%s", doc.ID, doc.Filename))
		var fileSize int64
		fileExists := false
		if info, err := os.Stat(path); err == nil {
			fileExists = true
			fileSize = info.Size()
		}

		if !req.DryRun {
			if _, err := h.documents.DeleteDocument(r.Context(), doc.ID); err != nil {
				report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", doc.ID, err))
				continue
			}
		}

		report.DeletedDocuments++
		if fileExists {
			report.DeletedFiles++
			report.FreedSpaceBytes += fileSize
		}
	}

	if !req.DryRun && report.DeletedDocuments > 0 && h.cache != nil {
		if dropped := h.cache.ClearCache(); dropped > 0 {
			h.logger.Printf("Cleared %d cached answers after cleanup", dropped)
		}
	}

	h.logger.Printf("🧹 Cleanup removed %d documents, %d files, %d bytes (dry_run=%v, errors=%d)",
		report.DeletedDocuments, report.DeletedFiles, report.FreedSpaceBytes, req.DryRun, len(report.Errors))
	h.sendJSON(w, http.StatusOK, report)
}

// selectCandidates resolves the cleanup criteria into concrete documents
func (h *AdvancedHandler) selectCandidates(ctx context.Context, req *CleanupRequest, report *CleanupReport) []*models.Document {
	if len(req.DocumentIDs) > 0 {
		candidates := make([]*models.Document, 0, len(req.DocumentIDs))
		for _, id := range req.DocumentIDs {
			doc, err := h.documents.GetDocument(ctx, id)
			if err != nil {
				report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", id, err))
				continue
			}
			candidates = append(candidates, doc)
		}
		return candidates
	}

	filter := &models.DocumentFilter{}
	if req.FailedUploadsOnly {
		filter.Status = models.DocumentStatusFailed
	}
	docs, err := h.documents.ListDocuments(ctx, filter)
	if err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("list documents: %v", err))
		return nil
	}

	if req.OlderThanDays == nil {
		return docs
	}
	cutoff := time.Now().Add(-time.Duration(*req.OlderThanDays) * 24 * time.Hour)
	aged := docs[:0]
	for _, doc := range docs {
		if doc.CreatedAt.Before(cutoff) {
			aged = append(aged, doc)
		}
	}
	return aged
}

// UploadDirStats describes the on-disk upload directory
type UploadDirStats struct {
	Path       string `json:"path"`
	FileCount  int    `json:"file_count"`
	TotalBytes int64  `json:"total_bytes"`
}

// StorageStatsResponse aggregates document, index, and disk statistics
type StorageStatsResponse struct {
	Documents  *models.DocumentStats    `json:"documents,omitempty"`
	Index      *repositories.StoreStats `json:"index,omitempty"`
	IndexState services.StoreHealth     `json:"index_state"`
	Uploads    UploadDirStats           `json:"uploads"`
	Memory     models.MemoryStats       `json:"memory"`
	Errors     []string                 `json:"errors,omitempty"`
	Timestamp  time.Time                `json:"timestamp"`
}

// StorageStats reports counts and sizes across all storage layers
// @Summary Storage statistics
// @Tags advanced
// @Produce json
// @Success 200 {object} StorageStatsResponse
// @Router /advanced/storage/stats [get]
func (h *AdvancedHandler) StorageStats(w http.ResponseWriter, r *http.Request) {
	resp := StorageStatsResponse{
		IndexState: h.store.Health(r.Context()),
		Uploads:    h.uploadDirStats(),
		Memory:     services.ReadMemoryStats(),
		Timestamp:  time.Now().UTC(),
	}

	if stats, err := h.documents.GetStats(r.Context()); err != nil {
		resp.Errors = append(resp.Errors, fmt.Sprintf("documents: %v", err))
	} else {
		resp.Documents = stats
	}

	if stats, err := h.store.Stats(r.Context()); err != nil {
		resp.Errors = append(resp.Errors, fmt.Sprintf("index: %v", err))
	} else {
		resp.Index = stats
	}

	h.sendJSON(w, http.StatusOK, resp)
}

func (h *AdvancedHandler) uploadDirStats() UploadDirStats {
	stats := UploadDirStats{Path: h.uploadDir}

	entries, err := os.ReadDir(h.uploadDir)
	if err != nil {
		return stats
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		stats.FileCount++
		stats.TotalBytes += info.Size()
	}
	return stats
}
