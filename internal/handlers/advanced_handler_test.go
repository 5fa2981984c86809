package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"zerorag/internal/models"
	"zerorag/internal/repositories"
	"zerorag/internal/services"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// stubStoreStats feeds canned vector store statistics
type stubStoreStats struct {
	stats    *repositories.StoreStats
	statsErr error
	health   services.StoreHealth
}

func (s *stubStoreStats) Stats(ctx context.Context) (*repositories.StoreStats, error) {
	return s.stats, s.statsErr
}

func (s *stubStoreStats) Health(ctx context.Context) services.StoreHealth {
	return s.health
}

func newTestAdvancedHandler(docs DocumentManager, store VectorStoreStats, uploadDir string) (*AdvancedHandler, *ConnectionManager, *stubCache) {
	connections := NewConnectionManager(time.Minute, testLogger())
	cache := &stubCache{}
	if store == nil {
		store = &stubStoreStats{health: services.StoreHealth{Score: 100, BackendUp: true}}
	}
	return NewAdvancedHandler(docs, store, connections, cache, uploadDir, testLogger()), connections, cache
}

func TestAdvancedHandler_ListConnections(t *testing.T) {
	handler, connections, _ := newTestAdvancedHandler(new(MockDocumentManager), nil, t.TempDir())
	connections.Register("10.0.0.1:1", "hello", func() {})

	rec := httptest.NewRecorder()
	handler.ListConnections(rec, httptest.NewRequest(http.MethodGet, "/advanced/connections", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp ConnectionListResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, 1, resp.Count)
	assert.Equal(t, "hello", resp.Connections[0].Query)
}

func TestAdvancedHandler_CloseConnection(t *testing.T) {
	handler, connections, _ := newTestAdvancedHandler(new(MockDocumentManager), nil, t.TempDir())

	cancelled := false
	id := connections.Register("10.0.0.1:1", "q", func() { cancelled = true })

	req := mux.SetURLVars(httptest.NewRequest(http.MethodDelete, "/advanced/connections/"+id, nil),
		map[string]string{"id": id})
	rec := httptest.NewRecorder()

	handler.CloseConnection(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, cancelled)
	assert.Equal(t, 0, connections.Count())
}

func TestAdvancedHandler_CloseConnection_Unknown(t *testing.T) {
	handler, _, _ := newTestAdvancedHandler(new(MockDocumentManager), nil, t.TempDir())

	req := mux.SetURLVars(httptest.NewRequest(http.MethodDelete, "/advanced/connections/nope", nil),
		map[string]string{"id": "nope"})
	rec := httptest.NewRecorder()

	handler.CloseConnection(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", decodeError(t, rec).Error)
}

func TestAdvancedHandler_Cleanup_RequiresCriteria(t *testing.T) {
	handler, _, _ := newTestAdvancedHandler(new(MockDocumentManager), nil, t.TempDir())

	req := httptest.NewRequest(http.MethodPost, "/advanced/cleanup", strings.NewReader(`{"dry_run":true}`))
	rec := httptest.NewRecorder()

	handler.Cleanup(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_ERROR", decodeError(t, rec).Error)
}

func TestAdvancedHandler_Cleanup_ByIDs(t *testing.T) {
	docs := new(MockDocumentManager)
	uploadDir := t.TempDir()
	handler, _, cache := newTestAdvancedHandler(docs, nil, uploadDir)

	content := []byte("stored upload bytes")
	require.NoError(t, os.WriteFile(filepath.Join(uploadDir, "doc-1_a.txt"), content, 0o644))

	docs.On("GetDocument", mock.Anything, "doc-1").Return(&models.Document{ID: "doc-1", Filename: "a.txt"}, nil)
	docs.On("GetDocument", mock.Anything, "doc-gone").Return(nil,
		models.NewNotFoundError("document.get", "document not found: doc-gone"))
	docs.On("DeleteDocument", mock.Anything, "doc-1").Return(3, nil)

	payload := `{"document_ids":["doc-1","doc-gone"]}`
	req := httptest.NewRequest(http.MethodPost, "/advanced/cleanup", strings.NewReader(payload))
	rec := httptest.NewRecorder()

	handler.Cleanup(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var report CleanupReport
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&report))
	assert.Equal(t, 1, report.DeletedDocuments)
	assert.Equal(t, 1, report.DeletedFiles)
	assert.Equal(t, int64(len(content)), report.FreedSpaceBytes)
	require.Len(t, report.Errors, 1)
	assert.Contains(t, report.Errors[0], "doc-gone")
	assert.False(t, report.DryRun)
	assert.Equal(t, 1, cache.calls)
	docs.AssertExpectations(t)
}

func TestAdvancedHandler_Cleanup_DryRun(t *testing.T) {
	docs := new(MockDocumentManager)
	uploadDir := t.TempDir()
	handler, _, cache := newTestAdvancedHandler(docs, nil, uploadDir)

	path := filepath.Join(uploadDir, "doc-1_a.txt")
	require.NoError(t, os.WriteFile(path, []byte("bytes"), 0o644))

	docs.On("GetDocument", mock.Anything, "doc-1").Return(&models.Document{ID: "doc-1", Filename: "a.txt"}, nil)

	payload := `{"document_ids":["doc-1"],"dry_run":true}`
	req := httptest.NewRequest(http.MethodPost, "/advanced/cleanup", strings.NewReader(payload))
	rec := httptest.NewRecorder()

	handler.Cleanup(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var report CleanupReport
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&report))
	assert.True(t, report.DryRun)
	assert.Equal(t, 1, report.DeletedDocuments)
	assert.Equal(t, 1, report.DeletedFiles)

	docs.AssertNotCalled(t, "DeleteDocument", mock.Anything, mock.Anything)
	assert.FileExists(t, path)
	// A preview never touches the query cache
	assert.Equal(t, 0, cache.calls)
}

func TestAdvancedHandler_Cleanup_FailedUploadsOnly(t *testing.T) {
	docs := new(MockDocumentManager)
	handler, _, _ := newTestAdvancedHandler(docs, nil, t.TempDir())

	failed := []*models.Document{
		{ID: "doc-1", Filename: "a.txt", Status: models.DocumentStatusFailed, CreatedAt: time.Now()},
		{ID: "doc-2", Filename: "b.txt", Status: models.DocumentStatusFailed, CreatedAt: time.Now()},
	}
	docs.On("ListDocuments", mock.Anything, mock.MatchedBy(func(f *models.DocumentFilter) bool {
		return f.Status == models.DocumentStatusFailed
	})).Return(failed, nil)
	docs.On("DeleteDocument", mock.Anything, "doc-1").Return(0, nil)
	docs.On("DeleteDocument", mock.Anything, "doc-2").Return(0, nil)

	payload := `{"failed_uploads_only":true}`
	req := httptest.NewRequest(http.MethodPost, "/advanced/cleanup", strings.NewReader(payload))
	rec := httptest.NewRecorder()

	handler.Cleanup(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var report CleanupReport
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&report))
	assert.Equal(t, 2, report.DeletedDocuments)
	docs.AssertExpectations(t)
}

func TestAdvancedHandler_Cleanup_OlderThanDays(t *testing.T) {
	docs := new(MockDocumentManager)
	handler, _, _ := newTestAdvancedHandler(docs, nil, t.TempDir())

	all := []*models.Document{
		{ID: "doc-old", Filename: "old.txt", CreatedAt: time.Now().Add(-72 * time.Hour)},
		{ID: "doc-new", Filename: "new.txt", CreatedAt: time.Now()},
	}
	docs.On("ListDocuments", mock.Anything, mock.Anything).Return(all, nil)
	docs.On("DeleteDocument", mock.Anything, "doc-old").Return(1, nil)

	payload := `{"older_than_days":2}`
	req := httptest.NewRequest(http.MethodPost, "/advanced/cleanup", strings.NewReader(payload))
	rec := httptest.NewRecorder()

	handler.Cleanup(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var report CleanupReport
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&report))
	assert.Equal(t, 1, report.DeletedDocuments)
	docs.AssertNotCalled(t, "DeleteDocument", mock.Anything, "doc-new")
}

func TestAdvancedHandler_StorageStats(t *testing.T) {
	docs := new(MockDocumentManager)
	uploadDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(uploadDir, "doc-1_a.txt"), []byte("12345"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(uploadDir, "doc-2_b.txt"), []byte("123"), 0o644))

	store := &stubStoreStats{
		stats:  &repositories.StoreStats{CollectionName: "zero_rag_documents", PointsCount: 120, VectorSize: 384, Status: "green"},
		health: services.StoreHealth{Score: 100, BackendUp: true},
	}
	handler, _, _ := newTestAdvancedHandler(docs, store, uploadDir)

	docs.On("GetStats", mock.Anything).Return(&models.DocumentStats{
		TotalDocuments: 4,
		TotalChunks:    120,
		TotalBytes:     8192,
	}, nil)

	rec := httptest.NewRecorder()
	handler.StorageStats(rec, httptest.NewRequest(http.MethodGet, "/advanced/storage/stats", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp StorageStatsResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.NotNil(t, resp.Documents)
	assert.Equal(t, 4, resp.Documents.TotalDocuments)
	require.NotNil(t, resp.Index)
	assert.Equal(t, 120, resp.Index.PointsCount)
	assert.Equal(t, 2, resp.Uploads.FileCount)
	assert.Equal(t, int64(8), resp.Uploads.TotalBytes)
	assert.True(t, resp.IndexState.BackendUp)
	assert.Empty(t, resp.Errors)
}

func TestAdvancedHandler_StorageStats_PartialFailure(t *testing.T) {
	docs := new(MockDocumentManager)
	store := &stubStoreStats{
		statsErr: models.NewTransientError("store.stats", context.DeadlineExceeded),
		health:   services.StoreHealth{Score: 40, Degraded: true},
	}
	handler, _, _ := newTestAdvancedHandler(docs, store, t.TempDir())

	docs.On("GetStats", mock.Anything).Return(&models.DocumentStats{TotalDocuments: 1}, nil)

	rec := httptest.NewRecorder()
	handler.StorageStats(rec, httptest.NewRequest(http.MethodGet, "/advanced/storage/stats", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp StorageStatsResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Nil(t, resp.Index)
	require.Len(t, resp.Errors, 1)
	assert.Contains(t, resp.Errors[0], "index")
	assert.True(t, resp.IndexState.Degraded)
}
