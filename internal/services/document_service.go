package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"zerorag/config"
	"zerorag/internal/models"
	"zerorag/internal/repositories"
)

// ChunkStore is the slice of the vector store the ingest pipeline needs.
type ChunkStore interface {
	Upsert(ctx context.Context, records []models.VectorRecord) error
	DeleteByDocument(ctx context.Context, documentID string) (int, error)
}

// DocumentService orchestrates the ingest pipeline: validate, parse, chunk,
// embed, store. It owns the document registry and progress tracking; chunks
// land in the vector store with denormalized document metadata.
type DocumentService struct {
	validator *FileValidator
	parser    *DocumentParser
	chunker   *Chunker
	embedder  Embedder
	store     ChunkStore
	docRepo   repositories.DocumentRepository
	jobRepo   repositories.JobRepository
	formats   []config.FormatSpec
	logger    *log.Logger

	uploadDir     string
	maxFileSize   int64
	embedBatch    int
	progressTTL   time.Duration
	uploadTimeout time.Duration

	mu       sync.Mutex
	inFlight map[string]context.CancelFunc
}

// NewDocumentService creates a document service wired to the given backends.
func NewDocumentService(
	embedder Embedder,
	store ChunkStore,
	docRepo repositories.DocumentRepository,
	jobRepo repositories.JobRepository,
	cfg *config.Config,
	logger *log.Logger,
) *DocumentService {
	if logger == nil {
		logger = log.Default()
	}
	embedBatch := cfg.Ollama.EmbeddingBatch
	if embedBatch <= 0 {
		embedBatch = 32
	}
	progressTTL := cfg.Worker.ProgressRetention
	if progressTTL <= 0 {
		progressTTL = 24 * time.Hour
	}
	uploadTimeout := cfg.Processing.UploadTimeout
	if uploadTimeout <= 0 {
		uploadTimeout = 300 * time.Second
	}
	formats := cfg.Processing.Formats
	if len(formats) == 0 {
		formats = config.DefaultFormats()
	}

	return &DocumentService{
		validator:   NewFileValidator(cfg.Processing, logger),
		parser:      NewDocumentParser(logger),
		chunker:     NewChunker(cfg.Processing),
		embedder:    embedder,
		store:       store,
		docRepo:     docRepo,
		jobRepo:     jobRepo,
		formats:     formats,
		logger:      logger,
		uploadDir:     cfg.Processing.UploadDir,
		maxFileSize:   cfg.Processing.MaxFileSizeBytes,
		embedBatch:    embedBatch,
		progressTTL:   progressTTL,
		uploadTimeout: uploadTimeout,
		inFlight:      make(map[string]context.CancelFunc),
	}
}

// UploadDocumentRequest represents a request to upload and process a document
type UploadDocumentRequest struct {
	Filename    string
	FileContent io.Reader
	FileSize    int64
	ContentType string
	Metadata    map[string]interface{}
	Async       bool
}

// UploadDocumentResponse represents the response from uploading a document
type UploadDocumentResponse struct {
	DocumentID       string  `json:"document_id"`
	JobID            string  `json:"job_id,omitempty"`
	Filename         string  `json:"filename"`
	Status           string  `json:"status"`
	ChunkCount       int     `json:"chunk_count"`
	ProcessingTimeMs float64 `json:"processing_time_ms,omitempty"`
	Message          string  `json:"message,omitempty"`
}

// UploadDocument runs the full upload pipeline, either inline or through the
// job queue when Async is set.
func (s *DocumentService) UploadDocument(ctx context.Context, req *UploadDocumentRequest) (*UploadDocumentResponse, error) {
	start := time.Now()

	if req == nil || req.FileContent == nil {
		return nil, models.NewValidationError("document.upload", "file content is required")
	}
	check := s.validator.Validate(req.Filename, req.FileSize, req.ContentType)
	if !check.Valid {
		return nil, check.Violation()
	}

	documentID := uuid.New().String()

	if req.Async {
		return s.uploadAsync(ctx, req, documentID)
	}

	content, err := s.readContent(req.FileContent)
	if err != nil {
		return nil, err
	}

	doc := s.newDocument(documentID, req, check.Extension)
	if err := s.docRepo.Register(ctx, doc); err != nil {
		s.logger.Printf("❌ Failed to register document %s: %v", documentID, err)
		return nil, fmt.Errorf("failed to register document: %w", err)
	}

	result, err := s.runPipeline(ctx, doc, content, nil)
	if err != nil {
		return nil, err
	}

	return &UploadDocumentResponse{
		DocumentID:       documentID,
		Filename:         req.Filename,
		Status:           string(models.DocumentStatusCompleted),
		ChunkCount:       result.ChunkCount,
		ProcessingTimeMs: durationMs(time.Since(start)),
		Message:          "Document processed successfully",
	}, nil
}

// uploadAsync persists the upload to disk and hands it to the job queue.
func (s *DocumentService) uploadAsync(ctx context.Context, req *UploadDocumentRequest, documentID string) (*UploadDocumentResponse, error) {
	if err := os.MkdirAll(s.uploadDir, 0o755); err != nil {
		return nil, models.NewInternalError("document.upload", fmt.Errorf("failed to create upload directory: %w", err))
	}

	storedPath := filepath.Join(s.uploadDir, fmt.Sprintf("%s_%s", documentID, req.Filename))
	written, err := s.saveUpload(storedPath, req.FileContent)
	if err != nil {
		return nil, err
	}

	jobID := uuid.New().String()
	now := time.Now()
	payload := &models.IngestJobPayload{
		DocumentID:  documentID,
		Filename:    req.Filename,
		StoredPath:  storedPath,
		FileSize:    written,
		ContentType: req.ContentType,
	}
	job := &models.Job{
		ID:         jobID,
		Type:       models.JobTypeDocumentIngest,
		Status:     models.JobStatusQueued,
		Priority:   1,
		Message:    "Document ingest queued",
		Payload:    payload.ToMap(),
		MaxRetries: 3,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := s.jobRepo.CreateJob(ctx, job); err != nil {
		os.Remove(storedPath)
		return nil, fmt.Errorf("failed to create job: %w", err)
	}
	if err := s.jobRepo.EnqueueJob(ctx, job); err != nil {
		_ = s.jobRepo.DeleteJob(ctx, jobID)
		os.Remove(storedPath)
		return nil, fmt.Errorf("failed to enqueue job: %w", err)
	}

	doc := s.newDocument(documentID, req, fileExtension(req.Filename))
	doc.FileSize = written
	if err := s.docRepo.Register(ctx, doc); err != nil {
		_ = s.jobRepo.DeleteJob(ctx, jobID)
		os.Remove(storedPath)
		return nil, fmt.Errorf("failed to register document: %w", err)
	}

	progress := newUploadProgress(doc, now)
	_ = s.docRepo.SaveProgress(ctx, progress, s.progressTTL)

	s.logger.Printf("📥 Queued ingest job %s for document %s (%q, %d bytes)", jobID, documentID, req.Filename, written)

	return &UploadDocumentResponse{
		DocumentID: documentID,
		JobID:      jobID,
		Filename:   req.Filename,
		Status:     string(models.DocumentStatusPending),
		Message:    "Document queued for processing",
	}, nil
}

// runPipeline drives a document through every processing stage. Progress is
// checkpointed to the registry at each milestone, onProgress additionally
// mirrors milestones to the caller when set. Chunks already written to the
// vector store are rolled back on failure.
func (s *DocumentService) runPipeline(
	parent context.Context,
	doc *models.Document,
	content []byte,
	onProgress func(status models.DocumentStatus, progress int, message string),
) (*models.IngestJobResult, error) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(parent, s.uploadTimeout)
	defer cancel()
	s.track(doc.ID, cancel)
	defer s.untrack(doc.ID)

	progress := newUploadProgress(doc, start)
	advance := func(status models.DocumentStatus, step string) {
		progress.Advance(status, step)
		_ = s.docRepo.SaveProgress(ctx, progress, s.progressTTL)
		_ = s.docRepo.UpdateStatus(ctx, doc.ID, status, "")
		if onProgress != nil {
			onProgress(status, progress.Progress, step)
		}
	}

	stored := false
	fail := func(err error) (*models.IngestJobResult, error) {
		status := models.DocumentStatusFailed
		message := err.Error()
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			message = fmt.Sprintf("processing exceeded the %s deadline", s.uploadTimeout)
		} else if models.IsCancelled(err) || ctx.Err() != nil {
			status = models.DocumentStatusCancelled
			message = "processing cancelled"
		}

		// The pipeline context may already be dead, bookkeeping must not be.
		bg := context.Background()
		progress.Fail(message)
		progress.Status = status
		_ = s.docRepo.SaveProgress(bg, progress, s.progressTTL)
		_ = s.docRepo.UpdateStatus(bg, doc.ID, status, message)
		if onProgress != nil {
			onProgress(status, progress.Progress, message)
		}
		if stored {
			if _, cleanupErr := s.store.DeleteByDocument(bg, doc.ID); cleanupErr != nil {
				s.logger.Printf("⚠️ [%s] Rollback of stored chunks failed: %v", doc.ID, cleanupErr)
			}
		}
		s.logger.Printf("❌ [%s] Processing failed after %.2fms: %v", doc.ID, durationMs(time.Since(start)), err)
		return nil, err
	}

	s.logger.Printf("[%s] Step 1/5: Validating content (%d bytes)", doc.ID, len(content))
	advance(models.DocumentStatusValidating, "Validating file content")
	if len(content) == 0 {
		return fail(models.NewValidationError("pipeline.validate", "file is empty").WithCode("EMPTY_DOCUMENT"))
	}
	if s.maxFileSize > 0 && int64(len(content)) > s.maxFileSize {
		return fail(models.NewValidationError("pipeline.validate",
			fmt.Sprintf("file size %d exceeds limit of %d bytes", len(content), s.maxFileSize)).
			WithCode("FILE_TOO_LARGE"))
	}

	s.logger.Printf("[%s] Step 2/5: Parsing %s content", doc.ID, doc.FileType)
	advance(models.DocumentStatusParsing, "Parsing document")
	parsed, err := s.parser.Parse(content, doc.FileType)
	if err != nil {
		return fail(err)
	}
	if existing, lookupErr := s.docRepo.FindByContentHash(ctx, parsed.ContentHash); lookupErr == nil && existing != nil && existing.ID != doc.ID {
		return fail(models.NewConflictError("pipeline.parse",
			fmt.Sprintf("identical content already ingested as document %s", existing.ID)).
			WithCode("DUPLICATE_CONTENT"))
	}
	s.applyParseResult(ctx, doc, parsed)

	s.logger.Printf("[%s] Step 3/5: Chunking %d chars", doc.ID, parsed.Stats.CharCount)
	advance(models.DocumentStatusChunking, "Splitting into chunks")
	chunks, err := s.chunker.ChunkDocument(doc.ID, parsed.Text, s.chunkMetadata(doc))
	if err != nil {
		return fail(err)
	}
	s.logger.Printf("[%s] Created %d chunks", doc.ID, len(chunks))

	s.logger.Printf("[%s] Step 4/5: Embedding %d chunks", doc.ID, len(chunks))
	advance(models.DocumentStatusEmbedding, "Generating embeddings")
	vectors, err := s.embedChunks(ctx, doc.ID, chunks)
	if err != nil {
		return fail(err)
	}

	s.logger.Printf("[%s] Step 5/5: Storing %d vectors", doc.ID, len(vectors))
	advance(models.DocumentStatusStoring, "Storing in vector database")
	stored = true
	if err := s.store.Upsert(ctx, buildVectorRecords(chunks, vectors)); err != nil {
		return fail(err)
	}

	processedAt := time.Now()
	elapsed := durationMs(processedAt.Sub(start))
	_ = s.docRepo.Update(ctx, doc.ID, map[string]interface{}{
		"status":             models.DocumentStatusCompleted,
		"chunk_count":        len(chunks),
		"processed_at":       processedAt,
		"processing_time_ms": elapsed,
	})
	progress.Advance(models.DocumentStatusCompleted, "Completed")
	_ = s.docRepo.SaveProgress(ctx, progress, s.progressTTL)
	if onProgress != nil {
		onProgress(models.DocumentStatusCompleted, progress.Progress, "Completed")
	}

	doc.Status = models.DocumentStatusCompleted
	doc.ChunkCount = len(chunks)
	doc.ProcessedAt = &processedAt
	doc.ProcessingTimeMs = elapsed

	s.logger.Printf("✅ [%s] Processed %q: %d chunks in %.2fms", doc.ID, doc.Filename, len(chunks), elapsed)

	return &models.IngestJobResult{
		DocumentID:       doc.ID,
		ChunkCount:       len(chunks),
		EmbeddedCount:    len(vectors),
		ProcessingTimeMs: elapsed,
		Success:          true,
	}, nil
}

// applyParseResult copies extracted statistics onto the document and
// checkpoints them, so a later pipeline failure still leaves useful metadata.
func (s *DocumentService) applyParseResult(ctx context.Context, doc *models.Document, parsed *ParseResult) {
	doc.Encoding = parsed.Encoding
	doc.WordCount = parsed.Stats.WordCount
	doc.CharCount = parsed.Stats.CharCount
	doc.SentenceCount = parsed.Stats.SentenceCount
	doc.ParagraphCount = parsed.Stats.ParagraphCount
	doc.LineCount = parsed.Stats.LineCount
	doc.ContentHash = parsed.ContentHash
	doc.ContentType = parsed.ContentType
	doc.HasTables = parsed.HasTables
	doc.HasImages = parsed.HasImages
	doc.HasLinks = parsed.HasLinks

	if len(parsed.Metadata) > 0 {
		if doc.Metadata == nil {
			doc.Metadata = make(map[string]interface{}, len(parsed.Metadata))
		}
		for k, v := range parsed.Metadata {
			doc.Metadata[k] = v
		}
	}

	_ = s.docRepo.Update(ctx, doc.ID, map[string]interface{}{
		"encoding":        doc.Encoding,
		"word_count":      doc.WordCount,
		"char_count":      doc.CharCount,
		"sentence_count":  doc.SentenceCount,
		"paragraph_count": doc.ParagraphCount,
		"line_count":      doc.LineCount,
		"content_hash":    doc.ContentHash,
		"content_type":    doc.ContentType,
		"has_tables":      doc.HasTables,
		"has_images":      doc.HasImages,
		"has_links":       doc.HasLinks,
		"metadata":        doc.Metadata,
	})
}

// chunkMetadata builds the base metadata every chunk of a document carries.
func (s *DocumentService) chunkMetadata(doc *models.Document) map[string]interface{} {
	return map[string]interface{}{
		"filename":  doc.Filename,
		"file_type": doc.FileType,
	}
}

// embedChunks generates embeddings in configured batch sizes.
func (s *DocumentService) embedChunks(ctx context.Context, documentID string, chunks []models.Chunk) ([][]float32, error) {
	vectors := make([][]float32, 0, len(chunks))
	for i := 0; i < len(chunks); i += s.embedBatch {
		end := min(i+s.embedBatch, len(chunks))
		texts := make([]string, 0, end-i)
		for _, chunk := range chunks[i:end] {
			texts = append(texts, chunk.Text)
		}

		batch, err := s.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("embedding batch %d-%d failed: %w", i, end, err)
		}
		if len(batch) != len(texts) {
			return nil, models.NewInternalError("pipeline.embed",
				fmt.Errorf("embedding count mismatch: got %d, expected %d", len(batch), len(texts)))
		}
		vectors = append(vectors, batch...)

		if end < len(chunks) {
			s.logger.Printf("[%s] Embedded %d/%d chunks", documentID, end, len(chunks))
		}
	}
	return vectors, nil
}

// buildVectorRecords pairs chunks with embeddings. The payload carries a
// denormalized copy of document fields so search hits render without a
// registry lookup.
func buildVectorRecords(chunks []models.Chunk, vectors [][]float32) []models.VectorRecord {
	records := make([]models.VectorRecord, len(chunks))
	for i, chunk := range chunks {
		payload := map[string]interface{}{
			"document_id": chunk.DocumentID,
			"chunk_index": chunk.ChunkIndex,
			"text":        chunk.Text,
			"start_char":  chunk.StartChar,
			"end_char":    chunk.EndChar,
			"word_count":  chunk.WordCount,
			"created_at":  chunk.CreatedAt.Format(time.RFC3339),
		}
		for k, v := range chunk.Metadata {
			if _, exists := payload[k]; !exists {
				payload[k] = v
			}
		}
		records[i] = models.VectorRecord{
			ID:      chunk.ID,
			Vector:  vectors[i],
			Payload: payload,
		}
	}
	return records
}

// DeleteDocument removes a document's chunks and registry record. In-flight
// processing is cancelled first. Returns the number of chunks removed.
func (s *DocumentService) DeleteDocument(ctx context.Context, documentID string) (int, error) {
	s.logger.Printf("🗑️ Deleting document: %s", documentID)

	if s.CancelProcessing(documentID) {
		s.logger.Printf("[%s] Cancelled in-flight processing before delete", documentID)
	}

	doc, err := s.docRepo.Get(ctx, documentID)
	if err != nil {
		return 0, err
	}

	deleted, err := s.store.DeleteByDocument(ctx, documentID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete chunks: %w", err)
	}

	if err := s.docRepo.Delete(ctx, documentID); err != nil {
		return deleted, fmt.Errorf("failed to delete document record: %w", err)
	}
	_ = s.docRepo.DeleteProgress(ctx, documentID)
	_ = os.Remove(filepath.Join(s.uploadDir, fmt.Sprintf("%s_%s", documentID, doc.Filename)))

	s.logger.Printf("✅ Deleted document %q: %d chunks removed", doc.Filename, deleted)
	return deleted, nil
}

// CancelProcessing aborts an in-flight ingest. Returns false when the
// document is not currently processing.
func (s *DocumentService) CancelProcessing(documentID string) bool {
	s.mu.Lock()
	cancel, ok := s.inFlight[documentID]
	s.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

// GetDocument retrieves document metadata from the registry.
func (s *DocumentService) GetDocument(ctx context.Context, documentID string) (*models.Document, error) {
	return s.docRepo.Get(ctx, documentID)
}

// ListDocuments lists registry entries matching the filter.
func (s *DocumentService) ListDocuments(ctx context.Context, filter *models.DocumentFilter) ([]*models.Document, error) {
	return s.docRepo.List(ctx, filter)
}

// GetProgress returns the live pipeline progress for a document.
func (s *DocumentService) GetProgress(ctx context.Context, documentID string) (*models.UploadProgress, error) {
	return s.docRepo.GetProgress(ctx, documentID)
}

// GetStats returns aggregate statistics over the registry.
func (s *DocumentService) GetStats(ctx context.Context) (*models.DocumentStats, error) {
	return s.docRepo.GetStats(ctx)
}

// ValidateFile answers whether a file would be accepted, without uploading.
func (s *DocumentService) ValidateFile(req *models.FileValidationRequest) (*models.ValidationReport, error) {
	if err := req.Validate(); err != nil {
		return nil, models.NewValidationError("document.validate", err.Error())
	}

	check := s.validator.Validate(req.Filename, req.FileSize, req.ContentType)
	report := &models.ValidationReport{
		IsValid:           check.Valid,
		Errors:            check.Errors,
		Warnings:          check.Warnings,
		FileExtension:     check.Extension,
		ContentType:       req.ContentType,
		EstimatedTimeMs:   int64(check.EstimatedSeconds * 1000),
		SupportedFeatures: s.supportedFeatures(check.Extension),
		CheckedAt:         time.Now(),
	}
	if report.Errors == nil {
		report.Errors = []string{}
	}
	if report.Warnings == nil {
		report.Warnings = []string{}
	}
	return report, nil
}

// ProcessJob runs a queued ingest job. Called by the ingest worker. The
// stored upload is kept on failure so a retry can re-read it.
func (s *DocumentService) ProcessJob(ctx context.Context, job *models.Job) error {
	if job.Type != models.JobTypeDocumentIngest {
		return models.NewValidationError("document.process_job", fmt.Sprintf("unsupported job type %q", job.Type))
	}
	payload, err := models.IngestJobPayloadFromMap(job.Payload)
	if err != nil {
		_ = s.jobRepo.UpdateJobStatus(ctx, job.ID, models.JobStatusFailed, 0, err.Error())
		return models.NewValidationError("document.process_job", err.Error())
	}

	s.logger.Printf("🔄 Processing ingest job %s for document %s", job.ID, payload.DocumentID)
	_ = s.jobRepo.UpdateJobStatus(ctx, job.ID, models.JobStatusProcessing, 0, "Processing document")

	content, err := os.ReadFile(payload.StoredPath)
	if err != nil {
		readErr := fmt.Errorf("failed to read stored upload: %w", err)
		_ = s.jobRepo.UpdateJobStatus(ctx, job.ID, models.JobStatusFailed, 0, readErr.Error())
		_ = s.docRepo.UpdateStatus(ctx, payload.DocumentID, models.DocumentStatusFailed, readErr.Error())
		return readErr
	}

	doc, err := s.docRepo.Get(ctx, payload.DocumentID)
	if err != nil {
		// Registry record lost between enqueue and dequeue, re-register.
		doc = s.newDocument(payload.DocumentID, &UploadDocumentRequest{
			Filename:    payload.Filename,
			FileSize:    payload.FileSize,
			ContentType: payload.ContentType,
		}, fileExtension(payload.Filename))
		if regErr := s.docRepo.Register(ctx, doc); regErr != nil {
			_ = s.jobRepo.UpdateJobStatus(ctx, job.ID, models.JobStatusFailed, 0, regErr.Error())
			return regErr
		}
	}

	result, err := s.runPipeline(ctx, doc, content, func(status models.DocumentStatus, progress int, message string) {
		_ = s.jobRepo.SetProgress(ctx, job.ID, progress, message)
	})
	if err != nil {
		_ = s.jobRepo.UpdateJobStatus(ctx, job.ID, models.JobStatusFailed, 0, err.Error())
		return err
	}

	_ = s.jobRepo.UpdateJobStatus(ctx, job.ID, models.JobStatusCompleted, 100, "Document processed successfully")
	_ = s.jobRepo.UpdateJobResult(ctx, job.ID, result.ToMap())
	if err := os.Remove(payload.StoredPath); err != nil && !os.IsNotExist(err) {
		s.logger.Printf("⚠️ Could not remove stored upload %s: %v", payload.StoredPath, err)
	}
	return nil
}

// ==================== Helpers ====================

func (s *DocumentService) readContent(r io.Reader) ([]byte, error) {
	limit := s.maxFileSize
	if limit <= 0 {
		limit = 1 << 30
	}
	content, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, models.NewInternalError("document.upload", fmt.Errorf("failed to read file content: %w", err))
	}
	if int64(len(content)) > limit {
		return nil, models.NewValidationError("document.upload",
			fmt.Sprintf("file exceeds limit of %d bytes", limit)).WithCode("FILE_TOO_LARGE")
	}
	return content, nil
}

func (s *DocumentService) saveUpload(path string, r io.Reader) (int64, error) {
	out, err := os.Create(path)
	if err != nil {
		return 0, models.NewInternalError("document.upload", fmt.Errorf("failed to store upload: %w", err))
	}
	defer out.Close()

	limit := s.maxFileSize
	if limit <= 0 {
		limit = 1 << 30
	}
	written, err := io.Copy(out, io.LimitReader(r, limit+1))
	if err != nil {
		os.Remove(path)
		return 0, models.NewInternalError("document.upload", fmt.Errorf("failed to store upload: %w", err))
	}
	if written > limit {
		os.Remove(path)
		return 0, models.NewValidationError("document.upload",
			fmt.Sprintf("file exceeds limit of %d bytes", limit)).WithCode("FILE_TOO_LARGE")
	}
	return written, nil
}

func (s *DocumentService) newDocument(documentID string, req *UploadDocumentRequest, extension string) *models.Document {
	now := time.Now()
	var metadata map[string]interface{}
	if len(req.Metadata) > 0 {
		metadata = make(map[string]interface{}, len(req.Metadata))
		for k, v := range req.Metadata {
			metadata[k] = v
		}
	}
	return &models.Document{
		ID:           documentID,
		Filename:     req.Filename,
		FileSize:     req.FileSize,
		FileType:     extension,
		Status:       models.DocumentStatusPending,
		IsValid:      true,
		CreatedAt:    now,
		LastModified: now,
		Metadata:     metadata,
	}
}

func (s *DocumentService) track(documentID string, cancel context.CancelFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inFlight[documentID] = cancel
}

func (s *DocumentService) untrack(documentID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, documentID)
}

func newUploadProgress(doc *models.Document, start time.Time) *models.UploadProgress {
	return &models.UploadProgress{
		DocumentID:  doc.ID,
		Filename:    doc.Filename,
		FileSize:    doc.FileSize,
		Status:      models.DocumentStatusPending,
		Progress:    models.DocumentStatusPending.ProgressPercent(),
		CurrentStep: "Queued for processing",
		StartedAt:   start,
		LastUpdate:  start,
	}
}

func fileExtension(filename string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
}

func (s *DocumentService) supportedFeatures(extension string) []string {
	spec, ok := config.FormatFor(s.formats, extension)
	if !ok {
		return []string{}
	}
	features := make([]string, len(spec.Features))
	copy(features, spec.Features)
	return features
}
