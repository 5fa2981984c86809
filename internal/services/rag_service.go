package services

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"zerorag/config"
	"zerorag/internal/models"
)

// ============================================================================
// RAG SERVICE
// ============================================================================

// Retriever finds the stored chunks most similar to an embedded query.
// *VectorStoreService satisfies it.
type Retriever interface {
	Search(ctx context.Context, vector []float32, topK int, scoreThreshold *float64, filter *models.SearchFilter) ([]models.SearchResult, error)
}

const (
	// Minimum room left in the context budget before a final candidate is
	// worth truncating instead of dropping.
	contextTruncateMin = 200

	// Characters of chunk text carried on each source entry.
	sourcePreviewChars = 200

	// Streamed events buffered between the pipeline and the HTTP writer.
	streamEventBuffer = 32

	// How long a cancelled stream waits for the consumer to take the
	// terminal end frame before giving up on it.
	streamEndGrace = time.Second

	// Response latencies kept for the rolling percentile window.
	latencyWindowSize = 256
)

// RAGService orchestrates the full query path: classify, embed, retrieve,
// assemble context, generate and validate. Successful answers are cached
// with a TTL so repeated questions skip the expensive stages.
type RAGService struct {
	embedder  Embedder
	retriever Retriever
	generator Generator
	engine    *PromptEngine
	cache     *queryCache
	metrics   *ragMetrics
	logger    *log.Logger

	defaultTopK      int
	defaultThreshold float64
	defaultContext   int
	queryTimeout     time.Duration
}

// NewRAGService wires the pipeline together from already-constructed stage
// services. Retrieval and generation defaults come from the RAG config block.
func NewRAGService(embedder Embedder, retriever Retriever, generator Generator, cfg *config.Config, logger *log.Logger) *RAGService {
	service := &RAGService{
		embedder:         embedder,
		retriever:        retriever,
		generator:        generator,
		engine:           NewPromptEngine(),
		cache:            newQueryCache(cfg.RAG.QueryCacheTTL, cfg.RAG.QueryCacheSize),
		metrics:          newRAGMetrics(),
		logger:           logger,
		defaultTopK:      cfg.RAG.TopK,
		defaultThreshold: cfg.RAG.SimilarityThreshold,
		defaultContext:   cfg.RAG.MaxContextLength,
		queryTimeout:     cfg.RAG.QueryTimeout,
	}
	logger.Printf("✅ RAG service initialized (model: %s, top_k: %d, threshold: %.2f, context: %d chars)",
		generator.ModelName(), service.defaultTopK, service.defaultThreshold, service.defaultContext)
	return service
}

// Close stops the cache janitor. The stage services are owned by the caller
// and closed separately.
func (s *RAGService) Close() error {
	s.cache.Close()
	return nil
}

// ============================================================================
// QUERY ANSWERING
// ============================================================================

// Answer runs the complete RAG pipeline for a single query and returns the
// generated response. Repeated queries with identical parameters are served
// from the result cache and marked FromCache.
func (s *RAGService) Answer(ctx context.Context, query *models.RAGQuery) (*models.RAGResponse, error) {
	started := time.Now()
	if err := query.Validate(); err != nil {
		return nil, models.NewValidationError("rag.answer", err.Error())
	}
	q := s.withDefaults(query)

	if s.queryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.queryTimeout)
		defer cancel()
	}

	key := s.cacheKey(q)
	if cached, ok := s.cache.Get(key); ok {
		cached.FromCache = true
		cached.TotalTimeMs = durationMs(time.Since(started))
		s.logger.Printf("✅ [%s] Cache hit for query %q (%.2fms)", q.QueryType, models.Preview(q.Query, 60), cached.TotalTimeMs)
		return cached, nil
	}

	response, err := s.process(ctx, q, started)
	if err != nil {
		s.metrics.recordFailure(q.QueryType, durationMs(time.Since(started)))
		return nil, err
	}

	s.metrics.recordSuccess(response)
	if response.RetrievedCount > 0 {
		s.cache.Set(key, response)
	}
	return response, nil
}

// process executes the pipeline stages for a cache miss.
func (s *RAGService) process(ctx context.Context, q *models.RAGQuery, started time.Time) (*models.RAGResponse, error) {
	s.logger.Printf("🔄 [%s] RAG query: %q", q.QueryType, models.Preview(q.Query, 80))

	results, embedMs, searchMs, err := s.retrieve(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("retrieve documents: %w", err)
	}
	if len(results) == 0 {
		s.logger.Printf("⚠️ [%s] No documents above threshold %.2f, answering from general knowledge", q.QueryType, *q.ScoreThreshold)
	}

	contextBlock, sources := s.assembleContext(results, q.MaxContextLength)
	prompt := s.engine.Build(q.QueryType, q.SafetyLevel, q.ResponseFormat, contextBlock, q.Query)

	generateStart := time.Now()
	result, err := s.generator.Generate(ctx, GenerationRequest{
		Prompt:      prompt,
		MaxTokens:   q.MaxTokens,
		Temperature: q.Temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("generate answer: %w", err)
	}
	generationMs := durationMs(time.Since(generateStart))

	validation := s.engine.Validate(result.Text, contextBlock, q.ResponseFormat)
	if validation.Status != models.ValidationStatusValid {
		s.logger.Printf("⚠️ [%s] Validation flagged answer (score %.2f): %v", q.QueryType, validation.SafetyScore, validation.Issues)
	}

	response := s.buildResponse(q, result, results, sources, contextBlock, validation)
	response.RetrievalTimeMs = embedMs + searchMs
	response.GenerationTimeMs = generationMs
	response.TotalTimeMs = durationMs(time.Since(started))

	s.logger.Printf("✅ [%s] RAG query answered: %d docs, %d chars context, %.2fms total (retrieve: %.2fms, generate: %.2fms)",
		q.QueryType, response.RetrievedCount, response.ContextLength, response.TotalTimeMs, response.RetrievalTimeMs, generationMs)
	return response, nil
}

// retrieve embeds the query and searches the vector store, returning the
// per-stage timings for the response metadata.
func (s *RAGService) retrieve(ctx context.Context, q *models.RAGQuery) ([]models.SearchResult, float64, float64, error) {
	embedStart := time.Now()
	vector, err := s.embedder.Embed(ctx, q.Query)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("embed query: %w", err)
	}
	embedMs := durationMs(time.Since(embedStart))

	var filter *models.SearchFilter
	if len(q.DocumentIDs) > 0 {
		filter = &models.SearchFilter{DocumentIDs: q.DocumentIDs}
	}

	searchStart := time.Now()
	results, err := s.retriever.Search(ctx, vector, *q.TopK, q.ScoreThreshold, filter)
	if err != nil {
		return nil, embedMs, 0, err
	}
	return results, embedMs, durationMs(time.Since(searchStart)), nil
}

// buildResponse assembles the response envelope shared by the blocking and
// streaming paths. Timings are filled in by the caller.
func (s *RAGService) buildResponse(q *models.RAGQuery, result *GenerationResult, retrieved []models.SearchResult, sources []models.Source, contextBlock string, validation *ResponseValidation) *models.RAGResponse {
	model := result.Model
	if model == "" {
		model = s.generator.ModelName()
	}
	response := &models.RAGResponse{
		Query:            q.Query,
		Answer:           result.Text,
		QueryType:        q.QueryType,
		SourceFiles:      sourceFileNames(sources),
		RetrievedCount:   len(retrieved),
		ContextLength:    len(contextBlock),
		ModelUsed:        model,
		ValidationStatus: validation.Status,
		ValidationIssues: validation.Issues,
		SafetyScore:      validation.SafetyScore,
		CreatedAt:        time.Now().UTC(),
	}
	if q.IncludeSources {
		response.Sources = sources
	}
	return response
}

// withDefaults returns a copy of the query with the configured defaults
// applied and the query type resolved. The caller's struct is not touched.
func (s *RAGService) withDefaults(query *models.RAGQuery) *models.RAGQuery {
	q := *query
	q.Query = strings.TrimSpace(q.Query)
	if q.TopK == nil {
		topK := s.defaultTopK
		q.TopK = &topK
	}
	if q.ScoreThreshold == nil {
		threshold := s.defaultThreshold
		q.ScoreThreshold = &threshold
	}
	if q.MaxContextLength == 0 {
		q.MaxContextLength = s.defaultContext
	}
	if q.QueryType == "" {
		q.QueryType = s.engine.Classify(q.Query)
	}
	return &q
}

// cacheKey folds every generation-relevant parameter into the cache key so
// two requests only share an entry when their answers would be identical.
func (s *RAGService) cacheKey(q *models.RAGQuery) string {
	temperature := -1.0
	if q.Temperature != nil {
		temperature = *q.Temperature
	}
	return fmt.Sprintf("%s|%s|%d|%.3f|%d|%d|%.2f|%s|%s|%s",
		q.Query, q.QueryType, *q.TopK, *q.ScoreThreshold, q.MaxContextLength,
		q.MaxTokens, temperature, q.ResponseFormat, q.SafetyLevel,
		strings.Join(q.DocumentIDs, ","))
}

// Metrics reports pipeline counters plus result-cache statistics.
func (s *RAGService) Metrics() map[string]interface{} {
	snapshot := s.metrics.snapshot()
	snapshot["cache"] = s.cache.Stats()
	return snapshot
}

// ClearCache drops all cached answers, returning how many were evicted.
// Document ingest and deletion call this so stale answers never outlive the
// corpus they were grounded on.
func (s *RAGService) ClearCache() int {
	return s.cache.Clear()
}

// ============================================================================
// STREAMING
// ============================================================================

// Stream runs the pipeline and emits the answer incrementally on the returned
// channel. Event order is fixed: progress events first, one sources event,
// then content tokens, with a single end event always last. Failures surface
// as an error event before the end event. The channel closes after end.
func (s *RAGService) Stream(ctx context.Context, query *models.RAGQuery) (<-chan models.StreamEvent, error) {
	if err := query.Validate(); err != nil {
		return nil, models.NewValidationError("rag.stream", err.Error())
	}
	q := s.withDefaults(query)

	events := make(chan models.StreamEvent, streamEventBuffer)
	go s.streamWorker(ctx, q, events)
	return events, nil
}

func (s *RAGService) streamWorker(ctx context.Context, q *models.RAGQuery, events chan<- models.StreamEvent) {
	defer close(events)
	started := time.Now()

	if s.queryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.queryTimeout)
		defer cancel()
	}

	// emit blocks until the consumer takes the event or the context ends,
	// so a stalled client can never wedge the pipeline goroutine. Once the
	// context is cancelled only the terminal end event goes out.
	emit := func(event models.StreamEvent) bool {
		if ctx.Err() != nil {
			return false
		}
		select {
		case events <- event:
			return true
		case <-ctx.Done():
			return false
		}
	}
	// endTruncated closes out a cancelled stream. end must be the final
	// event even after cancellation, so it bypasses the context guard; a
	// consumer that is gone entirely only misses it after the grace window.
	endTruncated := func(stage string) {
		timer := time.NewTimer(streamEndGrace)
		defer timer.Stop()
		select {
		case events <- models.StreamEvent{Type: models.StreamEventEnd, Metadata: map[string]interface{}{
			"truncated":     true,
			"stage":         stage,
			"total_time_ms": durationMs(time.Since(started)),
		}}:
		case <-timer.C:
		}
	}
	fail := func(stage string, err error) {
		s.metrics.recordFailure(q.QueryType, durationMs(time.Since(started)))
		s.logger.Printf("❌ [%s] Streaming query failed during %s: %v", q.QueryType, stage, err)
		if emit(models.StreamEvent{Type: models.StreamEventError, Stage: stage, Message: err.Error()}) {
			emit(models.StreamEvent{Type: models.StreamEventEnd})
			return
		}
		endTruncated(stage)
	}

	s.logger.Printf("🔄 [%s] Streaming RAG query: %q", q.QueryType, models.Preview(q.Query, 80))
	if !emit(models.StreamEvent{Type: models.StreamEventProgress, Stage: "retrieval", Message: "searching documents"}) {
		endTruncated("retrieval")
		return
	}

	results, embedMs, searchMs, err := s.retrieve(ctx, q)
	if err != nil {
		fail("retrieval", err)
		return
	}
	if len(results) == 0 {
		if !emit(models.StreamEvent{Type: models.StreamEventProgress, Stage: "retrieval", Message: "no relevant documents found, answering from general knowledge"}) {
			endTruncated("retrieval")
			return
		}
	}

	contextBlock, sources := s.assembleContext(results, q.MaxContextLength)
	if q.IncludeSources {
		if !emit(models.StreamEvent{Type: models.StreamEventSources, Sources: sources}) {
			endTruncated("retrieval")
			return
		}
	}
	if !emit(models.StreamEvent{Type: models.StreamEventProgress, Stage: "generation", Message: "generating answer"}) {
		endTruncated("generation")
		return
	}

	prompt := s.engine.Build(q.QueryType, q.SafetyLevel, q.ResponseFormat, contextBlock, q.Query)
	generateStart := time.Now()
	result, err := s.generator.GenerateStream(ctx, GenerationRequest{
		Prompt:      prompt,
		MaxTokens:   q.MaxTokens,
		Temperature: q.Temperature,
	}, func(token string) error {
		if !emit(models.StreamEvent{Type: models.StreamEventContent, Content: token}) {
			return ctx.Err()
		}
		return nil
	})
	if err != nil {
		fail("generation", err)
		return
	}
	generationMs := durationMs(time.Since(generateStart))

	validation := s.engine.Validate(result.Text, contextBlock, q.ResponseFormat)
	response := s.buildResponse(q, result, results, sources, contextBlock, validation)
	response.RetrievalTimeMs = embedMs + searchMs
	response.GenerationTimeMs = generationMs
	response.TotalTimeMs = durationMs(time.Since(started))
	s.metrics.recordSuccess(response)

	s.logger.Printf("✅ [%s] Streaming query completed: %d docs, %.2fms total (retrieve: %.2fms, generate: %.2fms)",
		q.QueryType, response.RetrievedCount, response.TotalTimeMs, response.RetrievalTimeMs, generationMs)

	if !emit(models.StreamEvent{Type: models.StreamEventEnd, Metadata: map[string]interface{}{
		"total_time_ms":      response.TotalTimeMs,
		"retrieval_time_ms":  response.RetrievalTimeMs,
		"generation_time_ms": response.GenerationTimeMs,
		"retrieved_count":    response.RetrievedCount,
		"context_length":     response.ContextLength,
		"validation_status":  string(validation.Status),
		"safety_score":       validation.SafetyScore,
		"model_used":         response.ModelUsed,
	}}) {
		endTruncated("finalize")
	}
}

// ============================================================================
// CONTEXT ASSEMBLY
// ============================================================================

// assembleContext packs retrieved chunks into the prompt context, best score
// first, stopping at the character budget. When the next chunk overflows the
// budget it is truncated on a sentence boundary if enough room remains,
// otherwise dropped. Sources cover exactly the chunks that made it in.
func (s *RAGService) assembleContext(results []models.SearchResult, maxLength int) (string, []models.Source) {
	ranked := make([]models.SearchResult, len(results))
	copy(ranked, results)
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Score > ranked[j].Score })

	var sections []string
	var sources []models.Source
	used := 0
	for i, result := range ranked {
		section := fmt.Sprintf("Document %d: %s (Relevance: %.3f)\nChunk: %d\nContent: %s\n",
			i+1, result.FilenameFromMetadata(), result.Score, result.ChunkIndex, result.Text)
		if used+len(section) > maxLength {
			remaining := maxLength - used
			if remaining >= contextTruncateMin {
				sections = append(sections, truncateOnSentence(section, remaining))
				sources = append(sources, sourceFromResult(result))
			}
			break
		}
		sections = append(sections, section)
		sources = append(sources, sourceFromResult(result))
		used += len(section)
	}
	return strings.Join(sections, "\n"), sources
}

func sourceFromResult(result models.SearchResult) models.Source {
	return models.Source{
		DocumentID: result.DocumentID,
		Filename:   result.FilenameFromMetadata(),
		ChunkID:    result.ChunkID,
		ChunkIndex: result.ChunkIndex,
		Score:      result.Score,
		Preview:    models.Preview(result.Text, sourcePreviewChars),
	}
}

// sourceFileNames lists the distinct filenames behind the packed sources,
// keeping first-seen order.
func sourceFileNames(sources []models.Source) []string {
	seen := make(map[string]bool, len(sources))
	var files []string
	for _, source := range sources {
		if !seen[source.Filename] {
			seen[source.Filename] = true
			files = append(files, source.Filename)
		}
	}
	return files
}

// truncateOnSentence cuts text to at most limit characters, preferring to end
// on a sentence terminator so the packed context never stops mid-thought.
func truncateOnSentence(text string, limit int) string {
	if len(text) <= limit {
		return text
	}
	cut := text[:limit]
	if idx := strings.LastIndexAny(cut, ".!?"); idx > 0 {
		return cut[:idx+1]
	}
	return strings.TrimRight(cut, " ") + "..."
}

// ============================================================================
// QUERY RESULT CACHE
// ============================================================================

type queryCacheEntry struct {
	response *models.RAGResponse
	expires  time.Time
}

// queryCache is a size-capped TTL cache for completed answers. Expired
// entries are swept by a background janitor once a minute.
type queryCache struct {
	mu      sync.RWMutex
	entries map[string]*queryCacheEntry
	ttl     time.Duration
	maxSize int
	hits    atomic.Int64
	misses  atomic.Int64
	stop    chan struct{}
}

func newQueryCache(ttl time.Duration, maxSize int) *queryCache {
	cache := &queryCache{
		entries: make(map[string]*queryCacheEntry),
		ttl:     ttl,
		maxSize: maxSize,
		stop:    make(chan struct{}),
	}
	go cache.cleanupLoop()
	return cache
}

// Get returns a copy of the cached response so callers can stamp FromCache
// and fresh timings without mutating the shared entry.
func (c *queryCache) Get(key string) (*models.RAGResponse, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok || time.Now().After(entry.expires) {
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	response := *entry.response
	return &response, true
}

func (c *queryCache) Set(key string, response *models.RAGResponse) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.entries) >= c.maxSize {
		c.evictLocked()
	}
	c.entries[key] = &queryCacheEntry{
		response: response,
		expires:  time.Now().Add(c.ttl),
	}
}

// evictLocked frees one slot, preferring already-expired entries and falling
// back to the entry closest to expiry.
func (c *queryCache) evictLocked() {
	now := time.Now()
	var oldestKey string
	var oldestExpiry time.Time
	for key, entry := range c.entries {
		if now.After(entry.expires) {
			delete(c.entries, key)
			return
		}
		if oldestKey == "" || entry.expires.Before(oldestExpiry) {
			oldestKey = key
			oldestExpiry = entry.expires
		}
	}
	if oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}

func (c *queryCache) Clear() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	count := len(c.entries)
	c.entries = make(map[string]*queryCacheEntry)
	return count
}

func (c *queryCache) Stats() map[string]interface{} {
	c.mu.RLock()
	size := len(c.entries)
	c.mu.RUnlock()

	hits := c.hits.Load()
	misses := c.misses.Load()
	hitRate := 0.0
	if total := hits + misses; total > 0 {
		hitRate = float64(hits) / float64(total)
	}
	return map[string]interface{}{
		"hits":     hits,
		"misses":   misses,
		"size":     size,
		"hit_rate": hitRate,
	}
}

func (c *queryCache) Close() {
	close(c.stop)
}

func (c *queryCache) cleanupLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.purgeExpired()
		}
	}
}

func (c *queryCache) purgeExpired() {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, entry := range c.entries {
		if now.After(entry.expires) {
			delete(c.entries, key)
		}
	}
}

// ============================================================================
// PIPELINE METRICS
// ============================================================================

// ragMetrics accumulates pipeline counters. Averages are running totals
// divided at snapshot time; the latency ring feeds a rolling p95.
type ragMetrics struct {
	mu                 sync.Mutex
	startedAt          time.Time
	totalQueries       int64
	successfulQueries  int64
	failedQueries      int64
	totalResponseMs    float64
	totalRetrievalMs   float64
	totalGenerationMs  float64
	totalContextChars  int64
	totalDocsRetrieved int64
	totalSafetyScore   float64
	validationWarnings int64
	validationErrors   int64
	queryTypes         map[models.QueryType]int64
	latencies          *circularBuffer[float64]
}

func newRAGMetrics() *ragMetrics {
	return &ragMetrics{
		startedAt:  time.Now(),
		queryTypes: make(map[models.QueryType]int64),
		latencies:  newCircularBuffer[float64](latencyWindowSize),
	}
}

func (m *ragMetrics) recordSuccess(response *models.RAGResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.totalQueries++
	m.successfulQueries++
	m.totalResponseMs += response.TotalTimeMs
	m.totalRetrievalMs += response.RetrievalTimeMs
	m.totalGenerationMs += response.GenerationTimeMs
	m.totalContextChars += int64(response.ContextLength)
	m.totalDocsRetrieved += int64(response.RetrievedCount)
	m.totalSafetyScore += response.SafetyScore
	switch response.ValidationStatus {
	case models.ValidationStatusWarning:
		m.validationWarnings++
	case models.ValidationStatusError:
		m.validationErrors++
	}
	m.queryTypes[response.QueryType]++
	m.latencies.Add(response.TotalTimeMs)
}

func (m *ragMetrics) recordFailure(queryType models.QueryType, totalMs float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.totalQueries++
	m.failedQueries++
	m.totalResponseMs += totalMs
	m.queryTypes[queryType]++
	m.latencies.Add(totalMs)
}

func (m *ragMetrics) snapshot() map[string]interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()

	successRate := 1.0
	if m.totalQueries > 0 {
		successRate = float64(m.successfulQueries) / float64(m.totalQueries)
	}
	types := make(map[string]int64, len(m.queryTypes))
	for queryType, count := range m.queryTypes {
		types[string(queryType)] = count
	}
	return map[string]interface{}{
		"uptime_seconds":          time.Since(m.startedAt).Seconds(),
		"total_queries":           m.totalQueries,
		"successful_queries":      m.successfulQueries,
		"failed_queries":          m.failedQueries,
		"success_rate":            successRate,
		"avg_response_time_ms":    safeAverage(m.totalResponseMs, m.totalQueries),
		"avg_retrieval_time_ms":   safeAverage(m.totalRetrievalMs, m.successfulQueries),
		"avg_generation_time_ms":  safeAverage(m.totalGenerationMs, m.successfulQueries),
		"avg_context_length":      safeAverage(float64(m.totalContextChars), m.successfulQueries),
		"avg_documents_retrieved": safeAverage(float64(m.totalDocsRetrieved), m.successfulQueries),
		"avg_safety_score":        safeAverage(m.totalSafetyScore, m.successfulQueries),
		"recent_p95_ms":           percentile(m.latencies.Items(), 0.95),
		"validation_warnings":     m.validationWarnings,
		"validation_errors":       m.validationErrors,
		"query_types":             types,
	}
}

func safeAverage(total float64, count int64) float64 {
	if count == 0 {
		return 0
	}
	return total / float64(count)
}

func percentile(samples []float64, p float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	sorted := make([]float64, len(samples))
	copy(sorted, samples)
	sort.Float64s(sorted)
	idx := int(float64(len(sorted)-1) * p)
	return sorted[idx]
}
