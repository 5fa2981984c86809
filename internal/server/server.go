package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"zerorag/config"
	"zerorag/internal/db"
	"zerorag/internal/handlers"
	"zerorag/internal/models"
	"zerorag/internal/repositories"
	"zerorag/internal/routes"
	"zerorag/internal/services"
	"zerorag/internal/workers"

	"github.com/gorilla/mux"
	httpSwagger "github.com/swaggo/http-swagger"
)

// Version is reported by the root and health endpoints
const Version = "1.0.0"

// Server owns every long-lived component and runs startup and shutdown in
// dependency order. Missing backends degrade the service instead of
// blocking it: Redis falls back to in-memory repositories and Qdrant to the
// in-memory vector index.
type Server struct {
	cfg    *config.Config
	logger *log.Logger

	httpServer  *http.Server
	connections *handlers.ConnectionManager
	pool        *workers.WorkerPool
	store       *services.VectorStoreService
	rag         *services.RAGService
	documents   *services.DocumentService
	embedder    services.Embedder
	generator   services.Generator
	monitor     *services.PerformanceMonitor
	redis       *db.RedisClient
	qdrant      *db.QdrantClient
}

// NewServer wires the complete serving stack from the configuration
func NewServer(cfg *config.Config) *Server {
	logger := log.New(os.Stdout, "[SERVER] ", log.LstdFlags)

	s := &Server{cfg: cfg, logger: logger}

	if err := os.MkdirAll(cfg.Processing.UploadDir, 0o755); err != nil {
		logger.Printf("⚠️  Could not create upload directory %s: %v", cfg.Processing.UploadDir, err)
	}

	s.monitor = services.NewPerformanceMonitor(cfg.Worker, logger)

	docRepo, jobRepo := s.initializeRegistry()
	primary := s.initializeVectorBackend()
	fallback := repositories.NewMemoryVectorRepository(cfg.Qdrant.CollectionName, cfg.Qdrant.VectorSize)
	s.store = services.NewVectorStoreService(primary, fallback, cfg.Memory, cfg.Worker, s.monitor, logger)

	s.embedder = s.initializeEmbedder()
	s.generator = s.initializeGenerator()

	s.documents = services.NewDocumentService(s.embedder, s.store, docRepo, jobRepo, cfg, logger)
	s.rag = services.NewRAGService(s.embedder, s.store, s.generator, cfg, logger)

	s.connections = handlers.NewConnectionManager(cfg.API.StreamIdleTimeout, logger)
	s.pool = s.buildWorkerPool(docRepo, jobRepo)

	s.httpServer = &http.Server{
		Addr:              cfg.API.Addr(),
		Handler:           s.buildHandler(),
		ReadHeaderTimeout: 10 * time.Second,
		// No WriteTimeout: streaming responses hold the connection open
	}

	return s
}

// Start launches the vector store, stream reaper, and background workers,
// then serves HTTP. It blocks until the listener stops.
func (s *Server) Start(ctx context.Context) error {
	if err := s.store.Start(ctx); err != nil {
		return fmt.Errorf("starting vector store: %w", err)
	}
	s.connections.Start()
	if err := s.pool.StartAll(ctx); err != nil {
		return fmt.Errorf("starting workers: %w", err)
	}
	s.logger.Printf("✅ %d background workers started", s.pool.Count())

	s.logger.Printf("🚀 ZeroRAG %s listening on %s", Version, s.cfg.API.Addr())
	s.logger.Printf("   Swagger UI: http://localhost:%d/swagger/index.html", s.cfg.API.Port)

	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops the server in reverse dependency order: stop accepting
// requests, cancel live streams, stop the workers, drain the store queue,
// then close the backends.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Println("Shutting down...")

	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	keep(s.httpServer.Shutdown(ctx))
	s.connections.Stop()
	keep(s.pool.StopAll(ctx))
	keep(s.store.Stop(ctx))
	keep(s.rag.Close())
	keep(s.embedder.Close())
	keep(s.generator.Close())
	if s.redis != nil {
		keep(s.redis.Close())
	}
	if s.qdrant != nil {
		s.qdrant.Close()
	}

	s.logger.Println("👋 Shutdown complete")
	return firstErr
}

// initializeRegistry connects to Redis for the document registry and job
// queue. When Redis is unreachable both fall back to in-memory
// repositories, so ingested documents do not survive a restart.
func (s *Server) initializeRegistry() (repositories.DocumentRepository, repositories.JobRepository) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	redisCfg := db.DefaultRedisConfig()
	redisCfg.Host = s.cfg.Redis.Host
	redisCfg.Port = s.cfg.Redis.Port
	redisCfg.Password = s.cfg.Redis.Password
	redisCfg.DB = s.cfg.Redis.DB
	if s.cfg.Redis.PoolSize > 0 {
		redisCfg.PoolSize = s.cfg.Redis.PoolSize
	}

	s.logger.Printf("Connecting to Redis: %s (DB: %d)", s.cfg.Redis.Addr(), s.cfg.Redis.DB)

	maxQueue := int64(s.cfg.Worker.MaxQueueSize)

	client, err := db.NewRedisClient(redisCfg)
	if err == nil {
		err = client.Ping(ctx)
		if err != nil {
			_ = client.Close()
		}
	}
	if err != nil {
		s.logger.Printf("❌ Redis connection failed: %v", err)
		s.logger.Println("   Hint: Ensure Redis is running (docker run -d -p 6379:6379 redis:7-alpine)")
		s.logger.Println("   Falling back to the in-memory registry; documents will not survive a restart")
		return repositories.NewMemoryDocumentRepository(), repositories.NewMemoryJobRepository(maxQueue)
	}

	s.logger.Println("✅ Redis connected successfully")
	s.redis = client

	return repositories.NewRedisDocumentRepository(client.GetClient()),
		repositories.NewRedisJobRepository(client.GetClient(), maxQueue)
}

// initializeVectorBackend builds the Qdrant repository. A failed probe only
// logs a warning: the store service itself degrades to the in-memory index
// at startup and keeps retrying the backend afterwards.
func (s *Server) initializeVectorBackend() repositories.VectorRepository {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.logger.Printf("Connecting to Qdrant: %s (collection: %s)", s.cfg.Qdrant.BaseURL(), s.cfg.Qdrant.CollectionName)

	client := db.NewQdrantClient(db.QdrantConfig{
		BaseURL: s.cfg.Qdrant.BaseURL(),
		APIKey:  s.cfg.Qdrant.APIKey,
		Timeout: time.Duration(s.cfg.Qdrant.TimeoutSecs) * time.Second,
	})

	if err := client.HealthCheck(ctx); err != nil {
		s.logger.Printf("❌ Qdrant connection failed: %v", err)
		s.logger.Println("   Hint: Ensure Qdrant is running (docker run -d -p 6333:6333 qdrant/qdrant)")
		s.logger.Println("   Vector search will serve from the in-memory index until the backend recovers")
	} else {
		s.logger.Println("✅ Qdrant connected successfully")
	}

	s.qdrant = client
	return repositories.NewQdrantVectorRepository(client, s.cfg.Qdrant.CollectionName, s.cfg.Qdrant.VectorSize)
}

// initializeEmbedder builds the Ollama embedder wrapped in the LRU cache
func (s *Server) initializeEmbedder() services.Embedder {
	base := services.NewOllamaEmbedder(s.cfg.Ollama, s.cfg.Qdrant.VectorSize, s.logger)

	embedder, err := services.NewCachedEmbedder(base, s.cfg.Ollama.EmbeddingCacheSz)
	if err != nil {
		s.logger.Printf("⚠️  Embedding cache disabled: %v", err)
		return base
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := embedder.HealthCheck(ctx); err != nil {
		s.logger.Printf("❌ Ollama embedding backend unreachable: %v", err)
		s.logger.Printf("   Hint: Start Ollama (ollama serve) and pull the model (ollama pull %s)", s.cfg.Ollama.EmbeddingModel)
	} else {
		s.logger.Printf("✅ Embedding backend ready (%s)", embedder.ModelName())
	}

	return embedder
}

// initializeGenerator builds the Ollama generator, with the OpenAI fallback
// behind it when an API key is configured
func (s *Server) initializeGenerator() services.Generator {
	primary := services.NewOllamaGenerator(s.cfg.Ollama, s.logger)
	if !s.cfg.OpenAI.Enabled() {
		return primary
	}

	fallback := services.NewOpenAIGenerator(s.cfg.OpenAI, s.cfg.Ollama.MaxTokens, s.cfg.Ollama.Temperature)
	s.logger.Printf("✅ Generation fallback enabled (%s)", fallback.ModelName())
	return services.NewFallbackGenerator(primary, fallback, s.logger)
}

// buildWorkerPool assembles the background workers: ingest drains the job
// queue, maintenance requeues abandoned work and prunes expired records,
// the memory worker watches the heap, and the GC worker trims alert history.
func (s *Server) buildWorkerPool(docRepo repositories.DocumentRepository, jobRepo repositories.JobRepository) *workers.WorkerPool {
	pool := workers.NewWorkerPool()
	wlog := &simpleLogger{logger: s.logger}

	pool.AddWorker(workers.NewIngestWorker(workers.IngestWorkerConfig{
		WorkerConfig: workers.WorkerConfig{
			WorkerName:      "ingest-worker",
			Concurrency:     3,
			PollInterval:    s.cfg.Worker.PollInterval,
			ShutdownTimeout: 30 * time.Second,
			MaxRetries:      s.cfg.Worker.MaxRetries,
			RetryDelay:      5 * time.Second,
			EnableRecovery:  true,
		},
		JobRepo:   jobRepo,
		Processor: s.documents,
		Logger:    wlog,
	}))

	pool.AddWorker(workers.NewMaintenanceWorker(workers.MaintenanceWorkerConfig{
		WorkerConfig: workers.WorkerConfig{
			WorkerName:      "maintenance-worker",
			ShutdownTimeout: 30 * time.Second,
			EnableRecovery:  true,
		},
		JobRepo:      jobRepo,
		DocumentRepo: docRepo,
		Monitor:      s.monitor,
		Logger:       wlog,
		UploadDir:    s.cfg.Processing.UploadDir,
		Interval:     s.cfg.Worker.MaintenanceInterval,
		Retention:    s.cfg.Worker.ProgressRetention,
		StuckAfter:   s.cfg.Worker.StuckJobTimeout,
	}))

	pool.AddWorker(workers.NewMemoryWorker(workers.MemoryWorkerConfig{
		WorkerConfig: workers.WorkerConfig{
			WorkerName:      "memory-worker",
			ShutdownTimeout: 10 * time.Second,
			EnableRecovery:  true,
		},
		Logger:      wlog,
		Alerts:      s.monitor,
		ThresholdMB: s.cfg.Memory.ThresholdMB,
		CriticalMB:  s.cfg.Memory.CriticalMB,
		Interval:    s.cfg.Memory.MonitorInterval,
		OnCritical: func(stats models.MemoryStats) {
			dropped := s.rag.ClearCache()
			if dropped > 0 {
				s.logger.Printf("🧹 Dropped %d cached answers at %.0f MB heap", dropped, stats.HeapAllocMB)
			}
		},
	}))

	pool.AddWorker(workers.NewGCWorker(workers.GCWorkerConfig{
		WorkerConfig: workers.WorkerConfig{
			WorkerName:      "gc-worker",
			ShutdownTimeout: 10 * time.Second,
			EnableRecovery:  true,
		},
		Logger:   wlog,
		Pruner:   s.monitor,
		Interval: s.cfg.Memory.GCInterval,
	}))

	return pool
}

// buildHandler assembles the router and the middleware stack. CORS and
// request counting wrap the router itself so they also cover preflight
// requests and unmatched routes, which subrouter middleware never sees.
func (s *Server) buildHandler() http.Handler {
	requests := &handlers.RequestMetrics{}

	health := handlers.NewHealthHandler(Version, requests, s.logger)
	s.registerProbes(health)

	h := &routes.Handlers{
		Health:    health,
		Documents: handlers.NewDocumentHandler(s.documents, s.rag, s.cfg.Processing.MaxFileSizeBytes, s.logger),
		Query:     handlers.NewQueryHandler(s.rag, s.connections, s.cfg.API.EnableStreaming, s.logger),
		Advanced:  handlers.NewAdvancedHandler(s.documents, s.store, s.connections, s.rag, s.cfg.Processing.UploadDir, s.logger),
		QueryLimit: handlers.RateLimitMiddleware(
			handlers.NewIPRateLimiter(s.cfg.API.RateLimitPerMinute), s.logger),
		UploadLimit: handlers.RateLimitMiddleware(
			handlers.NewIPRateLimiter(s.cfg.API.UploadRateLimitPerMinute), s.logger),
	}

	router := mux.NewRouter()
	routes.RegisterRoutes(router, h)

	router.PathPrefix("/swagger/").Handler(httpSwagger.Handler(
		httpSwagger.URL(fmt.Sprintf("http://localhost:%d/swagger/doc.json", s.cfg.API.Port)),
		httpSwagger.DeepLinking(true),
		httpSwagger.DocExpansion("none"),
		httpSwagger.DomID("swagger-ui"),
	))

	auth := handlers.APIKeyMiddleware(s.cfg.API.APIKey, s.logger)
	cors := handlers.CORSMiddleware(s.cfg.API.CORSOrigins)
	return cors(requests.Middleware(auth(router)))
}

// registerProbes wires the component health checks and metrics sources
func (s *Server) registerProbes(health *handlers.HealthHandler) {
	if s.redis != nil {
		health.AddProbe("redis", s.redis.Ping)
		health.AddMetricsSource("redis_pool", func() interface{} {
			return s.redis.PoolStats()
		})
	} else {
		health.AddProbe("redis", func(ctx context.Context) error {
			return fmt.Errorf("%w: registry running in-memory, Redis unavailable", handlers.ErrDegraded)
		})
	}

	health.AddProbe("vector_store", func(ctx context.Context) error {
		sh := s.store.Health(ctx)
		if sh.Degraded {
			return fmt.Errorf("%w: %s", handlers.ErrDegraded, strings.Join(sh.Issues, "; "))
		}
		return nil
	})

	health.AddProbe("embedder", s.embedder.HealthCheck)
	health.AddProbe("generator", s.generator.HealthCheck)

	health.AddMetricsSource("operations", func() interface{} { return s.monitor.Stats() })
	health.AddMetricsSource("rag", func() interface{} { return s.rag.Metrics() })
	health.AddMetricsSource("workers", func() interface{} { return s.pool.GetAllStats() })
	health.AddMetricsSource("vector_store", func() interface{} {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return s.store.Health(ctx)
	})
	health.AddMetricsSource("streams", func() interface{} {
		return map[string]int{"active": s.connections.Count()}
	})
	if cached, ok := s.embedder.(*services.CachedEmbedder); ok {
		health.AddMetricsSource("embedding_cache", func() interface{} {
			hits, misses := cached.CacheStats()
			return map[string]int64{"hits": hits, "misses": misses}
		})
	}
}

// simpleLogger adapts log.Logger to the workers.Logger interface
type simpleLogger struct {
	logger *log.Logger
}

func (l *simpleLogger) Info(msg string, args ...interface{}) {
	l.logger.Printf("[INFO] "+msg, args...)
}

func (l *simpleLogger) Error(msg string, args ...interface{}) {
	l.logger.Printf("[ERROR] "+msg, args...)
}

func (l *simpleLogger) Warn(msg string, args ...interface{}) {
	l.logger.Printf("[WARN] "+msg, args...)
}

func (l *simpleLogger) Debug(msg string, args ...interface{}) {
	l.logger.Printf("[DEBUG] "+msg, args...)
}
