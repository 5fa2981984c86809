package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// QdrantConfig holds vector database connection settings
type QdrantConfig struct {
	Host           string
	Port           int
	APIKey         string
	CollectionName string
	VectorSize     int
	UseTLS         bool
	TimeoutSecs    int
}

// BaseURL returns the REST endpoint for the Qdrant server
func (c QdrantConfig) BaseURL() string {
	scheme := "http"
	if c.UseTLS {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, c.Host, c.Port)
}

// RedisConfig holds cache and job queue settings
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
	PoolSize int
	CacheTTL time.Duration
}

// Addr returns host:port for the Redis client
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// OllamaConfig holds LLM and embedding backend settings
type OllamaConfig struct {
	Host             string
	Model            string
	EmbeddingModel   string
	TimeoutSecs      int
	MaxTokens        int
	Temperature      float64
	EmbeddingBatch   int
	EmbeddingCacheSz int
}

// OpenAIConfig holds the optional OpenAI-compatible generation fallback
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// Enabled reports whether the fallback backend is configured
func (c OpenAIConfig) Enabled() bool {
	return c.APIKey != ""
}

// APIConfig holds HTTP server settings
type APIConfig struct {
	Host                     string
	Port                     int
	APIKey                   string
	CORSOrigins              []string
	RateLimitPerMinute       int
	UploadRateLimitPerMinute int
	EnableStreaming          bool
	StreamIdleTimeout        time.Duration
}

// Addr returns host:port for the HTTP listener
func (c APIConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ProcessingConfig holds document ingestion settings
type ProcessingConfig struct {
	MaxFileSizeBytes     int64
	SupportedFormats     []string
	ChunkSize            int
	ChunkOverlap         int
	MaxChunksPerDocument int
	UploadTimeout        time.Duration
	UploadDir            string
	FormatsFile          string
	Formats              []FormatSpec
}

// FormatSupported reports whether the extension (without dot) is accepted
func (c ProcessingConfig) FormatSupported(ext string) bool {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	for _, f := range c.SupportedFormats {
		if strings.ToLower(f) == ext {
			return true
		}
	}
	return false
}

// RAGConfig holds retrieval and generation defaults
type RAGConfig struct {
	TopK                int
	SimilarityThreshold float64
	MaxContextLength    int
	QueryTimeout        time.Duration
	QueryCacheTTL       time.Duration
	QueryCacheSize      int
}

// MemoryConfig holds memory monitor thresholds
type MemoryConfig struct {
	ThresholdMB     float64
	CriticalMB      float64
	MonitorInterval time.Duration
	GCInterval      time.Duration
}

// WorkerConfig holds background worker settings
type WorkerConfig struct {
	PollInterval          time.Duration
	MaxRetries            int
	StuckJobTimeout       time.Duration
	ProgressRetention     time.Duration
	MaintenanceInterval   time.Duration
	MaxQueueSize          int
	QueueAlertThreshold   int
	BatchSize             int
	OperationTimeoutAlert time.Duration
}

// Config is the complete application configuration
type Config struct {
	Qdrant     QdrantConfig
	Redis      RedisConfig
	Ollama     OllamaConfig
	OpenAI     OpenAIConfig
	API        APIConfig
	Processing ProcessingConfig
	RAG        RAGConfig
	Memory     MemoryConfig
	Worker     WorkerConfig
}

// Load builds the configuration from the environment. A .env file in the
// working directory is read first when present, real environment variables
// win over values from the file.
func Load() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		Qdrant: QdrantConfig{
			Host:           getEnv("QDRANT_HOST", "localhost"),
			Port:           getEnvInt("QDRANT_PORT", 6333),
			APIKey:         getEnv("QDRANT_API_KEY", ""),
			CollectionName: getEnv("QDRANT_COLLECTION_NAME", "zero_rag_documents"),
			VectorSize:     getEnvInt("VECTOR_SIZE", 384),
			UseTLS:         getEnvBool("QDRANT_USE_TLS", false),
			TimeoutSecs:    getEnvInt("QDRANT_TIMEOUT", 10),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnvInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			PoolSize: getEnvInt("REDIS_POOL_SIZE", 10),
			CacheTTL: time.Duration(getEnvInt("CACHE_TTL", 3600)) * time.Second,
		},
		Ollama: OllamaConfig{
			Host:             getEnv("OLLAMA_HOST", "http://localhost:11434"),
			Model:            getEnv("OLLAMA_MODEL", "llama3.2:1b"),
			EmbeddingModel:   getEnv("EMBEDDING_MODEL", "all-minilm"),
			TimeoutSecs:      getEnvInt("OLLAMA_TIMEOUT", 30),
			MaxTokens:        getEnvInt("OLLAMA_MAX_TOKENS", 2048),
			Temperature:      getEnvFloat("OLLAMA_TEMPERATURE", 0.7),
			EmbeddingBatch:   getEnvInt("EMBEDDING_BATCH_SIZE", 32),
			EmbeddingCacheSz: getEnvInt("EMBEDDING_CACHE_SIZE", 2048),
		},
		OpenAI: OpenAIConfig{
			APIKey:  getEnv("OPENAI_API_KEY", ""),
			BaseURL: getEnv("OPENAI_BASE_URL", ""),
			Model:   getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		},
		API: APIConfig{
			Host:                     getEnv("API_HOST", "127.0.0.1"),
			Port:                     getEnvInt("API_PORT", 8000),
			APIKey:                   getEnv("API_KEY", ""),
			CORSOrigins:              splitCSV(getEnv("CORS_ORIGINS", "http://localhost:8501")),
			RateLimitPerMinute:       getEnvInt("RATE_LIMIT_PER_MINUTE", 60),
			UploadRateLimitPerMinute: getEnvInt("UPLOAD_RATE_LIMIT_PER_MINUTE", 10),
			EnableStreaming:          getEnvBool("ENABLE_STREAMING", true),
			StreamIdleTimeout:        time.Duration(getEnvInt("STREAM_CONNECTION_TIMEOUT_MINUTES", 30)) * time.Minute,
		},
		Processing: ProcessingConfig{
			MaxFileSizeBytes:     getEnvSize("MAX_FILE_SIZE", 50*1024*1024),
			SupportedFormats:     splitCSV(getEnv("SUPPORTED_FORMATS", "txt,csv,md")),
			ChunkSize:            getEnvInt("CHUNK_SIZE", 1000),
			ChunkOverlap:         getEnvInt("CHUNK_OVERLAP", 200),
			MaxChunksPerDocument: getEnvInt("MAX_CHUNKS_PER_DOCUMENT", 1000),
			UploadTimeout:        time.Duration(getEnvInt("UPLOAD_PROCESSING_TIMEOUT", 300)) * time.Second,
			UploadDir:            getEnv("UPLOAD_DIR", "./data/uploads"),
			FormatsFile:          getEnv("FORMATS_FILE", ""),
		},
		RAG: RAGConfig{
			TopK:                getEnvInt("TOP_K_RESULTS", 5),
			SimilarityThreshold: getEnvFloat("SIMILARITY_THRESHOLD", 0.7),
			MaxContextLength:    getEnvInt("MAX_CONTEXT_LENGTH", 4000),
			QueryTimeout:        time.Duration(getEnvInt("QUERY_TIMEOUT", 60)) * time.Second,
			QueryCacheTTL:       time.Duration(getEnvInt("QUERY_CACHE_TTL", 300)) * time.Second,
			QueryCacheSize:      getEnvInt("QUERY_CACHE_SIZE", 256),
		},
		Memory: MemoryConfig{
			ThresholdMB:     getEnvFloat("MEMORY_THRESHOLD_MB", 1024),
			CriticalMB:      getEnvFloat("MEMORY_CRITICAL_MB", 2048),
			MonitorInterval: time.Duration(getEnvInt("MEMORY_MONITOR_INTERVAL", 30)) * time.Second,
			GCInterval:      time.Duration(getEnvInt("GC_INTERVAL_SECONDS", 300)) * time.Second,
		},
		Worker: WorkerConfig{
			PollInterval:          time.Duration(getEnvInt("WORKER_POLL_INTERVAL_MS", 1000)) * time.Millisecond,
			MaxRetries:            getEnvInt("WORKER_MAX_RETRIES", 3),
			StuckJobTimeout:       time.Duration(getEnvInt("STUCK_JOB_TIMEOUT", 600)) * time.Second,
			ProgressRetention:     time.Duration(getEnvInt("PROGRESS_RETENTION_HOURS", 24)) * time.Hour,
			MaintenanceInterval:   time.Duration(getEnvInt("MAINTENANCE_INTERVAL", 300)) * time.Second,
			MaxQueueSize:          getEnvInt("MAX_QUEUE_SIZE", 1000),
			QueueAlertThreshold:   getEnvInt("QUEUE_ALERT_THRESHOLD", 500),
			BatchSize:             getEnvInt("BATCH_SIZE", 100),
			OperationTimeoutAlert: time.Duration(getEnvInt("OPERATION_ALERT_MS", 1000)) * time.Millisecond,
		},
	}

	// A formats file overrides the built-in registry; a broken file keeps
	// the defaults and is reported by Validate.
	cfg.Processing.Formats = DefaultFormats()
	if cfg.Processing.FormatsFile != "" {
		if specs, err := LoadFormatsFromFile(cfg.Processing.FormatsFile); err == nil && len(specs) > 0 {
			cfg.Processing.Formats = specs
		}
	}

	return cfg
}

// Validate collects every configuration problem instead of stopping at the
// first, so a misconfigured deployment reports all issues in one pass.
func (c *Config) Validate() []error {
	var errs []error

	if c.Qdrant.Port < 1 || c.Qdrant.Port > 65535 {
		errs = append(errs, fmt.Errorf("QDRANT_PORT must be between 1 and 65535, got %d", c.Qdrant.Port))
	}
	if c.Qdrant.VectorSize <= 0 {
		errs = append(errs, fmt.Errorf("VECTOR_SIZE must be positive, got %d", c.Qdrant.VectorSize))
	}
	if c.Qdrant.CollectionName == "" {
		errs = append(errs, fmt.Errorf("QDRANT_COLLECTION_NAME cannot be empty"))
	}
	if c.Redis.Port < 1 || c.Redis.Port > 65535 {
		errs = append(errs, fmt.Errorf("REDIS_PORT must be between 1 and 65535, got %d", c.Redis.Port))
	}
	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, fmt.Errorf("API_PORT must be between 1 and 65535, got %d", c.API.Port))
	}
	if c.Ollama.Temperature < 0 || c.Ollama.Temperature > 2 {
		errs = append(errs, fmt.Errorf("OLLAMA_TEMPERATURE must be between 0 and 2, got %g", c.Ollama.Temperature))
	}
	if c.Ollama.MaxTokens <= 0 {
		errs = append(errs, fmt.Errorf("OLLAMA_MAX_TOKENS must be positive, got %d", c.Ollama.MaxTokens))
	}
	if c.Ollama.EmbeddingBatch <= 0 {
		errs = append(errs, fmt.Errorf("EMBEDDING_BATCH_SIZE must be positive, got %d", c.Ollama.EmbeddingBatch))
	}
	if c.Processing.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("CHUNK_SIZE must be positive, got %d", c.Processing.ChunkSize))
	}
	if c.Processing.ChunkOverlap < 0 {
		errs = append(errs, fmt.Errorf("CHUNK_OVERLAP cannot be negative, got %d", c.Processing.ChunkOverlap))
	}
	if c.Processing.ChunkOverlap >= c.Processing.ChunkSize {
		errs = append(errs, fmt.Errorf("CHUNK_OVERLAP (%d) must be smaller than CHUNK_SIZE (%d)",
			c.Processing.ChunkOverlap, c.Processing.ChunkSize))
	}
	if c.Processing.MaxChunksPerDocument <= 0 {
		errs = append(errs, fmt.Errorf("MAX_CHUNKS_PER_DOCUMENT must be positive, got %d", c.Processing.MaxChunksPerDocument))
	}
	if c.Processing.MaxFileSizeBytes <= 0 {
		errs = append(errs, fmt.Errorf("MAX_FILE_SIZE must be positive"))
	}
	if c.Processing.UploadTimeout <= 0 {
		errs = append(errs, fmt.Errorf("UPLOAD_PROCESSING_TIMEOUT must be positive, got %s", c.Processing.UploadTimeout))
	}
	if len(c.Processing.SupportedFormats) == 0 {
		errs = append(errs, fmt.Errorf("SUPPORTED_FORMATS cannot be empty"))
	}
	if c.Processing.FormatsFile != "" {
		if _, err := LoadFormatsFromFile(c.Processing.FormatsFile); err != nil {
			errs = append(errs, fmt.Errorf("FORMATS_FILE %s could not be read: %w", c.Processing.FormatsFile, err))
		}
	}
	if c.RAG.TopK <= 0 {
		errs = append(errs, fmt.Errorf("TOP_K_RESULTS must be positive, got %d", c.RAG.TopK))
	}
	if c.RAG.SimilarityThreshold < 0 || c.RAG.SimilarityThreshold > 1 {
		errs = append(errs, fmt.Errorf("SIMILARITY_THRESHOLD must be between 0 and 1, got %g", c.RAG.SimilarityThreshold))
	}
	if c.RAG.MaxContextLength <= 0 {
		errs = append(errs, fmt.Errorf("MAX_CONTEXT_LENGTH must be positive, got %d", c.RAG.MaxContextLength))
	}
	if c.Memory.CriticalMB < c.Memory.ThresholdMB {
		errs = append(errs, fmt.Errorf("MEMORY_CRITICAL_MB (%g) must be at least MEMORY_THRESHOLD_MB (%g)",
			c.Memory.CriticalMB, c.Memory.ThresholdMB))
	}
	if c.Worker.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("BATCH_SIZE must be positive, got %d", c.Worker.BatchSize))
	}
	if c.API.RateLimitPerMinute <= 0 {
		errs = append(errs, fmt.Errorf("RATE_LIMIT_PER_MINUTE must be positive, got %d", c.API.RateLimitPerMinute))
	}
	if c.API.UploadRateLimitPerMinute <= 0 {
		errs = append(errs, fmt.Errorf("UPLOAD_RATE_LIMIT_PER_MINUTE must be positive, got %d", c.API.UploadRateLimitPerMinute))
	}

	return errs
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
		fmt.Printf("⚠️ Invalid integer for %s: %s, using default %d\n", key, value, fallback)
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
		fmt.Printf("⚠️ Invalid float for %s: %s, using default %g\n", key, value, fallback)
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
		fmt.Printf("⚠️ Invalid boolean for %s: %s, using default %t\n", key, value, fallback)
	}
	return fallback
}

// getEnvSize parses values like "50MB", "512KB" or plain byte counts
func getEnvSize(key string, fallback int64) int64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := ParseSize(value)
	if err != nil {
		fmt.Printf("⚠️ Invalid size for %s: %s, using default %d\n", key, value, fallback)
		return fallback
	}
	return parsed
}

// ParseSize converts a human-readable size such as "50MB" to bytes
func ParseSize(value string) (int64, error) {
	s := strings.TrimSpace(strings.ToUpper(value))
	multiplier := int64(1)

	switch {
	case strings.HasSuffix(s, "GB"):
		multiplier = 1024 * 1024 * 1024
		s = strings.TrimSuffix(s, "GB")
	case strings.HasSuffix(s, "MB"):
		multiplier = 1024 * 1024
		s = strings.TrimSuffix(s, "MB")
	case strings.HasSuffix(s, "KB"):
		multiplier = 1024
		s = strings.TrimSuffix(s, "KB")
	case strings.HasSuffix(s, "B"):
		s = strings.TrimSuffix(s, "B")
	}

	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", value, err)
	}
	if n < 0 {
		return 0, fmt.Errorf("size cannot be negative: %q", value)
	}
	return n * multiplier, nil
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
