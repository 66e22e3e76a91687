package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration loaded from environment variables.
// It is immutable after Load() returns.
type Config struct {
	Port             int
	Environment      string
	DatabaseURL      string
	DatabaseMaxConns int

	GCPProject         string
	GCPRegion          string
	VertexAILocation   string
	VertexAIModel      string
	EmbeddingLocation  string
	EmbeddingModel     string
	GCSBucketName      string
	GCSSignedURLExpiry time.Duration
	DocAIProcessorID   string
	DocAILocation      string
	FirebaseProjectID  string

	RedisAddr          string
	EmbeddingCacheTTL  time.Duration

	PubSubTopic        string
	PubSubSubscription string
	QueueVisibilityTimeout time.Duration
	WorkerMaxAttempts  int

	ChunkSize    int
	ChunkOverlap int

	TopKMax             int
	DenseCandidates     int
	LexicalCandidates   int
	SimilarityThreshold float64
	ContextCharBudget   int
	RetrievalFilterMode string // off | downrank | exclude
	InjectionThreshold  float64
	PromptTemplateVersion string

	RetryMaxAttempts int
	RetryBaseDelay   time.Duration
	RetryMaxDelay    time.Duration

	InternalAuthSecret string
}

// Load reads configuration from environment variables.
// Required variables (DATABASE_URL, GOOGLE_CLOUD_PROJECT) cause an error if missing.
// Optional variables use sensible defaults.
func Load() (*Config, error) {
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("config.Load: DATABASE_URL is required")
	}

	gcpProject := os.Getenv("GOOGLE_CLOUD_PROJECT")
	if gcpProject == "" {
		return nil, fmt.Errorf("config.Load: GOOGLE_CLOUD_PROJECT is required")
	}

	cfg := &Config{
		Port:             envInt("PORT", 8080),
		Environment:      envStr("ENVIRONMENT", "development"),
		DatabaseURL:      dbURL,
		DatabaseMaxConns: envInt("DATABASE_MAX_CONNS", 25),

		GCPProject:         gcpProject,
		GCPRegion:          envStr("GCP_REGION", "us-east4"),
		VertexAILocation:   envStr("VERTEX_AI_LOCATION", "global"),
		VertexAIModel:      envStr("VERTEX_AI_MODEL", "gemini-3-pro-preview"),
		EmbeddingLocation:  envStr("VERTEX_AI_EMBEDDING_LOCATION", envStr("GCP_REGION", "us-east4")),
		EmbeddingModel:     envStr("VERTEX_AI_EMBEDDING_MODEL", "text-embedding-004"),
		GCSBucketName:      envStr("GCS_BUCKET_NAME", ""),
		GCSSignedURLExpiry: envDuration("GCS_SIGNED_URL_EXPIRY", 15*time.Minute),
		DocAIProcessorID:   envStr("DOCUMENT_AI_PROCESSOR_ID", ""),
		DocAILocation:      envStr("DOCUMENT_AI_LOCATION", "us"),
		FirebaseProjectID:  envStr("FIREBASE_PROJECT_ID", ""),

		RedisAddr:         envStr("REDIS_ADDR", "localhost:6379"),
		EmbeddingCacheTTL: envDuration("EMBEDDING_CACHE_TTL", 24*time.Hour),

		PubSubTopic:            envStr("PUBSUB_INGEST_TOPIC", "ragbox-ingest"),
		PubSubSubscription:     envStr("PUBSUB_INGEST_SUBSCRIPTION", "ragbox-ingest-worker"),
		QueueVisibilityTimeout: envDuration("QUEUE_VISIBILITY_TIMEOUT", 10*time.Minute),
		WorkerMaxAttempts:      envInt("WORKER_MAX_ATTEMPTS", 5),

		ChunkSize:    envInt("CHUNK_SIZE", 1000),
		ChunkOverlap: envInt("CHUNK_OVERLAP", 150),

		TopKMax:               envInt("TOP_K_MAX", 50),
		DenseCandidates:        envInt("DENSE_CANDIDATES", 20),
		LexicalCandidates:      envInt("LEXICAL_CANDIDATES", 20),
		SimilarityThreshold:    envFloat("SIMILARITY_THRESHOLD", 0.35),
		ContextCharBudget:      envInt("CONTEXT_CHAR_BUDGET", 8000),
		RetrievalFilterMode:    envStr("RETRIEVAL_FILTER_MODE", "downrank"),
		InjectionThreshold:     envFloat("INJECTION_THRESHOLD", 0.5),
		PromptTemplateVersion:  envStr("PROMPT_TEMPLATE_VERSION", "v1"),

		RetryMaxAttempts: envInt("RETRY_MAX_ATTEMPTS", 5),
		RetryBaseDelay:   envDuration("RETRY_BASE_DELAY", 250*time.Millisecond),
		RetryMaxDelay:    envDuration("RETRY_MAX_DELAY", 8*time.Second),

		InternalAuthSecret: envStr("INTERNAL_AUTH_SECRET", ""),
	}

	if cfg.Environment != "development" && cfg.InternalAuthSecret == "" {
		return nil, fmt.Errorf("config.Load: INTERNAL_AUTH_SECRET is required in %s environment", cfg.Environment)
	}

	return cfg, nil
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
