package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	firebase "firebase.google.com/go/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/connexus-ai/ragbox-backend/internal/cache"
	"github.com/connexus-ai/ragbox-backend/internal/config"
	"github.com/connexus-ai/ragbox-backend/internal/gcpclient"
	"github.com/connexus-ai/ragbox-backend/internal/handler"
	"github.com/connexus-ai/ragbox-backend/internal/middleware"
	"github.com/connexus-ai/ragbox-backend/internal/queue"
	"github.com/connexus-ai/ragbox-backend/internal/repository"
	"github.com/connexus-ai/ragbox-backend/internal/router"
	"github.com/connexus-ai/ragbox-backend/internal/service"
)

// Version is set at build time via -ldflags, matching the teacher's convention.
var Version = "0.2.0"

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("main: load config: %w", err)
	}

	pool, err := repository.NewPool(ctx, cfg.DatabaseURL, cfg.DatabaseMaxConns)
	if err != nil {
		return fmt.Errorf("main: connect database: %w", err)
	}
	defer pool.Close()

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer rdb.Close()

	firebaseApp, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.FirebaseProjectID})
	if err != nil {
		return fmt.Errorf("main: init firebase app: %w", err)
	}
	firebaseAuth, err := firebaseApp.Auth(ctx)
	if err != nil {
		return fmt.Errorf("main: init firebase auth client: %w", err)
	}

	storageAdapter, err := gcpclient.NewStorageAdapter(ctx)
	if err != nil {
		return fmt.Errorf("main: init storage adapter: %w", err)
	}
	defer storageAdapter.Close()

	embeddingAdapter, err := gcpclient.NewEmbeddingAdapter(ctx, cfg.GCPProject, cfg.EmbeddingLocation, cfg.EmbeddingModel)
	if err != nil {
		return fmt.Errorf("main: init embedding adapter: %w", err)
	}

	genaiAdapter, err := gcpclient.NewGenAIAdapter(ctx, cfg.GCPProject, cfg.VertexAILocation, cfg.VertexAIModel)
	if err != nil {
		return fmt.Errorf("main: init genai adapter: %w", err)
	}
	defer genaiAdapter.Close()

	docaiAdapter, err := gcpclient.NewDocumentAIAdapter(ctx, cfg.GCPProject, cfg.DocAILocation)
	if err != nil {
		return fmt.Errorf("main: init document ai adapter: %w", err)
	}
	defer docaiAdapter.Close()

	pubsubClient, err := pubsub.NewClient(ctx, cfg.GCPProject)
	if err != nil {
		return fmt.Errorf("main: init pubsub client: %w", err)
	}
	defer pubsubClient.Close()

	ingestTopic := pubsubClient.Topic(cfg.PubSubTopic)
	defer ingestTopic.Stop()
	ingestSub := pubsubClient.Subscription(cfg.PubSubSubscription)

	// Repositories
	docRepo := repository.NewDocumentRepo(pool)
	workspaceRepo := repository.NewWorkspaceRepo(pool)
	aclRepo := repository.NewACLRepo(pool)
	chunkRepo := repository.NewChunkRepo(pool)
	bm25Repo := repository.NewBM25Repository(pool)
	conversationRepo := repository.NewConversationRepo(pool)
	feedbackRepo := repository.NewFeedbackRepo(pool)
	auditRepo := repository.NewAuditRepo(pool)

	// Domain services
	authService := service.NewAuthService(firebaseAuth)
	documentService := service.NewDocumentService(storageAdapter, docRepo, cfg.GCSBucketName, cfg.GCSSignedURLExpiry)
	auditService := service.NewAuditService(auditRepo)

	processor := fmt.Sprintf("projects/%s/locations/%s/processors/%s", cfg.GCPProject, cfg.DocAILocation, cfg.DocAIProcessorID)
	parserService := service.NewParserService(docaiAdapter, processor, storageAdapter, cfg.GCSBucketName)
	injectionDetector := service.NewInjectionDetectorService(cfg.InjectionThreshold)
	chunkerService := service.NewChunkerService(cfg.ChunkSize, cfg.ChunkOverlap)
	embedderService := service.NewEmbedderService(embeddingAdapter, chunkRepo)
	pipelineService := service.NewPipelineService(docRepo, chunkRepo, parserService, injectionDetector, chunkerService, embedderService, auditService)

	embeddingCache := cache.NewEmbeddingCache(rdb, embeddingAdapter, cfg.EmbeddingCacheTTL)
	contextBuilder := service.NewContextBuilderService(cfg.ContextCharBudget)
	retrieverService := service.NewRetrieverService(
		embeddingCache, chunkRepo, contextBuilder,
		cfg.TopKMax, cfg.DenseCandidates, cfg.LexicalCandidates,
		cfg.SimilarityThreshold, cfg.InjectionThreshold,
	)
	retrieverService.SetBM25(bm25Repo)
	generatorService := service.NewGeneratorService(genaiAdapter, cfg.PromptTemplateVersion)
	conversationService := service.NewConversationService(conversationRepo)
	feedbackService := service.NewFeedbackService(feedbackRepo)

	ingestQueue := queue.NewPubSubQueue(ingestTopic)
	worker := queue.NewWorker(ingestSub, docRepo, pipelineService, cfg.WorkerMaxAttempts)

	workerCtx, stopWorker := context.WithCancel(ctx)
	defer stopWorker()
	go func() {
		slog.Info("ingest worker starting", "subscription", cfg.PubSubSubscription)
		if err := worker.Run(workerCtx); err != nil && workerCtx.Err() == nil {
			slog.Error("ingest worker stopped unexpectedly", "error", err)
		}
	}()

	metricsReg := prometheus.NewRegistry()
	metrics := middleware.NewMetrics(metricsReg)

	generalLimiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{MaxRequests: 120, Window: time.Minute})
	defer generalLimiter.Stop()
	chatLimiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{MaxRequests: 10, Window: time.Minute})
	defer chatLimiter.Stop()

	deps := &router.Dependencies{
		DB:                 pool,
		AuthService:        authService,
		FrontendURL:        os.Getenv("FRONTEND_URL"),
		Version:            Version,
		Metrics:            metrics,
		MetricsReg:         metricsReg,
		InternalAuthSecret: cfg.InternalAuthSecret,

		Documents: handler.DocumentDeps{
			Documents:  documentService,
			Pipeline:   pipelineService,
			Chunks:     chunkRepo,
			Queue:      ingestQueue,
			Workspaces: workspaceRepo,
			ACLs:       aclRepo,
		},
		Workspaces: handler.WorkspaceDeps{
			Workspaces: workspaceRepo,
			ACLs:       aclRepo,
		},
		Chat: handler.ChatDeps{
			Retriever:     retrieverService,
			Generator:     generatorService,
			Conversations: conversationService,
			Workspaces:    workspaceRepo,
			ACLs:          aclRepo,
		},
		Conversations: handler.ConversationDeps{
			Conversations: conversationService,
			Workspaces:    workspaceRepo,
			ACLs:          aclRepo,
		},
		Feedback: handler.FeedbackDeps{Feedback: feedbackService},
		Audit:    handler.AuditDeps{Audit: auditService},

		GeneralRateLimiter: generalLimiter,
		ChatRateLimiter:    chatLimiter,
	}

	r := router.New(deps)

	srv := &http.Server{
		Addr:         ":" + portOrDefault(cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // chat streaming holds the connection open; per-route timeouts apply elsewhere
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("ragbox-backend starting", "version", Version, "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	stopWorker()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	slog.Info("server stopped")
	return nil
}

func portOrDefault(port int) string {
	if port <= 0 {
		return "8080"
	}
	return fmt.Sprintf("%d", port)
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}
